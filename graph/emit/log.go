package emit

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"sync"
)

// LogEmitter writes events to a writer, either as human-readable text
// or as one JSON object per line (JSONL).
//
// Text:
//
//	[node complete] run=7f3a step=2 node=fetch
//
// JSONL:
//
//	{"run":"7f3a","step":2,"node":"fetch","msg":"node complete"}
type LogEmitter struct {
	mu   sync.Mutex
	w    io.Writer
	json bool
}

// NewLogEmitter creates a LogEmitter. A nil writer defaults to stderr.
func NewLogEmitter(w io.Writer, jsonMode bool) *LogEmitter {
	if w == nil {
		w = os.Stderr
	}
	return &LogEmitter{w: w, json: jsonMode}
}

// Emit writes one event in the configured format.
func (l *LogEmitter) Emit(event Event) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.json {
		l.writeJSON(event)
		return
	}
	l.writeText(event)
}

func (l *LogEmitter) writeJSON(event Event) {
	data, err := json.Marshal(struct {
		Run   string         `json:"run"`
		Step  int            `json:"step,omitempty"`
		Node  string         `json:"node,omitempty"`
		Msg   string         `json:"msg"`
		Attrs map[string]any `json:"attrs,omitempty"`
	}{event.Run, event.Step, event.Node, event.Msg, event.Attrs})
	if err != nil {
		fmt.Fprintf(l.w, "{\"error\":%q}\n", err.Error())
		return
	}
	fmt.Fprintf(l.w, "%s\n", data)
}

func (l *LogEmitter) writeText(event Event) {
	fmt.Fprintf(l.w, "[%s] run=%s", event.Msg, event.Run)
	if event.Step > 0 {
		fmt.Fprintf(l.w, " step=%d", event.Step)
	}
	if event.Node != "" {
		fmt.Fprintf(l.w, " node=%s", event.Node)
	}
	if len(event.Attrs) > 0 {
		if data, err := json.Marshal(event.Attrs); err == nil {
			fmt.Fprintf(l.w, " attrs=%s", data)
		}
	}
	fmt.Fprintln(l.w)
}
