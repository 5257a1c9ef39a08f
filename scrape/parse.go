package scrape

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"unicode/utf8"

	"github.com/dshills/answergraph-go/graph"
)

// DefaultChunkSize is the per-chunk character budget used when a
// ParseNode is built with a zero ChunkSize. It approximates a 4096
// token context at roughly 4 characters per token.
const DefaultChunkSize = 16384

// ParseNode validates each fetched document as JSON, normalizes it to
// compact form, and splits it into prompt-sized chunks.
type ParseNode struct {
	// ChunkSize is the maximum characters per chunk. 0 uses
	// DefaultChunkSize.
	ChunkSize int
}

// Run implements graph.Node.
func (n *ParseNode) Run(ctx context.Context, s State) graph.Result[State] {
	if len(s.Docs) == 0 {
		return graph.Result[State]{Err: fmt.Errorf("no documents to parse")}
	}

	size := n.ChunkSize
	if size <= 0 {
		size = DefaultChunkSize
	}

	docs := make([]Document, len(s.Docs))
	for i, doc := range s.Docs {
		normalized, err := normalizeJSON(doc.Raw)
		if err != nil {
			return graph.Result[State]{Err: fmt.Errorf("parse %s: %w", doc.Source, err)}
		}
		doc.Raw = normalized
		doc.Chunks = chunkText(normalized, size)
		docs[i] = doc
	}
	return graph.Result[State]{Delta: State{Docs: docs}}
}

// normalizeJSON rejects malformed input and strips insignificant
// whitespace so chunk boundaries waste no budget.
func normalizeJSON(raw string) (string, error) {
	var v any
	if err := json.Unmarshal([]byte(raw), &v); err != nil {
		return "", fmt.Errorf("invalid JSON: %w", err)
	}
	var buf bytes.Buffer
	if err := json.Compact(&buf, []byte(raw)); err != nil {
		return "", err
	}
	return buf.String(), nil
}

// chunkText splits text into pieces of at most size bytes, cutting
// only on rune boundaries so multibyte content stays valid UTF-8. It
// does not try to respect JSON structure; the answering prompts carry
// enough context for partial objects.
func chunkText(text string, size int) []string {
	if len(text) <= size {
		return []string{text}
	}
	chunks := make([]string, 0, (len(text)+size-1)/size)
	for len(text) > size {
		cut := size
		for cut > 0 && !utf8.RuneStart(text[cut]) {
			cut--
		}
		if cut == 0 {
			// No rune boundary within the budget; split anyway.
			cut = size
		}
		chunks = append(chunks, text[:cut])
		text = text[cut:]
	}
	if len(text) > 0 {
		chunks = append(chunks, text)
	}
	return chunks
}
