package scrape

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"

	"github.com/dshills/answergraph-go/graph"
)

// defaultMaxBody caps fetched payloads at 16 MiB. JSON documents
// beyond that won't fit any prompt window after chunking anyway.
const defaultMaxBody = 16 << 20

// Fetcher loads JSON documents from local files or HTTP(S) URLs.
type Fetcher struct {
	// Client is used for URL sources. Nil uses http.DefaultClient;
	// timeouts come from the node context.
	Client *http.Client

	// MaxBody caps the bytes read per document. 0 uses the default.
	MaxBody int64
}

// Fetch returns the payload of one source. Sources starting with
// http:// or https:// are fetched over the network; a file:// prefix
// or a bare path reads from disk.
func (f *Fetcher) Fetch(ctx context.Context, source string) (string, error) {
	if strings.HasPrefix(source, "http://") || strings.HasPrefix(source, "https://") {
		return f.fetchURL(ctx, source)
	}
	path := strings.TrimPrefix(source, "file://")
	data, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("read %s: %w", path, err)
	}
	return string(data), nil
}

func (f *Fetcher) fetchURL(ctx context.Context, url string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return "", fmt.Errorf("build request for %s: %w", url, err)
	}
	req.Header.Set("Accept", "application/json")

	client := f.Client
	if client == nil {
		client = http.DefaultClient
	}
	resp, err := client.Do(req)
	if err != nil {
		return "", fmt.Errorf("fetch %s: %w", url, err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return "", fmt.Errorf("fetch %s: unexpected status %d", url, resp.StatusCode)
	}

	maxBody := f.MaxBody
	if maxBody <= 0 {
		maxBody = defaultMaxBody
	}
	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBody))
	if err != nil {
		return "", fmt.Errorf("read %s: %w", url, err)
	}
	return string(body), nil
}

// FetchNode loads every source in the state into Docs. Routing is
// left to the graph's edges.
type FetchNode struct {
	Fetcher Fetcher
}

// Run implements graph.Node.
func (n *FetchNode) Run(ctx context.Context, s State) graph.Result[State] {
	if len(s.Sources) == 0 {
		return graph.Result[State]{Err: fmt.Errorf("no sources to fetch")}
	}

	docs := make([]Document, 0, len(s.Sources))
	for _, src := range s.Sources {
		raw, err := n.Fetcher.Fetch(ctx, src)
		if err != nil {
			return graph.Result[State]{Err: err}
		}
		docs = append(docs, Document{Source: src, Raw: raw})
	}
	return graph.Result[State]{Delta: State{Docs: docs}}
}
