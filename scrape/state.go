// Package scrape implements the scrape-and-answer node library: fetch
// JSON documents, chunk them, answer a prompt per document, and merge
// per-document answers into one.
package scrape

// Document is one fetched source and its prompt-sized chunks.
type Document struct {
	// Source is the path or URL the document came from.
	Source string `json:"source"`

	// Raw is the fetched payload.
	Raw string `json:"raw"`

	// Chunks is the normalized content split to fit prompt windows.
	// Populated by ParseNode.
	Chunks []string `json:"chunks,omitempty"`
}

// SourceAnswer is the answer produced for a single source.
type SourceAnswer struct {
	Source string `json:"source"`
	Answer string `json:"answer"`

	// Err records a per-source failure when the iterator continues
	// past it.
	Err string `json:"error,omitempty"`
}

// State is the shared pipeline state for the scraper graphs.
type State struct {
	// UserPrompt is the question being answered.
	UserPrompt string `json:"user_prompt"`

	// Sources lists the JSON documents to process, in order. Each
	// entry is a file path or URL.
	Sources []string `json:"jsons"`

	// Docs holds fetched (and later chunked) documents.
	Docs []Document `json:"docs,omitempty"`

	// Results holds per-source answers, in source order.
	Results []SourceAnswer `json:"results,omitempty"`

	// Answer is the final merged answer.
	Answer string `json:"answer,omitempty"`
}

// Reduce merges a node's delta into the previous state. Set fields
// replace; empty fields leave the previous value alone. Nodes that
// want append semantics carry the full slice in their delta.
func Reduce(prev, delta State) State {
	if delta.UserPrompt != "" {
		prev.UserPrompt = delta.UserPrompt
	}
	if delta.Sources != nil {
		prev.Sources = delta.Sources
	}
	if delta.Docs != nil {
		prev.Docs = delta.Docs
	}
	if delta.Results != nil {
		prev.Results = delta.Results
	}
	if delta.Answer != "" {
		prev.Answer = delta.Answer
	}
	return prev
}
