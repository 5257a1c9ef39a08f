package scrape

import (
	"fmt"
	"strings"
)

// NoAnswer is the placeholder a model is told to use when the
// provided content cannot answer the question.
const NoAnswer = "NA"

const answerSystemPrompt = `You are a JSON scraper. You extract answers to a user's question from JSON content.
Answer using only the provided content. If the content does not contain the answer, reply with "` + NoAnswer + `".
Respond with a JSON object of the form {"answer": <your answer>}.`

// answerPrompt asks a question of one complete document.
func answerPrompt(question, content string, schema Schema) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Question: %s\n\n", question)
	b.WriteString("Content:\n")
	b.WriteString(content)
	b.WriteString("\n")
	if schema != nil {
		b.WriteString("\n")
		b.WriteString(schema.Instructions())
		b.WriteString("\n")
	}
	return b.String()
}

// chunkPrompt asks a question of one fragment of a larger document.
func chunkPrompt(question, content string, index, total int) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Question: %s\n\n", question)
	fmt.Fprintf(&b, "Content (fragment %d of %d):\n", index+1, total)
	b.WriteString(content)
	b.WriteString("\n")
	return b.String()
}

// combinePrompt merges per-chunk partial answers into one answer for
// the whole document.
func combinePrompt(question string, partials []string, schema Schema) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Question: %s\n\n", question)
	b.WriteString("The content was processed in fragments. These are the partial answers:\n\n")
	for i, p := range partials {
		fmt.Fprintf(&b, "Fragment %d: %s\n", i+1, p)
	}
	b.WriteString("\nCombine the partial answers into a single answer to the question. ")
	fmt.Fprintf(&b, "Ignore fragments answered %q.\n", NoAnswer)
	if schema != nil {
		b.WriteString("\n")
		b.WriteString(schema.Instructions())
		b.WriteString("\n")
	}
	return b.String()
}

const mergeSystemPrompt = `You merge answers gathered from multiple documents into one final answer.
Respond with a JSON object of the form {"answer": <your answer>}.`

// mergePrompt merges per-source answers into the final answer.
func mergePrompt(question string, results []SourceAnswer, schema Schema) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Question: %s\n\n", question)
	b.WriteString("Answers gathered from each document:\n\n")
	for i, r := range results {
		switch {
		case r.Err != "":
			fmt.Fprintf(&b, "Document %d (%s): failed: %s\n", i+1, r.Source, r.Err)
		default:
			fmt.Fprintf(&b, "Document %d (%s): %s\n", i+1, r.Source, r.Answer)
		}
	}
	b.WriteString("\nMerge these into a single answer to the question. ")
	fmt.Fprintf(&b, "Ignore documents that failed or answered %q.\n", NoAnswer)
	if schema != nil {
		b.WriteString("\n")
		b.WriteString(schema.Instructions())
		b.WriteString("\n")
	}
	return b.String()
}
