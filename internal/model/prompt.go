package model

import "strings"

// ragPrompt builds the fixed synthesis prompt: a delimited context block,
// a labeled query line and the answer cue. Context documents are joined
// with a blank line in the order given (descending retrieval score).
func ragPrompt(query string, contextDocs []string) string {
	var b strings.Builder
	b.WriteString("Context information is below:\n")
	b.WriteString("---------------------\n")
	b.WriteString(strings.Join(contextDocs, "\n\n"))
	b.WriteString("\n---------------------\n")
	b.WriteString("Given the above context information, answer the query.\n")
	b.WriteString("Query: ")
	b.WriteString(query)
	b.WriteString("\nAnswer:")
	return b.String()
}
