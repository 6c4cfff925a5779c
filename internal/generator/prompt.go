// Package generator assembles prompts and wraps answer backends.
package generator

import (
	"fmt"
	"strings"
)

// DefaultSystemPrompt is used when a caller supplies no system prompt.
const DefaultSystemPrompt = "You are a helpful assistant that answers questions based on the provided context. " +
	"Use the context to answer the question accurately. " +
	"If the context doesn't contain the information needed to answer the question, say so."

// SystemPrompt returns prompt, or DefaultSystemPrompt when prompt is blank.
func SystemPrompt(prompt string) string {
	if strings.TrimSpace(prompt) == "" {
		return DefaultSystemPrompt
	}
	return prompt
}

// BuildUserPrompt numbers the context documents from 1 and appends the question.
func BuildUserPrompt(query string, contexts []string) string {
	var b strings.Builder
	b.WriteString("Context:\n")
	for i, text := range contexts {
		if i > 0 {
			b.WriteString("\n\n")
		}
		fmt.Fprintf(&b, "[Document %d]\n%s", i+1, text)
	}
	b.WriteString("\n\nQuestion: ")
	b.WriteString(query)
	return b.String()
}
