package app

import (
	"strings"

	"docchat/internal/session"
)

const promptPreamble = "You are a helpful assistant that answers questions about the user's PDF documents. " +
	"Answer the question as thoroughly as possible using only the provided context. " +
	"If the answer is not in the context, say that you could not find it in the documents. Do not make up facts."

// BuildPrompt assembles the generation prompt. The history section is left out
// entirely when history is empty.
func BuildPrompt(contexts []string, history []session.Turn, question string) string {
	var b strings.Builder
	b.WriteString(promptPreamble)
	b.WriteString("\n\nContext:\n")
	b.WriteString(strings.Join(contexts, "\n\n"))

	if len(history) > 0 {
		b.WriteString("\n\nPrevious conversation:\n")
		for i, turn := range history {
			if i > 0 {
				b.WriteString("\n")
			}
			b.WriteString("User: ")
			b.WriteString(turn.Question)
			b.WriteString("\nAssistant: ")
			b.WriteString(turn.Answer)
		}
	}

	b.WriteString("\n\nQuestion: ")
	b.WriteString(question)
	b.WriteString("\n\nAnswer:")
	return b.String()
}
