package rag

import (
	"fmt"
	"strings"

	"github.com/hyperjump/ragdocs/internal/llm"
	"github.com/hyperjump/ragdocs/internal/models"
)

const (
	// DefaultTopK is the number of chunks retrieved per question.
	DefaultTopK = 5
	// DefaultTitleSample is the number of chunks sampled for a session title.
	DefaultTitleSample = 2
)

const systemPrompt = `You are a helpful document assistant.
INSTRUCTIONS:
1. Answer questions based ONLY on the provided document context
2. If the answer isn't in the context, clearly state "I don't have enough information in the provided documents to answer that"
3. When answering, cite relevant parts of the context when possible
4. Be concise but complete in your responses
5. If asked about previous conversation, use the session history provided
6. Stay professional and helpful in tone
Remember: Stay within the document scope. Don't make assumptions beyond what's explicitly stated in the context.`

const titlePrompt = "Generate a short and relevant session name based on the following context. " +
	"Return ONLY the title text, no quotes, no explanations, no additional formatting."

// contextSeparator joins retrieved chunks inside the document context message.
const contextSeparator = "\n\n"

// BuildPrompt assembles the ordered message list for one question:
// system instructions, document context, prior turns, optional session memory,
// and the current question last.
func BuildPrompt(question string, docs []string, history []models.HistoryMessage, sessionMemory string) []llm.Message {
	messages := make([]llm.Message, 0, len(history)+4)
	messages = append(messages,
		llm.Message{Role: llm.RoleSystem, Content: systemPrompt},
		llm.Message{Role: llm.RoleUser, Content: documentContext(docs)},
	)

	// Numbering counts messages, so a user/assistant pair is numbered 1 and 2.
	for i, h := range history {
		n := i + 1
		if h.Role == models.RoleUser {
			messages = append(messages, llm.Message{
				Role:    llm.RoleUser,
				Content: fmt.Sprintf("[Previous Question %d]: %s", n, h.Content),
			})
			continue
		}
		messages = append(messages, llm.Message{
			Role:    llm.RoleSystem,
			Content: fmt.Sprintf("[Previous Answer %d]: %s", n, h.Content),
		})
	}

	if sessionMemory != "" {
		messages = append(messages, llm.Message{
			Role:    llm.RoleSystem,
			Content: "SESSION MEMORY:\n" + sessionMemory,
		})
	}

	return append(messages, llm.Message{
		Role:    llm.RoleUser,
		Content: "[Current Question]: " + question,
	})
}

func documentContext(docs []string) string {
	return "DOCUMENT CONTEXT:\n  " + strings.Join(docs, contextSeparator) +
		"\n\nPlease use the above context to answer the following question."
}

// buildTitlePrompt returns the messages asking for a session title from context.
func buildTitlePrompt(context string) []llm.Message {
	return []llm.Message{
		{Role: llm.RoleSystem, Content: titlePrompt},
		{Role: llm.RoleUser, Content: "Context: " + context},
	}
}
