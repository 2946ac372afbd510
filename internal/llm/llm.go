// Package llm is the language-model contract and an OpenAI-compatible chat client.
package llm

import "context"

// Role is the author of a chat message.
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Message is one entry of an ordered prompt.
type Message struct {
	Role    Role   `json:"role"`
	Content string `json:"content"`
}

// ChatModel answers an ordered list of messages. It is stateless per call:
// every piece of context must be in messages.
type ChatModel interface {
	Invoke(ctx context.Context, messages []Message) (string, error)
}

// ChatModelFunc adapts a function to ChatModel.
type ChatModelFunc func(ctx context.Context, messages []Message) (string, error)

// Invoke calls f.
func (f ChatModelFunc) Invoke(ctx context.Context, messages []Message) (string, error) {
	return f(ctx, messages)
}
