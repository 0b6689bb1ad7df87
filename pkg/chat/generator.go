package chat

import "context"

// Turn is one user message plus the prior conversation, in order.
type Turn struct {
	History []Message
	Message string
}

// Message is a single prior exchange item.
type Message struct {
	Role    string // "user" or "assistant"
	Content string
}

// Generator is the external text-generation collaborator. Implementations
// own their retry policy; callers surface failures as-is.
type Generator interface {
	Generate(ctx context.Context, system string, messages []Message) (string, error)
}
