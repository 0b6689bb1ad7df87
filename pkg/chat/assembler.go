package chat

import (
	"context"
	"fmt"

	"github.com/sitewise-ai/sitewise/pkg/retrieval"
)

const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

const groundedPrompt = `You are a helpful assistant answering questions about an organization using its indexed website and documents. Ground your answers in the provided context. If the context does not cover the question, say so rather than inventing details.

Context:
%s`

const ungroundedPrompt = `You are a helpful assistant answering questions about an organization. No indexed content matched this question, so answer from general knowledge and make clear when you are unsure.`

// Assembler packages a conversation turn and an assembled context blob into
// the generator's input shape and returns its output verbatim. No retry
// here: retry policy belongs to the collaborator.
type Assembler struct {
	generator Generator
}

func NewAssembler(generator Generator) *Assembler {
	return &Assembler{generator: generator}
}

func (a *Assembler) Generate(ctx context.Context, turn Turn, blob *retrieval.ContextBlob) (string, error) {
	system := ungroundedPrompt
	if blob != nil && !blob.Empty() {
		system = fmt.Sprintf(groundedPrompt, blob.Text())
	}

	messages := append([]Message{}, turn.History...)
	messages = append(messages, Message{Role: RoleUser, Content: turn.Message})

	return a.generator.Generate(ctx, system, messages)
}
