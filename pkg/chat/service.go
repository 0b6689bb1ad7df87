package chat

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"

	"github.com/sitewise-ai/sitewise/pkg/retrieval"
	"github.com/sitewise-ai/sitewise/pkg/storage"
)

// ErrGeneration wraps collaborator failures. The user's message is already
// persisted by then, so retrying the turn loses nothing.
var ErrGeneration = errors.New("generation failed")

// HistoryStore persists conversations.
type HistoryStore interface {
	CreateConversation(ctx context.Context, id, tenantID string) error
	GetConversationTenant(ctx context.Context, id string) (string, error)
	AppendMessage(ctx context.Context, conversationID, role, content string) error
	ListMessages(ctx context.Context, conversationID string) ([]storage.ConversationMessage, error)
}

// Retriever assembles grounded context for a query.
type Retriever interface {
	RetrieveContext(ctx context.Context, tenantID, query string, maxChars int) (*retrieval.ContextBlob, error)
}

// Service runs one chat turn end to end: persist the user message, retrieve
// context, generate, persist the reply.
type Service struct {
	history   HistoryStore
	retriever Retriever
	assembler *Assembler
	maxChars  int
}

func NewService(history HistoryStore, retriever Retriever, assembler *Assembler, maxChars int) *Service {
	if maxChars <= 0 {
		maxChars = 12000
	}
	return &Service{history: history, retriever: retriever, assembler: assembler, maxChars: maxChars}
}

type TurnResult struct {
	ConversationID string `json:"conversation_id"`
	Reply          string `json:"reply"`
	Grounded       bool   `json:"grounded"`
}

// Submit handles one user message. An empty conversationID starts a new
// conversation. Retrieval yielding nothing still reaches the assembler: the
// ungrounded fallback is an answer, not an error.
func (s *Service) Submit(ctx context.Context, tenantID, conversationID, message string) (*TurnResult, error) {
	if conversationID == "" {
		conversationID = uuid.New().String()
		if err := s.history.CreateConversation(ctx, conversationID, tenantID); err != nil {
			return nil, fmt.Errorf("create conversation: %w", err)
		}
	} else {
		owner, err := s.history.GetConversationTenant(ctx, conversationID)
		if err != nil {
			return nil, err
		}
		if owner != tenantID {
			return nil, storage.ErrNotFound
		}
	}

	stored, err := s.history.ListMessages(ctx, conversationID)
	if err != nil {
		return nil, err
	}
	history := make([]Message, 0, len(stored))
	for _, m := range stored {
		history = append(history, Message{Role: m.Role, Content: m.Content})
	}

	// Persist before generating so a collaborator failure keeps the turn.
	if err := s.history.AppendMessage(ctx, conversationID, RoleUser, message); err != nil {
		return nil, err
	}

	blob, err := s.retriever.RetrieveContext(ctx, tenantID, message, s.maxChars)
	if err != nil {
		// Retrieval trouble degrades to an ungrounded answer.
		slog.Error("context retrieval failed", slog.String("tenant", tenantID), slog.Any("err", err))
		blob = &retrieval.ContextBlob{}
	}

	reply, err := s.assembler.Generate(ctx, Turn{History: history, Message: message}, blob)
	if err != nil {
		return nil, fmt.Errorf("%w: %s", ErrGeneration, err)
	}

	if err := s.history.AppendMessage(ctx, conversationID, RoleAssistant, reply); err != nil {
		slog.Error("failed to persist assistant reply", slog.String("conversation", conversationID), slog.Any("err", err))
	}

	return &TurnResult{
		ConversationID: conversationID,
		Reply:          reply,
		Grounded:       !blob.Empty(),
	}, nil
}
