package chat_test

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sitewise-ai/sitewise/pkg/chat"
	"github.com/sitewise-ai/sitewise/pkg/retrieval"
	"github.com/sitewise-ai/sitewise/pkg/storage"
)

// fakeGenerator records every call and returns a canned reply or error.
type fakeGenerator struct {
	reply    string
	err      error
	calls    int
	system   string
	messages []chat.Message
}

func (g *fakeGenerator) Generate(ctx context.Context, system string, messages []chat.Message) (string, error) {
	g.calls++
	g.system = system
	g.messages = messages
	if g.err != nil {
		return "", g.err
	}
	return g.reply, nil
}

// fakeRetriever returns a fixed blob or error.
type fakeRetriever struct {
	blob *retrieval.ContextBlob
	err  error
}

func (r *fakeRetriever) RetrieveContext(ctx context.Context, tenantID, query string, maxChars int) (*retrieval.ContextBlob, error) {
	if r.err != nil {
		return nil, r.err
	}
	return r.blob, nil
}

func groundedBlob() *retrieval.ContextBlob {
	return &retrieval.ContextBlob{Excerpts: []retrieval.Excerpt{
		{Source: "https://acme.example/shipping", Title: "Shipping", Text: "Orders ship within two days.", Score: 2},
	}}
}

func TestSubmitGroundedTurn(t *testing.T) {
	store := storage.NewMemory()
	gen := &fakeGenerator{reply: "Orders usually ship within two days."}
	svc := chat.NewService(store, &fakeRetriever{blob: groundedBlob()}, chat.NewAssembler(gen), 4000)

	res, err := svc.Submit(context.Background(), "tenant-1", "", "when do orders ship?")
	require.NoError(t, err)
	assert.NotEmpty(t, res.ConversationID)
	assert.Equal(t, "Orders usually ship within two days.", res.Reply)
	assert.True(t, res.Grounded)

	assert.Equal(t, 1, gen.calls)
	assert.Contains(t, gen.system, "Orders ship within two days.")
	require.Len(t, gen.messages, 1)
	assert.Equal(t, chat.RoleUser, gen.messages[0].Role)

	msgs, err := store.ListMessages(context.Background(), res.ConversationID)
	require.NoError(t, err)
	require.Len(t, msgs, 2)
	assert.Equal(t, chat.RoleUser, msgs[0].Role)
	assert.Equal(t, "when do orders ship?", msgs[0].Content)
	assert.Equal(t, chat.RoleAssistant, msgs[1].Role)
}

func TestSubmitUngroundedStillGenerates(t *testing.T) {
	store := storage.NewMemory()
	gen := &fakeGenerator{reply: "I do not have indexed content about that."}
	svc := chat.NewService(store, &fakeRetriever{blob: &retrieval.ContextBlob{}}, chat.NewAssembler(gen), 4000)

	res, err := svc.Submit(context.Background(), "tenant-1", "", "what is the meaning of life?")
	require.NoError(t, err)
	assert.False(t, res.Grounded)
	assert.Equal(t, "I do not have indexed content about that.", res.Reply)

	// The generator ran even though nothing matched.
	assert.Equal(t, 1, gen.calls)
	assert.NotContains(t, gen.system, "Context:")
}

func TestSubmitRetrievalFailureDegradesToUngrounded(t *testing.T) {
	store := storage.NewMemory()
	gen := &fakeGenerator{reply: "answering without context"}
	svc := chat.NewService(store, &fakeRetriever{err: errors.New("store down")}, chat.NewAssembler(gen), 4000)

	res, err := svc.Submit(context.Background(), "tenant-1", "", "anything")
	require.NoError(t, err)
	assert.False(t, res.Grounded)
	assert.Equal(t, 1, gen.calls)
}

func TestSubmitGenerationFailureKeepsUserMessage(t *testing.T) {
	store := storage.NewMemory()
	gen := &fakeGenerator{err: errors.New("upstream 500")}
	svc := chat.NewService(store, &fakeRetriever{blob: groundedBlob()}, chat.NewAssembler(gen), 4000)

	ctx := context.Background()
	require.NoError(t, store.CreateConversation(ctx, "conv-1", "tenant-1"))

	_, err := svc.Submit(ctx, "tenant-1", "conv-1", "when do orders ship?")
	require.ErrorIs(t, err, chat.ErrGeneration)

	// The user's message survived the failed turn.
	msgs, err := store.ListMessages(ctx, "conv-1")
	require.NoError(t, err)
	require.Len(t, msgs, 1)
	assert.Equal(t, chat.RoleUser, msgs[0].Role)
}

func TestSubmitCarriesHistory(t *testing.T) {
	store := storage.NewMemory()
	gen := &fakeGenerator{reply: "second reply"}
	svc := chat.NewService(store, &fakeRetriever{blob: &retrieval.ContextBlob{}}, chat.NewAssembler(gen), 4000)

	ctx := context.Background()
	first, err := svc.Submit(ctx, "tenant-1", "", "first question")
	require.NoError(t, err)

	_, err = svc.Submit(ctx, "tenant-1", first.ConversationID, "second question")
	require.NoError(t, err)

	// History plus the new message, oldest first.
	require.Len(t, gen.messages, 3)
	assert.Equal(t, "first question", gen.messages[0].Content)
	assert.Equal(t, chat.RoleAssistant, gen.messages[1].Role)
	assert.Equal(t, "second question", gen.messages[2].Content)
}

func TestSubmitRejectsForeignConversation(t *testing.T) {
	store := storage.NewMemory()
	svc := chat.NewService(store, &fakeRetriever{blob: &retrieval.ContextBlob{}}, chat.NewAssembler(&fakeGenerator{reply: "x"}), 4000)

	ctx := context.Background()
	require.NoError(t, store.CreateConversation(ctx, "conv-1", "tenant-1"))

	_, err := svc.Submit(ctx, "other-tenant", "conv-1", "hello")
	require.ErrorIs(t, err, storage.ErrNotFound)

	_, err = svc.Submit(ctx, "tenant-1", "missing-conv", "hello")
	require.ErrorIs(t, err, storage.ErrNotFound)
}
