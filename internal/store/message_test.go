package store

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/andrewvu270/AgentDeck/internal/apperr"
	"github.com/andrewvu270/AgentDeck/internal/model"
)

func appendUserMessage(t *testing.T, st *Store, conversationID, content string, tokens int) *model.Message {
	t.Helper()
	msg, err := st.AppendMessage(context.Background(), conversationID, "u1", &model.AppendMessageInput{
		SenderType: model.SenderUser,
		SenderID:   "u1",
		SenderName: "You",
		Content:    content,
		Tokens:     tokens,
	})
	require.NoError(t, err)
	return msg
}

func TestAppendMessageGaplessSeq(t *testing.T) {
	st := newTestStore(t)
	conv := createConversation(t, st, model.ModeSequential, "a1")

	for i := 1; i <= 5; i++ {
		msg := appendUserMessage(t, st, conv.ID, fmt.Sprintf("message %d", i), 10)
		assert.Equal(t, i, msg.Seq)
	}

	history, err := st.ListHistory(context.Background(), conv.ID, "u1", 0)
	require.NoError(t, err)
	require.Len(t, history, 5)
	for i, msg := range history {
		assert.Equal(t, i+1, msg.Seq)
	}
}

func TestAppendMessageConcurrentWriters(t *testing.T) {
	st := newTestStore(t)
	conv := createConversation(t, st, model.ModeParallel, "a1")

	const writers = 8
	errs := make(chan error, writers)
	for i := 0; i < writers; i++ {
		go func(i int) {
			_, err := st.AppendMessage(context.Background(), conv.ID, "u1", &model.AppendMessageInput{
				SenderType: model.SenderAgent,
				SenderID:   fmt.Sprintf("a%d", i),
				SenderName: fmt.Sprintf("Agent %d", i),
				Content:    fmt.Sprintf("turn %d", i),
				Tokens:     10,
			})
			errs <- err
		}(i)
	}
	for i := 0; i < writers; i++ {
		require.NoError(t, <-errs)
	}

	history, err := st.ListHistory(context.Background(), conv.ID, "u1", 0)
	require.NoError(t, err)
	require.Len(t, history, writers)
	for i, msg := range history {
		assert.Equal(t, i+1, msg.Seq)
	}

	got, err := st.GetConversation(context.Background(), conv.ID, "u1")
	require.NoError(t, err)
	assert.Equal(t, writers, got.MessageCount)
	assert.Equal(t, writers*10, got.TotalTokens)
}

func TestAppendMessageAggregates(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()
	conv := createConversation(t, st, model.ModeSequential, "a1")

	appendUserMessage(t, st, conv.ID, "hello", 15)
	_, err := st.AppendMessage(ctx, conv.ID, "u1", &model.AppendMessageInput{
		SenderType: model.SenderAgent,
		SenderID:   "a1",
		SenderName: "Sales Agent",
		Content:    "hi there",
		Tokens:     120,
		ToolCalls:  2,
	})
	require.NoError(t, err)

	got, err := st.GetConversation(ctx, conv.ID, "u1")
	require.NoError(t, err)
	assert.Equal(t, 2, got.MessageCount)
	assert.Equal(t, 135, got.TotalTokens)
	assert.Equal(t, 2, got.ToolCallCount)
}

func TestAppendToArchivedRejected(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()
	conv := createConversation(t, st, model.ModeSequential, "a1")

	require.NoError(t, st.Archive(ctx, conv.ID, "u1"))

	_, err := st.AppendMessage(ctx, conv.ID, "u1", &model.AppendMessageInput{
		SenderType: model.SenderUser,
		SenderID:   "u1",
		SenderName: "You",
		Content:    "too late",
	})
	assert.True(t, apperr.IsCode(err, apperr.CodeValidation))

	// The rejected append left no trace.
	got, err := st.GetConversation(ctx, conv.ID, "u1")
	require.NoError(t, err)
	assert.Equal(t, 0, got.MessageCount)
}

func TestAppendToPausedAllowed(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()
	conv := createConversation(t, st, model.ModeSequential, "a1")

	require.NoError(t, st.SetStatus(ctx, conv.ID, "u1", model.ConversationPaused))
	appendUserMessage(t, st, conv.ID, "still here", 5)
}

func TestSearchMessages(t *testing.T) {
	st := newTestStore(t)
	conv := createConversation(t, st, model.ModeSequential, "a1")

	appendUserMessage(t, st, conv.ID, "the quarterly revenue numbers", 10)
	appendUserMessage(t, st, conv.ID, "unrelated chatter", 10)

	matches, err := st.SearchMessages(context.Background(), "u1", "REVENUE", 0)
	require.NoError(t, err)
	require.Len(t, matches, 1)
	assert.Contains(t, matches[0].Content, "revenue")
}

func TestFilterMessagesBySenderType(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()
	conv := createConversation(t, st, model.ModeSequential, "a1")

	appendUserMessage(t, st, conv.ID, "user turn", 5)
	_, err := st.AppendMessage(ctx, conv.ID, "u1", &model.AppendMessageInput{
		SenderType: model.SenderAgent,
		SenderID:   "a1",
		SenderName: "Agent",
		Content:    "agent turn",
	})
	require.NoError(t, err)

	msgs, err := st.FilterMessages(ctx, "u1", model.MessageFilter{SenderType: model.SenderAgent}, 0)
	require.NoError(t, err)
	require.Len(t, msgs, 1)
	assert.Equal(t, "agent turn", msgs[0].Content)
}

func TestExportConversation(t *testing.T) {
	st := newTestStore(t)
	conv := createConversation(t, st, model.ModeSequential, "a1")

	appendUserMessage(t, st, conv.ID, "first", 5)
	appendUserMessage(t, st, conv.ID, "second", 5)

	export, err := st.ExportConversation(context.Background(), conv.ID, "u1")
	require.NoError(t, err)
	assert.Equal(t, conv.ID, export.Conversation.ID)
	require.Len(t, export.Messages, 2)
	assert.Equal(t, "first", export.Messages[0].Content)
	assert.Equal(t, "second", export.Messages[1].Content)
	assert.False(t, export.ExportedAt.IsZero())
}

func TestLatestActiveConversationWithAgent(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()

	older := createConversation(t, st, model.ModeSequential, "agent-1")
	newer := createConversation(t, st, model.ModeSequential, "agent-1", "agent-2")

	// Touch the newer conversation so it is the most recently updated.
	appendUserMessage(t, st, newer.ID, "bump", 1)

	got, err := st.LatestActiveConversationWithAgent(ctx, "u1", "agent-1")
	require.NoError(t, err)
	assert.Equal(t, newer.ID, got.ID)

	// Archiving the newer one routes back to the older.
	require.NoError(t, st.Archive(ctx, newer.ID, "u1"))
	got, err = st.LatestActiveConversationWithAgent(ctx, "u1", "agent-1")
	require.NoError(t, err)
	assert.Equal(t, older.ID, got.ID)

	_, err = st.LatestActiveConversationWithAgent(ctx, "u1", "agent-9")
	assert.True(t, apperr.IsCode(err, apperr.CodeNotFound))
}
