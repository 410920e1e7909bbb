package search

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"chat-hub/domain"

	"github.com/blugelabs/bluge"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
)

func openTestIndex(t *testing.T) *MessageIndex {
	t.Helper()
	writer, err := bluge.OpenWriter(bluge.InMemoryOnlyConfig())
	require.NoError(t, err)
	t.Cleanup(func() {
		_ = writer.Close()
	})
	return NewMessageIndex(writer, slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func indexed(t *testing.T, idx *MessageIndex, sender, receiver, text string, chatType domain.ChatType) domain.Message {
	t.Helper()
	msg := domain.Message{
		ID:         uuid.New(),
		SenderID:   sender,
		ReceiverID: receiver,
		ChatType:   chatType,
		Text:       text,
		CreatedAt:  time.Now().UTC(),
		Status:     domain.StatusSent,
	}
	require.NoError(t, idx.Index(msg))
	return msg
}

func TestSearchFindsOwnDirectMessages(t *testing.T) {
	req := require.New(t)
	idx := openTestIndex(t)

	// Given: direct messages in two different conversations
	mine := indexed(t, idx, "alice", "bob", "the invoice is ready", domain.Direct)
	indexed(t, idx, "carol", "dave", "another invoice entirely", domain.Direct)

	// When: alice searches for the term
	hits, total, err := idx.Search(context.Background(), "alice", NewQuery("invoice"))
	req.NoError(err)

	// Then: only her own conversation matches
	req.Equal(uint64(1), total)
	req.Len(hits, 1)
	req.Equal(mine.ID, hits[0].MessageID)
}

func TestSearchIncludesGroupMessages(t *testing.T) {
	req := require.New(t)
	idx := openTestIndex(t)

	// Given: a group message from someone else
	indexed(t, idx, "bob", "", "deploy scheduled for friday", domain.Group)

	// When: alice searches
	hits, _, err := idx.Search(context.Background(), "alice", NewQuery("deploy"))
	req.NoError(err)

	// Then: the group message is visible to her
	req.Len(hits, 1)
	req.Equal("bob", hits[0].SenderID)
}

func TestSearchHonoursSenderFlag(t *testing.T) {
	req := require.New(t)
	idx := openTestIndex(t)

	// Given: the same term from two senders
	indexed(t, idx, "bob", "", "release notes drafted", domain.Group)
	want := indexed(t, idx, "carol", "", "release notes reviewed", domain.Group)

	// When: filtering on the sender flag
	hits, _, err := idx.Search(context.Background(), "alice", NewQuery("release --from carol"))
	req.NoError(err)

	// Then: only carol's message matches
	req.Len(hits, 1)
	req.Equal(want.ID, hits[0].MessageID)
}

func TestQueryParsing(t *testing.T) {
	// Given: a raw command with flags and quoted terms
	query := NewQuery(`/find "standup notes" --chat group --limit 3`)

	// Then: flags and terms are separated
	require.Equal(t, "standup notes", query.Terms)
	require.Equal(t, "group", query.ChatType)
	require.Equal(t, 3, query.Limit)
	require.Empty(t, query.Sender)
}
