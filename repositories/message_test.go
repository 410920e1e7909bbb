package repositories

import (
	"log/slog"
	"testing"
	"time"

	"chat-hub/domain"

	"github.com/dgraph-io/badger/v4"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
)

func openTestDB(t *testing.T) *badger.DB {
	t.Helper()
	db, err := badger.Open(badger.DefaultOptions(t.TempDir()).WithLoggingLevel(badger.ERROR))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func directMessage(sender, receiver, text string, at time.Time) domain.Message {
	return domain.Message{
		ID:         uuid.New(),
		SenderID:   sender,
		ReceiverID: receiver,
		ChatType:   domain.Direct,
		Text:       text,
		CreatedAt:  at,
		Status:     domain.StatusSent,
	}
}

func groupMessage(sender, text string, at time.Time) domain.Message {
	return domain.Message{
		ID:        uuid.New(),
		SenderID:  sender,
		ChatType:  domain.Group,
		Text:      text,
		CreatedAt: at,
	}
}

func TestRepository_Store_And_Fetch_Conversation_Order(t *testing.T) {
	req := require.New(t)
	repository := NewMessageRepository(openTestDB(t), slog.Default(), nil)

	at := time.Now().UTC()
	m1 := directMessage("alice", "bob", "first", at)
	m2 := directMessage("bob", "alice", "second", at.Add(1*time.Minute))
	m3 := directMessage("alice", "bob", "third", at.Add(2*time.Minute))
	for _, m := range []domain.Message{m1, m2, m3} {
		req.NoError(repository.Store(m))
	}

	// Both participants see the same page, newest first
	page, _, err := repository.Conversation("bob", "alice", nil)
	req.NoError(err)
	req.Len(page, 3)
	req.Equal("third", page[0].Text)
	req.Equal("first", page[2].Text)

	// Ordered flips the page into display order
	ordered := Ordered(page)
	req.Equal("first", ordered[0].Text)
	req.Equal("third", ordered[2].Text)
}

func TestRepository_Conversation_Paging_With_Cursor(t *testing.T) {
	req := require.New(t)
	limit := 2
	repository := NewMessageRepository(openTestDB(t), slog.Default(), &limit)

	at := time.Now().UTC()
	for i, text := range []string{"one", "two", "three"} {
		req.NoError(repository.Store(directMessage("alice", "bob", text, at.Add(time.Duration(i)*time.Minute))))
	}

	page, cursor, err := repository.Conversation("alice", "bob", nil)
	req.NoError(err)
	req.Len(page, limit)
	req.Equal("three", page[0].Text)
	req.NotNil(cursor)

	// The final page ends the paging: no cursor, no extra round-trip
	rest, cursor, err := repository.Conversation("alice", "bob", cursor)
	req.NoError(err)
	req.Len(rest, 1)
	req.Equal("one", rest[0].Text)
	req.Nil(cursor)
}

func TestRepository_Conversation_Exact_Page_Fit_Ends_Paging(t *testing.T) {
	req := require.New(t)
	limit := 2
	repository := NewMessageRepository(openTestDB(t), slog.Default(), &limit)

	at := time.Now().UTC()
	for i, text := range []string{"one", "two"} {
		req.NoError(repository.Store(directMessage("alice", "bob", text, at.Add(time.Duration(i)*time.Minute))))
	}

	// Two stored, page size two: the single full page carries no cursor
	page, cursor, err := repository.Conversation("alice", "bob", nil)
	req.NoError(err)
	req.Len(page, limit)
	req.Nil(cursor)
}

func TestRepository_Conversation_Is_Isolated_Per_Pair(t *testing.T) {
	req := require.New(t)
	repository := NewMessageRepository(openTestDB(t), slog.Default(), nil)

	at := time.Now().UTC()
	req.NoError(repository.Store(directMessage("alice", "bob", "for bob", at)))
	req.NoError(repository.Store(directMessage("alice", "carol", "for carol", at)))

	page, _, err := repository.Conversation("bob", "alice", nil)
	req.NoError(err)
	req.Len(page, 1)
	req.Equal("for bob", page[0].Text)
}

func TestRepository_MarkRead_Is_Idempotent(t *testing.T) {
	req := require.New(t)
	repository := NewMessageRepository(openTestDB(t), slog.Default(), nil)

	at := time.Now().UTC()
	req.NoError(repository.Store(directMessage("alice", "bob", "hello", at)))
	req.NoError(repository.Store(directMessage("alice", "bob", "again", at.Add(time.Second))))

	// Given bob has two unread messages from alice
	counts, err := repository.UnreadCounts("bob")
	req.NoError(err)
	req.Equal(2, counts["alice"])

	// When bob reads the conversation
	readAt := at.Add(time.Minute)
	promoted, err := repository.MarkRead("bob", "alice", readAt)
	req.NoError(err)
	req.Len(promoted, 2)
	for _, m := range promoted {
		req.Equal(domain.StatusRead, m.Status)
		req.Equal(readAt, m.ReadAt)
		req.False(m.DeliveredAt.IsZero())
	}

	// Then the counter drops to zero
	counts, err = repository.UnreadCounts("bob")
	req.NoError(err)
	req.Zero(counts["alice"])

	// And a replay promotes nothing and changes nothing
	promoted, err = repository.MarkRead("bob", "alice", readAt.Add(time.Hour))
	req.NoError(err)
	req.Empty(promoted)

	page, _, err := repository.Conversation("bob", "alice", nil)
	req.NoError(err)
	for _, m := range page {
		req.Equal(domain.StatusRead, m.Status)
		req.Equal(readAt, m.ReadAt)
	}
}

func TestRepository_MarkDelivered_Only_Promotes_Sent(t *testing.T) {
	req := require.New(t)
	repository := NewMessageRepository(openTestDB(t), slog.Default(), nil)

	at := time.Now().UTC()
	m := directMessage("alice", "bob", "hello", at)
	req.NoError(repository.Store(m))

	changed, err := repository.MarkDelivered(m.ID, at.Add(time.Second))
	req.NoError(err)
	req.True(changed)

	// Replayed delivery is absorbed
	changed, err = repository.MarkDelivered(m.ID, at.Add(time.Minute))
	req.NoError(err)
	req.False(changed)

	stored, err := repository.Get(m.ID)
	req.NoError(err)
	req.Equal(domain.StatusDelivered, stored.Status)
	req.Equal(at.Add(time.Second), stored.DeliveredAt)

	// Delivery never clears the unread counter: reading does
	counts, err := repository.UnreadCounts("bob")
	req.NoError(err)
	req.Equal(1, counts["alice"])
}

func TestRepository_MarkSeen_Set_Semantics(t *testing.T) {
	req := require.New(t)
	repository := NewMessageRepository(openTestDB(t), slog.Default(), nil)

	m := groupMessage("alice", "hello everyone", time.Now().UTC())
	req.NoError(repository.Store(m))

	// First view records the member
	stored, changed, err := repository.MarkSeen(m.ID, "bob")
	req.NoError(err)
	req.True(changed)
	req.Equal([]string{"bob"}, stored.SeenBy)

	// Replay is a no-op
	stored, changed, err = repository.MarkSeen(m.ID, "bob")
	req.NoError(err)
	req.False(changed)
	req.Equal([]string{"bob"}, stored.SeenBy)

	// The sender never joins their own seen set
	stored, changed, err = repository.MarkSeen(m.ID, "alice")
	req.NoError(err)
	req.False(changed)
	req.Equal([]string{"bob"}, stored.SeenBy)
}

func TestRepository_UnreadCounts_Groups_By_Peer(t *testing.T) {
	req := require.New(t)
	repository := NewMessageRepository(openTestDB(t), slog.Default(), nil)

	at := time.Now().UTC()
	req.NoError(repository.Store(directMessage("alice", "bob", "a1", at)))
	req.NoError(repository.Store(directMessage("alice", "bob", "a2", at.Add(time.Second))))
	req.NoError(repository.Store(directMessage("carol", "bob", "c1", at.Add(2*time.Second))))
	// Messages bob sent do not count against him
	req.NoError(repository.Store(directMessage("bob", "alice", "b1", at.Add(3*time.Second))))

	counts, err := repository.UnreadCounts("bob")
	req.NoError(err)
	req.Equal(map[string]int{"alice": 2, "carol": 1}, counts)
}

func TestRepository_Scenario_Offline_Receiver(t *testing.T) {
	req := require.New(t)
	repository := NewMessageRepository(openTestDB(t), slog.Default(), nil)

	// Alice sends "hello" while Bob is offline: persisted as Sent
	at := time.Now().UTC()
	m := directMessage("alice", "bob", "hello", at)
	req.NoError(repository.Store(m))

	counts, err := repository.UnreadCounts("bob")
	req.NoError(err)
	req.Equal(1, counts["alice"])

	// Bob later fetches the conversation and reads it
	page, _, err := repository.Conversation("bob", "alice", nil)
	req.NoError(err)
	req.Len(page, 1)
	req.Equal(domain.StatusSent, page[0].Status)

	_, err = repository.MarkRead("bob", "alice", at.Add(time.Hour))
	req.NoError(err)

	counts, err = repository.UnreadCounts("bob")
	req.NoError(err)
	req.Zero(counts["alice"])

	stored, err := repository.Get(m.ID)
	req.NoError(err)
	req.Equal(domain.StatusRead, stored.Status)
}
