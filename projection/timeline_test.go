package projection

import (
	"testing"
	"time"

	"chat-hub/domain"
	"chat-hub/domain/event"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
)

func message(sender, receiver string, at time.Time) domain.Message {
	return domain.Message{
		ID:         uuid.New(),
		SenderID:   sender,
		ReceiverID: receiver,
		ChatType:   domain.Direct,
		Text:       "hello",
		CreatedAt:  at,
		Status:     domain.StatusSent,
	}
}

func TestTimelineDeduplicatesFetchAndPush(t *testing.T) {
	// Given a message that arrives both as a live push and inside a fetched page
	timeline := NewTimeline("alice")
	base := time.Now().UTC()
	msg := message("bob", "alice", base)

	// When both copies are applied in either order
	timeline.ApplyEvent(event.MessageCreated{Message: msg})
	timeline.Merge([]domain.Message{msg})

	// Then the view holds exactly one entry
	require.Len(t, timeline.Messages(), 1)
}

func TestTimelineOrdersByCreatedAtNotArrival(t *testing.T) {
	// Given three messages pushed newest first
	timeline := NewTimeline("alice")
	base := time.Now().UTC()
	first := message("bob", "alice", base)
	second := message("alice", "bob", base.Add(time.Second))
	third := message("bob", "alice", base.Add(2*time.Second))

	// When they arrive out of order
	timeline.ApplyEvent(event.MessageCreated{Message: third})
	timeline.ApplyEvent(event.MessageCreated{Message: first})
	timeline.ApplyEvent(event.MessageCreated{Message: second})

	// Then display order follows CreatedAt
	got := timeline.Messages()
	require.Equal(t, []uuid.UUID{first.ID, second.ID, third.ID},
		[]uuid.UUID{got[0].ID, got[1].ID, got[2].ID})
}

func TestTimelineStatusNeverRegresses(t *testing.T) {
	// Given a message already marked read
	timeline := NewTimeline("alice")
	msg := message("alice", "bob", time.Now().UTC())
	timeline.ApplyEvent(event.MessageCreated{Message: msg})
	timeline.ApplyEvent(event.MessagesRead{ViewerID: "bob", PeerID: "alice", MessageIDs: []uuid.UUID{msg.ID}})

	// When a late delivery receipt arrives
	timeline.ApplyEvent(event.MessageDelivered{MessageID: msg.ID, SenderID: "alice", ReceiverID: "bob"})

	// Then the status stays read
	require.Equal(t, domain.StatusRead, timeline.Messages()[0].Status)
}

func TestTimelineMergeAdvancesKnownMessage(t *testing.T) {
	// Given a message known locally as sent
	timeline := NewTimeline("alice")
	msg := message("alice", "bob", time.Now().UTC())
	timeline.ApplyEvent(event.MessageCreated{Message: msg})

	// When a fetched copy carries the read status
	read := msg
	read.Status = domain.StatusRead
	timeline.Merge([]domain.Message{read})

	// Then the local copy advanced without duplicating
	got := timeline.Messages()
	require.Len(t, got, 1)
	require.Equal(t, domain.StatusRead, got[0].Status)
}

func TestTimelineOptimisticZeroSurvivesStaleFetch(t *testing.T) {
	// Given a conversation with two unread messages
	timeline := NewTimeline("alice")
	timeline.SetCounts(map[string]int{"bob": 2})

	// When the conversation is opened and a stale fetch lands afterwards
	timeline.OpenConversation("bob")
	timeline.SetCounts(map[string]int{"bob": 2})

	// Then the counter stays at zero until the server confirms
	require.Equal(t, 0, timeline.Unread("bob"))

	// When the post-reconciliation push arrives
	timeline.ApplyEvent(event.UnreadCounts{ViewerID: "alice", Counts: map[string]int{"bob": 0}})

	// Then the authoritative value is adopted and later fetches apply again
	require.Equal(t, 0, timeline.Unread("bob"))
	timeline.SetCounts(map[string]int{"bob": 1})
	require.Equal(t, 1, timeline.Unread("bob"))
}

func TestTimelineIncomingPushBumpsUnread(t *testing.T) {
	// Given an idle view
	timeline := NewTimeline("alice")
	msg := message("bob", "alice", time.Now().UTC())

	// When a new direct message for the owner is pushed, twice
	timeline.ApplyEvent(event.MessageCreated{Message: msg})
	timeline.ApplyEvent(event.MessageCreated{Message: msg})

	// Then the counter moved exactly once
	require.Equal(t, 1, timeline.Unread("bob"))

	// And a fetched copy of the same message does not move it either
	timeline.Merge([]domain.Message{msg})
	require.Equal(t, 1, timeline.Unread("bob"))
}

func TestTimelineOpenConversationSuppressesBump(t *testing.T) {
	// Given the conversation with bob is open
	timeline := NewTimeline("alice")
	timeline.OpenConversation("bob")

	// When bob's message arrives while alice is looking at it
	timeline.ApplyEvent(event.MessageCreated{Message: message("bob", "alice", time.Now().UTC())})

	// Then the counter stays at zero
	require.Equal(t, 0, timeline.Unread("bob"))
}

func TestTimelineOutgoingEchoDoesNotBumpUnread(t *testing.T) {
	timeline := NewTimeline("alice")

	// When the owner's own message is echoed back
	timeline.ApplyEvent(event.MessageCreated{Message: message("alice", "bob", time.Now().UTC())})

	// Then no counter moves
	require.Equal(t, 0, timeline.Unread("bob"))
	require.Equal(t, 0, timeline.Unread("alice"))
}

func TestTimelineResetConversationReplacesOnePeer(t *testing.T) {
	// Given cached messages from two conversations
	timeline := NewTimeline("alice")
	base := time.Now().UTC()
	stale := message("bob", "alice", base)
	other := message("carol", "alice", base.Add(time.Second))
	timeline.Merge([]domain.Message{stale, other})

	// When the bob conversation is reset with a fresh page
	fresh := message("bob", "alice", base.Add(2*time.Second))
	timeline.ResetConversation("bob", []domain.Message{fresh})

	// Then the stale bob entry is gone, carol's untouched
	got := timeline.Messages()
	require.Len(t, got, 2)
	require.Equal(t, []uuid.UUID{other.ID, fresh.ID}, []uuid.UUID{got[0].ID, got[1].ID})
}

func TestTimelineSeenMergesAsSet(t *testing.T) {
	// Given a group message
	timeline := NewTimeline("alice")
	msg := domain.Message{
		ID:        uuid.New(),
		SenderID:  "alice",
		ChatType:  domain.Group,
		Text:      "hi all",
		CreatedAt: time.Now().UTC(),
		Status:    domain.StatusSent,
	}
	timeline.ApplyEvent(event.MessageCreated{Message: msg})

	// When the same viewer is reported twice
	timeline.ApplyEvent(event.MessageSeen{MessageID: msg.ID, SenderID: "alice", ViewerID: "bob"})
	timeline.ApplyEvent(event.MessageSeen{MessageID: msg.ID, SenderID: "alice", ViewerID: "bob"})

	// Then the viewer appears once
	require.Equal(t, []string{"bob"}, timeline.Messages()[0].SeenBy)
}

func TestTimelineReconnectRebuildsView(t *testing.T) {
	// Given a view with optimistic state and stale presence
	timeline := NewTimeline("alice")
	timeline.ApplyEvent(event.PresenceChanged{UserID: "carol", Online: true})
	timeline.OpenConversation("bob")
	known := message("bob", "alice", time.Now().UTC())
	timeline.ApplyEvent(event.MessageCreated{Message: known})

	// When the client reconnects and re-fetches
	missed := message("bob", "alice", known.CreatedAt.Add(time.Second))
	timeline.Reconnect([]string{"bob"}, []domain.Message{known, missed}, map[string]int{"bob": 1})

	// Then presence, messages and counters reflect the fetched state
	require.False(t, timeline.Online("carol"))
	require.True(t, timeline.Online("bob"))
	require.Len(t, timeline.Messages(), 2)
	require.Equal(t, 1, timeline.Unread("bob"))
}
