package event

import (
	"time"

	"chat-hub/domain"

	"github.com/google/uuid"
)

type Kind string

const (
	MessageCreatedKind   Kind = "MESSAGE_CREATED"
	MessageDeliveredKind Kind = "MESSAGE_DELIVERED"
	MessagesReadKind     Kind = "MESSAGES_READ"
	MessageSeenKind      Kind = "MESSAGE_SEEN"
	PresenceChangedKind  Kind = "PRESENCE_CHANGED"
	UnreadCountsKind     Kind = "UNREAD_COUNTS"
)

// DomainEvent is anything the dispatcher can push to live connections.
type DomainEvent interface {
	EventKind() Kind
}

// MessageCreated carries the full persisted message, server-assigned id and
// timestamp included. Clients deduplicate on Message.ID, so the same event may
// safely reach a connection more than once.
type MessageCreated struct {
	Message domain.Message `json:"message"`
}

func (e MessageCreated) EventKind() Kind { return MessageCreatedKind }

// MessageDelivered notifies the sender that a direct message reached at least
// one of the receiver's live connections.
type MessageDelivered struct {
	MessageID  uuid.UUID `json:"message_id"`
	SenderID   string    `json:"sender_id"`
	ReceiverID string    `json:"receiver_id"`
	At         time.Time `json:"at"`
}

func (e MessageDelivered) EventKind() Kind { return MessageDeliveredKind }

// MessagesRead notifies the peer that the viewer read their direct messages.
type MessagesRead struct {
	ViewerID   string      `json:"viewer_id"`
	PeerID     string      `json:"peer_id"`
	MessageIDs []uuid.UUID `json:"message_ids"`
	At         time.Time   `json:"at"`
}

func (e MessagesRead) EventKind() Kind { return MessagesReadKind }

// MessageSeen notifies a group-message sender of a new SeenBy member.
type MessageSeen struct {
	MessageID uuid.UUID `json:"message_id"`
	SenderID  string    `json:"sender_id"`
	ViewerID  string    `json:"viewer_id"`
}

func (e MessageSeen) EventKind() Kind { return MessageSeenKind }

// PresenceChanged is broadcast on 0->1 and 1->0 connection transitions only.
type PresenceChanged struct {
	UserID string `json:"user_id"`
	Online bool   `json:"online"`
}

func (e PresenceChanged) EventKind() Kind { return PresenceChangedKind }

// UnreadCounts pushes the authoritative per-peer counters back to a viewer
// after a reconciliation round-trip.
type UnreadCounts struct {
	ViewerID string         `json:"viewer_id"`
	Counts   map[string]int `json:"counts"`
}

func (e UnreadCounts) EventKind() Kind { return UnreadCountsKind }
