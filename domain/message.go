// Package domain contains core concepts of the chat system.
// This file defines Message entities and the read-state rules.
// No runtime, network, or UI logic should be added here.
package domain

import (
	"time"

	"github.com/google/uuid"
)

type ChatType string

const (
	Direct ChatType = "direct"
	Group  ChatType = "group"
)

// Status is the delivery state of a direct message.
// It only ever moves forward: Sent -> Delivered -> Read.
// Representing it as an ordered enum makes "read but not delivered"
// unrepresentable, which two independent booleans would allow.
type Status int

const (
	StatusSent Status = iota
	StatusDelivered
	StatusRead
)

func (s Status) String() string {
	switch s {
	case StatusDelivered:
		return "delivered"
	case StatusRead:
		return "read"
	default:
		return "sent"
	}
}

// Advance returns the later of the two states. Merging with Advance keeps
// status monotonic no matter in which order receipts arrive.
func (s Status) Advance(to Status) Status {
	if to > s {
		return to
	}
	return s
}

// Message is immutable in content once created. Only Status/DeliveredAt/ReadAt
// (direct) and SeenBy (group) may change afterwards.
type Message struct {
	ID          uuid.UUID `json:"id"`
	SenderID    string    `json:"sender_id"`
	ReceiverID  string    `json:"receiver_id,omitempty"` // empty for group messages
	ChatType    ChatType  `json:"chat_type"`
	Text        string    `json:"text,omitempty"`
	Image       string    `json:"image,omitempty"` // data URL, sniffed at send time
	CreatedAt   time.Time `json:"created_at"`
	Status      Status    `json:"status"`
	DeliveredAt time.Time `json:"delivered_at,omitzero"`
	ReadAt      time.Time `json:"read_at,omitzero"`
	SeenBy      []string  `json:"seen_by,omitempty"` // group only, never contains the sender
}

// SeenByUser reports group-message seen membership.
func (m Message) SeenByUser(userID string) bool {
	for _, id := range m.SeenBy {
		if id == userID {
			return true
		}
	}
	return false
}

// MarkSeen adds viewerID to SeenBy. Idempotent by set semantics, and the
// sender is never recorded as a viewer of their own message.
func (m *Message) MarkSeen(viewerID string) bool {
	if viewerID == m.SenderID || m.SeenByUser(viewerID) {
		return false
	}
	m.SeenBy = append(m.SeenBy, viewerID)
	return true
}
