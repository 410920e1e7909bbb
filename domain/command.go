package domain

// SendCommand carries a message the caller wants persisted and fanned out.
// Image is the raw attachment; the service decides whether it is storable.
// Messaging yourself is rejected: a self-conversation would accrue unread
// entries that mark-read can never clear.
type SendCommand struct {
	SenderID   string   `validate:"required"`
	ReceiverID string   `validate:"required_if=ChatType direct,excluded_if=ChatType group,nefield=SenderID"`
	ChatType   ChatType `validate:"required,oneof=direct group"`
	Text       string   `validate:"max=4096"`
	Image      []byte   `validate:"max=5242880"`
}

type MarkReadCommand struct {
	ViewerID string `validate:"required"`
	PeerID   string `validate:"required,nefield=ViewerID"`
}

type MarkSeenCommand struct {
	MessageID string `validate:"required,uuid"`
	ViewerID  string `validate:"required"`
}

// FetchCommand pages through a conversation. A nil cursor starts from the
// newest message; the returned cursor resumes where the previous page stopped.
type FetchCommand struct {
	ViewerID string `validate:"required"`
	PeerID   string
	Cursor   *string
}
