//go:generate go run go.uber.org/mock/mockgen -source=message.go -destination=../mocks/mock_message_repository.go -package=mocks
package repositories

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"chat-hub/domain"
	apperrors "chat-hub/errors"

	"github.com/dgraph-io/badger/v4"
	"github.com/google/uuid"
	"github.com/samber/lo"
)

// txnRetries bounds the optimistic-conflict retry loop on read-state updates.
const txnRetries = 5

type IMessageRepository interface {
	Store(m domain.Message) error
	Get(id uuid.UUID) (domain.Message, error)
	Conversation(viewer, peer string, cursor *string) ([]domain.Message, *string, error)
	GroupMessages(cursor *string) ([]domain.Message, *string, error)
	MarkDelivered(id uuid.UUID, at time.Time) (bool, error)
	MarkRead(viewer, peer string, at time.Time) ([]domain.Message, error)
	MarkSeen(id uuid.UUID, viewer string) (domain.Message, bool, error)
	UnreadCounts(viewer string) (map[string]int, error)
}

// MessageRepository persists messages in BadgerDB.
//
// Key layout:
//
//	msg:direct:{a|b}:{timestamp_padded}:{uuid}  -> message (a|b is the sorted user pair)
//	msg:group:{timestamp_padded}:{uuid}         -> message
//	id:{uuid}                                   -> primary key (random access)
//	unread:{viewer}:{peer}:{timestamp_padded}:{uuid} -> primary key
//
// The 19-digit zero-padded UnixNano timestamp makes lexicographic order equal
// to chronological order, and the trailing UUID disambiguates two messages
// persisted in the same nanosecond. The unread index is created on store and
// deleted on MarkRead inside the same transaction as the status promotion, so
// counters can never drift from message state.
type MessageRepository struct {
	db            *badger.DB
	log           *slog.Logger
	limitMessages *int
}

func NewMessageRepository(db *badger.DB, log *slog.Logger, limitMessages *int) MessageRepository {
	return MessageRepository{db: db, log: log, limitMessages: limitMessages}
}

type diskMessage struct {
	ID          uuid.UUID       `json:"id"`
	SenderID    string          `json:"sender_id"`
	ReceiverID  string          `json:"receiver_id,omitempty"`
	ChatType    domain.ChatType `json:"chat_type"`
	Text        string          `json:"text,omitempty"`
	Image       string          `json:"image,omitempty"`
	At          int64           `json:"at"`
	Status      int             `json:"status"`
	DeliveredAt int64           `json:"delivered_at,omitempty"`
	ReadAt      int64           `json:"read_at,omitempty"`
	SeenBy      []string        `json:"seen_by,omitempty"`
}

func pairKey(a, b string) string {
	if b < a {
		a, b = b, a
	}
	return a + "|" + b
}

func primaryKey(m domain.Message) []byte {
	if m.ChatType == domain.Group {
		return []byte(fmt.Sprintf("msg:group:%019d:%s", m.CreatedAt.UnixNano(), m.ID))
	}
	return []byte(fmt.Sprintf("msg:direct:%s:%019d:%s",
		pairKey(m.SenderID, m.ReceiverID), m.CreatedAt.UnixNano(), m.ID))
}

func idKey(id uuid.UUID) []byte {
	return []byte("id:" + id.String())
}

func unreadKey(m domain.Message) []byte {
	return []byte(fmt.Sprintf("unread:%s:%s:%019d:%s",
		m.ReceiverID, m.SenderID, m.CreatedAt.UnixNano(), m.ID))
}

// Store persists a new message and its indexes atomically. A direct message
// starts its life in the receiver's unread index.
func (r MessageRepository) Store(m domain.Message) error {
	value, err := json.Marshal(fromMessage(m))
	if err != nil {
		return err
	}
	key := primaryKey(m)

	return r.db.Update(func(txn *badger.Txn) error {
		if err := txn.Set(key, value); err != nil {
			return err
		}
		if err := txn.Set(idKey(m.ID), key); err != nil {
			return err
		}
		if m.ChatType == domain.Direct {
			return txn.Set(unreadKey(m), key)
		}
		return nil
	})
}

// Get resolves a message through the id index.
func (r MessageRepository) Get(id uuid.UUID) (domain.Message, error) {
	var m domain.Message
	err := r.db.View(func(txn *badger.Txn) error {
		var err error
		m, err = getByID(txn, id)
		return err
	})
	return m, err
}

// Conversation pages through the direct messages between two users, newest
// first. Thanks to the padded timestamp in the key, a reverse prefix scan
// yields reverse-chronological order with no sort step.
func (r MessageRepository) Conversation(viewer, peer string, cursor *string) ([]domain.Message, *string, error) {
	prefix := fmt.Sprintf("msg:direct:%s:", pairKey(viewer, peer))
	return r.scan(prefix, cursor)
}

// GroupMessages pages through the global channel, newest first.
func (r MessageRepository) GroupMessages(cursor *string) ([]domain.Message, *string, error) {
	return r.scan("msg:group:", cursor)
}

func (r MessageRepository) scan(prefixStr string, cursor *string) ([]domain.Message, *string, error) {
	var raw [][]byte
	var lastKey string
	var more bool
	err := r.db.View(func(txn *badger.Txn) error {
		prefix := []byte(prefixStr)
		options := badger.DefaultIteratorOptions
		options.Reverse = true
		it := txn.NewIterator(options)
		defer it.Close()

		var seekKey []byte
		switch cursor {
		case nil:
			// Seek past every possible timestamp, then walk backwards.
			seekKey = append(prefix, []byte("9999999999999999999")...)
		default:
			seekKey = append(prefix, []byte(*cursor)...)
		}

		it.Seek(seekKey)
		if cursor != nil && it.ValidForPrefix(prefix) {
			it.Next()
		}

		for ; it.ValidForPrefix(prefix); it.Next() {
			if r.limitMessages != nil && len(raw) == *r.limitMessages {
				r.log.Debug(fmt.Sprintf("Maximum of %d messages reached", *r.limitMessages))
				more = true
				break
			}
			item := it.Item()
			lastKey = string(item.Key()[len(prefixStr):])
			if err := item.Value(func(value []byte) error {
				raw = append(raw, append([]byte(nil), value...))
				return nil
			}); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, nil, err
	}

	messages := make([]domain.Message, 0, len(raw))
	for _, b := range raw {
		var dm diskMessage
		if err := json.Unmarshal(b, &dm); err != nil {
			return nil, nil, err
		}
		messages = append(messages, toMessage(dm))
	}
	// A cursor only comes back when the scan stopped at the page limit with
	// entries still ahead; an exhausted scan ends the paging right here.
	if !more {
		return messages, nil, nil
	}
	return messages, &lastKey, nil
}

// MarkDelivered promotes Sent -> Delivered. A message already delivered or
// read is left untouched, so replays from the dispatcher are harmless.
func (r MessageRepository) MarkDelivered(id uuid.UUID, at time.Time) (bool, error) {
	changed := false
	err := r.update(func(txn *badger.Txn) error {
		changed = false
		m, err := getByID(txn, id)
		if err != nil {
			return err
		}
		if m.ChatType != domain.Direct || m.Status != domain.StatusSent {
			return nil
		}
		m.Status = m.Status.Advance(domain.StatusDelivered)
		m.DeliveredAt = at
		changed = true
		return putMessage(txn, m)
	})
	return changed, err
}

// MarkRead promotes every unread message from peer to viewer and clears the
// matching unread-index entries, all inside one transaction. Returns the
// promoted messages so the caller can notify the peer. Calling it again
// immediately finds an empty index and returns nothing: idempotent.
func (r MessageRepository) MarkRead(viewer, peer string, at time.Time) ([]domain.Message, error) {
	var promoted []domain.Message
	err := r.update(func(txn *badger.Txn) error {
		promoted = nil
		prefix := []byte(fmt.Sprintf("unread:%s:%s:", viewer, peer))

		it := txn.NewIterator(badger.DefaultIteratorOptions)
		var indexKeys [][]byte
		var msgKeys [][]byte
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			item := it.Item()
			indexKeys = append(indexKeys, item.KeyCopy(nil))
			msgKey, err := item.ValueCopy(nil)
			if err != nil {
				it.Close()
				return err
			}
			msgKeys = append(msgKeys, msgKey)
		}
		it.Close()

		for i, msgKey := range msgKeys {
			m, err := getByKey(txn, msgKey)
			if err != nil {
				return err
			}
			m.Status = m.Status.Advance(domain.StatusRead)
			m.ReadAt = at
			if m.DeliveredAt.IsZero() {
				// Reading subsumes delivery; keep the timeline coherent.
				m.DeliveredAt = at
			}
			if err := putMessage(txn, m); err != nil {
				return err
			}
			if err := txn.Delete(indexKeys[i]); err != nil {
				return err
			}
			promoted = append(promoted, m)
		}
		return nil
	})
	return promoted, err
}

// MarkSeen adds viewer to a group message's SeenBy set. The set semantics of
// Message.MarkSeen make the operation idempotent; the reported bool tells the
// caller whether a receipt is worth pushing.
func (r MessageRepository) MarkSeen(id uuid.UUID, viewer string) (domain.Message, bool, error) {
	var out domain.Message
	changed := false
	err := r.update(func(txn *badger.Txn) error {
		changed = false
		m, err := getByID(txn, id)
		if err != nil {
			return err
		}
		if m.ChatType != domain.Group {
			return apperrors.ErrInvalidChatType
		}
		if m.MarkSeen(viewer) {
			changed = true
			if err := putMessage(txn, m); err != nil {
				return err
			}
		}
		out = m
		return nil
	})
	return out, changed, err
}

// UnreadCounts groups the viewer's unread index by peer. Key-only iteration:
// the count never needs the message bodies.
func (r MessageRepository) UnreadCounts(viewer string) (map[string]int, error) {
	counts := make(map[string]int)
	prefixStr := fmt.Sprintf("unread:%s:", viewer)
	err := r.db.View(func(txn *badger.Txn) error {
		options := badger.DefaultIteratorOptions
		options.PrefetchValues = false
		it := txn.NewIterator(options)
		defer it.Close()

		prefix := []byte(prefixStr)
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			rest := string(it.Item().Key()[len(prefixStr):])
			peer, _, ok := strings.Cut(rest, ":")
			if !ok {
				continue
			}
			counts[peer]++
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return counts, nil
}

// update runs fn under db.Update and retries on optimistic-lock conflicts,
// which badger reports when two transactions touch the same keys.
func (r MessageRepository) update(fn func(txn *badger.Txn) error) error {
	var err error
	for i := 0; i < txnRetries; i++ {
		err = r.db.Update(fn)
		if err != badger.ErrConflict {
			return err
		}
		r.log.Debug("transaction conflict, retrying")
	}
	return err
}

func getByID(txn *badger.Txn, id uuid.UUID) (domain.Message, error) {
	item, err := txn.Get(idKey(id))
	if err == badger.ErrKeyNotFound {
		return domain.Message{}, apperrors.ErrMessageNotFound
	}
	if err != nil {
		return domain.Message{}, err
	}
	key, err := item.ValueCopy(nil)
	if err != nil {
		return domain.Message{}, err
	}
	return getByKey(txn, key)
}

func getByKey(txn *badger.Txn, key []byte) (domain.Message, error) {
	item, err := txn.Get(key)
	if err == badger.ErrKeyNotFound {
		return domain.Message{}, apperrors.ErrMessageNotFound
	}
	if err != nil {
		return domain.Message{}, err
	}
	var dm diskMessage
	if err := item.Value(func(value []byte) error {
		return json.Unmarshal(value, &dm)
	}); err != nil {
		return domain.Message{}, err
	}
	return toMessage(dm), nil
}

func putMessage(txn *badger.Txn, m domain.Message) error {
	value, err := json.Marshal(fromMessage(m))
	if err != nil {
		return err
	}
	return txn.Set(primaryKey(m), value)
}

func fromMessage(m domain.Message) diskMessage {
	dm := diskMessage{
		ID:         m.ID,
		SenderID:   m.SenderID,
		ReceiverID: m.ReceiverID,
		ChatType:   m.ChatType,
		Text:       m.Text,
		Image:      m.Image,
		At:         m.CreatedAt.UnixNano(),
		Status:     int(m.Status),
		SeenBy:     m.SeenBy,
	}
	if !m.DeliveredAt.IsZero() {
		dm.DeliveredAt = m.DeliveredAt.UnixNano()
	}
	if !m.ReadAt.IsZero() {
		dm.ReadAt = m.ReadAt.UnixNano()
	}
	return dm
}

func toMessage(dm diskMessage) domain.Message {
	m := domain.Message{
		ID:         dm.ID,
		SenderID:   dm.SenderID,
		ReceiverID: dm.ReceiverID,
		ChatType:   dm.ChatType,
		Text:       dm.Text,
		Image:      dm.Image,
		CreatedAt:  time.Unix(0, dm.At).UTC(),
		Status:     domain.Status(dm.Status),
		SeenBy:     dm.SeenBy,
	}
	if dm.DeliveredAt != 0 {
		m.DeliveredAt = time.Unix(0, dm.DeliveredAt).UTC()
	}
	if dm.ReadAt != 0 {
		m.ReadAt = time.Unix(0, dm.ReadAt).UTC()
	}
	return m
}

// Ordered converts a newest-first page into display order.
func Ordered(messages []domain.Message) []domain.Message {
	return lo.Reverse(append([]domain.Message(nil), messages...))
}
