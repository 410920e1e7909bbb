//go:generate go run go.uber.org/mock/mockgen -source=index.go -destination=../mocks/mock_index.go -package=mocks
package search

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"chat-hub/domain"

	"github.com/blugelabs/bluge"
	"github.com/google/uuid"
)

type IMessageIndex interface {
	Index(m domain.Message) error
	Search(ctx context.Context, viewerID string, query *Query) ([]Hit, uint64, error)
}

// Hit is one search result, rebuilt from the stored fields of the index.
type Hit struct {
	MessageID uuid.UUID `json:"message_id"`
	SenderID  string    `json:"sender_id"`
	ChatType  string    `json:"chat_type"`
	Text      string    `json:"text"`
	CreatedAt time.Time `json:"created_at"`
}

// MessageIndex maintains a full-text index over message bodies.
// Badger stays the source of truth, the index only answers queries.
type MessageIndex struct {
	writer *bluge.Writer
	log    *slog.Logger
}

func NewMessageIndex(writer *bluge.Writer, log *slog.Logger) *MessageIndex {
	return &MessageIndex{writer: writer, log: log}
}

func (i *MessageIndex) Index(m domain.Message) error {
	doc := bluge.NewDocument(m.ID.String()).
		AddField(bluge.NewTextField("text", m.Text).StoreValue()).
		AddField(bluge.NewKeywordField("sender", m.SenderID).StoreValue()).
		AddField(bluge.NewKeywordField("chat", string(m.ChatType)).StoreValue()).
		AddField(bluge.NewKeywordField("receiver", m.ReceiverID).StoreValue()).
		AddField(bluge.NewDateTimeField("created_at", m.CreatedAt).StoreValue())

	if err := i.writer.Update(doc.ID(), doc); err != nil {
		return fmt.Errorf("failed to index message %s: %w", m.ID, err)
	}
	return nil
}

// Search runs a parsed query, restricted to what the viewer is allowed to
// see: group messages plus direct messages they sent or received.
func (i *MessageIndex) Search(ctx context.Context, viewerID string, query *Query) ([]Hit, uint64, error) {
	reader, err := i.writer.Reader()
	if err != nil {
		return nil, 0, fmt.Errorf("failed to open index reader: %w", err)
	}
	defer func() {
		_ = reader.Close()
	}()

	visible := bluge.NewBooleanQuery().
		AddShould(bluge.NewTermQuery(string(domain.Group)).SetField("chat")).
		AddShould(bluge.NewTermQuery(viewerID).SetField("sender")).
		AddShould(bluge.NewTermQuery(viewerID).SetField("receiver")).
		SetMinShould(1)

	composed := bluge.NewBooleanQuery().
		AddMust(bluge.NewMatchQuery(query.Terms).SetField("text")).
		AddMust(visible)
	if query.Sender != "" {
		composed.AddMust(bluge.NewTermQuery(query.Sender).SetField("sender"))
	}
	if query.ChatType != "" {
		composed.AddMust(bluge.NewTermQuery(query.ChatType).SetField("chat"))
	}

	request := bluge.NewTopNSearch(query.Limit, composed).WithStandardAggregations()
	iterator, err := reader.Search(ctx, request)
	if err != nil {
		return nil, 0, fmt.Errorf("search failed: %w", err)
	}

	var hits []Hit
	for {
		match, err := iterator.Next()
		if err != nil {
			return nil, 0, err
		}
		if match == nil {
			break
		}

		var hit Hit
		err = match.VisitStoredFields(func(field string, value []byte) bool {
			switch field {
			case "_id":
				hit.MessageID, _ = uuid.Parse(string(value))
			case "text":
				hit.Text = string(value)
			case "sender":
				hit.SenderID = string(value)
			case "chat":
				hit.ChatType = string(value)
			case "created_at":
				if at, err := bluge.DecodeDateTime(value); err == nil {
					hit.CreatedAt = at
				}
			}
			return true
		})
		if err != nil {
			i.log.Warn("Failed to load stored fields", "error", err)
			continue
		}
		hits = append(hits, hit)
	}

	return hits, iterator.Aggregations().Count(), nil
}
