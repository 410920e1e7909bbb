package sink

import (
	"context"
	"fmt"
	"log/slog"

	"chat-hub/domain/event"
	"chat-hub/search"
)

// SearchSink feeds persisted messages into the full-text index.
// Indexing happens off the hot path, after fan-out decided the targets.
type SearchSink struct {
	index search.IMessageIndex
	log   *slog.Logger
}

func NewSearchSink(index search.IMessageIndex, log *slog.Logger) SearchSink {
	return SearchSink{index: index, log: log}
}

func (s SearchSink) Consume(_ context.Context, e event.DomainEvent) error {
	switch evt := e.(type) {
	case event.MessageCreated:
		if evt.Message.Text == "" {
			return nil
		}
		return s.index.Index(evt.Message)
	default:
		s.log.Debug(fmt.Sprintf("Not an indexable event : %v", evt))
		return nil
	}
}
