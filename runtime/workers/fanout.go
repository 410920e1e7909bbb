package workers

import (
	"context"
	"log/slog"
	"time"

	"chat-hub/contract"
	"chat-hub/domain"
	"chat-hub/domain/event"
	"chat-hub/observability"
	"chat-hub/repositories"
)

// Ensure *FanoutWorker implements the contract.Worker interface at compile time.
var _ contract.Worker = (*FanoutWorker)(nil)

// FanoutWorker delivers persisted-state events to live connections.
//
// It provides best-effort push with no guarantees regarding delivery or
// retries: the message is already durable before it reaches this worker, and
// a client that misses a push recovers through its next fetch. A full or dead
// connection never blocks delivery to the others, because Conn.Enqueue is
// non-blocking by contract.
type FanoutWorker struct {
	log          *slog.Logger
	registry     contract.IRegistry
	repository   repositories.IMessageRepository
	monitoring   *observability.Monitoring
	sinks        []contract.EventSink
	domainEvents chan event.DomainEvent
	telemetry    chan event.Event
	sinkTimeout  time.Duration
}

func NewFanoutWorker(log *slog.Logger,
	registry contract.IRegistry,
	repository repositories.IMessageRepository,
	monitoring *observability.Monitoring,
	sinks []contract.EventSink,
	domainEvents chan event.DomainEvent,
	telemetry chan event.Event,
	sinkTimeout time.Duration) *FanoutWorker {
	return &FanoutWorker{
		log:          log,
		registry:     registry,
		repository:   repository,
		monitoring:   monitoring,
		sinks:        sinks,
		domainEvents: domainEvents,
		telemetry:    telemetry,
		sinkTimeout:  sinkTimeout,
	}
}

func (w *FanoutWorker) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			w.log.Debug("Context done, stopping fanout")
			return nil
		case evt, ok := <-w.domainEvents:
			if !ok {
				w.log.Debug("Channel is closed")
				return nil
			}
			w.Fanout(ctx, evt)
		}
	}
}

// Fanout pushes one event to every recipient connection and feeds the sinks.
// Recipient resolution is the only event-type-specific part.
func (w *FanoutWorker) Fanout(ctx context.Context, evt event.DomainEvent) {
	start := time.Now().UTC()
	targets, dropped := 0, 0

	push := func(userID string, e event.DomainEvent) {
		for _, conn := range w.registry.ConnectionsFor(userID) {
			targets++
			if !conn.Enqueue(e) {
				dropped++
			}
		}
	}

	switch e := evt.(type) {
	case event.MessageCreated:
		switch e.Message.ChatType {
		case domain.Direct:
			// Echo the authoritative message back to the sender's own
			// connections first: clients never render a locally-synthesized
			// copy, so the echo must be in the timeline before the delivery
			// receipt pushDirect may emit. Per-connection FIFO buffers keep
			// that order on the wire.
			push(e.Message.SenderID, e)
			pushed, missed := w.pushDirect(e)
			targets += pushed + missed
			dropped += missed
		case domain.Group:
			for _, userID := range w.registry.OnlineUserIDs() {
				if userID == e.Message.SenderID {
					continue
				}
				push(userID, e)
			}
		}
	case event.MessageDelivered:
		push(e.SenderID, e)
	case event.MessagesRead:
		push(e.PeerID, e)
	case event.MessageSeen:
		push(e.SenderID, e)
	case event.UnreadCounts:
		push(e.ViewerID, e)
	case event.PresenceChanged:
		for _, userID := range w.registry.OnlineUserIDs() {
			if userID == e.UserID {
				continue
			}
			push(userID, e)
		}
	}

	if dropped > 0 {
		w.monitoring.AddDropped(dropped)
	}
	w.consumeSinks(ctx, evt)
	w.report(evt, targets, dropped, start)
}

// pushDirect delivers a direct message to the receiver's connections and, if
// at least one push landed, promotes the message to Delivered and notifies
// the sender. A failure here is indistinguishable from "receiver currently
// offline", so it is logged and not escalated.
func (w *FanoutWorker) pushDirect(e event.MessageCreated) (pushed, missed int) {
	conns := w.registry.ConnectionsFor(e.Message.ReceiverID)
	if len(conns) == 0 {
		return 0, 0
	}

	for _, conn := range conns {
		if conn.Enqueue(e) {
			pushed++
		} else {
			missed++
		}
	}
	if pushed == 0 {
		return pushed, missed
	}

	at := time.Now().UTC()
	changed, err := w.repository.MarkDelivered(e.Message.ID, at)
	if err != nil {
		w.log.Warn("delivery promotion failed", "message_id", e.Message.ID, "error", err)
		return pushed, missed
	}
	if changed {
		w.monitoring.IncrDelivered()
		receipt := event.MessageDelivered{
			MessageID:  e.Message.ID,
			SenderID:   e.Message.SenderID,
			ReceiverID: e.Message.ReceiverID,
			At:         at,
		}
		for _, conn := range w.registry.ConnectionsFor(e.Message.SenderID) {
			conn.Enqueue(receipt)
		}
	}
	return pushed, missed
}

// consumeSinks feeds out-of-band consumers (search index) under a timeout so
// a slow sink cannot stall the dispatch loop for long.
func (w *FanoutWorker) consumeSinks(ctx context.Context, evt event.DomainEvent) {
	for _, sink := range w.sinks {
		sinkCtx, cancel := context.WithTimeout(ctx, w.sinkTimeout)
		if err := sink.Consume(sinkCtx, evt); err != nil {
			w.log.Warn("sink consume failed", "error", err)
		}
		cancel()
	}
}

func (w *FanoutWorker) report(evt event.DomainEvent, targets, dropped int, start time.Time) {
	if w.telemetry == nil {
		return
	}
	select {
	case w.telemetry <- event.Event{
		Type:      event.MessageFanoutType,
		CreatedAt: time.Now().UTC(),
		Payload: event.MessageFanout{
			Kind:        evt.EventKind(),
			Targets:     targets,
			Dropped:     dropped,
			PersistedAt: start,
		},
	}:
	default:
		w.log.Debug("Observability telemetry event lost")
	}
}
