package event

import (
	"log/slog"
	"sync"
	"time"

	"chat-hub/errors"
)

// FanoutHandler tracks fan-out rounds and dispatch latency.
// It is triggered once per dispatched domain event.
// Useful for spotting slow consumers and saturated connection buffers.
type FanoutHandler struct {
	mu               sync.Mutex
	log              *slog.Logger
	latencyThreshold time.Duration
	rounds           uint64
	dropped          uint64
}

func NewFanoutHandler(log *slog.Logger, latencyThreshold time.Duration) *FanoutHandler {
	return &FanoutHandler{log: log, latencyThreshold: latencyThreshold}
}

func (h *FanoutHandler) Handle(e Event) {
	if e.Type != MessageFanoutType {
		return
	}
	payload, ok := e.Payload.(MessageFanout)
	if !ok {
		h.log.Error(errors.ErrInvalidPayload.Error())
		return
	}

	h.mu.Lock()
	h.rounds++
	h.dropped += uint64(payload.Dropped)
	h.mu.Unlock()

	leadTime := e.CreatedAt.Sub(payload.PersistedAt)
	h.log.Debug("telemetry: fanout round",
		"kind", payload.Kind,
		"targets", payload.Targets,
		"dropped", payload.Dropped,
		"lead_time_ms", leadTime.Milliseconds(),
	)
	if leadTime > h.latencyThreshold {
		h.log.Warn("high dispatch latency detected", "lead_time", leadTime)
	}
}

// Totals returns rounds handled and pushes dropped so far.
func (h *FanoutHandler) Totals() (uint64, uint64) {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.rounds, h.dropped
}
