package event

import "time"

type Type string

const (
	MessageFanoutType       Type = "MESSAGE_FANOUT"
	ChannelCapacityType     Type = "CHANNEL_CAPACITY"
	RestartedAfterPanicType Type = "WORKER_RESTARTED_AFTER_PANIC"
)

// Event is the telemetry envelope. Unlike DomainEvent it never reaches a
// client connection; handlers consume it for counters and logs.
type Event struct {
	Type      Type
	CreatedAt time.Time
	Payload   any
}

// MessageFanout reports one fan-out round: how many live connections were
// targeted and how many pushes were dropped on full connection buffers.
type MessageFanout struct {
	Kind        Kind
	Targets     int
	Dropped     int
	PersistedAt time.Time
}

type ChannelCapacity struct {
	ChannelName string
	Capacity    int
	Length      int
}

type WorkerRestartedAfterPanic struct {
	WorkerName string
}
