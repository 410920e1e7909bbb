// Package observability aggregates hub counters for heartbeat logging.
package observability

import (
	"sync/atomic"
)

// Stats is a point-in-time view of the hub's activity counters.
type Stats struct {
	OnlineUsers       int64
	MessagesSent      uint64
	MessagesDelivered uint64
	MessagesRead      uint64
	MessagesSeen      uint64
	PushesDropped     uint64
}

// Monitoring holds lock-free counters updated from the hot paths. Writers
// only ever increment, so plain atomics are enough; readers tolerate a
// slightly stale snapshot.
type Monitoring struct {
	onlineUsers       atomic.Int64
	messagesSent      atomic.Uint64
	messagesDelivered atomic.Uint64
	messagesRead      atomic.Uint64
	messagesSeen      atomic.Uint64
	pushesDropped     atomic.Uint64
}

func NewMonitoring() *Monitoring {
	return &Monitoring{}
}

func (m *Monitoring) UserOnline()  { m.onlineUsers.Add(1) }
func (m *Monitoring) UserOffline() { m.onlineUsers.Add(-1) }

func (m *Monitoring) IncrSent()      { m.messagesSent.Add(1) }
func (m *Monitoring) IncrDelivered() { m.messagesDelivered.Add(1) }
func (m *Monitoring) IncrSeen()      { m.messagesSeen.Add(1) }

func (m *Monitoring) AddRead(n int) {
	if n > 0 {
		m.messagesRead.Add(uint64(n))
	}
}

func (m *Monitoring) AddDropped(n int) {
	if n > 0 {
		m.pushesDropped.Add(uint64(n))
	}
}

func (m *Monitoring) Snapshot() Stats {
	return Stats{
		OnlineUsers:       m.onlineUsers.Load(),
		MessagesSent:      m.messagesSent.Load(),
		MessagesDelivered: m.messagesDelivered.Load(),
		MessagesRead:      m.messagesRead.Load(),
		MessagesSeen:      m.messagesSeen.Load(),
		PushesDropped:     m.pushesDropped.Load(),
	}
}
