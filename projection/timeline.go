// Package projection builds a client-side view from observed events.
// Handles ordering, deduplication, and counter reconciliation.
// Does not emit events or interact with UI directly.
package projection

import (
	"sort"
	"sync"

	"chat-hub/domain"
	"chat-hub/domain/event"

	"github.com/google/uuid"
)

// Timeline is the local cache one client keeps of its conversations and
// unread counters. Three rules keep it consistent no matter how events
// arrive:
//
//  1. exactly one entry per message id, whatever mix of fetch, live push and
//     re-sync produced it;
//  2. display order is CreatedAt order, never arrival order;
//  3. read/seen state only moves forward.
type Timeline struct {
	mu    sync.Mutex
	Owner string

	byID     map[uuid.UUID]int // message id -> index in ordered
	ordered  []domain.Message
	unread   map[string]int
	pending  map[string]struct{} // peers optimistically zeroed, awaiting server counts
	online   map[string]struct{}
}

func NewTimeline(owner string) *Timeline {
	return &Timeline{
		Owner:   owner,
		byID:    make(map[uuid.UUID]int),
		unread:  make(map[string]int),
		pending: make(map[string]struct{}),
		online:  make(map[string]struct{}),
	}
}

// ApplyEvent merges one live-push event into the local view. Duplicates and
// out-of-order arrivals are absorbed, never surfaced.
func (t *Timeline) ApplyEvent(e event.DomainEvent) {
	t.mu.Lock()
	defer t.mu.Unlock()

	switch evt := e.(type) {
	case event.MessageCreated:
		m := evt.Message
		_, known := t.byID[m.ID]
		t.insert(m)
		// A fresh direct push addressed to the owner bumps the local
		// counter until the next authoritative UnreadCounts settles it.
		// A conversation the owner has open is read as it arrives.
		if !known && m.ChatType == domain.Direct && m.ReceiverID == t.Owner {
			if _, open := t.pending[m.SenderID]; !open {
				t.unread[m.SenderID]++
			}
		}
	case event.MessageDelivered:
		t.advance(evt.MessageID, domain.StatusDelivered)
	case event.MessagesRead:
		for _, id := range evt.MessageIDs {
			t.advance(id, domain.StatusRead)
		}
	case event.MessageSeen:
		if i, ok := t.byID[evt.MessageID]; ok {
			t.ordered[i].MarkSeen(evt.ViewerID)
		}
	case event.PresenceChanged:
		if evt.Online {
			t.online[evt.UserID] = struct{}{}
		} else {
			delete(t.online, evt.UserID)
		}
	case event.UnreadCounts:
		// Authoritative counts pushed after a reconciliation round-trip
		// supersede any optimistic zeroing.
		t.unread = make(map[string]int, len(evt.Counts))
		for peer, n := range evt.Counts {
			t.unread[peer] = n
		}
		t.pending = make(map[string]struct{})
	}
}

// Merge folds a fetched page into the view, deduplicating against whatever
// live pushes already arrived. Used on initial load and after reconnect.
func (t *Timeline) Merge(messages []domain.Message) {
	t.mu.Lock()
	defer t.mu.Unlock()
	for _, m := range messages {
		t.insert(m)
	}
}

// SetCounts applies counters obtained through a fetch. Unlike the pushed
// UnreadCounts event this may have been computed before an in-flight
// MarkRead landed, so optimistically-zeroed peers keep their zero until the
// post-reconciliation push confirms either value.
func (t *Timeline) SetCounts(counts map[string]int) {
	t.mu.Lock()
	defer t.mu.Unlock()
	for peer, n := range counts {
		if _, waiting := t.pending[peer]; waiting {
			continue
		}
		t.unread[peer] = n
	}
}

// OpenConversation zeroes the peer's counter immediately so the UI feels
// instant; the matching MarkRead call settles the real value.
func (t *Timeline) OpenConversation(peer string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.unread[peer] = 0
	t.pending[peer] = struct{}{}
}

// ResetConversation throws away the locally cached direct exchange with peer
// and replaces it with a freshly fetched page. Group messages and other
// conversations are untouched.
func (t *Timeline) ResetConversation(peer string, page []domain.Message) {
	t.mu.Lock()
	kept := make([]domain.Message, 0, len(t.ordered))
	for _, m := range t.ordered {
		if m.ChatType == domain.Direct &&
			((m.SenderID == t.Owner && m.ReceiverID == peer) ||
				(m.SenderID == peer && m.ReceiverID == t.Owner)) {
			continue
		}
		kept = append(kept, m)
	}
	t.ordered = kept
	t.byID = make(map[uuid.UUID]int, len(kept))
	for i, m := range kept {
		t.byID[m.ID] = i
	}
	t.mu.Unlock()

	t.Merge(page)
}

// Unread returns the locally known counter for a peer.
func (t *Timeline) Unread(peer string) int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.unread[peer]
}

// Messages returns the view in CreatedAt order.
func (t *Timeline) Messages() []domain.Message {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]domain.Message, len(t.ordered))
	copy(out, t.ordered)
	return out
}

// Online reports the peer's last known presence.
func (t *Timeline) Online(userID string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	_, ok := t.online[userID]
	return ok
}

// Reconnect rebuilds the view after the connection was re-established.
// Events missed during the gap are never redelivered, so the only safe move
// is to re-fetch and merge: presence, recent messages, counters.
func (t *Timeline) Reconnect(online []string, messages []domain.Message, counts map[string]int) {
	t.mu.Lock()
	t.online = make(map[string]struct{}, len(online))
	for _, id := range online {
		t.online[id] = struct{}{}
	}
	t.pending = make(map[string]struct{})
	t.mu.Unlock()

	t.Merge(messages)
	t.SetCounts(counts)
}

// insert respects the dedup law: a known id only gets its forward-moving
// fields merged, never a second entry.
func (t *Timeline) insert(m domain.Message) {
	if i, ok := t.byID[m.ID]; ok {
		existing := &t.ordered[i]
		existing.Status = existing.Status.Advance(m.Status)
		for _, viewer := range m.SeenBy {
			existing.MarkSeen(viewer)
		}
		return
	}

	pos := sort.Search(len(t.ordered), func(i int) bool {
		return t.ordered[i].CreatedAt.After(m.CreatedAt)
	})
	t.ordered = append(t.ordered, domain.Message{})
	copy(t.ordered[pos+1:], t.ordered[pos:])
	t.ordered[pos] = m

	for id, idx := range t.byID {
		if idx >= pos {
			t.byID[id] = idx + 1
		}
	}
	t.byID[m.ID] = pos
}

// advance moves a message's status forward, never back.
func (t *Timeline) advance(id uuid.UUID, to domain.Status) {
	if i, ok := t.byID[id]; ok {
		t.ordered[i].Status = t.ordered[i].Status.Advance(to)
	}
}
