package streaming

import (
	"context"
	"sync"
)

// Hub fans out published events to every Session subscribed to the
// matching ChannelKey. Adapted from cmd/fanout/hub.go: the register/
// unregister/broadcast shape survives, generalized from a single
// username-keyed map to a {scope, id}-keyed one, and from raw []byte
// broadcast to typed Event delivery through each Session's own
// coalescing ring buffer.
type Hub struct {
	mu       sync.RWMutex
	sessions map[ChannelKey]map[*Session]struct{}

	maxBufferedEvents int // global resource cap, measured in reserved buffer slots
	reserved          int
}

// NewHub creates a Hub. maxBufferedEvents bounds the sum of every
// subscribed session's buffer capacity; Subscribe refuses new sessions
// with ErrOverloaded once it would be exceeded. Zero disables the cap.
func NewHub(maxBufferedEvents int) *Hub {
	return &Hub{
		sessions:          make(map[ChannelKey]map[*Session]struct{}),
		maxBufferedEvents: maxBufferedEvents,
	}
}

// Subscribe registers a new Session on key and returns it. capacity is
// the session's ring-buffer size; lossy sessions drop their oldest
// event instead of applying back-pressure when full.
func (h *Hub) Subscribe(key ChannelKey, capacity int, lossy bool, flushThreshold int) (*Session, error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.maxBufferedEvents > 0 && h.reserved+capacity > h.maxBufferedEvents {
		return nil, ErrOverloaded
	}

	s := NewSession(key, capacity, lossy, flushThreshold)
	if h.sessions[key] == nil {
		h.sessions[key] = make(map[*Session]struct{})
	}
	h.sessions[key][s] = struct{}{}
	h.reserved += capacity
	return s, nil
}

// Unsubscribe removes s from its channel and closes it. Safe to call
// more than once.
func (h *Hub) Unsubscribe(s *Session) {
	h.mu.Lock()
	if set, ok := h.sessions[s.Key]; ok {
		if _, present := set[s]; present {
			delete(set, s)
			if len(set) == 0 {
				delete(h.sessions, s.Key)
			}
			h.reserved -= cap(s.out)
		}
	}
	h.mu.Unlock()
	s.Close()
}

// Publish delivers ev to every session subscribed to key, assigning
// nothing itself (per-channel sequencing happens inside each Session,
// since coalescing can change how many events a given publish
// ultimately produces). A closed session encountered mid-publish is
// unsubscribed rather than treated as an error.
func (h *Hub) Publish(ctx context.Context, key ChannelKey, ev Event) {
	ev.ScopeID = key.ID
	h.mu.RLock()
	set := h.sessions[key]
	targets := make([]*Session, 0, len(set))
	for s := range set {
		targets = append(targets, s)
	}
	h.mu.RUnlock()

	var wg sync.WaitGroup
	for _, s := range targets {
		wg.Add(1)
		go func(s *Session) {
			defer wg.Done()
			if err := s.Deliver(ctx, ev); err == ErrChannelClosed {
				h.Unsubscribe(s)
			}
		}(s)
	}
	wg.Wait()
}

// SessionCount returns the number of sessions subscribed to key.
func (h *Hub) SessionCount(key ChannelKey) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.sessions[key])
}
