package streaming

import (
	"context"
	"sync"
	"sync/atomic"
	"time"
)

// flushInterval bounds how long a coalesced content-chunk run can sit
// unflushed (§4.4: "periodic flush every <=100ms").
const flushInterval = 100 * time.Millisecond

// Session is one subscriber's per-channel ring buffer: content-chunk
// coalescing, immediate-flush events, and back-pressure/lossy-drop
// semantics all live here, independent of which protocol adapter
// (WebSocket, SSE, direct Go channel) eventually drains Out().
//
// Adapted from cmd/fanout/hub.go's per-client channel, generalized
// from a raw []byte send channel to a typed Event channel with
// coalescing and explicit lossy/back-pressure handling.
type Session struct {
	Key ChannelKey

	out      chan Event
	closed   chan struct{}
	closeOnce sync.Once
	lossy    bool
	dropped  int64

	mu             sync.Mutex
	pendingChunk   *Event
	flushThreshold int
	nextSeq        int64

	stopFlush chan struct{}
}

// NewSession creates a session with the given ring-buffer capacity
// (events, not bytes). A lossy session drops its oldest buffered event
// rather than applying back-pressure to producers when full.
func NewSession(key ChannelKey, capacity int, lossy bool, flushThreshold int) *Session {
	if capacity <= 0 {
		capacity = 64
	}
	if flushThreshold <= 0 {
		flushThreshold = 4096
	}
	s := &Session{
		Key:            key,
		out:            make(chan Event, capacity),
		closed:         make(chan struct{}),
		lossy:          lossy,
		flushThreshold: flushThreshold,
		stopFlush:      make(chan struct{}),
	}
	go s.runPeriodicFlush()
	return s
}

// Out is the channel a protocol adapter drains to deliver events to
// the remote subscriber.
func (s *Session) Out() <-chan Event { return s.out }

// Done signals the session has been closed.
func (s *Session) Done() <-chan struct{} { return s.closed }

// Dropped returns how many events this session has discarded because
// it is lossy and its buffer was full.
func (s *Session) Dropped() int64 { return atomic.LoadInt64(&s.dropped) }

// Close cancels all pending sends on this session's buffer and stops
// its flush timer. Safe to call more than once.
func (s *Session) Close() {
	s.closeOnce.Do(func() {
		close(s.closed)
		close(s.stopFlush)
	})
}

// Deliver enqueues ev, coalescing consecutive content_chunk events for
// the same scope when no non-chunk event is pending between them and
// the merged length stays within flushThreshold. Immediate-flush event
// types (error, completed, tool_call) and any event past the
// coalescing threshold flush the pending chunk first. Returns
// ErrChannelClosed once the session has been closed.
func (s *Session) Deliver(ctx context.Context, ev Event) error {
	select {
	case <-s.closed:
		return ErrChannelClosed
	default:
	}

	s.mu.Lock()
	s.nextSeq++
	ev.Seq = s.nextSeq

	if ev.EventType == EventContentChunk {
		if s.pendingChunk != nil && s.pendingChunk.ScopeID == ev.ScopeID && s.coalescable(ev) {
			s.mergeLocked(ev)
			s.mu.Unlock()
			return nil
		}
		pending := s.pendingChunk
		s.pendingChunk = &ev
		s.mu.Unlock()
		if pending != nil {
			if err := s.enqueue(ctx, *pending); err != nil {
				return err
			}
		}
		return nil
	}

	pending := s.pendingChunk
	s.pendingChunk = nil
	s.mu.Unlock()

	if pending != nil {
		if err := s.enqueue(ctx, *pending); err != nil {
			return err
		}
	}
	return s.enqueue(ctx, ev)
}

// coalescable reports whether ev can be merged into the currently
// pending chunk without exceeding flushThreshold. Must be called with
// s.mu held.
func (s *Session) coalescable(ev Event) bool {
	existing, _ := s.pendingChunk.Payload["text"].(string)
	incoming, _ := ev.Payload["text"].(string)
	return len(existing)+len(incoming) <= s.flushThreshold
}

// mergeLocked concatenates ev's text payload onto the pending chunk.
// Must be called with s.mu held.
func (s *Session) mergeLocked(ev Event) {
	existing, _ := s.pendingChunk.Payload["text"].(string)
	incoming, _ := ev.Payload["text"].(string)
	s.pendingChunk.Payload["text"] = existing + incoming
	s.pendingChunk.Timestamp = ev.Timestamp
	s.pendingChunk.Seq = ev.Seq
}

// enqueue pushes ev onto the out channel, suspending the caller when
// full unless the session is lossy.
func (s *Session) enqueue(ctx context.Context, ev Event) error {
	if s.lossy {
		select {
		case s.out <- ev:
			return nil
		default:
		}
		select {
		case <-s.out:
			atomic.AddInt64(&s.dropped, 1)
		default:
		}
		select {
		case s.out <- ev:
		default:
			atomic.AddInt64(&s.dropped, 1)
		}
		return nil
	}

	select {
	case s.out <- ev:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-s.closed:
		return ErrChannelClosed
	}
}

func (s *Session) runPeriodicFlush() {
	ticker := time.NewTicker(flushInterval)
	defer ticker.Stop()
	for {
		select {
		case <-s.stopFlush:
			return
		case <-ticker.C:
			s.mu.Lock()
			pending := s.pendingChunk
			s.pendingChunk = nil
			s.mu.Unlock()
			if pending != nil {
				_ = s.enqueue(context.Background(), *pending)
			}
		}
	}
}
