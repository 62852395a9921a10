package streaming

import "context"

// Subscription is the in-process protocol adapter: callers that live
// in the same Go process as the Hub (tests, an embedded dashboard, a
// CLI follow command) read directly off a Session without going
// through a socket. New code, grounded on the same per-session
// channel shape Session itself already owns rather than on a dropped
// in-memory queue abstraction.
type Subscription struct {
	hub     *Hub
	session *Session
}

// Subscribe registers a new in-process subscription on key.
func Subscribe(hub *Hub, key ChannelKey, capacity int, lossy bool, flushThreshold int) (*Subscription, error) {
	session, err := hub.Subscribe(key, capacity, lossy, flushThreshold)
	if err != nil {
		return nil, err
	}
	return &Subscription{hub: hub, session: session}, nil
}

// Next blocks until an event is available, the subscription is closed,
// or ctx is cancelled.
func (s *Subscription) Next(ctx context.Context) (Event, error) {
	select {
	case ev, ok := <-s.session.Out():
		if !ok {
			return Event{}, ErrChannelClosed
		}
		return ev, nil
	case <-s.session.Done():
		return Event{}, ErrChannelClosed
	case <-ctx.Done():
		return Event{}, ctx.Err()
	}
}

// Dropped returns how many events were discarded because this is a
// lossy subscription and its buffer was full.
func (s *Subscription) Dropped() int64 { return s.session.Dropped() }

// Close unsubscribes and releases the underlying session.
func (s *Subscription) Close() { s.hub.Unsubscribe(s.session) }
