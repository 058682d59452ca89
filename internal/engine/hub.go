package engine

import "sync"

// subscriptionBuffer is how many frames a subscriber may lag before the
// session's fan-out blocks on it. Backpressure is per session: a stalled
// subscriber never affects other sessions.
const subscriptionBuffer = 256

// Subscription is one client's binding to a session's output stream.
// It does not own the session: closing it detaches the viewer and
// nothing else.
type Subscription struct {
	frames chan Frame
	done   chan struct{}
	once   sync.Once
	h      *hub
}

// Frames delivers the session's output in sequence order. The channel is
// closed when the session ends or the subscription is closed.
func (s *Subscription) Frames() <-chan Frame {
	return s.frames
}

// Close detaches the subscription. Safe to call more than once and safe
// to call concurrently with fan-out.
func (s *Subscription) Close() {
	s.once.Do(func() {
		close(s.done)
		s.h.unsubscribe(s)
	})
}

// hub fans a session's frames out to its subscribers. Broadcast is called
// only from the session's pump goroutine, so frame order is preserved per
// subscriber by construction; subscribe and broadcast serialize on mu, so
// a subscriber registered before a frame is broadcast always receives it.
type hub struct {
	mu     sync.Mutex
	subs   map[*Subscription]struct{}
	closed bool
}

func newHub() *hub {
	return &hub{subs: make(map[*Subscription]struct{})}
}

// subscribe registers a new subscription. Returns false if the session
// already ended.
func (h *hub) subscribe() (*Subscription, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return nil, false
	}
	sub := &Subscription{
		frames: make(chan Frame, subscriptionBuffer),
		done:   make(chan struct{}),
		h:      h,
	}
	h.subs[sub] = struct{}{}
	return sub, true
}

func (h *hub) unsubscribe(sub *Subscription) {
	h.mu.Lock()
	defer h.mu.Unlock()
	delete(h.subs, sub)
}

// broadcast delivers one frame to every current subscriber. The send
// blocks on a full subscriber buffer (bounded memory, backpressure onto
// this session's output reader) but aborts if that subscriber closes.
func (h *hub) broadcast(f Frame) {
	h.mu.Lock()
	subs := make([]*Subscription, 0, len(h.subs))
	for sub := range h.subs {
		subs = append(subs, sub)
	}
	h.mu.Unlock()

	for _, sub := range subs {
		select {
		case sub.frames <- f:
		case <-sub.done:
		}
	}
}

// close marks the hub finished and closes every subscriber channel.
// Called from the pump goroutine after the final frame is broadcast.
func (h *hub) close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return
	}
	h.closed = true
	for sub := range h.subs {
		close(sub.frames)
		delete(h.subs, sub)
	}
}
