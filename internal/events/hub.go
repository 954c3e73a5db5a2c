package events

import (
	"context"
	"sync"
)

// Hub broadcasts events to every current subscriber. Subscribers only see
// events published after they subscribed.
type Hub struct {
	mu     sync.Mutex
	subs   map[*Subscription]struct{}
	closed bool
}

// NewHub creates an empty hub
func NewHub() *Hub {
	return &Hub{subs: make(map[*Subscription]struct{})}
}

// Publish queues ev for every subscriber. It never blocks; a slow subscriber
// only grows its own queue.
func (h *Hub) Publish(ev Event) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return
	}
	for sub := range h.subs {
		sub.push(ev)
	}
}

// Subscribe starts a new stream. After Close the stream is already finished.
func (h *Hub) Subscribe() *Subscription {
	sub := newSubscription(h)

	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		sub.end()
		return sub
	}
	h.subs[sub] = struct{}{}
	h.mu.Unlock()
	return sub
}

// SubscriberCount returns the number of open subscriptions
func (h *Hub) SubscriberCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.subs)
}

// Close finishes every stream. Events queued before Close are still
// delivered.
func (h *Hub) Close() {
	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		return
	}
	h.closed = true
	subs := h.subs
	h.subs = make(map[*Subscription]struct{})
	h.mu.Unlock()

	for sub := range subs {
		sub.end()
	}
}

func (h *Hub) remove(sub *Subscription) {
	h.mu.Lock()
	delete(h.subs, sub)
	h.mu.Unlock()
}

// Subscription is one subscriber's view of the hub
type Subscription struct {
	hub *Hub

	mu     sync.Mutex
	queue  []Event
	ended  bool
	wake   chan struct{}
	out    chan Event
	cancel chan struct{}
	once   sync.Once
}

func newSubscription(h *Hub) *Subscription {
	s := &Subscription{
		hub:    h,
		wake:   make(chan struct{}, 1),
		out:    make(chan Event),
		cancel: make(chan struct{}),
	}
	go s.pump()
	return s
}

// C returns the event channel. It is closed when the hub closes (after the
// queued events) or when the subscription is closed.
func (s *Subscription) C() <-chan Event {
	return s.out
}

// Next waits for the next event. ok is false once the stream has finished.
func (s *Subscription) Next(ctx context.Context) (ev Event, ok bool, err error) {
	select {
	case ev, ok = <-s.out:
		return ev, ok, nil
	case <-ctx.Done():
		return Event{}, false, ctx.Err()
	}
}

// Close unsubscribes and drops anything still queued
func (s *Subscription) Close() {
	s.once.Do(func() {
		s.hub.remove(s)
		close(s.cancel)
	})
}

func (s *Subscription) push(ev Event) {
	s.mu.Lock()
	s.queue = append(s.queue, ev)
	s.mu.Unlock()
	s.signal()
}

func (s *Subscription) end() {
	s.mu.Lock()
	s.ended = true
	s.mu.Unlock()
	s.signal()
}

func (s *Subscription) signal() {
	select {
	case s.wake <- struct{}{}:
	default:
	}
}

func (s *Subscription) pump() {
	defer close(s.out)

	for {
		s.mu.Lock()
		if len(s.queue) == 0 {
			ended := s.ended
			s.mu.Unlock()
			if ended {
				return
			}
			select {
			case <-s.wake:
				continue
			case <-s.cancel:
				return
			}
		}
		ev := s.queue[0]
		s.queue[0] = Event{}
		s.queue = s.queue[1:]
		s.mu.Unlock()

		select {
		case s.out <- ev:
		case <-s.cancel:
			return
		}
	}
}
