package events

import (
	"context"
	"encoding/json"
	"sync"

	cloudevents "github.com/cloudevents/sdk-go/v2"
	"go.uber.org/zap"
)

const subscriptionBuffer = 16

// Hub is a Writer fanning events out to subscribers of the event subject, the job id.
// A subscriber whose channel is full is dropped and its channel closed.
type Hub struct {
	mu     sync.Mutex
	subs   map[string]map[*Subscription]struct{}
	closed bool
}

type Subscription struct {
	Subject string
	C       <-chan []byte

	ch      chan []byte
	hub     *Hub
	once    sync.Once
	dropped bool
}

func NewHub() *Hub {
	return &Hub{subs: make(map[string]map[*Subscription]struct{})}
}

// Subscribe registers for the events of subject. Close the subscription when done.
func (h *Hub) Subscribe(subject string) *Subscription {
	ch := make(chan []byte, subscriptionBuffer)
	s := &Subscription{Subject: subject, C: ch, ch: ch, hub: h}

	h.mu.Lock()
	defer h.mu.Unlock()

	if h.closed {
		s.once.Do(func() { close(ch) })
		return s
	}
	if h.subs[subject] == nil {
		h.subs[subject] = make(map[*Subscription]struct{})
	}
	h.subs[subject][s] = struct{}{}
	return s
}

func (s *Subscription) Close() {
	s.hub.mu.Lock()
	defer s.hub.mu.Unlock()
	s.hub.remove(s)
}

// Dropped reports whether the hub ended the subscription because it fell behind.
func (s *Subscription) Dropped() bool {
	s.hub.mu.Lock()
	defer s.hub.mu.Unlock()
	return s.dropped
}

// remove must be called with the hub lock held.
func (h *Hub) remove(s *Subscription) {
	if subs, ok := h.subs[s.Subject]; ok {
		delete(subs, s)
		if len(subs) == 0 {
			delete(h.subs, s.Subject)
		}
	}
	s.once.Do(func() { close(s.ch) })
}

// Subscribers returns the number of subscribers of subject.
func (h *Hub) Subscribers(subject string) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.subs[subject])
}

func (h *Hub) Write(_ context.Context, _ string, e cloudevents.Event) error {
	data, err := json.Marshal(e)
	if err != nil {
		return err
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	for s := range h.subs[e.Subject()] {
		select {
		case s.ch <- data:
		default:
			zap.S().Named("event_hub").Warnw("dropping slow subscriber", "subject", e.Subject())
			s.dropped = true
			h.remove(s)
		}
	}
	return nil
}

// Close ends every subscription.
func (h *Hub) Close(_ context.Context) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	for _, subs := range h.subs {
		for s := range subs {
			h.remove(s)
		}
	}
	h.closed = true
	return nil
}
