// Package notify fans auction events out to subscribers of per-auction and
// per-user channels. Delivery is best-effort: nothing is persisted or replayed
// and a subscriber that cannot keep up misses events.
package notify

import (
	"sync"
	"sync/atomic"

	model "auction-house/internal/models"
	"auction-house/utils"
)

//go:generate mockgen -destination=mock_publisher.go -package=notify auction-house/internal/notify Publisher

// DefaultBuffer is the per-subscriber queue length used by NewHub
const DefaultBuffer = 16

// Publisher pushes an event to every current subscriber of a channel
type Publisher interface {
	Publish(channel string, event model.Event)
}

// AuctionChannel is the channel carrying events about one auction
func AuctionChannel(auctionID string) string {
	return "auction:" + auctionID
}

// UserChannel is the channel carrying events addressed to one user
func UserChannel(userID string) string {
	return "user:" + userID
}

// Subscription is one connection's interest in one channel
type Subscription struct {
	id      uint64
	channel string
	events  chan model.Event
	once    sync.Once
}

// Events yields published events until the subscription is removed
func (s *Subscription) Events() <-chan model.Event {
	return s.events
}

// Channel returns the channel the subscription listens on
func (s *Subscription) Channel() string {
	return s.channel
}

// Hub is an in-process Publisher with subscribe/unsubscribe
type Hub struct {
	mu      sync.RWMutex
	nextID  uint64
	buffer  int
	subs    map[string]map[uint64]*Subscription
	dropped atomic.Uint64
}

// NewHub creates a hub whose subscribers queue up to DefaultBuffer events
func NewHub() *Hub {
	return NewHubWithBuffer(DefaultBuffer)
}

// NewHubWithBuffer creates a hub with the given per-subscriber queue length
func NewHubWithBuffer(buffer int) *Hub {
	if buffer < 1 {
		buffer = 1
	}
	return &Hub{
		buffer: buffer,
		subs:   make(map[string]map[uint64]*Subscription),
	}
}

// Subscribe registers interest in channel
func (h *Hub) Subscribe(channel string) *Subscription {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.nextID++
	sub := &Subscription{
		id:      h.nextID,
		channel: channel,
		events:  make(chan model.Event, h.buffer),
	}
	if h.subs[channel] == nil {
		h.subs[channel] = make(map[uint64]*Subscription)
	}
	h.subs[channel][sub.id] = sub
	return sub
}

// Unsubscribe removes sub and closes its event stream. Safe to call twice.
func (h *Hub) Unsubscribe(sub *Subscription) {
	if sub == nil {
		return
	}
	h.mu.Lock()
	if members, ok := h.subs[sub.channel]; ok {
		delete(members, sub.id)
		if len(members) == 0 {
			delete(h.subs, sub.channel)
		}
	}
	h.mu.Unlock()

	sub.once.Do(func() { close(sub.events) })
}

// Publish delivers event to every subscriber of channel without blocking
func (h *Hub) Publish(channel string, event model.Event) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	for _, sub := range h.subs[channel] {
		select {
		case sub.events <- event:
		default:
			h.dropped.Add(1)
			utils.Warn("notify: subscriber queue full, event dropped", map[string]any{
				"channel": channel,
				"type":    string(event.Type),
			})
		}
	}
}

// Subscribers returns the number of subscribers on channel
func (h *Hub) Subscribers(channel string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subs[channel])
}

// Dropped returns how many deliveries were skipped because a queue was full
func (h *Hub) Dropped() uint64 {
	return h.dropped.Load()
}
