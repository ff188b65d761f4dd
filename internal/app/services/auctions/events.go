package auctions

import (
	"sync"
	"time"
)

// Event types published by the engine and the clock.
const (
	EventAuctionActivated = "auction.activated"
	EventAuctionEnded     = "auction.ended"
	EventBidPlaced        = "bid.placed"
	EventBidDisplaced     = "bid.displaced"
	EventAuctionSettled   = "auction.settled"
	EventAuctionCancelled = "auction.cancelled"
	EventAuctionExtended  = "auction.extended"
)

// Event is one auction notification.
type Event struct {
	Type      string    `json:"type"`
	AuctionID string    `json:"auctionId"`
	Payload   any       `json:"payload,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// subscriberQueueSize bounds each subscriber's backlog. A subscriber that
// falls this far behind is dropped.
const subscriberQueueSize = 16

// Hub fans auction events out to in-process subscribers. Delivery is best
// effort: slow consumers are disconnected rather than blocking the engine.
type Hub struct {
	mu          sync.Mutex
	subscribers map[string]map[chan Event]struct{} // auctionID → subscribers
}

// NewHub creates an event hub.
func NewHub() *Hub {
	return &Hub{subscribers: make(map[string]map[chan Event]struct{})}
}

// Subscribe registers a listener for one auction's events. The returned
// cancel function must be called when the listener goes away.
func (h *Hub) Subscribe(auctionID string) (<-chan Event, func()) {
	ch := make(chan Event, subscriberQueueSize)

	h.mu.Lock()
	set, ok := h.subscribers[auctionID]
	if !ok {
		set = make(map[chan Event]struct{})
		h.subscribers[auctionID] = set
	}
	set[ch] = struct{}{}
	h.mu.Unlock()

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			h.mu.Lock()
			h.remove(auctionID, ch)
			h.mu.Unlock()
		})
	}
	return ch, cancel
}

// Publish delivers an event to every subscriber of its auction.
func (h *Hub) Publish(event Event) {
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now().UTC()
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	for ch := range h.subscribers[event.AuctionID] {
		select {
		case ch <- event:
		default:
			// Queue full: the consumer is too slow to keep.
			h.remove(event.AuctionID, ch)
		}
	}
}

// remove must be called with the lock held.
func (h *Hub) remove(auctionID string, ch chan Event) {
	set, ok := h.subscribers[auctionID]
	if !ok {
		return
	}
	if _, ok := set[ch]; !ok {
		return
	}
	delete(set, ch)
	close(ch)
	if len(set) == 0 {
		delete(h.subscribers, auctionID)
	}
}
