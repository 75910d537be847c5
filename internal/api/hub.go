package api

import (
	"sync"

	"github.com/rs/zerolog"

	"github.com/eliksir-bar/eliksir-analytics/internal/pageview"
)

const (
	defaultSubscriberBufferSize = 16
	defaultBroadcastBufferSize  = 64
)

// Subscriber represents a live feed client connection.
type Subscriber struct {
	events chan pageview.PageView
	done   chan struct{}
}

// Events returns the channel for receiving page views.
func (s *Subscriber) Events() <-chan pageview.PageView {
	return s.events
}

// Done returns a channel that is closed when the subscriber is unsubscribed.
func (s *Subscriber) Done() <-chan struct{} {
	return s.done
}

// Hub fans newly stored page views out to live feed subscribers.
// A single goroutine owns the subscriber set.
type Hub struct {
	register   chan *Subscriber
	unregister chan *Subscriber
	broadcast  chan pageview.PageView
	stop       chan struct{}
	stopped    chan struct{}
	stopOnce   sync.Once

	subscriberBufferSize int
	logger               zerolog.Logger
	onCount              func(int)
}

// HubOption configures a Hub.
type HubOption func(*Hub)

// WithHubSubscriberBufferSize sets the buffer size for subscriber channels.
func WithHubSubscriberBufferSize(size int) HubOption {
	return func(h *Hub) {
		if size > 0 {
			h.subscriberBufferSize = size
		}
	}
}

// WithHubLogger sets the logger for the Hub.
func WithHubLogger(logger zerolog.Logger) HubOption {
	return func(h *Hub) { h.logger = logger }
}

// WithHubSubscriberGauge reports the subscriber count after every change.
func WithHubSubscriberGauge(fn func(n int)) HubOption {
	return func(h *Hub) { h.onCount = fn }
}

// NewHub creates a new hub.
// Call Run() to start the hub's event loop.
func NewHub(opts ...HubOption) *Hub {
	h := &Hub{
		register:             make(chan *Subscriber),
		unregister:           make(chan *Subscriber),
		broadcast:            make(chan pageview.PageView, defaultBroadcastBufferSize),
		stop:                 make(chan struct{}),
		stopped:              make(chan struct{}),
		subscriberBufferSize: defaultSubscriberBufferSize,
		logger:               zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Run starts the hub's event loop.
// This method blocks until Stop() is called.
// Should be called in a goroutine: go hub.Run()
func (h *Hub) Run() {
	clients := make(map[*Subscriber]struct{})
	defer close(h.stopped)

	for {
		select {
		case sub := <-h.register:
			clients[sub] = struct{}{}
			h.count(len(clients))
			h.logger.Debug().Int("count", len(clients)).Msg("subscriber registered")

		case sub := <-h.unregister:
			if _, ok := clients[sub]; ok {
				delete(clients, sub)
				close(sub.done)
				close(sub.events)
				h.count(len(clients))
				h.logger.Debug().Int("count", len(clients)).Msg("subscriber unregistered")
			}

		case pv := <-h.broadcast:
			for sub := range clients {
				select {
				case sub.events <- pv:
				default:
					// Slow client; it can catch up with Last-Event-ID.
					h.logger.Warn().Int64("id", pv.ID).Msg("subscriber channel full, page view dropped")
				}
			}

		case <-h.stop:
			for sub := range clients {
				close(sub.done)
				close(sub.events)
			}
			h.count(0)
			return
		}
	}
}

func (h *Hub) count(n int) {
	if h.onCount != nil {
		h.onCount(n)
	}
}

// Stop stops the hub's event loop.
// Blocks until the hub has fully stopped.
// Safe to call multiple times (idempotent).
func (h *Hub) Stop() {
	h.stopOnce.Do(func() {
		close(h.stop)
	})
	<-h.stopped
}

// Subscribe creates a new subscriber.
// The caller must call Unsubscribe when done.
func (h *Hub) Subscribe() *Subscriber {
	sub := &Subscriber{
		events: make(chan pageview.PageView, h.subscriberBufferSize),
		done:   make(chan struct{}),
	}

	select {
	case h.register <- sub:
		return sub
	case <-h.stopped:
		// Hub is stopped, return a closed subscriber
		close(sub.done)
		close(sub.events)
		return sub
	}
}

// Unsubscribe removes a subscriber.
func (h *Hub) Unsubscribe(sub *Subscriber) {
	if sub == nil {
		return
	}

	select {
	case h.unregister <- sub:
	case <-h.stopped:
	}
}

// Publish sends a page view to all subscribers.
// Non-blocking: if the broadcast channel is full, the page view is dropped.
// Its signature matches ingest.WithOnInsert.
func (h *Hub) Publish(pv pageview.PageView) {
	select {
	case h.broadcast <- pv:
	case <-h.stopped:
	default:
		h.logger.Warn().Int64("id", pv.ID).Msg("broadcast channel full, page view dropped")
	}
}
