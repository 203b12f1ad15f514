// Package fanout implements the progress event fan-out layer (§4.7): it
// subscribes to the Broker's job_updates channel and dispatches each event
// to observers registered for that job_id, plus all global observers.
// Delivery is best-effort; an observer whose send fails is evicted.
package fanout

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/redis/go-redis/v9"

	"github.com/fieldnote/scrapesched/internal/domain"
	"github.com/fieldnote/scrapesched/internal/logger"
)

// Observer receives progress events. Send must not block for long; the Hub
// treats a full or erroring Observer as dead and evicts it.
type Observer interface {
	Send(event domain.ProgressEvent) error
}

// Subscriber is the subset of *redis.PubSub the Hub depends on, so tests
// can substitute a fake channel.
type Subscriber interface {
	Channel(opts ...redis.ChannelOption) <-chan *redis.Message
	Close() error
}

// Hub is the in-process observer registry and event dispatcher.
type Hub struct {
	logger logger.Logger

	mu        sync.RWMutex
	global    map[Observer]struct{}
	byJob     map[string]map[Observer]struct{}

	cancel context.CancelFunc
	done   chan struct{}
}

// NewHub constructs an empty Hub.
func NewHub(log logger.Logger) *Hub {
	return &Hub{
		logger: log,
		global: make(map[Observer]struct{}),
		byJob:  make(map[string]map[Observer]struct{}),
	}
}

// SubscribeGlobal registers an observer for every job's events.
func (h *Hub) SubscribeGlobal(o Observer) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.global[o] = struct{}{}
}

// SubscribeJob registers an observer for a specific job's events.
func (h *Hub) SubscribeJob(jobID string, o Observer) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.byJob[jobID] == nil {
		h.byJob[jobID] = make(map[Observer]struct{})
	}
	h.byJob[jobID][o] = struct{}{}
}

// Unsubscribe removes an observer from every scope.
func (h *Hub) Unsubscribe(o Observer) {
	h.mu.Lock()
	defer h.mu.Unlock()
	delete(h.global, o)
	for jobID, set := range h.byJob {
		delete(set, o)
		if len(set) == 0 {
			delete(h.byJob, jobID)
		}
	}
}

// Dispatch delivers event to every observer registered for its job_id and
// to all global observers, evicting any observer whose Send fails.
func (h *Hub) Dispatch(event domain.ProgressEvent) {
	h.mu.RLock()
	targets := make([]Observer, 0, len(h.global)+len(h.byJob[event.JobID]))
	for o := range h.global {
		targets = append(targets, o)
	}
	for o := range h.byJob[event.JobID] {
		targets = append(targets, o)
	}
	h.mu.RUnlock()

	var dead []Observer
	for _, o := range targets {
		if err := o.Send(event); err != nil {
			dead = append(dead, o)
		}
	}
	for _, o := range dead {
		h.logger.Warn("evicting observer after failed send")
		h.Unsubscribe(o)
	}
}

// Run subscribes to sub and dispatches every decoded event until ctx is
// cancelled or the subscription's channel closes. Malformed payloads are
// logged and dropped.
func (h *Hub) Run(ctx context.Context, sub Subscriber) {
	defer func() { _ = sub.Close() }()

	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-sub.Channel():
			if !ok {
				return
			}
			var event domain.ProgressEvent
			if err := json.Unmarshal([]byte(msg.Payload), &event); err != nil {
				h.logger.Warn("dropping malformed progress event", logger.Error(err))
				continue
			}
			h.Dispatch(event)
		}
	}
}
