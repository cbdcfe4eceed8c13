package services

import (
	"context"
	"sync"

	"git.solsynth.dev/hypernet/relay/pkg/internal/models"
	"github.com/cespare/xxhash/v2"
	"github.com/rs/zerolog/log"
)

// Session is one connected client able to receive packets. Deliver must not
// block; a session that cannot take the packet returns an error and misses
// it.
type Session interface {
	ID() string
	UserID() uint
	Deliver(packet []byte) error
}

// Broadcaster delivers events to the sessions subscribed to a scope.
// Delivery is best-effort and never fails the caller.
type Broadcaster interface {
	Publish(ctx context.Context, scope models.Scope, event models.Event, opts ...PublishOption)
}

type publishOptions struct {
	excludeUser uint
}

type PublishOption func(*publishOptions)

// ExcludeUser skips every session of the given user, typically the actor.
func ExcludeUser(userId uint) PublishOption {
	return func(o *publishOptions) {
		o.excludeUser = userId
	}
}

func collectPublishOptions(opts []PublishOption) publishOptions {
	var out publishOptions
	for _, opt := range opts {
		opt(&out)
	}
	return out
}

type delivery struct {
	scope       string
	packet      []byte
	excludeUser uint
}

// Hub is the in-process fan-out. Every scope is pinned to one worker
// goroutine, so packets published to the same scope reach each session in
// publish order.
type Hub struct {
	mu       sync.RWMutex
	scopes   map[string]map[string]Session
	sessions map[string]map[string]struct{}

	lifecycle sync.RWMutex
	closed    bool
	workers   []chan delivery
	wg        sync.WaitGroup
}

func NewHub(workers, queue int) *Hub {
	if workers <= 0 {
		workers = 4
	}
	if queue <= 0 {
		queue = 256
	}

	hub := &Hub{
		scopes:   make(map[string]map[string]Session),
		sessions: make(map[string]map[string]struct{}),
		workers:  make([]chan delivery, workers),
	}
	for idx := range hub.workers {
		hub.workers[idx] = make(chan delivery, queue)
		hub.wg.Add(1)
		go hub.work(hub.workers[idx])
	}
	return hub
}

func (h *Hub) Subscribe(scope models.Scope, session Session) {
	h.mu.Lock()
	defer h.mu.Unlock()

	key := scope.String()
	if _, ok := h.scopes[key]; !ok {
		h.scopes[key] = make(map[string]Session)
	}
	h.scopes[key][session.ID()] = session
	if _, ok := h.sessions[session.ID()]; !ok {
		h.sessions[session.ID()] = make(map[string]struct{})
	}
	h.sessions[session.ID()][key] = struct{}{}
}

func (h *Hub) Unsubscribe(scope models.Scope, sessionId string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.detach(scope.String(), sessionId)
}

func (h *Hub) UnsubscribeAll(sessionId string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for key := range h.sessions[sessionId] {
		h.detach(key, sessionId)
	}
	delete(h.sessions, sessionId)
}

// RevokeUser drops every session of the user from the scope, used when the
// user loses access to it.
func (h *Hub) RevokeUser(scope models.Scope, userId uint) {
	h.mu.Lock()
	defer h.mu.Unlock()
	key := scope.String()
	for id, session := range h.scopes[key] {
		if session.UserID() == userId {
			h.detach(key, id)
		}
	}
}

func (h *Hub) detach(key, sessionId string) {
	if subs, ok := h.scopes[key]; ok {
		delete(subs, sessionId)
		if len(subs) == 0 {
			delete(h.scopes, key)
		}
	}
	if scopes, ok := h.sessions[sessionId]; ok {
		delete(scopes, key)
	}
}

func (h *Hub) Subscribed(scope models.Scope, sessionId string) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	_, ok := h.scopes[scope.String()][sessionId]
	return ok
}

func (h *Hub) Publish(ctx context.Context, scope models.Scope, event models.Event, opts ...PublishOption) {
	options := collectPublishOptions(opts)
	packet := models.UnifiedCommandFromEvent(event).Marshal()
	h.enqueue(ctx, delivery{scope: scope.String(), packet: packet, excludeUser: options.excludeUser})
}

func (h *Hub) enqueue(ctx context.Context, item delivery) {
	h.lifecycle.RLock()
	defer h.lifecycle.RUnlock()
	if h.closed {
		return
	}

	worker := h.workers[xxhash.Sum64String(item.scope)%uint64(len(h.workers))]
	select {
	case worker <- item:
	case <-ctx.Done():
		fanoutDeliveries.WithLabelValues("dropped").Inc()
		log.Warn().Err(ctx.Err()).Str("scope", item.scope).Msg("Dropped an event before fan-out...")
	}
}

func (h *Hub) work(queue <-chan delivery) {
	defer h.wg.Done()
	for item := range queue {
		h.mu.RLock()
		targets := make([]Session, 0, len(h.scopes[item.scope]))
		for _, session := range h.scopes[item.scope] {
			if item.excludeUser != 0 && session.UserID() == item.excludeUser {
				continue
			}
			targets = append(targets, session)
		}
		h.mu.RUnlock()

		for _, session := range targets {
			if err := session.Deliver(item.packet); err != nil {
				fanoutDeliveries.WithLabelValues("dropped").Inc()
				log.Debug().Err(err).Str("session", session.ID()).Str("scope", item.scope).Msg("Skipped delivering to a session...")
				continue
			}
			fanoutDeliveries.WithLabelValues("ok").Inc()
		}
	}
}

// Close stops accepting events and waits until queued ones are delivered.
func (h *Hub) Close() {
	h.lifecycle.Lock()
	if h.closed {
		h.lifecycle.Unlock()
		return
	}
	h.closed = true
	for _, worker := range h.workers {
		close(worker)
	}
	h.lifecycle.Unlock()
	h.wg.Wait()
}
