package services

import (
	"context"
	"sync"
	"time"

	"git.solsynth.dev/hypernet/relay/pkg/internal/models"
	"github.com/rs/zerolog/log"
	"golang.org/x/time/rate"
)

// TypingState is the one typing indicator a connection may hold.
type TypingState struct {
	ConnectionID string
	Target       models.Scope
	UserID       uint
	StartedAt    time.Time
}

type TypingOptions struct {
	// TTL is how long a state lives without a refreshing Start.
	TTL time.Duration
	// Rate and Burst throttle Start per connection.
	Rate  float64
	Burst int
	Now   func() time.Time
}

type typingSlot struct {
	state   *TypingState
	limiter *rate.Limiter
}

// TypingTracker keeps typing states in an arena indexed by connection id.
// A slot is only ever changed through calls made by the goroutine owning
// that connection, the lock guards the arena itself.
type TypingTracker struct {
	oracle MembershipOracle
	bus    Broadcaster
	opts   TypingOptions

	mu    sync.Mutex
	slots map[string]*typingSlot
}

func NewTypingTracker(oracle MembershipOracle, bus Broadcaster, opts TypingOptions) *TypingTracker {
	if opts.TTL <= 0 {
		opts.TTL = 6 * time.Second
	}
	if opts.Rate <= 0 {
		opts.Rate = 2
	}
	if opts.Burst <= 0 {
		opts.Burst = 5
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &TypingTracker{
		oracle: oracle,
		bus:    bus,
		opts:   opts,
		slots:  make(map[string]*typingSlot),
	}
}

func (v *TypingTracker) TTL() time.Duration {
	return v.opts.TTL
}

func (v *TypingTracker) slot(connId string) *typingSlot {
	v.mu.Lock()
	defer v.mu.Unlock()
	slot, ok := v.slots[connId]
	if !ok {
		slot = &typingSlot{limiter: rate.NewLimiter(rate.Limit(v.opts.Rate), v.opts.Burst)}
		v.slots[connId] = slot
	}
	return slot
}

func (v *TypingTracker) swap(connId string, next *TypingState) *TypingState {
	v.mu.Lock()
	defer v.mu.Unlock()
	slot, ok := v.slots[connId]
	if !ok {
		return nil
	}
	prev := slot.state
	slot.state = next
	return prev
}

// Active returns a copy of the connection's current state.
func (v *TypingTracker) Active(connId string) (TypingState, bool) {
	v.mu.Lock()
	defer v.mu.Unlock()
	slot, ok := v.slots[connId]
	if !ok || slot.state == nil {
		return TypingState{}, false
	}
	return *slot.state, true
}

// Start marks the user typing in target. Authorization happens first, a
// refused start leaves the previous state and broadcasts nothing.
func (v *TypingTracker) Start(ctx context.Context, connId string, target models.Scope, userId uint) error {
	if !target.IsMessageScope() {
		return ErrInvalidScope
	}

	if err := Authorize(ctx, v.oracle, userId, target); err != nil {
		typingTransitions.WithLabelValues("denied").Inc()
		return err
	}

	// Only authorized starts spend tokens.
	slot := v.slot(connId)
	if !slot.limiter.Allow() {
		typingTransitions.WithLabelValues("throttled").Inc()
		return ErrTypingThrottled
	}

	prev := v.swap(connId, &TypingState{
		ConnectionID: connId,
		Target:       target,
		UserID:       userId,
		StartedAt:    v.opts.Now(),
	})
	if prev != nil && prev.Target != target {
		v.announceStop(ctx, *prev)
	}

	typingTransitions.WithLabelValues("start").Inc()
	v.bus.Publish(ctx, target, models.TypingStart{
		TargetType: target.Type,
		TargetID:   target.ID,
		UserID:     userId,
	}, ExcludeUser(userId))
	return nil
}

// Stop clears the connection's state and broadcasts the stop to the
// recorded target. If the user lost access meanwhile the stop still goes
// out, since the others saw the start, and the authorization error is
// returned.
func (v *TypingTracker) Stop(ctx context.Context, connId string) error {
	current, ok := v.Active(connId)
	if !ok {
		return nil
	}

	err := Authorize(ctx, v.oracle, current.UserID, current.Target)
	v.swap(connId, nil)
	v.announceStop(ctx, current)
	if err != nil {
		typingTransitions.WithLabelValues("denied").Inc()
		return err
	}
	typingTransitions.WithLabelValues("stop").Inc()
	return nil
}

// Expire clears a state older than the TTL and reports whether it did.
func (v *TypingTracker) Expire(ctx context.Context, connId string) bool {
	current, ok := v.Active(connId)
	if !ok || v.opts.Now().Sub(current.StartedAt) < v.opts.TTL {
		return false
	}

	v.swap(connId, nil)
	typingTransitions.WithLabelValues("expire").Inc()
	v.announceStop(ctx, current)
	return true
}

// Disconnect frees the connection's slot. An active state yields exactly
// one stop broadcast, without consulting the oracle.
func (v *TypingTracker) Disconnect(ctx context.Context, connId string) {
	v.mu.Lock()
	slot, ok := v.slots[connId]
	delete(v.slots, connId)
	v.mu.Unlock()

	if !ok || slot.state == nil {
		return
	}
	typingTransitions.WithLabelValues("disconnect").Inc()
	log.Debug().Str("connection", connId).Str("target", slot.state.Target.String()).Msg("Cleared typing state of a closed connection...")
	v.announceStop(ctx, *slot.state)
}

func (v *TypingTracker) announceStop(ctx context.Context, state TypingState) {
	v.bus.Publish(ctx, state.Target, models.TypingStop{
		TargetType: state.Target.Type,
		TargetID:   state.Target.ID,
		UserID:     state.UserID,
	}, ExcludeUser(state.UserID))
}
