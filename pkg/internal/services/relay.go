package services

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"git.solsynth.dev/hypernet/relay/pkg/internal/models"
	jsoniter "github.com/json-iterator/go"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
)

type relayEnvelope struct {
	Scope       string              `json:"scope"`
	Kind        string              `json:"kind,omitempty"`
	Payload     jsoniter.RawMessage `json:"payload,omitempty"`
	ExcludeUser uint                `json:"exclude_user,omitempty"`
	RevokeUser  uint                `json:"revoke_user,omitempty"`
}

// RedisRelay shares fan-out between replicas. Publishing goes through one
// redis channel; every replica, this one included, receives it in Run and
// hands it to its local Hub. Sessions connected to any replica therefore
// see the same per-scope order.
type RedisRelay struct {
	rdb     *redis.Client
	channel string
	local   *Hub

	ready     chan struct{}
	readyOnce sync.Once
	listening atomic.Bool
}

// Bounds of the wait between relay resubscriptions.
var (
	RelayRetryMinBackoff = 500 * time.Millisecond
	RelayRetryMaxBackoff = 30 * time.Second
)

func NewRedisRelay(rdb *redis.Client, channel string, local *Hub) *RedisRelay {
	if len(channel) == 0 {
		channel = "relay.events"
	}
	return &RedisRelay{
		rdb:     rdb,
		channel: channel,
		local:   local,
		ready:   make(chan struct{}),
	}
}

// Ready is closed once the subscription is confirmed by redis.
func (v *RedisRelay) Ready() <-chan struct{} {
	return v.ready
}

// Listening reports whether Run currently holds a confirmed subscription.
func (v *RedisRelay) Listening() bool {
	return v.listening.Load()
}

func (v *RedisRelay) Publish(ctx context.Context, scope models.Scope, event models.Event, opts ...PublishOption) {
	options := collectPublishOptions(opts)
	payload, err := jsoniter.Marshal(event)
	if err != nil {
		log.Error().Err(err).Str("kind", event.Kind()).Msg("Unable to encode event for relay...")
		return
	}

	envelope := relayEnvelope{
		Scope:       scope.String(),
		Kind:        event.Kind(),
		Payload:     payload,
		ExcludeUser: options.excludeUser,
	}
	// Local sessions only hear the event back through redis while this
	// replica is subscribed; otherwise they get it directly.
	if !v.deliveredLocally(ctx, envelope) {
		v.local.Publish(ctx, scope, event, opts...)
	}
}

func (v *RedisRelay) RevokeUser(scope models.Scope, userId uint) {
	envelope := relayEnvelope{Scope: scope.String(), RevokeUser: userId}
	if !v.deliveredLocally(context.Background(), envelope) {
		v.local.RevokeUser(scope, userId)
	}
}

// deliveredLocally sends the envelope and reports whether this replica's
// own subscription is going to receive it.
func (v *RedisRelay) deliveredLocally(ctx context.Context, envelope relayEnvelope) bool {
	listening := v.Listening()
	receivers, err := v.send(ctx, envelope)
	switch {
	case err != nil:
		log.Warn().Err(err).Str("scope", envelope.Scope).Msg("Unable to relay, delivering locally only...")
		return false
	case !listening:
		log.Debug().Str("scope", envelope.Scope).Msg("Relay is not subscribed, delivering locally...")
		return false
	case receivers == 0:
		log.Warn().Str("scope", envelope.Scope).Msg("Relay had no receivers, delivering locally...")
		return false
	}
	return true
}

func (v *RedisRelay) send(ctx context.Context, envelope relayEnvelope) (int64, error) {
	raw, err := jsoniter.Marshal(envelope)
	if err != nil {
		return 0, err
	}
	return v.rdb.Publish(ctx, v.channel, raw).Result()
}

// Run consumes the relay channel until ctx is done.
func (v *RedisRelay) Run(ctx context.Context) error {
	sub := v.rdb.Subscribe(ctx, v.channel)
	defer sub.Close()

	if _, err := sub.Receive(ctx); err != nil {
		return err
	}
	v.listening.Store(true)
	defer v.listening.Store(false)
	v.readyOnce.Do(func() { close(v.ready) })

	ch := sub.Channel()
	for {
		select {
		case <-ctx.Done():
			return nil
		case msg, ok := <-ch:
			if !ok {
				return nil
			}
			v.dispatch(ctx, []byte(msg.Payload))
		}
	}
}

// Serve keeps Run alive until ctx is done, resubscribing with a doubling
// backoff whenever the subscription fails or drops.
func (v *RedisRelay) Serve(ctx context.Context) {
	backoff := RelayRetryMinBackoff
	for {
		started := time.Now()
		err := v.Run(ctx)
		if ctx.Err() != nil {
			return
		}
		if time.Since(started) > RelayRetryMaxBackoff {
			backoff = RelayRetryMinBackoff
		}
		log.Warn().Err(err).Dur("backoff", backoff).Msg("Realtime relay lost its subscription, retrying...")

		timer := time.NewTimer(backoff)
		select {
		case <-ctx.Done():
			timer.Stop()
			return
		case <-timer.C:
		}
		backoff = min(backoff*2, RelayRetryMaxBackoff)
	}
}

func (v *RedisRelay) dispatch(ctx context.Context, raw []byte) {
	var envelope relayEnvelope
	if err := jsoniter.Unmarshal(raw, &envelope); err != nil {
		log.Warn().Err(err).Msg("Dropped a malformed relay envelope...")
		return
	}
	scope, err := models.ParseScope(envelope.Scope)
	if err != nil {
		log.Warn().Err(err).Msg("Dropped a relay envelope with bad scope...")
		return
	}

	if envelope.RevokeUser != 0 {
		v.local.RevokeUser(scope, envelope.RevokeUser)
		return
	}

	event, err := models.DecodeEvent(envelope.Kind, envelope.Payload)
	if err != nil {
		log.Warn().Err(err).Msg("Dropped an undecodable relay event...")
		return
	}
	v.local.Publish(ctx, scope, event, ExcludeUser(envelope.ExcludeUser))
}
