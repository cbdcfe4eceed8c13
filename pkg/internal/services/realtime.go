package services

import (
	"context"
	"time"

	localCache "git.solsynth.dev/hypernet/relay/pkg/internal/cache"
	"git.solsynth.dev/hypernet/relay/pkg/internal/models"
	"github.com/rs/zerolog/log"
	"github.com/spf13/viper"
)

var (
	Oracle MembershipOracle = &CachedMembership{}
	Bus    Broadcaster      = NopBroadcaster{}

	LocalHub      *Hub
	Typing        *TypingTracker
	SessionBuffer = 64
)

// NopBroadcaster drops every event. It is the default until SetupRealtime
// runs, which keeps the store operations usable on their own.
type NopBroadcaster struct{}

func (NopBroadcaster) Publish(context.Context, models.Scope, models.Event, ...PublishOption) {}

// SubscriptionRevoker is implemented by broadcasters able to drop a user's
// sessions from a scope.
type SubscriptionRevoker interface {
	RevokeUser(scope models.Scope, userId uint)
}

// revokeSubscriptions drops the user's live subscriptions. A typing state
// the user still holds in the scope is left to its owning connection, which
// fails authorization on the next stop or lets it expire.
func revokeSubscriptions(ctx context.Context, scope models.Scope, userId uint) {
	if revoker, ok := Bus.(SubscriptionRevoker); ok {
		revoker.RevokeUser(scope, userId)
		log.Debug().Str("scope", scope.String()).Uint("user", userId).Msg("Revoked subscriptions after losing membership...")
	}
}

// SetupRealtime builds the fan-out chain from the config. With redis
// configured the hub is fed through a RedisRelay so all replicas share
// scopes.
func SetupRealtime(ctx context.Context) {
	if attempts := viper.GetInt("sequencer.max_attempts"); attempts > 0 {
		SequencerMaxAttempts = attempts
	}
	if buffer := viper.GetInt("realtime.session_buffer"); buffer > 0 {
		SessionBuffer = buffer
	}
	if ttl := viper.GetDuration("cache.ttl"); ttl > 0 {
		if cached, ok := Oracle.(*CachedMembership); ok {
			cached.TTL = ttl
		}
	}

	LocalHub = NewHub(viper.GetInt("realtime.fanout_workers"), viper.GetInt("realtime.session_buffer")*4)
	Bus = LocalHub

	if localCache.R != nil {
		relay := NewRedisRelay(localCache.R, viper.GetString("realtime.relay_channel"), LocalHub)
		Bus = relay
		go relay.Serve(ctx)
		select {
		case <-relay.Ready():
			log.Info().Msg("Realtime relay is listening on redis...")
		case <-time.After(5 * time.Second):
			log.Warn().Msg("Realtime relay did not confirm its subscription in time...")
		}
	}

	Typing = NewTypingTracker(Oracle, Bus, TypingOptions{
		TTL:   viper.GetDuration("realtime.typing_ttl"),
		Rate:  viper.GetFloat64("realtime.typing_rate"),
		Burst: viper.GetInt("realtime.typing_burst"),
	})
}
