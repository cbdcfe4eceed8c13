package cache

import (
	"context"
	"fmt"
	"time"

	"github.com/eko/gocache/lib/v4/store"
	gocache_store "github.com/eko/gocache/store/go_cache/v4"
	redis_store "github.com/eko/gocache/store/redis/v4"
	gocache "github.com/patrickmn/go-cache"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/viper"
)

// S is the store backing every cache manager in the service.
var S store.StoreInterface

// R is the shared redis client, nil when the service runs without redis.
var R *redis.Client

func NewCache() error {
	ttl := viper.GetDuration("cache.ttl")
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}

	addr := viper.GetString("cache.redis.addr")
	if len(addr) == 0 {
		S = NewMemoryStore(ttl)
		return nil
	}

	R = redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: viper.GetString("cache.redis.password"),
		DB:       viper.GetInt("cache.redis.db"),
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := R.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("unable to reach redis at %s: %v", addr, err)
	}

	S = redis_store.NewRedis(R, store.WithExpiration(ttl))
	return nil
}

// NewMemoryStore is the single-process fallback, also used by tests.
func NewMemoryStore(ttl time.Duration) store.StoreInterface {
	client := gocache.New(ttl, 2*ttl)
	return gocache_store.NewGoCache(client, store.WithExpiration(ttl))
}
