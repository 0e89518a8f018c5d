package customer

import (
	"context"
	"encoding/hex"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"
)

const tokenCachePrefix = "customer:token:v1:"

// CachedResolver fronts a Resolver with Redis. Customers are immutable once
// initialized, so cached identities never go stale. Failed lookups are not
// cached, and Redis errors fall through to the wrapped resolver.
type CachedResolver struct {
	next   Resolver
	cache  *redis.Client
	ttl    time.Duration
	logger *slog.Logger
}

// NewCachedResolver wraps next with a Redis read-through cache.
func NewCachedResolver(next Resolver, cache *redis.Client, ttl time.Duration, logger *slog.Logger) *CachedResolver {
	return &CachedResolver{next: next, cache: cache, ttl: ttl, logger: logger}
}

// Resolve returns the cached identity or resolves and caches it.
func (r *CachedResolver) Resolve(ctx context.Context, token string) (Identity, error) {
	if token == "" || r.cache == nil {
		return r.next.Resolve(ctx, token)
	}
	key := tokenCachePrefix + hex.EncodeToString(Digest(token))

	cached, err := r.cache.Get(ctx, key).Bytes()
	switch {
	case err == nil:
		var id Identity
		if err := json.Unmarshal(cached, &id); err == nil {
			return id, nil
		}
		r.logger.Warn("discarding undecodable cached identity", slog.String("key", key))
	case !errors.Is(err, redis.Nil):
		r.logger.Warn("token cache lookup failed", slog.Any("error", err))
	}

	id, err := r.next.Resolve(ctx, token)
	if err != nil {
		return Identity{}, err
	}

	payload, err := json.Marshal(id)
	if err == nil {
		err = r.cache.Set(ctx, key, payload, r.ttl).Err()
	}
	if err != nil {
		r.logger.Warn("token cache store failed", slog.Any("error", err))
	}
	return id, nil
}
