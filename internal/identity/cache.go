package identity

import (
	"context"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"
)

// CachedResolver fronts another resolver with a short-lived Redis cache.
// Cache failures degrade to a direct lookup, never to an error.
type CachedResolver struct {
	next   Resolver
	client *redis.Client
	ttl    time.Duration
	logger *slog.Logger
}

// NewCachedResolver wraps next with a read-through cache.
func NewCachedResolver(next Resolver, client *redis.Client, ttl time.Duration, logger *slog.Logger) *CachedResolver {
	return &CachedResolver{next: next, client: client, ttl: ttl, logger: logger}
}

// AccountType returns the cached account type or resolves and stores it.
// Unknown identities are not cached: a profile created a moment later must be
// visible on the next check.
func (r *CachedResolver) AccountType(ctx context.Context, userID string) (AccountType, error) {
	key := "identity:tipo:" + userID
	if r.client != nil {
		cached, err := r.client.Get(ctx, key).Result()
		if err == nil && cached != "" {
			return AccountType(cached), nil
		}
		if err != nil && err != redis.Nil && r.logger != nil {
			r.logger.Warn("identity cache read", slog.Any("error", err))
		}
	}

	account, err := r.next.AccountType(ctx, userID)
	if err != nil {
		return "", err
	}
	if r.client != nil {
		if err := r.client.Set(ctx, key, string(account), r.ttl).Err(); err != nil && r.logger != nil {
			r.logger.Warn("identity cache write", slog.Any("error", err))
		}
	}
	return account, nil
}
