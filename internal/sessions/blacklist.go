package sessions

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
)

// Blacklist stores revoked access tokens in Redis until their natural
// expiry. Access tokens are otherwise stateless, so without this a logout
// leaves the last access token usable for the remainder of its TTL.
//
// A nil *Blacklist (or one built with a nil client) disables the feature:
// Add is a no-op and Contains reports false.
type Blacklist struct {
	client *redis.Client
	prefix string
}

func NewBlacklist(client *redis.Client) *Blacklist {
	return &Blacklist{client: client, prefix: "blacklist:access:"}
}

func (b *Blacklist) Add(ctx context.Context, token string, ttl time.Duration) error {
	if b == nil || b.client == nil || ttl <= 0 {
		return nil
	}
	return b.client.Set(ctx, b.prefix+token, "1", ttl).Err()
}

func (b *Blacklist) Contains(ctx context.Context, token string) (bool, error) {
	if b == nil || b.client == nil {
		return false, nil
	}
	n, err := b.client.Exists(ctx, b.prefix+token).Result()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}
