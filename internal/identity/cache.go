package identity

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/npezzotti/go-gigchat/internal/types"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"golang.org/x/sync/singleflight"
)

const (
	defaultCachePrefix = "gigchat:user:"
	defaultCacheTTL    = 5 * time.Minute
)

// CachedDirectory is a cache-aside wrapper around another Directory.
// Concurrent misses for the same user share a single upstream lookup.
// Redis failures fall through to the upstream directory.
type CachedDirectory struct {
	next   Directory
	client *redis.Client
	prefix string
	ttl    time.Duration
	group  singleflight.Group
	log    zerolog.Logger
}

func NewCachedDirectory(next Directory, client *redis.Client, logger zerolog.Logger) *CachedDirectory {
	return &CachedDirectory{
		next:   next,
		client: client,
		prefix: defaultCachePrefix,
		ttl:    defaultCacheTTL,
		log:    logger,
	}
}

func (c *CachedDirectory) key(userId string) string {
	return c.prefix + userId
}

func (c *CachedDirectory) Lookup(ctx context.Context, userId string) (types.User, error) {
	data, err := c.client.Get(ctx, c.key(userId)).Bytes()
	switch {
	case err == nil:
		var u types.User
		if err := json.Unmarshal(data, &u); err == nil {
			return u, nil
		}
		c.log.Warn().Str("user_id", userId).Msg("discarding unreadable cache entry")
	case !errors.Is(err, redis.Nil):
		c.log.Warn().Err(err).Str("user_id", userId).Msg("identity cache get failed")
	}

	v, err, _ := c.group.Do(userId, func() (any, error) {
		u, err := c.next.Lookup(ctx, userId)
		if err != nil {
			return types.User{}, err
		}

		if err := c.set(ctx, u); err != nil {
			c.log.Warn().Err(err).Str("user_id", userId).Msg("identity cache set failed")
		}
		return u, nil
	})
	if err != nil {
		return types.User{}, err
	}

	return v.(types.User), nil
}

func (c *CachedDirectory) set(ctx context.Context, u types.User) error {
	data, err := json.Marshal(u)
	if err != nil {
		return fmt.Errorf("marshal user: %w", err)
	}

	return c.client.Set(ctx, c.key(u.Id), data, c.ttl).Err()
}

