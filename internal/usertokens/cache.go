package usertokens

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// cachedStore keeps successful lookups in Redis for ttl.
// Misses and upstream errors are never cached, so an outage cannot turn into a lasting denial.
type cachedStore struct {
	next Store
	rdb  *redis.Client
	ttl  time.Duration
	log  *zap.SugaredLogger
}

func NewCachedStore(next Store, rdb *redis.Client, ttl time.Duration, log *zap.SugaredLogger) Store {
	if rdb == nil || ttl <= 0 {
		return next
	}
	return &cachedStore{next: next, rdb: rdb, ttl: ttl, log: log}
}

func cacheKey(token string) string { return "usertoken:" + HashToken(token) }

func (c *cachedStore) Lookup(ctx context.Context, token string) (Record, error) {
	key := cacheKey(token)
	if b, err := c.rdb.Get(ctx, key).Bytes(); err == nil {
		var r Record
		if json.Unmarshal(b, &r) == nil {
			r.Token = token
			return r, nil
		}
	} else if !errors.Is(err, redis.Nil) {
		c.log.Warnw("user token cache read", "err", err)
	}
	r, err := c.next.Lookup(ctx, token)
	if err != nil {
		return Record{}, err
	}
	ttl := c.ttl
	if !r.ExpiresAt.IsZero() {
		if left := time.Until(r.ExpiresAt); left < ttl {
			ttl = left
		}
	}
	if ttl > 0 {
		if b, err := json.Marshal(r); err == nil {
			if err := c.rdb.Set(ctx, key, b, ttl).Err(); err != nil {
				c.log.Warnw("user token cache write", "err", err)
			}
		}
	}
	return r, nil
}
