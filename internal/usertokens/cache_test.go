package usertokens

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type countingStore struct {
	calls atomic.Int32
	rec   Record
	err   error
}

func (c *countingStore) Lookup(_ context.Context, token string) (Record, error) {
	c.calls.Add(1)
	if c.err != nil {
		return Record{}, c.err
	}
	r := c.rec
	r.Token = token
	return r, nil
}

func newRedis(t *testing.T) *redis.Client {
	t.Helper()
	mr := miniredis.RunT(t)
	return redis.NewClient(&redis.Options{Addr: mr.Addr()})
}

func TestCachedStoreServesHitsFromRedis(t *testing.T) {
	inner := &countingStore{rec: Record{UserID: "u-1", Role: "Writer", Projects: []string{"docs"}}}
	store := NewCachedStore(inner, newRedis(t), time.Minute, zap.NewNop().Sugar())

	for i := 0; i < 3; i++ {
		r, err := store.Lookup(context.Background(), "tok")
		require.NoError(t, err)
		assert.Equal(t, "u-1", r.UserID)
		assert.Equal(t, []string{"docs"}, r.Projects)
		assert.Equal(t, "tok", r.Token)
	}
	assert.EqualValues(t, 1, inner.calls.Load())
}

func TestCachedStoreDoesNotCacheFailures(t *testing.T) {
	for _, failure := range []error{ErrNotFound, errors.New("directory down")} {
		inner := &countingStore{err: failure}
		store := NewCachedStore(inner, newRedis(t), time.Minute, zap.NewNop().Sugar())

		for i := 0; i < 2; i++ {
			_, err := store.Lookup(context.Background(), "tok")
			require.ErrorIs(t, err, failure)
		}
		assert.EqualValues(t, 2, inner.calls.Load())
	}
}

func TestNewCachedStoreWithoutRedisReturnsInner(t *testing.T) {
	inner := NewMemoryStore()
	assert.Same(t, inner, NewCachedStore(inner, nil, time.Minute, nil))
}

func TestMemoryStore(t *testing.T) {
	s := NewMemoryStore(Record{Token: "abc", UserID: "u-2"})

	r, err := s.Lookup(context.Background(), "abc")
	require.NoError(t, err)
	assert.Equal(t, "u-2", r.UserID)

	_, err = s.Lookup(context.Background(), "nope")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestMemoryStoreFromEnv(t *testing.T) {
	t.Setenv("USER_TOKEN_SEED_JSON", `[{"token":"t1","user_id":"u-9","role":"Administrator","projects":["a","b"]}]`)
	s := NewMemoryStoreFromEnv(zap.NewNop().Sugar())

	r, err := s.Lookup(context.Background(), "t1")
	require.NoError(t, err)
	assert.Equal(t, "u-9", r.UserID)
	assert.Equal(t, "Administrator", r.Role)
	assert.Equal(t, []string{"a", "b"}, r.Projects)
}

func TestRecordExpired(t *testing.T) {
	now := time.Now()
	assert.False(t, Record{}.Expired(now))
	assert.True(t, Record{ExpiresAt: now.Add(-time.Second)}.Expired(now))
	assert.False(t, Record{ExpiresAt: now.Add(time.Hour)}.Expired(now))
}
