package usertokens

import (
	"context"
	"encoding/json"
	"os"
	"sync"

	"go.uber.org/zap"
)

// MemoryStore is an in-process user directory for development and tests.
type MemoryStore struct {
	mu      sync.RWMutex
	byToken map[string]Record
}

// NewMemoryStore returns a store seeded with records.
func NewMemoryStore(records ...Record) *MemoryStore {
	m := &MemoryStore{byToken: map[string]Record{}}
	for _, r := range records {
		m.Put(r)
	}
	return m
}

// NewMemoryStoreFromEnv seeds from USER_TOKEN_SEED_JSON:
// [{"token":"...","user_id":"...","name":"...","role":"Writer","projects":["docs"]}]
func NewMemoryStoreFromEnv(log *zap.SugaredLogger) *MemoryStore {
	m := NewMemoryStore()
	seed := os.Getenv("USER_TOKEN_SEED_JSON")
	if seed == "" {
		return m
	}
	var entries []struct {
		Token string `json:"token"`
		Record
	}
	if err := json.Unmarshal([]byte(seed), &entries); err != nil {
		log.Warnw("user token seed", "err", err)
		return m
	}
	for _, e := range entries {
		r := e.Record
		r.Token = e.Token
		m.Put(r)
	}
	log.Infow("user token seed loaded", "count", len(entries))
	return m
}

func (m *MemoryStore) Put(r Record) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.byToken[r.Token] = r
}

func (m *MemoryStore) Lookup(_ context.Context, token string) (Record, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if r, ok := m.byToken[token]; ok {
		return r, nil
	}
	return Record{}, ErrNotFound
}
