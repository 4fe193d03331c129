package jobs

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// Store persists job records so their state can be queried after the fact.
type Store interface {
	Save(ctx context.Context, j Job) error
	Get(ctx context.Context, id string) (Job, error)
}

// MemoryStore keeps job records in process. Finished records older than the
// retention are swept on write.
type MemoryStore struct {
	retention time.Duration
	now       func() time.Time

	mu   sync.RWMutex
	jobs map[string]Job
}

func NewMemoryStore(retention time.Duration) *MemoryStore {
	return &MemoryStore{retention: retention, now: time.Now, jobs: map[string]Job{}}
}

func (m *MemoryStore) Save(_ context.Context, j Job) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.jobs[j.ID] = j
	if m.retention > 0 {
		cutoff := m.now().Add(-m.retention)
		for id, old := range m.jobs {
			if old.Done() && old.FinishedAt.Before(cutoff) {
				delete(m.jobs, id)
			}
		}
	}
	return nil
}

func (m *MemoryStore) Get(_ context.Context, id string) (Job, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	j, ok := m.jobs[id]
	if !ok {
		return Job{}, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return j, nil
}
