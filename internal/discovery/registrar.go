package discovery

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"gatehouse/internal/jobs"
)

// JobType is the recurring registration job.
const JobType = "register-service"

// State of the self-registration lifecycle.
type State string

const (
	StateUnregistered State = "unregistered"
	StateRegistering  State = "registering"
	StateRegistered   State = "registered"
	StateFailed       State = "failed"
)

// Status is a snapshot of the registrar.
type Status struct {
	State       State      `json:"state"`
	Descriptor  Descriptor `json:"descriptor"`
	LastAttempt time.Time  `json:"lastAttempt,omitempty"`
	LastSuccess time.Time  `json:"lastSuccess,omitempty"`
	LastError   string     `json:"lastError,omitempty"`
	Attempts    int        `json:"attempts"`
}

// Registrar keeps this instance registered. Each tick re-registers; a failed
// tick leaves the state Failed until the next one.
type Registrar struct {
	log      *zap.SugaredLogger
	registry Registry
	desc     Descriptor

	mu     sync.RWMutex
	status Status
}

func NewRegistrar(log *zap.SugaredLogger, registry Registry, d Descriptor) *Registrar {
	if log == nil {
		log = zap.NewNop().Sugar()
	}
	return &Registrar{
		log:      log,
		registry: registry,
		desc:     d,
		status:   Status{State: StateUnregistered, Descriptor: d},
	}
}

// Tick performs one registration attempt and returns its error.
func (r *Registrar) Tick(ctx context.Context) error {
	now := time.Now().UTC()
	r.mu.Lock()
	r.status.State = StateRegistering
	r.status.LastAttempt = now
	r.status.Attempts++
	r.mu.Unlock()

	err := r.registry.Register(ctx, r.desc)

	r.mu.Lock()
	defer r.mu.Unlock()
	if err != nil {
		r.status.State = StateFailed
		r.status.LastError = err.Error()
		return err
	}
	r.status.State = StateRegistered
	r.status.LastSuccess = time.Now().UTC()
	r.status.LastError = ""
	return nil
}

// Status returns the current snapshot.
func (r *Registrar) Status() Status {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s := r.status
	s.Descriptor.Tags = append([]string(nil), r.status.Descriptor.Tags...)
	return s
}

// Job is the scheduler handler for JobType. Registration failures are logged
// and swallowed so the recurring cadence is unaffected.
func (r *Registrar) Job() jobs.Handler {
	return func(ctx context.Context, _ *jobs.Job) error {
		if err := r.Tick(ctx); err != nil {
			r.log.Warnw("service registration failed", "id", r.desc.ID, "err", err)
			return nil
		}
		r.log.Debugw("service registered", "id", r.desc.ID, "address", r.desc.Address)
		return nil
	}
}
