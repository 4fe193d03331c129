package jobs

import (
	"context"
	"encoding/json"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/robfig/cron/v3"
)

type recurring struct {
	id       string
	queue    string
	jobType  string
	payload  json.RawMessage
	schedule cron.Schedule
	entry    cron.EntryID
	inflight atomic.Bool
}

// AddRecurring submits a job of jobType to queueName on every tick of the
// standard five-field cron spec. A tick is skipped while the previous
// submission for the same id is still pending or running.
func (s *Scheduler) AddRecurring(id, spec, queueName, jobType string, payload any) error {
	sched, err := cron.ParseStandard(spec)
	if err != nil {
		return fmt.Errorf("jobs: recurring %q: cron %q: %w", id, spec, err)
	}
	raw, err := encodePayload(payload)
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, dup := s.recurring[id]; dup {
		return fmt.Errorf("jobs: recurring %q already registered", id)
	}
	if _, ok := s.queues[queueName]; !ok {
		return fmt.Errorf("%w: %q", ErrUnknownQueue, queueName)
	}
	if _, ok := s.handlers[jobType]; !ok {
		return fmt.Errorf("%w: %q", ErrUnknownType, jobType)
	}
	r := &recurring{id: id, queue: queueName, jobType: jobType, payload: raw, schedule: sched}
	r.entry = s.cron.Schedule(sched, cron.FuncJob(func() { _, _, _ = s.fire(r) }))
	s.recurring[id] = r
	s.log.Infow("recurring job registered", "id", id, "cron", spec, "queue", queueName)
	return nil
}

// Trigger submits the recurring job now, outside its cadence. The bool is false
// when the tick was skipped because a previous run is still in flight.
func (s *Scheduler) Trigger(id string) (Job, bool, error) {
	s.mu.RLock()
	r, ok := s.recurring[id]
	s.mu.RUnlock()
	if !ok {
		return Job{}, false, fmt.Errorf("jobs: unknown recurring job %q", id)
	}
	return s.fire(r)
}

// NextRun reports when the recurring job is next due.
func (s *Scheduler) NextRun(id string) (time.Time, bool) {
	s.mu.RLock()
	r, ok := s.recurring[id]
	s.mu.RUnlock()
	if !ok {
		return time.Time{}, false
	}
	return r.schedule.Next(time.Now()), true
}

func (s *Scheduler) fire(r *recurring) (Job, bool, error) {
	if !r.inflight.CompareAndSwap(false, true) {
		s.metrics.skip(r.id)
		s.log.Infow("recurring tick skipped, previous run in flight", "id", r.id)
		return Job{}, false, nil
	}
	j, err := s.enqueue(context.Background(), r.queue, r.jobType, r.payload, r.id)
	if err != nil {
		r.inflight.Store(false)
		s.log.Errorw("recurring submit failed", "id", r.id, "err", err)
		return Job{}, false, err
	}
	return j, true, nil
}

func (s *Scheduler) recurringDone(id string) {
	s.mu.RLock()
	r, ok := s.recurring[id]
	s.mu.RUnlock()
	if ok {
		r.inflight.Store(false)
	}
}
