package jobs

import (
	"context"
	"encoding/json"
	"fmt"
	"runtime/debug"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/robfig/cron/v3"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// Scheduler runs jobs on named queues, each drained by its own fixed pool of
// workers, and submits recurring jobs on a cron cadence.
//
// Queues, handlers and recurring jobs are registered before Start.
type Scheduler struct {
	log     *zap.SugaredLogger
	store   Store
	metrics *Metrics
	tracer  trace.Tracer
	cron    *cron.Cron

	mu        sync.RWMutex
	queues    map[string]*queue
	handlers  map[string]Handler
	recurring map[string]*recurring
	started   bool
	stop      context.CancelFunc
	abort     context.CancelFunc
	done      chan struct{}
}

// Option configures a Scheduler.
type Option func(*Scheduler)

// WithStore replaces the default in-memory job store.
func WithStore(st Store) Option { return func(s *Scheduler) { s.store = st } }

// WithMetrics records job metrics on m.
func WithMetrics(m *Metrics) Option { return func(s *Scheduler) { s.metrics = m } }

func New(log *zap.SugaredLogger, opts ...Option) *Scheduler {
	if log == nil {
		log = zap.NewNop().Sugar()
	}
	s := &Scheduler{
		log:       log,
		store:     NewMemoryStore(24 * time.Hour),
		tracer:    otel.Tracer("gatehouse/jobs"),
		queues:    map[string]*queue{},
		handlers:  map[string]Handler{},
		recurring: map[string]*recurring{},
	}
	cl := cronLogger{log: log}
	s.cron = cron.New(cron.WithLogger(cl), cron.WithChain(cron.Recover(cl)))
	for _, o := range opts {
		o(s)
	}
	return s
}

// AddQueue declares a queue served by exactly workers goroutines.
func (s *Scheduler) AddQueue(name string, workers int) error {
	if name == "" {
		return fmt.Errorf("jobs: queue without name")
	}
	if workers < 1 {
		return fmt.Errorf("jobs: queue %q needs at least one worker", name)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.started {
		return fmt.Errorf("jobs: queue %q added after start", name)
	}
	if _, dup := s.queues[name]; dup {
		return fmt.Errorf("jobs: queue %q already declared", name)
	}
	s.queues[name] = newQueue(name, workers)
	return nil
}

// Handle registers the handler for a job type, replacing any previous one.
func (s *Scheduler) Handle(jobType string, h Handler) {
	s.mu.Lock()
	s.handlers[jobType] = h
	s.mu.Unlock()
}

// Queues lists declared queues with their worker counts.
func (s *Scheduler) Queues() map[string]int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[string]int, len(s.queues))
	for n, q := range s.queues {
		out[n] = q.workers
	}
	return out
}

// Enqueue appends a job to the named queue. The payload is stored as JSON.
func (s *Scheduler) Enqueue(ctx context.Context, queueName, jobType string, payload any) (Job, error) {
	raw, err := encodePayload(payload)
	if err != nil {
		return Job{}, err
	}
	return s.enqueue(ctx, queueName, jobType, raw, "")
}

// Get returns the stored state of a job.
func (s *Scheduler) Get(ctx context.Context, id string) (Job, error) {
	return s.store.Get(ctx, id)
}

func (s *Scheduler) enqueue(ctx context.Context, queueName, jobType string, payload json.RawMessage, recurringID string) (Job, error) {
	s.mu.RLock()
	q, ok := s.queues[queueName]
	_, handled := s.handlers[jobType]
	s.mu.RUnlock()
	if !ok {
		return Job{}, fmt.Errorf("%w: %q", ErrUnknownQueue, queueName)
	}
	if !handled {
		return Job{}, fmt.Errorf("%w: %q", ErrUnknownType, jobType)
	}
	j := &Job{
		ID:          uuid.NewString(),
		Queue:       queueName,
		Type:        jobType,
		Payload:     payload,
		RecurringID: recurringID,
		Status:      StatusPending,
		EnqueuedAt:  time.Now().UTC(),
	}
	if err := s.store.Save(ctx, *j); err != nil {
		return Job{}, fmt.Errorf("jobs: save %s: %w", j.ID, err)
	}
	// Workers own j once it is pushed.
	out := *j
	q.push(j)
	s.metrics.setPending(queueName, q.len())
	s.log.Debugw("job enqueued", "queue", queueName, "type", jobType, "job_id", out.ID)
	return out, nil
}

// Start launches the worker pools and the cron runner. Cancelling ctx stops
// workers from taking new jobs, same as Shutdown.
func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.started {
		return fmt.Errorf("jobs: scheduler already started")
	}
	s.started = true

	runCtx, stop := context.WithCancel(ctx)
	jobCtx, abort := context.WithCancel(context.WithoutCancel(ctx))
	s.stop, s.abort = stop, abort
	s.done = make(chan struct{})

	g, gctx := errgroup.WithContext(runCtx)
	for _, q := range s.queues {
		for i := 0; i < q.workers; i++ {
			q := q
			g.Go(func() error {
				s.work(gctx, jobCtx, q)
				return nil
			})
		}
		s.log.Infow("queue started", "queue", q.name, "workers", q.workers)
	}
	s.cron.Start()
	go func() {
		_ = g.Wait()
		close(s.done)
	}()
	return nil
}

// Shutdown stops the cron runner and the workers, waiting for running jobs to
// finish. When ctx expires first, running jobs are cancelled and ctx.Err is returned.
// Jobs still pending are dropped.
func (s *Scheduler) Shutdown(ctx context.Context) error {
	s.mu.RLock()
	started, stop, abort, done := s.started, s.stop, s.abort, s.done
	s.mu.RUnlock()
	if !started {
		return nil
	}
	<-s.cron.Stop().Done()
	stop()
	defer abort()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *Scheduler) work(ctx, jobCtx context.Context, q *queue) {
	for {
		if ctx.Err() != nil {
			return
		}
		if j, ok := q.pop(); ok {
			s.metrics.setPending(q.name, q.len())
			s.run(jobCtx, j)
			continue
		}
		select {
		case <-ctx.Done():
			return
		case <-q.ready:
		}
	}
}

func (s *Scheduler) run(ctx context.Context, j *Job) {
	s.mu.RLock()
	h := s.handlers[j.Type]
	s.mu.RUnlock()

	ctx, span := s.tracer.Start(ctx, "job "+j.Type, trace.WithAttributes(
		attribute.String("job.id", j.ID),
		attribute.String("job.queue", j.Queue),
	))
	defer span.End()

	started := time.Now()
	j.Status = StatusRunning
	j.Attempts++
	j.StartedAt = started.UTC()
	s.save(ctx, j)

	err := s.invoke(ctx, h, j)
	j.FinishedAt = time.Now().UTC()
	if err != nil {
		j.Status = StatusFailed
		j.LastError = err.Error()
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		s.log.Warnw("job failed", "queue", j.Queue, "type", j.Type, "job_id", j.ID, "attempts", j.Attempts, "err", err)
	} else {
		j.Status = StatusSucceeded
		j.LastError = ""
		s.log.Debugw("job done", "queue", j.Queue, "type", j.Type, "job_id", j.ID)
	}
	s.save(ctx, j)
	s.metrics.finished(j, time.Since(started).Seconds())
	if j.RecurringID != "" {
		s.recurringDone(j.RecurringID)
	}
}

func (s *Scheduler) invoke(ctx context.Context, h Handler, j *Job) (err error) {
	defer func() {
		if rec := recover(); rec != nil {
			s.log.Errorw("job panic", "job_id", j.ID, "err", rec, "stack", string(debug.Stack()))
			err = fmt.Errorf("%w: panic: %v", ErrHandlerFailed, rec)
		}
	}()
	if h == nil {
		return fmt.Errorf("%w: %q", ErrUnknownType, j.Type)
	}
	view := *j
	if herr := h(ctx, &view); herr != nil {
		return fmt.Errorf("%w: %v", ErrHandlerFailed, herr)
	}
	return nil
}

func (s *Scheduler) save(ctx context.Context, j *Job) {
	if err := s.store.Save(ctx, *j); err != nil {
		s.log.Warnw("job state not saved", "job_id", j.ID, "status", j.Status, "err", err)
	}
}

func encodePayload(v any) (json.RawMessage, error) {
	switch p := v.(type) {
	case nil:
		return nil, nil
	case json.RawMessage:
		return p, nil
	case []byte:
		return json.RawMessage(p), nil
	}
	b, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("jobs: encode payload: %w", err)
	}
	return b, nil
}

// cronLogger routes cron's logr-style calls to zap.
type cronLogger struct{ log *zap.SugaredLogger }

func (l cronLogger) Info(msg string, kv ...any) { l.log.Debugw("cron: "+msg, kv...) }

func (l cronLogger) Error(err error, msg string, kv ...any) {
	l.log.Errorw("cron: "+msg, append(kv, "err", err)...)
}
