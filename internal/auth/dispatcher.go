package auth

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"
)

// Dispatcher selects a scheme by fixed precedence and verifies the request credential with it.
type Dispatcher struct {
	log     *zap.SugaredLogger
	metrics *Metrics
	timeout time.Duration
	schemes []Scheme
}

// Option configures a Dispatcher.
type Option func(*Dispatcher)

// WithTimeout bounds every scheme verification. Zero disables the bound.
func WithTimeout(d time.Duration) Option { return func(x *Dispatcher) { x.timeout = d } }

// WithMetrics records outcomes on m.
func WithMetrics(m *Metrics) Option { return func(x *Dispatcher) { x.metrics = m } }

// NewDispatcher orders schemes by precedence (names, case-insensitive, duplicates ignored).
// Registered schemes missing from precedence are appended in registration order.
// An unknown name in precedence is a configuration error.
func NewDispatcher(log *zap.SugaredLogger, precedence []string, schemes []Scheme, opts ...Option) (*Dispatcher, error) {
	byName := make(map[string]Scheme, len(schemes))
	for _, s := range schemes {
		byName[strings.ToLower(s.Name())] = s
	}
	d := &Dispatcher{log: log}
	used := map[string]bool{}
	for _, name := range precedence {
		key := strings.ToLower(strings.TrimSpace(name))
		if key == "" || used[key] {
			continue
		}
		s, ok := byName[key]
		if !ok {
			return nil, fmt.Errorf("auth: precedence names unknown scheme %q", name)
		}
		used[key] = true
		d.schemes = append(d.schemes, s)
	}
	for _, s := range schemes {
		if key := strings.ToLower(s.Name()); !used[key] {
			used[key] = true
			d.schemes = append(d.schemes, s)
		}
	}
	for _, o := range opts {
		o(d)
	}
	return d, nil
}

// Order returns the scheme names in evaluation order.
func (d *Dispatcher) Order() []string {
	out := make([]string, len(d.schemes))
	for i, s := range d.schemes {
		out[i] = s.Name()
	}
	return out
}

// Authenticate resolves the request identity. No credential yields Anonymous with a nil error.
// The first scheme (by precedence) matching any supplied credential decides the outcome.
func (d *Dispatcher) Authenticate(ctx context.Context, r *http.Request) (Identity, error) {
	creds := ParseCredentials(r.Header)
	if len(creds) == 0 {
		d.metrics.observe("none", "anonymous")
		return Anonymous(), nil
	}
	for _, s := range d.schemes {
		for _, c := range creds {
			if s.Matches(c) {
				return d.verify(ctx, s, c)
			}
		}
	}
	d.metrics.observe("none", "unsupported")
	return Identity{}, ErrMissingCredential
}

func (d *Dispatcher) verify(ctx context.Context, s Scheme, c Credential) (Identity, error) {
	if d.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, d.timeout)
		defer cancel()
	}
	id, err := s.Verify(ctx, c)
	if err != nil {
		err = classify(ctx, err)
		if errors.Is(err, ErrUpstreamUnavailable) {
			d.metrics.observe(s.Name(), "unavailable")
			if d.log != nil {
				d.log.Warnw("auth upstream unavailable", "scheme", s.Name(), "err", err)
			}
		} else {
			d.metrics.observe(s.Name(), "invalid")
		}
		return Identity{}, err
	}
	if id.Scheme == "" {
		id.Scheme = s.Name()
	}
	d.metrics.observe(s.Name(), "ok")
	return id, nil
}

// classify maps timeouts to ErrUpstreamUnavailable and anything unclassified to ErrInvalidToken.
func classify(ctx context.Context, err error) error {
	switch {
	case errors.Is(err, ErrUpstreamUnavailable), errors.Is(err, ErrInvalidToken):
		if ctx.Err() != nil && !errors.Is(err, ErrUpstreamUnavailable) {
			return fmt.Errorf("%w: %v", ErrUpstreamUnavailable, ctx.Err())
		}
		return err
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, context.Canceled), ctx.Err() != nil:
		return fmt.Errorf("%w: %v", ErrUpstreamUnavailable, err)
	default:
		return fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
}
