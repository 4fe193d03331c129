package discovery

import (
	"context"
	"fmt"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"gatehouse/internal/jobs"
)

type flakyRegistry struct {
	failures int32
	calls    atomic.Int32
}

func (f *flakyRegistry) Register(context.Context, Descriptor) error {
	if n := f.calls.Add(1); n <= f.failures {
		return fmt.Errorf("%w: dial tcp: connection refused", ErrUnreachable)
	}
	return nil
}

func TestRegistrarStateTransitions(t *testing.T) {
	r := NewRegistrar(nil, &flakyRegistry{failures: 1}, gateway)
	assert.Equal(t, StateUnregistered, r.Status().State)

	assert.ErrorIs(t, r.Tick(context.Background()), ErrUnreachable)
	st := r.Status()
	assert.Equal(t, StateFailed, st.State)
	assert.Contains(t, st.LastError, "connection refused")
	assert.True(t, st.LastSuccess.IsZero())

	require.NoError(t, r.Tick(context.Background()))
	st = r.Status()
	assert.Equal(t, StateRegistered, st.State)
	assert.Empty(t, st.LastError)
	assert.Equal(t, 2, st.Attempts)
	assert.Equal(t, gateway, st.Descriptor)
}

func TestRegistrationRecoversOnThirdTick(t *testing.T) {
	registry := &flakyRegistry{failures: 2}
	r := NewRegistrar(nil, registry, gateway)

	s := jobs.New(nil)
	require.NoError(t, s.AddQueue("default", 5))
	s.Handle(JobType, r.Job())
	require.NoError(t, s.AddRecurring(JobType, "* * * * *", "default", JobType, nil))
	require.NoError(t, s.Start(context.Background()))
	t.Cleanup(func() { _ = s.Shutdown(context.Background()) })

	var states []State
	for i := 0; i < 3; i++ {
		j, ok, err := s.Trigger(JobType)
		require.NoError(t, err)
		require.True(t, ok)
		require.Eventually(t, func() bool {
			got, err := s.Get(context.Background(), j.ID)
			return err == nil && got.Done()
		}, 2*time.Second, 5*time.Millisecond)

		got, err := s.Get(context.Background(), j.ID)
		require.NoError(t, err)
		assert.Equal(t, jobs.StatusSucceeded, got.Status)
		states = append(states, r.Status().State)
	}
	assert.Equal(t, []State{StateFailed, StateFailed, StateRegistered}, states)
	assert.EqualValues(t, 3, registry.calls.Load())
}
