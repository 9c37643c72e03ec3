package trigger

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAddValidatesJobs(t *testing.T) {
	s := NewScheduler(nil)

	assert.Error(t, s.Add(Job{Spec: "@hourly", Run: func(context.Context) error { return nil }}))
	assert.Error(t, s.Add(Job{Name: "no-run", Spec: "@hourly"}))
	assert.Error(t, s.Add(Job{Name: "bad-spec", Spec: "not a cron line", Run: func(context.Context) error { return nil }}))
}

func TestAddEmptySpecDisablesJob(t *testing.T) {
	s := NewScheduler(nil)
	require.NoError(t, s.Add(Job{Name: "disabled", Spec: "", Run: func(context.Context) error { return nil }}))
	assert.Empty(t, s.Jobs())
}

func TestAddReplacesJobByName(t *testing.T) {
	s := NewScheduler(nil)
	run := func(context.Context) error { return nil }

	require.NoError(t, s.Add(Job{Name: "walk", Spec: "@hourly", Run: run}))
	require.NoError(t, s.Add(Job{Name: "walk", Spec: "@daily", Run: run}))
	require.NoError(t, s.Add(Job{Name: "cast", Spec: "@hourly", Run: run}))

	assert.Equal(t, []string{"cast", "walk"}, s.Jobs())
}

func TestStartAndStop(t *testing.T) {
	s := NewScheduler(nil)

	require.NoError(t, s.Start(context.Background()))
	assert.Error(t, s.Start(context.Background()))

	require.NoError(t, s.Stop())
	assert.Error(t, s.Stop())
}

func TestScheduledJobRuns(t *testing.T) {
	s := NewScheduler(nil)

	var runs atomic.Int64
	require.NoError(t, s.Add(Job{
		Name: "tick",
		Spec: "@every 100ms",
		Run: func(context.Context) error {
			runs.Add(1)
			return nil
		},
	}))

	require.NoError(t, s.Start(context.Background()))
	defer func() { _ = s.Stop() }()

	deadline := time.After(3 * time.Second)
	for runs.Load() == 0 {
		select {
		case <-deadline:
			t.Fatal("job never ran")
		case <-time.After(10 * time.Millisecond):
		}
	}
}

func TestRunJobRecoversFromPanic(t *testing.T) {
	s := NewScheduler(nil)

	assert.NotPanics(t, func() {
		s.runJob(Job{Name: "boom", Run: func(context.Context) error {
			panic("kaboom")
		}})
	})
}

func TestRunJobSwallowsErrors(t *testing.T) {
	s := NewScheduler(nil)

	assert.NotPanics(t, func() {
		s.runJob(Job{Name: "fails", Run: func(context.Context) error {
			return errors.New("upstream down")
		}})
	})
}
