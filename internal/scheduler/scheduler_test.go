package scheduler

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeSweeps struct {
	mu          sync.Mutex
	completions int
	stale       int
	err         error
}

func (f *fakeSweeps) CompleteElapsed(ctx context.Context) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.completions++
	return 2, f.err
}

func (f *fakeSweeps) FailStalePayments(ctx context.Context) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.stale++
	return 0, f.err
}

func validConfig() Config {
	return Config{CompletionSpec: "0 */5 * * * *", StalePaymentSpec: "30 * * * * *"}
}

func TestNewScheduler_RegistersJobs(t *testing.T) {
	s, err := NewScheduler(&fakeSweeps{}, validConfig())
	require.NoError(t, err)
	assert.Len(t, s.cron.Entries(), 2)
}

func TestNewScheduler_InvalidSpec(t *testing.T) {
	cfg := validConfig()
	cfg.CompletionSpec = "every now and then"
	_, err := NewScheduler(&fakeSweeps{}, cfg)
	assert.Error(t, err)
}

func TestRun_InvokesJob(t *testing.T) {
	sweeps := &fakeSweeps{}
	s, err := NewScheduler(sweeps, validConfig())
	require.NoError(t, err)

	s.Run("complete_elapsed", sweeps.CompleteElapsed)
	s.Run("fail_stale_payments", sweeps.FailStalePayments)

	assert.Equal(t, 1, sweeps.completions)
	assert.Equal(t, 1, sweeps.stale)
}

func TestRun_SurvivesErrorsAndPanics(t *testing.T) {
	sweeps := &fakeSweeps{err: errors.New("db down")}
	s, err := NewScheduler(sweeps, validConfig())
	require.NoError(t, err)

	assert.NotPanics(t, func() {
		s.Run("complete_elapsed", sweeps.CompleteElapsed)
	})
	assert.NotPanics(t, func() {
		s.Run("boom", func(ctx context.Context) (int, error) {
			panic("boom")
		})
	})
}

func TestRun_PassesDeadline(t *testing.T) {
	s, err := NewScheduler(&fakeSweeps{}, validConfig())
	require.NoError(t, err)

	var hasDeadline bool
	s.Run("check", func(ctx context.Context) (int, error) {
		_, hasDeadline = ctx.Deadline()
		return 0, nil
	})
	assert.True(t, hasDeadline)
}
