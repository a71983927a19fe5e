package scheduler

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	log "github.com/sirupsen/logrus"

	"rental/internal/logger"
)

// Sweeps are the periodic jobs of the rental engine.
type Sweeps interface {
	CompleteElapsed(ctx context.Context) (int, error)
	FailStalePayments(ctx context.Context) (int, error)
}

// Config holds the cron specs, with seconds precision.
type Config struct {
	CompletionSpec   string
	StalePaymentSpec string
	JobTimeout       time.Duration
}

// Scheduler manages cron job scheduling.
type Scheduler struct {
	cron    *cron.Cron
	sweeps  Sweeps
	timeout time.Duration
	log     *log.Entry
}

// NewScheduler creates a scheduler and registers the sweeps.
func NewScheduler(sweeps Sweeps, cfg Config) (*Scheduler, error) {
	// Overlapping runs of the same sweep are skipped.
	c := cron.New(
		cron.WithLocation(time.UTC),
		cron.WithSeconds(),
		cron.WithChain(cron.SkipIfStillRunning(cron.DiscardLogger)),
	)

	timeout := cfg.JobTimeout
	if timeout <= 0 {
		timeout = time.Minute
	}

	s := &Scheduler{
		cron:    c,
		sweeps:  sweeps,
		timeout: timeout,
		log:     logger.WithService("scheduler"),
	}

	if _, err := c.AddFunc(cfg.CompletionSpec, func() { s.Run("complete_elapsed", sweeps.CompleteElapsed) }); err != nil {
		return nil, fmt.Errorf("register completion sweep: %w", err)
	}
	if _, err := c.AddFunc(cfg.StalePaymentSpec, func() { s.Run("fail_stale_payments", sweeps.FailStalePayments) }); err != nil {
		return nil, fmt.Errorf("register stale payment sweep: %w", err)
	}

	s.log.WithField("jobs", len(c.Entries())).Info("cron jobs registered")
	return s, nil
}

// Run executes one sweep with a timeout, logging its outcome. A panic is
// logged and swallowed so the scheduler keeps running.
func (s *Scheduler) Run(name string, job func(ctx context.Context) (int, error)) {
	entry := s.log.WithField("job", name)

	defer func() {
		if r := recover(); r != nil {
			entry.WithField("panic", r).Error("job panicked")
		}
	}()

	ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
	defer cancel()
	ctx = logger.NewContext(ctx, entry)

	start := time.Now()
	n, err := job(ctx)
	entry = entry.WithFields(log.Fields{
		"affected":    n,
		"duration_ms": time.Since(start).Milliseconds(),
	})
	if err != nil {
		entry.WithError(err).Error("job failed")
		return
	}
	if n > 0 {
		entry.Info("job finished")
	} else {
		entry.Debug("job finished")
	}
}

// Start begins the cron scheduler.
func (s *Scheduler) Start() {
	s.cron.Start()
	s.log.Info("cron scheduler started")
}

// Stop stops the scheduler and waits for running jobs.
func (s *Scheduler) Stop() {
	ctx := s.cron.Stop()
	<-ctx.Done()
	s.log.Info("cron scheduler stopped")
}
