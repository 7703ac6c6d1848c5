package service

import (
	"context"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"dropsync-api/internal/domain"
	"dropsync-api/internal/repository"
)

// Watchdog finalizes jobs stuck in the running state past the maximum run
// duration, typically after a crash or deploy killed the worker goroutine.
type Watchdog struct {
	jobs     repository.JobRepository
	maxAge   time.Duration
	interval time.Duration
	log      *logrus.Logger

	now func() time.Time
}

// NewWatchdog builds a watchdog that sweeps every interval and reaps
// running jobs older than maxAge.
func NewWatchdog(jobs repository.JobRepository, maxAge, interval time.Duration, log *logrus.Logger) *Watchdog {
	return &Watchdog{
		jobs:     jobs,
		maxAge:   maxAge,
		interval: interval,
		log:      log,
		now:      time.Now,
	}
}

// Start runs one immediate sweep, then sweeps on the interval until the
// context is cancelled. The immediate sweep clears jobs orphaned by a
// previous process.
func (w *Watchdog) Start(ctx context.Context) {
	w.log.WithField("component", "watchdog").
		WithField("interval", w.interval.String()).
		Info("watchdog started")

	w.Sweep(ctx)

	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			w.log.WithField("component", "watchdog").Info("watchdog stopped")
			return
		case <-ticker.C:
			w.Sweep(ctx)
		}
	}
}

// Sweep marks every overdue running job as failed.
func (w *Watchdog) Sweep(ctx context.Context) {
	cutoff := w.now().UTC().Add(-w.maxAge)

	stuck, err := w.jobs.ListStuckRunning(ctx, cutoff)
	if err != nil {
		w.log.WithField("component", "watchdog").Errorf("failed to list stuck jobs: %v", err)
		return
	}

	for _, job := range stuck {
		summary := fmt.Sprintf("%v: job exceeded %s", domain.ErrTimeout, w.maxAge)
		if err := w.jobs.Finalize(ctx, job.ID, domain.JobFailed, job.Counts, summary, w.now().UTC()); err != nil {
			w.log.WithField("job", job.ID).Errorf("failed to reap stuck job: %v", err)
			continue
		}
		w.log.WithFields(logrus.Fields{
			"component": "watchdog",
			"job":       job.ID,
			"account":   job.AccountID,
			"started":   job.StartedAt.Format(time.RFC3339),
		}).Warn("reaped stuck job")
	}
}
