package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"dropsync-api/internal/domain"
	"dropsync-api/internal/repository"
)

// SyncTrigger starts a sync run. Satisfied by *Orchestrator.
type SyncTrigger interface {
	TriggerSync(ctx context.Context, accountID int64, feedID *int64, trigger domain.TriggerSource) (*domain.SyncJob, error)
}

// Scheduler fires scheduled syncs for accounts whose cadence is due. It
// polls on a fixed tick rather than keeping long-lived timers so that
// schedule edits in the database take effect on the next tick.
type Scheduler struct {
	accounts repository.AccountRepository
	trigger  SyncTrigger
	interval time.Duration
	log      *logrus.Logger

	nextDue map[int64]time.Time
	now     func() time.Time
}

// NewScheduler builds a scheduler that evaluates accounts every interval.
func NewScheduler(accounts repository.AccountRepository, trigger SyncTrigger, interval time.Duration, log *logrus.Logger) *Scheduler {
	return &Scheduler{
		accounts: accounts,
		trigger:  trigger,
		interval: interval,
		log:      log,
		nextDue:  make(map[int64]time.Time),
		now:      time.Now,
	}
}

// Start runs the scheduling loop until the context is cancelled.
func (s *Scheduler) Start(ctx context.Context) {
	s.log.WithField("component", "scheduler").
		WithField("interval", s.interval.String()).
		Info("scheduler started")

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.log.WithField("component", "scheduler").Info("scheduler stopped")
			return
		case <-ticker.C:
			s.tick(ctx)
		}
	}
}

// tick evaluates every schedulable account once.
func (s *Scheduler) tick(ctx context.Context) {
	accounts, err := s.accounts.ListSchedulable(ctx)
	if err != nil {
		s.log.WithField("component", "scheduler").Errorf("failed to list accounts: %v", err)
		return
	}

	now := s.now().UTC()
	seen := make(map[int64]bool, len(accounts))

	for _, account := range accounts {
		seen[account.ID] = true

		due, ok := s.nextDue[account.ID]
		if !ok {
			due = s.firstDue(account, now)
			s.nextDue[account.ID] = due
		}
		if now.Before(due) {
			continue
		}

		log := s.log.WithFields(logrus.Fields{
			"component": "scheduler",
			"account":   account.ID,
		})

		if _, err := s.trigger.TriggerSync(ctx, account.ID, nil, domain.TriggerScheduled); err != nil {
			if errors.Is(err, domain.ErrAlreadyRunning) {
				log.Debug("sync already in flight, skipping")
			} else {
				log.Warnf("scheduled sync failed to start: %v", err)
			}
		} else {
			log.Info("scheduled sync triggered")
		}

		// Advance the cadence from now regardless of the trigger outcome
		// so a busy or broken account is not hammered every tick.
		s.nextDue[account.ID] = s.advance(account, now)
	}

	// Drop accounts that were disabled or deleted.
	for id := range s.nextDue {
		if !seen[id] {
			delete(s.nextDue, id)
		}
	}
}

// firstDue derives the initial due time for an account the scheduler has
// not seen yet, anchored on its last completed sync.
func (s *Scheduler) firstDue(account domain.Account, now time.Time) time.Time {
	switch account.SyncFrequency {
	case domain.FrequencyHourly:
		if account.LastSyncAt == nil {
			return now
		}
		return account.LastSyncAt.Add(time.Hour)
	case domain.FrequencyDaily:
		due := s.dailyAt(account, now)
		if account.LastSyncAt != nil && !account.LastSyncAt.Before(due) {
			return due.Add(24 * time.Hour)
		}
		return due
	default:
		// Manual accounts never become due.
		return now.Add(24 * 365 * time.Hour)
	}
}

func (s *Scheduler) advance(account domain.Account, now time.Time) time.Time {
	switch account.SyncFrequency {
	case domain.FrequencyHourly:
		return now.Add(time.Hour)
	case domain.FrequencyDaily:
		return s.dailyAt(account, now).Add(24 * time.Hour)
	default:
		return now.Add(24 * 365 * time.Hour)
	}
}

// dailyAt returns today's occurrence of the account's configured HH:MM,
// falling back to midnight when the value does not parse.
func (s *Scheduler) dailyAt(account domain.Account, now time.Time) time.Time {
	var hour, minute int
	if _, err := fmt.Sscanf(account.SyncTime, "%d:%d", &hour, &minute); err != nil {
		hour, minute = 0, 0
	}
	return time.Date(now.Year(), now.Month(), now.Day(), hour, minute, 0, 0, time.UTC)
}
