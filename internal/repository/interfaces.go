package repository

import (
	"context"
	"time"

	"dropsync-api/internal/domain"
)

// AccountRepository reads seller accounts. Account CRUD is owned by the
// dashboard backend; the engine only reads credentials and schedule and
// writes the last-sync timestamp.
type AccountRepository interface {
	GetByID(ctx context.Context, id int64) (*domain.Account, error)
	// ListSchedulable returns active accounts with hourly or daily frequency.
	ListSchedulable(ctx context.Context) ([]domain.Account, error)
	UpdateLastSync(ctx context.Context, id int64, at time.Time) error
	CountActive(ctx context.Context) (int, error)
}

// FeedRepository reads supplier feeds and records fetch statistics.
type FeedRepository interface {
	GetByID(ctx context.Context, id int64) (*domain.Feed, error)
	ListByAccount(ctx context.Context, accountID int64) ([]domain.Feed, error)
	UpdateFetchStats(ctx context.Context, id int64, totalSKUs int, fetchedAt time.Time) error
	CountActive(ctx context.Context) (int, error)
}

// JobRepository is the durable job ledger: append-only for historical jobs,
// with a single mutable transition from running to a terminal status.
type JobRepository interface {
	// CreateRunning inserts a new running job, failing with
	// domain.ErrAlreadyRunning when the account already has one.
	CreateRunning(ctx context.Context, job *domain.SyncJob) error
	// Finalize moves a running job to a terminal status. Terminal rows
	// are never modified.
	Finalize(ctx context.Context, jobID string, status domain.JobStatus, counts domain.JobCounts, errSummary string, finishedAt time.Time) error
	GetByID(ctx context.Context, jobID string) (*domain.SyncJob, error)
	GetRunning(ctx context.Context, accountID int64) (*domain.SyncJob, error)
	// ListByAccount returns jobs most recent first.
	ListByAccount(ctx context.Context, accountID int64, limit int) ([]domain.SyncJob, error)
	// ListStuckRunning returns running jobs started before the cutoff,
	// for the watchdog sweep.
	ListStuckRunning(ctx context.Context, startedBefore time.Time) ([]domain.SyncJob, error)
	// Latest returns the most recent job across all accounts, nil when
	// the ledger is empty.
	Latest(ctx context.Context) (*domain.SyncJob, error)
}
