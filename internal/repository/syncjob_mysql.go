package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"dropsync-api/internal/domain"
)

// MySQLJobRepository implements the job ledger using MySQL.
type MySQLJobRepository struct {
	db *sql.DB
}

// NewMySQLJobRepository creates a new MySQL job ledger.
func NewMySQLJobRepository(db *sql.DB) *MySQLJobRepository {
	return &MySQLJobRepository{db: db}
}

// EnsureSchema creates the ledger table. The accounts and feeds tables are
// owned by the dashboard backend and are not managed here.
func (r *MySQLJobRepository) EnsureSchema(ctx context.Context) error {
	const schema = `CREATE TABLE IF NOT EXISTS sync_jobs (
		id            VARCHAR(36) PRIMARY KEY,
		account_id    BIGINT NOT NULL,
		feed_id       BIGINT NULL,
		status        VARCHAR(20) NOT NULL,
		triggered_by  VARCHAR(20) NOT NULL,
		checked       INT NOT NULL DEFAULT 0,
		updated       INT NOT NULL DEFAULT 0,
		failed        INT NOT NULL DEFAULT 0,
		skipped       INT NOT NULL DEFAULT 0,
		out_of_stock  INT NOT NULL DEFAULT 0,
		error_summary TEXT,
		started_at    DATETIME(3) NOT NULL,
		finished_at   DATETIME(3) NULL,
		created_at    DATETIME(3) NOT NULL,
		INDEX idx_sync_jobs_account (account_id, created_at),
		INDEX idx_sync_jobs_status (status, started_at)
	) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4`

	if _, err := r.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("failed to ensure sync_jobs schema: %w", err)
	}
	return nil
}

// CreateRunning inserts a running job if, and only if, the account has no
// other running job. The check and insert share one transaction so the
// single-flight marker is durable, not just an in-process lock.
func (r *MySQLJobRepository) CreateRunning(ctx context.Context, job *domain.SyncJob) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	var existing string
	err = tx.QueryRowContext(ctx,
		`SELECT id FROM sync_jobs WHERE account_id = ? AND status = ? LIMIT 1 FOR UPDATE`,
		job.AccountID, domain.JobRunning,
	).Scan(&existing)
	switch {
	case err == nil:
		return domain.ErrAlreadyRunning
	case err != sql.ErrNoRows:
		return fmt.Errorf("failed to check running job: %w", err)
	}

	_, err = tx.ExecContext(ctx,
		`INSERT INTO sync_jobs (id, account_id, feed_id, status, triggered_by, started_at, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		job.ID, job.AccountID, job.FeedID, job.Status, job.Trigger,
		job.StartedAt.UTC(), job.CreatedAt.UTC(),
	)
	if err != nil {
		return fmt.Errorf("failed to insert job: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit job: %w", err)
	}
	return nil
}

// Finalize transitions a running job to a terminal status. The status guard
// in the WHERE clause keeps terminal rows immutable.
func (r *MySQLJobRepository) Finalize(ctx context.Context, jobID string, status domain.JobStatus, counts domain.JobCounts, errSummary string, finishedAt time.Time) error {
	if !status.Terminal() {
		return fmt.Errorf("cannot finalize job to non-terminal status %q", status)
	}

	res, err := r.db.ExecContext(ctx,
		`UPDATE sync_jobs
		 SET status = ?, checked = ?, updated = ?, failed = ?, skipped = ?, out_of_stock = ?,
		     error_summary = ?, finished_at = ?
		 WHERE id = ? AND status = ?`,
		status, counts.Checked, counts.Updated, counts.Failed, counts.Skipped, counts.OutOfStock,
		nullableString(errSummary), finishedAt.UTC(), jobID, domain.JobRunning,
	)
	if err != nil {
		return fmt.Errorf("failed to finalize job: %w", err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read finalize result: %w", err)
	}
	if affected == 0 {
		return fmt.Errorf("job %s is not running, not finalized", jobID)
	}
	return nil
}

const jobColumns = `id, account_id, feed_id, status, triggered_by,
	checked, updated, failed, skipped, out_of_stock,
	error_summary, started_at, finished_at, created_at`

func scanJob(row interface{ Scan(...interface{}) error }) (*domain.SyncJob, error) {
	var j domain.SyncJob
	var feedID sql.NullInt64
	var errSummary sql.NullString
	var finishedAt sql.NullTime

	err := row.Scan(
		&j.ID, &j.AccountID, &feedID, &j.Status, &j.Trigger,
		&j.Counts.Checked, &j.Counts.Updated, &j.Counts.Failed, &j.Counts.Skipped, &j.Counts.OutOfStock,
		&errSummary, &j.StartedAt, &finishedAt, &j.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	if feedID.Valid {
		j.FeedID = &feedID.Int64
	}
	j.ErrorSummary = errSummary.String
	if finishedAt.Valid {
		j.FinishedAt = &finishedAt.Time
	}
	return &j, nil
}

// GetByID loads one job.
func (r *MySQLJobRepository) GetByID(ctx context.Context, jobID string) (*domain.SyncJob, error) {
	query := `SELECT ` + jobColumns + ` FROM sync_jobs WHERE id = ?`

	j, err := scanJob(r.db.QueryRowContext(ctx, query, jobID))
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, domain.ErrNotFound
		}
		return nil, fmt.Errorf("failed to get job: %w", err)
	}
	return j, nil
}

// GetRunning returns the account's running job, nil when there is none.
func (r *MySQLJobRepository) GetRunning(ctx context.Context, accountID int64) (*domain.SyncJob, error) {
	query := `SELECT ` + jobColumns + ` FROM sync_jobs WHERE account_id = ? AND status = ? LIMIT 1`

	j, err := scanJob(r.db.QueryRowContext(ctx, query, accountID, domain.JobRunning))
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get running job: %w", err)
	}
	return j, nil
}

// ListByAccount returns the account's jobs, most recent first.
func (r *MySQLJobRepository) ListByAccount(ctx context.Context, accountID int64, limit int) ([]domain.SyncJob, error) {
	if limit <= 0 {
		limit = 50
	}
	query := `SELECT ` + jobColumns + ` FROM sync_jobs
		WHERE account_id = ? ORDER BY created_at DESC LIMIT ?`

	rows, err := r.db.QueryContext(ctx, query, accountID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list jobs: %w", err)
	}
	defer rows.Close()

	var jobs []domain.SyncJob
	for rows.Next() {
		j, err := scanJob(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan job: %w", err)
		}
		jobs = append(jobs, *j)
	}
	return jobs, rows.Err()
}

// ListStuckRunning returns running jobs started before the cutoff.
func (r *MySQLJobRepository) ListStuckRunning(ctx context.Context, startedBefore time.Time) ([]domain.SyncJob, error) {
	query := `SELECT ` + jobColumns + ` FROM sync_jobs WHERE status = ? AND started_at < ?`

	rows, err := r.db.QueryContext(ctx, query, domain.JobRunning, startedBefore.UTC())
	if err != nil {
		return nil, fmt.Errorf("failed to list stuck jobs: %w", err)
	}
	defer rows.Close()

	var jobs []domain.SyncJob
	for rows.Next() {
		j, err := scanJob(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan job: %w", err)
		}
		jobs = append(jobs, *j)
	}
	return jobs, rows.Err()
}

// Latest returns the most recent job across all accounts.
func (r *MySQLJobRepository) Latest(ctx context.Context) (*domain.SyncJob, error) {
	query := `SELECT ` + jobColumns + ` FROM sync_jobs ORDER BY created_at DESC LIMIT 1`

	j, err := scanJob(r.db.QueryRowContext(ctx, query))
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get latest job: %w", err)
	}
	return j, nil
}

func nullableString(s string) interface{} {
	if s == "" {
		return nil
	}
	return s
}
