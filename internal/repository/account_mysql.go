package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"dropsync-api/internal/domain"
)

// MySQLAccountRepository implements AccountRepository using MySQL.
type MySQLAccountRepository struct {
	db *sql.DB
}

// NewMySQLAccountRepository creates a new MySQL account repository.
func NewMySQLAccountRepository(db *sql.DB) *MySQLAccountRepository {
	return &MySQLAccountRepository{db: db}
}

const accountColumns = `id, store_name, app_id, dev_id, cert_id, access_token,
	sync_enabled, sync_frequency, sync_time, quantity_mode, last_sync_at, created_at`

func scanAccount(row interface{ Scan(...interface{}) error }) (*domain.Account, error) {
	var acc domain.Account
	var lastSync sql.NullTime

	err := row.Scan(
		&acc.ID, &acc.StoreName,
		&acc.Credentials.AppID, &acc.Credentials.DevID, &acc.Credentials.CertID, &acc.Credentials.UserToken,
		&acc.SyncEnabled, &acc.SyncFrequency, &acc.SyncTime, &acc.QuantityMode,
		&lastSync, &acc.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	if lastSync.Valid {
		acc.LastSyncAt = &lastSync.Time
	}
	return &acc, nil
}

// GetByID loads one active account with its credential bundle.
func (r *MySQLAccountRepository) GetByID(ctx context.Context, id int64) (*domain.Account, error) {
	query := `SELECT ` + accountColumns + ` FROM ebay_accounts WHERE id = ? AND is_active = 1`

	acc, err := scanAccount(r.db.QueryRowContext(ctx, query, id))
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, fmt.Errorf("account %d: %w", id, domain.ErrNotFound)
		}
		return nil, fmt.Errorf("failed to get account: %w", err)
	}
	return acc, nil
}

// ListSchedulable returns active, sync-enabled accounts on a schedule.
func (r *MySQLAccountRepository) ListSchedulable(ctx context.Context) ([]domain.Account, error) {
	query := `SELECT ` + accountColumns + ` FROM ebay_accounts
		WHERE is_active = 1 AND sync_enabled = 1 AND sync_frequency IN ('hourly', 'daily')`

	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to list schedulable accounts: %w", err)
	}
	defer rows.Close()

	var accounts []domain.Account
	for rows.Next() {
		acc, err := scanAccount(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan account: %w", err)
		}
		accounts = append(accounts, *acc)
	}
	return accounts, rows.Err()
}

// UpdateLastSync records the completion timestamp of the latest run.
func (r *MySQLAccountRepository) UpdateLastSync(ctx context.Context, id int64, at time.Time) error {
	query := `UPDATE ebay_accounts SET last_sync_at = ? WHERE id = ?`

	if _, err := r.db.ExecContext(ctx, query, at.UTC(), id); err != nil {
		return fmt.Errorf("failed to update last sync: %w", err)
	}
	return nil
}

// CountActive returns the number of active accounts, for dashboard stats.
func (r *MySQLAccountRepository) CountActive(ctx context.Context) (int, error) {
	var count int
	err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM ebay_accounts WHERE is_active = 1`).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count accounts: %w", err)
	}
	return count, nil
}
