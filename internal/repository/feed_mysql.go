package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"dropsync-api/internal/domain"
)

// MySQLFeedRepository implements FeedRepository using MySQL.
type MySQLFeedRepository struct {
	db *sql.DB
}

// NewMySQLFeedRepository creates a new MySQL feed repository.
func NewMySQLFeedRepository(db *sql.DB) *MySQLFeedRepository {
	return &MySQLFeedRepository{db: db}
}

const feedColumns = `id, account_id, name, feed_url, feed_type,
	sku_column, quantity_column, is_active, total_skus, last_fetched_at, created_at`

func scanFeed(row interface{ Scan(...interface{}) error }) (*domain.Feed, error) {
	var f domain.Feed
	var skuCol, qtyCol sql.NullString
	var lastFetched sql.NullTime

	err := row.Scan(
		&f.ID, &f.AccountID, &f.Name, &f.URL, &f.Format,
		&skuCol, &qtyCol, &f.IsActive, &f.TotalSKUs, &lastFetched, &f.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	f.SKUColumn = skuCol.String
	f.QuantityColumn = qtyCol.String
	if lastFetched.Valid {
		f.LastFetchedAt = &lastFetched.Time
	}
	return &f, nil
}

// GetByID loads one active feed.
func (r *MySQLFeedRepository) GetByID(ctx context.Context, id int64) (*domain.Feed, error) {
	query := `SELECT ` + feedColumns + ` FROM supplier_feeds WHERE id = ? AND is_active = 1`

	f, err := scanFeed(r.db.QueryRowContext(ctx, query, id))
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, fmt.Errorf("feed %d: %w", id, domain.ErrNotFound)
		}
		return nil, fmt.Errorf("failed to get feed: %w", err)
	}
	return f, nil
}

// ListByAccount returns the account's active feeds.
func (r *MySQLFeedRepository) ListByAccount(ctx context.Context, accountID int64) ([]domain.Feed, error) {
	query := `SELECT ` + feedColumns + ` FROM supplier_feeds
		WHERE account_id = ? AND is_active = 1 ORDER BY id`

	rows, err := r.db.QueryContext(ctx, query, accountID)
	if err != nil {
		return nil, fmt.Errorf("failed to list feeds: %w", err)
	}
	defer rows.Close()

	var feeds []domain.Feed
	for rows.Next() {
		f, err := scanFeed(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan feed: %w", err)
		}
		feeds = append(feeds, *f)
	}
	return feeds, rows.Err()
}

// UpdateFetchStats records the observed SKU count after a successful fetch.
func (r *MySQLFeedRepository) UpdateFetchStats(ctx context.Context, id int64, totalSKUs int, fetchedAt time.Time) error {
	query := `UPDATE supplier_feeds SET total_skus = ?, last_fetched_at = ? WHERE id = ?`

	if _, err := r.db.ExecContext(ctx, query, totalSKUs, fetchedAt.UTC(), id); err != nil {
		return fmt.Errorf("failed to update feed fetch stats: %w", err)
	}
	return nil
}

// CountActive returns the number of active feeds, for dashboard stats.
func (r *MySQLFeedRepository) CountActive(ctx context.Context) (int, error) {
	var count int
	err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM supplier_feeds WHERE is_active = 1`).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count feeds: %w", err)
	}
	return count, nil
}
