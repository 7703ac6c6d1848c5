package service

import (
	"context"
	"time"

	"dropsync-api/internal/domain"
	"dropsync-api/internal/repository"
)

// DashboardStats is the at-a-glance summary shown on the dashboard.
type DashboardStats struct {
	TotalAccounts        int              `json:"total_accounts"`
	TotalFeeds           int              `json:"total_feeds"`
	LastSyncAt           *time.Time       `json:"last_sync_at,omitempty"`
	LastSyncStatus       domain.JobStatus `json:"last_sync_status,omitempty"`
	LastSyncItemsUpdated int              `json:"last_sync_items_updated"`
}

// StatsService aggregates dashboard counters from the repositories.
type StatsService struct {
	accounts repository.AccountRepository
	feeds    repository.FeedRepository
	jobs     repository.JobRepository
}

func NewStatsService(accounts repository.AccountRepository, feeds repository.FeedRepository, jobs repository.JobRepository) *StatsService {
	return &StatsService{accounts: accounts, feeds: feeds, jobs: jobs}
}

// Dashboard returns the current summary. A missing latest job leaves the
// last-sync fields empty rather than erroring.
func (s *StatsService) Dashboard(ctx context.Context) (*DashboardStats, error) {
	accounts, err := s.accounts.CountActive(ctx)
	if err != nil {
		return nil, err
	}
	feeds, err := s.feeds.CountActive(ctx)
	if err != nil {
		return nil, err
	}

	stats := &DashboardStats{TotalAccounts: accounts, TotalFeeds: feeds}

	latest, err := s.jobs.Latest(ctx)
	if err != nil {
		return nil, err
	}
	if latest != nil {
		stats.LastSyncAt = &latest.StartedAt
		stats.LastSyncStatus = latest.Status
		stats.LastSyncItemsUpdated = latest.Counts.Updated
	}

	return stats, nil
}
