package service

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"dropsync-api/internal/domain"
)

func TestWatchdogReapsStuckJobs(t *testing.T) {
	now := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	stuck := []domain.SyncJob{
		{ID: "job-a", AccountID: 1, Status: domain.JobRunning, StartedAt: now.Add(-time.Hour), Counts: domain.JobCounts{Checked: 10, Updated: 4}},
		{ID: "job-b", AccountID: 2, Status: domain.JobRunning, StartedAt: now.Add(-30 * time.Minute)},
	}

	jobs := newMockJobs()
	var gotCutoff time.Time
	jobs.stuck = func(_ context.Context, before time.Time) ([]domain.SyncJob, error) {
		gotCutoff = before
		return stuck, nil
	}

	w := NewWatchdog(jobs, 15*time.Minute, time.Minute, testLogger())
	w.now = func() time.Time { return now }

	w.Sweep(context.Background())

	if want := now.Add(-15 * time.Minute); !gotCutoff.Equal(want) {
		t.Fatalf("cutoff = %v, want %v", gotCutoff, want)
	}
	if len(jobs.finalized) != 2 {
		t.Fatalf("finalized %d jobs, want 2", len(jobs.finalized))
	}
	for i, fin := range jobs.finalized {
		if fin.jobID != stuck[i].ID {
			t.Fatalf("finalized %s, want %s", fin.jobID, stuck[i].ID)
		}
		if fin.status != domain.JobFailed {
			t.Fatalf("job %s status = %s, want failed", fin.jobID, fin.status)
		}
		if !strings.Contains(fin.summary, "timed out") {
			t.Fatalf("summary %q does not mention the timeout", fin.summary)
		}
	}
	// Partial progress is preserved on the reaped row.
	if jobs.finalized[0].counts.Updated != 4 {
		t.Fatalf("counts.Updated = %d, want 4", jobs.finalized[0].counts.Updated)
	}
}

func TestWatchdogNothingStuck(t *testing.T) {
	jobs := newMockJobs()
	jobs.stuck = func(context.Context, time.Time) ([]domain.SyncJob, error) { return nil, nil }

	w := NewWatchdog(jobs, 15*time.Minute, time.Minute, testLogger())
	w.Sweep(context.Background())

	if len(jobs.finalized) != 0 {
		t.Fatalf("finalized %d jobs, want 0", len(jobs.finalized))
	}
}

func TestWatchdogListError(t *testing.T) {
	jobs := newMockJobs()
	jobs.stuck = func(context.Context, time.Time) ([]domain.SyncJob, error) {
		return nil, errors.New("connection reset")
	}

	w := NewWatchdog(jobs, 15*time.Minute, time.Minute, testLogger())
	w.Sweep(context.Background())

	if len(jobs.finalized) != 0 {
		t.Fatal("must not finalize anything when the list fails")
	}
}
