package domain

import "time"

// JobStatus is the SyncJob state machine:
//
//	pending -> running -> { success | partial_failure | failed }
//
// Terminal states are immutable.
type JobStatus string

const (
	JobPending        JobStatus = "pending"
	JobRunning        JobStatus = "running"
	JobSuccess        JobStatus = "success"
	JobPartialFailure JobStatus = "partial_failure"
	JobFailed         JobStatus = "failed"
)

// Terminal reports whether s permits no further transitions.
func (s JobStatus) Terminal() bool {
	switch s {
	case JobSuccess, JobPartialFailure, JobFailed:
		return true
	}
	return false
}

// TriggerSource records what started a job.
type TriggerSource string

const (
	TriggerManual    TriggerSource = "manual"
	TriggerScheduled TriggerSource = "scheduled"
)

// JobCounts aggregates per-SKU outcomes for one run.
// Invariant: Checked == Updated + Failed + Skipped.
type JobCounts struct {
	Checked    int `json:"total_listings_checked"`
	Updated    int `json:"items_updated"`
	Failed     int `json:"items_failed"`
	Skipped    int `json:"items_skipped"`
	OutOfStock int `json:"items_out_of_stock"`
}

// Add merges feed-level tallies into the run total.
func (c *JobCounts) Add(other JobCounts) {
	c.Checked += other.Checked
	c.Updated += other.Updated
	c.Failed += other.Failed
	c.Skipped += other.Skipped
	c.OutOfStock += other.OutOfStock
}

// SyncJob is one execution record of the sync pipeline for an account.
type SyncJob struct {
	ID        string
	AccountID int64
	FeedID    *int64 // nil when the run spans all feeds for the account
	Status    JobStatus
	Trigger   TriggerSource

	Counts JobCounts

	StartedAt    time.Time
	FinishedAt   *time.Time
	ErrorSummary string

	CreatedAt time.Time
}

// DurationSeconds derives the run duration for finalized jobs, 0 otherwise.
func (j *SyncJob) DurationSeconds() float64 {
	if j.FinishedAt == nil {
		return 0
	}
	return j.FinishedAt.Sub(j.StartedAt).Seconds()
}

// FinalStatus decides the terminal status from the aggregated counts.
// A run with nothing checked and at least one failure is a total failure;
// zero failures is success; anything in between is a partial failure.
func FinalStatus(c JobCounts) JobStatus {
	if c.Failed == 0 {
		return JobSuccess
	}
	if c.Checked == 0 || c.Failed == c.Checked {
		return JobFailed
	}
	return JobPartialFailure
}
