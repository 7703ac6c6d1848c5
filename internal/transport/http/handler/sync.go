package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"dropsync-api/internal/domain"
	"dropsync-api/internal/repository"
	"dropsync-api/internal/transport/http/response"
	"dropsync-api/pkg/apierror"
)

// SyncService starts sync runs. Satisfied by *service.Orchestrator.
type SyncService interface {
	TriggerSync(ctx context.Context, accountID int64, feedID *int64, trigger domain.TriggerSource) (*domain.SyncJob, error)
}

// SyncHandler exposes the sync engine over HTTP.
type SyncHandler struct {
	syncs SyncService
	jobs  repository.JobRepository
}

// NewSyncHandler creates the sync endpoints.
func NewSyncHandler(syncs SyncService, jobs repository.JobRepository) *SyncHandler {
	return &SyncHandler{syncs: syncs, jobs: jobs}
}

// TriggerRequest is the body of POST /api/v1/sync/trigger.
type TriggerRequest struct {
	AccountID int64  `json:"account_id"`
	FeedID    *int64 `json:"feed_id,omitempty"`
}

// JobView is the wire shape of a sync job.
type JobView struct {
	JobID     string               `json:"job_id"`
	AccountID int64                `json:"account_id"`
	FeedID    *int64               `json:"feed_id,omitempty"`
	Status    domain.JobStatus     `json:"status"`
	Trigger   domain.TriggerSource `json:"trigger"`

	domain.JobCounts

	StartedAt       time.Time  `json:"started_at"`
	FinishedAt      *time.Time `json:"finished_at,omitempty"`
	DurationSeconds float64    `json:"duration_seconds"`
	ErrorSummary    string     `json:"error_summary,omitempty"`
}

func newJobView(j *domain.SyncJob) JobView {
	return JobView{
		JobID:           j.ID,
		AccountID:       j.AccountID,
		FeedID:          j.FeedID,
		Status:          j.Status,
		Trigger:         j.Trigger,
		JobCounts:       j.Counts,
		StartedAt:       j.StartedAt,
		FinishedAt:      j.FinishedAt,
		DurationSeconds: j.DurationSeconds(),
		ErrorSummary:    j.ErrorSummary,
	}
}

// Trigger handles POST /api/v1/sync/trigger
// Starts a run and returns 202 with the running job; 409 when the account
// already has a run in flight.
func (h *SyncHandler) Trigger(w http.ResponseWriter, r *http.Request) {
	var req TriggerRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		response.Error(w, apierror.BadRequest("invalid JSON body"))
		return
	}
	if req.AccountID <= 0 {
		response.Error(w, apierror.BadRequest("account_id is required"))
		return
	}

	job, err := h.syncs.TriggerSync(r.Context(), req.AccountID, req.FeedID, domain.TriggerManual)
	if err != nil {
		switch {
		case errors.Is(err, domain.ErrAlreadyRunning):
			response.Error(w, apierror.Conflict("a sync is already running for this account"))
		case errors.Is(err, domain.ErrNotFound):
			response.Error(w, apierror.NotFound(err.Error()))
		default:
			response.Error(w, apierror.BadRequest(err.Error()))
		}
		return
	}

	response.Accepted(w, newJobView(job))
}

// ListJobs handles GET /api/v1/sync/jobs?account_id=N&limit=M
// Returns the account's job history, most recent first.
func (h *SyncHandler) ListJobs(w http.ResponseWriter, r *http.Request) {
	accountID, err := strconv.ParseInt(r.URL.Query().Get("account_id"), 10, 64)
	if err != nil || accountID <= 0 {
		response.Error(w, apierror.BadRequest("account_id query parameter is required"))
		return
	}

	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		limit, err = strconv.Atoi(raw)
		if err != nil || limit < 0 {
			response.Error(w, apierror.BadRequest("limit must be a non-negative integer"))
			return
		}
	}

	jobs, err := h.jobs.ListByAccount(r.Context(), accountID, limit)
	if err != nil {
		response.Error(w, apierror.InternalError("failed to list jobs"))
		return
	}

	views := make([]JobView, len(jobs))
	for i := range jobs {
		views[i] = newJobView(&jobs[i])
	}

	response.OK(w, map[string]interface{}{
		"account_id": accountID,
		"jobs":       views,
	})
}

// GetJob handles GET /api/v1/sync/jobs/{job_id}
func (h *SyncHandler) GetJob(w http.ResponseWriter, r *http.Request) {
	jobID := chi.URLParam(r, "job_id")

	job, err := h.jobs.GetByID(r.Context(), jobID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			response.Error(w, apierror.NotFound("job not found"))
			return
		}
		response.Error(w, apierror.InternalError("failed to load job"))
		return
	}

	response.OK(w, newJobView(job))
}
