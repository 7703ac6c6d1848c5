package handler

import (
	"context"
	"net/http"

	"dropsync-api/internal/service"
	"dropsync-api/internal/transport/http/response"
	"dropsync-api/pkg/apierror"
)

// StatsProvider aggregates dashboard counters. Satisfied by
// *service.StatsService.
type StatsProvider interface {
	Dashboard(ctx context.Context) (*service.DashboardStats, error)
}

// DashboardHandler serves the dashboard summary endpoint.
type DashboardHandler struct {
	stats StatsProvider
}

func NewDashboardHandler(stats StatsProvider) *DashboardHandler {
	return &DashboardHandler{stats: stats}
}

// GetStats handles GET /api/v1/dashboard/stats
func (h *DashboardHandler) GetStats(w http.ResponseWriter, r *http.Request) {
	stats, err := h.stats.Dashboard(r.Context())
	if err != nil {
		response.Error(w, apierror.InternalError("failed to load dashboard stats"))
		return
	}

	response.OK(w, stats)
}
