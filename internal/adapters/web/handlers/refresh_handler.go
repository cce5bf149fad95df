package handlers

import (
	"net/http"

	"go.uber.org/zap"

	"github.com/lcalzada-xor/vulnfleet/internal/core/domain"
	"github.com/lcalzada-xor/vulnfleet/internal/core/ports"
)

// RefreshHandler starts and reports feed refreshes.
type RefreshHandler struct {
	Sync   ports.Synchronizer
	logger *zap.Logger
}

// NewRefreshHandler creates a new RefreshHandler
func NewRefreshHandler(sync ports.Synchronizer, logger *zap.Logger) *RefreshHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RefreshHandler{Sync: sync, logger: logger.Named("refresh")}
}

// HandleTrigger requests a refresh and returns immediately.
func (h *RefreshHandler) HandleTrigger(w http.ResponseWriter, r *http.Request) {
	ticket := h.Sync.TriggerRefresh(r.Context())

	switch {
	case ticket.Accepted:
		writeJSON(w, http.StatusAccepted, map[string]string{"status": "accepted", "job_id": ticket.JobID})
	case ticket.Reason == domain.ReasonAlreadyInProgress:
		writeDetail(w, http.StatusConflict, ticket.Reason)
	default:
		h.logger.Warn("refresh rejected", zap.String("reason", ticket.Reason))
		writeDetail(w, http.StatusServiceUnavailable, ticket.Reason)
	}
}

// HandleStatus returns the synchronizer state with the current and last jobs.
func (h *RefreshHandler) HandleStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.Sync.Status())
}
