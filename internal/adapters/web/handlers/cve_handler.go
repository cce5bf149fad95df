package handlers

import (
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/gorilla/mux"
	"go.uber.org/zap"

	"github.com/lcalzada-xor/vulnfleet/internal/core/domain"
	"github.com/lcalzada-xor/vulnfleet/internal/core/ports"
)

// CVEHandler answers per-platform vulnerability lookups.
type CVEHandler struct {
	Correlator ports.Correlator
	logger     *zap.Logger
}

// NewCVEHandler creates a new CVEHandler
func NewCVEHandler(correlator ports.Correlator, logger *zap.Logger) *CVEHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &CVEHandler{Correlator: correlator, logger: logger.Named("cve")}
}

// cveView is the wire form of a record. Empty fields are omitted.
type cveView struct {
	ID          string   `json:"cve_id"`
	Severity    string   `json:"severity,omitempty"`
	Score       *float64 `json:"cvss_score,omitempty"`
	Description string   `json:"description,omitempty"`
	AppliesTo   string   `json:"cpe_related,omitempty"`
	Published   string   `json:"published,omitempty"`
}

func newCVEView(rec domain.VulnerabilityRecord) cveView {
	return cveView{
		ID:          rec.ID,
		Severity:    rec.Severity.String(),
		Score:       rec.Score,
		Description: rec.Description,
		AppliesTo:   rec.AppliesTo,
		Published:   formatPublished(rec.Published),
	}
}

// HandleByPlatform lists the records matching a percent-encoded platform identifier.
func (h *CVEHandler) HandleByPlatform(w http.ResponseWriter, r *http.Request) {
	raw := mux.Vars(r)["cpe"]
	platformID, err := url.PathUnescape(raw)
	if err != nil {
		writeError(w, h.logger, fmt.Errorf("%w: malformed platform identifier", domain.ErrInvalidInput))
		return
	}
	platformID = strings.TrimSpace(platformID)
	if platformID == "" {
		writeError(w, h.logger, fmt.Errorf("%w: platform identifier is required", domain.ErrInvalidInput))
		return
	}

	result := h.Correlator.MatchPlatform(r.Context(), platformID)

	cves := make([]cveView, 0, len(result.Matches))
	for _, rec := range result.Matches {
		cves = append(cves, newCVEView(rec))
	}
	writeJSON(w, http.StatusOK, map[string][]cveView{"cves": cves})
}

func formatPublished(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339)
}
