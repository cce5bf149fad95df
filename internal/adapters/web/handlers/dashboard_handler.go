package handlers

import (
	"fmt"
	"net/http"

	"go.uber.org/zap"

	"github.com/lcalzada-xor/vulnfleet/internal/adapters/reporting"
	"github.com/lcalzada-xor/vulnfleet/internal/core/domain"
	"github.com/lcalzada-xor/vulnfleet/internal/core/ports"
)

// DashboardExporter renders a dashboard report to a document.
type DashboardExporter interface {
	ExportDashboard(report reporting.DashboardReport) ([]byte, error)
}

// DashboardHandler serves the fleet-wide rollups.
type DashboardHandler struct {
	Aggregator ports.Aggregator
	Registry   ports.AssetRegistry
	Exporter   DashboardExporter
	logger     *zap.Logger
}

// NewDashboardHandler creates a new DashboardHandler
func NewDashboardHandler(aggregator ports.Aggregator, registry ports.AssetRegistry, exporter DashboardExporter, logger *zap.Logger) *DashboardHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &DashboardHandler{
		Aggregator: aggregator,
		Registry:   registry,
		Exporter:   exporter,
		logger:     logger.Named("dashboard"),
	}
}

type topRecordView struct {
	ID        string   `json:"cve_id"`
	Score     *float64 `json:"cvss_score,omitempty"`
	AppliesTo string   `json:"cpe_related,omitempty"`
}

type recentRecordView struct {
	ID        string `json:"cve_id"`
	Published string `json:"published"`
}

type dashboardResponse struct {
	TotalCVEs            int                `json:"total_cves"`
	Top10Critical        []topRecordView    `json:"top_10_critical"`
	RecentCVEs           []recentRecordView `json:"recent_cves"`
	SeverityDistribution map[string]int     `json:"severity_distribution"`
}

func newDashboardResponse(snap domain.DashboardSnapshot) dashboardResponse {
	resp := dashboardResponse{
		TotalCVEs:            snap.TotalCount,
		Top10Critical:        make([]topRecordView, 0, len(snap.Top10ByScore)),
		RecentCVEs:           make([]recentRecordView, 0, len(snap.RecentWindow)),
		SeverityDistribution: make(map[string]int, len(domain.Severities)),
	}
	for _, rec := range snap.Top10ByScore {
		resp.Top10Critical = append(resp.Top10Critical, topRecordView{ID: rec.ID, Score: rec.Score, AppliesTo: rec.AppliesTo})
	}
	for _, rec := range snap.RecentWindow {
		resp.RecentCVEs = append(resp.RecentCVEs, recentRecordView{ID: rec.ID, Published: formatPublished(rec.Published)})
	}
	for _, sev := range domain.Severities {
		resp.SeverityDistribution[sev.String()] = snap.SeverityHistogram[sev]
	}
	return resp
}

// HandleDashboard returns the dashboard rollups.
func (h *DashboardHandler) HandleDashboard(w http.ResponseWriter, r *http.Request) {
	snap := h.Aggregator.ComputeDashboard(r.Context())
	writeJSON(w, http.StatusOK, newDashboardResponse(snap))
}

// HandleReport renders the dashboard and the fleet exposure as a PDF download.
func (h *DashboardHandler) HandleReport(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	snap := h.Aggregator.ComputeDashboard(ctx)

	assets, err := h.Registry.List(ctx)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}

	fleet := make([]reporting.FleetRow, 0, len(assets))
	for _, asset := range assets {
		fleet = append(fleet, reporting.FleetRow{
			Asset:    asset,
			Exposure: h.Aggregator.ComputeAssetExposure(ctx, asset),
		})
	}

	pdf, err := h.Exporter.ExportDashboard(reporting.DashboardReport{Snapshot: snap, Fleet: fleet})
	if err != nil {
		writeError(w, h.logger, err)
		return
	}

	filename := fmt.Sprintf("vulnfleet-report-%s.pdf", snap.GeneratedAt.Format("20060102-150405"))
	w.Header().Set("Content-Type", "application/pdf")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", filename))
	w.WriteHeader(http.StatusOK)
	w.Write(pdf)
}
