// Package aggregation folds the vulnerability store into dashboard rollups
// and per-asset exposure.
package aggregation

import (
	"context"
	"sort"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"

	"github.com/lcalzada-xor/vulnfleet/internal/core/domain"
	"github.com/lcalzada-xor/vulnfleet/internal/core/ports"
	"github.com/lcalzada-xor/vulnfleet/internal/core/services/catalog"
)

const (
	// TopN is the size of the highest-score list.
	TopN = 10
	// RecentWindow is how far back the recent list reaches.
	RecentWindow = 7 * 24 * time.Hour
)

// Engine computes dashboard and asset rollups.
type Engine struct {
	store      *catalog.Store
	correlator ports.Correlator
	now        func() time.Time
	logger     *zap.Logger
}

// Option configures an Engine.
type Option func(*Engine)

// WithClock overrides the clock used for the recent window.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) { e.now = now }
}

// NewEngine creates an aggregation engine.
func NewEngine(store *catalog.Store, correlator ports.Correlator, logger *zap.Logger, opts ...Option) *Engine {
	if logger == nil {
		logger = zap.NewNop()
	}
	e := &Engine{
		store:      store,
		correlator: correlator,
		now:        time.Now,
		logger:     logger.Named("aggregation"),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// ComputeDashboard builds every rollup from a single store snapshot.
func (e *Engine) ComputeDashboard(ctx context.Context) domain.DashboardSnapshot {
	_, span := otel.Tracer("aggregation").Start(ctx, "ComputeDashboard")
	defer span.End()

	view := e.store.Snapshot()
	records := view.Records()
	now := e.now()

	snap := domain.DashboardSnapshot{
		TotalCount:        len(records),
		Top10ByScore:      topByScore(records, TopN),
		RecentWindow:      publishedWithin(records, now.Add(-RecentWindow), now),
		SeverityHistogram: histogram(records),
		Generation:        view.Generation(),
		GeneratedAt:       now,
	}

	span.SetAttributes(
		attribute.Int("records", snap.TotalCount),
		attribute.Int64("generation", int64(snap.Generation)),
	)
	return snap
}

// ComputeAssetSeverity returns the worst severity affecting asset.
func (e *Engine) ComputeAssetSeverity(ctx context.Context, asset domain.Asset) domain.Severity {
	return e.correlator.MatchPlatform(ctx, asset.PlatformID).WorstSeverity
}

// ComputeAssetExposure returns the match count, worst severity and badge for asset.
func (e *Engine) ComputeAssetExposure(ctx context.Context, asset domain.Asset) domain.AssetExposure {
	result := e.correlator.MatchPlatform(ctx, asset.PlatformID)
	return domain.AssetExposure{
		AssetID:       asset.ID,
		Count:         len(result.Matches),
		WorstSeverity: result.WorstSeverity,
		BadgeClass:    result.WorstSeverity.BadgeClass(),
	}
}

// topByScore returns the n highest scored records. Absent scores count as 0
// and ties keep store order.
func topByScore(records []domain.VulnerabilityRecord, n int) []domain.VulnerabilityRecord {
	sorted := make([]domain.VulnerabilityRecord, len(records))
	copy(sorted, records)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].ScoreOrZero() > sorted[j].ScoreOrZero()
	})
	if len(sorted) > n {
		sorted = sorted[:n]
	}
	return sorted
}

// publishedWithin returns records published in [from, to], newest first.
// Records without a publication time are left out.
func publishedWithin(records []domain.VulnerabilityRecord, from, to time.Time) []domain.VulnerabilityRecord {
	recent := make([]domain.VulnerabilityRecord, 0)
	for _, rec := range records {
		if rec.Published.IsZero() || rec.Published.Before(from) || rec.Published.After(to) {
			continue
		}
		recent = append(recent, rec)
	}
	sort.SliceStable(recent, func(i, j int) bool {
		return recent[i].Published.After(recent[j].Published)
	})
	return recent
}

func histogram(records []domain.VulnerabilityRecord) map[domain.Severity]int {
	counts := make(map[domain.Severity]int, len(domain.Severities))
	for _, sev := range domain.Severities {
		counts[sev] = 0
	}
	for _, rec := range records {
		counts[rec.Severity]++
	}
	return counts
}

var _ ports.Aggregator = (*Engine)(nil)
