// Package correlation resolves platform identifiers against the vulnerability store.
package correlation

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"

	"github.com/lcalzada-xor/vulnfleet/internal/core/domain"
	"github.com/lcalzada-xor/vulnfleet/internal/core/ports"
	"github.com/lcalzada-xor/vulnfleet/internal/core/services/catalog"
)

// ResultCache memoizes correlation results per (platform identifier, generation).
type ResultCache interface {
	Get(platformID string, generation uint64) (domain.CorrelationResult, bool)
	Set(result domain.CorrelationResult)
}

// Engine implements ports.Correlator over a catalog store.
type Engine struct {
	store  *catalog.Store
	cache  ResultCache
	logger *zap.Logger
}

// NewEngine creates a correlation engine. cache may be nil to disable memoization.
func NewEngine(store *catalog.Store, cache ResultCache, logger *zap.Logger) *Engine {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Engine{store: store, cache: cache, logger: logger.Named("correlation")}
}

// MatchPlatform returns every record whose pattern applies to platformID, in store
// iteration order, with the worst severity among them. It never fails: an empty
// identifier or no match yields an empty result with SeverityUnknown.
func (e *Engine) MatchPlatform(ctx context.Context, platformID string) domain.CorrelationResult {
	_, span := otel.Tracer("correlation").Start(ctx, "MatchPlatform")
	defer span.End()
	span.SetAttributes(attribute.String("platform.id", platformID))

	// generation and records come from the same snapshot
	view := e.store.Snapshot()
	generation := view.Generation()

	if platformID == "" {
		return domain.CorrelationResult{WorstSeverity: domain.SeverityUnknown, Generation: generation}
	}

	if e.cache != nil {
		if cached, ok := e.cache.Get(platformID, generation); ok {
			span.SetAttributes(attribute.Bool("cache.hit", true), attribute.Int("matches", len(cached.Matches)))
			return cached
		}
	}

	target := splitSegments(platformID)
	result := domain.CorrelationResult{
		PlatformID:    platformID,
		WorstSeverity: domain.SeverityUnknown,
		Generation:    generation,
	}
	for _, rec := range view.Records() {
		if !matchSegments(splitSegments(rec.AppliesTo), target) {
			continue
		}
		result.Matches = append(result.Matches, rec)
		result.WorstSeverity = domain.MaxSeverity(result.WorstSeverity, rec.Severity)
	}

	if e.cache != nil {
		e.cache.Set(result)
	}

	span.SetAttributes(attribute.Bool("cache.hit", false), attribute.Int("matches", len(result.Matches)))
	e.logger.Debug("platform correlated",
		zap.String("platform_id", platformID),
		zap.Int("matches", len(result.Matches)),
		zap.Stringer("worst", result.WorstSeverity),
		zap.Uint64("generation", generation))
	return result
}

var _ ports.Correlator = (*Engine)(nil)
