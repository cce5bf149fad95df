package ports

import (
	"context"

	"github.com/lcalzada-xor/vulnfleet/internal/core/domain"
)

// CVERepository defines the durable side of the vulnerability store.
type CVERepository interface {
	// LoadAll returns every record in ingestion order together with the persisted generation.
	LoadAll(ctx context.Context) ([]domain.VulnerabilityRecord, uint64, error)

	// CommitBatch upserts the batch and records the new generation in a single transaction.
	// Either the whole batch is persisted or none of it is.
	CommitBatch(ctx context.Context, records []domain.VulnerabilityRecord, generation uint64) error

	// Get specific CVE by ID
	GetByID(ctx context.Context, cveID string) (*domain.VulnerabilityRecord, error)

	// Sync bookkeeping
	GetSyncStatus(ctx context.Context) (domain.CVESyncStatus, error)
	UpdateSyncStatus(ctx context.Context, status domain.CVESyncStatus) error

	// Utility
	GetTotalCount(ctx context.Context) (int, error)
	Close() error
}

// FeedFetcher retrieves the full upstream record set for the given platform identifiers.
// Implementations must fail as a whole: a partial result is never returned with a nil error.
type FeedFetcher interface {
	Fetch(ctx context.Context, platformIDs []string) ([]domain.VulnerabilityRecord, error)
}

// Correlator resolves a platform identifier to its matching records.
type Correlator interface {
	MatchPlatform(ctx context.Context, platformID string) domain.CorrelationResult
}

// CacheInvalidator is notified once per completed refresh.
type CacheInvalidator interface {
	InvalidateAll()
}

// SyncStatusRecorder persists the outcome of the last synchronization.
type SyncStatusRecorder interface {
	UpdateSyncStatus(ctx context.Context, status domain.CVESyncStatus) error
}

// Synchronizer sequences feed refreshes. At most one refresh runs at a time.
type Synchronizer interface {
	TriggerRefresh(ctx context.Context) domain.RefreshTicket
	Status() domain.SyncStatus
}

// Aggregator computes fleet-wide rollups and per-asset exposure.
type Aggregator interface {
	ComputeDashboard(ctx context.Context) domain.DashboardSnapshot
	ComputeAssetExposure(ctx context.Context, asset domain.Asset) domain.AssetExposure
}
