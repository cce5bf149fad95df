package domain

import "time"

// VulnerabilityRecord is a published vulnerability (CVE) as ingested from the upstream feed.
// Records are immutable once ingested; a newer ingest with the same ID replaces the value.
type VulnerabilityRecord struct {
	ID          string   `json:"cve_id"`      // e.g., "CVE-2021-41773"
	AppliesTo   string   `json:"cpe_related"` // platform pattern, e.g., "cpe:2.3:a:apache:http_server:2.4.49:*:*:*:*:*:*:*"
	Severity    Severity `json:"severity"`
	Score       *float64 `json:"cvss_score,omitempty"` // CVSS base score 0-10, absent when unscored
	Description string   `json:"description"`

	Published    time.Time `json:"published"`
	LastModified time.Time `json:"last_modified"`
}

// ScoreOrZero returns the CVSS score, treating an absent score as 0.
func (r VulnerabilityRecord) ScoreOrZero() float64 {
	if r.Score == nil {
		return 0
	}
	return *r.Score
}

// Float64 returns a pointer to v, for populating optional scores.
func Float64(v float64) *float64 {
	return &v
}

// CorrelationResult is the set of records matching one platform identifier.
type CorrelationResult struct {
	PlatformID    string
	Matches       []VulnerabilityRecord
	WorstSeverity Severity
	Generation    uint64
}

// DashboardSnapshot holds fleet-wide rollups computed from one store generation.
type DashboardSnapshot struct {
	TotalCount        int
	Top10ByScore      []VulnerabilityRecord
	RecentWindow      []VulnerabilityRecord
	SeverityHistogram map[Severity]int
	Generation        uint64
	GeneratedAt       time.Time
}

// AssetExposure summarizes what is known to affect a single asset.
type AssetExposure struct {
	AssetID       int64    `json:"id"`
	Count         int      `json:"count"`
	WorstSeverity Severity `json:"worst_severity"`
	BadgeClass    string   `json:"badge"`
}

// CVESyncStatus tracks the last committed synchronization with the upstream feed.
type CVESyncStatus struct {
	LastSyncTime time.Time `json:"last_sync_time"`
	RecordCount  int       `json:"record_count"`
	Generation   uint64    `json:"generation"`
	ErrorMessage string    `json:"error_message,omitempty"`
}
