package cve

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/hashicorp/go-multierror"
	"go.uber.org/zap"

	"github.com/lcalzada-xor/vulnfleet/internal/core/domain"
)

// SeedLoader is an offline feed fetcher backed by JSON seed files.
// Every file holds an array of vulnerability records in the API wire shape.
type SeedLoader struct {
	paths  []string
	logger *zap.Logger
}

// NewSeedLoader creates a new seed loader over one or more files.
func NewSeedLoader(logger *zap.Logger, paths ...string) *SeedLoader {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &SeedLoader{paths: paths, logger: logger.Named("cve-seed")}
}

// Fetch returns every record of every seed file. The seed is a full mirror,
// so the platform identifiers do not narrow it; correlation does the matching.
func (s *SeedLoader) Fetch(ctx context.Context, _ []string) ([]domain.VulnerabilityRecord, error) {
	return s.LoadFromMultipleFiles(ctx, s.paths)
}

// LoadFromFile loads CVE records from a JSON file.
func (s *SeedLoader) LoadFromFile(ctx context.Context, path string) ([]domain.VulnerabilityRecord, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read seed file: %w", err)
	}

	var entries []seedEntry
	if err := json.Unmarshal(data, &entries); err != nil {
		return nil, fmt.Errorf("failed to parse seed file %s: %w", path, err)
	}

	records := make([]domain.VulnerabilityRecord, 0, len(entries))
	for i, entry := range entries {
		rec, err := entry.toRecord()
		if err != nil {
			return nil, fmt.Errorf("%w: seed file %s entry %d: %v", domain.ErrInvalidInput, path, i, err)
		}
		records = append(records, rec)
	}

	s.logger.Info("seed file loaded",
		zap.String("path", path),
		zap.String("records", humanize.Comma(int64(len(records)))))
	return records, nil
}

// seedEntry is one record of a seed file. Timestamps stay strings so any of
// the ISO-8601 forms the feeds emit can be parsed.
type seedEntry struct {
	ID           string          `json:"cve_id"`
	AppliesTo    string          `json:"cpe_related"`
	Severity     domain.Severity `json:"severity"`
	Score        *float64        `json:"cvss_score"`
	Description  string          `json:"description"`
	Published    string          `json:"published"`
	LastModified string          `json:"last_modified"`
}

func (e seedEntry) toRecord() (domain.VulnerabilityRecord, error) {
	if e.ID == "" {
		return domain.VulnerabilityRecord{}, fmt.Errorf("no cve_id")
	}
	published, err := parseSeedTime(e.Published)
	if err != nil {
		return domain.VulnerabilityRecord{}, fmt.Errorf("%s published: %w", e.ID, err)
	}
	modified, err := parseSeedTime(e.LastModified)
	if err != nil {
		return domain.VulnerabilityRecord{}, fmt.Errorf("%s last_modified: %w", e.ID, err)
	}
	return domain.VulnerabilityRecord{
		ID:           e.ID,
		AppliesTo:    e.AppliesTo,
		Severity:     e.Severity,
		Score:        e.Score,
		Description:  e.Description,
		Published:    published,
		LastModified: modified,
	}, nil
}

// parseSeedTime accepts an empty value as "no timestamp" and rejects
// anything that is not one of the known layouts.
func parseSeedTime(s string) (time.Time, error) {
	if s == "" {
		return time.Time{}, nil
	}
	t := parseNVDTime(s)
	if t.IsZero() {
		return time.Time{}, fmt.Errorf("unrecognized timestamp %q", s)
	}
	return t, nil
}

// LoadFromMultipleFiles loads CVEs from multiple JSON files.
// Any failing file fails the whole load so a partial feed is never committed.
func (s *SeedLoader) LoadFromMultipleFiles(ctx context.Context, paths []string) ([]domain.VulnerabilityRecord, error) {
	var all []domain.VulnerabilityRecord
	var errs error

	for _, path := range paths {
		records, err := s.LoadFromFile(ctx, path)
		if err != nil {
			errs = multierror.Append(errs, err)
			continue
		}
		all = append(all, records...)
	}
	if errs != nil {
		return nil, errs
	}

	return all, nil
}
