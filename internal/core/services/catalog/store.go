// Package catalog holds the in-memory vulnerability store.
//
// The store is a versioned snapshot: the record set and its generation are
// published together through a single atomic pointer, so readers never observe
// a generation that does not belong to the records they read. Writers are
// serialized and persist a batch before publishing it.
package catalog

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/dustin/go-humanize"
	"go.uber.org/zap"

	"github.com/lcalzada-xor/vulnfleet/internal/core/domain"
	"github.com/lcalzada-xor/vulnfleet/internal/core/ports"
	"github.com/lcalzada-xor/vulnfleet/internal/telemetry"
)

type snapshot struct {
	generation uint64
	records    []domain.VulnerabilityRecord
	index      map[string]int
}

var emptySnapshot = &snapshot{index: map[string]int{}}

// View is a consistent, read-only view of one store generation.
type View struct {
	s *snapshot
}

// Generation returns the generation this view was published under.
func (v View) Generation() uint64 { return v.s.generation }

// Len returns the number of records.
func (v View) Len() int { return len(v.s.records) }

// Records returns the records in store iteration order (first ingestion order).
// The returned slice is shared and must not be modified.
func (v View) Records() []domain.VulnerabilityRecord { return v.s.records }

// Get returns the record with the given ID.
func (v View) Get(id string) (domain.VulnerabilityRecord, bool) {
	i, ok := v.s.index[id]
	if !ok {
		return domain.VulnerabilityRecord{}, false
	}
	return v.s.records[i], true
}

// Store is the vulnerability store. The zero value is not usable; use NewStore.
type Store struct {
	current atomic.Pointer[snapshot]
	mu      sync.Mutex // serializes writers
	repo    ports.CVERepository
	logger  *zap.Logger
}

// NewStore creates an empty store. repo may be nil for a memory-only store.
func NewStore(repo ports.CVERepository, logger *zap.Logger) *Store {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Store{repo: repo, logger: logger.Named("catalog")}
	s.current.Store(emptySnapshot)
	return s
}

// Load replaces the in-memory state with the content of the durable repository.
func (s *Store) Load(ctx context.Context) error {
	if s.repo == nil {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	records, generation, err := s.repo.LoadAll(ctx)
	if err != nil {
		return fmt.Errorf("failed to load vulnerability store: %w", err)
	}

	next := &snapshot{
		generation: generation,
		records:    make([]domain.VulnerabilityRecord, 0, len(records)),
		index:      make(map[string]int, len(records)),
	}
	for _, rec := range records {
		next.upsert(rec)
	}
	s.publish(next)

	s.logger.Info("vulnerability store loaded",
		zap.String("records", humanize.Comma(int64(len(next.records)))),
		zap.Uint64("generation", generation))
	return nil
}

// Snapshot returns a consistent view of the current generation.
func (s *Store) Snapshot() View {
	return View{s: s.current.Load()}
}

// Generation returns the current generation.
func (s *Store) Generation() uint64 {
	return s.current.Load().generation
}

// Commit upserts batch into the store as one new generation and returns it.
// Within the batch the last record for an ID wins. The batch is persisted
// before it becomes visible; on any error nothing is published.
func (s *Store) Commit(ctx context.Context, batch []domain.VulnerabilityRecord) (uint64, error) {
	unique, err := dedupe(batch)
	if err != nil {
		return 0, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	cur := s.current.Load()
	next := cur.clone()
	next.generation = cur.generation + 1
	for _, rec := range unique {
		next.upsert(rec)
	}

	if s.repo != nil {
		if err := s.repo.CommitBatch(ctx, unique, next.generation); err != nil {
			return 0, fmt.Errorf("failed to persist batch: %w", err)
		}
	}

	s.publish(next)
	s.logger.Debug("generation committed",
		zap.Uint64("generation", next.generation),
		zap.Int("batch", len(unique)),
		zap.Int("records", len(next.records)))
	return next.generation, nil
}

func (s *Store) publish(next *snapshot) {
	s.current.Store(next)
	telemetry.StoreGeneration.Set(float64(next.generation))
	telemetry.StoreRecords.Set(float64(len(next.records)))
}

func (sn *snapshot) clone() *snapshot {
	next := &snapshot{
		generation: sn.generation,
		records:    make([]domain.VulnerabilityRecord, len(sn.records), len(sn.records)+16),
		index:      make(map[string]int, len(sn.index)),
	}
	copy(next.records, sn.records)
	for id, i := range sn.index {
		next.index[id] = i
	}
	return next
}

// upsert replaces an existing record in place, keeping its position, or appends a new one.
func (sn *snapshot) upsert(rec domain.VulnerabilityRecord) {
	if i, ok := sn.index[rec.ID]; ok {
		sn.records[i] = rec
		return
	}
	sn.index[rec.ID] = len(sn.records)
	sn.records = append(sn.records, rec)
}

// dedupe keeps the last occurrence of every ID at the position of its first occurrence.
func dedupe(batch []domain.VulnerabilityRecord) ([]domain.VulnerabilityRecord, error) {
	unique := make([]domain.VulnerabilityRecord, 0, len(batch))
	pos := make(map[string]int, len(batch))
	for _, rec := range batch {
		if rec.ID == "" {
			return nil, fmt.Errorf("%w: record without identifier", domain.ErrInvalidInput)
		}
		if i, ok := pos[rec.ID]; ok {
			unique[i] = rec
			continue
		}
		pos[rec.ID] = len(unique)
		unique = append(unique, rec)
	}
	return unique, nil
}
