// Package feedsync orchestrates refreshes of the vulnerability store from the upstream feed.
//
// A refresh is fire-and-forget: TriggerRefresh answers immediately and the job
// runs in its own goroutine. At most one job is in flight; a request made while
// one runs is rejected rather than queued. Completion is observed through Status.
package feedsync

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.uber.org/zap"

	"github.com/lcalzada-xor/vulnfleet/internal/core/domain"
	"github.com/lcalzada-xor/vulnfleet/internal/core/ports"
	"github.com/lcalzada-xor/vulnfleet/internal/telemetry"
)

// DefaultTimeout bounds a single refresh job.
const DefaultTimeout = 10 * time.Minute

// ReasonClosed is reported when a refresh is requested after Close.
const ReasonClosed = "synchronizer closed"

// Committer atomically publishes a batch as a new store generation.
type Committer interface {
	Commit(ctx context.Context, batch []domain.VulnerabilityRecord) (uint64, error)
}

// Synchronizer implements ports.Synchronizer.
type Synchronizer struct {
	platforms ports.PlatformSource
	fetcher   ports.FeedFetcher
	store     Committer
	cache     ports.CacheInvalidator
	recorder  ports.SyncStatusRecorder
	timeout   time.Duration
	now       func() time.Time
	logger    *zap.Logger

	// base is cancelled by Close; jobs never inherit a request context.
	base       context.Context
	cancelBase context.CancelFunc
	jobs       sync.WaitGroup

	mu      sync.Mutex // guards the fields below, never held during I/O
	state   domain.RefreshState
	current *domain.RefreshJob
	last    *domain.RefreshJob
	closed  bool
}

// Option configures a Synchronizer.
type Option func(*Synchronizer)

// WithTimeout overrides DefaultTimeout. Non-positive values keep the default.
func WithTimeout(d time.Duration) Option {
	return func(s *Synchronizer) {
		if d > 0 {
			s.timeout = d
		}
	}
}

// WithStatusRecorder persists every job outcome through r.
func WithStatusRecorder(r ports.SyncStatusRecorder) Option {
	return func(s *Synchronizer) { s.recorder = r }
}

// WithClock overrides the clock used for job timestamps.
func WithClock(now func() time.Time) Option {
	return func(s *Synchronizer) { s.now = now }
}

// New creates an idle synchronizer.
func New(platforms ports.PlatformSource, fetcher ports.FeedFetcher, store Committer, cache ports.CacheInvalidator, logger *zap.Logger, opts ...Option) *Synchronizer {
	if logger == nil {
		logger = zap.NewNop()
	}
	base, cancel := context.WithCancel(context.Background())
	s := &Synchronizer{
		platforms:  platforms,
		fetcher:    fetcher,
		store:      store,
		cache:      cache,
		timeout:    DefaultTimeout,
		now:        time.Now,
		logger:     logger.Named("feedsync"),
		base:       base,
		cancelBase: cancel,
		state:      domain.RefreshIdle,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// TriggerRefresh starts a refresh job unless one is already running.
// It never blocks on the job itself.
func (s *Synchronizer) TriggerRefresh(ctx context.Context) domain.RefreshTicket {
	_, span := otel.Tracer("feedsync").Start(ctx, "TriggerRefresh")
	defer span.End()

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		telemetry.RefreshRequests.WithLabelValues("rejected").Inc()
		return domain.RefreshTicket{Accepted: false, Reason: ReasonClosed}
	}
	if s.state == domain.RefreshRefreshing {
		jobID := s.current.ID
		s.mu.Unlock()
		telemetry.RefreshRequests.WithLabelValues("rejected").Inc()
		span.SetAttributes(attribute.Bool("accepted", false))
		s.logger.Debug("refresh rejected", zap.String("running_job", jobID))
		return domain.RefreshTicket{Accepted: false, Reason: domain.ReasonAlreadyInProgress}
	}

	job := &domain.RefreshJob{
		ID:        uuid.New().String(),
		StartedAt: s.now(),
		Outcome:   domain.JobRunning,
	}
	s.state = domain.RefreshRefreshing
	s.current = job
	s.jobs.Add(1)
	s.mu.Unlock()

	telemetry.RefreshRequests.WithLabelValues("accepted").Inc()
	span.SetAttributes(attribute.Bool("accepted", true), attribute.String("job.id", job.ID))
	s.logger.Info("refresh accepted", zap.String("job_id", job.ID))

	go s.run(job.ID)

	return domain.RefreshTicket{Accepted: true, JobID: job.ID}
}

// Status returns the current state with copies of the running and last finished jobs.
func (s *Synchronizer) Status() domain.SyncStatus {
	s.mu.Lock()
	defer s.mu.Unlock()

	status := domain.SyncStatus{State: s.state}
	if s.current != nil {
		cur := *s.current
		status.Current = &cur
	}
	if s.last != nil {
		last := *s.last
		status.Last = &last
	}
	return status
}

// Run triggers a refresh every interval until ctx is done. A zero interval disables it.
func (s *Synchronizer) Run(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		s.logger.Info("periodic refresh disabled")
		return
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	s.logger.Info("periodic refresh scheduled", zap.Duration("interval", interval))
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if ticket := s.TriggerRefresh(ctx); !ticket.Accepted {
				s.logger.Info("scheduled refresh skipped", zap.String("reason", ticket.Reason))
			}
		}
	}
}

// Close rejects new refreshes, cancels an in-flight job and waits for it to finish.
func (s *Synchronizer) Close() {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()

	s.cancelBase()
	s.jobs.Wait()
}

// Wait blocks until no job is running.
func (s *Synchronizer) Wait() {
	s.jobs.Wait()
}

func (s *Synchronizer) run(jobID string) {
	defer s.jobs.Done()

	ctx, cancel := context.WithTimeout(s.base, s.timeout)
	defer cancel()

	ctx, span := otel.Tracer("feedsync").Start(ctx, "RefreshJob")
	defer span.End()
	span.SetAttributes(attribute.String("job.id", jobID))

	started := time.Now()
	ingested, generation, err := s.refresh(ctx)
	telemetry.RefreshDuration.Observe(time.Since(started).Seconds())

	if err != nil && ctx.Err() != nil {
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			err = fmt.Errorf("%w: refresh timed out after %s: %v", domain.ErrUpstreamUnavailable, s.timeout, err)
		} else {
			err = fmt.Errorf("refresh cancelled: %w", err)
		}
	}

	s.mu.Lock()
	job := s.current
	job.FinishedAt = s.now()
	job.RecordsIngested = ingested
	if err != nil {
		job.Outcome = domain.JobFailed
		job.Error = err.Error()
	} else {
		job.Outcome = domain.JobSucceeded
		job.Generation = generation
	}
	finished := *job
	s.last = &finished
	s.current = nil
	s.state = domain.RefreshIdle
	s.mu.Unlock()

	telemetry.RefreshJobs.WithLabelValues(string(finished.Outcome)).Inc()
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		s.logger.Error("refresh failed, store unchanged", zap.String("job_id", jobID), zap.Error(err))
	} else {
		s.logger.Info("refresh completed",
			zap.String("job_id", jobID),
			zap.Int("records", ingested),
			zap.Uint64("generation", generation),
			zap.Duration("took", time.Since(started)))
	}

	s.recordStatus(finished)
}

// refresh fetches the whole feed for the fleet and commits it as one generation.
func (s *Synchronizer) refresh(ctx context.Context) (int, uint64, error) {
	platformIDs, err := s.platforms.PlatformIDs(ctx)
	if err != nil {
		return 0, 0, fmt.Errorf("failed to list platform identifiers: %w", err)
	}

	records, err := s.fetcher.Fetch(ctx, platformIDs)
	if err != nil {
		return 0, 0, fmt.Errorf("fetch failed: %w", err)
	}
	if err := ctx.Err(); err != nil {
		return 0, 0, err
	}

	generation, err := s.store.Commit(ctx, records)
	if err != nil {
		return 0, 0, fmt.Errorf("commit failed: %w", err)
	}

	if s.cache != nil {
		s.cache.InvalidateAll()
	}
	return len(records), generation, nil
}

func (s *Synchronizer) recordStatus(job domain.RefreshJob) {
	if s.recorder == nil {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	status := domain.CVESyncStatus{
		LastSyncTime: job.FinishedAt,
		RecordCount:  job.RecordsIngested,
		Generation:   job.Generation,
		ErrorMessage: job.Error,
	}
	if err := s.recorder.UpdateSyncStatus(ctx, status); err != nil {
		s.logger.Warn("failed to persist sync status", zap.Error(err))
	}
}

var _ ports.Synchronizer = (*Synchronizer)(nil)
