package feedsync

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/lcalzada-xor/vulnfleet/internal/core/domain"
	"github.com/lcalzada-xor/vulnfleet/internal/core/services/catalog"
	"github.com/lcalzada-xor/vulnfleet/internal/core/services/querycache"
)

const platform = "cpe:2.3:a:vendor:product:1.0:*:*:*:*:*:*:*"

type staticPlatforms []string

func (p staticPlatforms) PlatformIDs(context.Context) ([]string, error) { return p, nil }

// fetchFunc adapts a function to ports.FeedFetcher.
type fetchFunc func(ctx context.Context, platformIDs []string) ([]domain.VulnerabilityRecord, error)

func (f fetchFunc) Fetch(ctx context.Context, platformIDs []string) ([]domain.VulnerabilityRecord, error) {
	return f(ctx, platformIDs)
}

// MockStatusRecorder is a mock of ports.SyncStatusRecorder
type MockStatusRecorder struct {
	mock.Mock
}

func (m *MockStatusRecorder) UpdateSyncStatus(ctx context.Context, status domain.CVESyncStatus) error {
	return m.Called(ctx, status).Error(0)
}

func feed(records ...domain.VulnerabilityRecord) fetchFunc {
	return func(context.Context, []string) ([]domain.VulnerabilityRecord, error) {
		return records, nil
	}
}

var critical = domain.VulnerabilityRecord{ID: "CVE-A", AppliesTo: platform, Severity: domain.SeverityCritical, Score: domain.Float64(9.8)}

func newSync(t *testing.T, fetcher fetchFunc, opts ...Option) (*Synchronizer, *catalog.Store, *querycache.Cache) {
	t.Helper()
	logger := zaptest.NewLogger(t)
	store := catalog.NewStore(nil, logger)
	cache := querycache.New(0)
	s := New(staticPlatforms{platform}, fetcher, store, cache, logger, opts...)
	t.Cleanup(s.Close)
	return s, store, cache
}

func TestTriggerRefresh_Succeeds(t *testing.T) {
	s, store, _ := newSync(t, feed(critical))

	ticket := s.TriggerRefresh(context.Background())
	require.True(t, ticket.Accepted)
	assert.NotEmpty(t, ticket.JobID)
	assert.Empty(t, ticket.Reason)

	s.Wait()

	status := s.Status()
	assert.Equal(t, domain.RefreshIdle, status.State)
	assert.Nil(t, status.Current)
	require.NotNil(t, status.Last)
	assert.Equal(t, ticket.JobID, status.Last.ID)
	assert.Equal(t, domain.JobSucceeded, status.Last.Outcome)
	assert.Equal(t, 1, status.Last.RecordsIngested)
	assert.Equal(t, uint64(1), status.Last.Generation)
	assert.False(t, status.Last.FinishedAt.IsZero())

	assert.Equal(t, uint64(1), store.Generation())
	_, ok := store.Snapshot().Get("CVE-A")
	assert.True(t, ok)
}

func TestTriggerRefresh_SimultaneousTriggersRunOneJob(t *testing.T) {
	release := make(chan struct{})
	var fetches int32
	s, _, _ := newSync(t, func(ctx context.Context, _ []string) ([]domain.VulnerabilityRecord, error) {
		atomic.AddInt32(&fetches, 1)
		<-release
		return []domain.VulnerabilityRecord{critical}, nil
	})

	var accepted, rejected int32
	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			ticket := s.TriggerRefresh(context.Background())
			if ticket.Accepted {
				atomic.AddInt32(&accepted, 1)
				return
			}
			assert.Equal(t, domain.ReasonAlreadyInProgress, ticket.Reason)
			atomic.AddInt32(&rejected, 1)
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(1), accepted)
	assert.Equal(t, int32(19), rejected)

	status := s.Status()
	assert.Equal(t, domain.RefreshRefreshing, status.State)
	require.NotNil(t, status.Current)
	assert.Equal(t, domain.JobRunning, status.Current.Outcome)

	close(release)
	s.Wait()

	assert.Equal(t, int32(1), atomic.LoadInt32(&fetches))
	assert.Equal(t, domain.RefreshIdle, s.Status().State)

	// a new request is accepted once idle again
	assert.True(t, s.TriggerRefresh(context.Background()).Accepted)
}

func TestTriggerRefresh_FailedFetchLeavesStoreUntouched(t *testing.T) {
	calls := 0
	s, store, _ := newSync(t, func(context.Context, []string) ([]domain.VulnerabilityRecord, error) {
		calls++
		if calls == 1 {
			return []domain.VulnerabilityRecord{critical}, nil
		}
		return nil, domain.ErrUpstreamUnavailable
	})

	require.True(t, s.TriggerRefresh(context.Background()).Accepted)
	s.Wait()
	before := store.Snapshot()

	require.True(t, s.TriggerRefresh(context.Background()).Accepted)
	s.Wait()

	status := s.Status()
	assert.Equal(t, domain.RefreshIdle, status.State)
	require.NotNil(t, status.Last)
	assert.Equal(t, domain.JobFailed, status.Last.Outcome)
	assert.Contains(t, status.Last.Error, "upstream unavailable")

	after := store.Snapshot()
	assert.Equal(t, before.Generation(), after.Generation())
	assert.Equal(t, before.Records(), after.Records())
}

func TestTriggerRefresh_FailedCommitLeavesStateIdle(t *testing.T) {
	s, store, _ := newSync(t, feed(domain.VulnerabilityRecord{Description: "no id"}))

	require.True(t, s.TriggerRefresh(context.Background()).Accepted)
	s.Wait()

	status := s.Status()
	assert.Equal(t, domain.RefreshIdle, status.State)
	assert.Equal(t, domain.JobFailed, status.Last.Outcome)
	assert.Equal(t, uint64(0), store.Generation())
}

func TestTriggerRefresh_TimeoutReturnsToIdle(t *testing.T) {
	s, store, _ := newSync(t, func(ctx context.Context, _ []string) ([]domain.VulnerabilityRecord, error) {
		<-ctx.Done()
		return nil, ctx.Err()
	}, WithTimeout(20*time.Millisecond))

	require.True(t, s.TriggerRefresh(context.Background()).Accepted)
	s.Wait()

	status := s.Status()
	assert.Equal(t, domain.RefreshIdle, status.State)
	require.NotNil(t, status.Last)
	assert.Equal(t, domain.JobFailed, status.Last.Outcome)
	assert.Contains(t, status.Last.Error, "timed out")
	assert.Contains(t, status.Last.Error, domain.ErrUpstreamUnavailable.Error())
	assert.Equal(t, uint64(0), store.Generation())
}

func TestTriggerRefresh_InvalidatesCache(t *testing.T) {
	s, store, cache := newSync(t, feed(critical))

	cache.Set(domain.CorrelationResult{PlatformID: platform, WorstSeverity: domain.SeverityLow, Generation: store.Generation()})
	require.Equal(t, 1, cache.Len())

	require.True(t, s.TriggerRefresh(context.Background()).Accepted)
	s.Wait()

	assert.Equal(t, 0, cache.Len())
	_, ok := cache.Get(platform, store.Generation())
	assert.False(t, ok)
}

func TestTriggerRefresh_JobOutlivesRequestContext(t *testing.T) {
	s, store, _ := newSync(t, feed(critical))

	ctx, cancel := context.WithCancel(context.Background())
	require.True(t, s.TriggerRefresh(ctx).Accepted)
	cancel()
	s.Wait()

	assert.Equal(t, domain.JobSucceeded, s.Status().Last.Outcome)
	assert.Equal(t, uint64(1), store.Generation())
}

func TestTriggerRefresh_RecordsSyncStatus(t *testing.T) {
	recorder := new(MockStatusRecorder)
	recorder.On("UpdateSyncStatus", mock.Anything, mock.MatchedBy(func(st domain.CVESyncStatus) bool {
		return st.RecordCount == 1 && st.Generation == 1 && st.ErrorMessage == "" && !st.LastSyncTime.IsZero()
	})).Return(nil).Once()

	s, _, _ := newSync(t, feed(critical), WithStatusRecorder(recorder))
	require.True(t, s.TriggerRefresh(context.Background()).Accepted)
	s.Wait()

	recorder.AssertExpectations(t)
}

func TestTriggerRefresh_StatusRecorderFailureIsNotFatal(t *testing.T) {
	recorder := new(MockStatusRecorder)
	recorder.On("UpdateSyncStatus", mock.Anything, mock.Anything).Return(errors.New("database is locked"))

	s, _, _ := newSync(t, feed(critical), WithStatusRecorder(recorder))
	require.True(t, s.TriggerRefresh(context.Background()).Accepted)
	s.Wait()

	assert.Equal(t, domain.JobSucceeded, s.Status().Last.Outcome)
}

func TestClose_CancelsInFlightJob(t *testing.T) {
	started := make(chan struct{})
	logger := zaptest.NewLogger(t)
	store := catalog.NewStore(nil, logger)
	s := New(staticPlatforms{platform}, fetchFunc(func(ctx context.Context, _ []string) ([]domain.VulnerabilityRecord, error) {
		close(started)
		<-ctx.Done()
		return nil, ctx.Err()
	}), store, nil, logger)

	require.True(t, s.TriggerRefresh(context.Background()).Accepted)
	<-started
	s.Close()

	status := s.Status()
	assert.Equal(t, domain.RefreshIdle, status.State)
	assert.Equal(t, domain.JobFailed, status.Last.Outcome)
	assert.Contains(t, status.Last.Error, "cancelled")

	ticket := s.TriggerRefresh(context.Background())
	assert.False(t, ticket.Accepted)
	assert.Equal(t, ReasonClosed, ticket.Reason)
}

func TestRun_TriggersPeriodically(t *testing.T) {
	var fetches int32
	s, _, _ := newSync(t, func(context.Context, []string) ([]domain.VulnerabilityRecord, error) {
		atomic.AddInt32(&fetches, 1)
		return nil, nil
	})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		s.Run(ctx, 5*time.Millisecond)
		close(done)
	}()

	assert.Eventually(t, func() bool { return atomic.LoadInt32(&fetches) >= 2 }, 2*time.Second, 5*time.Millisecond)
	cancel()
	<-done
}

func TestRun_ZeroIntervalDisabled(t *testing.T) {
	s, _, _ := newSync(t, feed())

	done := make(chan struct{})
	go func() {
		s.Run(context.Background(), 0)
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Run should return immediately when disabled")
	}
}
