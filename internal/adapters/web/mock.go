// Package web holds test doubles shared by the HTTP adapter packages.
package web

import (
	"context"

	"github.com/stretchr/testify/mock"

	"github.com/lcalzada-xor/vulnfleet/internal/adapters/reporting"
	"github.com/lcalzada-xor/vulnfleet/internal/core/domain"
)

// MockAssetRegistry is a mock of ports.AssetRegistry
type MockAssetRegistry struct {
	mock.Mock
}

func (m *MockAssetRegistry) Create(ctx context.Context, name, platformID string, quantity int) (domain.Asset, error) {
	args := m.Called(ctx, name, platformID, quantity)
	return args.Get(0).(domain.Asset), args.Error(1)
}

func (m *MockAssetRegistry) Delete(ctx context.Context, id int64) error {
	args := m.Called(ctx, id)
	return args.Error(0)
}

func (m *MockAssetRegistry) Get(ctx context.Context, id int64) (domain.Asset, error) {
	args := m.Called(ctx, id)
	return args.Get(0).(domain.Asset), args.Error(1)
}

func (m *MockAssetRegistry) List(ctx context.Context) ([]domain.Asset, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]domain.Asset), args.Error(1)
}

func (m *MockAssetRegistry) PlatformIDs(ctx context.Context) ([]string, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]string), args.Error(1)
}

// MockCorrelator is a mock of ports.Correlator
type MockCorrelator struct {
	mock.Mock
}

func (m *MockCorrelator) MatchPlatform(ctx context.Context, platformID string) domain.CorrelationResult {
	args := m.Called(ctx, platformID)
	return args.Get(0).(domain.CorrelationResult)
}

// MockAggregator is a mock of ports.Aggregator
type MockAggregator struct {
	mock.Mock
}

func (m *MockAggregator) ComputeDashboard(ctx context.Context) domain.DashboardSnapshot {
	args := m.Called(ctx)
	return args.Get(0).(domain.DashboardSnapshot)
}

func (m *MockAggregator) ComputeAssetExposure(ctx context.Context, asset domain.Asset) domain.AssetExposure {
	args := m.Called(ctx, asset)
	return args.Get(0).(domain.AssetExposure)
}

// MockSynchronizer is a mock of ports.Synchronizer
type MockSynchronizer struct {
	mock.Mock
}

func (m *MockSynchronizer) TriggerRefresh(ctx context.Context) domain.RefreshTicket {
	args := m.Called(ctx)
	return args.Get(0).(domain.RefreshTicket)
}

func (m *MockSynchronizer) Status() domain.SyncStatus {
	args := m.Called()
	return args.Get(0).(domain.SyncStatus)
}

// MockExporter is a mock of handlers.DashboardExporter
type MockExporter struct {
	mock.Mock
}

func (m *MockExporter) ExportDashboard(report reporting.DashboardReport) ([]byte, error) {
	args := m.Called(report)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]byte), args.Error(1)
}
