package registry

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/lcalzada-xor/vulnfleet/internal/core/domain"
)

const (
	routerCPE = "cpe:2.3:h:cisco:rv340:1.0:*:*:*:*:*:*:*"
	apacheURI = "cpe:/a:apache:http_server:2.4.49"
)

// memRepository is an in-memory ports.AssetRepository.
type memRepository struct {
	mu     sync.Mutex
	nextID int64
	assets []domain.Asset
}

func (m *memRepository) CreateAsset(_ context.Context, asset domain.Asset) (domain.Asset, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.nextID++
	asset.ID = m.nextID
	m.assets = append(m.assets, asset)
	return asset, nil
}

func (m *memRepository) CreateAssetsBatch(ctx context.Context, assets []domain.Asset) ([]domain.Asset, error) {
	var created []domain.Asset
	for _, a := range assets {
		c, _ := m.CreateAsset(ctx, a)
		created = append(created, c)
	}
	return created, nil
}

func (m *memRepository) DeleteAsset(_ context.Context, id int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i, a := range m.assets {
		if a.ID == id {
			m.assets = append(m.assets[:i], m.assets[i+1:]...)
			return nil
		}
	}
	return fmt.Errorf("asset %d: %w", id, domain.ErrNotFound)
}

func (m *memRepository) GetAsset(_ context.Context, id int64) (*domain.Asset, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, a := range m.assets {
		if a.ID == id {
			found := a
			return &found, nil
		}
	}
	return nil, fmt.Errorf("asset %d: %w", id, domain.ErrNotFound)
}

func (m *memRepository) ListAssets(context.Context) ([]domain.Asset, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]domain.Asset(nil), m.assets...), nil
}

func (m *memRepository) Close() error { return nil }

// MockAssetRepository is a mock of ports.AssetRepository
type MockAssetRepository struct {
	mock.Mock
}

func (m *MockAssetRepository) CreateAsset(ctx context.Context, asset domain.Asset) (domain.Asset, error) {
	args := m.Called(ctx, asset)
	return args.Get(0).(domain.Asset), args.Error(1)
}

func (m *MockAssetRepository) CreateAssetsBatch(ctx context.Context, assets []domain.Asset) ([]domain.Asset, error) {
	args := m.Called(ctx, assets)
	return args.Get(0).([]domain.Asset), args.Error(1)
}

func (m *MockAssetRepository) DeleteAsset(ctx context.Context, id int64) error {
	return m.Called(ctx, id).Error(0)
}

func (m *MockAssetRepository) GetAsset(ctx context.Context, id int64) (*domain.Asset, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Asset), args.Error(1)
}

func (m *MockAssetRepository) ListAssets(ctx context.Context) ([]domain.Asset, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]domain.Asset), args.Error(1)
}

func (m *MockAssetRepository) Close() error {
	return m.Called().Error(0)
}

func newRegistry(t *testing.T) *AssetRegistry {
	return NewAssetRegistry(&memRepository{}, zaptest.NewLogger(t))
}

func TestCreate(t *testing.T) {
	reg := newRegistry(t)
	ctx := context.Background()

	asset, err := reg.Create(ctx, "  Edge router ", routerCPE, 0)
	require.NoError(t, err)
	assert.NotZero(t, asset.ID)
	assert.Equal(t, "Edge router", asset.Name)
	assert.Equal(t, domain.DefaultQuantity, asset.Quantity)

	uri, err := reg.Create(ctx, "web", apacheURI, 5)
	require.NoError(t, err)
	assert.Equal(t, 5, uri.Quantity)

	// duplicate platform identifiers are allowed
	_, err = reg.Create(ctx, "second router", routerCPE, 1)
	assert.NoError(t, err)
}

func TestCreate_InvalidInput(t *testing.T) {
	reg := newRegistry(t)

	tests := []struct {
		name       string
		assetName  string
		platformID string
	}{
		{"missing name", "", routerCPE},
		{"blank name", "   ", routerCPE},
		{"missing platform", "router", ""},
		{"not a cpe", "router", "cisco rv340"},
		{"malformed cpe", "router", "cpe:2.3:h:cisco"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := reg.Create(context.Background(), tt.assetName, tt.platformID, 1)
			assert.ErrorIs(t, err, domain.ErrInvalidInput)
		})
	}
}

func TestDeleteAndGet(t *testing.T) {
	reg := newRegistry(t)
	ctx := context.Background()

	asset, err := reg.Create(ctx, "router", routerCPE, 1)
	require.NoError(t, err)

	got, err := reg.Get(ctx, asset.ID)
	require.NoError(t, err)
	assert.Equal(t, asset, got)

	require.NoError(t, reg.Delete(ctx, asset.ID))

	_, err = reg.Get(ctx, asset.ID)
	assert.ErrorIs(t, err, domain.ErrNotFound)
	assert.ErrorIs(t, reg.Delete(ctx, asset.ID), domain.ErrNotFound)
}

func TestList_EmptyIsNotNil(t *testing.T) {
	assets, err := newRegistry(t).List(context.Background())
	require.NoError(t, err)
	assert.NotNil(t, assets)
	assert.Empty(t, assets)
}

func TestList_RepositoryFailure(t *testing.T) {
	repo := new(MockAssetRepository)
	repo.On("ListAssets", mock.Anything).Return(nil, errors.New("database is locked"))

	reg := NewAssetRegistry(repo, zaptest.NewLogger(t))
	_, err := reg.List(context.Background())
	assert.Error(t, err)

	_, err = reg.PlatformIDs(context.Background())
	assert.Error(t, err)
	repo.AssertExpectations(t)
}

func TestPlatformIDs_Distinct(t *testing.T) {
	reg := newRegistry(t)
	ctx := context.Background()

	for _, id := range []string{routerCPE, apacheURI, routerCPE} {
		_, err := reg.Create(ctx, "asset", id, 1)
		require.NoError(t, err)
	}

	ids, err := reg.PlatformIDs(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{routerCPE, apacheURI}, ids)
}

func TestImport(t *testing.T) {
	reg := newRegistry(t)
	ctx := context.Background()

	_, err := reg.Create(ctx, "router", routerCPE, 1)
	require.NoError(t, err)

	result, err := reg.Import(ctx, []domain.InventoryItem{
		// already registered
		{Name: "router", CPE: routerCPE, Quantity: 3},
		// imported with the default quantity
		{Name: "web", CPE: apacheURI, Version: "2.4.49"},
		// repeated in the file
		{Name: "web", CPE: apacheURI},
		// invalid
		{Name: "broken", CPE: "not-a-cpe"},
		// same name, new version
		{Name: "router", CPE: "cpe:2.3:h:cisco:rv340:2.0:*:*:*:*:*:*:*", Quantity: 2},
	})
	assert.ErrorIs(t, err, domain.ErrInvalidInput)
	assert.Equal(t, domain.ImportResult{Imported: 2, Skipped: 3}, result)

	assets, err := reg.List(ctx)
	require.NoError(t, err)
	require.Len(t, assets, 3)
	assert.Equal(t, domain.DefaultQuantity, assets[1].Quantity)
	assert.Equal(t, 2, assets[2].Quantity)

	// importing the same items again adds nothing
	again, err := reg.Import(ctx, []domain.InventoryItem{{Name: "web", CPE: apacheURI}})
	require.NoError(t, err)
	assert.Equal(t, domain.ImportResult{Imported: 0, Skipped: 1}, again)
}

func TestCheckPlatformIDs(t *testing.T) {
	reg := newRegistry(t)
	ctx := context.Background()

	_, err := reg.Create(ctx, "router", routerCPE, 1)
	require.NoError(t, err)
	_, err = reg.Create(ctx, "web", apacheURI, 1)
	require.NoError(t, err)

	checks, err := reg.CheckPlatformIDs(ctx)
	require.NoError(t, err)
	require.Len(t, checks, 2)
	assert.True(t, checks[0].Valid)
	assert.False(t, checks[1].Valid, "a CPE 2.2 URI is not a CPE 2.3 formatted string")
}

func TestLoadInventory(t *testing.T) {
	dir := t.TempDir()

	jsonPath := filepath.Join(dir, "inventory.json")
	require.NoError(t, os.WriteFile(jsonPath, []byte(`[
		{"name": "router", "version": "1.0", "quantity": 2, "cpe": "`+routerCPE+`", "category": "network"}
	]`), 0o644))

	yamlPath := filepath.Join(dir, "inventory.yaml")
	require.NoError(t, os.WriteFile(yamlPath, []byte(`
- name: web
  version: "2.4.49"
  cpe: "`+apacheURI+`"
  category: server
`), 0o644))

	items, err := LoadInventory(jsonPath)
	require.NoError(t, err)
	assert.Equal(t, []domain.InventoryItem{{Name: "router", Version: "1.0", Quantity: 2, CPE: routerCPE, Category: "network"}}, items)

	items, err = LoadInventory(yamlPath)
	require.NoError(t, err)
	assert.Equal(t, []domain.InventoryItem{{Name: "web", Version: "2.4.49", CPE: apacheURI, Category: "server"}}, items)

	_, err = ParseInventory([]byte("{not json"), ".json")
	assert.ErrorIs(t, err, domain.ErrInvalidInput)

	_, err = LoadInventory(filepath.Join(dir, "missing.json"))
	assert.Error(t, err)
}

func TestWriteCheckReport(t *testing.T) {
	var buf bytes.Buffer
	err := WriteCheckReport(&buf, []PlatformCheck{
		{Asset: domain.Asset{Name: "router", PlatformID: routerCPE}, Valid: true},
		{Asset: domain.Asset{Name: "web", PlatformID: apacheURI}},
	})
	require.NoError(t, err)

	out := buf.String()
	assert.Contains(t, out, "NAME")
	assert.Regexp(t, `router\s+yes\s+`+regexp.QuoteMeta(routerCPE), out)
	assert.Regexp(t, `web\s+no\s+`+regexp.QuoteMeta(apacheURI), out)
	assert.Contains(t, out, "1/2 equipment carry a valid CPE 2.3 string")
}
