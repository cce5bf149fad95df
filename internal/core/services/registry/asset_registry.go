// Package registry manages the fleet inventory.
package registry

import (
	"context"
	"fmt"
	"strings"

	"github.com/hashicorp/go-multierror"
	"github.com/scylladb/go-set/strset"
	"go.uber.org/zap"

	"github.com/lcalzada-xor/vulnfleet/internal/core/domain"
	"github.com/lcalzada-xor/vulnfleet/internal/core/ports"
)

// AssetRegistry implements ports.AssetRegistry on top of an asset repository.
type AssetRegistry struct {
	repo   ports.AssetRepository
	logger *zap.Logger
}

// NewAssetRegistry creates a registry.
func NewAssetRegistry(repo ports.AssetRepository, logger *zap.Logger) *AssetRegistry {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &AssetRegistry{repo: repo, logger: logger.Named("registry")}
}

// Create registers a new asset. A non-positive quantity defaults to 1.
func (r *AssetRegistry) Create(ctx context.Context, name, platformID string, quantity int) (domain.Asset, error) {
	asset, err := newAsset(name, platformID, quantity)
	if err != nil {
		return domain.Asset{}, err
	}

	created, err := r.repo.CreateAsset(ctx, asset)
	if err != nil {
		return domain.Asset{}, fmt.Errorf("failed to create asset: %w", err)
	}

	r.logger.Info("asset registered",
		zap.Int64("id", created.ID),
		zap.String("name", created.Name),
		zap.String("platform_id", created.PlatformID))
	return created, nil
}

// Delete removes an asset. Unknown IDs yield domain.ErrNotFound.
func (r *AssetRegistry) Delete(ctx context.Context, id int64) error {
	if err := r.repo.DeleteAsset(ctx, id); err != nil {
		return err
	}
	r.logger.Info("asset removed", zap.Int64("id", id))
	return nil
}

// Get returns one asset. Unknown IDs yield domain.ErrNotFound.
func (r *AssetRegistry) Get(ctx context.Context, id int64) (domain.Asset, error) {
	asset, err := r.repo.GetAsset(ctx, id)
	if err != nil {
		return domain.Asset{}, err
	}
	if asset == nil {
		return domain.Asset{}, fmt.Errorf("asset %d: %w", id, domain.ErrNotFound)
	}
	return *asset, nil
}

// List returns every asset in registration order.
func (r *AssetRegistry) List(ctx context.Context) ([]domain.Asset, error) {
	assets, err := r.repo.ListAssets(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list assets: %w", err)
	}
	if assets == nil {
		assets = []domain.Asset{}
	}
	return assets, nil
}

// PlatformIDs returns the distinct platform identifiers of the fleet in registration order.
func (r *AssetRegistry) PlatformIDs(ctx context.Context) ([]string, error) {
	assets, err := r.List(ctx)
	if err != nil {
		return nil, err
	}

	seen := strset.NewWithSize(len(assets))
	ids := make([]string, 0, len(assets))
	for _, a := range assets {
		if a.PlatformID == "" || seen.Has(a.PlatformID) {
			continue
		}
		seen.Add(a.PlatformID)
		ids = append(ids, a.PlatformID)
	}
	return ids, nil
}

// Import registers inventory items in one batch. Items whose (name, cpe) pair is
// already registered, or repeated within items, are skipped. Invalid items are
// skipped too and reported together in the returned error.
func (r *AssetRegistry) Import(ctx context.Context, items []domain.InventoryItem) (domain.ImportResult, error) {
	existing, err := r.List(ctx)
	if err != nil {
		return domain.ImportResult{}, err
	}

	seen := strset.NewWithSize(len(existing) + len(items))
	for _, a := range existing {
		seen.Add(importKey(a.Name, a.PlatformID))
	}

	var result domain.ImportResult
	var errs error
	var batch []domain.Asset
	for i, item := range items {
		asset, err := newAsset(item.Name, item.CPE, item.Quantity)
		if err != nil {
			errs = multierror.Append(errs, fmt.Errorf("item %d (%s): %w", i, item.Name, err))
			result.Skipped++
			continue
		}
		key := importKey(asset.Name, asset.PlatformID)
		if seen.Has(key) {
			result.Skipped++
			continue
		}
		seen.Add(key)
		batch = append(batch, asset)
	}

	created, err := r.repo.CreateAssetsBatch(ctx, batch)
	if err != nil {
		return domain.ImportResult{}, fmt.Errorf("failed to import inventory: %w", err)
	}
	result.Imported = len(created)

	r.logger.Info("inventory imported",
		zap.Int("imported", result.Imported),
		zap.Int("skipped", result.Skipped))
	return result, errs
}

// PlatformCheck reports whether an asset carries a CPE 2.3 formatted string.
type PlatformCheck struct {
	Asset domain.Asset
	Valid bool
}

// CheckPlatformIDs lists every asset with the validity of its platform identifier.
func (r *AssetRegistry) CheckPlatformIDs(ctx context.Context) ([]PlatformCheck, error) {
	assets, err := r.List(ctx)
	if err != nil {
		return nil, err
	}

	checks := make([]PlatformCheck, len(assets))
	for i, a := range assets {
		checks[i] = PlatformCheck{Asset: a, Valid: domain.IsCPE23(a.PlatformID)}
	}
	return checks, nil
}

func newAsset(name, platformID string, quantity int) (domain.Asset, error) {
	name = strings.TrimSpace(name)
	platformID = strings.TrimSpace(platformID)

	if name == "" {
		return domain.Asset{}, fmt.Errorf("%w: name is required", domain.ErrInvalidInput)
	}
	if err := domain.ValidatePlatformID(platformID); err != nil {
		return domain.Asset{}, err
	}
	if quantity <= 0 {
		quantity = domain.DefaultQuantity
	}

	return domain.Asset{Name: name, PlatformID: platformID, Quantity: quantity}, nil
}

func importKey(name, platformID string) string {
	return name + "\x00" + platformID
}

var _ ports.AssetRegistry = (*AssetRegistry)(nil)
