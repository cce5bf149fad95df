package ports

import (
	"context"

	"github.com/lcalzada-xor/vulnfleet/internal/core/domain"
)

// AssetRepository persists the fleet inventory.
type AssetRepository interface {
	CreateAsset(ctx context.Context, asset domain.Asset) (domain.Asset, error)
	// CreateAssetsBatch inserts all assets or none of them.
	CreateAssetsBatch(ctx context.Context, assets []domain.Asset) ([]domain.Asset, error)
	DeleteAsset(ctx context.Context, id int64) error
	GetAsset(ctx context.Context, id int64) (*domain.Asset, error)
	ListAssets(ctx context.Context) ([]domain.Asset, error)
	Close() error
}
