package ports

import (
	"context"

	"github.com/lcalzada-xor/vulnfleet/internal/core/domain"
)

// AssetRegistry is the inventory service consumed by the HTTP layer and the synchronizer.
type AssetRegistry interface {
	Create(ctx context.Context, name, platformID string, quantity int) (domain.Asset, error)
	Delete(ctx context.Context, id int64) error
	Get(ctx context.Context, id int64) (domain.Asset, error)
	List(ctx context.Context) ([]domain.Asset, error)
	PlatformIDs(ctx context.Context) ([]string, error)
}

// PlatformSource supplies the distinct platform identifiers of the fleet.
type PlatformSource interface {
	PlatformIDs(ctx context.Context) ([]string, error)
}
