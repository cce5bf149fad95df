package storage

import "github.com/lcalzada-xor/vulnfleet/internal/core/domain"

// toDomain converts a database model to a domain entity.
func toDomain(m AssetModel) domain.Asset {
	return domain.Asset{
		ID:         m.ID,
		Name:       m.Name,
		PlatformID: m.PlatformID,
		Quantity:   m.Quantity,
	}
}

// toModel converts a domain entity to a database model.
func toModel(a domain.Asset) AssetModel {
	quantity := a.Quantity
	if quantity <= 0 {
		quantity = domain.DefaultQuantity
	}
	return AssetModel{
		ID:         a.ID,
		Name:       a.Name,
		PlatformID: a.PlatformID,
		Quantity:   quantity,
	}
}
