package domain

// DefaultQuantity is used when an asset is registered without a quantity.
const DefaultQuantity = 1

// Asset is one entry of the fleet inventory.
type Asset struct {
	ID         int64  `json:"id"`
	Name       string `json:"name"`
	PlatformID string `json:"cpe"`
	Quantity   int    `json:"quantity"`
}

// InventoryItem is the bulk import format for assets.
// Version and Category are informational only.
type InventoryItem struct {
	Name     string `json:"name" yaml:"name"`
	Version  string `json:"version,omitempty" yaml:"version,omitempty"`
	Quantity int    `json:"quantity,omitempty" yaml:"quantity,omitempty"`
	CPE      string `json:"cpe" yaml:"cpe"`
	Category string `json:"category,omitempty" yaml:"category,omitempty"`
}

// ImportResult reports how many inventory items were registered or skipped.
type ImportResult struct {
	Imported int
	Skipped  int
}
