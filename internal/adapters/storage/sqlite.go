package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
	"gorm.io/plugin/opentelemetry/tracing"

	"github.com/lcalzada-xor/vulnfleet/internal/core/domain"
	"github.com/lcalzada-xor/vulnfleet/internal/core/ports"
)

// SQLiteAdapter implements ports.AssetRepository using GORM and SQLite.
type SQLiteAdapter struct {
	db *gorm.DB
}

// AssetModel is the GORM model for fleet assets.
type AssetModel struct {
	ID         int64  `gorm:"primaryKey;autoIncrement"`
	Name       string `gorm:"not null"`
	PlatformID string `gorm:"column:cpe;not null;index"`
	Quantity   int    `gorm:"not null;default:1"`
	CreatedAt  time.Time
}

// TableName keeps the table name of the original inventory schema.
func (AssetModel) TableName() string {
	return "equipments"
}

// NewSQLiteAdapter initializes the database and migrates schema.
func NewSQLiteAdapter(path string) (*SQLiteAdapter, error) {
	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, err
	}

	if err := db.Use(tracing.NewPlugin()); err != nil {
		return nil, fmt.Errorf("failed to enable tracing: %w", err)
	}

	// SQLite allows one writer; a single connection also keeps :memory: databases shared
	sqlDB, err := db.DB()
	if err != nil {
		return nil, err
	}
	sqlDB.SetMaxOpenConns(1)

	// Auto Migrate
	if err := db.AutoMigrate(&AssetModel{}); err != nil {
		return nil, err
	}

	return &SQLiteAdapter{db: db}, nil
}

// CreateAsset inserts a new asset and returns it with its assigned ID.
func (a *SQLiteAdapter) CreateAsset(ctx context.Context, asset domain.Asset) (domain.Asset, error) {
	model := toModel(asset)
	model.ID = 0
	if err := a.db.WithContext(ctx).Create(&model).Error; err != nil {
		return domain.Asset{}, err
	}
	return toDomain(model), nil
}

// CreateAssetsBatch inserts several assets in a single transaction.
func (a *SQLiteAdapter) CreateAssetsBatch(ctx context.Context, assets []domain.Asset) ([]domain.Asset, error) {
	if len(assets) == 0 {
		return nil, nil
	}

	models := make([]AssetModel, len(assets))
	for i, asset := range assets {
		models[i] = toModel(asset)
		models[i].ID = 0
	}

	err := a.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return tx.CreateInBatches(models, 100).Error
	})
	if err != nil {
		return nil, err
	}

	created := make([]domain.Asset, len(models))
	for i, m := range models {
		created[i] = toDomain(m)
	}
	return created, nil
}

// DeleteAsset removes an asset by ID.
func (a *SQLiteAdapter) DeleteAsset(ctx context.Context, id int64) error {
	res := a.db.WithContext(ctx).Delete(&AssetModel{}, id)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("asset %d: %w", id, domain.ErrNotFound)
	}
	return nil
}

// GetAsset retrieves an asset by ID.
func (a *SQLiteAdapter) GetAsset(ctx context.Context, id int64) (*domain.Asset, error) {
	var model AssetModel
	if err := a.db.WithContext(ctx).First(&model, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("asset %d: %w", id, domain.ErrNotFound)
		}
		return nil, err
	}
	asset := toDomain(model)
	return &asset, nil
}

// ListAssets retrieves all assets in registration order.
func (a *SQLiteAdapter) ListAssets(ctx context.Context) ([]domain.Asset, error) {
	var models []AssetModel
	if err := a.db.WithContext(ctx).Order("id").Find(&models).Error; err != nil {
		return nil, err
	}

	assets := make([]domain.Asset, len(models))
	for i, m := range models {
		assets[i] = toDomain(m)
	}
	return assets, nil
}

func (a *SQLiteAdapter) Close() error {
	sqlDB, err := a.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// Ensure interface compliance
var _ ports.AssetRepository = (*SQLiteAdapter)(nil)
