package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"path/filepath"

	"github.com/hashicorp/go-multierror"
	"go.uber.org/zap"

	"github.com/lcalzada-xor/vulnfleet/internal/adapters/storage"
	"github.com/lcalzada-xor/vulnfleet/internal/config"
	"github.com/lcalzada-xor/vulnfleet/internal/core/domain"
	"github.com/lcalzada-xor/vulnfleet/internal/core/services/registry"
	"github.com/lcalzada-xor/vulnfleet/internal/telemetry"
)

func main() {
	defaultDB, _ := config.DefaultDBPaths()
	file := flag.String("file", "", "Inventory file to import (JSON or YAML)")
	dbPath := flag.String("db-path", defaultDB, "Path to the equipment database (defaults to the server's)")
	check := flag.Bool("check", false, "List registered equipment and whether each CPE is a valid 2.3 string")
	debug := flag.Bool("debug", false, "Enable verbose debug logging")
	flag.Parse()

	if *file == "" && !*check {
		fmt.Fprintln(os.Stderr, "nothing to do: pass -file and/or -check")
		flag.Usage()
		os.Exit(2)
	}

	logger, err := telemetry.NewLogger(*debug)
	if err != nil {
		panic(err)
	}
	defer logger.Sync()

	if err := os.MkdirAll(filepath.Dir(*dbPath), 0755); err != nil {
		logger.Fatal("failed to create data directory", zap.Error(err))
	}

	repo, err := storage.NewSQLiteAdapter(*dbPath)
	if err != nil {
		logger.Fatal("failed to open equipment database", zap.Error(err))
	}
	defer repo.Close()

	reg := registry.NewAssetRegistry(repo, logger)
	ctx := context.Background()

	if *file != "" {
		items, err := registry.LoadInventory(*file)
		if err != nil {
			logger.Fatal("failed to read inventory", zap.String("file", *file), zap.Error(err))
		}

		result, err := importInventory(ctx, reg, items, logger)
		if err != nil {
			logger.Fatal("failed to import inventory", zap.String("file", *file), zap.Error(err))
		}
		logger.Info("import finished",
			zap.Int("items", len(items)),
			zap.Int("imported", result.Imported),
			zap.Int("skipped", result.Skipped))
	}

	if *check {
		checks, err := reg.CheckPlatformIDs(ctx)
		if err != nil {
			logger.Fatal("failed to list equipment", zap.Error(err))
		}
		if err := registry.WriteCheckReport(os.Stdout, checks); err != nil {
			logger.Fatal("failed to write report", zap.Error(err))
		}
	}
}

// importInventory registers the items. Items rejected as invalid are only
// reported; any other failure is returned.
func importInventory(ctx context.Context, reg *registry.AssetRegistry, items []domain.InventoryItem, logger *zap.Logger) (domain.ImportResult, error) {
	result, err := reg.Import(ctx, items)
	if err == nil {
		return result, nil
	}

	var rejected *multierror.Error
	if errors.As(err, &rejected) {
		logger.Warn("some inventory items were rejected", zap.Error(err))
		return result, nil
	}
	return result, err
}
