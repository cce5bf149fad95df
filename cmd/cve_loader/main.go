package main

import (
	"context"
	"flag"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"go.uber.org/zap"

	"github.com/lcalzada-xor/vulnfleet/internal/adapters/cve"
	"github.com/lcalzada-xor/vulnfleet/internal/config"
	"github.com/lcalzada-xor/vulnfleet/internal/core/domain"
	"github.com/lcalzada-xor/vulnfleet/internal/core/services/catalog"
	"github.com/lcalzada-xor/vulnfleet/internal/telemetry"
)

func main() {
	_, defaultCVEDB := config.DefaultDBPaths()
	seedFiles := flag.String("seed-file", "./configs/cve_seed.json", "Path to CVE seed JSON file(s), comma separated")
	dbPath := flag.String("db-path", defaultCVEDB, "Path to CVE database (defaults to the server's)")
	debug := flag.Bool("debug", false, "Enable verbose debug logging")
	flag.Parse()

	logger, err := telemetry.NewLogger(*debug)
	if err != nil {
		panic(err)
	}
	defer logger.Sync()

	paths := strings.Split(*seedFiles, ",")
	logger.Info("CVE seed loader",
		zap.Strings("seed_files", paths),
		zap.String("database", *dbPath))

	// Ensure data directory exists
	if err := os.MkdirAll(filepath.Dir(*dbPath), 0755); err != nil {
		logger.Fatal("failed to create data directory", zap.Error(err))
	}

	// Create repository
	repo, err := cve.NewSQLiteRepository(*dbPath)
	if err != nil {
		logger.Fatal("failed to create repository", zap.Error(err))
	}
	defer repo.Close()

	ctx := context.Background()

	// Seed on top of what is already stored so the generation keeps increasing
	store := catalog.NewStore(repo, logger)
	if err := store.Load(ctx); err != nil {
		logger.Fatal("failed to load store", zap.Error(err))
	}

	loader := cve.NewSeedLoader(logger, paths...)
	records, err := loader.Fetch(ctx, nil)
	if err != nil {
		logger.Fatal("failed to load seed data", zap.Error(err))
	}

	generation, err := store.Commit(ctx, records)
	if err != nil {
		logger.Fatal("failed to commit seed data", zap.Error(err))
	}

	count, _ := repo.GetTotalCount(ctx)
	if err := repo.UpdateSyncStatus(ctx, domain.CVESyncStatus{
		LastSyncTime: time.Now().UTC(),
		RecordCount:  count,
	}); err != nil {
		logger.Warn("failed to record sync status", zap.Error(err))
	}

	logger.Info("database updated",
		zap.String("cves", humanize.Comma(int64(count))),
		zap.Uint64("generation", generation))
}
