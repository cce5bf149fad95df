package app

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/hashicorp/go-multierror"
	"go.uber.org/zap"

	"github.com/lcalzada-xor/vulnfleet/internal/adapters/cve"
	"github.com/lcalzada-xor/vulnfleet/internal/adapters/reporting"
	"github.com/lcalzada-xor/vulnfleet/internal/adapters/storage"
	webserver "github.com/lcalzada-xor/vulnfleet/internal/adapters/web/server"
	"github.com/lcalzada-xor/vulnfleet/internal/config"
	"github.com/lcalzada-xor/vulnfleet/internal/core/ports"
	"github.com/lcalzada-xor/vulnfleet/internal/core/services/aggregation"
	"github.com/lcalzada-xor/vulnfleet/internal/core/services/catalog"
	"github.com/lcalzada-xor/vulnfleet/internal/core/services/correlation"
	"github.com/lcalzada-xor/vulnfleet/internal/core/services/feedsync"
	"github.com/lcalzada-xor/vulnfleet/internal/core/services/querycache"
	"github.com/lcalzada-xor/vulnfleet/internal/core/services/registry"
	"github.com/lcalzada-xor/vulnfleet/internal/telemetry"
)

// Application holds the core components of the application.
// It acts as the Facade for the entire system, orchestrating services and infrastructure.
type Application struct {
	Config *config.Config
	Logger *zap.Logger

	AssetRepo *storage.SQLiteAdapter
	CVERepo   *cve.SQLiteRepository

	Store        *catalog.Store
	Cache        *querycache.Cache
	Correlator   *correlation.Engine
	Aggregator   *aggregation.Engine
	Registry     *registry.AssetRegistry
	Synchronizer *feedsync.Synchronizer
	WebServer    *webserver.Server
}

// New creates a new Application instance and bootstraps its components.
func New(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*Application, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	app := &Application{
		Config: cfg,
		Logger: logger,
	}

	if err := app.bootstrap(ctx); err != nil {
		app.Close()
		return nil, fmt.Errorf("application bootstrap failed: %w", err)
	}

	return app, nil
}

// bootstrap orchestrates the initialization sequence.
func (app *Application) bootstrap(ctx context.Context) error {
	// 1. Foundation & Infrastructure
	telemetry.InitMetrics()

	if err := app.initStorage(); err != nil {
		return err
	}

	// 2. Vulnerability store, served from its last committed state
	app.Store = catalog.NewStore(app.CVERepo, app.Logger)
	if err := app.Store.Load(ctx); err != nil {
		return err
	}

	// 3. Domain Services
	app.Cache = querycache.New(app.Config.CacheSize)
	var resultCache correlation.ResultCache
	if app.Config.CacheSize > 0 {
		resultCache = app.Cache
	}
	app.Correlator = correlation.NewEngine(app.Store, resultCache, app.Logger)
	app.Aggregator = aggregation.NewEngine(app.Store, app.Correlator, app.Logger)
	app.Registry = registry.NewAssetRegistry(app.AssetRepo, app.Logger)

	app.Synchronizer = feedsync.New(
		app.Registry,
		app.newFetcher(),
		app.Store,
		app.Cache,
		app.Logger,
		feedsync.WithTimeout(app.Config.RefreshTimeout),
		feedsync.WithStatusRecorder(app.CVERepo),
	)

	// 4. Servers
	app.WebServer = webserver.NewServer(
		app.Config.Addr,
		app.Registry,
		app.Correlator,
		app.Aggregator,
		app.Synchronizer,
		reporting.NewPDFExporter(),
		app.Logger,
		webserver.WithPrefix(app.Config.APIPrefix),
		webserver.WithStaticDir(app.Config.StaticDir),
		webserver.WithRateLimit(app.Config.RateLimit, time.Minute),
	)

	return nil
}

func (app *Application) initStorage() error {
	for _, path := range []string{app.Config.DBPath, app.Config.CVEDBPath} {
		if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
			return fmt.Errorf("failed to create DB directory: %w", err)
		}
	}

	assets, err := storage.NewSQLiteAdapter(app.Config.DBPath)
	if err != nil {
		return fmt.Errorf("failed to init asset storage: %w", err)
	}
	app.AssetRepo = assets

	cves, err := cve.NewSQLiteRepository(app.Config.CVEDBPath)
	if err != nil {
		return fmt.Errorf("failed to init CVE storage: %w", err)
	}
	app.CVERepo = cves

	return nil
}

// newFetcher selects the offline seed files when configured, the NVD API otherwise.
func (app *Application) newFetcher() ports.FeedFetcher {
	if len(app.Config.FeedFiles) > 0 {
		app.Logger.Info("using offline CVE feed", zap.Strings("files", app.Config.FeedFiles))
		return cve.NewSeedLoader(app.Logger, app.Config.FeedFiles...)
	}

	if app.Config.NVDAPIKey == "" {
		app.Logger.Warn("no NVD API key configured, upstream requests are throttled")
	}
	return cve.NewNVDFetcher(cve.NVDConfig{
		BaseURL:     app.Config.NVDURL,
		APIKey:      app.Config.NVDAPIKey,
		Parallelism: app.Config.FetchParallelism,
	}, app.Logger)
}

// Run starts the application components and manages their execution lifecycle.
func (app *Application) Run(ctx context.Context) error {
	app.Logger.Info("starting vulnfleet components",
		zap.Uint64("generation", app.Store.Generation()),
		zap.Int("records", app.Store.Snapshot().Len()))

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		app.Synchronizer.Run(ctx, app.Config.RefreshInterval)
	}()

	errChan := make(chan error, 1)
	go func() {
		defer wg.Done()
		if err := app.WebServer.Run(ctx); err != nil {
			errChan <- fmt.Errorf("web server error: %w", err)
		}
	}()

	app.Logger.Info("vulnfleet ready, press Ctrl+C to terminate")

	var runErr error
	select {
	case <-ctx.Done():
		app.Logger.Info("termination signal received")
	case runErr = <-errChan:
	}

	cancel()
	wg.Wait()

	if err := app.Close(); err != nil {
		runErr = multierror.Append(runErr, err)
	}
	return runErr
}

// Close cancels any in-flight refresh and releases the databases. Safe on a
// partially bootstrapped application.
func (app *Application) Close() error {
	app.Logger.Info("cleaning up resources")

	if app.Synchronizer != nil {
		app.Synchronizer.Close()
	}
	if app.WebServer != nil {
		app.WebServer.Close()
	}

	var errs error
	if app.AssetRepo != nil {
		if err := app.AssetRepo.Close(); err != nil {
			errs = multierror.Append(errs, fmt.Errorf("asset storage: %w", err))
		}
		app.AssetRepo = nil
	}
	if app.CVERepo != nil {
		if err := app.CVERepo.Close(); err != nil {
			errs = multierror.Append(errs, fmt.Errorf("CVE storage: %w", err))
		}
		app.CVERepo = nil
	}
	return errs
}
