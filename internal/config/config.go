package config

import (
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"
)

// Config holds all application configuration.
type Config struct {
	Addr      string
	APIPrefix string
	StaticDir string

	DBPath    string // asset inventory
	CVEDBPath string // vulnerability store

	NVDURL           string
	NVDAPIKey        string
	FeedFiles        []string // offline seed files, replace NVD when set
	FetchParallelism int

	RefreshInterval time.Duration // 0 disables the periodic refresh
	RefreshTimeout  time.Duration
	CacheSize       int
	RateLimit       int // mutating requests per client per minute

	Trace bool
	Debug bool
}

// Load parses command line flags and environment variables to populate Config.
// Flags take precedence over environment variables.
func Load() (*Config, error) {
	return LoadFrom(flag.CommandLine, os.Args[1:])
}

// LoadFrom is Load over an explicit flag set and argument list.
func LoadFrom(fs *flag.FlagSet, args []string) (*Config, error) {
	cfg := &Config{}

	// Defaults and Environment Variables
	cfg.Addr = getEnv("VULNFLEET_ADDR", ":8000")
	cfg.APIPrefix = getEnv("VULNFLEET_API_PREFIX", "/api")
	cfg.StaticDir = getEnv("VULNFLEET_STATIC_DIR", "")
	cfg.DBPath, cfg.CVEDBPath = DefaultDBPaths()
	cfg.NVDURL = getEnv("VULNFLEET_NVD_URL", "")
	cfg.NVDAPIKey = getEnv("NVD_API_KEY", "")
	feedFiles := getEnv("VULNFLEET_FEED_FILE", "")
	cfg.FetchParallelism = getEnvInt("VULNFLEET_FETCH_PARALLELISM", 2)
	cfg.RefreshInterval = getEnvDuration("VULNFLEET_REFRESH_INTERVAL", 24*time.Hour)
	cfg.RefreshTimeout = getEnvDuration("VULNFLEET_REFRESH_TIMEOUT", 10*time.Minute)
	cfg.CacheSize = getEnvInt("VULNFLEET_CACHE_SIZE", 1024)
	cfg.RateLimit = getEnvInt("VULNFLEET_RATE_LIMIT", 30)
	cfg.Trace = getEnvBool("VULNFLEET_TRACE", false)

	// Command Line Flags (Override Env)
	fs.StringVar(&cfg.Addr, "addr", cfg.Addr, "HTTP server address")
	fs.StringVar(&cfg.APIPrefix, "api-prefix", cfg.APIPrefix, "Path prefix of the HTTP API")
	fs.StringVar(&cfg.StaticDir, "static", cfg.StaticDir, "Directory of the web frontend (empty to disable)")
	fs.StringVar(&cfg.DBPath, "db", cfg.DBPath, "Path to the equipment SQLite database")
	fs.StringVar(&cfg.CVEDBPath, "cve-db", cfg.CVEDBPath, "Path to the CVE SQLite database")
	fs.StringVar(&cfg.NVDURL, "nvd-url", cfg.NVDURL, "NVD CVE API endpoint (empty for the public API)")
	fs.StringVar(&feedFiles, "feed-file", feedFiles, "Offline CVE seed file(s) used instead of NVD (comma separated)")
	fs.IntVar(&cfg.FetchParallelism, "fetch-parallelism", cfg.FetchParallelism, "Concurrent upstream queries per refresh")
	fs.DurationVar(&cfg.RefreshInterval, "refresh-interval", cfg.RefreshInterval, "Periodic feed refresh interval (0 to disable)")
	fs.DurationVar(&cfg.RefreshTimeout, "refresh-timeout", cfg.RefreshTimeout, "Upper bound of a single refresh job")
	fs.IntVar(&cfg.CacheSize, "cache-size", cfg.CacheSize, "Correlation cache capacity (0 to disable)")
	fs.IntVar(&cfg.RateLimit, "rate-limit", cfg.RateLimit, "Mutating requests allowed per client per minute")
	fs.BoolVar(&cfg.Trace, "trace", cfg.Trace, "Export OpenTelemetry spans to stdout")
	fs.BoolVar(&cfg.Debug, "debug", false, "Enable verbose debug logging")

	if err := fs.Parse(args); err != nil {
		return nil, err
	}

	cfg.FeedFiles = splitList(feedFiles)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate rejects settings the services cannot run with.
func (c *Config) Validate() error {
	if c.Addr == "" {
		return fmt.Errorf("config: listen address is required")
	}
	if c.RefreshInterval < 0 {
		return fmt.Errorf("config: negative refresh interval %s", c.RefreshInterval)
	}
	if c.RefreshTimeout <= 0 {
		return fmt.Errorf("config: refresh timeout must be positive, got %s", c.RefreshTimeout)
	}
	if c.CacheSize < 0 {
		return fmt.Errorf("config: negative cache size %d", c.CacheSize)
	}
	if c.FetchParallelism < 1 {
		return fmt.Errorf("config: fetch parallelism must be at least 1, got %d", c.FetchParallelism)
	}
	if c.RateLimit < 1 {
		return fmt.Errorf("config: rate limit must be at least 1, got %d", c.RateLimit)
	}
	return nil
}

func splitList(s string) []string {
	var items []string
	if s == "" {
		return items
	}
	parts := strings.Split(s, ",")
	for _, p := range parts {
		trimmed := strings.TrimSpace(p)
		if trimmed != "" {
			items = append(items, trimmed)
		}
	}
	return items
}

func getEnv(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok {
		return value
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if value, ok := os.LookupEnv(key); ok {
		if i, err := strconv.Atoi(value); err == nil {
			return i
		}
	}
	return fallback
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	if value, ok := os.LookupEnv(key); ok {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return fallback
}

func getEnvBool(key string, fallback bool) bool {
	if value, ok := os.LookupEnv(key); ok {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
	}
	return fallback
}

// DefaultDBPaths returns the equipment and CVE database locations the server
// uses when no flag overrides them: VULNFLEET_DB and VULNFLEET_CVE_DB, or the
// data directory.
func DefaultDBPaths() (assets, cves string) {
	dataDir := defaultDataDir()
	assets = getEnv("VULNFLEET_DB", filepath.Join(dataDir, "equipments.db"))
	cves = getEnv("VULNFLEET_CVE_DB", filepath.Join(dataDir, "cve.db"))
	return assets, cves
}

// defaultDataDir returns ~/.vulnfleet, or the working directory when there is no home.
// The directory is created by the storage bootstrap.
func defaultDataDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "."
	}
	return filepath.Join(home, ".vulnfleet")
}
