package cve

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"sync"
	"time"

	"github.com/cenkalti/backoff"
	"github.com/dustin/go-humanize"
	"github.com/hashicorp/go-cleanhttp"
	"github.com/hashicorp/go-multierror"
	"github.com/scylladb/go-set/strset"
	"go.uber.org/zap"
	"golang.org/x/sync/semaphore"

	"github.com/lcalzada-xor/vulnfleet/internal/core/domain"
	"github.com/lcalzada-xor/vulnfleet/internal/telemetry"
)

const (
	// DefaultNVDURL is the NVD CVE API 2.0 endpoint.
	DefaultNVDURL = "https://services.nvd.nist.gov/rest/json/cves/2.0"

	defaultResultsPerPage = 2000
	// NVD allows 5 requests per 30s without a key.
	anonymousRequestDelay = 6 * time.Second
)

// NVDConfig configures the NVD fetcher. Zero values select the defaults.
type NVDConfig struct {
	BaseURL        string
	APIKey         string
	ResultsPerPage int
	Parallelism    int
	// RequestDelay is the minimum spacing between two requests.
	// Defaults to 6s without an API key and to none with one.
	RequestDelay time.Duration

	MaxRetries      uint64
	InitialInterval time.Duration
	MaxInterval     time.Duration

	HTTPClient *http.Client
}

// NVDFetcher retrieves vulnerability records from the NVD CVE API, one cpeName query per platform.
type NVDFetcher struct {
	cfg    NVDConfig
	client *http.Client
	logger *zap.Logger

	throttleMu  sync.Mutex
	nextRequest time.Time
}

// NewNVDFetcher creates a fetcher for the NVD API.
func NewNVDFetcher(cfg NVDConfig, logger *zap.Logger) *NVDFetcher {
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultNVDURL
	}
	if cfg.ResultsPerPage <= 0 {
		cfg.ResultsPerPage = defaultResultsPerPage
	}
	if cfg.Parallelism <= 0 {
		cfg.Parallelism = 1
	}
	if cfg.RequestDelay == 0 && cfg.APIKey == "" {
		cfg.RequestDelay = anonymousRequestDelay
	}
	if cfg.MaxRetries == 0 {
		cfg.MaxRetries = 5
	}
	if cfg.InitialInterval <= 0 {
		cfg.InitialInterval = time.Second
	}
	if cfg.MaxInterval <= 0 {
		cfg.MaxInterval = 30 * time.Second
	}
	client := cfg.HTTPClient
	if client == nil {
		client = cleanhttp.DefaultClient()
		client.Timeout = 30 * time.Second
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &NVDFetcher{cfg: cfg, client: client, logger: logger.Named("nvd")}
}

// Fetch queries every distinct platform identifier with bounded parallelism.
// The first failure cancels the remaining queries and the whole fetch fails.
// A record returned for several platforms is kept once, for the first platform in input order.
func (f *NVDFetcher) Fetch(ctx context.Context, platformIDs []string) ([]domain.VulnerabilityRecord, error) {
	platforms := distinct(platformIDs)
	f.logger.Info("fetching vulnerability feed", zap.Int("platforms", len(platforms)))

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	results := make([][]domain.VulnerabilityRecord, len(platforms))
	sem := semaphore.NewWeighted(int64(f.cfg.Parallelism))

	var wg sync.WaitGroup
	var errs error
	var errsLock sync.Mutex
	updateErrs := func(err error) {
		if err == nil {
			return
		}
		errsLock.Lock()
		defer errsLock.Unlock()
		// cancellations caused by an earlier failure add nothing
		if errs != nil && errors.Is(err, context.Canceled) {
			return
		}
		errs = multierror.Append(errs, err)
		cancel()
	}

	for i, platformID := range platforms {
		if ctx.Err() != nil {
			updateErrs(ctx.Err())
			break
		}
		if err := sem.Acquire(ctx, 1); err != nil {
			updateErrs(err)
			break
		}
		wg.Add(1)
		go func(i int, platformID string) {
			defer sem.Release(1)
			defer wg.Done()
			records, err := f.fetchPlatform(ctx, platformID)
			if err != nil {
				updateErrs(fmt.Errorf("platform %s: %w", platformID, err))
				return
			}
			results[i] = records
		}(i, platformID)
	}
	wg.Wait()

	if errs != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrUpstreamUnavailable, errs)
	}

	// a CVE reported for several platforms keeps the first platform in request order
	seen := strset.New()
	var records []domain.VulnerabilityRecord
	for _, batch := range results {
		for _, rec := range batch {
			if seen.Has(rec.ID) {
				continue
			}
			seen.Add(rec.ID)
			records = append(records, rec)
		}
	}

	f.logger.Info("vulnerability feed fetched", zap.String("records", humanize.Comma(int64(len(records)))))
	return records, nil
}

// fetchPlatform walks every result page for one platform.
func (f *NVDFetcher) fetchPlatform(ctx context.Context, platformID string) ([]domain.VulnerabilityRecord, error) {
	var records []domain.VulnerabilityRecord
	startIndex := 0

	for {
		page, err := f.fetchPage(ctx, platformID, startIndex)
		if err != nil {
			return nil, err
		}
		if page == nil {
			return records, nil
		}

		for _, v := range page.Vulnerabilities {
			if v.CVE.ID == "" {
				continue
			}
			records = append(records, v.CVE.toRecord(platformID))
		}

		startIndex += len(page.Vulnerabilities)
		if len(page.Vulnerabilities) == 0 || startIndex >= page.TotalResults {
			return records, nil
		}
	}
}

// fetchPage performs one paged request with retries. A nil page means the platform is unknown upstream.
func (f *NVDFetcher) fetchPage(ctx context.Context, platformID string, startIndex int) (*nvdResponse, error) {
	var page *nvdResponse

	operation := func() error {
		if err := f.throttle(ctx); err != nil {
			return backoff.Permanent(err)
		}
		var err error
		page, err = f.doRequest(ctx, platformID, startIndex)
		return err
	}

	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = f.cfg.InitialInterval
	bo.MaxInterval = f.cfg.MaxInterval

	err := backoff.RetryNotify(operation, backoff.WithContext(backoff.WithMaxRetries(bo, f.cfg.MaxRetries), ctx),
		func(err error, wait time.Duration) {
			f.logger.Warn("retrying NVD request",
				zap.String("cpe", platformID),
				zap.Int("start_index", startIndex),
				zap.Duration("wait", wait),
				zap.Error(err))
		})
	if err != nil {
		return nil, err
	}
	return page, nil
}

func (f *NVDFetcher) doRequest(ctx context.Context, platformID string, startIndex int) (*nvdResponse, error) {
	query := url.Values{}
	query.Set("cpeName", platformID)
	query.Set("resultsPerPage", strconv.Itoa(f.cfg.ResultsPerPage))
	query.Set("startIndex", strconv.Itoa(startIndex))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, f.cfg.BaseURL+"?"+query.Encode(), nil)
	if err != nil {
		return nil, backoff.Permanent(err)
	}
	if f.cfg.APIKey != "" {
		req.Header.Set("apiKey", f.cfg.APIKey)
	}

	resp, err := f.client.Do(req)
	if err != nil {
		telemetry.UpstreamRequests.WithLabelValues("error").Inc()
		if ctx.Err() != nil {
			return nil, backoff.Permanent(ctx.Err())
		}
		return nil, err
	}
	defer resp.Body.Close()
	telemetry.UpstreamRequests.WithLabelValues(strconv.Itoa(resp.StatusCode)).Inc()

	switch {
	case resp.StatusCode == http.StatusNotFound:
		// NVD answers 404 for identifiers it does not know
		f.logger.Debug("no records for platform", zap.String("cpe", platformID))
		return nil, nil
	case resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500:
		return nil, fmt.Errorf("NVD returned %s", resp.Status)
	case resp.StatusCode != http.StatusOK:
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, backoff.Permanent(fmt.Errorf("NVD returned %s: %s", resp.Status, body))
	}

	var page nvdResponse
	if err := json.NewDecoder(resp.Body).Decode(&page); err != nil {
		return nil, fmt.Errorf("failed to decode NVD response: %w", err)
	}
	return &page, nil
}

// throttle spaces requests across all workers by RequestDelay.
func (f *NVDFetcher) throttle(ctx context.Context) error {
	if f.cfg.RequestDelay <= 0 {
		return ctx.Err()
	}

	f.throttleMu.Lock()
	now := time.Now()
	slot := f.nextRequest
	if slot.Before(now) {
		slot = now
	}
	f.nextRequest = slot.Add(f.cfg.RequestDelay)
	f.throttleMu.Unlock()

	wait := time.Until(slot)
	if wait <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(wait)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// distinct drops empty and repeated identifiers, keeping input order.
func distinct(ids []string) []string {
	seen := strset.NewWithSize(len(ids))
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		if id == "" || seen.Has(id) {
			continue
		}
		seen.Add(id)
		out = append(out, id)
	}
	return out
}

// NVD API 2.0 response shapes, reduced to the fields we ingest.

type nvdResponse struct {
	ResultsPerPage  int `json:"resultsPerPage"`
	StartIndex      int `json:"startIndex"`
	TotalResults    int `json:"totalResults"`
	Vulnerabilities []struct {
		CVE nvdCVE `json:"cve"`
	} `json:"vulnerabilities"`
}

type nvdCVE struct {
	ID           string `json:"id"`
	Published    string `json:"published"`
	LastModified string `json:"lastModified"`
	Descriptions []struct {
		Lang  string `json:"lang"`
		Value string `json:"value"`
	} `json:"descriptions"`
	Metrics struct {
		V31 []nvdMetric `json:"cvssMetricV31"`
		V30 []nvdMetric `json:"cvssMetricV30"`
		V2  []nvdMetric `json:"cvssMetricV2"`
	} `json:"metrics"`
}

type nvdMetric struct {
	Type     string `json:"type"`
	CVSSData struct {
		BaseScore    *float64 `json:"baseScore"`
		BaseSeverity string   `json:"baseSeverity"`
	} `json:"cvssData"`
	// CVSS v2 carries the severity next to cvssData
	BaseSeverity string `json:"baseSeverity"`
}

func (c nvdCVE) toRecord(platformID string) domain.VulnerabilityRecord {
	rec := domain.VulnerabilityRecord{
		ID:           c.ID,
		AppliesTo:    platformID,
		Severity:     domain.SeverityUnknown,
		Published:    parseNVDTime(c.Published),
		LastModified: parseNVDTime(c.LastModified),
	}

	for _, d := range c.Descriptions {
		if d.Lang == "en" {
			rec.Description = d.Value
			break
		}
	}

	for _, metrics := range [][]nvdMetric{c.Metrics.V31, c.Metrics.V30, c.Metrics.V2} {
		m, ok := primaryMetric(metrics)
		if !ok {
			continue
		}
		rec.Score = m.CVSSData.BaseScore
		label := m.CVSSData.BaseSeverity
		if label == "" {
			label = m.BaseSeverity
		}
		rec.Severity = domain.ParseSeverity(label)
		break
	}

	return rec
}

func primaryMetric(metrics []nvdMetric) (nvdMetric, bool) {
	if len(metrics) == 0 {
		return nvdMetric{}, false
	}
	for _, m := range metrics {
		if m.Type == "Primary" {
			return m, true
		}
	}
	return metrics[0], true
}

var nvdTimeLayouts = []string{
	"2006-01-02T15:04:05.000",
	"2006-01-02T15:04:05",
	time.RFC3339Nano,
	"2006-01-02",
}

// parseNVDTime parses NVD timestamps, which carry no zone and are UTC.
// Zoned RFC 3339 values and bare dates are accepted as well.
func parseNVDTime(s string) time.Time {
	if s == "" {
		return time.Time{}
	}
	for _, layout := range nvdTimeLayouts {
		if t, err := time.ParseInLocation(layout, s, time.UTC); err == nil {
			return t
		}
	}
	return time.Time{}
}
