package app

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/lcalzada-xor/vulnfleet/internal/config"
	"github.com/lcalzada-xor/vulnfleet/internal/core/domain"
)

const routerCPE = "cpe:2.3:h:acme:router:1.0:*:*:*:*:*:*:*"

func testConfig(t *testing.T) *config.Config {
	dir := t.TempDir()

	now := time.Now().UTC()
	seed := fmt.Sprintf(`[
		{"cve_id": "CVE-A", "cpe_related": %q, "severity": "CRITICAL", "cvss_score": 9.8, "published": %q},
		{"cve_id": "CVE-B", "cpe_related": %q, "severity": "LOW", "cvss_score": 2.1, "published": %q}
	]`, routerCPE, now.Add(-time.Hour).Format(time.RFC3339), routerCPE, now.AddDate(0, 0, -30).Format(time.RFC3339))

	feed := filepath.Join(dir, "feed.json")
	require.NoError(t, os.WriteFile(feed, []byte(seed), 0o644))

	return &config.Config{
		Addr:             ":0",
		APIPrefix:        "/api",
		DBPath:           filepath.Join(dir, "db", "equipments.db"),
		CVEDBPath:        filepath.Join(dir, "db", "cve.db"),
		FeedFiles:        []string{feed},
		FetchParallelism: 1,
		RefreshTimeout:   time.Minute,
		CacheSize:        16,
		RateLimit:        100,
	}
}

func call(t *testing.T, h http.Handler, method, target, body string, out interface{}) int {
	t.Helper()
	req := httptest.NewRequest(method, target, bytes.NewBufferString(body))
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	if out != nil {
		require.NoError(t, json.Unmarshal(rr.Body.Bytes(), out), rr.Body.String())
	}
	return rr.Code
}

func TestApplication_EndToEnd(t *testing.T) {
	ctx := context.Background()
	cfg := testConfig(t)

	application, err := New(ctx, cfg, zaptest.NewLogger(t))
	require.NoError(t, err)
	t.Cleanup(func() { application.Close() })

	h := application.WebServer.Handler()

	var asset domain.Asset
	code := call(t, h, http.MethodPost, "/api/equipments", `{"name":"X","cpe":"`+routerCPE+`"}`, &asset)
	require.Equal(t, http.StatusCreated, code)

	var empty struct {
		Count         int    `json:"count"`
		WorstSeverity string `json:"worst_severity"`
	}
	code = call(t, h, http.MethodGet, fmt.Sprintf("/api/equipments/%d/exposure", asset.ID), "", &empty)
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, 0, empty.Count)
	assert.Equal(t, "UNKNOWN", empty.WorstSeverity)

	var ticket map[string]string
	require.Equal(t, http.StatusAccepted, call(t, h, http.MethodPost, "/api/refresh-cves", "", &ticket))
	assert.NotEmpty(t, ticket["job_id"])
	application.Synchronizer.Wait()

	var status domain.SyncStatus
	require.Equal(t, http.StatusOK, call(t, h, http.MethodGet, "/api/refresh-cves/status", "", &status))
	assert.Equal(t, domain.RefreshIdle, status.State)
	require.NotNil(t, status.Last)
	assert.Equal(t, domain.JobSucceeded, status.Last.Outcome)
	assert.Equal(t, ticket["job_id"], status.Last.ID)

	var dashboard struct {
		TotalCVEs int `json:"total_cves"`
		Top       []struct {
			ID string `json:"cve_id"`
		} `json:"top_10_critical"`
		Recent []struct {
			ID string `json:"cve_id"`
		} `json:"recent_cves"`
		Distribution map[string]int `json:"severity_distribution"`
	}
	require.Equal(t, http.StatusOK, call(t, h, http.MethodGet, "/api/dashboard", "", &dashboard))
	assert.Equal(t, 2, dashboard.TotalCVEs)
	require.Len(t, dashboard.Top, 2)
	assert.Equal(t, "CVE-A", dashboard.Top[0].ID)
	assert.Equal(t, "CVE-B", dashboard.Top[1].ID)
	require.Len(t, dashboard.Recent, 1)
	assert.Equal(t, "CVE-A", dashboard.Recent[0].ID)
	assert.Equal(t, map[string]int{"CRITICAL": 1, "HIGH": 0, "MEDIUM": 0, "LOW": 1, "UNKNOWN": 0}, dashboard.Distribution)

	var exposure struct {
		Count         int    `json:"count"`
		WorstSeverity string `json:"worst_severity"`
	}
	require.Equal(t, http.StatusOK, call(t, h, http.MethodGet, fmt.Sprintf("/api/equipments/%d/exposure", asset.ID), "", &exposure))
	assert.Equal(t, 2, exposure.Count)
	assert.Equal(t, "CRITICAL", exposure.WorstSeverity)

	generation := application.Store.Generation()
	assert.Equal(t, uint64(1), generation)

	// the committed state survives a restart
	require.NoError(t, application.Close())

	restarted, err := New(ctx, cfg, zaptest.NewLogger(t))
	require.NoError(t, err)
	t.Cleanup(func() { restarted.Close() })

	assert.Equal(t, generation, restarted.Store.Generation())
	assert.Equal(t, 2, restarted.Store.Snapshot().Len())

	assets, err := restarted.Registry.List(ctx)
	require.NoError(t, err)
	assert.Len(t, assets, 1)
}

func TestApplication_BadStoragePath(t *testing.T) {
	cfg := testConfig(t)
	blocker := filepath.Join(t.TempDir(), "file")
	require.NoError(t, os.WriteFile(blocker, nil, 0o644))
	cfg.DBPath = filepath.Join(blocker, "equipments.db")

	_, err := New(context.Background(), cfg, zaptest.NewLogger(t))
	assert.Error(t, err)
}

func TestApplication_RunStopsOnCancel(t *testing.T) {
	cfg := testConfig(t)
	cfg.Addr = "127.0.0.1:0"

	application, err := New(context.Background(), cfg, zaptest.NewLogger(t))
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- application.Run(ctx) }()

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(10 * time.Second):
		t.Fatal("Run did not return after cancellation")
	}
}
