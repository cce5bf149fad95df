package cve

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/lcalzada-xor/vulnfleet/internal/core/domain"
)

const seedJSON = `[
  {
    "cve_id": "CVE-2021-41773",
    "cpe_related": "cpe:2.3:a:apache:http_server:2.4.49:*:*:*:*:*:*:*",
    "severity": "CRITICAL",
    "cvss_score": 9.8,
    "description": "Path traversal",
    "published": "2021-10-05T19:15:07Z"
  },
  {
    "cve_id": "CVE-2020-0001",
    "cpe_related": "cpe:2.3:o:vendor:os:1.0",
    "severity": "NONE"
  }
]`

func writeSeed(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestSeedLoader_Fetch(t *testing.T) {
	loader := NewSeedLoader(zaptest.NewLogger(t), writeSeed(t, "seed.json", seedJSON))

	records, err := loader.Fetch(context.Background(), []string{"ignored"})
	require.NoError(t, err)
	require.Len(t, records, 2)

	assert.Equal(t, "CVE-2021-41773", records[0].ID)
	assert.Equal(t, domain.SeverityCritical, records[0].Severity)
	require.NotNil(t, records[0].Score)
	assert.InDelta(t, 9.8, *records[0].Score, 1e-9)
	assert.Equal(t, 2021, records[0].Published.Year())

	assert.Equal(t, domain.SeverityUnknown, records[1].Severity)
	assert.Nil(t, records[1].Score)
}

func TestSeedLoader_FailsAsAWhole(t *testing.T) {
	good := writeSeed(t, "good.json", seedJSON)
	bad := writeSeed(t, "bad.json", `{"not": "an array"}`)

	loader := NewSeedLoader(zaptest.NewLogger(t), good, bad, filepath.Join(t.TempDir(), "missing.json"))
	records, err := loader.Fetch(context.Background(), nil)
	assert.Error(t, err)
	assert.Nil(t, records)
}

func TestSeedLoader_RejectsMissingID(t *testing.T) {
	loader := NewSeedLoader(zaptest.NewLogger(t), writeSeed(t, "seed.json", `[{"severity": "LOW"}]`))

	_, err := loader.Fetch(context.Background(), nil)
	assert.ErrorIs(t, err, domain.ErrInvalidInput)
}

func TestSeedLoader_ISO8601Forms(t *testing.T) {
	seed := `[
		{"cve_id": "CVE-2025-0001", "published": "2025-01-15T10:00:00.000", "last_modified": "2025-01-16T08:30:00"},
		{"cve_id": "CVE-2025-0002", "published": "2025-01-15"},
		{"cve_id": "CVE-2025-0003", "published": "2025-01-15T10:00:00+02:00"},
		{"cve_id": "CVE-2025-0004"}
	]`
	loader := NewSeedLoader(zaptest.NewLogger(t), writeSeed(t, "seed.json", seed))

	records, err := loader.Fetch(context.Background(), nil)
	require.NoError(t, err)
	require.Len(t, records, 4)

	assert.Equal(t, time.Date(2025, 1, 15, 10, 0, 0, 0, time.UTC), records[0].Published)
	assert.Equal(t, time.Date(2025, 1, 16, 8, 30, 0, 0, time.UTC), records[0].LastModified)
	assert.Equal(t, time.Date(2025, 1, 15, 0, 0, 0, 0, time.UTC), records[1].Published)
	assert.True(t, records[2].Published.Equal(time.Date(2025, 1, 15, 8, 0, 0, 0, time.UTC)))
	assert.True(t, records[3].Published.IsZero())
}

func TestSeedLoader_RejectsUnparsableTimestamp(t *testing.T) {
	loader := NewSeedLoader(zaptest.NewLogger(t), writeSeed(t, "seed.json", `[{"cve_id": "CVE-1", "published": "last tuesday"}]`))

	_, err := loader.Fetch(context.Background(), nil)
	assert.ErrorIs(t, err, domain.ErrInvalidInput)
}
