package cve

import (
	"context"
	"database/sql"
	_ "embed"
	"errors"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/lcalzada-xor/vulnfleet/internal/core/domain"
)

//go:embed schema.sql
var schemaSQL string

const recordColumns = `cve_id, cpe_related, severity, cvss_score, description, published_date, last_modified`

// SQLiteRepository implements ports.CVERepository using SQLite.
type SQLiteRepository struct {
	db *sql.DB
}

// NewSQLiteRepository creates a new SQLite-based CVE repository.
func NewSQLiteRepository(dbPath string) (*SQLiteRepository, error) {
	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Enable WAL mode for better concurrency
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to enable WAL: %w", err)
	}

	// Initialize schema
	if _, err := db.Exec(schemaSQL); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	return &SQLiteRepository{db: db}, nil
}

// LoadAll returns every record in first-ingestion order and the persisted generation.
func (r *SQLiteRepository) LoadAll(ctx context.Context) ([]domain.VulnerabilityRecord, uint64, error) {
	var generation uint64
	if err := r.db.QueryRowContext(ctx, "SELECT generation FROM cve_sync_status WHERE id = 1").Scan(&generation); err != nil {
		return nil, 0, fmt.Errorf("failed to read generation: %w", err)
	}

	rows, err := r.db.QueryContext(ctx, "SELECT "+recordColumns+" FROM cve_records ORDER BY seq")
	if err != nil {
		return nil, 0, fmt.Errorf("query failed: %w", err)
	}
	defer rows.Close()

	var records []domain.VulnerabilityRecord
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, 0, err
		}
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, err
	}

	return records, generation, nil
}

// CommitBatch upserts all records and stores the generation in one transaction.
// An existing record keeps its seq, so iteration order survives re-ingest.
func (r *SQLiteRepository) CommitBatch(ctx context.Context, records []domain.VulnerabilityRecord, generation uint64) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO cve_records (`+recordColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(cve_id) DO UPDATE SET
			cpe_related = excluded.cpe_related,
			severity = excluded.severity,
			cvss_score = excluded.cvss_score,
			description = excluded.description,
			published_date = excluded.published_date,
			last_modified = excluded.last_modified,
			updated_at = CURRENT_TIMESTAMP
	`)
	if err != nil {
		return fmt.Errorf("failed to prepare upsert: %w", err)
	}
	defer stmt.Close()

	for _, rec := range records {
		var score sql.NullFloat64
		if rec.Score != nil {
			score = sql.NullFloat64{Float64: *rec.Score, Valid: true}
		}
		if _, err := stmt.ExecContext(ctx,
			rec.ID, rec.AppliesTo, rec.Severity.String(), score, rec.Description,
			formatTime(rec.Published), formatTime(rec.LastModified),
		); err != nil {
			return fmt.Errorf("failed to upsert %s: %w", rec.ID, err)
		}
	}

	if _, err := tx.ExecContext(ctx,
		"UPDATE cve_sync_status SET generation = ?, updated_at = CURRENT_TIMESTAMP WHERE id = 1",
		generation,
	); err != nil {
		return fmt.Errorf("failed to store generation: %w", err)
	}

	return tx.Commit()
}

// GetByID retrieves a specific CVE by its ID.
func (r *SQLiteRepository) GetByID(ctx context.Context, cveID string) (*domain.VulnerabilityRecord, error) {
	row := r.db.QueryRowContext(ctx, "SELECT "+recordColumns+" FROM cve_records WHERE cve_id = ?", cveID)
	rec, err := scanRecord(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("cve %s: %w", cveID, domain.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get CVE: %w", err)
	}

	return &rec, nil
}

// GetSyncStatus returns the bookkeeping of the last synchronization.
func (r *SQLiteRepository) GetSyncStatus(ctx context.Context) (domain.CVESyncStatus, error) {
	var status domain.CVESyncStatus
	var lastSync sql.NullString

	err := r.db.QueryRowContext(ctx,
		"SELECT generation, last_sync_time, record_count, error_message FROM cve_sync_status WHERE id = 1",
	).Scan(&status.Generation, &lastSync, &status.RecordCount, &status.ErrorMessage)
	if err != nil {
		return status, fmt.Errorf("failed to read sync status: %w", err)
	}
	status.LastSyncTime = parseTime(lastSync)

	return status, nil
}

// UpdateSyncStatus updates the sync status. The generation is owned by CommitBatch.
func (r *SQLiteRepository) UpdateSyncStatus(ctx context.Context, status domain.CVESyncStatus) error {
	query := `
		UPDATE cve_sync_status
		SET last_sync_time = ?,
		    record_count = ?,
		    error_message = ?,
		    updated_at = CURRENT_TIMESTAMP
		WHERE id = 1
	`

	_, err := r.db.ExecContext(ctx, query,
		formatTime(status.LastSyncTime),
		status.RecordCount,
		status.ErrorMessage,
	)

	return err
}

// GetTotalCount returns the total number of CVE records.
func (r *SQLiteRepository) GetTotalCount(ctx context.Context) (int, error) {
	var count int
	err := r.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM cve_records").Scan(&count)
	return count, err
}

// Close closes the database connection.
func (r *SQLiteRepository) Close() error {
	return r.db.Close()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanRecord(s scanner) (domain.VulnerabilityRecord, error) {
	var rec domain.VulnerabilityRecord
	var severity string
	var score sql.NullFloat64
	var published, lastModified sql.NullString

	if err := s.Scan(&rec.ID, &rec.AppliesTo, &severity, &score, &rec.Description, &published, &lastModified); err != nil {
		return rec, err
	}

	rec.Severity = domain.ParseSeverity(severity)
	if score.Valid {
		rec.Score = domain.Float64(score.Float64)
	}
	rec.Published = parseTime(published)
	rec.LastModified = parseTime(lastModified)

	return rec, nil
}

func formatTime(t time.Time) sql.NullString {
	if t.IsZero() {
		return sql.NullString{}
	}
	return sql.NullString{String: t.UTC().Format(time.RFC3339Nano), Valid: true}
}

func parseTime(s sql.NullString) time.Time {
	if !s.Valid || s.String == "" {
		return time.Time{}
	}
	t, err := time.Parse(time.RFC3339Nano, s.String)
	if err != nil {
		return time.Time{}
	}
	return t
}
