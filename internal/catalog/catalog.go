// Package catalog persists completed reconstruction assets in SQLite so they
// survive process restarts and can be listed, inspected, and pruned later.
package catalog

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	_ "modernc.org/sqlite"

	"photoforge/internal/engine"
	"photoforge/internal/logging"
)

// Record is one catalogued asset.
type Record struct {
	ID            int64
	JobID         string
	SessionID     string
	FileReference string
	Format        string
	SizeBytes     int64
	DetailLevel   engine.DetailLevel
	CreatedAt     time.Time
}

// Catalog is a SQLite-backed asset index. It satisfies the coordinator's
// AssetRecorder interface, so completed jobs land here automatically once
// the handoff layer is wired with a catalog.
type Catalog struct {
	db     *sql.DB
	mu     sync.RWMutex
	dbPath string
}

// New opens (or creates) the catalog database at the given path.
func New(path string) (*Catalog, error) {
	timer := logging.StartTimer(logging.CategoryCatalog, "New")
	defer timer.Stop()

	logging.Catalog("Opening catalog at path: %s", path)

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		logging.Get(logging.CategoryCatalog).Error("Failed to create directory %s: %v", dir, err)
		return nil, fmt.Errorf("failed to create directory: %w", err)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		logging.Get(logging.CategoryCatalog).Error("Failed to open database at %s: %v", path, err)
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	if _, err := db.Exec("PRAGMA busy_timeout = 5000"); err != nil {
		logging.CatalogDebug("Failed to set sqlite busy_timeout: %v", err)
	}
	if _, err := db.Exec("PRAGMA journal_mode = WAL"); err != nil {
		logging.CatalogDebug("Failed to set sqlite journal_mode=WAL: %v", err)
	}
	if _, err := db.Exec("PRAGMA synchronous = NORMAL"); err != nil {
		logging.CatalogDebug("Failed to set sqlite synchronous=NORMAL: %v", err)
	}

	c := &Catalog{db: db, dbPath: path}
	if err := c.initialize(); err != nil {
		logging.Get(logging.CategoryCatalog).Error("Failed to initialize schema: %v", err)
		db.Close()
		return nil, err
	}

	logging.CatalogDebug("Catalog schema ready")
	return c, nil
}

// initialize creates the required tables.
func (c *Catalog) initialize() error {
	assetsTable := `
	CREATE TABLE IF NOT EXISTS assets (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		job_id TEXT NOT NULL UNIQUE,
		session_id TEXT NOT NULL,
		file_reference TEXT NOT NULL,
		format TEXT NOT NULL,
		size_bytes INTEGER NOT NULL,
		detail_level TEXT NOT NULL,
		created_at DATETIME DEFAULT CURRENT_TIMESTAMP
	);
	CREATE INDEX IF NOT EXISTS idx_assets_session ON assets(session_id);
	CREATE INDEX IF NOT EXISTS idx_assets_created ON assets(created_at);
	`
	if _, err := c.db.Exec(assetsTable); err != nil {
		return fmt.Errorf("failed to create table: %w", err)
	}
	return nil
}

// RecordAsset inserts or replaces the asset row for a job. Re-recording the
// same job overwrites the previous row, which keeps retried handoffs
// idempotent.
func (c *Catalog) RecordAsset(jobID, sessionID string, asset engine.Asset) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	_, err := c.db.Exec(`
		INSERT INTO assets (job_id, session_id, file_reference, format, size_bytes, detail_level)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(job_id) DO UPDATE SET
			file_reference = excluded.file_reference,
			format = excluded.format,
			size_bytes = excluded.size_bytes,
			detail_level = excluded.detail_level`,
		jobID, sessionID, asset.FileReference, asset.Format, asset.SizeBytes, string(asset.DetailLevel))
	if err != nil {
		return fmt.Errorf("failed to record asset: %w", err)
	}

	logging.Catalog("Recorded asset for job %s: %s (%d bytes)", jobID, asset.FileReference, asset.SizeBytes)
	return nil
}

// Get returns the record for a job, or sql.ErrNoRows wrapped if absent.
func (c *Catalog) Get(jobID string) (*Record, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	row := c.db.QueryRow(`
		SELECT id, job_id, session_id, file_reference, format, size_bytes, detail_level, created_at
		FROM assets WHERE job_id = ?`, jobID)

	rec, err := scanRecord(row)
	if err != nil {
		return nil, fmt.Errorf("failed to load asset for job %s: %w", jobID, err)
	}
	return rec, nil
}

// List returns all records, newest first.
func (c *Catalog) List() ([]Record, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	rows, err := c.db.Query(`
		SELECT id, job_id, session_id, file_reference, format, size_bytes, detail_level, created_at
		FROM assets ORDER BY created_at DESC, id DESC`)
	if err != nil {
		return nil, fmt.Errorf("failed to list assets: %w", err)
	}
	defer rows.Close()

	var records []Record
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, err
		}
		records = append(records, *rec)
	}
	return records, rows.Err()
}

// ListForSession returns the session's records, newest first.
func (c *Catalog) ListForSession(sessionID string) ([]Record, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	rows, err := c.db.Query(`
		SELECT id, job_id, session_id, file_reference, format, size_bytes, detail_level, created_at
		FROM assets WHERE session_id = ? ORDER BY created_at DESC, id DESC`, sessionID)
	if err != nil {
		return nil, fmt.Errorf("failed to list assets for session %s: %w", sessionID, err)
	}
	defer rows.Close()

	var records []Record
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, err
		}
		records = append(records, *rec)
	}
	return records, rows.Err()
}

// Delete removes a job's record. Deleting an absent record is not an error.
func (c *Catalog) Delete(jobID string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, err := c.db.Exec(`DELETE FROM assets WHERE job_id = ?`, jobID); err != nil {
		return fmt.Errorf("failed to delete asset for job %s: %w", jobID, err)
	}
	logging.CatalogDebug("Deleted catalog record for job %s", jobID)
	return nil
}

// Prune drops records whose asset file no longer exists on disk and returns
// how many were removed. Files deleted out-of-band (manual cleanup, temp dir
// rotation) otherwise leave dangling rows behind.
func (c *Catalog) Prune() (int, error) {
	timer := logging.StartTimer(logging.CategoryCatalog, "Prune")
	defer timer.Stop()

	records, err := c.List()
	if err != nil {
		return 0, err
	}

	pruned := 0
	for _, rec := range records {
		if _, err := os.Stat(rec.FileReference); err == nil {
			continue
		} else if !os.IsNotExist(err) {
			logging.Get(logging.CategoryCatalog).Warn("Cannot stat %s: %v", rec.FileReference, err)
			continue
		}
		if err := c.Delete(rec.JobID); err != nil {
			return pruned, err
		}
		pruned++
	}

	if pruned > 0 {
		logging.Catalog("Pruned %d stale catalog records", pruned)
	}
	return pruned, nil
}

// Count returns the number of catalogued assets.
func (c *Catalog) Count() (int64, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	var count int64
	if err := c.db.QueryRow(`SELECT COUNT(*) FROM assets`).Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count assets: %w", err)
	}
	return count, nil
}

// Close closes the database connection.
func (c *Catalog) Close() error {
	logging.CatalogDebug("Closing catalog database connection")
	return c.db.Close()
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanRecord(row rowScanner) (*Record, error) {
	var rec Record
	var detail string
	if err := row.Scan(&rec.ID, &rec.JobID, &rec.SessionID, &rec.FileReference,
		&rec.Format, &rec.SizeBytes, &detail, &rec.CreatedAt); err != nil {
		return nil, err
	}
	rec.DetailLevel = engine.DetailLevel(detail)
	return &rec, nil
}
