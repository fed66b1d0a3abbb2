// Package catalog keeps a SQLite ledger of conversions next to the
// converted files.
package catalog

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/gofrs/flock"
	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"github.com/kilonova-lab/specconv/internal/models"
)

const (
	// DatabaseName is the ledger file inside an output directory.
	DatabaseName = "catalog.db"
	// LockName guards an output directory against concurrent converters.
	LockName = ".specconv.lock"
)

var (
	// ErrLocked is returned by Open when another process holds the directory.
	ErrLocked = errors.New("output directory is in use by another converter")
	// ErrNoCatalog is returned by OpenReadOnly when dir has no ledger yet.
	ErrNoCatalog = errors.New("no conversion catalog")
)

// Entry is one ledger row.
type Entry struct {
	ID         string                  `json:"id"`
	RunID      string                  `json:"runId"`
	Source     string                  `json:"source"`
	Output     string                  `json:"output,omitempty"`
	Format     string                  `json:"format,omitempty"`
	Metadata   *models.Metadata        `json:"metadata,omitempty"`
	Shape      [3]int                  `json:"shape"`
	Status     models.ConversionStatus `json:"status"`
	ErrorKind  string                  `json:"errorKind,omitempty"`
	Error      string                  `json:"error,omitempty"`
	Warnings   int                     `json:"warnings"`
	RecordedAt time.Time               `json:"recordedAt"`
}

// EntryFromResult converts a conversion result into a ledger row.
func EntryFromResult(r models.ConversionResult) Entry {
	return Entry{
		RunID:      r.RunID,
		Source:     r.Input,
		Output:     r.Output,
		Format:     r.Format,
		Metadata:   r.Metadata,
		Shape:      r.Shape,
		Status:     r.Status,
		ErrorKind:  r.ErrorKind,
		Error:      r.Error,
		Warnings:   len(r.Warnings),
		RecordedAt: r.FinishedAt,
	}
}

// Catalog is an open ledger. It holds the directory lock until Close.
type Catalog struct {
	db   *sql.DB
	lock *flock.Flock
	path string
}

// Open opens or creates the ledger in dir and takes the directory lock.
func Open(ctx context.Context, dir string) (*Catalog, error) {
	lock := flock.New(filepath.Join(dir, LockName))
	ok, err := lock.TryLock()
	if err != nil {
		return nil, fmt.Errorf("acquire lock: %w", err)
	}
	if !ok {
		return nil, ErrLocked
	}

	dbPath := filepath.Join(dir, DatabaseName)
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		_ = lock.Unlock()
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}
	db.SetMaxOpenConns(1)

	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout = 5000",
	}
	for _, pragma := range pragmas {
		if _, execErr := db.ExecContext(ctx, pragma); execErr != nil {
			_ = db.Close()
			_ = lock.Unlock()
			return nil, fmt.Errorf("apply pragma %q: %w", pragma, execErr)
		}
	}

	c := &Catalog{db: db, lock: lock, path: dbPath}
	if err := c.initSchema(ctx); err != nil {
		_ = c.Close()
		return nil, err
	}
	return c, nil
}

// OpenReadOnly opens an existing ledger for listing without taking the
// directory lock, so it works while a converter or server holds it.
func OpenReadOnly(ctx context.Context, dir string) (*Catalog, error) {
	dbPath := filepath.Join(dir, DatabaseName)
	if _, err := os.Stat(dbPath); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("%s: %w", dir, ErrNoCatalog)
		}
		return nil, fmt.Errorf("stat catalog: %w", err)
	}

	db, err := sql.Open("sqlite", "file:"+dbPath+"?mode=ro&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}
	db.SetMaxOpenConns(1)
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}
	return &Catalog{db: db, path: dbPath}, nil
}

// Path returns the ledger database path.
func (c *Catalog) Path() string { return c.path }

// Close closes the database and releases the directory lock if held.
func (c *Catalog) Close() error {
	if c == nil {
		return nil
	}
	var errs []error
	if c.db != nil {
		errs = append(errs, c.db.Close())
	}
	if c.lock != nil {
		errs = append(errs, c.lock.Unlock())
	}
	return errors.Join(errs...)
}

func (c *Catalog) initSchema(ctx context.Context) error {
	_, err := c.db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS conversions (
			id          TEXT PRIMARY KEY,
			run_id      TEXT NOT NULL,
			source      TEXT NOT NULL,
			output      TEXT,
			format      TEXT,
			topology    INTEGER,
			wind        INTEGER,
			md          REAL,
			vd          REAL,
			mw          REAL,
			vw          REAL,
			n_time      INTEGER NOT NULL DEFAULT 0,
			n_wave      INTEGER NOT NULL DEFAULT 0,
			n_angle     INTEGER NOT NULL DEFAULT 0,
			status      TEXT NOT NULL,
			error_kind  TEXT,
			error       TEXT,
			warnings    INTEGER NOT NULL DEFAULT 0,
			recorded_at TEXT NOT NULL
		);
		CREATE INDEX IF NOT EXISTS idx_conversions_recorded ON conversions(recorded_at);
	`)
	if err != nil {
		return fmt.Errorf("init schema: %w", err)
	}
	return nil
}

// Record appends an entry. Missing ID and timestamp are filled in.
func (c *Catalog) Record(ctx context.Context, e Entry) (Entry, error) {
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	if e.RecordedAt.IsZero() {
		e.RecordedAt = time.Now()
	}
	e.RecordedAt = e.RecordedAt.UTC()

	var topology, wind sql.NullInt64
	var md, vd, mw, vw sql.NullFloat64
	if m := e.Metadata; m != nil {
		topology = sql.NullInt64{Int64: int64(m.Topology), Valid: true}
		wind = sql.NullInt64{Int64: int64(m.Wind), Valid: true}
		md = sql.NullFloat64{Float64: m.MassDynamical, Valid: true}
		vd = sql.NullFloat64{Float64: m.VelocityDynamical, Valid: true}
		mw = sql.NullFloat64{Float64: m.MassWind, Valid: true}
		vw = sql.NullFloat64{Float64: m.VelocityWind, Valid: true}
	}

	_, err := c.db.ExecContext(ctx, `
		INSERT INTO conversions (
			id, run_id, source, output, format,
			topology, wind, md, vd, mw, vw,
			n_time, n_wave, n_angle,
			status, error_kind, error, warnings, recorded_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		e.ID, e.RunID, e.Source, e.Output, e.Format,
		topology, wind, md, vd, mw, vw,
		e.Shape[0], e.Shape[1], e.Shape[2],
		string(e.Status), e.ErrorKind, e.Error, e.Warnings,
		e.RecordedAt.Format(time.RFC3339Nano),
	)
	if err != nil {
		return e, fmt.Errorf("record conversion: %w", err)
	}
	return e, nil
}

// List returns the most recent entries first. limit <= 0 returns everything.
func (c *Catalog) List(ctx context.Context, limit int) ([]Entry, error) {
	query := `
		SELECT id, run_id, source, output, format,
		       topology, wind, md, vd, mw, vw,
		       n_time, n_wave, n_angle,
		       status, error_kind, error, warnings, recorded_at
		FROM conversions
		ORDER BY recorded_at DESC, rowid DESC`
	var args []any
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}

	rows, err := c.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list conversions: %w", err)
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

func scanEntry(rows *sql.Rows) (Entry, error) {
	var (
		e                     Entry
		output, format        sql.NullString
		errorKind, errMessage sql.NullString
		topology, wind        sql.NullInt64
		md, vd, mw, vw        sql.NullFloat64
		status, recordedAt    string
	)
	if err := rows.Scan(
		&e.ID, &e.RunID, &e.Source, &output, &format,
		&topology, &wind, &md, &vd, &mw, &vw,
		&e.Shape[0], &e.Shape[1], &e.Shape[2],
		&status, &errorKind, &errMessage, &e.Warnings, &recordedAt,
	); err != nil {
		return e, fmt.Errorf("scan conversion: %w", err)
	}

	e.Output = output.String
	e.Format = format.String
	e.ErrorKind = errorKind.String
	e.Error = errMessage.String
	e.Status = models.ConversionStatus(strings.TrimSpace(status))
	if topology.Valid {
		e.Metadata = &models.Metadata{
			Topology:          models.Topology(topology.Int64),
			Wind:              models.WindMultiplicity(wind.Int64),
			MassDynamical:     md.Float64,
			VelocityDynamical: vd.Float64,
			MassWind:          mw.Float64,
			VelocityWind:      vw.Float64,
		}
	}
	ts, err := time.Parse(time.RFC3339Nano, recordedAt)
	if err != nil {
		return e, fmt.Errorf("parse recorded_at %q: %w", recordedAt, err)
	}
	e.RecordedAt = ts
	return e, nil
}
