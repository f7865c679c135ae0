package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/jmoiron/sqlx"
	_ "modernc.org/sqlite"

	"github.com/tgsachse/prisoners/internal/model"
)

type SQLiteStore struct {
	path string

	mu sync.RWMutex
	db *sqlx.DB
}

func NewSQLiteStore(path string) *SQLiteStore {
	return &SQLiteStore{path: path}
}

func (s *SQLiteStore) Init(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.path == "" {
		return errors.New("sqlite path is required")
	}
	if s.db != nil {
		return nil
	}

	db, err := sqlx.Open("sqlite", s.path+"?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)")
	if err != nil {
		return fmt.Errorf("open db: %w", err)
	}
	// A single connection serializes writers from concurrent sweeps.
	db.SetMaxOpenConns(1)
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return err
	}
	if err := migrate(ctx, db); err != nil {
		_ = db.Close()
		return fmt.Errorf("migrate: %w", err)
	}

	s.db = db
	return nil
}

func (s *SQLiteStore) SaveRun(ctx context.Context, run model.RunRecord) error {
	db, err := s.getDB()
	if err != nil {
		return err
	}

	payload, err := EncodeRun(run)
	if err != nil {
		return err
	}

	_, err = db.NamedExecContext(ctx, `
		INSERT INTO runs (id, created_at_utc, schema_version, codec_version, payload)
		VALUES (:id, :created_at_utc, :schema_version, :codec_version, :payload)
		ON CONFLICT(id) DO UPDATE SET
			created_at_utc = excluded.created_at_utc,
			schema_version = excluded.schema_version,
			codec_version = excluded.codec_version,
			payload = excluded.payload
	`, runUpsert{
		ID:            run.ID,
		CreatedAtUTC:  run.CreatedAtUTC,
		SchemaVersion: run.SchemaVersion,
		CodecVersion:  run.CodecVersion,
		Payload:       payload,
	})
	return err
}

type runUpsert struct {
	ID            string `db:"id"`
	CreatedAtUTC  string `db:"created_at_utc"`
	SchemaVersion int    `db:"schema_version"`
	CodecVersion  int    `db:"codec_version"`
	Payload       []byte `db:"payload"`
}

func (s *SQLiteStore) GetRun(ctx context.Context, id string) (model.RunRecord, bool, error) {
	db, err := s.getDB()
	if err != nil {
		return model.RunRecord{}, false, err
	}

	var payload []byte
	err = db.GetContext(ctx, &payload, `SELECT payload FROM runs WHERE id = ?`, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return model.RunRecord{}, false, nil
		}
		return model.RunRecord{}, false, err
	}

	run, err := DecodeRun(payload)
	if err != nil {
		return model.RunRecord{}, false, fmt.Errorf("decode run %s: %w", id, err)
	}
	return run, true, nil
}

type runRow struct {
	ID           string `db:"id"`
	CreatedAtUTC string `db:"created_at_utc"`
	Payload      []byte `db:"payload"`
}

func (s *SQLiteStore) ListRuns(ctx context.Context) ([]model.RunRecord, error) {
	db, err := s.getDB()
	if err != nil {
		return nil, err
	}

	var rows []runRow
	err = db.SelectContext(ctx, &rows, `SELECT id, created_at_utc, payload FROM runs ORDER BY created_at_utc DESC, id DESC`)
	if err != nil {
		return nil, err
	}
	// Rows written with trimmed fractions do not sort as text.
	sort.SliceStable(rows, func(i, j int) bool {
		return model.CompareTimestamps(rows[i].CreatedAtUTC, rows[j].CreatedAtUTC) > 0
	})

	runs := make([]model.RunRecord, 0, len(rows))
	for _, row := range rows {
		run, err := DecodeRun(row.Payload)
		if err != nil {
			return nil, fmt.Errorf("decode run %s: %w", row.ID, err)
		}
		runs = append(runs, run)
	}
	return runs, nil
}

func (s *SQLiteStore) SaveFrequencies(ctx context.Context, runID string, series []model.FrequencySeries) error {
	payload, err := EncodeFrequencies(series)
	if err != nil {
		return err
	}
	return s.putRunPayload(ctx, "frequencies", runID, payload)
}

func (s *SQLiteStore) GetFrequencies(ctx context.Context, runID string) ([]model.FrequencySeries, bool, error) {
	payload, ok, err := s.getRunPayload(ctx, "frequencies", runID)
	if err != nil || !ok {
		return nil, ok, err
	}
	series, err := DecodeFrequencies(payload)
	if err != nil {
		return nil, false, fmt.Errorf("decode frequencies %s: %w", runID, err)
	}
	return series, true, nil
}

func (s *SQLiteStore) SaveDiagnostics(ctx context.Context, runID string, diagnostics []model.GenerationDiagnostics) error {
	payload, err := EncodeDiagnostics(diagnostics)
	if err != nil {
		return err
	}
	return s.putRunPayload(ctx, "diagnostics", runID, payload)
}

func (s *SQLiteStore) GetDiagnostics(ctx context.Context, runID string) ([]model.GenerationDiagnostics, bool, error) {
	payload, ok, err := s.getRunPayload(ctx, "diagnostics", runID)
	if err != nil || !ok {
		return nil, ok, err
	}
	diagnostics, err := DecodeDiagnostics(payload)
	if err != nil {
		return nil, false, fmt.Errorf("decode diagnostics %s: %w", runID, err)
	}
	return diagnostics, true, nil
}

func (s *SQLiteStore) SaveLineage(ctx context.Context, runID string, lineage []model.LineageRecord) error {
	payload, err := EncodeLineage(lineage)
	if err != nil {
		return err
	}
	return s.putRunPayload(ctx, "lineage", runID, payload)
}

func (s *SQLiteStore) GetLineage(ctx context.Context, runID string) ([]model.LineageRecord, bool, error) {
	payload, ok, err := s.getRunPayload(ctx, "lineage", runID)
	if err != nil || !ok {
		return nil, ok, err
	}
	lineage, err := DecodeLineage(payload)
	if err != nil {
		return nil, false, fmt.Errorf("decode lineage %s: %w", runID, err)
	}
	return lineage, true, nil
}

func (s *SQLiteStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.db == nil {
		return nil
	}
	err := s.db.Close()
	s.db = nil
	return err
}

func (s *SQLiteStore) getDB() (*sqlx.DB, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.db == nil {
		return nil, errors.New("store is not initialized")
	}
	return s.db, nil
}

// putRunPayload upserts into one of the run_id keyed payload tables. The table
// name always comes from this file, never from callers.
func (s *SQLiteStore) putRunPayload(ctx context.Context, table, runID string, payload []byte) error {
	db, err := s.getDB()
	if err != nil {
		return err
	}
	_, err = db.ExecContext(ctx, `
		INSERT INTO `+table+` (run_id, payload)
		VALUES (?, ?)
		ON CONFLICT(run_id) DO UPDATE SET
			payload = excluded.payload
	`, runID, payload)
	return err
}

func (s *SQLiteStore) getRunPayload(ctx context.Context, table, runID string) ([]byte, bool, error) {
	db, err := s.getDB()
	if err != nil {
		return nil, false, err
	}
	var payload []byte
	err = db.GetContext(ctx, &payload, `SELECT payload FROM `+table+` WHERE run_id = ?`, runID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, false, nil
		}
		return nil, false, err
	}
	return payload, true, nil
}

func migrate(ctx context.Context, db *sqlx.DB) error {
	schema := `
	CREATE TABLE IF NOT EXISTS runs (
		id TEXT PRIMARY KEY,
		created_at_utc TEXT NOT NULL,
		schema_version INTEGER NOT NULL,
		codec_version INTEGER NOT NULL,
		payload BLOB NOT NULL
	);

	CREATE TABLE IF NOT EXISTS frequencies (
		run_id TEXT PRIMARY KEY,
		payload BLOB NOT NULL
	);

	CREATE TABLE IF NOT EXISTS diagnostics (
		run_id TEXT PRIMARY KEY,
		payload BLOB NOT NULL
	);

	CREATE TABLE IF NOT EXISTS lineage (
		run_id TEXT PRIMARY KEY,
		payload BLOB NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_runs_created ON runs(created_at_utc);
	`
	_, err := db.ExecContext(ctx, schema)
	return err
}
