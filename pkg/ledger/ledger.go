// Package ledger keeps a SQLite history of pipeline runs and their per-stage
// reports.
package ledger

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/hazyhaar/trialmap/pkg/match"
	_ "modernc.org/sqlite"
)

// ErrNotFound is returned when a run ID is unknown.
var ErrNotFound = errors.New("run not found")

// Run is one row of the runs table.
type Run struct {
	ID            string  `json:"run_id"`
	StartedAt     int64   `json:"started_at"`
	BundleID      string  `json:"bundle_id"`
	BundleVersion string  `json:"bundle_version"`
	Input         string  `json:"input"`
	DrugRecords   int     `json:"drug_records"`
	DrugTrials    int     `json:"drug_trials"`
	MappedTrials  int     `json:"mapped_trials"`
	Mappings      int     `json:"mappings"`
	Unmapped      int     `json:"unmapped"`
	Coverage      float64 `json:"coverage"`
	DurationMS    int64   `json:"duration_ms"`
}

// Meta describes where a run's inputs came from.
type Meta struct {
	BundleID      string
	BundleVersion string
	Input         string
	StartedAt     time.Time
}

// Ledger manages the runs and stage_reports tables.
type Ledger struct {
	db *sql.DB
}

// Open opens (or creates) the SQLite database at path.
func Open(path string) (*Ledger, error) {
	db, err := sql.Open("sqlite", path+"?_pragma=journal_mode(wal)&_pragma=busy_timeout(5000)&_pragma=foreign_keys(1)")
	if err != nil {
		return nil, fmt.Errorf("open ledger: %w", err)
	}

	const ddl = `
	CREATE TABLE IF NOT EXISTS runs (
		run_id         TEXT PRIMARY KEY,
		started_at     INTEGER NOT NULL,
		bundle_id      TEXT NOT NULL DEFAULT '',
		bundle_version TEXT NOT NULL DEFAULT '',
		input          TEXT NOT NULL DEFAULT '',
		drug_records   INTEGER NOT NULL,
		drug_trials    INTEGER NOT NULL,
		mapped_trials  INTEGER NOT NULL,
		mappings       INTEGER NOT NULL,
		unmapped       INTEGER NOT NULL,
		coverage       REAL NOT NULL,
		duration_ms    INTEGER NOT NULL
	);
	CREATE TABLE IF NOT EXISTS stage_reports (
		run_id            TEXT NOT NULL REFERENCES runs(run_id) ON DELETE CASCADE,
		position          INTEGER NOT NULL,
		stage             TEXT NOT NULL,
		records_in        INTEGER NOT NULL,
		trials_in         INTEGER NOT NULL,
		refs              INTEGER NOT NULL,
		invalid_patterns  INTEGER NOT NULL,
		candidates        INTEGER NOT NULL,
		mappings          INTEGER NOT NULL,
		trials_mapped     INTEGER NOT NULL,
		drugs_mapped      INTEGER NOT NULL,
		records_out       INTEGER NOT NULL,
		trials_out        INTEGER NOT NULL,
		cumulative_mapped INTEGER NOT NULL,
		coverage          REAL NOT NULL,
		ambiguities       TEXT,
		duration_ms       INTEGER NOT NULL,
		PRIMARY KEY (run_id, position)
	);
	CREATE INDEX IF NOT EXISTS idx_runs_started ON runs(started_at);`
	if _, err := db.Exec(ddl); err != nil {
		db.Close()
		return nil, fmt.Errorf("create ledger tables: %w", err)
	}
	return &Ledger{db: db}, nil
}

func (l *Ledger) Close() error {
	return l.db.Close()
}

// Record stores res under a fresh run ID and returns the stored row.
func (l *Ledger) Record(ctx context.Context, meta Meta, res *match.Result) (Run, error) {
	if meta.StartedAt.IsZero() {
		meta.StartedAt = time.Now()
	}
	run := Run{
		ID:            uuid.NewString(),
		StartedAt:     meta.StartedAt.Unix(),
		BundleID:      meta.BundleID,
		BundleVersion: meta.BundleVersion,
		Input:         meta.Input,
		DrugRecords:   res.DrugRecords,
		DrugTrials:    res.DrugTrials,
		MappedTrials:  res.MappedTrials,
		Mappings:      len(res.Mappings),
		Unmapped:      len(res.Unmapped),
		Coverage:      res.Coverage,
		DurationMS:    res.Duration.Milliseconds(),
	}

	tx, err := l.db.BeginTx(ctx, nil)
	if err != nil {
		return Run{}, fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx, `INSERT INTO runs
		(run_id, started_at, bundle_id, bundle_version, input, drug_records, drug_trials,
		 mapped_trials, mappings, unmapped, coverage, duration_ms)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		run.ID, run.StartedAt, run.BundleID, run.BundleVersion, run.Input, run.DrugRecords,
		run.DrugTrials, run.MappedTrials, run.Mappings, run.Unmapped, run.Coverage, run.DurationMS)
	if err != nil {
		return Run{}, fmt.Errorf("insert run: %w", err)
	}

	const q = `INSERT INTO stage_reports
		(run_id, position, stage, records_in, trials_in, refs, invalid_patterns, candidates,
		 mappings, trials_mapped, drugs_mapped, records_out, trials_out, cumulative_mapped,
		 coverage, ambiguities, duration_ms)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`
	for i, s := range res.Stages {
		var amb *string
		if len(s.Ambiguities) > 0 {
			data, err := json.Marshal(s.Ambiguities)
			if err != nil {
				return Run{}, fmt.Errorf("encode ambiguities: %w", err)
			}
			str := string(data)
			amb = &str
		}
		_, err := tx.ExecContext(ctx, q, run.ID, i, string(s.Stage), s.RecordsIn, s.TrialsIn,
			s.References, s.InvalidPatterns, s.Candidates, s.Mappings, s.TrialsMapped,
			s.DrugsMapped, s.RecordsOut, s.TrialsOut, s.CumulativeMapped, s.Coverage, amb,
			s.Duration.Milliseconds())
		if err != nil {
			return Run{}, fmt.Errorf("insert stage %s: %w", s.Stage, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return Run{}, fmt.Errorf("commit: %w", err)
	}
	return run, nil
}

const runColumns = `run_id, started_at, bundle_id, bundle_version, input, drug_records,
	drug_trials, mapped_trials, mappings, unmapped, coverage, duration_ms`

type scanner interface {
	Scan(dest ...any) error
}

func scanRun(s scanner) (Run, error) {
	var r Run
	err := s.Scan(&r.ID, &r.StartedAt, &r.BundleID, &r.BundleVersion, &r.Input, &r.DrugRecords,
		&r.DrugTrials, &r.MappedTrials, &r.Mappings, &r.Unmapped, &r.Coverage, &r.DurationMS)
	return r, err
}

// ListRuns returns up to limit runs, newest first. limit <= 0 means 50.
func (l *Ledger) ListRuns(ctx context.Context, limit int) ([]Run, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := l.db.QueryContext(ctx,
		`SELECT `+runColumns+` FROM runs ORDER BY started_at DESC, rowid DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("list runs: %w", err)
	}
	defer rows.Close()

	var runs []Run
	for rows.Next() {
		r, err := scanRun(rows)
		if err != nil {
			return nil, fmt.Errorf("scan run: %w", err)
		}
		runs = append(runs, r)
	}
	return runs, rows.Err()
}

// GetRun returns one run and its stage reports in execution order.
func (l *Ledger) GetRun(ctx context.Context, id string) (Run, []match.StageReport, error) {
	run, err := scanRun(l.db.QueryRowContext(ctx, `SELECT `+runColumns+` FROM runs WHERE run_id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return Run{}, nil, ErrNotFound
	}
	if err != nil {
		return Run{}, nil, fmt.Errorf("get run %s: %w", id, err)
	}

	rows, err := l.db.QueryContext(ctx, `SELECT stage, records_in, trials_in, refs, invalid_patterns,
		candidates, mappings, trials_mapped, drugs_mapped, records_out, trials_out,
		cumulative_mapped, coverage, ambiguities, duration_ms
		FROM stage_reports WHERE run_id = ? ORDER BY position`, id)
	if err != nil {
		return Run{}, nil, fmt.Errorf("get stages %s: %w", id, err)
	}
	defer rows.Close()

	var stages []match.StageReport
	for rows.Next() {
		var (
			s     match.StageReport
			stage string
			amb   *string
			durMS int64
		)
		if err := rows.Scan(&stage, &s.RecordsIn, &s.TrialsIn, &s.References, &s.InvalidPatterns,
			&s.Candidates, &s.Mappings, &s.TrialsMapped, &s.DrugsMapped, &s.RecordsOut,
			&s.TrialsOut, &s.CumulativeMapped, &s.Coverage, &amb, &durMS); err != nil {
			return Run{}, nil, fmt.Errorf("scan stage: %w", err)
		}
		s.Stage = match.Provenance(stage)
		s.Duration = time.Duration(durMS) * time.Millisecond
		if amb != nil {
			if err := json.Unmarshal([]byte(*amb), &s.Ambiguities); err != nil {
				return Run{}, nil, fmt.Errorf("decode ambiguities: %w", err)
			}
		}
		stages = append(stages, s)
	}
	return run, stages, rows.Err()
}

// Prune deletes runs started before cutoff and returns how many went.
func (l *Ledger) Prune(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := l.db.ExecContext(ctx, `DELETE FROM runs WHERE started_at < ?`, cutoff.Unix())
	if err != nil {
		return 0, fmt.Errorf("prune runs: %w", err)
	}
	return res.RowsAffected()
}
