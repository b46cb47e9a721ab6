// Package store persists extraction runs to local SQLite. Writes are
// snapshot-style: each run is a fully-formed, immutable result set keyed by
// session + parameter hash, so runs with different parameters never collide
// and re-runs with identical parameters dedupe by key.
package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/keeminlee/meepo/internal/detect"
	"github.com/keeminlee/meepo/internal/graph"
)

// ConflictPolicy decides what happens when a run for the same
// session + params hash already exists.
type ConflictPolicy int

const (
	// Skip leaves the existing snapshot in place.
	Skip ConflictPolicy = iota
	// Overwrite replaces the existing snapshot atomically.
	Overwrite
)

// Run is a stored extraction result set with its provenance tags.
type Run struct {
	ID            string               `json:"id"`
	SessionID     string               `json:"session_id"`
	KernelVersion string               `json:"kernel_version"`
	ParamsHash    string               `json:"params_hash"`
	ParamsJSON    string               `json:"kernel_params_json"`
	ExtractedAt   time.Time            `json:"extracted_at"`
	Links         []*graph.Link        `json:"links,omitempty"`
	Metrics       []graph.RoundMetrics `json:"metrics,omitempty"`
}

// Store provides local run storage using SQLite.
type Store struct {
	db      *sql.DB
	dataDir string
}

// NewStore opens (or creates) the run database under MEEPO_DATA_DIR,
// defaulting to ~/.meepo.
func NewStore() (*Store, error) {
	dataDir := os.Getenv("MEEPO_DATA_DIR")
	if dataDir == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("failed to get home dir: %w", err)
		}
		dataDir = filepath.Join(home, ".meepo")
	}
	if err := os.MkdirAll(dataDir, 0700); err != nil {
		return nil, fmt.Errorf("failed to create data dir: %w", err)
	}

	dbPath := filepath.Join(dataDir, "runs.db")
	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	s := &Store{db: db, dataDir: dataDir}
	if err := s.initSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to init schema: %w", err)
	}
	return s, nil
}

// Close closes the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) initSchema() error {
	schema := `
	CREATE TABLE IF NOT EXISTS runs (
		id TEXT PRIMARY KEY,
		session_id TEXT NOT NULL,
		kernel_version TEXT NOT NULL,
		params_hash TEXT NOT NULL,
		params_json TEXT NOT NULL,
		extracted_at DATETIME DEFAULT CURRENT_TIMESTAMP,
		UNIQUE(session_id, params_hash)
	);
	CREATE INDEX IF NOT EXISTS idx_runs_session ON runs(session_id);

	CREATE TABLE IF NOT EXISTS links (
		id TEXT NOT NULL,
		run_id TEXT NOT NULL,
		session_id TEXT NOT NULL,
		actor TEXT,
		cause_index INTEGER,
		effect_index INTEGER,
		cause_type TEXT,
		effect_type TEXT,
		mass REAL NOT NULL,
		strength REAL NOT NULL,
		strength_internal REAL NOT NULL,
		claimed INTEGER NOT NULL,
		node_kind TEXT NOT NULL,
		level INTEGER NOT NULL,
		members TEXT,
		center REAL NOT NULL,
		PRIMARY KEY (run_id, id),
		FOREIGN KEY (run_id) REFERENCES runs(id) ON DELETE CASCADE
	);
	CREATE INDEX IF NOT EXISTS idx_links_run ON links(run_id);
	CREATE INDEX IF NOT EXISTS idx_links_session_level ON links(session_id, level);

	CREATE TABLE IF NOT EXISTS round_metrics (
		run_id TEXT NOT NULL,
		round INTEGER NOT NULL,
		phase TEXT NOT NULL,
		singletons INTEGER NOT NULL,
		links INTEGER NOT NULL,
		composites INTEGER NOT NULL,
		mass_min REAL, mass_p50 REAL, mass_p90 REAL, mass_max REAL,
		strength_min REAL, strength_p50 REAL, strength_p90 REAL, strength_max REAL,
		PRIMARY KEY (run_id, round),
		FOREIGN KEY (run_id) REFERENCES runs(id) ON DELETE CASCADE
	);
	`
	_, err := s.db.Exec(schema)
	return err
}

// runKey derives the deterministic run ID from session and params hash, so
// concurrent re-extraction with identical parameters dedupes by key.
func runKey(sessionID, paramsHash string) string {
	return sessionID + ":" + paramsHash
}

// SaveRun writes a run snapshot in a single transaction. An existing
// snapshot for the same session + params hash is skipped or replaced
// according to policy; partial state is never left behind.
func (s *Store) SaveRun(ctx context.Context, sessionID string, p graph.Params, links []*graph.Link, metrics []graph.RoundMetrics, policy ConflictPolicy) (*Run, error) {
	if sessionID == "" {
		return nil, fmt.Errorf("save run: empty session id")
	}
	run := &Run{
		ID:            runKey(sessionID, p.Hash()),
		SessionID:     sessionID,
		KernelVersion: graph.KernelVersion,
		ParamsHash:    p.Hash(),
		ParamsJSON:    p.JSON(),
		ExtractedAt:   time.Now().UTC(),
		Links:         links,
		Metrics:       metrics,
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("save run: %w", err)
	}
	defer tx.Rollback()

	var existing string
	err = tx.QueryRowContext(ctx, `SELECT id FROM runs WHERE session_id = ? AND params_hash = ?`,
		sessionID, run.ParamsHash).Scan(&existing)
	switch {
	case err == nil:
		if policy == Skip {
			return s.GetRun(ctx, existing)
		}
		if _, err := tx.ExecContext(ctx, `DELETE FROM links WHERE run_id = ?`, existing); err != nil {
			return nil, fmt.Errorf("save run: clear links: %w", err)
		}
		if _, err := tx.ExecContext(ctx, `DELETE FROM round_metrics WHERE run_id = ?`, existing); err != nil {
			return nil, fmt.Errorf("save run: clear metrics: %w", err)
		}
		if _, err := tx.ExecContext(ctx, `DELETE FROM runs WHERE id = ?`, existing); err != nil {
			return nil, fmt.Errorf("save run: clear run: %w", err)
		}
	case err != sql.ErrNoRows:
		return nil, fmt.Errorf("save run: lookup: %w", err)
	}

	if _, err := tx.ExecContext(ctx, `
		INSERT INTO runs (id, session_id, kernel_version, params_hash, params_json, extracted_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`, run.ID, run.SessionID, run.KernelVersion, run.ParamsHash, run.ParamsJSON, run.ExtractedAt); err != nil {
		return nil, fmt.Errorf("save run: insert run: %w", err)
	}

	for _, l := range links {
		members := ""
		if len(l.Members) > 0 {
			b, _ := json.Marshal(l.Members)
			members = string(b)
		}
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO links (id, run_id, session_id, actor, cause_index, effect_index,
				cause_type, effect_type, mass, strength, strength_internal, claimed,
				node_kind, level, members, center)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		`, l.ID, run.ID, l.SessionID, l.Actor, nullableIndex(l.CauseIndex), nullableIndex(l.EffectIndex),
			string(l.CauseType), string(l.EffectType), l.Mass, l.Strength, l.StrengthInternal, l.Claimed,
			string(l.Kind), l.Level, members, l.Center); err != nil {
			return nil, fmt.Errorf("save run: insert link %s: %w", l.ID, err)
		}
	}

	for _, m := range metrics {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO round_metrics (run_id, round, phase, singletons, links, composites,
				mass_min, mass_p50, mass_p90, mass_max,
				strength_min, strength_p50, strength_p90, strength_max)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		`, run.ID, m.Round, string(m.Phase), m.Singletons, m.Links, m.Composites,
			m.Mass.Min, m.Mass.P50, m.Mass.P90, m.Mass.Max,
			m.Strength.Min, m.Strength.P50, m.Strength.P90, m.Strength.Max); err != nil {
			return nil, fmt.Errorf("save run: insert metrics round %d: %w", m.Round, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("save run: commit: %w", err)
	}
	return run, nil
}

func nullableIndex(i int) interface{} {
	if i == graph.NoAnchor {
		return nil
	}
	return i
}

// GetRun loads a run header with its links and metrics.
func (s *Store) GetRun(ctx context.Context, runID string) (*Run, error) {
	run := &Run{}
	err := s.db.QueryRowContext(ctx, `
		SELECT id, session_id, kernel_version, params_hash, params_json, extracted_at
		FROM runs WHERE id = ?
	`, runID).Scan(&run.ID, &run.SessionID, &run.KernelVersion, &run.ParamsHash, &run.ParamsJSON, &run.ExtractedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get run: %w", err)
	}
	if run.Links, err = s.GetLinks(ctx, runID); err != nil {
		return nil, err
	}
	if run.Metrics, err = s.GetMetrics(ctx, runID); err != nil {
		return nil, err
	}
	return run, nil
}

// LatestRun returns the most recently extracted run for a session, or nil.
func (s *Store) LatestRun(ctx context.Context, sessionID string) (*Run, error) {
	var id string
	err := s.db.QueryRowContext(ctx, `
		SELECT id FROM runs WHERE session_id = ? ORDER BY extracted_at DESC, id DESC LIMIT 1
	`, sessionID).Scan(&id)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("latest run: %w", err)
	}
	return s.GetRun(ctx, id)
}

// ListRuns returns run headers (no links) for all sessions, newest first.
func (s *Store) ListRuns(ctx context.Context, limit int) ([]*Run, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, session_id, kernel_version, params_hash, params_json, extracted_at
		FROM runs ORDER BY extracted_at DESC, id DESC LIMIT ?
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("list runs: %w", err)
	}
	defer rows.Close()
	var runs []*Run
	for rows.Next() {
		r := &Run{}
		if err := rows.Scan(&r.ID, &r.SessionID, &r.KernelVersion, &r.ParamsHash, &r.ParamsJSON, &r.ExtractedAt); err != nil {
			return nil, fmt.Errorf("list runs: scan: %w", err)
		}
		runs = append(runs, r)
	}
	return runs, rows.Err()
}

// GetLinks loads a run's links ordered by level then timeline position.
func (s *Store) GetLinks(ctx context.Context, runID string) ([]*graph.Link, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, session_id, actor, cause_index, effect_index, cause_type, effect_type,
			mass, strength, strength_internal, claimed, node_kind, level, members, center
		FROM links WHERE run_id = ? ORDER BY level, center, id
	`, runID)
	if err != nil {
		return nil, fmt.Errorf("get links: %w", err)
	}
	defer rows.Close()
	var links []*graph.Link
	for rows.Next() {
		l := &graph.Link{}
		var actor, causeType, effectType, kind, members sql.NullString
		var causeIdx, effectIdx sql.NullInt64
		if err := rows.Scan(&l.ID, &l.SessionID, &actor, &causeIdx, &effectIdx, &causeType, &effectType,
			&l.Mass, &l.Strength, &l.StrengthInternal, &l.Claimed, &kind, &l.Level, &members, &l.Center); err != nil {
			return nil, fmt.Errorf("get links: scan: %w", err)
		}
		l.Actor = actor.String
		l.CauseIndex, l.EffectIndex = graph.NoAnchor, graph.NoAnchor
		if causeIdx.Valid {
			l.CauseIndex = int(causeIdx.Int64)
		}
		if effectIdx.Valid {
			l.EffectIndex = int(effectIdx.Int64)
		}
		l.CauseType = detect.CauseType(causeType.String)
		l.EffectType = detect.EffectType(effectType.String)
		l.Kind = graph.NodeKind(kind.String)
		if strings.TrimSpace(members.String) != "" {
			if err := json.Unmarshal([]byte(members.String), &l.Members); err != nil {
				return nil, fmt.Errorf("get links: members of %s: %w", l.ID, err)
			}
		}
		links = append(links, l)
	}
	return links, rows.Err()
}

// GetMetrics loads a run's per-round metrics in round order.
func (s *Store) GetMetrics(ctx context.Context, runID string) ([]graph.RoundMetrics, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT round, phase, singletons, links, composites,
			mass_min, mass_p50, mass_p90, mass_max,
			strength_min, strength_p50, strength_p90, strength_max
		FROM round_metrics WHERE run_id = ? ORDER BY round
	`, runID)
	if err != nil {
		return nil, fmt.Errorf("get metrics: %w", err)
	}
	defer rows.Close()
	var out []graph.RoundMetrics
	for rows.Next() {
		var m graph.RoundMetrics
		var phase string
		if err := rows.Scan(&m.Round, &phase, &m.Singletons, &m.Links, &m.Composites,
			&m.Mass.Min, &m.Mass.P50, &m.Mass.P90, &m.Mass.Max,
			&m.Strength.Min, &m.Strength.P50, &m.Strength.P90, &m.Strength.Max); err != nil {
			return nil, fmt.Errorf("get metrics: scan: %w", err)
		}
		m.Phase = graph.Phase(phase)
		out = append(out, m)
	}
	return out, rows.Err()
}
