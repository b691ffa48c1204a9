package db

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/banshee-data/blinkfit/internal/likelihood"
	"github.com/banshee-data/blinkfit/internal/version"
	"github.com/google/uuid"
)

// ErrRunNotFound is returned when a run id is unknown.
var ErrRunNotFound = errors.New("db: run not found")

// Run kinds.
const (
	KindEvaluate   = "evaluate"
	KindCrossCheck = "crosscheck"
	KindFit        = "fit"
	KindSweep      = "sweep"
)

// Run is one recorded engine invocation.
type Run struct {
	ID            string
	Kind          string
	Model         string
	Params        []float64
	Direction     string
	Strategy      string
	Policy        string
	Mean          *float64 // nil when the run failed
	Included      int
	Failed        int
	StartedAt     time.Time
	FinishedAt    time.Time
	EngineVersion string
}

func (r *Run) String() string {
	mean := "n/a"
	if r.Mean != nil {
		mean = fmt.Sprintf("%.6g", *r.Mean)
	}
	return fmt.Sprintf("%s %s %s %v mean=%s included=%d failed=%d", r.ID, r.Kind, r.Model, r.Params, mean, r.Included, r.Failed)
}

// TrajectoryResult is the stored outcome of one trajectory in a run.
type TrajectoryResult struct {
	RunID         string
	Index         int
	Name          string
	LogLikelihood *float64 // nil on failure
	Floored       bool
	Error         string
	Elapsed       time.Duration
}

// ResultsFromOutcomes converts collection outcomes for storage.
func ResultsFromOutcomes(outcomes []likelihood.Outcome) []TrajectoryResult {
	out := make([]TrajectoryResult, len(outcomes))
	for i, o := range outcomes {
		r := TrajectoryResult{Index: o.Index, Name: o.Name, Floored: o.Floored, Elapsed: o.Elapsed}
		if o.Err != nil {
			r.Error = o.Err.Error()
		} else {
			v := o.LogLikelihood
			r.LogLikelihood = &v
		}
		out[i] = r
	}
	return out
}

// NewRun starts a run record stamped with the database clock.
func (db *DB) NewRun(kind string, e *likelihood.Engine, params []float64) *Run {
	opts := e.Options()
	policy := ""
	if opts.Judge != nil {
		policy = opts.Judge.Policy()
	}
	return &Run{
		Kind:          kind,
		Model:         e.Variant().Name,
		Params:        append([]float64(nil), params...),
		Direction:     opts.Direction.String(),
		Strategy:      string(opts.Strategy),
		Policy:        policy,
		StartedAt:     db.clock.Now(),
		EngineVersion: version.String(),
	}
}

// Finish fills the summary fields of run from a collection result.
func (db *DB) Finish(run *Run, res likelihood.CollectionResult, err error) []TrajectoryResult {
	run.FinishedAt = db.clock.Now()
	run.Included, run.Failed = res.Included, res.Failed
	if err == nil && !math.IsNaN(res.Mean) {
		m := res.Mean
		run.Mean = &m
	}
	return ResultsFromOutcomes(res.Outcomes)
}

// RecordRun stores run and its trajectory results in one transaction and
// returns the new run id, which is also set on run.
func (db *DB) RecordRun(run *Run, results []TrajectoryResult) (string, error) {
	params, err := json.Marshal(run.Params)
	if err != nil {
		return "", fmt.Errorf("failed to encode params: %w", err)
	}
	if run.FinishedAt.IsZero() {
		run.FinishedAt = db.clock.Now()
	}
	id := uuid.NewString()

	tx, err := db.Begin()
	if err != nil {
		return "", err
	}
	defer tx.Rollback()

	var mean sql.NullFloat64
	if run.Mean != nil {
		mean = sql.NullFloat64{Float64: *run.Mean, Valid: true}
	}
	_, err = tx.Exec(`
		INSERT INTO runs (
			run_id, kind, model, params_json, direction, strategy, policy,
			mean_log10, included, failed, started_unix_ns, finished_unix_ns, engine_version
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		id, run.Kind, run.Model, string(params), run.Direction, run.Strategy, run.Policy,
		mean, run.Included, run.Failed, run.StartedAt.UnixNano(), run.FinishedAt.UnixNano(), run.EngineVersion,
	)
	if err != nil {
		return "", fmt.Errorf("failed to insert run: %w", err)
	}

	stmt, err := tx.Prepare(`
		INSERT INTO trajectory_results (run_id, idx, name, log10, floored, error, elapsed_ns)
		VALUES (?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return "", err
	}
	defer stmt.Close()
	for _, r := range results {
		var ll sql.NullFloat64
		if r.LogLikelihood != nil {
			ll = sql.NullFloat64{Float64: *r.LogLikelihood, Valid: true}
		}
		if _, err := stmt.Exec(id, r.Index, r.Name, ll, r.Floored, r.Error, int64(r.Elapsed)); err != nil {
			return "", fmt.Errorf("failed to insert trajectory %d: %w", r.Index, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return "", err
	}
	run.ID = id
	return id, nil
}

const runColumns = `run_id, kind, model, params_json, direction, strategy, policy,
	mean_log10, included, failed, started_unix_ns, finished_unix_ns, engine_version`

type scanner interface {
	Scan(dest ...any) error
}

func scanRun(s scanner) (Run, error) {
	var (
		r                 Run
		params            string
		mean              sql.NullFloat64
		started, finished int64
	)
	err := s.Scan(&r.ID, &r.Kind, &r.Model, &params, &r.Direction, &r.Strategy, &r.Policy,
		&mean, &r.Included, &r.Failed, &started, &finished, &r.EngineVersion)
	if err != nil {
		return Run{}, err
	}
	if err := json.Unmarshal([]byte(params), &r.Params); err != nil {
		return Run{}, fmt.Errorf("run %s has malformed params: %w", r.ID, err)
	}
	if mean.Valid {
		m := mean.Float64
		r.Mean = &m
	}
	r.StartedAt = time.Unix(0, started).UTC()
	r.FinishedAt = time.Unix(0, finished).UTC()
	return r, nil
}

// Run returns the run with the given id.
func (db *DB) Run(id string) (*Run, error) {
	row := db.QueryRow(`SELECT `+runColumns+` FROM runs WHERE run_id = ?`, id)
	r, err := scanRun(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrRunNotFound, id)
	}
	if err != nil {
		return nil, err
	}
	return &r, nil
}

// Runs returns the most recent runs, newest first. limit <= 0 means all.
func (db *DB) Runs(limit int) ([]Run, error) {
	query := `SELECT ` + runColumns + ` FROM runs ORDER BY started_unix_ns DESC, run_id`
	args := []any{}
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}
	rows, err := db.Query(query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var runs []Run
	for rows.Next() {
		r, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, r)
	}
	return runs, rows.Err()
}

// TrajectoryResults returns the stored results of a run in index order.
func (db *DB) TrajectoryResults(runID string) ([]TrajectoryResult, error) {
	rows, err := db.Query(`
		SELECT run_id, idx, name, log10, floored, error, elapsed_ns
		FROM trajectory_results WHERE run_id = ? ORDER BY idx`, runID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []TrajectoryResult
	for rows.Next() {
		var (
			r       TrajectoryResult
			ll      sql.NullFloat64
			elapsed int64
		)
		if err := rows.Scan(&r.RunID, &r.Index, &r.Name, &ll, &r.Floored, &r.Error, &elapsed); err != nil {
			return nil, err
		}
		if ll.Valid {
			v := ll.Float64
			r.LogLikelihood = &v
		}
		r.Elapsed = time.Duration(elapsed)
		out = append(out, r)
	}
	return out, rows.Err()
}

// DeleteRun removes a run and its trajectory results.
func (db *DB) DeleteRun(id string) error {
	tx, err := db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.Exec(`DELETE FROM trajectory_results WHERE run_id = ?`, id); err != nil {
		return err
	}
	res, err := tx.Exec(`DELETE FROM runs WHERE run_id = ?`, id)
	if err != nil {
		return err
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("%w: %s", ErrRunNotFound, id)
	}
	return tx.Commit()
}
