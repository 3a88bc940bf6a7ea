// Package store persists simulation reports in a SQL database. SQLite
// (modernc.org/sqlite) is the default; PostgreSQL is reached through lib/pq.
package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "github.com/lib/pq"
	_ "modernc.org/sqlite"

	"github.com/Agrid-Dev/thermocarlo/internal/montecarlo"
	"github.com/Agrid-Dev/thermocarlo/internal/simulation"
)

var (
	ErrUnknownDriver = errors.New("unknown store driver")
	ErrInvalidLimit  = errors.New("limit must be strictly positive")
)

const schema = `CREATE TABLE IF NOT EXISTS reports (
	id TEXT PRIMARY KEY,
	instance_id TEXT NOT NULL,
	seed BIGINT NOT NULL,
	runs BIGINT NOT NULL,
	exec TEXT NOT NULL,
	strategy TEXT NOT NULL,
	workers BIGINT NOT NULL,
	checksum DOUBLE PRECISION NOT NULL,
	mean DOUBLE PRECISION NOT NULL,
	min_reward DOUBLE PRECISION NOT NULL,
	max_reward DOUBLE PRECISION NOT NULL,
	evaluation_ns BIGINT NOT NULL,
	elapsed_ns BIGINT NOT NULL,
	started_at_ns BIGINT NOT NULL,
	goal DOUBLE PRECISION NOT NULL,
	deadband DOUBLE PRECISION NOT NULL,
	capacitance DOUBLE PRECISION NOT NULL,
	power DOUBLE PRECISION NOT NULL,
	delta_seconds BIGINT NOT NULL,
	horizon BIGINT NOT NULL,
	outdoor_temperature DOUBLE PRECISION NOT NULL
)`

const indexSchema = `CREATE INDEX IF NOT EXISTS reports_instance_started
	ON reports (instance_id, started_at_ns)`

var columns = []string{
	"id", "instance_id", "seed", "runs", "exec", "strategy", "workers",
	"checksum", "mean", "min_reward", "max_reward",
	"evaluation_ns", "elapsed_ns", "started_at_ns",
	"goal", "deadband", "capacitance", "power",
	"delta_seconds", "horizon", "outdoor_temperature",
}

// Store is a report repository scoped to one instance.
type Store struct {
	db         *sql.DB
	dialect    Dialect
	instanceID string
}

// Open connects to dsn with the named driver and creates the schema.
// For SQLite the dsn is a file path whose directory is created on demand.
func Open(ctx context.Context, driver, dsn, instanceID string) (*Store, error) {
	d, err := DialectFor(driver)
	if err != nil {
		return nil, err
	}
	if d.DriverName() == "sqlite" && !strings.HasPrefix(dsn, "file:") && dsn != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(dsn), 0o755); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}

	db, err := sql.Open(d.DriverName(), dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if d.DriverName() == "sqlite" {
		// SQLite allows a single writer.
		db.SetMaxOpenConns(1)
	}

	s := &Store{db: db, dialect: d, instanceID: instanceID}
	if err := s.migrate(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}
	return s, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) migrate(ctx context.Context) error {
	stmts := append(s.dialect.InitStatements(), schema, indexSchema)
	for _, stmt := range stmts {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("exec %q: %w", firstLine(stmt), err)
		}
	}
	return nil
}

// Save inserts r. Saving the same report twice is an error.
func (s *Store) Save(ctx context.Context, r simulation.Report) error {
	q := fmt.Sprintf("INSERT INTO reports (%s) VALUES (%s)",
		strings.Join(columns, ", "), placeholders(s.dialect, len(columns)))
	_, err := s.db.ExecContext(ctx, q,
		r.ID, s.instanceID, r.Seed, r.Runs, r.Exec.String(), r.Strategy.String(), r.Workers,
		r.Checksum, r.Mean, r.Min, r.Max,
		int64(r.Evaluation), int64(r.Elapsed), r.StartedAt.UnixNano(),
		r.Model.Goal, r.Model.Deadband, r.Model.Capacitance, r.Model.Power,
		r.Config.DeltaSeconds, r.Config.Horizon, r.Config.OutdoorTemperature,
	)
	if err != nil {
		return fmt.Errorf("save report %s: %w", r.ID, err)
	}
	return nil
}

// List returns at most limit reports, newest first.
func (s *Store) List(ctx context.Context, limit int) ([]simulation.Report, error) {
	if limit <= 0 {
		return nil, ErrInvalidLimit
	}
	q := fmt.Sprintf("SELECT %s FROM reports WHERE instance_id = %s ORDER BY started_at_ns DESC, id DESC LIMIT %s",
		strings.Join(columns, ", "), s.dialect.Placeholder(1), s.dialect.Placeholder(2))
	rows, err := s.db.QueryContext(ctx, q, s.instanceID, limit)
	if err != nil {
		return nil, fmt.Errorf("list reports: %w", err)
	}
	defer rows.Close()

	var out []simulation.Report
	for rows.Next() {
		r, err := scanReport(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list reports: %w", err)
	}
	return out, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanReport(row scanner) (simulation.Report, error) {
	var (
		r                                  simulation.Report
		instanceID, exec, strategy         string
		evaluationNs, elapsedNs, startedNs int64
	)
	err := row.Scan(
		&r.ID, &instanceID, &r.Seed, &r.Runs, &exec, &strategy, &r.Workers,
		&r.Checksum, &r.Mean, &r.Min, &r.Max,
		&evaluationNs, &elapsedNs, &startedNs,
		&r.Model.Goal, &r.Model.Deadband, &r.Model.Capacitance, &r.Model.Power,
		&r.Config.DeltaSeconds, &r.Config.Horizon, &r.Config.OutdoorTemperature,
	)
	if err != nil {
		return simulation.Report{}, fmt.Errorf("scan report: %w", err)
	}
	if r.Exec, err = simulation.ParseExec(exec); err != nil {
		return simulation.Report{}, fmt.Errorf("report %s: %w", r.ID, err)
	}
	if r.Strategy, err = montecarlo.ParseStrategy(strategy); err != nil {
		return simulation.Report{}, fmt.Errorf("report %s: %w", r.ID, err)
	}
	r.Evaluation = time.Duration(evaluationNs)
	r.Elapsed = time.Duration(elapsedNs)
	r.StartedAt = time.Unix(0, startedNs).UTC()
	return r, nil
}

func firstLine(s string) string {
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		return s[:i]
	}
	return s
}
