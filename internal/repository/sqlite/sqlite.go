// Package sqlite stores simulation history in an embedded SQLite file, for
// the command-line tool.
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"github.com/freeeve/cave-skirmish/internal/model"
)

// Fixed-width UTC timestamps so text ordering matches time ordering.
const timeFormat = "2006-01-02T15:04:05.000000000Z"

// SimulationRepo implements repository.SimulationRepository on SQLite.
type SimulationRepo struct {
	db *sql.DB
}

// Open opens or creates the database at path and applies the schema.
// ":memory:" gives a private in-memory database.
func Open(path string) (*SimulationRepo, error) {
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
			return nil, fmt.Errorf("create database directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	// One connection: an in-memory database exists per connection, and the
	// CLI writes from several workers.
	db.SetMaxOpenConns(1)

	for _, pragma := range []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA busy_timeout = 5000",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("%s: %w", pragma, err)
		}
	}

	r := &SimulationRepo{db: db}
	if err := r.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}
	return r, nil
}

// Close closes the database.
func (r *SimulationRepo) Close() error {
	return r.db.Close()
}

func (r *SimulationRepo) migrate() error {
	migrations := []string{
		`CREATE TABLE IF NOT EXISTS simulations (
			id            TEXT PRIMARY KEY,
			kind          TEXT NOT NULL,
			status        TEXT NOT NULL,
			grid          TEXT NOT NULL,
			grid_hash     TEXT NOT NULL,
			elf_attack    INTEGER NOT NULL,
			goblin_attack INTEGER NOT NULL,
			health        INTEGER NOT NULL,
			fast_forward  INTEGER NOT NULL DEFAULT 1,
			protected     TEXT NOT NULL DEFAULT '',
			start         INTEGER NOT NULL DEFAULT 0,
			outcome       TEXT,
			calibration   TEXT,
			cached        INTEGER NOT NULL DEFAULT 0,
			error         TEXT NOT NULL DEFAULT '',
			created_at    TEXT NOT NULL,
			finished_at   TEXT
		)`,
		`CREATE INDEX IF NOT EXISTS idx_simulations_created_at ON simulations (created_at)`,
	}
	for _, m := range migrations {
		if _, err := r.db.Exec(m); err != nil {
			return err
		}
	}
	return nil
}

const simulationColumns = `id, kind, status, grid, grid_hash, elf_attack, goblin_attack, health, fast_forward,
	protected, start, outcome, calibration, cached, error, created_at, finished_at`

// Create inserts sim with a fresh ID.
func (r *SimulationRepo) Create(ctx context.Context, sim *model.Simulation) error {
	outcome, calibration, err := encodeResults(sim)
	if err != nil {
		return err
	}
	id := uuid.NewString()
	created := time.Now().UTC()
	_, err = r.db.ExecContext(ctx,
		`INSERT INTO simulations (`+simulationColumns+`)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		id, sim.Kind, sim.Status, sim.Grid, sim.GridHash, sim.ElfAttack, sim.GoblinAttack, sim.Health, sim.FastForward,
		sim.Protected, sim.Start, outcome, calibration, sim.Cached, sim.Error, created.Format(timeFormat), formatTime(sim.FinishedAt),
	)
	if err != nil {
		return fmt.Errorf("create simulation: %w", err)
	}
	sim.ID = id
	sim.CreatedAt = created
	return nil
}

// Finish records the final status and results of a simulation.
func (r *SimulationRepo) Finish(ctx context.Context, sim *model.Simulation) error {
	outcome, calibration, err := encodeResults(sim)
	if err != nil {
		return err
	}
	res, err := r.db.ExecContext(ctx,
		`UPDATE simulations
		 SET status = ?, elf_attack = ?, goblin_attack = ?, outcome = ?, calibration = ?, cached = ?, error = ?, finished_at = ?
		 WHERE id = ?`,
		sim.Status, sim.ElfAttack, sim.GoblinAttack, outcome, calibration, sim.Cached, sim.Error, formatTime(sim.FinishedAt), sim.ID,
	)
	if err != nil {
		return fmt.Errorf("finish simulation: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("finish simulation %s: %w", sim.ID, sql.ErrNoRows)
	}
	return nil
}

// FindByID returns a simulation by ID, or nil if none exists.
func (r *SimulationRepo) FindByID(ctx context.Context, id string) (*model.Simulation, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+simulationColumns+` FROM simulations WHERE id = ?`, id)
	sim, err := scanSimulation(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("find simulation: %w", err)
	}
	return sim, nil
}

// ListRecent returns the newest simulations first.
func (r *SimulationRepo) ListRecent(ctx context.Context, limit int) ([]model.Simulation, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+simulationColumns+` FROM simulations ORDER BY created_at DESC, rowid DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("list simulations: %w", err)
	}
	defer rows.Close()

	var sims []model.Simulation
	for rows.Next() {
		sim, err := scanSimulation(rows)
		if err != nil {
			return nil, fmt.Errorf("scan simulation: %w", err)
		}
		sims = append(sims, *sim)
	}
	return sims, rows.Err()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanSimulation(s scanner) (*model.Simulation, error) {
	var (
		sim                  model.Simulation
		outcome, calibration sql.NullString
		created              string
		finished             sql.NullString
	)
	err := s.Scan(&sim.ID, &sim.Kind, &sim.Status, &sim.Grid, &sim.GridHash, &sim.ElfAttack, &sim.GoblinAttack,
		&sim.Health, &sim.FastForward, &sim.Protected, &sim.Start, &outcome, &calibration, &sim.Cached, &sim.Error,
		&created, &finished)
	if err != nil {
		return nil, err
	}
	if sim.CreatedAt, err = time.Parse(timeFormat, created); err != nil {
		return nil, fmt.Errorf("parse created_at: %w", err)
	}
	if finished.Valid {
		t, err := time.Parse(timeFormat, finished.String)
		if err != nil {
			return nil, fmt.Errorf("parse finished_at: %w", err)
		}
		sim.FinishedAt = &t
	}
	if outcome.Valid {
		sim.Outcome = &model.Outcome{}
		if err := json.Unmarshal([]byte(outcome.String), sim.Outcome); err != nil {
			return nil, fmt.Errorf("decode outcome: %w", err)
		}
	}
	if calibration.Valid {
		sim.Calibration = &model.Calibration{}
		if err := json.Unmarshal([]byte(calibration.String), sim.Calibration); err != nil {
			return nil, fmt.Errorf("decode calibration: %w", err)
		}
	}
	return &sim, nil
}

func encodeResults(sim *model.Simulation) (outcome, calibration any, err error) {
	if sim.Outcome != nil {
		b, err := json.Marshal(sim.Outcome)
		if err != nil {
			return nil, nil, fmt.Errorf("encode outcome: %w", err)
		}
		outcome = string(b)
	}
	if sim.Calibration != nil {
		b, err := json.Marshal(sim.Calibration)
		if err != nil {
			return nil, nil, fmt.Errorf("encode calibration: %w", err)
		}
		calibration = string(b)
	}
	return outcome, calibration, nil
}

func formatTime(t *time.Time) any {
	if t == nil {
		return nil
	}
	return t.UTC().Format(timeFormat)
}
