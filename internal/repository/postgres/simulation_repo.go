package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/freeeve/cave-skirmish/internal/model"
)

// SimulationRepo handles simulations table operations.
type SimulationRepo struct {
	db *sql.DB
}

// NewSimulationRepo creates a SimulationRepo.
func NewSimulationRepo(db *sql.DB) *SimulationRepo {
	return &SimulationRepo{db: db}
}

const simulationColumns = `id, kind, status, grid, grid_hash, elf_attack, goblin_attack, health, fast_forward,
	protected, start, outcome, calibration, cached, error, created_at, finished_at`

// Create inserts a new simulation and fills in its ID and CreatedAt.
func (r *SimulationRepo) Create(ctx context.Context, sim *model.Simulation) error {
	outcome, calibration, err := encodeResults(sim)
	if err != nil {
		return err
	}
	err = r.db.QueryRowContext(ctx,
		`INSERT INTO simulations (kind, status, grid, grid_hash, elf_attack, goblin_attack, health, fast_forward,
		                          protected, start, outcome, calibration, cached, error, finished_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)
		 RETURNING id, created_at`,
		sim.Kind, sim.Status, sim.Grid, sim.GridHash, sim.ElfAttack, sim.GoblinAttack, sim.Health, sim.FastForward,
		sim.Protected, sim.Start, outcome, calibration, sim.Cached, sim.Error, sim.FinishedAt,
	).Scan(&sim.ID, &sim.CreatedAt)
	if err != nil {
		return fmt.Errorf("create simulation: %w", err)
	}
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
		 SET status = $2, elf_attack = $3, goblin_attack = $4, outcome = $5, calibration = $6,
		     cached = $7, error = $8, finished_at = $9
		 WHERE id = $1`,
		sim.ID, sim.Status, sim.ElfAttack, sim.GoblinAttack, outcome, calibration, sim.Cached, sim.Error, sim.FinishedAt,
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
	row := r.db.QueryRowContext(ctx, `SELECT `+simulationColumns+` FROM simulations WHERE id = $1`, id)
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
		`SELECT `+simulationColumns+` FROM simulations ORDER BY created_at DESC LIMIT $1`, limit)
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
		outcome, calibration []byte
	)
	err := s.Scan(&sim.ID, &sim.Kind, &sim.Status, &sim.Grid, &sim.GridHash, &sim.ElfAttack, &sim.GoblinAttack,
		&sim.Health, &sim.FastForward, &sim.Protected, &sim.Start, &outcome, &calibration, &sim.Cached, &sim.Error,
		&sim.CreatedAt, &sim.FinishedAt)
	if err != nil {
		return nil, err
	}
	if err := decodeResults(&sim, outcome, calibration); err != nil {
		return nil, err
	}
	return &sim, nil
}

// encodeResults marshals the JSONB columns; a nil result stores NULL.
func encodeResults(sim *model.Simulation) (outcome, calibration []byte, err error) {
	if sim.Outcome != nil {
		if outcome, err = json.Marshal(sim.Outcome); err != nil {
			return nil, nil, fmt.Errorf("encode outcome: %w", err)
		}
	}
	if sim.Calibration != nil {
		if calibration, err = json.Marshal(sim.Calibration); err != nil {
			return nil, nil, fmt.Errorf("encode calibration: %w", err)
		}
	}
	return outcome, calibration, nil
}

func decodeResults(sim *model.Simulation, outcome, calibration []byte) error {
	if outcome != nil {
		sim.Outcome = &model.Outcome{}
		if err := json.Unmarshal(outcome, sim.Outcome); err != nil {
			return fmt.Errorf("decode outcome: %w", err)
		}
	}
	if calibration != nil {
		sim.Calibration = &model.Calibration{}
		if err := json.Unmarshal(calibration, sim.Calibration); err != nil {
			return fmt.Errorf("decode calibration: %w", err)
		}
	}
	return nil
}
