package repository

import (
	"context"
	"fmt"

	"github.com/freeeve/cave-skirmish/internal/model"
)

// SimulationRepository defines simulation history operations.
type SimulationRepository interface {
	// Create inserts sim and fills in its ID and CreatedAt.
	Create(ctx context.Context, sim *model.Simulation) error
	// Finish stores the final status, results and error of sim.
	Finish(ctx context.Context, sim *model.Simulation) error
	// FindByID returns nil, nil when no simulation has the id.
	FindByID(ctx context.Context, id string) (*model.Simulation, error)
	// ListRecent returns the newest simulations first.
	ListRecent(ctx context.Context, limit int) ([]model.Simulation, error)
}

// BattleKey identifies a battle whose outcome is fully determined by its inputs.
type BattleKey struct {
	GridHash     string
	ElfAttack    int
	GoblinAttack int
	Health       int
}

func (k BattleKey) String() string {
	return fmt.Sprintf("%s:%d:%d:%d", k.GridHash, k.ElfAttack, k.GoblinAttack, k.Health)
}

// CalibrationKey identifies a strength search.
type CalibrationKey struct {
	GridHash       string
	Protected      string
	Start          int
	OpponentAttack int
	Health         int
}

func (k CalibrationKey) String() string {
	return fmt.Sprintf("%s:%s:%d:%d:%d", k.GridHash, k.Protected, k.Start, k.OpponentAttack, k.Health)
}

// OutcomeCache stores computed results (Redis). Getters return nil, nil on a miss.
type OutcomeCache interface {
	GetBattle(ctx context.Context, key BattleKey) (*model.Outcome, error)
	SetBattle(ctx context.Context, key BattleKey, o *model.Outcome) error
	GetCalibration(ctx context.Context, key CalibrationKey) (*model.Calibration, error)
	SetCalibration(ctx context.Context, key CalibrationKey, c *model.Calibration) error
}
