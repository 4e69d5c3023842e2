package model

import (
	"time"
)

// Simulation kinds.
const (
	KindBattle      = "battle"
	KindCalibration = "calibration"
)

// Simulation statuses.
const (
	StatusRunning = "running"
	StatusDone    = "done"
	StatusFailed  = "failed"
)

// Outcome is the stored result of one battle.
type Outcome struct {
	Winner          string         `json:"winner"`
	Rounds          int            `json:"rounds"`
	RemainingHealth int            `json:"remaining_health"`
	Score           int            `json:"score"`
	Survivors       map[string]int `json:"survivors"`
	Losses          map[string]int `json:"losses"`
}

// Calibration is the stored result of a strength search.
type Calibration struct {
	Strength int     `json:"strength"`
	Attempts int     `json:"attempts"`
	Outcome  Outcome `json:"outcome"`
}

// Simulation is one recorded battle or calibration run.
type Simulation struct {
	ID           string `json:"id"`
	Kind         string `json:"kind"`
	Status       string `json:"status"`
	Grid         string `json:"grid"`
	GridHash     string `json:"grid_hash"`
	ElfAttack    int    `json:"elf_attack"`
	GoblinAttack int    `json:"goblin_attack"`
	Health       int    `json:"health"`
	FastForward  bool   `json:"fast_forward"`

	// Calibration inputs; empty for plain battles.
	Protected string `json:"protected,omitempty"`
	Start     int    `json:"start,omitempty"`

	Outcome     *Outcome     `json:"outcome,omitempty"`
	Calibration *Calibration `json:"calibration,omitempty"`
	Cached      bool         `json:"cached"`
	Error       string       `json:"error,omitempty"`

	CreatedAt  time.Time  `json:"created_at"`
	FinishedAt *time.Time `json:"finished_at,omitempty"`
}
