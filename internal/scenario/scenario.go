// Package scenario loads batches of battles and calibrations from YAML.
package scenario

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/freeeve/cave-skirmish/internal/service"
	"github.com/freeeve/cave-skirmish/pkg/skirmish"
)

var ErrInvalidScenario = errors.New("invalid scenario")

// File is the top level of a scenario document.
type File struct {
	Defaults  Settings   `yaml:"defaults"`
	Scenarios []Scenario `yaml:"scenarios"`
}

// Settings are the tunables shared by every scenario in a file. A scenario
// overrides any field it sets.
type Settings struct {
	ElfAttack      int    `yaml:"elf_attack"`
	GoblinAttack   int    `yaml:"goblin_attack"`
	Health         int    `yaml:"health"`
	Calibrate      *bool  `yaml:"calibrate"`
	Protect        string `yaml:"protect"`
	Start          int    `yaml:"start"`
	OpponentAttack int    `yaml:"opponent_attack"`
	Naive          *bool  `yaml:"naive"`
}

// Expect holds optional known answers. Zero fields are not checked.
type Expect struct {
	Score    int    `yaml:"score"`
	Rounds   int    `yaml:"rounds"`
	Winner   string `yaml:"winner"`
	Strength int    `yaml:"strength"`
}

// Scenario is one named map and how to run it.
type Scenario struct {
	Name     string `yaml:"name"`
	Grid     string `yaml:"grid"`
	GridFile string `yaml:"grid_file"`
	Settings `yaml:",inline"`
	Expect   Expect `yaml:"expect"`
}

// Load reads a scenario file. grid_file entries are resolved relative to
// the file's directory.
func Load(path string) ([]Scenario, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return Parse(b, filepath.Dir(path))
}

// Parse decodes a scenario document, applies the file defaults and
// validates every entry.
func Parse(data []byte, baseDir string) ([]Scenario, error) {
	var f File
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidScenario, err)
	}
	if len(f.Scenarios) == 0 {
		return nil, fmt.Errorf("%w: no scenarios", ErrInvalidScenario)
	}

	seen := make(map[string]bool, len(f.Scenarios))
	out := make([]Scenario, 0, len(f.Scenarios))
	for i, sc := range f.Scenarios {
		if sc.Name == "" {
			sc.Name = fmt.Sprintf("scenario-%d", i+1)
		}
		if seen[sc.Name] {
			return nil, fmt.Errorf("%w: duplicate name %q", ErrInvalidScenario, sc.Name)
		}
		seen[sc.Name] = true

		sc.Settings = sc.Settings.merge(f.Defaults)
		if err := sc.resolveGrid(baseDir); err != nil {
			return nil, err
		}
		if err := sc.validate(); err != nil {
			return nil, err
		}
		out = append(out, sc)
	}
	return out, nil
}

func (s Settings) merge(def Settings) Settings {
	if s.ElfAttack == 0 {
		s.ElfAttack = def.ElfAttack
	}
	if s.GoblinAttack == 0 {
		s.GoblinAttack = def.GoblinAttack
	}
	if s.Health == 0 {
		s.Health = def.Health
	}
	if s.Calibrate == nil {
		s.Calibrate = def.Calibrate
	}
	if s.Protect == "" {
		s.Protect = def.Protect
	}
	if s.Start == 0 {
		s.Start = def.Start
	}
	if s.OpponentAttack == 0 {
		s.OpponentAttack = def.OpponentAttack
	}
	if s.Naive == nil {
		s.Naive = def.Naive
	}
	return s
}

func (sc *Scenario) resolveGrid(baseDir string) error {
	switch {
	case sc.Grid != "" && sc.GridFile != "":
		return fmt.Errorf("%w: %s: set grid or grid_file, not both", ErrInvalidScenario, sc.Name)
	case sc.GridFile != "":
		path := sc.GridFile
		if !filepath.IsAbs(path) {
			path = filepath.Join(baseDir, path)
		}
		b, err := os.ReadFile(path)
		if err != nil {
			return fmt.Errorf("%w: %s: %v", ErrInvalidScenario, sc.Name, err)
		}
		sc.Grid = string(b)
	case strings.TrimSpace(sc.Grid) == "":
		return fmt.Errorf("%w: %s: no grid", ErrInvalidScenario, sc.Name)
	}
	return nil
}

func (sc *Scenario) validate() error {
	if _, err := skirmish.ParseGrid(sc.Grid); err != nil {
		return fmt.Errorf("%w: %s: %v", ErrInvalidScenario, sc.Name, err)
	}
	for field, v := range map[string]int{
		"elf_attack":      sc.ElfAttack,
		"goblin_attack":   sc.GoblinAttack,
		"health":          sc.Health,
		"start":           sc.Start,
		"opponent_attack": sc.OpponentAttack,
	} {
		if v < 0 {
			return fmt.Errorf("%w: %s: %s must not be negative", ErrInvalidScenario, sc.Name, field)
		}
	}
	if sc.Protect != "" {
		if _, err := skirmish.ParseFaction(sc.Protect); err != nil {
			return fmt.Errorf("%w: %s: %v", ErrInvalidScenario, sc.Name, err)
		}
	}
	if sc.Expect.Winner != "" {
		if _, err := skirmish.ParseFaction(sc.Expect.Winner); err != nil {
			return fmt.Errorf("%w: %s: expect: %v", ErrInvalidScenario, sc.Name, err)
		}
	}
	return nil
}

// Calibrates reports whether the scenario is a strength search rather than
// a single battle.
func (sc Scenario) Calibrates() bool {
	return sc.Calibrate != nil && *sc.Calibrate
}

func (sc Scenario) naive() bool {
	return sc.Naive != nil && *sc.Naive
}

// SimulateRequest converts the scenario into a single battle.
func (sc Scenario) SimulateRequest() service.SimulateRequest {
	return service.SimulateRequest{
		Grid:         sc.Grid,
		ElfAttack:    sc.ElfAttack,
		GoblinAttack: sc.GoblinAttack,
		Health:       sc.Health,
		Naive:        sc.naive(),
	}
}

// CalibrateRequest converts the scenario into a strength search.
func (sc Scenario) CalibrateRequest() service.CalibrateRequest {
	return service.CalibrateRequest{
		Grid:           sc.Grid,
		Protected:      sc.Protect,
		Start:          sc.Start,
		OpponentAttack: sc.OpponentAttack,
		Health:         sc.Health,
		Naive:          sc.naive(),
	}
}

// Check compares a finished outcome against the scenario's expectations
// and lists every mismatch.
func (sc Scenario) Check(winner string, rounds, score, strength int) []string {
	var diffs []string
	e := sc.Expect
	if e.Score != 0 && e.Score != score {
		diffs = append(diffs, fmt.Sprintf("score %d, want %d", score, e.Score))
	}
	if e.Rounds != 0 && e.Rounds != rounds {
		diffs = append(diffs, fmt.Sprintf("rounds %d, want %d", rounds, e.Rounds))
	}
	if e.Winner != "" {
		want, _ := skirmish.ParseFaction(e.Winner)
		if want.String() != winner {
			diffs = append(diffs, fmt.Sprintf("winner %s, want %s", winner, want))
		}
	}
	if e.Strength != 0 && e.Strength != strength {
		diffs = append(diffs, fmt.Sprintf("strength %d, want %d", strength, e.Strength))
	}
	return diffs
}

// FromGrid builds a single validated scenario from map text and settings.
func FromGrid(name, grid string, s Settings) (Scenario, error) {
	sc := Scenario{Name: name, Grid: grid, Settings: s}
	if err := sc.resolveGrid(""); err != nil {
		return Scenario{}, err
	}
	if err := sc.validate(); err != nil {
		return Scenario{}, err
	}
	return sc, nil
}
