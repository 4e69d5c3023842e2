package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"runtime"
	"sync"
	"syscall"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/freeeve/cave-skirmish/internal/logger"
	"github.com/freeeve/cave-skirmish/internal/model"
	"github.com/freeeve/cave-skirmish/internal/repository/sqlite"
	"github.com/freeeve/cave-skirmish/internal/scenario"
	"github.com/freeeve/cave-skirmish/internal/service"
	"github.com/freeeve/cave-skirmish/pkg/skirmish"
)

// result is the CLI's report for one scenario.
type result struct {
	Name       string            `json:"name"`
	Simulation *model.Simulation `json:"simulation,omitempty"`
	Error      string            `json:"error,omitempty"`
	Mismatches []string          `json:"mismatches,omitempty"`
	Board      string            `json:"board,omitempty"`
}

func main() {
	log.Logger = zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr}).With().Timestamp().Logger()
	zerolog.SetGlobalLevel(logger.ParseLevel(envOrDefault("LOG_LEVEL", "warn")))

	var (
		gridPath     string
		scenarioPath string
		elfAttack    int
		goblinAttack int
		health       int
		calibrate    bool
		protect      string
		start        int
		workers      int
		jobs         int
		naive        bool
		verbose      bool
		jsonOut      bool
		storePath    string
	)

	flag.StringVar(&gridPath, "grid", "", "Map file to fight on (- for stdin)")
	flag.StringVar(&scenarioPath, "scenario", "", "YAML file listing scenarios to run")
	flag.IntVar(&elfAttack, "elf", 0, "Elf attack power (0 = 3)")
	flag.IntVar(&goblinAttack, "goblin", 0, "Goblin attack power (0 = 3)")
	flag.IntVar(&health, "health", 0, "Starting health of every unit (0 = 200)")
	flag.BoolVar(&calibrate, "calibrate", false, "Search for the weakest flawless attack power")
	flag.StringVar(&protect, "protect", "elf", "Faction that must not lose a unit when calibrating")
	flag.IntVar(&start, "start", 0, "First strength tried when calibrating (0 = 4)")
	flag.IntVar(&workers, "workers", runtime.NumCPU(), "Strengths tried at once per calibration")
	flag.IntVar(&jobs, "jobs", runtime.NumCPU(), "Scenarios run at once")
	flag.BoolVar(&naive, "naive", false, "Step every round instead of fast-forwarding stalemates")
	flag.BoolVar(&verbose, "v", false, "Print the final board of each scenario")
	flag.BoolVar(&jsonOut, "json", false, "Output results as JSON")
	flag.StringVar(&storePath, "store", "", "SQLite file to record runs in (default: in memory)")

	flag.Parse()

	scenarios, err := loadScenarios(scenarioPath, gridPath, scenario.Settings{
		ElfAttack:      elfAttack,
		GoblinAttack:   goblinAttack,
		Health:         health,
		Calibrate:      &calibrate,
		Protect:        protect,
		Start:          start,
		OpponentAttack: opponentAttack(protect, elfAttack, goblinAttack),
		Naive:          &naive,
	})
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		flag.Usage()
		os.Exit(2)
	}

	if storePath == "" {
		storePath = ":memory:"
	}
	store, err := sqlite.Open(storePath)
	if err != nil {
		log.Fatal().Err(err).Str("path", storePath).Msg("Opening run store failed")
	}
	defer store.Close()

	svc := service.NewSimulationService(store, nil, service.NoopBroadcaster{}, service.Config{CalibrationWorkers: workers})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Handle graceful shutdown
	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sig
		log.Info().Msg("Shutting down...")
		cancel()
	}()

	results := make([]result, len(scenarios))
	var wg sync.WaitGroup
	sem := make(chan struct{}, max(jobs, 1))

	for i, sc := range scenarios {
		wg.Add(1)
		sem <- struct{}{}

		go func(idx int, sc scenario.Scenario) {
			defer wg.Done()
			defer func() { <-sem }()
			results[idx] = run(ctx, svc, sc, verbose)
		}(i, sc)
	}

	wg.Wait()

	if jsonOut {
		printJSON(os.Stdout, results)
	} else {
		printSummary(os.Stdout, results)
	}

	for _, r := range results {
		if r.Error != "" || len(r.Mismatches) > 0 {
			os.Exit(1)
		}
	}
}

func loadScenarios(scenarioPath, gridPath string, s scenario.Settings) ([]scenario.Scenario, error) {
	switch {
	case scenarioPath != "" && gridPath != "":
		return nil, fmt.Errorf("use -grid or -scenario, not both")
	case scenarioPath != "":
		return scenario.Load(scenarioPath)
	case gridPath != "":
		text, err := readGrid(gridPath)
		if err != nil {
			return nil, err
		}
		sc, err := scenario.FromGrid(filepath.Base(gridPath), text, s)
		if err != nil {
			return nil, err
		}
		return []scenario.Scenario{sc}, nil
	}
	return nil, fmt.Errorf("one of -grid or -scenario is required")
}

func readGrid(path string) (string, error) {
	if path == "-" {
		b, err := io.ReadAll(os.Stdin)
		return string(b), err
	}
	b, err := os.ReadFile(path)
	return string(b), err
}

// opponentAttack picks the fixed attack power of the unprotected side.
func opponentAttack(protect string, elf, goblin int) int {
	if f, err := skirmish.ParseFaction(protect); err == nil && f == skirmish.Goblin {
		return elf
	}
	return goblin
}

func run(ctx context.Context, svc *service.SimulationService, sc scenario.Scenario, verbose bool) result {
	r := result{Name: sc.Name}

	var (
		sim *model.Simulation
		err error
	)
	if sc.Calibrates() {
		sim, err = svc.Calibrate(ctx, sc.CalibrateRequest())
	} else {
		sim, err = svc.Simulate(ctx, sc.SimulateRequest())
	}
	if err != nil {
		log.Error().Err(err).Str("scenario", sc.Name).Msg("Scenario failed")
		r.Error = err.Error()
		return r
	}
	r.Simulation = sim

	strength := 0
	if sim.Calibration != nil {
		strength = sim.Calibration.Strength
	}
	r.Mismatches = sc.Check(sim.Outcome.Winner, sim.Outcome.Rounds, sim.Outcome.Score, strength)

	if verbose {
		board, err := finalBoard(sim)
		if err != nil {
			log.Warn().Err(err).Str("scenario", sc.Name).Msg("Replaying final board failed")
		}
		r.Board = board
	}
	return r
}

// finalBoard replays the recorded battle and renders where it ended.
func finalBoard(sim *model.Simulation) (string, error) {
	g, err := skirmish.ParseGrid(sim.Grid)
	if err != nil {
		return "", err
	}
	b, err := skirmish.NewBattle(g, skirmish.Options{
		ElfAttack:    sim.ElfAttack,
		GoblinAttack: sim.GoblinAttack,
		Health:       sim.Health,
	})
	if err != nil {
		return "", err
	}
	if _, err := b.Run(); err != nil {
		return "", err
	}
	return b.Render(), nil
}

func printSummary(w io.Writer, results []result) {
	failed := 0
	fmt.Fprintf(w, "\nResults (%d scenarios):\n", len(results))
	for _, r := range results {
		if r.Error != "" {
			failed++
			fmt.Fprintf(w, "  %-24s  error: %s\n", r.Name, r.Error)
			continue
		}
		sim := r.Simulation
		o := sim.Outcome
		fmt.Fprintf(w, "  %-24s  %s wins after %d rounds with %d health left -- score %d",
			r.Name, o.Winner, o.Rounds, o.RemainingHealth, o.Score)
		if sim.Calibration != nil {
			fmt.Fprintf(w, " (%s strength %d, %d attempts)", sim.Protected, sim.Calibration.Strength, sim.Calibration.Attempts)
		}
		fmt.Fprintln(w)
		for _, m := range r.Mismatches {
			fmt.Fprintf(w, "  %-24s  MISMATCH %s\n", "", m)
		}
		if r.Board != "" {
			fmt.Fprintf(w, "\n%s\n", r.Board)
		}
	}
	if failed > 0 {
		fmt.Fprintf(w, "  (%d scenarios failed)\n", failed)
	}
}

func printJSON(w io.Writer, results []result) {
	out := struct {
		Total   int      `json:"total"`
		Results []result `json:"results"`
	}{
		Total:   len(results),
		Results: results,
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	enc.Encode(out)
}

func envOrDefault(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
