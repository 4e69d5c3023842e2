package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/freeeve/cave-skirmish/internal/logger"
	"github.com/freeeve/cave-skirmish/internal/model"
	"github.com/freeeve/cave-skirmish/internal/repository"
	"github.com/freeeve/cave-skirmish/pkg/skirmish"
)

var (
	ErrSimulationNotFound = errors.New("simulation not found")
	ErrInvalidGrid        = errors.New("invalid grid")
	ErrInvalidStrength    = errors.New("invalid strength")
	ErrGridTooLarge       = errors.New("grid too large")
	ErrUndecided          = errors.New("battle cannot be decided")
)

const (
	defaultListLimit = 20
	maxListLimit     = 100
)

// SimulateRequest is the input to Simulate. Zero attack or health values
// mean the classic defaults.
type SimulateRequest struct {
	Grid         string `json:"grid"`
	ElfAttack    int    `json:"elf_attack"`
	GoblinAttack int    `json:"goblin_attack"`
	Health       int    `json:"health"`
	Naive        bool   `json:"naive"`
}

// CalibrateRequest is the input to Calibrate and CalibrateAsync.
type CalibrateRequest struct {
	Grid           string `json:"grid"`
	Protected      string `json:"protected"`
	Start          int    `json:"start"`
	OpponentAttack int    `json:"opponent_attack"`
	Health         int    `json:"health"`
	Naive          bool   `json:"naive"`
}

// Config tunes a SimulationService.
type Config struct {
	CalibrationWorkers int
	MaxGridCells       int
}

// SimulationService runs battles and calibrations and records them.
type SimulationService struct {
	repo        repository.SimulationRepository
	cache       repository.OutcomeCache
	broadcaster Broadcaster
	cfg         Config

	// Background calibrations run under ctx and are tracked by wg.
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewSimulationService creates a SimulationService. cache may be nil.
func NewSimulationService(repo repository.SimulationRepository, cache repository.OutcomeCache, broadcaster Broadcaster, cfg Config) *SimulationService {
	if broadcaster == nil {
		broadcaster = NoopBroadcaster{}
	}
	if cfg.CalibrationWorkers < 1 {
		cfg.CalibrationWorkers = 1
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &SimulationService{
		repo:        repo,
		cache:       cache,
		broadcaster: broadcaster,
		cfg:         cfg,
		ctx:         ctx,
		cancel:      cancel,
	}
}

// Shutdown cancels background calibrations and waits for them to record
// their final state.
func (s *SimulationService) Shutdown() {
	s.cancel()
	s.wg.Wait()
}

// Wait blocks until every background calibration has finished.
func (s *SimulationService) Wait() {
	s.wg.Wait()
}

// Simulate runs one battle to completion, or serves it from the cache, and
// records it.
func (s *SimulationService) Simulate(ctx context.Context, req SimulateRequest) (*model.Simulation, error) {
	g, err := s.parseGrid(req.Grid)
	if err != nil {
		return nil, err
	}
	if req.ElfAttack < 0 || req.GoblinAttack < 0 || req.Health < 0 {
		return nil, fmt.Errorf("%w: attack and health must not be negative", ErrInvalidStrength)
	}
	opts := skirmish.Options{
		ElfAttack:    req.ElfAttack,
		GoblinAttack: req.GoblinAttack,
		Health:       req.Health,
		Stepper:      stepper(req.Naive),
	}
	sim := &model.Simulation{
		Kind:         model.KindBattle,
		Grid:         g.String(),
		GridHash:     g.Hash(),
		ElfAttack:    orDefault(req.ElfAttack, skirmish.DefaultAttack),
		GoblinAttack: orDefault(req.GoblinAttack, skirmish.DefaultAttack),
		Health:       orDefault(req.Health, skirmish.DefaultHealth),
		FastForward:  !req.Naive,
	}
	key := repository.BattleKey{GridHash: sim.GridHash, ElfAttack: sim.ElfAttack, GoblinAttack: sim.GoblinAttack, Health: sim.Health}

	l := logger.ForRequest(ctx)
	l = l.With().Str("gridHash", sim.GridHash[:12]).Logger()
	if cached := s.cachedBattle(ctx, key); cached != nil {
		sim.Outcome = cached
		sim.Cached = true
		l.Debug().Int("score", cached.Score).Msg("Battle served from cache")
	} else {
		opts.Observer = func(rep skirmish.StepReport) {
			l.Trace().Int("rounds", rep.Rounds).Int("moves", rep.Moves).Int("deaths", rep.Deaths).
				Int("fastForwarded", rep.FastForwarded).Msg("Battle step")
		}
		b, err := skirmish.NewBattle(g, opts)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidStrength, err)
		}
		start := time.Now()
		out, err := b.Run()
		if err != nil {
			return nil, classifyRunError(err)
		}
		sim.Outcome = outcomeToModel(out)
		l.Info().Str("winner", sim.Outcome.Winner).Int("rounds", out.Rounds).Int("score", out.Score).
			Dur("elapsed", time.Since(start)).Msg("Battle simulated")
		if s.cache != nil {
			if err := s.cache.SetBattle(ctx, key, sim.Outcome); err != nil {
				l.Warn().Err(err).Msg("Failed to cache battle outcome")
			}
		}
	}

	now := time.Now()
	sim.Status = model.StatusDone
	sim.FinishedAt = &now
	if err := s.repo.Create(ctx, sim); err != nil {
		return nil, fmt.Errorf("record simulation: %w", err)
	}
	return sim, nil
}

// Calibrate searches for the weakest attack power that wins without a loss
// and returns the finished record. Attempt events are broadcast to
// subscribers of the record's ID as they complete.
func (s *SimulationService) Calibrate(ctx context.Context, req CalibrateRequest) (*model.Simulation, error) {
	sim, job, err := s.prepareCalibration(ctx, req)
	if err != nil {
		return nil, err
	}
	if err := s.runCalibration(ctx, sim, job); err != nil {
		return nil, err
	}
	return sim, nil
}

// CalibrateAsync records a running calibration and returns it at once. The
// search continues in the background; subscribers of the returned ID see
// its attempt events and the final calibrated or failed event.
func (s *SimulationService) CalibrateAsync(ctx context.Context, req CalibrateRequest) (*model.Simulation, error) {
	sim, job, err := s.prepareCalibration(ctx, req)
	if err != nil {
		return nil, err
	}
	snapshot := *sim
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		defer func() {
			if r := recover(); r != nil {
				log.Error().Interface("panic", r).Str("calibrationId", sim.ID).Msg("Calibration panicked")
				s.fail(s.ctx, sim, fmt.Errorf("internal error: %v", r))
			}
		}()
		if err := s.runCalibration(s.ctx, sim, job); err != nil {
			log.Warn().Err(err).Str("calibrationId", sim.ID).Msg("Background calibration failed")
		}
	}()
	return &snapshot, nil
}

type calibrationJob struct {
	grid *skirmish.Grid
	req  skirmish.CalibrationRequest
	key  repository.CalibrationKey
}

func (s *SimulationService) prepareCalibration(ctx context.Context, req CalibrateRequest) (*model.Simulation, calibrationJob, error) {
	g, err := s.parseGrid(req.Grid)
	if err != nil {
		return nil, calibrationJob{}, err
	}
	protected := skirmish.Elf
	if strings.TrimSpace(req.Protected) != "" {
		if protected, err = skirmish.ParseFaction(req.Protected); err != nil {
			return nil, calibrationJob{}, fmt.Errorf("%w: %v", ErrInvalidStrength, err)
		}
	}
	if req.Start < 0 || req.OpponentAttack < 0 || req.Health < 0 {
		return nil, calibrationJob{}, fmt.Errorf("%w: start, opponent attack and health must not be negative", ErrInvalidStrength)
	}

	start := orDefault(req.Start, skirmish.DefaultCalibrationStart)
	opponent := orDefault(req.OpponentAttack, skirmish.DefaultAttack)
	health := orDefault(req.Health, skirmish.DefaultHealth)
	job := calibrationJob{
		grid: g,
		req: skirmish.CalibrationRequest{
			Protected:      protected,
			Start:          start,
			OpponentAttack: opponent,
			Options:        skirmish.Options{Health: health, Stepper: stepper(req.Naive)},
		},
		key: repository.CalibrationKey{
			GridHash:       g.Hash(),
			Protected:      protected.String(),
			Start:          start,
			OpponentAttack: opponent,
			Health:         health,
		},
	}

	sim := &model.Simulation{
		Kind:        model.KindCalibration,
		Status:      model.StatusRunning,
		Grid:        g.String(),
		GridHash:    job.key.GridHash,
		Health:      health,
		FastForward: !req.Naive,
		Protected:   protected.String(),
		Start:       start,
	}
	setAttacks(sim, protected, start, opponent)
	if err := s.repo.Create(ctx, sim); err != nil {
		return nil, calibrationJob{}, fmt.Errorf("record calibration: %w", err)
	}
	return sim, job, nil
}

// runCalibration performs the search for sim and records the result.
func (s *SimulationService) runCalibration(ctx context.Context, sim *model.Simulation, job calibrationJob) error {
	l := log.With().Str("calibrationId", sim.ID).Str("protected", sim.Protected).Logger()

	cal := s.cachedCalibration(ctx, job.key)
	if cal != nil {
		sim.Cached = true
		l.Debug().Int("strength", cal.Strength).Msg("Calibration served from cache")
	} else {
		start := time.Now()
		res, err := skirmish.CalibrateParallel(ctx, job.grid, job.req, s.cfg.CalibrationWorkers, func(a skirmish.Attempt) {
			l.Debug().Int("strength", a.Strength).Bool("flawless", a.Flawless).Int("score", a.Outcome.Score).Msg("Calibration attempt")
			s.broadcaster.BroadcastCalibrationEvent(sim.ID, EventAttempt, AttemptEvent{
				Strength: a.Strength,
				Flawless: a.Flawless,
				Winner:   a.Outcome.Winner.String(),
				Rounds:   a.Outcome.Rounds,
				Score:    a.Outcome.Score,
				Losses:   a.Outcome.Losses(job.req.Protected),
			})
		})
		if err != nil {
			err = classifyRunError(err)
			s.fail(ctx, sim, err)
			return err
		}
		cal = &model.Calibration{Strength: res.Strength, Attempts: res.Attempts, Outcome: *outcomeToModel(res.Outcome)}
		l.Info().Int("strength", res.Strength).Int("attempts", res.Attempts).Int("score", res.Outcome.Score).
			Dur("elapsed", time.Since(start)).Msg("Calibration finished")
		if s.cache != nil {
			if err := s.cache.SetCalibration(ctx, job.key, cal); err != nil {
				l.Warn().Err(err).Msg("Failed to cache calibration")
			}
		}
	}

	now := time.Now()
	sim.Status = model.StatusDone
	sim.Calibration = cal
	sim.Outcome = &cal.Outcome
	sim.FinishedAt = &now
	setAttacks(sim, job.req.Protected, cal.Strength, job.req.OpponentAttack)
	if err := s.repo.Finish(context.WithoutCancel(ctx), sim); err != nil {
		return fmt.Errorf("record calibration: %w", err)
	}
	s.broadcaster.BroadcastCalibrationEvent(sim.ID, EventCalibrated, sim)
	return nil
}

// fail records sim as failed and tells subscribers.
func (s *SimulationService) fail(ctx context.Context, sim *model.Simulation, cause error) {
	now := time.Now()
	sim.Status = model.StatusFailed
	sim.Error = cause.Error()
	sim.FinishedAt = &now
	if err := s.repo.Finish(context.WithoutCancel(ctx), sim); err != nil {
		log.Error().Err(err).Str("calibrationId", sim.ID).Msg("Failed to record calibration failure")
	}
	s.broadcaster.BroadcastCalibrationEvent(sim.ID, EventFailed, map[string]string{"error": sim.Error})
}

// Get returns a recorded simulation.
func (s *SimulationService) Get(ctx context.Context, id string) (*model.Simulation, error) {
	sim, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if sim == nil {
		return nil, ErrSimulationNotFound
	}
	return sim, nil
}

// ListRecent returns up to limit recorded simulations, newest first.
func (s *SimulationService) ListRecent(ctx context.Context, limit int) ([]model.Simulation, error) {
	if limit <= 0 {
		limit = defaultListLimit
	}
	limit = min(limit, maxListLimit)
	return s.repo.ListRecent(ctx, limit)
}

func (s *SimulationService) parseGrid(text string) (*skirmish.Grid, error) {
	g, err := skirmish.ParseGrid(text)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidGrid, err)
	}
	if s.cfg.MaxGridCells > 0 && g.Width()*g.Height() > s.cfg.MaxGridCells {
		return nil, fmt.Errorf("%w: %dx%d exceeds %d cells", ErrGridTooLarge, g.Width(), g.Height(), s.cfg.MaxGridCells)
	}
	return g, nil
}

func (s *SimulationService) cachedBattle(ctx context.Context, key repository.BattleKey) *model.Outcome {
	if s.cache == nil {
		return nil
	}
	o, err := s.cache.GetBattle(ctx, key)
	if err != nil {
		l := logger.ForRequest(ctx)
		l.Warn().Err(err).Msg("Outcome cache lookup failed")
		return nil
	}
	return o
}

func (s *SimulationService) cachedCalibration(ctx context.Context, key repository.CalibrationKey) *model.Calibration {
	if s.cache == nil {
		return nil
	}
	c, err := s.cache.GetCalibration(ctx, key)
	if err != nil {
		log.Warn().Err(err).Msg("Calibration cache lookup failed")
		return nil
	}
	return c
}

// classifyRunError maps simulator errors that depend on the map itself to
// ErrUndecided. Other errors, such as cancellation, pass through.
func classifyRunError(err error) error {
	if errors.Is(err, skirmish.ErrDeadlock) || errors.Is(err, skirmish.ErrRoundLimit) || errors.Is(err, skirmish.ErrNoViableStrength) {
		return fmt.Errorf("%w: %v", ErrUndecided, err)
	}
	return err
}

func outcomeToModel(o skirmish.Outcome) *model.Outcome {
	m := &model.Outcome{
		Winner:          o.Winner.String(),
		Rounds:          o.Rounds,
		RemainingHealth: o.RemainingHealth,
		Score:           o.Score,
		Survivors:       make(map[string]int, 2),
		Losses:          make(map[string]int, 2),
	}
	for _, f := range skirmish.AllFactions() {
		m.Survivors[f.String()] = o.Survivors[f]
		m.Losses[f.String()] = o.Losses(f)
	}
	return m
}

func setAttacks(sim *model.Simulation, protected skirmish.Faction, strength, opponent int) {
	if protected == skirmish.Elf {
		sim.ElfAttack, sim.GoblinAttack = strength, opponent
	} else {
		sim.ElfAttack, sim.GoblinAttack = opponent, strength
	}
}

func stepper(naive bool) skirmish.Stepper {
	if naive {
		return skirmish.NaiveStepper{}
	}
	return skirmish.FastForwardStepper{}
}

func orDefault(v, def int) int {
	if v == 0 {
		return def
	}
	return v
}
