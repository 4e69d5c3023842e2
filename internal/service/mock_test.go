package service

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/freeeve/cave-skirmish/internal/model"
	"github.com/freeeve/cave-skirmish/internal/repository"
)

type mockSimulationRepo struct {
	mu   sync.Mutex
	sims map[string]model.Simulation
	seq  int
	err  error
}

func newMockSimulationRepo() *mockSimulationRepo {
	return &mockSimulationRepo{sims: make(map[string]model.Simulation)}
}

func (m *mockSimulationRepo) Create(_ context.Context, sim *model.Simulation) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	m.seq++
	sim.ID = fmt.Sprintf("sim-%d", m.seq)
	sim.CreatedAt = time.Unix(int64(m.seq), 0)
	m.sims[sim.ID] = *sim
	return nil
}

func (m *mockSimulationRepo) Finish(_ context.Context, sim *model.Simulation) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.sims[sim.ID]; !ok {
		return errors.New("no such simulation")
	}
	m.sims[sim.ID] = *sim
	return nil
}

func (m *mockSimulationRepo) FindByID(_ context.Context, id string) (*model.Simulation, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	sim, ok := m.sims[id]
	if !ok {
		return nil, nil
	}
	return &sim, nil
}

func (m *mockSimulationRepo) ListRecent(_ context.Context, limit int) ([]model.Simulation, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []model.Simulation
	for _, sim := range m.sims {
		out = append(out, sim)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

type mockCache struct {
	mu           sync.Mutex
	battles      map[repository.BattleKey]model.Outcome
	calibrations map[repository.CalibrationKey]model.Calibration
	getErr       error
}

func newMockCache() *mockCache {
	return &mockCache{
		battles:      make(map[repository.BattleKey]model.Outcome),
		calibrations: make(map[repository.CalibrationKey]model.Calibration),
	}
}

func (m *mockCache) GetBattle(_ context.Context, key repository.BattleKey) (*model.Outcome, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.getErr != nil {
		return nil, m.getErr
	}
	o, ok := m.battles[key]
	if !ok {
		return nil, nil
	}
	return &o, nil
}

func (m *mockCache) SetBattle(_ context.Context, key repository.BattleKey, o *model.Outcome) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.battles[key] = *o
	return nil
}

func (m *mockCache) GetCalibration(_ context.Context, key repository.CalibrationKey) (*model.Calibration, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.getErr != nil {
		return nil, m.getErr
	}
	c, ok := m.calibrations[key]
	if !ok {
		return nil, nil
	}
	return &c, nil
}

func (m *mockCache) SetCalibration(_ context.Context, key repository.CalibrationKey, c *model.Calibration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calibrations[key] = *c
	return nil
}

type broadcastEvent struct {
	calibrationID string
	eventType     string
	data          any
}

type recordingBroadcaster struct {
	mu     sync.Mutex
	events []broadcastEvent
}

func (b *recordingBroadcaster) BroadcastCalibrationEvent(id, eventType string, data any) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.events = append(b.events, broadcastEvent{id, eventType, data})
}

func (b *recordingBroadcaster) snapshot() []broadcastEvent {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]broadcastEvent, len(b.events))
	copy(out, b.events)
	return out
}
