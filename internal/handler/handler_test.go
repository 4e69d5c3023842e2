package handler

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/freeeve/cave-skirmish/internal/model"
	"github.com/freeeve/cave-skirmish/internal/service"
)

const classicGrid = "#######\n#.G...#\n#...EG#\n#.#.#G#\n#..G#E#\n#.....#\n#######"

// --- Mock Repository ---

type mockSimulationRepo struct {
	mu   sync.Mutex
	sims map[string]model.Simulation
	seq  int
}

func newMockSimulationRepo() *mockSimulationRepo {
	return &mockSimulationRepo{sims: make(map[string]model.Simulation)}
}

func (m *mockSimulationRepo) Create(_ context.Context, sim *model.Simulation) error {
	m.mu.Lock()
	defer m.mu.Unlock()
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

// --- Helpers ---

type testEnv struct {
	svc    *service.SimulationService
	hub    *Hub
	router http.Handler
}

func newTestEnv(t *testing.T, deps map[string]Pinger) *testEnv {
	t.Helper()
	hub := NewHub()
	svc := service.NewSimulationService(newMockSimulationRepo(), nil, hub, service.Config{CalibrationWorkers: 2, MaxGridCells: 400})
	t.Cleanup(svc.Shutdown)
	router := NewRouter(NewSimulationHandler(svc), NewWSHandler(hub, "*"), NewHealthHandler(hub, deps), "*")
	return &testEnv{svc: svc, hub: hub, router: router}
}

func (e *testEnv) do(t *testing.T, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var r *http.Request
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal: %v", err)
		}
		r = httptest.NewRequest(method, path, strings.NewReader(string(b)))
	} else {
		r = httptest.NewRequest(method, path, nil)
	}
	rec := httptest.NewRecorder()
	e.router.ServeHTTP(rec, r)
	return rec
}

func decodeSimulation(t *testing.T, rec *httptest.ResponseRecorder) model.Simulation {
	t.Helper()
	var sim model.Simulation
	if err := json.Unmarshal(rec.Body.Bytes(), &sim); err != nil {
		t.Fatalf("decode simulation: %v (%s)", err, rec.Body.String())
	}
	return sim
}

// --- Simulation endpoints ---

func TestCreateSimulation(t *testing.T) {
	env := newTestEnv(t, nil)
	rec := env.do(t, http.MethodPost, "/api/v1/simulations", map[string]any{"grid": classicGrid})
	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", rec.Code, rec.Body.String())
	}
	sim := decodeSimulation(t, rec)
	if sim.Outcome == nil || sim.Outcome.Score != 27730 {
		t.Fatalf("expected score 27730, got %+v", sim.Outcome)
	}
	if ct := rec.Header().Get("Content-Type"); ct != "application/json" {
		t.Errorf("expected JSON content type, got %s", ct)
	}
}

func TestCreateSimulationErrors(t *testing.T) {
	env := newTestEnv(t, nil)
	tests := []struct {
		name string
		body any
		want int
	}{
		{"missing grid", map[string]any{}, http.StatusBadRequest},
		{"unknown field", map[string]any{"grid": classicGrid, "dwarves": 1}, http.StatusBadRequest},
		{"bad cell", map[string]any{"grid": "#E?G#"}, http.StatusBadRequest},
		{"negative attack", map[string]any{"grid": classicGrid, "elf_attack": -4}, http.StatusBadRequest},
		{"too large", map[string]any{"grid": strings.Repeat("#E"+strings.Repeat(".", 40)+"G#\n", 20)}, http.StatusRequestEntityTooLarge},
		{"deadlock", map[string]any{"grid": "#E#G#"}, http.StatusUnprocessableEntity},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := env.do(t, http.MethodPost, "/api/v1/simulations", tt.body)
			if rec.Code != tt.want {
				t.Fatalf("expected %d, got %d: %s", tt.want, rec.Code, rec.Body.String())
			}
		})
	}
}

func TestGetAndListSimulations(t *testing.T) {
	env := newTestEnv(t, nil)

	rec := env.do(t, http.MethodGet, "/api/v1/simulations", nil)
	if rec.Code != http.StatusOK || strings.TrimSpace(rec.Body.String()) != "[]" {
		t.Fatalf("expected empty list, got %d %s", rec.Code, rec.Body.String())
	}

	created := decodeSimulation(t, env.do(t, http.MethodPost, "/api/v1/simulations", map[string]any{"grid": "#E.G#", "elf_attack": 50}))
	env.do(t, http.MethodPost, "/api/v1/simulations", map[string]any{"grid": "#G.E#"})

	rec = env.do(t, http.MethodGet, "/api/v1/simulations/"+created.ID, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if got := decodeSimulation(t, rec); got.ID != created.ID || got.ElfAttack != 50 {
		t.Fatalf("unexpected simulation %+v", got)
	}

	if rec := env.do(t, http.MethodGet, "/api/v1/simulations/nope", nil); rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rec.Code)
	}

	rec = env.do(t, http.MethodGet, "/api/v1/simulations?limit=1", nil)
	var list []model.Simulation
	if err := json.Unmarshal(rec.Body.Bytes(), &list); err != nil {
		t.Fatalf("decode list: %v", err)
	}
	if len(list) != 1 {
		t.Fatalf("expected 1 simulation, got %d", len(list))
	}

	if rec := env.do(t, http.MethodGet, "/api/v1/simulations?limit=lots", nil); rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for bad limit, got %d", rec.Code)
	}
}

// --- Calibration endpoints ---

func TestCreateCalibration(t *testing.T) {
	env := newTestEnv(t, nil)
	rec := env.do(t, http.MethodPost, "/api/v1/calibrations", map[string]any{"grid": classicGrid, "protected": "elf"})
	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", rec.Code, rec.Body.String())
	}
	sim := decodeSimulation(t, rec)
	if sim.Calibration == nil || sim.Calibration.Strength != 15 || sim.Outcome.Score != 4988 {
		t.Fatalf("expected strength 15 scoring 4988, got %+v", sim.Calibration)
	}
}

func TestCreateCalibrationAsync(t *testing.T) {
	env := newTestEnv(t, nil)
	rec := env.do(t, http.MethodPost, "/api/v1/calibrations?async=true", map[string]any{"grid": classicGrid})
	if rec.Code != http.StatusAccepted {
		t.Fatalf("expected 202, got %d: %s", rec.Code, rec.Body.String())
	}
	sim := decodeSimulation(t, rec)
	if sim.Status != model.StatusRunning || sim.ID == "" {
		t.Fatalf("expected running record, got %+v", sim)
	}

	env.svc.Wait()
	done := decodeSimulation(t, env.do(t, http.MethodGet, "/api/v1/simulations/"+sim.ID, nil))
	if done.Status != model.StatusDone || done.Calibration == nil || done.Calibration.Strength != 15 {
		t.Fatalf("expected finished calibration, got %+v", done)
	}
}

func TestCreateCalibrationBadFaction(t *testing.T) {
	env := newTestEnv(t, nil)
	rec := env.do(t, http.MethodPost, "/api/v1/calibrations", map[string]any{"grid": classicGrid, "protected": "dwarf"})
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
}

// --- Health ---

func TestHealthz(t *testing.T) {
	env := newTestEnv(t, map[string]Pinger{
		"postgres": PingFunc(func(context.Context) error { return nil }),
	})
	rec := env.do(t, http.MethodGet, "/healthz", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}

	env = newTestEnv(t, map[string]Pinger{
		"redis": PingFunc(func(context.Context) error { return errors.New("connection refused") }),
	})
	rec = env.do(t, http.MethodGet, "/healthz", nil)
	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503, got %d", rec.Code)
	}
	var body struct {
		Status string            `json:"status"`
		Checks map[string]string `json:"checks"`
	}
	json.Unmarshal(rec.Body.Bytes(), &body)
	if body.Status != "degraded" || body.Checks["redis"] != "connection refused" {
		t.Fatalf("unexpected body %+v", body)
	}
}

func TestCORSPreflight(t *testing.T) {
	env := newTestEnv(t, nil)
	rec := env.do(t, http.MethodOptions, "/api/v1/simulations", nil)
	if rec.Code != http.StatusNoContent {
		t.Fatalf("expected 204, got %d", rec.Code)
	}
}

// --- WebSocket ---

func readEvent(t *testing.T, conn *websocket.Conn) WSEvent {
	t.Helper()
	conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	var ev WSEvent
	if err := conn.ReadJSON(&ev); err != nil {
		t.Fatalf("read event: %v", err)
	}
	return ev
}

func TestWebSocketSubscribe(t *testing.T) {
	env := newTestEnv(t, nil)
	srv := httptest.NewServer(env.router)
	defer srv.Close()

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/api/v1/ws"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	if ev := readEvent(t, conn); ev.Type != EventConnected {
		t.Fatalf("expected connected, got %s", ev.Type)
	}

	if err := conn.WriteJSON(ClientMessage{Action: "subscribe", CalibrationID: "cal-9"}); err != nil {
		t.Fatalf("write: %v", err)
	}
	if ev := readEvent(t, conn); ev.Type != EventSubscribed || ev.CalibrationID != "cal-9" {
		t.Fatalf("expected subscribed ack, got %+v", ev)
	}

	env.hub.BroadcastCalibrationEvent("cal-9", service.EventAttempt, service.AttemptEvent{Strength: 7})
	env.hub.BroadcastCalibrationEvent("cal-other", service.EventAttempt, service.AttemptEvent{Strength: 8})
	env.hub.BroadcastCalibrationEvent("cal-9", service.EventCalibrated, map[string]int{"strength": 15})

	ev := readEvent(t, conn)
	data, _ := json.Marshal(ev.Data)
	var attempt service.AttemptEvent
	json.Unmarshal(data, &attempt)
	if ev.Type != service.EventAttempt || attempt.Strength != 7 {
		t.Fatalf("expected attempt 7, got %+v", ev)
	}
	if ev := readEvent(t, conn); ev.Type != service.EventCalibrated {
		t.Fatalf("expected calibrated, got %+v", ev)
	}
}

func TestWebSocketOriginCheck(t *testing.T) {
	check := originChecker("https://a.example, https://b.example")
	for origin, want := range map[string]bool{
		"":                  true,
		"https://a.example": true,
		"https://b.example": true,
		"https://evil.test": false,
	} {
		r := httptest.NewRequest(http.MethodGet, "/api/v1/ws", nil)
		if origin != "" {
			r.Header.Set("Origin", origin)
		}
		if got := check(r); got != want {
			t.Errorf("origin %q: got %v, want %v", origin, got, want)
		}
	}
}
