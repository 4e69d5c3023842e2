package handler

import (
	"net/http"
	"strconv"

	"github.com/freeeve/cave-skirmish/internal/service"
)

// SimulationHandler handles battle and calibration endpoints.
type SimulationHandler struct {
	svc *service.SimulationService
}

// NewSimulationHandler creates a SimulationHandler.
func NewSimulationHandler(svc *service.SimulationService) *SimulationHandler {
	return &SimulationHandler{svc: svc}
}

// CreateSimulation handles POST /api/v1/simulations
func (h *SimulationHandler) CreateSimulation(w http.ResponseWriter, r *http.Request) {
	var req service.SimulateRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Grid == "" {
		writeError(w, http.StatusBadRequest, "grid is required")
		return
	}
	sim, err := h.svc.Simulate(r.Context(), req)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, sim)
}

// ListSimulations handles GET /api/v1/simulations
func (h *SimulationHandler) ListSimulations(w http.ResponseWriter, r *http.Request) {
	limit := 0
	if s := r.URL.Query().Get("limit"); s != "" {
		n, err := strconv.Atoi(s)
		if err != nil || n < 0 {
			writeError(w, http.StatusBadRequest, "limit must be a non-negative integer")
			return
		}
		limit = n
	}
	sims, err := h.svc.ListRecent(r.Context(), limit)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	if sims == nil {
		writeJSON(w, http.StatusOK, []struct{}{})
		return
	}
	writeJSON(w, http.StatusOK, sims)
}

// GetSimulation handles GET /api/v1/simulations/{id}
func (h *SimulationHandler) GetSimulation(w http.ResponseWriter, r *http.Request) {
	sim, err := h.svc.Get(r.Context(), r.PathValue("id"))
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, sim)
}

// CreateCalibration handles POST /api/v1/calibrations
// With ?async=true it answers 202 with the running record; progress
// arrives over the WebSocket.
func (h *SimulationHandler) CreateCalibration(w http.ResponseWriter, r *http.Request) {
	var req service.CalibrateRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Grid == "" {
		writeError(w, http.StatusBadRequest, "grid is required")
		return
	}

	if async, _ := strconv.ParseBool(r.URL.Query().Get("async")); async {
		sim, err := h.svc.CalibrateAsync(r.Context(), req)
		if err != nil {
			writeServiceError(w, r, err)
			return
		}
		writeJSON(w, http.StatusAccepted, sim)
		return
	}

	sim, err := h.svc.Calibrate(r.Context(), req)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, sim)
}
