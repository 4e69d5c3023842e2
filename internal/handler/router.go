package handler

import (
	"net/http"

	"github.com/freeeve/cave-skirmish/internal/middleware"
)

// NewRouter wires the API routes and global middleware.
func NewRouter(sims *SimulationHandler, ws *WSHandler, health *HealthHandler, allowedOrigins string) http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /healthz", health.Healthz)

	api := http.NewServeMux()
	api.HandleFunc("POST /simulations", sims.CreateSimulation)
	api.HandleFunc("GET /simulations", sims.ListSimulations)
	api.HandleFunc("GET /simulations/{id}", sims.GetSimulation)
	api.HandleFunc("POST /calibrations", sims.CreateCalibration)
	mux.Handle("/api/v1/", http.StripPrefix("/api/v1", api))

	mux.HandleFunc("GET /api/v1/ws", ws.ServeWS)

	return middleware.Chain(mux, middleware.Logger, middleware.Recover, middleware.CORS(allowedOrigins), middleware.JSON)
}
