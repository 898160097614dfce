package api

import (
	"net/http"

	"github.com/chrisdamba/urbansim/internal/observability"
	"github.com/gorilla/handlers"
	"github.com/gorilla/mux"
	log "github.com/sirupsen/logrus"
)

// NewRouter wires the JSON API, health, metrics and the live-update socket.
// metrics and ws may be nil.
func NewRouter(h *Handler, metrics *observability.Metrics, ws http.Handler) *mux.Router {
	r := mux.NewRouter()

	r.HandleFunc("/health", h.Health).Methods("GET")
	if metrics != nil {
		r.Handle("/metrics", metrics.Handler()).Methods("GET")
	}
	if ws != nil {
		r.Handle("/ws", ws)
	}

	api := r.PathPrefix("/api").Subrouter()
	if metrics != nil {
		api.Use(metrics.Middleware)
	}
	api.HandleFunc("/traffic", h.GetTraffic).Methods("GET")
	api.HandleFunc("/pollution", h.GetPollution).Methods("GET")
	api.HandleFunc("/pollution/geojson", h.GetPollutionGeoJSON).Methods("GET")
	api.HandleFunc("/pollution/regenerate", h.RegeneratePollution).Methods("POST")
	api.HandleFunc("/simulate/bus", h.SimulateBus).Methods("POST")
	api.HandleFunc("/scenarios", h.ListScenarios).Methods("GET")
	api.HandleFunc("/scenarios", h.CreateScenario).Methods("POST")
	api.HandleFunc("/scenarios/{id}", h.GetScenario).Methods("GET")
	api.HandleFunc("/scenarios/{id}", h.DeleteScenario).Methods("DELETE")

	return r
}

// WithMiddleware adds access logging, panic recovery and permissive CORS.
func WithMiddleware(next http.Handler) http.Handler {
	logWriter := log.StandardLogger().WriterLevel(log.InfoLevel)
	cors := handlers.CORS(
		handlers.AllowedOrigins([]string{"*"}),
		handlers.AllowedMethods([]string{"GET", "POST", "DELETE", "OPTIONS"}),
		handlers.AllowedHeaders([]string{"Content-Type"}),
	)
	return handlers.CombinedLoggingHandler(logWriter,
		handlers.RecoveryHandler(handlers.RecoveryLogger(log.StandardLogger()), handlers.PrintRecoveryStack(true))(
			cors(next),
		),
	)
}
