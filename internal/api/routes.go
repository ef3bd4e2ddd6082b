package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

// route pairs a path with a display name for the catalog endpoint.
type route struct {
	Path string `json:"path"`
	Name string `json:"name"`
}

var catalog = []route{
	{Path: "/", Name: "Root path"},
	{Path: "/buildings", Name: "Buildings"},
	{Path: "/buildings/{building}/sensors", Name: "Building Sensors"},
	{Path: "/buildings/{building}/sensors/{sensor}", Name: "Sensor Data"},
	{Path: "/buildings/{building}/timestamps", Name: "Building Timeframe"},
	{Path: "/algorithms", Name: "Anomaly Detection Algorithms"},
	{Path: "/calculate/anomalies", Name: "Calculate anomalies"},
	{Path: "/calculate/prototypes", Name: "Get prototypes for a selected anomaly"},
	{Path: "/calculate/feature-attribution", Name: "Get attribution of features for a selected anomaly"},
}

func (s *Server) Routes() chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(corsMiddleware)

	r.Get("/healthz", healthz)
	r.Get("/", s.handleCatalog)
	r.Get("/buildings", s.handleBuildings)
	r.Get("/buildings/{building}/sensors", s.handleSensors)
	r.Get("/buildings/{building}/sensors/{sensor}", s.handleSensorSeries)
	r.Get("/buildings/{building}/timestamps", s.handleTimestamps)
	r.Get("/algorithms", s.handleAlgorithms)
	r.Get("/calculate/anomalies", s.handleAnomalies)
	r.Get("/calculate/prototypes", s.handlePrototypes)
	r.Get("/calculate/feature-attribution", s.handleAttribution)
	return r
}

// corsMiddleware mirrors the permissive policy the frontend expects.
func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET,POST,OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type,uuid")
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}
