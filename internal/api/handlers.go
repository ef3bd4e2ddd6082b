package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"github.com/ADEPT-ML/Backend/internal/analysis"
	"github.com/ADEPT-ML/Backend/internal/session"
	"github.com/ADEPT-ML/Backend/internal/upstream"
)

// Server exposes the client-facing surface of the backend.
type Server struct {
	orchestrator *analysis.Orchestrator
	upstream     *upstream.Client
	log          zerolog.Logger
}

func NewServer(orchestrator *analysis.Orchestrator, client *upstream.Client, logger zerolog.Logger) *Server {
	return &Server{orchestrator: orchestrator, upstream: client, log: logger}
}

func (s *Server) handleCatalog(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, catalog)
}

func (s *Server) handleBuildings(w http.ResponseWriter, r *http.Request) {
	s.relay(w, func() ([]byte, error) { return s.upstream.Buildings(r.Context()) })
}

func (s *Server) handleSensors(w http.ResponseWriter, r *http.Request) {
	building := chi.URLParam(r, "building")
	s.relay(w, func() ([]byte, error) { return s.upstream.Sensors(r.Context(), building) })
}

func (s *Server) handleSensorSeries(w http.ResponseWriter, r *http.Request) {
	building := chi.URLParam(r, "building")
	sensor := chi.URLParam(r, "sensor")
	s.relay(w, func() ([]byte, error) { return s.upstream.SensorSeries(r.Context(), building, sensor) })
}

func (s *Server) handleTimestamps(w http.ResponseWriter, r *http.Request) {
	building := chi.URLParam(r, "building")
	s.relay(w, func() ([]byte, error) { return s.upstream.Timestamps(r.Context(), building) })
}

func (s *Server) handleAlgorithms(w http.ResponseWriter, r *http.Request) {
	s.relay(w, func() ([]byte, error) { return s.upstream.Algorithms(r.Context()) })
}

func (s *Server) handleAnomalies(w http.ResponseWriter, r *http.Request) {
	sessionID := r.Header.Get("uuid")
	if sessionID == "" {
		writeDetail(w, http.StatusBadRequest, "uuid header is required")
		return
	}
	q := r.URL.Query()
	algo, err := strconv.Atoi(q.Get("algo"))
	if err != nil {
		writeDetail(w, http.StatusBadRequest, "algo must be an integer")
		return
	}
	body, err := s.orchestrator.RunDetection(r.Context(), sessionID,
		q.Get("building"), q.Get("sensors"), q.Get("start"), q.Get("stop"), q.Get("config"), algo)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeBody(w, http.StatusOK, body)
}

func (s *Server) handlePrototypes(w http.ResponseWriter, r *http.Request) {
	s.explain(w, r, s.orchestrator.Prototypes)
}

func (s *Server) handleAttribution(w http.ResponseWriter, r *http.Request) {
	s.explain(w, r, s.orchestrator.Attribution)
}

func (s *Server) explain(w http.ResponseWriter, r *http.Request, call func(context.Context, string, int) ([]byte, error)) {
	sessionID := r.Header.Get("uuid")
	if sessionID == "" {
		writeDetail(w, http.StatusBadRequest, "uuid header is required")
		return
	}
	anomaly, err := strconv.Atoi(r.URL.Query().Get("anomaly"))
	if err != nil {
		writeDetail(w, http.StatusBadRequest, "anomaly must be an integer")
		return
	}
	body, err := call(r.Context(), sessionID, anomaly)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeBody(w, http.StatusOK, body)
}

// relay forwards a validated upstream body byte-for-byte.
func (s *Server) relay(w http.ResponseWriter, call func() ([]byte, error)) {
	body, err := call()
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeBody(w, http.StatusOK, body)
}

// writeError maps internal error kinds onto the documented status set.
// Upstream statuses outside that set are downgraded so clients never see
// anything the contract does not name.
func (s *Server) writeError(w http.ResponseWriter, err error) {
	var ue *upstream.Error
	switch {
	case errors.Is(err, session.ErrNotFound):
		writeDetail(w, http.StatusBadRequest, "No detection result for this session. Run a detection first.")
	case errors.Is(err, analysis.ErrEmptyPayload):
		writeDetail(w, http.StatusBadRequest, "Payload can not be empty")
	case errors.Is(err, analysis.ErrInvalidArgument):
		writeDetail(w, http.StatusBadRequest, err.Error())
	case errors.As(err, &ue):
		switch ue.Status {
		case http.StatusBadRequest, http.StatusNotFound, http.StatusInternalServerError:
			writeDetail(w, ue.Status, ue.Message)
		default:
			s.log.Warn().Int("status", ue.Status).Str("message", ue.Message).Msg("unexpected upstream status downgraded")
			writeDetail(w, http.StatusInternalServerError, "Internal Server Error")
		}
	default:
		s.log.Error().Err(err).Msg("request failed")
		writeDetail(w, http.StatusInternalServerError, "Internal Server Error")
	}
}

func writeJSON(w http.ResponseWriter, code int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeBody(w http.ResponseWriter, code int, body []byte) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_, _ = w.Write(body)
}

func writeDetail(w http.ResponseWriter, code int, message string) {
	writeJSON(w, code, map[string]string{"detail": message})
}

func healthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
