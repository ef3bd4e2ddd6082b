package analysis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/rs/zerolog"

	"github.com/ADEPT-ML/Backend/internal/session"
	"github.com/ADEPT-ML/Backend/internal/upstream"
)

// ErrInvalidArgument marks caller mistakes: empty sensor selections and
// config parameters that are not valid JSON.
var ErrInvalidArgument = errors.New("invalid argument")

// ErrEmptyPayload mirrors the explainability services' "Payload can not be
// empty" condition for cached records without data rows.
var ErrEmptyPayload = errors.New("payload can not be empty")

// Recorder persists completed detection runs. Failures are logged by the
// orchestrator, never surfaced to clients.
type Recorder interface {
	RecordRun(ctx context.Context, entry RunEntry) error
}

// RunEntry summarizes one successful detection run for the audit log.
type RunEntry struct {
	SessionID    string
	Building     string
	AlgorithmID  int
	SensorCount  int
	AnomalyCount int
}

// Orchestrator sequences the client-facing operations across the data,
// detection and explainability services and owns the session cache protocol.
type Orchestrator struct {
	upstream *upstream.Client
	sessions *session.Store
	audit    Recorder
	log      zerolog.Logger
}

func New(client *upstream.Client, sessions *session.Store, audit Recorder, logger zerolog.Logger) *Orchestrator {
	return &Orchestrator{upstream: client, sessions: sessions, audit: audit, log: logger}
}

// RunDetection slices the requested series, runs the selected algorithm on
// the slice and caches the full result under the session id, replacing any
// prior record. The returned body is the detection response without the
// server-side-only raw-anomalies and deep-error fields.
func (o *Orchestrator) RunDetection(ctx context.Context, sessionID, building, sensorsParam, start, stop, configParam string, algo int) ([]byte, error) {
	sensors, err := parseSensors(sensorsParam)
	if err != nil {
		return nil, err
	}
	config, err := parseConfig(configParam)
	if err != nil {
		return nil, err
	}
	slice, err := o.upstream.Slice(ctx, building, sensors, start, stop)
	if err != nil {
		return nil, err
	}
	detection, err := o.upstream.Detect(ctx, algo, building, config, slice.Raw)
	if err != nil {
		return nil, err
	}
	if len(detection.ErrorSeries) != len(detection.Timestamps) {
		return nil, &upstream.ContractError{
			Op:     "calculate",
			Detail: fmt.Sprintf("error series has %d entries for %d timestamps", len(detection.ErrorSeries), len(detection.Timestamps)),
		}
	}
	if len(slice.Payload) != 0 && len(detection.Timestamps) != 0 && len(slice.Payload) != len(detection.Timestamps) {
		return nil, &upstream.ContractError{
			Op:     "calculate",
			Detail: fmt.Sprintf("slice has %d rows for %d timestamps", len(slice.Payload), len(detection.Timestamps)),
		}
	}

	o.sessions.Put(sessionID, session.Record{
		DeepError:   detection.DeepError,
		Dataframe:   slice.Payload,
		Sensors:     sensors,
		Algorithm:   algo,
		Timestamps:  detection.Timestamps,
		Anomalies:   detection.RawAnomalies,
		ErrorSeries: detection.ErrorSeries,
	})
	o.log.Info().
		Str("session", sessionID).
		Str("building", building).
		Int("algo", algo).
		Int("anomalies", len(detection.RawAnomalies)).
		Msg("detection result cached")

	if o.audit != nil {
		entry := RunEntry{
			SessionID:    sessionID,
			Building:     building,
			AlgorithmID:  algo,
			SensorCount:  len(sensors),
			AnomalyCount: len(detection.RawAnomalies),
		}
		if err := o.audit.RecordRun(ctx, entry); err != nil {
			o.log.Warn().Err(err).Str("session", sessionID).Msg("audit insert failed")
		}
	}

	view := make(map[string]json.RawMessage, len(detection.Fields))
	for key, value := range detection.Fields {
		view[key] = value
	}
	delete(view, "raw-anomalies")
	delete(view, "deep-error")
	return json.Marshal(view)
}

// Prototypes posts the cached record for the session to the prototype
// generator and relays its body unmodified.
func (o *Orchestrator) Prototypes(ctx context.Context, sessionID string, anomaly int) ([]byte, error) {
	rec, err := o.record(sessionID)
	if err != nil {
		return nil, err
	}
	return o.upstream.Prototypes(ctx, anomaly, rec)
}

// Attribution posts the cached record for the session to the feature
// attribution service and relays its body unmodified.
func (o *Orchestrator) Attribution(ctx context.Context, sessionID string, anomaly int) ([]byte, error) {
	rec, err := o.record(sessionID)
	if err != nil {
		return nil, err
	}
	return o.upstream.Attribution(ctx, anomaly, rec)
}

func (o *Orchestrator) record(sessionID string) (session.Record, error) {
	rec, err := o.sessions.Get(sessionID)
	if err != nil {
		return session.Record{}, err
	}
	if len(rec.Dataframe) == 0 {
		return session.Record{}, ErrEmptyPayload
	}
	return rec, nil
}

// parseSensors splits the semicolon-delimited selection. Order is preserved;
// it aligns with the columns of the sliced dataframe.
func parseSensors(raw string) ([]string, error) {
	if strings.TrimSpace(raw) == "" {
		return nil, fmt.Errorf("%w: sensor selection must not be empty", ErrInvalidArgument)
	}
	parts := strings.Split(raw, ";")
	sensors := make([]string, 0, len(parts))
	for _, part := range parts {
		if strings.TrimSpace(part) == "" {
			return nil, fmt.Errorf("%w: sensor selection contains an empty name", ErrInvalidArgument)
		}
		sensors = append(sensors, part)
	}
	return sensors, nil
}

func parseConfig(raw string) (json.RawMessage, error) {
	if strings.TrimSpace(raw) == "" {
		return json.RawMessage("{}"), nil
	}
	if !json.Valid([]byte(raw)) {
		return nil, fmt.Errorf("%w: config is not valid JSON", ErrInvalidArgument)
	}
	return json.RawMessage(raw), nil
}
