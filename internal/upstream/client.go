package upstream

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// Client issues calls against the three collaborating services and funnels
// every response through validate. Failures surface immediately; retries and
// circuit breaking are left to the transport.
type Client struct {
	dataURL    string
	detectURL  string
	explainURL string
	http       *http.Client
	log        zerolog.Logger
}

// NewClient wires the three service base URLs. A zero timeout keeps the
// transport default.
func NewClient(dataURL, detectURL, explainURL string, timeout time.Duration, logger zerolog.Logger) *Client {
	return &Client{
		dataURL:    strings.TrimRight(dataURL, "/"),
		detectURL:  strings.TrimRight(detectURL, "/"),
		explainURL: strings.TrimRight(explainURL, "/"),
		http:       &http.Client{Timeout: timeout},
		log:        logger,
	}
}

// AnomalyMark is one detected anomaly as reported by the detection service.
type AnomalyMark struct {
	Timestamp string `json:"timestamp"`
	Type      string `json:"type"`
}

// SliceResult carries the decoded data rows plus the verbatim body; the
// detection call forwards the body unchanged.
type SliceResult struct {
	Payload [][]float64
	Raw     []byte
}

// DetectionResponse is the checked form of the detection service's body.
// Fields holds every key the upstream sent so the client view can relay
// fields this service does not interpret.
type DetectionResponse struct {
	ErrorSeries  []float64
	Timestamps   []string
	RawAnomalies []AnomalyMark
	DeepError    json.RawMessage
	Fields       map[string]json.RawMessage
}

func (c *Client) Buildings(ctx context.Context) ([]byte, error) {
	return c.get(ctx, c.dataURL+"/buildings")
}

func (c *Client) Sensors(ctx context.Context, building string) ([]byte, error) {
	return c.get(ctx, fmt.Sprintf("%s/buildings/%s/sensors", c.dataURL, url.PathEscape(building)))
}

func (c *Client) SensorSeries(ctx context.Context, building, sensor string) ([]byte, error) {
	return c.get(ctx, fmt.Sprintf("%s/buildings/%s/sensors/%s", c.dataURL, url.PathEscape(building), url.PathEscape(sensor)))
}

func (c *Client) Timestamps(ctx context.Context, building string) ([]byte, error) {
	return c.get(ctx, fmt.Sprintf("%s/buildings/%s/timestamps", c.dataURL, url.PathEscape(building)))
}

func (c *Client) Algorithms(ctx context.Context) ([]byte, error) {
	return c.get(ctx, c.detectURL+"/algorithms")
}

// Slice fetches the columnar data for the selected sensors and time range.
// Sensor order is preserved in the query so the rows align with the caller's
// selection.
func (c *Client) Slice(ctx context.Context, building string, sensors []string, start, stop string) (SliceResult, error) {
	q := url.Values{}
	for _, sensor := range sensors {
		q.Add("sensors", sensor)
	}
	q.Set("start", start)
	q.Set("stop", stop)
	body, err := c.get(ctx, fmt.Sprintf("%s/buildings/%s/slice?%s", c.dataURL, url.PathEscape(building), q.Encode()))
	if err != nil {
		return SliceResult{}, err
	}
	var decoded struct {
		Payload *[][]float64 `json:"payload"`
	}
	if err := json.Unmarshal(body, &decoded); err != nil || decoded.Payload == nil {
		return SliceResult{}, &ContractError{Op: "slice", Detail: "missing or malformed payload"}
	}
	return SliceResult{Payload: *decoded.Payload, Raw: body}, nil
}

var detectionKeys = []string{"error", "timestamps", "raw-anomalies", "threshold", "deep-error"}

// Detect runs the selected algorithm on a previously fetched slice body and
// checks the response shape before anything destructures it.
func (c *Client) Detect(ctx context.Context, algo int, building string, config json.RawMessage, sliceBody []byte) (DetectionResponse, error) {
	q := url.Values{}
	q.Set("algo", strconv.Itoa(algo))
	q.Set("building", building)
	q.Set("config", string(config))
	body, err := c.post(ctx, fmt.Sprintf("%s/calculate?%s", c.detectURL, q.Encode()), sliceBody)
	if err != nil {
		return DetectionResponse{}, err
	}
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(body, &fields); err != nil {
		return DetectionResponse{}, &ContractError{Op: "calculate", Detail: "body is not a JSON object"}
	}
	for _, key := range detectionKeys {
		if _, ok := fields[key]; !ok {
			return DetectionResponse{}, &ContractError{Op: "calculate", Detail: fmt.Sprintf("missing key %q", key)}
		}
	}
	out := DetectionResponse{Fields: fields, DeepError: fields["deep-error"]}
	if err := json.Unmarshal(fields["error"], &out.ErrorSeries); err != nil {
		return DetectionResponse{}, &ContractError{Op: "calculate", Detail: "error is not a number array"}
	}
	if err := json.Unmarshal(fields["timestamps"], &out.Timestamps); err != nil {
		return DetectionResponse{}, &ContractError{Op: "calculate", Detail: "timestamps is not a string array"}
	}
	if err := json.Unmarshal(fields["raw-anomalies"], &out.RawAnomalies); err != nil {
		return DetectionResponse{}, &ContractError{Op: "calculate", Detail: "raw-anomalies has an unexpected shape"}
	}
	return out, nil
}

// Prototypes posts a cached detection record to the explainability service.
func (c *Client) Prototypes(ctx context.Context, anomaly int, record any) ([]byte, error) {
	return c.explain(ctx, "prototypes", anomaly, record)
}

// Attribution posts a cached detection record for feature attribution.
func (c *Client) Attribution(ctx context.Context, anomaly int, record any) ([]byte, error) {
	return c.explain(ctx, "feature-attribution", anomaly, record)
}

func (c *Client) explain(ctx context.Context, op string, anomaly int, record any) ([]byte, error) {
	payload, err := json.Marshal(map[string]any{"payload": record})
	if err != nil {
		return nil, fmt.Errorf("encode explainability payload: %w", err)
	}
	return c.post(ctx, fmt.Sprintf("%s/%s?anomaly=%d", c.explainURL, op, anomaly), payload)
}

func (c *Client) get(ctx context.Context, rawURL string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	return c.do(req)
}

func (c *Client) post(ctx context.Context, rawURL string, payload []byte) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, rawURL, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	return c.do(req)
}

func (c *Client) do(req *http.Request) ([]byte, error) {
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("call %s: %w", req.URL.Path, err)
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read %s response: %w", req.URL.Path, err)
	}
	if err := validate(resp, body); err != nil {
		c.log.Warn().
			Str("path", req.URL.Path).
			Int("status", resp.StatusCode).
			Msg("upstream rejected request")
		return nil, err
	}
	return body, nil
}
