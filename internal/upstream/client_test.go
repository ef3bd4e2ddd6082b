package upstream

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const detectionBody = `{
	"error": [0.03, 0.02],
	"timestamps": ["2020-03-14T15:00:00", "2020-03-14T15:15:00"],
	"raw-anomalies": [{"timestamp": "2020-03-14T15:15:00", "type": "Area"}],
	"threshold": 0.29,
	"deep-error": {"layers": [0.1]}
}`

func newTestClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return NewClient(srv.URL, srv.URL, srv.URL, 0, zerolog.Nop())
}

func TestSliceBuildsQueryAndKeepsRawBody(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/buildings/EF 40a/slice", r.URL.Path)
		assert.Equal(t, []string{"Temperatur", "Wärme Diff"}, r.URL.Query()["sensors"])
		assert.Equal(t, "2021-01-01T23:00:00.000Z", r.URL.Query().Get("start"))
		io.WriteString(w, `{"payload":[[12.4,0.03],[12.1,0.02]],"extra":true}`)
	})

	slice, err := client.Slice(context.Background(), "EF 40a",
		[]string{"Temperatur", "Wärme Diff"}, "2021-01-01T23:00:00.000Z", "2022-01-01T23:00:00.000Z")
	require.NoError(t, err)
	assert.Equal(t, [][]float64{{12.4, 0.03}, {12.1, 0.02}}, slice.Payload)
	assert.JSONEq(t, `{"payload":[[12.4,0.03],[12.1,0.02]],"extra":true}`, string(slice.Raw))
}

func TestSliceRejectsMissingPayload(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, _ *http.Request) {
		io.WriteString(w, `{"rows":[]}`)
	})

	_, err := client.Slice(context.Background(), "EF 40a", []string{"Temperatur"}, "", "")
	var ce *ContractError
	require.ErrorAs(t, err, &ce)
	assert.Equal(t, "slice", ce.Op)
}

func TestDetectForwardsSliceBodyAndQuery(t *testing.T) {
	sliceBody := []byte(`{"payload":[[12.4,0.03]]}`)
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/calculate", r.URL.Path)
		assert.Equal(t, "1", r.URL.Query().Get("algo"))
		assert.Equal(t, "EF 40a", r.URL.Query().Get("building"))
		assert.JSONEq(t, `{"dropdown":"Percentile","percentile":99.5}`, r.URL.Query().Get("config"))
		body, _ := io.ReadAll(r.Body)
		assert.Equal(t, sliceBody, body)
		io.WriteString(w, detectionBody)
	})

	detection, err := client.Detect(context.Background(), 1, "EF 40a",
		json.RawMessage(`{"dropdown":"Percentile","percentile":99.5}`), sliceBody)
	require.NoError(t, err)
	assert.Equal(t, []float64{0.03, 0.02}, detection.ErrorSeries)
	assert.Equal(t, []AnomalyMark{{Timestamp: "2020-03-14T15:15:00", Type: "Area"}}, detection.RawAnomalies)
	assert.JSONEq(t, `{"layers":[0.1]}`, string(detection.DeepError))
	assert.Contains(t, detection.Fields, "threshold")
}

func TestDetectChecksRequiredKeys(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, _ *http.Request) {
		io.WriteString(w, `{"timestamps":[]}`)
	})

	_, err := client.Detect(context.Background(), 1, "EF 40a", json.RawMessage("{}"), nil)
	var ce *ContractError
	require.ErrorAs(t, err, &ce)
	assert.Contains(t, ce.Detail, "error")
}

func TestDetectRejectsNonObjectBody(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, _ *http.Request) {
		io.WriteString(w, `[1,2,3]`)
	})

	_, err := client.Detect(context.Background(), 1, "EF 40a", json.RawMessage("{}"), nil)
	var ce *ContractError
	assert.ErrorAs(t, err, &ce)
}

func TestExplainWrapsRecordInPayloadEnvelope(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/prototypes", r.URL.Path)
		assert.Equal(t, "2", r.URL.Query().Get("anomaly"))
		body, _ := io.ReadAll(r.Body)
		var envelope map[string]json.RawMessage
		if assert.NoError(t, json.Unmarshal(body, &envelope)) {
			assert.Contains(t, envelope, "payload")
		}
		io.WriteString(w, `{"prototypes":{}}`)
	})

	body, err := client.Prototypes(context.Background(), 2, map[string]any{"algo": 1})
	require.NoError(t, err)
	assert.JSONEq(t, `{"prototypes":{}}`, string(body))
}

func TestCallPropagatesUpstreamError(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		io.WriteString(w, `{"detail":"Building not found"}`)
	})

	_, err := client.Buildings(context.Background())
	var ue *Error
	require.ErrorAs(t, err, &ue)
	assert.Equal(t, http.StatusNotFound, ue.Status)
	assert.Equal(t, "Building not found", ue.Message)
}
