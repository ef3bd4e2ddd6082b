package session

import (
	"encoding/json"

	"github.com/ADEPT-ML/Backend/internal/upstream"
)

// Record is the cached intermediate of one detection run. The JSON shape is
// exactly what the explainability services expect under "payload", so a
// record is stored ready to post.
type Record struct {
	DeepError   json.RawMessage        `json:"deep-error"`
	Dataframe   [][]float64            `json:"dataframe"`
	Sensors     []string               `json:"sensors"`
	Algorithm   int                    `json:"algo"`
	Timestamps  []string               `json:"timestamps"`
	Anomalies   []upstream.AnomalyMark `json:"anomalies"`
	ErrorSeries []float64              `json:"error"`
}
