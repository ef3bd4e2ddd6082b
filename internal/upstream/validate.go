package upstream

import (
	"encoding/json"
	"net/http"
	"strconv"
)

// validate gates every upstream response. Only a 200 is accepted; anything
// else becomes an *Error carrying the upstream "detail" message when the
// body provides one, or the stringified status code otherwise.
func validate(resp *http.Response, body []byte) error {
	if resp.StatusCode == http.StatusOK {
		return nil
	}
	message := strconv.Itoa(resp.StatusCode)
	var probe struct {
		Detail string `json:"detail"`
	}
	if err := json.Unmarshal(body, &probe); err == nil && probe.Detail != "" {
		message = probe.Detail
	}
	return &Error{Status: resp.StatusCode, Message: message}
}
