package kintone

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
)

// ErrBadHTTPStatus marks responses outside the 2xx range.
var ErrBadHTTPStatus = errors.New("unexpected http status")

// APIError describes a non-2xx kintone response.
type APIError struct {
	// StatusCode is the HTTP status code.
	StatusCode int `json:"-"`
	// Status is the HTTP status line, e.g. "403 Forbidden".
	Status string `json:"-"`
	// Code is the kintone error code, e.g. GAIA_PL18, when the body is a kintone error.
	Code string `json:"code"`
	// ID is the kintone error id used for support requests.
	ID string `json:"id"`
	// Message is the human-readable kintone error message.
	Message string `json:"message"`
	// Body is the raw response body.
	Body string `json:"-"`
}

func newAPIError(statusCode int, status string, body []byte) *APIError {
	apiErr := &APIError{
		StatusCode: statusCode,
		Status:     status,
		Body:       string(body),
	}

	// Not every failure comes from kintone itself (proxies, load balancers),
	// so an undecodable body is kept raw.
	_ = json.Unmarshal(body, apiErr)

	return apiErr
}

func (e *APIError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("%s: [%s] %s (id: %s)", e.Status, e.Code, e.Message, e.ID)
	}

	if e.Body != "" {
		return fmt.Sprintf("%s: %s", e.Status, e.Body)
	}

	return e.Status
}

// Unwrap lets callers match any APIError with errors.Is(err, ErrBadHTTPStatus).
func (e *APIError) Unwrap() error {
	return ErrBadHTTPStatus
}

// IsNotFound reports whether the error means the plugin is not installed.
// kintone answers 404 for a PUT against an unknown plugin id.
func IsNotFound(err error) bool {
	var apiErr *APIError

	return errors.As(err, &apiErr) && apiErr.StatusCode == http.StatusNotFound
}
