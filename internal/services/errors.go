package services

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrConnectionUnavailable is returned when the upstream server cannot be reached for a probe or a model
	// listing.
	ErrConnectionUnavailable = errors.New("ollama is not reachable")
	// ErrUpstreamUnavailable is returned when a streaming request cannot be opened or the server answers with
	// a non-success status.
	ErrUpstreamUnavailable = errors.New("ollama upstream unavailable")
	// ErrStreamRead is returned when the response body fails after the response has started.
	ErrStreamRead = errors.New("error reading response stream")
)

// StatusError reports a non-success HTTP status from the upstream server. It matches ErrUpstreamUnavailable
// with errors.Is.
type StatusError struct {
	StatusCode int
	Status     string
	Message    string
}

func (e *StatusError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("ollama API error: %s", e.Status)
	}
	return fmt.Sprintf("ollama API error: %s: %s", e.Status, e.Message)
}

// Is reports whether target is ErrUpstreamUnavailable.
func (e *StatusError) Is(target error) bool {
	return target == ErrUpstreamUnavailable
}

func newStatusError(statusCode int, status string, body []byte) *StatusError {
	var res struct {
		Error string `json:"error"`
	}
	msg := strings.TrimSpace(string(body))
	if err := json.Unmarshal(body, &res); err == nil && res.Error != "" {
		msg = res.Error
	}
	return &StatusError{
		StatusCode: statusCode,
		Status:     status,
		Message:    msg,
	}
}

const errLoggerKey = "err"
