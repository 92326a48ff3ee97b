package sleeper

import (
	"errors"
	"fmt"
	"net/http"
)

// ErrorKind classifies a failed fetch.
type ErrorKind string

const (
	KindNetwork     ErrorKind = "network"
	KindStatus      ErrorKind = "status"
	KindParse       ErrorKind = "parse"
	KindCircuitOpen ErrorKind = "circuit_open"
)

// FetchError is returned by every Client method on failure.
type FetchError struct {
	Kind       ErrorKind
	Endpoint   string // URL template, e.g. "/league/{id}"
	StatusCode int    // set for KindStatus
	Err        error
}

func (e *FetchError) Error() string {
	switch e.Kind {
	case KindStatus:
		return fmt.Sprintf("sleeper %s: HTTP %d", e.Endpoint, e.StatusCode)
	case KindCircuitOpen:
		return fmt.Sprintf("sleeper %s: upstream unavailable, try again shortly", e.Endpoint)
	}
	if e.Err != nil {
		return fmt.Sprintf("sleeper %s: %s error: %v", e.Endpoint, e.Kind, e.Err)
	}
	return fmt.Sprintf("sleeper %s: %s error", e.Endpoint, e.Kind)
}

func (e *FetchError) Unwrap() error { return e.Err }

// Temporary reports whether a later attempt may succeed.
func (e *FetchError) Temporary() bool {
	switch e.Kind {
	case KindNetwork, KindCircuitOpen:
		return true
	case KindStatus:
		return e.StatusCode == http.StatusTooManyRequests || e.StatusCode >= 500
	}
	return false
}

// IsNotFound reports whether err is an upstream 404.
func IsNotFound(err error) bool {
	var fe *FetchError
	return errors.As(err, &fe) && fe.Kind == KindStatus && fe.StatusCode == http.StatusNotFound
}
