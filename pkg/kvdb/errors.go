package kvdb

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"
)

var (
	// ErrInvalidKey is returned for keys that are not strings.
	ErrInvalidKey = errors.New("kvdb: invalid key")
	// ErrInvalidValue is returned for values that cannot be stored (±Inf,
	// undefined, or anything JSON cannot encode).
	ErrInvalidValue = errors.New("kvdb: invalid value")
	// ErrUnknownOperator is returned by Math for unsupported operators.
	ErrUnknownOperator = errors.New("kvdb: unknown operator")
	// ErrNotNumber is returned by Math when the stored value is not a number.
	ErrNotNumber = errors.New("kvdb: target is not a number")
	// ErrNotArray is returned by Push and Pull when the stored value is not an array.
	ErrNotArray = errors.New("kvdb: target is not an array")
	// ErrDataType is returned by ImportJSON when the payload is not an array.
	ErrDataType = errors.New("kvdb: import data must be an array")
	// ErrDataImport is returned when an imported record lacks its id or data.
	ErrDataImport = errors.New("kvdb: import record incomplete")
	// ErrRateLimited marks a response asking the client to back off (HTTP 429).
	ErrRateLimited = errors.New("kvdb: rate limited")
	// ErrRetriesExhausted is returned once the retry budget is spent.
	ErrRetriesExhausted = errors.New("kvdb: rate limit retries exhausted")
	// ErrNoURL is returned when no base URL was supplied or found in the environment.
	ErrNoURL = errors.New("kvdb: a base URL was not provided or found in " + EnvURL)
)

// ValidationError reports an argument rejected before any remote call.
type ValidationError struct {
	Op    string
	Arg   string
	Err   error
	Cause error
}

func (e *ValidationError) Error() string {
	msg := fmt.Sprintf("kvdb: %s: %s: %s", e.Op, e.Arg, strings.TrimPrefix(e.Err.Error(), "kvdb: "))
	if e.Cause != nil {
		msg += ": " + e.Cause.Error()
	}
	return msg
}

func (e *ValidationError) Unwrap() []error {
	if e.Cause == nil {
		return []error{e.Err}
	}
	return []error{e.Err, e.Cause}
}

// RemoteError is a non-2xx answer from the store.
type RemoteError struct {
	Op         string
	StatusCode int
	Body       string
	// RetryAfter is the wait a rate limited answer asked for, zero if none.
	RetryAfter time.Duration
}

func (e *RemoteError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("kvdb: %s: remote status %d", e.Op, e.StatusCode)
	}
	return fmt.Sprintf("kvdb: %s: remote status %d: %s", e.Op, e.StatusCode, e.Body)
}

// Is reports 429 responses as ErrRateLimited.
func (e *RemoteError) Is(target error) bool {
	return target == ErrRateLimited && e.StatusCode == http.StatusTooManyRequests
}

// RetryExhaustedError is returned when a call kept being rate limited after
// the retry budget ran out.
type RetryExhaustedError struct {
	Op       string
	Attempts int
	Last     error
}

func (e *RetryExhaustedError) Error() string {
	return fmt.Sprintf("kvdb: %s: rate limit retries exhausted after %d attempts", e.Op, e.Attempts)
}

func (e *RetryExhaustedError) Unwrap() error {
	return ErrRetriesExhausted
}

// ParseError reports a stored value that is not valid JSON. Get recovers
// from it by returning the raw string; GetAs returns it.
type ParseError struct {
	Key string
	Err error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("kvdb: failed to parse value of %q, try the Raw option to get the raw value: %v", e.Key, e.Err)
}

func (e *ParseError) Unwrap() error {
	return e.Err
}

func invalid(op, arg string, sentinel error) error {
	return &ValidationError{Op: op, Arg: arg, Err: sentinel}
}
