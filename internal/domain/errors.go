package domain

import (
	"fmt"
	"net/http"
)

// FetchError reports a failed forecast request. StatusCode is zero when the
// provider was never reached.
type FetchError struct {
	StatusCode int
	Err        error
}

func (e *FetchError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("fetch forecast: status %d: %v", e.StatusCode, e.Err)
	}
	return fmt.Sprintf("fetch forecast: %v", e.Err)
}

func (e *FetchError) Unwrap() error { return e.Err }

// Fatal reports whether retrying with any station is pointless, i.e. the
// provider rejected the credentials.
func (e *FetchError) Fatal() bool {
	return e.StatusCode == http.StatusUnauthorized || e.StatusCode == http.StatusForbidden
}

// MalformedRecordError reports a station table row (or header, Row == -1) that
// cannot be used.
type MalformedRecordError struct {
	Row   int
	Field string
	Err   error
}

func (e *MalformedRecordError) Error() string {
	if e.Row < 0 {
		return fmt.Sprintf("malformed table: %s: %v", e.Field, e.Err)
	}
	return fmt.Sprintf("malformed record at row %d: %s: %v", e.Row, e.Field, e.Err)
}

func (e *MalformedRecordError) Unwrap() error { return e.Err }

// PreconditionError reports FFDI requested for a row whose API is absent.
type PreconditionError struct {
	Row int
}

func (e *PreconditionError) Error() string {
	return fmt.Sprintf("ffdi precondition: API not computed for row %d", e.Row)
}
