// internal/app/crawl/errors.go
package crawl

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// Sentinel errors for ranking page failures. Use errors.Is to test for them.
var (
	// ErrNegotiation means the page loaded but the anti-automation token
	// could not be found.
	ErrNegotiation = errors.New("crawl: session negotiation failed")

	// ErrExtraction means the response parsed but produced no ranking rows.
	ErrExtraction = errors.New("crawl: no ranking rows extracted")

	// ErrTransport means the page could not be fetched at all (network error,
	// timeout, non-2xx status).
	ErrTransport = errors.New("crawl: transport failure")
)

// Attempt describes one fetch attempt, for diagnostics.
type Attempt struct {
	Mode        string        `json:"mode" bson:"mode"`
	Rows        int           `json:"rows" bson:"rows"`
	StatusCode  int           `json:"status_code,omitempty" bson:"status_code,omitempty"`
	Fields      int           `json:"fields,omitempty" bson:"fields,omitempty"`
	Error       string        `json:"error,omitempty" bson:"error,omitempty"`
	Duration    time.Duration `json:"duration" bson:"duration"`
	BodyPreview string        `json:"body_preview,omitempty" bson:"body_preview,omitempty"`
}

// FetchError is returned when every attempt failed. It wraps the last
// attempt's error so errors.Is works against the sentinels above.
type FetchError struct {
	Attempts []Attempt
	Err      error
}

func (e *FetchError) Error() string {
	parts := make([]string, 0, len(e.Attempts))
	for _, a := range e.Attempts {
		parts = append(parts, fmt.Sprintf("%s: %s", a.Mode, a.Error))
	}
	return fmt.Sprintf("ranking fetch failed after %d attempt(s): %s", len(e.Attempts), strings.Join(parts, "; "))
}

func (e *FetchError) Unwrap() error { return e.Err }

// IsOutage reports whether err represents a real outage (transport or
// negotiation failure) rather than a page that simply had no rows.
func IsOutage(err error) bool {
	return errors.Is(err, ErrTransport) || errors.Is(err, ErrNegotiation)
}
