// Package status provides canonical status values for collection runs and
// for the data served by the API.
//
// The constants are plain strings for compatibility with MongoDB queries
// and JSON responses.
package status

// Run status values recorded for each cycle.
const (
	Running   = "running"
	Succeeded = "succeeded"
	Empty     = "empty"
	Failed    = "failed"
)

// Data status values reported alongside served datasets.
const (
	OK          = "ok"
	Stale       = "stale"
	Unavailable = "unavailable"
)

// IsValid returns true if s is a recognized run status.
func IsValid(s string) bool {
	switch s {
	case Running, Succeeded, Empty, Failed:
		return true
	}
	return false
}

// IsTerminal reports whether a run with status s has finished.
func IsTerminal(s string) bool {
	return s == Succeeded || s == Empty || s == Failed
}
