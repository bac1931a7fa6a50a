// Package constants provides shared constants used across the codebase.
// Centralizing these values ensures consistency and makes them easier to modify.
package constants

import "time"

// Processing constants
const (
	// DefaultConcurrency is the default number of scans hashed in parallel
	DefaultConcurrency = 1

	// MaxConcurrency caps --concurrency so the archive is not hammered
	MaxConcurrency = 32

	// ProgressReportSteps is how many progress lines a run logs (about every 2%)
	ProgressReportSteps = 50
)

// HTTP client constants
const (
	// DefaultRetryWait is the initial backoff interval between retries
	DefaultRetryWait = time.Second

	// ThrottledRetryFloor is multiplied by the attempt number for 403/429 responses
	ThrottledRetryFloor = 10 * time.Second

	// MaxErrorBodySize is how much of an error response body is kept for messages
	MaxErrorBodySize = 512
)
