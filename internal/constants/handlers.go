// Package constants provides shared constants used across the codebase.
package constants

import "time"

// Search handler constants
const (
	// DefaultSearchDistance is the Hamming radius used when a search omits distance
	DefaultSearchDistance = 10

	// MaxSearchResults is the maximum number of matches a search returns
	MaxSearchResults = 200
)

// Server constants
const (
	ServerReadTimeout   = 30 * time.Second
	ServerWriteTimeout  = time.Minute
	ServerIdleTimeout   = 60 * time.Second
	RequestTimeout      = 30 * time.Second
	ShutdownGracePeriod = 10 * time.Second
)
