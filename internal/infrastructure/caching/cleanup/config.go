package cleanup

import "time"

// Config holds cleanup worker configuration, sourced from the central config package.
type Config struct {
	CleanupInterval  time.Duration
	VerboseReporting bool
	// VisitorIdleTTL is how long an engine may sit unused before eviction.
	VisitorIdleTTL time.Duration
	// StateRetention bounds how long untouched client state rows are kept.
	// Zero keeps them forever.
	StateRetention time.Duration
}

// DefaultConfig returns the production defaults.
func DefaultConfig() *Config {
	return &Config{
		CleanupInterval: 5 * time.Minute,
		VisitorIdleTTL:  30 * time.Minute,
	}
}
