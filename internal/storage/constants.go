package db

import "time"

// Database connection constants
const (
	// ConnectionRetrySleep is the sleep duration between connection retries
	ConnectionRetrySleep = 2 * time.Second
	// maxConnectionRetries is the number of retries for initial connection
	maxConnectionRetries = 10
)

// Database pool default constants
const (
	defaultMaxConns          int32         = 10
	defaultMinConns          int32         = 1
	defaultMaxConnIdleTime   time.Duration = 30 * time.Minute
	defaultMaxConnLifetime   time.Duration = time.Hour
	defaultHealthCheckPeriod time.Duration = time.Minute
)

// Postgres error codes
const (
	pgCodeUniqueViolation = "23505"
)

// Query limits
const (
	// DefaultRecentLimit is used when RecentTweets is called without a positive limit.
	DefaultRecentLimit = 20
	// MaxRecentLimit caps RecentTweets.
	MaxRecentLimit = 1000
)
