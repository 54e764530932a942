// internal/app/bootstrap/appconfig.go
package bootstrap

import "time"

// AppConfig holds service-specific configuration for this WAFFLE app.
//
// These values come from environment variables, configuration files, or
// command-line flags (loaded in LoadConfig). WAFFLE's CoreConfig handles
// framework-level settings like ports, TLS, logging and request limits;
// everything specific to collecting and serving box office data lives here.
type AppConfig struct {
	// MongoDB connection configuration
	MongoURI         string // MongoDB connection string (e.g., mongodb://localhost:27017)
	MongoDatabase    string // Database name within MongoDB
	MongoMaxPoolSize uint64 // Maximum connections in pool (default: 100)
	MongoMinPoolSize uint64 // Minimum connections to keep warm (default: 10)

	// Statistics provider (KOBIS open API)
	KobisAPIKey      string // API key; required when jobs are enabled
	KobisAPIURL      string // Base URL of the REST API
	ProviderRPS      int    // Requests per second across all provider calls
	RetryMaxAttempts int
	RetryDelay       time.Duration
	BreakerFailures  int           // Consecutive failures that open the breaker
	BreakerOpenFor   time.Duration // How long the breaker stays open

	// Ranking page crawl
	RankingPageURL     string
	RankingTokenFields []string // Input names tried, in order, for the anti-forgery token
	CrawlUserAgent     string
	CrawlMinRows       int // First-attempt rows accepted without the exhaustive fallback

	// Scheduling
	JobsEnabled     bool
	RankingInterval time.Duration
	DailyInterval   time.Duration
	RunRetention    time.Duration // Age after which run records are pruned

	// Datasets
	HistoryCap          int // Samples kept per movie in the ranking history
	HistoryTopN         int // Rows per cycle appended to the history
	TrendWindowDays     int
	BackfillCeilingDays int
	BackfillWorkers     int
	DetailWorkers       int
	Timezone            string        // Calendar used for "yesterday" (default: Asia/Seoul)
	StaleAfter          time.Duration // Snapshot age reported as stale

	// Outbound call timeouts
	TimeoutNegotiate time.Duration
	TimeoutTable     time.Duration
	TimeoutLookup    time.Duration
	TimeoutDetail    time.Duration
	TimeoutCycle     time.Duration

	// HTTP API
	CORSOrigins []string // Allowed origins for /api; empty allows any
}
