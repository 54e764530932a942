// internal/app/bootstrap/config.go
package bootstrap

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/dalemusser/stratabox/internal/app/system/timezones"
	"github.com/dalemusser/waffle/config"
	wafflemongo "github.com/dalemusser/waffle/pantry/mongo"
	"go.uber.org/zap"
)

// EnvVarPrefix is the prefix for environment variables.
const EnvVarPrefix = "STRATABOX"

// appConfigKeys defines the configuration keys for this application.
// These are loaded via WAFFLE's config system with support for:
//   - Config files: mongo_uri, kobis_api_key, etc.
//   - Environment variables: STRATABOX_MONGO_URI, STRATABOX_KOBIS_API_KEY, etc.
//   - Command-line flags: --mongo_uri, --kobis_api_key, etc.
var appConfigKeys = []config.AppKey{
	{Name: "mongo_uri", Default: "mongodb://localhost:27017", Desc: "MongoDB connection URI"},
	{Name: "mongo_database", Default: "stratabox", Desc: "MongoDB database name"},
	{Name: "mongo_max_pool_size", Default: 100, Desc: "MongoDB max connection pool size (default: 100)"},
	{Name: "mongo_min_pool_size", Default: 10, Desc: "MongoDB min connection pool size (default: 10)"},

	// Statistics provider
	{Name: "kobis_api_key", Default: "", Desc: "KOBIS open API key (required when jobs are enabled)"},
	{Name: "kobis_api_url", Default: "https://www.kobis.or.kr/kobisopenapi/webservice/rest", Desc: "KOBIS open API base URL"},
	{Name: "provider_rps", Default: 5, Desc: "Max provider requests per second"},
	{Name: "retry_max_attempts", Default: 3, Desc: "Attempts per provider call"},
	{Name: "retry_delay", Default: "500ms", Desc: "Initial delay between provider retries (doubles each attempt)"},
	{Name: "breaker_failures", Default: 5, Desc: "Consecutive provider failures that open the circuit"},
	{Name: "breaker_open_for", Default: "60s", Desc: "How long an open circuit refuses provider calls"},

	// Ranking page crawl
	{Name: "ranking_page_url", Default: "https://www.kobis.or.kr/kobis/business/stat/boxs/findRealTicketList.do", Desc: "Reservation ranking page URL"},
	{Name: "ranking_token_fields", Default: "CSRFToken", Desc: "Comma-separated token input names, tried in order"},
	{Name: "crawl_user_agent", Default: "", Desc: "User-Agent for ranking page requests (blank uses a browser default)"},
	{Name: "crawl_min_rows", Default: 2, Desc: "Rows below which the exhaustive request is tried"},

	// Scheduling
	{Name: "jobs_enabled", Default: true, Desc: "Run the collection cycles on their intervals"},
	{Name: "ranking_interval", Default: "10m", Desc: "Ranking cycle interval"},
	{Name: "daily_interval", Default: "6h", Desc: "Daily cycle interval"},
	{Name: "run_retention", Default: "720h", Desc: "Age after which run records are pruned"},

	// Datasets
	{Name: "history_cap", Default: 288, Desc: "Samples kept per movie in the ranking history"},
	{Name: "history_top_n", Default: 10, Desc: "Ranking rows appended to the history each cycle"},
	{Name: "trend_window_days", Default: 14, Desc: "Days of trend kept per listed movie"},
	{Name: "backfill_ceiling_days", Default: 30, Desc: "Max days looked back when filling trend gaps"},
	{Name: "backfill_workers", Default: 5, Desc: "Concurrent backfill lookups"},
	{Name: "detail_workers", Default: 5, Desc: "Concurrent detail fetches"},
	{Name: "timezone", Default: "Asia/Seoul", Desc: "IANA zone defining the provider's calendar day"},
	{Name: "stale_after", Default: "2h", Desc: "Snapshot age reported as stale"},

	// Timeouts
	{Name: "timeout_negotiate", Default: "10s", Desc: "Ranking page session negotiation timeout"},
	{Name: "timeout_table", Default: "20s", Desc: "Ranking table / daily list request timeout"},
	{Name: "timeout_lookup", Default: "3s", Desc: "Single backfill lookup timeout"},
	{Name: "timeout_detail", Default: "5s", Desc: "Single detail fetch timeout"},
	{Name: "timeout_cycle", Default: "5m", Desc: "Whole collection cycle timeout"},

	// HTTP API
	{Name: "cors_origins", Default: "", Desc: "Comma-separated origins allowed on /api (blank allows any)"},
}

// LoadConfig loads WAFFLE core config and app-specific config.
//
// WAFFLE's config.LoadWithAppConfig handles:
//   - Loading from .env files
//   - Loading from config.yaml/json/toml files
//   - Reading environment variables (WAFFLE_* for core, STRATABOX_* for app)
//   - Parsing command-line flags
//   - Merging with precedence: flags > env > files > defaults
func LoadConfig(logger *zap.Logger) (*config.CoreConfig, AppConfig, error) {
	coreCfg, appValues, err := config.LoadWithAppConfig(logger, EnvVarPrefix, appConfigKeys)
	if err != nil {
		return nil, AppConfig{}, err
	}

	appCfg := AppConfig{
		MongoURI:         appValues.String("mongo_uri"),
		MongoDatabase:    appValues.String("mongo_database"),
		MongoMaxPoolSize: uint64(appValues.Int("mongo_max_pool_size")),
		MongoMinPoolSize: uint64(appValues.Int("mongo_min_pool_size")),

		// Provider
		KobisAPIKey:      strings.TrimSpace(appValues.String("kobis_api_key")),
		KobisAPIURL:      appValues.String("kobis_api_url"),
		ProviderRPS:      appValues.Int("provider_rps"),
		RetryMaxAttempts: appValues.Int("retry_max_attempts"),
		RetryDelay:       appValues.Duration("retry_delay", 500*time.Millisecond),
		BreakerFailures:  appValues.Int("breaker_failures"),
		BreakerOpenFor:   appValues.Duration("breaker_open_for", 60*time.Second),

		// Crawl
		RankingPageURL:     appValues.String("ranking_page_url"),
		RankingTokenFields: splitList(appValues.String("ranking_token_fields")),
		CrawlUserAgent:     appValues.String("crawl_user_agent"),
		CrawlMinRows:       appValues.Int("crawl_min_rows"),

		// Scheduling
		JobsEnabled:     appValues.Bool("jobs_enabled"),
		RankingInterval: appValues.Duration("ranking_interval", 10*time.Minute),
		DailyInterval:   appValues.Duration("daily_interval", 6*time.Hour),
		RunRetention:    appValues.Duration("run_retention", 30*24*time.Hour),

		// Datasets
		HistoryCap:          appValues.Int("history_cap"),
		HistoryTopN:         appValues.Int("history_top_n"),
		TrendWindowDays:     appValues.Int("trend_window_days"),
		BackfillCeilingDays: appValues.Int("backfill_ceiling_days"),
		BackfillWorkers:     appValues.Int("backfill_workers"),
		DetailWorkers:       appValues.Int("detail_workers"),
		Timezone:            appValues.String("timezone"),
		StaleAfter:          appValues.Duration("stale_after", 2*time.Hour),

		// Timeouts
		TimeoutNegotiate: appValues.Duration("timeout_negotiate", 10*time.Second),
		TimeoutTable:     appValues.Duration("timeout_table", 20*time.Second),
		TimeoutLookup:    appValues.Duration("timeout_lookup", 3*time.Second),
		TimeoutDetail:    appValues.Duration("timeout_detail", 5*time.Second),
		TimeoutCycle:     appValues.Duration("timeout_cycle", 5*time.Minute),

		CORSOrigins: splitList(appValues.String("cors_origins")),
	}

	return coreCfg, appCfg, nil
}

// ValidateConfig performs app-specific config validation.
//
// Return nil to accept the loaded config, or an error to abort startup.
// Every problem found is reported, not just the first.
func ValidateConfig(coreCfg *config.CoreConfig, appCfg AppConfig, logger *zap.Logger) error {
	if err := wafflemongo.ValidateURI(appCfg.MongoURI); err != nil {
		logger.Error("invalid MongoDB URI", zap.Error(err))
		return fmt.Errorf("invalid MongoDB URI: %w", err)
	}

	var problems []error
	positive := func(name string, v int) {
		if v <= 0 {
			problems = append(problems, fmt.Errorf("%s must be positive, got %d", name, v))
		}
	}
	positive("history_cap", appCfg.HistoryCap)
	positive("history_top_n", appCfg.HistoryTopN)
	positive("trend_window_days", appCfg.TrendWindowDays)
	positive("backfill_ceiling_days", appCfg.BackfillCeilingDays)
	positive("backfill_workers", appCfg.BackfillWorkers)
	positive("detail_workers", appCfg.DetailWorkers)
	positive("provider_rps", appCfg.ProviderRPS)
	positive("retry_max_attempts", appCfg.RetryMaxAttempts)

	if appCfg.TrendWindowDays > appCfg.BackfillCeilingDays {
		problems = append(problems, fmt.Errorf("trend_window_days (%d) exceeds backfill_ceiling_days (%d)",
			appCfg.TrendWindowDays, appCfg.BackfillCeilingDays))
	}
	if !timezones.Valid(appCfg.Timezone) {
		problems = append(problems, fmt.Errorf("unknown timezone %q", appCfg.Timezone))
	}
	if appCfg.JobsEnabled {
		if appCfg.KobisAPIKey == "" {
			problems = append(problems, errors.New("kobis_api_key is required when jobs_enabled is true"))
		}
		if appCfg.RankingInterval <= 0 || appCfg.DailyInterval <= 0 {
			problems = append(problems, errors.New("ranking_interval and daily_interval must be positive"))
		}
	}

	if err := errors.Join(problems...); err != nil {
		logger.Error("invalid configuration", zap.Error(err))
		return err
	}
	return nil
}

// splitList parses a comma-separated config value, dropping blanks.
func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
