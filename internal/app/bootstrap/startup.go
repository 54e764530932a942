// internal/app/bootstrap/startup.go
package bootstrap

import (
	"context"
	"fmt"
	"time"

	"github.com/dalemusser/stratabox/internal/app/backfill"
	"github.com/dalemusser/stratabox/internal/app/crawl"
	"github.com/dalemusser/stratabox/internal/app/cycle"
	"github.com/dalemusser/stratabox/internal/app/provider/kobis"
	"github.com/dalemusser/stratabox/internal/app/query"
	"github.com/dalemusser/stratabox/internal/app/system/metrics"
	"github.com/dalemusser/stratabox/internal/app/system/retry"
	"github.com/dalemusser/stratabox/internal/app/system/tasks"
	"github.com/dalemusser/stratabox/internal/app/system/timeouts"
	"github.com/dalemusser/stratabox/internal/app/system/timezones"
	"github.com/dalemusser/waffle/config"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.uber.org/zap"
)

const dailyStartDelay = 30 * time.Second

// services holds the components built in Startup and served by BuildHandler.
type services struct {
	metrics *metrics.Registry
	query   *query.Service
	ranking *cycle.Ranking
	daily   *cycle.Daily
}

var (
	// svc is the wired application, built once in Startup.
	svc *services
	// taskRunner is the global task runner instance, used for graceful shutdown.
	taskRunner *tasks.Runner
)

// Startup runs once after DB connections and schema/index setup are complete,
// but before the HTTP handler is built and requests are served.
//
// It wires the provider client, the ranking crawler, both collection cycles
// and the query service, then starts the interval runner when jobs are
// enabled. Returning a non-nil error aborts startup.
func Startup(ctx context.Context, coreCfg *config.CoreConfig, appCfg AppConfig, deps DBDeps, logger *zap.Logger) error {
	timeouts.Configure(timeouts.Config{
		Negotiate: appCfg.TimeoutNegotiate,
		Table:     appCfg.TimeoutTable,
		Lookup:    appCfg.TimeoutLookup,
		Detail:    appCfg.TimeoutDetail,
		Cycle:     appCfg.TimeoutCycle,
	})

	loc, err := timezones.Load(appCfg.Timezone)
	if err != nil {
		return fmt.Errorf("load timezone: %w", err)
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	m := metrics.New(reg)

	svc = buildServices(appCfg, deps, loc, m, logger)

	if appCfg.JobsEnabled {
		if err := startTaskRunner(appCfg, deps, logger); err != nil {
			return err
		}
	} else {
		logger.Info("collection jobs disabled; cycles run only on manual trigger")
	}
	return nil
}

func buildServices(appCfg AppConfig, deps DBDeps, loc *time.Location, m *metrics.Registry, logger *zap.Logger) *services {
	policy := retry.DefaultPolicy()
	if appCfg.RetryMaxAttempts > 0 {
		policy.MaxAttempts = appCfg.RetryMaxAttempts
	}
	if appCfg.RetryDelay > 0 {
		policy.Delay = appCfg.RetryDelay
	}
	breaker := retry.NewBreaker("kobis", uint32(appCfg.BreakerFailures), appCfg.BreakerOpenFor, logger)

	provider := kobis.New(kobis.Config{
		BaseURL:           appCfg.KobisAPIURL,
		APIKey:            appCfg.KobisAPIKey,
		RequestsPerSecond: float64(appCfg.ProviderRPS),
		Retry:             retry.Guarded{Policy: policy, Breaker: breaker},
	}, m, logger.Named("kobis"))

	negotiator := crawl.NewNegotiator(crawl.PageConfig{
		URL:         appCfg.RankingPageURL,
		UserAgent:   appCfg.CrawlUserAgent,
		TokenFields: appCfg.RankingTokenFields,
	}, logger.Named("crawl"))
	fetcher := crawl.NewFetcher(negotiator, crawl.FetcherConfig{MinRows: appCfg.CrawlMinRows}, m, logger.Named("crawl"))

	backfillCfg := backfill.Config{
		Workers:     appCfg.BackfillWorkers,
		CeilingDays: appCfg.BackfillCeilingDays,
	}

	ranking := cycle.NewRanking(fetcher, deps.Rankings, deps.Daily, deps.Runs, cycle.RankingConfig{
		HistoryCap: appCfg.HistoryCap,
		TopN:       appCfg.HistoryTopN,
	}, m, logger.Named("cycle"))

	daily := cycle.NewDaily(provider, provider, deps.Daily, deps.Runs, cycle.DailyConfig{
		WindowDays:    appCfg.TrendWindowDays,
		DetailWorkers: appCfg.DetailWorkers,
		Backfill:      backfillCfg,
		Location:      loc,
	}, m, logger.Named("cycle"))

	coord := backfill.New(provider, backfillCfg, m, logger.Named("backfill"))
	q := query.New(deps.Rankings, deps.Daily, deps.Runs, provider, coord, query.Config{
		StaleAfter: appCfg.StaleAfter,
		WindowDays: appCfg.TrendWindowDays,
		Location:   loc,
	}, logger.Named("query"))

	logger.Info("services wired",
		zap.String("ranking_page", negotiator.PageURL()),
		zap.String("timezone", loc.String()),
		zap.Int("history_cap", appCfg.HistoryCap),
		zap.Int("trend_window_days", appCfg.TrendWindowDays))

	return &services{metrics: m, query: q, ranking: ranking, daily: daily}
}

// startTaskRunner registers the collection cycles and run pruning, then
// starts the runner.
func startTaskRunner(appCfg AppConfig, deps DBDeps, logger *zap.Logger) error {
	taskRunner = tasks.New(logger.Named("tasks"))

	jobs := []tasks.Job{
		tasks.CycleJob(svc.ranking, appCfg.RankingInterval, 0),
		// Staggered so the two cycles do not start on the same tick.
		tasks.CycleJob(svc.daily, appCfg.DailyInterval, dailyStartDelay),
	}
	if appCfg.RunRetention > 0 {
		jobs = append(jobs, tasks.RunRetentionJob(deps.Runs, appCfg.RunRetention, logger))
	}
	for _, job := range jobs {
		if err := taskRunner.Register(job); err != nil {
			return err
		}
	}

	taskRunner.Start()
	return nil
}
