// Package kobis implements the provider contracts against the KOBIS open API
// (daily box office list and movie info).
package kobis

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/dalemusser/stratabox/internal/app/provider"
	"github.com/dalemusser/stratabox/internal/app/system/htmlsanitize"
	"github.com/dalemusser/stratabox/internal/app/system/metrics"
	"github.com/dalemusser/stratabox/internal/app/system/retry"
	"github.com/dalemusser/stratabox/internal/domain/models"
	"github.com/go-resty/resty/v2"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

const (
	// DefaultBaseURL is the root of the KOBIS REST web service.
	DefaultBaseURL = "https://www.kobis.or.kr/kobisopenapi/webservice/rest"

	dailyPath  = "/boxoffice/searchDailyBoxOfficeList.json"
	detailPath = "/movie/searchMovieInfo.json"

	endpointDaily  = "daily"
	endpointDetail = "detail"
)

// ErrMissingKey is returned when no API key is configured.
var ErrMissingKey = errors.New("kobis: api key not configured")

// Config configures the client. Zero values fall back to defaults.
type Config struct {
	BaseURL           string
	APIKey            string
	UserAgent         string
	RequestsPerSecond float64
	Retry             retry.Guarded
}

// Client is a KOBIS API client. It is safe for concurrent use.
type Client struct {
	cfg     Config
	http    *resty.Client
	limiter *rate.Limiter
	metrics *metrics.Registry
	logger  *zap.Logger
}

var (
	_ provider.DailyProvider  = (*Client)(nil)
	_ provider.DetailProvider = (*Client)(nil)
)

// New creates a client.
func New(cfg Config, m *metrics.Registry, logger *zap.Logger) *Client {
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	if cfg.RequestsPerSecond <= 0 {
		cfg.RequestsPerSecond = 5
	}
	if cfg.Retry.Policy.MaxAttempts == 0 {
		cfg.Retry.Policy = retry.DefaultPolicy()
	}

	hc := resty.New().
		SetBaseURL(strings.TrimRight(cfg.BaseURL, "/")).
		SetHeader("Accept", "application/json")
	if cfg.UserAgent != "" {
		hc.SetHeader("User-Agent", cfg.UserAgent)
	}

	burst := int(cfg.RequestsPerSecond)
	if burst < 1 {
		burst = 1
	}

	return &Client{
		cfg:     cfg,
		http:    hc,
		limiter: rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), burst),
		metrics: m,
		logger:  logger,
	}
}

type fault struct {
	Message   string `json:"message"`
	ErrorCode string `json:"errorCode"`
}

type dailyEntry struct {
	Rank     string `json:"rank"`
	MovieCd  string `json:"movieCd"`
	MovieNm  string `json:"movieNm"`
	OpenDt   string `json:"openDt"`
	SalesAmt string `json:"salesAmt"`
	SalesAcc string `json:"salesAcc"`
	AudiCnt  string `json:"audiCnt"`
	AudiAcc  string `json:"audiAcc"`
	ScrnCnt  string `json:"scrnCnt"`
	ShowCnt  string `json:"showCnt"`
}

type dailyResponse struct {
	BoxOfficeResult struct {
		ShowRange          string       `json:"showRange"`
		DailyBoxOfficeList []dailyEntry `json:"dailyBoxOfficeList"`
	} `json:"boxOfficeResult"`
	FaultInfo *fault `json:"faultInfo"`
}

type detailResponse struct {
	MovieInfoResult struct {
		MovieInfo map[string]any `json:"movieInfo"`
	} `json:"movieInfoResult"`
	FaultInfo *fault `json:"faultInfo"`
}

// DailyList returns the daily box office list for day.
func (c *Client) DailyList(ctx context.Context, day time.Time) ([]models.DailyStatRecord, error) {
	date := models.FormatDay(day)
	var out dailyResponse
	if err := c.get(ctx, endpointDaily, dailyPath, map[string]string{"targetDt": date}, &out, func() *fault { return out.FaultInfo }); err != nil {
		return nil, fmt.Errorf("kobis daily list %s: %w", date, err)
	}

	list := make([]models.DailyStatRecord, 0, len(out.BoxOfficeResult.DailyBoxOfficeList))
	for _, e := range out.BoxOfficeResult.DailyBoxOfficeList {
		rec := models.DailyStatRecord{
			EntityCode:      strings.TrimSpace(e.MovieCd),
			DisplayTitle:    htmlsanitize.PlainText(e.MovieNm),
			Date:            date,
			Rank:            int(toInt(e.Rank)),
			AttendanceCount: toInt(e.AudiCnt),
			SalesAmount:     toInt(e.SalesAmt),
			ScreenCount:     int(toInt(e.ScrnCnt)),
			ShowCount:       int(toInt(e.ShowCnt)),
			OpenDate:        strings.ReplaceAll(strings.TrimSpace(e.OpenDt), "-", ""),
		}
		rec.CumulativeAttendance = optInt(e.AudiAcc)
		rec.CumulativeSales = optInt(e.SalesAcc)
		if rec.EntityCode == "" {
			continue
		}
		list = append(list, rec)
	}
	return list, nil
}

// Detail returns the movie info attributes for code, or provider.ErrLookupMiss
// when KOBIS knows nothing about it.
func (c *Client) Detail(ctx context.Context, code string) (map[string]any, error) {
	var out detailResponse
	if err := c.get(ctx, endpointDetail, detailPath, map[string]string{"movieCd": code}, &out, func() *fault { return out.FaultInfo }); err != nil {
		return nil, fmt.Errorf("kobis movie info %s: %w", code, err)
	}
	if len(out.MovieInfoResult.MovieInfo) == 0 {
		return nil, provider.ErrLookupMiss
	}
	return out.MovieInfoResult.MovieInfo, nil
}

// get performs one paced, retried, breaker-guarded GET and decodes the JSON
// body into out. faultOf reports an API-level fault after decoding.
func (c *Client) get(ctx context.Context, endpoint, path string, params map[string]string, out any, faultOf func() *fault) error {
	if c.cfg.APIKey == "" {
		return ErrMissingKey
	}

	start := time.Now()
	err := c.cfg.Retry.Do(ctx, func(ctx context.Context) error {
		if err := c.limiter.Wait(ctx); err != nil {
			return retry.Permanent(err)
		}

		resp, err := c.http.R().
			SetContext(ctx).
			SetQueryParam("key", c.cfg.APIKey).
			SetQueryParams(params).
			ForceContentType("application/json").
			SetResult(out).
			Get(path)
		if err != nil {
			if ctx.Err() != nil {
				return retry.Permanent(ctx.Err())
			}
			return err
		}

		code := resp.StatusCode()
		switch {
		case code == 429 || code >= 500:
			return fmt.Errorf("status %d", code)
		case code >= 400:
			return retry.Permanent(fmt.Errorf("status %d", code))
		}
		if f := faultOf(); f != nil {
			return retry.Permanent(fmt.Errorf("fault %s: %s", f.ErrorCode, f.Message))
		}
		return nil
	})

	outcome := "ok"
	if err != nil {
		outcome = "error"
		c.logger.Warn("kobis request failed",
			zap.String("endpoint", endpoint),
			zap.Any("params", params),
			zap.Error(err))
	}
	c.metrics.ObserveProvider(endpoint, outcome, time.Since(start))
	return err
}

func toInt(s string) int64 {
	n, _ := strconv.ParseInt(strings.ReplaceAll(strings.TrimSpace(s), ",", ""), 10, 64)
	return n
}

func optInt(s string) *int64 {
	s = strings.ReplaceAll(strings.TrimSpace(s), ",", "")
	if s == "" {
		return nil
	}
	n, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return nil
	}
	return &n
}
