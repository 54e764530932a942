// internal/domain/models/boxoffice.go
package models

import (
	"time"
)

// DateLayout is the calendar date format used by the statistics provider
// and by every stored date string (YYYYMMDD).
const DateLayout = "20060102"

// FormatDay renders t as a YYYYMMDD date string.
func FormatDay(t time.Time) string {
	return t.Format(DateLayout)
}

// ParseDay parses a YYYYMMDD date string into midnight UTC.
func ParseDay(s string) (time.Time, error) {
	return time.Parse(DateLayout, s)
}

// RankingRecord is one row of the reservation ranking table.
// EntityCode is empty when the row carried no resolvable movie code.
type RankingRecord struct {
	EntityCode           string    `bson:"entity_code,omitempty" json:"entity_code,omitempty"`
	DisplayTitle         string    `bson:"display_title" json:"display_title"`
	Rank                 int       `bson:"rank" json:"rank"`
	ReservationShare     float64   `bson:"reservation_share" json:"reservation_share"`
	PeriodSales          int64     `bson:"period_sales" json:"period_sales"`
	CumulativeSales      int64     `bson:"cumulative_sales" json:"cumulative_sales"`
	PeriodAttendance     int64     `bson:"period_attendance" json:"period_attendance"`
	CumulativeAttendance int64     `bson:"cumulative_attendance" json:"cumulative_attendance"`
	OpenDate             string    `bson:"open_date,omitempty" json:"open_date,omitempty"`
	CapturedAt           time.Time `bson:"captured_at" json:"captured_at"`
}

// RankingSnapshot is the most recent complete ranking table.
type RankingSnapshot struct {
	CapturedAt time.Time       `bson:"captured_at" json:"captured_at"`
	Mode       string          `bson:"mode" json:"mode"`
	Rows       []RankingRecord `bson:"rows" json:"rows"`
}

// IsZero reports whether the snapshot has never been captured.
func (s RankingSnapshot) IsZero() bool {
	return s.CapturedAt.IsZero() && len(s.Rows) == 0
}

// SnapshotSeries is the bounded, append-only ranking history of one movie.
type SnapshotSeries struct {
	Key          string          `bson:"key" json:"key"`
	EntityCode   string          `bson:"entity_code,omitempty" json:"entity_code,omitempty"`
	DisplayTitle string          `bson:"display_title" json:"display_title"`
	Samples      []RankingRecord `bson:"samples" json:"samples"`
}

// DailyStatRecord is one movie's official statistics for one day.
type DailyStatRecord struct {
	EntityCode           string `bson:"entity_code" json:"entity_code"`
	DisplayTitle         string `bson:"display_title" json:"display_title"`
	Date                 string `bson:"date" json:"date"`
	Rank                 int    `bson:"rank" json:"rank"`
	AttendanceCount      int64  `bson:"attendance_count" json:"attendance_count"`
	SalesAmount          int64  `bson:"sales_amount" json:"sales_amount"`
	ScreenCount          int    `bson:"screen_count" json:"screen_count"`
	ShowCount            int    `bson:"show_count" json:"show_count"`
	OpenDate             string `bson:"open_date,omitempty" json:"open_date,omitempty"`
	CumulativeAttendance *int64 `bson:"cumulative_attendance,omitempty" json:"cumulative_attendance,omitempty"`
	CumulativeSales      *int64 `bson:"cumulative_sales,omitempty" json:"cumulative_sales,omitempty"`
}

// TrendPoint is one day in a movie's trend. Dates are unique within a series.
type TrendPoint struct {
	Date            string `bson:"date" json:"date"`
	AttendanceCount int64  `bson:"attendance_count" json:"attendance_count"`
	SalesAmount     int64  `bson:"sales_amount" json:"sales_amount"`
	ScreenCount     int    `bson:"screen_count" json:"screen_count"`
	ShowCount       int    `bson:"show_count" json:"show_count"`
}

// PointFrom builds the trend point carried by a daily record.
func PointFrom(r DailyStatRecord) TrendPoint {
	return TrendPoint{
		Date:            r.Date,
		AttendanceCount: r.AttendanceCount,
		SalesAmount:     r.SalesAmount,
		ScreenCount:     r.ScreenCount,
		ShowCount:       r.ShowCount,
	}
}

// TrendSeries is the stored trend of one movie.
type TrendSeries struct {
	EntityCode string       `bson:"entity_code" json:"entity_code"`
	Points     []TrendPoint `bson:"points" json:"points"`
}

// DetailRecord is cached, opaque enrichment for a movie.
type DetailRecord struct {
	EntityCode string         `bson:"entity_code" json:"entity_code"`
	Attributes map[string]any `bson:"attributes" json:"attributes"`
	FetchedAt  time.Time      `bson:"fetched_at" json:"fetched_at"`
}

// CompositeRecord joins a daily statistic with the matching live ranking row,
// the movie's trend and its cached detail. Ranking and Detail may be nil.
type CompositeRecord struct {
	Daily   DailyStatRecord `json:"daily"`
	Ranking *RankingRecord  `json:"ranking,omitempty"`
	MatchBy string          `json:"match_by,omitempty"`
	Trend   []TrendPoint    `json:"trend,omitempty"`
	Detail  map[string]any  `json:"detail,omitempty"`
}
