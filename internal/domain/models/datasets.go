// internal/domain/models/datasets.go
package models

import "time"

// RankingDataset is the persisted state of the ranking cycle: the current
// snapshot plus the per-movie history. It is stored as a singleton document
// and rewritten as a whole at the end of each successful cycle.
type RankingDataset struct {
	Snapshot  RankingSnapshot  `bson:"snapshot" json:"snapshot"`
	History   []SnapshotSeries `bson:"history" json:"history"`
	UpdatedAt *time.Time       `bson:"updated_at,omitempty" json:"updated_at,omitempty"`
}

// DailyDataset is the persisted state of the daily cycle.
type DailyDataset struct {
	Date      string            `bson:"date" json:"date"`
	Records   []DailyStatRecord `bson:"records" json:"records"`
	Trends    []TrendSeries     `bson:"trends" json:"trends"`
	Details   []DetailRecord    `bson:"details" json:"details"`
	UpdatedAt *time.Time        `bson:"updated_at,omitempty" json:"updated_at,omitempty"`
}

// TrendFor returns the stored trend points for code.
func (d DailyDataset) TrendFor(code string) []TrendPoint {
	for _, t := range d.Trends {
		if t.EntityCode == code {
			return t.Points
		}
	}
	return nil
}

// DetailFor returns the cached detail for code.
func (d DailyDataset) DetailFor(code string) (DetailRecord, bool) {
	for _, r := range d.Details {
		if r.EntityCode == code {
			return r, true
		}
	}
	return DetailRecord{}, false
}
