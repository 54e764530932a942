// Package history keeps per-movie ranking time series.
//
// A Book is loaded from storage at the start of a cycle, updated in memory,
// and written back at the end. Consecutive samples with identical values are
// collapsed: the stored sample's timestamp moves forward instead of a
// duplicate being appended.
package history

import (
	"sort"

	"github.com/dalemusser/stratabox/internal/app/system/normalize"
	"github.com/dalemusser/stratabox/internal/domain/models"
)

// DefaultCap is the default number of samples kept per series.
const DefaultCap = 100

// Outcome reports what Record did with a sample.
type Outcome int

const (
	// Skipped means the sample had neither a code nor a usable title.
	Skipped Outcome = iota
	// Appended means a new sample was added.
	Appended
	// Refreshed means the sample matched the last one and only its
	// timestamp was updated.
	Refreshed
)

// KeyFor returns the series key for a movie: its code when known, else its
// normalized title. It returns "" when neither is usable.
func KeyFor(code, title string) string {
	if c := normalize.Code(code); c != "" {
		return "code:" + c
	}
	if t := normalize.Title(title); t != "" {
		return "title:" + t
	}
	return ""
}

// SameValues reports whether two samples carry the same tracked values
// (rank, reservation share and period attendance).
func SameValues(a, b models.RankingRecord) bool {
	return a.Rank == b.Rank &&
		a.ReservationShare == b.ReservationShare &&
		a.PeriodAttendance == b.PeriodAttendance
}

// Book is the set of series for all tracked movies. It is not safe for
// concurrent use; a cycle owns its Book exclusively.
type Book struct {
	limit  int
	series map[string]*models.SnapshotSeries
	// aliases maps a normalized title to the code key it was last seen with.
	aliases map[string]string
}

// NewBook builds a Book from stored series. limit <= 0 uses DefaultCap.
// Stored series longer than limit are trimmed.
func NewBook(limit int, stored []models.SnapshotSeries) *Book {
	if limit <= 0 {
		limit = DefaultCap
	}
	b := &Book{
		limit:   limit,
		series:  make(map[string]*models.SnapshotSeries, len(stored)),
		aliases: make(map[string]string),
	}
	for _, s := range stored {
		if s.Key == "" {
			continue
		}
		cp := s
		cp.Samples = append([]models.RankingRecord(nil), s.Samples...)
		cp.Samples = trim(cp.Samples, limit)
		b.series[cp.Key] = &cp
	}
	for key, s := range b.series {
		if s.EntityCode != "" {
			b.alias(s.DisplayTitle, key)
		}
	}
	for title, key := range b.aliases {
		b.migrate("title:"+title, key)
	}
	return b
}

func (b *Book) alias(title, key string) {
	if t := normalize.Title(title); t != "" {
		b.aliases[t] = key
	}
}

// keyOf returns the series key for rec. A sample without a code goes to
// the code series its title was last seen under.
func (b *Book) keyOf(rec models.RankingRecord) string {
	if normalize.Code(rec.EntityCode) == "" {
		if key, ok := b.aliases[normalize.Title(rec.DisplayTitle)]; ok {
			return key
		}
	}
	return KeyFor(rec.EntityCode, rec.DisplayTitle)
}

// Len returns the number of series.
func (b *Book) Len() int { return len(b.series) }

// Record adds one sample to its movie's series.
//
// A code, once seen with a title, is authoritative: later samples with the
// same normalized title and no code join the code series. When the sample
// has a code and a series still keyed by its title exists, that series is
// first folded into the code-keyed one.
func (b *Book) Record(rec models.RankingRecord) Outcome {
	key := b.keyOf(rec)
	if key == "" {
		return Skipped
	}
	if normalize.Code(rec.EntityCode) != "" {
		b.alias(rec.DisplayTitle, key)
		b.migrate(KeyFor("", rec.DisplayTitle), key)
	}

	s, ok := b.series[key]
	if !ok {
		s = &models.SnapshotSeries{Key: key}
		b.series[key] = s
	}
	s.DisplayTitle = rec.DisplayTitle
	if c := normalize.Code(rec.EntityCode); c != "" {
		s.EntityCode = c
	}
	if rec.EntityCode == "" {
		rec.EntityCode = s.EntityCode
	}

	if n := len(s.Samples); n > 0 && SameValues(s.Samples[n-1], rec) {
		s.Samples[n-1].CapturedAt = rec.CapturedAt
		return Refreshed
	}
	s.Samples = trim(append(s.Samples, rec), b.limit)
	return Appended
}

// migrate folds the series at from into the series at to, ordering the
// combined samples by capture time.
func (b *Book) migrate(from, to string) {
	if from == "" || from == to {
		return
	}
	old, ok := b.series[from]
	if !ok {
		return
	}
	delete(b.series, from)

	cur, ok := b.series[to]
	if !ok {
		old.Key = to
		b.series[to] = old
		return
	}
	merged := append(append([]models.RankingRecord(nil), old.Samples...), cur.Samples...)
	sort.SliceStable(merged, func(i, j int) bool {
		return merged[i].CapturedAt.Before(merged[j].CapturedAt)
	})
	cur.Samples = trim(merged, b.limit)
}

// Get returns the series for a movie, looked up by code first and then by
// normalized title, which may resolve to a code series.
func (b *Book) Get(code, title string) (models.SnapshotSeries, bool) {
	for _, key := range []string{KeyFor(code, ""), b.aliases[normalize.Title(title)], KeyFor("", title)} {
		if key == "" {
			continue
		}
		if s, ok := b.series[key]; ok {
			return copySeries(s), true
		}
	}
	return models.SnapshotSeries{}, false
}

// Series returns copies of all series ordered by key.
func (b *Book) Series() []models.SnapshotSeries {
	keys := make([]string, 0, len(b.series))
	for k := range b.series {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	out := make([]models.SnapshotSeries, 0, len(keys))
	for _, k := range keys {
		out = append(out, copySeries(b.series[k]))
	}
	return out
}

func copySeries(s *models.SnapshotSeries) models.SnapshotSeries {
	cp := *s
	cp.Samples = append([]models.RankingRecord(nil), s.Samples...)
	return cp
}

// trim drops the oldest samples so at most limit remain.
func trim(samples []models.RankingRecord, limit int) []models.RankingRecord {
	if len(samples) <= limit {
		return samples
	}
	return append([]models.RankingRecord(nil), samples[len(samples)-limit:]...)
}
