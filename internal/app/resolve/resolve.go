// Package resolve matches daily statistics records to live ranking rows.
//
// A record is matched by movie code first, then by exact normalized title,
// then by normalized-title containment in either direction. Rows are scanned
// in source (rank) order and the first hit wins; callers that care about
// ambiguity can inspect Match.Candidates.
package resolve

import (
	"github.com/dalemusser/stratabox/internal/app/system/normalize"
	"github.com/dalemusser/stratabox/internal/domain/models"
)

// By names the rule that produced a match.
type By string

const (
	ByNone  By = ""
	ByCode  By = "code"
	ByTitle By = "title"
	ByFuzzy By = "fuzzy"
)

// Match is the result of a lookup.
type Match struct {
	Row *models.RankingRecord
	By  By
	// Candidates is the number of rows the winning rule matched. Above one
	// means the first row was picked among several.
	Candidates int
}

// Found reports whether a row was matched.
func (m Match) Found() bool { return m.Row != nil }

// Index is a lookup structure over one ranking table. It is read-only after
// construction and safe for concurrent use.
type Index struct {
	rows    []models.RankingRecord
	keys    []string
	byCode  map[string]int
	byTitle map[string][]int
}

// NewIndex builds an index over rows, which must be in source order.
func NewIndex(rows []models.RankingRecord) *Index {
	ix := &Index{
		rows:    rows,
		keys:    make([]string, len(rows)),
		byCode:  make(map[string]int, len(rows)),
		byTitle: make(map[string][]int, len(rows)),
	}
	for i, r := range rows {
		key := normalize.Title(r.DisplayTitle)
		ix.keys[i] = key
		if code := normalize.Code(r.EntityCode); code != "" {
			if _, seen := ix.byCode[code]; !seen {
				ix.byCode[code] = i
			}
		}
		if key != "" {
			ix.byTitle[key] = append(ix.byTitle[key], i)
		}
	}
	return ix
}

// Len returns the number of indexed rows.
func (ix *Index) Len() int { return len(ix.rows) }

// Lookup finds the ranking row for a movie. code may be empty. An empty
// normalized title never matches by title.
func (ix *Index) Lookup(code, title string) Match {
	if code = normalize.Code(code); code != "" {
		if i, ok := ix.byCode[code]; ok {
			return Match{Row: &ix.rows[i], By: ByCode, Candidates: 1}
		}
	}

	key := normalize.Title(title)
	if key == "" {
		return Match{}
	}

	if hits := ix.byTitle[key]; len(hits) > 0 {
		return Match{Row: &ix.rows[hits[0]], By: ByTitle, Candidates: len(hits)}
	}

	first := -1
	count := 0
	for i, k := range ix.keys {
		if normalize.KeysOverlap(key, k) {
			if first < 0 {
				first = i
			}
			count++
		}
	}
	if first < 0 {
		return Match{}
	}
	return Match{Row: &ix.rows[first], By: ByFuzzy, Candidates: count}
}

// Join attaches the matching ranking row to each daily record. Records
// without a match get a nil Ranking. The returned rows are copies.
func Join(daily []models.DailyStatRecord, rows []models.RankingRecord) []models.CompositeRecord {
	ix := NewIndex(rows)
	out := make([]models.CompositeRecord, len(daily))
	for i, d := range daily {
		out[i] = models.CompositeRecord{Daily: d}
		if m := ix.Lookup(d.EntityCode, d.DisplayTitle); m.Found() {
			row := *m.Row
			out[i].Ranking = &row
			out[i].MatchBy = string(m.By)
		}
	}
	return out
}

// FillCodes sets the code of each code-less ranking row whose title names
// exactly one movie in the daily records. Fuzzy matches count only when a
// single movie contains or is contained by the title. It returns the number
// of rows filled.
func FillCodes(rows []models.RankingRecord, daily []models.DailyStatRecord) int {
	movies := make([]models.RankingRecord, 0, len(daily))
	seen := make(map[string]bool, len(daily))
	for _, d := range daily {
		code := normalize.Code(d.EntityCode)
		if code == "" || seen[code] {
			continue
		}
		seen[code] = true
		movies = append(movies, models.RankingRecord{EntityCode: code, DisplayTitle: d.DisplayTitle})
	}
	if len(movies) == 0 {
		return 0
	}

	ix := NewIndex(movies)
	n := 0
	for i := range rows {
		if normalize.Code(rows[i].EntityCode) != "" {
			continue
		}
		m := ix.Lookup("", rows[i].DisplayTitle)
		if !m.Found() || m.Candidates != 1 {
			continue
		}
		rows[i].EntityCode = m.Row.EntityCode
		n++
	}
	return n
}
