// internal/app/crawl/extract.go
package crawl

import (
	"fmt"
	"io"
	"regexp"
	"strconv"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/dalemusser/stratabox/internal/app/system/htmlsanitize"
	"github.com/dalemusser/stratabox/internal/domain/models"
	"golang.org/x/net/html/charset"
)

// minCells is the number of cells a table row needs to be a ranking row.
const minCells = 8

// Column positions in a ranking row.
const (
	colRank = iota
	colTitle
	colOpenDate
	colShare
	colPeriodSales
	colCumulativeSales
	colPeriodAttendance
	colCumulativeAttendance
)

// codeRef matches the second argument of a call-like inline reference such
// as mstView('movie','20230001'), with any spacing and either quote style.
var codeRef = regexp.MustCompile(`\(\s*['"]?[^,'"()]*['"]?\s*,\s*['"]?\s*(\d+)\s*['"]?\s*[,)]`)

// Extract parses a ranking page and returns one record per ranking row, in
// document order. Rows with fewer than eight cells or without a title are
// skipped. A page that yields no rows returns ErrExtraction.
//
// contentType is the response Content-Type header and is used to decode
// non-UTF-8 pages; it may be empty.
func Extract(r io.Reader, contentType string) ([]models.RankingRecord, error) {
	utf8, err := charset.NewReader(r, contentType)
	if err != nil {
		return nil, fmt.Errorf("%w: decode body: %v", ErrExtraction, err)
	}
	doc, err := goquery.NewDocumentFromReader(utf8)
	if err != nil {
		return nil, fmt.Errorf("%w: parse html: %v", ErrExtraction, err)
	}

	var rows []models.RankingRecord
	doc.Find("tr").Each(func(_ int, tr *goquery.Selection) {
		if rec, ok := extractRow(tr); ok {
			rows = append(rows, rec)
		}
	})

	if len(rows) == 0 {
		return nil, ErrExtraction
	}
	return rows, nil
}

func extractRow(tr *goquery.Selection) (models.RankingRecord, bool) {
	cells := tr.ChildrenFiltered("td")
	if cells.Length() < minCells {
		return models.RankingRecord{}, false
	}
	cell := func(i int) *goquery.Selection { return cells.Eq(i) }

	title := extractTitle(cell(colTitle))
	if title == "" {
		return models.RankingRecord{}, false
	}

	return models.RankingRecord{
		EntityCode:           extractCode(tr),
		DisplayTitle:         title,
		Rank:                 int(parseCount(cell(colRank).Text())),
		OpenDate:             strings.TrimSpace(cell(colOpenDate).Text()),
		ReservationShare:     parseFloat(cell(colShare).Text()),
		PeriodSales:          parseCount(cell(colPeriodSales).Text()),
		CumulativeSales:      parseCount(cell(colCumulativeSales).Text()),
		PeriodAttendance:     parseCount(cell(colPeriodAttendance).Text()),
		CumulativeAttendance: parseCount(cell(colCumulativeAttendance).Text()),
	}, true
}

// extractTitle prefers the link's title attribute, which carries the full
// name when the visible text is truncated.
func extractTitle(td *goquery.Selection) string {
	if a := td.Find("a[title]").First(); a.Length() > 0 {
		if t := htmlsanitize.PlainText(a.AttrOr("title", "")); t != "" {
			return t
		}
	}
	return htmlsanitize.PlainText(td.Text())
}

// extractCode looks for an inline reference on any element of the row.
func extractCode(tr *goquery.Selection) string {
	var code string
	tr.Find("[onclick], [href]").EachWithBreak(func(_ int, s *goquery.Selection) bool {
		for _, attr := range []string{"onclick", "href"} {
			if v, ok := s.Attr(attr); ok {
				if c := CodeFromRef(v); c != "" {
					code = c
					return false
				}
			}
		}
		return true
	})
	return code
}

// CodeFromRef returns the numeric id from a reference like
// mstView('movie','20230001'), or "" when there is none.
func CodeFromRef(ref string) string {
	m := codeRef.FindStringSubmatch(ref)
	if len(m) < 2 {
		return ""
	}
	return m[1]
}

// numeric keeps the characters of a cell that can be part of a number.
func numeric(s string) string {
	var b strings.Builder
	for _, r := range s {
		if (r >= '0' && r <= '9') || r == '.' || r == '-' {
			b.WriteRune(r)
		}
	}
	return b.String()
}

// parseCount parses a cell like "1,234,567" or "12,345원". Unparsable cells are 0.
func parseCount(s string) int64 {
	n := numeric(s)
	if n == "" {
		return 0
	}
	if v, err := strconv.ParseInt(n, 10, 64); err == nil {
		return v
	}
	if f, err := strconv.ParseFloat(n, 64); err == nil {
		return int64(f)
	}
	return 0
}

// parseFloat parses a cell like "35.2%". Unparsable cells are 0.
func parseFloat(s string) float64 {
	n := numeric(s)
	if n == "" {
		return 0
	}
	f, err := strconv.ParseFloat(n, 64)
	if err != nil {
		return 0
	}
	return f
}
