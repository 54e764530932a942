package crawl

import (
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sync"
	"testing"

	"go.uber.org/zap"
)

// fakeSite imitates the ranking page: a GET hands out a session cookie and a
// token, a POST with the matching cookie and token returns the table.
type fakeSite struct {
	mu sync.Mutex

	rowsFixed        int
	rowsExhaustive   int
	tokenMissing     int // number of leading GETs served without a token
	pageStatus       int
	postStatus       int
	exhaustiveStatus int // status for POSTs carrying the harvested form fields

	sessions map[string]string // cookie -> token
	gets     int
	posts    int
	forms    []url.Values
}

func newFakeSite(t *testing.T, rowsFixed, rowsExhaustive int) (*fakeSite, *httptest.Server) {
	t.Helper()
	s := &fakeSite{
		rowsFixed:      rowsFixed,
		rowsExhaustive: rowsExhaustive,
		sessions:       map[string]string{},
	}
	srv := httptest.NewServer(s)
	t.Cleanup(srv.Close)
	return s, srv
}

func (s *fakeSite) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()

	switch r.Method {
	case http.MethodGet:
		s.gets++
		if s.pageStatus != 0 {
			w.WriteHeader(s.pageStatus)
			return
		}
		sid := fmt.Sprintf("sess-%d", s.gets)
		token := fmt.Sprintf("tok-%d", s.gets)
		s.sessions[sid] = token
		http.SetCookie(w, &http.Cookie{Name: "JSESSIONID", Value: sid, Path: "/"})

		tokenInput := fmt.Sprintf(`<input type="hidden" name="CSRFToken" value="%s">`, token)
		if s.gets <= s.tokenMissing {
			tokenInput = ""
		}
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		fmt.Fprintf(w, `<html><body><form id="searchForm" method="post">
%s
<input type="hidden" name="dmlMode" value="list">
<input type="hidden" name="searchType" value="all">
<input type="checkbox" name="repNationCd" value="K" checked>
<input type="checkbox" name="unused" value="x">
<input type="submit" name="go" value="조회">
<select name="sMultiMovieYn"><option value="">전체</option><option value="Y" selected>다양성</option></select>
<select name="area"><option value="0105">서울</option><option value="0106">부산</option></select>
<textarea name="memo">hi</textarea>
</form></body></html>`, tokenInput)

	case http.MethodPost:
		s.posts++
		if s.postStatus != 0 {
			w.WriteHeader(s.postStatus)
			return
		}
		if err := r.ParseForm(); err != nil {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		s.forms = append(s.forms, r.PostForm)

		c, err := r.Cookie("JSESSIONID")
		if err != nil || s.sessions[c.Value] == "" || s.sessions[c.Value] != r.PostForm.Get("CSRFToken") {
			w.WriteHeader(http.StatusForbidden)
			return
		}

		n := s.rowsFixed
		if r.PostForm.Get("searchType") != "" {
			if s.exhaustiveStatus != 0 {
				w.WriteHeader(s.exhaustiveStatus)
				return
			}
			n = s.rowsExhaustive
		}
		rows := make([]string, 0, n)
		for i := 1; i <= n; i++ {
			rows = append(rows, rankingRow(i, fmt.Sprintf("2023%04d", i), fmt.Sprintf("영화 %d", i), "10.0"))
		}
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		fmt.Fprint(w, rankingPage(rows...))
	}
}

func (s *fakeSite) counts() (gets, posts int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.gets, s.posts
}

func testNegotiator(srv *httptest.Server) *Negotiator {
	return NewNegotiator(PageConfig{URL: srv.URL + "/findRealTicketList.do"}, zap.NewNop())
}
