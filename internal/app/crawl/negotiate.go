// internal/app/crawl/negotiate.go
package crawl

import (
	"bytes"
	"context"
	"fmt"
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/go-resty/resty/v2"
	"go.uber.org/zap"
)

// Mode selects how the request form is assembled.
type Mode int

const (
	// ModeFixed sends the token plus the known-required fields only.
	ModeFixed Mode = iota + 1
	// ModeExhaustive replays every field discovered on the page, then forces
	// the required overrides.
	ModeExhaustive
)

func (m Mode) String() string {
	switch m {
	case ModeFixed:
		return "fixed"
	case ModeExhaustive:
		return "exhaustive"
	default:
		return "unknown"
	}
}

// Default ranking page settings.
const (
	DefaultPageURL   = "https://www.kobis.or.kr/kobis/business/stat/boxs/findRealTicketList.do"
	DefaultReferer   = "https://www.kobis.or.kr/"
	DefaultUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36"
)

// DefaultTokenFields lists the input names tried, in order, for the token.
var DefaultTokenFields = []string{"CSRFToken"}

// DefaultRequiredFields are always sent with the table request.
func DefaultRequiredFields() map[string]string {
	return map[string]string{
		"dmlMode":    "search",
		"allMovieYn": "Y",
	}
}

// PageConfig describes the ranking page.
type PageConfig struct {
	URL            string
	Referer        string
	UserAgent      string
	TokenFields    []string
	RequiredFields map[string]string
}

func (c PageConfig) withDefaults() PageConfig {
	if c.URL == "" {
		c.URL = DefaultPageURL
	}
	if c.Referer == "" {
		c.Referer = DefaultReferer
	}
	if c.UserAgent == "" {
		c.UserAgent = DefaultUserAgent
	}
	if len(c.TokenFields) == 0 {
		c.TokenFields = DefaultTokenFields
	}
	if c.RequiredFields == nil {
		c.RequiredFields = DefaultRequiredFields()
	}
	return c
}

// Session is the negotiated state for a single fetch attempt: a cookie
// session plus the form to submit. It is never persisted or reused.
type Session struct {
	Token      string
	TokenField string
	Fields     url.Values
	Mode       Mode

	client  *resty.Client
	pageURL string
}

// Negotiator opens sessions against the ranking page.
type Negotiator struct {
	cfg    PageConfig
	logger *zap.Logger
}

// NewNegotiator creates a Negotiator. Zero fields in cfg take defaults.
func NewNegotiator(cfg PageConfig, logger *zap.Logger) *Negotiator {
	return &Negotiator{cfg: cfg.withDefaults(), logger: logger}
}

// PageURL returns the configured ranking page URL.
func (n *Negotiator) PageURL() string { return n.cfg.URL }

// newClient returns a fresh resty client; resty.New installs its own
// cookie jar, so every session starts with no cookies.
func (n *Negotiator) newClient() *resty.Client {
	return resty.New().
		SetHeader("User-Agent", n.cfg.UserAgent).
		SetHeader("Referer", n.cfg.Referer).
		SetHeader("Accept", "text/html,application/xhtml+xml,application/xml;q=0.9,*/*;q=0.8").
		SetHeader("Accept-Language", "ko-KR,ko;q=0.9,en-US;q=0.8,en;q=0.7")
}

// Negotiate reads the page once on a new cookie session, harvests the token,
// and assembles the form for the given mode.
func (n *Negotiator) Negotiate(ctx context.Context, mode Mode) (*Session, error) {
	client := n.newClient()

	resp, err := client.R().SetContext(ctx).Get(n.cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("%w: get page: %v", ErrTransport, err)
	}
	if resp.IsError() {
		return nil, fmt.Errorf("%w: get page: status %d", ErrTransport, resp.StatusCode())
	}

	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(resp.Body()))
	if err != nil {
		return nil, fmt.Errorf("%w: parse page: %v", ErrNegotiation, err)
	}

	field, token, ok := findToken(doc, n.cfg.TokenFields)
	if !ok {
		return nil, fmt.Errorf("%w: no token field among %v", ErrNegotiation, n.cfg.TokenFields)
	}

	var fields url.Values
	switch mode {
	case ModeExhaustive:
		fields = harvestFields(doc)
	default:
		fields = url.Values{}
	}
	for k, v := range n.cfg.RequiredFields {
		fields.Set(k, v)
	}
	fields.Set(field, token)

	n.logger.Debug("ranking session negotiated",
		zap.String("mode", mode.String()),
		zap.String("token_field", field),
		zap.Int("fields", len(fields)))

	return &Session{
		Token:      token,
		TokenField: field,
		Fields:     fields,
		Mode:       mode,
		client:     client,
		pageURL:    n.cfg.URL,
	}, nil
}

// Submit posts the session's form on the session's cookies.
func (s *Session) Submit(ctx context.Context) (*resty.Response, error) {
	resp, err := s.client.R().
		SetContext(ctx).
		SetFormDataFromValues(s.Fields).
		Post(s.pageURL)
	if err != nil {
		return nil, fmt.Errorf("%w: post form: %v", ErrTransport, err)
	}
	if resp.IsError() {
		return resp, fmt.Errorf("%w: post form: status %d", ErrTransport, resp.StatusCode())
	}
	return resp, nil
}

// findToken returns the first candidate input that carries a non-empty value.
func findToken(doc *goquery.Document, candidates []string) (field, token string, ok bool) {
	for _, name := range candidates {
		sel := doc.Find(fmt.Sprintf("input[name=%q]", name)).First()
		if sel.Length() == 0 {
			continue
		}
		if v := strings.TrimSpace(sel.AttrOr("value", "")); v != "" {
			return name, v, true
		}
	}
	return "", "", false
}

// harvestFields collects the value of every named form control on the page:
// inputs (skipping buttons and unchecked boxes), selects (selected option,
// else the first option) and textareas.
func harvestFields(doc *goquery.Document) url.Values {
	fields := url.Values{}

	doc.Find("input[name]").Each(func(_ int, s *goquery.Selection) {
		name := s.AttrOr("name", "")
		switch strings.ToLower(s.AttrOr("type", "text")) {
		case "submit", "button", "image", "reset", "file":
			return
		case "checkbox", "radio":
			if _, checked := s.Attr("checked"); !checked {
				return
			}
		}
		fields.Add(name, s.AttrOr("value", ""))
	})

	doc.Find("select[name]").Each(func(_ int, s *goquery.Selection) {
		opt := s.Find("option[selected]").First()
		if opt.Length() == 0 {
			opt = s.Find("option").First()
		}
		if opt.Length() == 0 {
			return
		}
		val, ok := opt.Attr("value")
		if !ok {
			val = strings.TrimSpace(opt.Text())
		}
		fields.Set(s.AttrOr("name", ""), val)
	})

	doc.Find("textarea[name]").Each(func(_ int, s *goquery.Selection) {
		fields.Set(s.AttrOr("name", ""), s.Text())
	})

	return fields
}
