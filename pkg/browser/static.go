package browser

import (
	"bytes"
	"context"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/gocolly/colly/v2"
)

// StaticFactory opens sessions that fetch pages without executing
// JavaScript. Selectors are evaluated against the fetched HTML.
type StaticFactory struct {
	collector *colly.Collector
}

func NewStaticFactory(userAgent string, timeout time.Duration) *StaticFactory {
	if userAgent == "" {
		userAgent = defaultUserAgent
	}
	c := colly.NewCollector(
		colly.UserAgent(userAgent),
		colly.AllowURLRevisit(),
	)
	if timeout > 0 {
		c.SetRequestTimeout(timeout)
	}
	return &StaticFactory{collector: c}
}

func (f *StaticFactory) NewSession(context.Context) (Session, error) {
	return &staticSession{base: f.collector}, nil
}

func (f *StaticFactory) Close() error { return nil }

type staticSession struct {
	base *colly.Collector
	doc  *goquery.Document
	url  *url.URL
}

func (s *staticSession) Navigate(ctx context.Context, pageURL string, headers map[string]string) error {
	c := s.base.Clone()
	c.Context = ctx

	c.OnRequest(func(r *colly.Request) {
		r.Headers.Set("Accept", "text/html,application/xhtml+xml,application/xml;q=0.9,*/*;q=0.8")
		for k, v := range headers {
			r.Headers.Set(k, v)
		}
	})

	var parseErr error
	c.OnResponse(func(r *colly.Response) {
		doc, err := goquery.NewDocumentFromReader(bytes.NewReader(r.Body))
		if err != nil {
			parseErr = err
			return
		}
		s.doc = doc
		s.url = r.Request.URL
	})

	s.doc, s.url = nil, nil
	if err := c.Visit(pageURL); err != nil {
		return fmt.Errorf("fetching %s: %w", pageURL, err)
	}
	if parseErr != nil {
		return fmt.Errorf("parsing %s: %w", pageURL, parseErr)
	}
	if s.doc == nil {
		return fmt.Errorf("fetching %s: empty response", pageURL)
	}
	return nil
}

func (s *staticSession) WaitVisible(ctx context.Context, selector string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if s.doc == nil || s.doc.Find(selector).Length() == 0 {
		return ErrNoMatch
	}
	return nil
}

func (s *staticSession) Text(_ context.Context, selector string) (string, error) {
	if s.doc == nil {
		return "", ErrNoMatch
	}
	text := strings.TrimSpace(s.doc.Find(selector).First().Text())
	if text == "" {
		return "", ErrNoMatch
	}
	return text, nil
}

func (s *staticSession) FirstHref(_ context.Context, selectors []string) (string, error) {
	if s.doc == nil {
		return "", ErrNoMatch
	}
	for _, sel := range selectors {
		href, ok := s.doc.Find(sel).First().Attr("href")
		if !ok || strings.TrimSpace(href) == "" {
			continue
		}
		ref, err := url.Parse(strings.TrimSpace(href))
		if err != nil {
			continue
		}
		return s.url.ResolveReference(ref).String(), nil
	}
	return "", ErrNoMatch
}

func (s *staticSession) Reset(context.Context) error {
	s.doc, s.url = nil, nil
	return nil
}

func (s *staticSession) Close() error { return nil }
