package harvest

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/gocolly/colly/v2"
	"go.uber.org/zap"
)

// HTTPRenderer fetches pages over plain HTTP via Colly. It is the fast path
// for listings and detail pages that do not need JavaScript; its sessions
// are static snapshots and cannot be interacted with.
type HTTPRenderer struct {
	baseCollector *colly.Collector
	logger        *zap.Logger
}

// NewHTTPRenderer constructs a configured Colly-backed renderer.
func NewHTTPRenderer(opts RendererOptions, logger *zap.Logger) (*HTTPRenderer, error) {
	if opts.NavTimeout <= 0 {
		opts.NavTimeout = 30 * time.Second
	}
	if opts.MaxSessions <= 0 {
		opts.MaxSessions = 1
	}

	base := colly.NewCollector(
		colly.Async(true),
		colly.UserAgent(opts.UserAgent),
	)
	base.AllowURLRevisit = true
	base.WithTransport(&http.Transport{
		Proxy:                 http.ProxyFromEnvironment,
		MaxIdleConns:          64,
		MaxIdleConnsPerHost:   16,
		MaxConnsPerHost:       opts.MaxSessions * 2,
		IdleConnTimeout:       30 * time.Second,
		TLSHandshakeTimeout:   10 * time.Second,
		ResponseHeaderTimeout: opts.NavTimeout,
		ForceAttemptHTTP2:     true,
	})
	base.SetRequestTimeout(opts.NavTimeout)

	if err := base.Limit(&colly.LimitRule{
		DomainGlob:  "*",
		Parallelism: opts.MaxSessions,
	}); err != nil {
		return nil, fmt.Errorf("collector limit: %w", err)
	}

	return &HTTPRenderer{baseCollector: base, logger: logger}, nil
}

// Close is a no-op; Colly holds no long-lived resources here.
func (r *HTTPRenderer) Close(context.Context) error { return nil }

// Render fetches rawURL once and returns a static snapshot session.
func (r *HTTPRenderer) Render(ctx context.Context, rawURL string) (PageSession, error) {
	collector := r.baseCollector.Clone()
	resultCh := make(chan httpResult, 1)
	var once sync.Once
	send := func(res httpResult) {
		once.Do(func() { resultCh <- res })
	}

	collector.OnResponse(func(resp *colly.Response) {
		send(httpResult{
			status:   resp.StatusCode,
			body:     append([]byte{}, resp.Body...),
			finalURL: resp.Request.URL.String(),
		})
	})
	collector.OnError(func(resp *colly.Response, err error) {
		if err == nil {
			err = errors.New("unknown colly error")
		}
		status := 0
		finalURL := rawURL
		if resp != nil {
			status = resp.StatusCode
			if resp.Request != nil && resp.Request.URL != nil {
				finalURL = resp.Request.URL.String()
			}
		}
		// An HTTP error status still yields a session so callers can
		// distinguish status errors from transport failures.
		if status >= 400 {
			send(httpResult{status: status, finalURL: finalURL})
			return
		}
		send(httpResult{err: err})
	})

	if err := collector.Visit(rawURL); err != nil {
		return nil, fmt.Errorf("visit %s: %w", rawURL, err)
	}
	collector.Wait()

	select {
	case res := <-resultCh:
		if res.err != nil {
			return nil, res.err
		}
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		return &staticSession{
			status:   res.status,
			body:     res.body,
			finalURL: res.finalURL,
		}, nil
	default:
		return nil, errors.New("colly fetch produced no result")
	}
}

type httpResult struct {
	status   int
	body     []byte
	finalURL string
	err      error
}

// staticSession is an immutable snapshot of one fetched page.
type staticSession struct {
	status   int
	body     []byte
	finalURL string
}

func (s *staticSession) Status() int { return s.status }

func (s *staticSession) Location() string { return s.finalURL }

func (s *staticSession) Document(context.Context) (*goquery.Document, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(s.body))
	if err != nil {
		return nil, fmt.Errorf("parse body: %w", err)
	}
	return doc, nil
}

func (s *staticSession) Click(context.Context, string) error {
	return ErrStaticDOM
}

// Visible degrades to a presence check; a static snapshot cannot observe
// computed styles.
func (s *staticSession) Visible(ctx context.Context, selector string) (bool, error) {
	doc, err := s.Document(ctx)
	if err != nil {
		return false, err
	}
	return doc.Find(selector).Length() > 0, nil
}

func (s *staticSession) Close() {}
