package harvest

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/chromedp/cdproto/emulation"
	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/chromedp"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// RendererOptions configure either renderer implementation.
type RendererOptions struct {
	UserAgent   string
	NavTimeout  time.Duration
	MaxSessions int
	DomainQPS   float64
}

// ChromedpRenderer renders pages using headless Chrome via chromedp. Its
// sessions are live: clicks mutate the page and later snapshots observe it.
type ChromedpRenderer struct {
	allocatorCancel context.CancelFunc
	browserCtx      context.Context
	browserCancel   context.CancelFunc
	logger          *zap.Logger
	sem             chan struct{}
	timeout         time.Duration
	domainQPS       float64
	domainLimiters  sync.Map
	userAgent       string
}

// NewChromedpRenderer starts a headless browser and warms it up.
func NewChromedpRenderer(opts RendererOptions, logger *zap.Logger) (*ChromedpRenderer, error) {
	if opts.MaxSessions <= 0 {
		opts.MaxSessions = 1
	}
	if opts.NavTimeout <= 0 {
		opts.NavTimeout = 30 * time.Second
	}

	allocOpts := chromedp.DefaultExecAllocatorOptions[:]
	allocOpts = append(allocOpts,
		chromedp.Flag("headless", true),
		chromedp.Flag("disable-gpu", true),
		chromedp.UserAgent(opts.UserAgent),
	)
	allocatorCtx, allocatorCancel := chromedp.NewExecAllocator(context.Background(), allocOpts...)
	browserCtx, browserCancel := chromedp.NewContext(allocatorCtx)
	if err := chromedp.Run(browserCtx); err != nil {
		allocatorCancel()
		browserCancel()
		return nil, fmt.Errorf("chromedp warmup: %w", err)
	}

	return &ChromedpRenderer{
		allocatorCancel: allocatorCancel,
		browserCtx:      browserCtx,
		browserCancel:   browserCancel,
		logger:          logger,
		sem:             make(chan struct{}, opts.MaxSessions),
		timeout:         opts.NavTimeout,
		domainQPS:       opts.DomainQPS,
		userAgent:       opts.UserAgent,
	}, nil
}

// Close tears down the chromedp allocator and browser contexts.
func (r *ChromedpRenderer) Close(context.Context) error {
	if r == nil {
		return nil
	}
	r.browserCancel()
	r.allocatorCancel()
	return nil
}

// Render navigates a new tab to rawURL and returns the live session. The
// renderer slot is held until the session is closed.
func (r *ChromedpRenderer) Render(ctx context.Context, rawURL string) (PageSession, error) {
	release, err := r.acquireSlot(ctx)
	if err != nil {
		return nil, err
	}

	if waitErr := r.waitDomainBudget(ctx, rawURL); waitErr != nil {
		release()
		return nil, fmt.Errorf("render rate limit: %w", waitErr)
	}

	tabCtx, cancelTab := chromedp.NewContext(r.browserCtx)

	meta := newResponseMeta()
	r.recordResponse(tabCtx, meta)

	navCtx, cancelNav := context.WithTimeout(tabCtx, r.timeout)
	defer cancelNav()
	stopForward := forwardCancel(ctx, cancelNav)
	defer stopForward()

	tasks := chromedp.Tasks{
		network.Enable(),
		emulation.SetUserAgentOverride(r.userAgent),
		chromedp.Navigate(rawURL),
		chromedp.WaitReady("body", chromedp.ByQuery),
	}
	if err := chromedp.Run(navCtx, tasks); err != nil {
		cancelTab()
		release()
		return nil, fmt.Errorf("chromedp navigate: %w", err)
	}

	return &chromedpSession{
		tabCtx:  tabCtx,
		cancel:  cancelTab,
		release: release,
		meta:    meta,
		timeout: r.timeout,
		url:     rawURL,
	}, nil
}

func (r *ChromedpRenderer) acquireSlot(ctx context.Context) (func(), error) {
	select {
	case r.sem <- struct{}{}:
		return func() { <-r.sem }, nil
	case <-ctx.Done():
		return nil, fmt.Errorf("acquire render slot: %w", ctx.Err())
	}
}

func (r *ChromedpRenderer) waitDomainBudget(ctx context.Context, rawURL string) error {
	if r.domainQPS <= 0 {
		return nil
	}
	parsed, err := url.Parse(rawURL)
	if err != nil {
		return fmt.Errorf("parse render url: %w", err)
	}
	host := strings.ToLower(parsed.Host)
	val, _ := r.domainLimiters.LoadOrStore(host, rate.NewLimiter(rate.Limit(r.domainQPS), 1))
	limiter, ok := val.(*rate.Limiter)
	if !ok {
		return fmt.Errorf("unexpected limiter type %T", val)
	}
	if err := limiter.Wait(ctx); err != nil {
		return fmt.Errorf("wait limiter: %w", err)
	}
	return nil
}

func (r *ChromedpRenderer) recordResponse(tabCtx context.Context, meta *responseMeta) {
	chromedp.ListenTarget(tabCtx, func(ev interface{}) {
		resp, ok := ev.(*network.EventResponseReceived)
		if !ok || resp.Type != network.ResourceTypeDocument {
			return
		}
		meta.once.Do(func() {
			meta.statusCode = int(resp.Response.Status)
			meta.url = resp.Response.URL
		})
	})
}

type responseMeta struct {
	once       sync.Once
	statusCode int
	url        string
}

func newResponseMeta() *responseMeta {
	return &responseMeta{}
}

func (m *responseMeta) finalURL(raw string) string {
	if m.url == "" {
		return raw
	}
	return m.url
}

// forwardCancel propagates cancellation of parent onto cancel until the
// returned stop function is called.
func forwardCancel(parent context.Context, cancel context.CancelFunc) func() {
	if parent == nil {
		return func() {}
	}
	done := make(chan struct{})
	go func() {
		select {
		case <-parent.Done():
			cancel()
		case <-done:
		}
	}()
	return func() { close(done) }
}

type chromedpSession struct {
	tabCtx  context.Context
	cancel  context.CancelFunc
	release func()
	meta    *responseMeta
	timeout time.Duration
	url     string
	closed  bool
}

func (s *chromedpSession) Status() int { return s.meta.statusCode }

func (s *chromedpSession) Location() string { return s.meta.finalURL(s.url) }

func (s *chromedpSession) Document(ctx context.Context) (*goquery.Document, error) {
	opCtx, cancel := s.opContext(ctx)
	defer cancel()

	var html string
	if err := chromedp.Run(opCtx, chromedp.OuterHTML("html", &html, chromedp.ByQuery)); err != nil {
		return nil, fmt.Errorf("dom snapshot: %w", err)
	}
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return nil, fmt.Errorf("parse dom snapshot: %w", err)
	}
	return doc, nil
}

func (s *chromedpSession) Click(ctx context.Context, selector string) error {
	opCtx, cancel := s.opContext(ctx)
	defer cancel()

	if err := chromedp.Run(opCtx, chromedp.Click(selector, chromedp.ByQuery, chromedp.NodeVisible)); err != nil {
		return fmt.Errorf("click %s: %w", selector, err)
	}
	return nil
}

func (s *chromedpSession) Visible(ctx context.Context, selector string) (bool, error) {
	opCtx, cancel := s.opContext(ctx)
	defer cancel()

	script := fmt.Sprintf(`(function() {
		const el = document.querySelector(%q);
		if (!el || el.disabled) {
			return false;
		}
		const style = window.getComputedStyle(el);
		return style.display !== 'none' && style.visibility !== 'hidden' && el.offsetParent !== null;
	})()`, selector)

	var visible bool
	if err := chromedp.Run(opCtx, chromedp.Evaluate(script, &visible)); err != nil {
		return false, fmt.Errorf("probe %s: %w", selector, err)
	}
	return visible, nil
}

func (s *chromedpSession) Close() {
	if s.closed {
		return
	}
	s.closed = true
	s.cancel()
	s.release()
}

// opContext bounds one DOM operation by the navigation timeout and by the
// caller's context.
func (s *chromedpSession) opContext(ctx context.Context) (context.Context, context.CancelFunc) {
	opCtx, cancel := context.WithTimeout(s.tabCtx, s.timeout)
	stop := forwardCancel(ctx, cancel)
	return opCtx, func() {
		stop()
		cancel()
	}
}
