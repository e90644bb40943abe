package harvest

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/PuerkitoBio/goquery"
)

// stubSession serves a mutable HTML snapshot. Click runs the configured
// hook so scroll tests can reveal more cards per activation.
type stubSession struct {
	status   int
	location string

	mu        sync.Mutex
	html      string
	onClick   func(s *stubSession) error
	onVisible func(selector string) (visible, handled bool)
	clicks    int
	closed    bool
}

func newStubSession(location, html string) *stubSession {
	return &stubSession{status: 200, location: location, html: html}
}

func (s *stubSession) Status() int      { return s.status }
func (s *stubSession) Location() string { return s.location }

func (s *stubSession) Document(context.Context) (*goquery.Document, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return goquery.NewDocumentFromReader(strings.NewReader(s.html))
}

func (s *stubSession) Click(context.Context, string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.onClick == nil {
		return ErrStaticDOM
	}
	s.clicks++
	return s.onClick(s)
}

// Visible defaults to a presence check; the onVisible hook lets interaction
// tests simulate a hidden or disabled control.
func (s *stubSession) Visible(ctx context.Context, selector string) (bool, error) {
	s.mu.Lock()
	hook := s.onVisible
	s.mu.Unlock()
	if hook != nil {
		if visible, handled := hook(selector); handled {
			return visible, nil
		}
	}
	doc, err := s.Document(ctx)
	if err != nil {
		return false, err
	}
	return doc.Find(selector).Length() > 0, nil
}

func (s *stubSession) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
}

func (s *stubSession) setHTML(html string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.html = html
}

// stubRenderer resolves sessions through a function, recording every
// rendered URL.
type stubRenderer struct {
	mu       sync.Mutex
	rendered []string
	render   func(url string) (PageSession, error)
}

func (r *stubRenderer) Render(_ context.Context, url string) (PageSession, error) {
	r.mu.Lock()
	r.rendered = append(r.rendered, url)
	r.mu.Unlock()
	return r.render(url)
}

func (r *stubRenderer) Close(context.Context) error { return nil }

func (r *stubRenderer) renderedURLs() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string{}, r.rendered...)
}

// stubFetcher converts every card into a minimal persisted record, tracking
// each dispatched URL.
type stubFetcher struct {
	mu         sync.Mutex
	dispatched []string
	fetch      func(card CardSummary) Result
}

func (f *stubFetcher) Fetch(_ context.Context, card CardSummary) Result {
	f.mu.Lock()
	f.dispatched = append(f.dispatched, card.URL)
	f.mu.Unlock()
	if f.fetch != nil {
		return f.fetch(card)
	}
	return Result{URL: card.URL, Record: &ArticleRecord{
		ArticleID: ResolveID(card.URL),
		Publisher: "testpub",
		Source:    card.URL,
	}}
}

func (f *stubFetcher) dispatchedURLs() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string{}, f.dispatched...)
}

// listingHTML renders a minimal listing document with one anchor card per
// href plus any extra markup.
func listingHTML(hrefs []string, extra string) string {
	var b strings.Builder
	b.WriteString("<html><body><div id=\"list\">")
	for _, href := range hrefs {
		fmt.Fprintf(&b, `<article class="card"><a href=%q>item</a></article>`, href)
	}
	b.WriteString("</div>")
	b.WriteString(extra)
	b.WriteString("</body></html>")
	return b.String()
}
