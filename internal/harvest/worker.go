package harvest

import (
	"context"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"go.uber.org/zap"
)

// Extractor is the site-specific collaborator that turns a rendered detail
// page into raw field strings. The core treats its output as opaque and
// encodes no selector knowledge of its own.
type Extractor interface {
	Extract(doc *goquery.Document) Extraction
}

// FetchWorker renders one detail page, runs the extractor, and normalizes
// the outcome into an ArticleRecord or a typed failure. It is stateless with
// respect to the seen-set and the sink.
type FetchWorker struct {
	renderer  Renderer
	extractor Extractor
	publisher string
	label     int
	logger    *zap.Logger
}

// NewFetchWorker wires the renderer and extractor collaborators.
func NewFetchWorker(renderer Renderer, extractor Extractor, publisher string, label int, logger *zap.Logger) *FetchWorker {
	return &FetchWorker{
		renderer:  renderer,
		extractor: extractor,
		publisher: publisher,
		label:     label,
		logger:    logger,
	}
}

// Fetch produces exactly one Result for the card. All failures are caught
// here, logged as they occur, and converted to a tagged outcome; nothing
// propagates to the dispatcher or the controller.
func (w *FetchWorker) Fetch(ctx context.Context, card CardSummary) Result {
	session, err := w.renderer.Render(ctx, card.URL)
	if err != nil {
		return w.fail(&NavigationError{URL: card.URL, Err: err})
	}
	defer session.Close()

	if status := session.Status(); status >= 400 {
		return w.fail(&NavigationError{URL: card.URL, Status: status})
	}

	doc, err := session.Document(ctx)
	if err != nil {
		return w.fail(&NavigationError{URL: card.URL, Err: err})
	}

	extraction := w.extractor.Extract(doc)
	if !extraction.Exists {
		markerSkips.Inc()
		w.logger.Debug("content marker absent; page skipped", zap.String("url", card.URL))
		return Result{URL: card.URL, Skipped: true}
	}

	record := w.buildRecord(card, extraction)
	return Result{URL: card.URL, Record: &record}
}

func (w *FetchWorker) fail(navErr *NavigationError) Result {
	fetchFailures.Inc()
	w.logger.Warn("detail fetch failed",
		zap.String("url", navErr.URL),
		zap.Error(navErr),
	)
	return Result{URL: navErr.URL, Err: navErr}
}

func (w *FetchWorker) buildRecord(card CardSummary, ex Extraction) ArticleRecord {
	return ArticleRecord{
		ArticleID:   ResolveID(card.URL),
		Publisher:   w.publisher,
		Source:      card.URL,
		Category:    nullable(firstNonEmpty(ex.Category, card.Category)),
		PublishedAt: normalizePublished(firstNonEmpty(ex.PublishedAt, card.Date)),
		Headline:    nullable(firstNonEmpty(ex.Headline, card.Headline)),
		Content:     nullable(ex.Content),
		Label:       w.label,
	}
}

// publishedLayouts are tried in order when normalizing a raw date string.
var publishedLayouts = []string{
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006-01-02",
	"January 2, 2006",
	"Jan 2, 2006",
	"02 Jan 2006",
	"02/01/2006",
	time.RFC1123,
	time.RFC1123Z,
}

// normalizePublished converts a raw timestamp to ISO-8601 UTC when one of
// the known layouts parses, and keeps the raw string otherwise. Empty input
// stays null.
func normalizePublished(raw string) *string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil
	}
	for _, layout := range publishedLayouts {
		if ts, err := time.Parse(layout, raw); err == nil {
			iso := ts.UTC().Format(time.RFC3339)
			return &iso
		}
	}
	return &raw
}

func nullable(s string) *string {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	return &s
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}
