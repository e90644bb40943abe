package harvest

import (
	"context"
	"fmt"
	"net/url"

	"go.uber.org/zap"
)

// OffsetPager walks numbered listing pages. It stops when a page fails to
// render, yields zero cards, or the configured upper bound is exceeded;
// there is no independent "last page" signal.
type OffsetPager struct {
	urlTemplate    string
	startPage      int
	endPage        int
	crossPageDedup bool
	cards          CardSelectors
	renderer       Renderer
	dispatcher     *Dispatcher
	persist        persister
	seen           *seenSet
	logger         *zap.Logger
}

// NewOffsetPager builds the offset-mode controller. The sink, the dedup
// store, and the seen-set are exclusively owned by the returned pager.
func NewOffsetPager(
	urlTemplate string,
	startPage, endPage int,
	crossPageDedup bool,
	cards CardSelectors,
	renderer Renderer,
	dispatcher *Dispatcher,
	sink *RecordSink,
	store DedupStore,
	logger *zap.Logger,
) *OffsetPager {
	return &OffsetPager{
		urlTemplate:    urlTemplate,
		startPage:      startPage,
		endPage:        endPage,
		crossPageDedup: crossPageDedup,
		cards:          cards,
		renderer:       renderer,
		dispatcher:     dispatcher,
		persist:        persister{sink: sink, store: store, logger: logger},
		seen:           newSeenSet(),
		logger:         logger,
	}
}

// Run drives the crawl and returns the total number of records persisted.
// A list-page failure ends the run; it is logged as an error but reaching
// the natural end of the listing is a normal completion.
func (p *OffsetPager) Run(ctx context.Context) (int, error) {
	total := 0
	for page := p.startPage; page <= p.endPage; page++ {
		if ctx.Err() != nil {
			p.logger.Info("run canceled; stopping at page boundary", zap.Int("page", page))
			return total, nil
		}

		cards, err := p.fetchListPage(ctx, page)
		if err != nil {
			p.logger.Error("list page failed; aborting run",
				zap.Int("page", page),
				zap.Error(err),
			)
			return total, nil
		}
		listPages.Inc()

		if len(cards) == 0 {
			p.logger.Info("listing returned no cards; run complete", zap.Int("page", page))
			return total, nil
		}

		if p.crossPageDedup {
			cards = p.filterSeen(cards)
		}

		results := p.dispatcher.Dispatch(ctx, cards)
		sum, err := p.persist.persistBatch(results)
		total += sum.Persisted
		if err != nil {
			return total, err
		}

		p.logger.Info("page complete",
			zap.Int("page", page),
			zap.Int("persisted", sum.Persisted),
			zap.Int("failed", sum.Failed),
			zap.Int("skipped", sum.Skipped),
		)
	}
	p.logger.Info("page bound reached; run complete", zap.Int("persisted", total))
	return total, nil
}

func (p *OffsetPager) fetchListPage(ctx context.Context, page int) ([]CardSummary, error) {
	pageURL := fmt.Sprintf(p.urlTemplate, page)
	session, err := p.renderer.Render(ctx, pageURL)
	if err != nil {
		return nil, &NavigationError{URL: pageURL, Err: err}
	}
	defer session.Close()

	if status := session.Status(); status >= 400 {
		return nil, &NavigationError{URL: pageURL, Status: status}
	}

	doc, err := session.Document(ctx)
	if err != nil {
		return nil, &NavigationError{URL: pageURL, Err: err}
	}

	base, err := url.Parse(session.Location())
	if err != nil {
		base = nil
	}
	return ScanCards(doc, p.cards, base), nil
}

func (p *OffsetPager) filterSeen(cards []CardSummary) []CardSummary {
	fresh := cards[:0]
	for _, card := range cards {
		if p.seen.MarkIfNew(card.URL) {
			fresh = append(fresh, card)
		} else {
			duplicateSkips.Inc()
		}
	}
	return fresh
}
