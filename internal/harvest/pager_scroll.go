package harvest

import (
	"context"
	"net/url"
	"time"

	"go.uber.org/zap"
)

// IncrementalLoader drives a single infinite-scroll listing. Content is
// revealed by activating a load-more control; exhaustion is signaled by an
// in-page sentinel, by the control disappearing, or by the round safety cap.
type IncrementalLoader struct {
	startURL     string
	loadMoreSel  string
	sentinelSel  string
	pollInterval time.Duration
	settle       time.Duration
	maxRounds    int
	cards        CardSelectors
	renderer     Renderer
	dispatcher   *Dispatcher
	persist      persister
	seen         *seenSet
	logger       *zap.Logger
}

// NewIncrementalLoader builds the scroll-mode controller.
func NewIncrementalLoader(
	startURL, loadMoreSel, sentinelSel string,
	pollInterval, settle time.Duration,
	maxRounds int,
	cards CardSelectors,
	renderer Renderer,
	dispatcher *Dispatcher,
	sink *RecordSink,
	store DedupStore,
	logger *zap.Logger,
) *IncrementalLoader {
	return &IncrementalLoader{
		startURL:     startURL,
		loadMoreSel:  loadMoreSel,
		sentinelSel:  sentinelSel,
		pollInterval: pollInterval,
		settle:       settle,
		maxRounds:    maxRounds,
		cards:        cards,
		renderer:     renderer,
		dispatcher:   dispatcher,
		persist:      persister{sink: sink, store: store, logger: logger},
		seen:         newSeenSet(),
		logger:       logger,
	}
}

// Run expands the listing until exhaustion and returns the total persisted.
// A transient hiccup on the host must not be mistaken for true exhaustion,
// so list-level errors end the run gracefully: logged as warnings, nil
// error. Only sink failures are returned.
func (l *IncrementalLoader) Run(ctx context.Context) (int, error) {
	session, err := l.renderer.Render(ctx, l.startURL)
	if err != nil {
		l.logger.Warn("start page render failed; ending run",
			zap.String("url", l.startURL),
			zap.Error(err),
		)
		return 0, nil
	}
	defer session.Close()

	if status := session.Status(); status >= 400 {
		l.logger.Warn("start page returned error status; ending run",
			zap.String("url", l.startURL),
			zap.Int("status", status),
		)
		return 0, nil
	}

	total := 0

	// Seeded: whatever cards are already present form the first batch.
	sum, ok, err := l.harvestCurrent(ctx, session)
	total += sum.Persisted
	if err != nil {
		return total, err
	}
	if !ok {
		return total, nil
	}

	rounds, stalls := 0, 0
	for rounds < l.maxRounds && ctx.Err() == nil {
		exhausted, clicked, stop := l.nextExpansion(ctx, session, &stalls)
		if exhausted || stop {
			l.logger.Info("listing exhausted",
				zap.Int("rounds", rounds),
				zap.Int("persisted", total),
			)
			return total, nil
		}
		if !clicked {
			// Stalled on a present but non-interactable control; re-poll
			// without consuming a safety-cap round.
			continue
		}
		rounds++
		listPages.Inc()

		sum, ok, err := l.harvestCurrent(ctx, session)
		total += sum.Persisted
		if err != nil {
			return total, err
		}
		if !ok {
			return total, nil
		}
	}

	if rounds >= l.maxRounds {
		l.logger.Warn("round safety cap reached; treating listing as exhausted",
			zap.Int("rounds", rounds),
		)
	}
	return total, nil
}

// stallLimit bounds consecutive re-polls of a present but non-interactable
// load-more control, so a permanently disabled control cannot spin forever.
// Stalls are tracked separately from rounds: a stalled poll never consumes
// the round safety cap.
const stallLimit = 50

// nextExpansion inspects the sentinel and the load-more control and, when
// possible, activates one expansion. exhausted=true is a true end signal,
// clicked=true means one expansion was activated and a round was consumed,
// and stop=true means a round-level error ends the run early.
func (l *IncrementalLoader) nextExpansion(ctx context.Context, session PageSession, stalls *int) (exhausted, clicked, stop bool) {
	visible, err := session.Visible(ctx, l.sentinelSel)
	if err != nil {
		l.logger.Warn("sentinel probe failed; ending run", zap.Error(err))
		return false, false, true
	}
	if visible {
		return true, false, false
	}

	doc, err := session.Document(ctx)
	if err != nil {
		l.logger.Warn("listing snapshot failed; ending run", zap.Error(err))
		return false, false, true
	}
	if doc.Find(l.loadMoreSel).Length() == 0 {
		// Control gone entirely: the origin has nothing further.
		return true, false, false
	}

	interactable, err := session.Visible(ctx, l.loadMoreSel)
	if err != nil {
		l.logger.Warn("load-more probe failed; ending run", zap.Error(err))
		return false, false, true
	}
	if !interactable {
		// Present but hidden or disabled: re-poll without counting a round.
		*stalls++
		if *stalls > stallLimit {
			l.logger.Warn("load-more control never became interactable; ending run")
			return true, false, false
		}
		pause(ctx, l.pollInterval)
		return false, false, false
	}
	*stalls = 0

	if err := session.Click(ctx, l.loadMoreSel); err != nil {
		l.logger.Warn("load-more click failed; ending run", zap.Error(err))
		return false, false, true
	}

	// Race: sentinel appears, or the settle interval elapses, whichever
	// comes first. The loop top re-checks the sentinel, so the outcome is
	// only needed for pacing here.
	if _, err := waitVisible(ctx, session, l.sentinelSel, l.pollInterval, l.settle); err != nil {
		l.logger.Warn("post-click wait failed; ending run", zap.Error(err))
		return false, false, true
	}
	return false, true, false
}

// harvestCurrent re-scans the full card list, dispatches only the subset not
// yet seen, and persists successes. ok=false ends the run gracefully.
func (l *IncrementalLoader) harvestCurrent(ctx context.Context, session PageSession) (batchSummary, bool, error) {
	doc, err := session.Document(ctx)
	if err != nil {
		l.logger.Warn("listing snapshot failed; ending run", zap.Error(err))
		return batchSummary{}, false, nil
	}

	base, err := url.Parse(session.Location())
	if err != nil {
		base = nil
	}

	fresh := make([]CardSummary, 0)
	for _, card := range ScanCards(doc, l.cards, base) {
		if l.seen.MarkIfNew(card.URL) {
			fresh = append(fresh, card)
		}
	}
	if len(fresh) == 0 {
		return batchSummary{}, true, nil
	}

	results := l.dispatcher.Dispatch(ctx, fresh)
	sum, err := l.persist.persistBatch(results)
	if err != nil {
		return sum, false, err
	}

	l.logger.Info("round complete",
		zap.Int("new_cards", len(fresh)),
		zap.Int("persisted", sum.Persisted),
		zap.Int("failed", sum.Failed),
		zap.Int("skipped", sum.Skipped),
	)
	return sum, true, nil
}
