package harvest

import (
	"context"
	"fmt"
	"math/rand/v2"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// DelayPolicy computes the politeness delay each fetch waits before issuing
// its request.
type DelayPolicy struct {
	Base   time.Duration
	Jitter time.Duration
	Limit  int
}

// ForIndex is the per-task initial delay: the task's position modulo the
// concurrency limit scales the base so at most Limit requests are active in
// any rolling window, plus a uniform random jitter.
func (p DelayPolicy) ForIndex(i int) time.Duration {
	limit := p.Limit
	if limit <= 0 {
		limit = 1
	}
	pos := i % limit
	delay := p.Base * time.Duration(pos+1)
	if p.Jitter > 0 {
		delay += time.Duration(rand.Int64N(int64(p.Jitter)))
	}
	return delay
}

// Fetcher turns one card into a Result. Implemented by *FetchWorker;
// abstracted so controller tests can instrument it.
type Fetcher interface {
	Fetch(ctx context.Context, card CardSummary) Result
}

// Dispatcher fans a batch of cards out to at most limit concurrent fetches.
// Dispatch is a join barrier: it returns only when every submitted card has
// an outcome, and a failing sibling never cancels the rest of the batch.
// There are no retries; a failed fetch is a permanently skipped item.
type Dispatcher struct {
	fetcher Fetcher
	limit   int
	delay   DelayPolicy
	logger  *zap.Logger
}

// NewDispatcher builds a Dispatcher. limit must be positive.
func NewDispatcher(fetcher Fetcher, limit int, delay DelayPolicy, logger *zap.Logger) *Dispatcher {
	if limit <= 0 {
		limit = 1
	}
	delay.Limit = limit
	return &Dispatcher{
		fetcher: fetcher,
		limit:   limit,
		delay:   delay,
		logger:  logger,
	}
}

// Dispatch runs the batch and returns exactly one Result per input card.
// Result order matches input order; completion order does not.
func (d *Dispatcher) Dispatch(ctx context.Context, cards []CardSummary) []Result {
	results := make([]Result, len(cards))

	var g errgroup.Group
	g.SetLimit(d.limit)

	for i, card := range cards {
		g.Go(func() error {
			pause(ctx, d.delay.ForIndex(i))
			if err := ctx.Err(); err != nil {
				d.logger.Debug("fetch not started; dispatch canceled", zap.String("url", card.URL))
				results[i] = Result{URL: card.URL, Err: fmt.Errorf("dispatch canceled: %w", err)}
				return nil
			}
			results[i] = d.fetcher.Fetch(ctx, card)
			return nil
		})
	}

	// Fetch outcomes are reported per item, never as a group error.
	_ = g.Wait()
	return results
}
