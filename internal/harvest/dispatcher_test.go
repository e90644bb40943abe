package harvest

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// countingFetcher tracks how many fetches are simultaneously active.
type countingFetcher struct {
	active  atomic.Int32
	peak    atomic.Int32
	mu      sync.Mutex
	fetched []string
}

func (f *countingFetcher) Fetch(_ context.Context, card CardSummary) Result {
	cur := f.active.Add(1)
	for {
		peak := f.peak.Load()
		if cur <= peak || f.peak.CompareAndSwap(peak, cur) {
			break
		}
	}
	time.Sleep(10 * time.Millisecond)
	f.active.Add(-1)

	f.mu.Lock()
	f.fetched = append(f.fetched, card.URL)
	f.mu.Unlock()
	return Result{URL: card.URL, Record: &ArticleRecord{Source: card.URL}}
}

func TestDispatchBoundsConcurrency(t *testing.T) {
	t.Parallel()

	fetcher := &countingFetcher{}
	d := NewDispatcher(fetcher, 3, DelayPolicy{}, zap.NewNop())

	cards := make([]CardSummary, 10)
	for i := range cards {
		cards[i] = CardSummary{URL: fmt.Sprintf("https://example.org/post-%d/", i)}
	}

	results := d.Dispatch(context.Background(), cards)

	require.Len(t, results, len(cards), "exactly one outcome per input URL")
	require.LessOrEqual(t, fetcher.peak.Load(), int32(3), "no more than limit workers active at once")
	for i, res := range results {
		require.Equal(t, cards[i].URL, res.URL)
		require.NotNil(t, res.Record)
	}
}

func TestDispatchIsolatesFailures(t *testing.T) {
	t.Parallel()

	boom := errors.New("navigation timeout")
	fetcher := &stubFetcher{fetch: func(card CardSummary) Result {
		if card.URL == "https://example.org/bad/" {
			return Result{URL: card.URL, Err: boom}
		}
		return Result{URL: card.URL, Record: &ArticleRecord{Source: card.URL}}
	}}
	d := NewDispatcher(fetcher, 2, DelayPolicy{}, zap.NewNop())

	cards := []CardSummary{
		{URL: "https://example.org/a/"},
		{URL: "https://example.org/bad/"},
		{URL: "https://example.org/c/"},
	}
	results := d.Dispatch(context.Background(), cards)

	require.Len(t, results, 3)
	require.NoError(t, results[0].Err)
	require.ErrorIs(t, results[1].Err, boom)
	require.NoError(t, results[2].Err, "a failing sibling must not cancel the batch")
}

func TestDispatchCanceledContext(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	fetcher := &stubFetcher{}
	d := NewDispatcher(fetcher, 2, DelayPolicy{Base: time.Minute}, zap.NewNop())

	results := d.Dispatch(ctx, []CardSummary{{URL: "https://example.org/a/"}})
	require.Len(t, results, 1)
	require.ErrorIs(t, results[0].Err, context.Canceled)
	require.Empty(t, fetcher.dispatchedURLs(), "no fetch should start after cancellation")
}

func TestDelayPolicyStagger(t *testing.T) {
	t.Parallel()

	policy := DelayPolicy{Base: 100 * time.Millisecond, Limit: 3}
	require.Equal(t, 100*time.Millisecond, policy.ForIndex(0))
	require.Equal(t, 200*time.Millisecond, policy.ForIndex(1))
	require.Equal(t, 300*time.Millisecond, policy.ForIndex(2))
	require.Equal(t, 100*time.Millisecond, policy.ForIndex(3), "stagger wraps at the concurrency limit")
}

func TestDelayPolicyJitterBound(t *testing.T) {
	t.Parallel()

	policy := DelayPolicy{Base: 10 * time.Millisecond, Jitter: 5 * time.Millisecond, Limit: 4}
	for i := range 50 {
		d := policy.ForIndex(i)
		floor := policy.Base * time.Duration(i%4+1)
		require.GreaterOrEqual(t, d, floor)
		require.Less(t, d, floor+policy.Jitter)
	}
}
