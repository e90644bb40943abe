package harvest

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

const pageTemplate = "https://example.org/news/page/%d/"

// offsetListing builds a renderer that serves cardsPerPage cards for pages
// below emptyPage and an empty listing from emptyPage on.
func offsetListing(cardsPerPage, emptyPage int) *stubRenderer {
	return &stubRenderer{render: func(pageURL string) (PageSession, error) {
		var page int
		if _, err := fmt.Sscanf(pageURL, pageTemplate, &page); err != nil {
			return nil, fmt.Errorf("unexpected list url %s", pageURL)
		}
		var hrefs []string
		if page < emptyPage {
			for i := range cardsPerPage {
				hrefs = append(hrefs, fmt.Sprintf("/post-%d%02d/", page, i))
			}
		}
		return newStubSession(pageURL, listingHTML(hrefs, "")), nil
	}}
}

func newTestSink(t *testing.T) (*RecordSink, string) {
	t.Helper()
	dir := t.TempDir()
	sink, err := OpenSink(dir, "articles", false, zap.NewNop())
	require.NoError(t, err)
	t.Cleanup(func() { sink.Close() })
	return sink, dir
}

func cardSel() CardSelectors {
	return CardSelectors{Card: "article.card", Link: "a"}
}

func TestOffsetPagerStopsOnEmptyPage(t *testing.T) {
	t.Parallel()

	renderer := offsetListing(3, 5)
	fetcher := &stubFetcher{}
	sink, dir := newTestSink(t)

	pager := NewOffsetPager(pageTemplate, 1, 70, false, cardSel(), renderer,
		NewDispatcher(fetcher, 4, DelayPolicy{}, zap.NewNop()), sink, nil, zap.NewNop())

	total, err := pager.Run(context.Background())
	require.NoError(t, err, "running out of cards is a normal completion")
	require.Equal(t, 12, total, "pages 1-4 persist, page 5 stops the run")

	for _, u := range renderer.renderedURLs() {
		require.NotEqual(t, fmt.Sprintf(pageTemplate, 6), u, "page 6 must never be fetched")
	}

	jsonl, readErr := os.ReadFile(filepath.Join(dir, "articles.jsonl"))
	require.NoError(t, readErr)
	require.Len(t, nonEmptyLines(string(jsonl)), 12)
}

func TestOffsetPagerHonorsUpperBound(t *testing.T) {
	t.Parallel()

	renderer := offsetListing(2, 1000)
	fetcher := &stubFetcher{}
	sink, _ := newTestSink(t)

	pager := NewOffsetPager(pageTemplate, 1, 3, false, cardSel(), renderer,
		NewDispatcher(fetcher, 2, DelayPolicy{}, zap.NewNop()), sink, nil, zap.NewNop())

	total, err := pager.Run(context.Background())
	require.NoError(t, err)
	require.Equal(t, 6, total)
	require.Len(t, renderer.renderedURLs(), 3)
}

func TestOffsetPagerStopsOnErrorStatus(t *testing.T) {
	t.Parallel()

	renderer := &stubRenderer{}
	renderer.render = func(pageURL string) (PageSession, error) {
		var page int
		fmt.Sscanf(pageURL, pageTemplate, &page) //nolint:errcheck
		session := newStubSession(pageURL, listingHTML([]string{fmt.Sprintf("/post-%d/", page)}, ""))
		if page == 3 {
			session.status = 500
		}
		return session, nil
	}
	fetcher := &stubFetcher{}
	sink, _ := newTestSink(t)

	pager := NewOffsetPager(pageTemplate, 1, 10, false, cardSel(), renderer,
		NewDispatcher(fetcher, 2, DelayPolicy{}, zap.NewNop()), sink, nil, zap.NewNop())

	total, err := pager.Run(context.Background())
	require.NoError(t, err, "a list-page error stops the run without failing the process")
	require.Equal(t, 2, total)
}

func TestOffsetPagerCrossPageDedup(t *testing.T) {
	t.Parallel()

	// The same article is replicated on every page.
	sameEverywhere := func(string) (PageSession, error) {
		return newStubSession("https://example.org/", listingHTML([]string{"/post-1/"}, "")), nil
	}

	t.Run("enabled", func(t *testing.T) {
		t.Parallel()
		renderer := &stubRenderer{render: sameEverywhere}
		fetcher := &stubFetcher{}
		sink, _ := newTestSink(t)

		pager := NewOffsetPager(pageTemplate, 1, 3, true, cardSel(), renderer,
			NewDispatcher(fetcher, 1, DelayPolicy{}, zap.NewNop()), sink, nil, zap.NewNop())

		total, err := pager.Run(context.Background())
		require.NoError(t, err)
		require.Equal(t, 1, total)
		require.Len(t, fetcher.dispatchedURLs(), 1)
	})

	t.Run("disabled keeps replicated cards", func(t *testing.T) {
		t.Parallel()
		renderer := &stubRenderer{render: sameEverywhere}
		fetcher := &stubFetcher{}
		sink, _ := newTestSink(t)

		pager := NewOffsetPager(pageTemplate, 1, 3, false, cardSel(), renderer,
			NewDispatcher(fetcher, 1, DelayPolicy{}, zap.NewNop()), sink, nil, zap.NewNop())

		total, err := pager.Run(context.Background())
		require.NoError(t, err)
		require.Equal(t, 3, total)
		require.Len(t, fetcher.dispatchedURLs(), 3)
	})
}

func TestOffsetPagerSinkFailureIsFatal(t *testing.T) {
	t.Parallel()

	renderer := offsetListing(2, 1000)
	fetcher := &stubFetcher{}

	dir := t.TempDir()
	sink, err := OpenSink(dir, "articles", false, zap.NewNop())
	require.NoError(t, err)
	require.NoError(t, sink.Close(), "closed sink makes every append fail")

	pager := NewOffsetPager(pageTemplate, 1, 10, false, cardSel(), renderer,
		NewDispatcher(fetcher, 2, DelayPolicy{}, zap.NewNop()), sink, nil, zap.NewNop())

	total, runErr := pager.Run(context.Background())
	require.Error(t, runErr)
	var sinkErr *SinkWriteError
	require.ErrorAs(t, runErr, &sinkErr)
	require.Equal(t, 0, total)
}
