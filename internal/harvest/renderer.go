package harvest

import (
	"context"
	"time"

	"github.com/PuerkitoBio/goquery"
)

// PageSession is a handle to one rendered page. Sessions from the chromedp
// renderer stay live (clicks mutate the DOM and later Document calls observe
// the change); sessions from the HTTP renderer are static snapshots.
type PageSession interface {
	// Status is the HTTP status of the document response, 0 if unknown.
	Status() int
	// Location is the page's final URL after redirects.
	Location() string
	// Document returns a fresh snapshot of the current DOM.
	Document(ctx context.Context) (*goquery.Document, error)
	// Click activates the first element matching selector.
	Click(ctx context.Context, selector string) error
	// Visible reports whether an element matching selector exists and is
	// interactable (not hidden, not disabled).
	Visible(ctx context.Context, selector string) (bool, error)
	// Close releases the session and any renderer slot it holds.
	Close()
}

// Renderer navigates to a URL and hands back a PageSession.
type Renderer interface {
	Render(ctx context.Context, url string) (PageSession, error)
	Close(ctx context.Context) error
}

// pause sleeps for delay unless the context finishes first.
func pause(ctx context.Context, delay time.Duration) {
	if delay <= 0 {
		return
	}
	timer := time.NewTimer(delay)
	defer timer.Stop()
	select {
	case <-ctx.Done():
	case <-timer.C:
	}
}

// waitVisible races two conditions: selector becomes visible, or the settle
// interval elapses. It polls every poll interval and returns true only in
// the first case. The settle timeout context is canceled on return so the
// losing branch never fires later.
func waitVisible(ctx context.Context, session PageSession, selector string, poll, settle time.Duration) (bool, error) {
	waitCtx, cancel := context.WithTimeout(ctx, settle)
	defer cancel()

	for {
		visible, err := session.Visible(waitCtx, selector)
		if err != nil {
			if waitCtx.Err() != nil {
				return false, nil
			}
			return false, err
		}
		if visible {
			return true, nil
		}
		pause(waitCtx, poll)
		if waitCtx.Err() != nil {
			return false, nil
		}
	}
}
