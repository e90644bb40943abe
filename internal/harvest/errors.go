package harvest

import (
	"errors"
	"fmt"
)

// ErrStaticDOM is returned when an interaction is requested against a
// renderer that only produces static snapshots.
var ErrStaticDOM = errors.New("static renderer cannot interact with the page")

// NavigationError reports a page that could not be rendered within the
// timeout or that returned an error status.
type NavigationError struct {
	URL    string
	Status int
	Err    error
}

func (e *NavigationError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("navigate %s: %v", e.URL, e.Err)
	}
	return fmt.Sprintf("navigate %s: status %d", e.URL, e.Status)
}

func (e *NavigationError) Unwrap() error { return e.Err }

// SinkWriteError reports a failed append. It is always run-fatal: silent
// data loss is worse than an incomplete crawl.
type SinkWriteError struct {
	Path string
	Err  error
}

func (e *SinkWriteError) Error() string {
	return fmt.Sprintf("sink write %s: %v", e.Path, e.Err)
}

func (e *SinkWriteError) Unwrap() error { return e.Err }
