// Package harvest implements the traversal controllers, the bounded
// concurrent fetch pipeline, and the append-only record sink.
package harvest

// ArticleRecord is the unit of output. Nullable fields are pointers so an
// unextractable value (nil) stays distinct from an empty string.
type ArticleRecord struct {
	ArticleID   string  `json:"article_id"`
	Publisher   string  `json:"publisher"`
	Source      string  `json:"source"`
	Category    *string `json:"category"`
	PublishedAt *string `json:"published_at"`
	Headline    *string `json:"headline"`
	Content     *string `json:"content"`
	Label       int     `json:"label"`
}

// CardSummary is a lightweight reference to one content item as seen on a
// listing. URL is always absolute; relative hrefs are resolved against the
// listing's location before a CardSummary is built.
type CardSummary struct {
	URL      string
	Headline string
	Category string
	Date     string
}

// Result is the outcome of one detail fetch. Exactly one of Record, Skipped,
// or Err describes what happened.
type Result struct {
	URL     string
	Record  *ArticleRecord
	Skipped bool
	Err     error
}

// Extraction is the opaque output of the site-specific Extractor. Exists is
// false when the page lacks the expected content marker.
type Extraction struct {
	Headline    string
	PublishedAt string
	Category    string
	Content     string
	Exists      bool
}
