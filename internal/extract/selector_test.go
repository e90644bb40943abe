package extract

import (
	"strings"
	"testing"

	"github.com/PuerkitoBio/goquery"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/openfactlab/article-harvester/internal/harvest"
)

func docFromHTML(t *testing.T, html string) *goquery.Document {
	t.Helper()
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	require.NoError(t, err)
	return doc
}

func articleConfig() harvest.ExtractConfig {
	return harvest.ExtractConfig{
		Marker:   "div.article-body, div.entry-content",
		Headline: "h1.entry-title, h1",
		Date:     "time.published, span.date",
		Category: "a.category",
		Content:  "div.article-body p, div.entry-content p",
	}
}

func TestExtractFullArticle(t *testing.T) {
	t.Parallel()

	doc := docFromHTML(t, `<html><body>
		<h1 class="entry-title">Budget Approved</h1>
		<time class="published">2026-02-14</time>
		<a class="category">Economy</a>
		<div class="article-body">
			<p>The city council approved the budget.</p>
			<p>Opposition members abstained.</p>
		</div>
	</body></html>`)

	got := New(articleConfig()).Extract(doc)
	assert.True(t, got.Exists)
	assert.Equal(t, "Budget Approved", got.Headline)
	assert.Equal(t, "2026-02-14", got.PublishedAt)
	assert.Equal(t, "Economy", got.Category)
	assert.Equal(t, "The city council approved the budget.\n\nOpposition members abstained.", got.Content)
}

func TestExtractMarkerGate(t *testing.T) {
	t.Parallel()

	// A headline alone is not an article: with no marker match the page is
	// reported as structurally absent and nothing else is read.
	doc := docFromHTML(t, `<html><body><h1>Tag Archive: Economy</h1></body></html>`)
	got := New(articleConfig()).Extract(doc)
	assert.False(t, got.Exists)
	assert.Empty(t, got.Headline)
}

func TestExtractNoMarkerConfigured(t *testing.T) {
	t.Parallel()

	cfg := articleConfig()
	cfg.Marker = ""
	doc := docFromHTML(t, `<html><body><h1>Loose Page</h1></body></html>`)

	got := New(cfg).Extract(doc)
	assert.True(t, got.Exists, "without a marker chain every page counts as present")
	assert.Equal(t, "Loose Page", got.Headline)
}

func TestExtractFallbackChainOrder(t *testing.T) {
	t.Parallel()

	// The first selector matches an element with empty text, so the second
	// in the chain supplies the value.
	doc := docFromHTML(t, `<html><body>
		<div class="entry-content"><p>Body.</p></div>
		<h1 class="entry-title">   </h1>
		<h1>Fallback Headline</h1>
		<span class="date">yesterday</span>
	</body></html>`)

	got := New(articleConfig()).Extract(doc)
	assert.True(t, got.Exists)
	assert.Equal(t, "Fallback Headline", got.Headline)
	assert.Equal(t, "yesterday", got.PublishedAt)
}

func TestExtractFirstTextSkipsEmptyMatches(t *testing.T) {
	t.Parallel()

	// A single selector matching several elements must not stop at an empty
	// first match.
	cfg := articleConfig()
	cfg.Date = "span.date"
	doc := docFromHTML(t, `<html><body>
		<div class="article-body"><p>Body.</p></div>
		<span class="date"></span>
		<span class="date">2026-03-01</span>
	</body></html>`)

	got := New(cfg).Extract(doc)
	assert.Equal(t, "2026-03-01", got.PublishedAt)
}

func TestExtractContentSkipsEmptyBlocks(t *testing.T) {
	t.Parallel()

	doc := docFromHTML(t, `<html><body><div class="article-body">
		<p>First.</p>
		<p>   </p>
		<p>Second.</p>
	</div></body></html>`)

	got := New(articleConfig()).Extract(doc)
	assert.Equal(t, "First.\n\nSecond.", got.Content)
}

func TestExtractMissingOptionalFields(t *testing.T) {
	t.Parallel()

	doc := docFromHTML(t, `<html><body>
		<h1>Untagged Story</h1>
		<div class="article-body"><p>Text.</p></div>
	</body></html>`)

	got := New(articleConfig()).Extract(doc)
	assert.True(t, got.Exists)
	assert.Empty(t, got.Category)
	assert.Empty(t, got.PublishedAt)
	assert.Equal(t, "Text.", got.Content)
}

func TestSplitChain(t *testing.T) {
	t.Parallel()

	assert.Nil(t, splitChain(""))
	assert.Nil(t, splitChain("   "))
	assert.Equal(t, []string{"h1", "h2.alt"}, splitChain(" h1 , h2.alt ,"))
}
