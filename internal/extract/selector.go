// Package extract implements the selector-driven field extractor that turns
// a rendered detail page into raw headline/date/body strings. All site
// knowledge lives in the configured selector chains; the harvest core treats
// the output as opaque.
package extract

import (
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/openfactlab/article-harvester/internal/harvest"
)

// SelectorExtractor resolves each field through a fallback chain of CSS
// selectors: the first selector whose match yields non-empty text wins.
type SelectorExtractor struct {
	marker   []string
	headline []string
	date     []string
	category []string
	content  []string
}

// New builds an extractor from comma-separated selector chains.
func New(cfg harvest.ExtractConfig) *SelectorExtractor {
	return &SelectorExtractor{
		marker:   splitChain(cfg.Marker),
		headline: splitChain(cfg.Headline),
		date:     splitChain(cfg.Date),
		category: splitChain(cfg.Category),
		content:  splitChain(cfg.Content),
	}
}

// Extract pulls the raw field strings out of the document. Exists is false
// when a marker chain is configured and nothing matches it, meaning the page
// lacks the expected content structure and should be skipped.
func (e *SelectorExtractor) Extract(doc *goquery.Document) harvest.Extraction {
	if len(e.marker) > 0 && !anyMatch(doc, e.marker) {
		return harvest.Extraction{Exists: false}
	}
	return harvest.Extraction{
		Headline:    firstText(doc, e.headline),
		PublishedAt: firstText(doc, e.date),
		Category:    firstText(doc, e.category),
		Content:     e.contentText(doc),
		Exists:      true,
	}
}

// contentText concatenates every node matched by the winning content
// selector, separating blocks with blank lines. Paragraph structure is kept
// here; the sink decides how each output format treats the line breaks.
func (e *SelectorExtractor) contentText(doc *goquery.Document) string {
	for _, selector := range e.content {
		sel := doc.Find(selector)
		if sel.Length() == 0 {
			continue
		}
		var blocks []string
		sel.Each(func(_ int, s *goquery.Selection) {
			if text := strings.TrimSpace(s.Text()); text != "" {
				blocks = append(blocks, text)
			}
		})
		if len(blocks) > 0 {
			return strings.Join(blocks, "\n\n")
		}
	}
	return ""
}

func splitChain(raw string) []string {
	if strings.TrimSpace(raw) == "" {
		return nil
	}
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}

func anyMatch(doc *goquery.Document, chain []string) bool {
	for _, selector := range chain {
		if doc.Find(selector).Length() > 0 {
			return true
		}
	}
	return false
}

// firstText returns the first non-empty trimmed text across the chain. Every
// element matched by a selector is inspected, so an empty first match falls
// through to the next element rather than poisoning the whole selector.
func firstText(doc *goquery.Document, chain []string) string {
	for _, selector := range chain {
		var text string
		doc.Find(selector).EachWithBreak(func(_ int, s *goquery.Selection) bool {
			if t := strings.TrimSpace(s.Text()); t != "" {
				text = t
				return false
			}
			return true
		})
		if text != "" {
			return text
		}
	}
	return ""
}
