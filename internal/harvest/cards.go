package harvest

import (
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// CardSelectors locate listing items and their fields. Only Card and Link
// are required; the rest are optional pre-extracted hints.
type CardSelectors struct {
	Card     string `mapstructure:"card"`
	Link     string `mapstructure:"link"`
	Headline string `mapstructure:"headline"`
	Category string `mapstructure:"category"`
	Date     string `mapstructure:"date"`
}

// ScanCards extracts CardSummary entries from a listing snapshot. Relative
// hrefs are resolved against base before anything else happens, so that the
// relative and absolute forms of one URL cannot slip past deduplication.
// Duplicates within the snapshot are dropped, keeping the first occurrence.
func ScanCards(doc *goquery.Document, sel CardSelectors, base *url.URL) []CardSummary {
	var cards []CardSummary
	local := make(map[string]struct{})

	doc.Find(sel.Card).Each(func(_ int, card *goquery.Selection) {
		href, ok := cardHref(card, sel.Link)
		if !ok {
			return
		}
		abs := resolveHref(base, href)
		if abs == "" {
			return
		}
		if _, dup := local[abs]; dup {
			return
		}
		local[abs] = struct{}{}

		cards = append(cards, CardSummary{
			URL:      abs,
			Headline: optionalText(card, sel.Headline),
			Category: optionalText(card, sel.Category),
			Date:     optionalText(card, sel.Date),
		})
	})
	return cards
}

func cardHref(card *goquery.Selection, linkSel string) (string, bool) {
	anchor := card
	if linkSel != "" {
		anchor = card.Find(linkSel).First()
	}
	href, exists := anchor.Attr("href")
	href = strings.TrimSpace(href)
	if !exists || href == "" {
		return "", false
	}
	return href, true
}

func resolveHref(base *url.URL, href string) string {
	ref, err := url.Parse(href)
	if err != nil {
		return ""
	}
	if base != nil {
		ref = base.ResolveReference(ref)
	}
	if !ref.IsAbs() {
		return ""
	}
	ref.Fragment = ""
	return ref.String()
}

func optionalText(card *goquery.Selection, selector string) string {
	if selector == "" {
		return ""
	}
	return strings.TrimSpace(card.Find(selector).First().Text())
}
