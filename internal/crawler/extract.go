package crawler

import (
	"bytes"
	"encoding/json"
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// extractLinks returns the normalized absolute URLs of all anchors in the
// document, resolved against the page URL. Unparseable hrefs are skipped.
func extractLinks(body []byte, pageURL string) []string {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return nil
	}
	base, err := url.Parse(pageURL)
	if err != nil {
		return nil
	}

	var links []string
	seen := make(map[string]struct{})
	doc.Find("a[href]").Each(func(_ int, sel *goquery.Selection) {
		href, ok := sel.Attr("href")
		if !ok {
			return
		}
		href = strings.TrimSpace(href)
		if href == "" || strings.HasPrefix(href, "#") ||
			strings.HasPrefix(href, "mailto:") || strings.HasPrefix(href, "tel:") ||
			strings.HasPrefix(href, "javascript:") {
			return
		}
		ref, err := url.Parse(href)
		if err != nil {
			return
		}
		normalized, err := NormalizeURL(base.ResolveReference(ref).String())
		if err != nil {
			return
		}
		if _, dup := seen[normalized]; dup {
			return
		}
		seen[normalized] = struct{}{}
		links = append(links, normalized)
	})
	return links
}

// extractJSONLD collects the parseable JSON-LD blocks of a page. Sites ship
// malformed blocks routinely, so each block is decoded independently and bad
// ones are dropped instead of failing the page.
func extractJSONLD(body []byte) []json.RawMessage {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return nil
	}

	var blocks []json.RawMessage
	doc.Find(`script[type="application/ld+json"]`).Each(func(_ int, sel *goquery.Selection) {
		text := strings.TrimSpace(sel.Text())
		if text == "" {
			return
		}
		var probe any
		if err := json.Unmarshal([]byte(text), &probe); err != nil {
			return
		}
		// A top-level array holds independent entities; flatten it.
		if items, ok := probe.([]any); ok {
			for _, item := range items {
				if raw, err := json.Marshal(item); err == nil {
					blocks = append(blocks, raw)
				}
			}
			return
		}
		blocks = append(blocks, json.RawMessage(text))
	})
	return blocks
}

// mergeStructData renders the collected JSON-LD entities of a run as a single
// JSON array, or nil when nothing was found.
func mergeStructData(blocks []json.RawMessage) json.RawMessage {
	if len(blocks) == 0 {
		return nil
	}
	merged, err := json.Marshal(blocks)
	if err != nil {
		return nil
	}
	return merged
}
