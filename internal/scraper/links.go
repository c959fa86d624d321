package scraper

import (
	"net/url"
	"path"
	"strings"
	"unicode/utf8"

	"github.com/PuerkitoBio/goquery"
)

// MinLinkDepth is the number of path segments a detail URL needs; shallower
// paths are category or city roots.
const MinLinkDepth = 2

const minCardTitle = 5

var assetExtensions = map[string]struct{}{
	".jpg": {}, ".jpeg": {}, ".png": {}, ".gif": {}, ".webp": {}, ".svg": {}, ".ico": {},
	".css": {}, ".js": {}, ".pdf": {}, ".mp4": {}, ".woff": {}, ".woff2": {}, ".xml": {},
}

// LinkStrategy yields raw candidate hrefs from a listing page.
type LinkStrategy interface {
	Links(doc *goquery.Document) []string
}

// SelectorLinks collects href attributes of the anchors matched by each selector.
// A selector matching a non-anchor element uses the first anchor inside it.
type SelectorLinks []string

func (s SelectorLinks) Links(doc *goquery.Document) []string {
	var out []string
	for _, sel := range s {
		doc.Find(sel).Each(func(_ int, node *goquery.Selection) {
			a := node
			if goquery.NodeName(node) != "a" {
				a = node.Find("a[href]").First()
			}
			if href, ok := a.Attr("href"); ok {
				out = append(out, href)
			}
		})
	}
	return out
}

// ImageAnchorLinks is the catch-all heuristic: any anchor wrapping an image
// whose title text is long enough to look like an ad card.
type ImageAnchorLinks struct{}

func (ImageAnchorLinks) Links(doc *goquery.Document) []string {
	var out []string
	doc.Find("a[href]").Each(func(_ int, a *goquery.Selection) {
		img := a.Find("img").First()
		if img.Length() == 0 {
			return
		}
		title := strings.TrimSpace(a.Text())
		if title == "" {
			title, _ = a.Attr("title")
		}
		if title == "" {
			title, _ = img.Attr("alt")
		}
		if utf8.RuneCountInString(strings.TrimSpace(title)) <= minCardTitle {
			return
		}
		href, _ := a.Attr("href")
		out = append(out, href)
	})
	return out
}

// discoverLinks runs the strategies in order and keeps the first that yields
// any usable link.
func discoverLinks(doc *goquery.Document, base *url.URL, strategies []LinkStrategy) []string {
	for _, s := range strategies {
		if links := FilterLinks(base, s.Links(doc)); len(links) > 0 {
			return links
		}
	}
	return nil
}

// FilterLinks resolves hrefs against base and keeps unique same-host detail
// URLs, in first-seen order.
func FilterLinks(base *url.URL, hrefs []string) []string {
	seen := make(map[string]struct{}, len(hrefs))
	var out []string
	for _, href := range hrefs {
		href = strings.TrimSpace(href)
		if href == "" || strings.HasPrefix(href, "#") {
			continue
		}
		ref, err := url.Parse(href)
		if err != nil {
			continue
		}
		u := base.ResolveReference(ref)
		if u.Scheme != "http" && u.Scheme != "https" {
			continue
		}
		if !strings.EqualFold(stripWWW(u.Hostname()), stripWWW(base.Hostname())) {
			continue
		}
		if _, asset := assetExtensions[strings.ToLower(path.Ext(u.Path))]; asset {
			continue
		}
		if pathDepth(u.Path) < MinLinkDepth {
			continue
		}
		u.Fragment = ""
		key := u.String()
		if _, ok := seen[key]; ok {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, key)
	}
	return out
}

func pathDepth(p string) int {
	n := 0
	for _, seg := range strings.Split(p, "/") {
		if seg != "" {
			n++
		}
	}
	return n
}

func stripWWW(host string) string {
	return strings.TrimPrefix(strings.ToLower(host), "www.")
}
