package scraper

import (
	"net/url"
	"regexp"
	"strconv"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// RawExtraction holds the fields scraped from a detail page before
// normalisation. Optional fields are left zero when absent.
type RawExtraction struct {
	Title       string
	Description string
	Phone       string
	WhatsApp    string
	// PhoneIsWhatsApp is set when the page advertises the phone as reachable on WhatsApp.
	PhoneIsWhatsApp bool
	Age             int
	Photos          []string
	Zone            string
	MapsLink        string
	Price           int
}

func (r RawExtraction) empty() bool {
	return strings.TrimSpace(r.Title) == ""
}

// DetailStrategy tries to pull a record out of a detail page. ok is false when
// the strategy found nothing it recognises.
type DetailStrategy interface {
	TryExtract(doc *goquery.Document, page *url.URL) (RawExtraction, bool)
}

// SelectorDetail extracts each field from the first selector that matches it.
type SelectorDetail Selectors

func (s SelectorDetail) TryExtract(doc *goquery.Document, page *url.URL) (RawExtraction, bool) {
	raw := RawExtraction{
		Title:       firstText(doc, s.Title),
		Description: firstText(doc, s.Description),
		Zone:        firstText(doc, s.Zone),
	}
	raw.Phone = telHref(firstAttr(doc, s.Phone, "href"))
	if raw.Phone == "" {
		raw.Phone = firstText(doc, s.Phone)
	}
	if !strings.ContainsAny(raw.Phone, "0123456789") {
		raw.Phone = ""
	}
	raw.WhatsApp = firstAttr(doc, s.WhatsApp, "href")
	if raw.WhatsApp == "" {
		raw.WhatsApp = firstText(doc, s.WhatsApp)
	}
	raw.Age = parseAge(firstText(doc, s.Age))
	raw.Price = parsePrice(firstText(doc, s.Price))
	for _, sel := range s.Photos {
		raw.Photos = append(raw.Photos, imageSources(doc.Find(sel), page)...)
	}
	return raw, !raw.empty()
}

// GenericDetail reads the structure most listing sites share: an h1 or
// og:title, tel: and wa.me links, gallery images and a maps link.
type GenericDetail struct{}

var (
	agePattern      = regexp.MustCompile(`(?i)(?:\b(\d{2})\s*anni\b|et[aà]\s*:?\s*(\d{2})\b|\bage\s*:?\s*(\d{2})\b)`)
	mobilePattern   = regexp.MustCompile(`(?:\+|00)?(?:39[\s.-]?)?3\d{2}[\s.-]?\d{3}[\s.-]?\d{3,4}`)
	pricePattern    = regexp.MustCompile(`(\d{2,4})\s*(?:€|eur)`)
	whatsappMention = regexp.MustCompile(`(?i)whats\s?app`)
)

func (GenericDetail) TryExtract(doc *goquery.Document, page *url.URL) (RawExtraction, bool) {
	raw := RawExtraction{
		Title: firstText(doc, []string{"h1", ".title", ".ad-title"}),
	}
	if raw.Title == "" {
		raw.Title = metaContent(doc, "og:title")
	}
	if raw.Title == "" {
		raw.Title = strings.TrimSpace(doc.Find("title").First().Text())
	}

	raw.Description = firstText(doc, []string{".description", "#description", "[itemprop=description]", "article"})
	if raw.Description == "" {
		raw.Description = metaContent(doc, "og:description")
	}
	if raw.Description == "" {
		raw.Description = metaContent(doc, "description")
	}

	raw.Phone = telHref(firstAttr(doc, []string{`a[href^="tel:"]`}, "href"))
	body := doc.Find("body").Text()
	if raw.Phone == "" {
		raw.Phone = mobilePattern.FindString(body)
	}
	raw.WhatsApp = firstAttr(doc, []string{`a[href*="wa.me"]`, `a[href*="api.whatsapp.com"]`, `a[href*="whatsapp://"]`}, "href")
	raw.PhoneIsWhatsApp = raw.WhatsApp == "" && raw.Phone != "" && whatsappMention.MatchString(body)

	raw.Age = parseAge(firstText(doc, []string{".age", "[itemprop=age]"}))
	if raw.Age == 0 {
		raw.Age = parseAge(body)
	}
	raw.Zone = firstText(doc, []string{".zone", ".zona", ".location", "[itemprop=addressLocality]"})
	raw.MapsLink = firstAttr(doc, []string{`a[href*="google.com/maps"]`, `a[href*="maps.google"]`, `a[href*="goo.gl/maps"]`}, "href")
	raw.Price = parsePrice(firstText(doc, []string{".price", ".prezzo", "[itemprop=price]"}))
	if raw.Price == 0 {
		if m := pricePattern.FindStringSubmatch(strings.ToLower(body)); m != nil {
			raw.Price, _ = strconv.Atoi(m[1])
		}
	}

	raw.Photos = imageSources(doc.Find(".gallery img, .photos img, .swiper img, figure img, article img"), page)
	if og := metaContent(doc, "og:image"); og != "" {
		raw.Photos = append([]string{resolve(page, og)}, raw.Photos...)
	}
	return raw, !raw.empty()
}

// extractDetail takes the first strategy that recognises the page and fills
// its missing optional fields from the later ones.
func extractDetail(doc *goquery.Document, page *url.URL, strategies []DetailStrategy) (RawExtraction, bool) {
	var result RawExtraction
	found := false
	for _, s := range strategies {
		raw, ok := s.TryExtract(doc, page)
		if !ok {
			continue
		}
		if !found {
			result, found = raw, true
			continue
		}
		fillMissing(&result, raw)
	}
	return result, found
}

func fillMissing(dst *RawExtraction, src RawExtraction) {
	if dst.Description == "" {
		dst.Description = src.Description
	}
	if dst.Phone == "" {
		dst.Phone = src.Phone
		dst.PhoneIsWhatsApp = src.PhoneIsWhatsApp
	}
	if dst.WhatsApp == "" {
		dst.WhatsApp = src.WhatsApp
	}
	if dst.Age == 0 {
		dst.Age = src.Age
	}
	if len(dst.Photos) == 0 {
		dst.Photos = src.Photos
	}
	if dst.Zone == "" {
		dst.Zone = src.Zone
	}
	if dst.MapsLink == "" {
		dst.MapsLink = src.MapsLink
	}
	if dst.Price == 0 {
		dst.Price = src.Price
	}
}

func firstText(doc *goquery.Document, selectors []string) string {
	for _, sel := range selectors {
		if txt := strings.TrimSpace(doc.Find(sel).First().Text()); txt != "" {
			return txt
		}
	}
	return ""
}

func firstAttr(doc *goquery.Document, selectors []string, attr string) string {
	for _, sel := range selectors {
		if v, ok := doc.Find(sel).First().Attr(attr); ok && strings.TrimSpace(v) != "" {
			return strings.TrimSpace(v)
		}
	}
	return ""
}

func metaContent(doc *goquery.Document, name string) string {
	sel := doc.Find(`meta[property="` + name + `"], meta[name="` + name + `"]`).First()
	v, _ := sel.Attr("content")
	return strings.TrimSpace(v)
}

func telHref(href string) string {
	if !strings.HasPrefix(strings.ToLower(href), "tel:") {
		return ""
	}
	return strings.TrimSpace(href[len("tel:"):])
}

func imageSources(sel *goquery.Selection, page *url.URL) []string {
	var out []string
	sel.Each(func(_ int, img *goquery.Selection) {
		for _, attr := range []string{"data-src", "data-lazy-src", "src"} {
			if v, ok := img.Attr(attr); ok && strings.TrimSpace(v) != "" {
				out = append(out, resolve(page, strings.TrimSpace(v)))
				return
			}
		}
	})
	return out
}

func resolve(page *url.URL, href string) string {
	if page == nil {
		return href
	}
	ref, err := url.Parse(href)
	if err != nil {
		return href
	}
	return page.ResolveReference(ref).String()
}

func parseAge(text string) int {
	m := agePattern.FindStringSubmatch(text)
	if m == nil {
		text = strings.TrimSpace(text)
		if n, err := strconv.Atoi(text); err == nil {
			return n
		}
		return 0
	}
	for _, g := range m[1:] {
		if g != "" {
			n, _ := strconv.Atoi(g)
			return n
		}
	}
	return 0
}

func parsePrice(raw string) int {
	clean := make([]rune, 0, len(raw))
	for _, r := range raw {
		if r >= '0' && r <= '9' {
			clean = append(clean, r)
		} else if len(clean) > 0 {
			break
		}
	}
	if len(clean) == 0 {
		return 0
	}
	n, err := strconv.Atoi(string(clean))
	if err != nil {
		return 0
	}
	return n
}
