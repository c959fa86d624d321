// Package normalize maps raw scraped fields onto the canonical listing shape.
package normalize

import (
	"net/url"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/simodepertis/frontend-sub001/internal/models"
	"github.com/simodepertis/frontend-sub001/internal/scraper"
)

// MinTitleLength is the length a title must exceed for a record to be kept.
const MinTitleLength = 5

const (
	maxTitleRunes       = 255
	maxDescriptionRunes = 8000
	minAge              = 18
	maxAge              = 99
)

var photoBlocklist = []string{"logo", "placeholder", "no-image", "noimage", "no_photo", "default-avatar"}

// Listing builds the canonical record. Lifecycle and promotion fields are left
// zero: the upsert engine owns them.
func Listing(raw scraper.RawExtraction, category models.Category, city, sourceURL string) models.Listing {
	l := models.Listing{
		SourceURL:   strings.TrimSpace(sourceURL),
		Title:       truncate(collapseSpace(raw.Title), maxTitleRunes),
		Description: truncate(strings.TrimSpace(raw.Description), maxDescriptionRunes),
		Category:    category,
		City:        strings.TrimSpace(city),
		Zone:        collapseSpace(raw.Zone),
		Phone:       Phone(raw.Phone),
		WhatsApp:    WhatsApp(raw.WhatsApp),
		Photos:      Photos(raw.Photos),
		Price:       raw.Price,
	}
	if raw.Age >= minAge && raw.Age <= maxAge {
		l.Age = raw.Age
	}
	if l.Zone == "" {
		l.Zone = zoneFromMaps(raw.MapsLink)
	}
	if l.WhatsApp == "" && raw.WhatsApp == "" && raw.PhoneIsWhatsApp {
		l.WhatsApp = WhatsApp(raw.Phone)
	}
	return l
}

// ContentValid is the gate applied before dedup: short or empty titles are dropped.
func ContentValid(l models.Listing) bool {
	return utf8.RuneCountInString(strings.TrimSpace(l.Title)) > MinTitleLength
}

// Photos de-duplicates URLs preserving order and drops logos and placeholders.
func Photos(in []string) []string {
	seen := make(map[string]struct{}, len(in))
	out := make([]string, 0, len(in))
	for _, p := range in {
		p = strings.TrimSpace(p)
		if p == "" || strings.HasPrefix(p, "data:") {
			continue
		}
		if blockedPhoto(p) {
			continue
		}
		if _, ok := seen[p]; ok {
			continue
		}
		seen[p] = struct{}{}
		out = append(out, p)
	}
	return out
}

func blockedPhoto(raw string) bool {
	path := raw
	if u, err := url.Parse(raw); err == nil && u.Path != "" {
		path = u.Path
	}
	path = strings.ToLower(path)
	for _, marker := range photoBlocklist {
		if strings.Contains(path, marker) {
			return true
		}
	}
	return false
}

func zoneFromMaps(link string) string {
	if link == "" {
		return ""
	}
	u, err := url.Parse(link)
	if err != nil {
		return ""
	}
	for _, key := range []string{"q", "query", "daddr"} {
		if v := collapseSpace(u.Query().Get(key)); v != "" {
			return truncate(v, 255)
		}
	}
	return ""
}

func collapseSpace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

func truncate(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	return string([]rune(s)[:n])
}

// ExpiresAt is the hard expiry assigned to a newly created listing.
func ExpiresAt(now time.Time, ttl time.Duration) time.Time {
	return now.Add(ttl)
}
