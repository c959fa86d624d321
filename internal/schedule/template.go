package schedule

import (
	"encoding/json"
	"fmt"
	"strings"
)

// Template is a user-chosen set of hours repeated across every day or night
// of a purchase. PerDay overrides apply to a single day index (0-based from
// the schedule start) and are only consulted when Hours yields nothing usable.
type Template struct {
	Hours  []int         `json:"hours,omitempty"`
	PerDay map[int][]int `json:"per_day,omitempty"`
}

func (t Template) IsZero() bool {
	return len(t.Hours) == 0 && len(t.PerDay) == 0
}

// ParseTemplate decodes a stored template. An empty string is the zero template.
func ParseTemplate(raw string) (Template, error) {
	var t Template
	if strings.TrimSpace(raw) == "" {
		return t, nil
	}
	if err := json.Unmarshal([]byte(raw), &t); err != nil {
		return Template{}, fmt.Errorf("decode slot template: %w", err)
	}
	return t, nil
}

// Encode returns the stored form, or "" for the zero template.
func (t Template) Encode() (string, error) {
	if t.IsZero() {
		return "", nil
	}
	b, err := json.Marshal(t)
	if err != nil {
		return "", fmt.Errorf("encode slot template: %w", err)
	}
	return string(b), nil
}

// hoursFor applies the fallback chain for one day: template hours, then the
// per-day entry. nil means the caller falls back to automatic placement.
func (t Template) hoursFor(day int, allowed func(int) bool) []int {
	if h := filterHours(t.Hours, allowed); len(h) > 0 {
		return h
	}
	return filterHours(t.PerDay[day], allowed)
}

func filterHours(hours []int, allowed func(int) bool) []int {
	var out []int
	seen := make(map[int]struct{}, len(hours))
	for _, h := range hours {
		if !allowed(h) {
			continue
		}
		if _, ok := seen[h]; ok {
			continue
		}
		seen[h] = struct{}{}
		out = append(out, h)
	}
	return out
}

func isDayHour(h int) bool { return h >= dayStartHour && h < 24 }

func isNightHour(h int) bool { return (h >= nightStartHour && h < 24) || (h >= 0 && h < nightEndHour) }
