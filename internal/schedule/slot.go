package schedule

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/simodepertis/frontend-sub001/internal/models"
)

// Slot labels stored in a listing's bump_time_slot. Exact slots are "HH:MM-HH:MM".
const (
	SlotAny   = ""
	SlotDay   = "DAY"
	SlotNight = "NIGHT"
)

// Slot is a daily time range in minutes since local midnight. End may be
// smaller than start for ranges that span midnight.
type Slot struct {
	start, end int
	any        bool
}

var (
	daySlot   = Slot{start: dayStartHour * 60, end: 24 * 60}
	nightSlot = Slot{start: nightStartHour * 60, end: nightEndHour * 60}
)

func ParseSlot(label string) (Slot, error) {
	switch strings.ToUpper(strings.TrimSpace(label)) {
	case SlotAny:
		return Slot{any: true}, nil
	case SlotDay:
		return daySlot, nil
	case SlotNight:
		return nightSlot, nil
	}
	from, to, ok := strings.Cut(strings.TrimSpace(label), "-")
	if !ok {
		return Slot{}, fmt.Errorf("invalid slot %q", label)
	}
	start, err := parseClock(from)
	if err != nil {
		return Slot{}, fmt.Errorf("invalid slot %q: %w", label, err)
	}
	end, err := parseClock(to)
	if err != nil {
		return Slot{}, fmt.Errorf("invalid slot %q: %w", label, err)
	}
	if start == end {
		return Slot{}, fmt.Errorf("invalid slot %q: empty range", label)
	}
	return Slot{start: start, end: end}, nil
}

func parseClock(s string) (int, error) {
	hh, mm, ok := strings.Cut(strings.TrimSpace(s), ":")
	if !ok {
		return 0, fmt.Errorf("bad clock %q", s)
	}
	h, err := strconv.Atoi(hh)
	if err != nil {
		return 0, fmt.Errorf("bad hour %q", hh)
	}
	m, err := strconv.Atoi(mm)
	if err != nil {
		return 0, fmt.Errorf("bad minute %q", mm)
	}
	if h < 0 || h > 24 || m < 0 || m > 59 || (h == 24 && m != 0) {
		return 0, fmt.Errorf("clock out of range %q", s)
	}
	return h*60 + m, nil
}

func (s Slot) Contains(t time.Time, loc *time.Location) bool {
	if s.any {
		return true
	}
	local := t.In(loc)
	m := local.Hour()*60 + local.Minute()
	if s.start < s.end {
		return m >= s.start && m < s.end
	}
	return m >= s.start || m < s.end
}

// Label picks the slot label stored on the listing for a fresh schedule:
// a single exact hour when every bump lands in the same hour, the broad
// window otherwise.
func Label(p models.PromotionProduct, entries []models.ScheduleEntry, loc *time.Location) string {
	switch p.Kind {
	case models.ProductImmediate, models.ProductTopFixed:
		return SlotAny
	}
	window := SlotDay
	if p.Kind == models.ProductNight {
		window = SlotNight
	}
	if quantity(p) > 1 || len(entries) == 0 {
		return window
	}
	hour := entries[0].RunAt.In(loc).Hour()
	for _, e := range entries[1:] {
		if e.RunAt.In(loc).Hour() != hour {
			return window
		}
	}
	return fmt.Sprintf("%02d:00-%02d:00", hour, hour+1)
}

// Multi reports whether a package fires several times per window and so is
// only held to its broad window.
func Multi(p models.PromotionProduct, label string) bool {
	return quantity(p) > 1 || label == SlotDay || label == SlotNight
}

// InSlot is the executor's tolerance check for one listing at instant t.
// An instant within grace after the end of the slot still counts, so an
// entry near the end of its slot is not pushed to the next day by the tick
// cadence.
func InSlot(p models.PromotionProduct, label string, t time.Time, grace time.Duration, loc *time.Location) (bool, error) {
	var slot Slot
	switch p.Kind {
	case models.ProductImmediate:
		return true, nil
	case models.ProductTopFixed:
		return false, nil
	case models.ProductDay:
		if Multi(p, label) {
			slot = daySlot
		}
	case models.ProductNight:
		if Multi(p, label) {
			slot = nightSlot
		}
	}
	if slot == (Slot{}) {
		var err error
		if slot, err = ParseSlot(label); err != nil {
			return false, err
		}
	}
	return slot.Contains(t, loc) || (grace > 0 && slot.Contains(t.Add(-grace), loc)), nil
}

// Increment is the fallback next-run rule used when a listing has no pending
// schedule entry left: a day later for day packages and single night bumps,
// 48 minutes later for multi night bumps, wrapping to 00:00 of the following
// night once 08:00 is crossed.
func Increment(p models.PromotionProduct, label string, from time.Time, loc *time.Location) (time.Time, bool) {
	local := from.In(loc)
	switch p.Kind {
	case models.ProductDay:
		return local.AddDate(0, 0, 1), true
	case models.ProductNight:
		if !Multi(p, label) {
			return local.AddDate(0, 0, 1), true
		}
		next := local.Add(48 * time.Minute)
		if h := next.Hour(); h >= nightEndHour && h < nightStartHour {
			next = time.Date(next.Year(), next.Month(), next.Day()+1, 0, 0, 0, 0, loc)
		}
		return next, true
	default:
		return time.Time{}, false
	}
}
