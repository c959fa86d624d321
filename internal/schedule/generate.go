// Package schedule turns a purchased promotion product into concrete bump
// instants and holds the time-slot rules the executor checks them against.
package schedule

import (
	"math/rand"
	"sort"
	"sync"
	"time"

	"github.com/simodepertis/frontend-sub001/internal/models"
)

const (
	dayStartHour   = 8
	defaultDayHour = 10
	nightStartHour = 22
	nightEndHour   = 8
	nightMinutes   = nightEndHour * 60
)

// nightSequence is the order automatic night slots are handed out in.
var nightSequence = []int{22, 23, 0, 1, 2, 3, 4, 5, 6, 7}

type Request struct {
	Product   models.PromotionProduct
	StartedAt time.Time
	Template  Template
}

// Generator builds schedules in a fixed location with an injected random source.
type Generator struct {
	loc *time.Location

	mu  sync.Mutex
	rng *rand.Rand
}

func NewGenerator(loc *time.Location, rng *rand.Rand) *Generator {
	if loc == nil {
		loc = time.UTC
	}
	if rng == nil {
		rng = rand.New(rand.NewSource(time.Now().UnixNano()))
	}
	return &Generator{loc: loc, rng: rng}
}

func (g *Generator) Location() *time.Location { return g.loc }

// Generate returns the full schedule of a purchase, ordered by run time.
// Top-fixed products have no schedule.
func (g *Generator) Generate(req Request) []models.ScheduleEntry {
	var entries []models.ScheduleEntry
	switch req.Product.Kind {
	case models.ProductImmediate:
		entries = []models.ScheduleEntry{{Window: models.WindowDay, RunAt: req.StartedAt, Status: models.SchedulePending}}
	case models.ProductDay:
		entries = g.day(req)
	case models.ProductNight:
		entries = g.night(req)
	case models.ProductTopFixed:
		return nil
	default:
		return nil
	}
	sort.SliceStable(entries, func(i, j int) bool { return entries[i].RunAt.Before(entries[j].RunAt) })
	return entries
}

// Regenerate rebuilds the schedule against the original start and keeps only
// the entries still ahead of now. Windows are matched by index, not instant:
// each day or night keeps at most its quantity minus the entries of existing
// that outlive the reschedule (fired, missed or due but still pending).
func (g *Generator) Regenerate(req Request, now time.Time, existing []models.ScheduleEntry) []models.ScheduleEntry {
	used := make(map[windowKey]int)
	for _, e := range existing {
		if e.Status == models.SchedulePending && e.RunAt.After(now) {
			continue
		}
		used[g.windowOf(e)]++
	}
	q := quantity(req.Product)
	all := g.Generate(req)
	out := all[:0]
	for _, e := range all {
		if !e.RunAt.After(now) {
			continue
		}
		k := g.windowOf(e)
		if used[k] >= q {
			continue
		}
		used[k]++
		out = append(out, e)
	}
	return out
}

type windowKey struct {
	window models.Window
	date   string
}

// windowOf names the day or night an entry belongs to. Small night hours
// count towards the night that started the previous evening.
func (g *Generator) windowOf(e models.ScheduleEntry) windowKey {
	local := e.RunAt.In(g.loc)
	if e.Window == models.WindowNight && local.Hour() < nightEndHour {
		local = local.AddDate(0, 0, -1)
	}
	return windowKey{window: e.Window, date: local.Format(time.DateOnly)}
}

func (g *Generator) day(req Request) []models.ScheduleEntry {
	start := g.scheduleStart(req.StartedAt)
	q := quantity(req.Product)
	entries := make([]models.ScheduleEntry, 0, req.Product.DurationDays*q)
	for d := 0; d < req.Product.DurationDays; d++ {
		hours := req.Template.hoursFor(d, isDayHour)
		for i := 0; i < q; i++ {
			var h int
			switch {
			case len(hours) > 0:
				h = hours[(d*q+i)%len(hours)]
			case q == 1:
				h = defaultDayHour
			default:
				h = dayStartHour + i*(24-dayStartHour)/q
			}
			entries = append(entries, g.entry(models.WindowDay, start, d, h, g.minute()))
		}
	}
	return entries
}

func (g *Generator) night(req Request) []models.ScheduleEntry {
	start := g.scheduleStart(req.StartedAt)
	q := quantity(req.Product)
	entries := make([]models.ScheduleEntry, 0, req.Product.DurationDays*q)
	for d := 0; d < req.Product.DurationDays; d++ {
		hours := req.Template.hoursFor(d, isNightHour)
		for i := 0; i < q; i++ {
			switch {
			case len(hours) > 0:
				h := hours[i%len(hours)]
				entries = append(entries, g.entry(models.WindowNight, start, nightDay(d, h), h, g.minute()))
			case q <= len(nightSequence):
				h := nightSequence[i*len(nightSequence)/q]
				entries = append(entries, g.entry(models.WindowNight, start, nightDay(d, h), h, g.minute()))
			default:
				offset := g.intn(nightMinutes)
				entries = append(entries, g.entry(models.WindowNight, start, d+1, offset/60, offset%60))
			}
		}
	}
	return entries
}

// nightDay anchors evening hours to night d and small hours to the next calendar day.
func nightDay(d, hour int) int {
	if hour >= nightStartHour {
		return d
	}
	return d + 1
}

// scheduleStart is local midnight of the day after the purchase.
func (g *Generator) scheduleStart(startedAt time.Time) time.Time {
	local := startedAt.In(g.loc)
	return time.Date(local.Year(), local.Month(), local.Day()+1, 0, 0, 0, 0, g.loc)
}

func (g *Generator) entry(w models.Window, start time.Time, day, hour, minute int) models.ScheduleEntry {
	at := time.Date(start.Year(), start.Month(), start.Day()+day, hour, minute, 0, 0, g.loc)
	return models.ScheduleEntry{Window: w, RunAt: at, Status: models.SchedulePending}
}

func (g *Generator) minute() int { return g.intn(60) }

func (g *Generator) intn(n int) int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.rng.Intn(n)
}

func quantity(p models.PromotionProduct) int {
	if p.QuantityPerWindow < 1 {
		return 1
	}
	return p.QuantityPerWindow
}
