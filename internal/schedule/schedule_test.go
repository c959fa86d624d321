package schedule

import (
	"math/rand"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/simodepertis/frontend-sub001/internal/models"
)

func rome(t *testing.T) *time.Location {
	t.Helper()
	loc, err := time.LoadLocation("Europe/Rome")
	require.NoError(t, err)
	return loc
}

func newGen(t *testing.T) *Generator {
	return NewGenerator(rome(t), rand.New(rand.NewSource(42)))
}

func dayProduct(days, qty int) models.PromotionProduct {
	return models.PromotionProduct{Code: "DAY", Kind: models.ProductDay, QuantityPerWindow: qty, DurationDays: days}
}

func nightProduct(days, qty int) models.PromotionProduct {
	return models.PromotionProduct{Code: "NIGHT", Kind: models.ProductNight, QuantityPerWindow: qty, DurationDays: days}
}

func TestDayScheduleDefaultsToTenOnConsecutiveDays(t *testing.T) {
	loc := rome(t)
	g := newGen(t)
	purchased := time.Date(2026, 3, 10, 15, 30, 0, 0, loc)

	entries := g.Generate(Request{Product: dayProduct(4, 1), StartedAt: purchased})
	require.Len(t, entries, 4)
	for i, e := range entries {
		local := e.RunAt.In(loc)
		assert.Equal(t, 11+i, local.Day(), "entry %d", i)
		assert.Equal(t, 10, local.Hour(), "entry %d", i)
		assert.Equal(t, models.WindowDay, e.Window)
		assert.Equal(t, models.SchedulePending, e.Status)
	}
}

func TestDayScheduleIsDeterministicForSeed(t *testing.T) {
	loc := rome(t)
	purchased := time.Date(2026, 3, 10, 15, 30, 0, 0, loc)
	a := NewGenerator(loc, rand.New(rand.NewSource(7))).Generate(Request{Product: dayProduct(3, 1), StartedAt: purchased})
	b := NewGenerator(loc, rand.New(rand.NewSource(7))).Generate(Request{Product: dayProduct(3, 1), StartedAt: purchased})
	assert.Equal(t, a, b)
}

func TestDayTemplateCyclesAndFallsBack(t *testing.T) {
	loc := rome(t)
	g := newGen(t)
	purchased := time.Date(2026, 3, 10, 9, 0, 0, 0, loc)

	entries := g.Generate(Request{Product: dayProduct(2, 2), StartedAt: purchased, Template: Template{Hours: []int{9, 3, 18, 18}}})
	require.Len(t, entries, 4)
	hours := []int{}
	for _, e := range entries {
		hours = append(hours, e.RunAt.In(loc).Hour())
	}
	assert.Equal(t, []int{9, 18, 9, 18}, hours)

	// No usable template hour: per-day map for day 0, automatic for day 1.
	entries = g.Generate(Request{Product: dayProduct(2, 1), StartedAt: purchased, Template: Template{Hours: []int{3}, PerDay: map[int][]int{0: {15}}}})
	require.Len(t, entries, 2)
	assert.Equal(t, 15, entries[0].RunAt.In(loc).Hour())
	assert.Equal(t, 10, entries[1].RunAt.In(loc).Hour())
}

func TestNightHoursStayInWindow(t *testing.T) {
	loc := rome(t)
	g := newGen(t)
	purchased := time.Date(2026, 3, 10, 20, 0, 0, 0, loc)

	for _, qty := range []int{1, 3, 10, 12} {
		entries := g.Generate(Request{Product: nightProduct(5, qty), StartedAt: purchased})
		require.Len(t, entries, 5*qty, "qty %d", qty)
		for _, e := range entries {
			h := e.RunAt.In(loc).Hour()
			assert.True(t, h >= 22 || h < 8, "qty %d hour %d", qty, h)
			assert.Equal(t, models.WindowNight, e.Window)
			assert.True(t, e.RunAt.After(purchased))
		}
		for i := 1; i < len(entries); i++ {
			assert.False(t, entries[i].RunAt.Before(entries[i-1].RunAt))
		}
	}
}

func TestNightAutomaticSpreadStartsAt22(t *testing.T) {
	loc := rome(t)
	g := newGen(t)
	purchased := time.Date(2026, 3, 10, 20, 0, 0, 0, loc)

	entries := g.Generate(Request{Product: nightProduct(1, 3), StartedAt: purchased})
	require.Len(t, entries, 3)
	assert.Equal(t, 11, entries[0].RunAt.In(loc).Day())
	assert.Equal(t, 22, entries[0].RunAt.In(loc).Hour())
	assert.Equal(t, 12, entries[1].RunAt.In(loc).Day())
	assert.Equal(t, 1, entries[1].RunAt.In(loc).Hour())
	assert.Equal(t, 4, entries[2].RunAt.In(loc).Hour())
}

func TestNightTemplateAnchorsAcrossMidnight(t *testing.T) {
	loc := rome(t)
	g := newGen(t)
	purchased := time.Date(2026, 3, 10, 12, 0, 0, 0, loc)

	entries := g.Generate(Request{Product: nightProduct(1, 3), StartedAt: purchased, Template: Template{Hours: []int{23, 2, 12}}})
	require.Len(t, entries, 3)
	got := [][2]int{}
	for _, e := range entries {
		local := e.RunAt.In(loc)
		got = append(got, [2]int{local.Day(), local.Hour()})
	}
	assert.Equal(t, [][2]int{{11, 23}, {11, 23}, {12, 2}}, got)
}

func TestImmediateAndTopFixed(t *testing.T) {
	g := newGen(t)
	now := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)

	entries := g.Generate(Request{Product: models.PromotionProduct{Kind: models.ProductImmediate, QuantityPerWindow: 1, DurationDays: 1}, StartedAt: now})
	require.Len(t, entries, 1)
	assert.Equal(t, now, entries[0].RunAt)
	assert.Equal(t, models.WindowDay, entries[0].Window)

	assert.Empty(t, g.Generate(Request{Product: models.PromotionProduct{Kind: models.ProductTopFixed, QuantityPerWindow: 1, DurationDays: 7}, StartedAt: now}))
}

func TestRegenerateKeepsOriginalAnchor(t *testing.T) {
	loc := rome(t)
	g := newGen(t)
	started := time.Date(2026, 3, 10, 9, 0, 0, 0, loc)
	now := time.Date(2026, 3, 13, 9, 0, 0, 0, loc)

	entries := g.Regenerate(Request{Product: dayProduct(7, 1), StartedAt: started, Template: Template{Hours: []int{18}}}, now, nil)
	require.Len(t, entries, 5)
	assert.Equal(t, 13, entries[0].RunAt.In(loc).Day())
	assert.Equal(t, 17, entries[4].RunAt.In(loc).Day())
	for _, e := range entries {
		assert.Equal(t, 18, e.RunAt.In(loc).Hour())
	}
}

func TestRegenerateSkipsWindowsAlreadyServed(t *testing.T) {
	loc := rome(t)
	g := newGen(t)
	started := time.Date(2026, 3, 10, 9, 0, 0, 0, loc)
	req := Request{Product: dayProduct(7, 1), StartedAt: started}
	original := g.Generate(req)
	require.Len(t, original, 7)
	for i := range original[:3] {
		original[i].Status = models.ScheduleDone
	}

	now := time.Date(2026, 3, 13, 11, 0, 0, 0, loc)
	req.Template = Template{Hours: []int{18}}
	entries := g.Regenerate(req, now, original)
	require.Len(t, entries, 4)
	assert.Equal(t, 14, entries[0].RunAt.In(loc).Day())
	assert.Equal(t, 17, entries[3].RunAt.In(loc).Day())
	assert.Equal(t, 7, 3+len(entries))

	// Due but not yet fired: still counts for its day.
	original[2].Status = models.SchedulePending
	entries = g.Regenerate(req, now, original)
	require.Len(t, entries, 4)
	assert.Equal(t, 14, entries[0].RunAt.In(loc).Day())
}

func TestRegenerateMatchesNightsAcrossMidnight(t *testing.T) {
	loc := rome(t)
	g := newGen(t)
	started := time.Date(2026, 3, 10, 12, 0, 0, 0, loc)
	req := Request{Product: nightProduct(3, 1), StartedAt: started, Template: Template{Hours: []int{23}}}
	original := g.Generate(req)
	require.Len(t, original, 3)
	original[0].Status = models.ScheduleDone

	// The night of the 11th fired at 23:xx; moving to 02:00 must not add the 12th at 02:xx.
	now := time.Date(2026, 3, 12, 0, 30, 0, 0, loc)
	req.Template = Template{Hours: []int{2}}
	entries := g.Regenerate(req, now, original)
	require.Len(t, entries, 2)
	assert.Equal(t, 13, entries[0].RunAt.In(loc).Day())
	assert.Equal(t, 2, entries[0].RunAt.In(loc).Hour())
	assert.Equal(t, 14, entries[1].RunAt.In(loc).Day())
}

func TestTemplateRoundTrip(t *testing.T) {
	raw, err := Template{}.Encode()
	require.NoError(t, err)
	assert.Equal(t, "", raw)

	tpl := Template{Hours: []int{22, 1}, PerDay: map[int][]int{2: {23}}}
	raw, err = tpl.Encode()
	require.NoError(t, err)
	back, err := ParseTemplate(raw)
	require.NoError(t, err)
	assert.Equal(t, tpl, back)

	_, err = ParseTemplate("{")
	assert.Error(t, err)
}

func TestLabel(t *testing.T) {
	loc := rome(t)
	g := newGen(t)
	started := time.Date(2026, 3, 10, 9, 0, 0, 0, loc)

	single := g.Generate(Request{Product: dayProduct(3, 1), StartedAt: started})
	assert.Equal(t, "10:00-11:00", Label(dayProduct(3, 1), single, loc))

	mixed := g.Generate(Request{Product: dayProduct(2, 1), StartedAt: started, Template: Template{Hours: []int{9, 23}}})
	assert.Equal(t, SlotDay, Label(dayProduct(2, 1), mixed, loc))

	late := g.Generate(Request{Product: dayProduct(1, 1), StartedAt: started, Template: Template{Hours: []int{23}}})
	assert.Equal(t, "23:00-24:00", Label(dayProduct(1, 1), late, loc))

	assert.Equal(t, SlotNight, Label(nightProduct(3, 4), nil, loc))
	assert.Equal(t, SlotAny, Label(models.PromotionProduct{Kind: models.ProductImmediate}, nil, loc))
}

func TestParseSlot(t *testing.T) {
	loc := rome(t)
	at := func(h, m int) time.Time { return time.Date(2026, 3, 10, h, m, 0, 0, loc) }

	s, err := ParseSlot("10:00-11:00")
	require.NoError(t, err)
	assert.True(t, s.Contains(at(10, 0), loc))
	assert.True(t, s.Contains(at(10, 59), loc))
	assert.False(t, s.Contains(at(11, 0), loc))

	s, err = ParseSlot("23:30-01:00")
	require.NoError(t, err)
	assert.True(t, s.Contains(at(0, 15), loc))
	assert.False(t, s.Contains(at(1, 15), loc))

	s, err = ParseSlot("night")
	require.NoError(t, err)
	assert.True(t, s.Contains(at(22, 0), loc))
	assert.True(t, s.Contains(at(7, 59), loc))
	assert.False(t, s.Contains(at(8, 0), loc))

	for _, bad := range []string{"10", "25:00-26:00", "10:00-10:00", "aa:bb-cc:dd"} {
		_, err := ParseSlot(bad)
		assert.Error(t, err, bad)
	}
}

func TestInSlot(t *testing.T) {
	loc := rome(t)
	at := func(h int) time.Time { return time.Date(2026, 3, 10, h, 5, 0, 0, loc) }

	ok, err := InSlot(dayProduct(7, 1), "10:00-11:00", at(10), 0, loc)
	require.NoError(t, err)
	assert.True(t, ok)
	ok, _ = InSlot(dayProduct(7, 1), "10:00-11:00", at(12), 0, loc)
	assert.False(t, ok)

	// Multi-per-window packages are held to the broad window only.
	ok, _ = InSlot(nightProduct(7, 4), "22:00-23:00", at(3), 0, loc)
	assert.True(t, ok)
	ok, _ = InSlot(nightProduct(7, 4), "22:00-23:00", at(12), 0, loc)
	assert.False(t, ok)

	ok, _ = InSlot(models.PromotionProduct{Kind: models.ProductImmediate}, "", at(15), 0, loc)
	assert.True(t, ok)

	_, err = InSlot(dayProduct(7, 1), "garbage", at(10), 0, loc)
	assert.Error(t, err)
}

func TestInSlotGraceCoversTickAfterSlotEnd(t *testing.T) {
	loc := rome(t)
	at := func(h, m int) time.Time { return time.Date(2026, 3, 10, h, m, 0, 0, loc) }
	grace := 15 * time.Minute

	ok, err := InSlot(dayProduct(7, 1), "10:00-11:00", at(11, 0), grace, loc)
	require.NoError(t, err)
	assert.True(t, ok)
	ok, _ = InSlot(dayProduct(7, 1), "10:00-11:00", at(11, 14), grace, loc)
	assert.True(t, ok)
	ok, _ = InSlot(dayProduct(7, 1), "10:00-11:00", at(11, 15), grace, loc)
	assert.False(t, ok)
	ok, _ = InSlot(dayProduct(7, 1), "10:00-11:00", at(11, 0), 0, loc)
	assert.False(t, ok)

	ok, _ = InSlot(nightProduct(7, 4), SlotNight, at(8, 0), grace, loc)
	assert.True(t, ok)
	ok, _ = InSlot(nightProduct(7, 4), SlotNight, at(9, 0), grace, loc)
	assert.False(t, ok)
}

func TestIncrement(t *testing.T) {
	loc := rome(t)
	from := time.Date(2026, 3, 10, 10, 20, 0, 0, loc)

	next, ok := Increment(dayProduct(7, 1), "10:00-11:00", from, loc)
	require.True(t, ok)
	assertInstant(t, time.Date(2026, 3, 11, 10, 20, 0, 0, loc), next)

	next, ok = Increment(nightProduct(7, 1), "22:00-23:00", time.Date(2026, 3, 10, 22, 10, 0, 0, loc), loc)
	require.True(t, ok)
	assertInstant(t, time.Date(2026, 3, 11, 22, 10, 0, 0, loc), next)

	next, ok = Increment(nightProduct(7, 5), SlotNight, time.Date(2026, 3, 11, 2, 0, 0, 0, loc), loc)
	require.True(t, ok)
	assertInstant(t, time.Date(2026, 3, 11, 2, 48, 0, 0, loc), next)

	next, ok = Increment(nightProduct(7, 5), SlotNight, time.Date(2026, 3, 11, 7, 40, 0, 0, loc), loc)
	require.True(t, ok)
	assertInstant(t, time.Date(2026, 3, 12, 0, 0, 0, 0, loc), next)

	_, ok = Increment(models.PromotionProduct{Kind: models.ProductImmediate}, "", from, loc)
	assert.False(t, ok)
}

func assertInstant(t *testing.T, want, got time.Time) {
	t.Helper()
	assert.True(t, want.Equal(got), "want %s, got %s", want, got)
}
