package normalize

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/simodepertis/frontend-sub001/internal/models"
	"github.com/simodepertis/frontend-sub001/internal/scraper"
)

func TestPhone(t *testing.T) {
	cases := map[string]string{
		"333 1234567":        "+393331234567",
		"+39 333 1234567":    "+393331234567",
		"393331234567":       "+393331234567",
		"0039 333-123-4567":  "+393331234567",
		"02 1234567":         "+39021234567",
		"(+41) 79 123 45 67": "+41791234567",
		"12345":              "+12345",
		"":                   "",
		"   ":                "",
		"chiamami":           "",
	}
	for in, want := range cases {
		assert.Equal(t, want, Phone(in), "input %q", in)
	}
}

func TestWhatsApp(t *testing.T) {
	cases := map[string]string{
		"https://wa.me/393331234567":                                 "https://wa.me/393331234567",
		"https://wa.me/+393331234567?text=ciao":                      "https://wa.me/393331234567",
		"https://api.whatsapp.com/send?phone=393331234567&text=ciao": "https://wa.me/393331234567",
		"333 1234567":    "https://wa.me/393331234567",
		"https://wa.me/": "",
		"":               "",
		"12":             "",
	}
	for in, want := range cases {
		assert.Equal(t, want, WhatsApp(in), "input %q", in)
	}
}

func TestPhotos(t *testing.T) {
	got := Photos([]string{
		"https://cdn.example.com/a.jpg",
		"https://cdn.example.com/img/logo.png",
		"https://cdn.example.com/a.jpg",
		"https://cdn.example.com/placeholder.png",
		" ",
		"data:image/gif;base64,R0lGOD",
		"https://cdn.example.com/no-image.svg",
		"https://cdn.example.com/b.jpg",
	})
	assert.Equal(t, []string{"https://cdn.example.com/a.jpg", "https://cdn.example.com/b.jpg"}, got)
	assert.Empty(t, Photos(nil))
}

func TestListing(t *testing.T) {
	raw := scraper.RawExtraction{
		Title:           "  Giulia   in centro  ",
		Description:     " Ricevo su appuntamento ",
		Phone:           "333 1234567",
		PhoneIsWhatsApp: true,
		Age:             17,
		Photos:          []string{"https://x.it/1.jpg", "https://x.it/1.jpg"},
		MapsLink:        "https://www.google.com/maps?q=Porta+Venezia",
		Price:           100,
	}
	l := Listing(raw, models.CategoryWomanSeeksMan, " Milano ", "https://x.it/annunci/1")

	assert.Equal(t, "Giulia in centro", l.Title)
	assert.Equal(t, "Ricevo su appuntamento", l.Description)
	assert.Equal(t, "Milano", l.City)
	assert.Equal(t, "Porta Venezia", l.Zone)
	assert.Equal(t, "+393331234567", l.Phone)
	assert.Equal(t, "https://wa.me/393331234567", l.WhatsApp)
	assert.Zero(t, l.Age)
	assert.Equal(t, []string{"https://x.it/1.jpg"}, l.Photos)
	assert.Equal(t, 100, l.Price)
	assert.Equal(t, "https://x.it/annunci/1", l.SourceURL)
}

func TestContentValid(t *testing.T) {
	assert.False(t, ContentValid(models.Listing{Title: "Ciao"}))
	assert.False(t, ContentValid(models.Listing{Title: "abc"}))
	assert.False(t, ContentValid(models.Listing{Title: "Ciaoo"}))
	assert.False(t, ContentValid(models.Listing{Title: "   "}))
	assert.True(t, ContentValid(models.Listing{Title: "Ciao bella"}))
}
