package normalize

import (
	"net/url"
	"regexp"
	"strings"
)

const italianPrefix = "39"

// Phone canonicalises a scraped phone number to an international form.
// It returns "" when no digits are present.
//
//	"+39 333 1234567" -> "+393331234567"
//	"393331234567"    -> "+393331234567"
//	"333 1234567"     -> "+393331234567"
func Phone(raw string) string {
	var b strings.Builder
	for _, r := range strings.TrimSpace(raw) {
		if (r >= '0' && r <= '9') || r == '+' {
			b.WriteRune(r)
		}
	}
	cleaned := b.String()
	if cleaned == "" {
		return ""
	}

	leadingPlus := strings.HasPrefix(cleaned, "+")
	digits := strings.ReplaceAll(cleaned, "+", "")
	if digits == "" {
		return ""
	}

	switch {
	case leadingPlus:
		return "+" + digits
	case strings.HasPrefix(digits, "00") && len(digits) > 4:
		return "+" + digits[2:]
	case strings.HasPrefix(digits, italianPrefix) && len(digits) >= 11:
		return "+" + digits
	case len(digits) >= 8 && len(digits) <= 11:
		return "+" + italianPrefix + digits
	default:
		return "+" + digits
	}
}

var waPathDigits = regexp.MustCompile(`wa\.me/\+?(\d{6,15})`)

// WhatsApp turns a wa.me / api.whatsapp.com link or a bare phone number into
// a canonical https://wa.me/<digits> link. It returns "" when nothing usable is found.
func WhatsApp(raw string) string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return ""
	}

	candidate := raw
	lower := strings.ToLower(raw)
	if strings.Contains(lower, "wa.me") || strings.Contains(lower, "whatsapp") {
		candidate = ""
		if m := waPathDigits.FindStringSubmatch(lower); m != nil {
			candidate = m[1]
		} else if u, err := url.Parse(raw); err == nil {
			candidate = u.Query().Get("phone")
		}
		// wa.me links already carry the country code.
		if candidate != "" && !strings.HasPrefix(candidate, "+") {
			candidate = "+" + strings.TrimLeft(candidate, " ")
		}
	}

	phone := Phone(candidate)
	digits := strings.TrimPrefix(phone, "+")
	if len(digits) < 6 {
		return ""
	}
	return "https://wa.me/" + digits
}
