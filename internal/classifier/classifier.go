// Package classifier decides whether a scraped record may be published.
package classifier

import (
	"context"
	"strings"

	"github.com/simodepertis/frontend-sub001/internal/models"
)

type Verdict struct {
	Allowed bool
	Reason  string
}

var allowed = Verdict{Allowed: true}

type Classifier interface {
	Classify(ctx context.Context, l models.Listing) (Verdict, error)
}

// Allow accepts everything.
type Allow struct{}

func (Allow) Classify(context.Context, models.Listing) (Verdict, error) { return allowed, nil }

// Keyword rejects records whose title or description contains a blocked word.
// Matching is case-insensitive on whole substrings.
type Keyword struct {
	words []string
}

func NewKeyword(words []string) *Keyword {
	k := &Keyword{}
	for _, w := range words {
		if w = strings.ToLower(strings.TrimSpace(w)); w != "" {
			k.words = append(k.words, w)
		}
	}
	return k
}

func (k *Keyword) Classify(_ context.Context, l models.Listing) (Verdict, error) {
	text := strings.ToLower(l.Title + "\n" + l.Description)
	for _, w := range k.words {
		if strings.Contains(text, w) {
			return Verdict{Reason: "blocked keyword: " + w}, nil
		}
	}
	return allowed, nil
}

// Chain asks each classifier in turn and stops at the first rejection.
type Chain []Classifier

func (c Chain) Classify(ctx context.Context, l models.Listing) (Verdict, error) {
	for _, cl := range c {
		v, err := cl.Classify(ctx, l)
		if err != nil {
			return Verdict{}, err
		}
		if !v.Allowed {
			return v, nil
		}
	}
	return allowed, nil
}
