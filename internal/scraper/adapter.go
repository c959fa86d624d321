// Package scraper discovers listing links on third-party sites and extracts
// raw records from their detail pages.
package scraper

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"sort"

	"github.com/PuerkitoBio/goquery"
)

// ErrBrowserDisabled is returned for browser-rendered sources when no browser is configured.
var ErrBrowserDisabled = errors.New("browser rendering disabled")

// Adapter fetches candidate detail links and raw records for one site family.
type Adapter interface {
	Name() string
	FetchListingLinks(ctx context.Context, src SourceConfig) ([]string, error)
	FetchDetail(ctx context.Context, src SourceConfig, url string) (RawExtraction, error)
}

// Fetchers groups the page fetchers shared by every adapter. Browser may be nil.
type Fetchers struct {
	HTTP    Fetcher
	Browser Fetcher
}

func (f Fetchers) pick(src SourceConfig) (Fetcher, error) {
	if src.Browser {
		if f.Browser == nil {
			return nil, ErrBrowserDisabled
		}
		return f.Browser, nil
	}
	return f.HTTP, nil
}

// SiteAdapter is a strategy-chain adapter: source selector hints first, then
// the family's built-in selectors, then the generic heuristics.
type SiteAdapter struct {
	name     string
	fetchers Fetchers
	links    []LinkStrategy
	details  []DetailStrategy
}

func NewSiteAdapter(name string, fetchers Fetchers, links []LinkStrategy, details []DetailStrategy) *SiteAdapter {
	return &SiteAdapter{name: name, fetchers: fetchers, links: links, details: details}
}

func (a *SiteAdapter) Name() string { return a.name }

func (a *SiteAdapter) FetchListingLinks(ctx context.Context, src SourceConfig) ([]string, error) {
	base, err := url.Parse(src.URL)
	if err != nil {
		return nil, fmt.Errorf("parse source url: %w", err)
	}
	doc, err := a.load(ctx, src, src.URL)
	if err != nil {
		return nil, err
	}

	strategies := make([]LinkStrategy, 0, len(a.links)+2)
	if len(src.Selectors.Links) > 0 {
		strategies = append(strategies, SelectorLinks(src.Selectors.Links))
	}
	strategies = append(strategies, a.links...)
	strategies = append(strategies, ImageAnchorLinks{})
	return discoverLinks(doc, base, strategies), nil
}

func (a *SiteAdapter) FetchDetail(ctx context.Context, src SourceConfig, pageURL string) (RawExtraction, error) {
	page, err := url.Parse(pageURL)
	if err != nil {
		return RawExtraction{}, fmt.Errorf("parse detail url: %w", err)
	}
	doc, err := a.load(ctx, src, pageURL)
	if err != nil {
		return RawExtraction{}, err
	}

	strategies := make([]DetailStrategy, 0, len(a.details)+2)
	strategies = append(strategies, SelectorDetail(src.Selectors))
	strategies = append(strategies, a.details...)
	strategies = append(strategies, GenericDetail{})
	raw, _ := extractDetail(doc, page, strategies)
	return raw, nil
}

func (a *SiteAdapter) load(ctx context.Context, src SourceConfig, pageURL string) (*goquery.Document, error) {
	fetcher, err := a.fetchers.pick(src)
	if err != nil {
		return nil, err
	}
	body, err := fetcher.Fetch(ctx, pageURL)
	if err != nil {
		return nil, err
	}
	defer body.Close()
	doc, err := goquery.NewDocumentFromReader(body)
	if err != nil {
		return nil, fmt.Errorf("parse html %s: %w", pageURL, err)
	}
	return doc, nil
}

// Registry resolves a source's adapter by name.
type Registry struct {
	adapters map[string]Adapter
	fallback string
}

// DefaultAdapter serves sources that do not name an adapter.
const DefaultAdapter = "generic"

func NewRegistry(adapters ...Adapter) *Registry {
	r := &Registry{adapters: make(map[string]Adapter, len(adapters)), fallback: DefaultAdapter}
	for _, a := range adapters {
		r.adapters[a.Name()] = a
	}
	return r
}

func (r *Registry) Get(name string) (Adapter, error) {
	if name == "" {
		name = r.fallback
	}
	a, ok := r.adapters[name]
	if !ok {
		return nil, fmt.Errorf("unknown adapter %q", name)
	}
	return a, nil
}

func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.adapters))
	for name := range r.adapters {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// DefaultRegistry wires the built-in site families.
func DefaultRegistry(fetchers Fetchers) *Registry {
	return NewRegistry(
		NewSiteAdapter(DefaultAdapter, fetchers, nil, nil),
		NewSiteAdapter("classifieds", fetchers,
			[]LinkStrategy{SelectorLinks{"article.annuncio a.title", ".annuncio-item > a", ".item-card a.item-link", "h2.ad-title a"}},
			[]DetailStrategy{SelectorDetail{
				Title:       []string{"h1.annuncio-title", ".ad-header h1"},
				Description: []string{".annuncio-testo", ".ad-body .text"},
				Phone:       []string{".annuncio-telefono", "a.phone-link"},
				WhatsApp:    []string{"a.whatsapp-link", "a.btn-whatsapp"},
				Age:         []string{".annuncio-eta", ".ad-age"},
				Photos:      []string{".annuncio-gallery img", ".ad-gallery img"},
				Zone:        []string{".annuncio-zona", ".ad-zone"},
				Price:       []string{".annuncio-prezzo"},
			}},
		),
		NewSiteAdapter("directory", fetchers,
			[]LinkStrategy{SelectorLinks{".profile-card > a", ".listing-grid .profile a", "li.profile-item a.profile-link"}},
			[]DetailStrategy{SelectorDetail{
				Title:       []string{".profile-name", ".profile-header h1"},
				Description: []string{".profile-bio", ".profile-about"},
				Phone:       []string{".profile-phone", "a.call-button"},
				WhatsApp:    []string{"a.profile-whatsapp"},
				Age:         []string{".profile-age"},
				Photos:      []string{".profile-photos img", ".profile-slider img"},
				Zone:        []string{".profile-area", ".profile-location"},
				Price:       []string{".profile-rate"},
			}},
		),
	)
}
