package scraper

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/simodepertis/frontend-sub001/internal/models"
)

// Selectors are per-source CSS hints tried before the adapter's built-in strategies.
type Selectors struct {
	Links       []string `json:"links,omitempty"`
	Title       []string `json:"title,omitempty"`
	Description []string `json:"description,omitempty"`
	Phone       []string `json:"phone,omitempty"`
	WhatsApp    []string `json:"whatsapp,omitempty"`
	Age         []string `json:"age,omitempty"`
	Photos      []string `json:"photos,omitempty"`
	Zone        []string `json:"zone,omitempty"`
	Price       []string `json:"price,omitempty"`
}

// SourceConfig is one crawl target: a listing page for a category in a city.
type SourceConfig struct {
	Name      string          `json:"name"`
	URL       string          `json:"url"`
	Category  models.Category `json:"category"`
	City      string          `json:"city"`
	Adapter   string          `json:"adapter,omitempty"`
	Browser   bool            `json:"browser,omitempty"`
	Selectors Selectors       `json:"selectors,omitempty"`
}

func (s SourceConfig) Validate() error {
	if strings.TrimSpace(s.URL) == "" {
		return fmt.Errorf("source %q: url is required", s.Name)
	}
	if !s.Category.Valid() {
		return fmt.Errorf("source %q: unknown category %q", s.Name, s.Category)
	}
	if strings.TrimSpace(s.City) == "" {
		return fmt.Errorf("source %q: city is required", s.Name)
	}
	return nil
}

// LoadSources reads a JSON array of source configs.
func LoadSources(path string) ([]SourceConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read sources file: %w", err)
	}
	var sources []SourceConfig
	if err := json.Unmarshal(data, &sources); err != nil {
		return nil, fmt.Errorf("decode sources file: %w", err)
	}
	for i := range sources {
		if sources[i].Name == "" {
			sources[i].Name = fmt.Sprintf("%s-%s", strings.ToLower(string(sources[i].Category)), strings.ToLower(sources[i].City))
		}
		if err := sources[i].Validate(); err != nil {
			return nil, err
		}
	}
	return sources, nil
}
