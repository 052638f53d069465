package scraper

import (
	_ "embed"
	"fmt"
	"os"
	"regexp"

	"github.com/andybalholm/cascadia"
	"gopkg.in/yaml.v3"
)

//go:embed markers.yaml
var defaultMarkersYAML []byte

// Markers holds the site-specific selectors and phrases the parser and the
// challenge detector work from. Nothing site-specific is hard-coded in Go.
type Markers struct {
	NameSelectors          []string          `yaml:"name_selectors"`
	PriceSelectors         []string          `yaml:"price_selectors"`
	CurrentPriceSelectors  []string          `yaml:"current_price_selectors"`
	OriginalPriceSelectors []string          `yaml:"original_price_selectors"`
	MainContentSelectors   []string          `yaml:"main_content_selectors"`
	ExcludeSelectors       []string          `yaml:"exclude_selectors"`
	Challenge              ChallengeMarkers  `yaml:"challenge"`
	CurrencySymbols        map[string]string `yaml:"currency_symbols"`
}

// ChallengeMarkers are case-insensitive regular expressions. A strong marker
// alone identifies a bot-protection page; weak markers need corroboration.
type ChallengeMarkers struct {
	Strong []string `yaml:"strong"`
	Weak   []string `yaml:"weak"`
}

// DefaultMarkers returns the embedded marker data.
func DefaultMarkers() (*Markers, error) {
	var m Markers
	if err := yaml.Unmarshal(defaultMarkersYAML, &m); err != nil {
		return nil, fmt.Errorf("failed to parse embedded markers: %w", err)
	}
	return &m, m.Validate()
}

// LoadMarkers reads marker data from path. Sections absent from the file
// keep their embedded defaults. An empty path returns the defaults.
func LoadMarkers(path string) (*Markers, error) {
	m, err := DefaultMarkers()
	if err != nil {
		return nil, err
	}
	if path == "" {
		return m, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read markers file: %w", err)
	}
	var override Markers
	if err := yaml.Unmarshal(data, &override); err != nil {
		return nil, fmt.Errorf("failed to parse markers file %s: %w", path, err)
	}
	m.merge(&override)
	return m, m.Validate()
}

func (m *Markers) merge(o *Markers) {
	replace := func(dst *[]string, src []string) {
		if len(src) > 0 {
			*dst = src
		}
	}
	replace(&m.NameSelectors, o.NameSelectors)
	replace(&m.PriceSelectors, o.PriceSelectors)
	replace(&m.CurrentPriceSelectors, o.CurrentPriceSelectors)
	replace(&m.OriginalPriceSelectors, o.OriginalPriceSelectors)
	replace(&m.MainContentSelectors, o.MainContentSelectors)
	replace(&m.ExcludeSelectors, o.ExcludeSelectors)
	replace(&m.Challenge.Strong, o.Challenge.Strong)
	replace(&m.Challenge.Weak, o.Challenge.Weak)
	for sym, code := range o.CurrencySymbols {
		if m.CurrencySymbols == nil {
			m.CurrencySymbols = make(map[string]string)
		}
		m.CurrencySymbols[sym] = code
	}
}

// Validate checks that the marker data is usable.
func (m *Markers) Validate() error {
	if len(m.PriceSelectors) == 0 {
		return fmt.Errorf("markers: price_selectors must not be empty")
	}
	if len(m.MainContentSelectors) == 0 {
		return fmt.Errorf("markers: main_content_selectors must not be empty")
	}
	selectorLists := [][]string{
		m.NameSelectors,
		m.PriceSelectors,
		m.CurrentPriceSelectors,
		m.OriginalPriceSelectors,
		m.MainContentSelectors,
		m.ExcludeSelectors,
	}
	for _, list := range selectorLists {
		for _, sel := range list {
			if _, err := cascadia.ParseGroup(sel); err != nil {
				return fmt.Errorf("markers: invalid selector %q: %w", sel, err)
			}
		}
	}
	for _, expr := range append(append([]string{}, m.Challenge.Strong...), m.Challenge.Weak...) {
		if _, err := regexp.Compile("(?i)" + expr); err != nil {
			return fmt.Errorf("markers: invalid challenge pattern %q: %w", expr, err)
		}
	}
	return nil
}

// YAML renders the marker data in the same format LoadMarkers reads.
func (m *Markers) YAML() ([]byte, error) {
	return yaml.Marshal(m)
}
