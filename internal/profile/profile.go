// Package profile holds the presentation of the form: headings, copy text,
// and the training range of each feature.
package profile

import (
	_ "embed"
	"fmt"
	"os"
	"strings"
	"sync"

	"gopkg.in/yaml.v3"

	"github.com/kartoza/soc-estimator/internal/form"
	"github.com/kartoza/soc-estimator/internal/models"
)

//go:embed default.yaml
var defaultYAML []byte

// Display selects how a prediction is rendered
type Display string

const (
	DisplayPercent Display = "percent"
	DisplayRaw     Display = "raw"
)

// Profile is the user-facing copy of the estimator
type Profile struct {
	Name        string           `json:"name" yaml:"name"`
	Title       string           `json:"title" yaml:"title"`
	Description string           `json:"description" yaml:"description"`
	Note        string           `json:"note" yaml:"note"`
	Button      string           `json:"button" yaml:"button"`
	ResultLabel string           `json:"resultLabel" yaml:"result_label"`
	Display     Display          `json:"display" yaml:"display"`
	Features    []models.Feature `json:"features" yaml:"features"`
}

// Default returns the embedded profile
func Default() *Profile {
	var p Profile
	if err := yaml.Unmarshal(defaultYAML, &p); err != nil {
		panic(fmt.Sprintf("embedded profile is invalid: %v", err))
	}
	return &p
}

// Load reads a profile file on top of the embedded defaults.
// An empty path returns the defaults.
func Load(path string) (*Profile, error) {
	p := Default()
	if path == "" {
		return p, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read profile: %w", err)
	}
	if err := yaml.Unmarshal(data, p); err != nil {
		return nil, fmt.Errorf("failed to parse profile: %w", err)
	}
	if err := p.Validate(); err != nil {
		return nil, err
	}
	return p, nil
}

// Validate checks the feature table matches the fixed reading vector
func (p *Profile) Validate() error {
	if len(p.Features) != models.FieldCount {
		return fmt.Errorf("profile %q: expected %d features, got %d", p.Name, models.FieldCount, len(p.Features))
	}
	for i, f := range p.Features {
		if f.Label != models.Labels[i] {
			return fmt.Errorf("profile %q: feature %d must be %q, got %q", p.Name, i, models.Labels[i], f.Label)
		}
		if f.Min > f.Max {
			return fmt.Errorf("profile %q: feature %q has min %v above max %v", p.Name, f.Label, f.Min, f.Max)
		}
	}
	switch p.Display {
	case DisplayPercent, DisplayRaw:
	default:
		return fmt.Errorf("profile %q: unknown display %q", p.Name, p.Display)
	}
	return nil
}

// Placeholder returns the hint text for an input field
func (p *Profile) Placeholder(index int) string {
	return "Enter " + strings.ToLower(p.Features[index].Label)
}

// FeatureLine describes a feature with its training range
func (p *Profile) FeatureLine(index int) string {
	f := p.Features[index]
	return fmt.Sprintf("%s: Min = %g, Max = %g", f.Label, f.Min, f.Max)
}

// FormatResult renders a prediction according to the display mode
func (p *Profile) FormatResult(v float64) string {
	if p.Display == DisplayRaw {
		return form.FormatRaw(v)
	}
	return form.FormatPercent(v)
}

// ResultLine is the full result text, e.g. "Predicted SOC: 87.00%"
func (p *Profile) ResultLine(v float64) string {
	return p.ResultLabel + ": " + p.FormatResult(v)
}

// Markdown renders the header and feature ranges for terminal output
func (p *Profile) Markdown() string {
	var b strings.Builder
	fmt.Fprintf(&b, "# %s\n\n%s\n\n> **Note:** %s\n\n", p.Title, p.Description, p.Note)
	b.WriteString("| Feature | Min | Max |\n|---|---|---|\n")
	for _, f := range p.Features {
		fmt.Fprintf(&b, "| %s | %g | %g |\n", strings.ReplaceAll(f.Label, "|", "\\|"), f.Min, f.Max)
	}
	return b.String()
}

// Store holds the active profile and notifies subscribers when it changes
type Store struct {
	mu          sync.RWMutex
	current     *Profile
	revision    uint64
	subscribers []func(*Profile)
}

// NewStore creates a store with an initial profile
func NewStore(p *Profile) *Store {
	return &Store{current: p}
}

// Current returns the active profile
func (s *Store) Current() *Profile {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.current
}

// Revision counts the replacements made with Set
func (s *Store) Revision() uint64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.revision
}

// Set replaces the active profile
func (s *Store) Set(p *Profile) {
	s.mu.Lock()
	s.current = p
	s.revision++
	subs := append([]func(*Profile){}, s.subscribers...)
	s.mu.Unlock()

	for _, fn := range subs {
		fn(p)
	}
}

// Subscribe registers a callback run after every Set
func (s *Store) Subscribe(fn func(*Profile)) {
	s.mu.Lock()
	s.subscribers = append(s.subscribers, fn)
	s.mu.Unlock()
}
