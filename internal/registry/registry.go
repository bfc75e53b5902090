// Package registry holds the curated institution and industry reference
// lists used for affinity scoring. Registries are built once and never
// mutated afterwards, so they are safe to share between goroutines.
package registry

import (
	"embed"
	"errors"
	"fmt"
	"os"
	"sort"
	"strings"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

//go:embed data/*.yaml
var bundled embed.FS

const (
	institutionsFile = "data/institutions.yaml"
	industriesFile   = "data/industries.yaml"
)

var validate = validator.New()

type Institution struct {
	Name  string  `yaml:"name" json:"name" validate:"required"`
	Score float64 `yaml:"score" json:"score" validate:"gte=0,lte=10"`
}

type Industry struct {
	NameEN string  `yaml:"name_en" json:"name_en" validate:"required_without=NameHE"`
	NameHE string  `yaml:"name_he" json:"name_he" validate:"required_without=NameEN"`
	Score  float64 `yaml:"score" json:"score" validate:"gte=0,lte=10"`
}

// Normalize is the key form used by every registry lookup.
func Normalize(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

type InstitutionRegistry struct {
	entries []Institution
	byName  map[string]Institution
}

// NewInstitutionRegistry indexes entries by normalized name. When two entries
// normalize to the same name the first one is kept.
func NewInstitutionRegistry(entries []Institution) (*InstitutionRegistry, error) {
	r := &InstitutionRegistry{
		entries: make([]Institution, 0, len(entries)),
		byName:  make(map[string]Institution, len(entries)),
	}

	var errs []error
	for idx, entry := range entries {
		if err := validate.Struct(entry); err != nil {
			errs = append(errs, fmt.Errorf("institution #%d %q: %w", idx, entry.Name, err))
			continue
		}
		key := Normalize(entry.Name)
		if _, ok := r.byName[key]; ok {
			continue
		}
		r.byName[key] = entry
		r.entries = append(r.entries, entry)
	}

	if len(errs) > 0 {
		return nil, errors.Join(errs...)
	}
	return r, nil
}

// Lookup finds the institution with the given name after trimming and
// lowercasing both sides. No partial matching is done.
func (r *InstitutionRegistry) Lookup(name string) (Institution, bool) {
	if r == nil {
		return Institution{}, false
	}
	key := Normalize(name)
	if key == "" {
		return Institution{}, false
	}
	entry, ok := r.byName[key]
	return entry, ok
}

func (r *InstitutionRegistry) Len() int {
	if r == nil {
		return 0
	}
	return len(r.entries)
}

// Entries returns a copy of the registry contents in load order.
func (r *InstitutionRegistry) Entries() []Institution {
	if r == nil {
		return nil
	}
	return append([]Institution(nil), r.entries...)
}

type IndustryRegistry struct {
	sectors map[string]sector
}

type sector struct {
	label   string
	entries []Industry
}

func NewIndustryRegistry(sectors map[string][]Industry) (*IndustryRegistry, error) {
	r := &IndustryRegistry{sectors: make(map[string]sector, len(sectors))}

	labels := make([]string, 0, len(sectors))
	for label := range sectors {
		labels = append(labels, label)
	}
	sort.Strings(labels)

	var errs []error
	for _, label := range labels {
		key := Normalize(label)
		if key == "" {
			errs = append(errs, errors.New("industry sector label must not be empty"))
			continue
		}
		if existing, ok := r.sectors[key]; ok {
			errs = append(errs, fmt.Errorf("industry sector %q duplicates %q", label, existing.label))
			continue
		}

		entries := make([]Industry, 0, len(sectors[label]))
		for idx, entry := range sectors[label] {
			if err := validate.Struct(entry); err != nil {
				errs = append(errs, fmt.Errorf("industry %s #%d: %w", label, idx, err))
				continue
			}
			entries = append(entries, entry)
		}
		r.sectors[key] = sector{label: label, entries: entries}
	}

	if len(errs) > 0 {
		return nil, errors.Join(errs...)
	}
	return r, nil
}

// Sector returns the entries registered under the sector label. The label is
// matched case-insensitively.
func (r *IndustryRegistry) Sector(label string) ([]Industry, bool) {
	if r == nil {
		return nil, false
	}
	s, ok := r.sectors[Normalize(label)]
	if !ok {
		return nil, false
	}
	return s.entries, true
}

// Match reports the first entry of the sector whose English or Hebrew name
// equals organization after normalization.
func (r *IndustryRegistry) Match(label, organization string) (Industry, bool) {
	entries, ok := r.Sector(label)
	if !ok {
		return Industry{}, false
	}

	key := Normalize(organization)
	if key == "" {
		return Industry{}, false
	}

	for _, entry := range entries {
		if Normalize(entry.NameEN) == key || Normalize(entry.NameHE) == key {
			return entry, true
		}
	}
	return Industry{}, false
}

// Sectors lists the sector labels as they were loaded, sorted.
func (r *IndustryRegistry) Sectors() []string {
	if r == nil {
		return nil
	}
	labels := make([]string, 0, len(r.sectors))
	for _, s := range r.sectors {
		labels = append(labels, s.label)
	}
	sort.Strings(labels)
	return labels
}

// Registries bundles both reference lists.
type Registries struct {
	Institutions *InstitutionRegistry
	Industries   *IndustryRegistry
}

// Load reads the registries from the given YAML files. An empty path selects
// the list bundled with the binary.
func Load(institutionsPath, industriesPath string) (*Registries, error) {
	instData, err := readSource(institutionsPath, institutionsFile)
	if err != nil {
		return nil, err
	}
	var institutions []Institution
	if err := yaml.Unmarshal(instData, &institutions); err != nil {
		return nil, fmt.Errorf("parsing institutions: %w", err)
	}
	inst, err := NewInstitutionRegistry(institutions)
	if err != nil {
		return nil, fmt.Errorf("institutions: %w", err)
	}

	indData, err := readSource(industriesPath, industriesFile)
	if err != nil {
		return nil, err
	}
	var industries map[string][]Industry
	if err := yaml.Unmarshal(indData, &industries); err != nil {
		return nil, fmt.Errorf("parsing industries: %w", err)
	}
	ind, err := NewIndustryRegistry(industries)
	if err != nil {
		return nil, fmt.Errorf("industries: %w", err)
	}

	return &Registries{Institutions: inst, Industries: ind}, nil
}

// Default returns the bundled registries.
func Default() (*Registries, error) {
	return Load("", "")
}

func readSource(path, fallback string) ([]byte, error) {
	if path = strings.TrimSpace(path); path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("reading registry file: %w", err)
		}
		return data, nil
	}

	data, err := bundled.ReadFile(fallback)
	if err != nil {
		return nil, fmt.Errorf("reading bundled registry %s: %w", fallback, err)
	}
	return data, nil
}
