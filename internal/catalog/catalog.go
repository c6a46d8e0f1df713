// Package catalog loads the entity catalogs and merges per-entity fact data
// from multiple JSON sources keyed by normalized display name.
package catalog

import (
	"encoding/json"
	"fmt"
	"os"
	"sort"
	"strings"
)

// Entity is one catalog item from the working entity list.
type Entity struct {
	Name     string `json:"name"`
	Category string `json:"category,omitempty"`
	Fact     string `json:"fact,omitempty"`
}

// ID returns the entity's filesystem-safe identifier.
func (e Entity) ID() string { return Identifier(e.Name) }

// Facts is the merged, typed fact record for one entity. Every field is
// optional; a zero Facts means no source had anything for the entity.
type Facts struct {
	// Simple is the curated kid-friendly fact line (fact_level_1).
	Simple string
	// Flat is the single-string fact carried on the working catalog entry.
	Flat string
	// Detail sub-facts (fact_level_2).
	Size        string
	UniqueTrait string
	Habitat     string
}

// Empty reports whether no usable fact data exists.
func (f Facts) Empty() bool {
	return f.Simple == "" && f.Flat == "" && f.Size == "" && f.UniqueTrait == "" && f.Habitat == ""
}

// Best returns the preferred single fact string: curated simple fact, then
// the flat fact, then any detail sub-fact.
func (f Facts) Best() string {
	for _, candidate := range []string{f.Simple, f.Flat, f.UniqueTrait, f.Habitat, f.Size} {
		if strings.TrimSpace(candidate) != "" {
			return strings.TrimSpace(candidate)
		}
	}
	return ""
}

// factRow is the on-disk shape shared by the rich catalog and the
// supplementary facts table.
type factRow struct {
	Name       string `json:"name"`
	Fact       string `json:"fact"`
	FactLevel1 string `json:"fact_level_1"`
	FactLevel2 struct {
		SizeDetails string `json:"size_details"`
		UniqueFact  string `json:"unique_fact"`
		Habitat     string `json:"habitat"`
	} `json:"fact_level_2"`
}

// Resolver joins the working catalog with the rich and supplementary fact
// tables. It performs no I/O after construction.
type Resolver struct {
	entities   []Entity
	working    map[string]Entity
	rich       map[string]factRow
	supplement map[string]factRow
}

// Sources names the three catalog files a Resolver is built from. Missing
// optional files (rich catalog, facts table) are tolerated; the working
// catalog is required.
type Sources struct {
	CatalogFile     string
	RichCatalogFile string
	FactsFile       string
}

// Load reads the source tables and builds a Resolver.
func Load(src Sources) (*Resolver, error) {
	var entities []Entity
	if err := readJSONFile(src.CatalogFile, &entities); err != nil {
		return nil, fmt.Errorf("load catalog: %w", err)
	}

	var rich, supplement []factRow
	if src.RichCatalogFile != "" {
		// Optional: absence just means fewer facts to draw on.
		if err := readJSONFile(src.RichCatalogFile, &rich); err != nil && !os.IsNotExist(err) {
			return nil, fmt.Errorf("load rich catalog: %w", err)
		}
	}
	if src.FactsFile != "" {
		if err := readJSONFile(src.FactsFile, &supplement); err != nil && !os.IsNotExist(err) {
			return nil, fmt.Errorf("load facts table: %w", err)
		}
	}

	return NewResolver(entities, rich, supplement), nil
}

// NewResolver builds a Resolver from already-decoded tables. On normalized
// name collisions within a table, the first-loaded row wins, matching how the
// datasets were curated.
func NewResolver(entities []Entity, rich, supplement []factRow) *Resolver {
	r := &Resolver{
		entities:   entities,
		working:    make(map[string]Entity, len(entities)),
		rich:       make(map[string]factRow, len(rich)),
		supplement: make(map[string]factRow, len(supplement)),
	}
	for _, e := range entities {
		if key := NormalizeName(e.Name); key != "" {
			r.working[key] = e
		}
	}
	for _, row := range rich {
		if key := NormalizeName(row.Name); key != "" {
			if _, exists := r.rich[key]; !exists {
				r.rich[key] = row
			}
		}
	}
	for _, row := range supplement {
		if key := NormalizeName(row.Name); key != "" {
			if _, exists := r.supplement[key]; !exists {
				r.supplement[key] = row
			}
		}
	}
	return r
}

// Entities returns the working catalog in file order.
func (r *Resolver) Entities() []Entity { return r.entities }

// FilterCategory returns the entities whose category matches (case-insensitive).
func (r *Resolver) FilterCategory(category string) []Entity {
	want := strings.ToLower(strings.TrimSpace(category))
	if want == "" {
		return r.entities
	}
	var out []Entity
	for _, e := range r.entities {
		if strings.ToLower(strings.TrimSpace(e.Category)) == want {
			out = append(out, e)
		}
	}
	return out
}

// Categories returns the distinct non-empty categories, sorted.
func (r *Resolver) Categories() []string {
	seen := map[string]struct{}{}
	for _, e := range r.entities {
		if c := strings.TrimSpace(e.Category); c != "" {
			seen[c] = struct{}{}
		}
	}
	out := make([]string, 0, len(seen))
	for c := range seen {
		out = append(out, c)
	}
	sort.Strings(out)
	return out
}

// Merged returns the fact record for a display name, combining the rich
// dataset, the supplementary table, and the working entry in increasing
// priority. Detail sub-facts merge field by field: the rich dataset provides
// defaults, the supplementary table overrides. An entity present in no source
// yields an empty (but valid) record.
func (r *Resolver) Merged(displayName string) Facts {
	key := NormalizeName(displayName)
	richRow := r.rich[key]
	suppRow := r.supplement[key]
	working := r.working[key]

	facts := Facts{
		Simple:      firstNonEmpty(suppRow.FactLevel1, richRow.FactLevel1),
		Flat:        firstNonEmpty(suppRow.Fact, richRow.Fact),
		Size:        firstNonEmpty(suppRow.FactLevel2.SizeDetails, richRow.FactLevel2.SizeDetails),
		UniqueTrait: firstNonEmpty(suppRow.FactLevel2.UniqueFact, richRow.FactLevel2.UniqueFact),
		Habitat:     firstNonEmpty(suppRow.FactLevel2.Habitat, richRow.FactLevel2.Habitat),
	}

	// The working entry carries at most a flat fact string; promote it to the
	// simple fact when no richer source supplied one.
	if facts.Simple == "" && strings.TrimSpace(working.Fact) != "" {
		facts.Simple = strings.TrimSpace(working.Fact)
	}
	if facts.Flat == "" && strings.TrimSpace(working.Fact) != "" {
		facts.Flat = strings.TrimSpace(working.Fact)
	}
	return facts
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if trimmed := strings.TrimSpace(v); trimmed != "" {
			return trimmed
		}
	}
	return ""
}

func readJSONFile(path string, target any) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(data, target); err != nil {
		return fmt.Errorf("parse %s: %w", path, err)
	}
	return nil
}
