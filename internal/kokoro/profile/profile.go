// Package profile normalizes heterogeneous, user-authored character
// descriptions into a canonical, schema-validated profile.
//
// Raw profiles arrive as structured maps, serialized JSON strings (possibly
// malformed, see repair.go), or opaque text. Normalization detects a schema
// variant from the content, maps natural-language field names (in several
// scripts) onto canonical ones, validates the result against the variant's
// JSON Schema, and merges unrecognized custom fields back in.
//
// Normalization never fails the turn: a profile that does not validate is
// returned best-effort with Validated=false and a human-readable warning,
// and a profile that cannot be parsed at all degrades to a minimal stub.
package profile

import (
	"encoding/json"
	"fmt"
	"sort"
)

// Variant identifies which character schema a profile was validated against.
type Variant string

const (
	VariantDefault    Variant = "default"
	VariantFantasy    Variant = "fantasy"
	VariantSciFi      Variant = "sci_fi"
	VariantModern     Variant = "modern"
	VariantHistorical Variant = "historical"

	// VariantRaw marks a profile that failed schema validation and is kept
	// as-is, aliased but unvalidated.
	VariantRaw Variant = "raw"
)

// Default gender value when a profile does not state one.
const genderUnknown = "未知"

// Weapon is the structured weapon record a profile may carry.
type Weapon struct {
	Name        string `json:"name"`
	Type        string `json:"type"`
	Abilities   string `json:"abilities,omitempty"`
	Origin      string `json:"origin,omitempty"`
	Appearance  string `json:"appearance,omitempty"`
	Limitations string `json:"limitations,omitempty"`
}

// Teammate is a companion record a profile may carry.
type Teammate struct {
	Name         string `json:"name"`
	Role         string `json:"role"`
	Relationship string `json:"relationship,omitempty"`
	Status       string `json:"status,omitempty"` // alive/dead/missing
}

// Profile is a canonical character profile: the typed base field set shared
// by all schema variants plus a string-keyed overflow map for everything the
// schema does not know about (variant-specific fields and user extras).
//
// Name and Personality are always non-empty after Normalize.
type Profile struct {
	Name        string     `json:"name"`
	Personality string     `json:"personality"`
	Gender      string     `json:"gender,omitempty"`
	Age         string     `json:"age,omitempty"`
	Race        string     `json:"race,omitempty"`
	Appearance  string     `json:"appearance,omitempty"`
	Clothing    string     `json:"clothing,omitempty"`
	Traits      []string   `json:"traits,omitempty"`
	Skills      []string   `json:"skills,omitempty"`
	Quirks      []string   `json:"quirks,omitempty"`
	Weapon      *Weapon    `json:"weapon,omitempty"`
	Teammates   []Teammate `json:"teammates,omitempty"`
	Goals       string     `json:"goals,omitempty"`
	Backstory   string     `json:"backstory,omitempty"`

	// Custom holds fields the canonical schema does not model, preserved
	// verbatim so user-authored detail survives a normalize round-trip.
	Custom map[string]any `json:"custom,omitempty"`

	// SchemaType is the variant the profile was validated against, or
	// VariantRaw when validation failed.
	SchemaType Variant `json:"schema_type"`

	// Validated reports whether the profile passed schema validation.
	Validated bool `json:"validated"`

	// Warning is a human-readable description of why validation failed.
	// Empty when Validated is true.
	Warning string `json:"warning,omitempty"`
}

// Fields renders the profile back into a flat canonical map: typed fields
// under their canonical names with custom fields merged in. Empty optional
// fields are omitted. Normalizing the result of Fields yields the same
// canonical fields again (normalization is idempotent).
func (p *Profile) Fields() map[string]any {
	m := make(map[string]any, len(p.Custom)+16)
	for k, v := range p.Custom {
		m[k] = v
	}

	m["name"] = p.Name
	m["personality"] = p.Personality
	putString(m, "gender", p.Gender)
	putString(m, "age", p.Age)
	putString(m, "race", p.Race)
	putString(m, "appearance", p.Appearance)
	putString(m, "clothing", p.Clothing)
	putString(m, "goals", p.Goals)
	putString(m, "backstory", p.Backstory)
	putStrings(m, "traits", p.Traits)
	putStrings(m, "skills", p.Skills)
	putStrings(m, "quirks", p.Quirks)

	if p.Weapon != nil {
		m["weapon"] = structToMap(p.Weapon)
	}
	if len(p.Teammates) > 0 {
		tms := make([]any, 0, len(p.Teammates))
		for i := range p.Teammates {
			tms = append(tms, structToMap(&p.Teammates[i]))
		}
		m["teammates"] = tms
	}

	return m
}

// CustomKeys returns the overflow field names in sorted order. Used by the
// API layer to report which fields were kept outside the schema.
func (p *Profile) CustomKeys() []string {
	keys := make([]string, 0, len(p.Custom))
	for k := range p.Custom {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func putString(m map[string]any, key, val string) {
	if val != "" {
		m[key] = val
	}
}

func putStrings(m map[string]any, key string, vals []string) {
	if len(vals) > 0 {
		out := make([]any, len(vals))
		for i, v := range vals {
			out[i] = v
		}
		m[key] = out
	}
}

// structToMap converts a small struct to its JSON map form. The records
// involved (Weapon, Teammate) marshal without error.
func structToMap(v any) map[string]any {
	b, err := json.Marshal(v)
	if err != nil {
		return map[string]any{"value": fmt.Sprint(v)}
	}
	var m map[string]any
	if err := json.Unmarshal(b, &m); err != nil {
		return map[string]any{"value": string(b)}
	}
	return m
}
