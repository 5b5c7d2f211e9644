package profile

import (
	"encoding/json"
	"fmt"
	"strings"
)

// parseFailedPersonality is the placeholder personality for profiles that
// could not be parsed at all.
const parseFailedPersonality = "配置解析失败"

// Normalize turns an arbitrary raw character description into a canonical
// Profile. It never returns an error: validation failures degrade to a raw,
// aliased-but-unvalidated profile and total parse failures degrade to a
// minimal stub, both carrying Validated=false and a warning. The turn
// proceeds with whatever profile results.
//
// Accepted raw shapes: a string-keyed map, a serialized JSON string or
// []byte (with lenient repair, see repair.go), a previously normalized
// *Profile, or any other value, which is stringified into a content field.
func Normalize(personaName string, raw any) *Profile {
	m, err := toMap(raw)
	if err != nil {
		return stubProfile(personaName, err)
	}

	variant := detectVariant(m)
	aliased := applyAliases(m)

	// Round-trip through JSON so the validator and the field extractors see
	// plain decoded values regardless of what the caller handed in.
	doc, err := toPlainDoc(aliased)
	if err != nil {
		return stubProfile(personaName, err)
	}

	if err := validateDoc(variant, doc); err != nil {
		return rawProfile(personaName, doc, err)
	}

	p := extractProfile(doc)
	p.SchemaType = variant
	p.Validated = true
	return p
}

// toMap coerces the raw input into a string-keyed map. Non-map, non-JSON
// input becomes {"content": <stringified input>}.
func toMap(raw any) (map[string]any, error) {
	switch v := raw.(type) {
	case nil:
		return nil, fmt.Errorf("profile: no configuration provided")
	case map[string]any:
		return v, nil
	case map[string]string:
		m := make(map[string]any, len(v))
		for k, s := range v {
			m[k] = s
		}
		return m, nil
	case *Profile:
		return v.Fields(), nil
	case Profile:
		return v.Fields(), nil
	case []byte:
		return stringToMap(string(v))
	case string:
		return stringToMap(v)
	case json.RawMessage:
		return stringToMap(string(v))
	default:
		return map[string]any{"content": fmt.Sprint(raw)}, nil
	}
}

func stringToMap(s string) (map[string]any, error) {
	if strings.TrimSpace(s) == "" {
		return nil, fmt.Errorf("profile: empty configuration")
	}
	if m, ok := decodeJSONMap(s); ok {
		return m, nil
	}
	return map[string]any{"content": s}, nil
}

func toPlainDoc(m map[string]any) (map[string]any, error) {
	b, err := json.Marshal(m)
	if err != nil {
		return nil, fmt.Errorf("profile: serialize configuration: %w", err)
	}
	var doc map[string]any
	if err := json.Unmarshal(b, &doc); err != nil {
		return nil, fmt.Errorf("profile: reparse configuration: %w", err)
	}
	return doc, nil
}

// validateDoc runs the variant schema plus the checks JSON Schema cannot
// express (whitespace-only names).
func validateDoc(variant Variant, doc map[string]any) error {
	if err := validateAgainst(variant, any(doc)); err != nil {
		return err
	}
	if name, _ := doc["name"].(string); strings.TrimSpace(name) == "" {
		return fmt.Errorf("name must not be blank")
	}
	if pers, _ := doc["personality"].(string); strings.TrimSpace(pers) == "" {
		return fmt.Errorf("personality must not be blank")
	}
	return nil
}

// extractProfile builds a typed Profile from a schema-valid document.
func extractProfile(doc map[string]any) *Profile {
	p := &Profile{
		Name:        strings.TrimSpace(asString(doc["name"])),
		Personality: strings.TrimSpace(asString(doc["personality"])),
		Gender:      asString(doc["gender"]),
		Age:         asString(doc["age"]),
		Race:        asString(doc["race"]),
		Appearance:  asString(doc["appearance"]),
		Clothing:    asString(doc["clothing"]),
		Traits:      asStringSlice(doc["traits"]),
		Skills:      asStringSlice(doc["skills"]),
		Quirks:      asStringSlice(doc["quirks"]),
		Goals:       asString(doc["goals"]),
		Backstory:   asString(doc["backstory"]),
		Weapon:      asWeapon(doc["weapon"]),
		Teammates:   asTeammates(doc["teammates"]),
	}
	if p.Gender == "" {
		p.Gender = genderUnknown
	}

	for key, value := range doc {
		if _, known := canonicalFields[key]; known {
			continue
		}
		if p.Custom == nil {
			p.Custom = make(map[string]any)
		}
		p.Custom[key] = value
	}
	return p
}

// rawProfile is the degraded result for documents that fail validation: the
// aliased map is kept best-effort, annotated rather than rejected.
func rawProfile(personaName string, doc map[string]any, valErr error) *Profile {
	p := extractProfile(doc)
	if p.Name == "" {
		p.Name = personaName
	}
	if p.Personality == "" {
		p.Personality = "未知"
	}
	p.SchemaType = VariantRaw
	p.Validated = false
	p.Warning = valErr.Error()
	return p
}

// stubProfile is the last-resort result when the input cannot be interpreted
// as a configuration at all.
func stubProfile(personaName string, err error) *Profile {
	return &Profile{
		Name:        personaName,
		Personality: parseFailedPersonality,
		Gender:      genderUnknown,
		SchemaType:  VariantRaw,
		Validated:   false,
		Warning:     err.Error(),
	}
}

// --- lenient coercions -----------------------------------------------------
//
// The validated path sees schema-conforming values; the raw fallback path
// sees anything. Both share these helpers, which coerce rather than fail.

func asString(v any) string {
	switch s := v.(type) {
	case nil:
		return ""
	case string:
		return s
	case float64:
		// JSON numbers decode as float64; render integers without a fraction.
		if s == float64(int64(s)) {
			return fmt.Sprintf("%d", int64(s))
		}
		return fmt.Sprintf("%g", s)
	case bool:
		return fmt.Sprintf("%t", s)
	default:
		return fmt.Sprint(v)
	}
}

func asStringSlice(v any) []string {
	switch s := v.(type) {
	case nil:
		return nil
	case []string:
		return s
	case []any:
		out := make([]string, 0, len(s))
		for _, item := range s {
			if str := asString(item); str != "" {
				out = append(out, str)
			}
		}
		return out
	case string:
		if s == "" {
			return nil
		}
		return []string{s}
	default:
		return []string{asString(v)}
	}
}

func asWeapon(v any) *Weapon {
	m, ok := v.(map[string]any)
	if !ok {
		return nil
	}
	return &Weapon{
		Name:        asString(m["name"]),
		Type:        asString(m["type"]),
		Abilities:   asString(m["abilities"]),
		Origin:      asString(m["origin"]),
		Appearance:  asString(m["appearance"]),
		Limitations: asString(m["limitations"]),
	}
}

func asTeammates(v any) []Teammate {
	items, ok := v.([]any)
	if !ok {
		return nil
	}
	out := make([]Teammate, 0, len(items))
	for _, item := range items {
		m, ok := item.(map[string]any)
		if !ok {
			out = append(out, Teammate{Name: asString(item)})
			continue
		}
		out = append(out, Teammate{
			Name:         asString(m["name"]),
			Role:         asString(m["role"]),
			Relationship: asString(m["relationship"]),
			Status:       asString(m["status"]),
		})
	}
	return out
}
