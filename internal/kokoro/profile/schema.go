package profile

import (
	"encoding/json"
	"fmt"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

// Schema variants share the base character field set; each variant adds its
// own typed optional fields. The constraint tables below are data; adding a
// variant field never touches normalization control flow.

var baseProperties = map[string]any{
	"name":        map[string]any{"type": "string", "minLength": 1},
	"personality": map[string]any{"type": "string", "minLength": 1},
	"gender":      map[string]any{"enum": []any{"男性", "女性", "其他", "未知"}},
	"age":         map[string]any{"type": []any{"string", "number"}},
	"race":        map[string]any{"type": "string"},
	"appearance":  map[string]any{"type": "string"},
	"clothing":    map[string]any{"type": "string"},
	"traits":      stringArraySchema(),
	"skills":      stringArraySchema(),
	"quirks":      stringArraySchema(),
	"goals":       map[string]any{"type": "string"},
	"backstory":   map[string]any{"type": "string"},
	"weapon": map[string]any{
		"type":     "object",
		"required": []any{"name", "type"},
		"properties": map[string]any{
			"name":        map[string]any{"type": "string", "minLength": 1},
			"type":        map[string]any{"type": "string", "minLength": 1},
			"abilities":   map[string]any{"type": "string"},
			"origin":      map[string]any{"type": "string"},
			"appearance":  map[string]any{"type": "string"},
			"limitations": map[string]any{"type": "string"},
		},
	},
	"teammates": map[string]any{
		"type": "array",
		"items": map[string]any{
			"type":     "object",
			"required": []any{"name", "role"},
			"properties": map[string]any{
				"name":         map[string]any{"type": "string", "minLength": 1},
				"role":         map[string]any{"type": "string", "minLength": 1},
				"relationship": map[string]any{"type": "string"},
				"status":       map[string]any{"enum": []any{"alive", "dead", "missing"}},
			},
		},
	},
}

// variantProperties lists the extra typed optional fields per variant.
var variantProperties = map[Variant]map[string]any{
	VariantDefault: {},
	VariantFantasy: {
		"magic_system": map[string]any{"type": "string"},
		"kingdom":      map[string]any{"type": "string"},
		"title":        map[string]any{"type": "string"},
		"alignment":    map[string]any{"type": "string"},
	},
	VariantSciFi: {
		"tech_level":   map[string]any{"type": "string"},
		"organization": map[string]any{"type": "string"},
		"cybernetics":  stringArraySchema(),
		"spaceship":    map[string]any{"type": "object"},
	},
	VariantModern: {
		"occupation": map[string]any{"type": "string"},
		"education":  map[string]any{"type": "string"},
		"family":     stringArraySchema(),
		"hobbies":    stringArraySchema(),
	},
	VariantHistorical: {
		"era":              map[string]any{"type": "string"},
		"dynasty":          map[string]any{"type": "string"},
		"social_class":     map[string]any{"type": "string"},
		"historical_facts": stringArraySchema(),
	},
}

func stringArraySchema() map[string]any {
	return map[string]any{"type": "array", "items": map[string]any{"type": "string"}}
}

// variantSchemas holds the compiled JSON Schema per variant, built once at
// package load. The schema sources are program constants, so compilation
// failure is a programming error.
var variantSchemas = compileVariantSchemas()

func compileVariantSchemas() map[Variant]*jsonschema.Schema {
	out := make(map[Variant]*jsonschema.Schema, len(variantProperties))
	for variant, extra := range variantProperties {
		props := make(map[string]any, len(baseProperties)+len(extra))
		for k, v := range baseProperties {
			props[k] = v
		}
		for k, v := range extra {
			props[k] = v
		}
		doc := map[string]any{
			"type":       "object",
			"required":   []any{"name", "personality"},
			"properties": props,
			// Unknown custom fields are allowed everywhere; they are carried
			// in Profile.Custom rather than rejected.
			"additionalProperties": true,
		}
		src, err := json.Marshal(doc)
		if err != nil {
			panic(fmt.Sprintf("profile: marshal %s schema: %v", variant, err))
		}
		out[variant] = jsonschema.MustCompileString(string(variant)+".json", string(src))
	}
	return out
}

// validateAgainst checks doc (a plain JSON-decoded value) against the
// variant's schema. The default schema backs any variant without one.
func validateAgainst(variant Variant, doc any) error {
	sch, ok := variantSchemas[variant]
	if !ok {
		sch = variantSchemas[VariantDefault]
	}
	return sch.Validate(doc)
}

// canonicalFields is the set of field names the typed Profile struct models.
// Everything else lands in Profile.Custom.
var canonicalFields = map[string]struct{}{
	"name": {}, "personality": {}, "gender": {}, "age": {}, "race": {},
	"appearance": {}, "clothing": {}, "traits": {}, "skills": {},
	"quirks": {}, "weapon": {}, "teammates": {}, "goals": {}, "backstory": {},
}
