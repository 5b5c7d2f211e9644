// Package catalog loads persona definitions from YAML files and seeds them
// into the store at startup. The catalog directory is the operator-facing way
// to ship personas; the HTTP API can still create and edit them afterwards.
package catalog

import (
	"context"
	"fmt"
	"io/fs"
	"log/slog"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/bdobrica/Kokoro/internal/kokoro/profile"
	"github.com/bdobrica/Kokoro/internal/kokoro/store"
)

// Definition is one persona YAML document.
type Definition struct {
	// Name is the unique slug the API addresses the persona by.
	Name string `yaml:"name"`
	// DisplayName is shown to users and used in prompt templates. Defaults
	// to Name.
	DisplayName string `yaml:"display_name"`
	// Profile is the raw character description; it goes through the same
	// normalization as API-submitted profiles.
	Profile map[string]any `yaml:"profile"`
	// BackgroundStory feeds the system prompt's background section.
	BackgroundStory string `yaml:"background_story"`
	// OpeningStatement is the persona's canned first reply in every new
	// conversation.
	OpeningStatement string `yaml:"opening_statement"`
	// Model overrides the provider's default model for this persona.
	Model string `yaml:"model"`
	// Output constraints; zeroes mean formatter defaults.
	MaxLength   int    `yaml:"max_length"`
	FormatRules string `yaml:"format_rules"`
	Example     string `yaml:"example"`
}

// Parse decodes one YAML document into a Definition and checks the fields
// normalization cannot repair.
func Parse(data []byte) (*Definition, error) {
	var def Definition
	if err := yaml.Unmarshal(data, &def); err != nil {
		return nil, fmt.Errorf("catalog: parse persona yaml: %w", err)
	}
	if def.Name == "" {
		return nil, fmt.Errorf("catalog: persona definition missing name")
	}
	if def.DisplayName == "" {
		def.DisplayName = def.Name
	}
	return &def, nil
}

// Seed loads every *.yaml and *.yml file under dir in fsys and upserts the
// personas into the store. Existing personas (matched by slug) get their
// profile refreshed; unknown ones are created. Returns how many personas
// were seeded.
func Seed(ctx context.Context, fsys fs.FS, dir string, s *store.Store) (int, error) {
	entries, err := fs.ReadDir(fsys, dir)
	if err != nil {
		return 0, fmt.Errorf("catalog: read dir %s: %w", dir, err)
	}

	seeded := 0
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || (!strings.HasSuffix(name, ".yaml") && !strings.HasSuffix(name, ".yml")) {
			continue
		}

		data, err := fs.ReadFile(fsys, dir+"/"+name)
		if err != nil {
			return seeded, fmt.Errorf("catalog: read %s: %w", name, err)
		}

		def, err := Parse(data)
		if err != nil {
			return seeded, fmt.Errorf("catalog: %s: %w", name, err)
		}

		if err := upsert(ctx, s, def); err != nil {
			return seeded, fmt.Errorf("catalog: seed %s: %w", def.Name, err)
		}
		seeded++
	}
	return seeded, nil
}

// upsert creates the persona or refreshes an existing one's profile.
func upsert(ctx context.Context, s *store.Store, def *Definition) error {
	normalized := profile.Normalize(def.DisplayName, def.Profile)
	if !normalized.Validated {
		slog.Warn("catalog persona profile kept unvalidated",
			"persona", def.Name, "warning", normalized.Warning)
	}

	existing, err := s.GetPersonaByName(ctx, def.Name)
	if err == nil {
		if err := s.UpdatePersonaProfile(ctx, existing.ID, normalized); err != nil {
			return err
		}
		slog.Info("catalog persona refreshed", "persona", def.Name, "variant", normalized.SchemaType)
		return nil
	}

	persona := &store.Persona{
		Name:             def.Name,
		DisplayName:      def.DisplayName,
		Profile:          normalized,
		BackgroundStory:  def.BackgroundStory,
		OpeningStatement: def.OpeningStatement,
		Model:            def.Model,
		MaxLength:        def.MaxLength,
		FormatRules:      def.FormatRules,
		Example:          def.Example,
	}
	if err := s.CreatePersona(ctx, persona); err != nil {
		return err
	}
	slog.Info("catalog persona created", "persona", def.Name, "variant", normalized.SchemaType)
	return nil
}
