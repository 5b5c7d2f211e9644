package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/bdobrica/Kokoro/internal/kokoro/profile"
)

// Persona is a stored character definition: the canonical profile plus the
// generation settings a turn needs.
type Persona struct {
	ID              string
	Name            string // unique slug, stable across restarts
	DisplayName     string
	Profile         *profile.Profile
	BackgroundStory string
	// OpeningStatement, when non-empty, is seeded as the persona's first
	// reply in every new conversation.
	OpeningStatement string
	Model            string
	MaxLength        int
	FormatRules      string
	Example          string
	CreatedAt        time.Time
	UpdatedAt        time.Time
}

// CreatePersona inserts a new persona. An empty ID is filled with a fresh
// UUID.
func (s *Store) CreatePersona(ctx context.Context, p *Persona) error {
	if p.ID == "" {
		p.ID = uuid.NewString()
	}
	p.CreatedAt = time.Now()
	p.UpdatedAt = p.CreatedAt

	profileJSON, err := json.Marshal(p.Profile)
	if err != nil {
		return fmt.Errorf("failed to encode profile: %w", err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO personas (id, name, display_name, profile, background_story, opening_statement, model, max_length, format_rules, example, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, p.ID, p.Name, p.DisplayName, string(profileJSON), p.BackgroundStory, p.OpeningStatement,
		p.Model, p.MaxLength, p.FormatRules, p.Example, p.CreatedAt, p.UpdatedAt)

	if err != nil {
		return fmt.Errorf("failed to create persona: %w", err)
	}
	return nil
}

// UpdatePersonaProfile replaces a persona's profile and touches updated_at.
func (s *Store) UpdatePersonaProfile(ctx context.Context, id string, p *profile.Profile) error {
	profileJSON, err := json.Marshal(p)
	if err != nil {
		return fmt.Errorf("failed to encode profile: %w", err)
	}

	result, err := s.db.ExecContext(ctx, `
		UPDATE personas SET profile = ?, updated_at = ? WHERE id = ?
	`, string(profileJSON), time.Now(), id)
	if err != nil {
		return fmt.Errorf("failed to update persona profile: %w", err)
	}
	if n, _ := result.RowsAffected(); n == 0 {
		return fmt.Errorf("persona not found: %s", id)
	}
	return nil
}

// GetPersona retrieves a persona by ID.
func (s *Store) GetPersona(ctx context.Context, id string) (*Persona, error) {
	return s.queryPersona(ctx, "id = ?", id)
}

// GetPersonaByName retrieves a persona by its unique slug.
func (s *Store) GetPersonaByName(ctx context.Context, name string) (*Persona, error) {
	return s.queryPersona(ctx, "name = ?", name)
}

func (s *Store) queryPersona(ctx context.Context, where string, arg any) (*Persona, error) {
	p := &Persona{}
	var profileJSON string
	err := s.db.QueryRowContext(ctx, `
		SELECT id, name, display_name, profile, background_story, opening_statement, model, max_length, format_rules, example, created_at, updated_at
		FROM personas
		WHERE `+where, arg).Scan(
		&p.ID, &p.Name, &p.DisplayName, &profileJSON, &p.BackgroundStory, &p.OpeningStatement,
		&p.Model, &p.MaxLength, &p.FormatRules, &p.Example, &p.CreatedAt, &p.UpdatedAt,
	)

	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("persona not found: %v", arg)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get persona: %w", err)
	}

	p.Profile = &profile.Profile{}
	if err := json.Unmarshal([]byte(profileJSON), p.Profile); err != nil {
		return nil, fmt.Errorf("failed to decode profile for persona %s: %w", p.ID, err)
	}
	return p, nil
}

// ListPersonas returns all personas, newest first.
func (s *Store) ListPersonas(ctx context.Context) ([]*Persona, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, name, display_name, profile, background_story, opening_statement, model, max_length, format_rules, example, created_at, updated_at
		FROM personas
		ORDER BY created_at DESC
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to list personas: %w", err)
	}
	defer rows.Close()

	var personas []*Persona
	for rows.Next() {
		p := &Persona{}
		var profileJSON string
		err := rows.Scan(
			&p.ID, &p.Name, &p.DisplayName, &profileJSON, &p.BackgroundStory, &p.OpeningStatement,
			&p.Model, &p.MaxLength, &p.FormatRules, &p.Example, &p.CreatedAt, &p.UpdatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan persona: %w", err)
		}
		p.Profile = &profile.Profile{}
		if err := json.Unmarshal([]byte(profileJSON), p.Profile); err != nil {
			return nil, fmt.Errorf("failed to decode profile for persona %s: %w", p.ID, err)
		}
		personas = append(personas, p)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating personas: %w", err)
	}
	return personas, nil
}

// DeletePersona removes a persona and, via foreign keys, its conversations,
// messages, relationship states and usage counters.
func (s *Store) DeletePersona(ctx context.Context, id string) error {
	result, err := s.db.ExecContext(ctx, "DELETE FROM personas WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("failed to delete persona: %w", err)
	}
	if n, _ := result.RowsAffected(); n == 0 {
		return fmt.Errorf("persona not found: %s", id)
	}
	return nil
}
