package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/bdobrica/Kokoro/internal/kokoro/relationship"
)

// GetRelationshipState loads the relationship state for a (user, persona)
// pair. A pair that has never interacted gets a fresh initial state, not an
// error.
func (s *Store) GetRelationshipState(ctx context.Context, userID, personaID string) (*relationship.State, error) {
	var stateJSON string
	err := s.db.QueryRowContext(ctx, `
		SELECT state FROM relationship_states
		WHERE user_id = ? AND persona_id = ?
	`, userID, personaID).Scan(&stateJSON)

	if err == sql.ErrNoRows {
		return relationship.NewState(), nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get relationship state: %w", err)
	}

	st := &relationship.State{}
	if err := json.Unmarshal([]byte(stateJSON), st); err != nil {
		return nil, fmt.Errorf("failed to decode relationship state: %w", err)
	}
	if !st.Stage.Valid() {
		return nil, fmt.Errorf("stored relationship state for user %s persona %s has stage %d outside defined range", userID, personaID, int(st.Stage))
	}
	return st, nil
}

// SaveRelationshipState upserts the relationship state for a pair.
func (s *Store) SaveRelationshipState(ctx context.Context, userID, personaID string, st *relationship.State) error {
	stateJSON, err := json.Marshal(st)
	if err != nil {
		return fmt.Errorf("failed to encode relationship state: %w", err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO relationship_states (user_id, persona_id, state, updated_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT (user_id, persona_id) DO UPDATE SET
			state = excluded.state,
			updated_at = excluded.updated_at
	`, userID, personaID, string(stateJSON), time.Now())
	if err != nil {
		return fmt.Errorf("failed to save relationship state: %w", err)
	}
	return nil
}

// Usage is the accumulated generation spend for one persona.
type Usage struct {
	PersonaID        string
	Turns            int
	PromptTokens     int
	CompletionTokens int
	UpdatedAt        time.Time
}

// RecordUsage adds one turn's token spend to a persona's counters.
func (s *Store) RecordUsage(ctx context.Context, personaID string, promptTokens, completionTokens int) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO usage_counters (persona_id, turns, prompt_tokens, completion_tokens, updated_at)
		VALUES (?, 1, ?, ?, ?)
		ON CONFLICT (persona_id) DO UPDATE SET
			turns = turns + 1,
			prompt_tokens = prompt_tokens + excluded.prompt_tokens,
			completion_tokens = completion_tokens + excluded.completion_tokens,
			updated_at = excluded.updated_at
	`, personaID, promptTokens, completionTokens, time.Now())
	if err != nil {
		return fmt.Errorf("failed to record usage: %w", err)
	}
	return nil
}

// GetUsage returns a persona's accumulated counters; zero counters when the
// persona has never generated.
func (s *Store) GetUsage(ctx context.Context, personaID string) (*Usage, error) {
	u := &Usage{PersonaID: personaID}
	err := s.db.QueryRowContext(ctx, `
		SELECT turns, prompt_tokens, completion_tokens, updated_at
		FROM usage_counters
		WHERE persona_id = ?
	`, personaID).Scan(&u.Turns, &u.PromptTokens, &u.CompletionTokens, &u.UpdatedAt)

	if err == sql.ErrNoRows {
		return u, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get usage: %w", err)
	}
	return u, nil
}
