package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Conversation is one chat thread between a user and a persona.
type Conversation struct {
	ID        string
	UserID    string
	PersonaID string
	Title     string
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Message is one stored utterance within a conversation.
type Message struct {
	ID             string
	ConversationID string
	Role           string // user | assistant
	Content        string
	// TokenCount is the message's token spend: the provider-reported
	// completion tokens for replies, a rune-based estimate otherwise.
	TokenCount int
	// ModelUsed tags a reply with the model that generated it.
	ModelUsed string
	CreatedAt time.Time
}

// CreateConversation inserts a new conversation. An empty ID is filled with
// a fresh UUID.
func (s *Store) CreateConversation(ctx context.Context, c *Conversation) error {
	if c.ID == "" {
		c.ID = uuid.NewString()
	}
	c.CreatedAt = time.Now()
	c.UpdatedAt = c.CreatedAt

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO conversations (id, user_id, persona_id, title, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`, c.ID, c.UserID, c.PersonaID, c.Title, c.CreatedAt, c.UpdatedAt)

	if err != nil {
		return fmt.Errorf("failed to create conversation: %w", err)
	}
	return nil
}

// GetConversation retrieves a conversation by ID.
func (s *Store) GetConversation(ctx context.Context, id string) (*Conversation, error) {
	c := &Conversation{}
	err := s.db.QueryRowContext(ctx, `
		SELECT id, user_id, persona_id, title, created_at, updated_at
		FROM conversations
		WHERE id = ?
	`, id).Scan(&c.ID, &c.UserID, &c.PersonaID, &c.Title, &c.CreatedAt, &c.UpdatedAt)

	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("conversation not found: %s", id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get conversation: %w", err)
	}
	return c, nil
}

// LatestConversation returns the most recent conversation for a (user,
// persona) pair, or sql.ErrNoRows wrapped when none exists yet.
func (s *Store) LatestConversation(ctx context.Context, userID, personaID string) (*Conversation, error) {
	c := &Conversation{}
	err := s.db.QueryRowContext(ctx, `
		SELECT id, user_id, persona_id, title, created_at, updated_at
		FROM conversations
		WHERE user_id = ? AND persona_id = ?
		ORDER BY created_at DESC
		LIMIT 1
	`, userID, personaID).Scan(&c.ID, &c.UserID, &c.PersonaID, &c.Title, &c.CreatedAt, &c.UpdatedAt)

	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("no conversation for user %s persona %s: %w", userID, personaID, err)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get latest conversation: %w", err)
	}
	return c, nil
}

// ListConversations returns a user's conversations with a persona, newest
// first.
func (s *Store) ListConversations(ctx context.Context, userID, personaID string) ([]*Conversation, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, user_id, persona_id, title, created_at, updated_at
		FROM conversations
		WHERE user_id = ? AND persona_id = ?
		ORDER BY created_at DESC
	`, userID, personaID)
	if err != nil {
		return nil, fmt.Errorf("failed to list conversations: %w", err)
	}
	defer rows.Close()

	var convs []*Conversation
	for rows.Next() {
		c := &Conversation{}
		if err := rows.Scan(&c.ID, &c.UserID, &c.PersonaID, &c.Title, &c.CreatedAt, &c.UpdatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan conversation: %w", err)
		}
		convs = append(convs, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating conversations: %w", err)
	}
	return convs, nil
}

// AppendMessage stores one utterance and touches the conversation's
// updated_at. An empty message ID is filled with a fresh UUID.
func (s *Store) AppendMessage(ctx context.Context, m *Message) error {
	if m.ID == "" {
		m.ID = uuid.NewString()
	}
	if m.CreatedAt.IsZero() {
		m.CreatedAt = time.Now()
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO messages (id, conversation_id, role, content, token_count, model_used, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`, m.ID, m.ConversationID, m.Role, m.Content, m.TokenCount, m.ModelUsed, m.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to append message: %w", err)
	}

	_, err = tx.ExecContext(ctx, `
		UPDATE conversations SET updated_at = ? WHERE id = ?
	`, m.CreatedAt, m.ConversationID)
	if err != nil {
		return fmt.Errorf("failed to touch conversation: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit message: %w", err)
	}
	return nil
}

// RecentMessages returns up to limit of the newest messages in a
// conversation, oldest first so they can be replayed as history.
func (s *Store) RecentMessages(ctx context.Context, conversationID string, limit int) ([]*Message, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, conversation_id, role, content, token_count, model_used, created_at
		FROM (
			SELECT id, conversation_id, role, content, token_count, model_used, created_at
			FROM messages
			WHERE conversation_id = ?
			ORDER BY created_at DESC, id DESC
			LIMIT ?
		)
		ORDER BY created_at ASC, id ASC
	`, conversationID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query messages: %w", err)
	}
	defer rows.Close()

	var msgs []*Message
	for rows.Next() {
		m := &Message{}
		if err := rows.Scan(&m.ID, &m.ConversationID, &m.Role, &m.Content, &m.TokenCount, &m.ModelUsed, &m.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan message: %w", err)
		}
		msgs = append(msgs, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating messages: %w", err)
	}
	return msgs, nil
}

// CountConversations reports how many conversations exist for a persona
// across all users.
func (s *Store) CountConversations(ctx context.Context, personaID string) (int, error) {
	var count int
	err := s.db.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM conversations WHERE persona_id = ?
	`, personaID).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count conversations: %w", err)
	}
	return count, nil
}

// CountTurns reports how many messages are persisted across all of a pair's
// conversations, both roles included. This is the authoritative interaction
// count the relationship stage machine keys off.
func (s *Store) CountTurns(ctx context.Context, userID, personaID string) (int, error) {
	var count int
	err := s.db.QueryRowContext(ctx, `
		SELECT COUNT(*)
		FROM messages m
		JOIN conversations c ON c.id = m.conversation_id
		WHERE c.user_id = ? AND c.persona_id = ?
	`, userID, personaID).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count turns: %w", err)
	}
	return count, nil
}
