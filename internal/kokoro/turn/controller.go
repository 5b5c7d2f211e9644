// Package turn runs one complete persona exchange: prompt assembly, model
// generation, reply formatting, signal extraction and relationship advance,
// with the conversation and state persisted around it.
//
// Turns for the same (user, persona) pair are serialized with a keyed lock;
// different pairs run concurrently.
package turn

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/bdobrica/Kokoro/internal/kokoro/format"
	"github.com/bdobrica/Kokoro/internal/kokoro/llm"
	"github.com/bdobrica/Kokoro/internal/kokoro/observability"
	"github.com/bdobrica/Kokoro/internal/kokoro/prompt"
	"github.com/bdobrica/Kokoro/internal/kokoro/relationship"
	"github.com/bdobrica/Kokoro/internal/kokoro/signal"
	"github.com/bdobrica/Kokoro/internal/kokoro/store"
)

// historyWindow is how many stored messages are replayed to the model.
const historyWindow = 5

// Controller orchestrates persona turns against one store and one model
// provider.
type Controller struct {
	store    *store.Store
	provider llm.Provider
	machine  *relationship.Machine
	cache    *Cache

	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

// NewController wires a turn controller. The relationship machine counts
// turns through the same store the controller persists into.
func NewController(s *store.Store, provider llm.Provider) *Controller {
	return &Controller{
		store:    s,
		provider: provider,
		machine:  relationship.NewMachine(s),
		cache:    NewCache(),
		locks:    make(map[string]*sync.Mutex),
	}
}

// Cache exposes the persona cache so the API layer can invalidate entries
// after persona writes.
func (c *Controller) Cache() *Cache {
	return c.cache
}

// Request is one user utterance aimed at a persona.
type Request struct {
	UserID string
	// PersonaName is the persona's unique slug.
	PersonaName string
	// ConversationID selects an existing thread. Empty means continue the
	// pair's latest conversation, or start a new one.
	ConversationID string
	// UserInfo is what the persona is told about the user.
	UserInfo prompt.UserInfo
	// Input is the raw user message.
	Input string
}

// Result is the outcome of one turn.
type Result struct {
	ConversationID string
	Reply          string
	// RawReply is the unformatted model output Reply was derived from. Empty
	// on the degraded path.
	RawReply string
	Stage    relationship.Stage
	Signals  signal.Signals
	// Model is the model identifier the reply was generated with. Empty on
	// the degraded path.
	Model string
	// Usage is the turn's token spend as reported by the provider.
	Usage llm.TokenUsage
	// Timestamp is when the turn completed.
	Timestamp time.Time
	// Degraded is true when generation failed and Reply is the apology
	// fallback rather than model output.
	Degraded bool
}

// pairLock returns the mutex serializing turns for one (user, persona) pair.
func (c *Controller) pairLock(userID, personaID string) *sync.Mutex {
	key := userID + "\x00" + personaID
	c.mu.Lock()
	defer c.mu.Unlock()
	lock, ok := c.locks[key]
	if !ok {
		lock = &sync.Mutex{}
		c.locks[key] = lock
	}
	return lock
}

// RunTurn executes one exchange end to end and persists its effects. Model
// failure does not fail the turn: the user gets an apology reply, nothing is
// extracted, and only the relationship timestamps move.
func (c *Controller) RunTurn(ctx context.Context, req Request) (*Result, error) {
	if req.Input == "" {
		return nil, fmt.Errorf("turn: empty input")
	}

	persona, err := c.lookupPersona(ctx, req.PersonaName)
	if err != nil {
		return nil, err
	}

	lock := c.pairLock(req.UserID, persona.ID)
	lock.Lock()
	defer lock.Unlock()

	conv, err := c.resolveConversation(ctx, req, persona)
	if err != nil {
		return nil, err
	}

	state, err := c.store.GetRelationshipState(ctx, req.UserID, persona.ID)
	if err != nil {
		return nil, fmt.Errorf("turn: load relationship state: %w", err)
	}

	logger := observability.WithTrace(ctx).With(
		"user_id", req.UserID,
		"persona", persona.Name,
		"conversation_id", conv.ID,
	)

	systemPrompt := prompt.BuildSystemPrompt(persona.Profile, persona.BackgroundStory, state.Stage, state, prompt.OutputFormat{
		MaxLength:   persona.MaxLength,
		FormatRules: persona.FormatRules,
		Example:     persona.Example,
	})

	messages, err := c.buildMessages(ctx, conv.ID, systemPrompt, req, persona)
	if err != nil {
		return nil, err
	}

	resp, genErr := c.provider.Complete(ctx, llm.CompletionRequest{
		Model:    persona.Model,
		Messages: messages,
	})
	if genErr != nil {
		logger.Warn("generation failed, degrading to apology", "err", genErr)
		return c.degradedTurn(ctx, req, persona, conv, state, genErr)
	}

	maxLength := persona.MaxLength
	if maxLength <= 0 {
		maxLength = format.DefaultMaxLength
	}
	formatRules := persona.FormatRules
	if formatRules == "" {
		formatRules = format.DefaultFormatRules
	}
	reply := format.Format(resp.Content, maxLength, formatRules)
	sig := signal.Extract(reply, req.Input)

	model := persona.Model
	if model == "" {
		model = llm.DefaultModel
	}
	if err := c.persistExchange(ctx, conv.ID, req.Input, reply, model, resp.Usage.CompletionTokens); err != nil {
		return nil, err
	}

	// Memory extraction reads the raw model output: a significant sentence
	// the formatter truncated away must still be remembered.
	if err := c.machine.Advance(ctx, state, req.UserID, persona.ID, req.Input, resp.Content, sig); err != nil {
		return nil, fmt.Errorf("turn: advance relationship: %w", err)
	}
	if err := c.store.SaveRelationshipState(ctx, req.UserID, persona.ID, state); err != nil {
		return nil, fmt.Errorf("turn: save relationship state: %w", err)
	}
	if err := c.store.RecordUsage(ctx, persona.ID, resp.Usage.PromptTokens, resp.Usage.CompletionTokens); err != nil {
		logger.Warn("usage recording failed", "err", err)
	}

	logger.Info("turn completed",
		"stage", state.Stage.String(),
		"emotions", sig.Emotions,
		"key_points", sig.KeyPoints,
	)

	return &Result{
		ConversationID: conv.ID,
		Reply:          reply,
		RawReply:       resp.Content,
		Stage:          state.Stage,
		Signals:        sig,
		Model:          model,
		Usage:          resp.Usage,
		Timestamp:      time.Now().UTC(),
	}, nil
}

// lookupPersona resolves a slug through the cache, falling back to the store.
func (c *Controller) lookupPersona(ctx context.Context, name string) (*store.Persona, error) {
	if p := c.cache.GetByName(name); p != nil {
		return p, nil
	}
	p, err := c.store.GetPersonaByName(ctx, name)
	if err != nil {
		return nil, fmt.Errorf("turn: lookup persona: %w", err)
	}
	c.cache.Put(p)
	return p, nil
}

// resolveConversation picks the requested thread, the pair's latest, or
// starts a fresh auto-titled one.
func (c *Controller) resolveConversation(ctx context.Context, req Request, persona *store.Persona) (*store.Conversation, error) {
	if req.ConversationID != "" {
		conv, err := c.store.GetConversation(ctx, req.ConversationID)
		if err != nil {
			return nil, fmt.Errorf("turn: resolve conversation: %w", err)
		}
		if conv.UserID != req.UserID || conv.PersonaID != persona.ID {
			return nil, fmt.Errorf("turn: conversation %s does not belong to user %s and persona %s", conv.ID, req.UserID, persona.Name)
		}
		return conv, nil
	}

	conv, err := c.store.LatestConversation(ctx, req.UserID, persona.ID)
	if err == nil {
		return conv, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("turn: resolve latest conversation: %w", err)
	}

	conv = &store.Conversation{
		UserID:    req.UserID,
		PersonaID: persona.ID,
		Title:     fmt.Sprintf("与%s的对话", persona.DisplayName),
	}
	if err := c.store.CreateConversation(ctx, conv); err != nil {
		return nil, fmt.Errorf("turn: create conversation: %w", err)
	}

	// The opening statement greets the user before their first message. It
	// is stored as a normal assistant message so it replays as history.
	if persona.OpeningStatement != "" {
		if err := c.store.AppendMessage(ctx, &store.Message{
			ConversationID: conv.ID,
			Role:           "assistant",
			Content:        persona.OpeningStatement,
		}); err != nil {
			return nil, fmt.Errorf("turn: seed opening statement: %w", err)
		}
	}
	return conv, nil
}

// buildMessages assembles the provider message list: system prompt, the
// replayed history window, then the rendered user prompt.
func (c *Controller) buildMessages(ctx context.Context, conversationID, systemPrompt string, req Request, persona *store.Persona) ([]llm.Message, error) {
	history, err := c.store.RecentMessages(ctx, conversationID, historyWindow)
	if err != nil {
		return nil, fmt.Errorf("turn: load history: %w", err)
	}

	messages := make([]llm.Message, 0, len(history)+2)
	messages = append(messages, llm.Message{Role: llm.RoleSystem, Content: systemPrompt})
	for _, m := range history {
		role := llm.RoleUser
		if m.Role == "assistant" {
			role = llm.RoleAssistant
		}
		messages = append(messages, llm.Message{Role: role, Content: m.Content})
	}
	messages = append(messages, llm.Message{
		Role:    llm.RoleUser,
		Content: prompt.BuildUserPrompt(req.Input, req.UserInfo, persona.DisplayName, time.Now()),
	})
	return messages, nil
}

// degradedTurn persists the exchange with an apology reply. Signals stay
// empty and the relationship state only moves its timestamps; the failed
// generation must not count as a real interaction.
func (c *Controller) degradedTurn(ctx context.Context, req Request, persona *store.Persona, conv *store.Conversation, state *relationship.State, genErr error) (*Result, error) {
	reply := fmt.Sprintf("抱歉，我遇到了一些问题：%v", genErr)

	if err := c.persistExchange(ctx, conv.ID, req.Input, reply, "", 0); err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	state.LastInteractionAt = now
	state.UpdatedAt = now
	if err := c.store.SaveRelationshipState(ctx, req.UserID, persona.ID, state); err != nil {
		return nil, fmt.Errorf("turn: save relationship state: %w", err)
	}

	return &Result{
		ConversationID: conv.ID,
		Reply:          reply,
		Stage:          state.Stage,
		Timestamp:      now,
		Degraded:       true,
	}, nil
}

// persistExchange stores the user message and the persona reply. The reply
// carries the model tag and the provider-reported completion tokens; the
// user message gets a rune-based token estimate.
func (c *Controller) persistExchange(ctx context.Context, conversationID, input, reply, model string, replyTokens int) error {
	if err := c.store.AppendMessage(ctx, &store.Message{
		ConversationID: conversationID,
		Role:           "user",
		Content:        input,
		TokenCount:     estimateTokens(input),
	}); err != nil {
		return fmt.Errorf("turn: persist user message: %w", err)
	}
	if replyTokens <= 0 {
		replyTokens = estimateTokens(reply)
	}
	if err := c.store.AppendMessage(ctx, &store.Message{
		ConversationID: conversationID,
		Role:           "assistant",
		Content:        reply,
		TokenCount:     replyTokens,
		ModelUsed:      model,
	}); err != nil {
		return fmt.Errorf("turn: persist reply: %w", err)
	}
	return nil
}

// estimateTokens approximates the token cost of text the provider never
// reported on, at roughly two runes per token.
func estimateTokens(s string) int {
	return len([]rune(s)) / 2
}
