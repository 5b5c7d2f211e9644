// Package llm defines the chat-model provider interface used by the persona
// turn loop, plus an adapter for OpenAI-compatible chat completion APIs.
//
// The turn loop sends one system prompt, a short history window and the
// current user prompt, and expects a single assistant message back. There is
// no tool calling; personas only ever speak.
package llm

import "context"

// Role is the role of a chat message.
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Message represents a single message in a conversation.
type Message struct {
	Role    Role   `json:"role"`
	Content string `json:"content"`
}

// Sampling defaults for persona generation. High temperature with a tight
// top_p keeps replies lively without wandering off the persona.
const (
	DefaultModel           = "deepseek-v3"
	DefaultTemperature     = 1.0
	DefaultTopP            = 0.4
	DefaultPresencePenalty = 0.2
	DefaultMaxTokens       = 1000
)

// CompletionRequest is the input to a single inference call. Zero sampling
// fields fall back to the defaults above.
type CompletionRequest struct {
	Model           string
	Messages        []Message
	Temperature     float64
	TopP            float64
	PresencePenalty float64
	MaxTokens       int
}

// CompletionResponse is the model's reply.
type CompletionResponse struct {
	// Content is the assistant message text.
	Content string
	// FinishReason explains why the model stopped ("stop", "length", ...).
	FinishReason string
	// Usage holds token count information.
	Usage TokenUsage
}

// TokenUsage reports token consumption for usage tracking.
type TokenUsage struct {
	PromptTokens     int
	CompletionTokens int
	TotalTokens      int
}

// Provider is the interface all chat-model backends implement.
type Provider interface {
	// Complete sends messages to the model and returns the assistant reply.
	Complete(ctx context.Context, req CompletionRequest) (*CompletionResponse, error)
}
