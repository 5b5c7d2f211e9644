// HTTP API server.
//
// Endpoints:
//
//	GET    /health                           → HealthResponse
//	GET    /status                           → StatusResponse
//	POST   /v1/chat                          → ChatRequest → ChatResponse
//	GET    /v1/personas                      → []PersonaResponse
//	POST   /v1/personas                      → PersonaRequest → PersonaResponse
//	GET    /v1/personas/{name}               → PersonaResponse
//	PUT    /v1/personas/{name}/profile       → raw profile doc → PersonaResponse
//	DELETE /v1/personas/{name}               → 204
//	GET    /v1/personas/{name}/usage         → UsageResponse
//	GET    /v1/templates/{variant}           → sample profile document
//	GET    /v1/conversations/{id}/messages   → []MessageResponse
//
// All endpoints are protected by optional bearer-token auth. Every request
// gets a generated trace ID propagated through the turn pipeline.
package app

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/bdobrica/Kokoro/common/trace"
	"github.com/bdobrica/Kokoro/common/version"
	"github.com/bdobrica/Kokoro/internal/kokoro/observability"
	"github.com/bdobrica/Kokoro/internal/kokoro/profile"
	"github.com/bdobrica/Kokoro/internal/kokoro/prompt"
	"github.com/bdobrica/Kokoro/internal/kokoro/store"
	"github.com/bdobrica/Kokoro/internal/kokoro/turn"
)

// maxBodyBytes caps inbound request bodies.
const maxBodyBytes = 1 * 1024 * 1024 // 1 MiB

// HealthResponse is returned by GET /health.
type HealthResponse struct {
	Status string `json:"status"`
}

// StatusResponse is returned by GET /status.
type StatusResponse struct {
	Version   string    `json:"version"`
	Uptime    float64   `json:"uptime_seconds"`
	StartedAt time.Time `json:"started_at"`
	Personas  int       `json:"personas"`
}

// ChatRequest is the body for POST /v1/chat.
type ChatRequest struct {
	UserID         string `json:"user_id"`
	Persona        string `json:"persona"`
	ConversationID string `json:"conversation_id,omitempty"`
	Message        string `json:"message"`
	UserInfo       struct {
		Name   string `json:"name,omitempty"`
		Gender string `json:"gender,omitempty"`
		Traits string `json:"traits,omitempty"`
	} `json:"user_info"`
}

// ChatResponse is one completed turn.
type ChatResponse struct {
	ConversationID string    `json:"conversation_id"`
	Reply          string    `json:"reply"`
	RawReply       string    `json:"raw_reply,omitempty"`
	Stage          string    `json:"stage"`
	StageLabel     string    `json:"stage_label"`
	Emotions       []string  `json:"emotions,omitempty"`
	Topics         []string  `json:"topics,omitempty"`
	KeyPoints      []string  `json:"key_points,omitempty"`
	Model          string    `json:"model,omitempty"`
	TotalTokens    int       `json:"total_tokens,omitempty"`
	Timestamp      time.Time `json:"timestamp"`
	Degraded       bool      `json:"degraded,omitempty"`
}

// PersonaRequest is the body for POST /v1/personas.
type PersonaRequest struct {
	Name             string         `json:"name"`
	DisplayName      string         `json:"display_name"`
	Profile          map[string]any `json:"profile"`
	BackgroundStory  string         `json:"background_story,omitempty"`
	OpeningStatement string         `json:"opening_statement,omitempty"`
	Model            string         `json:"model,omitempty"`
	MaxLength        int            `json:"max_length,omitempty"`
	FormatRules      string         `json:"format_rules,omitempty"`
	Example          string         `json:"example,omitempty"`
}

// PersonaResponse describes a stored persona including its normalization
// outcome.
type PersonaResponse struct {
	ID           string         `json:"id"`
	Name         string         `json:"name"`
	DisplayName  string         `json:"display_name"`
	Profile      map[string]any `json:"profile"`
	SchemaType   string         `json:"schema_type"`
	Validated    bool           `json:"validated"`
	Warning      string         `json:"warning,omitempty"`
	CustomFields []string       `json:"custom_fields,omitempty"`
	CreatedAt    time.Time      `json:"created_at"`
	UpdatedAt    time.Time      `json:"updated_at"`
}

// UsageResponse is a persona's accumulated generation spend.
type UsageResponse struct {
	Persona          string `json:"persona"`
	Turns            int    `json:"turns"`
	Conversations    int    `json:"conversations"`
	PromptTokens     int    `json:"prompt_tokens"`
	CompletionTokens int    `json:"completion_tokens"`
}

// MessageResponse is one stored utterance.
type MessageResponse struct {
	Role       string    `json:"role"`
	Content    string    `json:"content"`
	TokenCount int       `json:"token_count"`
	Model      string    `json:"model,omitempty"`
	CreatedAt  time.Time `json:"created_at"`
}

// Server is the Kokoro HTTP API server.
type Server struct {
	addr       string
	token      string
	db         *store.Store
	controller *turn.Controller
	startedAt  time.Time
	server     *http.Server
}

// NewServer creates the API server listening on addr.
func NewServer(addr, token string, db *store.Store, controller *turn.Controller, startedAt time.Time) *Server {
	s := &Server{
		addr:       addr,
		token:      token,
		db:         db,
		controller: controller,
		startedAt:  startedAt,
	}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /health", s.handleHealth)
	mux.HandleFunc("GET /status", s.handleStatus)
	mux.HandleFunc("POST /v1/chat", s.handleChat)
	mux.HandleFunc("GET /v1/personas", s.handleListPersonas)
	mux.HandleFunc("POST /v1/personas", s.handleCreatePersona)
	mux.HandleFunc("GET /v1/personas/{name}", s.handleGetPersona)
	mux.HandleFunc("PUT /v1/personas/{name}/profile", s.handleUpdateProfile)
	mux.HandleFunc("DELETE /v1/personas/{name}", s.handleDeletePersona)
	mux.HandleFunc("GET /v1/personas/{name}/usage", s.handleUsage)
	mux.HandleFunc("GET /v1/templates/{variant}", s.handleTemplate)
	mux.HandleFunc("GET /v1/conversations/{id}/messages", s.handleMessages)

	s.server = &http.Server{
		Addr:         addr,
		Handler:      s.traceMiddleware(s.authMiddleware(mux)),
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 180 * time.Second, // generation can be slow
	}
	return s
}

// traceMiddleware tags every request with a fresh trace ID.
func (s *Server) traceMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := trace.WithTraceID(r.Context(), trace.GenerateID())
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// authMiddleware rejects requests that do not carry the correct bearer token.
// When the token is empty, all requests are allowed (dev/test mode).
func (s *Server) authMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.token == "" {
			next.ServeHTTP(w, r)
			return
		}
		auth := r.Header.Get("Authorization")
		if !strings.HasPrefix(auth, "Bearer ") {
			writeError(w, http.StatusUnauthorized, "missing bearer token")
			return
		}
		if auth[len("Bearer "):] != s.token {
			writeError(w, http.StatusUnauthorized, "invalid bearer token")
			return
		}
		next.ServeHTTP(w, r)
	})
}

// Start begins listening. It returns once the listener is bound so callers
// can immediately start sending requests.
func (s *Server) Start(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.addr)
	if err != nil {
		return fmt.Errorf("api listen %s: %w", s.addr, err)
	}
	slog.Info("API server listening", "addr", ln.Addr().String())
	go func() {
		if err := s.server.Serve(ln); err != nil && err != http.ErrServerClosed {
			slog.Error("API server error", "err", err)
		}
	}()
	go func() {
		<-ctx.Done()
		s.server.Shutdown(context.Background())
	}()
	return nil
}

// Stop gracefully shuts down the server.
func (s *Server) Stop() {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	s.server.Shutdown(ctx)
}

// --- handlers ---

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, HealthResponse{Status: "ok"})
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	personas, err := s.db.ListPersonas(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, StatusResponse{
		Version:   version.Info(),
		Uptime:    time.Since(s.startedAt).Seconds(),
		StartedAt: s.startedAt,
		Personas:  len(personas),
	})
}

func (s *Server) handleChat(w http.ResponseWriter, r *http.Request) {
	var req ChatRequest
	if err := decodeBody(w, r, &req); err != nil {
		return
	}
	if req.UserID == "" || req.Persona == "" || req.Message == "" {
		writeError(w, http.StatusBadRequest, "user_id, persona and message are required")
		return
	}

	res, err := s.controller.RunTurn(r.Context(), turn.Request{
		UserID:         req.UserID,
		PersonaName:    req.Persona,
		ConversationID: req.ConversationID,
		Input:          req.Message,
		UserInfo: prompt.UserInfo{
			Name:   req.UserInfo.Name,
			Gender: req.UserInfo.Gender,
			Traits: req.UserInfo.Traits,
		},
	})
	if err != nil {
		observability.WithTrace(r.Context()).Error("chat turn failed", "err", err)
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	writeJSON(w, http.StatusOK, ChatResponse{
		ConversationID: res.ConversationID,
		Reply:          res.Reply,
		RawReply:       res.RawReply,
		Stage:          res.Stage.String(),
		StageLabel:     res.Stage.Label(),
		Emotions:       res.Signals.Emotions,
		Topics:         res.Signals.Topics,
		KeyPoints:      res.Signals.KeyPoints,
		Model:          res.Model,
		TotalTokens:    res.Usage.TotalTokens,
		Timestamp:      res.Timestamp,
		Degraded:       res.Degraded,
	})
}

func (s *Server) handleListPersonas(w http.ResponseWriter, r *http.Request) {
	personas, err := s.db.ListPersonas(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	out := make([]PersonaResponse, 0, len(personas))
	for _, p := range personas {
		out = append(out, personaResponse(p))
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleCreatePersona(w http.ResponseWriter, r *http.Request) {
	var req PersonaRequest
	if err := decodeBody(w, r, &req); err != nil {
		return
	}
	if req.Name == "" {
		writeError(w, http.StatusBadRequest, "name is required")
		return
	}
	if req.DisplayName == "" {
		req.DisplayName = req.Name
	}

	normalized := profile.Normalize(req.DisplayName, req.Profile)
	persona := &store.Persona{
		Name:             req.Name,
		DisplayName:      req.DisplayName,
		Profile:          normalized,
		BackgroundStory:  req.BackgroundStory,
		OpeningStatement: req.OpeningStatement,
		Model:            req.Model,
		MaxLength:        req.MaxLength,
		FormatRules:      req.FormatRules,
		Example:          req.Example,
	}
	if err := s.db.CreatePersona(r.Context(), persona); err != nil {
		writeError(w, http.StatusConflict, err.Error())
		return
	}
	writeJSON(w, http.StatusCreated, personaResponse(persona))
}

func (s *Server) handleGetPersona(w http.ResponseWriter, r *http.Request) {
	p, err := s.db.GetPersonaByName(r.Context(), r.PathValue("name"))
	if err != nil {
		writeError(w, http.StatusNotFound, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, personaResponse(p))
}

func (s *Server) handleUpdateProfile(w http.ResponseWriter, r *http.Request) {
	p, err := s.db.GetPersonaByName(r.Context(), r.PathValue("name"))
	if err != nil {
		writeError(w, http.StatusNotFound, err.Error())
		return
	}

	var doc map[string]any
	if err := decodeBody(w, r, &doc); err != nil {
		return
	}

	normalized := profile.Normalize(p.DisplayName, doc)
	if err := s.db.UpdatePersonaProfile(r.Context(), p.ID, normalized); err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	s.controller.Cache().Invalidate(p.ID)

	p.Profile = normalized
	writeJSON(w, http.StatusOK, personaResponse(p))
}

func (s *Server) handleDeletePersona(w http.ResponseWriter, r *http.Request) {
	p, err := s.db.GetPersonaByName(r.Context(), r.PathValue("name"))
	if err != nil {
		writeError(w, http.StatusNotFound, err.Error())
		return
	}
	if err := s.db.DeletePersona(r.Context(), p.ID); err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	s.controller.Cache().Invalidate(p.ID)
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleUsage(w http.ResponseWriter, r *http.Request) {
	p, err := s.db.GetPersonaByName(r.Context(), r.PathValue("name"))
	if err != nil {
		writeError(w, http.StatusNotFound, err.Error())
		return
	}
	u, err := s.db.GetUsage(r.Context(), p.ID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	convs, err := s.db.CountConversations(r.Context(), p.ID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, UsageResponse{
		Persona:          p.Name,
		Turns:            u.Turns,
		Conversations:    convs,
		PromptTokens:     u.PromptTokens,
		CompletionTokens: u.CompletionTokens,
	})
}

func (s *Server) handleTemplate(w http.ResponseWriter, r *http.Request) {
	variant := profile.Variant(r.PathValue("variant"))
	writeJSON(w, http.StatusOK, profile.Template(variant))
}

func (s *Server) handleMessages(w http.ResponseWriter, r *http.Request) {
	conv, err := s.db.GetConversation(r.Context(), r.PathValue("id"))
	if err != nil {
		writeError(w, http.StatusNotFound, err.Error())
		return
	}
	msgs, err := s.db.RecentMessages(r.Context(), conv.ID, 100)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	out := make([]MessageResponse, 0, len(msgs))
	for _, m := range msgs {
		out = append(out, MessageResponse{
			Role:       m.Role,
			Content:    m.Content,
			TokenCount: m.TokenCount,
			Model:      m.ModelUsed,
			CreatedAt:  m.CreatedAt,
		})
	}
	writeJSON(w, http.StatusOK, out)
}

func personaResponse(p *store.Persona) PersonaResponse {
	return PersonaResponse{
		ID:           p.ID,
		Name:         p.Name,
		DisplayName:  p.DisplayName,
		Profile:      p.Profile.Fields(),
		SchemaType:   string(p.Profile.SchemaType),
		Validated:    p.Profile.Validated,
		Warning:      p.Profile.Warning,
		CustomFields: p.Profile.CustomKeys(),
		CreatedAt:    p.CreatedAt,
		UpdatedAt:    p.UpdatedAt,
	}
}

// decodeBody decodes a JSON request body, writing the 400 itself on failure.
func decodeBody(w http.ResponseWriter, r *http.Request, dst any) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request: "+err.Error())
		return err
	}
	return nil
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(body)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

// TestHandler exposes the server's HTTP handler for use in httptest.NewServer.
// This is only intended for tests.
func (s *Server) TestHandler() http.Handler {
	return s.server.Handler
}
