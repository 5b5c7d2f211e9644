package app_test

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/bdobrica/Kokoro/internal/kokoro/app"
	"github.com/bdobrica/Kokoro/internal/kokoro/llm"
	"github.com/bdobrica/Kokoro/internal/kokoro/store"
	"github.com/bdobrica/Kokoro/internal/kokoro/turn"
)

type stubProvider struct {
	reply string
}

func (p *stubProvider) Complete(context.Context, llm.CompletionRequest) (*llm.CompletionResponse, error) {
	return &llm.CompletionResponse{
		Content:      p.reply,
		FinishReason: "stop",
		Usage:        llm.TokenUsage{PromptTokens: 50, CompletionTokens: 20, TotalTokens: 70},
	}, nil
}

func newTestServer(t *testing.T, token string) (*httptest.Server, *store.Store) {
	t.Helper()
	f, err := os.CreateTemp(t.TempDir(), "kokoro-test-*.db")
	if err != nil {
		t.Fatalf("failed to create temp db file: %v", err)
	}
	f.Close()

	db, err := store.New(f.Name())
	if err != nil {
		t.Fatalf("failed to open test store: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	controller := turn.NewController(db, &stubProvider{reply: `"你好，旅人。"`})
	srv := app.NewServer(":0", token, db, controller, time.Now())
	ts := httptest.NewServer(srv.TestHandler())
	t.Cleanup(ts.Close)
	return ts, db
}

func postJSON(t *testing.T, url string, body any) *http.Response {
	t.Helper()
	data, err := json.Marshal(body)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	resp, err := http.Post(url, "application/json", bytes.NewReader(data))
	if err != nil {
		t.Fatalf("POST %s: %v", url, err)
	}
	return resp
}

func decode(t *testing.T, resp *http.Response, dst any) {
	t.Helper()
	defer resp.Body.Close()
	if err := json.NewDecoder(resp.Body).Decode(dst); err != nil {
		t.Fatalf("decode response: %v", err)
	}
}

func createLina(t *testing.T, baseURL string) app.PersonaResponse {
	t.Helper()
	resp := postJSON(t, baseURL+"/v1/personas", app.PersonaRequest{
		Name:        "lina",
		DisplayName: "莉娜",
		Profile: map[string]any{
			"姓名": "莉娜",
			"性格": "冷静而坚定",
			"技能": []string{"剑术", "魔法"},
			"爱好": "收集药草",
		},
		BackgroundStory: "边境小镇出身的剑士。",
	})
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("create persona status = %d", resp.StatusCode)
	}
	var created app.PersonaResponse
	decode(t, resp, &created)
	return created
}

func TestHealth(t *testing.T) {
	ts, _ := newTestServer(t, "")
	resp, err := http.Get(ts.URL + "/health")
	if err != nil {
		t.Fatalf("GET /health: %v", err)
	}
	if resp.StatusCode != http.StatusOK {
		t.Errorf("status = %d", resp.StatusCode)
	}
	var health app.HealthResponse
	decode(t, resp, &health)
	if health.Status != "ok" {
		t.Errorf("health = %+v", health)
	}
}

func TestBearerAuth(t *testing.T) {
	ts, _ := newTestServer(t, "secret-token")

	resp, err := http.Get(ts.URL + "/health")
	if err != nil {
		t.Fatalf("GET /health: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusUnauthorized {
		t.Errorf("unauthenticated status = %d, want 401", resp.StatusCode)
	}

	req, _ := http.NewRequest(http.MethodGet, ts.URL+"/health", nil)
	req.Header.Set("Authorization", "Bearer secret-token")
	resp, err = http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("authed GET /health: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("authed status = %d, want 200", resp.StatusCode)
	}
}

func TestCreatePersona_NormalizationSurfaced(t *testing.T) {
	ts, _ := newTestServer(t, "")
	created := createLina(t, ts.URL)

	if created.ID == "" || created.Name != "lina" {
		t.Errorf("created = %+v", created)
	}
	// 魔法 selects the fantasy schema; 爱好 is not a canonical field and is
	// kept as a custom overflow field.
	if created.SchemaType != "fantasy" {
		t.Errorf("schema_type = %q", created.SchemaType)
	}
	if !created.Validated {
		t.Errorf("validated = false, warning = %q", created.Warning)
	}
	found := false
	for _, k := range created.CustomFields {
		if k == "爱好" {
			found = true
		}
	}
	if !found {
		t.Errorf("custom_fields = %v, want 爱好", created.CustomFields)
	}
	if created.Profile["name"] != "莉娜" {
		t.Errorf("profile = %v", created.Profile)
	}
}

func TestChatEndToEnd(t *testing.T) {
	ts, db := newTestServer(t, "")
	createLina(t, ts.URL)

	var chat app.ChatResponse
	resp := postJSON(t, ts.URL+"/v1/chat", app.ChatRequest{
		UserID:  "u1",
		Persona: "lina",
		Message: "你好",
	})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("chat status = %d", resp.StatusCode)
	}
	decode(t, resp, &chat)

	if chat.ConversationID == "" {
		t.Error("missing conversation_id")
	}
	if !strings.Contains(chat.Reply, "你好，旅人。") {
		t.Errorf("reply = %q", chat.Reply)
	}
	if chat.RawReply != `"你好，旅人。"` {
		t.Errorf("raw_reply = %q", chat.RawReply)
	}
	if chat.Stage != "stranger" || chat.StageLabel != "陌生期" {
		t.Errorf("stage = %q / %q", chat.Stage, chat.StageLabel)
	}

	// The exchange is readable back through the messages endpoint, tagged
	// with token counts and the generating model.
	resp, err := http.Get(ts.URL + "/v1/conversations/" + chat.ConversationID + "/messages")
	if err != nil {
		t.Fatalf("GET messages: %v", err)
	}
	var msgs []app.MessageResponse
	decode(t, resp, &msgs)
	if len(msgs) != 2 || msgs[0].Role != "user" || msgs[1].Role != "assistant" {
		t.Errorf("messages = %+v", msgs)
	}
	if msgs[1].Model != llm.DefaultModel || msgs[1].TokenCount != 20 {
		t.Errorf("reply message = %+v", msgs[1])
	}

	// Usage was recorded through the same store the server reads.
	p, err := db.GetPersonaByName(context.Background(), "lina")
	if err != nil {
		t.Fatalf("GetPersonaByName: %v", err)
	}
	resp, err = http.Get(ts.URL + "/v1/personas/" + p.Name + "/usage")
	if err != nil {
		t.Fatalf("GET usage: %v", err)
	}
	var usage app.UsageResponse
	decode(t, resp, &usage)
	if usage.Turns != 1 || usage.Conversations != 1 || usage.PromptTokens != 50 {
		t.Errorf("usage = %+v", usage)
	}
}

func TestChat_MissingFields(t *testing.T) {
	ts, _ := newTestServer(t, "")
	resp := postJSON(t, ts.URL+"/v1/chat", app.ChatRequest{UserID: "u1"})
	resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", resp.StatusCode)
	}
}

func TestUpdateProfileInvalidatesCache(t *testing.T) {
	ts, _ := newTestServer(t, "")
	createLina(t, ts.URL)

	// Prime the cache with a turn.
	resp := postJSON(t, ts.URL+"/v1/chat", app.ChatRequest{UserID: "u1", Persona: "lina", Message: "你好"})
	resp.Body.Close()

	doc := map[string]any{"name": "莉娜", "personality": "更加温柔"}
	data, _ := json.Marshal(doc)
	req, _ := http.NewRequest(http.MethodPut, ts.URL+"/v1/personas/lina/profile", bytes.NewReader(data))
	req.Header.Set("Content-Type", "application/json")
	r, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("PUT profile: %v", err)
	}
	var updated app.PersonaResponse
	decode(t, r, &updated)
	if updated.Profile["personality"] != "更加温柔" {
		t.Errorf("profile = %v", updated.Profile)
	}

	// The persona read endpoint reflects the update too.
	r, err = http.Get(ts.URL + "/v1/personas/lina")
	if err != nil {
		t.Fatalf("GET persona: %v", err)
	}
	var got app.PersonaResponse
	decode(t, r, &got)
	if got.Profile["personality"] != "更加温柔" {
		t.Errorf("persisted profile = %v", got.Profile)
	}
}

func TestTemplateEndpoint(t *testing.T) {
	ts, _ := newTestServer(t, "")

	resp, err := http.Get(ts.URL + "/v1/templates/fantasy")
	if err != nil {
		t.Fatalf("GET template: %v", err)
	}
	var doc map[string]any
	decode(t, resp, &doc)
	if _, ok := doc["weapon"]; !ok {
		t.Errorf("fantasy template = %v, want weapon section", doc)
	}

	// Unknown variants fall back to the default template.
	resp, err = http.Get(ts.URL + "/v1/templates/space-opera")
	if err != nil {
		t.Fatalf("GET template fallback: %v", err)
	}
	decode(t, resp, &doc)
	if _, ok := doc["personality"]; !ok {
		t.Errorf("fallback template = %v", doc)
	}
}

func TestDeletePersona(t *testing.T) {
	ts, _ := newTestServer(t, "")
	createLina(t, ts.URL)

	req, _ := http.NewRequest(http.MethodDelete, ts.URL+"/v1/personas/lina", nil)
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("DELETE persona: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusNoContent {
		t.Errorf("status = %d, want 204", resp.StatusCode)
	}

	r, err := http.Get(ts.URL + "/v1/personas/lina")
	if err != nil {
		t.Fatalf("GET persona: %v", err)
	}
	r.Body.Close()
	if r.StatusCode != http.StatusNotFound {
		t.Errorf("status after delete = %d, want 404", r.StatusCode)
	}
}
