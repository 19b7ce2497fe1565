package httpapi

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/mlynnf123/voicedesk/internal/bridge"
	"github.com/mlynnf123/voicedesk/internal/notify"
	"github.com/mlynnf123/voicedesk/internal/store"
)

func TestListConversationsEmpty(t *testing.T) {
	router := newTestRouter(newFakeStore(), &fakeLLM{}, RouterConfig{})

	req := httptest.NewRequest(http.MethodGet, "/api/conversations", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	// Empty list must serialize as [], not null.
	if got := strings.TrimSpace(rec.Body.String()); got != "[]" {
		t.Errorf("body = %q, want []", got)
	}
}

func TestGetConversationWithMessages(t *testing.T) {
	fs := newFakeStore()
	conv, _ := fs.GetOrCreateConversation(context.Background(), "+15550001111", "Jane")
	_, _ = fs.StoreMessage(context.Background(), conv.ID, "inbound", "hello")

	router := newTestRouter(fs, &fakeLLM{}, RouterConfig{})

	req := httptest.NewRequest(http.MethodGet, "/api/conversations/"+conv.ID, nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", rec.Code, rec.Body.String())
	}

	var body struct {
		ID          string          `json:"id"`
		PhoneNumber string          `json:"phone_number"`
		LeadName    *string         `json:"lead_name"`
		Messages    []store.Message `json:"messages"`
	}
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body.ID != conv.ID || body.PhoneNumber != "+15550001111" {
		t.Errorf("conversation = %+v", body)
	}
	if body.LeadName == nil || *body.LeadName != "Jane" {
		t.Errorf("lead_name = %v, want Jane", body.LeadName)
	}
	if len(body.Messages) != 1 || body.Messages[0].Content != "hello" {
		t.Errorf("messages = %+v", body.Messages)
	}
}

func TestGetConversationNotFound(t *testing.T) {
	router := newTestRouter(newFakeStore(), &fakeLLM{}, RouterConfig{})

	req := httptest.NewRequest(http.MethodGet, "/api/conversations/nope", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusNotFound {
		t.Errorf("status = %d, want 404", rec.Code)
	}
}

func TestPostMessageStoresAndBroadcasts(t *testing.T) {
	fs := newFakeStore()
	conv, _ := fs.GetOrCreateConversation(context.Background(), "call_CA123", "")

	hub := notify.NewHub(testLogger())
	observer := &recordingConn{}
	hub.Register("dash-1", observer)

	router := NewRouter(RouterConfig{}, testLogger(), Deps{
		Store:     fs,
		LLM:       &fakeLLM{},
		Hub:       hub,
		Sessions:  bridge.NewStore(testLogger()),
		Extractor: newFakeExtractor(),
		Calls:     NewCallRegistry(),
		DialAI:    func(context.Context) (AILeg, error) { return newFakeAI(), nil },
	})

	req := httptest.NewRequest(http.MethodPost, "/api/conversations/"+conv.ID+"/messages",
		strings.NewReader(`{"content":"We will see you tomorrow"}`))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", rec.Code, rec.Body.String())
	}

	msgs := fs.messagesFor(conv.ID)
	if len(msgs) != 1 || msgs[0].Direction != "outbound" {
		t.Fatalf("messages = %+v", msgs)
	}

	frames := observer.frames()
	if len(frames) != 1 {
		t.Fatalf("broadcast %d frames, want 1", len(frames))
	}
	var ev notify.MessageEvent
	if err := json.Unmarshal(frames[0], &ev); err != nil {
		t.Fatalf("decode broadcast: %v", err)
	}
	if ev.Type != "new_message" || ev.ConversationID != conv.ID {
		t.Errorf("broadcast = %+v", ev)
	}
	if ev.Message.Direction != "outbound" || ev.Message.Content != "We will see you tomorrow" {
		t.Errorf("broadcast message = %+v", ev.Message)
	}
}

func TestPostMessageRequiresContent(t *testing.T) {
	fs := newFakeStore()
	conv, _ := fs.GetOrCreateConversation(context.Background(), "+15550001111", "")
	router := newTestRouter(fs, &fakeLLM{}, RouterConfig{})

	for _, body := range []string{`{}`, `{"content":""}`, `not json`} {
		req := httptest.NewRequest(http.MethodPost, "/api/conversations/"+conv.ID+"/messages",
			strings.NewReader(body))
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, req)

		if rec.Code != http.StatusBadRequest {
			t.Errorf("body %q: status = %d, want 400", body, rec.Code)
		}
	}
}

func TestPushRegister(t *testing.T) {
	fs := newFakeStore()
	router := newTestRouter(fs, &fakeLLM{}, RouterConfig{})

	req := httptest.NewRequest(http.MethodPost, "/api/push/register",
		strings.NewReader(`{"device_token":"abc123"}`))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	if len(fs.pushTokens) != 1 || fs.pushTokens[0] != "abc123" {
		t.Errorf("registered tokens = %v", fs.pushTokens)
	}
}

func TestPushRegisterRequiresToken(t *testing.T) {
	router := newTestRouter(newFakeStore(), &fakeLLM{}, RouterConfig{})

	req := httptest.NewRequest(http.MethodPost, "/api/push/register", strings.NewReader(`{}`))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", rec.Code)
	}
}

func issueWSToken(t *testing.T, router http.Handler, clientID string) string {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/api/ws-token",
		strings.NewReader(`{"client_id":"`+clientID+`"}`))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("ws-token status = %d", rec.Code)
	}
	var body struct {
		Token string `json:"token"`
	}
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatalf("decode token: %v", err)
	}
	return body.Token
}

func TestWSTokenRoundTrip(t *testing.T) {
	cfg := RouterConfig{DashboardJWTSecret: "test-secret"}
	handler := newTestRouter(newFakeStore(), &fakeLLM{}, cfg)

	token := issueWSToken(t, handler, "dash-1")
	if token == "" {
		t.Fatal("expected a signed token with a secret configured")
	}

	r := &Router{cfg: cfg, logger: testLogger()}
	if !r.verifyWSToken(token, "dash-1") {
		t.Error("token did not verify for its own client ID")
	}
	if r.verifyWSToken(token, "someone-else") {
		t.Error("token verified for a different client ID")
	}
	if r.verifyWSToken("garbage", "dash-1") {
		t.Error("garbage token verified")
	}

	other := &Router{cfg: RouterConfig{DashboardJWTSecret: "different"}, logger: testLogger()}
	if other.verifyWSToken(token, "dash-1") {
		t.Error("token verified under a different secret")
	}
}

func TestWSTokenWithoutSecret(t *testing.T) {
	handler := newTestRouter(newFakeStore(), &fakeLLM{}, RouterConfig{})

	token := issueWSToken(t, handler, "dash-1")
	if token != "" {
		t.Errorf("token = %q, want empty when no secret is configured", token)
	}

	r := &Router{cfg: RouterConfig{}, logger: testLogger()}
	if !r.verifyWSToken("", "dash-1") {
		t.Error("open observer channel must accept empty tokens")
	}
}

func TestWSTokenRequiresClientID(t *testing.T) {
	router := newTestRouter(newFakeStore(), &fakeLLM{}, RouterConfig{})

	req := httptest.NewRequest(http.MethodPost, "/api/ws-token", strings.NewReader(`{}`))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", rec.Code)
	}
}

func TestCORSPreflight(t *testing.T) {
	router := newTestRouter(newFakeStore(), &fakeLLM{}, RouterConfig{})

	req := httptest.NewRequest(http.MethodOptions, "/api/conversations", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusNoContent {
		t.Errorf("preflight status = %d, want 204", rec.Code)
	}
	if got := rec.Header().Get("Access-Control-Allow-Origin"); got != "*" {
		t.Errorf("Allow-Origin = %q", got)
	}
}

func TestHealthz(t *testing.T) {
	router := newTestRouter(newFakeStore(), &fakeLLM{}, RouterConfig{})

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Errorf("status = %d, want 200", rec.Code)
	}
	if rec.Body.String() != "ok" {
		t.Errorf("body = %q, want ok", rec.Body.String())
	}
}

// recordingConn is a notify.Conn capturing broadcast frames.
type recordingConn struct {
	mu   sync.Mutex
	sent [][]byte
}

func (c *recordingConn) WriteMessage(_ int, data []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.sent = append(c.sent, append([]byte(nil), data...))
	return nil
}

func (c *recordingConn) Close() error { return nil }

func (c *recordingConn) frames() [][]byte {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([][]byte(nil), c.sent...)
}
