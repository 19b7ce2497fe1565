package httpapi

import (
	"context"
	"encoding/json"
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/getsentry/sentry-go"
	"github.com/mlynnf123/voicedesk/internal/bridge"
	"github.com/mlynnf123/voicedesk/internal/eventlog"
	"github.com/mlynnf123/voicedesk/internal/llm"
	"github.com/mlynnf123/voicedesk/internal/notify"
	"github.com/mlynnf123/voicedesk/internal/realtime"
	"github.com/mlynnf123/voicedesk/internal/store"
)

type RouterConfig struct {
	PublicBaseURL string

	// Voice agent settings
	RealtimeVoice            string
	ReceptionistInstructions string
	GreetingText             string

	// Twilio
	TwilioPhoneNumber string

	// Dashboard WebSocket auth. Empty disables token verification.
	DashboardJWTSecret string
}

// ConversationStore is the persistence collaborator for conversations and
// messages. Implemented by the Supabase store; faked in tests.
type ConversationStore interface {
	GetOrCreateConversation(ctx context.Context, phoneNumber, name string) (*store.Conversation, error)
	GetConversation(ctx context.Context, id string) (*store.Conversation, error)
	ListConversations(ctx context.Context) ([]store.Conversation, error)
	StoreMessage(ctx context.Context, conversationID, direction, content string) (*store.Message, error)
	ListMessages(ctx context.Context, conversationID string) ([]store.Message, error)
	RegisterPushToken(ctx context.Context, deviceToken string) error
}

// TranscriptProcessor runs the post-call extraction pass.
type TranscriptProcessor interface {
	ProcessTranscript(ctx context.Context, callID, transcript string)
}

// AILeg is the duplex connection to the realtime speech endpoint, as seen by
// the telephony leg adapter.
type AILeg interface {
	AppendAudio(payload string) error
	Events() <-chan realtime.ServerEvent
	Errors() <-chan error
	Close() error
}

// AIDialer opens the AI leg for one call.
type AIDialer func(ctx context.Context) (AILeg, error)

// Deps are the collaborators the router hands to its handlers.
type Deps struct {
	Store     ConversationStore
	LLM       llm.Client
	Hub       *notify.Hub
	SMS       *notify.SMSClient // optional
	Sessions  *bridge.Store
	Extractor TranscriptProcessor
	Events    *eventlog.Logger
	Calls     *CallRegistry
	DialAI    AIDialer
}

type Router struct {
	cfg       RouterConfig
	logger    *log.Logger
	store     ConversationStore
	llm       llm.Client
	hub       *notify.Hub
	sms       *notify.SMSClient
	sessions  *bridge.Store
	extractor TranscriptProcessor
	events    *eventlog.Logger
	calls     *CallRegistry
	dialAI    AIDialer
	mux       *http.ServeMux
}

func NewRouter(cfg RouterConfig, logger *log.Logger, deps Deps) http.Handler {
	r := &Router{
		cfg:       cfg,
		logger:    logger,
		store:     deps.Store,
		llm:       deps.LLM,
		hub:       deps.Hub,
		sms:       deps.SMS,
		sessions:  deps.Sessions,
		extractor: deps.Extractor,
		events:    deps.Events,
		calls:     deps.Calls,
		dialAI:    deps.DialAI,
		mux:       http.NewServeMux(),
	}

	r.routes()
	return withSentryRecovery(withCORS(r.mux))
}

func (r *Router) routes() {
	// Health check
	r.mux.HandleFunc("GET /healthz", r.handleHealthz)

	// Twilio webhooks (no auth - transport trust is pre-established)
	r.mux.HandleFunc("/incoming-call", r.handleIncomingCall)
	r.mux.HandleFunc("POST /sms", r.handleInboundSMS)

	// Telephony media stream (telephony leg of the call bridge)
	r.mux.HandleFunc("GET /media-stream", r.handleMediaWS)

	// Dashboard observer channel
	r.mux.HandleFunc("GET /ws", r.handleDashboardWS)
	r.mux.HandleFunc("POST /api/ws-token", r.handleWSToken)

	// Dashboard API
	r.mux.HandleFunc("GET /api/conversations", r.handleListConversations)
	r.mux.HandleFunc("GET /api/conversations/{id}", r.handleGetConversation)
	r.mux.HandleFunc("POST /api/conversations/{id}/messages", r.handlePostMessage)
	r.mux.HandleFunc("POST /api/push/register", r.handlePushRegister)

	// Lead outreach
	r.mux.HandleFunc("POST /check-leads", r.handleCheckLeads)
}

func (r *Router) handleHealthz(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

func withSentryRecovery(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		defer func() {
			if err := recover(); err != nil {
				hub := sentry.CurrentHub().Clone()
				hub.Scope().SetRequest(req)
				hub.RecoverWithContext(req.Context(), err)
				hub.Flush(2 * time.Second)
				http.Error(w, `{"error": "internal server error"}`, http.StatusInternalServerError)
			}
		}()
		next.ServeHTTP(w, req)
	})
}

func withCORS(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET,POST,PUT,DELETE,OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type,Authorization")
		if req.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, req)
	})
}

// captureError sends an error to Sentry with request context
func captureError(req *http.Request, err error, msg string) {
	sentry.WithScope(func(scope *sentry.Scope) {
		scope.SetRequest(req)
		scope.SetExtra("message", msg)
		sentry.CaptureException(err)
	})
}

func wsURLFromPublicBase(publicBase string) string {
	// http://x -> ws://x
	// https://x -> wss://x
	if strings.HasPrefix(publicBase, "https://") {
		return "wss://" + strings.TrimPrefix(publicBase, "https://")
	}
	if strings.HasPrefix(publicBase, "http://") {
		return "ws://" + strings.TrimPrefix(publicBase, "http://")
	}
	// assume already host[:port]
	return "wss://" + publicBase
}
