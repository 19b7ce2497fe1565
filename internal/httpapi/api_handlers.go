package httpapi

import (
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/mlynnf123/voicedesk/internal/store"
)

// wsTokenTTL is the lifetime of a dashboard WebSocket token.
const wsTokenTTL = 5 * time.Minute

func (r *Router) handleListConversations(w http.ResponseWriter, req *http.Request) {
	convs, err := r.store.ListConversations(req.Context())
	if err != nil {
		r.logger.Printf("api: failed to list conversations: %v", err)
		writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}
	if convs == nil {
		convs = []store.Conversation{}
	}
	writeJSON(w, http.StatusOK, convs)
}

func (r *Router) handleGetConversation(w http.ResponseWriter, req *http.Request) {
	id := req.PathValue("id")
	if id == "" {
		writeError(w, http.StatusBadRequest, "missing conversation id")
		return
	}

	conv, err := r.store.GetConversation(req.Context(), id)
	if err != nil {
		r.logger.Printf("api: failed to get conversation %s: %v", id, err)
		writeError(w, http.StatusNotFound, "conversation not found")
		return
	}

	msgs, err := r.store.ListMessages(req.Context(), id)
	if err != nil {
		r.logger.Printf("api: failed to list messages for %s: %v", id, err)
		writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}
	if msgs == nil {
		msgs = []store.Message{}
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"id":           conv.ID,
		"phone_number": conv.PhoneNumber,
		"lead_name":    conv.LeadName,
		"created_at":   conv.CreatedAt,
		"updated_at":   conv.UpdatedAt,
		"messages":     msgs,
	})
}

// handlePostMessage stores an outbound message, texts it to the contact when
// the conversation is keyed by a real phone number, and notifies observers.
func (r *Router) handlePostMessage(w http.ResponseWriter, req *http.Request) {
	id := req.PathValue("id")
	if id == "" {
		writeError(w, http.StatusBadRequest, "missing conversation id")
		return
	}

	var body struct {
		Content string `json:"content"`
	}
	if err := json.NewDecoder(req.Body).Decode(&body); err != nil || body.Content == "" {
		writeError(w, http.StatusBadRequest, "message content is required")
		return
	}

	ctx := req.Context()

	conv, err := r.store.GetConversation(ctx, id)
	if err != nil {
		r.logger.Printf("api: failed to get conversation %s: %v", id, err)
		writeError(w, http.StatusNotFound, "conversation not found")
		return
	}

	msg, err := r.store.StoreMessage(ctx, id, "outbound", body.Content)
	if err != nil {
		r.logger.Printf("api: failed to store message for %s: %v", id, err)
		writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}

	// Call-scoped conversations use a synthetic "call_" address with nothing
	// to text back to.
	if strings.HasPrefix(conv.PhoneNumber, "+") {
		if err := r.sms.Send(ctx, conv.PhoneNumber, body.Content); err != nil {
			r.logger.Printf("api: failed to SMS %s: %v", conv.PhoneNumber, err)
		}
	}

	r.broadcastMessage(id, "outbound", body.Content)

	writeJSON(w, http.StatusOK, map[string]any{"success": true, "message": msg})
}

func (r *Router) handlePushRegister(w http.ResponseWriter, req *http.Request) {
	var body struct {
		DeviceToken string `json:"device_token"`
	}
	if err := json.NewDecoder(req.Body).Decode(&body); err != nil || body.DeviceToken == "" {
		writeError(w, http.StatusBadRequest, "device_token is required")
		return
	}

	if err := r.store.RegisterPushToken(req.Context(), body.DeviceToken); err != nil {
		r.logger.Printf("api: failed to register push token: %v", err)
		writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}

	writeJSON(w, http.StatusOK, map[string]bool{"success": true})
}

// handleWSToken issues a short-lived token for the dashboard observer
// WebSocket. With no secret configured the observer channel is open and the
// token is empty.
func (r *Router) handleWSToken(w http.ResponseWriter, req *http.Request) {
	var body struct {
		ClientID string `json:"client_id"`
	}
	if err := json.NewDecoder(req.Body).Decode(&body); err != nil || body.ClientID == "" {
		writeError(w, http.StatusBadRequest, "client_id is required")
		return
	}

	if r.cfg.DashboardJWTSecret == "" {
		writeJSON(w, http.StatusOK, map[string]string{"token": ""})
		return
	}

	claims := jwt.RegisteredClaims{
		Subject:   body.ClientID,
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(wsTokenTTL)),
		IssuedAt:  jwt.NewNumericDate(time.Now()),
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString([]byte(r.cfg.DashboardJWTSecret))
	if err != nil {
		r.logger.Printf("api: failed to sign ws token: %v", err)
		writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"token": signed})
}

// verifyWSToken checks a dashboard WebSocket token for the given client ID.
func (r *Router) verifyWSToken(tokenString, clientID string) bool {
	if r.cfg.DashboardJWTSecret == "" {
		return true
	}

	token, err := jwt.ParseWithClaims(tokenString, &jwt.RegisteredClaims{}, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, jwt.ErrSignatureInvalid
		}
		return []byte(r.cfg.DashboardJWTSecret), nil
	})
	if err != nil || !token.Valid {
		return false
	}

	claims, ok := token.Claims.(*jwt.RegisteredClaims)
	return ok && claims.Subject == clientID
}
