package httpapi

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"github.com/mlynnf123/voicedesk/internal/llm"
)

// lead is one row in a check-leads request.
type lead struct {
	PhoneNumber string `json:"phoneNumber"`
	Name        string `json:"name,omitempty"`
}

type leadResult struct {
	PhoneNumber string `json:"phoneNumber"`
	Name        string `json:"name"`
	Message     string `json:"message"`
	Success     bool   `json:"success"`
}

// normalizePhone coerces a phone number into E.164-ish form for Twilio.
// Returns "" when the number is unusable.
func normalizePhone(raw string) string {
	p := strings.TrimSpace(raw)
	if p == "" {
		return ""
	}
	if !strings.HasPrefix(p, "+") {
		var digits strings.Builder
		for _, c := range p {
			if c >= '0' && c <= '9' {
				digits.WriteRune(c)
			}
		}
		p = "+" + digits.String()
	}
	if len(p) < 10 {
		return ""
	}
	return p
}

// handleCheckLeads runs batch outreach: for each lead, generate an initial
// contact message, store it, text it, and notify dashboard observers.
func (r *Router) handleCheckLeads(w http.ResponseWriter, req *http.Request) {
	var body struct {
		Leads []lead `json:"leads"`
	}
	if err := json.NewDecoder(req.Body).Decode(&body); err != nil || body.Leads == nil {
		writeError(w, http.StatusBadRequest, "invalid leads data format")
		return
	}

	ctx := req.Context()
	results := make([]leadResult, 0, len(body.Leads))

	for _, l := range body.Leads {
		phone := normalizePhone(l.PhoneNumber)
		if phone == "" {
			r.logger.Printf("leads: skipping invalid phone number %q", l.PhoneNumber)
			continue
		}

		conv, err := r.store.GetOrCreateConversation(ctx, phone, l.Name)
		if err != nil {
			r.logger.Printf("leads: failed to get conversation for %s: %v", phone, err)
			writeError(w, http.StatusInternalServerError, err.Error())
			return
		}

		prompt := fmt.Sprintf("Create an initial outreach message for %s. Mention Barts Automotive and ask about their automotive needs.", l.Name)
		message, err := r.llm.Complete(ctx, llm.OutreachSystemPrompt, prompt)
		if err != nil {
			r.logger.Printf("leads: completion failed for %s: %v", phone, err)
			writeError(w, http.StatusInternalServerError, err.Error())
			return
		}

		if _, err := r.store.StoreMessage(ctx, conv.ID, "outbound", message); err != nil {
			r.logger.Printf("leads: failed to store message for %s: %v", phone, err)
			writeError(w, http.StatusInternalServerError, err.Error())
			return
		}

		if err := r.sms.Send(ctx, phone, message); err != nil {
			r.logger.Printf("leads: failed to SMS %s: %v", phone, err)
			writeError(w, http.StatusInternalServerError, err.Error())
			return
		}

		r.broadcastMessage(conv.ID, "outbound", message)

		results = append(results, leadResult{
			PhoneNumber: phone,
			Name:        l.Name,
			Message:     message,
			Success:     true,
		})
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"success": true,
		"message": "Outreach messages sent",
		"results": results,
	})
}
