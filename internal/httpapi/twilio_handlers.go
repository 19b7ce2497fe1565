package httpapi

import (
	"encoding/xml"
	"net/http"
	"time"

	"github.com/mlynnf123/voicedesk/internal/llm"
	"github.com/mlynnf123/voicedesk/internal/notify"
)

// Minimal TwiML (enough to start Media Streams).
// Twilio expects Content-Type: text/xml.
type twimlResponse struct {
	XMLName xml.Name      `xml:"Response"`
	Say     *twimlSay     `xml:"Say,omitempty"`
	Connect *twimlConnect `xml:"Connect,omitempty"`
}

type twimlSay struct {
	Text string `xml:",chardata"`
}

type twimlConnect struct {
	Stream twimlStream `xml:"Stream"`
}

type twimlStream struct {
	URL string `xml:"url,attr"`
}

// handleIncomingCall answers Twilio's call webhook with TwiML that speaks a
// short greeting and connects the call to the media stream bridge.
func (r *Router) handleIncomingCall(w http.ResponseWriter, req *http.Request) {
	r.logger.Printf("twilio: incoming call")

	resp := twimlResponse{
		Say: &twimlSay{Text: r.cfg.GreetingText},
		Connect: &twimlConnect{
			Stream: twimlStream{
				URL: wsURLFromPublicBase(r.cfg.PublicBaseURL) + "/media-stream",
			},
		},
	}

	out, err := xml.Marshal(resp)
	if err != nil {
		r.logger.Printf("twilio: failed to marshal TwiML: %v", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/xml")
	_, _ = w.Write([]byte(xml.Header))
	_, _ = w.Write(out)
}

// handleInboundSMS stores an inbound text, generates a reply, sends it back
// over SMS and broadcasts both messages to dashboard observers.
func (r *Router) handleInboundSMS(w http.ResponseWriter, req *http.Request) {
	// Twilio sends application/x-www-form-urlencoded by default.
	if err := req.ParseForm(); err != nil {
		http.Error(w, "bad form", http.StatusBadRequest)
		return
	}

	userMessage := req.FormValue("Body")
	userPhone := req.FormValue("From")
	if userPhone == "" {
		writeError(w, http.StatusBadRequest, "missing From")
		return
	}

	ctx := req.Context()

	conv, err := r.store.GetOrCreateConversation(ctx, userPhone, "")
	if err != nil {
		r.logger.Printf("sms: failed to get conversation for %s: %v", userPhone, err)
		writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}

	if _, err := r.store.StoreMessage(ctx, conv.ID, "inbound", userMessage); err != nil {
		r.logger.Printf("sms: failed to store inbound message: %v", err)
		writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}
	r.broadcastMessage(conv.ID, "inbound", userMessage)

	reply, err := r.llm.Complete(ctx, llm.SMSReplySystemPrompt, userMessage)
	if err != nil {
		r.logger.Printf("sms: completion failed: %v", err)
		captureError(req, err, "sms: completion failed")
		writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}

	if _, err := r.store.StoreMessage(ctx, conv.ID, "outbound", reply); err != nil {
		r.logger.Printf("sms: failed to store reply: %v", err)
		writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}

	if err := r.sms.Send(ctx, userPhone, reply); err != nil {
		r.logger.Printf("sms: failed to send reply to %s: %v", userPhone, err)
		writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}
	r.broadcastMessage(conv.ID, "outbound", reply)

	writeJSON(w, http.StatusOK, map[string]bool{"success": true})
}

// broadcastMessage pushes a new_message event to dashboard observers.
func (r *Router) broadcastMessage(conversationID, direction, content string) {
	r.hub.Broadcast(notify.MessageEvent{
		Type:           "new_message",
		ConversationID: conversationID,
		Message: notify.MessageBody{
			Direction: direction,
			Content:   content,
			Timestamp: time.Now().UTC().Format(time.RFC3339),
		},
	})
}
