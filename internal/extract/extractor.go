package extract

import (
	"context"
	"encoding/json"
	"log"
	"time"

	"github.com/mlynnf123/voicedesk/internal/eventlog"
	"github.com/mlynnf123/voicedesk/internal/notify"
	"github.com/mlynnf123/voicedesk/internal/store"
)

// Completer runs the structured-extraction request. Implemented by the LLM
// client; faked in tests.
type Completer interface {
	ExtractCustomerDetails(ctx context.Context, transcript string) (string, error)
}

// ConversationStore persists the extraction output.
type ConversationStore interface {
	GetOrCreateConversation(ctx context.Context, phoneNumber, name string) (*store.Conversation, error)
	StoreMessage(ctx context.Context, conversationID, direction, content string) (*store.Message, error)
	ListPushTokens(ctx context.Context) ([]string, error)
}

// Broadcaster pushes events to dashboard observers.
type Broadcaster interface {
	Broadcast(event any)
}

// CustomerDetails is the fixed-schema extraction result. Pointer fields
// distinguish a missing key from a legitimately empty value.
type CustomerDetails struct {
	CustomerName         *string `json:"customerName"`
	CustomerAvailability *string `json:"customerAvailability"`
	SpecialNotes         *string `json:"specialNotes"`
}

// Extractor runs the post-call structured-extraction pass and persists the
// result. It runs at most once per call (the bridge's finalize guard
// enforces that) and its failure is non-fatal: the call is already over and
// only this call's summary is lost.
type Extractor struct {
	llm      Completer
	store    ConversationStore
	notifier Broadcaster
	apns     *notify.APNsClient // optional
	events   *eventlog.Logger
	logger   *log.Logger
}

// New creates an extractor. apns may be nil.
func New(llm Completer, st ConversationStore, notifier Broadcaster, apns *notify.APNsClient, events *eventlog.Logger, logger *log.Logger) *Extractor {
	return &Extractor{
		llm:      llm,
		store:    st,
		notifier: notifier,
		apns:     apns,
		events:   events,
		logger:   logger,
	}
}

// ProcessTranscript extracts customer details from a finished call's
// transcript and stores the conversation record. Every failure path logs and
// returns; nothing here retries or propagates.
func (e *Extractor) ProcessTranscript(ctx context.Context, callID, transcript string) {
	e.logger.Printf("extract: processing transcript for call %s", callID)

	content, err := e.llm.ExtractCustomerDetails(ctx, transcript)
	if err != nil {
		e.logger.Printf("extract: extraction call failed for %s: %v", callID, err)
		e.events.LogAsync(callID, eventlog.EventExtractionFailed, map[string]any{"error": err.Error()})
		return
	}

	var details CustomerDetails
	if err := json.Unmarshal([]byte(content), &details); err != nil {
		e.logger.Printf("extract: failed to parse extraction result for %s: %v (content: %s)", callID, err, content)
		e.events.LogAsync(callID, eventlog.EventExtractionFailed, map[string]any{"error": "parse failure"})
		return
	}
	if details.CustomerName == nil || details.CustomerAvailability == nil || details.SpecialNotes == nil {
		e.logger.Printf("extract: extraction result for %s is missing required fields (content: %s)", callID, content)
		e.events.LogAsync(callID, eventlog.EventExtractionFailed, map[string]any{"error": "missing fields"})
		return
	}

	// Voice calls have no contact number; key the conversation by a
	// call-scoped synthetic address.
	address := "call_" + callID

	conv, err := e.store.GetOrCreateConversation(ctx, address, *details.CustomerName)
	if err != nil {
		e.logger.Printf("extract: failed to get conversation for %s: %v", callID, err)
		return
	}

	if _, err := e.store.StoreMessage(ctx, conv.ID, "inbound", transcript); err != nil {
		e.logger.Printf("extract: failed to store transcript for %s: %v", callID, err)
		return
	}

	summary, err := json.Marshal(map[string]any{
		"type":    "call_summary",
		"details": details,
	})
	if err != nil {
		e.logger.Printf("extract: failed to marshal summary for %s: %v", callID, err)
		return
	}

	if _, err := e.store.StoreMessage(ctx, conv.ID, "system", string(summary)); err != nil {
		e.logger.Printf("extract: failed to store summary for %s: %v", callID, err)
		return
	}

	now := time.Now().UTC().Format(time.RFC3339)
	e.notifier.Broadcast(notify.ConversationEvent{
		Type: "new_conversation",
		Conversation: map[string]any{
			"id":           conv.ID,
			"phone_number": conv.PhoneNumber,
			"lead_name":    details.CustomerName,
			"messages": []notify.MessageBody{
				{Direction: "inbound", Content: transcript, Timestamp: now},
				{Direction: "system", Content: string(summary), Timestamp: now},
			},
		},
	})

	e.pushSummary(ctx, conv.ID, details)

	e.events.LogAsync(callID, eventlog.EventExtractionCompleted, map[string]any{
		"conversation_id": conv.ID,
	})
	e.logger.Printf("extract: stored customer details for call %s (conversation %s)", callID, conv.ID)
}

// pushSummary fans the summary out to registered APNs devices. Best effort.
func (e *Extractor) pushSummary(ctx context.Context, conversationID string, details CustomerDetails) {
	if e.apns == nil {
		return
	}

	tokens, err := e.store.ListPushTokens(ctx)
	if err != nil {
		e.logger.Printf("extract: failed to list push tokens: %v", err)
		return
	}

	notif := notify.CallSummaryNotification{
		ConversationID: conversationID,
		CustomerName:   *details.CustomerName,
		SpecialNotes:   *details.SpecialNotes,
	}
	for _, t := range tokens {
		if err := e.apns.PushCallSummary(t, notif); err != nil {
			e.logger.Printf("extract: push failed for token %s: %v", t, err)
		}
	}
}
