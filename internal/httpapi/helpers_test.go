package httpapi

import (
	"context"
	"fmt"
	"io"
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/mlynnf123/voicedesk/internal/bridge"
	"github.com/mlynnf123/voicedesk/internal/notify"
	"github.com/mlynnf123/voicedesk/internal/realtime"
	"github.com/mlynnf123/voicedesk/internal/store"
)

func testLogger() *log.Logger {
	return log.New(io.Discard, "", 0)
}

// fakeStore is an in-memory ConversationStore.
type fakeStore struct {
	mu            sync.Mutex
	conversations map[string]*store.Conversation
	messages      map[string][]store.Message
	pushTokens    []string
	nextID        int
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		conversations: make(map[string]*store.Conversation),
		messages:      make(map[string][]store.Message),
	}
}

func (f *fakeStore) GetOrCreateConversation(_ context.Context, phoneNumber, name string) (*store.Conversation, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, c := range f.conversations {
		if c.PhoneNumber == phoneNumber {
			return c, nil
		}
	}
	f.nextID++
	c := &store.Conversation{
		ID:          fmt.Sprintf("conv-%d", f.nextID),
		PhoneNumber: phoneNumber,
		CreatedAt:   time.Now(),
		UpdatedAt:   time.Now(),
	}
	if name != "" {
		c.LeadName = &name
	}
	f.conversations[c.ID] = c
	return c, nil
}

func (f *fakeStore) GetConversation(_ context.Context, id string) (*store.Conversation, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	c, ok := f.conversations[id]
	if !ok {
		return nil, fmt.Errorf("conversation %s not found", id)
	}
	return c, nil
}

func (f *fakeStore) ListConversations(_ context.Context) ([]store.Conversation, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]store.Conversation, 0, len(f.conversations))
	for _, c := range f.conversations {
		out = append(out, *c)
	}
	return out, nil
}

func (f *fakeStore) StoreMessage(_ context.Context, conversationID, direction, content string) (*store.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.nextID++
	m := store.Message{
		ID:             fmt.Sprintf("msg-%d", f.nextID),
		ConversationID: conversationID,
		Direction:      direction,
		Content:        content,
		Timestamp:      time.Now(),
	}
	f.messages[conversationID] = append(f.messages[conversationID], m)
	return &m, nil
}

func (f *fakeStore) ListMessages(_ context.Context, conversationID string) ([]store.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]store.Message(nil), f.messages[conversationID]...), nil
}

func (f *fakeStore) RegisterPushToken(_ context.Context, deviceToken string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.pushTokens = append(f.pushTokens, deviceToken)
	return nil
}

func (f *fakeStore) messagesFor(conversationID string) []store.Message {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]store.Message(nil), f.messages[conversationID]...)
}

func (f *fakeStore) conversationByPhone(phoneNumber string) *store.Conversation {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, c := range f.conversations {
		if c.PhoneNumber == phoneNumber {
			return c
		}
	}
	return nil
}

// fakeLLM returns canned completions.
type fakeLLM struct {
	completeReply string
	completeErr   error
	extractReply  string

	mu       sync.Mutex
	requests []string
}

func (f *fakeLLM) Complete(_ context.Context, _ string, user string) (string, error) {
	f.mu.Lock()
	f.requests = append(f.requests, user)
	f.mu.Unlock()
	if f.completeErr != nil {
		return "", f.completeErr
	}
	return f.completeReply, nil
}

func (f *fakeLLM) ExtractCustomerDetails(_ context.Context, transcript string) (string, error) {
	f.mu.Lock()
	f.requests = append(f.requests, transcript)
	f.mu.Unlock()
	return f.extractReply, nil
}

// fakeAI is a scriptable AILeg.
type fakeAI struct {
	events chan realtime.ServerEvent
	errs   chan error

	mu       sync.Mutex
	appended []string
	closed   bool
}

func newFakeAI() *fakeAI {
	return &fakeAI{
		events: make(chan realtime.ServerEvent, 10),
		errs:   make(chan error, 1),
	}
}

func (f *fakeAI) AppendAudio(payload string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed {
		return fmt.Errorf("closed")
	}
	f.appended = append(f.appended, payload)
	return nil
}

func (f *fakeAI) Events() <-chan realtime.ServerEvent { return f.events }
func (f *fakeAI) Errors() <-chan error                { return f.errs }

func (f *fakeAI) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = true
	return nil
}

func (f *fakeAI) appendedAudio() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.appended...)
}

// fakeTelephonyConn records outbound frames; inbound frames are scripted.
type fakeTelephonyConn struct {
	inbound chan []byte

	mu      sync.Mutex
	written []any
	closed  bool
}

func newFakeTelephonyConn() *fakeTelephonyConn {
	return &fakeTelephonyConn{inbound: make(chan []byte, 20)}
}

func (f *fakeTelephonyConn) ReadMessage() (int, []byte, error) {
	msg, ok := <-f.inbound
	if !ok {
		return 0, nil, fmt.Errorf("connection closed")
	}
	return 1, msg, nil
}

func (f *fakeTelephonyConn) WriteJSON(v any) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.written = append(f.written, v)
	return nil
}

func (f *fakeTelephonyConn) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if !f.closed {
		f.closed = true
		close(f.inbound)
	}
	return nil
}

func (f *fakeTelephonyConn) outbound() []any {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]any(nil), f.written...)
}

// fakeExtractor counts invocations of the post-call pass.
type fakeExtractor struct {
	mu          sync.Mutex
	calls       int
	callID      string
	transcript  string
	invocations chan struct{}
}

func newFakeExtractor() *fakeExtractor {
	return &fakeExtractor{invocations: make(chan struct{}, 5)}
}

func (f *fakeExtractor) ProcessTranscript(_ context.Context, callID, transcript string) {
	f.mu.Lock()
	f.calls++
	f.callID = callID
	f.transcript = transcript
	f.mu.Unlock()
	f.invocations <- struct{}{}
}

func (f *fakeExtractor) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

func newTestRouter(fs *fakeStore, fl *fakeLLM, cfg RouterConfig) http.Handler {
	return NewRouter(cfg, testLogger(), Deps{
		Store:     fs,
		LLM:       fl,
		Hub:       notify.NewHub(testLogger()),
		SMS:       nil,
		Sessions:  bridge.NewStore(testLogger()),
		Extractor: newFakeExtractor(),
		Events:    nil,
		Calls:     NewCallRegistry(),
		DialAI:    func(context.Context) (AILeg, error) { return newFakeAI(), nil },
	})
}
