package bridge

import (
	"fmt"
	"log"
	"strings"
	"sync"
)

// Speaker identifies which side of the call produced a transcript line.
type Speaker string

const (
	SpeakerUser  Speaker = "User"
	SpeakerAgent Speaker = "Agent"
)

// AIState tracks the lifecycle of the AI leg for one call.
type AIState int

const (
	AIConnecting AIState = iota
	AIReady
	AIClosed
)

func (s AIState) String() string {
	switch s {
	case AIConnecting:
		return "connecting"
	case AIReady:
		return "ready"
	case AIClosed:
		return "closed"
	}
	return fmt.Sprintf("AIState(%d)", int(s))
}

// Line is one transcript entry.
type Line struct {
	Speaker Speaker
	Text    string
}

// Session is the per-call state shared between the telephony leg and the
// AI leg. The stream SID is set once by the telephony "start" event and
// addresses all outbound media for this call. The transcript is append-only
// and grows from both legs.
type Session struct {
	CallID string

	mu        sync.Mutex
	streamSID string
	lines     []Line
	aiState   AIState
	finalized bool
}

// StreamSID returns the telephony stream address, or "" if the start event
// has not arrived yet.
func (s *Session) StreamSID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.streamSID
}

// setStreamSID sets the stream address once. It reports whether the value
// was accepted; a second call with a different SID is rejected so outbound
// frames stay bound to the original stream.
func (s *Session) setStreamSID(sid string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.streamSID != "" && s.streamSID != sid {
		return false
	}
	s.streamSID = sid
	return true
}

// AIState returns the current AI leg state.
func (s *Session) AIState() AIState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.aiState
}

// SetAIState updates the AI leg state.
func (s *Session) SetAIState(st AIState) {
	s.mu.Lock()
	s.aiState = st
	s.mu.Unlock()
}

func (s *Session) append(speaker Speaker, text string) {
	s.mu.Lock()
	s.lines = append(s.lines, Line{Speaker: speaker, Text: text})
	s.mu.Unlock()
}

// Lines returns a copy of the transcript so far.
func (s *Session) Lines() []Line {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Line, len(s.lines))
	copy(out, s.lines)
	return out
}

// Transcript renders the transcript as a single text block, one
// "Speaker: text" line per entry.
func (s *Session) Transcript() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	var b strings.Builder
	for _, l := range s.lines {
		b.WriteString(string(l.Speaker))
		b.WriteString(": ")
		b.WriteString(l.Text)
		b.WriteString("\n")
	}
	return b.String()
}

// BeginFinalize marks the session as finalizing. Only the first caller gets
// true; both legs may race to finalize on close and exactly one must run
// post-call processing.
func (s *Session) BeginFinalize() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.finalized {
		return false
	}
	s.finalized = true
	return true
}

// Store is the process-wide registry of active call sessions. It is the only
// component that mutates session transcripts; leg adapters route all appends
// through it by call ID so that a late event after teardown is a logged no-op
// instead of a crash.
type Store struct {
	mu       sync.Mutex
	sessions map[string]*Session
	logger   *log.Logger
}

// NewStore creates an empty session store.
func NewStore(logger *log.Logger) *Store {
	return &Store{
		sessions: make(map[string]*Session),
		logger:   logger,
	}
}

// GetOrCreate returns the session for callID, creating it on first use.
// Concurrent callers with the same ID always get the same instance.
func (st *Store) GetOrCreate(callID string) *Session {
	st.mu.Lock()
	defer st.mu.Unlock()
	if s, ok := st.sessions[callID]; ok {
		return s
	}
	s := &Session{CallID: callID, aiState: AIConnecting}
	st.sessions[callID] = s
	return s
}

// Get returns the session for callID, or nil if none exists.
func (st *Store) Get(callID string) *Session {
	st.mu.Lock()
	defer st.mu.Unlock()
	return st.sessions[callID]
}

// AppendLine appends one transcript line to the session for callID. Unknown
// call IDs are logged and ignored; AI-leg events can arrive after teardown.
func (st *Store) AppendLine(callID string, speaker Speaker, text string) {
	s := st.Get(callID)
	if s == nil {
		st.logger.Printf("bridge: dropping transcript line for unknown call %s", callID)
		return
	}
	s.append(speaker, text)
}

// SetStreamSID records the telephony stream address for callID. The address
// is set once; a conflicting rewrite is logged and ignored.
func (st *Store) SetStreamSID(callID, sid string) {
	s := st.Get(callID)
	if s == nil {
		st.logger.Printf("bridge: stream SID for unknown call %s", callID)
		return
	}
	if !s.setStreamSID(sid) {
		st.logger.Printf("bridge: ignoring conflicting stream SID %s for call %s (already %s)",
			sid, callID, s.StreamSID())
	}
}

// Remove deletes the session for callID. Called once per call, after
// post-call processing completes.
func (st *Store) Remove(callID string) {
	st.mu.Lock()
	delete(st.sessions, callID)
	st.mu.Unlock()
}

// Len returns the number of active sessions.
func (st *Store) Len() int {
	st.mu.Lock()
	defer st.mu.Unlock()
	return len(st.sessions)
}
