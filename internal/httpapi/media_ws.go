package httpapi

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/mlynnf123/voicedesk/internal/bridge"
	"github.com/mlynnf123/voicedesk/internal/eventlog"
	"github.com/mlynnf123/voicedesk/internal/realtime"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// agentMessageNotFound is appended when a response carries no textual
// transcript fragment, so the transcript still records that the agent spoke.
const agentMessageNotFound = "Agent message not found"

// extractionTimeout bounds the post-call extraction pass.
const extractionTimeout = 30 * time.Second

// Twilio Media Stream message types
type twilioMessage struct {
	Event     string       `json:"event"`
	Media     *twilioMedia `json:"media,omitempty"`
	Start     *twilioStart `json:"start,omitempty"`
	StreamSid string       `json:"streamSid,omitempty"`
}

type twilioMedia struct {
	Track     string `json:"track,omitempty"`
	Timestamp string `json:"timestamp,omitempty"`
	Payload   string `json:"payload"` // Base64 μ-law audio, passed through opaque
}

type twilioStart struct {
	StreamSid  string   `json:"streamSid"`
	AccountSid string   `json:"accountSid,omitempty"`
	CallSid    string   `json:"callSid,omitempty"`
	Tracks     []string `json:"tracks,omitempty"`
}

// twilioOutboundMedia is the format for sending audio back to Twilio.
type twilioOutboundMedia struct {
	Event     string `json:"event"`
	StreamSid string `json:"streamSid"`
	Media     struct {
		Payload string `json:"payload"` // Base64 μ-law audio
	} `json:"media"`
}

// telephonyConn is the subset of *websocket.Conn the call session uses.
type telephonyConn interface {
	ReadMessage() (messageType int, p []byte, err error)
	WriteJSON(v any) error
	Close() error
}

// callSession bridges one call: the telephony leg it reads from, the AI leg
// it relays audio to and from, and the shared session state in the store.
type callSession struct {
	callID string

	conn   telephonyConn
	connMu sync.Mutex

	session  *bridge.Session
	sessions *bridge.Store

	ai        AILeg // nil when the AI leg could not be established
	extractor TranscriptProcessor
	events    *eventlog.Logger
	logger    *log.Logger

	// streaming is the telephony leg state: false until the "start" control
	// event arrives. Media before start is dropped.
	streaming bool

	ctx    context.Context
	cancel context.CancelFunc
}

func (r *Router) handleMediaWS(w http.ResponseWriter, req *http.Request) {
	if !r.calls.Add() {
		r.logger.Printf("media_ws: rejecting new call, draining")
		http.Error(w, "shutting down", http.StatusServiceUnavailable)
		return
	}
	defer r.calls.Done()

	conn, err := upgrader.Upgrade(w, req, nil)
	if err != nil {
		r.logger.Printf("media_ws: upgrade failed: %v", err)
		return
	}

	callID := req.Header.Get("X-Twilio-Call-Sid")
	if callID == "" {
		callID = fmt.Sprintf("session_%d", time.Now().UnixNano())
	}

	ctx, cancel := context.WithCancel(context.Background())

	s := &callSession{
		callID:    callID,
		conn:      conn,
		session:   r.sessions.GetOrCreate(callID),
		sessions:  r.sessions,
		extractor: r.extractor,
		events:    r.events,
		logger:    r.logger,
		ctx:       ctx,
		cancel:    cancel,
	}

	r.logger.Printf("media_ws: telephony leg connected for call %s", callID)
	r.events.LogAsync(callID, eventlog.EventCallStarted, nil)

	// The AI leg failing to open is not fatal to the call: the caller hears
	// silence, but the bridge keeps the telephony leg up and the transcript
	// (empty) still goes through extraction at close.
	ai, err := r.dialAI(ctx)
	if err != nil {
		r.logger.Printf("media_ws: failed to open AI leg for call %s: %v", callID, err)
		captureError(req, err, "media_ws: AI leg dial failed")
		s.session.SetAIState(bridge.AIClosed)
	} else {
		s.ai = ai
		r.events.LogAsync(callID, eventlog.EventAIConnected, nil)
		go s.runAILeg()
	}

	s.run()
}

// run is the telephony leg read loop. It exits on "stop", transport close,
// or a read error, all of which mean the call is over.
func (s *callSession) run() {
	defer s.cleanup()

	for {
		select {
		case <-s.ctx.Done():
			return
		default:
		}

		_, msg, err := s.conn.ReadMessage()
		if err != nil {
			if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				s.logger.Printf("media_ws: telephony leg closed for call %s", s.callID)
			} else {
				s.logger.Printf("media_ws: read error for call %s: %v", s.callID, err)
			}
			return
		}

		if stop := s.handleTelephonyMessage(msg); stop {
			return
		}
	}
}

// handleTelephonyMessage dispatches one raw telephony frame. It reports
// whether the stream has stopped. Malformed frames are logged and dropped;
// they never terminate the leg.
func (s *callSession) handleTelephonyMessage(msg []byte) bool {
	var tm twilioMessage
	if err := json.Unmarshal(msg, &tm); err != nil {
		s.logger.Printf("media_ws: failed to parse message for call %s: %v", s.callID, err)
		return false
	}

	switch tm.Event {
	case "connected":
		s.logger.Printf("media_ws: transport connected for call %s", s.callID)

	case "start":
		s.handleStart(tm.Start)

	case "media":
		s.handleMedia(tm.Media)

	case "stop":
		s.logger.Printf("media_ws: stream stopped for call %s", s.callID)
		s.finalize()
		return true

	default:
		s.logger.Printf("media_ws: ignoring non-media event %q for call %s", tm.Event, s.callID)
	}

	return false
}

func (s *callSession) handleStart(start *twilioStart) {
	if start == nil || start.StreamSid == "" {
		s.logger.Printf("media_ws: malformed start event for call %s", s.callID)
		return
	}

	s.streaming = true
	s.sessions.SetStreamSID(s.callID, start.StreamSid)
	s.logger.Printf("media_ws: stream started for call %s (streamSid=%s)", s.callID, start.StreamSid)
	s.events.LogAsync(s.callID, eventlog.EventStreamStarted, map[string]any{"stream_sid": start.StreamSid})
}

// handleMedia relays one inbound audio frame to the AI leg. Frames arriving
// before "start" or before the AI leg is ready are dropped, not buffered:
// speech detection on the AI side tolerates a truncated call start, and
// buffering grows without bound if the AI leg never becomes ready.
func (s *callSession) handleMedia(media *twilioMedia) {
	if media == nil || media.Payload == "" {
		s.logger.Printf("media_ws: malformed media event for call %s", s.callID)
		return
	}

	if !s.streaming {
		s.logger.Printf("media_ws: dropping media before start for call %s", s.callID)
		return
	}

	if s.ai == nil || s.session.AIState() != bridge.AIReady {
		s.logger.Printf("media_ws: dropping media for call %s, AI leg %s", s.callID, s.session.AIState())
		s.events.LogAsync(s.callID, eventlog.EventMediaDropped, map[string]any{"ai_state": s.session.AIState().String()})
		return
	}

	if err := s.ai.AppendAudio(media.Payload); err != nil {
		s.logger.Printf("media_ws: failed to forward audio for call %s: %v", s.callID, err)
	}
}

// runAILeg consumes the AI leg's event stream. A close or error here does
// not finalize the call: the call's true end is the telephony side hanging
// up, and media arriving with no AI leg is dropped like any not-ready frame.
func (s *callSession) runAILeg() {
	for {
		select {
		case <-s.ctx.Done():
			return

		case err := <-s.ai.Errors():
			if err != nil {
				s.logger.Printf("media_ws: AI leg error for call %s: %v", s.callID, err)
			}
			s.session.SetAIState(bridge.AIClosed)
			s.events.LogAsync(s.callID, eventlog.EventAIClosed, nil)
			return

		case ev, ok := <-s.ai.Events():
			if !ok {
				s.session.SetAIState(bridge.AIClosed)
				s.events.LogAsync(s.callID, eventlog.EventAIClosed, nil)
				return
			}
			s.handleAIEvent(ev)
		}
	}
}

func (s *callSession) handleAIEvent(ev realtime.ServerEvent) {
	switch ev.Type {
	case realtime.EventSessionUpdated:
		s.session.SetAIState(bridge.AIReady)
		s.logger.Printf("media_ws: AI leg ready for call %s", s.callID)
		s.events.LogAsync(s.callID, eventlog.EventAIReady, nil)

	case realtime.EventInputTranscriptionCompleted:
		text := strings.TrimSpace(ev.Transcript)
		s.sessions.AppendLine(s.callID, bridge.SpeakerUser, text)
		s.logger.Printf("media_ws: user (%s): %s", s.callID, text)
		s.events.LogAsync(s.callID, eventlog.EventTranscriptLine, map[string]any{"speaker": "user"})

	case realtime.EventResponseDone:
		text, ok := ev.Response.FirstTranscript()
		if !ok {
			text = agentMessageNotFound
		}
		s.sessions.AppendLine(s.callID, bridge.SpeakerAgent, text)
		s.logger.Printf("media_ws: agent (%s): %s", s.callID, text)
		s.events.LogAsync(s.callID, eventlog.EventTranscriptLine, map[string]any{"speaker": "agent"})

	case realtime.EventResponseAudioDelta:
		if ev.Delta == "" {
			return
		}
		s.forwardAudioDelta(ev.Delta)

	default:
		if ev.Type.Verbose() {
			s.logger.Printf("media_ws: AI event %s for call %s", ev.Type, s.callID)
		}
	}
}

// forwardAudioDelta sends one AI audio chunk back to the telephony leg,
// tagged with the call's stream address. An AI response before the telephony
// "start" event has no address to tag with; the chunk is dropped.
func (s *callSession) forwardAudioDelta(payload string) {
	sid := s.session.StreamSID()
	if sid == "" {
		s.logger.Printf("media_ws: dropping AI audio for call %s, stream SID not yet known", s.callID)
		s.events.LogAsync(s.callID, eventlog.EventAudioDeltaDropped, nil)
		return
	}

	out := twilioOutboundMedia{
		Event:     "media",
		StreamSid: sid,
	}
	out.Media.Payload = payload

	s.connMu.Lock()
	err := s.conn.WriteJSON(out)
	s.connMu.Unlock()

	if err != nil {
		s.logger.Printf("media_ws: failed to send audio for call %s: %v", s.callID, err)
	}
}

// finalize runs post-call processing exactly once, regardless of how many
// close signals race in: close the AI leg, run extraction over the
// accumulated transcript (even when empty), then drop the session.
func (s *callSession) finalize() {
	if !s.session.BeginFinalize() {
		return
	}

	if s.ai != nil {
		_ = s.ai.Close()
	}
	s.session.SetAIState(bridge.AIClosed)

	transcript := s.session.Transcript()
	s.logger.Printf("media_ws: call %s ended, transcript:\n%s", s.callID, transcript)
	s.events.LogAsync(s.callID, eventlog.EventCallEnded, nil)

	// The call context is about to be cancelled; extraction gets its own
	// bounded context.
	ctx, cancel := context.WithTimeout(context.Background(), extractionTimeout)
	defer cancel()
	s.extractor.ProcessTranscript(ctx, s.callID, transcript)

	s.sessions.Remove(s.callID)
}

func (s *callSession) cleanup() {
	s.finalize()
	s.cancel()

	s.connMu.Lock()
	_ = s.conn.Close()
	s.connMu.Unlock()

	s.logger.Printf("media_ws: session cleaned up for call %s", s.callID)
}
