package realtime

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

const defaultRealtimeURL = "wss://api.openai.com/v1/realtime"

// settleDelay is how long to wait after connecting before sending the
// session configuration. The endpoint drops configuration sent immediately
// after the socket opens.
const settleDelay = 250 * time.Millisecond

// Config holds configuration for the realtime client.
type Config struct {
	APIKey       string
	Model        string // e.g., "gpt-4o-realtime-preview-2024-10-01"
	Voice        string // e.g., "alloy"
	Instructions string // behavioral instructions for the agent
	URL          string // endpoint override, for tests

	// SettleDelay overrides the default configuration settle delay.
	SettleDelay time.Duration
}

// Client is a streaming connection to the realtime speech-to-speech
// endpoint. Inbound server events are delivered on Events in arrival order;
// outbound audio is appended with AppendAudio.
type Client struct {
	conn      *websocket.Conn
	events    chan ServerEvent
	errors    chan error
	done      chan struct{}
	closeOnce sync.Once
	mu        sync.Mutex
	wg        sync.WaitGroup
	logger    *log.Logger
}

// sessionUpdate is the one configuration message sent after connect.
type sessionUpdate struct {
	Type    string        `json:"type"`
	Session sessionConfig `json:"session"`
}

type sessionConfig struct {
	TurnDetection           turnDetection      `json:"turn_detection"`
	InputAudioFormat        string             `json:"input_audio_format"`
	OutputAudioFormat       string             `json:"output_audio_format"`
	Voice                   string             `json:"voice"`
	Instructions            string             `json:"instructions"`
	Modalities              []string           `json:"modalities"`
	Temperature             float64            `json:"temperature"`
	InputAudioTranscription inputTranscription `json:"input_audio_transcription"`
}

type turnDetection struct {
	Type string `json:"type"`
}

type inputTranscription struct {
	Model string `json:"model"`
}

// audioAppend carries one inbound telephony audio chunk to the endpoint.
type audioAppend struct {
	Type  string `json:"type"`
	Audio string `json:"audio"` // base64 μ-law, passed through unchanged
}

// Dial connects to the realtime endpoint and starts the event reader. After
// a short settle delay the session configuration is sent; the endpoint
// acknowledges with a session.updated event, which the caller uses to gate
// audio forwarding.
func Dial(ctx context.Context, cfg Config, logger *log.Logger) (*Client, error) {
	base := cfg.URL
	if base == "" {
		base = defaultRealtimeURL
	}
	url := fmt.Sprintf("%s?model=%s", base, cfg.Model)

	headers := http.Header{}
	headers.Set("Authorization", "Bearer "+cfg.APIKey)
	headers.Set("OpenAI-Beta", "realtime=v1")

	conn, _, err := websocket.DefaultDialer.DialContext(ctx, url, headers)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to realtime endpoint: %w", err)
	}

	c := &Client{
		conn:   conn,
		events: make(chan ServerEvent, 100),
		errors: make(chan error, 10),
		done:   make(chan struct{}),
		logger: logger,
	}

	c.wg.Add(1)
	go c.readLoop()

	delay := cfg.SettleDelay
	if delay == 0 {
		delay = settleDelay
	}

	go func() {
		select {
		case <-c.done:
			return
		case <-time.After(delay):
		}
		if err := c.sendSessionUpdate(cfg); err != nil {
			select {
			case c.errors <- fmt.Errorf("session update: %w", err):
			default:
			}
		}
	}()

	return c, nil
}

func (c *Client) sendSessionUpdate(cfg Config) error {
	update := sessionUpdate{
		Type: "session.update",
		Session: sessionConfig{
			TurnDetection:           turnDetection{Type: "server_vad"},
			InputAudioFormat:        "g711_ulaw",
			OutputAudioFormat:       "g711_ulaw",
			Voice:                   cfg.Voice,
			Instructions:            cfg.Instructions,
			Modalities:              []string{"text", "audio"},
			Temperature:             0.8,
			InputAudioTranscription: inputTranscription{Model: "whisper-1"},
		},
	}

	c.logger.Printf("realtime: sending session update (voice=%s)", cfg.Voice)

	c.mu.Lock()
	defer c.mu.Unlock()
	return c.conn.WriteJSON(update)
}

// AppendAudio forwards one base64 audio payload from the telephony leg. The
// payload is opaque; no transcoding happens here.
func (c *Client) AppendAudio(payload string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	select {
	case <-c.done:
		return fmt.Errorf("client is closed")
	default:
	}

	return c.conn.WriteJSON(audioAppend{
		Type:  "input_audio_buffer.append",
		Audio: payload,
	})
}

// Events returns the channel of inbound server events. The channel is closed
// when the connection ends.
func (c *Client) Events() <-chan ServerEvent {
	return c.events
}

// Errors returns the channel of connection errors.
func (c *Client) Errors() <-chan error {
	return c.errors
}

// Close closes the realtime connection. Safe to call more than once.
func (c *Client) Close() error {
	var err error
	c.closeOnce.Do(func() {
		close(c.done)

		c.mu.Lock()
		_ = c.conn.WriteMessage(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
		c.mu.Unlock()

		err = c.conn.Close()

		c.wg.Wait()
		close(c.events)
		close(c.errors)
	})
	return err
}

// readLoop reads server events and delivers them in order on the events
// channel. Malformed frames are logged and skipped; they never terminate
// the leg.
func (c *Client) readLoop() {
	defer c.wg.Done()

	for {
		select {
		case <-c.done:
			return
		default:
		}

		_, msg, err := c.conn.ReadMessage()
		if err != nil {
			select {
			case <-c.done:
				return
			case c.errors <- fmt.Errorf("read error: %w", err):
			default:
			}
			return
		}

		var ev ServerEvent
		if err := json.Unmarshal(msg, &ev); err != nil {
			c.logger.Printf("realtime: failed to parse server event: %v", err)
			continue
		}

		if ev.Type == "" {
			c.logger.Printf("realtime: server event missing type, dropping")
			continue
		}

		select {
		case <-c.done:
			return
		case c.events <- ev:
		}
	}
}
