package eventlog

import (
	"context"
	"encoding/json"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

// EventType represents the type of call event.
type EventType string

const (
	EventCallStarted         EventType = "call_started"
	EventStreamStarted       EventType = "stream_started"
	EventAIConnected         EventType = "ai_connected"
	EventAIReady             EventType = "ai_ready"
	EventAIClosed            EventType = "ai_closed"
	EventMediaDropped        EventType = "media_dropped"
	EventAudioDeltaDropped   EventType = "audio_delta_dropped"
	EventTranscriptLine      EventType = "transcript_line"
	EventCallEnded           EventType = "call_ended"
	EventExtractionCompleted EventType = "extraction_completed"
	EventExtractionFailed    EventType = "extraction_failed"
)

// Logger provides diagnostic event logging to the database. With a nil pool
// every call is a no-op; the event log is optional and never affects calls.
type Logger struct {
	db *pgxpool.Pool
}

// New creates a new event logger.
func New(db *pgxpool.Pool) *Logger {
	return &Logger{db: db}
}

// Log writes an event to the database synchronously.
func (l *Logger) Log(ctx context.Context, callID string, eventType EventType, data map[string]any) error {
	if l == nil || l.db == nil || callID == "" {
		return nil
	}

	dataJSON, err := json.Marshal(data)
	if err != nil {
		dataJSON = []byte("{}")
	}

	_, err = l.db.Exec(ctx, `
		INSERT INTO call_events (call_id, event_type, event_data)
		VALUES ($1, $2, $3)
	`, callID, string(eventType), dataJSON)

	return err
}

// LogAsync logs an event without blocking the caller.
func (l *Logger) LogAsync(callID string, eventType EventType, data map[string]any) {
	if l == nil || l.db == nil || callID == "" {
		return
	}

	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = l.Log(ctx, callID, eventType, data)
	}()
}
