package realtime

// EventType is the kind of a server event on the realtime stream. The API
// emits many event kinds; only a handful require action and the rest are
// ignored, with a small allow-list logged for debugging.
type EventType string

const (
	EventSessionCreated                EventType = "session.created"
	EventSessionUpdated                EventType = "session.updated"
	EventInputTranscriptionCompleted   EventType = "conversation.item.input_audio_transcription.completed"
	EventResponseDone                  EventType = "response.done"
	EventResponseAudioDelta            EventType = "response.audio.delta"
	EventResponseContentDone           EventType = "response.content.done"
	EventResponseTextDone              EventType = "response.text.done"
	EventRateLimitsUpdated             EventType = "rate_limits.updated"
	EventInputAudioBufferCommitted     EventType = "input_audio_buffer.committed"
	EventInputAudioBufferSpeechStarted EventType = "input_audio_buffer.speech_started"
	EventInputAudioBufferSpeechStopped EventType = "input_audio_buffer.speech_stopped"
	EventError                         EventType = "error"
)

// verboseEvents are event kinds worth logging even though they carry no
// action for the bridge.
var verboseEvents = map[EventType]bool{
	EventResponseContentDone:           true,
	EventRateLimitsUpdated:             true,
	EventResponseDone:                  true,
	EventInputAudioBufferCommitted:     true,
	EventInputAudioBufferSpeechStopped: true,
	EventInputAudioBufferSpeechStarted: true,
	EventSessionCreated:                true,
	EventResponseTextDone:              true,
	EventInputTranscriptionCompleted:   true,
}

// Verbose reports whether an event of this kind should be logged when it
// requires no other handling.
func (t EventType) Verbose() bool {
	return verboseEvents[t]
}

// ServerEvent is one typed event received from the realtime endpoint.
// Fields are populated according to Type; unused fields stay zero.
type ServerEvent struct {
	Type EventType `json:"type"`

	// Transcript of the caller's utterance, for
	// conversation.item.input_audio_transcription.completed.
	Transcript string `json:"transcript,omitempty"`

	// Delta is a base64 audio chunk, for response.audio.delta.
	Delta string `json:"delta,omitempty"`

	// Response carries the structured output, for response.done.
	Response *Response `json:"response,omitempty"`
}

// Response is the structured output attached to a response.done event.
type Response struct {
	Output []OutputItem `json:"output"`
}

// OutputItem is one item of a response's output.
type OutputItem struct {
	Content []ContentPart `json:"content"`
}

// ContentPart is one content fragment of an output item.
type ContentPart struct {
	Type       string `json:"type"`
	Transcript string `json:"transcript,omitempty"`
}

// FirstTranscript returns the first non-empty textual transcript fragment of
// the response output, if any.
func (r *Response) FirstTranscript() (string, bool) {
	if r == nil {
		return "", false
	}
	for _, item := range r.Output {
		for _, part := range item.Content {
			if part.Transcript != "" {
				return part.Transcript, true
			}
		}
	}
	return "", false
}
