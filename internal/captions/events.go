package captions

// Outbound event names
const (
	EventConnected     = "connected"
	EventStreamStarted = "stream_started"
	EventStreamStopped = "stream_stopped"
	EventCaptionResult = "caption_result"
	EventCaptionUpdate = "caption_update"
	EventError         = "error"
)

// Connected greets a new connection
type Connected struct {
	Message string `json:"message"`
	Mode    string `json:"mode"`
}

// StreamStarted confirms a new session
type StreamStarted struct {
	SessionID string `json:"session_id"`
}

// StreamStopped confirms a session was torn down
type StreamStopped struct {
	SessionID string `json:"session_id"`
}

// CaptionResult carries one final transcript. Timestamp is Unix seconds.
type CaptionResult struct {
	ID         string  `json:"id"`
	Original   string  `json:"original"`
	Confidence float64 `json:"confidence"`
	Timestamp  float64 `json:"timestamp"`
}

// TranslatedUpdate carries the translated derivative of a caption
type TranslatedUpdate struct {
	ID         string `json:"id"`
	Translated string `json:"translated"`
}

// SimplifiedUpdate carries the simplified derivative of a caption
type SimplifiedUpdate struct {
	ID         string `json:"id"`
	Simplified string `json:"simplified"`
}

// ErrorPayload reports a failure, scoped to a session when SessionID is set
type ErrorPayload struct {
	Message   string `json:"message"`
	SessionID string `json:"session_id,omitempty"`
}
