// Package transport exposes the caption orchestrator over a WebSocket
// endpoint carrying JSON event frames.
package transport

import (
	"encoding/base64"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/lexiqai/caption-gateway/internal/captions"
	"github.com/lexiqai/caption-gateway/internal/observability"
)

const (
	writeWait = 10 * time.Second

	// DefaultMaxMessageBytes is the frame limit used when none is configured
	DefaultMaxMessageBytes = 4 << 20
)

// Inbound event names
const (
	EventStartStream = "start_stream"
	EventAudioChunk  = "audio_chunk"
	EventStopStream  = "stop_stream"
)

// ErrConnectionClosed is returned by Emit once the connection has gone away
var ErrConnectionClosed = errors.New("connection closed")

var upgrader = websocket.Upgrader{
	// Browser clients connect from arbitrary origins
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
}

// Frame is the envelope of every message in both directions
type Frame struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

type outbound struct {
	Event string `json:"event"`
	Data  any    `json:"data"`
}

type audioChunk struct {
	SessionID string `json:"session_id"`
	Audio     string `json:"audio"`
}

type stopStream struct {
	SessionID string `json:"session_id"`
}

// connection serializes writes to one client and implements session.Emitter
type connection struct {
	id   string
	conn *websocket.Conn

	mu     sync.Mutex
	closed bool
}

// Emit writes one event frame to the client
func (c *connection) Emit(event string, payload any) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return ErrConnectionClosed
	}
	c.conn.SetWriteDeadline(time.Now().Add(writeWait))
	return c.conn.WriteJSON(outbound{Event: event, Data: payload})
}

func (c *connection) markClosed() {
	c.mu.Lock()
	c.closed = true
	c.mu.Unlock()
}

// Handler upgrades requests and dispatches client events to the orchestrator
type Handler struct {
	orch            *captions.Orchestrator
	mode            string
	maxMessageBytes int64
	logger          zerolog.Logger
}

// NewHandler creates a WebSocket handler; mode is reported in the connected
// event. Frames larger than maxMessageBytes are discarded and the
// connection stays open.
func NewHandler(orch *captions.Orchestrator, mode string, maxMessageBytes int64) *Handler {
	if maxMessageBytes <= 0 {
		maxMessageBytes = DefaultMaxMessageBytes
	}
	return &Handler{
		orch:            orch,
		mode:            mode,
		maxMessageBytes: maxMessageBytes,
		logger:          observability.ForComponent("transport"),
	}
}

// ServeHTTP implements http.Handler
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade has already replied with an HTTP error
		h.logger.Warn().Err(err).Str("remote_addr", r.RemoteAddr).Msg("Failed to upgrade connection to WebSocket")
		return
	}

	c := &connection{id: uuid.NewString(), conn: conn}
	logger := h.logger.With().Str("conn_id", c.id).Logger()
	logger.Info().Str("remote_addr", r.RemoteAddr).Msg("Client connected")

	defer func() {
		c.markClosed()
		h.orch.Disconnect(c.id)
		conn.Close()
		logger.Info().Msg("Client disconnected")
	}()

	if err := c.Emit(captions.EventConnected, captions.Connected{
		Message: "Connected to caption server",
		Mode:    h.mode,
	}); err != nil {
		logger.Warn().Err(err).Msg("Failed to greet client")
		return
	}

	for {
		message, oversized, err := h.readFrame(conn)
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure, websocket.CloseNormalClosure) {
				logger.Warn().Err(err).Msg("WebSocket read error")
			}
			return
		}
		if oversized {
			observability.RecordChunkDropped("oversized")
			logger.Warn().Int64("limit_bytes", h.maxMessageBytes).Msg("Discarded oversized frame")
			continue
		}

		var frame Frame
		if err := json.Unmarshal(message, &frame); err != nil {
			logger.Warn().Err(err).Msg("Failed to parse client message")
			c.Emit(captions.EventError, captions.ErrorPayload{Message: "invalid message"})
			continue
		}
		h.dispatch(c, frame, logger)
	}
}

// readFrame reads the next message. A frame over the limit is drained and
// discarded rather than buffered, and reported as oversized.
func (h *Handler) readFrame(conn *websocket.Conn) ([]byte, bool, error) {
	_, r, err := conn.NextReader()
	if err != nil {
		return nil, false, err
	}
	message, err := io.ReadAll(io.LimitReader(r, h.maxMessageBytes+1))
	if err != nil {
		return nil, false, err
	}
	if int64(len(message)) <= h.maxMessageBytes {
		return message, false, nil
	}
	if _, err := io.Copy(io.Discard, r); err != nil {
		return nil, false, err
	}
	return nil, true, nil
}

func (h *Handler) dispatch(c *connection, frame Frame, logger zerolog.Logger) {
	switch frame.Event {
	case EventStartStream:
		var req captions.StartRequest
		if len(frame.Data) > 0 {
			if err := json.Unmarshal(frame.Data, &req); err != nil {
				c.Emit(captions.EventError, captions.ErrorPayload{Message: "invalid start_stream payload"})
				return
			}
		}
		if _, err := h.orch.Start(c.id, c, req); err != nil {
			logger.Error().Err(err).Msg("Failed to start session")
			c.Emit(captions.EventError, captions.ErrorPayload{Message: err.Error()})
		}

	case EventAudioChunk:
		var chunk audioChunk
		if err := json.Unmarshal(frame.Data, &chunk); err != nil {
			observability.RecordChunkDropped("decode")
			return
		}
		audio, err := base64.StdEncoding.DecodeString(chunk.Audio)
		if err != nil {
			observability.RecordChunkDropped("decode")
			return
		}
		h.orch.Feed(chunk.SessionID, audio)

	case EventStopStream:
		var stop stopStream
		if err := json.Unmarshal(frame.Data, &stop); err != nil {
			return
		}
		h.orch.Stop(stop.SessionID)

	default:
		logger.Debug().Str("event", frame.Event).Msg("Ignoring unknown event")
	}
}
