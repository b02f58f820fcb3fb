// Package captions ties sessions, recognition and the derivative pipeline
// together behind start, feed and stop operations.
package captions

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/lexiqai/caption-gateway/internal/audio"
	"github.com/lexiqai/caption-gateway/internal/config"
	"github.com/lexiqai/caption-gateway/internal/events"
	"github.com/lexiqai/caption-gateway/internal/observability"
	"github.com/lexiqai/caption-gateway/internal/pipeline"
	"github.com/lexiqai/caption-gateway/internal/recognition"
	"github.com/lexiqai/caption-gateway/internal/session"
	"github.com/lexiqai/caption-gateway/internal/simplify"
)

// Start defaults
const (
	DefaultSourceLanguage = "en-IN"
	DefaultTargetLanguage = "hi"
)

// Options tune session behavior
type Options struct {
	SampleRate     int
	Model          string
	InterimResults bool
	MinChunkBytes  int
	QueueMaxChunks int
	PopTimeout     time.Duration
	StopTimeout    time.Duration
	TaskTimeout    time.Duration
}

// OptionsFromConfig maps service configuration onto orchestrator options
func OptionsFromConfig(cfg *config.Config) Options {
	return Options{
		SampleRate:     cfg.AudioSampleRate,
		Model:          cfg.DeepgramModel,
		InterimResults: cfg.InterimResults,
		MinChunkBytes:  cfg.AudioMinChunkBytes,
		QueueMaxChunks: cfg.AudioQueueMaxChunks,
		PopTimeout:     cfg.PopTimeout(),
		StopTimeout:    cfg.StopTimeout(),
		TaskTimeout:    time.Second,
	}
}

// StartRequest is the client's start_stream payload
type StartRequest struct {
	SourceLanguage      string `json:"source_language"`
	TargetLanguage      string `json:"target_language"`
	Simplify            *bool  `json:"simplify"`
	SimplificationLevel string `json:"simplification_level"`
}

func (r StartRequest) withDefaults() StartRequest {
	if r.SourceLanguage == "" {
		r.SourceLanguage = DefaultSourceLanguage
	}
	if r.TargetLanguage == "" {
		r.TargetLanguage = DefaultTargetLanguage
	}
	if r.Simplify == nil {
		enabled := true
		r.Simplify = &enabled
	}
	r.SimplificationLevel = string(simplify.ParseLevel(r.SimplificationLevel))
	return r
}

// Orchestrator is the per-process facade used by the transport
type Orchestrator struct {
	registry *session.Registry
	bridge   *recognition.Bridge
	pipeline *pipeline.Pipeline
	opts     Options
	logger   zerolog.Logger
}

// New creates an orchestrator around a recognition engine and a pipeline
func New(engine recognition.Engine, p *pipeline.Pipeline, opts Options) *Orchestrator {
	if opts.SampleRate <= 0 {
		opts.SampleRate = 16000
	}
	if opts.StopTimeout <= 0 {
		opts.StopTimeout = 2 * time.Second
	}
	if opts.TaskTimeout <= 0 {
		opts.TaskTimeout = time.Second
	}
	return &Orchestrator{
		registry: session.NewRegistry(opts.StopTimeout, opts.TaskTimeout),
		bridge:   recognition.NewBridge(engine, opts.PopTimeout),
		pipeline: p,
		opts:     opts,
		logger:   observability.ForComponent("orchestrator"),
	}
}

// EngineName names the recognition engine in use
func (o *Orchestrator) EngineName() string {
	return o.bridge.Engine().Name()
}

// Start creates and registers a session owned by connID, confirms it to
// the client and launches its worker. The session is registered before
// Start returns, so an immediate feed or stop always finds it.
func (o *Orchestrator) Start(connID string, em session.Emitter, req StartRequest) (string, error) {
	req = req.withDefaults()
	id := session.NewID(connID)

	s := session.New(session.Params{
		ID:             id,
		ConnID:         connID,
		SourceLanguage: req.SourceLanguage,
		TargetLanguage: req.TargetLanguage,
		Simplify:       *req.Simplify,
		Level:          simplify.Level(req.SimplificationLevel),
		QueueMaxChunks: o.opts.QueueMaxChunks,
		Emitter:        em,
	})
	if err := o.registry.Register(s); err != nil {
		return "", fmt.Errorf("failed to register session %s: %w", id, err)
	}

	s.Emit(EventStreamStarted, StreamStarted{SessionID: id})
	s.Logger().Info().
		Str("source_language", s.SourceLanguage).
		Str("target_language", s.TargetLanguage).
		Bool("simplify", s.Simplify).
		Str("level", string(s.Level)).
		Msg("Session started")

	go o.runWorker(s)
	return id, nil
}

// Feed enqueues one audio chunk. Chunks for unknown or stopping sessions and
// chunks that are not valid PCM16 are dropped without error.
func (o *Orchestrator) Feed(sessionID string, chunk []byte) bool {
	s, ok := o.registry.Get(sessionID)
	if !ok || !s.Feedable() {
		observability.RecordChunkDropped("unknown_session")
		return false
	}
	if err := audio.ValidatePCM16(chunk, o.opts.MinChunkBytes); err != nil {
		observability.RecordChunkDropped(audio.DropReason(err))
		return false
	}

	before := s.Queue.Dropped()
	if !s.Queue.Push(chunk) {
		observability.RecordChunkDropped("unknown_session")
		return false
	}
	if s.Queue.Dropped() > before {
		observability.RecordChunkDropped("overflow")
	}
	observability.RecordAudioBytes(len(chunk))
	observability.RecordAudioDuration(audio.Duration(len(chunk), o.opts.SampleRate))
	if audio.IsSilent(chunk) {
		observability.RecordSilentChunk()
	}
	return true
}

// Stop tears the session down and confirms with stream_stopped. Only the
// call that actually performed the teardown returns true.
func (o *Orchestrator) Stop(sessionID string) bool {
	return o.registry.Stop(sessionID, session.ReasonStop, stoppedFinal(sessionID))
}

// Disconnect stops every session owned by connID and returns how many it stopped
func (o *Orchestrator) Disconnect(connID string) int {
	stopped := 0
	for _, id := range o.registry.SnapshotOwnedBy(connID) {
		if o.registry.Stop(id, session.ReasonDisconnect, stoppedFinal(id)) {
			stopped++
		}
	}
	if stopped > 0 {
		o.logger.Info().Str("conn_id", connID).Int("sessions", stopped).Msg("Connection closed, sessions stopped")
	}
	return stopped
}

// Shutdown stops all sessions concurrently
func (o *Orchestrator) Shutdown() {
	var wg sync.WaitGroup
	for _, id := range o.registry.Snapshot() {
		wg.Add(1)
		go func(id string) {
			defer wg.Done()
			o.registry.Stop(id, session.ReasonStop, stoppedFinal(id))
		}(id)
	}
	wg.Wait()
}

// ActiveSessions returns the number of live sessions
func (o *Orchestrator) ActiveSessions() int {
	return o.registry.Len()
}

// State reports a session's lifecycle state; unknown ids are absent
func (o *Orchestrator) State(sessionID string) session.State {
	s, ok := o.registry.Get(sessionID)
	if !ok {
		return session.StateAbsent
	}
	return s.State()
}

func stoppedFinal(id string) *session.Final {
	return &session.Final{Event: EventStreamStopped, Payload: StreamStopped{SessionID: id}}
}

// runWorker drives recognition for one session and handles upstream failure
func (o *Orchestrator) runWorker(s *session.Session) {
	cfg := recognition.NewConfig(s.SourceLanguage, o.opts.SampleRate, o.opts.InterimResults, o.opts.Model)

	err := o.bridge.Run(s.Context(), recognition.Job{
		SessionID: s.ID,
		Config:    cfg,
		Queue:     s.Queue,
		Done:      s.Done(),
		OnOpen:    func() { s.MarkActive() },
		Sink:      func(ev events.TranscriptEvent) { o.onTranscript(s, ev) },
	})
	s.WorkerExited()

	if s.Stopping() {
		return
	}
	if err == nil {
		o.registry.Teardown(s, session.ReasonStop, nil)
		return
	}

	observability.RecordError("upstream", "recognition")
	s.Logger().Error().Err(err).Msg("Recognition failed, ending session")
	o.registry.Teardown(s, session.ReasonUpstreamError, &session.Final{
		Event: EventError,
		Payload: ErrorPayload{
			Message:   fmt.Sprintf("recognition failed: %v", err),
			SessionID: s.ID,
		},
	})
}

// onTranscript runs on the recognition goroutine and must not block on derivative work
func (o *Orchestrator) onTranscript(s *session.Session, ev events.TranscriptEvent) {
	ok := s.Emit(EventCaptionResult, CaptionResult{
		ID:         ev.ID,
		Original:   ev.Original,
		Confidence: ev.Confidence,
		Timestamp:  float64(ev.Timestamp.UnixNano()) / float64(time.Second),
	})
	if !ok {
		return
	}

	req := pipeline.Request{
		TranscriptID:   ev.ID,
		SessionID:      s.ID,
		Text:           ev.Original,
		SourceLanguage: s.SourceLanguage,
		TargetLanguage: s.TargetLanguage,
		Simplify:       s.Simplify,
		Level:          s.Level,
	}
	s.Tasks.Go(func(ctx context.Context) {
		o.pipeline.Run(ctx, req, func(d events.DerivativeEvent) {
			emitDerivative(s, d)
		})
	})
}

func emitDerivative(s *session.Session, d events.DerivativeEvent) {
	switch d.Stage {
	case events.StageTranslated:
		s.Emit(EventCaptionUpdate, TranslatedUpdate{ID: d.ID, Translated: d.Text})
	case events.StageSimplified:
		s.Emit(EventCaptionUpdate, SimplifiedUpdate{ID: d.ID, Simplified: d.Text})
	}
}
