package recognition

import (
	"context"
	"fmt"
	"sync"
	"time"

	websocketv1api "github.com/deepgram/deepgram-go-sdk/v3/pkg/api/listen/v1/websocket"
	msginterfaces "github.com/deepgram/deepgram-go-sdk/v3/pkg/api/listen/v1/websocket/interfaces"
	interfaces "github.com/deepgram/deepgram-go-sdk/v3/pkg/client/interfaces"
	listenClient "github.com/deepgram/deepgram-go-sdk/v3/pkg/client/listen"
	"github.com/rs/zerolog"

	"github.com/lexiqai/caption-gateway/internal/observability"
	"github.com/lexiqai/caption-gateway/internal/resilience"
)

// DefaultCloseGrace bounds how long a finished stream waits for Deepgram's
// close frame when no stop timeout is known
const DefaultCloseGrace = 1500 * time.Millisecond

// CloseGraceFor returns a close grace that ends before the stop timeout,
// leaving at least a quarter of it for the worker to exit
func CloseGraceFor(stopTimeout time.Duration) time.Duration {
	if stopTimeout <= 0 {
		return DefaultCloseGrace
	}
	grace := stopTimeout * 3 / 4
	if grace > DefaultCloseGrace {
		grace = DefaultCloseGrace
	}
	return grace
}

// callbackHandler implements the LiveMessageCallback interface
// It embeds the default handler and overrides only the methods we need to customize
type callbackHandler struct {
	*websocketv1api.DefaultCallbackHandler
	stream *deepgramStream
}

// Message forwards transcription results to the stream
func (h *callbackHandler) Message(msg *msginterfaces.MessageResponse) error {
	h.stream.handleMessage(msg)
	return nil
}

// Error ends the stream with the upstream error
func (h *callbackHandler) Error(er *msginterfaces.ErrorResponse) error {
	h.stream.finish(fmt.Errorf("deepgram %s: %s", er.Type, er.Description))
	return nil
}

// Close ends the stream when Deepgram closes the socket
func (h *callbackHandler) Close(cr *msginterfaces.CloseResponse) error {
	h.stream.logger.Debug().Str("type", cr.Type).Msg("Deepgram closed stream")
	h.stream.finish(nil)
	return nil
}

// DeepgramEngine opens live transcription streams against Deepgram
type DeepgramEngine struct {
	apiKey         string
	circuitBreaker *resilience.CircuitBreaker
	closeGrace     time.Duration
	logger         zerolog.Logger
}

// NewDeepgramEngine creates a Deepgram engine. Opening a stream goes
// through the circuit breaker so repeated connect failures fail fast.
// closeGrace caps the wait for pending finals after the input ends.
func NewDeepgramEngine(apiKey string, cb *resilience.CircuitBreaker, closeGrace time.Duration) *DeepgramEngine {
	if closeGrace <= 0 {
		closeGrace = DefaultCloseGrace
	}
	return &DeepgramEngine{
		apiKey:         apiKey,
		circuitBreaker: cb,
		closeGrace:     closeGrace,
		logger:         observability.ForComponent("deepgram"),
	}
}

// Name implements Engine
func (e *DeepgramEngine) Name() string {
	return "deepgram"
}

// Open implements Engine
func (e *DeepgramEngine) Open(ctx context.Context, cfg Config) (Stream, error) {
	var stream *deepgramStream
	err := e.circuitBreaker.Call(func() error {
		s, err := e.connect(ctx, cfg)
		if err != nil {
			return err
		}
		stream = s
		return nil
	})
	if err != nil {
		observability.RecordError("connect", "deepgram")
		return nil, err
	}
	return stream, nil
}

func (e *DeepgramEngine) connect(ctx context.Context, cfg Config) (*deepgramStream, error) {
	tOptions := &interfaces.LiveTranscriptionOptions{
		Model:          cfg.Model,
		Language:       cfg.Language,
		Punctuate:      cfg.Punctuate,
		InterimResults: cfg.InterimResults,
		SmartFormat:    true,
		Encoding:       cfg.Encoding,
		Channels:       cfg.Channels,
		SampleRate:     cfg.SampleRate,
	}
	cOptions := &interfaces.ClientOptions{
		EnableKeepAlive: true,
	}

	stream := &deepgramStream{
		ctx:     ctx,
		results:    make(chan Result, 64),
		closeGrace: e.closeGrace,
		logger:     e.logger,
	}
	callback := &callbackHandler{
		DefaultCallbackHandler: websocketv1api.NewDefaultCallbackHandler(),
		stream:                 stream,
	}

	client, err := listenClient.NewWSUsingCallback(ctx, e.apiKey, cOptions, tOptions, callback)
	if err != nil {
		return nil, fmt.Errorf("failed to create Deepgram client: %w", err)
	}
	if !client.Connect() {
		return nil, fmt.Errorf("failed to connect to Deepgram")
	}
	stream.client = client

	// The session context is always cancelled on teardown
	go func() {
		<-ctx.Done()
		stream.finish(nil)
	}()

	e.logger.Info().Str("model", cfg.Model).Str("language", cfg.Language).Msg("Deepgram stream connected")
	return stream, nil
}

// deepgramStream adapts the callback client to the Stream interface
type deepgramStream struct {
	ctx        context.Context
	client     *listenClient.WSCallback
	results    chan Result
	closeGrace time.Duration
	logger     zerolog.Logger
	closeOnce  sync.Once

	mu       sync.Mutex
	finished bool
	err      error
}

func (s *deepgramStream) handleMessage(msg *msginterfaces.MessageResponse) {
	if msg == nil || len(msg.Channel.Alternatives) == 0 {
		return
	}
	alt := msg.Channel.Alternatives[0]
	if alt.Transcript == "" {
		return
	}
	s.deliver(Result{
		Transcript: alt.Transcript,
		IsFinal:    msg.IsFinal,
		Confidence: alt.Confidence,
	})
}

func (s *deepgramStream) deliver(r Result) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.finished {
		return
	}
	select {
	case s.results <- r:
	case <-s.ctx.Done():
	}
}

func (s *deepgramStream) finish(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.finished {
		return
	}
	s.finished = true
	s.err = err
	close(s.results)
}

// Send implements Stream
func (s *deepgramStream) Send(chunk []byte) error {
	if _, err := s.client.Write(chunk); err != nil {
		return fmt.Errorf("failed to send audio to Deepgram: %w", err)
	}
	return nil
}

// CloseSend implements Stream. Deepgram flushes pending finals before closing.
func (s *deepgramStream) CloseSend() error {
	s.closeOnce.Do(func() {
		s.client.Finish()
		time.AfterFunc(s.closeGrace, func() { s.finish(nil) })
	})
	return nil
}

// Results implements Stream
func (s *deepgramStream) Results() <-chan Result {
	return s.results
}

// Err implements Stream
func (s *deepgramStream) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}
