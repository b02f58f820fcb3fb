// Package recognition adapts a streaming speech-recognition engine to a
// session's audio queue and turns final hypotheses into transcript events.
package recognition

import (
	"context"
	"fmt"
	"strings"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/lexiqai/caption-gateway/internal/audio"
	"github.com/lexiqai/caption-gateway/internal/events"
	"github.com/lexiqai/caption-gateway/internal/observability"
)

// Job is one session's streaming work
type Job struct {
	SessionID string
	Config    Config
	Queue     *audio.Queue

	// Done is the session's cancellation signal. Once closed, no further
	// chunks are forwarded and the upstream is asked to finish.
	Done <-chan struct{}

	// OnOpen is called once the upstream stream is established
	OnOpen func()

	// Sink receives each final transcript in upstream order. It must not block.
	Sink func(events.TranscriptEvent)
}

// Bridge pumps audio from a queue into an engine stream and reads results back
type Bridge struct {
	engine     Engine
	popTimeout time.Duration
	now        func() time.Time
}

// NewBridge creates a bridge. popTimeout bounds how long the forwarder waits
// for audio before re-checking cancellation.
func NewBridge(engine Engine, popTimeout time.Duration) *Bridge {
	if popTimeout <= 0 {
		popTimeout = 500 * time.Millisecond
	}
	return &Bridge{
		engine:     engine,
		popTimeout: popTimeout,
		now:        time.Now,
	}
}

// Engine returns the engine this bridge streams to
func (b *Bridge) Engine() Engine {
	return b.engine
}

// Run streams the job's audio until the queue ends, the job is cancelled, or
// the upstream fails. A nil return means the session ended on request.
func (b *Bridge) Run(ctx context.Context, job Job) error {
	logger := observability.ForComponent("recognition").With().
		Str("session_id", job.SessionID).
		Str("engine", b.engine.Name()).
		Logger()

	stream, err := b.engine.Open(ctx, job.Config)
	if err != nil {
		return fmt.Errorf("failed to open %s stream: %w", b.engine.Name(), err)
	}
	if job.OnOpen != nil {
		job.OnOpen()
	}
	logger.Info().
		Str("language", job.Config.Language).
		Int("sample_rate", job.Config.SampleRate).
		Msg("Recognition stream opened")

	var inputEnded atomic.Bool
	halt := make(chan struct{})
	sendErr := make(chan error, 1)
	forwarderDone := make(chan struct{})
	go func() {
		defer close(forwarderDone)
		b.forward(ctx, job, stream, halt, sendErr, &inputEnded, logger)
	}()
	defer func() {
		close(halt)
		<-forwarderDone
	}()

	results := stream.Results()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case err := <-sendErr:
			if cancelled(job.Done) {
				return nil
			}
			return fmt.Errorf("failed to send audio to %s: %w", b.engine.Name(), err)

		case res, ok := <-results:
			if !ok {
				if err := stream.Err(); err != nil {
					return fmt.Errorf("%s stream failed: %w", b.engine.Name(), err)
				}
				if cancelled(job.Done) || inputEnded.Load() {
					return nil
				}
				if ctx.Err() != nil {
					return ctx.Err()
				}
				return ErrStreamEnded
			}
			b.handleResult(job, res, logger)
		}
	}
}

func (b *Bridge) handleResult(job Job, res Result, logger zerolog.Logger) {
	if !res.IsFinal {
		observability.RecordInterimDropped(b.engine.Name())
		return
	}
	text := strings.TrimSpace(res.Transcript)
	if text == "" {
		return
	}

	ev := events.TranscriptEvent{
		ID:         uuid.NewString(),
		SessionID:  job.SessionID,
		Original:   text,
		Confidence: clampConfidence(res.Confidence),
		Timestamp:  b.now(),
	}
	observability.RecordTranscript(b.engine.Name())
	logger.Debug().Str("transcript_id", ev.ID).Float64("confidence", ev.Confidence).Msg("Final transcript")
	job.Sink(ev)
}

// forward pops audio and sends it upstream. It always calls CloseSend on exit.
// ended is set before CloseSend when the queue was drained to its end.
func (b *Bridge) forward(ctx context.Context, job Job, stream Stream, halt <-chan struct{}, sendErr chan<- error, ended *atomic.Bool, logger zerolog.Logger) {
	defer func() {
		if err := stream.CloseSend(); err != nil {
			logger.Debug().Err(err).Msg("CloseSend failed")
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return
		case <-halt:
			return
		case <-job.Done:
			return
		default:
		}

		chunk, res := job.Queue.Pop(b.popTimeout)
		switch res {
		case audio.PopTimeout:
			continue
		case audio.PopEnd:
			ended.Store(true)
			return
		}

		// Cancellation wins over audio still sitting in the queue
		if cancelled(job.Done) {
			return
		}
		if err := stream.Send(chunk); err != nil {
			sendErr <- err
			return
		}
	}
}

func cancelled(done <-chan struct{}) bool {
	if done == nil {
		return false
	}
	select {
	case <-done:
		return true
	default:
		return false
	}
}

func clampConfidence(c float64) float64 {
	if c < 0 {
		return 0
	}
	if c > 1 {
		return 1
	}
	return c
}
