package recognition

import (
	"context"
	"errors"
	"fmt"
	"sync"
)

// ErrSendClosed is returned by Send after CloseSend
var ErrSendClosed = errors.New("send side of stream is closed")

// StandInEngine produces a synthetic final transcript every N chunks.
// It lets the service run end to end without recognition credentials.
type StandInEngine struct {
	every int
}

// NewStandInEngine creates a stand-in that emits after every `every` chunks
func NewStandInEngine(every int) *StandInEngine {
	if every <= 0 {
		every = 5
	}
	return &StandInEngine{every: every}
}

// Name implements Engine
func (e *StandInEngine) Name() string {
	return "standin"
}

// Open implements Engine
func (e *StandInEngine) Open(ctx context.Context, cfg Config) (Stream, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s := &standInStream{
		ctx:     ctx,
		every:   e.every,
		results: make(chan Result, 16),
	}
	go func() {
		<-ctx.Done()
		s.mu.Lock()
		defer s.mu.Unlock()
		s.closeResults()
	}()
	return s, nil
}

type standInStream struct {
	ctx     context.Context
	every   int
	results chan Result

	mu         sync.Mutex
	chunks     int
	sendClosed bool
	finished   bool
}

// Send implements Stream
func (s *standInStream) Send(chunk []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.sendClosed || s.finished {
		return ErrSendClosed
	}
	s.chunks++
	if s.chunks%s.every != 0 {
		return nil
	}

	r := Result{
		Transcript: fmt.Sprintf("[Offline] Test transcript %d", s.chunks),
		IsFinal:    true,
		Confidence: 0.95,
	}
	select {
	case s.results <- r:
	case <-s.ctx.Done():
	}
	return nil
}

// CloseSend implements Stream. Everything already produced stays readable.
func (s *standInStream) CloseSend() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sendClosed = true
	s.closeResults()
	return nil
}

// closeResults must be called with mu held
func (s *standInStream) closeResults() {
	if s.finished {
		return
	}
	s.finished = true
	close(s.results)
}

// Results implements Stream
func (s *standInStream) Results() <-chan Result {
	return s.results
}

// Err implements Stream
func (s *standInStream) Err() error {
	return nil
}
