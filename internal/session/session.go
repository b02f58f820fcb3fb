// Package session owns per-session state and the registry that maps session
// ids to live sessions.
package session

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"github.com/lexiqai/caption-gateway/internal/audio"
	"github.com/lexiqai/caption-gateway/internal/observability"
	"github.com/lexiqai/caption-gateway/internal/simplify"
)

// State is a session's lifecycle position
type State int32

const (
	StateAbsent State = iota
	StateStarting
	StateActive
	StateStopping
)

func (s State) String() string {
	switch s {
	case StateAbsent:
		return "absent"
	case StateStarting:
		return "starting"
	case StateActive:
		return "active"
	case StateStopping:
		return "stopping"
	}
	return "unknown"
}

// Teardown reasons, used as the session_ends_total label
const (
	ReasonStop          = "stop"
	ReasonDisconnect    = "disconnect"
	ReasonUpstreamError = "upstream_error"
)

// Emitter delivers one outbound event to the owning connection
type Emitter interface {
	Emit(event string, payload any) error
}

var idSeq atomic.Uint64

// NewID derives a process-unique session id from the connection id
func NewID(connID string) string {
	return fmt.Sprintf("%s_%d_%d", connID, time.Now().UnixMilli(), idSeq.Add(1))
}

// Params are the immutable attributes of a new session
type Params struct {
	ID             string
	ConnID         string
	SourceLanguage string
	TargetLanguage string
	Simplify       bool
	Level          simplify.Level
	QueueMaxChunks int
	Emitter        Emitter
}

// Session is one streaming caption session. Its attributes are read-only
// after creation; state, the cancellation signal, queue pushes and
// emissions are safe for concurrent use.
type Session struct {
	ID             string
	ConnID         string
	SourceLanguage string
	TargetLanguage string
	Simplify       bool
	Level          simplify.Level
	StartedAt      time.Time

	Queue   *audio.Queue
	Tasks   *TaskSet
	Metrics *observability.SessionMetrics

	state      atomic.Int32
	done       chan struct{}
	doneOnce   sync.Once
	workerDone chan struct{}
	workerOnce sync.Once
	ctx        context.Context
	cancel     context.CancelFunc

	emitter    Emitter
	gateMu     sync.Mutex
	gateClosed bool

	logger zerolog.Logger
}

// New allocates a session in the starting state
func New(p Params) *Session {
	ctx, cancel := context.WithCancel(context.Background())
	s := &Session{
		ID:             p.ID,
		ConnID:         p.ConnID,
		SourceLanguage: p.SourceLanguage,
		TargetLanguage: p.TargetLanguage,
		Simplify:       p.Simplify,
		Level:          p.Level,
		StartedAt:      time.Now(),
		Queue:          audio.NewQueue(p.QueueMaxChunks),
		Tasks:          NewTaskSet(ctx),
		done:           make(chan struct{}),
		workerDone:     make(chan struct{}),
		ctx:            ctx,
		cancel:         cancel,
		emitter:        p.Emitter,
		logger:         observability.ForSession(p.ID, p.ConnID),
	}
	s.state.Store(int32(StateStarting))
	return s
}

// Context is cancelled when the session is torn down
func (s *Session) Context() context.Context {
	return s.ctx
}

// Logger returns the session-scoped logger
func (s *Session) Logger() *zerolog.Logger {
	return &s.logger
}

// Done is closed when the session is asked to stop
func (s *Session) Done() <-chan struct{} {
	return s.done
}

// State returns the current lifecycle state
func (s *Session) State() State {
	return State(s.state.Load())
}

// MarkActive moves starting to active once the upstream stream is open
func (s *Session) MarkActive() bool {
	return s.state.CompareAndSwap(int32(StateStarting), int32(StateActive))
}

// beginStop claims the teardown; only the first caller gets true
func (s *Session) beginStop() bool {
	for {
		cur := s.state.Load()
		if State(cur) != StateStarting && State(cur) != StateActive {
			return false
		}
		if s.state.CompareAndSwap(cur, int32(StateStopping)) {
			return true
		}
	}
}

// Feedable reports whether audio may still be pushed
func (s *Session) Feedable() bool {
	st := s.State()
	return st == StateStarting || st == StateActive
}

// Stopping reports whether teardown has been claimed
func (s *Session) Stopping() bool {
	st := s.State()
	return st == StateStopping || st == StateAbsent
}

func (s *Session) signalCancel() {
	s.doneOnce.Do(func() { close(s.done) })
}

// WorkerExited must be called by the worker goroutine when it returns
func (s *Session) WorkerExited() {
	s.workerOnce.Do(func() { close(s.workerDone) })
}

func (s *Session) waitWorker(timeout time.Duration) bool {
	timer := time.NewTimer(timeout)
	defer timer.Stop()
	select {
	case <-s.workerDone:
		return true
	case <-timer.C:
		return false
	}
}

// Emit writes an event unless the session's emission gate is closed.
// It reports whether the event was written.
func (s *Session) Emit(event string, payload any) bool {
	s.gateMu.Lock()
	defer s.gateMu.Unlock()
	return s.emitLocked(event, payload)
}

// emitAndClose writes a last event and closes the gate atomically, so the
// event is guaranteed to be the final one for this session
func (s *Session) emitAndClose(event string, payload any) bool {
	s.gateMu.Lock()
	defer s.gateMu.Unlock()
	ok := s.emitLocked(event, payload)
	s.gateClosed = true
	return ok
}

func (s *Session) emitLocked(event string, payload any) bool {
	if s.gateClosed || s.emitter == nil {
		return false
	}
	if err := s.emitter.Emit(event, payload); err != nil {
		s.logger.Debug().Err(err).Str("event", event).Msg("Emit failed")
		return false
	}
	return true
}

func (s *Session) closeGate() {
	s.gateMu.Lock()
	s.gateClosed = true
	s.gateMu.Unlock()
}
