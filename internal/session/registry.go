package session

import (
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/lexiqai/caption-gateway/internal/observability"
)

// ErrSessionExists is returned when registering an id that is already live
var ErrSessionExists = errors.New("session already exists")

// Final is an event written as the last emission of a torn-down session
type Final struct {
	Event   string
	Payload any
}

// Registry maps session ids to live sessions; a single mutex guards the map
type Registry struct {
	mu       sync.Mutex
	sessions map[string]*Session

	stopTimeout time.Duration
	taskTimeout time.Duration
	logger      zerolog.Logger
}

// NewRegistry creates a registry. stopTimeout bounds the wait for a worker to
// exit; taskTimeout bounds the wait for derivative tasks after cancellation.
func NewRegistry(stopTimeout, taskTimeout time.Duration) *Registry {
	return &Registry{
		sessions:    make(map[string]*Session),
		stopTimeout: stopTimeout,
		taskTimeout: taskTimeout,
		logger:      observability.ForComponent("registry"),
	}
}

// Register adds s under its id
func (r *Registry) Register(s *Session) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.sessions[s.ID]; exists {
		return ErrSessionExists
	}
	r.sessions[s.ID] = s
	s.Metrics = observability.NewSessionMetrics(s.ID)
	return nil
}

// Get returns the live session for id
func (r *Registry) Get(id string) (*Session, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.sessions[id]
	return s, ok
}

// SnapshotOwnedBy returns the ids of sessions owned by connID at this instant
func (r *Registry) SnapshotOwnedBy(connID string) []string {
	r.mu.Lock()
	defer r.mu.Unlock()

	var ids []string
	for id, s := range r.sessions {
		if s.ConnID == connID {
			ids = append(ids, id)
		}
	}
	sort.Strings(ids)
	return ids
}

// Snapshot returns the ids of all live sessions
func (r *Registry) Snapshot() []string {
	r.mu.Lock()
	defer r.mu.Unlock()

	ids := make([]string, 0, len(r.sessions))
	for id := range r.sessions {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Len returns the number of live sessions
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.sessions)
}

// Stop tears down the session with the given id. It returns false when the id
// is absent or another caller already claimed the teardown.
func (r *Registry) Stop(id, reason string, final *Final) bool {
	s, ok := r.Get(id)
	if !ok {
		return false
	}
	return r.Teardown(s, reason, final)
}

// Teardown runs the stop sequence for s once: signal cancellation, end the
// queue, wait for the worker, write the final event and close the emission
// gate, cancel derivative work, then unregister.
func (r *Registry) Teardown(s *Session, reason string, final *Final) bool {
	if !s.beginStop() {
		return false
	}

	s.signalCancel()
	s.Queue.Close()
	if !s.waitWorker(r.stopTimeout) {
		s.logger.Warn().Dur("timeout", r.stopTimeout).Msg("Session worker did not exit in time")
	}

	if final != nil {
		s.emitAndClose(final.Event, final.Payload)
	} else {
		s.closeGate()
	}

	s.cancel()
	s.Tasks.Close()
	if !s.Tasks.Wait(r.taskTimeout) {
		s.logger.Warn().Msg("Derivative tasks still running after cancellation")
	}

	r.remove(s)
	s.state.Store(int32(StateAbsent))
	if s.Metrics != nil {
		s.Metrics.RecordEnd(reason)
	}
	if dropped := s.Queue.Dropped(); dropped > 0 {
		s.logger.Warn().Int("dropped_chunks", dropped).Msg("Audio chunks dropped on overflow")
	}
	s.logger.Info().Str("reason", reason).Dur("duration", time.Since(s.StartedAt)).Msg("Session torn down")
	return true
}

// remove deletes s only if it is still the registered session for its id
func (r *Registry) remove(s *Session) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if cur, ok := r.sessions[s.ID]; ok && cur == s {
		delete(r.sessions, s.ID)
	}
}
