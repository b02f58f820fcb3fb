package observability

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Session metrics
	activeSessions = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "caption_gateway_active_sessions",
		Help: "Number of active streaming sessions",
	})

	totalSessions = promauto.NewCounter(prometheus.CounterOpts{
		Name: "caption_gateway_sessions_total",
		Help: "Total number of streaming sessions started",
	})

	sessionDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "caption_gateway_session_duration_seconds",
		Help:    "Duration of streaming sessions in seconds",
		Buckets: []float64{1, 5, 10, 30, 60, 120, 300, 600, 1800},
	})

	sessionEnds = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "caption_gateway_session_ends_total",
		Help: "Session teardowns by trigger",
	}, []string{"reason"}) // reason: stop, disconnect, upstream_error

	// Recognition metrics
	transcriptsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "caption_gateway_transcripts_total",
		Help: "Final transcripts emitted",
	}, []string{"engine"})

	interimDropped = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "caption_gateway_interim_results_dropped_total",
		Help: "Interim recognition results discarded",
	}, []string{"engine"})

	// Derivative pipeline metrics
	derivativeLatency = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "caption_gateway_derivative_latency_seconds",
		Help:    "Latency of each derivative stage in seconds",
		Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1.0, 2.0, 5.0, 10.0},
	}, []string{"stage"})

	derivativeFallbacks = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "caption_gateway_derivative_fallbacks_total",
		Help: "Derivative stages that passed text through after a failure",
	}, []string{"stage"})

	// Audio metrics
	audioBytesProcessed = promauto.NewCounter(prometheus.CounterOpts{
		Name: "caption_gateway_audio_bytes_total",
		Help: "Total audio bytes accepted into session queues",
	})

	audioSeconds = promauto.NewCounter(prometheus.CounterOpts{
		Name: "caption_gateway_audio_seconds_total",
		Help: "Seconds of audio accepted into session queues",
	})

	silentChunks = promauto.NewCounter(prometheus.CounterOpts{
		Name: "caption_gateway_audio_silent_chunks_total",
		Help: "Accepted audio chunks whose energy is below the silence threshold",
	})

	audioChunksDropped = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "caption_gateway_audio_chunks_dropped_total",
		Help: "Audio chunks dropped before recognition",
	}, []string{"reason"}) // reason: decode, oversized, undersized, malformed, unknown_session, overflow

	// Error metrics
	errorsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "caption_gateway_errors_total",
		Help: "Total number of errors",
	}, []string{"type", "component"})

	// Circuit breaker metrics
	circuitBreakerState = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "caption_gateway_circuit_breaker_state",
		Help: "Circuit breaker state (0=closed, 1=open, 2=half-open)",
	}, []string{"service"})

	circuitBreakerFailures = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "caption_gateway_circuit_breaker_failures_total",
		Help: "Total circuit breaker failures",
	}, []string{"service"})
)

// SessionMetrics tracks metrics for a single streaming session
type SessionMetrics struct {
	sessionID string
	startTime time.Time
	ended     bool
	mu        sync.Mutex
}

// NewSessionMetrics creates a metrics tracker and records the session start
func NewSessionMetrics(sessionID string) *SessionMetrics {
	activeSessions.Inc()
	totalSessions.Inc()
	return &SessionMetrics{
		sessionID: sessionID,
		startTime: time.Now(),
	}
}

// RecordEnd records the end of the session; later calls are ignored
func (m *SessionMetrics) RecordEnd(reason string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.ended {
		return
	}
	m.ended = true
	activeSessions.Dec()
	sessionDuration.Observe(time.Since(m.startTime).Seconds())
	sessionEnds.WithLabelValues(reason).Inc()
}

// RecordTranscript counts a final transcript
func RecordTranscript(engine string) {
	transcriptsTotal.WithLabelValues(engine).Inc()
}

// RecordInterimDropped counts a discarded interim result
func RecordInterimDropped(engine string) {
	interimDropped.WithLabelValues(engine).Inc()
}

// RecordDerivative records a derivative stage's latency and whether it fell back
func RecordDerivative(stage string, elapsed time.Duration, fellBack bool) {
	derivativeLatency.WithLabelValues(stage).Observe(elapsed.Seconds())
	if fellBack {
		derivativeFallbacks.WithLabelValues(stage).Inc()
	}
}

// RecordAudioBytes records audio bytes accepted for recognition
func RecordAudioBytes(bytes int) {
	audioBytesProcessed.Add(float64(bytes))
}

// RecordAudioDuration records how much audio was accepted
func RecordAudioDuration(d time.Duration) {
	audioSeconds.Add(d.Seconds())
}

// RecordSilentChunk counts an accepted chunk that carried only silence
func RecordSilentChunk() {
	silentChunks.Inc()
}

// RecordChunkDropped counts a dropped audio chunk
func RecordChunkDropped(reason string) {
	audioChunksDropped.WithLabelValues(reason).Inc()
}

// RecordError records an error
func RecordError(errorType, component string) {
	errorsTotal.WithLabelValues(errorType, component).Inc()
}

// UpdateCircuitBreakerState updates circuit breaker state metric
func UpdateCircuitBreakerState(service string, state int) {
	circuitBreakerState.WithLabelValues(service).Set(float64(state))
}

// IncrementCircuitBreakerFailures increments circuit breaker failure counter
func IncrementCircuitBreakerFailures(service string) {
	circuitBreakerFailures.WithLabelValues(service).Inc()
}
