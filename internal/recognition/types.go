package recognition

import (
	"context"
	"errors"
)

// ErrStreamEnded is returned when the upstream closes the result stream
// before the session asked it to
var ErrStreamEnded = errors.New("recognition stream ended unexpectedly")

// Config describes the audio and recognition options for one session.
// It is built once at session start and reused for the life of the stream.
type Config struct {
	SampleRate     int
	Language       string
	Punctuate      bool
	InterimResults bool
	Encoding       string
	Channels       int
	Model          string
}

// NewConfig returns the configuration for 16-bit mono linear PCM
func NewConfig(language string, sampleRate int, interimResults bool, model string) Config {
	return Config{
		SampleRate:     sampleRate,
		Language:       language,
		Punctuate:      true,
		InterimResults: interimResults,
		Encoding:       "linear16",
		Channels:       1,
		Model:          model,
	}
}

// Result is one recognition hypothesis from the upstream engine
type Result struct {
	Transcript string
	IsFinal    bool
	Confidence float64
}

// Stream is an open bidirectional recognition stream
type Stream interface {
	// Send forwards one audio chunk upstream
	Send(chunk []byte) error

	// CloseSend signals that no more audio will be sent. Results already
	// in flight are still delivered.
	CloseSend() error

	// Results is closed when the upstream stream is finished
	Results() <-chan Result

	// Err reports why the stream finished; nil means a clean close.
	// Only meaningful after Results is closed.
	Err() error
}

// Engine opens recognition streams
type Engine interface {
	Name() string
	Open(ctx context.Context, cfg Config) (Stream, error)
}
