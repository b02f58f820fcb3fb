package recognition

import (
	"context"
	"testing"
	"time"

	"github.com/lexiqai/caption-gateway/internal/resilience"
)

func TestCloseGraceFor(t *testing.T) {
	tests := []struct {
		name        string
		stopTimeout time.Duration
		want        time.Duration
	}{
		{"unset", 0, DefaultCloseGrace},
		{"default stop timeout", 2 * time.Second, DefaultCloseGrace},
		{"short stop timeout", time.Second, 750 * time.Millisecond},
		{"long stop timeout", 10 * time.Second, DefaultCloseGrace},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := CloseGraceFor(tt.stopTimeout)
			if got != tt.want {
				t.Errorf("CloseGraceFor(%v) = %v, want %v", tt.stopTimeout, got, tt.want)
			}
			if tt.stopTimeout > 0 && got >= tt.stopTimeout {
				t.Errorf("Expected grace %v below stop timeout %v", got, tt.stopTimeout)
			}
		})
	}
}

func TestNewDeepgramEngine_DefaultsCloseGrace(t *testing.T) {
	e := NewDeepgramEngine("key", resilience.NewCircuitBreaker("deepgram", 5, time.Minute), 0)
	if e.closeGrace != DefaultCloseGrace {
		t.Errorf("Expected default close grace, got %v", e.closeGrace)
	}
	if e.Name() != "deepgram" {
		t.Errorf("Expected deepgram, got %s", e.Name())
	}
}

func TestDeepgramStream_FinishClosesResults(t *testing.T) {
	s := &deepgramStream{ctx: context.Background(), results: make(chan Result, 1)}
	s.deliver(Result{Transcript: "hello", IsFinal: true})
	s.finish(nil)
	s.finish(context.Canceled)
	s.deliver(Result{Transcript: "late"})

	var got []Result
	for r := range s.Results() {
		got = append(got, r)
	}
	if len(got) != 1 || got[0].Transcript != "hello" {
		t.Errorf("Expected only the first result, got %+v", got)
	}
	if s.Err() != nil {
		t.Errorf("Expected first finish to win, got %v", s.Err())
	}
}
