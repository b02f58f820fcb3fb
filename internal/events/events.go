// Package events defines the records that flow from recognition through the
// derivative pipeline to the client.
package events

import "time"

// Stage names a derivative of a transcript
type Stage string

const (
	StageTranslated Stage = "translated"
	StageSimplified Stage = "simplified"
)

// TranscriptEvent is produced once per final recognition result
type TranscriptEvent struct {
	ID         string
	SessionID  string
	Original   string
	Confidence float64
	Timestamp  time.Time
}

// DerivativeEvent carries one stage computed from a transcript. ID matches
// the TranscriptEvent it was derived from.
type DerivativeEvent struct {
	ID        string
	SessionID string
	Stage     Stage
	Text      string
}
