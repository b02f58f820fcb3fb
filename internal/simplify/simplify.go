// Package simplify rewrites caption text into short, plain sentences for
// deaf and hard-of-hearing readers.
package simplify

import (
	"context"
	"errors"
	"strings"
)

// ErrEmptyResult is returned when the engine produced no text
var ErrEmptyResult = errors.New("simplifier returned no text")

// Level controls how aggressively sentences are shortened
type Level string

const (
	LevelLow    Level = "low"    // strip fillers only
	LevelMedium Level = "medium" // split sentences over 15 words
	LevelHigh   Level = "high"   // split sentences over 10 words
)

// ParseLevel maps a client-supplied level, defaulting to medium
func ParseLevel(s string) Level {
	switch Level(strings.ToLower(strings.TrimSpace(s))) {
	case LevelLow:
		return LevelLow
	case LevelHigh:
		return LevelHigh
	default:
		return LevelMedium
	}
}

// Options carries per-call hints
type Options struct {
	// LanguageHint is the display name of the text's language, e.g. "Hindi"
	LanguageHint string
	Level        Level
}

// Simplifier rewrites text; implementations must not change its meaning
type Simplifier interface {
	Simplify(ctx context.Context, text string, opts Options) (string, error)
	Name() string
}
