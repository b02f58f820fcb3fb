// Package translation converts caption text between languages.
package translation

import (
	"context"
	"errors"
)

// ErrEmptyResult is returned when the engine answers without a translation
var ErrEmptyResult = errors.New("translation engine returned no result")

// Translator converts text between languages. sourceLang and targetLang are
// BCP-47 tags or bare ISO 639-1 codes.
type Translator interface {
	Translate(ctx context.Context, text, sourceLang, targetLang string) (string, error)

	// Name labels the translator in logs and metrics
	Name() string
}
