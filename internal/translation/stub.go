package translation

import (
	"context"
	"strings"
	"time"

	"github.com/lexiqai/caption-gateway/internal/languages"
)

// StubTranslatorConfig configures the stub translator behavior.
type StubTranslatorConfig struct {
	// ProcessingDelay simulates translation processing time.
	ProcessingDelay time.Duration
	// Dictionary maps normalized source text to translated text per target.
	// Misses return "[lang] " + original text.
	Dictionary map[string]map[string]string // [targetLang][sourceText]translatedText
}

// DefaultStubTranslatorConfig returns the offline phrasebook
func DefaultStubTranslatorConfig() *StubTranslatorConfig {
	return &StubTranslatorConfig{
		Dictionary: map[string]map[string]string{
			"hi": {
				"hello how are you": "नमस्ते, आप कैसे हैं?",
				"hello":             "नमस्ते",
				"thank you":         "धन्यवाद",
				"good morning":      "सुप्रभात",
				"how are you":       "आप कैसे हैं?",
				"welcome":           "स्वागत है",
			},
			"bn": {
				"hello how are you": "হ্যালো, আপনি কেমন আছেন?",
				"thank you":         "ধন্যবাদ",
			},
			"ta": {
				"hello how are you": "வணக்கம், எப்படி இருக்கிறீர்கள்?",
				"thank you":         "நன்றி",
			},
			"te": {
				"hello how are you": "హలో, మీరు ఎలా ఉన్నారు?",
				"thank you":         "ధన్యవాదాలు",
			},
			"mr": {
				"hello how are you": "नमस्कार, तुम्ही कसे आहात?",
				"thank you":         "धन्यवाद",
			},
		},
	}
}

// StubTranslator returns deterministic translations without network access
type StubTranslator struct {
	config *StubTranslatorConfig
}

// NewStubTranslator creates a new stub translator with the given config.
func NewStubTranslator(config *StubTranslatorConfig) *StubTranslator {
	if config == nil {
		config = DefaultStubTranslatorConfig()
	}
	return &StubTranslator{config: config}
}

// Name implements Translator
func (s *StubTranslator) Name() string {
	return "stub"
}

// Translate implements Translator
func (s *StubTranslator) Translate(ctx context.Context, text, sourceLang, targetLang string) (string, error) {
	if s.config.ProcessingDelay > 0 {
		select {
		case <-time.After(s.config.ProcessingDelay):
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}
	return s.lookupTranslation(text, languages.Base(targetLang)), nil
}

// lookupTranslation finds a translation in the dictionary or generates a default.
func (s *StubTranslator) lookupTranslation(text, targetLang string) string {
	if langDict, ok := s.config.Dictionary[targetLang]; ok {
		if translated, ok := langDict[normalize(text)]; ok {
			return translated
		}
	}
	return "[" + targetLang + "] " + text
}

func normalize(text string) string {
	text = strings.ToLower(strings.TrimSpace(text))
	text = strings.Map(func(r rune) rune {
		switch r {
		case '.', ',', '!', '?':
			return -1
		}
		return r
	}, text)
	return strings.Join(strings.Fields(text), " ")
}
