package simplify

import (
	"context"
	"strings"
	"testing"

	"github.com/google/generative-ai-go/genai"
)

func TestParseLevel(t *testing.T) {
	tests := map[string]Level{
		"low":    LevelLow,
		"HIGH":   LevelHigh,
		"medium": LevelMedium,
		"":       LevelMedium,
		"bogus":  LevelMedium,
	}
	for in, want := range tests {
		if got := ParseLevel(in); got != want {
			t.Errorf("ParseLevel(%q) = %s, want %s", in, got, want)
		}
	}
}

func TestSimplifyText(t *testing.T) {
	long := "I went to the market early this morning and I bought some fresh vegetables because we were having guests over for dinner"

	tests := []struct {
		name  string
		text  string
		level Level
		want  string
	}{
		{
			name:  "empty",
			text:  "  ",
			level: LevelMedium,
			want:  "  ",
		},
		{
			name:  "low strips fillers only",
			text:  "Um, I basically think   it works",
			level: LevelLow,
			want:  ", I think it works",
		},
		{
			name:  "short sentence untouched",
			text:  "hello how are you",
			level: LevelMedium,
			want:  "hello how are you",
		},
		{
			name:  "medium splits long sentence at conjunctions",
			text:  long,
			level: LevelMedium,
			want:  "I went to the market early this morning. I bought some fresh vegetables. we were having guests over for dinner",
		},
		{
			name:  "sentences keep their punctuation",
			text:  "It is late. We should go home now!",
			level: LevelMedium,
			want:  "It is late. We should go home now!",
		},
		{
			name:  "high splits shorter sentences",
			text:  "The train was late so we waited at the station for an hour",
			level: LevelHigh,
			want:  "The train was late. we waited at the station for an hour",
		},
		{
			name:  "medium leaves the same sentence alone",
			text:  "The train was late so we waited at the station for an hour",
			level: LevelMedium,
			want:  "The train was late so we waited at the station for an hour",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := SimplifyText(tt.text, tt.level); got != tt.want {
				t.Errorf("SimplifyText() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestSimplifyText_LeavesNonLatinScriptIntact(t *testing.T) {
	text := "नमस्ते, आप कैसे हैं?"
	if got := SimplifyText(text, LevelMedium); got != text {
		t.Errorf("Expected Devanagari text unchanged, got %q", got)
	}
}

func TestRuleSimplifier(t *testing.T) {
	s := NewRuleSimplifier()
	got, err := s.Simplify(context.Background(), "uh hello there", Options{LanguageHint: "English", Level: LevelLow})
	if err != nil {
		t.Fatalf("Simplify failed: %v", err)
	}
	if got != "hello there" {
		t.Errorf("Expected %q, got %q", "hello there", got)
	}
	if s.Name() != "rules" {
		t.Errorf("Unexpected name %s", s.Name())
	}
}

func TestBuildPrompt(t *testing.T) {
	prompt := buildPrompt("नमस्ते, आप कैसे हैं?", "Hindi")
	if !strings.Contains(prompt, "Simplify this Hindi text") {
		t.Errorf("Prompt missing language hint: %s", prompt)
	}
	if !strings.Contains(prompt, "TEXT: नमस्ते, आप कैसे हैं?") {
		t.Errorf("Prompt missing text: %s", prompt)
	}
	if !strings.HasSuffix(prompt, "SIMPLIFIED:") {
		t.Errorf("Prompt should end with the answer cue: %s", prompt)
	}
}

func TestResponseText(t *testing.T) {
	resp := &genai.GenerateContentResponse{
		Candidates: []*genai.Candidate{
			{Content: nil},
			{Content: &genai.Content{Parts: []genai.Part{genai.Text("नमस्ते। "), genai.Text("आप कैसे हैं?")}}},
			{Content: &genai.Content{Parts: []genai.Part{genai.Text("ignored")}}},
		},
	}
	if got := responseText(resp); got != "नमस्ते। आप कैसे हैं?" {
		t.Errorf("Unexpected response text %q", got)
	}
	if got := responseText(nil); got != "" {
		t.Errorf("Expected empty text for nil response, got %q", got)
	}
}
