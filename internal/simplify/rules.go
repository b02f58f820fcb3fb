package simplify

import (
	"context"
	"regexp"
	"strings"
)

var (
	fillerPattern      = regexp.MustCompile(`(?i)\b(um|uh|like|you know|basically|actually|literally)\b`)
	sentenceEndPattern = regexp.MustCompile(`([.!?])\s+`)
	conjunctionPattern = regexp.MustCompile(`(?i)\b(and|but|or|because|so|when|while|if)\b`)
	spacePattern       = regexp.MustCompile(`\s+`)
	spaceBeforePunct   = regexp.MustCompile(`\s+([.,!?])`)
)

// RuleSimplifier strips filler words and splits long sentences at conjunctions
type RuleSimplifier struct{}

// NewRuleSimplifier creates a rule-based simplifier
func NewRuleSimplifier() *RuleSimplifier {
	return &RuleSimplifier{}
}

// Name implements Simplifier
func (r *RuleSimplifier) Name() string {
	return "rules"
}

// Simplify implements Simplifier. It never fails.
func (r *RuleSimplifier) Simplify(ctx context.Context, text string, opts Options) (string, error) {
	return SimplifyText(text, opts.Level), nil
}

// SimplifyText applies the rules at the given level
func SimplifyText(text string, level Level) string {
	if strings.TrimSpace(text) == "" {
		return text
	}

	text = fillerPattern.ReplaceAllString(text, "")
	if level == LevelLow {
		return strings.TrimSpace(spacePattern.ReplaceAllString(text, " "))
	}

	maxWords := 15
	if level == LevelHigh {
		maxWords = 10
	}

	var parts []string
	for _, sentence := range strings.Split(sentenceEndPattern.ReplaceAllString(text, "$1\n"), "\n") {
		sentence = strings.TrimSpace(sentence)
		if sentence == "" {
			continue
		}
		if len(strings.Fields(sentence)) <= maxWords {
			parts = append(parts, sentence)
			continue
		}
		for _, part := range conjunctionPattern.Split(sentence, -1) {
			if part = strings.TrimSpace(part); part != "" {
				parts = append(parts, part)
			}
		}
	}

	var b strings.Builder
	for i, part := range parts {
		if i > 0 {
			if endsSentence(parts[i-1]) {
				b.WriteString(" ")
			} else {
				b.WriteString(". ")
			}
		}
		b.WriteString(part)
	}

	result := spacePattern.ReplaceAllString(b.String(), " ")
	result = spaceBeforePunct.ReplaceAllString(result, "$1")
	return strings.TrimSpace(result)
}

func endsSentence(s string) bool {
	if s == "" {
		return false
	}
	switch s[len(s)-1] {
	case '.', '!', '?':
		return true
	}
	return false
}
