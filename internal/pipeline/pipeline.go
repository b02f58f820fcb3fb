// Package pipeline turns one final transcript into its translated and
// simplified derivatives.
package pipeline

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"github.com/lexiqai/caption-gateway/internal/events"
	"github.com/lexiqai/caption-gateway/internal/languages"
	"github.com/lexiqai/caption-gateway/internal/observability"
	"github.com/lexiqai/caption-gateway/internal/simplify"
	"github.com/lexiqai/caption-gateway/internal/translation"
)

// Request describes the derivatives wanted for one transcript
type Request struct {
	TranscriptID   string
	SessionID      string
	Text           string
	SourceLanguage string
	TargetLanguage string
	Simplify       bool
	Level          simplify.Level
}

// Pipeline runs translation then optional simplification
type Pipeline struct {
	translator translation.Translator
	simplifier simplify.Simplifier
	timeout    time.Duration
	logger     zerolog.Logger
}

// New creates a pipeline. timeout bounds each stage's engine call; zero disables it.
func New(translator translation.Translator, simplifier simplify.Simplifier, timeout time.Duration) *Pipeline {
	return &Pipeline{
		translator: translator,
		simplifier: simplifier,
		timeout:    timeout,
		logger:     observability.ForComponent("pipeline"),
	}
}

// Run emits a translated event and then, if requested, a simplified event.
// Engine failures fall back to passing the stage input through. Nothing more
// is emitted once ctx is done.
func (p *Pipeline) Run(ctx context.Context, req Request, emit func(events.DerivativeEvent)) {
	logger := p.logger.With().
		Str("session_id", req.SessionID).
		Str("transcript_id", req.TranscriptID).
		Logger()

	if ctx.Err() != nil {
		return
	}
	translated := p.translate(ctx, req, logger)
	if ctx.Err() != nil {
		return
	}
	emit(events.DerivativeEvent{
		ID:        req.TranscriptID,
		SessionID: req.SessionID,
		Stage:     events.StageTranslated,
		Text:      translated,
	})

	if !req.Simplify {
		return
	}
	simplified := p.simplify(ctx, req, translated, logger)
	if ctx.Err() != nil {
		return
	}
	emit(events.DerivativeEvent{
		ID:        req.TranscriptID,
		SessionID: req.SessionID,
		Stage:     events.StageSimplified,
		Text:      simplified,
	})
}

func (p *Pipeline) translate(ctx context.Context, req Request, logger zerolog.Logger) string {
	if languages.SameBase(req.SourceLanguage, req.TargetLanguage) {
		return req.Text
	}

	callCtx, cancel := p.stageContext(ctx)
	defer cancel()

	start := time.Now()
	out, err := p.translator.Translate(callCtx, req.Text, req.SourceLanguage, req.TargetLanguage)
	fellBack := err != nil || out == ""
	observability.RecordDerivative(string(events.StageTranslated), time.Since(start), fellBack)
	if fellBack {
		if ctx.Err() == nil {
			logger.Warn().Err(err).Str("translator", p.translator.Name()).Msg("Translation failed, passing original text through")
		}
		return req.Text
	}
	return out
}

func (p *Pipeline) simplify(ctx context.Context, req Request, text string, logger zerolog.Logger) string {
	callCtx, cancel := p.stageContext(ctx)
	defer cancel()

	start := time.Now()
	out, err := p.simplifier.Simplify(callCtx, text, simplify.Options{
		LanguageHint: languages.Name(req.TargetLanguage),
		Level:        req.Level,
	})
	fellBack := err != nil || out == ""
	observability.RecordDerivative(string(events.StageSimplified), time.Since(start), fellBack)
	if fellBack {
		if ctx.Err() == nil {
			logger.Warn().Err(err).Str("simplifier", p.simplifier.Name()).Msg("Simplification failed, passing text through")
		}
		return text
	}
	return out
}

func (p *Pipeline) stageContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if p.timeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, p.timeout)
}
