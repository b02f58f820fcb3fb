package translation

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"
	"google.golang.org/api/option"
	translate "google.golang.org/api/translate/v2"

	"github.com/lexiqai/caption-gateway/internal/languages"
	"github.com/lexiqai/caption-gateway/internal/observability"
	"github.com/lexiqai/caption-gateway/internal/resilience"
)

// GoogleTranslator calls the Cloud Translation v2 REST API
type GoogleTranslator struct {
	svc            *translate.Service
	circuitBreaker *resilience.CircuitBreaker
	retry          *resilience.RetryConfig
	logger         zerolog.Logger
}

// NewGoogleTranslator creates a translator authenticated with an API key.
// Extra client options (endpoint, HTTP client) are applied after the key.
func NewGoogleTranslator(ctx context.Context, apiKey string, cb *resilience.CircuitBreaker, retry *resilience.RetryConfig, opts ...option.ClientOption) (*GoogleTranslator, error) {
	opts = append([]option.ClientOption{option.WithAPIKey(apiKey)}, opts...)
	svc, err := translate.NewService(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create translate service: %w", err)
	}
	if retry == nil {
		retry = resilience.DefaultRetryConfig()
	}
	return &GoogleTranslator{
		svc:            svc,
		circuitBreaker: cb,
		retry:          retry,
		logger:         observability.ForComponent("google_translate"),
	}, nil
}

// Name implements Translator
func (g *GoogleTranslator) Name() string {
	return "google_translate"
}

// Translate implements Translator
func (g *GoogleTranslator) Translate(ctx context.Context, text, sourceLang, targetLang string) (string, error) {
	var translated string
	err := resilience.Retry(ctx, g.retry, resilience.IsRetryableAPIError, func(ctx context.Context) error {
		return g.circuitBreaker.Call(func() error {
			call := g.svc.Translations.List([]string{text}, languages.Base(targetLang)).
				Format("text").
				Context(ctx)
			if sourceLang != "" {
				call = call.Source(languages.Base(sourceLang))
			}

			resp, err := call.Do()
			if err != nil {
				return fmt.Errorf("translate request failed: %w", err)
			}
			if len(resp.Translations) == 0 || resp.Translations[0].TranslatedText == "" {
				return resilience.NewRetryableError(ErrEmptyResult)
			}
			translated = resp.Translations[0].TranslatedText
			return nil
		})
	})
	if err != nil {
		observability.RecordError("translate", "translation")
		g.logger.Warn().Err(err).Str("target", targetLang).Msg("Translation failed")
		return "", err
	}
	return translated, nil
}

// Check lists supported languages to verify the API key; used for readiness
func (g *GoogleTranslator) Check(ctx context.Context) (bool, error) {
	if _, err := g.svc.Languages.List().Context(ctx).Do(); err != nil {
		return false, err
	}
	return true, nil
}
