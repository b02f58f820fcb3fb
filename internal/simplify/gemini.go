package simplify

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/generative-ai-go/genai"
	"github.com/rs/zerolog"
	"google.golang.org/api/option"

	"github.com/lexiqai/caption-gateway/internal/observability"
	"github.com/lexiqai/caption-gateway/internal/resilience"
)

const systemPrompt = "You are an accessibility expert who simplifies text."

// GeminiSimplifier asks a Gemini model to rewrite captions in plain language
type GeminiSimplifier struct {
	client         *genai.Client
	model          *genai.GenerativeModel
	circuitBreaker *resilience.CircuitBreaker
	retry          *resilience.RetryConfig
	logger         zerolog.Logger
}

// NewGeminiSimplifier creates a simplifier backed by the named model
func NewGeminiSimplifier(ctx context.Context, apiKey, modelName string, cb *resilience.CircuitBreaker, retry *resilience.RetryConfig, opts ...option.ClientOption) (*GeminiSimplifier, error) {
	opts = append([]option.ClientOption{option.WithAPIKey(apiKey)}, opts...)
	client, err := genai.NewClient(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create Gemini client: %w", err)
	}
	if retry == nil {
		retry = resilience.DefaultRetryConfig()
	}
	return &GeminiSimplifier{
		client:         client,
		model:          setupModel(client, modelName),
		circuitBreaker: cb,
		retry:          retry,
		logger:         observability.ForComponent("gemini"),
	}, nil
}

func setupModel(client *genai.Client, modelName string) *genai.GenerativeModel {
	model := client.GenerativeModel(modelName)
	model.GenerationConfig.SetTemperature(0.2)
	model.GenerationConfig.SetMaxOutputTokens(200)
	model.SystemInstruction = &genai.Content{
		Parts: []genai.Part{genai.Text(systemPrompt)},
	}
	return model
}

// Name implements Simplifier
func (g *GeminiSimplifier) Name() string {
	return "gemini"
}

// Simplify implements Simplifier
func (g *GeminiSimplifier) Simplify(ctx context.Context, text string, opts Options) (string, error) {
	if strings.TrimSpace(text) == "" {
		return text, nil
	}

	prompt := buildPrompt(text, opts.LanguageHint)
	var simplified string
	err := resilience.Retry(ctx, g.retry, resilience.IsRetryableAPIError, func(ctx context.Context) error {
		return g.circuitBreaker.Call(func() error {
			resp, err := g.model.GenerateContent(ctx, genai.Text(prompt))
			if err != nil {
				return fmt.Errorf("generate content: %w", err)
			}
			out := strings.TrimSpace(responseText(resp))
			if out == "" {
				return resilience.NewRetryableError(ErrEmptyResult)
			}
			simplified = out
			return nil
		})
	})
	if err != nil {
		observability.RecordError("simplify", "gemini")
		g.logger.Warn().Err(err).Str("language", opts.LanguageHint).Msg("Simplification failed")
		return "", err
	}
	return simplified, nil
}

// Close releases the underlying client
func (g *GeminiSimplifier) Close() error {
	return g.client.Close()
}

func buildPrompt(text, languageName string) string {
	if languageName == "" {
		languageName = "the following"
	}
	return fmt.Sprintf(`Simplify this %s text for people who are deaf or hard-of-hearing.

RULES:
1. Use very simple, common words.
2. Keep sentences very short (5-10 words).
3. Do not change the meaning.
4. Use active voice.
5. If the text is already simple, return it exactly as-is.

TEXT: %s

SIMPLIFIED:`, languageName, text)
}

func responseText(resp *genai.GenerateContentResponse) string {
	if resp == nil {
		return ""
	}
	var text strings.Builder
	for _, candidate := range resp.Candidates {
		if candidate.Content != nil {
			for _, part := range candidate.Content.Parts {
				if t, ok := part.(genai.Text); ok {
					text.WriteString(string(t))
				}
			}
		}
		// The first candidate with content is the answer
		if text.Len() > 0 {
			break
		}
	}
	return text.String()
}
