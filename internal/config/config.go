package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

// Caption modes accepted in CAPTION_MODE
const (
	ModeAuto    = "auto"
	ModeLive    = "live"
	ModeOffline = "offline"
)

// Config holds all configuration for the caption gateway service
type Config struct {
	// Server configuration
	Port           string `envconfig:"PORT" default:"8080"`
	GRPCHealthPort string `envconfig:"GRPC_HEALTH_PORT" default:"9090"` // "0" disables the gRPC health service

	// Largest client frame accepted; bigger frames are discarded without closing the connection
	WSMaxMessageBytes int64 `envconfig:"WS_MAX_MESSAGE_BYTES" default:"4194304"`

	// Mode selection: auto falls back to offline when credentials are missing
	Mode string `envconfig:"CAPTION_MODE" default:"auto"`

	// Deepgram recognition configuration
	DeepgramAPIKey string `envconfig:"DEEPGRAM_API_KEY" default:""`
	DeepgramModel  string `envconfig:"DEEPGRAM_MODEL" default:"nova-2"`

	// Google Cloud Translation (v2 REST API)
	TranslateAPIKey string `envconfig:"GOOGLE_TRANSLATE_API_KEY" default:""`

	// Gemini simplification; rule-based simplification is used when unset
	GeminiAPIKey string `envconfig:"GEMINI_API_KEY" default:""`
	GeminiModel  string `envconfig:"GEMINI_MODEL" default:"gemini-1.5-flash"`

	// Audio and session configuration
	AudioSampleRate      int  `envconfig:"AUDIO_SAMPLE_RATE" default:"16000"`       // Linear16 mono sample rate
	AudioMinChunkBytes   int  `envconfig:"AUDIO_MIN_CHUNK_BYTES" default:"100"`     // Smaller chunks are dropped
	AudioQueueMaxChunks  int  `envconfig:"AUDIO_QUEUE_MAX_CHUNKS" default:"0"`      // 0 = unbounded, else drop-oldest
	AudioPopTimeoutMs    int  `envconfig:"AUDIO_POP_TIMEOUT_MS" default:"500"`      // Cancellation check interval
	SessionStopTimeoutMs int  `envconfig:"SESSION_STOP_TIMEOUT_MS" default:"2000"`  // Bounded wait for worker exit
	InterimResults       bool `envconfig:"INTERIM_RESULTS" default:"true"`          // Request interim results upstream
	StandInEveryChunks   int  `envconfig:"STANDIN_EVERY_CHUNKS" default:"5"`        // Offline transcript period
	DerivativeTimeoutMs  int  `envconfig:"DERIVATIVE_TIMEOUT_MS" default:"10000"`   // Per-stage call deadline

	// Resilience configuration
	CircuitBreakerMaxFailures  int `envconfig:"CIRCUIT_BREAKER_MAX_FAILURES" default:"5"`   // Failures before opening circuit
	CircuitBreakerResetTimeout int `envconfig:"CIRCUIT_BREAKER_RESET_TIMEOUT" default:"30"` // Seconds before attempting recovery
	RetryMaxAttempts           int `envconfig:"RETRY_MAX_ATTEMPTS" default:"3"`             // Maximum retry attempts
	RetryInitialBackoff        int `envconfig:"RETRY_INITIAL_BACKOFF" default:"100"`        // Initial backoff in milliseconds

	// Observability configuration
	LogLevel       string `envconfig:"LOG_LEVEL" default:"info"`       // Log level: debug, info, warn, error
	LogPretty      bool   `envconfig:"LOG_PRETTY" default:"false"`     // Pretty print logs (for development)
	MetricsEnabled bool   `envconfig:"METRICS_ENABLED" default:"true"` // Enable Prometheus metrics
}

// Load reads configuration from environment variables
// It first attempts to load from .env file if it exists, then from environment
func Load() (*Config, error) {
	// Try to load .env file (ignore error if it doesn't exist)
	_ = godotenv.Load()
	return LoadFromEnv()
}

// LoadFromEnv loads configuration directly from environment variables
// without attempting to load .env file (useful for containerized deployments)
func LoadFromEnv() (*Config, error) {
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks field ranges and the mode/credential combination
func (c *Config) Validate() error {
	c.Mode = strings.ToLower(strings.TrimSpace(c.Mode))
	switch c.Mode {
	case ModeAuto, ModeOffline:
	case ModeLive:
		if reason := c.missingCredentials(); reason != "" {
			return fmt.Errorf("CAPTION_MODE=live but %s", reason)
		}
	default:
		return fmt.Errorf("invalid CAPTION_MODE %q (want auto, live or offline)", c.Mode)
	}

	if c.AudioSampleRate <= 0 {
		return fmt.Errorf("AUDIO_SAMPLE_RATE must be positive, got %d", c.AudioSampleRate)
	}
	if c.AudioQueueMaxChunks < 0 {
		return fmt.Errorf("AUDIO_QUEUE_MAX_CHUNKS must not be negative, got %d", c.AudioQueueMaxChunks)
	}
	if c.WSMaxMessageBytes <= 0 {
		return fmt.Errorf("WS_MAX_MESSAGE_BYTES must be positive, got %d", c.WSMaxMessageBytes)
	}
	if c.AudioPopTimeoutMs <= 0 {
		return fmt.Errorf("AUDIO_POP_TIMEOUT_MS must be positive, got %d", c.AudioPopTimeoutMs)
	}
	if c.StandInEveryChunks <= 0 {
		return fmt.Errorf("STANDIN_EVERY_CHUNKS must be positive, got %d", c.StandInEveryChunks)
	}
	return nil
}

// Offline reports whether the service should run with stand-in engines
func (c *Config) Offline() bool {
	switch c.Mode {
	case ModeOffline:
		return true
	case ModeLive:
		return false
	}
	return c.missingCredentials() != ""
}

// OfflineReason explains why offline mode was selected, or returns "" in live mode
func (c *Config) OfflineReason() string {
	if c.Mode == ModeOffline {
		return "CAPTION_MODE=offline"
	}
	if c.Mode == ModeLive {
		return ""
	}
	return c.missingCredentials()
}

func (c *Config) missingCredentials() string {
	var missing []string
	if c.DeepgramAPIKey == "" {
		missing = append(missing, "DEEPGRAM_API_KEY")
	}
	if c.TranslateAPIKey == "" {
		missing = append(missing, "GOOGLE_TRANSLATE_API_KEY")
	}
	if len(missing) == 0 {
		return ""
	}
	return strings.Join(missing, ", ") + " not set"
}

// PopTimeout is the audio queue poll interval
func (c *Config) PopTimeout() time.Duration {
	return time.Duration(c.AudioPopTimeoutMs) * time.Millisecond
}

// StopTimeout bounds how long a stop waits for the session worker
func (c *Config) StopTimeout() time.Duration {
	return time.Duration(c.SessionStopTimeoutMs) * time.Millisecond
}

// DerivativeTimeout bounds each translation or simplification call
func (c *Config) DerivativeTimeout() time.Duration {
	return time.Duration(c.DerivativeTimeoutMs) * time.Millisecond
}

// GetEnv returns the value of an environment variable or a default value
func GetEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
