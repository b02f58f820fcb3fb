package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/lexiqai/caption-gateway/internal/captions"
	"github.com/lexiqai/caption-gateway/internal/config"
	"github.com/lexiqai/caption-gateway/internal/languages"
	"github.com/lexiqai/caption-gateway/internal/observability"
	"github.com/lexiqai/caption-gateway/internal/pipeline"
	"github.com/lexiqai/caption-gateway/internal/recognition"
	"github.com/lexiqai/caption-gateway/internal/resilience"
	"github.com/lexiqai/caption-gateway/internal/simplify"
	"github.com/lexiqai/caption-gateway/internal/translation"
	"github.com/lexiqai/caption-gateway/internal/transport"
)

// engines is the recognition/translation/simplification triple for one mode
type engines struct {
	recognizer recognition.Engine
	translator translation.Translator
	simplifier simplify.Simplifier
	checks     []observability.HealthCheck
	closers    []func() error
}

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		// Use fmt for fatal errors before logger is initialized
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	// Initialize structured logger
	observability.InitLogger(cfg.LogLevel, cfg.LogPretty)
	logger := observability.GetLogger()

	mode := config.ModeLive
	if cfg.Offline() {
		mode = config.ModeOffline
		logger.Warn().Str("reason", cfg.OfflineReason()).Msg("Running in offline mode with stand-in engines")
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	eng, err := buildEngines(ctx, cfg, mode == config.ModeOffline, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("Failed to initialize engines")
	}
	defer func() {
		for _, closeFn := range eng.closers {
			if err := closeFn(); err != nil {
				logger.Warn().Err(err).Msg("Error closing engine client")
			}
		}
	}()

	p := pipeline.New(eng.translator, eng.simplifier, cfg.DerivativeTimeout())
	orch := captions.New(eng.recognizer, p, captions.OptionsFromConfig(cfg))

	logger.Info().
		Str("port", cfg.Port).
		Str("mode", mode).
		Str("recognizer", orch.EngineName()).
		Str("translator", eng.translator.Name()).
		Str("simplifier", eng.simplifier.Name()).
		Str("log_level", cfg.LogLevel).
		Int64("ws_max_message_bytes", cfg.WSMaxMessageBytes).
		Bool("metrics_enabled", cfg.MetricsEnabled).
		Msg("Caption Gateway Service starting")

	// Create HTTP server
	mux := http.NewServeMux()
	mux.Handle("/ws", transport.NewHandler(orch, mode, cfg.WSMaxMessageBytes))
	mux.HandleFunc("/health", observability.HealthCheckHandler(mode))
	mux.HandleFunc("/ready", observability.ReadinessHandler(mode, eng.checks...))
	mux.HandleFunc("/api/languages", languages.Handler)

	// Metrics endpoint (Prometheus)
	if cfg.MetricsEnabled {
		mux.Handle("/metrics", promhttp.Handler())
		logger.Info().Msg("Prometheus metrics enabled at /metrics")
	}

	// WebSocket connections are long-lived, so no read/write timeouts here
	server := &http.Server{
		Addr:              fmt.Sprintf(":%s", cfg.Port),
		Handler:           mux,
		ReadHeaderTimeout: 15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	if cfg.GRPCHealthPort != "0" {
		grpcHealth := observability.NewGRPCHealth(15*time.Second, eng.checks...)
		go func() {
			if err := grpcHealth.Serve(ctx, fmt.Sprintf(":%s", cfg.GRPCHealthPort)); err != nil {
				logger.Error().Err(err).Msg("gRPC health service failed")
			}
		}()
	}

	// Start server in a goroutine
	go func() {
		logger.Info().
			Str("port", cfg.Port).
			Str("endpoint", fmt.Sprintf("ws://localhost:%s/ws", cfg.Port)).
			Msg("Server listening")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal().Err(err).Msg("Server failed to start")
		}
	}()

	// Wait for interrupt signal to gracefully shutdown the server
	<-ctx.Done()
	logger.Info().Int("active_sessions", orch.ActiveSessions()).Msg("Shutting down server...")

	orch.Shutdown()

	// Graceful shutdown with timeout
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("Server forced to shutdown")
	}

	logger.Info().Msg("Server exited gracefully")
}

func buildEngines(ctx context.Context, cfg *config.Config, offline bool, logger zerolog.Logger) (*engines, error) {
	if offline {
		return &engines{
			recognizer: recognition.NewStandInEngine(cfg.StandInEveryChunks),
			translator: translation.NewStubTranslator(translation.DefaultStubTranslatorConfig()),
			simplifier: simplify.NewRuleSimplifier(),
		}, nil
	}

	resetTimeout := time.Duration(cfg.CircuitBreakerResetTimeout) * time.Second
	retry := resilience.DefaultRetryConfig()
	retry.MaxAttempts = cfg.RetryMaxAttempts
	retry.InitialBackoff = time.Duration(cfg.RetryInitialBackoff) * time.Millisecond

	eng := &engines{
		recognizer: recognition.NewDeepgramEngine(cfg.DeepgramAPIKey,
			resilience.NewCircuitBreaker("deepgram", cfg.CircuitBreakerMaxFailures, resetTimeout),
			recognition.CloseGraceFor(cfg.StopTimeout())),
	}

	translator, err := translation.NewGoogleTranslator(ctx, cfg.TranslateAPIKey,
		resilience.NewCircuitBreaker("google_translate", cfg.CircuitBreakerMaxFailures, resetTimeout), retry)
	if err != nil {
		return nil, err
	}
	eng.translator = translator
	eng.checks = append(eng.checks, observability.HealthCheck{Name: "google_translate", Check: translator.Check})

	if cfg.GeminiAPIKey == "" {
		logger.Info().Msg("GEMINI_API_KEY not set, using rule-based simplification")
		eng.simplifier = simplify.NewRuleSimplifier()
		return eng, nil
	}

	gemini, err := simplify.NewGeminiSimplifier(ctx, cfg.GeminiAPIKey, cfg.GeminiModel,
		resilience.NewCircuitBreaker("gemini", cfg.CircuitBreakerMaxFailures, resetTimeout), retry)
	if err != nil {
		return nil, err
	}
	eng.simplifier = gemini
	eng.closers = append(eng.closers, gemini.Close)
	return eng, nil
}
