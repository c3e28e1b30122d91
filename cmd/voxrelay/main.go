// Command voxrelay is the main entry point for the voxrelay voice-chat server.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"golang.org/x/sync/errgroup"

	"github.com/MrWong99/voxrelay/internal/config"
	"github.com/MrWong99/voxrelay/internal/health"
	"github.com/MrWong99/voxrelay/internal/observe"
	"github.com/MrWong99/voxrelay/internal/relay"
	"github.com/MrWong99/voxrelay/internal/resilience"
	"github.com/MrWong99/voxrelay/internal/server"
	"github.com/MrWong99/voxrelay/internal/session"
	"github.com/MrWong99/voxrelay/pkg/types"
)

// version is overridden at build time with -ldflags "-X main.version=...".
var version = "dev"

func main() {
	os.Exit(run())
}

func run() int {
	// ── CLI flags ──────────────────────────────────────────────────────────────
	configPath := flag.String("config", "voxrelay.yaml", "path to the YAML configuration file (optional)")
	envFile := flag.String("env-file", ".env", "dotenv file loaded before configuration (optional)")
	flag.Parse()

	// ── Environment ───────────────────────────────────────────────────────────
	// Variables already set in the process environment take precedence.
	if err := godotenv.Load(*envFile); err != nil && !errors.Is(err, os.ErrNotExist) {
		fmt.Fprintf(os.Stderr, "voxrelay: load %s: %v\n", *envFile, err)
		return 1
	}

	// ── Load configuration ────────────────────────────────────────────────────
	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "voxrelay: %v\n", err)
		return 1
	}

	// ── Logger ────────────────────────────────────────────────────────────────
	slog.SetDefault(newLogger(cfg.Server.LogLevel))
	slog.Info("voxrelay starting",
		"version", version,
		"config", *configPath,
		"listen_addr", cfg.Server.ListenAddr,
		"log_level", cfg.Server.LogLevel,
	)

	// ── Signal context ────────────────────────────────────────────────────────
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// ── Telemetry ─────────────────────────────────────────────────────────────
	tel, err := observe.Init(ctx, observe.TelemetryConfig{
		ServiceVersion: version,
		Stages: map[string]string{
			"stt": cfg.Providers.STT.Name,
			"llm": cfg.Providers.LLM.Name,
			"tts": cfg.Providers.TTS.Name,
		},
	})
	if err != nil {
		slog.Error("failed to initialise telemetry", "err", err)
		return 1
	}
	defer func() {
		if err := tel.Shutdown(context.Background()); err != nil {
			slog.Warn("telemetry shutdown error", "err", err)
		}
	}()
	metrics := tel.Metrics

	// ── Audio store ───────────────────────────────────────────────────────────
	store, err := buildAudioStore(ctx, cfg.Storage)
	if err != nil {
		slog.Warn("audio store unavailable, byte-returning TTS providers will fail",
			"backend", cfg.Storage.Backend, "err", err)
		store = nil
	}

	// ── Providers ─────────────────────────────────────────────────────────────
	reg := config.NewRegistry()
	registerBuiltinProviders(reg)

	ps, err := buildProviders(cfg, reg, store)
	if err != nil {
		slog.Error("failed to build providers", "err", err)
		return 1
	}
	defer func() {
		if err := ps.Close(); err != nil {
			slog.Warn("provider close error", "err", err)
		}
	}()

	// ── Pipeline ──────────────────────────────────────────────────────────────
	sttCB := newBreaker(cfg.Resilience, "stt/"+cfg.Providers.STT.Name)
	llmCB := newBreaker(cfg.Resilience, "llm/"+cfg.Providers.LLM.Name)
	ttsCB := newBreaker(cfg.Resilience, "tts/"+cfg.Providers.TTS.Name)

	sessions := session.NewMemStore()
	if err := metrics.ObserveSessions(sessions.Len); err != nil {
		slog.Warn("session gauge unavailable", "err", err)
	}

	orchOpts := []relay.Option{relay.WithMetrics(metrics)}
	if cfg.Sessions.Serialize {
		orchOpts = append(orchOpts, relay.WithSerializedSessions())
	}
	orch := relay.New(
		relay.NewTranscriber(ps.STT, stageOptions(cfg.Providers.STT, sttCB, metrics)...),
		relay.NewGenerator(ps.LLM, relay.Prompt{
			System:      cfg.Conversation.SystemPrompt,
			Temperature: cfg.Conversation.Temperature,
			MaxTokens:   cfg.Conversation.MaxTokens,
		}, stageOptions(cfg.Providers.LLM, llmCB, metrics)...),
		relay.NewSynthesizer(ps.TTS, types.VoiceProfile{
			ID:       cfg.Providers.TTS.Voice,
			Provider: cfg.Providers.TTS.Name,
		}, stageOptions(cfg.Providers.TTS, ttsCB, metrics)...),
		sessions,
		orchOpts...,
	)

	// ── HTTP server ───────────────────────────────────────────────────────────
	hh := health.New(
		health.StageChecker("stt", ps.STTErr, sttCB),
		health.StageChecker("llm", ps.LLMErr, llmCB),
		health.StageChecker("tts", ps.TTSErr, ttsCB),
	)
	srv := server.New(orch,
		server.WithHealth(hh),
		server.WithMetrics(metrics),
		server.WithMetricsHandler(tel.Handler()),
		server.WithStaticDir(cfg.Server.StaticDir),
		server.WithIndexFile(cfg.Server.IndexFile),
		server.WithMaxUploadBytes(cfg.Server.MaxUploadBytes),
		server.WithCORSOrigins(cfg.Server.CORSOrigins...),
		server.WithRateLimit(cfg.Server.RateLimit.Requests, cfg.Server.RateLimit.Window),
	)

	// ── Startup summary ───────────────────────────────────────────────────────
	printStartupSummary(cfg, ps)

	var certFile, keyFile string
	if cfg.Server.TLS != nil {
		certFile, keyFile = cfg.Server.TLS.CertFile, cfg.Server.TLS.KeyFile
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return srv.ListenAndServe(gctx, cfg.Server.ListenAddr, certFile, keyFile, cfg.Server.ShutdownTimeout)
	})

	slog.Info("server ready, press Ctrl+C to shut down")
	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		slog.Error("run error", "err", err)
		return 1
	}
	slog.Info("goodbye")
	return 0
}

// ── Pipeline wiring ───────────────────────────────────────────────────────────

func newBreaker(cfg config.ResilienceConfig, name string) *resilience.CircuitBreaker {
	if !cfg.Enabled {
		return nil
	}
	return resilience.NewCircuitBreaker(resilience.CircuitBreakerConfig{
		Name:         name,
		MaxFailures:  cfg.MaxFailures,
		ResetTimeout: cfg.ResetTimeout,
		HalfOpenMax:  cfg.HalfOpenMax,
	})
}

func stageOptions(entry config.ProviderEntry, cb *resilience.CircuitBreaker, m *observe.Metrics) []relay.StageOption {
	return []relay.StageOption{
		relay.WithProviderName(entry.Name),
		relay.WithTimeout(entry.Timeout),
		relay.WithBreaker(cb),
		relay.WithStageMetrics(m),
	}
}

// ── Startup summary ───────────────────────────────────────────────────────────

func printStartupSummary(cfg *config.Config, ps *providers) {
	fmt.Println("╔═══════════════════════════════════════╗")
	fmt.Println("║        voxrelay — startup summary     ║")
	fmt.Println("╠═══════════════════════════════════════╣")
	printProvider("STT", cfg.Providers.STT, ps.STTErr)
	printProvider("LLM", cfg.Providers.LLM, ps.LLMErr)
	printProvider("TTS", cfg.Providers.TTS, ps.TTSErr)
	fmt.Printf("║  %-12s    : %-19s ║\n", "Storage", string(cfg.Storage.Backend))
	breakers := "(disabled)"
	if cfg.Resilience.Enabled {
		breakers = fmt.Sprintf("after %d failures", cfg.Resilience.MaxFailures)
	}
	fmt.Printf("║  %-12s    : %-19s ║\n", "Breakers", breakers)
	serialize := "no"
	if cfg.Sessions.Serialize {
		serialize = "yes"
	}
	fmt.Printf("║  %-12s    : %-19s ║\n", "Serialize", serialize)
	fmt.Printf("║  %-12s    : %-19s ║\n", "Listen addr", cfg.Server.ListenAddr)
	fmt.Println("╚═══════════════════════════════════════╝")
}

func printProvider(kind string, entry config.ProviderEntry, initErr error) {
	value := entry.Name
	if entry.Model != "" {
		value = entry.Name + " / " + entry.Model
	}
	if initErr != nil {
		value = entry.Name + " (unavailable)"
	}
	fmt.Printf("║  %-12s    : %-19s ║\n", kind, clip(value, 19))
}

// clip shortens s to at most n runes, marking the cut with an ellipsis.
func clip(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-1]) + "…"
}

// ── Logger ─────────────────────────────────────────────────────────────────────

func newLogger(level config.LogLevel) *slog.Logger {
	var lvl slog.Level
	switch level {
	case config.LogDebug:
		lvl = slog.LevelDebug
	case config.LogWarn:
		lvl = slog.LevelWarn
	case config.LogError:
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: lvl}))
}
