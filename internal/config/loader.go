package config

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"slices"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// ValidProviderNames lists known provider names per provider kind.
// Used by [Validate] to warn about unrecognised provider names.
var ValidProviderNames = map[string][]string{
	"stt": {"assemblyai", "deepgram", "openai", "google", "whisper"},
	"llm": {"gemini", "openai", "anthropic", "ollama", "deepseek", "mistral", "groq", "llamacpp", "llamafile"},
	"tts": {"murf", "elevenlabs", "coqui"},
}

// CredentialEnv maps "kind/name" to the environment variable holding that
// provider's API key.
var CredentialEnv = map[string]string{
	"stt/assemblyai": "ASSEMBLYAI_API_KEY",
	"stt/deepgram":   "DEEPGRAM_API_KEY",
	"stt/openai":     "OPENAI_API_KEY",
	"stt/google":     "GOOGLE_API_KEY",
	"llm/gemini":     "GEMINI_API_KEY",
	"llm/openai":     "OPENAI_API_KEY",
	"llm/anthropic":  "ANTHROPIC_API_KEY",
	"llm/deepseek":   "DEEPSEEK_API_KEY",
	"llm/mistral":    "MISTRAL_API_KEY",
	"llm/groq":       "GROQ_API_KEY",
	"tts/murf":       "MURF_API_KEY",
	"tts/elevenlabs": "ELEVENLABS_API_KEY",
}

// Environment overrides for server settings.
const (
	EnvListenAddr = "VOXRELAY_LISTEN_ADDR"
	EnvLogLevel   = "VOXRELAY_LOG_LEVEL"
	EnvS3Access   = "S3_ACCESS_KEY"
	EnvS3Secret   = "S3_SECRET_KEY"
)

// Defaults returns the configuration used when no file is present: AssemblyAI
// for transcription, Gemini for replies and Murf for synthesis.
func Defaults() *Config {
	return &Config{
		Server: ServerConfig{
			ListenAddr:      ":8000",
			LogLevel:        LogInfo,
			StaticDir:       "static",
			IndexFile:       "static/index.html",
			MaxUploadBytes:  25 << 20,
			ShutdownTimeout: 15 * time.Second,
			RateLimit:       RateLimitConfig{Window: time.Minute},
		},
		Providers: ProvidersConfig{
			STT: ProviderEntry{Name: "assemblyai", Timeout: 2 * time.Minute},
			LLM: ProviderEntry{Name: "gemini", Model: "gemini-1.5-flash", Timeout: time.Minute},
			TTS: ProviderEntry{
				Name:           "murf",
				Voice:          "en-US-charles",
				Timeout:        2 * time.Minute,
				ConnectTimeout: 10 * time.Second,
			},
		},
		Storage: StorageConfig{
			Backend: StorageLocal,
			Local:   LocalStorageConfig{Dir: "static/generated", BaseURL: "/static/generated"},
			S3:      S3StorageConfig{Region: "us-east-1", PresignTTL: time.Hour},
		},
		Resilience: ResilienceConfig{
			Enabled:      true,
			MaxFailures:  5,
			ResetTimeout: 30 * time.Second,
			HalfOpenMax:  1,
		},
	}
}

// Load builds the effective configuration: [Defaults], then the YAML file at
// path (skipped when path is empty or the file does not exist), then
// environment variables via [ApplyEnv]. The result is validated.
func Load(path string) (*Config, error) {
	cfg := Defaults()
	if path != "" {
		f, err := os.Open(path)
		switch {
		case errors.Is(err, fs.ErrNotExist):
			slog.Debug("config file not found, using defaults", "path", path)
		case err != nil:
			return nil, fmt.Errorf("config: open %q: %w", path, err)
		default:
			defer f.Close()
			if err := decode(f, cfg); err != nil {
				return nil, fmt.Errorf("config: parse %q: %w", path, err)
			}
		}
	}
	ApplyEnv(cfg, os.Getenv)
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadFromReader decodes a YAML config from r on top of [Defaults] and
// validates the result. The environment is not consulted.
func LoadFromReader(r io.Reader) (*Config, error) {
	cfg := Defaults()
	if err := decode(r, cfg); err != nil {
		return nil, err
	}
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// decode overlays the YAML document in r onto cfg. Unknown keys are rejected;
// an empty document leaves cfg unchanged.
func decode(r io.Reader, cfg *Config) error {
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return fmt.Errorf("config: decode yaml: %w", err)
	}
	return nil
}

// ApplyEnv fills empty credentials from their conventional environment
// variables and applies the VOXRELAY_* server overrides. getenv is usually
// [os.Getenv].
func ApplyEnv(cfg *Config, getenv func(string) string) {
	if v := getenv(EnvListenAddr); v != "" {
		cfg.Server.ListenAddr = v
	}
	if v := getenv(EnvLogLevel); v != "" {
		cfg.Server.LogLevel = LogLevel(strings.ToLower(v))
	}

	fill := func(kind string, e *ProviderEntry) {
		if e.APIKey != "" {
			return
		}
		if env, ok := CredentialEnv[kind+"/"+e.Name]; ok {
			e.APIKey = getenv(env)
		}
	}
	fill("stt", &cfg.Providers.STT)
	fill("llm", &cfg.Providers.LLM)
	fill("tts", &cfg.Providers.TTS)

	if cfg.Storage.S3.AccessKey == "" {
		cfg.Storage.S3.AccessKey = getenv(EnvS3Access)
	}
	if cfg.Storage.S3.SecretKey == "" {
		cfg.Storage.S3.SecretKey = getenv(EnvS3Secret)
	}
}

// Validate checks that cfg contains a coherent set of values. Credentials
// are deliberately not required. It returns a joined error listing all
// validation failures found.
func Validate(cfg *Config) error {
	var errs []error

	// Server
	if cfg.Server.LogLevel != "" && !cfg.Server.LogLevel.IsValid() {
		errs = append(errs, fmt.Errorf("server.log_level %q is invalid; valid values: debug, info, warn, error", cfg.Server.LogLevel))
	}
	if cfg.Server.ListenAddr == "" {
		errs = append(errs, errors.New("server.listen_addr is required"))
	}
	if cfg.Server.MaxUploadBytes <= 0 {
		errs = append(errs, fmt.Errorf("server.max_upload_bytes must be positive, got %d", cfg.Server.MaxUploadBytes))
	}
	if cfg.Server.RateLimit.Requests < 0 {
		errs = append(errs, fmt.Errorf("server.rate_limit.requests must not be negative, got %d", cfg.Server.RateLimit.Requests))
	}
	if cfg.Server.RateLimit.Requests > 0 && cfg.Server.RateLimit.Window <= 0 {
		errs = append(errs, errors.New("server.rate_limit.window must be positive when requests is set"))
	}
	if cfg.Server.ShutdownTimeout < 0 {
		errs = append(errs, errors.New("server.shutdown_timeout must not be negative"))
	}
	if tls := cfg.Server.TLS; tls != nil && (tls.CertFile == "" || tls.KeyFile == "") {
		errs = append(errs, errors.New("server.tls requires both cert_file and key_file"))
	}

	// Providers
	for _, p := range []struct {
		kind  string
		entry ProviderEntry
	}{
		{"stt", cfg.Providers.STT},
		{"llm", cfg.Providers.LLM},
		{"tts", cfg.Providers.TTS},
	} {
		if p.entry.Name == "" {
			errs = append(errs, fmt.Errorf("providers.%s.name is required", p.kind))
			continue
		}
		validateProviderName(p.kind, p.entry.Name)
		if p.entry.Timeout < 0 {
			errs = append(errs, fmt.Errorf("providers.%s.timeout must not be negative", p.kind))
		}
		if p.entry.ConnectTimeout < 0 {
			errs = append(errs, fmt.Errorf("providers.%s.connect_timeout must not be negative", p.kind))
		}
	}

	// Storage
	switch cfg.Storage.Backend {
	case "":
		errs = append(errs, errors.New("storage.backend is required"))
	case StorageLocal:
		if cfg.Storage.Local.Dir == "" {
			errs = append(errs, errors.New("storage.local.dir is required for the local backend"))
		}
	case StorageS3:
		if cfg.Storage.S3.Endpoint == "" {
			errs = append(errs, errors.New("storage.s3.endpoint is required for the s3 backend"))
		}
		if cfg.Storage.S3.Bucket == "" {
			errs = append(errs, errors.New("storage.s3.bucket is required for the s3 backend"))
		}
	default:
		errs = append(errs, fmt.Errorf("storage.backend %q is invalid; valid values: local, s3", cfg.Storage.Backend))
	}

	// Conversation
	if t := cfg.Conversation.Temperature; t < 0 || t > 2 {
		errs = append(errs, fmt.Errorf("conversation.temperature %.2f is out of range [0, 2]", t))
	}
	if cfg.Conversation.MaxTokens < 0 {
		errs = append(errs, fmt.Errorf("conversation.max_tokens must not be negative, got %d", cfg.Conversation.MaxTokens))
	}

	// Resilience
	if r := cfg.Resilience; r.Enabled {
		if r.MaxFailures <= 0 {
			errs = append(errs, fmt.Errorf("resilience.max_failures must be positive, got %d", r.MaxFailures))
		}
		if r.ResetTimeout <= 0 {
			errs = append(errs, fmt.Errorf("resilience.reset_timeout must be positive, got %s", r.ResetTimeout))
		}
		if r.HalfOpenMax <= 0 {
			errs = append(errs, fmt.Errorf("resilience.half_open_max must be positive, got %d", r.HalfOpenMax))
		}
	}

	return errors.Join(errs...)
}

// validateProviderName logs a warning if name is non-empty and not found in
// the [ValidProviderNames] list for the given kind. The registry rejects it
// later if no factory exists.
func validateProviderName(kind, name string) {
	if name == "" {
		return
	}
	known, ok := ValidProviderNames[kind]
	if !ok {
		return
	}
	if slices.Contains(known, name) {
		return
	}
	slog.Warn("unknown provider name, may be a typo or third-party provider",
		"kind", kind,
		"name", name,
		"known", known,
	)
}
