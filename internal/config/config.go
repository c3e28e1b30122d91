// Package config provides the configuration schema, loader, and provider
// registry for the voxrelay server.
package config

import "time"

// LogLevel controls log verbosity for the voxrelay server.
type LogLevel string

const (
	LogDebug LogLevel = "debug"
	LogInfo  LogLevel = "info"
	LogWarn  LogLevel = "warn"
	LogError LogLevel = "error"
)

// IsValid reports whether l is a recognised log level.
func (l LogLevel) IsValid() bool {
	switch l {
	case LogDebug, LogInfo, LogWarn, LogError:
		return true
	}
	return false
}

// StorageBackend selects where synthesised audio is published when the TTS
// provider returns raw bytes instead of a hosted URL.
type StorageBackend string

const (
	// StorageLocal writes files under a directory served by the relay itself.
	StorageLocal StorageBackend = "local"

	// StorageS3 uploads to an S3-compatible bucket.
	StorageS3 StorageBackend = "s3"
)

// IsValid reports whether b is a recognised storage backend.
func (b StorageBackend) IsValid() bool {
	return b == StorageLocal || b == StorageS3
}

// Config is the root configuration structure for voxrelay.
// It is typically loaded with [Load], which layers defaults, an optional YAML
// file and environment variables.
type Config struct {
	Server       ServerConfig       `yaml:"server"`
	Providers    ProvidersConfig    `yaml:"providers"`
	Storage      StorageConfig      `yaml:"storage"`
	Sessions     SessionsConfig     `yaml:"sessions"`
	Conversation ConversationConfig `yaml:"conversation"`
	Resilience   ResilienceConfig   `yaml:"resilience"`
}

// ServerConfig holds network and logging settings.
type ServerConfig struct {
	// ListenAddr is the TCP address the server listens on (e.g., ":8000").
	ListenAddr string `yaml:"listen_addr"`

	// LogLevel controls verbosity.
	LogLevel LogLevel `yaml:"log_level"`

	// StaticDir is served under /static/. It holds the web client assets and
	// the fallback_audio clips.
	StaticDir string `yaml:"static_dir"`

	// IndexFile is the landing page served at "/".
	IndexFile string `yaml:"index_file"`

	// MaxUploadBytes caps the size of a chat request body.
	MaxUploadBytes int64 `yaml:"max_upload_bytes"`

	// CORSOrigins lists allowed browser origins. Empty disables CORS headers.
	CORSOrigins []string `yaml:"cors_origins"`

	// RateLimit throttles chat requests per client IP.
	RateLimit RateLimitConfig `yaml:"rate_limit"`

	// ShutdownTimeout bounds graceful shutdown.
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`

	// TLS configures TLS for the server. When nil, the server runs plain HTTP.
	TLS *TLSConfig `yaml:"tls"`
}

// RateLimitConfig limits chat requests per client IP. A zero Requests value
// disables limiting.
type RateLimitConfig struct {
	Requests int           `yaml:"requests"`
	Window   time.Duration `yaml:"window"`
}

// TLSConfig holds TLS certificate paths for enabling HTTPS.
type TLSConfig struct {
	// CertFile is the path to the PEM-encoded TLS certificate.
	CertFile string `yaml:"cert_file"`

	// KeyFile is the path to the PEM-encoded TLS private key.
	KeyFile string `yaml:"key_file"`
}

// ProvidersConfig selects the implementation used for each pipeline stage.
// Each Name is looked up in the [Registry].
type ProvidersConfig struct {
	STT ProviderEntry `yaml:"stt"`
	LLM ProviderEntry `yaml:"llm"`
	TTS ProviderEntry `yaml:"tts"`
}

// ProviderEntry is the common configuration block shared by all provider types.
type ProviderEntry struct {
	// Name selects the registered provider implementation (e.g., "assemblyai", "murf").
	Name string `yaml:"name"`

	// APIKey authenticates against the provider. When empty, the provider's
	// conventional environment variable is consulted (see [CredentialEnv]).
	// A missing key is not a startup error; it fails the stage when reached.
	APIKey string `yaml:"api_key"`

	// BaseURL overrides the provider's default API endpoint.
	BaseURL string `yaml:"base_url"`

	// Model selects a specific model within the provider (e.g., "gemini-1.5-flash").
	Model string `yaml:"model"`

	// Voice is the TTS voice identifier (e.g., "en-US-charles").
	Voice string `yaml:"voice"`

	// Language is an optional BCP-47 language hint for STT and TTS.
	Language string `yaml:"language"`

	// Timeout bounds a single call to this provider. Zero means no bound
	// beyond the provider's own.
	Timeout time.Duration `yaml:"timeout"`

	// ConnectTimeout bounds connection establishment where the provider
	// supports it.
	ConnectTimeout time.Duration `yaml:"connect_timeout"`

	// Options holds provider-specific values not covered by the standard
	// fields above.
	Options map[string]any `yaml:"options"`
}

// StringOption returns Options[key] as a string, or "" when absent or not a
// string.
func (e ProviderEntry) StringOption(key string) string {
	s, _ := e.Options[key].(string)
	return s
}

// IntOption returns Options[key] as an int, or 0 when absent or not numeric.
func (e ProviderEntry) IntOption(key string) int {
	switch v := e.Options[key].(type) {
	case int:
		return v
	case float64:
		return int(v)
	}
	return 0
}

// StorageConfig configures the audio store.
type StorageConfig struct {
	Backend StorageBackend     `yaml:"backend"`
	Local   LocalStorageConfig `yaml:"local"`
	S3      S3StorageConfig    `yaml:"s3"`
}

// LocalStorageConfig writes audio below Dir and links it as BaseURL/<key>.
type LocalStorageConfig struct {
	Dir     string `yaml:"dir"`
	BaseURL string `yaml:"base_url"`
}

// S3StorageConfig targets an S3-compatible bucket.
type S3StorageConfig struct {
	Endpoint      string        `yaml:"endpoint"`
	AccessKey     string        `yaml:"access_key"`
	SecretKey     string        `yaml:"secret_key"`
	Bucket        string        `yaml:"bucket"`
	Region        string        `yaml:"region"`
	Insecure      bool          `yaml:"insecure"`
	Prefix        string        `yaml:"prefix"`
	PublicBaseURL string        `yaml:"public_base_url"`
	PresignTTL    time.Duration `yaml:"presign_ttl"`
}

// SessionsConfig controls session history handling.
type SessionsConfig struct {
	// Serialize makes history load, generation and commit atomic per session.
	Serialize bool `yaml:"serialize"`
}

// ConversationConfig shapes the LLM request.
type ConversationConfig struct {
	SystemPrompt string  `yaml:"system_prompt"`
	Temperature  float64 `yaml:"temperature"`
	MaxTokens    int     `yaml:"max_tokens"`
}

// ResilienceConfig configures the per-stage circuit breakers. Breakers never
// retry; an open breaker fails its stage immediately.
type ResilienceConfig struct {
	Enabled      bool          `yaml:"enabled"`
	MaxFailures  int           `yaml:"max_failures"`
	ResetTimeout time.Duration `yaml:"reset_timeout"`
	HalfOpenMax  int           `yaml:"half_open_max"`
}
