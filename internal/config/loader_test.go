package config_test

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/MrWong99/voxrelay/internal/config"
)

func envMap(m map[string]string) func(string) string {
	return func(k string) string { return m[k] }
}

func TestApplyEnv_FillsCredentialsByProviderName(t *testing.T) {
	t.Parallel()
	cfg := config.Defaults()
	config.ApplyEnv(cfg, envMap(map[string]string{
		"ASSEMBLYAI_API_KEY": "aai",
		"GEMINI_API_KEY":     "gem",
		"MURF_API_KEY":       "murf",
		"DEEPGRAM_API_KEY":   "unused",
	}))

	if cfg.Providers.STT.APIKey != "aai" {
		t.Errorf("stt api key = %q", cfg.Providers.STT.APIKey)
	}
	if cfg.Providers.LLM.APIKey != "gem" {
		t.Errorf("llm api key = %q", cfg.Providers.LLM.APIKey)
	}
	if cfg.Providers.TTS.APIKey != "murf" {
		t.Errorf("tts api key = %q", cfg.Providers.TTS.APIKey)
	}
}

func TestApplyEnv_ExplicitKeyWins(t *testing.T) {
	t.Parallel()
	cfg := config.Defaults()
	cfg.Providers.TTS.APIKey = "from-file"
	config.ApplyEnv(cfg, envMap(map[string]string{"MURF_API_KEY": "from-env"}))
	if cfg.Providers.TTS.APIKey != "from-file" {
		t.Errorf("tts api key = %q, want from-file", cfg.Providers.TTS.APIKey)
	}
}

func TestApplyEnv_FollowsSelectedProvider(t *testing.T) {
	t.Parallel()
	cfg := config.Defaults()
	cfg.Providers.STT.Name = "deepgram"
	cfg.Providers.LLM.Name = "ollama"
	config.ApplyEnv(cfg, envMap(map[string]string{
		"ASSEMBLYAI_API_KEY": "aai",
		"DEEPGRAM_API_KEY":   "dg",
		"GEMINI_API_KEY":     "gem",
	}))
	if cfg.Providers.STT.APIKey != "dg" {
		t.Errorf("stt api key = %q, want dg", cfg.Providers.STT.APIKey)
	}
	if cfg.Providers.LLM.APIKey != "" {
		t.Errorf("ollama needs no key, got %q", cfg.Providers.LLM.APIKey)
	}
}

func TestApplyEnv_ServerOverrides(t *testing.T) {
	t.Parallel()
	cfg := config.Defaults()
	config.ApplyEnv(cfg, envMap(map[string]string{
		config.EnvListenAddr: "127.0.0.1:9999",
		config.EnvLogLevel:   "WARN",
		config.EnvS3Access:   "minio",
		config.EnvS3Secret:   "minio123",
	}))
	if cfg.Server.ListenAddr != "127.0.0.1:9999" {
		t.Errorf("listen addr = %q", cfg.Server.ListenAddr)
	}
	if cfg.Server.LogLevel != config.LogWarn {
		t.Errorf("log level = %q", cfg.Server.LogLevel)
	}
	if cfg.Storage.S3.AccessKey != "minio" || cfg.Storage.S3.SecretKey != "minio123" {
		t.Errorf("s3 credentials = %+v", cfg.Storage.S3)
	}
}

func TestLoad_MissingFileUsesDefaults(t *testing.T) {
	t.Setenv("MURF_API_KEY", "k")
	cfg, err := config.Load(filepath.Join(t.TempDir(), "absent.yaml"))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Server.ListenAddr != ":8000" {
		t.Errorf("listen addr = %q, want :8000", cfg.Server.ListenAddr)
	}
	if cfg.Providers.TTS.APIKey != "k" {
		t.Errorf("env credential not applied: %q", cfg.Providers.TTS.APIKey)
	}
}

func TestLoad_FileThenEnv(t *testing.T) {
	path := filepath.Join(t.TempDir(), "voxrelay.yaml")
	doc := "server:\n  listen_addr: \":7000\"\nproviders:\n  tts:\n    name: elevenlabs\n"
	if err := os.WriteFile(path, []byte(doc), 0o600); err != nil {
		t.Fatal(err)
	}
	t.Setenv("ELEVENLABS_API_KEY", "el")
	t.Setenv(config.EnvListenAddr, "")

	cfg, err := config.Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Server.ListenAddr != ":7000" {
		t.Errorf("listen addr = %q", cfg.Server.ListenAddr)
	}
	if cfg.Providers.TTS.Name != "elevenlabs" || cfg.Providers.TTS.APIKey != "el" {
		t.Errorf("tts = %+v", cfg.Providers.TTS)
	}
}

func TestLoad_InvalidFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.yaml")
	if err := os.WriteFile(path, []byte("server: [unclosed"), 0o600); err != nil {
		t.Fatal(err)
	}
	_, err := config.Load(path)
	if err == nil {
		t.Fatal("expected parse error, got nil")
	}
	if !strings.Contains(err.Error(), "bad.yaml") {
		t.Errorf("error should name the file, got: %v", err)
	}
}

func TestValidProviderNames(t *testing.T) {
	t.Parallel()
	for _, kind := range []string{"stt", "llm", "tts"} {
		if len(config.ValidProviderNames[kind]) == 0 {
			t.Errorf("ValidProviderNames[%q] should not be empty", kind)
		}
	}
	for key := range config.CredentialEnv {
		kind, name, ok := strings.Cut(key, "/")
		if !ok {
			t.Fatalf("malformed CredentialEnv key %q", key)
		}
		found := false
		for _, n := range config.ValidProviderNames[kind] {
			if n == name {
				found = true
			}
		}
		if !found {
			t.Errorf("CredentialEnv names unknown provider %q", key)
		}
	}
}

func TestLoadFromReader_ExampleConfig(t *testing.T) {
	t.Parallel()
	f, err := os.Open(filepath.Join("..", "..", "configs", "voxrelay.example.yaml"))
	if err != nil {
		t.Fatalf("open example: %v", err)
	}
	defer f.Close()
	cfg, err := config.LoadFromReader(f)
	if err != nil {
		t.Fatalf("example config does not load: %v", err)
	}
	if cfg.Providers.TTS.StringOption("format") != "mp3" {
		t.Errorf("tts format = %q", cfg.Providers.TTS.StringOption("format"))
	}
}
