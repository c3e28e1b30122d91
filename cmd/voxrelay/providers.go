package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	anyllmlib "github.com/mozilla-ai/any-llm-go"

	"github.com/MrWong99/voxrelay/internal/config"
	"github.com/MrWong99/voxrelay/pkg/audiostore"
	"github.com/MrWong99/voxrelay/pkg/audiostore/local"
	"github.com/MrWong99/voxrelay/pkg/audiostore/s3"
	"github.com/MrWong99/voxrelay/pkg/provider/llm"
	"github.com/MrWong99/voxrelay/pkg/provider/llm/anyllm"
	oallm "github.com/MrWong99/voxrelay/pkg/provider/llm/openai"
	"github.com/MrWong99/voxrelay/pkg/provider/stt"
	"github.com/MrWong99/voxrelay/pkg/provider/stt/assemblyai"
	"github.com/MrWong99/voxrelay/pkg/provider/stt/deepgram"
	googlestt "github.com/MrWong99/voxrelay/pkg/provider/stt/google"
	oastt "github.com/MrWong99/voxrelay/pkg/provider/stt/openai"
	"github.com/MrWong99/voxrelay/pkg/provider/stt/whisper"
	"github.com/MrWong99/voxrelay/pkg/provider/tts"
	"github.com/MrWong99/voxrelay/pkg/provider/tts/coqui"
	"github.com/MrWong99/voxrelay/pkg/provider/tts/elevenlabs"
	"github.com/MrWong99/voxrelay/pkg/provider/tts/murf"
)

// registerBuiltinProviders wires all built-in provider factories into reg.
// Each factory receives a config.ProviderEntry and constructs the appropriate
// provider from the real implementation packages.
func registerBuiltinProviders(reg *config.Registry) {
	// ── STT ───────────────────────────────────────────────────────────────────

	reg.RegisterSTT("assemblyai", func(entry config.ProviderEntry) (stt.Provider, error) {
		var opts []assemblyai.Option
		if entry.BaseURL != "" {
			opts = append(opts, assemblyai.WithBaseURL(entry.BaseURL))
		}
		if entry.Language != "" {
			opts = append(opts, assemblyai.WithLanguage(entry.Language))
		}
		if entry.Model != "" {
			opts = append(opts, assemblyai.WithSpeechModel(entry.Model))
		}
		if ms := entry.IntOption("poll_interval_ms"); ms > 0 {
			opts = append(opts, assemblyai.WithPollInterval(time.Duration(ms)*time.Millisecond))
		}
		return assemblyai.New(entry.APIKey, opts...)
	})

	reg.RegisterSTT("deepgram", func(entry config.ProviderEntry) (stt.Provider, error) {
		var opts []deepgram.Option
		if entry.Model != "" {
			opts = append(opts, deepgram.WithModel(entry.Model))
		}
		if entry.Language != "" {
			opts = append(opts, deepgram.WithLanguage(entry.Language))
		}
		if entry.BaseURL != "" {
			opts = append(opts, deepgram.WithEndpoint(entry.BaseURL))
		}
		return deepgram.New(entry.APIKey, opts...)
	})

	reg.RegisterSTT("openai", func(entry config.ProviderEntry) (stt.Provider, error) {
		var opts []oastt.Option
		if entry.BaseURL != "" {
			opts = append(opts, oastt.WithBaseURL(entry.BaseURL))
		}
		if entry.Language != "" {
			opts = append(opts, oastt.WithLanguage(entry.Language))
		}
		return oastt.New(entry.APIKey, entry.Model, opts...)
	})

	reg.RegisterSTT("google", func(entry config.ProviderEntry) (stt.Provider, error) {
		var opts []googlestt.Option
		if entry.APIKey != "" {
			opts = append(opts, googlestt.WithAPIKey(entry.APIKey))
		}
		if path := entry.StringOption("credentials_file"); path != "" {
			opts = append(opts, googlestt.WithCredentialsFile(path))
		}
		if entry.BaseURL != "" {
			opts = append(opts, googlestt.WithEndpoint(entry.BaseURL))
		}
		if entry.Language != "" {
			opts = append(opts, googlestt.WithLanguage(entry.Language))
		}
		if entry.Model != "" {
			opts = append(opts, googlestt.WithModel(entry.Model))
		}
		if hz := entry.IntOption("sample_rate"); hz > 0 {
			opts = append(opts, googlestt.WithSampleRate(hz))
		}
		return googlestt.New(context.Background(), opts...)
	})

	reg.RegisterSTT("whisper", func(entry config.ProviderEntry) (stt.Provider, error) {
		var opts []whisper.Option
		if entry.Model != "" {
			opts = append(opts, whisper.WithModel(entry.Model))
		}
		if entry.Language != "" {
			opts = append(opts, whisper.WithLanguage(entry.Language))
		}
		if entry.Timeout > 0 {
			opts = append(opts, whisper.WithTimeout(entry.Timeout))
		}
		return whisper.New(entry.BaseURL, opts...)
	})

	// ── LLM ───────────────────────────────────────────────────────────────────

	// OpenAI goes through the native SDK; the other hosted and local backends
	// share the any-llm pattern: optional APIKey + optional BaseURL.
	reg.RegisterLLM("openai", func(entry config.ProviderEntry) (llm.Provider, error) {
		var opts []oallm.Option
		if entry.BaseURL != "" {
			opts = append(opts, oallm.WithBaseURL(entry.BaseURL))
		}
		if org := entry.StringOption("organization"); org != "" {
			opts = append(opts, oallm.WithOrganization(org))
		}
		if entry.Timeout > 0 {
			opts = append(opts, oallm.WithTimeout(entry.Timeout))
		}
		return oallm.New(entry.APIKey, entry.Model, opts...)
	})

	reg.RegisterLLM("gemini", func(entry config.ProviderEntry) (llm.Provider, error) {
		return anyllm.NewGemini(entry.Model, anyllmOptions(entry)...)
	})

	for _, providerName := range []string{"anthropic", "ollama", "deepseek", "mistral", "groq", "llamacpp", "llamafile"} {
		reg.RegisterLLM(providerName, func(entry config.ProviderEntry) (llm.Provider, error) {
			return anyllm.New(providerName, entry.Model, anyllmOptions(entry)...)
		})
	}

	// ── TTS ───────────────────────────────────────────────────────────────────

	reg.RegisterTTS("murf", func(entry config.ProviderEntry, _ audiostore.Store) (tts.Provider, error) {
		var opts []murf.Option
		if entry.BaseURL != "" {
			opts = append(opts, murf.WithEndpoint(entry.BaseURL))
		}
		if entry.Voice != "" {
			opts = append(opts, murf.WithDefaultVoice(entry.Voice))
		}
		if format := entry.StringOption("format"); format != "" {
			opts = append(opts, murf.WithFormat(format))
		}
		if entry.Timeout > 0 {
			opts = append(opts, murf.WithTimeout(entry.Timeout))
		}
		if entry.ConnectTimeout > 0 {
			opts = append(opts, murf.WithConnectTimeout(entry.ConnectTimeout))
		}
		return murf.New(entry.APIKey, opts...)
	})

	reg.RegisterTTS("elevenlabs", func(entry config.ProviderEntry, store audiostore.Store) (tts.Provider, error) {
		var opts []elevenlabs.Option
		if entry.Model != "" {
			opts = append(opts, elevenlabs.WithModel(entry.Model))
		}
		if outputFmt := entry.StringOption("output_format"); outputFmt != "" {
			opts = append(opts, elevenlabs.WithOutputFormat(outputFmt))
		}
		if entry.Voice != "" {
			opts = append(opts, elevenlabs.WithDefaultVoice(entry.Voice))
		}
		if entry.BaseURL != "" {
			opts = append(opts, elevenlabs.WithBaseURL(entry.BaseURL))
		}
		return elevenlabs.New(entry.APIKey, store, opts...)
	})

	reg.RegisterTTS("coqui", func(entry config.ProviderEntry, store audiostore.Store) (tts.Provider, error) {
		var opts []coqui.Option
		if entry.Language != "" {
			opts = append(opts, coqui.WithLanguage(entry.Language))
		}
		if mode := entry.StringOption("api_mode"); mode != "" {
			opts = append(opts, coqui.WithAPIMode(coqui.APIMode(mode)))
		}
		if entry.Voice != "" {
			opts = append(opts, coqui.WithDefaultVoice(entry.Voice))
		}
		if entry.Timeout > 0 {
			opts = append(opts, coqui.WithTimeout(entry.Timeout))
		}
		return coqui.New(entry.BaseURL, store, opts...)
	})

	for _, kind := range []string{"stt", "llm", "tts"} {
		slog.Debug("registered providers", "kind", kind, "names", reg.Names(kind))
	}
}

func anyllmOptions(entry config.ProviderEntry) []anyllmlib.Option {
	var opts []anyllmlib.Option
	if entry.APIKey != "" {
		opts = append(opts, anyllmlib.WithAPIKey(entry.APIKey))
	}
	if entry.BaseURL != "" {
		opts = append(opts, anyllmlib.WithBaseURL(entry.BaseURL))
	}
	return opts
}

// providers holds the constructed stage providers. An InitErr is the
// construction failure that was replaced by an unconfigured provider; it is
// reported by /readyz and surfaces as the stage's failure on every request.
type providers struct {
	STT     stt.Provider
	LLM     llm.Provider
	TTS     tts.Provider
	STTErr  error
	LLMErr  error
	TTSErr  error
	closers []io.Closer
}

// Close releases providers that hold connections.
func (p *providers) Close() error {
	var errs []error
	for _, c := range p.closers {
		errs = append(errs, c.Close())
	}
	return errors.Join(errs...)
}

// buildProviders instantiates the providers named in cfg using the registry.
// An unknown provider name is a startup error; any other constructor failure,
// typically a missing credential, is deferred to the stage.
func buildProviders(cfg *config.Config, reg *config.Registry, store audiostore.Store) (*providers, error) {
	ps := &providers{}

	sttP, err := reg.CreateSTT(cfg.Providers.STT)
	if errors.Is(err, config.ErrProviderNotRegistered) {
		return nil, fmt.Errorf("create stt provider %q: %w", cfg.Providers.STT.Name, err)
	}
	ps.STT, ps.STTErr = sttP, err
	if err != nil {
		ps.STT = stt.Unconfigured(err)
	}
	logProvider("stt", cfg.Providers.STT, err)

	llmP, err := reg.CreateLLM(cfg.Providers.LLM)
	if errors.Is(err, config.ErrProviderNotRegistered) {
		return nil, fmt.Errorf("create llm provider %q: %w", cfg.Providers.LLM.Name, err)
	}
	ps.LLM, ps.LLMErr = llmP, err
	if err != nil {
		ps.LLM = llm.Unconfigured(err)
	}
	logProvider("llm", cfg.Providers.LLM, err)

	ttsP, err := reg.CreateTTS(cfg.Providers.TTS, store)
	if errors.Is(err, config.ErrProviderNotRegistered) {
		return nil, fmt.Errorf("create tts provider %q: %w", cfg.Providers.TTS.Name, err)
	}
	ps.TTS, ps.TTSErr = ttsP, err
	if err != nil {
		ps.TTS = tts.Unconfigured(err)
	}
	logProvider("tts", cfg.Providers.TTS, err)

	for _, p := range []any{ps.STT, ps.LLM, ps.TTS} {
		if c, ok := p.(io.Closer); ok {
			ps.closers = append(ps.closers, c)
		}
	}
	return ps, nil
}

func logProvider(kind string, entry config.ProviderEntry, err error) {
	if err != nil {
		slog.Warn("provider unavailable, requests will fail at this stage",
			"kind", kind, "name", entry.Name, "err", err)
		return
	}
	slog.Info("provider created", "kind", kind, "name", entry.Name, "model", entry.Model)
}

// buildAudioStore creates the store byte-returning TTS providers publish to.
func buildAudioStore(ctx context.Context, cfg config.StorageConfig) (audiostore.Store, error) {
	switch cfg.Backend {
	case config.StorageS3:
		st, err := s3.New(ctx, s3.Config{
			Endpoint:      cfg.S3.Endpoint,
			AccessKey:     cfg.S3.AccessKey,
			SecretKey:     cfg.S3.SecretKey,
			Bucket:        cfg.S3.Bucket,
			Region:        cfg.S3.Region,
			Insecure:      cfg.S3.Insecure,
			Prefix:        cfg.S3.Prefix,
			PublicBaseURL: cfg.S3.PublicBaseURL,
			PresignTTL:    cfg.S3.PresignTTL,
		})
		if err != nil {
			return nil, err
		}
		return st, nil
	default:
		st, err := local.New(cfg.Local.Dir, cfg.Local.BaseURL)
		if err != nil {
			return nil, err
		}
		return st, nil
	}
}
