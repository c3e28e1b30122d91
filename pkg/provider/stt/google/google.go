// Package google provides an STT provider backed by Google Cloud
// Speech-to-Text (v1 synchronous Recognize). Authentication uses an API key
// when one is configured and Application Default Credentials otherwise.
package google

import (
	"context"
	"errors"
	"fmt"
	"strings"

	speech "cloud.google.com/go/speech/apiv1"
	"cloud.google.com/go/speech/apiv1/speechpb"
	"google.golang.org/api/option"

	"github.com/MrWong99/voxrelay/pkg/provider/stt"
	"github.com/MrWong99/voxrelay/pkg/types"
)

const (
	defaultLanguage   = "en-US"
	defaultSampleRate = 48000
)

// Option is a functional option for configuring the Google Provider.
type Option func(*config)

type config struct {
	apiKey          string
	credentialsFile string
	endpoint        string
	language        string
	model           string
	sampleRate      int32
}

// WithAPIKey authenticates with an API key instead of ADC.
func WithAPIKey(key string) Option {
	return func(c *config) {
		c.apiKey = key
	}
}

// WithCredentialsFile authenticates with a service-account JSON file.
func WithCredentialsFile(path string) Option {
	return func(c *config) {
		c.credentialsFile = path
	}
}

// WithEndpoint overrides the Speech API endpoint (e.g. a regional endpoint).
func WithEndpoint(endpoint string) Option {
	return func(c *config) {
		c.endpoint = endpoint
	}
}

// WithLanguage sets the BCP-47 language code (default "en-US").
func WithLanguage(lang string) Option {
	return func(c *config) {
		c.language = lang
	}
}

// WithModel selects a recognition model (e.g. "latest_short").
func WithModel(model string) Option {
	return func(c *config) {
		c.model = model
	}
}

// WithSampleRate sets the sample rate reported for Opus containers, which do
// not carry it in a header Google reads (default 48000).
func WithSampleRate(hz int) Option {
	return func(c *config) {
		c.sampleRate = int32(hz)
	}
}

// recognizeFunc is the subset of *speech.Client the provider needs.
type recognizeFunc func(ctx context.Context, req *speechpb.RecognizeRequest) (*speechpb.RecognizeResponse, error)

// Provider implements stt.Provider using Google Cloud Speech-to-Text.
type Provider struct {
	client    *speech.Client
	recognize recognizeFunc
	cfg       config
}

// New dials the Speech API. It fails when no credentials can be found.
func New(ctx context.Context, opts ...Option) (*Provider, error) {
	cfg := config{language: defaultLanguage, sampleRate: defaultSampleRate}
	for _, o := range opts {
		o(&cfg)
	}

	var clientOpts []option.ClientOption
	if cfg.apiKey != "" {
		clientOpts = append(clientOpts, option.WithAPIKey(cfg.apiKey))
	}
	if cfg.credentialsFile != "" {
		clientOpts = append(clientOpts, option.WithCredentialsFile(cfg.credentialsFile))
	}
	if cfg.endpoint != "" {
		clientOpts = append(clientOpts, option.WithEndpoint(cfg.endpoint))
	}

	client, err := speech.NewClient(ctx, clientOpts...)
	if err != nil {
		return nil, fmt.Errorf("google: create speech client: %w", err)
	}
	return &Provider{
		client: client,
		recognize: func(ctx context.Context, req *speechpb.RecognizeRequest) (*speechpb.RecognizeResponse, error) {
			return client.Recognize(ctx, req)
		},
		cfg: cfg,
	}, nil
}

// Close releases the underlying gRPC connection.
func (p *Provider) Close() error {
	if p.client == nil {
		return nil
	}
	return p.client.Close()
}

// Transcribe sends the audio inline and joins the top alternative of every result.
func (p *Provider) Transcribe(ctx context.Context, audio types.Audio) (string, error) {
	if p.recognize == nil {
		return "", errors.New("google: provider not initialised")
	}

	resp, err := p.recognize(ctx, p.buildRequest(audio))
	if err != nil {
		return "", fmt.Errorf("google: recognize: %w", err)
	}

	parts := make([]string, 0, len(resp.GetResults()))
	for _, r := range resp.GetResults() {
		alts := r.GetAlternatives()
		if len(alts) == 0 {
			continue
		}
		if t := strings.TrimSpace(alts[0].GetTranscript()); t != "" {
			parts = append(parts, t)
		}
	}
	return strings.Join(parts, " "), nil
}

func (p *Provider) buildRequest(audio types.Audio) *speechpb.RecognizeRequest {
	enc := encodingFor(audio.ContentType)
	rc := &speechpb.RecognitionConfig{
		Encoding:                   enc,
		LanguageCode:               p.cfg.language,
		Model:                      p.cfg.model,
		EnableAutomaticPunctuation: true,
	}
	if enc == speechpb.RecognitionConfig_OGG_OPUS || enc == speechpb.RecognitionConfig_WEBM_OPUS {
		rc.SampleRateHertz = p.cfg.sampleRate
	}
	return &speechpb.RecognizeRequest{
		Config: rc,
		Audio: &speechpb.RecognitionAudio{
			AudioSource: &speechpb.RecognitionAudio_Content{Content: audio.Data},
		},
	}
}

// encodingFor maps an upload MIME type to a Speech encoding. WAV and FLAC
// carry their own header, so they are left unspecified.
func encodingFor(contentType string) speechpb.RecognitionConfig_AudioEncoding {
	mt, _, _ := strings.Cut(strings.ToLower(contentType), ";")
	switch strings.TrimSpace(mt) {
	case "audio/webm", "video/webm":
		return speechpb.RecognitionConfig_WEBM_OPUS
	case "audio/ogg", "audio/opus":
		return speechpb.RecognitionConfig_OGG_OPUS
	case "audio/l16", "audio/pcm":
		return speechpb.RecognitionConfig_LINEAR16
	case "audio/basic", "audio/mulaw":
		return speechpb.RecognitionConfig_MULAW
	default:
		return speechpb.RecognitionConfig_ENCODING_UNSPECIFIED
	}
}

var _ stt.Provider = (*Provider)(nil)
