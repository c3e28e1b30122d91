// Package murf provides a TTS provider backed by the Murf speech generation
// REST API. Murf hosts the rendered file and returns its URL, so no audio
// store is involved.
package murf

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"time"

	"github.com/MrWong99/voxrelay/pkg/provider/tts"
	"github.com/MrWong99/voxrelay/pkg/types"
)

const (
	defaultEndpoint       = "https://api.murf.ai/v1/speech/generate"
	defaultVoice          = "en-US-charles"
	defaultFormat         = "mp3"
	defaultTimeout        = 120 * time.Second
	defaultConnectTimeout = 10 * time.Second

	// maxDetailBody caps how much of an error response body ends up in the
	// returned error.
	maxDetailBody = 200
)

// Option is a functional option for configuring the Murf Provider.
type Option func(*Provider)

// WithEndpoint overrides the speech generation endpoint.
func WithEndpoint(u string) Option {
	return func(p *Provider) {
		p.endpoint = u
	}
}

// WithDefaultVoice sets the voice used when Synthesize receives an empty voice ID.
func WithDefaultVoice(id string) Option {
	return func(p *Provider) {
		if id != "" {
			p.voice = id
		}
	}
}

// WithFormat sets the requested audio format (default "mp3").
func WithFormat(format string) Option {
	return func(p *Provider) {
		if format != "" {
			p.format = format
		}
	}
}

// WithTimeout bounds a whole synthesis request (default 120s).
func WithTimeout(d time.Duration) Option {
	return func(p *Provider) {
		if d > 0 {
			p.timeout = d
		}
	}
}

// WithConnectTimeout bounds establishing the TCP connection (default 10s).
func WithConnectTimeout(d time.Duration) Option {
	return func(p *Provider) {
		if d > 0 {
			p.connectTimeout = d
		}
	}
}

// Provider implements tts.Provider using Murf.
type Provider struct {
	apiKey         string
	endpoint       string
	voice          string
	format         string
	timeout        time.Duration
	connectTimeout time.Duration
	client         *http.Client
}

// New creates a Murf Provider. apiKey must be non-empty.
func New(apiKey string, opts ...Option) (*Provider, error) {
	if apiKey == "" {
		return nil, errors.New("murf: apiKey must not be empty")
	}
	p := &Provider{
		apiKey:         apiKey,
		endpoint:       defaultEndpoint,
		voice:          defaultVoice,
		format:         defaultFormat,
		timeout:        defaultTimeout,
		connectTimeout: defaultConnectTimeout,
	}
	for _, o := range opts {
		o(p)
	}

	transport := http.DefaultTransport.(*http.Transport).Clone()
	transport.DialContext = (&net.Dialer{Timeout: p.connectTimeout, KeepAlive: 30 * time.Second}).DialContext
	transport.TLSHandshakeTimeout = p.connectTimeout
	p.client = &http.Client{Timeout: p.timeout, Transport: transport}
	return p, nil
}

type generateRequest struct {
	Text    string `json:"text"`
	VoiceID string `json:"voiceId"`
	Format  string `json:"format"`
}

type generateResponse struct {
	AudioFile string `json:"audioFile"`
}

// Synthesize implements tts.Provider. The returned URL is Murf's audioFile
// field, passed through unchanged.
func (p *Provider) Synthesize(ctx context.Context, text string, voice types.VoiceProfile) (string, error) {
	voiceID := voice.ID
	if voiceID == "" {
		voiceID = p.voice
	}
	payload, err := json.Marshal(generateRequest{Text: text, VoiceID: voiceID, Format: p.format})
	if err != nil {
		return "", fmt.Errorf("murf: encode request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.endpoint, bytes.NewReader(payload))
	if err != nil {
		return "", fmt.Errorf("murf: create request: %w", err)
	}
	req.Header.Set("api-key", p.apiKey)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	resp, err := p.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("murf: request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("murf: read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("murf: API error %d: %s", resp.StatusCode, truncate(string(body), maxDetailBody))
	}

	var out generateResponse
	if err := json.Unmarshal(body, &out); err != nil {
		return "", fmt.Errorf("murf: decode response: %w", err)
	}
	if out.AudioFile == "" {
		return "", errors.New("murf: response missing audioFile")
	}
	return out.AudioFile, nil
}

// truncate returns at most n runes of s.
func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}

var _ tts.Provider = (*Provider)(nil)
