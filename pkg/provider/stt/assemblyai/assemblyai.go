// Package assemblyai provides an STT provider backed by the AssemblyAI v2 REST
// API. A transcription is three calls: the audio is uploaded, a transcript job
// is created for the upload URL, and the job is polled until it completes.
package assemblyai

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/MrWong99/voxrelay/pkg/provider/stt"
	"github.com/MrWong99/voxrelay/pkg/types"
)

const (
	defaultBaseURL      = "https://api.assemblyai.com"
	defaultPollInterval = time.Second
)

// Transcript job states reported by AssemblyAI.
const (
	statusQueued     = "queued"
	statusProcessing = "processing"
	statusCompleted  = "completed"
	statusError      = "error"
)

// Option is a functional option for configuring the AssemblyAI Provider.
type Option func(*Provider)

// WithBaseURL overrides the API base URL (default https://api.assemblyai.com).
func WithBaseURL(u string) Option {
	return func(p *Provider) {
		p.baseURL = strings.TrimRight(u, "/")
	}
}

// WithLanguage sets the language code of the audio (e.g. "en", "de").
// Empty lets AssemblyAI use its default.
func WithLanguage(lang string) Option {
	return func(p *Provider) {
		p.language = lang
	}
}

// WithSpeechModel selects an AssemblyAI speech model (e.g. "best", "nano").
func WithSpeechModel(model string) Option {
	return func(p *Provider) {
		p.speechModel = model
	}
}

// WithPollInterval sets the delay between transcript status checks.
func WithPollInterval(d time.Duration) Option {
	return func(p *Provider) {
		if d > 0 {
			p.pollInterval = d
		}
	}
}

// WithHTTPClient sets the HTTP client used for all requests.
func WithHTTPClient(c *http.Client) Option {
	return func(p *Provider) {
		p.client = c
	}
}

// Provider implements stt.Provider using AssemblyAI.
type Provider struct {
	apiKey       string
	baseURL      string
	language     string
	speechModel  string
	pollInterval time.Duration
	client       *http.Client
}

// New creates a new AssemblyAI Provider. apiKey must be non-empty.
func New(apiKey string, opts ...Option) (*Provider, error) {
	if apiKey == "" {
		return nil, errors.New("assemblyai: apiKey must not be empty")
	}
	p := &Provider{
		apiKey:       apiKey,
		baseURL:      defaultBaseURL,
		pollInterval: defaultPollInterval,
		client:       http.DefaultClient,
	}
	for _, o := range opts {
		o(p)
	}
	return p, nil
}

type uploadResponse struct {
	UploadURL string `json:"upload_url"`
}

type transcriptRequest struct {
	AudioURL     string `json:"audio_url"`
	LanguageCode string `json:"language_code,omitempty"`
	SpeechModel  string `json:"speech_model,omitempty"`
}

type transcriptResponse struct {
	ID     string  `json:"id"`
	Status string  `json:"status"`
	Text   *string `json:"text"`
	Error  string  `json:"error"`
}

// Transcribe uploads audio, starts a transcript job and waits for its result.
// A completed job without text yields an empty string; callers decide whether
// that is a failure.
func (p *Provider) Transcribe(ctx context.Context, audio types.Audio) (string, error) {
	uploadURL, err := p.upload(ctx, audio.Data)
	if err != nil {
		return "", err
	}

	job, err := p.createTranscript(ctx, uploadURL)
	if err != nil {
		return "", err
	}

	ticker := time.NewTicker(p.pollInterval)
	defer ticker.Stop()
	for {
		switch job.Status {
		case statusCompleted:
			if job.Text == nil {
				return "", nil
			}
			return *job.Text, nil
		case statusError:
			return "", fmt.Errorf("assemblyai: transcript %s failed: %s", job.ID, job.Error)
		case statusQueued, statusProcessing:
		default:
			return "", fmt.Errorf("assemblyai: transcript %s: unexpected status %q", job.ID, job.Status)
		}

		select {
		case <-ctx.Done():
			return "", fmt.Errorf("assemblyai: wait for transcript %s: %w", job.ID, ctx.Err())
		case <-ticker.C:
		}

		job, err = p.getTranscript(ctx, job.ID)
		if err != nil {
			return "", err
		}
	}
}

func (p *Provider) upload(ctx context.Context, data []byte) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.baseURL+"/v2/upload", bytes.NewReader(data))
	if err != nil {
		return "", fmt.Errorf("assemblyai: upload: %w", err)
	}
	req.Header.Set("Content-Type", "application/octet-stream")

	var out uploadResponse
	if err := p.do(req, &out); err != nil {
		return "", fmt.Errorf("assemblyai: upload: %w", err)
	}
	if out.UploadURL == "" {
		return "", errors.New("assemblyai: upload: response missing upload_url")
	}
	return out.UploadURL, nil
}

func (p *Provider) createTranscript(ctx context.Context, audioURL string) (transcriptResponse, error) {
	body, err := json.Marshal(transcriptRequest{
		AudioURL:     audioURL,
		LanguageCode: p.language,
		SpeechModel:  p.speechModel,
	})
	if err != nil {
		return transcriptResponse{}, fmt.Errorf("assemblyai: encode transcript request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.baseURL+"/v2/transcript", bytes.NewReader(body))
	if err != nil {
		return transcriptResponse{}, fmt.Errorf("assemblyai: create transcript: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	var out transcriptResponse
	if err := p.do(req, &out); err != nil {
		return transcriptResponse{}, fmt.Errorf("assemblyai: create transcript: %w", err)
	}
	return out, nil
}

func (p *Provider) getTranscript(ctx context.Context, id string) (transcriptResponse, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.baseURL+"/v2/transcript/"+id, nil)
	if err != nil {
		return transcriptResponse{}, fmt.Errorf("assemblyai: get transcript: %w", err)
	}
	var out transcriptResponse
	if err := p.do(req, &out); err != nil {
		return transcriptResponse{}, fmt.Errorf("assemblyai: get transcript %s: %w", id, err)
	}
	return out, nil
}

// do authenticates req, executes it and decodes a JSON body into out.
func (p *Provider) do(req *http.Request, out any) error {
	req.Header.Set("Authorization", p.apiKey)

	resp, err := p.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("status %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}
	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

var _ stt.Provider = (*Provider)(nil)
