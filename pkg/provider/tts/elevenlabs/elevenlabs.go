// Package elevenlabs provides an ElevenLabs-backed TTS provider. It implements
// the tts.Provider interface over the REST API and, optionally, over the
// stream-input WebSocket API (see [WithTransport]).
package elevenlabs

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"net/url"
	"strings"

	"github.com/MrWong99/soundboard/pkg/provider/tts"
)

// Compile-time interface assertion.
var _ tts.Provider = (*Provider)(nil)

const (
	defaultBaseURL   = "https://api.elevenlabs.io"
	voicesPath       = "/v1/voices"
	ttsPathFmt       = "/v1/text-to-speech/%s"
	defaultModel     = "eleven_multilingual_v2"
	defaultOutputFmt = "mp3_44100_128"

	// maxErrorBody bounds how much of an error response is kept for diagnostics.
	maxErrorBody = 64 << 10
)

// Transport selects how synthesis requests reach ElevenLabs.
type Transport string

const (
	// TransportHTTP posts one request per utterance and reads the whole body. Default.
	TransportHTTP Transport = "http"

	// TransportWebSocket uses the stream-input socket and concatenates the audio chunks.
	TransportWebSocket Transport = "websocket"
)

// IsValid reports whether t is a recognised transport.
func (t Transport) IsValid() bool {
	return t == TransportHTTP || t == TransportWebSocket
}

// APIError is returned when ElevenLabs answers with a non-success status.
// Body holds the upstream diagnostic text.
type APIError struct {
	StatusCode int
	Body       string
}

// Error implements error.
func (e *APIError) Error() string {
	if e.StatusCode == 0 {
		return fmt.Sprintf("elevenlabs: upstream error: %s", e.Body)
	}
	return fmt.Sprintf("elevenlabs: upstream status %d: %s", e.StatusCode, e.Body)
}

// Option is a functional option for configuring the ElevenLabs Provider.
type Option func(*Provider)

// WithModel sets the ElevenLabs model ID (e.g., "eleven_multilingual_v2").
func WithModel(model string) Option {
	return func(p *Provider) {
		p.model = model
	}
}

// WithOutputFormat sets the audio output format (e.g., "mp3_44100_128").
func WithOutputFormat(format string) Option {
	return func(p *Provider) {
		p.outputFormat = format
	}
}

// WithBaseURL overrides the API origin. Used by tests and proxies.
func WithBaseURL(baseURL string) Option {
	return func(p *Provider) {
		p.baseURL = strings.TrimRight(baseURL, "/")
	}
}

// WithHTTPClient replaces the HTTP client used for REST calls.
func WithHTTPClient(c *http.Client) Option {
	return func(p *Provider) {
		p.httpClient = c
	}
}

// WithTransport selects the synthesis transport. Voice listing always uses REST.
func WithTransport(t Transport) Option {
	return func(p *Provider) {
		p.transport = t
	}
}

// Provider implements tts.Provider backed by the ElevenLabs API.
type Provider struct {
	apiKey       string
	model        string
	outputFormat string
	baseURL      string
	transport    Transport
	httpClient   *http.Client
}

// New creates a new ElevenLabs Provider. apiKey must be non-empty.
func New(apiKey string, opts ...Option) (*Provider, error) {
	if apiKey == "" {
		return nil, errors.New("elevenlabs: apiKey must not be empty")
	}
	p := &Provider{
		apiKey:       apiKey,
		model:        defaultModel,
		outputFormat: defaultOutputFmt,
		baseURL:      defaultBaseURL,
		transport:    TransportHTTP,
		httpClient:   &http.Client{},
	}
	for _, o := range opts {
		o(p)
	}
	if !p.transport.IsValid() {
		return nil, fmt.Errorf("elevenlabs: unknown transport %q", p.transport)
	}
	if headerless(p.outputFormat) {
		return nil, fmt.Errorf("elevenlabs: output format %q has no container and cannot be transcoded", p.outputFormat)
	}
	return p, nil
}

// ---- Synthesize ----

// voiceSettings mirrors the ElevenLabs voice_settings object.
type voiceSettings struct {
	Stability       float64 `json:"stability"`
	SimilarityBoost float64 `json:"similarity_boost"`
}

// synthesisRequest is the JSON body of POST /v1/text-to-speech/{voice_id}.
type synthesisRequest struct {
	ModelID       string        `json:"model_id"`
	Text          string        `json:"text"`
	VoiceSettings voiceSettings `json:"voice_settings"`
}

// Synthesize renders req.Text with the requested voice. Non-success responses
// are returned as *[APIError].
func (p *Provider) Synthesize(ctx context.Context, req tts.Request) (*tts.Audio, error) {
	if req.VoiceID == "" {
		return nil, errors.New("elevenlabs: voice ID must not be empty")
	}
	if p.transport == TransportWebSocket {
		return p.synthesizeStream(ctx, req)
	}
	return p.synthesizeHTTP(ctx, req)
}

func (p *Provider) synthesizeHTTP(ctx context.Context, req tts.Request) (*tts.Audio, error) {
	body, err := buildSynthesisBody(p.model, req)
	if err != nil {
		return nil, fmt.Errorf("elevenlabs: marshal synthesis request: %w", err)
	}

	endpoint := p.baseURL + fmt.Sprintf(ttsPathFmt, url.PathEscape(req.VoiceID))
	if p.outputFormat != "" {
		endpoint += "?" + url.Values{"output_format": {p.outputFormat}}.Encode()
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("elevenlabs: create synthesis request: %w", err)
	}
	httpReq.Header.Set("xi-api-key", p.apiKey)
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "audio/mpeg")

	resp, err := p.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("elevenlabs: synthesis HTTP: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		diag, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return nil, &APIError{StatusCode: resp.StatusCode, Body: strings.TrimSpace(string(diag))}
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("elevenlabs: read synthesis response: %w", err)
	}

	contentType := resp.Header.Get("Content-Type")
	if contentType == "" {
		contentType = contentTypeForFormat(p.outputFormat)
	}
	return &tts.Audio{
		Data:        data,
		ContentType: contentType,
		Ext:         extForContentType(contentType),
	}, nil
}

// buildSynthesisBody constructs the JSON body for a REST synthesis call.
func buildSynthesisBody(model string, req tts.Request) ([]byte, error) {
	return json.Marshal(synthesisRequest{
		ModelID: model,
		Text:    req.Text,
		VoiceSettings: voiceSettings{
			Stability:       req.Settings.Stability,
			SimilarityBoost: req.Settings.SimilarityBoost,
		},
	})
}

// ---- ListVoices ----

// voicesResponse is the top-level response from GET /v1/voices.
type voicesResponse struct {
	Voices []elevenLabsVoice `json:"voices"`
}

// elevenLabsVoice is a single voice entry from the ElevenLabs API.
type elevenLabsVoice struct {
	VoiceID  string            `json:"voice_id"`
	Name     string            `json:"name"`
	Category string            `json:"category"`
	Labels   map[string]string `json:"labels"`
}

// ListVoices returns all voices available from ElevenLabs for the configured
// API key, premade ones included.
func (p *Provider) ListVoices(ctx context.Context) ([]tts.VoiceProfile, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.baseURL+voicesPath, nil)
	if err != nil {
		return nil, fmt.Errorf("elevenlabs: list voices: %w", err)
	}
	req.Header.Set("xi-api-key", p.apiKey)
	req.Header.Set("Accept", "application/json")

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("elevenlabs: list voices HTTP: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		diag, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return nil, fmt.Errorf("elevenlabs: list voices: %w", &APIError{StatusCode: resp.StatusCode, Body: strings.TrimSpace(string(diag))})
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("elevenlabs: list voices read: %w", err)
	}
	profiles, err := parseVoicesResponse(data)
	if err != nil {
		return nil, fmt.Errorf("elevenlabs: list voices decode: %w", err)
	}
	return profiles, nil
}

// ---- helpers ----

// parseVoicesResponse parses a raw JSON byte slice (matching the ElevenLabs
// /v1/voices response) into a slice of VoiceProfile values.
func parseVoicesResponse(data []byte) ([]tts.VoiceProfile, error) {
	var vr voicesResponse
	if err := json.Unmarshal(data, &vr); err != nil {
		return nil, err
	}
	profiles := make([]tts.VoiceProfile, 0, len(vr.Voices))
	for _, v := range vr.Voices {
		labels := make(map[string]string, len(v.Labels))
		for k, val := range v.Labels {
			labels[k] = val
		}
		profiles = append(profiles, tts.VoiceProfile{
			ID:       v.VoiceID,
			Name:     v.Name,
			Category: v.Category,
			Provider: "elevenlabs",
			Labels:   labels,
		})
	}
	return profiles, nil
}

// headerless reports whether format yields raw samples without a container,
// which a transcoder cannot probe.
func headerless(format string) bool {
	return strings.HasPrefix(format, "pcm") || strings.HasPrefix(format, "ulaw")
}

// contentTypeForFormat maps an ElevenLabs output_format to its MIME type.
func contentTypeForFormat(format string) string {
	switch {
	case strings.HasPrefix(format, "mp3"):
		return "audio/mpeg"
	case strings.HasPrefix(format, "pcm"):
		return "audio/pcm"
	case strings.HasPrefix(format, "ulaw"):
		return "audio/basic"
	case strings.HasPrefix(format, "opus"):
		return "audio/opus"
	default:
		return "application/octet-stream"
	}
}

// extForContentType returns the file extension the speech slot uses for a
// provider MIME type. MPEG audio keeps the historical "mpg" extension.
func extForContentType(contentType string) string {
	mt, _, err := mime.ParseMediaType(contentType)
	if err != nil {
		mt = contentType
	}
	switch mt {
	case "audio/mpeg", "audio/mp3":
		return "mpg"
	case "audio/wav", "audio/x-wav", "audio/wave":
		return "wav"
	case "audio/ogg":
		return "ogg"
	case "audio/opus":
		return "opus"
	case "audio/pcm":
		return "pcm"
	case "audio/basic":
		return "ulaw"
	default:
		return "bin"
	}
}
