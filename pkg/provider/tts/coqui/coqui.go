// Package coqui implements [tts.Provider] against a self-hosted Coqui TTS
// server. It is the offline alternative to ElevenLabs: the server returns a
// WAV file per utterance, which the speech pipeline transcodes like any other
// clip.
//
// Two server flavours are supported. [APIModeStandard] talks to the stock
// "tts-server" (GET /api/tts, voices from GET /details); [APIModeXTTS] talks
// to the XTTS v2 API server (POST /tts_to_audio/, voices from
// GET /studio_speakers).
package coqui

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"slices"
	"strings"
	"time"

	"github.com/MrWong99/soundboard/pkg/provider/tts"
)

var _ tts.Provider = (*Provider)(nil)

const (
	defaultLanguage = "en"
	defaultTimeout  = 30 * time.Second
	maxErrorBody    = 64 << 10
)

// APIMode selects the server flavour.
type APIMode string

const (
	APIModeStandard APIMode = "standard"
	APIModeXTTS     APIMode = "xtts"
)

// StatusError reports a non-200 answer from the server. Body holds the
// server's diagnostic text.
type StatusError struct {
	Method     string
	Path       string
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	msg := fmt.Sprintf("coqui: %s %s: status %d", e.Method, e.Path, e.StatusCode)
	if e.Body != "" {
		msg += ": " + e.Body
	}
	return msg
}

// Option configures a [Provider].
type Option func(*Provider)

// WithLanguage sets the language code sent with every request. Default "en".
func WithLanguage(lang string) Option {
	return func(p *Provider) { p.language = lang }
}

// WithTimeout sets the HTTP timeout of a single request. Default 30s.
func WithTimeout(d time.Duration) Option {
	return func(p *Provider) { p.client.Timeout = d }
}

// WithAPIMode selects the server flavour. Default [APIModeStandard].
func WithAPIMode(mode APIMode) Option {
	return func(p *Provider) { p.mode = mode }
}

// WithHTTPClient replaces the HTTP client, e.g. to add a transport.
func WithHTTPClient(c *http.Client) Option {
	return func(p *Provider) { p.client = c }
}

// Provider is a Coqui TTS client. It is safe for concurrent use.
type Provider struct {
	baseURL  string
	language string
	mode     APIMode
	client   *http.Client
	api      flavour
}

// New returns a Provider for the server at baseURL, e.g. "http://localhost:5002".
func New(baseURL string, opts ...Option) (*Provider, error) {
	if baseURL == "" {
		return nil, errors.New("coqui: base URL must not be empty")
	}
	p := &Provider{
		baseURL:  strings.TrimRight(baseURL, "/"),
		language: defaultLanguage,
		mode:     APIModeStandard,
		client:   &http.Client{Timeout: defaultTimeout},
	}
	for _, o := range opts {
		o(p)
	}
	switch p.mode {
	case APIModeStandard:
		p.api = standard{}
	case APIModeXTTS:
		p.api = xtts{}
	default:
		return nil, fmt.Errorf("coqui: unknown API mode %q", p.mode)
	}
	return p, nil
}

// Synthesize renders req.Text and returns the server's WAV file. Coqui has no
// notion of stability or similarity, so req.Settings is ignored.
func (p *Provider) Synthesize(ctx context.Context, req tts.Request) (*tts.Audio, error) {
	hreq, err := p.api.synthesis(ctx, p.baseURL, p.language, req)
	if err != nil {
		return nil, err
	}
	hreq.Header.Set("Accept", "audio/wav")

	body, err := p.do(hreq)
	if err != nil {
		return nil, err
	}
	if !isWAV(body) {
		return nil, fmt.Errorf("coqui: %s %s: response is not a RIFF/WAVE file (%d bytes)", hreq.Method, hreq.URL.Path, len(body))
	}
	return &tts.Audio{Data: body, ContentType: "audio/wav", Ext: "wav"}, nil
}

// ListVoices returns the speakers of the loaded model, sorted by name.
func (p *Provider) ListVoices(ctx context.Context) ([]tts.VoiceProfile, error) {
	hreq, err := http.NewRequestWithContext(ctx, http.MethodGet, p.baseURL+p.api.voicesPath(), nil)
	if err != nil {
		return nil, fmt.Errorf("coqui: list voices: %w", err)
	}
	hreq.Header.Set("Accept", "application/json")

	body, err := p.do(hreq)
	if err != nil {
		return nil, fmt.Errorf("coqui: list voices: %w", err)
	}
	voices, err := p.api.voices(body)
	if err != nil {
		return nil, fmt.Errorf("coqui: list voices: decode %s: %w", hreq.URL.Path, err)
	}
	slices.SortFunc(voices, func(a, b tts.VoiceProfile) int { return strings.Compare(a.Name, b.Name) })
	for i := range voices {
		voices[i].Provider = "coqui"
	}
	return voices, nil
}

// do sends req and returns the body of a 200 response.
func (p *Provider) do(req *http.Request) ([]byte, error) {
	resp, err := p.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("coqui: %s %s: %w", req.Method, req.URL.Path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		diag, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return nil, &StatusError{
			Method:     req.Method,
			Path:       req.URL.Path,
			StatusCode: resp.StatusCode,
			Body:       strings.TrimSpace(string(diag)),
		}
	}
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("coqui: read %s response: %w", req.URL.Path, err)
	}
	return body, nil
}

// isWAV checks the RIFF/WAVE magic. ffmpeg validates the rest.
func isWAV(b []byte) bool {
	return len(b) >= 12 && string(b[0:4]) == "RIFF" && string(b[8:12]) == "WAVE"
}

// flavour is one server API.
type flavour interface {
	synthesis(ctx context.Context, baseURL, language string, req tts.Request) (*http.Request, error)
	voicesPath() string
	voices(body []byte) ([]tts.VoiceProfile, error)
}

// standard is the stock Coqui tts-server.
type standard struct{}

func (standard) synthesis(ctx context.Context, baseURL, language string, req tts.Request) (*http.Request, error) {
	q := url.Values{"text": {req.Text}}
	if req.VoiceID != "" {
		q.Set("speaker_id", req.VoiceID)
	}
	if language != "" {
		q.Set("language_id", language)
	}
	hreq, err := http.NewRequestWithContext(ctx, http.MethodGet, baseURL+"/api/tts?"+q.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("coqui: build synthesis request: %w", err)
	}
	return hreq, nil
}

func (standard) voicesPath() string { return "/details" }

// voices maps the model's speakers to profiles. A single-speaker model yields
// one profile named after the model with an empty ID, which /api/tts accepts.
func (standard) voices(body []byte) ([]tts.VoiceProfile, error) {
	var details struct {
		ModelName string   `json:"model_name"`
		Speakers  []string `json:"speakers"`
	}
	if err := json.Unmarshal(body, &details); err != nil {
		return nil, err
	}
	labels := func() map[string]string { return map[string]string{"model_name": details.ModelName} }

	if len(details.Speakers) == 0 {
		name := details.ModelName
		if name == "" {
			name = "default"
		}
		return []tts.VoiceProfile{{Name: name, Category: "single-speaker", Labels: labels()}}, nil
	}
	out := make([]tts.VoiceProfile, 0, len(details.Speakers))
	for _, s := range details.Speakers {
		out = append(out, tts.VoiceProfile{ID: s, Name: s, Category: "speaker", Labels: labels()})
	}
	return out, nil
}

// xtts is the XTTS v2 API server.
type xtts struct{}

func (xtts) synthesis(ctx context.Context, baseURL, language string, req tts.Request) (*http.Request, error) {
	if req.VoiceID == "" {
		return nil, errors.New("coqui: xtts synthesis needs a speaker")
	}
	b, err := json.Marshal(struct {
		Text       string `json:"text"`
		SpeakerWav string `json:"speaker_wav"`
		Language   string `json:"language"`
	}{req.Text, req.VoiceID, language})
	if err != nil {
		return nil, fmt.Errorf("coqui: encode synthesis request: %w", err)
	}
	hreq, err := http.NewRequestWithContext(ctx, http.MethodPost, baseURL+"/tts_to_audio/", bytes.NewReader(b))
	if err != nil {
		return nil, fmt.Errorf("coqui: build synthesis request: %w", err)
	}
	hreq.Header.Set("Content-Type", "application/json")
	return hreq, nil
}

func (xtts) voicesPath() string { return "/studio_speakers" }

// voices lists the keys of the studio speaker map; the values are speaker
// embeddings the bot has no use for.
func (xtts) voices(body []byte) ([]tts.VoiceProfile, error) {
	var speakers map[string]json.RawMessage
	if err := json.Unmarshal(body, &speakers); err != nil {
		return nil, err
	}
	out := make([]tts.VoiceProfile, 0, len(speakers))
	for name := range speakers {
		out = append(out, tts.VoiceProfile{ID: name, Name: name, Category: "studio"})
	}
	return out, nil
}
