package elevenlabs

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"net/url"
	"strings"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"

	"github.com/MrWong99/soundboard/pkg/provider/tts"
)

const (
	streamPathFmt = "/v1/text-to-speech/%s/stream-input"

	// streamReadLimit bounds a single socket message; audio chunks arrive base64-encoded.
	streamReadLimit = 4 << 20
)

// ---- WebSocket message types ----

// textMessage is the JSON payload sent to ElevenLabs for each text fragment.
type textMessage struct {
	Text          string         `json:"text"`
	VoiceSettings *voiceSettings `json:"voice_settings,omitempty"`
}

// boiMessage is used for the initial "begin of input" handshake.
type boiMessage struct {
	Text          string         `json:"text"`
	VoiceSettings *voiceSettings `json:"voice_settings,omitempty"`
	XiAPIKey      string         `json:"xi_api_key"`
}

// audioResponse is the JSON message received from ElevenLabs over the WebSocket.
type audioResponse struct {
	Audio   string `json:"audio"` // base64-encoded audio in the requested output format
	IsFinal bool   `json:"isFinal"`
	Message string `json:"message,omitempty"` // error or info
	Error   string `json:"error,omitempty"`
}

// synthesizeStream sends the whole text through the stream-input socket and
// concatenates the audio chunks until the server marks the stream final.
func (p *Provider) synthesizeStream(ctx context.Context, req tts.Request) (*tts.Audio, error) {
	wsURL, err := p.streamURL(req.VoiceID)
	if err != nil {
		return nil, err
	}

	conn, _, err := websocket.Dial(ctx, wsURL, nil)
	if err != nil {
		return nil, fmt.Errorf("elevenlabs: dial: %w", err)
	}
	defer conn.CloseNow()
	conn.SetReadLimit(streamReadLimit)

	// ElevenLabs requires a non-empty first text value.
	boi := boiMessage{
		Text: " ",
		VoiceSettings: &voiceSettings{
			Stability:       req.Settings.Stability,
			SimilarityBoost: req.Settings.SimilarityBoost,
		},
		XiAPIKey: p.apiKey,
	}
	if err := wsjson.Write(ctx, conn, boi); err != nil {
		return nil, fmt.Errorf("elevenlabs: send BOI: %w", err)
	}
	// Text must end with a space so the server treats it as a complete chunk.
	if err := wsjson.Write(ctx, conn, textMessage{Text: strings.TrimRight(req.Text, " ") + " "}); err != nil {
		return nil, fmt.Errorf("elevenlabs: send text: %w", err)
	}
	// Empty text flushes and ends the input.
	if err := wsjson.Write(ctx, conn, textMessage{Text: ""}); err != nil {
		return nil, fmt.Errorf("elevenlabs: send flush: %w", err)
	}

	var audio []byte
	for {
		var resp audioResponse
		err := wsjson.Read(ctx, conn, &resp)
		if err != nil {
			if websocket.CloseStatus(err) == websocket.StatusNormalClosure && len(audio) > 0 {
				break
			}
			var ce websocket.CloseError
			if errors.As(err, &ce) && ce.Code != websocket.StatusNormalClosure {
				return nil, &APIError{Body: fmt.Sprintf("socket closed with status %d: %s", ce.Code, ce.Reason)}
			}
			return nil, fmt.Errorf("elevenlabs: read stream: %w", err)
		}
		if resp.Error != "" {
			return nil, &APIError{Body: strings.TrimSpace(resp.Error + " " + resp.Message)}
		}
		if resp.Audio != "" {
			chunk, err := base64.StdEncoding.DecodeString(resp.Audio)
			if err != nil {
				return nil, fmt.Errorf("elevenlabs: decode audio chunk: %w", err)
			}
			audio = append(audio, chunk...)
		}
		if resp.IsFinal {
			break
		}
	}
	conn.Close(websocket.StatusNormalClosure, "done")

	if len(audio) == 0 {
		return nil, &APIError{Body: "stream ended without audio"}
	}
	contentType := contentTypeForFormat(p.outputFormat)
	return &tts.Audio{
		Data:        audio,
		ContentType: contentType,
		Ext:         extForContentType(contentType),
	}, nil
}

// streamURL derives the stream-input socket URL from the REST base URL.
func (p *Provider) streamURL(voiceID string) (string, error) {
	u, err := url.Parse(p.baseURL)
	if err != nil {
		return "", fmt.Errorf("elevenlabs: parse base URL: %w", err)
	}
	switch u.Scheme {
	case "https":
		u.Scheme = "wss"
	case "http":
		u.Scheme = "ws"
	}
	// Path is the decoded form; RawPath keeps the escaped voice ID intact.
	rawBase := strings.TrimRight(u.EscapedPath(), "/")
	u.Path = strings.TrimRight(u.Path, "/") + fmt.Sprintf(streamPathFmt, voiceID)
	u.RawPath = rawBase + fmt.Sprintf(streamPathFmt, url.PathEscape(voiceID))
	q := url.Values{"model_id": {p.model}}
	if p.outputFormat != "" {
		q.Set("output_format", p.outputFormat)
	}
	u.RawQuery = q.Encode()
	return u.String(), nil
}
