package speech

import (
	"errors"
	"fmt"
)

// Stage names a step of [Pipeline.Speak]. It appears in [Error], in span
// names, and as a metric attribute.
type Stage string

// Pipeline stages in execution order.
const (
	StageValidate    Stage = "validate"
	StageVoiceLookup Stage = "voice_lookup"
	StageSynthesis   Stage = "synthesis"
	StagePersist     Stage = "persist"
	StageTranscode   Stage = "transcode"
	StagePlayback    Stage = "playback"
)

var (
	// ErrInvalidRequest is returned for empty text or a stability outside [0, 1].
	ErrInvalidRequest = errors.New("invalid speech request")

	// ErrUnknownVoice is returned when no non-premade voice carries the
	// requested name. No synthesis call is made.
	ErrUnknownVoice = errors.New("unknown voice")

	// ErrSynthesisFailed wraps a provider failure. The provider's error, which
	// carries the upstream response body, stays reachable with errors.As.
	ErrSynthesisFailed = errors.New("speech synthesis failed")

	// ErrTranscodeFailed wraps a transcoder failure together with the tool's
	// diagnostic output.
	ErrTranscodeFailed = errors.New("transcode failed")
)

// Error reports which stage of a speech request failed and for what input.
type Error struct {
	Stage Stage
	Voice string
	Text  string
	Err   error
}

// Error implements error.
func (e *Error) Error() string {
	return fmt.Sprintf("speech: %s (voice %q, text %q): %v", e.Stage, e.Voice, truncate(e.Text, 64), e.Err)
}

// Unwrap returns the underlying cause.
func (e *Error) Unwrap() error { return e.Err }

// truncate shortens s to at most n runes for log-friendly error strings.
func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n]) + "…"
}
