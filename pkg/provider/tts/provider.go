// Package tts defines the Provider interface for Text-to-Speech backends.
//
// A TTS provider wraps a remote speech synthesis service (e.g., ElevenLabs) and
// presents a batch interface: one call per utterance, returning the complete
// encoded audio. The soundboard's speech pipeline persists that audio to disk
// before handing it to the transcoder, so streaming delivery buys nothing here.
//
// Implementations must be safe for concurrent use.
package tts

import "context"

// Provider is the abstraction over any TTS backend.
type Provider interface {
	// ListVoices returns every voice visible to the configured account,
	// including built-in ones. Filtering is the caller's policy.
	//
	// Returns an error if the provider cannot be reached or if ctx is cancelled
	// before the list is retrieved.
	ListVoices(ctx context.Context) ([]VoiceProfile, error)

	// Synthesize renders req.Text with the voice req.VoiceID and returns the
	// encoded audio. A non-success upstream response must be reported as an
	// error that carries the upstream diagnostic body.
	Synthesize(ctx context.Context, req Request) (*Audio, error)
}
