// Package audio defines the voice-playback abstractions the soundboard speaks
// through.
//
// The primary abstractions are:
//
//   - [VoiceAgent] owns the bot's single voice connection in a guild and plays
//     files into it, one at a time.
//   - [Playback] is the handle returned for every started play. It closes
//     its Done channel once the audio has finished, failed, or been replaced.
//   - [Decoder] turns a file on disk into a raw PCM [Stream] the agent can
//     encode for the platform.
//
// Platform-specific agents live in sub-packages (e.g., audio/discord).
package audio

import (
	"context"
	"errors"
	"io"
)

var (
	// ErrNotConnected is returned when an operation needs a voice connection
	// and the agent has none.
	ErrNotConnected = errors.New("audio: not connected to a voice channel")

	// ErrReplaced finishes a playback that was cut short by a newer Play.
	ErrReplaced = errors.New("audio: playback replaced")

	// ErrStopped finishes a playback that was cut short by Leave.
	ErrStopped = errors.New("audio: playback stopped")

	// ErrUnknownTarget is returned by Play when the target is neither a known
	// asset name nor an existing file.
	ErrUnknownTarget = errors.New("audio: unknown playback target")
)

// VoiceAgent joins voice channels and plays audio into them.
//
// Playback is serialised: a new Play replaces whatever is currently playing.
// Implementations must be safe for concurrent use.
type VoiceAgent interface {
	// Join connects to channelID, moving the agent when it is already
	// connected elsewhere. Joining the current channel is a no-op.
	Join(ctx context.Context, channelID string) error

	// Play starts playing target and returns immediately. target is resolved
	// through the agent's [Locator] first and treated as a filesystem path
	// otherwise. The playback outlives ctx's cancellation but keeps its values.
	Play(ctx context.Context, target string) (*Playback, error)

	// Leave stops any playback and disconnects. It returns [ErrNotConnected]
	// when the agent is not in a channel.
	Leave(ctx context.Context) error

	// ChannelID returns the channel the agent is connected to, or "".
	ChannelID() string
}

// Locator maps a short asset name to a file path.
type Locator interface {
	Locate(name string) (path string, ok bool)
}

// LocatorFunc adapts a function to [Locator].
type LocatorFunc func(name string) (string, bool)

// Locate implements [Locator].
func (f LocatorFunc) Locate(name string) (string, bool) { return f(name) }

// Stream is a raw little-endian int16 PCM stream in the given format.
// Closing it releases the decoder and reports a decoding failure, if any.
type Stream struct {
	io.ReadCloser
	Format Format
}

// Decoder opens audio files as PCM streams.
type Decoder interface {
	Decode(ctx context.Context, path string) (*Stream, error)
}
