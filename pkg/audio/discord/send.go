package discord

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"

	"github.com/MrWong99/soundboard/pkg/audio"
)

// discordFormat is what the Opus encoder expects.
var discordFormat = audio.Format{SampleRate: opusSampleRate, Channels: opusChannels}

// opusFrameBytes is the exact PCM input size for one Opus frame:
// 960 samples/channel × 2 channels × 2 bytes/sample = 3840 bytes.
const opusFrameBytes = opusFrameSize * opusChannels * 2

// readChunk is how much PCM is read from the decoder per iteration.
const readChunk = 4 * opusFrameBytes

// sendStream reads PCM from stream, converts it to 48 kHz stereo, encodes it
// in 20 ms Opus frames, and sends them over vc until the stream ends or ctx is
// cancelled. It returns nil on a clean end of stream and the cancellation
// cause otherwise. The stream is always closed.
func sendStream(ctx context.Context, vc voiceConn, stream *audio.Stream) (err error) {
	defer func() {
		cerr := stream.Close()
		if err == nil && cerr != nil {
			err = fmt.Errorf("discord: close stream: %w", cerr)
		}
	}()

	enc, err := newOpusEncoder()
	if err != nil {
		return err
	}
	conv := audio.NewConverter(stream.Format, discordFormat)

	setSpeaking(vc, true)
	defer setSpeaking(vc, false)

	send := vc.OpusSend()
	emit := func(frame []byte) error {
		opus, err := enc.encode(frame)
		if err != nil {
			// One bad frame is not worth aborting the whole clip.
			slog.Warn("discord: opus encode error", "error", err)
			return nil
		}
		select {
		case send <- opus:
			return nil
		case <-ctx.Done():
			return context.Cause(ctx)
		}
	}

	var pending []byte
	buf := make([]byte, readChunk)
	for {
		n, rerr := stream.Read(buf)
		if n > 0 {
			pending = append(pending, conv.Convert(buf[:n])...)
			for len(pending) >= opusFrameBytes {
				if err := emit(pending[:opusFrameBytes]); err != nil {
					return err
				}
				pending = pending[opusFrameBytes:]
			}
		}
		if rerr != nil {
			if ctx.Err() != nil {
				return context.Cause(ctx)
			}
			if !errors.Is(rerr, io.EOF) {
				return fmt.Errorf("discord: read pcm: %w", rerr)
			}
			break
		}
	}

	// Pad the tail with silence to a full frame.
	if len(pending) > 0 {
		frame := append(pending, audio.Silence(opusFrameBytes-len(pending))...)
		if err := emit(frame); err != nil {
			return err
		}
	}
	return nil
}

// setSpeaking sends a speaking notification to Discord, logging any errors.
func setSpeaking(vc voiceConn, b bool) {
	if err := vc.Speaking(b); err != nil {
		slog.Warn("discord: speaking notification error", "speaking", b, "error", err)
	}
}
