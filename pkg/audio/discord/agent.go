// Package discord provides an [audio.VoiceAgent] backed by Discord voice
// channels via the bwmarrin/discordgo library. It decodes files to PCM through
// an [audio.Decoder], encodes them to Opus, and sends them over the single
// voice connection the bot holds in its guild.
package discord

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"sync"

	"github.com/bwmarrin/discordgo"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"

	"github.com/MrWong99/soundboard/pkg/audio"
)

// Compile-time interface assertion.
var _ audio.VoiceAgent = (*Agent)(nil)

// voiceConn is the part of *discordgo.VoiceConnection the agent uses.
type voiceConn interface {
	OpusSend() chan<- []byte
	Speaking(b bool) error
	Disconnect() error
}

// dgVoice adapts *discordgo.VoiceConnection to voiceConn.
type dgVoice struct{ vc *discordgo.VoiceConnection }

func (d dgVoice) OpusSend() chan<- []byte { return d.vc.OpusSend }
func (d dgVoice) Speaking(b bool) error   { return d.vc.Speaking(b) }
func (d dgVoice) Disconnect() error       { return d.vc.Disconnect() }

// Option configures an [Agent].
type Option func(*Agent)

// WithLocator sets how short asset names are mapped to files.
func WithLocator(l audio.Locator) Option {
	return func(a *Agent) {
		a.locator = l
	}
}

// WithConnectionGauge sets the up-down counter tracking whether the agent
// holds a voice connection.
func WithConnectionGauge(g metric.Int64UpDownCounter) Option {
	return func(a *Agent) {
		a.connections = g
	}
}

// job is one running playback and its send goroutine.
type job struct {
	pb     *audio.Playback
	cancel context.CancelCauseFunc
	done   chan struct{}
}

// Agent implements [audio.VoiceAgent] for one guild.
//
// Agent is safe for concurrent use. Play and Leave are serialised by an
// internal mutex; at most one send goroutine writes to the voice connection.
type Agent struct {
	guildID     string
	decoder     audio.Decoder
	locator     audio.Locator
	connections metric.Int64UpDownCounter

	// join opens the voice connection; overridden in tests.
	join func(channelID string) (voiceConn, error)

	mu        sync.Mutex
	vc        voiceConn
	channelID string
	current   *job
}

// New creates an Agent that joins voice channels of guildID through session.
// The bot joins deafened: it only sends audio.
func New(session *discordgo.Session, guildID string, decoder audio.Decoder, opts ...Option) *Agent {
	a := &Agent{
		guildID:     guildID,
		decoder:     decoder,
		connections: noop.Int64UpDownCounter{},
		join: func(channelID string) (voiceConn, error) {
			vc, err := session.ChannelVoiceJoin(guildID, channelID, false, true)
			if err != nil {
				return nil, err
			}
			return dgVoice{vc: vc}, nil
		},
	}
	for _, o := range opts {
		o(a)
	}
	return a
}

// Join implements [audio.VoiceAgent].
func (a *Agent) Join(ctx context.Context, channelID string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.vc != nil && a.channelID == channelID {
		return nil
	}
	vc, err := a.join(channelID)
	if err != nil {
		return fmt.Errorf("discord: join voice channel %q: %w", channelID, err)
	}
	if a.vc == nil {
		a.connections.Add(ctx, 1)
	}
	a.vc = vc
	a.channelID = channelID
	slog.Info("discord: joined voice channel", "guild_id", a.guildID, "channel_id", channelID)
	return nil
}

// ChannelID implements [audio.VoiceAgent].
func (a *Agent) ChannelID() string {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.channelID
}

// Play implements [audio.VoiceAgent]. The previous playback, if any, is
// finished with [audio.ErrReplaced] before the new one starts.
func (a *Agent) Play(ctx context.Context, target string) (*audio.Playback, error) {
	path, err := a.resolve(target)
	if err != nil {
		return nil, err
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	if a.vc == nil {
		return nil, audio.ErrNotConnected
	}
	a.stopLocked(audio.ErrReplaced)

	// The playback must survive the end of the command that started it.
	playCtx, cancel := context.WithCancelCause(context.WithoutCancel(ctx))
	stream, err := a.decoder.Decode(playCtx, path)
	if err != nil {
		cancel(err)
		return nil, fmt.Errorf("discord: decode %q: %w", target, err)
	}

	j := &job{
		pb:     audio.NewPlayback(target),
		cancel: cancel,
		done:   make(chan struct{}),
	}
	a.current = j
	vc := a.vc
	go func() {
		defer close(j.done)
		defer cancel(nil)
		err := sendStream(playCtx, vc, stream)
		if err != nil {
			slog.Debug("discord: playback ended early", "target", target, "error", err)
		}
		j.pb.Finish(err)
	}()
	return j.pb, nil
}

// Leave implements [audio.VoiceAgent].
func (a *Agent) Leave(ctx context.Context) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.vc == nil {
		return audio.ErrNotConnected
	}
	a.stopLocked(audio.ErrStopped)

	err := a.vc.Disconnect()
	slog.Info("discord: left voice channel", "guild_id", a.guildID, "channel_id", a.channelID)
	a.vc = nil
	a.channelID = ""
	a.connections.Add(ctx, -1)
	if err != nil {
		return fmt.Errorf("discord: disconnect: %w", err)
	}
	return nil
}

// stopLocked cancels the current playback with cause and waits for its send
// goroutine to exit. a.mu must be held.
func (a *Agent) stopLocked(cause error) {
	if a.current == nil {
		return
	}
	a.current.cancel(cause)
	<-a.current.done
	a.current = nil
}

// resolve maps target to a file path.
func (a *Agent) resolve(target string) (string, error) {
	if a.locator != nil {
		if p, ok := a.locator.Locate(target); ok {
			return p, nil
		}
	}
	if fi, err := os.Stat(target); err == nil && !fi.IsDir() {
		return target, nil
	} else if err != nil && !errors.Is(err, os.ErrNotExist) {
		return "", fmt.Errorf("discord: stat %q: %w", target, err)
	}
	return "", fmt.Errorf("%w: %q", audio.ErrUnknownTarget, target)
}
