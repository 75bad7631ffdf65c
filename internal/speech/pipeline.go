// Package speech turns a "say" request into audio in the requester's voice
// channel.
//
// A request passes through a fixed sequence of stages: the voice name is
// looked up among the account's non-premade voices, the text is synthesized
// by a [tts.Provider], the audio is written to a per-request slot in the
// speech directory (with an archive copy), ffmpeg transcodes it to Opus, and
// the [audio.VoiceAgent] joins the channel and plays it. The slot is deleted
// once the agent reports the playback finished, after a configurable delay.
//
// Every failure is reported as an [*Error] naming the stage.
package speech

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/MrWong99/soundboard/internal/ledger"
	"github.com/MrWong99/soundboard/internal/observe"
	"github.com/MrWong99/soundboard/pkg/audio"
	"github.com/MrWong99/soundboard/pkg/provider/tts"
)

// Defaults applied by [New] to zero [Config] fields.
const (
	DefaultStability       = 0.5
	DefaultSimilarityBoost = 0.9
	DefaultCleanupDelay    = 5 * time.Second
)

// Transcoder converts an audio file at src into a playback file at dst.
// *ffmpeg.FFmpeg satisfies it.
type Transcoder interface {
	Transcode(ctx context.Context, src, dst string) error
}

// Config holds the pipeline's file locations and synthesis defaults.
type Config struct {
	// SpeechDir holds the per-request slots. It is created if missing.
	SpeechDir string

	// ArchiveDir receives a copy of every synthesized clip. Empty disables
	// archiving.
	ArchiveDir string

	// Stability is used when a request carries none. Nil selects
	// [DefaultStability].
	Stability *float64

	// SimilarityBoost is sent with every request. Zero selects
	// [DefaultSimilarityBoost].
	SimilarityBoost float64

	// CleanupDelay is how long slot files survive after playback finished.
	// Zero selects [DefaultCleanupDelay]; a negative value cleans up at once.
	CleanupDelay time.Duration
}

// Request is one "say" command.
type Request struct {
	// Voice is the display name of the voice, matched exactly.
	Voice string

	// Text is what to say.
	Text string

	// Stability overrides the configured stability when non-nil. It must lie
	// in [0, 1].
	Stability *float64

	// ChannelID is the voice channel to join before playing. When empty, the
	// agent must already be connected.
	ChannelID string

	// RequestedBy is the requester's user ID, recorded in the ledger.
	RequestedBy string
}

// Result describes a request whose audio is playing.
type Result struct {
	// ID names the request's slot.
	ID uuid.UUID

	// Voice is the voice that was used.
	Voice tts.VoiceProfile

	// Playback reports when the audio stopped.
	Playback *audio.Playback

	// ArchivePath is the archive copy, or empty when archiving is disabled
	// or failed.
	ArchivePath string
}

// Option configures a [Pipeline].
type Option func(*Pipeline)

// WithLedger records every archived clip in r.
func WithLedger(r ledger.Recorder) Option {
	return func(p *Pipeline) { p.ledger = r }
}

// WithMetrics sets the metrics instance. Defaults to [observe.DefaultMetrics].
func WithMetrics(m *observe.Metrics) Option {
	return func(p *Pipeline) { p.metrics = m }
}

// WithClock overrides the time source used for archive names.
func WithClock(now func() time.Time) Option {
	return func(p *Pipeline) { p.now = now }
}

// WithIDs overrides request ID generation.
func WithIDs(next func() uuid.UUID) Option {
	return func(p *Pipeline) { p.newID = next }
}

// Pipeline runs speech requests. It is safe for concurrent use; every
// request works on its own slot.
type Pipeline struct {
	provider   tts.Provider
	transcoder Transcoder
	agent      audio.VoiceAgent
	cfg        Config
	stability  float64

	ledger  ledger.Recorder
	metrics *observe.Metrics
	now     func() time.Time
	newID   func() uuid.UUID

	cleanups  sync.WaitGroup
	stop      chan struct{}
	closeOnce sync.Once
}

// New validates cfg, creates the speech directory, and returns a Pipeline.
func New(provider tts.Provider, transcoder Transcoder, agent audio.VoiceAgent, cfg Config, opts ...Option) (*Pipeline, error) {
	if provider == nil || transcoder == nil || agent == nil {
		return nil, errors.New("speech: provider, transcoder, and agent are required")
	}
	if cfg.SpeechDir == "" {
		return nil, errors.New("speech: speech directory is required")
	}
	stability := DefaultStability
	if cfg.Stability != nil {
		stability = *cfg.Stability
	}
	if stability < 0 || stability > 1 {
		return nil, fmt.Errorf("speech: default stability %v outside [0, 1]", stability)
	}
	if cfg.SimilarityBoost == 0 {
		cfg.SimilarityBoost = DefaultSimilarityBoost
	}
	if cfg.CleanupDelay == 0 {
		cfg.CleanupDelay = DefaultCleanupDelay
	}
	if err := os.MkdirAll(cfg.SpeechDir, 0o755); err != nil {
		return nil, fmt.Errorf("speech: create speech dir: %w", err)
	}

	p := &Pipeline{
		provider:   provider,
		transcoder: transcoder,
		agent:      agent,
		cfg:        cfg,
		stability:  stability,
		ledger:     ledger.Nop{},
		now:        time.Now,
		newID:      uuid.New,
		stop:       make(chan struct{}),
	}
	for _, o := range opts {
		o(p)
	}
	if p.metrics == nil {
		p.metrics = observe.DefaultMetrics()
	}
	return p, nil
}

// ListVoices returns the account's voices excluding the provider's built-in
// ones. The list is fetched on every call.
func (p *Pipeline) ListVoices(ctx context.Context) ([]tts.VoiceProfile, error) {
	ctx, span := observe.StartSpan(ctx, "speech.list_voices")
	defer span.End()

	all, err := p.provider.ListVoices(ctx)
	if err != nil {
		observe.Fail(span, err)
		return nil, fmt.Errorf("speech: list voices: %w", err)
	}
	voices := CustomVoices(all)
	span.SetAttributes(attribute.Int("voices", len(voices)))
	return voices, nil
}

// CustomVoices drops the provider's premade voices from all, keeping order.
func CustomVoices(all []tts.VoiceProfile) []tts.VoiceProfile {
	voices := make([]tts.VoiceProfile, 0, len(all))
	for _, v := range all {
		if v.Category != tts.CategoryPremade {
			voices = append(voices, v)
		}
	}
	return voices
}

// Speak runs req up to the start of playback and returns while the audio is
// still playing. The slot is removed after [Result.Playback] finishes plus
// the cleanup delay, or immediately when Speak fails.
func (p *Pipeline) Speak(ctx context.Context, req Request) (_ *Result, err error) {
	start := time.Now()
	ctx, span := observe.StartSpan(ctx, "speech.speak",
		trace.WithAttributes(attribute.String("voice", req.Voice)),
	)
	defer span.End()

	var failed Stage
	defer func() {
		observe.Fail(span, err)
		p.metrics.RecordSpeech(ctx, string(failed), err)
		if err == nil {
			p.metrics.SpeechDuration.Record(ctx, time.Since(start).Seconds())
		}
	}()
	fail := func(stage Stage, cause error) error {
		failed = stage
		return &Error{Stage: stage, Voice: req.Voice, Text: req.Text, Err: cause}
	}

	stability, verr := p.stabilityFor(req)
	if verr != nil {
		return nil, fail(StageValidate, verr)
	}

	voice, err := p.lookupVoice(ctx, req.Voice)
	if err != nil {
		return nil, fail(StageVoiceLookup, err)
	}

	sl := newSlot(p.cfg.SpeechDir, p.newID())
	span.SetAttributes(attribute.String("request_id", sl.id.String()))
	log := observe.Logger(ctx).With("request_id", sl.id.String(), "voice", voice.Name)

	playing := false
	defer func() {
		if !playing {
			p.clearSlot(log, sl)
		}
	}()

	if err := sl.clear(); err != nil {
		return nil, fail(StageSynthesis, fmt.Errorf("clear slot: %w", err))
	}
	clip, err := p.synthesize(ctx, voice, req.Text, stability)
	if err != nil {
		return nil, fail(StageSynthesis, fmt.Errorf("%w: %w", ErrSynthesisFailed, err))
	}

	rawPath, err := p.persist(ctx, sl, clip)
	if err != nil {
		return nil, fail(StagePersist, err)
	}
	archivePath := p.archive(ctx, log, sl, clip, voice, req)

	if err := p.transcode(ctx, rawPath, sl.opus()); err != nil {
		return nil, fail(StageTranscode, fmt.Errorf("%w: %w", ErrTranscodeFailed, err))
	}

	pb, err := p.play(ctx, req.ChannelID, sl.opus())
	if err != nil {
		return nil, fail(StagePlayback, err)
	}
	playing = true
	p.scheduleCleanup(log, sl, pb)

	log.Info("speech playing", "channel_id", req.ChannelID, "archive", archivePath)
	return &Result{ID: sl.id, Voice: voice, Playback: pb, ArchivePath: archivePath}, nil
}

// Close cancels pending cleanup delays, removes the remaining slots, and waits
// for that to finish. Speak must not be called afterwards.
func (p *Pipeline) Close() {
	p.closeOnce.Do(func() { close(p.stop) })
	p.cleanups.Wait()
}

func (p *Pipeline) stabilityFor(req Request) (float64, error) {
	if req.Text == "" {
		return 0, fmt.Errorf("%w: empty text", ErrInvalidRequest)
	}
	if req.Stability == nil {
		return p.stability, nil
	}
	s := *req.Stability
	if s < 0 || s > 1 {
		return 0, fmt.Errorf("%w: stability %v outside [0, 1]", ErrInvalidRequest, s)
	}
	return s, nil
}

func (p *Pipeline) lookupVoice(ctx context.Context, name string) (tts.VoiceProfile, error) {
	ctx, span := observe.StartSpan(ctx, "speech.voice_lookup")
	defer span.End()

	voices, err := p.ListVoices(ctx)
	if err != nil {
		observe.Fail(span, err)
		return tts.VoiceProfile{}, err
	}
	for _, v := range voices {
		if v.Name == name {
			span.SetAttributes(attribute.String("voice_id", v.ID))
			return v, nil
		}
	}
	err = fmt.Errorf("%w: %q", ErrUnknownVoice, name)
	observe.Fail(span, err)
	return tts.VoiceProfile{}, err
}

func (p *Pipeline) synthesize(ctx context.Context, voice tts.VoiceProfile, text string, stability float64) (*tts.Audio, error) {
	ctx, span := observe.StartSpan(ctx, "speech.synthesize",
		trace.WithAttributes(
			attribute.String("voice_id", voice.ID),
			attribute.Int("text_len", len(text)),
			attribute.Float64("stability", stability),
		),
	)
	defer span.End()

	start := time.Now()
	clip, err := p.provider.Synthesize(ctx, tts.Request{
		VoiceID: voice.ID,
		Text:    text,
		Settings: tts.VoiceSettings{
			Stability:       stability,
			SimilarityBoost: p.cfg.SimilarityBoost,
		},
	})
	p.metrics.TTSDuration.Record(ctx, time.Since(start).Seconds())
	p.metrics.RecordProviderRequest(ctx, voice.Provider, "tts", observe.Status(err))
	if err == nil && (clip == nil || len(clip.Data) == 0) {
		err = errors.New("provider returned no audio")
	}
	if err != nil {
		p.metrics.RecordProviderError(ctx, voice.Provider, "tts")
		observe.Fail(span, err)
		return nil, err
	}
	span.SetAttributes(attribute.Int("bytes", len(clip.Data)))
	return clip, nil
}

func (p *Pipeline) persist(ctx context.Context, sl slot, clip *tts.Audio) (string, error) {
	_, span := observe.StartSpan(ctx, "speech.persist")
	defer span.End()

	ext := clip.Ext
	if ext == "" {
		ext = "bin"
	}
	path := sl.raw(ext)
	if err := os.WriteFile(path, clip.Data, 0o644); err != nil {
		observe.Fail(span, err)
		return "", fmt.Errorf("write %s: %w", path, err)
	}
	return path, nil
}

// archive writes the archive copy and its ledger entry. Failures are logged
// and leave the request running.
func (p *Pipeline) archive(ctx context.Context, log *slog.Logger, sl slot, clip *tts.Audio, voice tts.VoiceProfile, req Request) string {
	if p.cfg.ArchiveDir == "" {
		return ""
	}
	ctx, span := observe.StartSpan(ctx, "speech.archive")
	defer span.End()

	at := p.now()
	path := filepath.Join(p.cfg.ArchiveDir, archiveName(req.Text, at, archiveExtFor(clip.Ext)))
	err := os.MkdirAll(p.cfg.ArchiveDir, 0o755)
	if err == nil {
		err = os.WriteFile(path, clip.Data, 0o644)
	}
	if err != nil {
		observe.Fail(span, err)
		log.Warn("archive copy failed", "path", path, "err", err)
		return ""
	}

	entry := ledger.Entry{
		ID:          sl.id,
		Voice:       voice.Name,
		VoiceID:     voice.ID,
		Message:     req.Text,
		ArchivePath: path,
		RequestedBy: req.RequestedBy,
		CreatedAt:   at,
	}
	if err := p.ledger.Record(ctx, entry); err != nil {
		log.Warn("ledger record failed", "path", path, "err", err)
	}
	return path
}

func (p *Pipeline) transcode(ctx context.Context, src, dst string) error {
	ctx, span := observe.StartSpan(ctx, "speech.transcode")
	defer span.End()

	start := time.Now()
	err := p.transcoder.Transcode(ctx, src, dst)
	p.metrics.TranscodeDuration.Record(ctx, time.Since(start).Seconds())
	observe.Fail(span, err)
	return err
}

func (p *Pipeline) play(ctx context.Context, channelID, path string) (*audio.Playback, error) {
	ctx, span := observe.StartSpan(ctx, "speech.playback",
		trace.WithAttributes(attribute.String("channel_id", channelID)),
	)
	defer span.End()

	if channelID != "" {
		if err := p.agent.Join(ctx, channelID); err != nil {
			observe.Fail(span, err)
			return nil, fmt.Errorf("join %s: %w", channelID, err)
		}
	}
	pb, err := p.agent.Play(ctx, path)
	p.metrics.RecordPlay(ctx, "speech", observe.Status(err))
	if err != nil {
		observe.Fail(span, err)
		return nil, fmt.Errorf("play: %w", err)
	}
	return pb, nil
}

// scheduleCleanup removes the slot once pb is done and the cleanup delay has
// passed. Close short-circuits both waits.
func (p *Pipeline) scheduleCleanup(log *slog.Logger, sl slot, pb *audio.Playback) {
	p.cleanups.Go(func() {
		select {
		case <-pb.Done():
			p.metrics.RecordPlaybackDuration(context.Background(), "speech", pb.Duration())
		case <-p.stop:
		}
		if p.cfg.CleanupDelay > 0 {
			t := time.NewTimer(p.cfg.CleanupDelay)
			select {
			case <-t.C:
			case <-p.stop:
				t.Stop()
			}
		}
		p.clearSlot(log, sl)
	})
}

func (p *Pipeline) clearSlot(log *slog.Logger, sl slot) {
	if err := sl.clear(); err != nil {
		log.Warn("slot cleanup failed", "err", err)
		return
	}
	log.Debug("slot cleaned")
}
