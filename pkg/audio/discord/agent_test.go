package discord

import (
	"bytes"
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/bwmarrin/discordgo"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"

	"github.com/MrWong99/soundboard/pkg/audio"
)

// ─── test doubles ────────────────────────────────────────────────────────────

type fakeVoice struct {
	send chan []byte

	mu           sync.Mutex
	speaking     []bool
	disconnected int
}

func newFakeVoice() *fakeVoice { return &fakeVoice{send: make(chan []byte, 64)} }

func (v *fakeVoice) OpusSend() chan<- []byte { return v.send }

func (v *fakeVoice) Speaking(b bool) error {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.speaking = append(v.speaking, b)
	return nil
}

func (v *fakeVoice) Disconnect() error {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.disconnected++
	return nil
}

// blockingReader never yields data and returns once ctx is done.
type blockingReader struct{ ctx context.Context }

func (r blockingReader) Read([]byte) (int, error) {
	<-r.ctx.Done()
	return 0, io.ErrClosedPipe
}

func (blockingReader) Close() error { return nil }

type fakeDecoder struct {
	pcm    []byte
	format audio.Format
	block  bool
	err    error

	mu    sync.Mutex
	paths []string
}

func (d *fakeDecoder) Decode(ctx context.Context, path string) (*audio.Stream, error) {
	d.mu.Lock()
	d.paths = append(d.paths, path)
	d.mu.Unlock()
	if d.err != nil {
		return nil, d.err
	}
	f := d.format
	if f == (audio.Format{}) {
		f = discordFormat
	}
	if d.block {
		return &audio.Stream{ReadCloser: blockingReader{ctx: ctx}, Format: f}, nil
	}
	return &audio.Stream{ReadCloser: io.NopCloser(bytes.NewReader(d.pcm)), Format: f}, nil
}

func (d *fakeDecoder) decodedPaths() []string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]string(nil), d.paths...)
}

// newTestAgent creates an Agent whose voice connections are fakes. The
// returned slice pointer records every join.
func newTestAgent(t *testing.T, dec audio.Decoder) (*Agent, *fakeVoice, *[]string) {
	t.Helper()
	locator := audio.LocatorFunc(func(name string) (string, bool) {
		if name == "boom.ogg" {
			return "/sounds/boom.ogg", true
		}
		return "", false
	})
	a := New(&discordgo.Session{}, "guild-test", dec, WithLocator(locator))
	v := newFakeVoice()
	var joins []string
	a.join = func(channelID string) (voiceConn, error) {
		joins = append(joins, channelID)
		return v, nil
	}
	return a, v, &joins
}

func waitDone(t *testing.T, pb *audio.Playback) {
	t.Helper()
	select {
	case <-pb.Done():
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for playback to finish")
	}
}

// ─── tests ───────────────────────────────────────────────────────────────────

func TestAgent_PlayRequiresConnection(t *testing.T) {
	t.Parallel()

	a, _, _ := newTestAgent(t, &fakeDecoder{})
	if _, err := a.Play(context.Background(), "boom.ogg"); !errors.Is(err, audio.ErrNotConnected) {
		t.Fatalf("Play before Join = %v, want ErrNotConnected", err)
	}
	if err := a.Leave(context.Background()); !errors.Is(err, audio.ErrNotConnected) {
		t.Fatalf("Leave before Join = %v, want ErrNotConnected", err)
	}
}

func TestAgent_PlaySendsOpusFrames(t *testing.T) {
	t.Parallel()

	// Three full frames plus a partial one that gets padded.
	dec := &fakeDecoder{pcm: make([]byte, 3*opusFrameBytes+100)}
	a, v, _ := newTestAgent(t, dec)
	ctx := context.Background()

	if err := a.Join(ctx, "voice-1"); err != nil {
		t.Fatalf("Join: %v", err)
	}
	pb, err := a.Play(ctx, "boom.ogg")
	if err != nil {
		t.Fatalf("Play: %v", err)
	}
	waitDone(t, pb)
	if pb.Err() != nil {
		t.Fatalf("playback error: %v", pb.Err())
	}
	if got := len(v.send); got != 4 {
		t.Errorf("sent %d opus packets, want 4", got)
	}
	if paths := dec.decodedPaths(); len(paths) != 1 || paths[0] != "/sounds/boom.ogg" {
		t.Errorf("decoded paths = %v, want located path", paths)
	}

	v.mu.Lock()
	defer v.mu.Unlock()
	if len(v.speaking) != 2 || !v.speaking[0] || v.speaking[1] {
		t.Errorf("speaking notifications = %v, want [true false]", v.speaking)
	}
}

func TestAgent_PlayConvertsFormat(t *testing.T) {
	t.Parallel()

	// 20 ms of 24 kHz mono becomes exactly one 48 kHz stereo frame.
	dec := &fakeDecoder{pcm: make([]byte, 480*2), format: audio.Format{SampleRate: 24000, Channels: 1}}
	a, v, _ := newTestAgent(t, dec)
	_ = a.Join(context.Background(), "voice-1")

	pb, err := a.Play(context.Background(), "boom.ogg")
	if err != nil {
		t.Fatalf("Play: %v", err)
	}
	waitDone(t, pb)
	if got := len(v.send); got != 1 {
		t.Errorf("sent %d opus packets, want 1", got)
	}
}

func TestAgent_PlayFilesystemPath(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "speech-1.opus")
	if err := os.WriteFile(path, nil, 0o644); err != nil {
		t.Fatal(err)
	}
	dec := &fakeDecoder{}
	a, _, _ := newTestAgent(t, dec)
	_ = a.Join(context.Background(), "voice-1")

	pb, err := a.Play(context.Background(), path)
	if err != nil {
		t.Fatalf("Play(path): %v", err)
	}
	waitDone(t, pb)
	if paths := dec.decodedPaths(); len(paths) != 1 || paths[0] != path {
		t.Errorf("decoded paths = %v, want %q", paths, path)
	}
}

func TestAgent_PlayUnknownTarget(t *testing.T) {
	t.Parallel()

	a, _, _ := newTestAgent(t, &fakeDecoder{})
	_ = a.Join(context.Background(), "voice-1")
	if _, err := a.Play(context.Background(), "nope.ogg"); !errors.Is(err, audio.ErrUnknownTarget) {
		t.Fatalf("Play(nope) = %v, want ErrUnknownTarget", err)
	}
}

func TestAgent_PlayDecodeError(t *testing.T) {
	t.Parallel()

	boom := errors.New("corrupt file")
	a, _, _ := newTestAgent(t, &fakeDecoder{err: boom})
	_ = a.Join(context.Background(), "voice-1")
	if _, err := a.Play(context.Background(), "boom.ogg"); !errors.Is(err, boom) {
		t.Fatalf("Play = %v, want wrapped decode error", err)
	}
}

func TestAgent_PlayReplacesCurrent(t *testing.T) {
	t.Parallel()

	dec := &fakeDecoder{block: true}
	a, _, _ := newTestAgent(t, dec)
	_ = a.Join(context.Background(), "voice-1")

	first, err := a.Play(context.Background(), "boom.ogg")
	if err != nil {
		t.Fatalf("first Play: %v", err)
	}
	second, err := a.Play(context.Background(), "boom.ogg")
	if err != nil {
		t.Fatalf("second Play: %v", err)
	}

	waitDone(t, first)
	if !errors.Is(first.Err(), audio.ErrReplaced) {
		t.Errorf("first playback Err = %v, want ErrReplaced", first.Err())
	}
	select {
	case <-second.Done():
		t.Error("second playback finished early")
	default:
	}

	if err := a.Leave(context.Background()); err != nil {
		t.Fatalf("Leave: %v", err)
	}
	waitDone(t, second)
	if !errors.Is(second.Err(), audio.ErrStopped) {
		t.Errorf("second playback Err = %v, want ErrStopped", second.Err())
	}
}

func TestAgent_PlayOutlivesRequestContext(t *testing.T) {
	t.Parallel()

	a, _, _ := newTestAgent(t, &fakeDecoder{block: true})
	_ = a.Join(context.Background(), "voice-1")

	ctx, cancel := context.WithCancel(context.Background())
	pb, err := a.Play(ctx, "boom.ogg")
	if err != nil {
		t.Fatalf("Play: %v", err)
	}
	cancel()

	select {
	case <-pb.Done():
		t.Fatal("playback must not stop when the request context is cancelled")
	case <-time.After(50 * time.Millisecond):
	}
	_ = a.Leave(context.Background())
	waitDone(t, pb)
}

func TestAgent_JoinAndLeave(t *testing.T) {
	t.Parallel()

	a, v, joins := newTestAgent(t, &fakeDecoder{})
	ctx := context.Background()

	for _, ch := range []string{"voice-1", "voice-1", "voice-2"} {
		if err := a.Join(ctx, ch); err != nil {
			t.Fatalf("Join(%s): %v", ch, err)
		}
	}
	if len(*joins) != 2 {
		t.Errorf("joins = %v, want rejoin only when the channel changes", *joins)
	}
	if a.ChannelID() != "voice-2" {
		t.Errorf("ChannelID = %q, want voice-2", a.ChannelID())
	}

	if err := a.Leave(ctx); err != nil {
		t.Fatalf("Leave: %v", err)
	}
	if a.ChannelID() != "" {
		t.Errorf("ChannelID after Leave = %q", a.ChannelID())
	}
	if v.disconnected != 1 {
		t.Errorf("disconnected %d times, want 1", v.disconnected)
	}
}

func TestAgent_JoinError(t *testing.T) {
	t.Parallel()

	a, _, _ := newTestAgent(t, &fakeDecoder{})
	a.join = func(string) (voiceConn, error) { return nil, errors.New("missing permissions") }
	if err := a.Join(context.Background(), "voice-1"); err == nil {
		t.Fatal("expected join error")
	}
	if a.ChannelID() != "" {
		t.Errorf("ChannelID after failed join = %q", a.ChannelID())
	}
}

func TestAgent_JoinCancelledContext(t *testing.T) {
	t.Parallel()

	a, _, joins := newTestAgent(t, &fakeDecoder{})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := a.Join(ctx, "voice-1"); !errors.Is(err, context.Canceled) {
		t.Fatalf("Join = %v, want context.Canceled", err)
	}
	if len(*joins) != 0 {
		t.Error("join must not be attempted with a cancelled context")
	}
}

func TestAgent_ConcurrentPlay(t *testing.T) {
	t.Parallel()

	a, v, _ := newTestAgent(t, &fakeDecoder{pcm: make([]byte, opusFrameBytes)})
	_ = a.Join(context.Background(), "voice-1")

	go func() {
		for range v.send {
		}
	}()

	var wg sync.WaitGroup
	pbs := make(chan *audio.Playback, 10)
	for range 10 {
		wg.Go(func() {
			pb, err := a.Play(context.Background(), "boom.ogg")
			if err != nil {
				t.Errorf("Play: %v", err)
				return
			}
			pbs <- pb
		})
	}
	wg.Wait()
	close(pbs)
	for pb := range pbs {
		waitDone(t, pb)
	}
}

func TestAgent_ConnectionGauge(t *testing.T) {
	t.Parallel()

	reader := sdkmetric.NewManualReader()
	gauge, err := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader)).
		Meter("test").Int64UpDownCounter("voice.connections")
	if err != nil {
		t.Fatal(err)
	}
	a, _, _ := newTestAgent(t, &fakeDecoder{})
	WithConnectionGauge(gauge)(a)

	value := func() int64 {
		t.Helper()
		var rm metricdata.ResourceMetrics
		if err := reader.Collect(context.Background(), &rm); err != nil {
			t.Fatalf("Collect: %v", err)
		}
		for _, sm := range rm.ScopeMetrics {
			for _, m := range sm.Metrics {
				if sum, ok := m.Data.(metricdata.Sum[int64]); ok && len(sum.DataPoints) == 1 {
					return sum.DataPoints[0].Value
				}
			}
		}
		return 0
	}

	ctx := context.Background()
	_ = a.Join(ctx, "voice-1")
	_ = a.Join(ctx, "voice-2")
	if got := value(); got != 1 {
		t.Errorf("after joins: connections = %d, want 1", got)
	}
	_ = a.Leave(ctx)
	if got := value(); got != 0 {
		t.Errorf("after leave: connections = %d, want 0", got)
	}
}
