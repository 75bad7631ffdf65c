// Package ffmpeg runs the ffmpeg command-line tool to transcode synthesized
// speech into a playback codec and to decode any audio file into raw PCM for
// a voice agent.
package ffmpeg

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os/exec"
	"strconv"
	"strings"

	"github.com/MrWong99/soundboard/pkg/audio"
)

// Compile-time interface assertion.
var _ audio.Decoder = (*FFmpeg)(nil)

const (
	defaultBinary  = "ffmpeg"
	defaultBitrate = "64k"

	// maxOutput bounds how much diagnostic output is kept per run.
	maxOutput = 8 << 10
)

// Error reports a failed ffmpeg run together with what the tool printed.
type Error struct {
	Op     string // "transcode" or "decode"
	Path   string
	Output string
	Err    error
}

// Error implements error.
func (e *Error) Error() string {
	if e.Output == "" {
		return fmt.Sprintf("ffmpeg: %s %q: %v", e.Op, e.Path, e.Err)
	}
	return fmt.Sprintf("ffmpeg: %s %q: %v: %s", e.Op, e.Path, e.Err, e.Output)
}

// Unwrap returns the process error.
func (e *Error) Unwrap() error { return e.Err }

// Option is a functional option for configuring FFmpeg.
type Option func(*FFmpeg)

// WithBinary sets the ffmpeg executable name or path. Defaults to "ffmpeg"
// looked up on PATH.
func WithBinary(path string) Option {
	return func(f *FFmpeg) {
		f.binary = path
	}
}

// WithBitrate sets the Opus bitrate used by Transcode (e.g., "96k").
func WithBitrate(b string) Option {
	return func(f *FFmpeg) {
		f.bitrate = b
	}
}

// WithFormat sets the PCM format Decode produces. Defaults to 48 kHz stereo.
func WithFormat(format audio.Format) Option {
	return func(f *FFmpeg) {
		f.format = format
	}
}

// FFmpeg wraps a resolved ffmpeg executable. It is safe for concurrent use;
// every call spawns its own process.
type FFmpeg struct {
	binary  string
	path    string
	bitrate string
	format  audio.Format
}

// New resolves the ffmpeg executable and returns an FFmpeg. It fails when the
// binary cannot be found.
func New(opts ...Option) (*FFmpeg, error) {
	f := &FFmpeg{
		binary:  defaultBinary,
		bitrate: defaultBitrate,
		format:  audio.Format{SampleRate: 48000, Channels: 2},
	}
	for _, o := range opts {
		o(f)
	}
	p, err := exec.LookPath(f.binary)
	if err != nil {
		return nil, fmt.Errorf("ffmpeg: locate %q: %w", f.binary, err)
	}
	f.path = p
	return f, nil
}

// Path returns the resolved executable.
func (f *FFmpeg) Path() string { return f.path }

// Transcode converts src to an Opus file at dst, overwriting dst.
// A failed run returns *[Error] carrying ffmpeg's output.
func (f *FFmpeg) Transcode(ctx context.Context, src, dst string) error {
	args := []string{
		"-hide_banner", "-loglevel", "error", "-nostdin", "-y",
		"-i", src,
		"-vn", "-c:a", "libopus", "-b:a", f.bitrate,
		dst,
	}
	cmd := exec.CommandContext(ctx, f.path, args...)
	out, err := cmd.CombinedOutput()
	if err != nil {
		return &Error{Op: "transcode", Path: src, Output: trimOutput(out), Err: err}
	}
	return nil
}

// Decode starts ffmpeg decoding path to raw little-endian int16 PCM on
// stdout. Cancelling ctx kills the process. Close reports a decoding failure
// only when the output was read to the end.
func (f *FFmpeg) Decode(ctx context.Context, path string) (*audio.Stream, error) {
	args := []string{
		"-hide_banner", "-loglevel", "error", "-nostdin",
		"-i", path,
		"-vn", "-f", "s16le",
		"-ar", strconv.Itoa(f.format.SampleRate),
		"-ac", strconv.Itoa(f.format.Channels),
		"pipe:1",
	}
	cmd := exec.CommandContext(ctx, f.path, args...)
	stderr := &limitedBuffer{max: maxOutput}
	cmd.Stderr = stderr
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("ffmpeg: decode %q: stdout: %w", path, err)
	}
	if err := cmd.Start(); err != nil {
		return nil, &Error{Op: "decode", Path: path, Err: err}
	}
	return &audio.Stream{
		ReadCloser: &process{cmd: cmd, stdout: stdout, stderr: stderr, path: path},
		Format:     f.format,
	}, nil
}

// process is a running decode whose stdout is the PCM stream.
type process struct {
	cmd    *exec.Cmd
	stdout io.ReadCloser
	stderr *limitedBuffer
	path   string
	eof    bool
	closed bool
}

func (p *process) Read(b []byte) (int, error) {
	n, err := p.stdout.Read(b)
	if errors.Is(err, io.EOF) {
		p.eof = true
	}
	return n, err
}

// Close waits for the process to exit. An abandoned stream is killed first.
func (p *process) Close() error {
	if p.closed {
		return nil
	}
	p.closed = true
	if !p.eof && p.cmd.Process != nil {
		_ = p.cmd.Process.Kill()
	}
	err := p.cmd.Wait()
	if err != nil && p.eof {
		return &Error{Op: "decode", Path: p.path, Output: trimOutput(p.stderr.Bytes()), Err: err}
	}
	return nil
}

// limitedBuffer keeps the first max bytes written to it.
type limitedBuffer struct {
	buf bytes.Buffer
	max int
}

func (l *limitedBuffer) Write(b []byte) (int, error) {
	if room := l.max - l.buf.Len(); room > 0 {
		if len(b) > room {
			l.buf.Write(b[:room])
		} else {
			l.buf.Write(b)
		}
	}
	return len(b), nil
}

func (l *limitedBuffer) Bytes() []byte { return l.buf.Bytes() }

func trimOutput(out []byte) string {
	if len(out) > maxOutput {
		out = out[:maxOutput]
	}
	return strings.TrimSpace(string(out))
}
