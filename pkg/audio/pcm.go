package audio

import (
	"fmt"
	"log/slog"
	"sync"
)

// Format describes the sample rate and channel count of a PCM stream.
type Format struct {
	SampleRate int
	Channels   int
}

// FrameBytes is the size in bytes of one interleaved sample frame.
func (f Format) FrameBytes() int { return 2 * f.Channels }

// String returns e.g. "48000Hz stereo".
func (f Format) String() string {
	ch := "mono"
	if f.Channels == 2 {
		ch = "stereo"
	} else if f.Channels > 2 {
		ch = fmt.Sprintf("%dch", f.Channels)
	}
	return fmt.Sprintf("%dHz %s", f.SampleRate, ch)
}

// Converter converts a chunked int16 PCM stream from one format to another.
// Chunks may split sample frames; the remainder is carried to the next call.
// Create one per stream; not safe for concurrent use.
type Converter struct {
	from, to Format
	carry    []byte
	warned   sync.Once
}

// NewConverter returns a converter from src to dst. Only mono and stereo are
// remixed; other channel counts are passed through unchanged.
func NewConverter(src, dst Format) *Converter {
	return &Converter{from: src, to: dst}
}

// Passthrough reports whether Convert returns its input unchanged.
func (c *Converter) Passthrough() bool { return c.from == c.to }

// Convert converts chunk. The result may be shorter than a full chunk when a
// partial sample frame is carried over.
func (c *Converter) Convert(chunk []byte) []byte {
	if c.Passthrough() {
		return chunk
	}
	c.warned.Do(func() {
		slog.Debug("audio: converting pcm stream", "from", c.from, "to", c.to)
	})

	pcm := chunk
	if len(c.carry) > 0 {
		pcm = append(c.carry, chunk...)
		c.carry = nil
	}
	fb := c.from.FrameBytes()
	if fb <= 0 {
		return nil
	}
	if rem := len(pcm) % fb; rem != 0 {
		c.carry = append([]byte(nil), pcm[len(pcm)-rem:]...)
		pcm = pcm[:len(pcm)-rem]
	}

	channels := c.from.Channels
	// Downmix before resampling so fewer samples are interpolated.
	if channels == 2 && c.to.Channels == 1 {
		pcm = StereoToMono(pcm)
		channels = 1
	}
	pcm = Resample16(pcm, channels, c.from.SampleRate, c.to.SampleRate)
	if channels == 1 && c.to.Channels == 2 {
		pcm = MonoToStereo(pcm)
	}
	return pcm
}

// MonoToStereo duplicates each int16 mono sample into an L+R pair.
func MonoToStereo(pcm []byte) []byte {
	out := make([]byte, (len(pcm)/2)*4)
	for i := 0; i+1 < len(pcm); i += 2 {
		j := i * 2
		out[j], out[j+1] = pcm[i], pcm[i+1]
		out[j+2], out[j+3] = pcm[i], pcm[i+1]
	}
	return out
}

// StereoToMono averages L and R of each stereo frame.
func StereoToMono(pcm []byte) []byte {
	frames := len(pcm) / 4
	out := make([]byte, frames*2)
	for i := range frames {
		avg := (int32(sampleAt(pcm, i*2)) + int32(sampleAt(pcm, i*2+1))) / 2
		putSample(out, i, int16(avg))
	}
	return out
}

// Resample16 resamples interleaved int16 PCM with the given channel count
// from srcRate to dstRate by linear interpolation. Non-positive or equal
// rates return the input unchanged.
func Resample16(pcm []byte, channels, srcRate, dstRate int) []byte {
	if srcRate <= 0 || dstRate <= 0 || srcRate == dstRate || channels <= 0 {
		return pcm
	}
	fb := 2 * channels
	srcFrames := len(pcm) / fb
	if srcFrames == 0 {
		return pcm
	}
	dstFrames := int(int64(srcFrames) * int64(dstRate) / int64(srcRate))
	if dstFrames == 0 {
		return nil
	}

	out := make([]byte, dstFrames*fb)
	ratio := float64(srcRate) / float64(dstRate)
	for i := range dstFrames {
		pos := float64(i) * ratio
		idx := int(pos)
		frac := pos - float64(idx)
		next := idx + 1
		if next >= srcFrames {
			next = idx
		}
		for ch := range channels {
			s0 := float64(sampleAt(pcm, idx*channels+ch))
			s1 := float64(sampleAt(pcm, next*channels+ch))
			putSample(out, i*channels+ch, int16(s0*(1-frac)+s1*frac))
		}
	}
	return out
}

// Silence returns n bytes of zeroed PCM.
func Silence(n int) []byte { return make([]byte, n) }

func sampleAt(pcm []byte, i int) int16 {
	return int16(pcm[i*2]) | int16(pcm[i*2+1])<<8
}

func putSample(pcm []byte, i int, s int16) {
	pcm[i*2] = byte(s)
	pcm[i*2+1] = byte(s >> 8)
}
