// Package audio holds the single audio format the core speaks, plus the
// small set of PCM utilities (WAV framing, RMS, gain, padding) every actor
// builds on. Centralizing the format here means no caller has to repeat the
// 24kHz/16-bit/mono/little-endian assumption.
package audio

import "time"

// Format describes the fixed wire/storage format used throughout the core:
// 16-bit signed little-endian PCM, mono, 24kHz. Resampling is explicitly out
// of scope; callers that receive audio in another format are expected to
// have resampled before it reaches these utilities.
type Format struct {
	SampleRate    int
	Channels      int
	BitsPerSample int
}

// Default is the fixed format every component in this core assumes.
var Default = Format{SampleRate: 24000, Channels: 1, BitsPerSample: 16}

// BytesPerSample returns the frame size in bytes for one channel-sample.
func (f Format) BytesPerSample() int {
	return f.BitsPerSample / 8
}

// ChunkSamples is the nominal chunk size used by capture: 4,800 samples
// (200ms at 24kHz).
const ChunkSamples = 4800

// ChunkBytes is ChunkSamples expressed in bytes for the default format.
const ChunkBytes = ChunkSamples * 2

// ChunkDuration is the nominal duration of one capture chunk.
const ChunkDuration = 200 * time.Millisecond

// DurationOf returns the playback duration of n bytes of PCM at f.
func (f Format) DurationOf(n int) time.Duration {
	bps := f.BytesPerSample() * f.Channels
	if bps == 0 || f.SampleRate == 0 {
		return 0
	}
	samples := n / bps
	return time.Duration(samples) * time.Second / time.Duration(f.SampleRate)
}
