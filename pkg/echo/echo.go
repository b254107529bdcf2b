package echo

import (
	"bytes"
	"math"
	"sync"
	"time"
)

// Suppressor detects when captured audio is correlated with recently
// played-back audio, as a defense-in-depth layer behind MicMutex: the
// mutex gate prevents capture from reading at all while synthesis holds it,
// but room reverb can carry a tail of speaker audio past the release point.
// Adapted from a correlation-based echo suppressor, retuned for the fixed
// 24kHz mono format pkg/audio defines. The offline post-processing helpers
// that design exposed (a batch post-process pass, a sliding time-domain
// cancellation pass) are not carried over: nothing in this core calls them,
// since the mutex gate -- not the correlation detector -- is the primary
// feedback guard.
type Suppressor struct {
	mu             sync.Mutex
	playedAudioBuf *bytes.Buffer
	maxBufSize     int
	echoThreshold  float64
	echoSilenceMS  int
	lastPlayedAt   time.Time
	enabled        bool
}

// New creates an echo suppressor sized for 24kHz mono 16-bit
// PCM, retaining roughly 2 seconds of recently-played audio.
func New() *Suppressor {
	return &Suppressor{
		playedAudioBuf: new(bytes.Buffer),
		maxBufSize:     96000, // 2s at 24kHz, 16-bit mono
		echoThreshold:  0.55,
		echoSilenceMS:  1200,
		enabled:        true,
	}
}

// RecordPlayedAudio records audio that was just written to the speaker.
func (es *Suppressor) RecordPlayedAudio(chunk []byte) {
	if !es.enabled || len(chunk) == 0 {
		return
	}
	es.mu.Lock()
	defer es.mu.Unlock()

	es.playedAudioBuf.Write(chunk)
	es.lastPlayedAt = time.Now()

	if es.playedAudioBuf.Len() > es.maxBufSize {
		data := es.playedAudioBuf.Bytes()
		trim := data[len(data)-es.maxBufSize:]
		es.playedAudioBuf.Reset()
		es.playedAudioBuf.Write(trim)
	}
}

// IsEcho reports whether inputChunk correlates highly with recently played
// audio.
func (es *Suppressor) IsEcho(inputChunk []byte) bool {
	if !es.enabled || len(inputChunk) == 0 {
		return false
	}
	es.mu.Lock()
	defer es.mu.Unlock()

	if time.Since(es.lastPlayedAt) > time.Duration(es.echoSilenceMS)*time.Millisecond {
		return false
	}

	played := es.playedAudioBuf.Bytes()
	if len(played) == 0 {
		return false
	}

	return es.correlate(inputChunk, played) > es.echoThreshold
}

func (es *Suppressor) correlate(input, reference []byte) float64 {
	inSamples := bytesToSamples(input)
	refSamples := bytesToSamples(reference)
	if len(inSamples) == 0 || len(refSamples) == 0 {
		return 0
	}

	compareLen := len(inSamples)
	if compareLen > len(refSamples) {
		compareLen = len(refSamples)
	}
	refCompare := refSamples[len(refSamples)-compareLen:]

	inEnergy := energy(inSamples)
	refEnergy := energy(refCompare)
	if inEnergy == 0 || refEnergy == 0 {
		return 0
	}

	dot := 0.0
	for i := 0; i < compareLen; i++ {
		dot += inSamples[i] * refCompare[i]
	}

	norm := math.Sqrt(inEnergy * refEnergy)
	if norm == 0 {
		return 0
	}
	corr := dot / norm
	if corr < 0 {
		return 0
	}
	if corr > 1 {
		return 1
	}
	return corr
}

// ClearEchoBuffer discards recorded playback history, called when synthesis
// releases the mic mutex.
func (es *Suppressor) ClearEchoBuffer() {
	es.mu.Lock()
	defer es.mu.Unlock()
	es.playedAudioBuf.Reset()
}

// SetEnabled enables or disables echo suppression.
func (es *Suppressor) SetEnabled(enabled bool) {
	es.mu.Lock()
	defer es.mu.Unlock()
	es.enabled = enabled
}

func bytesToSamples(data []byte) []float64 {
	samples := make([]float64, 0, len(data)/2)
	for i := 0; i < len(data)-1; i += 2 {
		sample := int16(data[i]) | (int16(data[i+1]) << 8)
		samples = append(samples, float64(sample)/32768.0)
	}
	return samples
}

func energy(samples []float64) float64 {
	sum := 0.0
	for _, s := range samples {
		sum += s * s
	}
	return sum
}
