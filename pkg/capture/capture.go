// Package capture implements CaptureActor: a cost-efficient, feedback-safe
// producer of input_audio_buffer.append events containing only the user's
// speech plus a small context pad. State-machine shape and VAD technique
// are grounded on an RMS-threshold detector with hysteresis/consecutive-
// frame confirmation, generalized into an IDLE/SPEAKING/TRAILING
// utterance lifecycle and gated by MicMutex.
package capture

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"time"

	"github.com/nevil-robotics/audio-core/pkg/audio"
	"github.com/nevil-robotics/audio-core/pkg/bus"
	"github.com/nevil-robotics/audio-core/pkg/echo"
	"github.com/nevil-robotics/audio-core/pkg/micmutex"
	"github.com/nevil-robotics/audio-core/pkg/session"
	"github.com/nevil-robotics/audio-core/pkg/telemetry"
)

// EventSender is the subset of *session.Transport CaptureActor depends on.
// Narrowing to an interface keeps this package testable without a live
// transport.
type EventSender interface {
	Send(event json.Marshaler) error
}

// BargeInCanceler is the subset of SynthesisActor CaptureActor depends on to
// implement barge-in: a new user commit must cancel any response still in
// flight from the previous turn before that turn's implicit response.create
// is requested.
type BargeInCanceler interface {
	CancelInFlight()
}

// utteranceState is the per-chunk VAD state of an in-progress utterance.
type utteranceState int

const (
	stateIdle utteranceState = iota
	stateSpeaking
	stateTrailing
)

const chunkMs = int(audio.ChunkDuration / time.Millisecond)

// Config holds CaptureActor's audio-gating options.
type Config struct {
	VADEnabled          bool
	VADThreshold        float64
	MinSpeechDurationMs int
	SilenceDurationMs   int
	SilencePaddingMs    int
	CommitCooldownMs    int
	SoftwareGain        float64
	GateOnSilence       bool
	MaxConsecutiveReadErrors int
}

// DefaultConfig returns the documented baseline.
func DefaultConfig() Config {
	return Config{
		VADEnabled:               true,
		VADThreshold:             0.02,
		MinSpeechDurationMs:      300,
		SilenceDurationMs:        300,
		SilencePaddingMs:         300,
		CommitCooldownMs:         2000,
		SoftwareGain:             1.0,
		GateOnSilence:            true,
		MaxConsecutiveReadErrors: 20,
	}
}

// Actor is CaptureActor.
type Actor struct {
	cfg       Config
	device    MicDevice
	mutex     *micmutex.MicMutex
	transport EventSender
	msgBus    *bus.Bus
	logger    telemetry.Logger
	detector  *Detector
	ring      *audio.PaddingRing
	echo      *echo.Suppressor
	synth     BargeInCanceler

	state            utteranceState
	consecutiveAbove int
	trailingFrames   int
	lastCommitAt     time.Time

	chunksSent    int
	chunksSkipped int
	readErrors    int
}

// New constructs a CaptureActor. synth may be nil if barge-in cancellation
// is not wired (e.g. in tests that don't exercise it).
func New(cfg Config, device MicDevice, mutex *micmutex.MicMutex, transport EventSender, msgBus *bus.Bus, echoSup *echo.Suppressor, synth BargeInCanceler, logger telemetry.Logger) *Actor {
	paddingChunks := (cfg.SilencePaddingMs+cfg.MinSpeechDurationMs)/chunkMs + 1
	return &Actor{
		cfg:       cfg,
		device:    device,
		mutex:     mutex,
		transport: transport,
		msgBus:    msgBus,
		logger:    telemetry.OrNoOp(logger),
		detector:  NewDetector(cfg.VADThreshold),
		ring:      audio.NewPaddingRing(paddingChunks),
		echo:      echoSup,
		synth:     synth,
	}
}

// Run drives the capture loop until ctx is cancelled or a fatal error
// occurs. It implements the per-chunk state machine in order.
func (a *Actor) Run(ctx context.Context) error {
	defer a.device.Close()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		// Step 1: mutex gate, pre-read.
		if !a.mutex.Available() {
			a.ring.Clear()
			a.resetVAD()
			a.publishListening(false)
			time.Sleep(audio.ChunkDuration)
			continue
		}

		// Step 2: read.
		chunk, err := a.device.ReadChunk(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			if a.handleReadError(err) {
				return err
			}
			continue
		}
		a.readErrors = 0
		a.publishListening(true)

		// Step 3: compute RMS, then apply gain in the integer domain.
		rms := audio.RMS(chunk)
		if a.echo != nil && a.echo.IsEcho(chunk) {
			a.chunksSkipped++
			continue
		}
		if a.cfg.SoftwareGain > 0 && a.cfg.SoftwareGain != 1 {
			chunk = audio.ApplyGain(chunk, a.cfg.SoftwareGain)
		}

		// Step 4: VAD & gating, only if mutex still available.
		if !a.mutex.Available() {
			a.ring.Clear()
			a.resetVAD()
			continue
		}

		toSend, commit := a.processVAD(rms, chunk)

		// Step 5: mutex re-check, pre-send. Closes the race where mute
		// occurred mid-chunk: discard staged chunks and reset VAD state.
		if !a.mutex.Available() {
			a.ring.Clear()
			a.resetVAD()
			a.chunksSkipped += len(toSend)
			continue
		}

		for _, c := range toSend {
			a.sendAppend(c)
		}
		if commit {
			a.sendCommit()
		}
	}
}

// processVAD advances the utterance state machine by one chunk and returns
// the chunks to forward (if any) and whether a commit should be sent.
func (a *Actor) processVAD(rms float64, chunk []byte) ([][]byte, bool) {
	if !a.cfg.VADEnabled {
		return [][]byte{chunk}, false
	}

	above := a.detector.AboveThreshold(rms)

	switch a.state {
	case stateIdle:
		a.ring.Push(chunk)
		if !above {
			a.consecutiveAbove = 0
			a.chunksSkipped++
			return nil, false
		}
		a.consecutiveAbove++
		if a.consecutiveAbove*chunkMs < a.cfg.MinSpeechDurationMs {
			return nil, false
		}
		a.state = stateSpeaking
		a.consecutiveAbove = 0
		a.publishSpeechDetected(true)
		return a.ring.Drain(), false

	case stateSpeaking:
		if above {
			return [][]byte{chunk}, false
		}
		a.state = stateTrailing
		a.trailingFrames = 0
		fallthrough

	case stateTrailing:
		if above {
			a.state = stateSpeaking
			a.trailingFrames = 0
			return [][]byte{chunk}, false
		}
		a.trailingFrames++
		trailingLimit := a.cfg.SilencePaddingMs / chunkMs
		if trailingLimit < 1 {
			trailingLimit = 1
		}
		if a.trailingFrames < trailingLimit {
			return [][]byte{chunk}, false
		}

		a.state = stateIdle
		a.trailingFrames = 0
		a.publishSpeechDetected(false)

		if !a.cooldownElapsed() {
			// Commit suppressed during cooldown; audio already forwarded
			// this chunk is kept, the commit event is not.
			return [][]byte{chunk}, false
		}
		a.lastCommitAt = time.Now()
		return [][]byte{chunk}, true
	}

	return nil, false
}

func (a *Actor) cooldownElapsed() bool {
	return time.Since(a.lastCommitAt) >= time.Duration(a.cfg.CommitCooldownMs)*time.Millisecond
}

// resetVAD clears the utterance state and consecutive-frame counters, so
// stale VAD transitions from before a mute never trigger commits. The
// padding ring is cleared by the caller, not replayed.
func (a *Actor) resetVAD() {
	a.state = stateIdle
	a.consecutiveAbove = 0
	a.trailingFrames = 0
}

func (a *Actor) sendAppend(chunk []byte) {
	b64 := base64.StdEncoding.EncodeToString(chunk)
	if err := a.transport.Send(session.OutboundAppendAudio(b64)); err != nil {
		a.logger.Warn("capture: append send failed", "err", err)
		return
	}
	a.chunksSent++
}

// sendCommit cancels any synthesis response still in flight from the
// previous turn -- this new utterance is about to request its own response
// -- then commits the buffered audio. Barge-in: exactly one response.cancel
// precedes the new turn's implicit response.create.
func (a *Actor) sendCommit() {
	if a.synth != nil {
		a.synth.CancelInFlight()
	}
	if err := a.transport.Send(session.OutboundCommit()); err != nil {
		a.logger.Warn("capture: commit send failed", "err", err)
	}
}

func (a *Actor) publishSpeechDetected(speaking bool) {
	if a.msgBus == nil {
		return
	}
	a.msgBus.Publish(bus.TopicSpeechDetected, bus.SpeechDetected{
		Speaking:  speaking,
		Timestamp: time.Now(),
	}, "capture")
}

func (a *Actor) publishListening(listening bool) {
	if a.msgBus == nil {
		return
	}
	a.msgBus.Publish(bus.TopicListeningStatus, bus.ListeningStatus{
		Listening: listening,
		Timestamp: time.Now(),
	}, "capture")
}

// handleReadError counts a transient read error and reports whether the
// actor should stop (error rate exceeded threshold).
func (a *Actor) handleReadError(err error) bool {
	a.readErrors++
	a.logger.Warn("capture: transient read error", "err", err, "count", a.readErrors)
	if a.readErrors < a.cfg.MaxConsecutiveReadErrors {
		return false
	}
	a.logger.Error("capture: read error threshold exceeded, stopping", "err", err)
	if a.msgBus != nil {
		a.msgBus.Publish(bus.TopicListeningStatus, bus.ListeningStatus{
			Listening: false,
			Fault:     err.Error(),
			Timestamp: time.Now(),
		}, "capture")
	}
	return true
}

// Stats reports cost-accounting counters. Observable, does not affect
// behavior.
type Stats struct {
	ChunksSent    int
	ChunksSkipped int
}

// Stats returns a snapshot of the actor's cost-accounting counters.
func (a *Actor) Stats() Stats {
	return Stats{ChunksSent: a.chunksSent, ChunksSkipped: a.chunksSkipped}
}
