// Package synth implements SynthesisActor: it assembles streamed synthesis
// audio into a WAV file and plays it through the fixed, blocking, file-based
// playback primitive, holding MicMutex for the duration. The threading split
// (event handling vs. blocking playback thread, coordinated by a handoff
// channel) keeps a slow hardware write off the event-dispatch path; the
// playback primitive itself is grounded on malgo device setup (see
// playback.go).
package synth

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/nevil-robotics/audio-core/pkg/bus"
	"github.com/nevil-robotics/audio-core/pkg/echo"
	"github.com/nevil-robotics/audio-core/pkg/micmutex"
	"github.com/nevil-robotics/audio-core/pkg/audio"
	"github.com/nevil-robotics/audio-core/pkg/session"
	"github.com/nevil-robotics/audio-core/pkg/telemetry"
)

const micActivity = "speaking"

// Transport is the subset of *session.Transport SynthesisActor depends on.
type Transport interface {
	Send(event json.Marshaler) error
	Subscribe(eventType session.EventType, handler session.Handler) func()
}

// Config holds SynthesisActor's options.
type Config struct {
	WavDir            string
	WavRetentionCount int
	Voice             string
	Instructions      string
}

// DefaultConfig returns the documented baseline.
func DefaultConfig() Config {
	return Config{WavDir: "./wav", WavRetentionCount: 10, Voice: "verse"}
}

// Actor is SynthesisActor.
type Actor struct {
	cfg       Config
	mutex     *micmutex.MicMutex
	transport Transport
	msgBus    *bus.Bus
	playback  Playback
	echo      *echo.Suppressor
	logger    telemetry.Logger

	mu            sync.Mutex
	current       *audioResponse
	holdingMutex  bool
	releaseOnce   sync.Once
	handle        *micmutex.Handle
	playbackQueue chan playbackJob

	unsubs []func()
	stopCh chan struct{}
	wg     sync.WaitGroup
}

type playbackJob struct {
	responseID string
	path       string
}

// New constructs a SynthesisActor.
func New(cfg Config, mutex *micmutex.MicMutex, transport Transport, msgBus *bus.Bus, playback Playback, echoSup *echo.Suppressor, logger telemetry.Logger) *Actor {
	return &Actor{
		cfg:           cfg,
		mutex:         mutex,
		transport:     transport,
		msgBus:        msgBus,
		playback:      playback,
		echo:          echoSup,
		logger:        telemetry.OrNoOp(logger),
		playbackQueue: make(chan playbackJob, 4),
		stopCh:        make(chan struct{}),
	}
}

// Start registers all subscriptions and launches the playback thread.
func (a *Actor) Start() {
	a.unsubs = append(a.unsubs,
		a.transport.Subscribe(session.EventResponseAudioDelta, a.onAudioDelta),
		a.transport.Subscribe(session.EventResponseAudioDone, a.onAudioDone),
		a.transport.Subscribe(session.EventResponseDone, a.onResponseDone),
		a.transport.Subscribe(session.EventResponseCreated, a.onResponseCreated),
	)

	if a.msgBus != nil {
		textCh, unsubscribe := a.msgBus.Subscribe(bus.TopicTextResponse)
		a.unsubs = append(a.unsubs, unsubscribe)
		a.wg.Add(1)
		go a.consumeTextResponses(textCh)
	}

	a.wg.Add(1)
	go a.playbackLoop()
}

// Stop unsubscribes everything and waits for background goroutines to exit.
func (a *Actor) Stop() {
	for _, u := range a.unsubs {
		u()
	}
	close(a.stopCh)
	close(a.playbackQueue)
	a.wg.Wait()
}

func (a *Actor) consumeTextResponses(ch <-chan bus.Message) {
	defer a.wg.Done()
	for msg := range ch {
		tr, ok := msg.Payload.(bus.TextResponse)
		if !ok {
			continue
		}
		a.beginTurn(tr.Voice, tr.Text)
	}
}

// beginTurn implements the Pre-request step: acquire MicMutex, clear any
// server-accumulated audio, publish speaking_status{true}, then request a
// response.
func (a *Actor) beginTurn(voice, instructions string) {
	a.mu.Lock()
	if a.holdingMutex {
		a.mu.Unlock()
		return // a turn is already in flight
	}
	a.handle = a.mutex.Acquire(micActivity)
	a.holdingMutex = true
	a.releaseOnce = sync.Once{}
	a.mu.Unlock()

	if err := a.transport.Send(session.OutboundClear()); err != nil {
		a.logger.Warn("synth: clear send failed", "err", err)
	}
	a.publishSpeaking(true, instructions)

	if voice == "" {
		voice = a.cfg.Voice
	}
	if err := a.transport.Send(session.OutboundResponseCreate([]string{"audio", "text"}, voice, instructions)); err != nil {
		a.logger.Warn("synth: response.create send failed", "err", err)
	}
}

// onResponseCreated handles a response the model started without a prior
// text_response bus message (an AI-initiated response.create). The core
// cannot gate the mutex before such a request leaves the transport -- that
// request was not ours to intercept -- so it acquires as soon as the
// session confirms the response exists, the earliest point this actor can
// observe it.
func (a *Actor) onResponseCreated(evt session.Event) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.holdingMutex {
		return
	}
	a.handle = a.mutex.Acquire(micActivity)
	a.holdingMutex = true
	a.releaseOnce = sync.Once{}
	a.publishSpeaking(true, "")
}

func (a *Actor) onAudioDelta(evt session.Event) {
	if evt.Delta == "" {
		return
	}
	pcm, err := base64.StdEncoding.DecodeString(evt.Delta)
	if err != nil {
		a.logger.Warn("synth: malformed audio delta", "err", err)
		return
	}

	a.mu.Lock()
	defer a.mu.Unlock()
	if a.current == nil || a.current.responseID != evt.ResponseID {
		a.current = newAudioResponse(evt.ResponseID)
	}
	a.current.appendDelta(pcm)
}

func (a *Actor) onAudioDone(evt session.Event) {
	a.mu.Lock()
	resp := a.current
	if resp == nil || resp.responseID != evt.ResponseID {
		a.mu.Unlock()
		return // orphaned done for an id we never buffered
	}
	resp.state = stateComplete
	pcm := resp.pcm
	a.mu.Unlock()

	path, err := a.persist(pcm)
	if err != nil {
		a.logger.Error("synth: wav write failed", "err", err)
		a.releaseMutex()
		return
	}

	a.mu.Lock()
	if a.current != nil && a.current.responseID == evt.ResponseID {
		a.current.state = statePlaying
	}
	a.mu.Unlock()

	select {
	case a.playbackQueue <- playbackJob{responseID: evt.ResponseID, path: path}:
	case <-a.stopCh:
	}
}

func (a *Actor) onResponseDone(evt session.Event) {
	a.mu.Lock()
	hasAudio := a.current != nil && a.current.responseID == evt.ResponseID && len(a.current.pcm) > 0
	a.mu.Unlock()
	if !hasAudio {
		// Text-only turn: no playback job was ever queued, release now.
		a.releaseMutex()
	}
}

func (a *Actor) persist(pcm []byte) (string, error) {
	if err := os.MkdirAll(a.cfg.WavDir, 0o755); err != nil {
		return "", fmt.Errorf("mkdir wav dir: %w", err)
	}
	name := fmt.Sprintf("%d.wav", time.Now().UnixNano())
	path := filepath.Join(a.cfg.WavDir, name)
	if err := audio.WriteFile(path, pcm, audio.Default.SampleRate); err != nil {
		return "", err
	}
	if err := enforceRetention(a.cfg.WavDir, a.cfg.WavRetentionCount); err != nil {
		a.logger.Warn("synth: retention cleanup failed", "err", err)
	}
	return path, nil
}

func (a *Actor) playbackLoop() {
	defer a.wg.Done()
	for job := range a.playbackQueue {
		if err := a.playback.Play(job.path); err != nil {
			a.logger.Error("synth: playback failed", "err", err, "path", job.path)
		}
		a.releaseMutex()

		a.mu.Lock()
		if a.current != nil && a.current.responseID == job.responseID {
			a.current.state = stateDone
			a.current = nil
		}
		a.mu.Unlock()
	}
}

func (a *Actor) releaseMutex() {
	a.mu.Lock()
	defer a.mu.Unlock()
	if !a.holdingMutex {
		return
	}
	a.releaseOnce.Do(func() {
		a.publishSpeaking(false, "")
		a.handle.Release()
		if a.echo != nil {
			a.echo.ClearEchoBuffer()
		}
		a.holdingMutex = false
	})
}

func (a *Actor) publishSpeaking(speaking bool, text string) {
	if a.msgBus == nil {
		return
	}
	a.msgBus.Publish(bus.TopicSpeakingStatus, bus.SpeakingStatus{
		Speaking:  speaking,
		Text:      text,
		Timestamp: time.Now(),
	}, "synthesis")
}

// CancelInFlight implements the barge-in Interruption policy: if the current
// response is still BUFFERING, discard it and release the mutex; if it is
// already PLAYING, the primitive finishes the file (playback is atomic per
// file) and the mutex releases when it returns.
func (a *Actor) CancelInFlight() {
	if err := a.transport.Send(session.OutboundResponseCancel()); err != nil {
		a.logger.Warn("synth: cancel send failed", "err", err)
	}

	a.mu.Lock()
	buffering := a.current != nil && a.current.state == stateBuffering
	if buffering {
		a.current = nil
	}
	a.mu.Unlock()

	if buffering {
		a.releaseMutex()
	}
}
