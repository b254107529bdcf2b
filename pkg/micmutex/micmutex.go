// Package micmutex implements the process-wide microphone availability flag
// that gates CaptureActor against self-hearing while SynthesisActor (or any
// other "noisy" activity) is audible. It is a reference-counted availability
// flag, not a mutual-exclusion lock: multiple named activities may hold it
// concurrently, and it is available only when none do.
package micmutex

import (
	"sync"

	"github.com/nevil-robotics/audio-core/pkg/telemetry"
)

// MicMutex is the shared, lock-protected availability flag. The zero value
// is not usable; construct with New.
type MicMutex struct {
	mu     sync.Mutex
	counts map[string]int
	logger telemetry.Logger
}

// New creates an available MicMutex. A nil logger is replaced with a no-op.
func New(logger telemetry.Logger) *MicMutex {
	return &MicMutex{
		counts: make(map[string]int),
		logger: telemetry.OrNoOp(logger),
	}
}

// Handle is returned by Acquire and consumed by Release. Modeling the
// acquisition as a value that must be released, rather than a bare
// acquire/release pair of calls, makes "release without a matching acquire"
// a runtime impossibility for any caller that only ever calls Handle.Release
// on a Handle it was actually given.
type Handle struct {
	m        *MicMutex
	name     string
	mu       sync.Mutex
	released bool
}

// Acquire registers activity name as holding the microphone unavailable and
// returns a Handle that releases exactly this acquisition. The same name may
// be acquired multiple times concurrently (e.g. by concurrent TTS turns);
// each acquisition needs its own Release.
func (m *MicMutex) Acquire(name string) *Handle {
	m.mu.Lock()
	m.counts[name]++
	m.mu.Unlock()
	return &Handle{m: m, name: name}
}

// Release releases this handle's acquisition. Idempotent: a second call is a
// logged no-op rather than a panic or an over-release of the shared count --
// the failure mode a release-without-a-matching-acquire bug would otherwise
// produce.
func (h *Handle) Release() {
	h.mu.Lock()
	if h.released {
		h.mu.Unlock()
		h.m.logger.Error("mic mutex handle released twice", "activity", h.name)
		return
	}
	h.released = true
	h.mu.Unlock()

	h.m.mu.Lock()
	defer h.m.mu.Unlock()
	if h.m.counts[h.name] > 0 {
		h.m.counts[h.name]--
		if h.m.counts[h.name] == 0 {
			delete(h.m.counts, h.name)
		}
	}
}

// Available reports whether the microphone is free: no activity currently
// holds the mutex.
func (m *MicMutex) Available() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.counts) == 0
}

// Activities returns the set of activity names currently holding the mutex.
func (m *MicMutex) Activities() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]string, 0, len(m.counts))
	for name := range m.counts {
		out = append(out, name)
	}
	return out
}
