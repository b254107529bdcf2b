package synth

import (
	"fmt"
	"sync"

	"github.com/gen2brain/malgo"
	"github.com/nevil-robotics/audio-core/pkg/audio"
)

// Playback is the hardware playback primitive contract: given a path to a
// valid WAV file, play it to completion on the configured device. This
// call is blocking and file-based, and is never replaced, bypassed, or
// refactored by SynthesisActor -- only prepared for.
type Playback interface {
	Play(path string) error
}

// MalgoPlayback implements Playback with gen2brain/malgo, using the same
// "copy from a pending byte buffer, zero-fill the remainder" onSamples
// pattern as duplex device setups, here run to completion once per call
// instead of against a continuously fed stream.
type MalgoPlayback struct {
	deviceID  string
	onPlayed  func([]byte)
}

// NewMalgoPlayback constructs a MalgoPlayback. deviceID is stored but not
// used to select a device; Play always opens the default playback device.
// onPlayed, if non-nil, is invoked with each chunk as it is written to the
// device -- the composition root uses it to feed the echo suppressor's
// played-audio record.
func NewMalgoPlayback(deviceID string, onPlayed func([]byte)) *MalgoPlayback {
	return &MalgoPlayback{deviceID: deviceID, onPlayed: onPlayed}
}

// Play reads path as a WAV file matching the core's fixed format and blocks
// until every sample has been written to the device.
func (p *MalgoPlayback) Play(path string) error {
	header, pcm, err := audio.ReadFile(path)
	if err != nil {
		return fmt.Errorf("synth: read wav: %w", err)
	}
	if !header.MatchesDefault() {
		return fmt.Errorf("synth: %s does not match the core audio format", path)
	}

	mctx, err := malgo.InitContext(nil, malgo.ContextConfig{}, nil)
	if err != nil {
		return fmt.Errorf("synth: init malgo context: %w", err)
	}
	defer mctx.Uninit()

	deviceConfig := malgo.DefaultDeviceConfig(malgo.Playback)
	deviceConfig.Playback.Format = malgo.FormatS16
	deviceConfig.Playback.Channels = uint32(header.Channels)
	deviceConfig.SampleRate = header.SampleRate

	var mu sync.Mutex
	remaining := pcm
	done := make(chan struct{})
	var closeOnce sync.Once

	onSamples := func(pOutput, _ []byte, _ uint32) {
		mu.Lock()
		n := copy(pOutput, remaining)
		played := remaining[:n]
		remaining = remaining[n:]
		exhausted := len(remaining) == 0
		mu.Unlock()

		if n < len(pOutput) {
			for i := n; i < len(pOutput); i++ {
				pOutput[i] = 0
			}
		}
		if p.onPlayed != nil && n > 0 {
			p.onPlayed(played)
		}
		if exhausted {
			closeOnce.Do(func() { close(done) })
		}
	}

	device, err := malgo.InitDevice(mctx.Context, deviceConfig, malgo.DeviceCallbacks{Data: onSamples})
	if err != nil {
		return fmt.Errorf("synth: init device: %w", err)
	}
	defer device.Uninit()

	if err := device.Start(); err != nil {
		return fmt.Errorf("synth: start device: %w", err)
	}

	<-done
	return nil
}
