package capture

import (
	"context"
	"fmt"

	"github.com/gen2brain/malgo"
	"github.com/nevil-robotics/audio-core/pkg/audio"
)

// MicDevice is the hardware input abstraction CaptureActor reads from. The
// microphone device is owned exclusively by CaptureActor.
type MicDevice interface {
	// ReadChunk blocks until one audio.ChunkBytes-sized chunk is available,
	// or ctx is done.
	ReadChunk(ctx context.Context) ([]byte, error)
	Close() error
}

// MalgoMic is a MicDevice backed by gen2brain/malgo: a capture-only device
// whose onSamples callback pushes fixed-size chunks into a channel instead
// of writing directly into a stream.
type MalgoMic struct {
	mctx   *malgo.AllocatedContext
	device *malgo.Device
	chunks chan []byte
	errs   chan error

	pending []byte
}

// OpenMalgoMic opens the default capture device at the fixed 24kHz mono
// 16-bit format. deviceID is accepted but not used to select a device.
func OpenMalgoMic(deviceID string) (*MalgoMic, error) {
	mctx, err := malgo.InitContext(nil, malgo.ContextConfig{}, nil)
	if err != nil {
		return nil, fmt.Errorf("capture: init malgo context: %w", err)
	}

	m := &MalgoMic{
		mctx:   mctx,
		chunks: make(chan []byte, 8),
		errs:   make(chan error, 1),
	}

	deviceConfig := malgo.DefaultDeviceConfig(malgo.Capture)
	deviceConfig.Capture.Format = malgo.FormatS16
	deviceConfig.Capture.Channels = uint32(audio.Default.Channels)
	deviceConfig.SampleRate = uint32(audio.Default.SampleRate)
	deviceConfig.Alsa.NoMMap = 1

	onSamples := func(_, pInput []byte, _ uint32) {
		if len(pInput) == 0 {
			return
		}
		chunk := make([]byte, len(pInput))
		copy(chunk, pInput)
		select {
		case m.chunks <- chunk:
		default:
			// Device callback must never block; drop under sustained
			// backpressure rather than stall the audio thread.
		}
	}

	device, err := malgo.InitDevice(mctx.Context, deviceConfig, malgo.DeviceCallbacks{Data: onSamples})
	if err != nil {
		mctx.Uninit()
		return nil, fmt.Errorf("capture: init device: %w", err)
	}
	m.device = device

	if err := device.Start(); err != nil {
		device.Uninit()
		mctx.Uninit()
		return nil, fmt.Errorf("capture: start device: %w", err)
	}

	return m, nil
}

// ReadChunk assembles audio.ChunkBytes worth of PCM from the device's raw
// callback deliveries, which may not align to the configured chunk size.
func (m *MalgoMic) ReadChunk(ctx context.Context) ([]byte, error) {
	for len(m.pending) < audio.ChunkBytes {
		select {
		case chunk, ok := <-m.chunks:
			if !ok {
				return nil, fmt.Errorf("capture: device closed")
			}
			m.pending = append(m.pending, chunk...)
		case err := <-m.errs:
			return nil, err
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	out := m.pending[:audio.ChunkBytes]
	m.pending = m.pending[audio.ChunkBytes:]
	return out, nil
}

// Close stops and releases the device.
func (m *MalgoMic) Close() error {
	if m.device != nil {
		m.device.Uninit()
	}
	if m.mctx != nil {
		m.mctx.Uninit()
	}
	return nil
}
