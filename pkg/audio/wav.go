package audio

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"
	"os"
)

// NewWavBuffer wraps pcm in a canonical 16-bit mono PCM RIFF/WAVE container at
// sampleRate (sample rate only, mono 16-bit assumed) since that's the only
// format this core ever persists.
func NewWavBuffer(pcm []byte, sampleRate int) []byte {
	buf := new(bytes.Buffer)

	buf.WriteString("RIFF")
	binary.Write(buf, binary.LittleEndian, uint32(36+len(pcm)))
	buf.WriteString("WAVE")

	buf.WriteString("fmt ")
	binary.Write(buf, binary.LittleEndian, uint32(16))           // fmt chunk size
	binary.Write(buf, binary.LittleEndian, uint16(1))            // PCM
	binary.Write(buf, binary.LittleEndian, uint16(1))            // mono
	binary.Write(buf, binary.LittleEndian, uint32(sampleRate))   // sample rate
	binary.Write(buf, binary.LittleEndian, uint32(sampleRate*2)) // byte rate (16-bit mono)
	binary.Write(buf, binary.LittleEndian, uint16(2))            // block align
	binary.Write(buf, binary.LittleEndian, uint16(16))           // bits per sample

	buf.WriteString("data")
	binary.Write(buf, binary.LittleEndian, uint32(len(pcm)))
	buf.Write(pcm)

	return buf.Bytes()
}

// WriteFile persists pcm as a WAV file at path using the default format.
// This is the "persist" half of persist-then-play: callers must not hand a
// path to the playback primitive until this returns nil.
func WriteFile(path string, pcm []byte, sampleRate int) error {
	return os.WriteFile(path, NewWavBuffer(pcm, sampleRate), 0o644)
}

// Header is the parsed subset of a WAV fmt chunk needed to verify that
// persisted audio announces PCM/1ch/16-bit/24kHz.
type Header struct {
	AudioFormat   uint16
	Channels      uint16
	SampleRate    uint32
	BitsPerSample uint16
	DataLen       uint32
}

// ReadFile reads back a WAV file written by WriteFile/NewWavBuffer, returning
// the parsed header and the raw PCM payload. Used by round-trip tests and by
// anything that needs to verify what was actually persisted.
func ReadFile(path string) (Header, []byte, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Header{}, nil, err
	}
	return Decode(data)
}

// Decode parses a canonical WAV buffer produced by NewWavBuffer.
func Decode(data []byte) (Header, []byte, error) {
	r := bytes.NewReader(data)

	var riff [4]byte
	if _, err := io.ReadFull(r, riff[:]); err != nil || string(riff[:]) != "RIFF" {
		return Header{}, nil, fmt.Errorf("audio: not a RIFF file")
	}
	var riffSize uint32
	binary.Read(r, binary.LittleEndian, &riffSize)

	var wave [4]byte
	if _, err := io.ReadFull(r, wave[:]); err != nil || string(wave[:]) != "WAVE" {
		return Header{}, nil, fmt.Errorf("audio: not a WAVE file")
	}

	var fmtID [4]byte
	if _, err := io.ReadFull(r, fmtID[:]); err != nil || string(fmtID[:]) != "fmt " {
		return Header{}, nil, fmt.Errorf("audio: missing fmt chunk")
	}
	var fmtSize uint32
	binary.Read(r, binary.LittleEndian, &fmtSize)

	var h Header
	binary.Read(r, binary.LittleEndian, &h.AudioFormat)
	binary.Read(r, binary.LittleEndian, &h.Channels)
	binary.Read(r, binary.LittleEndian, &h.SampleRate)
	var byteRate uint32
	binary.Read(r, binary.LittleEndian, &byteRate)
	var blockAlign uint16
	binary.Read(r, binary.LittleEndian, &blockAlign)
	binary.Read(r, binary.LittleEndian, &h.BitsPerSample)

	if fmtSize > 16 {
		if _, err := r.Seek(int64(fmtSize-16), io.SeekCurrent); err != nil {
			return Header{}, nil, err
		}
	}

	var dataID [4]byte
	if _, err := io.ReadFull(r, dataID[:]); err != nil || string(dataID[:]) != "data" {
		return Header{}, nil, fmt.Errorf("audio: missing data chunk")
	}
	binary.Read(r, binary.LittleEndian, &h.DataLen)

	pcm := make([]byte, h.DataLen)
	if _, err := io.ReadFull(r, pcm); err != nil {
		return Header{}, nil, fmt.Errorf("audio: short data chunk: %w", err)
	}

	return h, pcm, nil
}

// MatchesDefault reports whether h announces the core's mandated format:
// PCM (code 1), mono, 16-bit, 24kHz.
func (h Header) MatchesDefault() bool {
	return h.AudioFormat == 1 &&
		h.Channels == uint16(Default.Channels) &&
		h.BitsPerSample == uint16(Default.BitsPerSample) &&
		h.SampleRate == uint32(Default.SampleRate)
}
