package audio

import (
	"bytes"
	"path/filepath"
	"testing"
)

func TestWavRoundTrip(t *testing.T) {
	pcm := make([]byte, 4800*2)
	for i := range pcm {
		pcm[i] = byte(i)
	}

	dir := t.TempDir()
	path := filepath.Join(dir, "response.wav")

	if err := WriteFile(path, pcm, Default.SampleRate); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	header, got, err := ReadFile(path)
	if err != nil {
		t.Fatalf("ReadFile: %v", err)
	}

	if !bytes.Equal(got, pcm) {
		t.Errorf("round trip produced different samples")
	}
	if !header.MatchesDefault() {
		t.Errorf("expected header to match default format, got %+v", header)
	}
}

func TestDecodeRejectsTruncatedData(t *testing.T) {
	wav := NewWavBuffer([]byte{1, 2, 3, 4}, Default.SampleRate)
	truncated := wav[:len(wav)-2]

	if _, _, err := Decode(truncated); err == nil {
		t.Error("expected an error decoding a truncated data chunk")
	}
}
