package config

import (
	"os"
	"testing"
)

func TestLoadAppliesEnvironmentOverrides(t *testing.T) {
	os.Setenv("NEVIL_VOICE", "breeze")
	os.Setenv("NEVIL_VAD_THRESHOLD", "0.05")
	os.Setenv("NEVIL_WAV_DIR", "/tmp/nevil-wav")
	os.Setenv("NEVIL_GATE_ON_SILENCE", "false")
	defer os.Unsetenv("NEVIL_VOICE")
	defer os.Unsetenv("NEVIL_VAD_THRESHOLD")
	defer os.Unsetenv("NEVIL_WAV_DIR")
	defer os.Unsetenv("NEVIL_GATE_ON_SILENCE")

	cfg := Load()

	if cfg.Transport.Voice != "breeze" {
		t.Errorf("expected voice override, got %q", cfg.Transport.Voice)
	}
	if cfg.Audio.VADThreshold != 0.05 {
		t.Errorf("expected vad threshold override, got %v", cfg.Audio.VADThreshold)
	}
	if cfg.Synthesis.WavDir != "/tmp/nevil-wav" {
		t.Errorf("expected wav dir override, got %q", cfg.Synthesis.WavDir)
	}
	if cfg.Audio.GateOnSilence {
		t.Errorf("expected gate_on_silence override to false")
	}
}

func TestLoadFallsBackToDefaultsWhenUnset(t *testing.T) {
	os.Unsetenv("NEVIL_VOICE")
	cfg := Load()
	if cfg.Transport.Voice != Default().Transport.Voice {
		t.Errorf("expected default voice, got %q", cfg.Transport.Voice)
	}
}
