package config

import (
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
)

// Load populates Default() with environment variable overrides, loading a
// local .env file first. A missing .env file is not an error -- system
// environment variables still apply.
func Load() Config {
	// A missing .env file is not an error; system environment variables
	// still apply.
	_ = godotenv.Load()

	cfg := Default()

	cfg.Transport.EndpointURL = getString("NEVIL_ENDPOINT_URL", cfg.Transport.EndpointURL)
	cfg.Transport.AuthToken = os.Getenv("NEVIL_AUTH_TOKEN")
	cfg.Transport.ModelName = getString("NEVIL_MODEL_NAME", cfg.Transport.ModelName)
	cfg.Transport.Voice = getString("NEVIL_VOICE", cfg.Transport.Voice)
	cfg.Transport.Temperature = getFloat("NEVIL_TEMPERATURE", cfg.Transport.Temperature)
	cfg.Transport.MaxOutputTokens = getInt("NEVIL_MAX_OUTPUT_TOKENS", cfg.Transport.MaxOutputTokens)
	cfg.Transport.ReconnectBaseDelay = getInt("NEVIL_RECONNECT_BASE_DELAY_MS", cfg.Transport.ReconnectBaseDelay)
	cfg.Transport.ReconnectMaxDelay = getInt("NEVIL_RECONNECT_MAX_DELAY_MS", cfg.Transport.ReconnectMaxDelay)
	if modalities := os.Getenv("NEVIL_MODALITIES"); modalities != "" {
		cfg.Transport.Modalities = strings.Split(modalities, ",")
	}

	cfg.Audio.SoftwareGain = getFloat("NEVIL_SOFTWARE_GAIN", cfg.Audio.SoftwareGain)
	cfg.Audio.VADEnabled = getBool("NEVIL_VAD_ENABLED", cfg.Audio.VADEnabled)
	cfg.Audio.VADThreshold = getFloat("NEVIL_VAD_THRESHOLD", cfg.Audio.VADThreshold)
	cfg.Audio.VADMinSpeechMs = getInt("NEVIL_VAD_MIN_SPEECH_MS", cfg.Audio.VADMinSpeechMs)
	cfg.Audio.VADSilenceMs = getInt("NEVIL_VAD_SILENCE_MS", cfg.Audio.VADSilenceMs)
	cfg.Audio.SilencePaddingMs = getInt("NEVIL_SILENCE_PADDING_MS", cfg.Audio.SilencePaddingMs)
	cfg.Audio.GateOnSilence = getBool("NEVIL_GATE_ON_SILENCE", cfg.Audio.GateOnSilence)
	cfg.Audio.CommitCooldownMs = getInt("NEVIL_COMMIT_COOLDOWN_MS", cfg.Audio.CommitCooldownMs)
	cfg.Audio.CaptureDeviceID = os.Getenv("NEVIL_CAPTURE_DEVICE_ID")

	cfg.Synthesis.WavDir = getString("NEVIL_WAV_DIR", cfg.Synthesis.WavDir)
	cfg.Synthesis.WavRetentionCount = getInt("NEVIL_WAV_RETENTION_COUNT", cfg.Synthesis.WavRetentionCount)
	cfg.Synthesis.PlaybackDeviceID = os.Getenv("NEVIL_PLAYBACK_DEVICE_ID")

	cfg.Cognition.SystemInstructions = getString("NEVIL_SYSTEM_INSTRUCTIONS", cfg.Cognition.SystemInstructions)
	cfg.Cognition.ToolChainMaxIterations = getInt("NEVIL_TOOL_CHAIN_MAX_ITERATIONS", cfg.Cognition.ToolChainMaxIterations)
	cfg.Cognition.VisionProvider = getString("NEVIL_VISION_PROVIDER", "openai")
	cfg.Cognition.VisionModel = os.Getenv("NEVIL_VISION_MODEL")
	cfg.Cognition.VisionAPIKey = firstNonEmpty(
		os.Getenv("OPENAI_API_KEY"), os.Getenv("ANTHROPIC_API_KEY"), os.Getenv("GOOGLE_API_KEY"),
	)

	cfg.LogLevel = getString("NEVIL_LOG_LEVEL", cfg.LogLevel)

	return cfg
}

func getString(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getInt(key string, fallback int) int {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fallback
	}
	return n
}

func getFloat(key string, fallback float64) float64 {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return fallback
	}
	return f
}

func getBool(key string, fallback bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return fallback
	}
	return b
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
