package config

// Default returns the documented baseline configuration, before any
// environment overrides are applied.
func Default() Config {
	return Config{
		Transport: Transport{
			EndpointURL:        "wss://api.openai.com/v1/realtime",
			ModelName:          "gpt-4o-realtime-preview",
			Voice:              "verse",
			Temperature:        0.8,
			Modalities:         []string{"audio", "text"},
			MaxOutputTokens:    4096,
			ReconnectBaseDelay: 1000,
			ReconnectMaxDelay:  16000,
		},
		Audio: Audio{
			SampleRate:       24000,
			Channels:         1,
			ChunkSamples:     4800,
			SoftwareGain:     1.0,
			VADEnabled:       true,
			VADThreshold:     0.02,
			VADMinSpeechMs:   300,
			VADSilenceMs:     300,
			SilencePaddingMs: 300,
			GateOnSilence:    true,
			CommitCooldownMs: 2000,
		},
		Synthesis: Synthesis{
			WavDir:            "./wav",
			WavRetentionCount: 10,
		},
		Cognition: Cognition{
			SystemInstructions:     "You are Nevil, a helpful and concise voice-driven robot assistant. Use short sentences suitable for speech.",
			ToolChainMaxIterations: 4,
		},
		LogLevel: "info",
	}
}
