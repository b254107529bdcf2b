// Package config loads the core's runtime options from environment
// variables, using flat os.Getenv reads with sensible defaults rather than
// a structured config file format -- that is an explicit non-goal.
package config

// Transport holds SessionTransport's options.
type Transport struct {
	EndpointURL        string
	AuthToken          string
	ModelName          string
	Voice              string
	Temperature        float64
	Modalities         []string
	MaxOutputTokens    int
	ReconnectBaseDelay int // milliseconds
	ReconnectMaxDelay  int // milliseconds
}

// Audio holds CaptureActor's options. SampleRate/Channels/ChunkSamples are
// fixed by the data format and not independently configurable; they are
// exposed here only for logging/diagnostics.
type Audio struct {
	SampleRate        int
	Channels          int
	ChunkSamples      int
	SoftwareGain      float64
	VADEnabled        bool
	VADThreshold      float64
	VADMinSpeechMs    int
	VADSilenceMs      int
	SilencePaddingMs  int
	GateOnSilence     bool
	CommitCooldownMs  int
	CaptureDeviceID   string
}

// Synthesis holds SynthesisActor's options.
type Synthesis struct {
	WavDir            string
	WavRetentionCount int
	PlaybackDeviceID  string
}

// Cognition holds CognitionActor's options.
type Cognition struct {
	SystemInstructions     string
	ToolChainMaxIterations int
	VisionProvider         string
	VisionAPIKey           string
	VisionModel            string
}

// Config is the fully-populated runtime configuration for the core.
type Config struct {
	Transport Transport
	Audio     Audio
	Synthesis Synthesis
	Cognition Cognition
	LogLevel  string
}
