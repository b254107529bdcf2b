package bus

import "time"

// VoiceCommand is the payload published on TopicVoiceCommand once a user
// utterance's transcript is complete.
type VoiceCommand struct {
	Text       string
	Confidence float64
	Timestamp  time.Time
}

// TextResponse is the payload published on TopicTextResponse, either to
// report an assistant transcript or to request synthesis-only speech.
type TextResponse struct {
	Text      string
	Voice     string
	Priority  int
	Timestamp time.Time
}

// RobotAction is the payload published on TopicRobotAction when a tool call
// resolves to one or more physical actions.
type RobotAction struct {
	Actions   []string
	Priority  int
	Timestamp time.Time
}

// SpeakingStatus is the payload published on TopicSpeakingStatus at the start
// and end of every synthesis turn.
type SpeakingStatus struct {
	Speaking  bool
	Text      string
	Timestamp time.Time
}

// ListeningStatus is the payload published on TopicListeningStatus by
// CaptureActor, including device faults.
type ListeningStatus struct {
	Listening bool
	Fault     string
	Timestamp time.Time
}

// SpeechDetected is the payload published on TopicSpeechDetected whenever the
// VAD transitions between idle and speaking.
type SpeechDetected struct {
	Speaking  bool
	Timestamp time.Time
}

// VisualRequest is the optional payload published on TopicVisualRequest when
// cognition needs a fresh snapshot.
type VisualRequest struct {
	Reason    string
	Timestamp time.Time
}

// VisualData is the payload consumed from TopicVisualData, supplied by
// collaborators outside the core once a snapshot has been captured.
type VisualData struct {
	ImageData []byte
	CaptureID string
	Timestamp time.Time
}

// SystemMode is the advisory payload consumed from TopicSystemMode.
type SystemMode struct {
	Mode      string
	Timestamp time.Time
}

const (
	ModeIdle      = "idle"
	ModeListening = "listening"
	ModeThinking  = "thinking"
	ModeSpeaking  = "speaking"
)
