package session

import "encoding/json"

// EventType names the client/server event types this protocol carries.
// The protocol is a framed JSON stream; every frame carries a "type" field.
type EventType string

const (
	// Outbound (client -> server)
	EventSessionUpdate          EventType = "session.update"
	EventInputAudioBufferAppend EventType = "input_audio_buffer.append"
	EventInputAudioBufferCommit EventType = "input_audio_buffer.commit"
	EventInputAudioBufferClear  EventType = "input_audio_buffer.clear"
	EventConversationItemCreate EventType = "conversation.item.create"
	EventResponseCreate         EventType = "response.create"
	EventResponseCancel         EventType = "response.cancel"

	// Inbound (server -> client)
	EventResponseAudioDelta            EventType = "response.audio.delta"
	EventResponseAudioDone             EventType = "response.audio.done"
	EventResponseAudioTranscriptDelta  EventType = "response.audio_transcript.delta"
	EventResponseAudioTranscriptDone   EventType = "response.audio_transcript.done"
	EventResponseFunctionCallArgsDelta EventType = "response.function_call_arguments.delta"
	EventResponseFunctionCallArgsDone  EventType = "response.function_call_arguments.done"
	EventResponseCreated               EventType = "response.created"
	EventResponseDone                  EventType = "response.done"
	EventInputAudioBufferSpeechStopped EventType = "input_audio_buffer.speech_stopped"
	EventConversationItemInputAudioTranscriptionCompleted EventType = "conversation.item.input_audio_transcription.completed"
	EventError                         EventType = "error"
)

// Event is the generic inbound frame shape. Fields are a superset across all
// server event types (mirroring how OpenAI-Realtime-style protocols are
// commonly decoded: one loosely-typed struct, switched on Type). Unknown
// fields for a given Type are simply left zero.
type Event struct {
	Type EventType `json:"type"`

	ResponseID string `json:"response_id,omitempty"`
	ItemID     string `json:"item_id,omitempty"`
	CallID     string `json:"call_id,omitempty"`
	Name       string `json:"name,omitempty"`

	Delta      string `json:"delta,omitempty"`
	Arguments  string `json:"arguments,omitempty"`
	Transcript string `json:"transcript,omitempty"`

	Response *ResponseObject `json:"response,omitempty"`
	Error    *ServerError    `json:"error,omitempty"`
}

// ResponseObject is the nested object carried by response.created/response.done.
type ResponseObject struct {
	ID     string `json:"id"`
	Status string `json:"status,omitempty"`
}

// ServerError is the nested error object on an "error" frame.
type ServerError struct {
	Type    string `json:"type"`
	Code    string `json:"code,omitempty"`
	Message string `json:"message"`
}

// sessionUpdateEvent is the outbound session.update frame.
type sessionUpdateEvent struct {
	Type    EventType     `json:"type"`
	Session sessionParams `json:"session"`
}

type sessionParams struct {
	Modalities        []string       `json:"modalities,omitempty"`
	Voice             string         `json:"voice,omitempty"`
	Instructions      string         `json:"instructions,omitempty"`
	Temperature       float64        `json:"temperature,omitempty"`
	MaxOutputTokens   int            `json:"max_output_tokens,omitempty"`
	InputAudioFormat  string         `json:"input_audio_format"`
	OutputAudioFormat string         `json:"output_audio_format"`
	TurnDetection     *TurnDetection `json:"turn_detection,omitempty"`
	Tools             []ToolSchema   `json:"tools,omitempty"`
}

// TurnDetection mirrors the optional server-VAD configuration block. The
// core treats client-side VAD as authoritative (see CaptureActor) but still
// forwards this block when configured, so a server-side VAD signal can be
// observed too.
type TurnDetection struct {
	Type              string `json:"type"`
	Threshold         float64 `json:"threshold,omitempty"`
	PrefixPaddingMs   int     `json:"prefix_padding_ms,omitempty"`
	SilenceDurationMs int     `json:"silence_duration_ms,omitempty"`
}

// ToolSchema is a single {type:"function", name, description, parameters}
// tool declaration sent in session.update.
type ToolSchema struct {
	Type        string         `json:"type"`
	Name        string         `json:"name"`
	Description string         `json:"description,omitempty"`
	Parameters  map[string]any `json:"parameters,omitempty"`
}

// SessionConfig configures the outbound session.update frame sent on start
// and after every reconnect.
type SessionConfig struct {
	Modalities      []string
	Voice           string
	Instructions    string
	Temperature     float64
	MaxOutputTokens int
	TurnDetection   *TurnDetection
	Tools           []ToolSchema
}

func (c SessionConfig) toEvent() sessionUpdateEvent {
	return sessionUpdateEvent{
		Type: EventSessionUpdate,
		Session: sessionParams{
			Modalities:        c.Modalities,
			Voice:             c.Voice,
			Instructions:      c.Instructions,
			Temperature:       c.Temperature,
			MaxOutputTokens:   c.MaxOutputTokens,
			InputAudioFormat:  "pcm16",
			OutputAudioFormat: "pcm16",
			TurnDetection:     c.TurnDetection,
			Tools:             c.Tools,
		},
	}
}

type appendAudioEvent struct {
	Type  EventType `json:"type"`
	Audio string    `json:"audio"`
}

type simpleEvent struct {
	Type EventType `json:"type"`
}

type createItemEvent struct {
	Type EventType `json:"type"`
	Item itemBody  `json:"item"`
}

type itemBody struct {
	Type    string     `json:"type"`
	Role    string     `json:"role,omitempty"`
	Content []itemPart `json:"content,omitempty"`
	CallID  string     `json:"call_id,omitempty"`
	Output  string     `json:"output,omitempty"`
}

type itemPart struct {
	Type string `json:"type"`
	Text string `json:"text,omitempty"`
}

type responseCreateEvent struct {
	Type     EventType      `json:"type"`
	Response responseParams `json:"response"`
}

type responseParams struct {
	Modalities   []string `json:"modalities,omitempty"`
	Voice        string   `json:"voice,omitempty"`
	Instructions string   `json:"instructions,omitempty"`
}

// OutboundAppendAudio builds an input_audio_buffer.append frame carrying
// audioB64 unchanged -- callers pass PCM that is already base64-encoded.
func OutboundAppendAudio(audioB64 string) json.Marshaler {
	return jsonEvent{appendAudioEvent{Type: EventInputAudioBufferAppend, Audio: audioB64}}
}

// OutboundCommit builds an input_audio_buffer.commit frame.
func OutboundCommit() json.Marshaler {
	return jsonEvent{simpleEvent{Type: EventInputAudioBufferCommit}}
}

// OutboundClear builds an input_audio_buffer.clear frame.
func OutboundClear() json.Marshaler {
	return jsonEvent{simpleEvent{Type: EventInputAudioBufferClear}}
}

// OutboundResponseCreate builds a response.create frame requesting the given
// modalities (e.g. ["audio","text"]).
func OutboundResponseCreate(modalities []string, voice, instructions string) json.Marshaler {
	return jsonEvent{responseCreateEvent{
		Type: EventResponseCreate,
		Response: responseParams{
			Modalities:   modalities,
			Voice:        voice,
			Instructions: instructions,
		},
	}}
}

// OutboundResponseCancel builds a response.cancel frame.
func OutboundResponseCancel() json.Marshaler {
	return jsonEvent{simpleEvent{Type: EventResponseCancel}}
}

// OutboundFunctionCallOutput builds the conversation.item.create frame that
// returns a tool's result to the model.
func OutboundFunctionCallOutput(callID, output string) json.Marshaler {
	return jsonEvent{createItemEvent{
		Type: EventConversationItemCreate,
		Item: itemBody{
			Type:   "function_call_output",
			CallID: callID,
			Output: output,
		},
	}}
}

// OutboundUserText builds the conversation.item.create frame used to inject
// a text-only user message (e.g. the camera-view description).
func OutboundUserText(text string) json.Marshaler {
	return jsonEvent{createItemEvent{
		Type: EventConversationItemCreate,
		Item: itemBody{
			Type:    "message",
			Role:    "user",
			Content: []itemPart{{Type: "input_text", Text: text}},
		},
	}}
}

// jsonEvent adapts any concrete event struct to json.Marshaler so the
// transport's outbound queue can hold a single interface type.
type jsonEvent struct {
	v interface{}
}

func (e jsonEvent) MarshalJSON() ([]byte, error) {
	return json.Marshal(e.v)
}
