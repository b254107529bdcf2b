// Package cognition implements CognitionActor: the translator between the
// realtime session's transcripts/tool calls on one side and MessageBus
// messages/tool effects on the other.
package cognition

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/nevil-robotics/audio-core/pkg/bus"
	"github.com/nevil-robotics/audio-core/pkg/session"
	"github.com/nevil-robotics/audio-core/pkg/telemetry"
	"github.com/nevil-robotics/audio-core/pkg/vision"
)

// maxToolIterations bounds a tool-call chain to 4 dispatches per user turn,
// to prevent a runaway loop when the model keeps calling tools instead of
// replying.
const maxToolIterations = 4

// Transport is the subset of *session.Transport CognitionActor depends on.
type Transport interface {
	Send(event json.Marshaler) error
	Subscribe(eventType session.EventType, handler session.Handler) func()
}

// Config holds CognitionActor's options.
type Config struct {
	VisionPrompt string
}

// DefaultConfig returns the documented baseline.
func DefaultConfig() Config {
	return Config{VisionPrompt: "Describe what the robot's camera currently sees in one or two sentences."}
}

// Actor is CognitionActor.
type Actor struct {
	cfg       Config
	transport Transport
	msgBus    *bus.Bus
	tools     *ToolRegistry
	describer vision.Describer
	logger    telemetry.Logger

	mu           sync.Mutex
	transcripts  map[string]*stringsBuilder
	toolArgs     map[string]*stringsBuilder
	toolIterations int

	unsubs []func()
	wg     sync.WaitGroup
}

// stringsBuilder is a tiny accumulation buffer; kept local to avoid pulling
// in strings.Builder's pointer-receiver ceremony for a one-line use.
type stringsBuilder struct {
	buf []byte
}

func (s *stringsBuilder) append(delta string) {
	s.buf = append(s.buf, delta...)
}

func (s *stringsBuilder) String() string {
	return string(s.buf)
}

// New constructs a CognitionActor. describer and tools may be nil if the
// composition root does not wire vision description or tool dispatch.
func New(cfg Config, transport Transport, msgBus *bus.Bus, tools *ToolRegistry, describer vision.Describer, logger telemetry.Logger) *Actor {
	if tools == nil {
		tools = NewToolRegistry()
	}
	return &Actor{
		cfg:         cfg,
		transport:   transport,
		msgBus:      msgBus,
		tools:       tools,
		describer:   describer,
		logger:      telemetry.OrNoOp(logger),
		transcripts: make(map[string]*stringsBuilder),
		toolArgs:    make(map[string]*stringsBuilder),
	}
}

// Start registers all subscriptions.
func (a *Actor) Start() {
	a.unsubs = append(a.unsubs,
		a.transport.Subscribe(session.EventResponseAudioTranscriptDelta, a.onAssistantTranscriptDelta),
		a.transport.Subscribe(session.EventResponseAudioTranscriptDone, a.onAssistantTranscriptDone),
		a.transport.Subscribe(session.EventConversationItemInputAudioTranscriptionCompleted, a.onUserTranscriptCompleted),
		a.transport.Subscribe(session.EventResponseFunctionCallArgsDelta, a.onFunctionCallArgsDelta),
		a.transport.Subscribe(session.EventResponseFunctionCallArgsDone, a.onFunctionCallArgsDone),
	)

	if a.msgBus != nil {
		visualCh, unsubscribe := a.msgBus.Subscribe(bus.TopicVisualData)
		a.unsubs = append(a.unsubs, unsubscribe)
		a.wg.Add(1)
		go a.consumeVisualData(visualCh)
	}
}

// Stop unsubscribes everything and waits for background goroutines to exit.
func (a *Actor) Stop() {
	for _, u := range a.unsubs {
		u()
	}
	a.wg.Wait()
}

// onUserTranscriptCompleted handles the transcription of what the user said,
// arriving as its own single-shot event distinct from the assistant's reply
// transcript -- this is the source for voice_command. Server-side
// auto-response is not configured (see SessionConfig.TurnDetection), so this
// actor is the one place that turns a committed user utterance into a
// response.create; a plain utterance with no tool call would otherwise
// never get a spoken reply.
func (a *Actor) onUserTranscriptCompleted(evt session.Event) {
	if evt.Transcript == "" {
		return
	}
	a.publishVoiceCommand(evt.Transcript)
	a.requestFollowUp()
}

// onAssistantTranscriptDelta/.Done accumulate the assistant's own spoken
// reply transcript, keyed by response_id.
func (a *Actor) onAssistantTranscriptDelta(evt session.Event) {
	if evt.Delta == "" {
		return
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	b, ok := a.transcripts[evt.ResponseID]
	if !ok {
		b = &stringsBuilder{}
		a.transcripts[evt.ResponseID] = b
	}
	b.append(evt.Delta)
}

func (a *Actor) onAssistantTranscriptDone(evt session.Event) {
	a.mu.Lock()
	b, ok := a.transcripts[evt.ResponseID]
	if ok {
		delete(a.transcripts, evt.ResponseID)
	}
	a.mu.Unlock()
	if !ok {
		return
	}
	a.publishTextResponse(b.String())
}

func (a *Actor) publishVoiceCommand(text string) {
	a.mu.Lock()
	a.toolIterations = 0
	a.mu.Unlock()
	if a.msgBus == nil {
		return
	}
	a.msgBus.Publish(bus.TopicVoiceCommand, bus.VoiceCommand{
		Text:       text,
		Confidence: estimatedConfidence,
		Timestamp:  time.Now(),
	}, "cognition")
}

func (a *Actor) publishTextResponse(text string) {
	if a.msgBus == nil {
		return
	}
	a.msgBus.Publish(bus.TopicTextResponse, bus.TextResponse{Text: text, Timestamp: time.Now()}, "cognition")
}

// estimatedConfidence is a confidence placeholder for unverified ASR text
// ("confidence: estimated") since the realtime transcript has no native
// per-word confidence score to surface.
const estimatedConfidence = 0.9

// onFunctionCallArgsDelta/.Done accumulate a tool call's JSON arguments
// keyed by call_id, dispatching on .done.
func (a *Actor) onFunctionCallArgsDelta(evt session.Event) {
	if evt.Delta == "" {
		return
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	b, ok := a.toolArgs[evt.CallID]
	if !ok {
		b = &stringsBuilder{}
		a.toolArgs[evt.CallID] = b
	}
	b.append(evt.Delta)
}

func (a *Actor) onFunctionCallArgsDone(evt session.Event) {
	a.mu.Lock()
	b, ok := a.toolArgs[evt.CallID]
	if ok {
		delete(a.toolArgs, evt.CallID)
	}
	withinBudget := a.toolIterations < maxToolIterations
	if withinBudget {
		a.toolIterations++
	}
	a.mu.Unlock()

	// If no delta events arrived, .done frames sometimes carry the full
	// arguments themselves; fall back to that.
	argsJSON := evt.Arguments
	if ok {
		argsJSON = b.String()
	}

	if !withinBudget {
		a.logger.Warn("cognition: tool-call chain exceeded iteration bound, dismissing", "call_id", evt.CallID, "name", evt.Name)
		a.sendToolOutput(evt.CallID, map[string]string{"status": "error", "message": "tool-call chain limit reached"})
		return
	}

	a.dispatchTool(evt.CallID, evt.Name, argsJSON)
}

// dispatchTool looks up and runs name's handler, then always answers with a
// conversation.item.create/function_call_output followed by a
// response.create so the model can continue.
func (a *Actor) dispatchTool(callID, name, argsJSON string) {
	handler, ok := a.tools.Lookup(name)
	if !ok {
		a.logger.Warn("cognition: unknown tool requested", "name", name)
		a.sendToolOutput(callID, map[string]string{"error": "unknown function"})
		a.requestFollowUp()
		return
	}

	var args map[string]interface{}
	if argsJSON != "" {
		if err := json.Unmarshal([]byte(argsJSON), &args); err != nil {
			a.logger.Warn("cognition: malformed tool arguments", "name", name, "err", err)
			a.sendToolOutput(callID, map[string]string{"error": fmt.Sprintf("malformed arguments: %v", err)})
			a.requestFollowUp()
			return
		}
	}

	result, err := handler(context.Background(), args)
	if err != nil {
		a.logger.Warn("cognition: tool handler returned an error", "name", name, "err", err)
		a.sendToolOutput(callID, map[string]string{"error": err.Error()})
		a.requestFollowUp()
		return
	}

	a.sendToolOutput(callID, result)
	a.requestFollowUp()
}

func (a *Actor) sendToolOutput(callID string, result interface{}) {
	out, err := json.Marshal(result)
	if err != nil {
		out = []byte(`{"error":"result not serializable"}`)
	}
	if err := a.transport.Send(session.OutboundFunctionCallOutput(callID, string(out))); err != nil {
		a.logger.Warn("cognition: function_call_output send failed", "err", err)
	}
}

func (a *Actor) requestFollowUp() {
	if err := a.transport.Send(session.OutboundResponseCreate([]string{"audio", "text"}, "", "")); err != nil {
		a.logger.Warn("cognition: follow-up response.create send failed", "err", err)
	}
}

// consumeVisualData handles visual_data bus messages: describe the snapshot
// out-of-band and inject the description into the session as a
// "[Camera view: ...]"-prefixed user message. Raw image bytes never cross
// the realtime session.
func (a *Actor) consumeVisualData(ch <-chan bus.Message) {
	defer a.wg.Done()
	for msg := range ch {
		vd, ok := msg.Payload.(bus.VisualData)
		if !ok || a.describer == nil {
			continue
		}
		desc, err := a.describer.DescribeImage(context.Background(), vd.ImageData, "image/jpeg", a.cfg.VisionPrompt)
		if err != nil {
			a.logger.Warn("cognition: vision description failed", "err", err)
			continue
		}
		if err := a.transport.Send(session.OutboundUserText("[Camera view: " + desc + "]")); err != nil {
			a.logger.Warn("cognition: camera-view injection send failed", "err", err)
		}
	}
}
