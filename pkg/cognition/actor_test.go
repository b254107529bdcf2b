package cognition

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/nevil-robotics/audio-core/pkg/bus"
	"github.com/nevil-robotics/audio-core/pkg/session"
)

type fakeTransport struct {
	mu       sync.Mutex
	handlers map[session.EventType][]session.Handler
	sent     []map[string]interface{}
}

func newFakeTransport() *fakeTransport {
	return &fakeTransport{handlers: make(map[session.EventType][]session.Handler)}
}

func (f *fakeTransport) Subscribe(t session.EventType, h session.Handler) func() {
	f.mu.Lock()
	f.handlers[t] = append(f.handlers[t], h)
	f.mu.Unlock()
	return func() {}
}

func (f *fakeTransport) Send(e json.Marshaler) error {
	data, err := json.Marshal(e)
	if err != nil {
		return err
	}
	var m map[string]interface{}
	if err := json.Unmarshal(data, &m); err != nil {
		return err
	}
	f.mu.Lock()
	f.sent = append(f.sent, m)
	f.mu.Unlock()
	return nil
}

func (f *fakeTransport) emit(evt session.Event) {
	f.mu.Lock()
	hs := append([]session.Handler(nil), f.handlers[evt.Type]...)
	f.mu.Unlock()
	for _, h := range hs {
		h(evt)
	}
}

func (f *fakeTransport) sentOfType(eventType string) []map[string]interface{} {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []map[string]interface{}
	for _, m := range f.sent {
		if m["type"] == eventType {
			out = append(out, m)
		}
	}
	return out
}

func waitUntil(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("timed out waiting for condition")
}

func TestAssistantTranscriptPublishesTextResponse(t *testing.T) {
	tr := newFakeTransport()
	b := bus.New(0)
	a := New(DefaultConfig(), tr, b, nil, nil, nil)
	a.Start()
	defer a.Stop()

	ch, unsub := b.Subscribe(bus.TopicTextResponse)
	defer unsub()

	tr.emit(session.Event{Type: session.EventResponseAudioTranscriptDelta, ResponseID: "r1", Delta: "hello "})
	tr.emit(session.Event{Type: session.EventResponseAudioTranscriptDelta, ResponseID: "r1", Delta: "there"})
	tr.emit(session.Event{Type: session.EventResponseAudioTranscriptDone, ResponseID: "r1"})

	select {
	case msg := <-ch:
		got := msg.Payload.(bus.TextResponse).Text
		if got != "hello there" {
			t.Fatalf("expected concatenated transcript %q, got %q", "hello there", got)
		}
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for text_response")
	}
}

func TestUserTranscriptionPublishesVoiceCommand(t *testing.T) {
	tr := newFakeTransport()
	b := bus.New(0)
	a := New(DefaultConfig(), tr, b, nil, nil, nil)
	a.Start()
	defer a.Stop()

	ch, unsub := b.Subscribe(bus.TopicVoiceCommand)
	defer unsub()

	tr.emit(session.Event{Type: session.EventConversationItemInputAudioTranscriptionCompleted, Transcript: "what time is it"})

	select {
	case msg := <-ch:
		got := msg.Payload.(bus.VoiceCommand).Text
		if got != "what time is it" {
			t.Fatalf("expected %q, got %q", "what time is it", got)
		}
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for voice_command")
	}

	waitUntil(t, func() bool { return len(tr.sentOfType("response.create")) == 1 })
}

func TestUnknownToolReturnsErrorAndFollowsUp(t *testing.T) {
	tr := newFakeTransport()
	b := bus.New(0)
	a := New(DefaultConfig(), tr, b, NewToolRegistry(), nil, nil)
	a.Start()
	defer a.Stop()

	tr.emit(session.Event{Type: session.EventResponseFunctionCallArgsDelta, CallID: "c1", Name: "fly_to_moon", Delta: `{}`})
	tr.emit(session.Event{Type: session.EventResponseFunctionCallArgsDone, CallID: "c1", Name: "fly_to_moon"})

	waitUntil(t, func() bool { return len(tr.sentOfType("conversation.item.create")) == 1 })
	waitUntil(t, func() bool { return len(tr.sentOfType("response.create")) == 1 })

	items := tr.sentOfType("conversation.item.create")
	item := items[0]["item"].(map[string]interface{})
	if item["call_id"] != "c1" {
		t.Fatalf("expected call_id c1, got %v", item["call_id"])
	}
	var out map[string]string
	if err := json.Unmarshal([]byte(item["output"].(string)), &out); err != nil {
		t.Fatalf("output not valid json: %v", err)
	}
	if out["error"] != "unknown function" {
		t.Fatalf("expected unknown function error, got %v", out)
	}
}

func TestKnownToolDispatchesAndEchoesCallID(t *testing.T) {
	tr := newFakeTransport()
	b := bus.New(0)
	tools := NewToolRegistry()
	tools.Register("take_snapshot", func(ctx context.Context, args map[string]interface{}) (interface{}, error) {
		return map[string]string{"status": "ok"}, nil
	})
	a := New(DefaultConfig(), tr, b, tools, nil, nil)
	a.Start()
	defer a.Stop()

	tr.emit(session.Event{Type: session.EventResponseFunctionCallArgsDone, CallID: "c42", Name: "take_snapshot", Arguments: "{}"})

	waitUntil(t, func() bool { return len(tr.sentOfType("conversation.item.create")) == 1 })
	item := tr.sentOfType("conversation.item.create")[0]["item"].(map[string]interface{})
	if item["call_id"] != "c42" {
		t.Fatalf("expected call_id c42, got %v", item["call_id"])
	}
	var out map[string]string
	json.Unmarshal([]byte(item["output"].(string)), &out)
	if out["status"] != "ok" {
		t.Fatalf("expected status ok, got %v", out)
	}
}

func TestToolExceptionReportsMessageAndStillFollowsUp(t *testing.T) {
	tr := newFakeTransport()
	b := bus.New(0)
	tools := NewToolRegistry()
	tools.Register("recall", func(ctx context.Context, args map[string]interface{}) (interface{}, error) {
		return nil, errors.New("memory store unavailable")
	})
	a := New(DefaultConfig(), tr, b, tools, nil, nil)
	a.Start()
	defer a.Stop()

	tr.emit(session.Event{Type: session.EventResponseFunctionCallArgsDone, CallID: "c7", Name: "recall", Arguments: "{}"})

	waitUntil(t, func() bool { return len(tr.sentOfType("response.create")) == 1 })
	item := tr.sentOfType("conversation.item.create")[0]["item"].(map[string]interface{})
	var out map[string]string
	json.Unmarshal([]byte(item["output"].(string)), &out)
	if out["error"] != "memory store unavailable" {
		t.Fatalf("expected the handler's error message, got %v", out)
	}
}

func TestToolCallChainStopsAfterFourIterationsPerTurn(t *testing.T) {
	tr := newFakeTransport()
	b := bus.New(0)
	tools := NewToolRegistry()
	tools.Register("ping", func(ctx context.Context, args map[string]interface{}) (interface{}, error) {
		return map[string]string{"status": "ok"}, nil
	})
	a := New(DefaultConfig(), tr, b, tools, nil, nil)
	a.Start()
	defer a.Stop()

	tr.emit(session.Event{Type: session.EventConversationItemInputAudioTranscriptionCompleted, Transcript: "do five things"})

	for i := 0; i < 5; i++ {
		callID := fmt.Sprintf("c%d", i)
		tr.emit(session.Event{Type: session.EventResponseFunctionCallArgsDone, CallID: callID, Name: "ping", Arguments: "{}"})
	}

	waitUntil(t, func() bool { return len(tr.sentOfType("conversation.item.create")) == 5 })

	items := tr.sentOfType("conversation.item.create")
	last := items[4]["item"].(map[string]interface{})
	var out map[string]string
	json.Unmarshal([]byte(last["output"].(string)), &out)
	if out["status"] != "error" {
		t.Fatalf("expected the 5th call in the turn to be rejected as over budget, got %v", out)
	}
}

type fakeDescriber struct {
	description string
	lastImage   []byte
}

func (f *fakeDescriber) DescribeImage(ctx context.Context, imageData []byte, mimeType, prompt string) (string, error) {
	f.lastImage = imageData
	return f.description, nil
}

func (f *fakeDescriber) Name() string { return "fake-vision" }

func TestVisualDataInjectsCameraViewPrefixedText(t *testing.T) {
	tr := newFakeTransport()
	b := bus.New(0)
	describer := &fakeDescriber{description: "a hallway"}
	a := New(DefaultConfig(), tr, b, nil, describer, nil)
	a.Start()
	defer a.Stop()

	b.Publish(bus.TopicVisualData, bus.VisualData{ImageData: []byte{1, 2, 3}}, "vision-module")

	waitUntil(t, func() bool { return len(tr.sentOfType("conversation.item.create")) == 1 })
	item := tr.sentOfType("conversation.item.create")[0]["item"].(map[string]interface{})
	content := item["content"].([]interface{})[0].(map[string]interface{})
	if content["text"] != "[Camera view: a hallway]" {
		t.Fatalf("expected prefixed camera-view text, got %v", content["text"])
	}
	if len(describer.lastImage) != 3 {
		t.Fatalf("expected the describer to receive the raw image bytes")
	}
}
