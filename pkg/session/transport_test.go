package session

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/coder/websocket"
)

// fakeConn is an in-memory wsConn for tests: writes land on sent, reads come
// from toDeliver.
type fakeConn struct {
	sent      chan []byte
	toDeliver chan []byte
	closed    chan struct{}
}

func newFakeConn() *fakeConn {
	return &fakeConn{
		sent:      make(chan []byte, 32),
		toDeliver: make(chan []byte, 32),
		closed:    make(chan struct{}),
	}
}

func (f *fakeConn) Read(ctx context.Context) (websocket.MessageType, []byte, error) {
	select {
	case data, ok := <-f.toDeliver:
		if !ok {
			return 0, nil, context.Canceled
		}
		return websocket.MessageText, data, nil
	case <-f.closed:
		return 0, nil, context.Canceled
	case <-ctx.Done():
		return 0, nil, ctx.Err()
	}
}

func (f *fakeConn) Write(ctx context.Context, typ websocket.MessageType, data []byte) error {
	select {
	case f.sent <- data:
		return nil
	default:
		return nil
	}
}

func (f *fakeConn) Close(code websocket.StatusCode, reason string) error {
	select {
	case <-f.closed:
	default:
		close(f.closed)
	}
	return nil
}

func newTestTransport(conn *fakeConn) *Transport {
	dial := func(ctx context.Context, url, token string) (wsConn, error) {
		return conn, nil
	}
	return New("wss://example.test/session", "token", SessionConfig{
		Modalities: []string{"audio", "text"},
	}, nil, WithDialer(dial))
}

func TestTransportStartSendsSessionUpdate(t *testing.T) {
	conn := newFakeConn()
	tr := newTestTransport(conn)

	if err := tr.Start(context.Background()); err != nil {
		t.Fatalf("start: %v", err)
	}
	defer tr.Stop("test done")

	select {
	case data := <-conn.sent:
		var evt struct {
			Type EventType `json:"type"`
		}
		if err := json.Unmarshal(data, &evt); err != nil {
			t.Fatalf("unmarshal: %v", err)
		}
		if evt.Type != EventSessionUpdate {
			t.Fatalf("got first outbound type %q, want session.update", evt.Type)
		}
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for initial session.update")
	}
}

func TestTransportDispatchesInboundEventsToSubscribers(t *testing.T) {
	conn := newFakeConn()
	tr := newTestTransport(conn)
	if err := tr.Start(context.Background()); err != nil {
		t.Fatalf("start: %v", err)
	}
	defer tr.Stop("test done")

	received := make(chan Event, 1)
	tr.Subscribe(EventResponseAudioDelta, func(e Event) {
		received <- e
	})

	conn.toDeliver <- []byte(`{"type":"response.audio.delta","response_id":"r1","delta":"AAAA"}`)

	select {
	case evt := <-received:
		if evt.ResponseID != "r1" {
			t.Fatalf("got response_id %q, want r1", evt.ResponseID)
		}
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for dispatched event")
	}
}

func TestTransportSendEnqueuesOutbound(t *testing.T) {
	conn := newFakeConn()
	tr := newTestTransport(conn)
	if err := tr.Start(context.Background()); err != nil {
		t.Fatalf("start: %v", err)
	}
	defer tr.Stop("test done")

	<-conn.sent // drain the initial session.update

	if err := tr.Send(OutboundCommit()); err != nil {
		t.Fatalf("send: %v", err)
	}

	select {
	case data := <-conn.sent:
		var evt struct {
			Type EventType `json:"type"`
		}
		json.Unmarshal(data, &evt)
		if evt.Type != EventInputAudioBufferCommit {
			t.Fatalf("got %q, want input_audio_buffer.commit", evt.Type)
		}
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for commit to be sent")
	}
}

func TestTransportSendAfterStopReturnsError(t *testing.T) {
	conn := newFakeConn()
	tr := newTestTransport(conn)
	if err := tr.Start(context.Background()); err != nil {
		t.Fatalf("start: %v", err)
	}
	tr.Stop("shutdown")

	if err := tr.Send(OutboundCommit()); err != ErrStopped {
		t.Fatalf("got %v, want ErrStopped", err)
	}
}

func TestTransportStartSurfacesInitErrorOnDialFailure(t *testing.T) {
	dial := func(ctx context.Context, url, token string) (wsConn, error) {
		return nil, context.DeadlineExceeded
	}
	tr := New("wss://example.test/session", "token", SessionConfig{}, nil, WithDialer(dial))

	err := tr.Start(context.Background())
	if err == nil {
		t.Fatal("expected an error")
	}
	if _, ok := err.(*TransportInitError); !ok {
		t.Fatalf("got %T, want *TransportInitError", err)
	}
}
