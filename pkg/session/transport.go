// Package session owns SessionTransport: the single framed WebSocket session
// to the remote conversational model. It serializes outbound events,
// deserializes inbound events, dispatches them to subscribers on a pool
// distinct from the receive loop, and reconnects on transport failures with
// exponential backoff. Modeled on a coder/websocket + wsjson streaming
// client, generalized from a one-shot request/response call into a
// long-lived bidirectional session with reconnect and pub/sub dispatch.
package session

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/coder/websocket"
	"github.com/nevil-robotics/audio-core/pkg/telemetry"
)

const (
	defaultOutboundCapacity = 100
	defaultDispatchWorkers  = 1 // one worker keeps inbound events in receive order
	defaultDispatchBuffer   = 256
	defaultSendTimeout      = 5 * time.Second
	defaultConnectTimeout   = 30 * time.Second
)

// wsConn is the subset of *websocket.Conn the transport needs. Exists so
// tests can substitute a fake without a real network socket.
type wsConn interface {
	Read(ctx context.Context) (websocket.MessageType, []byte, error)
	Write(ctx context.Context, typ websocket.MessageType, data []byte) error
	Close(code websocket.StatusCode, reason string) error
}

type dialFunc func(ctx context.Context, url, token string) (wsConn, error)

func dialWebsocket(ctx context.Context, url, token string) (wsConn, error) {
	ctx, cancel := context.WithTimeout(ctx, defaultConnectTimeout)
	defer cancel()
	conn, _, err := websocket.Dial(ctx, url, &websocket.DialOptions{
		HTTPHeader: http.Header{"Authorization": []string{"Bearer " + token}},
	})
	if err != nil {
		return nil, err
	}
	return conn, nil
}

// Handler receives dispatched inbound events. It runs on the dispatcher
// pool, never on the receive loop.
type Handler func(Event)

type subscriber struct {
	id      uint64
	handler Handler
}

// Transport owns the single framed session to the remote model.
type Transport struct {
	url       string
	authToken string
	cfg       SessionConfig
	logger    telemetry.Logger
	dial      dialFunc

	outbound *outboundQueue
	dispatch chan Event

	subMu   sync.Mutex
	subs    map[EventType][]subscriber
	subSeq  uint64

	stopOnce sync.Once
	stopCh   chan struct{}
	wg       sync.WaitGroup

	backoff *backoff
}

// Option configures a Transport at construction time.
type Option func(*Transport)

// WithDialer overrides the dial function. Used by tests.
func WithDialer(d dialFunc) Option {
	return func(t *Transport) { t.dial = d }
}

// WithOutboundCapacity overrides the bounded outbound queue depth.
func WithOutboundCapacity(n int) Option {
	return func(t *Transport) { t.outbound = newOutboundQueue(n) }
}

// WithReconnectPolicy overrides the backoff base delay and cap.
func WithReconnectPolicy(base, cap time.Duration) Option {
	return func(t *Transport) { t.backoff = newBackoff(base, cap) }
}

// New constructs a Transport for the given endpoint URL and auth token.
func New(url, authToken string, cfg SessionConfig, logger telemetry.Logger, opts ...Option) *Transport {
	t := &Transport{
		url:       url,
		authToken: authToken,
		cfg:       cfg,
		logger:    telemetry.OrNoOp(logger),
		dial:      dialWebsocket,
		outbound:  newOutboundQueue(defaultOutboundCapacity),
		dispatch:  make(chan Event, defaultDispatchBuffer),
		subs:      make(map[EventType][]subscriber),
		stopCh:    make(chan struct{}),
		backoff:   newBackoff(time.Second, 16*time.Second),
	}
	for _, o := range opts {
		o(t)
	}
	return t
}

// Start opens the session and sends the initial session.update. It returns a
// *TransportInitError if authentication or the handshake fails; all
// subsequent failures are handled internally by the reconnect loop.
func (t *Transport) Start(ctx context.Context) error {
	conn, err := t.dial(ctx, t.url, t.authToken)
	if err != nil {
		return &TransportInitError{Cause: err}
	}
	if err := t.configureSession(ctx, conn); err != nil {
		conn.Close(websocket.StatusInternalError, "session.update failed")
		return &TransportInitError{Cause: err}
	}

	for i := 0; i < defaultDispatchWorkers; i++ {
		t.wg.Add(1)
		go t.dispatchWorker()
	}

	t.wg.Add(1)
	go func() {
		defer t.wg.Done()
		t.run(ctx, conn)
	}()

	return nil
}

// Stop closes the session gracefully: it signals all tasks via the shared
// cancellation channel, flushes nothing further, and returns once the
// internal goroutines have exited.
func (t *Transport) Stop(reason string) {
	t.stopOnce.Do(func() {
		t.logger.Info("session transport stopping", "reason", reason)
		close(t.stopCh)
		t.outbound.close()
	})
	t.wg.Wait()
}

// Send enqueues an outbound event onto the bounded outbound queue. It
// returns once the event is accepted into the queue; if the queue is full
// the oldest pending event is dropped with a logged warning. If stopped,
// Send returns ErrStopped.
func (t *Transport) Send(event json.Marshaler) error {
	select {
	case <-t.stopCh:
		return ErrStopped
	default:
	}
	t.outbound.push(event, t.logger)
	return nil
}

// Subscribe registers handler for eventType. It returns an unsubscribe
// function.
func (t *Transport) Subscribe(eventType EventType, handler Handler) func() {
	t.subMu.Lock()
	t.subSeq++
	id := t.subSeq
	t.subs[eventType] = append(t.subs[eventType], subscriber{id: id, handler: handler})
	t.subMu.Unlock()

	return func() {
		t.subMu.Lock()
		defer t.subMu.Unlock()
		list := t.subs[eventType]
		for i, s := range list {
			if s.id == id {
				t.subs[eventType] = append(list[:i], list[i+1:]...)
				return
			}
		}
	}
}

func (t *Transport) configureSession(ctx context.Context, conn wsConn) error {
	data, err := json.Marshal(t.cfg.toEvent())
	if err != nil {
		return fmt.Errorf("marshal session.update: %w", err)
	}
	ctx, cancel := context.WithTimeout(ctx, defaultSendTimeout)
	defer cancel()
	return conn.Write(ctx, websocket.MessageText, data)
}

// run owns the connection lifecycle: it drives one connection at a time and
// reconnects with backoff when it is lost, until stopCh closes.
func (t *Transport) run(ctx context.Context, conn wsConn) {
	for {
		t.runConnection(ctx, conn)

		select {
		case <-t.stopCh:
			return
		default:
		}

		next := t.reconnect(ctx)
		if next == nil {
			return
		}
		conn = next
	}
}

func (t *Transport) runConnection(ctx context.Context, conn wsConn) {
	lost := make(chan struct{})
	var once sync.Once
	reportLost := func() { once.Do(func() { close(lost) }) }

	var wg sync.WaitGroup
	wg.Add(2)
	go func() { defer wg.Done(); t.receiveLoop(ctx, conn, reportLost) }()
	go func() { defer wg.Done(); t.sendLoop(ctx, conn, reportLost) }()

	select {
	case <-lost:
	case <-t.stopCh:
	}
	conn.Close(websocket.StatusNormalClosure, "")
	wg.Wait()
}

func (t *Transport) reconnect(ctx context.Context) wsConn {
	for {
		delay := t.backoff.next()
		select {
		case <-t.stopCh:
			return nil
		case <-time.After(delay):
		}

		conn, err := t.dial(ctx, t.url, t.authToken)
		if err != nil {
			t.logger.Warn("reconnect attempt failed", "err", err)
			continue
		}
		if err := t.configureSession(ctx, conn); err != nil {
			t.logger.Warn("reconnect session.update failed", "err", err)
			conn.Close(websocket.StatusInternalError, "session.update failed")
			continue
		}
		t.backoff.reset()
		t.logger.Info("session transport reconnected")
		return conn
	}
}

func (t *Transport) sendLoop(ctx context.Context, conn wsConn, reportLost func()) {
	for {
		event, ok := t.outbound.pop(t.stopCh)
		if !ok {
			return
		}
		data, err := json.Marshal(event)
		if err != nil {
			t.logger.Error("failed to marshal outbound event", "err", err)
			continue
		}
		wctx, cancel := context.WithTimeout(ctx, defaultSendTimeout)
		err = conn.Write(wctx, websocket.MessageText, data)
		cancel()
		if err != nil {
			t.logger.Warn("outbound send failed, requeueing", "err", err)
			t.outbound.pushFront(event)
			reportLost()
			return
		}
	}
}

func (t *Transport) receiveLoop(ctx context.Context, conn wsConn, reportLost func()) {
	for {
		_, data, err := conn.Read(ctx)
		if err != nil {
			select {
			case <-t.stopCh:
				return
			default:
			}
			t.logger.Warn("receive failed", "err", err)
			reportLost()
			return
		}

		var evt Event
		if err := json.Unmarshal(data, &evt); err != nil {
			t.logger.Warn("malformed inbound frame, dropped", "err", err)
			continue
		}

		select {
		case t.dispatch <- evt:
		default:
			t.logger.Warn("dispatch queue full, dropped event", "type", evt.Type)
		}
	}
}

func (t *Transport) dispatchWorker() {
	defer t.wg.Done()
	for {
		select {
		case <-t.stopCh:
			return
		case evt, ok := <-t.dispatch:
			if !ok {
				return
			}
			t.subMu.Lock()
			handlers := append([]subscriber(nil), t.subs[evt.Type]...)
			t.subMu.Unlock()
			for _, s := range handlers {
				s.handler(evt)
			}
		}
	}
}
