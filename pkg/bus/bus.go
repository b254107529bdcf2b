// Package bus implements the in-process typed publish/subscribe service the
// four core actors use to exchange informational events (voice commands,
// text responses, robot actions, speaking/listening status, ...). It
// generalizes a single-stream "events channel with non-blocking send and
// drop-when-full" pattern into a multi-topic, multi-subscriber bus with a
// declarative subscription model.
package bus

import (
	"sync"
	"time"

	"github.com/google/uuid"
)

// Topic names the bus topics the core publishes and consumes.
type Topic string

const (
	TopicVoiceCommand    Topic = "voice_command"
	TopicTextResponse    Topic = "text_response"
	TopicRobotAction     Topic = "robot_action"
	TopicSpeakingStatus  Topic = "speaking_status"
	TopicListeningStatus Topic = "listening_status"
	TopicSpeechDetected  Topic = "speech_detected"
	TopicVisualRequest   Topic = "visual_request"
	TopicVisualData      Topic = "visual_data"
	TopicSystemMode      Topic = "system_mode"
)

// Message is the bus envelope. Payload is a topic-specific typed record
// (see payloads.go).
type Message struct {
	MessageID string
	Topic     Topic
	Payload   interface{}
	Timestamp time.Time
	SourceID  string
}

// DefaultQueueSize is the per-subscriber bounded queue depth.
const DefaultQueueSize = 100

// Bus is the in-process pub/sub service. The zero value is not usable;
// construct with New.
type Bus struct {
	mu          sync.Mutex
	subscribers map[Topic][]*subscription
	dropped     map[Topic]int
	queueSize   int
}

type subscription struct {
	ch chan Message
}

// New creates a Bus whose subscriber queues hold queueSize messages before
// dropping. queueSize <= 0 uses DefaultQueueSize.
func New(queueSize int) *Bus {
	if queueSize <= 0 {
		queueSize = DefaultQueueSize
	}
	return &Bus{
		subscribers: make(map[Topic][]*subscription),
		dropped:     make(map[Topic]int),
		queueSize:   queueSize,
	}
}

// Subscribe registers a new listener on topic and returns a receive-only
// channel of its messages plus an unsubscribe function. A node declares the
// topics it subscribes to by calling Subscribe once per topic at startup —
// the bus wires the subscription to a dedicated bounded queue immediately.
func (b *Bus) Subscribe(topic Topic) (<-chan Message, func()) {
	sub := &subscription{ch: make(chan Message, b.queueSize)}

	b.mu.Lock()
	b.subscribers[topic] = append(b.subscribers[topic], sub)
	b.mu.Unlock()

	unsubscribe := func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		subs := b.subscribers[topic]
		for i, s := range subs {
			if s == sub {
				b.subscribers[topic] = append(subs[:i], subs[i+1:]...)
				close(sub.ch)
				return
			}
		}
	}

	return sub.ch, unsubscribe
}

// Publish delivers payload to every current subscriber of topic. Delivery is
// non-blocking per subscriber: a full queue drops the message and increments
// that topic's dropped-count rather than blocking the publisher . Delivery
// order is preserved per (publisher, topic) because Publish iterates
// subscribers synchronously and in order.
func (b *Bus) Publish(topic Topic, payload interface{}, sourceID string) {
	msg := Message{
		MessageID: uuid.NewString(),
		Topic:     topic,
		Payload:   payload,
		Timestamp: time.Now(),
		SourceID:  sourceID,
	}

	b.mu.Lock()
	subs := append([]*subscription(nil), b.subscribers[topic]...)
	b.mu.Unlock()

	for _, sub := range subs {
		select {
		case sub.ch <- msg:
		default:
			b.mu.Lock()
			b.dropped[topic]++
			b.mu.Unlock()
		}
	}
}

// DroppedCount returns how many messages were dropped on topic due to a full
// subscriber queue, across all subscribers.
func (b *Bus) DroppedCount(topic Topic) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.dropped[topic]
}
