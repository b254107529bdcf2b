package bus

import (
	"testing"

	"pgregory.net/rapid"
)

// TestPublishNeverBlocksProperty checks that a publisher never
// blocks on Publish regardless of subscriber queue state, and every message
// that is not dropped is eventually observed in FIFO order by each
// subscriber. We drive an arbitrary sequence of publishes against a
// deliberately tiny queue and confirm the surviving messages per subscriber
// are a strictly increasing subsequence of the publish sequence.
func TestPublishNeverBlocksProperty(t *testing.T) {
	rapid.Check(t, func(rt *rapid.T) {
		queueSize := rapid.IntRange(1, 5).Draw(rt, "queueSize")
		b := New(queueSize)
		ch, unsubscribe := b.Subscribe(TopicVoiceCommand)
		defer unsubscribe()

		n := rapid.IntRange(0, 50).Draw(rt, "n")
		for i := 0; i < n; i++ {
			b.Publish(TopicVoiceCommand, i, "publisher")
		}

		last := -1
		for len(ch) > 0 {
			msg := (<-ch).Payload.(int)
			if msg <= last {
				rt.Fatalf("messages out of order: got %d after %d", msg, last)
			}
			last = msg
		}
	})
}
