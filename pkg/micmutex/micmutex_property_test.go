package micmutex

import (
	"testing"

	"pgregory.net/rapid"
)

// TestMutexBalanceProperty checks that over any finite run, for each
// activity name, the number of acquires equals the number of releases by
// the end of the run, and the mutex settles back to available.
func TestMutexBalanceProperty(t *testing.T) {
	rapid.Check(t, func(rt *rapid.T) {
		m := New(nil)
		names := []string{"speaking", "navigating", "gesturing"}

		n := rapid.IntRange(0, 40).Draw(rt, "n")
		var open []*Handle

		for i := 0; i < n; i++ {
			doAcquire := len(open) == 0 || rapid.Bool().Draw(rt, "acquire")
			if doAcquire {
				name := rapid.SampledFrom(names).Draw(rt, "name")
				open = append(open, m.Acquire(name))
			} else {
				idx := rapid.IntRange(0, len(open)-1).Draw(rt, "idx")
				open[idx].Release()
				open = append(open[:idx], open[idx+1:]...)
			}
		}

		for _, h := range open {
			h.Release()
		}

		if !m.Available() {
			rt.Fatalf("expected mutex available after releasing every acquired handle, held: %v", m.Activities())
		}
	})
}
