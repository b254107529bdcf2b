package micmutex

import "testing"

func TestAvailableInitially(t *testing.T) {
	m := New(nil)
	if !m.Available() {
		t.Error("expected a fresh MicMutex to be available")
	}
}

func TestAcquireMakesUnavailable(t *testing.T) {
	m := New(nil)
	h := m.Acquire("speaking")
	if m.Available() {
		t.Error("expected mutex to be unavailable while held")
	}
	h.Release()
	if !m.Available() {
		t.Error("expected mutex to be available after release")
	}
}

func TestMultipleActivitiesConcurrent(t *testing.T) {
	m := New(nil)
	a := m.Acquire("speaking")
	b := m.Acquire("navigating")

	acts := m.Activities()
	if len(acts) != 2 {
		t.Fatalf("expected 2 held activities, got %v", acts)
	}

	a.Release()
	if m.Available() {
		t.Error("expected mutex still held by navigating")
	}
	b.Release()
	if !m.Available() {
		t.Error("expected mutex available once all activities released")
	}
}

func TestDoubleReleaseIsNoop(t *testing.T) {
	m := New(nil)
	h := m.Acquire("speaking")
	h.Release()
	h.Release() // must not double-decrement or panic
	if !m.Available() {
		t.Error("expected mutex available after a single real release")
	}
}

func TestSameActivityTwiceRequiresTwoReleases(t *testing.T) {
	m := New(nil)
	h1 := m.Acquire("speaking")
	h2 := m.Acquire("speaking")

	h1.Release()
	if m.Available() {
		t.Error("expected mutex still held after only one of two acquisitions released")
	}
	h2.Release()
	if !m.Available() {
		t.Error("expected mutex available after both acquisitions released")
	}
}
