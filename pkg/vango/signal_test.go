package vango

import (
	"sync"
	"testing"
)

type testListener struct {
	id         uint64
	mu         sync.Mutex
	dirtyCount int
}

func newTestListener() *testListener {
	return &testListener{id: nextID()}
}

func (l *testListener) MarkDirty() {
	l.mu.Lock()
	l.dirtyCount++
	l.mu.Unlock()
}

func (l *testListener) ID() uint64 {
	return l.id
}

func (l *testListener) getDirtyCount() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.dirtyCount
}

func TestSignalBasic(t *testing.T) {
	count := NewSignal(0)

	if count.Get() != 0 {
		t.Errorf("expected initial value 0, got %d", count.Get())
	}

	count.Set(5)
	if count.Get() != 5 {
		t.Errorf("expected value 5, got %d", count.Get())
	}

	count.Update(func(n int) int { return n * 2 })
	if count.Get() != 10 {
		t.Errorf("expected value 10, got %d", count.Get())
	}
}

func TestSignalPeekDoesNotSubscribe(t *testing.T) {
	count := NewSignal(42)
	listener := newTestListener()

	WithListener(listener, func() {
		if v := count.Peek(); v != 42 {
			t.Errorf("expected 42, got %d", v)
		}
	})

	count.Set(100)
	if listener.getDirtyCount() != 0 {
		t.Errorf("Peek should not subscribe listener, got %d notifications", listener.getDirtyCount())
	}
}

func TestSignalSubscription(t *testing.T) {
	count := NewSignal(0)
	listener := newTestListener()

	WithListener(listener, func() {
		_ = count.Get()
		_ = count.Get()
	})

	if count.Subscribers() != 1 {
		t.Errorf("expected 1 subscriber after duplicate reads, got %d", count.Subscribers())
	}

	count.Set(1)
	if listener.getDirtyCount() != 1 {
		t.Errorf("expected 1 notification, got %d", listener.getDirtyCount())
	}

	// Same value: no notification.
	count.Set(1)
	if listener.getDirtyCount() != 1 {
		t.Errorf("expected no notification for equal value, got %d", listener.getDirtyCount())
	}
}

func TestSignalDeepEqualForMaps(t *testing.T) {
	m := NewSignal[any](map[string]any{"a": 1})
	listener := newTestListener()
	WithListener(listener, func() { _ = m.Get() })

	m.Set(map[string]any{"a": 1})
	if listener.getDirtyCount() != 0 {
		t.Errorf("expected deep-equal map write to be ignored, got %d notifications", listener.getDirtyCount())
	}

	m.Set(map[string]any{"a": 2})
	if listener.getDirtyCount() != 1 {
		t.Errorf("expected 1 notification, got %d", listener.getDirtyCount())
	}
}

func TestSignalWithEquals(t *testing.T) {
	s := NewSignal("a").WithEquals(func(a, b string) bool { return true })
	listener := newTestListener()
	WithListener(listener, func() { _ = s.Get() })

	s.Set("b")
	if s.Peek() != "a" {
		t.Errorf("custom equality should keep old value, got %q", s.Peek())
	}
	if listener.getDirtyCount() != 0 {
		t.Errorf("expected no notification, got %d", listener.getDirtyCount())
	}
}

func TestBatchDeduplicatesNotifications(t *testing.T) {
	a := NewSignal(0)
	b := NewSignal(0)
	listener := newTestListener()

	WithListener(listener, func() {
		_ = a.Get()
		_ = b.Get()
	})

	Batch(func() {
		a.Set(1)
		b.Set(1)
		Batch(func() {
			a.Set(2)
		})
		if listener.getDirtyCount() != 0 {
			t.Errorf("expected no notification inside batch, got %d", listener.getDirtyCount())
		}
	})

	if listener.getDirtyCount() != 1 {
		t.Errorf("expected exactly 1 notification after batch, got %d", listener.getDirtyCount())
	}
}

func TestUntracked(t *testing.T) {
	count := NewSignal(0)
	listener := newTestListener()

	WithListener(listener, func() {
		Untracked(func() {
			_ = count.Get()
		})
	})

	count.Set(1)
	if listener.getDirtyCount() != 0 {
		t.Errorf("Untracked read should not subscribe, got %d notifications", listener.getDirtyCount())
	}
}

func TestSignalConcurrentWrites(t *testing.T) {
	count := NewSignal(0)

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			count.Update(func(n int) int { return n + 1 })
		}()
	}
	wg.Wait()

	if count.Peek() != 50 {
		t.Errorf("expected 50, got %d", count.Peek())
	}
}

func TestSignalAnyChangesDynamicType(t *testing.T) {
	s := NewSignal[any](1)
	s.Set("one")
	if s.Peek() != "one" {
		t.Errorf("expected value to change type, got %v", s.Peek())
	}
}
