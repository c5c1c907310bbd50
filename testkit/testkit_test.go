package testkit

import (
	"sync"
	"testing"
	"time"
)

func TestProbe(t *testing.T) {
	p := NewProbe[int](t, 4)
	p.Put(1)
	p.Put(2)
	if p.Len() != 2 {
		t.Fatalf("len: %d", p.Len())
	}
	if got := p.Expect(50 * time.Millisecond); got != 1 {
		t.Fatalf("unexpected: %d", got)
	}
	if got := p.ExpectN(1, 0); len(got) != 1 || got[0] != 2 {
		t.Fatalf("expectN: %v", got)
	}
	p.ExpectNoMessage(10 * time.Millisecond)

	var failed int
	p.fail = func(string, ...any) { failed++ }
	if v := p.Expect(5 * time.Millisecond); v != 0 || failed != 1 {
		t.Fatalf("expected timeout failure")
	}
	p.Put(3)
	if got := p.ExpectN(2, 5*time.Millisecond); len(got) != 1 || failed != 2 {
		t.Fatalf("expected partial result and failure, got %v", got)
	}
	p.Put(4)
	p.ExpectNoMessage(5 * time.Millisecond)
	if failed != 3 {
		t.Fatalf("expected unexpected-observation failure")
	}
}

func TestFakeClock(t *testing.T) {
	c := NewFakeClock(time.Time{})
	start := c.Now()
	if !start.Equal(time.Unix(0, 0)) {
		t.Fatalf("start: %v", start)
	}
	late := c.After(10 * time.Second)
	early := c.After(5 * time.Second)
	if c.Pending() != 2 {
		t.Fatalf("pending: %d", c.Pending())
	}
	c.Advance(6 * time.Second)
	select {
	case <-early:
	default:
		t.Fatalf("early timer should fire")
	}
	select {
	case <-late:
		t.Fatalf("late timer should not fire")
	default:
	}
	c.Set(start)
	if c.Since(start) != 6*time.Second {
		t.Fatalf("clock must not go backwards")
	}
	c.Advance(4 * time.Second)
	if _, ok := <-late; !ok {
		t.Fatalf("late timer should deliver before closing")
	}
	if c.Pending() != 0 {
		t.Fatalf("pending: %d", c.Pending())
	}
}

func TestChaos(t *testing.T) {
	c := &Chaos{DropProbability: 1, Seed: 1}
	called := false
	if ok := c.Apply(func() { called = true }); ok || called {
		t.Fatalf("expected drop")
	}
	c = &Chaos{MaxDelay: 50 * time.Microsecond, YieldProbability: 1, Seed: 1}
	if ok := c.Apply(func() { called = true }); !ok || !called {
		t.Fatalf("expected call")
	}
	var zero Chaos
	if !zero.Apply(func() {}) {
		t.Fatalf("zero value must not drop")
	}

	// 多个 goroutine 共用同一个 Chaos
	shared := &Chaos{MaxDelay: 10 * time.Microsecond, DropProbability: 0.5}
	var wg sync.WaitGroup
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 50; j++ {
				shared.Apply(func() {})
			}
		}()
	}
	wg.Wait()
}
