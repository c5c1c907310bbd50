package queue

import (
	"sync"
	"testing"
	"time"
)

func TestQueueFIFO(t *testing.T) {
	q := New[int](1)
	if len(q.buf) != 2 {
		t.Fatalf("expected capacity 2, got %d", len(q.buf))
	}
	for i := 0; i < 5; i++ {
		q.Push(i)
	}
	if q.Len() != 5 {
		t.Fatalf("len: %d", q.Len())
	}
	for i := 0; i < 5; i++ {
		v, ok := q.Pop()
		if !ok || v != i {
			t.Fatalf("pop %d: %v %v", i, v, ok)
		}
	}
	if _, ok := q.Pop(); ok {
		t.Fatalf("should be empty")
	}
}

func TestQueueGrowWrapped(t *testing.T) {
	q := New[int](4)
	q.Push(1)
	q.Push(2)
	q.Push(3)
	q.Pop()
	q.Pop()
	// head 不在 0 时扩容，元素顺序必须保持
	for i := 4; i <= 9; i++ {
		q.Push(i)
	}
	want := []int{3, 4, 5, 6, 7, 8, 9}
	for _, w := range want {
		if v, _ := q.Pop(); v != w {
			t.Fatalf("want %d got %d", w, v)
		}
	}
}

func TestQueueZeroValueReleasesPopped(t *testing.T) {
	var q Queue[*int]
	a := 1
	q.Push(&a)
	q.Push(&a)
	for i := 0; i < 2; i++ {
		if v, ok := q.Pop(); !ok || *v != 1 {
			t.Fatalf("pop %d", i)
		}
	}
	for i, v := range q.buf {
		if v != nil {
			t.Fatalf("slot %d still holds a popped element", i)
		}
	}
	if !q.Empty() || q.Len() != 0 {
		t.Fatalf("expected empty")
	}
}

func TestLockedWaitPulse(t *testing.T) {
	l := NewLocked[string](2)
	got := make(chan string, 1)
	go func() {
		l.Lock()
		for l.Empty() {
			l.Wait()
		}
		v, _ := l.Pop()
		l.Unlock()
		got <- v
	}()
	time.Sleep(10 * time.Millisecond)
	l.Lock()
	l.Push("x")
	l.Pulse()
	l.Unlock()
	select {
	case v := <-got:
		if v != "x" {
			t.Fatalf("unexpected: %q", v)
		}
	case <-time.After(time.Second):
		t.Fatalf("waiter not woken")
	}
}

func TestLockedPulseAll(t *testing.T) {
	l := NewLocked[int](2)
	var wg sync.WaitGroup
	stop := false
	for i := 0; i < 3; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			l.Lock()
			for !stop {
				l.Wait()
			}
			l.Unlock()
		}()
	}
	time.Sleep(10 * time.Millisecond)
	l.Lock()
	stop = true
	l.PulseAll()
	l.Unlock()
	done := make(chan struct{})
	go func() { wg.Wait(); close(done) }()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatalf("not all waiters woken")
	}
	l.Lock()
	l.Push(1)
	if l.Len() != 1 {
		t.Fatalf("len")
	}
	l.Pop()
	if !l.Empty() {
		t.Fatalf("pop")
	}
	l.Unlock()
}
