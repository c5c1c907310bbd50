package testkit

import (
	"sort"
	"sync"
	"time"
)

// FakeClock 是手动推进的时钟，满足 actor.Clock，
// 用来在测试中驱动运行时长等依赖时间的指标。
type FakeClock struct {
	// mu 保护以下字段
	mu sync.Mutex
	// now 当前模拟时间
	now time.Time
	// timers 尚未触发的定时器，按触发时间排序
	timers []fakeTimer
}

// fakeTimer 是一个模拟定时器。
type fakeTimer struct {
	// at 触发时间
	at time.Time
	// ch 触发时收到当时的时间，随后关闭
	ch chan time.Time
}

// NewFakeClock 创建模拟时钟；start 为零值时从 Unix 纪元开始。
func NewFakeClock(start time.Time) *FakeClock {
	if start.IsZero() {
		start = time.Unix(0, 0)
	}
	return &FakeClock{now: start}
}

// Now 返回当前模拟时间。
func (c *FakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

// Since 返回从 t 到当前模拟时间的时长。
func (c *FakeClock) Since(t time.Time) time.Duration { return c.Now().Sub(t) }

// After 返回一个通道，模拟时间推进 d 之后收到当时的时间。
func (c *FakeClock) After(d time.Duration) <-chan time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	t := fakeTimer{at: c.now.Add(d), ch: make(chan time.Time, 1)}
	i := sort.Search(len(c.timers), func(i int) bool { return c.timers[i].at.After(t.at) })
	c.timers = append(c.timers, fakeTimer{})
	copy(c.timers[i+1:], c.timers[i:])
	c.timers[i] = t
	return t.ch
}

// Pending 返回尚未触发的定时器数量。
func (c *FakeClock) Pending() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.timers)
}

// Advance 把模拟时间推进 d。
func (c *FakeClock) Advance(d time.Duration) {
	c.Set(c.Now().Add(d))
}

// Set 把模拟时间设为 t（不能倒退），并按顺序触发所有到期的定时器。
func (c *FakeClock) Set(t time.Time) {
	c.mu.Lock()
	if t.Before(c.now) {
		c.mu.Unlock()
		return
	}
	c.now = t
	n := 0
	for n < len(c.timers) && !c.timers[n].at.After(t) {
		n++
	}
	fire := append([]fakeTimer(nil), c.timers[:n]...)
	c.timers = append(c.timers[:0], c.timers[n:]...)
	c.mu.Unlock()

	for _, ft := range fire {
		ft.ch <- t
		close(ft.ch)
	}
}
