package testkit

import (
	"testing"
	"time"
)

// Probe 是带类型的测试探针，handler 把观察到的值放进来，测试代码按顺序取出校验。
type Probe[T any] struct {
	// t 测试上下文，用于报告失败
	t testing.TB
	// ch 观察值通道
	ch chan T
	// fail 失败处理函数
	fail func(string, ...any)
}

// NewProbe 创建探针；buffer 小于等于 0 时使用 1024。
// Put 在缓冲区满时阻塞，buffer 应不小于测试中的消息数量。
func NewProbe[T any](t testing.TB, buffer int) *Probe[T] {
	if buffer <= 0 {
		buffer = 1024
	}
	p := &Probe[T]{t: t, ch: make(chan T, buffer)}
	p.fail = t.Fatalf
	return p
}

// Chan 返回观察值通道。
func (p *Probe[T]) Chan() <-chan T { return p.ch }

// Put 记录一个观察值。
func (p *Probe[T]) Put(v T) { p.ch <- v }

// Len 返回尚未取出的观察值数量。
func (p *Probe[T]) Len() int { return len(p.ch) }

// Expect 取出下一个观察值，超时（默认 1 秒）则测试失败。
func (p *Probe[T]) Expect(timeout time.Duration) T {
	p.t.Helper()
	if timeout <= 0 {
		timeout = time.Second
	}
	select {
	case v := <-p.ch:
		return v
	case <-time.After(timeout):
		var zero T
		p.fail("timeout waiting for observation")
		return zero
	}
}

// ExpectN 依次取出 n 个观察值，总等待时间不超过 timeout（默认 5 秒）。
func (p *Probe[T]) ExpectN(n int, timeout time.Duration) []T {
	p.t.Helper()
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	deadline := time.NewTimer(timeout)
	defer deadline.Stop()
	out := make([]T, 0, n)
	for len(out) < n {
		select {
		case v := <-p.ch:
			out = append(out, v)
		case <-deadline.C:
			p.fail("timeout: got %d of %d observations", len(out), n)
			return out
		}
	}
	return out
}

// ExpectNoMessage 确认在 timeout（默认 50 毫秒）内没有新的观察值。
func (p *Probe[T]) ExpectNoMessage(timeout time.Duration) {
	p.t.Helper()
	if timeout <= 0 {
		timeout = 50 * time.Millisecond
	}
	select {
	case v := <-p.ch:
		p.fail("unexpected observation: %#v", v)
	case <-time.After(timeout):
	}
}
