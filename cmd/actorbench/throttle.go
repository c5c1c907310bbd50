package main

import (
	"context"
	"time"

	"go.uber.org/atomic"
)

// throttle 是无锁令牌桶，限制 soak 场景的消息注入速率。
// 速率可以在运行中通过 setRate 调整；速率小于等于 0 表示不限速。
type throttle struct {
	// rate 每秒生成的令牌数
	rate atomic.Int64
	// burst 桶容量
	burst int64
	// tokens 当前令牌数
	tokens atomic.Int64
	// lastNS 上次补充令牌的时间（纳秒）
	lastNS atomic.Int64
	// now 时间来源
	now func() time.Time
}

// newThrottle 创建令牌桶；burst 小于等于 0 时取 rate（至少为 1）。
func newThrottle(rate, burst int64) *throttle {
	if burst <= 0 {
		burst = max(rate, 1)
	}
	t := &throttle{burst: burst, now: time.Now}
	t.rate.Store(rate)
	t.tokens.Store(burst)
	t.lastNS.Store(t.now().UnixNano())
	return t
}

// setRate 调整速率。
func (t *throttle) setRate(rate int64) {
	t.refill(t.now().UnixNano())
	t.rate.Store(rate)
}

// limit 返回当前速率。
func (t *throttle) limit() int64 { return t.rate.Load() }

// allow 尝试取走 n 个令牌，不阻塞。
func (t *throttle) allow(n int64) bool {
	if t.rate.Load() <= 0 {
		return true
	}
	t.refill(t.now().UnixNano())
	for {
		cur := t.tokens.Load()
		if cur < n {
			return false
		}
		if t.tokens.CompareAndSwap(cur, cur-n) {
			return true
		}
	}
}

// wait 阻塞直到取到 n 个令牌或 ctx 结束。
func (t *throttle) wait(ctx context.Context, n int64) error {
	for !t.allow(n) {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(200 * time.Microsecond):
		}
	}
	return nil
}

// refill 按经过的时间补充令牌。
func (t *throttle) refill(nowNS int64) {
	r := t.rate.Load()
	last := t.lastNS.Load()
	if r <= 0 || nowNS <= last {
		return
	}
	add := (nowNS - last) * r / int64(time.Second)
	if add <= 0 {
		return
	}
	if !t.lastNS.CompareAndSwap(last, nowNS) {
		return
	}
	for {
		cur := t.tokens.Load()
		next := min(cur+add, t.burst)
		if t.tokens.CompareAndSwap(cur, next) {
			return
		}
	}
}
