package testkit

import (
	"math/rand"
	"runtime"
	"sync"
	"time"
)

// Chaos 在并发发送者之间注入随机延迟和丢弃，用来打乱线程交错。
// 零值不做任何扰动。可以被多个 goroutine 同时使用。
type Chaos struct {
	// DropProbability 跳过一次操作的概率（0.0-1.0）
	DropProbability float64
	// MaxDelay 每次操作前的最大随机延迟
	MaxDelay time.Duration
	// YieldProbability 在操作前让出处理器的概率
	YieldProbability float64

	// mu 保护 rnd
	mu sync.Mutex
	// rnd 随机源，第一次使用时按 Seed 创建
	rnd *rand.Rand
	// Seed 随机种子；为 0 时使用当前时间
	Seed int64
}

// float 返回 [0,1) 的随机数。
func (c *Chaos) float() float64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.ensure()
	return c.rnd.Float64()
}

// duration 返回 [0,max) 的随机时长。
func (c *Chaos) duration(max time.Duration) time.Duration {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.ensure()
	return time.Duration(c.rnd.Int63n(int64(max)))
}

func (c *Chaos) ensure() {
	if c.rnd != nil {
		return
	}
	seed := c.Seed
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	c.rnd = rand.New(rand.NewSource(seed))
}

// Jitter 按配置随机让出处理器或休眠一小段时间。
func (c *Chaos) Jitter() {
	if c.YieldProbability > 0 && c.float() < c.YieldProbability {
		runtime.Gosched()
	}
	if c.MaxDelay > 0 {
		time.Sleep(c.duration(c.MaxDelay))
	}
}

// Apply 先扰动，再执行 fn；被丢弃时不执行并返回 false。
func (c *Chaos) Apply(fn func()) bool {
	if c.DropProbability > 0 && c.float() < c.DropProbability {
		return false
	}
	c.Jitter()
	fn()
	return true
}
