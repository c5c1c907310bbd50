package actor

import (
	"context"
	"reflect"
	"sync"
	"time"
)

// Receiver 是供非 Actor 代码使用的可寻址实体。
//
// 它支持与 Actor 相同的 handler 登记，但 handler 在投递线程上同步执行，
// 执行完毕后接收计数加一并唤醒 Wait。调用 N 次 Wait 恰好对应 N 次到达，
// 并且每次返回时，对应那条消息的 handler 已经执行完。
// handler 在目录锁内执行，不能再通过同一个目录发送消息。
type Receiver struct {
	// address 唯一地址
	address Address
	// fw 提供块池、目录和指标
	fw *Framework

	// mu 保护以下字段
	mu sync.Mutex
	// cond 等待消息到达
	cond *sync.Cond
	// handlers 已登记的 handler，登记和注销立即生效
	handlers []*handler
	// received 尚未被 Wait 消耗的到达次数
	received uint64
	// closed 是否已关闭
	closed bool
}

// NewReceiver 创建一个 Receiver 并登记到 f 的目录中。
func NewReceiver(f *Framework) *Receiver {
	r := &Receiver{address: NewAddress(), fw: f}
	r.cond = sync.NewCond(&r.mu)
	f.pool.Reference()
	f.dir.Register(r)
	return r
}

// Address 返回 Receiver 的地址。
func (r *Receiver) Address() Address { return r.address }

// addHandler 实现 HandlerTarget。
func (r *Receiver) addHandler(h *handler) bool {
	b := r.fw.pool.Allocate(handlerSize)
	if b == nil {
		return false
	}
	h.block = b
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		r.fw.pool.Free(b)
		return false
	}
	r.handlers = append(r.handlers, h)
	return true
}

// removeHandler 实现 HandlerTarget。
func (r *Receiver) removeHandler(typ reflect.Type, key uintptr) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i, h := range r.handlers {
		if h.same(typ, key) {
			r.handlers = append(r.handlers[:i], r.handlers[i+1:]...)
			r.fw.pool.Free(h.block)
			return true
		}
	}
	return false
}

// push 实现 Entity：同步执行 handler，然后释放信封。
func (r *Receiver) push(env *Envelope, _ bool) bool {
	if !r.handle(env) {
		return false
	}
	releaseEnvelope(r.fw.pool, env)
	return true
}

func (r *Receiver) handle(env *Envelope) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return false
	}
	for _, h := range r.handlers {
		h.handle(env.payload, env.from)
	}
	r.received++
	r.cond.Broadcast()
	return true
}

// Wait 阻塞直到至少有一次未消耗的到达，然后消耗一次。
// Receiver 关闭后立即返回。
func (r *Receiver) Wait() {
	_ = r.WaitContext(context.Background())
}

// WaitTimeout 与 Wait 相同，但最多等待 d；超时返回 false。
func (r *Receiver) WaitTimeout(d time.Duration) bool {
	ctx, cancel := context.WithTimeout(context.Background(), d)
	defer cancel()
	return r.WaitContext(ctx) == nil
}

// WaitContext 与 Wait 相同，ctx 结束时返回它的错误。
// Receiver 已关闭且没有未消耗的到达时返回 ErrReceiverClosed。
func (r *Receiver) WaitContext(ctx context.Context) error {
	stop := context.AfterFunc(ctx, func() {
		r.mu.Lock()
		r.cond.Broadcast()
		r.mu.Unlock()
	})
	defer stop()

	r.mu.Lock()
	defer r.mu.Unlock()
	r.fw.metrics.Count(EventReceiverWait)
	for r.received == 0 {
		if r.closed {
			return ErrReceiverClosed
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		r.fw.metrics.Count(EventReceiverLock)
		r.cond.Wait()
	}
	r.received--
	return nil
}

// Count 返回尚未被 Wait 消耗的到达次数。
func (r *Receiver) Count() uint64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.received
}

// Reset 把到达计数清零。
func (r *Receiver) Reset() {
	r.mu.Lock()
	r.received = 0
	r.mu.Unlock()
}

// Close 从目录注销 Receiver，释放 handler 和对块池的引用。可以重复调用。
// 之后发往它的消息都会投递失败，阻塞中的 Wait 返回。
func (r *Receiver) Close() {
	r.fw.dir.Deregister(r)
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return
	}
	r.closed = true
	for _, h := range r.handlers {
		r.fw.pool.Free(h.block)
	}
	r.handlers = nil
	r.cond.Broadcast()
	r.mu.Unlock()
	r.fw.pool.Dereference()
}
