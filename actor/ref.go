package actor

import "go.uber.org/atomic"

// Ref 是对 Actor 的一次引用。
//
// Clone 增加引用，Release 释放引用。最后一个引用释放时不会同步销毁 Actor，
// 而是推入一条空消息，由工作线程在正常的出队流程里完成销毁，
// 避免与另一个线程上仍在执行的 handler 竞争。
// 同一个 Ref 不应被多个 goroutine 同时 Release；需要共享时各自 Clone。
type Ref struct {
	// actor 引用的 Actor
	actor *Actor
	// released 本引用是否已释放
	released atomic.Bool
}

// Address 返回被引用 Actor 的地址；已释放的 Ref 返回空地址。
func (r *Ref) Address() Address {
	if r == nil || r.released.Load() {
		return NullAddress()
	}
	return r.actor.address
}

// Clone 返回一个新的引用；已释放的 Ref 返回 nil。
func (r *Ref) Clone() *Ref {
	if r == nil || r.released.Load() {
		return nil
	}
	r.actor.refs.Inc()
	return &Ref{actor: r.actor}
}

// Release 释放本引用，可以重复调用。
func (r *Ref) Release() {
	if r == nil || !r.released.CompareAndSwap(false, true) {
		return
	}
	if r.actor.refs.Dec() == 0 {
		r.actor.fw.kill(r.actor)
	}
}

// References 返回 Actor 当前的引用计数。
func (r *Ref) References() int32 {
	if r == nil {
		return 0
	}
	return r.actor.refs.Load()
}

// Push 以 from 为发送者把 value 直接推给被引用的 Actor，不经过目录查找。
// 信封从全局块池分配。Ref 已释放、value 为 nil 或分配失败时返回 false。
func (r *Ref) Push(value any, from Address) bool {
	if r == nil || value == nil || r.released.Load() {
		return false
	}
	fw := r.actor.fw
	size := envelopeSize(value)
	b := fw.pool.Allocate(size)
	if b == nil {
		return false
	}
	env := buildEnvelope(b, from, size, value)
	if !fw.schedule(r.actor, env, true) {
		releaseEnvelope(fw.pool, env)
		return false
	}
	fw.metrics.Count(EventMessageSent)
	return true
}
