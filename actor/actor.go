package actor

import (
	"reflect"

	"go.uber.org/atomic"

	"actorfw/mempool"
	"actorfw/queue"
)

// actorSize 是一个 Actor 占用的字节数，创建时从分配器中扣除。
var actorSize = uint32(reflect.TypeFor[Actor]().Size())

// Factory 在 Actor 创建时运行，用来登记 handler、初始化私有状态。
// 返回错误时 Actor 被拆除，创建失败。
// Factory 运行时地址已分配但尚未登记到目录，发往自己的消息会投递失败。
type Factory func(a *Actor) error

// Actor 是独立调度的顺序执行单元，只能通过消息与外界交互。
//
// 同一个 Actor 在任一时刻最多只有一个工作线程在执行它的 handler，
// 因此 handler 内访问 Actor 私有状态不需要加锁。
// Actor 的方法（Send、TailSend、SetDefaultHandler、OnDestroy 以及
// RegisterHandler/DeregisterHandler）只能在它自己的 handler 或 Factory 中调用。
type Actor struct {
	// address 唯一地址，创建后不再改变
	address Address
	// fw 所属的 Framework
	fw *Framework

	// queue 私有消息队列，由 Framework 的工作队列锁保护
	queue queue.Queue[*Envelope]
	// state 调度状态，由 Framework 的工作队列锁保护
	state ExecutionState

	// refs 外部引用计数，降到 0 后由工作线程销毁
	refs atomic.Int32

	// handlers 分阶段生效的 handler 表
	handlers handlerTable
	// def 默认 handler，没有任何 handler 匹配时调用
	def func(from Address)
	// defBlock 默认 handler 占用的内存块
	defBlock *mempool.Block

	// cache 私有消息块缓存，Send 从这里分配信封
	cache *mempool.Cache
	// block Actor 自身占用的内存块
	block *mempool.Block
	// onDestroy 销毁时按登记顺序执行的回调
	onDestroy []func()
}

// Address 返回 Actor 的地址。
func (a *Actor) Address() Address { return a.address }

// Framework 返回 Actor 所属的 Framework。
func (a *Actor) Framework() *Framework { return a.fw }

// Send 从这个 Actor 发送一条消息给 to，并在需要时唤醒一个工作线程。
// 信封从 Actor 的私有缓存中分配。目标不存在或分配失败时返回 false。
func (a *Actor) Send(value any, to Address) bool {
	return a.send(value, to, true)
}

// TailSend 与 Send 相同，但不唤醒等待中的工作线程。
// 适合在 handler 末尾把工作交给下一个 Actor：当前工作线程处理完后会自己接手。
func (a *Actor) TailSend(value any, to Address) bool {
	return a.send(value, to, false)
}

func (a *Actor) send(value any, to Address, wake bool) bool {
	if value == nil {
		return false
	}
	size := envelopeSize(value)
	b := a.cache.Allocate(size)
	if b == nil {
		return false
	}
	return a.fw.deliver(buildEnvelope(b, a.address, size, value), to, wake)
}

// SetDefaultHandler 设置默认 handler；fn 为 nil 时清除。
// 默认 handler 只在一条消息没有匹配任何 handler 时调用，并且立即生效。
// 分配失败时返回 false，之前的设置保持不变。
func (a *Actor) SetDefaultHandler(fn func(from Address)) bool {
	var b *mempool.Block
	if fn != nil {
		if b = a.fw.pool.Allocate(handlerSize); b == nil {
			return false
		}
	}
	a.fw.pool.Free(a.defBlock)
	a.def = fn
	a.defBlock = b
	return true
}

// OnDestroy 登记一个在 Actor 销毁时执行的回调。
// 回调在工作线程上执行；创建失败被拆除的 Actor 也会执行。
func (a *Actor) OnDestroy(fn func()) {
	if fn != nil {
		a.onDestroy = append(a.onDestroy, fn)
	}
}

// addHandler 实现 HandlerTarget。
func (a *Actor) addHandler(h *handler) bool {
	b := a.fw.pool.Allocate(handlerSize)
	if b == nil {
		return false
	}
	h.block = b
	a.handlers.add(h)
	return true
}

// removeHandler 实现 HandlerTarget。
func (a *Actor) removeHandler(typ reflect.Type, key uintptr) bool {
	return a.handlers.mark(typ, key, a.freeHandler)
}

// freeHandler 归还 handler 占用的内存块。
func (a *Actor) freeHandler(h *handler) {
	a.fw.pool.Free(h.block)
	h.block = nil
}

// push 实现 Entity：入队并按需调度。
func (a *Actor) push(env *Envelope, wake bool) bool {
	return a.fw.schedule(a, env, wake)
}

// process 处理一条出队的消息；Actor 已无引用时销毁它并返回 false。
// 引用计数一旦降到 0 就不会再上升，所以这里不加锁读取。
func (a *Actor) process(env *Envelope) bool {
	if a.refs.Load() <= 0 {
		if env != nil {
			releaseEnvelope(a.fw.pool, env)
		}
		a.fw.destroy(a)
		return false
	}
	if env == nil {
		return true
	}
	a.handlers.update(a.freeHandler)
	a.fw.dispatch(a, env)
	a.handlers.update(a.freeHandler)
	return true
}

// deliverLocal 执行匹配的 handler；没有匹配时调用默认 handler。
func (a *Actor) deliverLocal(env *Envelope) {
	if a.handlers.dispatch(env.payload, env.from) == 0 && a.def != nil {
		a.def(env.from)
	}
}

// teardown 执行销毁回调并释放 Actor 持有的全部资源。
func (a *Actor) teardown() {
	for _, fn := range a.onDestroy {
		fn()
	}
	a.onDestroy = nil
	a.handlers.release(a.freeHandler)
	a.fw.pool.Free(a.defBlock)
	a.def = nil
	a.defBlock = nil
	a.cache.Release()
	a.fw.pool.Free(a.block)
	a.block = nil
}
