package actor

import (
	"fmt"
	"log/slog"
	"net/http"
	"reflect"
	"sync"
	"time"

	"github.com/google/uuid"

	"actorfw/mempool"
	"actorfw/queue"
)

// Framework 是 Actor 的运行时容器，负责创建 Actor 并把它们调度到固定数量的工作线程上。
//
// 所有就绪的 Actor 排在一个共享的工作队列里，由一把锁和一个条件变量保护；
// 每个 Actor 的私有消息队列也由这把锁保护，这样投递一条消息只需要加一次锁。
// 工作线程每次取出一个 Actor 和它的一条消息，在锁外执行 handler，
// 然后重新加锁，按需把 Actor 放回工作队列。
type Framework struct {
	// id 实例标识，用于日志和指标
	id uuid.UUID
	// opts 填充过默认值的配置
	opts Options
	// pool 全局块池，Framework 持有它的一次引用
	pool *mempool.FreeList
	// dir 地址目录
	dir *Directory
	// work 就绪 Actor 的工作队列
	work *queue.Locked[*Actor]
	// running 为 false 时工作线程取空队列后退出，由 work 的锁保护
	running bool
	// stopped 所有工作线程都已退出，由 work 的锁保护
	stopped bool
	// wg 等待工作线程退出
	wg sync.WaitGroup
	// closeOnce 保证 Close 只执行一次
	closeOnce sync.Once
	// metrics 运行时指标
	metrics *Metrics
	// log 日志输出
	log *slog.Logger

	// srvMu 保护 srv
	srvMu sync.Mutex
	// srv 指标 HTTP 服务，EnableMetrics 之后才存在
	srv *http.Server
}

// NewFramework 创建 Framework 并启动工作线程。
func NewFramework(opts Options) *Framework {
	opts = opts.withDefaults()
	f := &Framework{
		id:      uuid.New(),
		opts:    opts,
		pool:    opts.FreeList,
		dir:     opts.Directory,
		work:    queue.NewLocked[*Actor](64),
		running: true,
		log:     opts.Logger,
	}
	f.metrics = NewMetrics(opts.Clock)
	f.metrics.MarkStart()
	f.pool.Reference()
	f.wg.Add(opts.Threads)
	for i := 0; i < opts.Threads; i++ {
		go f.worker()
	}
	f.log.Info("framework started", "id", f.id.String(), "threads", opts.Threads)
	return f
}

// ID 返回实例标识。
func (f *Framework) ID() uuid.UUID { return f.id }

// Threads 返回工作线程数量。
func (f *Framework) Threads() int { return f.opts.Threads }

// Directory 返回地址目录。
func (f *Framework) Directory() *Directory { return f.dir }

// FreeList 返回全局块池。
func (f *Framework) FreeList() *mempool.FreeList { return f.pool }

// Metrics 返回运行时指标。
func (f *Framework) Metrics() *Metrics { return f.metrics }

// Logger 返回日志输出。
func (f *Framework) Logger() *slog.Logger { return f.log }

// CreateActor 创建一个使用新地址的 Actor，返回持有一次引用的 Ref。
func (f *Framework) CreateActor(factory Factory) (*Ref, error) {
	return f.create(NullAddress(), 0, factory)
}

// CreateActorAtAddress 在指定地址创建 Actor。
// 地址已被占用时构造出的 Actor 被拆除，返回 ErrAddressInUse，已有实体不受影响。
func (f *Framework) CreateActorAtAddress(addr Address, factory Factory) (*Ref, error) {
	if addr.IsNull() {
		return nil, ErrNullAddress
	}
	return f.create(addr, 0, factory)
}

// CreateActorWith 创建 Actor，并把 params 交给构造函数。
func CreateActorWith[P any](f *Framework, params P, factory func(a *Actor, params P) error) (*Ref, error) {
	return f.create(NullAddress(), paramsSize[P](), bindParams(params, factory))
}

// CreateActorAtAddressWith 在指定地址创建 Actor，并把 params 交给构造函数。
func CreateActorAtAddressWith[P any](f *Framework, addr Address, params P, factory func(a *Actor, params P) error) (*Ref, error) {
	if addr.IsNull() {
		return nil, ErrNullAddress
	}
	return f.create(addr, paramsSize[P](), bindParams(params, factory))
}

func paramsSize[P any]() uint32 { return uint32(reflect.TypeFor[P]().Size()) }

func bindParams[P any](params P, factory func(*Actor, P) error) Factory {
	if factory == nil {
		return nil
	}
	return func(a *Actor) error { return factory(a, params) }
}

// create 分配、构造、分配地址、登记，任一步失败都会拆除已构造的部分。
func (f *Framework) create(addr Address, extra uint32, factory Factory) (*Ref, error) {
	if f.closed() {
		return nil, ErrFrameworkClosed
	}
	b := f.pool.Allocate(actorSize + extra)
	if b == nil {
		f.log.Warn("actor allocation failed", "size", actorSize+extra)
		return nil, ErrOutOfMemory
	}
	a := &Actor{
		fw:    f,
		block: b,
		cache: mempool.NewCache(f.pool, f.opts.CacheSlots, f.opts.Preload),
	}
	if addr.IsNull() {
		addr = NewAddress()
	}
	a.address = addr
	a.refs.Store(1)
	if factory != nil {
		if err := factory(a); err != nil {
			a.teardown()
			return nil, fmt.Errorf("%w: %w", ErrFactory, err)
		}
	}
	if !f.dir.RegisterIfAbsent(a) {
		a.teardown()
		f.log.Warn("actor address in use", "address", addr.String())
		return nil, ErrAddressInUse
	}
	f.metrics.Count(EventActorCreated)
	return &Ref{actor: a}, nil
}

// Send 从 from 向 to 发送一条消息，信封从全局块池分配。
// 返回 true 只表示目标实体在发送时存在，不表示有 handler 匹配。
func (f *Framework) Send(value any, from, to Address) bool {
	if value == nil {
		return false
	}
	size := envelopeSize(value)
	b := f.pool.Allocate(size)
	if b == nil {
		return false
	}
	return f.deliver(buildEnvelope(b, from, size, value), to, true)
}

// deliver 通过目录投递信封；失败时释放信封。
func (f *Framework) deliver(env *Envelope, to Address, wake bool) bool {
	if f.dir.Deliver(to, env, wake) {
		f.metrics.Count(EventMessageSent)
		return true
	}
	f.metrics.Count(EventMessageDropped)
	releaseEnvelope(f.pool, env)
	return false
}

// schedule 把信封放入 Actor 的私有队列并推进调度状态。
// env 为 nil 时只让 Actor 被重新检查一次（用于销毁）。
// Framework 已关闭时返回 false，信封不入队。
func (f *Framework) schedule(a *Actor, env *Envelope, wake bool) bool {
	w := f.work
	w.Lock()
	defer w.Unlock()
	if !f.running {
		return false
	}
	f.enqueue(a, env, wake)
	return true
}

// enqueue 推进调度状态，调用者必须持有工作队列锁。
func (f *Framework) enqueue(a *Actor, env *Envelope, wake bool) {
	if env != nil {
		a.queue.Push(env)
	}
	switch a.state {
	case StateIdle:
		a.state = StateBusy
		f.work.Push(a)
		if wake {
			f.work.Pulse()
		}
	case StateBusy:
		// 当前这一轮处理结束后会再调度一次
		a.state = StateDirty
	}
}

// kill 在最后一个引用释放后调用。
// 只要还有工作线程（包括 Close 期间正在排空队列的），就交给工作线程销毁，
// 因为此刻可能有工作线程正在执行这个 Actor 的 handler。
// 工作线程全部退出之后才就地销毁。
func (f *Framework) kill(a *Actor) {
	w := f.work
	w.Lock()
	if !f.stopped {
		f.enqueue(a, nil, true)
		w.Unlock()
		return
	}
	w.Unlock()
	f.destroy(a)
}

// worker 是工作线程的主循环。
// 整个循环都在工作队列锁内，只有执行 handler 和等待时释放。
// handler 的 panic 未被恢复时，锁已经释放，不能用 defer 解锁。
func (f *Framework) worker() {
	defer f.wg.Done()
	f.metrics.Count(EventThreadCreated)
	defer f.metrics.Count(EventThreadDestroyed)

	w := f.work
	w.Lock()
	for {
		if !w.Empty() {
			a, _ := w.Pop()
			// 私有队列同样由工作队列锁保护，趁持锁时一并取出消息
			env, _ := a.queue.Pop()
			more := !a.queue.Empty()

			w.Unlock()
			alive := f.process(a, env)
			w.Lock()

			if alive {
				if more || a.state == StateDirty {
					a.state = StateBusy
					w.Push(a)
				} else {
					a.state = StateIdle
				}
			}
			continue
		}
		if !f.running {
			w.Unlock()
			return
		}
		w.Wait()
		f.metrics.Count(EventThreadWoken)
	}
}

// process 在锁外处理一条消息，handler 的 panic 在这里按配置恢复。
func (f *Framework) process(a *Actor, env *Envelope) bool {
	if f.opts.OnPanic == nil {
		return a.process(env)
	}
	alive := true
	func() {
		defer func() {
			if r := recover(); r != nil {
				f.log.Error("actor handler panic", "address", a.address.String(), "panic", r)
				f.opts.OnPanic(a.address, r)
			}
		}()
		alive = a.process(env)
	}()
	return alive
}

// dispatch 执行 handler 并回收信封，同时记录处理耗时。
func (f *Framework) dispatch(a *Actor, env *Envelope) {
	start := time.Now()
	defer func() {
		f.metrics.ObserveLatency(time.Since(start))
		f.metrics.Count(EventActorProcessed)
		releaseEnvelope(f.pool, env)
	}()
	a.deliverLocal(env)
}

// destroy 注销 Actor，丢弃未处理的消息并释放它的全部资源。
func (f *Framework) destroy(a *Actor) {
	f.dir.Deregister(a)

	f.work.Lock()
	dropped := 0
	for !a.queue.Empty() {
		env, _ := a.queue.Pop()
		releaseEnvelope(f.pool, env)
		dropped++
	}
	a.state = StateIdle
	f.work.Unlock()

	if dropped > 0 {
		f.log.Debug("actor destroyed with queued messages", "address", a.address.String(), "dropped", dropped)
	}
	a.teardown()
	f.metrics.Count(EventActorDestroyed)
}

// closed 判断 Framework 是否已关闭。
func (f *Framework) closed() bool {
	f.work.Lock()
	defer f.work.Unlock()
	return !f.running
}

// Close 停止 Framework：工作线程处理完队列中剩余的工作后退出，
// 然后释放对全局块池的引用。可以重复调用。
// 关闭之后发送和创建都会失败；仍被引用的 Actor 在最后一个 Ref 释放时就地销毁。
func (f *Framework) Close() error {
	var err error
	f.closeOnce.Do(func() {
		f.work.Lock()
		f.running = false
		f.work.PulseAll()
		f.work.Unlock()
		f.wg.Wait()

		// 工作线程检查到空队列退出之后才到达的销毁请求留在队列里，在这里处理
		f.work.Lock()
		f.stopped = true
		var late []*Actor
		for !f.work.Empty() {
			a, _ := f.work.Pop()
			late = append(late, a)
		}
		f.work.Unlock()
		for _, a := range late {
			f.destroy(a)
		}

		err = f.stopMetrics()
		f.pool.Dereference()
		f.log.Info("framework stopped", "id", f.id.String())
	})
	return err
}
