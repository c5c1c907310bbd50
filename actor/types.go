package actor

import (
	"log/slog"
	"time"

	"actorfw/mempool"
)

// ExecutionState 描述 Actor 的调度状态。
type ExecutionState uint8

const (
	// StateIdle 不在工作队列中，也没有工作线程在处理它。
	StateIdle ExecutionState = iota
	// StateBusy 已在工作队列中，或正被某一个工作线程处理。
	StateBusy
	// StateDirty 处于 Busy，并且期间又有新的工作到达，
	// 当前这一轮处理结束后需要再调度一次。
	StateDirty
)

func (s ExecutionState) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateBusy:
		return "busy"
	case StateDirty:
		return "dirty"
	default:
		return "unknown"
	}
}

// DefaultThreads 是默认的工作线程数量。
const DefaultThreads = 2

// Clock 提供当前时间，指标的运行时长依赖它。
type Clock interface {
	Now() time.Time
}

// systemClock 使用真实时间。
type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now() }

// Options 配置 Framework。零值即可使用。
type Options struct {
	// Threads 工作线程数量，默认 2
	Threads int
	// Allocator 原始分配器，默认在堆上分配；FreeList 非空时忽略
	Allocator mempool.Allocator
	// FreeList 共享的全局块池；为空时 Framework 自己创建一个
	FreeList *mempool.FreeList
	// Pool 自建全局块池时使用的参数
	Pool mempool.Options
	// Directory 共享的地址目录；为空时 Framework 自己创建一个
	Directory *Directory
	// CacheSlots 每个 Actor 消息缓存的槽位数，默认 3
	CacheSlots int
	// Preload 消息缓存每次补充的块数，默认 4
	Preload int
	// Logger 日志输出，默认 slog.Default()
	Logger *slog.Logger
	// OnPanic 非空时，工作线程恢复 handler 的 panic 并回调；
	// 为空时 panic 直接向上传播
	OnPanic func(addr Address, v any)
	// Clock 指标使用的时钟，默认真实时间
	Clock Clock
}

// withDefaults 填充未设置的字段。
func (o Options) withDefaults() Options {
	if o.Threads <= 0 {
		o.Threads = DefaultThreads
	}
	if o.FreeList == nil {
		o.FreeList = mempool.NewFreeList(o.Allocator, o.Pool)
	}
	if o.Directory == nil {
		o.Directory = NewDirectory()
	}
	if o.CacheSlots <= 0 {
		o.CacheSlots = mempool.DefaultCacheSlots
	}
	if o.Preload <= 0 {
		o.Preload = mempool.DefaultPreload
	}
	if o.Logger == nil {
		o.Logger = slog.Default()
	}
	if o.Clock == nil {
		o.Clock = systemClock{}
	}
	return o
}
