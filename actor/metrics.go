package actor

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"sort"
	"strconv"
	"time"

	"go.uber.org/atomic"

	"actorfw/mempool"
)

// Event 是运行时计数的事件类型。
type Event int

const (
	// EventThreadCreated 工作线程启动
	EventThreadCreated Event = iota
	// EventThreadDestroyed 工作线程退出
	EventThreadDestroyed
	// EventThreadWoken 工作线程从等待中被唤醒
	EventThreadWoken
	// EventActorCreated Actor 创建成功
	EventActorCreated
	// EventActorDestroyed Actor 被销毁
	EventActorDestroyed
	// EventActorProcessed Actor 处理了一条消息
	EventActorProcessed
	// EventMessageSent 消息投递成功
	EventMessageSent
	// EventMessageDropped 目标不存在，消息被丢弃
	EventMessageDropped
	// EventReceiverWait Receiver.Wait 被调用
	EventReceiverWait
	// EventReceiverLock Receiver.Wait 需要阻塞等待
	EventReceiverLock

	numEvents
)

// eventNames 是各事件在指标输出中的名称。
var eventNames = [numEvents]string{
	EventThreadCreated:   "threads_created_total",
	EventThreadDestroyed: "threads_destroyed_total",
	EventThreadWoken:     "threads_woken_total",
	EventActorCreated:    "actors_created_total",
	EventActorDestroyed:  "actors_destroyed_total",
	EventActorProcessed:  "actors_processed_total",
	EventMessageSent:     "messages_sent_total",
	EventMessageDropped:  "messages_dropped_total",
	EventReceiverWait:    "receiver_waits_total",
	EventReceiverLock:    "receiver_locks_total",
}

func (e Event) String() string {
	if e < 0 || e >= numEvents {
		return "unknown"
	}
	return eventNames[e]
}

// Metrics 收集运行时的事件计数、处理耗时分布和运行时长。
// 所有计数都是原子操作，可在任意线程上调用。
type Metrics struct {
	// clock 计算运行时长的时钟
	clock Clock
	// startedAt 启动时间（Unix 纳秒）
	startedAt atomic.Int64
	// events 各事件的计数
	events [numEvents]atomic.Uint64

	// latBuckets 处理耗时直方图的桶边界
	latBuckets []time.Duration
	// latCounts 每个桶的计数，最后一个是 +Inf
	latCounts []atomic.Uint64
	// latSumNS 耗时总和（纳秒）
	latSumNS atomic.Uint64
}

// NewMetrics 创建指标收集器；clock 为 nil 时使用真实时间。
// 耗时桶覆盖 10 微秒到 100 毫秒。
func NewMetrics(clock Clock) *Metrics {
	if clock == nil {
		clock = systemClock{}
	}
	b := []time.Duration{
		10 * time.Microsecond,
		50 * time.Microsecond,
		100 * time.Microsecond,
		500 * time.Microsecond,
		1 * time.Millisecond,
		2 * time.Millisecond,
		5 * time.Millisecond,
		10 * time.Millisecond,
		20 * time.Millisecond,
		50 * time.Millisecond,
		100 * time.Millisecond,
	}
	return &Metrics{
		clock:      clock,
		latBuckets: b,
		latCounts:  make([]atomic.Uint64, len(b)+1),
	}
}

// MarkStart 记录启动时间，只有第一次调用生效。
func (m *Metrics) MarkStart() {
	m.startedAt.CompareAndSwap(0, m.clock.Now().UnixNano())
}

// Count 给事件计数加一。
func (m *Metrics) Count(e Event) { m.events[e].Inc() }

// Value 返回事件的当前计数。
func (m *Metrics) Value(e Event) uint64 { return m.events[e].Load() }

// ObserveLatency 记录一次处理耗时。
func (m *Metrics) ObserveLatency(d time.Duration) {
	if d < 0 {
		return
	}
	m.latSumNS.Add(uint64(d.Nanoseconds()))
	i := sort.Search(len(m.latBuckets), func(i int) bool { return d <= m.latBuckets[i] })
	m.latCounts[i].Inc()
}

// Uptime 返回自启动以来的时长。
func (m *Metrics) Uptime() time.Duration {
	started := m.startedAt.Load()
	if started == 0 {
		return 0
	}
	return m.clock.Now().Sub(time.Unix(0, started))
}

// Reset 清零所有事件计数和耗时直方图，启动时间保持不变。
func (m *Metrics) Reset() {
	for i := range m.events {
		m.events[i].Store(0)
	}
	for i := range m.latCounts {
		m.latCounts[i].Store(0)
	}
	m.latSumNS.Store(0)
}

// Snapshot 是某一时刻运行时指标的拷贝。
type Snapshot struct {
	// Events 按事件名称索引的计数
	Events map[string]uint64
	// Pool 全局块池与消息缓存的命中统计
	Pool mempool.StatsSnapshot
	// Outstanding 已分配尚未归还的块数量
	Outstanding int64
	// Entities 目录中登记的实体数量
	Entities int
	// Processed 处理耗时观测次数
	Processed uint64
	// MeanLatency 平均处理耗时
	MeanLatency time.Duration
	// Uptime 运行时长
	Uptime time.Duration
}

// Snapshot 返回当前指标的拷贝。
func (f *Framework) Snapshot() Snapshot {
	m := f.metrics
	s := Snapshot{
		Events:      make(map[string]uint64, numEvents),
		Pool:        f.pool.Stats(),
		Outstanding: f.pool.Outstanding(),
		Entities:    f.dir.Count(),
		Uptime:      m.Uptime(),
	}
	for e := Event(0); e < numEvents; e++ {
		s.Events[e.String()] = m.Value(e)
	}
	for i := range m.latCounts {
		s.Processed += m.latCounts[i].Load()
	}
	if s.Processed > 0 {
		s.MeanLatency = time.Duration(m.latSumNS.Load() / s.Processed)
	}
	return s
}

// MetricsHandler 返回以 Prometheus 文本格式输出指标的 HTTP handler。
func (f *Framework) MetricsHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/plain; version=0.0.4")
		f.writeMetrics(w)
	})
}

// EnableMetrics 在 addr（默认 :9090）的 /metrics 路径上暴露指标。
// 服务在 Close 时关闭。重复调用返回错误。
func (f *Framework) EnableMetrics(addr string) error {
	if addr == "" {
		addr = ":9090"
	}
	f.srvMu.Lock()
	defer f.srvMu.Unlock()
	if f.srv != nil {
		return errors.New("actor: metrics already enabled")
	}
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("actor: metrics listen %s: %w", addr, err)
	}
	mux := http.NewServeMux()
	mux.Handle("/metrics", f.MetricsHandler())
	f.srv = &http.Server{Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	go func(srv *http.Server) {
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			f.log.Error("metrics server stopped", "err", err)
		}
	}(f.srv)
	f.log.Info("metrics enabled", "addr", ln.Addr().String())
	return nil
}

// stopMetrics 关闭指标服务（如果启用过）。
func (f *Framework) stopMetrics() error {
	f.srvMu.Lock()
	srv := f.srv
	f.srv = nil
	f.srvMu.Unlock()
	if srv == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	return srv.Shutdown(ctx)
}

// writeMetrics 以 Prometheus 文本格式写出指标。
func (f *Framework) writeMetrics(w io.Writer) {
	m := f.metrics
	s := f.Snapshot()

	_, _ = fmt.Fprintln(w, "# TYPE actorfw_info gauge")
	_, _ = fmt.Fprintf(w, "actorfw_info{instance=%q,threads=\"%d\"} 1\n", f.id.String(), f.opts.Threads)
	for e := Event(0); e < numEvents; e++ {
		name := "actorfw_" + e.String()
		_, _ = fmt.Fprintln(w, "# TYPE", name, "counter")
		_, _ = fmt.Fprintln(w, name, m.Value(e))
	}

	_, _ = fmt.Fprintln(w, "# TYPE actorfw_freelist_hits_total counter")
	_, _ = fmt.Fprintln(w, "actorfw_freelist_hits_total", s.Pool.FreeListHits)
	_, _ = fmt.Fprintln(w, "# TYPE actorfw_freelist_misses_total counter")
	_, _ = fmt.Fprintln(w, "actorfw_freelist_misses_total", s.Pool.FreeListMisses)
	_, _ = fmt.Fprintln(w, "# TYPE actorfw_cache_hits_total counter")
	_, _ = fmt.Fprintln(w, "actorfw_cache_hits_total", s.Pool.CacheHits)
	_, _ = fmt.Fprintln(w, "# TYPE actorfw_cache_misses_total counter")
	_, _ = fmt.Fprintln(w, "actorfw_cache_misses_total", s.Pool.CacheMisses)
	_, _ = fmt.Fprintln(w, "# TYPE actorfw_blocks_outstanding gauge")
	_, _ = fmt.Fprintln(w, "actorfw_blocks_outstanding", s.Outstanding)
	_, _ = fmt.Fprintln(w, "# TYPE actorfw_entities gauge")
	_, _ = fmt.Fprintln(w, "actorfw_entities", s.Entities)

	_, _ = fmt.Fprintln(w, "# TYPE actorfw_dispatch_seconds histogram")
	var cum uint64
	for i, b := range m.latBuckets {
		cum += m.latCounts[i].Load()
		_, _ = fmt.Fprintln(w, "actorfw_dispatch_seconds_bucket{le=\""+strconv.FormatFloat(b.Seconds(), 'f', -1, 64)+"\"}", cum)
	}
	cum += m.latCounts[len(m.latBuckets)].Load()
	_, _ = fmt.Fprintln(w, "actorfw_dispatch_seconds_bucket{le=\"+Inf\"}", cum)
	_, _ = fmt.Fprintln(w, "actorfw_dispatch_seconds_sum", float64(m.latSumNS.Load())/1e9)
	_, _ = fmt.Fprintln(w, "actorfw_dispatch_seconds_count", cum)

	_, _ = fmt.Fprintln(w, "# TYPE actorfw_uptime_seconds gauge")
	_, _ = fmt.Fprintln(w, "actorfw_uptime_seconds", s.Uptime.Seconds())
}
