package mempool

import "go.uber.org/atomic"

// Stats 记录池的命中与未命中次数。
type Stats struct {
	FreeListHits   atomic.Uint64
	FreeListMisses atomic.Uint64
	CacheHits      atomic.Uint64
	CacheMisses    atomic.Uint64
}

// StatsSnapshot 是 Stats 的只读拷贝。
type StatsSnapshot struct {
	FreeListHits   uint64
	FreeListMisses uint64
	CacheHits      uint64
	CacheMisses    uint64
}

// Snapshot 读取当前计数。
func (s *Stats) Snapshot() StatsSnapshot {
	return StatsSnapshot{
		FreeListHits:   s.FreeListHits.Load(),
		FreeListMisses: s.FreeListMisses.Load(),
		CacheHits:      s.CacheHits.Load(),
		CacheMisses:    s.CacheMisses.Load(),
	}
}
