package mempool

import (
	"sync"

	"go.uber.org/atomic"
	"golang.org/x/sys/cpu"
)

const (
	// DefaultBuckets 默认桶数量；按 8 字节粒度覆盖 8..256 字节的块。
	DefaultBuckets = 32
	// DefaultMaxBlocksPerBucket 每个桶最多缓存的空闲块数。
	DefaultMaxBlocksPerBucket = 2048
	// classGranularity 尺寸类别的粒度（字节）。
	classGranularity = 8
)

// Options 配置全局空闲链表。
type Options struct {
	// Buckets 尺寸桶数量，默认 32
	Buckets int
	// MaxBlocksPerBucket 每个桶的容量上限，默认 2048
	MaxBlocksPerBucket int
}

// bucket 是一个带独立互斥锁的尺寸桶。
// count 镜像池中块的数量，允许不加锁地快速判断是否为空。
// 尾部的填充让相邻桶的锁落在不同的缓存行上。
type bucket struct {
	mu    sync.Mutex
	p     pool
	count atomic.Uint32
	_     cpu.CacheLinePad
}

// FreeList 是进程内共享的全局块池。
//
// 块按尺寸类别分桶，每个桶一把锁，不同尺寸之间互不竞争。
// 分配先查对应的桶，未命中再落到原始分配器；释放时桶满则直接交还原始分配器。
//
// FreeList 由引用计数管理生命周期：使用它的组件（Framework、Receiver、
// Actor 的消息缓存）在创建时 Reference，销毁时 Dereference，
// 最后一个引用释放时桶中缓存的块全部归还原始分配器。
type FreeList struct {
	alloc   Allocator
	buckets []bucket

	refs        atomic.Int32
	outstanding atomic.Int64
	stats       Stats
}

// NewFreeList 创建一个全局空闲链表；alloc 为 nil 时使用堆分配器。
// 新建的 FreeList 引用计数为 0。
func NewFreeList(alloc Allocator, opts Options) *FreeList {
	if alloc == nil {
		alloc = NewHeapAllocator()
	}
	n := opts.Buckets
	if n <= 0 {
		n = DefaultBuckets
	}
	maxBlocks := opts.MaxBlocksPerBucket
	if maxBlocks <= 0 {
		maxBlocks = DefaultMaxBlocksPerBucket
	}
	f := &FreeList{
		alloc:   alloc,
		buckets: make([]bucket, n),
	}
	for i := range f.buckets {
		f.buckets[i].p.max = uint32(maxBlocks)
	}
	return f
}

// ClassSize 把请求尺寸向上取整到尺寸类别。
func ClassSize(size uint32) uint32 {
	if size < classGranularity {
		size = classGranularity
	}
	return (size + classGranularity - 1) &^ (classGranularity - 1)
}

// Allocator 返回底层原始分配器。
func (f *FreeList) Allocator() Allocator { return f.alloc }

// Reference 增加一次引用。
func (f *FreeList) Reference() { f.refs.Inc() }

// Dereference 释放一次引用；最后一个引用释放时清空所有桶并返回 true。
// 释放次数多于引用次数是调用者的错误，会 panic。
func (f *FreeList) Dereference() bool {
	n := f.refs.Dec()
	if n < 0 {
		f.refs.Inc()
		panic("mempool: FreeList dereferenced more times than referenced")
	}
	if n > 0 {
		return false
	}
	f.Drain()
	return true
}

// Refs 返回当前引用计数。
func (f *FreeList) Refs() int32 { return f.refs.Load() }

// bucketFor 返回尺寸对应的桶；超出范围的尺寸不入池，返回 nil。
func (f *FreeList) bucketFor(cls uint32) *bucket {
	i := int(cls/classGranularity) - 1
	if i < 0 || i >= len(f.buckets) {
		return nil
	}
	return &f.buckets[i]
}

// Allocate 分配一个至少 size 字节的块。
// 原始分配器耗尽时返回 nil。
func (f *FreeList) Allocate(size uint32) *Block {
	cls := ClassSize(size)
	var b *Block
	if bk := f.bucketFor(cls); bk != nil && bk.count.Load() > 0 {
		bk.mu.Lock()
		// 加锁后池可能已被别的线程取空
		b = bk.p.fetch()
		bk.count.Store(bk.p.n)
		bk.mu.Unlock()
	}
	if b != nil {
		f.stats.FreeListHits.Inc()
	} else {
		f.stats.FreeListMisses.Inc()
		b = f.alloc.Allocate(cls)
		if b == nil {
			return nil
		}
	}
	f.outstanding.Inc()
	return b
}

// AllocateMany 一次性分配 len(dst) 个同尺寸的块，只加一次桶锁。
// 返回实际填充的数量；原始分配器中途耗尽时可能少于 len(dst)。
func (f *FreeList) AllocateMany(dst []*Block, size uint32) int {
	cls := ClassSize(size)
	n := 0
	if bk := f.bucketFor(cls); bk != nil && bk.count.Load() > 0 {
		bk.mu.Lock()
		for n < len(dst) && !bk.p.empty() {
			dst[n] = bk.p.fetch()
			n++
		}
		bk.count.Store(bk.p.n)
		bk.mu.Unlock()
		f.stats.FreeListHits.Add(uint64(n))
	}
	for n < len(dst) {
		f.stats.FreeListMisses.Inc()
		b := f.alloc.Allocate(cls)
		if b == nil {
			break
		}
		dst[n] = b
		n++
	}
	f.outstanding.Add(int64(n))
	return n
}

// Free 归还一个块。块优先回到所属的桶，桶满或尺寸超出范围时交还原始分配器。
// 释放可以发生在任意线程。
func (f *FreeList) Free(b *Block) {
	if b == nil {
		return
	}
	f.outstanding.Dec()
	added := false
	if bk := f.bucketFor(b.size); bk != nil {
		bk.mu.Lock()
		added = bk.p.add(b)
		bk.count.Store(bk.p.n)
		bk.mu.Unlock()
	}
	if !added {
		f.alloc.Free(b)
	}
}

// Drain 把所有桶中缓存的块交还原始分配器。
func (f *FreeList) Drain() {
	for i := range f.buckets {
		bk := &f.buckets[i]
		bk.mu.Lock()
		bk.p.drain(f.alloc.Free)
		bk.count.Store(0)
		bk.mu.Unlock()
	}
}

// Available 返回 size 对应的桶中当前可用的块数。
func (f *FreeList) Available(size uint32) int {
	bk := f.bucketFor(ClassSize(size))
	if bk == nil {
		return 0
	}
	return int(bk.count.Load())
}

// Outstanding 返回已分配出去、尚未归还的块数量（包括各缓存预取的块）。
func (f *FreeList) Outstanding() int64 { return f.outstanding.Load() }

// Stats 返回命中统计的快照。
func (f *FreeList) Stats() StatsSnapshot { return f.stats.Snapshot() }
