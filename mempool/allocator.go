package mempool

import (
	"go.uber.org/atomic"
)

// Block 是内存池管理的最小单元。
//
// size 是按尺寸类别向上取整后的字节数，决定块属于哪个桶；
// next 是空闲链表的侵入式指针，只有块位于某个池中时才有意义；
// Value 由使用者持有（例如消息信封对象），块在池中循环时保留，
// 这样同一尺寸的对象可以被原样复用，而不用重新分配。
type Block struct {
	size  uint32
	next  *Block
	Value any
}

// Size 返回块的类别尺寸（字节）。
func (b *Block) Size() uint32 { return b.size }

// Allocator 是底层原始分配器接口。
// 池未命中时从这里分配，池满时把块归还到这里。
// Allocate 在资源耗尽时返回 nil，由调用者向上报告分配失败。
type Allocator interface {
	// Allocate 分配一个 size 字节的块，失败返回 nil。
	Allocate(size uint32) *Block
	// Free 释放之前分配的块。
	Free(b *Block)
}

// HeapAllocator 直接在 Go 堆上分配块，并统计分配与释放次数。
// 零值即可使用。
type HeapAllocator struct {
	allocs atomic.Uint64
	frees  atomic.Uint64
	bytes  atomic.Int64
}

// NewHeapAllocator 创建一个堆分配器。
func NewHeapAllocator() *HeapAllocator { return &HeapAllocator{} }

// Allocate 在堆上创建一个新块。
func (h *HeapAllocator) Allocate(size uint32) *Block {
	h.allocs.Inc()
	h.bytes.Add(int64(size))
	return &Block{size: size}
}

// Free 统计释放；块本身交给 GC 回收。
func (h *HeapAllocator) Free(b *Block) {
	if b == nil {
		return
	}
	h.frees.Inc()
	h.bytes.Sub(int64(b.size))
	b.Value = nil
	b.next = nil
}

// Allocations 返回累计分配次数。
func (h *HeapAllocator) Allocations() uint64 { return h.allocs.Load() }

// Frees 返回累计释放次数。
func (h *HeapAllocator) Frees() uint64 { return h.frees.Load() }

// Live 返回尚未释放的块数量。
func (h *HeapAllocator) Live() int64 { return int64(h.allocs.Load()) - int64(h.frees.Load()) }

// LiveBytes 返回尚未释放的字节数。
func (h *HeapAllocator) LiveBytes() int64 { return h.bytes.Load() }

// LimitedAllocator 给内部分配器加上字节预算。
// 超出预算的分配返回 nil，模拟原始分配器耗尽。
type LimitedAllocator struct {
	inner Allocator
	limit atomic.Uint64
	used  atomic.Uint64
}

// NewLimitedAllocator 创建带预算的分配器；inner 为 nil 时使用堆分配器。
func NewLimitedAllocator(inner Allocator, limit uint64) *LimitedAllocator {
	if inner == nil {
		inner = NewHeapAllocator()
	}
	l := &LimitedAllocator{inner: inner}
	l.limit.Store(limit)
	return l
}

// SetLimit 调整预算，已分配的块不受影响。
func (l *LimitedAllocator) SetLimit(limit uint64) { l.limit.Store(limit) }

// Used 返回当前已占用的字节数。
func (l *LimitedAllocator) Used() uint64 { return l.used.Load() }

// Allocate 在预算允许时分配，否则返回 nil。
func (l *LimitedAllocator) Allocate(size uint32) *Block {
	for {
		cur := l.used.Load()
		next := cur + uint64(size)
		if next > l.limit.Load() {
			return nil
		}
		if l.used.CompareAndSwap(cur, next) {
			break
		}
	}
	b := l.inner.Allocate(size)
	if b == nil {
		l.used.Sub(uint64(size))
	}
	return b
}

// Free 归还预算并释放块。
func (l *LimitedAllocator) Free(b *Block) {
	if b == nil {
		return
	}
	l.used.Sub(uint64(b.size))
	l.inner.Free(b)
}
