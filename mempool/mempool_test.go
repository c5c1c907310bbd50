package mempool

import (
	"sync"
	"testing"
)

func TestClassSize(t *testing.T) {
	cases := map[uint32]uint32{0: 8, 1: 8, 8: 8, 9: 16, 16: 16, 17: 24, 255: 256}
	for in, want := range cases {
		if got := ClassSize(in); got != want {
			t.Fatalf("ClassSize(%d)=%d want %d", in, got, want)
		}
	}
}

func TestPoolBounded(t *testing.T) {
	p := pool{max: 2}
	a, b, c := &Block{}, &Block{}, &Block{}
	if !p.add(a) || !p.add(b) {
		t.Fatalf("add")
	}
	if p.add(c) {
		t.Fatalf("pool should be full")
	}
	if p.fetch() != b || p.fetch() != a || p.fetch() != nil {
		t.Fatalf("expected LIFO fetch")
	}
	if !p.empty() {
		t.Fatalf("expected empty")
	}
}

func TestFreeListRoundTrip(t *testing.T) {
	heap := NewHeapAllocator()
	f := NewFreeList(heap, Options{})
	// 预热：分配再释放，让桶非空
	b := f.Allocate(40)
	f.Free(b)
	before := f.Available(40)
	if before != 1 {
		t.Fatalf("expected 1 available, got %d", before)
	}
	b = f.Allocate(40)
	if b.Size() != 40 {
		t.Fatalf("size: %d", b.Size())
	}
	f.Free(b)
	if after := f.Available(40); after != before {
		t.Fatalf("round trip changed availability: %d -> %d", before, after)
	}
	st := f.Stats()
	if st.FreeListHits != 1 || st.FreeListMisses != 1 {
		t.Fatalf("stats: %+v", st)
	}
	if f.Outstanding() != 0 {
		t.Fatalf("outstanding: %d", f.Outstanding())
	}
}

func TestFreeListValueSurvivesPooling(t *testing.T) {
	f := NewFreeList(nil, Options{})
	b := f.Allocate(16)
	b.Value = "payload-holder"
	f.Free(b)
	b2 := f.Allocate(16)
	if b2 != b || b2.Value != "payload-holder" {
		t.Fatalf("expected the same block with its value back")
	}
}

func TestFreeListBucketCapacity(t *testing.T) {
	heap := NewHeapAllocator()
	f := NewFreeList(heap, Options{Buckets: 4, MaxBlocksPerBucket: 2})
	blocks := []*Block{f.Allocate(8), f.Allocate(8), f.Allocate(8)}
	for _, b := range blocks {
		f.Free(b)
	}
	if f.Available(8) != 2 {
		t.Fatalf("bucket should be capped at 2, got %d", f.Available(8))
	}
	if heap.Frees() != 1 {
		t.Fatalf("overflow block should go back to raw allocator, frees=%d", heap.Frees())
	}
	// 超出桶范围的尺寸不入池
	big := f.Allocate(1024)
	f.Free(big)
	if f.Available(1024) != 0 || heap.Frees() != 2 {
		t.Fatalf("large blocks must bypass the buckets")
	}
}

func TestFreeListAllocateMany(t *testing.T) {
	heap := NewHeapAllocator()
	f := NewFreeList(heap, Options{})
	for i := 0; i < 3; i++ {
		f.Free(f.Allocate(24))
	}
	// 先取到一个块再放回，桶中只有 1 个
	dst := make([]*Block, 5)
	n := f.AllocateMany(dst, 24)
	if n != 5 {
		t.Fatalf("filled %d", n)
	}
	for _, b := range dst {
		if b == nil || b.Size() != 24 {
			t.Fatalf("bad block %#v", b)
		}
	}
	if f.Outstanding() != 5 {
		t.Fatalf("outstanding %d", f.Outstanding())
	}
}

func TestFreeListAllocationFailure(t *testing.T) {
	lim := NewLimitedAllocator(nil, 32)
	f := NewFreeList(lim, Options{})
	a := f.Allocate(16)
	b := f.Allocate(16)
	if a == nil || b == nil {
		t.Fatalf("first two allocations fit the budget")
	}
	if f.Allocate(16) != nil {
		t.Fatalf("expected exhaustion")
	}
	dst := make([]*Block, 3)
	if n := f.AllocateMany(dst, 16); n != 0 {
		t.Fatalf("expected 0, got %d", n)
	}
	f.Free(a)
	if f.Allocate(16) != a {
		t.Fatalf("pooled block should be reused without touching the budget")
	}
	if lim.Used() != 32 {
		t.Fatalf("used: %d", lim.Used())
	}
}

func TestFreeListReferenceCounting(t *testing.T) {
	heap := NewHeapAllocator()
	f := NewFreeList(heap, Options{})
	f.Reference()
	f.Reference()
	f.Free(f.Allocate(8))
	if f.Dereference() {
		t.Fatalf("still referenced")
	}
	if f.Available(8) != 1 {
		t.Fatalf("pool should still hold blocks")
	}
	if !f.Dereference() {
		t.Fatalf("last dereference should drain")
	}
	if f.Available(8) != 0 || heap.Live() != 0 {
		t.Fatalf("drain should release everything, live=%d", heap.Live())
	}
	if f.Refs() != 0 {
		t.Fatalf("refs: %d", f.Refs())
	}
}

func TestFreeListUnbalancedDereferencePanics(t *testing.T) {
	f := NewFreeList(nil, Options{})
	f.Reference()
	f.Dereference()
	defer func() {
		if recover() == nil {
			t.Fatalf("expected panic on unbalanced dereference")
		}
		if f.Refs() != 0 {
			t.Fatalf("refs should stay at 0, got %d", f.Refs())
		}
	}()
	f.Dereference()
}

func TestFreeListConcurrent(t *testing.T) {
	heap := NewHeapAllocator()
	f := NewFreeList(heap, Options{MaxBlocksPerBucket: 64})
	var wg sync.WaitGroup
	for g := 0; g < 8; g++ {
		wg.Add(1)
		go func(g int) {
			defer wg.Done()
			size := uint32(8 * (g%4 + 1))
			for i := 0; i < 2000; i++ {
				b := f.Allocate(size)
				f.Free(b)
			}
		}(g)
	}
	wg.Wait()
	if f.Outstanding() != 0 {
		t.Fatalf("outstanding %d", f.Outstanding())
	}
	f.Drain()
	if heap.Live() != 0 {
		t.Fatalf("live %d", heap.Live())
	}
}

func TestCacheBindsFirstSizes(t *testing.T) {
	f := NewFreeList(nil, Options{})
	c := NewCache(f, 3, 4)
	if f.Refs() != 1 {
		t.Fatalf("cache should reference the free list")
	}
	for _, s := range []uint32{16, 32, 48, 64} {
		if c.Allocate(s) == nil {
			t.Fatalf("alloc %d", s)
		}
	}
	sizes := c.Sizes()
	if len(sizes) != 3 || sizes[0] != 16 || sizes[1] != 32 || sizes[2] != 48 {
		t.Fatalf("sizes: %v", sizes)
	}
	// 3 个槽位各预取 4 个；64 字节走全局池
	if c.Held() != 12 {
		t.Fatalf("held %d", c.Held())
	}
	st := f.Stats()
	if st.CacheMisses != 4 || st.CacheHits != 0 {
		t.Fatalf("stats %+v", st)
	}
	for i := 0; i < 4; i++ {
		c.Allocate(16)
	}
	if f.Stats().CacheHits != 4 {
		t.Fatalf("expected hits")
	}
	// 槽位空了之后再次补充
	if c.Allocate(16) == nil {
		t.Fatalf("refill")
	}
}

func TestCacheReleaseReturnsBlocks(t *testing.T) {
	heap := NewHeapAllocator()
	f := NewFreeList(heap, Options{})
	f.Reference()
	c := NewCache(f, 0, 0)
	b := c.Allocate(40)
	if f.Outstanding() != int64(DefaultPreload+1) {
		t.Fatalf("outstanding %d", f.Outstanding())
	}
	f.Free(b)
	c.Release()
	c.Release()
	if f.Outstanding() != 0 {
		t.Fatalf("outstanding after release %d", f.Outstanding())
	}
	if f.Refs() != 1 {
		t.Fatalf("refs %d", f.Refs())
	}
	f.Dereference()
	if heap.Live() != 0 {
		t.Fatalf("live %d", heap.Live())
	}
}

func TestCacheAllocationFailure(t *testing.T) {
	f := NewFreeList(NewLimitedAllocator(nil, 16), Options{})
	c := NewCache(f, 1, 4)
	if c.Allocate(16) == nil {
		t.Fatalf("one block fits the budget")
	}
	if c.Allocate(16) != nil {
		t.Fatalf("expected failure when budget exhausted")
	}
}
