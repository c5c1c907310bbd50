package mempool

const (
	// DefaultCacheSlots 每个缓存可绑定的尺寸数量。
	DefaultCacheSlots = 3
	// DefaultPreload 每次补充时预取的块数量。
	DefaultPreload = 4
)

// cacheSlot 是绑定到某个尺寸类别的小池。size 为 0 表示尚未绑定。
type cacheSlot struct {
	size uint32
	p    pool
}

// Cache 是单个 Actor 私有的消息块缓存。
//
// 它记住 Actor 最先发送的几种消息尺寸（先到先得，全部绑定后不再替换），
// 命中时完全不接触全局桶的锁；未命中时一次从全局池批量取回 preload+1 个块，
// 留下 preload 个备用，返回一个。
//
// Cache 不做同步：只有所属 Actor 自己的发送路径会调用它，
// 而同一个 Actor 同一时刻只会在一个工作线程上执行。
// 块用完后总是释放回全局池（释放可能发生在其他线程），从不回到缓存。
type Cache struct {
	global  *FreeList
	slots   []cacheSlot
	bound   int
	scratch []*Block
}

// NewCache 创建一个挂在 global 上的缓存，并持有 global 的一次引用。
// slots、preload 小于等于 0 时使用默认值。
func NewCache(global *FreeList, slots, preload int) *Cache {
	if slots <= 0 {
		slots = DefaultCacheSlots
	}
	if preload <= 0 {
		preload = DefaultPreload
	}
	c := &Cache{
		global:  global,
		slots:   make([]cacheSlot, slots),
		scratch: make([]*Block, preload+1),
	}
	for i := range c.slots {
		c.slots[i].p.max = uint32(preload)
	}
	global.Reference()
	return c
}

// Allocate 分配一个至少 size 字节的块，失败返回 nil。
func (c *Cache) Allocate(size uint32) *Block {
	cls := ClassSize(size)
	for i := 0; i < c.bound; i++ {
		if c.slots[i].size == cls {
			c.global.stats.CacheHits.Inc()
			return c.fromSlot(&c.slots[i])
		}
	}
	c.global.stats.CacheMisses.Inc()
	if c.bound < len(c.slots) {
		s := &c.slots[c.bound]
		c.bound++
		s.size = cls
		return c.fromSlot(s)
	}
	// 所有槽位都已绑定到其他尺寸，直接走全局池
	return c.global.Allocate(cls)
}

// fromSlot 优先从槽位取块，空时批量补充。
func (c *Cache) fromSlot(s *cacheSlot) *Block {
	if b := s.p.fetch(); b != nil {
		return b
	}
	n := c.global.AllocateMany(c.scratch, s.size)
	if n == 0 {
		return nil
	}
	ret := c.scratch[n-1]
	for i := 0; i < n-1; i++ {
		if !s.p.add(c.scratch[i]) {
			c.global.Free(c.scratch[i])
		}
	}
	clear(c.scratch)
	return ret
}

// Held 返回缓存当前持有的备用块数量。
func (c *Cache) Held() int {
	n := 0
	for i := range c.slots {
		n += int(c.slots[i].p.n)
	}
	return n
}

// Sizes 返回已绑定的尺寸类别，按绑定顺序排列。
func (c *Cache) Sizes() []uint32 {
	out := make([]uint32, 0, c.bound)
	for i := 0; i < c.bound; i++ {
		out = append(out, c.slots[i].size)
	}
	return out
}

// Release 把备用块全部归还全局池，并释放对全局池的引用。
// Release 之后缓存不可再使用。
func (c *Cache) Release() {
	if c.global == nil {
		return
	}
	for i := range c.slots {
		c.slots[i].p.drain(c.global.Free)
	}
	g := c.global
	c.global = nil
	g.Dereference()
}
