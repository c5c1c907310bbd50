package mempool

// pool 是同尺寸块的有界空闲链表。
// 达到 max 之后再加入的块会被拒绝，由调用者交还给原始分配器，
// 防止池无限增长而持有永远不会被复用的内存。
//
// pool 不做同步，由外层（全局桶的互斥锁，或单线程访问的缓存）保证。
type pool struct {
	first *Block
	n     uint32
	max   uint32
}

// add 把块压入链表头，池满时返回 false。
func (p *pool) add(b *Block) bool {
	if p.n >= p.max {
		return false
	}
	b.next = p.first
	p.first = b
	p.n++
	return true
}

// fetch 取出一个块，池空时返回 nil。
func (p *pool) fetch() *Block {
	b := p.first
	if b == nil {
		return nil
	}
	p.first = b.next
	b.next = nil
	p.n--
	return b
}

// empty 判断池是否为空。
func (p *pool) empty() bool { return p.first == nil }

// drain 取出全部块并逐个交给 fn。
func (p *pool) drain(fn func(*Block)) {
	for b := p.fetch(); b != nil; b = p.fetch() {
		fn(b)
	}
}
