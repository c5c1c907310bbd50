package actor

import "sync"

// Entity 是可以被寻址、接收消息的实体：Actor 或 Receiver。
// push 总是在目录锁内被调用，保证实体在投递期间不会被注销。
type Entity interface {
	// Address 返回实体的地址。
	Address() Address
	// push 把信封交给实体；wake 表示是否唤醒一个等待中的工作线程。
	// 实体已停止接收时返回 false，信封仍归调用者所有。
	push(env *Envelope, wake bool) bool
}

// Directory 是地址到实体的映射表。
//
// 所有操作都在同一把锁下完成。查找之后还要修改实体状态的操作
// （例如投递消息）必须在同一次加锁内完成，见 Deliver。
// 加锁顺序固定为：目录锁在前，工作队列锁或 Receiver 锁在后。
type Directory struct {
	// mu 保护 entries
	mu sync.Mutex
	// entries 按地址索引的实体
	entries map[Address]Entity
}

// NewDirectory 创建一个空目录。
func NewDirectory() *Directory {
	return &Directory{entries: make(map[Address]Entity)}
}

// Register 以实体自己的地址登记实体。已存在的登记会被覆盖。
func (d *Directory) Register(e Entity) {
	d.mu.Lock()
	d.entries[e.Address()] = e
	d.mu.Unlock()
}

// RegisterIfAbsent 仅当地址空闲时登记实体，返回是否登记成功。
// 检查和插入在同一次加锁内完成。
func (d *Directory) RegisterIfAbsent(e Entity) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	addr := e.Address()
	if _, ok := d.entries[addr]; ok {
		return false
	}
	d.entries[addr] = e
	return true
}

// Deregister 注销实体，返回它之前是否在目录中。
// 地址已被其他实体占用时不做任何修改。
func (d *Directory) Deregister(e Entity) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	addr := e.Address()
	if cur, ok := d.entries[addr]; ok && cur == e {
		delete(d.entries, addr)
		return true
	}
	return false
}

// Lookup 查找地址对应的实体。
func (d *Directory) Lookup(addr Address) (Entity, bool) {
	d.mu.Lock()
	e, ok := d.entries[addr]
	d.mu.Unlock()
	return e, ok
}

// Deliver 在目录锁内查找目标并把信封推给它，返回目标是否存在并接收了信封。
// 返回 false 时信封保持原样，由调用者释放。
func (d *Directory) Deliver(to Address, env *Envelope, wake bool) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	e, ok := d.entries[to]
	if !ok {
		return false
	}
	return e.push(env, wake)
}

// Count 返回已登记的实体数量。
func (d *Directory) Count() int {
	d.mu.Lock()
	n := len(d.entries)
	d.mu.Unlock()
	return n
}

// Clear 清空目录。已登记的实体不会收到任何通知。
func (d *Directory) Clear() {
	d.mu.Lock()
	clear(d.entries)
	d.mu.Unlock()
}
