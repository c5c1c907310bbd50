package queue

import "sync"

// Locked 是带互斥锁和条件变量的 FIFO 队列，作为调度器的共享工作队列。
//
// 与普通的并发队列不同，Locked 不在 Push/Pop 内部加锁：
// 调用者通过 Lock/Unlock 显式持有锁，这样可以在同一次加锁中
// 同时操作工作队列和受同一把锁保护的其他状态（例如 Actor 的私有消息队列）。
//
// 除 Lock、Unlock、Pulse 和 PulseAll 之外，其余方法都要求调用者已持有锁。
type Locked[T any] struct {
	// mu 保护 q 以及调用者约定的其他共享状态
	mu sync.Mutex
	// cond 队列为空时工作线程在此等待
	cond *sync.Cond
	// q 底层队列
	q Queue[T]
}

// NewLocked 创建一个空的加锁队列。
func NewLocked[T any](capacity uint64) *Locked[T] {
	l := &Locked[T]{}
	l.q.init(capacity)
	l.cond = sync.NewCond(&l.mu)
	return l
}

// Lock 获取队列锁。
func (l *Locked[T]) Lock() { l.mu.Lock() }

// Unlock 释放队列锁。
func (l *Locked[T]) Unlock() { l.mu.Unlock() }

// Push 入队，调用者必须持有锁。
func (l *Locked[T]) Push(v T) { l.q.Push(v) }

// Pop 出队，调用者必须持有锁。
func (l *Locked[T]) Pop() (T, bool) { return l.q.Pop() }

// Empty 判断队列是否为空，调用者必须持有锁。
func (l *Locked[T]) Empty() bool { return l.q.Empty() }

// Len 返回队列长度，调用者必须持有锁。
func (l *Locked[T]) Len() int { return l.q.Len() }

// Wait 在条件变量上阻塞，调用者必须持有锁；返回时重新持有锁。
func (l *Locked[T]) Wait() { l.cond.Wait() }

// Pulse 唤醒一个等待者。
func (l *Locked[T]) Pulse() { l.cond.Signal() }

// PulseAll 唤醒所有等待者。
func (l *Locked[T]) PulseAll() { l.cond.Broadcast() }
