package queue

// Queue 是一个可增长的环形 FIFO 队列。
//
// Queue 本身不做任何同步：调用者必须保证同一时刻只有一个 goroutine 访问，
// 通常是在外部锁（例如调度器的工作队列锁）的保护下使用。
// 这样每条消息的入队/出队只需要持有一把锁，而不是两把。
//
// 容量始终是 2 的幂，使用掩码代替取模；队列满时容量翻倍。
type Queue[T any] struct {
	// buf 环形缓冲区
	buf []T
	// mask 用于快速取模的掩码（len(buf)-1）
	mask uint64
	// head 下一个出队位置（单调递增）
	head uint64
	// tail 下一个入队位置（单调递增）
	tail uint64
}

// New 创建一个初始容量至少为 capacity 的队列。
// 容量会被向上取整到最近的 2 的幂（最小为 2）。
func New[T any](capacity uint64) *Queue[T] {
	q := &Queue[T]{}
	q.init(capacity)
	return q
}

// init 按给定容量初始化缓冲区。
func (q *Queue[T]) init(capacity uint64) {
	if capacity < 2 {
		capacity = 2
	}
	c := uint64(1)
	for c < capacity {
		c <<= 1
	}
	q.buf = make([]T, c)
	q.mask = c - 1
}

// Len 返回队列中元素的数量。
func (q *Queue[T]) Len() int { return int(q.tail - q.head) }

// Empty 判断队列是否为空。
func (q *Queue[T]) Empty() bool { return q.tail == q.head }

// Push 将值追加到队尾，必要时扩容。
// 零值 Queue 也可以直接使用。
func (q *Queue[T]) Push(v T) {
	if q.buf == nil {
		q.init(8)
	}
	if q.tail-q.head == uint64(len(q.buf)) {
		q.grow()
	}
	q.buf[q.tail&q.mask] = v
	q.tail++
}

// Pop 移除并返回队首元素。
// 被移除的槽位会清零，避免持有已出队对象的引用。
func (q *Queue[T]) Pop() (T, bool) {
	var zero T
	if q.Empty() {
		return zero, false
	}
	i := q.head & q.mask
	v := q.buf[i]
	q.buf[i] = zero
	q.head++
	return v, true
}

// grow 将容量翻倍，并按 FIFO 顺序搬移现有元素。
func (q *Queue[T]) grow() {
	n := q.Len()
	nb := make([]T, len(q.buf)*2)
	for i := 0; i < n; i++ {
		nb[i] = q.buf[(q.head+uint64(i))&q.mask]
	}
	q.buf = nb
	q.mask = uint64(len(nb)) - 1
	q.head = 0
	q.tail = uint64(n)
}
