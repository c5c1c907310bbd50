package actor

import (
	"reflect"
	"unsafe"

	"actorfw/mempool"
)

// handlerSize 是一条 handler 登记占用的字节数，从分配器中扣除。
var handlerSize = uint32(reflect.TypeFor[handler]().Size())

// handler 是一条消息处理函数的登记。
//
// 它按负载类型和函数值识别：登记和注销传入同一个函数值时能找回对应的条目。
type handler struct {
	// typ 接受的负载类型
	typ reflect.Type
	// key 函数值的身份，见 funcKey
	key uintptr
	// handle 类型匹配时调用处理函数并返回 true，否则返回 false
	handle func(payload any, from Address) bool
	// marked 已被注销，等待在安全点移除
	marked bool
	// block 为这条登记分配的内存块
	block *mempool.Block
}

// same 判断是否与给定的类型和函数指向同一登记。
func (h *handler) same(typ reflect.Type, key uintptr) bool {
	return h.typ == typ && h.key == key
}

// HandlerTarget 是可以登记消息处理函数的目标，由 *Actor 和 *Receiver 实现。
type HandlerTarget interface {
	addHandler(h *handler) bool
	removeHandler(typ reflect.Type, key uintptr) bool
}

// RegisterHandler 在 target 上为负载类型 T 登记处理函数 fn。
//
// 同一条消息会交给所有类型匹配的 handler，而不是只交给第一个。
// 对 Actor 来说，新登记的 handler 在下一个安全点（两次消息处理之间）才生效，
// 并且只能在 Actor 自己的 handler 或构造函数里调用。
// 分配失败时返回 false，已有的登记不受影响。
func RegisterHandler[T any](target HandlerTarget, fn func(msg T, from Address)) bool {
	if target == nil || fn == nil {
		return false
	}
	h := &handler{
		typ: reflect.TypeFor[T](),
		key: funcKey(fn),
		handle: func(payload any, from Address) bool {
			v, ok := payload.(T)
			if !ok {
				return false
			}
			fn(v, from)
			return true
		},
	}
	return target.addHandler(h)
}

// DeregisterHandler 注销之前用 RegisterHandler 登记的处理函数，返回是否找到。
// fn 必须是登记时传入的同一个函数值。
// 对 Actor 来说，注销在下一个安全点生效。
func DeregisterHandler[T any](target HandlerTarget, fn func(msg T, from Address)) bool {
	if target == nil || fn == nil {
		return false
	}
	return target.removeHandler(reflect.TypeFor[T](), funcKey(fn))
}

// funcKey 返回函数值的身份，即它指向的闭包对象的地址。
//
// 同一个函数字面量生成的不同闭包共享代码指针，但闭包对象各不相同，
// 所以只能按闭包对象区分。顶层函数的闭包对象是静态的，每次取值都相同。
// 方法值每次求值都会生成新的闭包，需要先存进变量再登记和注销。
func funcKey[F any](fn F) uintptr {
	return uintptr(*(*unsafe.Pointer)(unsafe.Pointer(&fn)))
}

// handlerTable 是 Actor 的分阶段 handler 表。
//
// live 在消息处理期间只读；新登记进入 pending，注销只打标记，
// 两者都在 update 时统一生效。只有所属 Actor 的执行线程会访问它。
type handlerTable struct {
	live    []*handler
	pending []*handler
	dirty   bool
}

// add 把 handler 放入待生效队列。
func (t *handlerTable) add(h *handler) {
	t.pending = append(t.pending, h)
	t.dirty = true
}

// mark 标记第一个匹配且未标记的 handler。
// 尚未生效的登记直接从待生效队列中移除并通过 free 释放。
func (t *handlerTable) mark(typ reflect.Type, key uintptr, free func(*handler)) bool {
	for _, h := range t.live {
		if !h.marked && h.same(typ, key) {
			h.marked = true
			t.dirty = true
			return true
		}
	}
	for i, h := range t.pending {
		if h.same(typ, key) {
			t.pending = append(t.pending[:i], t.pending[i+1:]...)
			free(h)
			return true
		}
	}
	return false
}

// update 移除已标记的 handler 并追加待生效的 handler。
func (t *handlerTable) update(free func(*handler)) {
	if !t.dirty {
		return
	}
	t.dirty = false
	kept := t.live[:0]
	for _, h := range t.live {
		if h.marked {
			free(h)
			continue
		}
		kept = append(kept, h)
	}
	clear(t.live[len(kept):])
	t.live = append(kept, t.pending...)
	clear(t.pending)
	t.pending = t.pending[:0]
}

// dispatch 把负载交给所有匹配的 handler，返回匹配的数量。
func (t *handlerTable) dispatch(payload any, from Address) int {
	n := 0
	for _, h := range t.live {
		if h.handle(payload, from) {
			n++
		}
	}
	return n
}

// count 返回已生效的 handler 数量，包括已标记但尚未移除的。
func (t *handlerTable) count() int { return len(t.live) }

// release 释放全部 handler。
func (t *handlerTable) release(free func(*handler)) {
	for _, h := range t.live {
		free(h)
	}
	for _, h := range t.pending {
		free(h)
	}
	t.live = nil
	t.pending = nil
	t.dirty = false
}
