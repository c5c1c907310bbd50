package actor

import (
	"strconv"

	"go.uber.org/atomic"
)

// addressCounter 是进程内递增的地址计数器。
// 0 保留给空地址，第一个分配出去的地址是 1。
var addressCounter atomic.Uint64

// Address 是 Actor 或 Receiver 在进程内的唯一标识。
//
// Address 是不可变的值类型，可以比较、排序，也可以直接作为 map 的键。
// 零值就是空地址，它不等于任何实体的地址。
type Address struct {
	// id 地址的整数值，0 表示空地址
	id uint64
}

// NewAddress 分配一个新的非空地址，在进程生命周期内不会重复。
func NewAddress() Address {
	return Address{id: addressCounter.Inc()}
}

// NullAddress 返回空地址。
func NullAddress() Address { return Address{} }

// IsNull 判断是否为空地址。
func (a Address) IsNull() bool { return a.id == 0 }

// Value 返回地址的整数值。
func (a Address) Value() uint64 { return a.id }

// Less 按整数值比较两个地址。
func (a Address) Less(b Address) bool { return a.id < b.id }

func (a Address) String() string {
	if a.id == 0 {
		return "null"
	}
	return "#" + strconv.FormatUint(a.id, 10)
}
