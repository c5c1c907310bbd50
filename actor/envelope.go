package actor

import (
	"reflect"

	"actorfw/mempool"
)

// envelopeHeaderSize 是信封自身占用的字节数，计入每条消息的尺寸。
var envelopeHeaderSize = uint32(reflect.TypeFor[Envelope]().Size())

// Envelope 是一次发送对应的消息信封，携带发送者地址、尺寸和负载。
//
// 信封从内存池的块中取得，并挂在块的 Value 上随块一起复用。
// 投递完成（所有匹配的 handler 都执行过）后，信封总是交还全局池。
// 构造之后信封不再被修改，handler 只能读取它。
type Envelope struct {
	// from 发送者地址
	from Address
	// size 信封尺寸，决定块所属的尺寸类别
	size uint32
	// payload 消息负载，只能通过类型匹配的 handler 取得
	payload any
	// block 承载信封的内存块
	block *mempool.Block
}

// From 返回发送者地址。
func (e *Envelope) From() Address { return e.from }

// Size 返回信封尺寸（字节）。
func (e *Envelope) Size() uint32 { return e.size }

// Payload 返回消息负载。
func (e *Envelope) Payload() any { return e.payload }

// envelopeSize 计算装载 value 的信封尺寸：信封头加上负载静态类型的大小。
func envelopeSize(value any) uint32 {
	return envelopeHeaderSize + uint32(reflect.TypeOf(value).Size())
}

// buildEnvelope 在块 b 上构造信封，块里已有信封对象时直接复用。
func buildEnvelope(b *mempool.Block, from Address, size uint32, value any) *Envelope {
	env, _ := b.Value.(*Envelope)
	if env == nil {
		env = &Envelope{}
		b.Value = env
	}
	env.from = from
	env.size = size
	env.payload = value
	env.block = b
	return env
}

// releaseEnvelope 清空信封并把块交还全局池。
// 信封对象留在块上，下次分配到同一个块时复用。
func releaseEnvelope(pool *mempool.FreeList, env *Envelope) {
	if env == nil {
		return
	}
	b := env.block
	env.payload = nil
	env.block = nil
	pool.Free(b)
}
