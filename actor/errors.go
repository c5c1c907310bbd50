package actor

import "errors"

var (
	// ErrAddressInUse 表示指定地址已被其他实体占用，Actor 创建失败。
	ErrAddressInUse = errors.New("actor: address already in use")
	// ErrOutOfMemory 表示底层分配器耗尽，无法为 Actor 分配内存。
	ErrOutOfMemory = errors.New("actor: out of memory")
	// ErrNullAddress 表示调用者指定了空地址。
	ErrNullAddress = errors.New("actor: null address")
	// ErrFactory 表示构造函数返回了错误；原始错误被包装在其中。
	ErrFactory = errors.New("actor: factory failed")
	// ErrFrameworkClosed 表示 Framework 已经关闭。
	ErrFrameworkClosed = errors.New("actor: framework closed")
	// ErrReceiverClosed 表示 Receiver 已经关闭。
	ErrReceiverClosed = errors.New("actor: receiver closed")
)
