package main

import (
	"context"
	"log/slog"
	"time"

	"github.com/pkg/errors"
	"go.uber.org/atomic"

	"actorfw/actor"
	"actorfw/config"
)

// ball 在 pingpong 场景的两个 Actor 之间来回传递。
type ball struct {
	left int
	pad  []byte
}

// work 是 fanout 与 soak 场景的工作消息。
type work struct {
	seq  int
	hops int
	pad  []byte
}

// ack 是 fanout 工作者的回执。
type ack struct{}

// token 沿 ring 场景的环传递。
type token struct {
	left int
	pad  []byte
}

// done 通知 Receiver 场景结束。
type done struct {
	handled uint64
}

// bench 是一次场景运行所需的上下文。
type bench struct {
	fw   *actor.Framework
	cfg  config.BenchConfig
	log  *slog.Logger
	rate *throttle
	// handled 所有 Actor 处理的场景消息总数
	handled atomic.Uint64
	refs    []*actor.Ref
	pad     []byte
}

// scenario 运行一个场景直到完成或 ctx 结束。
type scenario func(ctx context.Context, b *bench) error

var scenarios = map[string]scenario{
	"pingpong": runPingPong,
	"fanout":   runFanOut,
	"ring":     runRing,
	"soak":     runSoak,
}

func newBench(fw *actor.Framework, cfg config.BenchConfig, log *slog.Logger) *bench {
	return &bench{
		fw:   fw,
		cfg:  cfg,
		log:  log,
		rate: newThrottle(cfg.Rate, 0),
		pad:  make([]byte, cfg.PayloadBytes),
	}
}

// run 执行名为 name 的场景，返回处理的消息数与耗时。
func (b *bench) run(ctx context.Context, name string) (uint64, time.Duration, error) {
	sc, ok := scenarios[name]
	if !ok {
		return 0, 0, errors.Errorf("unknown scenario %q", name)
	}
	defer b.release()
	start := time.Now()
	err := sc(ctx, b)
	return b.handled.Load(), time.Since(start), err
}

// keep 保存句柄，场景结束时统一释放。
func (b *bench) keep(ref *actor.Ref) { b.refs = append(b.refs, ref) }

func (b *bench) release() {
	for _, ref := range b.refs {
		ref.Release()
	}
	b.refs = nil
}

// waitDone 创建 Receiver，调用 start 发出首条消息，并等待一次 done。
func (b *bench) waitDone(ctx context.Context, start func(to actor.Address) bool) error {
	r := actor.NewReceiver(b.fw)
	defer r.Close()
	actor.RegisterHandler(r, func(d done, from actor.Address) {
		b.log.Debug("scenario finished", "from", from.String(), "handled", d.handled)
	})
	if !start(r.Address()) {
		return errors.New("initial send failed")
	}
	return r.WaitContext(ctx)
}

// runPingPong 让两个 Actor 来回传递 Messages 次。
func runPingPong(ctx context.Context, b *bench) error {
	var sink actor.Address
	player := func(a *actor.Actor) error {
		actor.RegisterHandler(a, func(m ball, from actor.Address) {
			n := b.handled.Inc()
			if m.left == 0 {
				a.Send(done{handled: n}, sink)
				return
			}
			a.Send(ball{left: m.left - 1, pad: m.pad}, from)
		})
		return nil
	}
	ping, err := b.fw.CreateActor(player)
	if err != nil {
		return errors.Wrap(err, "create ping")
	}
	b.keep(ping)
	pong, err := b.fw.CreateActor(player)
	if err != nil {
		return errors.Wrap(err, "create pong")
	}
	b.keep(pong)
	return b.waitDone(ctx, func(to actor.Address) bool {
		sink = to
		return b.fw.Send(ball{left: b.cfg.Messages - 1, pad: b.pad}, pong.Address(), ping.Address())
	})
}

// runFanOut 由一个 hub 把 Messages 条工作分发给 Actors 个工作者，收齐回执后结束。
func runFanOut(ctx context.Context, b *bench) error {
	workers := make([]actor.Address, 0, b.cfg.Actors)
	for i := 0; i < b.cfg.Actors; i++ {
		ref, err := b.fw.CreateActor(func(a *actor.Actor) error {
			actor.RegisterHandler(a, func(m work, from actor.Address) {
				b.handled.Inc()
				a.Send(ack{}, from)
			})
			return nil
		})
		if err != nil {
			return errors.Wrapf(err, "create worker %d", i)
		}
		b.keep(ref)
		workers = append(workers, ref.Address())
	}

	var sink actor.Address
	hub, err := b.fw.CreateActor(func(a *actor.Actor) error {
		acks := 0
		actor.RegisterHandler(a, func(m work, _ actor.Address) {
			for i := 0; i < m.seq; i++ {
				a.Send(work{seq: i, pad: m.pad}, workers[i%len(workers)])
			}
		})
		actor.RegisterHandler(a, func(ack, actor.Address) {
			acks++
			if acks == b.cfg.Messages {
				a.Send(done{handled: uint64(acks)}, sink)
			}
		})
		return nil
	})
	if err != nil {
		return errors.Wrap(err, "create hub")
	}
	b.keep(hub)
	return b.waitDone(ctx, func(to actor.Address) bool {
		sink = to
		return hub.Push(work{seq: b.cfg.Messages, pad: b.pad}, actor.NullAddress())
	})
}

// ringNode 是环上每个 Actor 的构造参数。
type ringNode struct {
	next actor.Address
	sink *actor.Address
}

// runRing 让一个令牌沿 Actors 个节点组成的环走 Messages 步。
func runRing(ctx context.Context, b *bench) error {
	n := b.cfg.Actors
	addrs := make([]actor.Address, n)
	for i := range addrs {
		addrs[i] = actor.NewAddress()
	}
	var sink actor.Address
	for i := 0; i < n; i++ {
		node := ringNode{next: addrs[(i+1)%n], sink: &sink}
		ref, err := actor.CreateActorAtAddressWith(b.fw, addrs[i], node, func(a *actor.Actor, p ringNode) error {
			actor.RegisterHandler(a, func(t token, _ actor.Address) {
				h := b.handled.Inc()
				if t.left == 0 {
					a.Send(done{handled: h}, *p.sink)
					return
				}
				a.Send(token{left: t.left - 1, pad: t.pad}, p.next)
			})
			return nil
		})
		if err != nil {
			return errors.Wrapf(err, "create ring node %d", i)
		}
		b.keep(ref)
	}
	return b.waitDone(ctx, func(to actor.Address) bool {
		sink = to
		return b.fw.Send(token{left: b.cfg.Messages - 1, pad: b.pad}, actor.NullAddress(), addrs[0])
	})
}

// soakHops 每条 soak 消息在工作者之间转发的次数。
const soakHops = 3

// runSoak 按速率持续注入工作消息，直到 ctx 结束。
// 每条消息在工作者之间用 TailSend 转发 soakHops 次。
func runSoak(ctx context.Context, b *bench) error {
	n := b.cfg.Actors
	addrs := make([]actor.Address, n)
	for i := range addrs {
		addrs[i] = actor.NewAddress()
	}
	var unknown atomic.Uint64
	for i := 0; i < n; i++ {
		next := addrs[(i+1)%n]
		ref, err := b.fw.CreateActorAtAddress(addrs[i], func(a *actor.Actor) error {
			actor.RegisterHandler(a, func(m work, _ actor.Address) {
				if c := b.handled.Inc(); c%uint64(b.cfg.Messages) == 0 {
					b.log.Debug("soak progress", "handled", c)
				}
				if m.hops > 0 {
					a.TailSend(work{seq: m.seq, hops: m.hops - 1, pad: m.pad}, next)
				}
			})
			a.SetDefaultHandler(func(from actor.Address) {
				unknown.Inc()
			})
			return nil
		})
		if err != nil {
			return errors.Wrapf(err, "create soak worker %d", i)
		}
		b.keep(ref)
	}
	defer func() {
		if u := unknown.Load(); u > 0 {
			b.log.Warn("soak workers received unknown messages", "count", u)
		}
	}()

	for seq := 0; ; seq++ {
		if err := b.rate.wait(ctx, 1); err != nil {
			return nil
		}
		if !b.fw.Send(work{seq: seq, hops: soakHops, pad: b.pad}, actor.NullAddress(), addrs[seq%n]) {
			return errors.New("soak send failed")
		}
		if b.rate.limit() <= 0 && seq%1024 == 0 {
			// 不限速时给工作线程留出时间，避免队列无限增长
			select {
			case <-ctx.Done():
				return nil
			case <-time.After(time.Millisecond):
			}
		}
	}
}
