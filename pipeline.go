package slotkv

import (
	"context"
	"time"

	"github.com/unkn0wn-root/slotkv/pipeline"
	"github.com/unkn0wn-root/slotkv/store"
)

// emulatedPipeline runs each command immediately on the node that owns its
// key and records the outcome instead of returning it. Used in cluster mode,
// and in single-node mode when the store has no native pipeline.
//
// Commands issued after Exec and before the next Begin still run, but their
// results are dropped.
type emulatedPipeline struct {
	c   *client
	buf pipeline.Buffer
}

func (p *emulatedPipeline) Begin()   { p.buf.Begin() }
func (p *emulatedPipeline) Len() int { return p.buf.Len() }

func (p *emulatedPipeline) Exec(context.Context) ([]pipeline.Result, error) {
	return p.buf.Exec(), nil
}

func (p *emulatedPipeline) Get(ctx context.Context, key string) {
	p.str(p.c.Get(ctx, key))
}

func (p *emulatedPipeline) Set(ctx context.Context, key string, value any, ttl time.Duration) {
	ok, err := p.c.Set(ctx, key, value, ttl)
	p.buf.Add(ok, err)
}

func (p *emulatedPipeline) HGet(ctx context.Context, key, field string) {
	p.str(p.c.HGet(ctx, key, field))
}

func (p *emulatedPipeline) HSet(ctx context.Context, key, field string, value any) {
	p.num(p.c.HSet(ctx, key, field, value))
}

func (p *emulatedPipeline) Push(ctx context.Context, key string, value any, right bool) {
	p.num(p.c.Push(ctx, key, value, right))
}

func (p *emulatedPipeline) Pop(ctx context.Context, key string, left bool) {
	p.str(p.c.Pop(ctx, key, left))
}

func (p *emulatedPipeline) Publish(ctx context.Context, channel string, msg any) {
	p.num(p.c.Publish(ctx, channel, msg))
}

func (p *emulatedPipeline) Keys(ctx context.Context, pattern string) {
	ks, err := p.c.Keys(ctx, pattern)
	p.buf.Add(ks, err)
}

func (p *emulatedPipeline) Do(ctx context.Context, key string, args ...any) {
	p.buf.Add(p.c.Do(ctx, key, args...))
}

// str records a miss as a nil value.
func (p *emulatedPipeline) str(v string, ok bool, err error) {
	if !ok {
		p.buf.Add(nil, err)
		return
	}
	p.buf.Add(v, err)
}

func (p *emulatedPipeline) num(n int64, err error) {
	if err != nil {
		p.buf.Add(nil, err)
		return
	}
	p.buf.Add(n, nil)
}

// nativePipeline queues commands and sends them in one round trip on Exec.
type nativePipeline struct {
	c         *client
	b         store.Batcher
	ops       []func(store.Commands)
	buffering bool
}

func (p *nativePipeline) Begin() {
	p.ops = p.ops[:0]
	p.buffering = true
}

func (p *nativePipeline) Len() int { return len(p.ops) }

func (p *nativePipeline) queue(op func(store.Commands)) {
	if p.buffering {
		p.ops = append(p.ops, op)
	}
}

func (p *nativePipeline) Exec(ctx context.Context) ([]pipeline.Result, error) {
	if !p.buffering {
		return []pipeline.Result{}, nil
	}
	ops := p.ops
	p.ops = nil
	p.buffering = false
	if len(ops) == 0 {
		return []pipeline.Result{}, nil
	}
	if p.c.closed.Load() {
		return nil, ErrClosed
	}
	return p.b.Pipeline(ctx, func(cmds store.Commands) error {
		for _, op := range ops {
			op(cmds)
		}
		return nil
	})
}

func (p *nativePipeline) Get(ctx context.Context, key string) {
	k := p.c.key(key)
	p.queue(func(c store.Commands) { _, _, _ = c.Get(ctx, k) })
}

func (p *nativePipeline) Set(ctx context.Context, key string, value any, ttl time.Duration) {
	k := p.c.key(key)
	p.queue(func(c store.Commands) { _, _ = c.Set(ctx, k, value, ttl) })
}

func (p *nativePipeline) HGet(ctx context.Context, key, field string) {
	k := p.c.key(key)
	p.queue(func(c store.Commands) { _, _, _ = c.HGet(ctx, k, field) })
}

func (p *nativePipeline) HSet(ctx context.Context, key, field string, value any) {
	k := p.c.key(key)
	p.queue(func(c store.Commands) { _, _ = c.HSet(ctx, k, field, value) })
}

func (p *nativePipeline) Push(ctx context.Context, key string, value any, right bool) {
	k := p.c.key(key)
	p.queue(func(c store.Commands) {
		if right {
			_, _ = c.RPush(ctx, k, value)
		} else {
			_, _ = c.LPush(ctx, k, value)
		}
	})
}

func (p *nativePipeline) Pop(ctx context.Context, key string, left bool) {
	k := p.c.key(key)
	p.queue(func(c store.Commands) {
		if left {
			_, _, _ = c.LPop(ctx, k)
		} else {
			_, _, _ = c.RPop(ctx, k)
		}
	})
}

func (p *nativePipeline) Publish(ctx context.Context, channel string, msg any) {
	ch := p.c.key(channel)
	p.queue(func(c store.Commands) { _, _ = c.Publish(ctx, ch, msg) })
}

func (p *nativePipeline) Keys(ctx context.Context, pattern string) {
	pat := p.c.key(pattern)
	p.queue(func(c store.Commands) { _, _ = c.Keys(ctx, pat) })
}

func (p *nativePipeline) Do(ctx context.Context, _ string, args ...any) {
	p.queue(func(c store.Commands) { _, _ = c.Do(ctx, args...) })
}
