// Package redisstore implements the store interfaces on go-redis.
package redisstore

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/unkn0wn-root/slotkv/pipeline"
	"github.com/unkn0wn-root/slotkv/store"
)

var (
	_ store.Conn             = (*Conn)(nil)
	_ store.ClusterInspector = (*Conn)(nil)
	_ store.Batcher          = (*Conn)(nil)
	_ store.Dialer           = Dialer{}
)

// Dialer opens one plain (non-cluster) go-redis client per address. Routing
// is done by the caller, so the cluster client is never used.
type Dialer struct {
	// Configure adjusts client options right before the client is created.
	Configure func(*redis.Options)
}

func (d Dialer) Dial(ctx context.Context, addr string, opts store.DialOptions) (store.Conn, error) {
	o := &redis.Options{Addr: addr, DB: opts.DB}
	if opts.Timeout > 0 {
		o.DialTimeout = opts.Timeout
		o.ReadTimeout = opts.Timeout
		o.WriteTimeout = opts.Timeout
	}
	if d.Configure != nil {
		d.Configure(o)
	}
	rdb := redis.NewClient(o)
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("redisstore: dial %s: %w", addr, err)
	}
	return &Conn{commands: commands{c: rdb}, rdb: rdb}, nil
}

// Conn serves store.Conn on a go-redis client.
type Conn struct {
	commands
	rdb redis.UniversalClient
}

// New wraps an existing client. Close closes it.
func New(rdb redis.UniversalClient) *Conn {
	return &Conn{commands: commands{c: rdb}, rdb: rdb}
}

// Client exposes the underlying client, e.g. to share it with a redis-backed
// topology store.
func (c *Conn) Client() redis.UniversalClient { return c.rdb }

func (c *Conn) Ping(ctx context.Context) error { return c.rdb.Ping(ctx).Err() }

func (c *Conn) Close() error {
	if err := c.rdb.Close(); err != nil && !errors.Is(err, redis.ErrClosed) {
		return err
	}
	return nil
}

func (c *Conn) ClusterNodes(ctx context.Context) (string, error) {
	return c.rdb.ClusterNodes(ctx).Result()
}

// Pipeline queues everything fn issues and sends it in one round trip.
// Per-command failures land in the matching Result; the returned error is
// reserved for fn itself failing.
func (c *Conn) Pipeline(ctx context.Context, fn func(store.Commands) error) ([]pipeline.Result, error) {
	q := &queued{}
	var fnErr error
	_, err := c.rdb.Pipelined(ctx, func(p redis.Pipeliner) error {
		q.p = p
		fnErr = fn(q)
		return fnErr
	})
	if fnErr != nil {
		return nil, fnErr
	}
	if len(q.out) == 0 {
		if err != nil && !errors.Is(err, redis.Nil) {
			return nil, err
		}
		return nil, nil
	}
	res := make([]pipeline.Result, len(q.out))
	for i, read := range q.out {
		res[i] = read()
	}
	return res, nil
}

// doer is Cmdable plus the raw command entry point, which go-redis only
// exposes on clients and pipelines.
type doer interface {
	redis.Cmdable
	Do(ctx context.Context, args ...any) *redis.Cmd
}

// commands runs each call immediately.
type commands struct {
	c doer
}

func (r commands) Get(ctx context.Context, key string) (string, bool, error) {
	return str(r.c.Get(ctx, key))
}

func (r commands) Set(ctx context.Context, key string, value any, ttl time.Duration) (bool, error) {
	if ttl < 0 {
		ttl = 0
	}
	if err := r.c.Set(ctx, key, value, ttl).Err(); err != nil {
		return false, err
	}
	return true, nil
}

func (r commands) HGet(ctx context.Context, key, field string) (string, bool, error) {
	return str(r.c.HGet(ctx, key, field))
}

func (r commands) HSet(ctx context.Context, key, field string, value any) (int64, error) {
	return r.c.HSet(ctx, key, field, value).Result()
}

func (r commands) LPush(ctx context.Context, key string, values ...any) (int64, error) {
	return r.c.LPush(ctx, key, values...).Result()
}

func (r commands) RPush(ctx context.Context, key string, values ...any) (int64, error) {
	return r.c.RPush(ctx, key, values...).Result()
}

func (r commands) LPop(ctx context.Context, key string) (string, bool, error) {
	return str(r.c.LPop(ctx, key))
}

func (r commands) RPop(ctx context.Context, key string) (string, bool, error) {
	return str(r.c.RPop(ctx, key))
}

func (r commands) Publish(ctx context.Context, channel string, msg any) (int64, error) {
	return r.c.Publish(ctx, channel, msg).Result()
}

func (r commands) Keys(ctx context.Context, pattern string) ([]string, error) {
	return r.c.Keys(ctx, pattern).Result()
}

func (r commands) Do(ctx context.Context, args ...any) (any, error) {
	v, err := r.c.Do(ctx, args...).Result()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	return v, err
}

// queued records commands on a pipeliner. Every method returns zero values;
// out holds one reader per command, evaluated after Exec.
type queued struct {
	p   redis.Pipeliner
	out []func() pipeline.Result
}

func (q *queued) Get(ctx context.Context, key string) (string, bool, error) {
	q.strCmd(q.p.Get(ctx, key))
	return "", false, nil
}

func (q *queued) Set(ctx context.Context, key string, value any, ttl time.Duration) (bool, error) {
	if ttl < 0 {
		ttl = 0
	}
	cmd := q.p.Set(ctx, key, value, ttl)
	q.out = append(q.out, func() pipeline.Result {
		if err := cmd.Err(); err != nil {
			return pipeline.Result{Val: false, Err: err}
		}
		return pipeline.Result{Val: true}
	})
	return false, nil
}

func (q *queued) HGet(ctx context.Context, key, field string) (string, bool, error) {
	q.strCmd(q.p.HGet(ctx, key, field))
	return "", false, nil
}

func (q *queued) HSet(ctx context.Context, key, field string, value any) (int64, error) {
	q.intCmd(q.p.HSet(ctx, key, field, value))
	return 0, nil
}

func (q *queued) LPush(ctx context.Context, key string, values ...any) (int64, error) {
	q.intCmd(q.p.LPush(ctx, key, values...))
	return 0, nil
}

func (q *queued) RPush(ctx context.Context, key string, values ...any) (int64, error) {
	q.intCmd(q.p.RPush(ctx, key, values...))
	return 0, nil
}

func (q *queued) LPop(ctx context.Context, key string) (string, bool, error) {
	q.strCmd(q.p.LPop(ctx, key))
	return "", false, nil
}

func (q *queued) RPop(ctx context.Context, key string) (string, bool, error) {
	q.strCmd(q.p.RPop(ctx, key))
	return "", false, nil
}

func (q *queued) Publish(ctx context.Context, channel string, msg any) (int64, error) {
	q.intCmd(q.p.Publish(ctx, channel, msg))
	return 0, nil
}

func (q *queued) Keys(ctx context.Context, pattern string) ([]string, error) {
	cmd := q.p.Keys(ctx, pattern)
	q.out = append(q.out, func() pipeline.Result {
		v, err := cmd.Result()
		if err != nil {
			return pipeline.Result{Err: err}
		}
		return pipeline.Result{Val: v}
	})
	return nil, nil
}

func (q *queued) Do(ctx context.Context, args ...any) (any, error) {
	cmd := q.p.Do(ctx, args...)
	q.out = append(q.out, func() pipeline.Result {
		v, err := cmd.Result()
		if errors.Is(err, redis.Nil) {
			return pipeline.Result{}
		}
		return pipeline.Result{Val: v, Err: err}
	})
	return nil, nil
}

func (q *queued) strCmd(cmd *redis.StringCmd) {
	q.out = append(q.out, func() pipeline.Result {
		v, ok, err := str(cmd)
		if err != nil || !ok {
			return pipeline.Result{Err: err}
		}
		return pipeline.Result{Val: v}
	})
}

func (q *queued) intCmd(cmd *redis.IntCmd) {
	q.out = append(q.out, func() pipeline.Result {
		v, err := cmd.Result()
		if err != nil {
			return pipeline.Result{Err: err}
		}
		return pipeline.Result{Val: v}
	})
}

// str maps redis.Nil to a miss.
func str(cmd *redis.StringCmd) (string, bool, error) {
	v, err := cmd.Result()
	if errors.Is(err, redis.Nil) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return v, true, nil
}
