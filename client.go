package slotkv

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strconv"
	"sync/atomic"
	"time"

	"github.com/unkn0wn-root/slotkv/store"
	"github.com/unkn0wn-root/slotkv/store/redisstore"
	"github.com/unkn0wn-root/slotkv/topology"
)

type client struct {
	prefix string
	log    Logger
	hooks  Hooks
	route  strategy
	closed atomic.Bool
}

var _ Client = (*client)(nil)

func newClient(ctx context.Context, opts Options) (*client, error) {
	if err := validate(opts); err != nil {
		return nil, err
	}

	c := &client{prefix: opts.KeyPrefix}
	c.log = coalesce[Logger](opts.Logger, NopLogger{})
	c.hooks = coalesce[Hooks](opts.Hooks, NopHooks{})
	dialer := coalesce[store.Dialer](opts.Dialer, redisstore.Dialer{})

	dialOpts := store.DialOptions{Timeout: opts.Timeout}
	if !opts.Cluster {
		dialOpts.DB = opts.Database
	} else if opts.Database != 0 {
		c.log.Warn("database is ignored in cluster mode", Fields{"database": opts.Database})
	}

	seed, addr, err := connect(ctx, dialer, opts.Masters, dialOpts, c.log, c.hooks)
	if err != nil {
		return nil, err
	}

	if !opts.Cluster {
		c.route = &singleNode{conn: seed, addr: addr}
		c.log.Info("connected", Fields{"addr": addr, "mode": "single"})
		return c, nil
	}

	cl, err := newCluster(ctx, seed, addr, dialer, dialOpts, opts, c.log, c.hooks)
	if err != nil {
		_ = seed.Close()
		return nil, err
	}
	c.route = cl
	c.log.Info("connected", Fields{"addr": addr, "mode": "cluster", "route": opts.RouteMode.String()})
	return c, nil
}

func validate(o Options) error {
	if len(o.Masters) == 0 {
		return &ConfigError{Field: "masters", Reason: "at least one address is required"}
	}
	for _, a := range o.Masters {
		host, port, err := net.SplitHostPort(a)
		if err != nil || host == "" {
			return &ConfigError{Field: "masters", Reason: fmt.Sprintf("bad address %q", a)}
		}
		if p, err := strconv.Atoi(port); err != nil || p <= 0 || p > 65535 {
			return &ConfigError{Field: "masters", Reason: fmt.Sprintf("bad port in %q", a)}
		}
	}
	if o.Timeout < 0 {
		return &ConfigError{Field: "timeout", Reason: "must not be negative"}
	}
	if o.Database < 0 {
		return &ConfigError{Field: "database", Reason: "must not be negative"}
	}
	if o.RouteMode != RouteRanges && o.RouteMode != RouteApproximate {
		return &ConfigError{Field: "route mode", Reason: fmt.Sprintf("unknown mode %d", o.RouteMode)}
	}
	return nil
}

// connect tries addrs in order and keeps the first server that answers.
func connect(ctx context.Context, d store.Dialer, addrs []string, o store.DialOptions, l Logger, h Hooks) (store.Conn, string, error) {
	ce := &ConnectError{}
	for _, addr := range addrs {
		conn, err := d.Dial(ctx, addr, o)
		if err == nil {
			return conn, addr, nil
		}
		h.NodeDialFailed(addr, err)
		l.Warn("dial failed", Fields{"addr": addr, "err": err})
		ce.Addrs = append(ce.Addrs, addr)
		ce.Errs = append(ce.Errs, err)
		if ctx.Err() != nil {
			break
		}
	}
	return nil, "", ce
}

func (c *client) key(k string) string { return c.prefix + k }

func (c *client) conn(ctx context.Context, key string) (store.Conn, error) {
	if c.closed.Load() {
		return nil, ErrClosed
	}
	return c.route.connFor(ctx, key)
}

func (c *client) Get(ctx context.Context, key string) (string, bool, error) {
	k := c.key(key)
	conn, err := c.conn(ctx, k)
	if err != nil {
		return "", false, err
	}
	return conn.Get(ctx, k)
}

func (c *client) Set(ctx context.Context, key string, value any, ttl time.Duration) (bool, error) {
	k := c.key(key)
	conn, err := c.conn(ctx, k)
	if err != nil {
		return false, err
	}
	return conn.Set(ctx, k, value, ttl)
}

func (c *client) HGet(ctx context.Context, key, field string) (string, bool, error) {
	k := c.key(key)
	conn, err := c.conn(ctx, k)
	if err != nil {
		return "", false, err
	}
	return conn.HGet(ctx, k, field)
}

func (c *client) HSet(ctx context.Context, key, field string, value any) (int64, error) {
	k := c.key(key)
	conn, err := c.conn(ctx, k)
	if err != nil {
		return 0, err
	}
	return conn.HSet(ctx, k, field, value)
}

func (c *client) Push(ctx context.Context, key string, value any, right bool) (int64, error) {
	k := c.key(key)
	conn, err := c.conn(ctx, k)
	if err != nil {
		return 0, err
	}
	if right {
		return conn.RPush(ctx, k, value)
	}
	return conn.LPush(ctx, k, value)
}

func (c *client) Pop(ctx context.Context, key string, left bool) (string, bool, error) {
	k := c.key(key)
	conn, err := c.conn(ctx, k)
	if err != nil {
		return "", false, err
	}
	if left {
		return conn.LPop(ctx, k)
	}
	return conn.RPop(ctx, k)
}

// Publish routes by channel name like any other key. Subscribers on a cluster
// receive it regardless of which node it was published on.
func (c *client) Publish(ctx context.Context, channel string, msg any) (int64, error) {
	ch := c.key(channel)
	conn, err := c.conn(ctx, ch)
	if err != nil {
		return 0, err
	}
	return conn.Publish(ctx, ch, msg)
}

// Keys queries every master. Results from reachable masters are returned even
// when others fail; the failures are joined into the error.
func (c *client) Keys(ctx context.Context, pattern string) ([]string, error) {
	if c.closed.Load() {
		return nil, ErrClosed
	}
	conns, err := c.route.masters(ctx)
	if err != nil && len(conns) == 0 {
		return nil, err
	}
	var out []string
	errs := []error{err}
	for _, conn := range conns {
		ks, kerr := conn.Keys(ctx, c.key(pattern))
		if kerr != nil {
			errs = append(errs, kerr)
			continue
		}
		out = append(out, ks...)
	}
	return out, errors.Join(errs...)
}

func (c *client) Do(ctx context.Context, key string, args ...any) (any, error) {
	var (
		conn store.Conn
		err  error
	)
	if key == "" {
		conn, err = c.seed()
	} else {
		conn, err = c.conn(ctx, key)
	}
	if err != nil {
		return nil, err
	}
	return conn.Do(ctx, args...)
}

func (c *client) seed() (store.Conn, error) {
	if c.closed.Load() {
		return nil, ErrClosed
	}
	return c.route.seed(), nil
}

func (c *client) Pipeline() Pipeline {
	var p Pipeline
	if b, ok := c.route.batcher(); ok {
		p = &nativePipeline{c: c, b: b}
	} else {
		p = &emulatedPipeline{c: c}
	}
	p.Begin()
	return p
}

func (c *client) NodeFor(ctx context.Context, key string) (string, error) {
	if c.closed.Load() {
		return "", ErrClosed
	}
	return c.route.nodeFor(ctx, c.key(key))
}

func (c *client) Topology() (topology.Topology, bool) { return c.route.topology() }

func (c *client) RefreshTopology(ctx context.Context) (topology.Topology, error) {
	if c.closed.Load() {
		return topology.Topology{}, ErrClosed
	}
	return c.route.refresh(ctx)
}

func (c *client) Clustered() bool {
	_, ok := c.route.(*cluster)
	return ok
}

// Close releases every connection. Safe to call multiple times.
func (c *client) Close(ctx context.Context) error {
	if !c.closed.CompareAndSwap(false, true) {
		return nil
	}
	return c.route.close(ctx)
}
