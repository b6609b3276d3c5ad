package slotkv

import (
	"context"
	"errors"
	"fmt"
	"path"
	"sync"
	"sync/atomic"
	"time"

	"github.com/unkn0wn-root/slotkv/pipeline"
	"github.com/unkn0wn-root/slotkv/store"
)

// fakeServer is one in-memory node.
type fakeServer struct {
	mu        sync.Mutex
	kv        map[string]string
	hashes    map[string]map[string]string
	lists     map[string][]string
	published []string
	db        int // database requested by the last dial

	nodes      string
	nodesErr   error
	nodesCalls atomic.Int32
	batches    atomic.Int32
}

func newFakeServer() *fakeServer {
	return &fakeServer{
		kv:     make(map[string]string),
		hashes: make(map[string]map[string]string),
		lists:  make(map[string][]string),
	}
}

func (s *fakeServer) has(key string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.kv[key]
	return ok
}

func (s *fakeServer) setNodes(text string, err error) {
	s.mu.Lock()
	s.nodes, s.nodesErr = text, err
	s.mu.Unlock()
}

// fakeNet dials fakeServers by address.
type fakeNet struct {
	mu       sync.Mutex
	servers  map[string]*fakeServer
	fail     map[string]error
	cluster  bool // conns implement store.ClusterInspector
	batching bool // conns implement store.Batcher
	dials    map[string]int
	conns    []*fakeConn
}

func newFakeNet(addrs ...string) *fakeNet {
	n := &fakeNet{
		servers: make(map[string]*fakeServer),
		fail:    make(map[string]error),
		dials:   make(map[string]int),
	}
	for _, a := range addrs {
		n.servers[a] = newFakeServer()
	}
	return n
}

func (n *fakeNet) server(addr string) *fakeServer {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.servers[addr]
}

func (n *fakeNet) dialCount(addr string) int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.dials[addr]
}

func (n *fakeNet) Dial(_ context.Context, addr string, opts store.DialOptions) (store.Conn, error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.dials[addr]++
	if err := n.fail[addr]; err != nil {
		return nil, err
	}
	srv, ok := n.servers[addr]
	if !ok {
		return nil, fmt.Errorf("dial %s: connection refused", addr)
	}
	srv.mu.Lock()
	srv.db = opts.DB
	srv.mu.Unlock()

	fc := &fakeConn{srv: srv, addr: addr}
	n.conns = append(n.conns, fc)
	switch {
	case n.cluster:
		return clusterConn{fc}, nil
	case n.batching:
		return batchConn{fc}, nil
	default:
		return fc, nil
	}
}

type fakeConn struct {
	srv    *fakeServer
	addr   string
	closed atomic.Bool
}

var _ store.Conn = (*fakeConn)(nil)

var errConnClosed = errors.New("fake: connection closed")

func str(v any) string {
	switch x := v.(type) {
	case string:
		return x
	case []byte:
		return string(x)
	default:
		return fmt.Sprint(x)
	}
}

func (c *fakeConn) lock() (*fakeServer, error) {
	if c.closed.Load() {
		return nil, errConnClosed
	}
	c.srv.mu.Lock()
	return c.srv, nil
}

func (c *fakeConn) Get(_ context.Context, key string) (string, bool, error) {
	s, err := c.lock()
	if err != nil {
		return "", false, err
	}
	defer s.mu.Unlock()
	v, ok := s.kv[key]
	return v, ok, nil
}

func (c *fakeConn) Set(_ context.Context, key string, value any, _ time.Duration) (bool, error) {
	s, err := c.lock()
	if err != nil {
		return false, err
	}
	defer s.mu.Unlock()
	s.kv[key] = str(value)
	return true, nil
}

func (c *fakeConn) HGet(_ context.Context, key, field string) (string, bool, error) {
	s, err := c.lock()
	if err != nil {
		return "", false, err
	}
	defer s.mu.Unlock()
	v, ok := s.hashes[key][field]
	return v, ok, nil
}

func (c *fakeConn) HSet(_ context.Context, key, field string, value any) (int64, error) {
	s, err := c.lock()
	if err != nil {
		return 0, err
	}
	defer s.mu.Unlock()
	h := s.hashes[key]
	if h == nil {
		h = make(map[string]string)
		s.hashes[key] = h
	}
	_, existed := h[field]
	h[field] = str(value)
	if existed {
		return 0, nil
	}
	return 1, nil
}

func (c *fakeConn) LPush(_ context.Context, key string, values ...any) (int64, error) {
	s, err := c.lock()
	if err != nil {
		return 0, err
	}
	defer s.mu.Unlock()
	for _, v := range values {
		s.lists[key] = append([]string{str(v)}, s.lists[key]...)
	}
	return int64(len(s.lists[key])), nil
}

func (c *fakeConn) RPush(_ context.Context, key string, values ...any) (int64, error) {
	s, err := c.lock()
	if err != nil {
		return 0, err
	}
	defer s.mu.Unlock()
	for _, v := range values {
		s.lists[key] = append(s.lists[key], str(v))
	}
	return int64(len(s.lists[key])), nil
}

func (c *fakeConn) LPop(_ context.Context, key string) (string, bool, error) {
	s, err := c.lock()
	if err != nil {
		return "", false, err
	}
	defer s.mu.Unlock()
	l := s.lists[key]
	if len(l) == 0 {
		return "", false, nil
	}
	s.lists[key] = l[1:]
	return l[0], true, nil
}

func (c *fakeConn) RPop(_ context.Context, key string) (string, bool, error) {
	s, err := c.lock()
	if err != nil {
		return "", false, err
	}
	defer s.mu.Unlock()
	l := s.lists[key]
	if len(l) == 0 {
		return "", false, nil
	}
	s.lists[key] = l[:len(l)-1]
	return l[len(l)-1], true, nil
}

func (c *fakeConn) Publish(_ context.Context, channel string, msg any) (int64, error) {
	s, err := c.lock()
	if err != nil {
		return 0, err
	}
	defer s.mu.Unlock()
	s.published = append(s.published, channel+"="+str(msg))
	return 0, nil
}

func (c *fakeConn) Keys(_ context.Context, pattern string) ([]string, error) {
	s, err := c.lock()
	if err != nil {
		return nil, err
	}
	defer s.mu.Unlock()
	var out []string
	for k := range s.kv {
		if ok, _ := path.Match(pattern, k); ok {
			out = append(out, k)
		}
	}
	return out, nil
}

// Do understands ECHO and GET only.
func (c *fakeConn) Do(ctx context.Context, args ...any) (any, error) {
	if len(args) == 0 {
		return nil, errors.New("fake: empty command")
	}
	switch str(args[0]) {
	case "ECHO":
		return str(args[1]), nil
	case "GET":
		v, ok, err := c.Get(ctx, str(args[1]))
		if err != nil || !ok {
			return nil, err
		}
		return v, nil
	default:
		return nil, fmt.Errorf("fake: unknown command %v", args[0])
	}
}

func (c *fakeConn) Ping(context.Context) error {
	if c.closed.Load() {
		return errConnClosed
	}
	return nil
}

func (c *fakeConn) Close() error {
	c.closed.Store(true)
	return nil
}

type clusterConn struct{ *fakeConn }

func (c clusterConn) ClusterNodes(context.Context) (string, error) {
	c.srv.nodesCalls.Add(1)
	c.srv.mu.Lock()
	defer c.srv.mu.Unlock()
	return c.srv.nodes, c.srv.nodesErr
}

type batchConn struct{ *fakeConn }

// Pipeline replays the queued commands in order against the fake server.
func (c batchConn) Pipeline(ctx context.Context, fn func(store.Commands) error) ([]pipeline.Result, error) {
	c.srv.batches.Add(1)
	rec := &recorder{conn: c.fakeConn}
	if err := fn(rec); err != nil {
		return nil, err
	}
	out := make([]pipeline.Result, len(rec.ops))
	for i, op := range rec.ops {
		out[i] = op(ctx)
	}
	return out, nil
}

type recorder struct {
	conn *fakeConn
	ops  []func(context.Context) pipeline.Result
}

func strResult(v string, ok bool, err error) pipeline.Result {
	if !ok {
		return pipeline.Result{Err: err}
	}
	return pipeline.Result{Val: v, Err: err}
}

func intResult(n int64, err error) pipeline.Result {
	if err != nil {
		return pipeline.Result{Err: err}
	}
	return pipeline.Result{Val: n}
}

func (r *recorder) Get(_ context.Context, key string) (string, bool, error) {
	r.ops = append(r.ops, func(ctx context.Context) pipeline.Result { return strResult(r.conn.Get(ctx, key)) })
	return "", false, nil
}

func (r *recorder) Set(_ context.Context, key string, value any, ttl time.Duration) (bool, error) {
	r.ops = append(r.ops, func(ctx context.Context) pipeline.Result {
		ok, err := r.conn.Set(ctx, key, value, ttl)
		return pipeline.Result{Val: ok, Err: err}
	})
	return false, nil
}

func (r *recorder) HGet(_ context.Context, key, field string) (string, bool, error) {
	r.ops = append(r.ops, func(ctx context.Context) pipeline.Result { return strResult(r.conn.HGet(ctx, key, field)) })
	return "", false, nil
}

func (r *recorder) HSet(_ context.Context, key, field string, value any) (int64, error) {
	r.ops = append(r.ops, func(ctx context.Context) pipeline.Result { return intResult(r.conn.HSet(ctx, key, field, value)) })
	return 0, nil
}

func (r *recorder) LPush(_ context.Context, key string, values ...any) (int64, error) {
	r.ops = append(r.ops, func(ctx context.Context) pipeline.Result { return intResult(r.conn.LPush(ctx, key, values...)) })
	return 0, nil
}

func (r *recorder) RPush(_ context.Context, key string, values ...any) (int64, error) {
	r.ops = append(r.ops, func(ctx context.Context) pipeline.Result { return intResult(r.conn.RPush(ctx, key, values...)) })
	return 0, nil
}

func (r *recorder) LPop(_ context.Context, key string) (string, bool, error) {
	r.ops = append(r.ops, func(ctx context.Context) pipeline.Result { return strResult(r.conn.LPop(ctx, key)) })
	return "", false, nil
}

func (r *recorder) RPop(_ context.Context, key string) (string, bool, error) {
	r.ops = append(r.ops, func(ctx context.Context) pipeline.Result { return strResult(r.conn.RPop(ctx, key)) })
	return "", false, nil
}

func (r *recorder) Publish(_ context.Context, channel string, msg any) (int64, error) {
	r.ops = append(r.ops, func(ctx context.Context) pipeline.Result { return intResult(r.conn.Publish(ctx, channel, msg)) })
	return 0, nil
}

func (r *recorder) Keys(_ context.Context, pattern string) ([]string, error) {
	r.ops = append(r.ops, func(ctx context.Context) pipeline.Result {
		ks, err := r.conn.Keys(ctx, pattern)
		return pipeline.Result{Val: ks, Err: err}
	})
	return nil, nil
}

func (r *recorder) Do(_ context.Context, args ...any) (any, error) {
	r.ops = append(r.ops, func(ctx context.Context) pipeline.Result {
		v, err := r.conn.Do(ctx, args...)
		return pipeline.Result{Val: v, Err: err}
	})
	return nil, nil
}
