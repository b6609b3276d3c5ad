package slotkv

import (
	"context"
	"errors"
	"fmt"
	"sync"

	pr "github.com/unkn0wn-root/slotkv/provider"
	"github.com/unkn0wn-root/slotkv/provider/file"
	"github.com/unkn0wn-root/slotkv/router"
	"github.com/unkn0wn-root/slotkv/slot"
	"github.com/unkn0wn-root/slotkv/store"
	"github.com/unkn0wn-root/slotkv/topology"
)

// strategy decides which connection serves a key. It is chosen once, in New.
type strategy interface {
	connFor(ctx context.Context, key string) (store.Conn, error)
	nodeFor(ctx context.Context, key string) (string, error)
	// masters returns a connection per master; on partial failure it returns
	// the reachable ones together with the error.
	masters(ctx context.Context) ([]store.Conn, error)
	seed() store.Conn
	batcher() (store.Batcher, bool)
	topology() (topology.Topology, bool)
	refresh(ctx context.Context) (topology.Topology, error)
	close(ctx context.Context) error
}

// singleNode sends everything to the server it connected to.
type singleNode struct {
	conn store.Conn
	addr string
}

func (s *singleNode) connFor(context.Context, string) (store.Conn, error) { return s.conn, nil }
func (s *singleNode) nodeFor(context.Context, string) (string, error)     { return s.addr, nil }
func (s *singleNode) masters(context.Context) ([]store.Conn, error)       { return []store.Conn{s.conn}, nil }
func (s *singleNode) seed() store.Conn                                    { return s.conn }
func (s *singleNode) topology() (topology.Topology, bool)                 { return topology.Topology{}, false }

func (s *singleNode) batcher() (store.Batcher, bool) {
	b, ok := s.conn.(store.Batcher)
	return b, ok
}

func (s *singleNode) refresh(context.Context) (topology.Topology, error) {
	return topology.Topology{}, &UnsupportedError{Op: "topology refresh in single-node mode"}
}

func (s *singleNode) close(context.Context) error { return s.conn.Close() }

// cluster routes by slot over the last resolved topology and keeps one
// connection per master address.
type cluster struct {
	seedConn store.Conn
	seedAddr string
	resolver *topology.Resolver
	ownStore pr.Provider // created by New; nil when supplied by the caller
	dialer   store.Dialer
	dialOpts store.DialOptions
	mode     RouteMode
	hashTags bool
	log      Logger
	hooks    Hooks

	mu   sync.RWMutex
	topo topology.Topology

	poolMu sync.Mutex
	pool   map[string]store.Conn
}

func newCluster(ctx context.Context, seed store.Conn, seedAddr string, d store.Dialer, dialOpts store.DialOptions,
	opts Options, l Logger, h Hooks) (*cluster, error) {
	insp, ok := seed.(store.ClusterInspector)
	if !ok {
		return nil, &UnsupportedError{Op: "cluster nodes"}
	}

	st := opts.TopologyStore
	var own pr.Provider
	if st == nil {
		fo := opts.FileCache
		fo.Dir = coalesce(opts.CacheDir, DefaultCacheDir())
		fo.DirectoryLevel = coalesce(fo.DirectoryLevel, defaultCacheLevels)
		fo.Logger = coalesce[Logger](fo.Logger, l)
		fo.Hooks = coalesce[Hooks](fo.Hooks, h)
		fp, err := file.Open(fo)
		if err != nil {
			return nil, fmt.Errorf("slotkv: topology cache: %w", err)
		}
		st, own = fp, fp
	}

	res, err := topology.NewResolver(topology.ResolverOptions{
		Namespace: coalesce(opts.Namespace, defaultNamespace),
		Querier:   insp,
		Store:     st,
		Codec:     opts.Codec,
		Epochs:    opts.Epochs,
		Logger:    l,
		Hooks:     h,
	})
	if err != nil {
		if own != nil {
			_ = own.Close(ctx)
		}
		return nil, err
	}

	s := &cluster{
		seedConn: seed,
		seedAddr: seedAddr,
		resolver: res,
		ownStore: own,
		dialer:   d,
		dialOpts: dialOpts,
		mode:     opts.RouteMode,
		hashTags: opts.HashTags,
		log:      l,
		hooks:    h,
		pool:     make(map[string]store.Conn),
	}

	// Not fatal: routed calls resolve again on demand.
	if t, err := res.Resolve(ctx, false); err != nil {
		l.Warn("topology unavailable at startup", Fields{"err": err})
	} else {
		s.topo = t
		l.Debug("topology loaded", Fields{"nodes": len(t.Nodes), "masters": len(t.Masters())})
	}
	return s, nil
}

// snapshot returns the topology in use, resolving it when none is loaded yet.
func (s *cluster) snapshot(ctx context.Context) (topology.Topology, error) {
	s.mu.RLock()
	t := s.topo
	s.mu.RUnlock()
	if !t.Empty() {
		return t, nil
	}
	t, err := s.resolver.Resolve(ctx, false)
	if err != nil {
		return topology.Topology{}, err
	}
	s.install(t)
	return t, nil
}

func (s *cluster) install(t topology.Topology) {
	s.mu.Lock()
	s.topo = t
	s.mu.Unlock()
}

func (s *cluster) topology() (topology.Topology, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.topo, !s.topo.Empty()
}

func (s *cluster) refresh(ctx context.Context) (topology.Topology, error) {
	t, err := s.resolver.Resolve(ctx, true)
	if err != nil {
		s.log.Warn("topology refresh failed; keeping previous snapshot", Fields{"err": err})
		return topology.Topology{}, err
	}
	s.install(t)
	return t, nil
}

func (s *cluster) nodeFor(ctx context.Context, key string) (string, error) {
	t, err := s.snapshot(ctx)
	if err != nil {
		return "", err
	}
	rk := key
	if s.hashTags {
		rk = slot.HashTag(key)
	}
	if s.mode == RouteApproximate {
		addr, idx, err := router.Approximate([]byte(rk), t)
		if err != nil {
			return "", err
		}
		s.hooks.ApproximateRoute(slot.SlotString(rk), idx)
		return addr, nil
	}
	return router.Route([]byte(rk), t)
}

func (s *cluster) connFor(ctx context.Context, key string) (store.Conn, error) {
	addr, err := s.nodeFor(ctx, key)
	if err != nil {
		return nil, err
	}
	return s.dial(ctx, addr)
}

func (s *cluster) masters(ctx context.Context) ([]store.Conn, error) {
	t, err := s.snapshot(ctx)
	if err != nil {
		return nil, err
	}
	var (
		conns []store.Conn
		errs  []error
	)
	for _, addr := range t.Masters() {
		conn, err := s.dial(ctx, addr)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		conns = append(conns, conn)
	}
	return conns, errors.Join(errs...)
}

func (s *cluster) seed() store.Conn               { return s.seedConn }
func (s *cluster) batcher() (store.Batcher, bool) { return nil, false }

// dial returns the pooled connection for addr, opening it on first use.
func (s *cluster) dial(ctx context.Context, addr string) (store.Conn, error) {
	if addr == s.seedAddr {
		return s.seedConn, nil
	}
	s.poolMu.Lock()
	conn, ok := s.pool[addr]
	s.poolMu.Unlock()
	if ok {
		return conn, nil
	}

	conn, err := s.dialer.Dial(ctx, addr, s.dialOpts)
	if err != nil {
		s.hooks.NodeDialFailed(addr, err)
		s.log.Warn("dial failed", Fields{"addr": addr, "err": err})
		return nil, &ConnectError{Addrs: []string{addr}, Errs: []error{err}}
	}

	s.poolMu.Lock()
	defer s.poolMu.Unlock()
	if existing, ok := s.pool[addr]; ok {
		// lost a race with another dialer
		_ = conn.Close()
		return existing, nil
	}
	s.pool[addr] = conn
	return conn, nil
}

func (s *cluster) close(ctx context.Context) error {
	var errs []error
	s.poolMu.Lock()
	for addr, conn := range s.pool {
		if err := conn.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close %s: %w", addr, err))
		}
		delete(s.pool, addr)
	}
	s.poolMu.Unlock()

	if err := s.seedConn.Close(); err != nil {
		errs = append(errs, fmt.Errorf("close %s: %w", s.seedAddr, err))
	}
	if err := s.resolver.Close(ctx); err != nil {
		errs = append(errs, err)
	}
	if s.ownStore != nil {
		if err := s.ownStore.Close(ctx); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
