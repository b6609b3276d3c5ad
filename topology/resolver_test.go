package topology

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/unkn0wn-root/slotkv/codec"
	"github.com/unkn0wn-root/slotkv/filecache"
	"github.com/unkn0wn-root/slotkv/genstore"
	"github.com/unkn0wn-root/slotkv/hooks"
	"github.com/unkn0wn-root/slotkv/internal/wire"
	"github.com/unkn0wn-root/slotkv/provider"
	"github.com/unkn0wn-root/slotkv/provider/file"
)

type memProvider struct {
	mu     sync.Mutex
	m      map[string][]byte
	setErr error
}

var _ provider.Provider = (*memProvider)(nil)

func newMemProvider() *memProvider { return &memProvider{m: make(map[string][]byte)} }

func (p *memProvider) Get(_ context.Context, key string) ([]byte, bool, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	v, ok := p.m[key]
	return v, ok, nil
}

func (p *memProvider) Set(_ context.Context, key string, value []byte, _ time.Duration) (bool, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.setErr != nil {
		return false, p.setErr
	}
	p.m[key] = value
	return true, nil
}

func (p *memProvider) Del(_ context.Context, key string) error {
	p.mu.Lock()
	delete(p.m, key)
	p.mu.Unlock()
	return nil
}

func (p *memProvider) Close(context.Context) error { return nil }

type fakeQuerier struct {
	calls atomic.Int32
	reply atomic.Value // string
	err   error
}

func newFakeQuerier(reply string) *fakeQuerier {
	q := &fakeQuerier{}
	q.reply.Store(reply)
	return q
}

func (q *fakeQuerier) ClusterNodes(context.Context) (string, error) {
	q.calls.Add(1)
	if q.err != nil {
		return "", q.err
	}
	return q.reply.Load().(string), nil
}

type eventRecorder struct {
	hooks.Nop
	mu          sync.Mutex
	refreshed   int
	unavailable int
	selfHeals   []string
	writeFails  int
}

func (r *eventRecorder) TopologyRefreshed(int, time.Duration) {
	r.mu.Lock()
	r.refreshed++
	r.mu.Unlock()
}

func (r *eventRecorder) TopologyUnavailable(error) {
	r.mu.Lock()
	r.unavailable++
	r.mu.Unlock()
}

func (r *eventRecorder) TopologySelfHeal(reason string) {
	r.mu.Lock()
	r.selfHeals = append(r.selfHeals, reason)
	r.mu.Unlock()
}

func (r *eventRecorder) CacheWriteFailed(string, error) {
	r.mu.Lock()
	r.writeFails++
	r.mu.Unlock()
}

func newTestResolver(t *testing.T, q Querier, store provider.Provider, optsOpt func(*ResolverOptions)) *Resolver {
	t.Helper()
	opts := ResolverOptions{Querier: q, Store: store}
	if optsOpt != nil {
		optsOpt(&opts)
	}
	r, err := NewResolver(opts)
	require.NoError(t, err)
	t.Cleanup(func() { _ = r.Close(context.Background()) })
	return r
}

func TestResolveCachesAfterFirstQuery(t *testing.T) {
	ctx := context.Background()
	q := newFakeQuerier(sampleNodes)
	rec := &eventRecorder{}
	r := newTestResolver(t, q, newMemProvider(), func(o *ResolverOptions) { o.Hooks = rec })

	first, err := r.Resolve(ctx, false)
	require.NoError(t, err)
	require.Len(t, first.Nodes, 2)

	second, err := r.Resolve(ctx, false)
	require.NoError(t, err)
	assert.Equal(t, first, second)
	assert.EqualValues(t, 1, q.calls.Load(), "second resolve must come from the store")
	assert.Equal(t, 1, rec.refreshed)
}

func TestResolveForceRequeries(t *testing.T) {
	ctx := context.Background()
	q := newFakeQuerier(sampleNodes)
	r := newTestResolver(t, q, newMemProvider(), nil)

	_, err := r.Resolve(ctx, false)
	require.NoError(t, err)

	q.reply.Store("n1 10.0.0.1:7000 master - 0 0 1 connected 0-16383")
	topo, err := r.Resolve(ctx, true)
	require.NoError(t, err)
	require.Len(t, topo.Nodes, 1)
	assert.Equal(t, "10.0.0.1:7000", topo.Nodes[0].MasterAddr)
	assert.EqualValues(t, 2, q.calls.Load())

	cached, ok := r.Cached(ctx)
	require.True(t, ok)
	assert.Equal(t, topo, cached)
}

// blockingQuerier holds its first call until release is closed, answering
// with the reply current when the call started.
type blockingQuerier struct {
	calls   atomic.Int32
	reply   atomic.Value // string
	entered chan struct{}
	release chan struct{}
}

func (q *blockingQuerier) ClusterNodes(context.Context) (string, error) {
	reply := q.reply.Load().(string)
	if q.calls.Add(1) == 1 {
		close(q.entered)
		<-q.release
	}
	return reply, nil
}

func TestForcedResolveDoesNotJoinStaleDiscovery(t *testing.T) {
	ctx := context.Background()
	q := &blockingQuerier{entered: make(chan struct{}), release: make(chan struct{})}
	q.reply.Store(sampleNodes)
	r := newTestResolver(t, q, newMemProvider(), nil)

	done := make(chan error, 1)
	go func() {
		_, err := r.Resolve(ctx, false)
		done <- err
	}()
	<-q.entered

	q.reply.Store("n1 127.0.0.1:9000 master - 0 0 1 connected 0-16383")
	topo, err := r.Resolve(ctx, true)
	require.NoError(t, err)
	require.Len(t, topo.Nodes, 1)
	assert.Equal(t, "127.0.0.1:9000", topo.Nodes[0].MasterAddr)
	assert.EqualValues(t, 2, q.calls.Load())

	close(q.release)
	require.NoError(t, <-done)
}

func TestResolveEmptyReplyIsUnavailable(t *testing.T) {
	ctx := context.Background()
	for _, reply := range []string{"", "  \n", "c3d4 127.0.0.1:7002 slave 07c3 0 0 1 connected"} {
		rec := &eventRecorder{}
		r := newTestResolver(t, newFakeQuerier(reply), newMemProvider(), func(o *ResolverOptions) { o.Hooks = rec })
		_, err := r.Resolve(ctx, false)
		require.ErrorIs(t, err, ErrUnavailable, "reply %q", reply)
		assert.Equal(t, 1, rec.unavailable)
	}
}

func TestResolveQueryErrorIsUnavailable(t *testing.T) {
	boom := errors.New("connection reset")
	q := newFakeQuerier("")
	q.err = boom
	r := newTestResolver(t, q, newMemProvider(), nil)

	_, err := r.Resolve(context.Background(), false)
	require.ErrorIs(t, err, ErrUnavailable)
	require.ErrorIs(t, err, boom)
}

func TestCachedTopologySurvivesEmptyReplyUntilInvalidated(t *testing.T) {
	ctx := context.Background()
	q := newFakeQuerier(sampleNodes)
	r := newTestResolver(t, q, newMemProvider(), nil)

	want, err := r.Resolve(ctx, false)
	require.NoError(t, err)

	q.reply.Store("")
	got, err := r.Resolve(ctx, false)
	require.NoError(t, err)
	assert.Equal(t, want, got)

	require.NoError(t, r.Invalidate(ctx))
	_, err = r.Resolve(ctx, false)
	require.ErrorIs(t, err, ErrUnavailable)
}

func TestSnapshotPersistsAcrossResolvers(t *testing.T) {
	ctx := context.Background()
	store, err := file.Open(filecache.Options{Dir: t.TempDir(), DirectoryLevel: 2, DisableGC: true})
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close(ctx) })

	q1 := newFakeQuerier(sampleNodes)
	r1 := newTestResolver(t, q1, store, nil)
	want, err := r1.Resolve(ctx, false)
	require.NoError(t, err)

	// a "restarted process": new resolver, same directory, fresh epoch store
	q2 := newFakeQuerier("")
	r2 := newTestResolver(t, q2, store, nil)
	got, err := r2.Resolve(ctx, false)
	require.NoError(t, err)
	assert.Equal(t, want, got)
	assert.EqualValues(t, 0, q2.calls.Load())
}

func TestSharedEpochInvalidatesOtherResolvers(t *testing.T) {
	ctx := context.Background()
	epochs := genstore.NewLocalGenStore(0, 0)
	storeA, storeB := newMemProvider(), newMemProvider()

	qa := newFakeQuerier(sampleNodes)
	a := newTestResolver(t, qa, storeA, func(o *ResolverOptions) { o.Epochs = epochs })
	qb := newFakeQuerier(sampleNodes)
	b := newTestResolver(t, qb, storeB, func(o *ResolverOptions) { o.Epochs = epochs })

	_, err := a.Resolve(ctx, false)
	require.NoError(t, err)
	_, err = b.Resolve(ctx, false)
	require.NoError(t, err)

	require.NoError(t, a.Invalidate(ctx))

	_, ok := b.Cached(ctx)
	assert.False(t, ok, "b's snapshot predates the shared epoch bump")
	_, err = b.Resolve(ctx, false)
	require.NoError(t, err)
	assert.EqualValues(t, 2, qb.calls.Load())
}

func TestCorruptSnapshotSelfHeals(t *testing.T) {
	ctx := context.Background()
	store := newMemProvider()
	rec := &eventRecorder{}
	q := newFakeQuerier(sampleNodes)
	r := newTestResolver(t, q, store, func(o *ResolverOptions) { o.Hooks = rec })

	_, _ = store.Set(ctx, r.Key(), []byte("not-wire-format"), 0)
	topo, err := r.Resolve(ctx, false)
	require.NoError(t, err)
	require.Len(t, topo.Nodes, 2)

	_, _ = store.Set(ctx, r.Key(), wire.EncodeSingle(0, []byte{0xc1}), 0) // 0xc1 is never valid msgpack
	_, ok := r.Cached(ctx)
	require.False(t, ok)
	_, present, _ := store.Get(ctx, r.Key())
	assert.False(t, present)

	assert.Equal(t, []string{"corrupt", "decode"}, rec.selfHeals)
}

func TestStoreFailureDoesNotFailResolve(t *testing.T) {
	store := newMemProvider()
	store.setErr = errors.New("disk full")
	rec := &eventRecorder{}
	r := newTestResolver(t, newFakeQuerier(sampleNodes), store, func(o *ResolverOptions) { o.Hooks = rec })

	topo, err := r.Resolve(context.Background(), false)
	require.NoError(t, err)
	assert.Len(t, topo.Nodes, 2)
	assert.Equal(t, 1, rec.writeFails)
}

func TestResolveWithJSONCodec(t *testing.T) {
	ctx := context.Background()
	q := newFakeQuerier(sampleNodes)
	r := newTestResolver(t, q, newMemProvider(), func(o *ResolverOptions) {
		o.Codec = codec.JSON[Topology]{}
		o.Namespace = "orders"
	})
	assert.Equal(t, "cluster:orders:nodes", r.Key())
	_, err := r.Resolve(ctx, false)
	require.NoError(t, err)
	got, ok := r.Cached(ctx)
	require.True(t, ok)
	assert.Equal(t, "127.0.0.1:7002", got.Nodes[0].ReplicaAddr)
}

func TestNewResolverValidates(t *testing.T) {
	_, err := NewResolver(ResolverOptions{Store: newMemProvider()})
	require.Error(t, err)
	_, err = NewResolver(ResolverOptions{Querier: newFakeQuerier("")})
	require.Error(t, err)
}
