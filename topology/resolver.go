package topology

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/unkn0wn-root/slotkv/codec"
	"github.com/unkn0wn-root/slotkv/genstore"
	"github.com/unkn0wn-root/slotkv/hooks"
	"github.com/unkn0wn-root/slotkv/internal/wire"
	"github.com/unkn0wn-root/slotkv/log"
	"github.com/unkn0wn-root/slotkv/provider"
)

// DefaultTTL keeps a snapshot effectively until it is invalidated.
const DefaultTTL = 365 * 24 * time.Hour

// ErrUnavailable means discovery produced nothing usable. Callers keep using
// whatever topology they already had.
var ErrUnavailable = errors.New("slotkv: cluster topology unavailable")

// Querier issues the cluster introspection command (CLUSTER NODES).
type Querier interface {
	ClusterNodes(ctx context.Context) (string, error)
}

// QuerierFunc adapts a function to Querier.
type QuerierFunc func(ctx context.Context) (string, error)

func (f QuerierFunc) ClusterNodes(ctx context.Context) (string, error) { return f(ctx) }

// ResolverOptions configure a Resolver. Querier and Store are required.
type ResolverOptions struct {
	Namespace string // separates clusters sharing one store; "" => "default"
	Querier   Querier
	Store     provider.Provider
	Codec     codec.Codec[Topology] // nil => msgpack
	Epochs    genstore.GenStore     // nil => in-process
	TTL       time.Duration         // 0 => DefaultTTL
	Logger    log.Logger
	Hooks     hooks.Hooks
}

// Resolver returns the cluster topology, from its store when possible.
//
// Refreshes for the same resolver are coalesced. Separate processes refresh
// independently; every result is an equally valid snapshot and the last write wins.
type Resolver struct {
	key     string
	querier Querier
	store   provider.Provider
	codec   codec.Codec[Topology]
	epochs  genstore.GenStore
	ttl     time.Duration
	log     log.Logger
	hooks   hooks.Hooks

	ownEpochs bool
	flight    singleflight.Group
}

func NewResolver(opts ResolverOptions) (*Resolver, error) {
	if opts.Querier == nil {
		return nil, errors.New("topology: querier is required")
	}
	if opts.Store == nil {
		return nil, errors.New("topology: store is required")
	}
	ns := opts.Namespace
	if ns == "" {
		ns = "default"
	}
	r := &Resolver{
		key:     "cluster:" + ns + ":nodes",
		querier: opts.Querier,
		store:   opts.Store,
		codec:   opts.Codec,
		epochs:  opts.Epochs,
		ttl:     opts.TTL,
		log:     log.OrNop(opts.Logger),
		hooks:   hooks.OrNop(opts.Hooks),
	}
	if r.codec == nil {
		r.codec = codec.Msgpack[Topology]{}
	}
	if r.epochs == nil {
		r.epochs = genstore.NewLocalGenStore(0, 0)
		r.ownEpochs = true
	}
	if r.ttl <= 0 {
		r.ttl = DefaultTTL
	}
	return r, nil
}

// Key is the well-known store key holding the snapshot.
func (r *Resolver) Key() string { return r.key }

// Resolve returns the cached topology, or discovers it on a miss. force drops
// the cached snapshot (see Invalidate) and always queries the cluster.
//
// Discovery failures return an error wrapping ErrUnavailable. Failing to store
// a fresh snapshot is not an error.
func (r *Resolver) Resolve(ctx context.Context, force bool) (Topology, error) {
	if force {
		if err := r.Invalidate(ctx); err != nil {
			r.log.Warn("topology: invalidate before refresh failed", log.Fields{"err": err})
		}
		// a discovery already in flight may predate the invalidation
		r.flight.Forget(r.key)
	} else if t, ok := r.Cached(ctx); ok {
		return t, nil
	}

	v, err, _ := r.flight.Do(r.key, func() (any, error) {
		return r.discover(ctx)
	})
	if err != nil {
		return Topology{}, err
	}
	return v.(Topology), nil
}

// Cached returns the stored snapshot if it is present, intact and stamped with
// the current epoch. Anything else is deleted and reported as a miss.
func (r *Resolver) Cached(ctx context.Context) (Topology, bool) {
	raw, ok, err := r.store.Get(ctx, r.key)
	if err != nil {
		r.log.Warn("topology: cache read failed", log.Fields{"key": r.key, "err": err})
		return Topology{}, false
	}
	if !ok {
		return Topology{}, false
	}

	epoch, payload, err := wire.DecodeSingle(raw)
	if err != nil {
		r.selfHeal(ctx, "corrupt")
		return Topology{}, false
	}
	current, err := r.epochs.Snapshot(ctx, r.key)
	if err != nil {
		r.log.Warn("topology: epoch snapshot failed", log.Fields{"err": err})
		return Topology{}, false
	}
	if epoch != current {
		r.selfHeal(ctx, "epoch_mismatch")
		return Topology{}, false
	}
	t, err := r.codec.Decode(payload)
	if err != nil || t.Empty() {
		r.selfHeal(ctx, "decode")
		return Topology{}, false
	}
	return t, true
}

// Invalidate bumps the epoch and deletes the stored snapshot. With a shared
// GenStore, snapshots cached by other processes stop being served as well.
func (r *Resolver) Invalidate(ctx context.Context) error {
	epoch, bumpErr := r.epochs.Bump(ctx, r.key)
	delErr := r.store.Del(ctx, r.key)
	r.log.Debug("topology: invalidated", log.Fields{"key": r.key, "epoch": epoch})
	if err := errors.Join(bumpErr, delErr); err != nil {
		return fmt.Errorf("topology: invalidate: %w", err)
	}
	return nil
}

// Close releases the epoch store when the resolver created it.
func (r *Resolver) Close(ctx context.Context) error {
	if r.ownEpochs {
		return r.epochs.Close(ctx)
	}
	return nil
}

func (r *Resolver) discover(ctx context.Context) (Topology, error) {
	start := time.Now()
	epoch, err := r.epochs.Snapshot(ctx, r.key)
	if err != nil {
		// Still usable; the snapshot just won't be cached.
		r.log.Warn("topology: epoch snapshot failed", log.Fields{"err": err})
	}

	text, qerr := r.querier.ClusterNodes(ctx)
	if qerr != nil {
		return Topology{}, r.unavailable(fmt.Errorf("%w: %w", ErrUnavailable, qerr))
	}
	if strings.TrimSpace(text) == "" {
		return Topology{}, r.unavailable(fmt.Errorf("%w: empty CLUSTER NODES reply", ErrUnavailable))
	}

	t, lineErrs := Parse(text)
	for _, le := range lineErrs {
		r.log.Debug("topology: skipped line", log.Fields{"err": le})
	}
	if t.Empty() {
		return Topology{}, r.unavailable(fmt.Errorf("%w: no master owns a slot (%d lines skipped)",
			ErrUnavailable, len(lineErrs)))
	}

	took := time.Since(start)
	r.hooks.TopologyRefreshed(len(t.Nodes), took)
	r.log.Info("topology: refreshed", log.Fields{
		"ranges":  len(t.Nodes),
		"masters": len(t.Masters()),
		"covered": t.Covered(),
		"took":    took,
	})

	if err == nil {
		r.save(ctx, epoch, t)
	}
	return t, nil
}

func (r *Resolver) save(ctx context.Context, epoch uint64, t Topology) {
	payload, err := r.codec.Encode(t)
	if err != nil {
		r.cacheWriteFailed(err)
		return
	}
	ok, err := r.store.Set(ctx, r.key, wire.EncodeSingle(epoch, payload), r.ttl)
	if err != nil {
		r.cacheWriteFailed(err)
		return
	}
	if !ok {
		// the provider reports its own failures; file and ristretto decline rather than error
		r.log.Debug("topology: store declined snapshot", log.Fields{"key": r.key})
	}
}

func (r *Resolver) cacheWriteFailed(err error) {
	r.log.Warn("topology: snapshot not cached", log.Fields{"key": r.key, "err": err})
	r.hooks.CacheWriteFailed(r.key, err)
}

func (r *Resolver) unavailable(err error) error {
	r.log.Warn("topology: discovery failed", log.Fields{"err": err})
	r.hooks.TopologyUnavailable(err)
	return err
}

func (r *Resolver) selfHeal(ctx context.Context, reason string) {
	_ = r.store.Del(ctx, r.key)
	r.hooks.TopologySelfHeal(reason)
	r.log.Debug("topology: dropped cached snapshot", log.Fields{"reason": reason})
}
