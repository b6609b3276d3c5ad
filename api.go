package slotkv

import (
	"context"
	"time"

	"github.com/unkn0wn-root/slotkv/codec"
	"github.com/unkn0wn-root/slotkv/filecache"
	gen "github.com/unkn0wn-root/slotkv/genstore"
	"github.com/unkn0wn-root/slotkv/pipeline"
	pr "github.com/unkn0wn-root/slotkv/provider"
	"github.com/unkn0wn-root/slotkv/store"
	"github.com/unkn0wn-root/slotkv/topology"
)

// Client routes commands to the server that owns each key. Safe for concurrent use.
type Client interface {
	Get(ctx context.Context, key string) (string, bool, error)
	// Set stores value; ttl <= 0 means no expiry.
	Set(ctx context.Context, key string, value any, ttl time.Duration) (bool, error)
	HGet(ctx context.Context, key, field string) (string, bool, error)
	HSet(ctx context.Context, key, field string, value any) (int64, error)
	// Push appends to the tail when right is true, otherwise prepends.
	Push(ctx context.Context, key string, value any, right bool) (int64, error)
	// Pop takes from the head when left is true, otherwise from the tail.
	Pop(ctx context.Context, key string, left bool) (string, bool, error)
	Publish(ctx context.Context, channel string, msg any) (int64, error)
	// Keys matches pattern on every master and merges the results.
	Keys(ctx context.Context, pattern string) ([]string, error)
	// Do sends a raw command to the node owning key. args are sent verbatim and
	// key is only used for routing, without KeyPrefix. An empty key targets the
	// seed server.
	Do(ctx context.Context, key string, args ...any) (any, error)

	// Pipeline starts a batch. Results come back from Exec in issue order.
	Pipeline() Pipeline

	// NodeFor returns the address that commands for key are sent to.
	NodeFor(ctx context.Context, key string) (string, error)
	// Topology returns the snapshot in use; ok=false in single-node mode or
	// before any topology was resolved.
	Topology() (t topology.Topology, ok bool)
	// RefreshTopology drops the cached topology and asks the cluster again.
	// On failure the previous snapshot stays in use.
	RefreshTopology(ctx context.Context) (topology.Topology, error)
	Clustered() bool

	Close(ctx context.Context) error
}

// Pipeline batches commands. Commands report nothing; every outcome is
// returned by Exec. A Pipeline belongs to one goroutine.
type Pipeline interface {
	// Begin clears the batch. Client.Pipeline returns a pipeline already begun;
	// call Begin to reuse it after Exec.
	Begin()
	Get(ctx context.Context, key string)
	Set(ctx context.Context, key string, value any, ttl time.Duration)
	HGet(ctx context.Context, key, field string)
	HSet(ctx context.Context, key, field string, value any)
	Push(ctx context.Context, key string, value any, right bool)
	Pop(ctx context.Context, key string, left bool)
	Publish(ctx context.Context, channel string, msg any)
	Keys(ctx context.Context, pattern string)
	Do(ctx context.Context, key string, args ...any)
	Len() int
	// Exec returns one Result per command and ends the batch. Misses have a
	// nil Val. Exec on an idle pipeline returns no results.
	Exec(ctx context.Context) ([]pipeline.Result, error)
}

// RouteMode selects how cluster mode maps a slot to a node.
type RouteMode int

const (
	// RouteRanges looks the slot up in the advertised slot ranges.
	RouteRanges RouteMode = iota
	// RouteApproximate assumes slots are split evenly across nodes in listing
	// order. It misroutes on unevenly sharded clusters; use it only when the
	// advertised ranges cannot be trusted.
	RouteApproximate
)

func (m RouteMode) String() string {
	switch m {
	case RouteRanges:
		return "ranges"
	case RouteApproximate:
		return "approximate"
	default:
		return "unknown"
	}
}

// Options configure a Client. Only Masters is required.
type Options struct {
	Masters  []string      // host:port candidates, tried in order
	Cluster  bool          // route by slot; false => every key goes to the first reachable server
	Timeout  time.Duration // dial/read/write timeout; 0 => driver default
	Database int           // logical database; single-node mode only

	Dialer store.Dialer // nil => redisstore.Dialer

	// Cluster mode. All optional.
	TopologyStore pr.Provider                    // nil => file cache in CacheDir
	CacheDir      string                         // "" => DefaultCacheDir()
	FileCache     filecache.Options              // tuning for the default file cache; Dir is taken from CacheDir
	Namespace     string                         // "" => "default"
	Epochs        gen.GenStore                   // nil => in-process
	Codec         codec.Codec[topology.Topology] // nil => msgpack
	RouteMode     RouteMode
	HashTags      bool // hash only the {tag} part of keys that carry one

	KeyPrefix string // prepended to keys, hash names, list names and channels

	Logger Logger // nil => NopLogger
	Hooks  Hooks  // nil => NopHooks
}

func New(ctx context.Context, opts Options) (Client, error) {
	return newClient(ctx, opts)
}
