// Package store describes the key-value server a client talks to. The
// interfaces are split by capability: every connection serves Commands, while
// cluster introspection and native batching are optional and discovered with
// a type assertion.
package store

import (
	"context"
	"time"

	"github.com/unkn0wn-root/slotkv/pipeline"
)

// Commands is the command set routed by key. Misses are reported as ok=false,
// never as an error.
type Commands interface {
	Get(ctx context.Context, key string) (string, bool, error)
	// Set stores value; ttl <= 0 means no expiry.
	Set(ctx context.Context, key string, value any, ttl time.Duration) (bool, error)
	HGet(ctx context.Context, key, field string) (string, bool, error)
	HSet(ctx context.Context, key, field string, value any) (int64, error)
	LPush(ctx context.Context, key string, values ...any) (int64, error)
	RPush(ctx context.Context, key string, values ...any) (int64, error)
	LPop(ctx context.Context, key string) (string, bool, error)
	RPop(ctx context.Context, key string) (string, bool, error)
	Publish(ctx context.Context, channel string, msg any) (int64, error)
	Keys(ctx context.Context, pattern string) ([]string, error)
	// Do sends a raw command. A nil reply is returned as (nil, nil).
	Do(ctx context.Context, args ...any) (any, error)
}

// Conn is one live connection to a single server.
type Conn interface {
	Commands
	Ping(ctx context.Context) error
	Close() error
}

// ClusterInspector is implemented by connections that can report cluster
// membership in CLUSTER NODES text form.
type ClusterInspector interface {
	ClusterNodes(ctx context.Context) (string, error)
}

// Batcher is implemented by connections with a native pipeline. Commands
// issued on the Commands passed to fn are queued and return zero values; their
// outcomes come back from Pipeline in issue order.
type Batcher interface {
	Pipeline(ctx context.Context, fn func(Commands) error) ([]pipeline.Result, error)
}

type DialOptions struct {
	Timeout time.Duration // 0 leaves the driver default
	DB      int
}

// Dialer opens connections. Dial must return a connection that has already
// answered a ping, or an error.
type Dialer interface {
	Dial(ctx context.Context, addr string, opts DialOptions) (Conn, error)
}

// DialerFunc adapts a function to Dialer.
type DialerFunc func(ctx context.Context, addr string, opts DialOptions) (Conn, error)

func (f DialerFunc) Dial(ctx context.Context, addr string, opts DialOptions) (Conn, error) {
	return f(ctx, addr, opts)
}
