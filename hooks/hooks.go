// Package hooks defines lightweight callbacks for high-signal slotkv events.
package hooks

import "time"

// Hooks receives events from the file cache, the topology resolver and the client.
// Implementations MUST be cheap and non-blocking; they are called inline.
type Hooks interface {
	// A topology was fetched from the cluster and parsed.
	TopologyRefreshed(nodes int, took time.Duration)

	// Topology discovery failed; the previous snapshot (if any) stays in use.
	TopologyUnavailable(err error)

	// A cached topology entry was dropped on read.
	// reason ∈ {"corrupt", "epoch_mismatch", "decode"}
	TopologySelfHeal(reason string)

	// A local cache write failed. The primary path continues uncached.
	CacheWriteFailed(key string, err error)

	// A sweep over the file cache finished.
	SweepCompleted(removed int, err error)

	// A key was routed with the even-partition approximation instead of slot ranges.
	ApproximateRoute(slot, index int)

	// Connecting to a node address failed.
	NodeDialFailed(addr string, err error)
}

// Nop is the default no-op.
type Nop struct{}

func (Nop) TopologyRefreshed(int, time.Duration) {}
func (Nop) TopologyUnavailable(error)            {}
func (Nop) TopologySelfHeal(string)              {}
func (Nop) CacheWriteFailed(string, error)       {}
func (Nop) SweepCompleted(int, error)            {}
func (Nop) ApproximateRoute(int, int)            {}
func (Nop) NodeDialFailed(string, error)         {}

// OrNop returns h, or Nop when h is nil.
func OrNop(h Hooks) Hooks {
	if h == nil {
		return Nop{}
	}
	return h
}

// Multi fans every event out to each hook in order.
type Multi []Hooks

var _ Hooks = Multi(nil)

func (m Multi) TopologyRefreshed(n int, took time.Duration) {
	for _, h := range m {
		h.TopologyRefreshed(n, took)
	}
}

func (m Multi) TopologyUnavailable(err error) {
	for _, h := range m {
		h.TopologyUnavailable(err)
	}
}

func (m Multi) TopologySelfHeal(reason string) {
	for _, h := range m {
		h.TopologySelfHeal(reason)
	}
}

func (m Multi) CacheWriteFailed(key string, err error) {
	for _, h := range m {
		h.CacheWriteFailed(key, err)
	}
}

func (m Multi) SweepCompleted(removed int, err error) {
	for _, h := range m {
		h.SweepCompleted(removed, err)
	}
}

func (m Multi) ApproximateRoute(slot, index int) {
	for _, h := range m {
		h.ApproximateRoute(slot, index)
	}
}

func (m Multi) NodeDialFailed(addr string, err error) {
	for _, h := range m {
		h.NodeDialFailed(addr, err)
	}
}
