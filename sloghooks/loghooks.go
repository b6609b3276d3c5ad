package sloghooks

import (
	"crypto/sha256"
	"encoding/hex"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/unkn0wn-root/slotkv/hooks"
)

type Options struct {
	// Sampling to avoid floods; 0/1 = log all.
	SweepEvery       uint64
	ApproximateEvery uint64
	// Optional key redactor. Defaults to SHA-256 prefix.
	Redact func(string) string
}

type Hooks struct {
	l    *slog.Logger
	opts Options

	sweepCtr       atomic.Uint64
	approximateCtr atomic.Uint64
}

var _ hooks.Hooks = (*Hooks)(nil)

func New(l *slog.Logger, opts Options) *Hooks {
	return &Hooks{l: l, opts: opts}
}

func (h *Hooks) redact(k string) string {
	if h.opts.Redact != nil {
		return h.opts.Redact(k)
	}
	sum := sha256.Sum256([]byte(k))
	return hex.EncodeToString(sum[:8])
}

func sample(n uint64, ctr *atomic.Uint64) bool {
	if n == 0 || n == 1 {
		return true
	}
	return ctr.Add(1)%n == 0
}

func (h *Hooks) TopologyRefreshed(nodes int, took time.Duration) {
	if h.l == nil {
		return
	}
	h.l.Info("slotkv.topology_refreshed",
		"nodes", nodes,
		"took", took)
}

func (h *Hooks) TopologyUnavailable(err error) {
	if h.l == nil {
		return
	}
	h.l.Warn("slotkv.topology_unavailable", "err", err)
}

func (h *Hooks) TopologySelfHeal(reason string) {
	if h.l == nil {
		return
	}
	h.l.Debug("slotkv.topology_self_heal", "reason", reason)
}

func (h *Hooks) CacheWriteFailed(key string, err error) {
	if h.l == nil {
		return
	}
	h.l.Warn("slotkv.cache_write_failed",
		"key", h.redact(key),
		"err", err)
}

func (h *Hooks) SweepCompleted(removed int, err error) {
	if h.l == nil || !sample(h.opts.SweepEvery, &h.sweepCtr) {
		return
	}
	if err != nil {
		h.l.Warn("slotkv.sweep_completed", "removed", removed, "err", err)
		return
	}
	h.l.Debug("slotkv.sweep_completed", "removed", removed)
}

func (h *Hooks) ApproximateRoute(slot, index int) {
	if h.l == nil || !sample(h.opts.ApproximateEvery, &h.approximateCtr) {
		return
	}
	h.l.Debug("slotkv.approximate_route",
		"slot", slot,
		"index", index)
}

func (h *Hooks) NodeDialFailed(addr string, err error) {
	if h.l == nil {
		return
	}
	h.l.Error("slotkv.node_dial_failed",
		"addr", addr,
		"err", err)
}
