// usage:
//
//	raw := sloghooks.New(slog.Default(), sloghooks.Options{SweepEvery: 10})
//	h := asynchook.New(raw, 1, 1000) // 1 worker; queue 1000 events
//	defer h.Close()
//
//	client, _ := slotkv.New(ctx, slotkv.Options{
//	    Masters: []string{"10.0.0.1:7000"},
//	    Cluster: true,
//	    Hooks:   h,
//	})
package asynchook

import (
	"sync"
	"time"

	"github.com/unkn0wn-root/slotkv/hooks"
)

// Hooks moves event delivery off the calling goroutine. Events are dropped
// when the queue is full.
type Hooks struct {
	inner hooks.Hooks
	q     chan func()
	wg    sync.WaitGroup
	once  sync.Once
}

var _ hooks.Hooks = (*Hooks)(nil)

func New(inner hooks.Hooks, workers, qlen int) *Hooks {
	if workers <= 0 {
		workers = 1
	}
	if qlen <= 0 {
		qlen = 1024
	}

	h := &Hooks{inner: hooks.OrNop(inner), q: make(chan func(), qlen)}
	h.wg.Add(workers)
	for i := 0; i < workers; i++ {
		go func() {
			defer h.wg.Done()
			for f := range h.q {
				f()
			}
		}()
	}
	return h
}

// Close drains queued events and stops the workers. Events sent after Close panic.
func (h *Hooks) Close() {
	h.once.Do(func() {
		close(h.q)
		h.wg.Wait()
	})
}

func (h *Hooks) try(f func()) {
	select {
	case h.q <- f:
	default: // drop
	}
}

func (h *Hooks) TopologyUnavailable(err error)  { h.try(func() { h.inner.TopologyUnavailable(err) }) }
func (h *Hooks) TopologySelfHeal(reason string) { h.try(func() { h.inner.TopologySelfHeal(reason) }) }
func (h *Hooks) ApproximateRoute(slot, idx int) {
	h.try(func() { h.inner.ApproximateRoute(slot, idx) })
}
func (h *Hooks) TopologyRefreshed(n int, took time.Duration) {
	h.try(func() { h.inner.TopologyRefreshed(n, took) })
}
func (h *Hooks) CacheWriteFailed(key string, err error) {
	h.try(func() { h.inner.CacheWriteFailed(key, err) })
}
func (h *Hooks) SweepCompleted(removed int, err error) {
	h.try(func() { h.inner.SweepCompleted(removed, err) })
}
func (h *Hooks) NodeDialFailed(addr string, err error) {
	h.try(func() { h.inner.NodeDialFailed(addr, err) })
}
