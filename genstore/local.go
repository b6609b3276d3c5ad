package genstore

import (
	"context"
	"sync"
	"time"
)

type localEntry struct {
	gen    uint64
	bumped time.Time
}

// LocalGenStore keeps generations in process memory. Invalidations are visible
// only to resolvers sharing the same instance; the zero value is not usable.
type LocalGenStore struct {
	mu   sync.RWMutex
	gens map[string]localEntry

	stop     chan struct{}
	wg       sync.WaitGroup
	stopOnce sync.Once
}

var _ GenStore = (*LocalGenStore)(nil)

// NewLocalGenStore returns an in-process store. When cleanupInterval and retention
// are both positive, a goroutine prunes keys not bumped within retention until Close.
func NewLocalGenStore(cleanupInterval, retention time.Duration) *LocalGenStore {
	s := &LocalGenStore{gens: make(map[string]localEntry)}
	if cleanupInterval <= 0 || retention <= 0 {
		return s
	}
	s.stop = make(chan struct{})
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		t := time.NewTicker(cleanupInterval)
		defer t.Stop()
		for {
			select {
			case <-t.C:
				s.Cleanup(retention)
			case <-s.stop:
				return
			}
		}
	}()
	return s
}

func (s *LocalGenStore) Snapshot(_ context.Context, k string) (uint64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.gens[k].gen, nil
}

func (s *LocalGenStore) SnapshotMany(_ context.Context, ks []string) (map[string]uint64, error) {
	out := make(map[string]uint64, len(ks))
	s.mu.RLock()
	for _, k := range ks {
		out[k] = s.gens[k].gen
	}
	s.mu.RUnlock()
	return out, nil
}

func (s *LocalGenStore) Bump(_ context.Context, k string) (uint64, error) {
	s.mu.Lock()
	e := s.gens[k]
	e.gen++
	e.bumped = time.Now()
	s.gens[k] = e
	s.mu.Unlock()
	return e.gen, nil
}

// Cleanup forgets keys whose last bump is older than retention.
func (s *LocalGenStore) Cleanup(retention time.Duration) {
	if retention <= 0 {
		return
	}
	cutoff := time.Now().Add(-retention)
	s.mu.Lock()
	for k, e := range s.gens {
		if e.bumped.Before(cutoff) {
			delete(s.gens, k)
		}
	}
	s.mu.Unlock()
}

func (s *LocalGenStore) Close(context.Context) error {
	s.stopOnce.Do(func() {
		if s.stop != nil {
			close(s.stop)
			s.wg.Wait()
		}
	})
	return nil
}
