package file

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/unkn0wn-root/slotkv/filecache"
	pr "github.com/unkn0wn-root/slotkv/provider"
)

// Provider stores entries in a filecache.Cache. Write failures surface as
// ok=false; the cache already logged and reported them.
type Provider struct {
	c          *filecache.Cache
	closeCache bool
}

var _ pr.Provider = (*Provider)(nil)

// ErrDeleteFailed means the entry could not be removed; the cache logged why.
var ErrDeleteFailed = errors.New("file provider: delete failed")

// New wraps c. When owned is true, Close also stops the cache's sweeper.
func New(c *filecache.Cache, owned bool) *Provider {
	return &Provider{c: c, closeCache: owned}
}

// Open creates a file cache with opts and returns a provider that owns it.
func Open(opts filecache.Options) (*Provider, error) {
	c, err := filecache.New(opts)
	if err != nil {
		return nil, err
	}
	return New(c, true), nil
}

// Cache exposes the underlying file cache (e.g. for an explicit Sweep).
func (p *Provider) Cache() *filecache.Cache { return p.c }

func (p *Provider) Get(_ context.Context, key string) ([]byte, bool, error) {
	b, ok := p.c.Get(key)
	return b, ok, nil
}

func (p *Provider) Set(_ context.Context, key string, value []byte, ttl time.Duration) (bool, error) {
	return p.c.Set(key, value, ttl), nil
}

func (p *Provider) Del(_ context.Context, key string) error {
	if !p.c.Delete(key) {
		return fmt.Errorf("%w: key %q", ErrDeleteFailed, key)
	}
	return nil
}

func (p *Provider) Close(context.Context) error {
	if p.closeCache {
		return p.c.Close()
	}
	return nil
}
