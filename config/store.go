package config

import (
	"context"
	"errors"
	"fmt"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/unkn0wn-root/slotkv"
	gen "github.com/unkn0wn-root/slotkv/genstore"
	pr "github.com/unkn0wn-root/slotkv/provider"
	bcp "github.com/unkn0wn-root/slotkv/provider/bigcache"
	rdp "github.com/unkn0wn-root/slotkv/provider/redis"
	rtp "github.com/unkn0wn-root/slotkv/provider/ristretto"
	"github.com/unkn0wn-root/slotkv/topology"
)

// Topology store backends.
const (
	BackendFile      = "file"
	BackendRistretto = "ristretto"
	BackendBigcache  = "bigcache"
	BackendRedis     = "redis"
)

// StoreConfig selects where the topology snapshot is cached. The file backend
// (default) is built by the client itself from CacheConfig. The in-memory
// backends live only as long as the process. The redis backend shares the
// snapshot and its epoch between hosts, so one host's refresh invalidates
// everyone's copy.
type StoreConfig struct {
	Backend     string        `yaml:"backend"`
	RedisAddr   string        `yaml:"redis_addr"`
	RedisDB     int           `yaml:"redis_db"`
	RedisPrefix string        `yaml:"redis_prefix"` // "" => "slotkv:"
	EpochTTL    time.Duration `yaml:"epoch_ttl"`    // redis only; 0 keeps epochs forever
	Codec       string        `yaml:"codec"`        // msgpack (default), cbor, json or protobuf
	MaxBytes    int           `yaml:"max_snapshot_bytes"`
}

func (s StoreConfig) validate() error {
	if _, err := topology.NewCodec(s.Codec, 0); err != nil {
		return &slotkv.ConfigError{Field: "topology_store.codec", Reason: fmt.Sprintf("unknown codec %q", s.Codec)}
	}
	if s.MaxBytes < 0 {
		return &slotkv.ConfigError{Field: "topology_store.max_snapshot_bytes", Reason: "must not be negative"}
	}
	switch s.Backend {
	case "", BackendFile, BackendRistretto, BackendBigcache:
		return nil
	case BackendRedis:
		if s.RedisAddr == "" {
			return &slotkv.ConfigError{Field: "topology_store.redis_addr", Reason: "required for the redis backend"}
		}
		if s.RedisDB < 0 {
			return &slotkv.ConfigError{Field: "topology_store.redis_db", Reason: "must not be negative"}
		}
		if s.EpochTTL < 0 {
			return &slotkv.ConfigError{Field: "topology_store.epoch_ttl", Reason: "must not be negative"}
		}
		return nil
	default:
		return &slotkv.ConfigError{Field: "topology_store.backend", Reason: fmt.Sprintf("unknown backend %q", s.Backend)}
	}
}

// TopologyStore holds the backends opened from a StoreConfig. The caller owns
// them: the client never closes stores it did not create.
type TopologyStore struct {
	Provider pr.Provider  // nil => client default (file cache)
	Epochs   gen.GenStore // nil => in-process
}

// Apply sets the opened backends on o.
func (s *TopologyStore) Apply(o *slotkv.Options) {
	if s.Provider != nil {
		o.TopologyStore = s.Provider
	}
	if s.Epochs != nil {
		o.Epochs = s.Epochs
	}
}

// Close releases the epoch store before the provider, which may own the
// shared redis client.
func (s *TopologyStore) Close(ctx context.Context) error {
	var errs []error
	if s.Epochs != nil {
		errs = append(errs, s.Epochs.Close(ctx))
	}
	if s.Provider != nil {
		errs = append(errs, s.Provider.Close(ctx))
	}
	return errors.Join(errs...)
}

// OpenTopologyStore opens the configured backend. For the redis backend the
// connection is checked with a ping.
func (c Config) OpenTopologyStore(ctx context.Context) (*TopologyStore, error) {
	if err := c.Store.validate(); err != nil {
		return nil, err
	}
	switch c.Store.Backend {
	case "", BackendFile:
		return &TopologyStore{}, nil

	case BackendRistretto:
		p, err := rtp.New(rtp.DefaultConfig())
		if err != nil {
			return nil, fmt.Errorf("config: ristretto store: %w", err)
		}
		return &TopologyStore{Provider: p}, nil

	case BackendBigcache:
		// bigcache has a single life window; snapshots are refreshed well within it
		p, err := bcp.New(ctx, bcp.Config{LifeWindow: 24 * time.Hour, MaxEntrySize: 64 << 10})
		if err != nil {
			return nil, fmt.Errorf("config: bigcache store: %w", err)
		}
		return &TopologyStore{Provider: p}, nil

	default: // redis
		rdb := goredis.NewClient(&goredis.Options{
			Addr:        c.Store.RedisAddr,
			DB:          c.Store.RedisDB,
			DialTimeout: c.Timeout(),
			ReadTimeout: c.Timeout(),
		})
		if err := rdb.Ping(ctx).Err(); err != nil {
			_ = rdb.Close()
			return nil, fmt.Errorf("config: redis store %s: %w", c.Store.RedisAddr, err)
		}
		p, err := rdp.New(rdp.Config{Client: rdb, Prefix: c.Store.RedisPrefix, CloseClient: true})
		if err != nil {
			_ = rdb.Close()
			return nil, err
		}
		ns := c.Namespace
		if ns == "" {
			ns = "default"
		}
		epochs := gen.NewRedisGenStore(gen.RedisConfig{Client: rdb, Namespace: ns, TTL: c.Store.EpochTTL})
		return &TopologyStore{Provider: p, Epochs: epochs}, nil
	}
}
