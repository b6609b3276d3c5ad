// Package config loads client settings from YAML.
//
//	masters: ["10.0.0.1:6379", "10.0.0.2:6379"]
//	cluster: true
//	timeout_seconds: 2.5
//	namespace: orders
//	route_mode: ranges
//	cache:
//	  dir: /var/cache/slotkv
//	  directory_level: 2
//	  sweep_interval: 10m
//	topology_store:
//	  backend: file # ristretto, bigcache or redis
//	  codec: cbor   # msgpack (default), json or protobuf
//	log:
//	  level: info
//	  format: json
package config

import (
	"fmt"
	"math"
	"os"
	"time"

	"github.com/goccy/go-yaml"

	"github.com/unkn0wn-root/slotkv"
	"github.com/unkn0wn-root/slotkv/topology"
)

type Config struct {
	Masters        []string `yaml:"masters"`
	Cluster        bool     `yaml:"cluster"`
	TimeoutSeconds float64  `yaml:"timeout_seconds"`
	Database       int      `yaml:"database"`
	Namespace      string   `yaml:"namespace"`
	KeyPrefix      string   `yaml:"key_prefix"`
	RouteMode      string   `yaml:"route_mode"` // "ranges" (default) or "approximate"
	HashTags       bool     `yaml:"hash_tags"`

	Cache CacheConfig `yaml:"cache"`
	Store StoreConfig `yaml:"topology_store"`
	Log   LogConfig   `yaml:"log"`
}

// CacheConfig tunes the topology file cache.
type CacheConfig struct {
	Dir            string        `yaml:"dir"`
	DirectoryLevel int           `yaml:"directory_level"`
	GCProbability  float64       `yaml:"gc_probability"`
	RawKeys        bool          `yaml:"raw_keys"`
	SweepInterval  time.Duration `yaml:"sweep_interval"`
}

type LogConfig struct {
	Level  string `yaml:"level"`  // debug, info, warn, error
	Format string `yaml:"format"` // console or json
}

// Default returns a single-node config for a local server.
func Default() Config {
	return Config{
		Masters:        []string{"127.0.0.1:6379"},
		TimeoutSeconds: 5,
		RouteMode:      "ranges",
		Cache:          CacheConfig{DirectoryLevel: 1},
		Log:            LogConfig{Level: "info", Format: "console"},
	}
}

// Load reads and validates a YAML file. Fields missing from the file keep
// their Default values.
func Load(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("config: %w", err)
	}
	return Parse(data)
}

// Parse decodes YAML on top of Default and validates the result. Unknown
// fields are rejected.
func Parse(data []byte) (Config, error) {
	cfg := Default()
	if err := yaml.UnmarshalWithOptions(data, &cfg, yaml.Strict()); err != nil {
		return Config{}, fmt.Errorf("config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks values that YAML types alone cannot. Errors are
// *slotkv.ConfigError with Field set to the YAML key.
func (c Config) Validate() error {
	if len(c.Masters) == 0 {
		return &slotkv.ConfigError{Field: "masters", Reason: "at least one address is required"}
	}
	if c.TimeoutSeconds < 0 || math.IsNaN(c.TimeoutSeconds) || math.IsInf(c.TimeoutSeconds, 0) {
		return &slotkv.ConfigError{Field: "timeout_seconds", Reason: "must be a finite, non-negative number"}
	}
	if c.Database < 0 {
		return &slotkv.ConfigError{Field: "database", Reason: "must not be negative"}
	}
	if _, err := parseRouteMode(c.RouteMode); err != nil {
		return err
	}
	if c.Cache.DirectoryLevel < 0 {
		return &slotkv.ConfigError{Field: "cache.directory_level", Reason: "must not be negative"}
	}
	if c.Cache.GCProbability < 0 || c.Cache.GCProbability > 1 {
		return &slotkv.ConfigError{Field: "cache.gc_probability", Reason: "must be within [0,1]"}
	}
	if c.Cache.SweepInterval < 0 {
		return &slotkv.ConfigError{Field: "cache.sweep_interval", Reason: "must not be negative"}
	}
	if err := c.Store.validate(); err != nil {
		return err
	}
	switch c.Log.Level {
	case "", "debug", "info", "warn", "error":
	default:
		return &slotkv.ConfigError{Field: "log.level", Reason: fmt.Sprintf("unknown level %q", c.Log.Level)}
	}
	switch c.Log.Format {
	case "", "console", "json":
	default:
		return &slotkv.ConfigError{Field: "log.format", Reason: fmt.Sprintf("unknown format %q", c.Log.Format)}
	}
	return nil
}

// Timeout converts TimeoutSeconds.
func (c Config) Timeout() time.Duration {
	return time.Duration(c.TimeoutSeconds * float64(time.Second))
}

// ToOptions maps the config onto client options. Dialer, logger and hooks are
// left for the caller; topology store backends come from OpenTopologyStore.
func (c Config) ToOptions() (slotkv.Options, error) {
	if err := c.Validate(); err != nil {
		return slotkv.Options{}, err
	}
	mode, _ := parseRouteMode(c.RouteMode)
	cd, err := topology.NewCodec(c.Store.Codec, c.Store.MaxBytes)
	if err != nil {
		return slotkv.Options{}, err
	}
	o := slotkv.Options{
		Masters:   append([]string(nil), c.Masters...),
		Cluster:   c.Cluster,
		Timeout:   c.Timeout(),
		Database:  c.Database,
		Namespace: c.Namespace,
		KeyPrefix: c.KeyPrefix,
		RouteMode: mode,
		HashTags:  c.HashTags,
		CacheDir:  c.Cache.Dir,
		Codec:     cd,
	}
	o.FileCache.DirectoryLevel = c.Cache.DirectoryLevel
	o.FileCache.GCProbability = c.Cache.GCProbability
	o.FileCache.RawKeys = c.Cache.RawKeys
	o.FileCache.SweepInterval = c.Cache.SweepInterval
	return o, nil
}

func parseRouteMode(s string) (slotkv.RouteMode, error) {
	switch s {
	case "", "ranges":
		return slotkv.RouteRanges, nil
	case "approximate":
		return slotkv.RouteApproximate, nil
	default:
		return 0, &slotkv.ConfigError{Field: "route_mode", Reason: fmt.Sprintf("unknown mode %q", s)}
	}
}
