// Command slotkv inspects slot routing and the cached cluster topology.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"sort"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/unkn0wn-root/slotkv"
	"github.com/unkn0wn-root/slotkv/codec"
	"github.com/unkn0wn-root/slotkv/config"
	"github.com/unkn0wn-root/slotkv/filecache"
	"github.com/unkn0wn-root/slotkv/hooks"
	asynchook "github.com/unkn0wn-root/slotkv/hooks/async"
	promhooks "github.com/unkn0wn-root/slotkv/hooks/prometheus"
	kvzap "github.com/unkn0wn-root/slotkv/log/zap"
	"github.com/unkn0wn-root/slotkv/slot"
	"github.com/unkn0wn-root/slotkv/topology"
)

const usage = `Usage:
  slotkv [flags] slot KEY...        print the hash slot of each key
  slotkv [flags] route KEY...       print the node each key is sent to
  slotkv [flags] nodes              print the topology in use
  slotkv [flags] refresh            drop the cached topology and query the cluster
  slotkv [flags] get KEY            read a string value
  slotkv [flags] set KEY VALUE      write a string value (-ttl)
  slotkv [flags] sweep              remove expired topology cache files
`

type cli struct {
	cfg     config.Config
	log     *zap.Logger
	metrics *prometheus.Registry
	hooks   hooks.Hooks
	async   *asynchook.Hooks
	ttl     time.Duration
	out     io.Writer
}

func main() {
	var (
		cfgPath  = flag.String("config", "", "YAML config file")
		masters  = flag.String("masters", "", "comma separated host:port list (overrides config)")
		cluster  = flag.Bool("cluster", false, "cluster mode (overrides config when set)")
		approx   = flag.Bool("approximate", false, "route by even slot split instead of slot ranges")
		cacheDir = flag.String("cache-dir", "", "topology cache directory (overrides config)")
		backend  = flag.String("store", "", "topology store: file, ristretto, bigcache or redis (overrides config)")
		level    = flag.String("log-level", "", "debug, info, warn or error (overrides config)")
		ttl      = flag.Duration("ttl", 0, "TTL for set; 0 means no expiry")
		metrics  = flag.Bool("metrics", false, "print hook counters on exit")
	)
	flag.Usage = func() {
		fmt.Fprint(os.Stderr, usage)
		flag.PrintDefaults()
	}
	flag.Parse()
	if flag.NArg() < 1 {
		flag.Usage()
		os.Exit(2)
	}

	cfg := config.Default()
	if *cfgPath != "" {
		var err error
		if cfg, err = config.Load(*cfgPath); err != nil {
			fatal(err)
		}
	}
	if *masters != "" {
		cfg.Masters = strings.Split(*masters, ",")
	}
	flag.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "cluster":
			cfg.Cluster = *cluster
		case "approximate":
			if *approx {
				cfg.RouteMode = "approximate"
			}
		}
	})
	if *cacheDir != "" {
		cfg.Cache.Dir = *cacheDir
	}
	if *backend != "" {
		cfg.Store.Backend = *backend
	}
	if *level != "" {
		cfg.Log.Level = *level
	}
	if err := cfg.Validate(); err != nil {
		fatal(err)
	}

	logger, err := newLogger(cfg.Log)
	if err != nil {
		fatal(err)
	}
	defer func() { _ = logger.Sync() }()

	c := &cli{cfg: cfg, log: logger, ttl: *ttl, out: os.Stdout, hooks: hooks.Nop{}}
	if *metrics {
		c.metrics = prometheus.NewRegistry()
		c.async = asynchook.New(promhooks.New(c.metrics), 1, 256)
		c.hooks = c.async
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	err = c.run(ctx, flag.Arg(0), flag.Args()[1:])
	stop()

	if c.async != nil {
		c.async.Close()
		c.printMetrics()
	}
	if err != nil {
		logger.Error("command failed", zap.String("cmd", flag.Arg(0)), zap.Error(err))
		os.Exit(1)
	}
}

func fatal(err error) {
	fmt.Fprintln(os.Stderr, "Error:", err)
	os.Exit(1)
}

func newLogger(lc config.LogConfig) (*zap.Logger, error) {
	zc := zap.NewDevelopmentConfig()
	if lc.Format == "json" {
		zc = zap.NewProductionConfig()
	}
	if lc.Level != "" {
		lvl, err := zap.ParseAtomicLevel(lc.Level)
		if err != nil {
			return nil, err
		}
		zc.Level = lvl
	}
	return zc.Build()
}

func (c *cli) run(ctx context.Context, cmd string, args []string) error {
	switch cmd {
	case "slot":
		return c.slot(args)
	case "route":
		return c.withClient(ctx, func(cl slotkv.Client) error { return c.route(ctx, cl, args) })
	case "nodes":
		return c.withClient(ctx, func(cl slotkv.Client) error { return c.nodes(cl) })
	case "refresh":
		return c.withClient(ctx, func(cl slotkv.Client) error {
			if _, err := cl.RefreshTopology(ctx); err != nil {
				return err
			}
			return c.nodes(cl)
		})
	case "get":
		if len(args) != 1 {
			return errors.New("get requires KEY")
		}
		return c.withClient(ctx, func(cl slotkv.Client) error {
			v, ok, err := slotkv.NewTyped(cl, codec.String{}).Get(ctx, args[0])
			if err != nil {
				return err
			}
			if !ok {
				return fmt.Errorf("%q not found", args[0])
			}
			fmt.Fprintln(c.out, v)
			return nil
		})
	case "set":
		if len(args) != 2 {
			return errors.New("set requires KEY and VALUE")
		}
		return c.withClient(ctx, func(cl slotkv.Client) error {
			if _, err := slotkv.NewTyped(cl, codec.String{}).Set(ctx, args[0], args[1], c.ttl); err != nil {
				return err
			}
			fmt.Fprintln(c.out, "OK")
			return nil
		})
	case "sweep":
		return c.sweep()
	default:
		return fmt.Errorf("unknown command %q", cmd)
	}
}

func (c *cli) slot(keys []string) error {
	if len(keys) == 0 {
		return errors.New("slot requires at least one KEY")
	}
	tw := tabwriter.NewWriter(c.out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "KEY\tSLOT\tTAG SLOT")
	for _, k := range keys {
		fmt.Fprintf(tw, "%s\t%d\t%d\n", k, slot.SlotString(k), slot.SlotString(slot.HashTag(k)))
	}
	return tw.Flush()
}

func (c *cli) withClient(ctx context.Context, fn func(slotkv.Client) error) error {
	opts, err := c.cfg.ToOptions()
	if err != nil {
		return err
	}
	opts.Logger = kvzap.New(c.log, "slotkv")
	opts.Hooks = c.hooks

	ts, err := c.cfg.OpenTopologyStore(ctx)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := ts.Close(context.Background()); cerr != nil {
			c.log.Warn("close topology store failed", zap.Error(cerr))
		}
	}()
	ts.Apply(&opts)

	cl, err := slotkv.New(ctx, opts)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := cl.Close(context.Background()); cerr != nil {
			c.log.Warn("close failed", zap.Error(cerr))
		}
	}()
	return fn(cl)
}

func (c *cli) route(ctx context.Context, cl slotkv.Client, keys []string) error {
	if len(keys) == 0 {
		return errors.New("route requires at least one KEY")
	}
	tw := tabwriter.NewWriter(c.out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "KEY\tSLOT\tNODE")
	var errs []error
	for _, k := range keys {
		addr, err := cl.NodeFor(ctx, k)
		if err != nil {
			addr = "error: " + err.Error()
			errs = append(errs, err)
		}
		rk := c.cfg.KeyPrefix + k
		if c.cfg.HashTags {
			rk = slot.HashTag(rk)
		}
		fmt.Fprintf(tw, "%s\t%d\t%s\n", k, slot.SlotString(rk), addr)
	}
	if err := tw.Flush(); err != nil {
		return err
	}
	return errors.Join(errs...)
}

func (c *cli) nodes(cl slotkv.Client) error {
	t, ok := cl.Topology()
	if !ok {
		if !cl.Clustered() {
			return errors.New("not in cluster mode")
		}
		return slotkv.ErrTopologyUnavailable
	}
	printTopology(c.out, t)
	return nil
}

func printTopology(w io.Writer, t topology.Topology) {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tMASTER\tREPLICA\tSLOTS")
	for _, n := range t.Nodes {
		replica := n.ReplicaAddr
		if replica == "" {
			replica = "-"
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", n.ID, n.MasterAddr, replica, n.Slots)
	}
	fmt.Fprintf(tw, "\ncovered %d/%d slots\n", t.Covered(), slot.Count)
	_ = tw.Flush()
}

func (c *cli) sweep() error {
	dir := c.cfg.Cache.Dir
	if dir == "" {
		dir = slotkv.DefaultCacheDir()
	}
	fc, err := filecache.New(filecache.Options{
		Dir:            dir,
		DirectoryLevel: c.cfg.Cache.DirectoryLevel,
		RawKeys:        c.cfg.Cache.RawKeys,
		DisableGC:      true,
		Logger:         kvzap.New(c.log, "filecache"),
		Hooks:          c.hooks,
	})
	if err != nil {
		return err
	}
	defer fc.Close()
	removed, err := fc.Sweep()
	fmt.Fprintf(c.out, "removed %d expired files from %s\n", removed, dir)
	return err
}

func (c *cli) printMetrics() {
	mfs, err := c.metrics.Gather()
	if err != nil {
		c.log.Warn("gather metrics", zap.Error(err))
		return
	}
	sort.Slice(mfs, func(i, j int) bool { return mfs[i].GetName() < mfs[j].GetName() })
	for _, mf := range mfs {
		for _, m := range mf.GetMetric() {
			var labels []string
			for _, lp := range m.GetLabel() {
				labels = append(labels, lp.GetName()+"="+lp.GetValue())
			}
			var v float64
			switch {
			case m.GetCounter() != nil:
				v = m.GetCounter().GetValue()
			case m.GetGauge() != nil:
				v = m.GetGauge().GetValue()
			case m.GetHistogram() != nil:
				v = float64(m.GetHistogram().GetSampleCount())
			}
			fmt.Fprintf(os.Stderr, "%s{%s} %g\n", mf.GetName(), strings.Join(labels, ","), v)
		}
	}
}
