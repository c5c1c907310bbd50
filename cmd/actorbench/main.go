// Command actorbench 在 actor 运行时上跑压测场景，并暴露指标与健康检查。
package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"maps"
	"os"
	"os/signal"
	"slices"
	"syscall"
	"time"

	"github.com/pkg/errors"
	"github.com/spf13/pflag"
	"golang.org/x/sync/errgroup"

	"actorfw/actor"
	"actorfw/config"
)

func main() {
	if err := run(os.Args[1:], os.Stdout); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

// options 是命令行参数。
type options struct {
	configPath  string
	scenario    string
	threads     int
	actors      int
	messages    int
	rate        int64
	metricsAddr string
	healthAddr  string
	logLevel    string
	watch       bool
}

func parseFlags(args []string) (*options, *pflag.FlagSet, error) {
	var o options
	fs := pflag.NewFlagSet("actorbench", pflag.ContinueOnError)
	fs.StringVar(&o.configPath, "config", "", "path to a YAML config file")
	fs.StringVar(&o.scenario, "scenario", "", "pingpong, fanout, ring or soak")
	fs.IntVar(&o.threads, "threads", 0, "worker threads")
	fs.IntVar(&o.actors, "actors", 0, "actors taking part in the scenario")
	fs.IntVar(&o.messages, "messages", 0, "messages per run")
	fs.Int64Var(&o.rate, "rate", 0, "soak injection rate per second, 0 means unlimited")
	fs.StringVar(&o.metricsAddr, "metrics-addr", "", "serve Prometheus metrics on this address")
	fs.StringVar(&o.healthAddr, "health-addr", "", "serve gRPC health checks on this address")
	fs.StringVar(&o.logLevel, "log-level", "", "debug, info, warn or error")
	fs.BoolVar(&o.watch, "watch", false, "reload log level and soak rate when the config file changes")
	if err := fs.Parse(args); err != nil {
		return nil, nil, err
	}
	if fs.NArg() > 0 {
		return nil, nil, errors.Errorf("unexpected argument: %s", fs.Arg(0))
	}
	return &o, fs, nil
}

// loadConfig 读取配置文件，再用显式给出的参数覆盖。
func loadConfig(o *options, fs *pflag.FlagSet) (*config.Config, error) {
	cfg := config.Default()
	if o.configPath != "" {
		var err error
		if cfg, err = config.Load(o.configPath); err != nil {
			return nil, errors.Wrap(err, "load config")
		}
	}
	if fs.Changed("scenario") {
		cfg.Bench.Scenario = o.scenario
	}
	if fs.Changed("threads") {
		cfg.Framework.Threads = o.threads
	}
	if fs.Changed("actors") {
		cfg.Bench.Actors = o.actors
	}
	if fs.Changed("messages") {
		cfg.Bench.Messages = o.messages
	}
	if fs.Changed("rate") {
		cfg.Bench.Rate = o.rate
	}
	if fs.Changed("metrics-addr") {
		cfg.Framework.MetricsAddr = o.metricsAddr
	}
	if fs.Changed("health-addr") {
		cfg.Framework.HealthAddr = o.healthAddr
	}
	if fs.Changed("log-level") {
		cfg.Log.Level = o.logLevel
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if o.watch && o.configPath == "" {
		return nil, errors.New("--watch requires --config")
	}
	return cfg, nil
}

func newLogger(cfg config.LogConfig, level *slog.LevelVar) *slog.Logger {
	l, _ := config.ParseLevel(cfg.Level)
	level.Set(l)
	opts := &slog.HandlerOptions{Level: level}
	if cfg.Format == "json" {
		return slog.New(slog.NewJSONHandler(os.Stderr, opts))
	}
	return slog.New(slog.NewTextHandler(os.Stderr, opts))
}

func run(args []string, out io.Writer) error {
	o, fs, err := parseFlags(args)
	if err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return nil
		}
		return err
	}
	cfg, err := loadConfig(o, fs)
	if err != nil {
		return err
	}

	var level slog.LevelVar
	log := newLogger(cfg.Log, &level)

	fw := actor.NewFramework(cfg.FrameworkOptions(log))
	var hs *healthServer
	defer func() {
		hs.markDown()
		hs.stop()
	}()
	if addr := cfg.Framework.MetricsAddr; addr != "" {
		if err := fw.EnableMetrics(addr); err != nil {
			_ = fw.Close()
			return err
		}
	}
	if addr := cfg.Framework.HealthAddr; addr != "" {
		if hs, err = startHealth(addr, log); err != nil {
			_ = fw.Close()
			return err
		}
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	b := newBench(fw, cfg.Bench, log)
	var (
		handled uint64
		elapsed time.Duration
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		defer cancel()
		var err error
		handled, elapsed, err = b.run(gctx, cfg.Bench.Scenario)
		return err
	})
	if o.watch {
		g.Go(func() error {
			return config.Watch(gctx, o.configPath, func(next *config.Config) {
				if l, err := config.ParseLevel(next.Log.Level); err == nil {
					level.Set(l)
				}
				b.rate.setRate(next.Bench.Rate)
				log.Info("config reloaded", "level", next.Log.Level, "rate", next.Bench.Rate)
			}, func(err error) {
				log.Warn("config reload failed", "err", err)
			})
		})
	}
	runErr := g.Wait()
	if errors.Is(runErr, context.Canceled) {
		runErr = nil
	}

	hs.markDown()
	snap := fw.Snapshot()
	if err := fw.Close(); err != nil {
		log.Warn("close framework", "err", err)
	}
	if runErr != nil {
		return errors.Wrap(runErr, cfg.Bench.Scenario)
	}
	printReport(out, cfg.Bench.Scenario, handled, elapsed, snap)
	return nil
}

// printReport 输出吞吐量和指标快照。
func printReport(w io.Writer, name string, handled uint64, elapsed time.Duration, s actor.Snapshot) {
	rate := 0.0
	if elapsed > 0 {
		rate = float64(handled) / elapsed.Seconds()
	}
	fmt.Fprintf(w, "scenario:    %s\n", name)
	fmt.Fprintf(w, "messages:    %d\n", handled)
	fmt.Fprintf(w, "elapsed:     %s\n", elapsed.Round(time.Microsecond))
	fmt.Fprintf(w, "throughput:  %.0f msg/s\n", rate)
	fmt.Fprintf(w, "latency:     %s mean over %d dispatches\n", s.MeanLatency, s.Processed)
	fmt.Fprintf(w, "pool:        freelist %d/%d  cache %d/%d (hit/miss)\n",
		s.Pool.FreeListHits, s.Pool.FreeListMisses, s.Pool.CacheHits, s.Pool.CacheMisses)
	fmt.Fprintf(w, "outstanding: %d blocks, %d entities\n", s.Outstanding, s.Entities)
	for _, k := range slices.Sorted(maps.Keys(s.Events)) {
		fmt.Fprintf(w, "  %-28s %d\n", k, s.Events[k])
	}
}
