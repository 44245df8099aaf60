package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	redis "github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"golang.org/x/sync/errgroup"

	"github.com/mirkobrombin/go-shared/v1/lock"
	"github.com/mirkobrombin/go-shared/v1/metrics"
	"github.com/mirkobrombin/go-shared/v1/shared"
	"github.com/mirkobrombin/go-shared/v1/syncbus"
)

// journal is the second bundled resource; workers append to it under its
// own lock.
type journal struct {
	entries int
	last    time.Time
}

var rootCmd = &cobra.Command{
	Use:   "guard-bench",
	Short: "Measure contention on shared resources",
	Long: `guard-bench races goroutines over a bundle of two independently
locked resources and reports throughput and lock metrics.

Every flag can also be set through a GUARD_ environment variable,
e.g. GUARD_BACKEND=redis GUARD_REDIS_ADDR=localhost:6379.`,
	SilenceUsage: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		return run(cmd.Context(), loadConfig())
	},
}

type config struct {
	concurrency int
	iterations  int
	backend     string
	redisAddr   string
	hold        time.Duration
	try         bool
	logLevel    string
}

func init() {
	f := rootCmd.Flags()
	f.IntP("concurrency", "c", 8, "number of concurrent workers")
	f.IntP("iterations", "n", 10000, "acquisitions per worker")
	f.StringP("backend", "b", "mutex", "lock backend: mutex, semaphore, memory or redis")
	f.String("redis-addr", "localhost:6379", "redis address for the redis backend")
	f.Duration("hold", 0, "time spent inside each critical section")
	f.Bool("try", false, "use TryAcquire and count busy attempts")
	f.String("log-level", "info", "log level: debug, info, warn or error")

	viper.SetEnvPrefix("GUARD")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv()
	_ = viper.BindPFlags(f)
}

func loadConfig() config {
	return config{
		concurrency: viper.GetInt("concurrency"),
		iterations:  viper.GetInt("iterations"),
		backend:     viper.GetString("backend"),
		redisAddr:   viper.GetString("redis-addr"),
		hold:        viper.GetDuration("hold"),
		try:         viper.GetBool("try"),
		logLevel:    viper.GetString("log-level"),
	}
}

func main() {
	if err := rootCmd.ExecuteContext(context.Background()); err != nil {
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg config) error {
	var level slog.Level
	if err := level.UnmarshalText([]byte(cfg.logLevel)); err != nil {
		return fmt.Errorf("invalid log level %q: %w", cfg.logLevel, err)
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})))

	newLock, cleanup, err := backend(ctx, cfg)
	if err != nil {
		return err
	}
	defer cleanup()

	reg := metrics.NewRegistry()
	metrics.RegisterLockMetrics(reg)

	var (
		counter int
		jr      journal
	)
	bundle := shared.NewBundle(
		shared.New(newLock("bench:counter"), &counter, shared.WithName("counter")),
		shared.New(newLock("bench:journal"), &jr, shared.WithName("journal")),
	)

	slog.Info("starting benchmark", "backend", cfg.backend, "concurrency", cfg.concurrency, "iterations", cfg.iterations)

	start := time.Now()
	busy, err := race(ctx, cfg, bundle)
	if err != nil {
		return err
	}
	elapsed := time.Since(start)

	ops := cfg.concurrency * cfg.iterations
	slog.Info("finished", "elapsed", elapsed, "throughput", fmt.Sprintf("%.2f acq/s", float64(ops)/elapsed.Seconds()))
	slog.Info("results", "counter", counter, "journal_entries", jr.entries, "busy", busy)
	return report(reg)
}

// race runs the workers over bundle and returns the number of busy try
// attempts. The first acquisition error stops every worker.
func race(ctx context.Context, cfg config, bundle *shared.Bundle) (int64, error) {
	var busy atomic.Int64
	eg, ctx := errgroup.WithContext(ctx)
	for i := 0; i < cfg.concurrency; i++ {
		eg.Go(func() error {
			for j := 0; j < cfg.iterations; j++ {
				if cfg.try {
					g, ok := shared.TryAcquire[int](bundle)
					if !ok {
						busy.Add(1)
						continue
					}
					work(g, cfg.hold)
				} else {
					g, err := shared.AcquireContext[int](ctx, bundle)
					if err != nil {
						return fmt.Errorf("acquire counter: %w", err)
					}
					work(g, cfg.hold)
				}
				if j%16 == 0 {
					g, err := shared.AcquireContext[journal](ctx, bundle)
					if err != nil {
						return fmt.Errorf("acquire journal: %w", err)
					}
					g.Value().entries++
					g.Value().last = time.Now()
					g.Release()
				}
			}
			return nil
		})
	}
	err := eg.Wait()
	return busy.Load(), err
}

func work(g *shared.Guard[int], hold time.Duration) {
	defer g.Release()
	*g.Value()++
	if hold > 0 {
		time.Sleep(hold)
	}
}

// backend returns a constructor for locks of the configured kind.
func backend(ctx context.Context, cfg config) (func(key string) shared.Lock, func(), error) {
	noop := func() {}
	switch cfg.backend {
	case "mutex":
		return func(string) shared.Lock { return &sync.Mutex{} }, noop, nil
	case "semaphore":
		return func(key string) shared.Lock {
			return lock.NewInstrumented(key, lock.NewSemaphore())
		}, noop, nil
	case "memory":
		locker := lock.NewInMemory()
		return func(key string) shared.Lock { return lock.NewKeyed(locker, key) }, noop, nil
	case "redis":
		client := redis.NewClient(&redis.Options{Addr: cfg.redisAddr})
		if err := client.Ping(ctx).Err(); err != nil {
			_ = client.Close()
			return nil, nil, fmt.Errorf("connect redis %s: %w", cfg.redisAddr, err)
		}
		bus := syncbus.NewRedisBus(client, "")
		locker := lock.NewBreaker(lock.NewRedis(client, bus), 5, time.Second)
		cleanup := func() {
			_ = bus.Close()
			_ = client.Close()
		}
		return func(key string) shared.Lock { return lock.NewKeyed(locker, key) }, cleanup, nil
	default:
		return nil, nil, fmt.Errorf("unknown backend %q", cfg.backend)
	}
}

func report(g prometheus.Gatherer) error {
	mfs, err := g.Gather()
	if err != nil {
		return err
	}
	for _, mf := range mfs {
		for _, m := range mf.GetMetric() {
			var labels []string
			for _, lp := range m.GetLabel() {
				labels = append(labels, lp.GetName()+"="+lp.GetValue())
			}
			switch {
			case m.GetCounter() != nil:
				fmt.Printf("%s{%s} %.0f\n", mf.GetName(), strings.Join(labels, ","), m.GetCounter().GetValue())
			case m.GetHistogram() != nil:
				h := m.GetHistogram()
				fmt.Printf("%s{%s} count=%d sum=%.6fs\n", mf.GetName(), strings.Join(labels, ","), h.GetSampleCount(), h.GetSampleSum())
			}
		}
	}
	return nil
}
