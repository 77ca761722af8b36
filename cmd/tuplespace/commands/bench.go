package commands

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/dyluth/tuplespace/internal/host"
	"github.com/dyluth/tuplespace/internal/printer"
	"github.com/dyluth/tuplespace/internal/timespec"
	"github.com/dyluth/tuplespace/pkg/space"
)

var (
	benchProducers int
	benchConsumers int
	benchTuples    int
	benchTag       string
	benchLease     string
	benchTimeout   time.Duration
)

var benchCmd = &cobra.Command{
	Use:   "bench",
	Short: "Measure concurrent write/take throughput",
	Long: `Start producers writing tuples and consumers blocking on take, then
report throughput and the space statistics.

Each producer writes --tuples tuples; consumers take until every tuple has
been consumed or a take times out.

Examples:
  tuplespace bench --producers 4 --consumers 8 --tuples 10000`,
	Args: cobra.NoArgs,
	RunE: runBench,
}

func init() {
	benchCmd.Flags().IntVarP(&benchProducers, "producers", "p", 2, "Number of concurrent writers")
	benchCmd.Flags().IntVarP(&benchConsumers, "consumers", "k", 2, "Number of concurrent takers")
	benchCmd.Flags().IntVarP(&benchTuples, "tuples", "n", 1000, "Tuples written per producer")
	benchCmd.Flags().StringVarP(&benchTag, "tag", "t", "bench", "Tag of written tuples")
	benchCmd.Flags().StringVar(&benchLease, "lease", "", "Lease of written tuples (default: space.default_lease)")
	benchCmd.Flags().DurationVar(&benchTimeout, "timeout", 2*time.Second, "Take timeout before a consumer gives up")
	rootCmd.AddCommand(benchCmd)
}

// BenchResult summarizes one bench run.
type BenchResult struct {
	Written  int64
	Taken    int64
	Elapsed  time.Duration
	PerAgent map[string]int64
	Stats    space.Stats
}

func runBench(cmd *cobra.Command, args []string) error {
	if benchProducers < 1 || benchConsumers < 1 || benchTuples < 1 {
		return printer.Error(
			"invalid bench parameters",
			"--producers, --consumers and --tuples must all be at least 1.",
			nil,
		)
	}

	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	cfg.HTTP = nil

	lease := cfg.DefaultLeaseDuration()
	if benchLease != "" {
		lease, err = timespec.ParseLease(benchLease)
		if err != nil {
			return printer.Error("invalid --lease", err.Error(), nil)
		}
	}

	ctx := context.Background()
	h, err := host.Start(ctx, cfg, host.WithLogger(func(string, ...any) {}))
	if err != nil {
		return printer.Error("failed to start tuple space", err.Error(), nil)
	}
	defer h.Close()

	printer.Step("Benchmarking %d producer(s) x %d tuple(s), %d consumer(s)\n",
		benchProducers, benchTuples, benchConsumers)

	res, err := bench(ctx, h.Space(), benchProducers, benchConsumers, benchTuples, benchTag, lease, benchTimeout)
	if err != nil {
		return printer.Error("bench failed", err.Error(), nil)
	}

	printer.Stat("written", res.Written)
	printer.Stat("taken", res.Taken)
	printer.Stat("elapsed", res.Elapsed.Round(time.Millisecond))
	if res.Elapsed > 0 {
		printer.Stat("ops/sec", fmt.Sprintf("%.0f", float64(res.Written+res.Taken)/res.Elapsed.Seconds()))
	}
	printer.Stat("missed takes", res.Stats.MissedTakes)
	printer.Stat("dropped events", res.Stats.DroppedEvents)
	for agent, n := range res.PerAgent {
		printer.Stat(agent, n)
	}

	if res.Taken != res.Written {
		printer.Warning("%d tuple(s) were not consumed\n", res.Written-res.Taken)
	}
	return nil
}

// bench runs producers and consumers against s. Consumers are named with a
// random suffix so concurrent bench runs against a shared Redis stay apart.
func bench(ctx context.Context, s *space.Space, producers, consumers, perProducer int, tag string, lease, timeout time.Duration) (*BenchResult, error) {
	total := int64(producers * perProducer)
	res := &BenchResult{PerAgent: make(map[string]int64)}

	var (
		written, taken atomic.Int64
		mu             sync.Mutex
		firstErr       error
		wg             sync.WaitGroup
	)
	fail := func(err error) {
		mu.Lock()
		defer mu.Unlock()
		if firstErr == nil {
			firstErr = err
		}
	}

	tmpl, err := space.NewTemplate(tag, nil)
	if err != nil {
		return nil, err
	}

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	start := time.Now()

	for c := 0; c < consumers; c++ {
		agent := "consumer-" + uuid.NewString()[:8]
		wg.Add(1)
		go func() {
			defer wg.Done()
			var n int64
			defer func() {
				mu.Lock()
				res.PerAgent[agent] = n
				mu.Unlock()
			}()
			for taken.Load() < total {
				t, err := s.Take(runCtx, tmpl, timeout)
				if errors.Is(err, context.Canceled) {
					return
				}
				if err != nil {
					fail(err)
					return
				}
				if t == nil {
					return
				}
				n++
				if taken.Add(1) == total {
					// Release consumers still blocked on take.
					cancel()
				}
			}
		}()
	}

	for p := 0; p < producers; p++ {
		producer := p
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < perProducer; i++ {
				_, err := s.Write(tag, lease, map[string]any{"producer": int64(producer), "seq": int64(i)})
				if err != nil {
					fail(err)
					return
				}
				written.Add(1)
			}
		}()
	}

	wg.Wait()
	res.Elapsed = time.Since(start)
	res.Written = written.Load()
	res.Taken = taken.Load()
	res.Stats = s.Stats()
	return res, firstErr
}
