package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"math/rand/v2"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	goSession "github.com/MrEthical07/goSession"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

type loadtestOptions struct {
	Sessions      int
	Concurrency   int
	Ops           int
	CheckDatabase bool
}

var loadtestOpts = loadtestOptions{Sessions: 10000, Concurrency: 64, Ops: 50000}

var loadtestCmd = &cobra.Command{
	Use:   "loadtest",
	Short: "Measure verify and refresh latency against the configured store",
	Long: `Seed sessions through the engine, then run a verify phase and a refresh
phase with concurrent workers and report throughput and latency percentiles.

Without redis.addr the run uses an in-process miniredis.`,
	RunE: func(cmd *cobra.Command, _ []string) error {
		cfg, err := loadConfig(newViper(cfgFile))
		if err != nil {
			return err
		}
		if cfg.Core.URL != "" {
			return errors.New("loadtest runs against the embedded core only; unset core.url")
		}
		a, err := newApp(cfg, zap.NewNop())
		if err != nil {
			return err
		}
		defer func() { _ = a.Close() }()

		_, err = runLoadtest(cmd.Context(), a.engine, loadtestOpts, cmd.OutOrStdout())
		return err
	},
}

func init() {
	f := loadtestCmd.Flags()
	f.IntVar(&loadtestOpts.Sessions, "sessions", loadtestOpts.Sessions, "number of sessions to seed")
	f.IntVar(&loadtestOpts.Concurrency, "concurrency", loadtestOpts.Concurrency, "number of concurrent workers")
	f.IntVar(&loadtestOpts.Ops, "ops", loadtestOpts.Ops, "operations per phase")
	f.BoolVar(&loadtestOpts.CheckDatabase, "check-database", false, "verify against the store instead of the token alone")
	rootCmd.AddCommand(loadtestCmd)
}

// loadSlot is one seeded session. Refreshes on the same slot are serialised
// so every rotation presents the latest refresh token.
type loadSlot struct {
	mu      sync.Mutex
	access  string
	refresh string
}

type phaseStats struct {
	total    time.Duration
	ops      int
	failures int64
	p50      time.Duration
	p95      time.Duration
	p99      time.Duration
	opsPerS  float64
}

type loadtestResult struct {
	verify  phaseStats
	refresh phaseStats
}

func runLoadtest(ctx context.Context, engine *goSession.Engine, opts loadtestOptions, out io.Writer) (loadtestResult, error) {
	if opts.Sessions <= 0 || opts.Concurrency <= 0 || opts.Ops <= 0 {
		return loadtestResult{}, errors.New("sessions, concurrency, and ops must be > 0")
	}

	slots := make([]loadSlot, opts.Sessions)
	fmt.Fprintf(out, "seeding %d sessions...\n", opts.Sessions)
	startSeed := time.Now()
	for i := range slots {
		s, err := engine.CreateNewSessionWithoutRequestResponse(ctx, goSession.CreateSessionInput{
			UserID: fmt.Sprintf("load-user-%d", i),
		}, true)
		if err != nil {
			return loadtestResult{}, fmt.Errorf("seed session %d: %w", i, err)
		}
		tokens := s.AllSessionTokens()
		slots[i].access = tokens.AccessToken
		slots[i].refresh = tokens.RefreshToken
	}
	fmt.Fprintf(out, "seeded in %s\n", time.Since(startSeed).Round(time.Millisecond))

	noCSRF := false
	verifyOpts := &goSession.VerifyOptions{CheckDatabase: opts.CheckDatabase, AntiCSRFCheck: &noCSRF}
	verify := runPhase(opts.Ops, opts.Concurrency, func(r *rand.Rand) error {
		slot := &slots[r.IntN(len(slots))]
		slot.mu.Lock()
		access := slot.access
		slot.mu.Unlock()
		_, err := engine.GetSessionWithoutRequestResponse(ctx, access, "", verifyOpts)
		return err
	})

	refresh := runPhase(opts.Ops, opts.Concurrency, func(r *rand.Rand) error {
		slot := &slots[r.IntN(len(slots))]
		slot.mu.Lock()
		defer slot.mu.Unlock()
		s, err := engine.RefreshSessionWithoutRequestResponse(ctx, slot.refresh, true, "")
		if err != nil {
			return err
		}
		tokens := s.AllSessionTokens()
		slot.access = tokens.AccessToken
		slot.refresh = tokens.RefreshToken
		return nil
	})

	fmt.Fprintln(out, "---- results ----")
	printStats(out, "verify", verify)
	printStats(out, "refresh", refresh)
	return loadtestResult{verify: verify, refresh: refresh}, nil
}

func runPhase(ops, concurrency int, op func(r *rand.Rand) error) phaseStats {
	var (
		wg        sync.WaitGroup
		cursor    atomic.Int64
		failures  atomic.Int64
		latencies = make([]time.Duration, 0, ops)
		mu        sync.Mutex
	)

	start := time.Now()
	for w := 0; w < concurrency; w++ {
		wg.Add(1)
		go func(worker uint64) {
			defer wg.Done()
			r := rand.New(rand.NewPCG(uint64(time.Now().UnixNano()), worker))
			for {
				if int(cursor.Add(1)) > ops {
					return
				}
				t0 := time.Now()
				err := op(r)
				d := time.Since(t0)
				if err != nil {
					failures.Add(1)
				}
				mu.Lock()
				latencies = append(latencies, d)
				mu.Unlock()
			}
		}(uint64(w))
	}
	wg.Wait()
	return computeStats(time.Since(start), latencies, failures.Load())
}

func computeStats(total time.Duration, samples []time.Duration, failures int64) phaseStats {
	if len(samples) == 0 {
		return phaseStats{total: total}
	}
	sort.Slice(samples, func(i, j int) bool { return samples[i] < samples[j] })
	return phaseStats{
		total:    total,
		ops:      len(samples),
		failures: failures,
		p50:      percentile(samples, 50),
		p95:      percentile(samples, 95),
		p99:      percentile(samples, 99),
		opsPerS:  float64(len(samples)) / total.Seconds(),
	}
}

func percentile(samples []time.Duration, p int) time.Duration {
	if len(samples) == 0 {
		return 0
	}
	if p <= 0 {
		return samples[0]
	}
	if p >= 100 {
		return samples[len(samples)-1]
	}
	return samples[(len(samples)-1)*p/100]
}

func printStats(out io.Writer, name string, s phaseStats) {
	fmt.Fprintf(out, "%s: ops=%d failures=%d total=%s ops/sec=%.0f p50=%s p95=%s p99=%s\n",
		name,
		s.ops,
		s.failures,
		s.total.Round(time.Millisecond),
		s.opsPerS,
		s.p50.Round(time.Microsecond),
		s.p95.Round(time.Microsecond),
		s.p99.Round(time.Microsecond),
	)
}
