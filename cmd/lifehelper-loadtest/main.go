// Command lifehelper-loadtest drives the QR login flow against Redis and
// reports per-step latency plus the exactly-once consumption count.
package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"sort"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/pflag"

	lifehelper "github.com/sengeiou/life-helper-server"
	"github.com/sengeiou/life-helper-server/ticket"
)

const loadtestSecret = "loadtest-secret-0123456789abcdef"

type staticResources struct{}

func (staticResources) TicketResource(_ context.Context, ticketID string, _ time.Duration) (string, error) {
	return "https://loadtest.invalid/qr/" + ticketID, nil
}

func main() {
	flags := pflag.NewFlagSet("lifehelper-loadtest", pflag.ExitOnError)
	var (
		tickets     = flags.Int("tickets", 20000, "number of tickets to drive through the flow")
		concurrency = flags.Int("concurrency", 256, "number of concurrent workers")
		racers      = flags.Int("racers", 4, "concurrent pollers per confirmed ticket")
		redisAddr   = flags.String("redis-addr", "", "redis address; if empty, REDIS_ADDR env or miniredis is used")
	)
	_ = flags.Parse(os.Args[1:])

	if *tickets <= 0 || *concurrency <= 0 || *racers <= 0 {
		fmt.Fprintln(os.Stderr, "tickets, concurrency, and racers must be > 0")
		os.Exit(2)
	}

	ctx := context.Background()

	addr := *redisAddr
	if addr == "" {
		addr = os.Getenv("REDIS_ADDR")
	}

	var (
		cleanup func()
		client  redis.UniversalClient
	)
	if addr == "" {
		mr, err := miniredis.Run()
		if err != nil {
			fmt.Fprintf(os.Stderr, "failed to start miniredis: %v\n", err)
			os.Exit(1)
		}
		addr = mr.Addr()
		client = redis.NewUniversalClient(&redis.UniversalOptions{
			Addrs: []string{addr},
		})
		cleanup = func() {
			_ = client.Close()
			mr.Close()
		}
		fmt.Printf("using miniredis at %s\n", addr)
	} else {
		client = redis.NewUniversalClient(&redis.UniversalOptions{
			Addrs: []string{addr},
		})
		cleanup = func() { _ = client.Close() }
		fmt.Printf("using redis at %s\n", addr)
	}
	defer cleanup()

	cfg := lifehelper.DefaultConfig()
	cfg.Ticket.TTL = 10 * time.Minute
	cfg.JWT.SigningMethod = "hs256"
	cfg.JWT.PrivateKey = []byte(loadtestSecret)
	cfg.JWT.PublicKey = []byte(loadtestSecret)
	cfg.RateLimit.EnableIssueThrottle = false
	cfg.RateLimit.EnablePollThrottle = false

	engine, err := lifehelper.New().
		WithConfig(cfg).
		WithRedis(client).
		WithResourceProvider(staticResources{}).
		WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))).
		Build()
	if err != nil {
		fmt.Fprintf(os.Stderr, "build engine: %v\n", err)
		os.Exit(1)
	}
	defer engine.Close()

	ids := make([]string, *tickets)
	issueStats := runPhase(*tickets, *concurrency, func(i int) error {
		res, err := engine.IssueTicket(lifehelper.WithClientIP(ctx, "10.0.0."+strconv.Itoa(i%250)))
		if err != nil {
			return err
		}
		ids[i] = res.TicketID
		return nil
	})
	scanStats := runPhase(*tickets, *concurrency, func(i int) error {
		return engine.MarkTicketScanned(ctx, ids[i])
	})
	confirmStats := runPhase(*tickets, *concurrency, func(i int) error {
		return engine.ConfirmTicket(ctx, ids[i], "u"+strconv.Itoa(i))
	})

	// Every ticket gets racers concurrent pollers. Exactly one of them
	// may observe CONSUMED.
	consumed := make([]int32, *tickets)
	var lost int64
	pollStats := runPhase(*tickets**racers, *concurrency, func(i int) error {
		idx := i / *racers
		res, err := engine.PollTicketLogin(ctx, ids[idx])
		if err != nil {
			return err
		}
		switch res.Status {
		case ticket.StatusConsumed:
			atomic.AddInt32(&consumed[idx], 1)
		case ticket.StatusInvalid:
			atomic.AddInt64(&lost, 1)
		default:
			return fmt.Errorf("unexpected status %s", res.Status)
		}
		return nil
	})

	var once, never, twice int
	for _, n := range consumed {
		switch {
		case n == 1:
			once++
		case n == 0:
			never++
		default:
			twice++
		}
	}

	snap := engine.MetricsSnapshot()

	fmt.Println("---- results ----")
	printStats("issue", issueStats)
	printStats("scan", scanStats)
	printStats("confirm", confirmStats)
	printStats("poll", pollStats)
	fmt.Printf("consumption: once=%d never=%d more_than_once=%d losing_polls=%d\n", once, never, twice, lost)
	fmt.Printf("counters: issued=%d consumed=%d sessions=%d\n",
		snap.Counters[lifehelper.MetricTicketIssued],
		snap.Counters[lifehelper.MetricTicketConsumed],
		snap.Counters[lifehelper.MetricSessionMinted],
	)
	if twice > 0 || never > 0 {
		os.Exit(1)
	}
}

// runPhase runs op for i in [0, ops) across concurrency workers.
func runPhase(ops, concurrency int, op func(i int) error) phaseStats {
	var (
		wg        sync.WaitGroup
		cursor    int64
		failures  int64
		latencies = make([]time.Duration, 0, ops)
		mu        sync.Mutex
	)

	start := time.Now()
	for w := 0; w < concurrency; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				i := int(atomic.AddInt64(&cursor, 1)) - 1
				if i >= ops {
					return
				}
				t0 := time.Now()
				err := op(i)
				d := time.Since(t0)
				if err != nil {
					atomic.AddInt64(&failures, 1)
				}
				mu.Lock()
				latencies = append(latencies, d)
				mu.Unlock()
			}
		}()
	}
	wg.Wait()
	total := time.Since(start)
	return computeStats(total, latencies, failures)
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
	idx := (len(samples) - 1) * p / 100
	return samples[idx]
}

func printStats(name string, s phaseStats) {
	fmt.Printf("%s: ops=%d failures=%d total=%s ops/sec=%.0f p50=%s p95=%s p99=%s\n",
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
