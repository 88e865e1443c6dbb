package portscan

import (
	"context"
	"errors"
	"math/rand/v2"
	"time"

	"github.com/cenkalti/backoff/v4"
	"golang.org/x/sync/errgroup"

	"github.com/bridgeport-dev/bridgeport/internal/logging"
)

var (
	// ErrInvalidRange is returned when start > end or a bound is outside
	// 0..65535. No probing happens in that case.
	ErrInvalidRange = errors.New("invalid port range")
	// ErrNoPortAvailable is returned when every candidate in range probed
	// unavailable.
	ErrNoPortAvailable = errors.New("no port available")
)

const (
	// DefaultConcurrency is the number of probes in flight per batch.
	DefaultConcurrency = 8
	// DefaultRetries is the number of extra probe attempts per candidate.
	DefaultRetries = 1
	// retryDelay is the fixed pause between probe attempts on one candidate.
	retryDelay = 50 * time.Millisecond

	// Ephemeral range used as the fallback for preferred-port lookups.
	ephemeralStart = 49152
	ephemeralEnd   = 65535
)

// Options tune one scan. Zero Timeout and Concurrency fall back to package
// defaults; Retries is taken literally, so zero means a single attempt per
// candidate (callers wanting the configured default pass DefaultRetries).
type Options struct {
	// Timeout bounds each individual probe.
	Timeout time.Duration
	// Concurrency is the batch size for parallel probing.
	Concurrency int
	// Retries is the number of extra attempts per candidate. Negative
	// values are treated as zero.
	Retries int
	// PreferredPorts are checked before the range.
	PreferredPorts []int
	// ExcludedPorts are never probed and never returned.
	ExcludedPorts map[int]struct{}
	// Randomize shuffles candidate order (Fisher-Yates) before batching.
	Randomize bool
	// FromHighToLow reverses candidate order before batching.
	FromHighToLow bool
}

func (o Options) concurrency() int {
	if o.Concurrency <= 0 {
		return DefaultConcurrency
	}
	return o.Concurrency
}

func (o Options) excluded(port int) bool {
	_, ok := o.ExcludedPorts[port]
	return ok
}

// validPreferred filters the preferred list down to legal, non-excluded
// ports, preserving order.
func (o Options) validPreferred() []int {
	out := make([]int, 0, len(o.PreferredPorts))
	for _, port := range o.PreferredPorts {
		if port >= 0 && port <= 65535 && !o.excluded(port) {
			out = append(out, port)
		}
	}
	return out
}

// Scanner finds a usable port by orchestrating batched parallel probes and
// consulting the availability cache.
type Scanner struct {
	probe Prober
	cache *Cache

	// delay is the inter-retry pause, replaceable in tests.
	delay time.Duration
}

// NewScanner creates a scanner using the given probe and cache.
func NewScanner(probe Prober, cache *Cache) *Scanner {
	if cache == nil {
		cache = NewCache(DefaultCacheTTL)
	}
	return &Scanner{
		probe: probe,
		cache: cache,
		delay: retryDelay,
	}
}

// Cache returns the scanner's availability cache.
func (s *Scanner) Cache() *Cache {
	return s.cache
}

// FindAvailablePort returns the first usable port in [start, end].
//
// Candidates with a fresh cached "available" verdict are re-probed once up
// front (the cache may be stale); candidates with a fresh "unavailable"
// verdict are dropped without probing. The rest are probed in fixed-size
// batches: every probe in a batch settles before a decision, and the winner
// is the first candidate by array position whose probe succeeded, not the
// first probe to complete.
func (s *Scanner) FindAvailablePort(ctx context.Context, start, end int, opts Options) (int, error) {
	if start > end || start < 0 || end > 65535 {
		logging.Warn().Int("start", start).Int("end", end).Msg("rejecting invalid port range")
		return 0, ErrInvalidRange
	}

	// Preferred ports jump the queue, same array-order tie-break.
	if preferred := opts.validPreferred(); len(preferred) > 0 {
		if port, found := s.probeBatch(ctx, preferred, opts); found {
			return port, nil
		}
	}

	candidates := make([]int, 0, end-start+1)
	for port := start; port <= end; port++ {
		if !opts.excluded(port) {
			candidates = append(candidates, port)
		}
	}

	// Fast path: confirm cached-available candidates with a single probe.
	unknown := make([]int, 0, len(candidates))
	for _, port := range candidates {
		available, ok := s.cache.Get(port)
		if !ok {
			unknown = append(unknown, port)
			continue
		}
		if !available {
			// Fresh negative verdict: out of consideration, no probe.
			continue
		}
		if s.probeOnce(ctx, port, opts) {
			s.cache.Set(port, true)
			logging.Debug().Int("port", port).Msg("cached port confirmed available")
			return port, nil
		}
		s.cache.Set(port, false)
	}

	if opts.FromHighToLow {
		for i, j := 0, len(unknown)-1; i < j; i, j = i+1, j-1 {
			unknown[i], unknown[j] = unknown[j], unknown[i]
		}
	}
	if opts.Randomize {
		rand.Shuffle(len(unknown), func(i, j int) {
			unknown[i], unknown[j] = unknown[j], unknown[i]
		})
	}

	batchSize := opts.concurrency()
	for offset := 0; offset < len(unknown); offset += batchSize {
		batch := unknown[offset:min(offset+batchSize, len(unknown))]
		if port, found := s.probeBatch(ctx, batch, opts); found {
			return port, nil
		}
	}

	logging.Warn().Int("start", start).Int("end", end).Msg("port scan exhausted range")
	return 0, ErrNoPortAvailable
}

// FindPreferredPort checks the preferred list first (array-order tie-break),
// then falls back to a randomized scan over the ephemeral range.
func (s *Scanner) FindPreferredPort(ctx context.Context, preferred []int, opts Options) (int, error) {
	listOpts := opts
	listOpts.PreferredPorts = preferred
	valid := listOpts.validPreferred()

	if len(valid) > 0 {
		if port, found := s.probeBatch(ctx, valid, opts); found {
			return port, nil
		}
	}

	fallback := opts
	fallback.Randomize = true
	fallback.PreferredPorts = nil
	return s.FindAvailablePort(ctx, ephemeralStart, ephemeralEnd, fallback)
}

// probeBatch probes every candidate in parallel, waits for the whole batch
// to settle, caches all results, and picks the winner by array position.
func (s *Scanner) probeBatch(ctx context.Context, batch []int, opts Options) (int, bool) {
	results := make([]bool, len(batch))

	g, gctx := errgroup.WithContext(ctx)
	for i, port := range batch {
		g.Go(func() error {
			results[i] = s.portUsable(gctx, port, opts)
			return nil
		})
	}
	// Probes never return errors; Wait is purely a barrier.
	_ = g.Wait()

	for i, port := range batch {
		s.cache.Set(port, results[i])
	}
	for i, port := range batch {
		if results[i] {
			logging.Debug().Int("port", port).Msg("batch probe found available port")
			return port, true
		}
	}
	return 0, false
}

// portUsable runs the per-candidate retry loop: cache verdict first, then up
// to retries+1 probes with a fixed delay between attempts.
func (s *Scanner) portUsable(ctx context.Context, port int, opts Options) bool {
	if available, ok := s.cache.Get(port); ok {
		return available
	}

	retries := opts.Retries
	if retries < 0 {
		retries = 0
	}

	attempt := func() error {
		if s.probeOnce(ctx, port, opts) {
			return nil
		}
		return ErrNoPortAvailable
	}

	b := backoff.NewConstantBackOff(s.delay)
	err := backoff.Retry(attempt, backoff.WithContext(backoff.WithMaxRetries(b, uint64(retries)), ctx))
	return err == nil
}

// probeOnce performs a single probe with the per-probe timeout applied.
func (s *Scanner) probeOnce(ctx context.Context, port int, opts Options) bool {
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = DefaultProbeTimeout
	}
	pctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	result := s.probe.Probe(pctx, port)
	if !result.Available() && result.Reason != "" {
		logging.Debug().Int("port", port).Str("reason", result.Reason).Msg("probe failed")
	}
	return result.Available()
}
