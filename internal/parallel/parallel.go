// Package parallel provides the batch fan-out used by convolution layers.
//
// Work items are split into contiguous chunks, one per worker, and every
// callback receives the index of the worker running it so callers can key
// per-worker scratch buffers on it.
package parallel

import (
	"runtime"

	"golang.org/x/sync/errgroup"
)

// Config controls parallel execution behavior.
type Config struct {
	Enabled      bool // Whether parallel execution is enabled.
	NumWorkers   int  // Number of worker goroutines to use.
	MinChunkSize int  // Minimum items per goroutine to avoid overhead.
}

// DefaultConfig returns sensible defaults based on CPU count.
func DefaultConfig() Config {
	return WithWorkers(runtime.NumCPU())
}

// WithWorkers returns a config using n workers; n <= 0 selects DefaultConfig.
func WithWorkers(n int) Config {
	if n <= 0 {
		return DefaultConfig()
	}
	return Config{
		Enabled:      n > 1,
		NumWorkers:   n,
		MinChunkSize: 1, // One convolution sample already amortizes a goroutine.
	}
}

// Workers returns how many distinct worker indices For may pass for n items.
func (cfg Config) Workers(n int) int {
	if !cfg.Enabled || n <= cfg.MinChunkSize || cfg.NumWorkers <= 1 {
		return 1
	}
	chunk := cfg.chunkSize(n)
	return (n + chunk - 1) / chunk
}

func (cfg Config) chunkSize(n int) int {
	return max((n+cfg.NumWorkers-1)/cfg.NumWorkers, cfg.MinChunkSize, 1)
}

// For executes f(worker, i) for i in [0, n) and returns the first error.
//
// Worker indices lie in [0, cfg.Workers(n)); a worker handles its items in
// increasing order, and no two concurrent calls share a worker index.
// Falls back to sequential execution on worker 0 if parallelism is disabled
// or n is too small.
func For(n int, f func(worker, i int) error, cfg Config) error {
	workers := cfg.Workers(n)
	if workers == 1 {
		for i := 0; i < n; i++ {
			if err := f(0, i); err != nil {
				return err
			}
		}
		return nil
	}

	var g errgroup.Group
	chunk := cfg.chunkSize(n)
	for w := 0; w < workers; w++ {
		start := w * chunk
		end := min(start+chunk, n)
		g.Go(func() error {
			for i := start; i < end; i++ {
				if err := f(w, i); err != nil {
					return err
				}
			}
			return nil
		})
	}
	return g.Wait()
}
