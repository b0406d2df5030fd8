// Package parallel splits per-row kernel and pixel work across goroutines.
package parallel

import (
	"runtime"
	"sync"
)

// Config controls parallel execution behavior.
type Config struct {
	Enabled    bool // Whether parallel execution is enabled.
	NumWorkers int  // Number of worker goroutines to use.
	MinRows    int  // Minimum rows per goroutine; smaller jobs run inline.
}

// DefaultConfig returns defaults based on CPU count.
func DefaultConfig() Config {
	n := runtime.NumCPU()
	return Config{
		Enabled:    n > 1,
		NumWorkers: n,
		MinRows:    16,
	}
}

// Rows calls f(start, end) over disjoint half-open ranges covering [0, n).
// Falls back to a single inline call when parallelism is disabled or n is small.
func Rows(n int, cfg Config, f func(start, end int)) {
	if n <= 0 {
		return
	}
	if !cfg.Enabled || cfg.NumWorkers < 2 || n < 2*cfg.MinRows {
		f(0, n)
		return
	}

	chunk := max((n+cfg.NumWorkers-1)/cfg.NumWorkers, cfg.MinRows)

	var wg sync.WaitGroup
	for start := 0; start < n; start += chunk {
		end := min(start+chunk, n)
		wg.Add(1)
		go func(s, e int) {
			defer wg.Done()
			f(s, e)
		}(start, end)
	}
	wg.Wait()
}

// Planes calls f(p) for every p in [0, planes), e.g. every (batch, channel)
// pair of an NCHW tensor flattened to one index.
func Planes(planes int, cfg Config, f func(p int)) {
	cfg.MinRows = 1
	Rows(planes, cfg, func(s, e int) {
		for p := s; p < e; p++ {
			f(p)
		}
	})
}
