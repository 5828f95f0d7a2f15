// Package parallel splits the outer loop of CPU kernels across goroutines.
package parallel

import (
	"runtime"
	"sync"
)

// Config controls when kernels go parallel.
type Config struct {
	Enabled    bool // run on more than one goroutine at all
	NumWorkers int  // upper bound on goroutines per loop
	MinWork    int  // below this many scalar operations a loop stays sequential
}

// DefaultConfig uses every CPU and keeps small kernels sequential.
func DefaultConfig() Config {
	n := runtime.NumCPU()
	return Config{
		Enabled:    n > 1,
		NumWorkers: n,
		MinWork:    1 << 14,
	}
}

// Kernels is the configuration the tensor kernels use.
var Kernels = DefaultConfig()

// Rows calls f(i) for every i in [0, rows). rowCost estimates the scalar
// operations per row; the loop is split across workers only when the total
// reaches cfg.MinWork. Calls for distinct rows may run concurrently.
func Rows(rows, rowCost int, f func(i int), cfg Config) {
	workers := min(cfg.NumWorkers, rows)
	if !cfg.Enabled || workers < 2 || rows*max(rowCost, 1) < cfg.MinWork {
		for i := 0; i < rows; i++ {
			f(i)
		}
		return
	}

	var wg sync.WaitGroup
	chunk := (rows + workers - 1) / workers
	for start := 0; start < rows; start += chunk {
		end := min(start+chunk, rows)
		wg.Add(1)
		go func(s, e int) {
			defer wg.Done()
			for i := s; i < e; i++ {
				f(i)
			}
		}(start, end)
	}
	wg.Wait()
}
