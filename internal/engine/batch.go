package engine

import (
	"context"
	"fmt"
	"time"
)

// BatchConfig controls chunk sizing and cooperative yielding for
// ProcessInBatches.
type BatchConfig struct {
	// ChunkSize is the fixed number of items mapped between yield checks.
	ChunkSize int
	// YieldThreshold is the cumulative wall-clock budget since the start of
	// the call; once exceeded, every chunk boundary yields.
	YieldThreshold time.Duration
	// YieldDuration is the bounded pause handed back to the scheduler.
	YieldDuration time.Duration
}

func (c BatchConfig) withDefaults() BatchConfig {
	if c.ChunkSize <= 0 {
		c.ChunkSize = 100
	}
	if c.YieldThreshold <= 0 {
		c.YieldThreshold = 50 * time.Millisecond
	}
	if c.YieldDuration <= 0 {
		c.YieldDuration = 5 * time.Millisecond
	}
	return c
}

// ProcessInBatches applies fn over items in fixed-size chunks, preserving
// input order. Any item error aborts the whole call with no partial output.
// onProgress, when non-nil, receives the percentage of items processed so
// far after each chunk. Yielding changes pacing only, never the output.
func ProcessInBatches[I, O any](ctx context.Context, cfg BatchConfig, items []I, fn func(I) (O, error), onProgress func(float64)) ([]O, error) {
	cfg = cfg.withDefaults()
	if len(items) == 0 {
		return nil, nil
	}

	start := time.Now()
	out := make([]O, 0, len(items))
	for begin := 0; begin < len(items); begin += cfg.ChunkSize {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		end := begin + cfg.ChunkSize
		if end > len(items) {
			end = len(items)
		}
		for i := begin; i < end; i++ {
			mapped, err := fn(items[i])
			if err != nil {
				return nil, fmt.Errorf("map item %d: %w", i, err)
			}
			out = append(out, mapped)
		}

		if onProgress != nil {
			onProgress(float64(len(out)) / float64(len(items)) * 100)
		}

		if end < len(items) && time.Since(start) > cfg.YieldThreshold {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(cfg.YieldDuration):
			}
		}
	}
	return out, nil
}
