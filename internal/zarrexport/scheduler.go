package zarrexport

import (
	"context"
	"runtime"

	"golang.org/x/sync/errgroup"
)

// Task is one unit of export work, usually a chunk.
type Task func(ctx context.Context) error

// Scheduler runs tasks on a bounded number of goroutines.
type Scheduler struct {
	// Workers is the maximum number of concurrent tasks. Zero or less means
	// one per CPU.
	Workers int
}

func (s Scheduler) workers() int {
	if s.Workers <= 0 {
		return runtime.NumCPU()
	}
	return s.Workers
}

// Run executes every task and returns the first error. The context passed
// to the tasks is cancelled as soon as one fails.
func (s Scheduler) Run(ctx context.Context, tasks []Task) error {
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.workers())
	for _, t := range tasks {
		if gctx.Err() != nil {
			break
		}
		g.Go(func() error {
			return t(gctx)
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}
	return ctx.Err()
}
