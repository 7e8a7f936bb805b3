package tasks

import (
	"context"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"
)

// Runner executes fire-and-forget background tasks. Unlike a bare `go`
// statement, every task is named, panic-safe, visible through InFlight and
// awaited by Drain during shutdown. There is no cancellation: once scheduled,
// a task runs to completion.
type Runner struct {
	log *zap.Logger

	mu       sync.Mutex
	wg       sync.WaitGroup
	inflight map[string]time.Time
}

func NewRunner(log *zap.Logger) *Runner {
	return &Runner{
		log:      log,
		inflight: make(map[string]time.Time),
	}
}

// Go schedules fn on its own goroutine and returns immediately.
func (r *Runner) Go(name string, fn func()) {
	r.mu.Lock()
	r.inflight[name] = time.Now()
	r.mu.Unlock()

	r.wg.Add(1)
	go func() {
		defer func() {
			if p := recover(); p != nil {
				r.log.Error("background task panicked",
					zap.String("task", name),
					zap.Any("panic", p),
				)
			}
			r.mu.Lock()
			delete(r.inflight, name)
			r.mu.Unlock()
			r.wg.Done()
		}()
		fn()
	}()
}

// InFlight returns the names of tasks currently running, sorted.
func (r *Runner) InFlight() []string {
	r.mu.Lock()
	defer r.mu.Unlock()

	names := make([]string, 0, len(r.inflight))
	for name := range r.inflight {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Drain waits for all in-flight tasks to finish or for ctx to expire.
func (r *Runner) Drain(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		r.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
