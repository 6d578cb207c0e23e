package telemetry

import (
	"context"
	"sync"
	"time"

	"go.uber.org/multierr"
)

// GracefulShutdown manages orderly teardown of a set of components,
// matching the teacher's utils.GracefulShutdown shape (register funcs,
// run them under a deadline) but aggregating every failure with
// multierr instead of reporting only the first one observed.
type GracefulShutdown struct {
	mu         sync.Mutex
	shutdownFn []func() error
	timeout    time.Duration
	logger     *Logger
}

// NewGracefulShutdown creates a new graceful shutdown manager.
func NewGracefulShutdown(timeout time.Duration, logger *Logger) *GracefulShutdown {
	if logger == nil {
		logger = Default("shutdown")
	}
	return &GracefulShutdown{
		shutdownFn: make([]func() error, 0),
		timeout:    timeout,
		logger:     logger,
	}
}

// Register adds a shutdown function, run during Shutdown.
func (g *GracefulShutdown) Register(fn func() error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.shutdownFn = append(g.shutdownFn, fn)
}

// Shutdown starts every registered function on its own goroutine, in
// reverse registration order; they run concurrently, so no completion
// order is guaranteed. It returns the combined error, or a timeout error
// if the deadline elapses first.
func (g *GracefulShutdown) Shutdown(ctx context.Context) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	g.logger.Info("starting graceful shutdown", Int("components", len(g.shutdownFn)))

	shutdownCtx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()

	var (
		mu       sync.Mutex
		combined error
		wg       sync.WaitGroup
	)

	for i := len(g.shutdownFn) - 1; i >= 0; i-- {
		wg.Add(1)
		fn := g.shutdownFn[i]
		go func(idx int, shutdownFn func() error) {
			defer wg.Done()
			if err := shutdownFn(); err != nil {
				g.logger.Error("shutdown function failed", Int("index", idx), Err(err))
				mu.Lock()
				combined = multierr.Append(combined, err)
				mu.Unlock()
			}
		}(i, fn)
	}

	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		g.logger.Info("graceful shutdown complete")
		return combined
	case <-shutdownCtx.Done():
		g.logger.Warn("graceful shutdown timed out")
		return multierr.Append(combined, TimeoutError("graceful shutdown"))
	}
}
