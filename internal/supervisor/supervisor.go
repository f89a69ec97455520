// Package supervisor runs a process's long-lived components, restarts
// the ones that fail with exponential backoff, and coordinates
// shutdown on OS signals.
package supervisor

import (
	"context"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"
)

// Component is one long-running unit of a process. Run blocks until
// failure or context cancellation.
type Component interface {
	Name() string
	Run(ctx context.Context) error
}

// ComponentFunc adapts a function to the Component interface.
type ComponentFunc struct {
	ComponentName string
	Fn            func(ctx context.Context) error
}

func (c ComponentFunc) Name() string { return c.ComponentName }

func (c ComponentFunc) Run(ctx context.Context) error { return c.Fn(ctx) }

const (
	initialBackoff = time.Second
	maxBackoff     = time.Minute
)

// Supervisor owns a set of components.
type Supervisor struct {
	mu         sync.Mutex
	components []Component
	maxRetries int // 0 means retry forever
}

// New creates an empty supervisor.
func New() *Supervisor {
	return &Supervisor{}
}

// Add registers a component.
func (s *Supervisor) Add(c Component) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.components = append(s.components, c)
}

// SetMaxRetries bounds restarts per component. Zero retries forever.
func (s *Supervisor) SetMaxRetries(n int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.maxRetries = n
}

// Run starts every component and blocks until the context is canceled
// or an interrupt arrives. Components that return errors are restarted
// with doubling backoff.
func (s *Supervisor) Run(ctx context.Context) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigCh)

	s.mu.Lock()
	components := make([]Component, len(s.components))
	copy(components, s.components)
	maxRetries := s.maxRetries
	s.mu.Unlock()

	var wg sync.WaitGroup
	for _, c := range components {
		wg.Add(1)
		go func() {
			defer wg.Done()
			s.runOne(ctx, c, maxRetries)
		}()
	}

	select {
	case sig := <-sigCh:
		log.Info().Str("signal", sig.String()).Msg("Shutdown signal received")
		cancel()
	case <-ctx.Done():
	}

	wg.Wait()
	log.Info().Msg("All components stopped")
}

func (s *Supervisor) runOne(ctx context.Context, c Component, maxRetries int) {
	backoff := initialBackoff
	retries := 0

	for {
		log.Info().Str("component", c.Name()).Msg("Component starting")
		err := c.Run(ctx)

		if ctx.Err() != nil {
			log.Info().Str("component", c.Name()).Msg("Component stopped")
			return
		}
		if err == nil {
			log.Info().Str("component", c.Name()).Msg("Component finished")
			return
		}

		retries++
		if maxRetries > 0 && retries > maxRetries {
			log.Error().
				Err(err).
				Str("component", c.Name()).
				Int("retries", retries-1).
				Msg("Component gave up after max retries")
			return
		}

		log.Error().
			Err(err).
			Str("component", c.Name()).
			Dur("backoff", backoff).
			Msg("Component failed - restarting")

		select {
		case <-ctx.Done():
			return
		case <-time.After(backoff):
		}
		backoff *= 2
		if backoff > maxBackoff {
			backoff = maxBackoff
		}
	}
}
