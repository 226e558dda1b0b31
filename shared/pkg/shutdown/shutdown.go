package shutdown

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/psantana5/euclid/pkg/logging"
)

// Hook is a named shutdown function
type Hook struct {
	Name string
	Fn   func(context.Context) error
}

// Manager runs registered hooks in reverse registration order
type Manager struct {
	hooks   []Hook
	mu      sync.Mutex
	timeout time.Duration
	logger  *logging.Logger
	once    sync.Once
	done    chan struct{}
}

// New creates a new shutdown manager
func New(timeout time.Duration, logger *logging.Logger) *Manager {
	return &Manager{
		hooks:   make([]Hook, 0),
		timeout: timeout,
		logger:  logger,
		done:    make(chan struct{}),
	}
}

// Register adds a shutdown function. Functions run LIFO.
func (m *Manager) Register(name string, fn func(context.Context) error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.hooks = append(m.hooks, Hook{Name: name, Fn: fn})
}

// Done is closed once shutdown has started
func (m *Manager) Done() <-chan struct{} {
	return m.done
}

// Wait blocks until SIGINT/SIGTERM or ctx is done, then runs Shutdown
func (m *Manager) Wait(ctx context.Context) error {
	sigCtx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	<-sigCtx.Done()
	if ctx.Err() == nil {
		m.logger.Info("Received shutdown signal")
	}
	return m.Shutdown()
}

// Shutdown executes all hooks within the timeout. It runs at most once;
// later calls return nil.
func (m *Manager) Shutdown() error {
	var errs []error

	m.once.Do(func() {
		close(m.done)

		m.mu.Lock()
		hooks := append([]Hook(nil), m.hooks...)
		m.mu.Unlock()

		ctx, cancel := context.WithTimeout(context.Background(), m.timeout)
		defer cancel()

		m.logger.Info("Initiating graceful shutdown", logging.Fields{"hooks": len(hooks)})
		for i := len(hooks) - 1; i >= 0; i-- {
			h := hooks[i]
			if err := h.Fn(ctx); err != nil {
				m.logger.Error("Shutdown hook failed", logging.Fields{"hook": h.Name, "error": err.Error()})
				errs = append(errs, fmt.Errorf("%s: %w", h.Name, err))
				continue
			}
			m.logger.Debug("Shutdown hook complete", logging.Fields{"hook": h.Name})
		}
		m.logger.Info("Graceful shutdown complete")
	})

	return errors.Join(errs...)
}

// StopHTTPServer creates a shutdown function for http.Server
func StopHTTPServer(server interface{ Shutdown(context.Context) error }) func(context.Context) error {
	return func(ctx context.Context) error {
		return server.Shutdown(ctx)
	}
}

// CloseResource creates a shutdown function for io.Closer
func CloseResource(closer interface{ Close() error }) func(context.Context) error {
	return func(ctx context.Context) error {
		return closer.Close()
	}
}
