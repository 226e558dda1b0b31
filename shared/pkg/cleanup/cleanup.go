package cleanup

import (
	"context"
	"sync"
	"time"

	"github.com/psantana5/euclid/pkg/logging"
)

// Config defines the history retention policy
type Config struct {
	Enabled bool
	// MaxAge is how long a computation is kept
	MaxAge         time.Duration
	Interval       time.Duration
	VacuumInterval time.Duration
}

// DefaultConfig keeps thirty days of history
func DefaultConfig() Config {
	return Config{
		Enabled:        false,
		MaxAge:         30 * 24 * time.Hour,
		Interval:       time.Hour,
		VacuumInterval: 7 * 24 * time.Hour,
	}
}

// Store is the part of the computation store that retention needs
type Store interface {
	DeleteBefore(cutoff time.Time) (int64, error)
}

// Vacuumer is implemented by stores that can reclaim space after deletes
type Vacuumer interface {
	Vacuum() error
}

// Stats tracks retention runs
type Stats struct {
	LastRun        time.Time
	LastVacuum     time.Time
	TotalDeleted   int64
	TotalVacuums   int64
	LastRunRemoved int64
}

// Manager periodically prunes computations older than the retention age
type Manager struct {
	config Config
	store  Store
	logger *logging.Logger
	now    func() time.Time

	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu    sync.RWMutex
	stats Stats
}

// NewManager creates a retention manager
func NewManager(config Config, store Store, logger *logging.Logger) *Manager {
	return &Manager{
		config: config,
		store:  store,
		logger: logger.WithComponent("cleanup"),
		now:    time.Now,
	}
}

// Start runs one prune immediately and then one per interval until Stop
func (m *Manager) Start(ctx context.Context) {
	if !m.config.Enabled {
		m.logger.Debug("History retention disabled")
		return
	}

	ctx, m.cancel = context.WithCancel(ctx)
	m.logger.Info("Starting history retention", logging.Fields{
		"max_age":  m.config.MaxAge.String(),
		"interval": m.config.Interval.String(),
	})

	m.wg.Add(1)
	go m.loop(ctx, m.config.Interval, func() { m.RunOnce() })

	if _, ok := m.store.(Vacuumer); ok && m.config.VacuumInterval > 0 {
		m.wg.Add(1)
		go m.loop(ctx, m.config.VacuumInterval, func() { m.VacuumNow() })
	}

	m.RunOnce()
}

// Stop halts the background loops and waits for them to exit
func (m *Manager) Stop(context.Context) error {
	if m.cancel != nil {
		m.cancel()
	}
	m.wg.Wait()
	return nil
}

func (m *Manager) loop(ctx context.Context, interval time.Duration, fn func()) {
	defer m.wg.Done()

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			fn()
		}
	}
}

// RunOnce deletes every computation older than MaxAge
func (m *Manager) RunOnce() (int64, error) {
	start := m.now()
	removed, err := m.store.DeleteBefore(start.Add(-m.config.MaxAge))
	if err != nil {
		m.logger.Error("History pruning failed", logging.Fields{"error": err.Error()})
		return 0, err
	}

	m.mu.Lock()
	m.stats.LastRun = start
	m.stats.LastRunRemoved = removed
	m.stats.TotalDeleted += removed
	m.mu.Unlock()

	if removed > 0 {
		m.logger.Info("Pruned computation history", logging.Fields{"removed": removed})
	}
	return removed, nil
}

// VacuumNow compacts the store when it supports it
func (m *Manager) VacuumNow() error {
	v, ok := m.store.(Vacuumer)
	if !ok {
		return nil
	}
	if err := v.Vacuum(); err != nil {
		m.logger.Error("Store vacuum failed", logging.Fields{"error": err.Error()})
		return err
	}

	m.mu.Lock()
	m.stats.LastVacuum = m.now()
	m.stats.TotalVacuums++
	m.mu.Unlock()
	return nil
}

// GetStats returns a snapshot of retention activity
func (m *Manager) GetStats() Stats {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.stats
}
