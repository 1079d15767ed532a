package executor

import (
	"sync"
	"time"

	"go.uber.org/zap"
)

// PoolMonitor periodically reports worker-pool occupancy.
type PoolMonitor struct {
	executor *Executor
	interval time.Duration
	logger   *zap.Logger

	mu      sync.Mutex
	running bool
	stopCh  chan struct{}
}

// NewPoolMonitor creates a monitor for the executor's worker pool.
func NewPoolMonitor(executor *Executor, interval time.Duration, logger *zap.Logger) *PoolMonitor {
	return &PoolMonitor{
		executor: executor,
		interval: interval,
		logger:   logger,
		stopCh:   make(chan struct{}),
	}
}

// Start starts the monitor loop.
func (m *PoolMonitor) Start() {
	m.mu.Lock()
	if m.running {
		m.mu.Unlock()
		return
	}
	m.running = true
	m.mu.Unlock()

	go m.run()
}

// Stop stops the monitor loop.
func (m *PoolMonitor) Stop() {
	m.mu.Lock()
	if !m.running {
		m.mu.Unlock()
		return
	}
	m.running = false
	m.mu.Unlock()

	close(m.stopCh)
}

func (m *PoolMonitor) run() {
	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()

	for {
		select {
		case <-m.stopCh:
			return
		case <-ticker.C:
			m.check()
		}
	}
}

func (m *PoolMonitor) check() {
	busy, capacity := m.executor.Occupancy()
	m.executor.metrics.RecordWorkerOccupancy(busy, capacity)

	m.logger.Debug("worker pool occupancy",
		zap.Int("busy", busy),
		zap.Int("capacity", capacity))

	if busy == capacity {
		m.logger.Warn("all worker slots busy, stages are queueing",
			zap.Int("capacity", capacity))
	}
}
