package engine

import (
	"sync"
	"time"

	"go.uber.org/zap"
)

// ManagerConfig configures the engine goroutine.
type ManagerConfig struct {
	QueueSize     int
	RetryInterval time.Duration
}

// DefaultManagerConfig returns the standard manager configuration
func DefaultManagerConfig() ManagerConfig {
	return ManagerConfig{
		QueueSize:     256,
		RetryInterval: 5 * time.Millisecond,
	}
}

// Manager owns the engine goroutine: it builds the engine, runs the
// UI-affinity queue and tears the engine down when the queue quits.
type Manager struct {
	factory Factory
	config  ManagerConfig
	queue   *TaskQueue
	logger  *zap.Logger

	startOnce sync.Once
	started   chan struct{}
	done      chan struct{}

	mu      sync.RWMutex
	engine  Engine
	initErr error
	running bool
}

// NewManager creates a manager. The engine is not built until Start.
func NewManager(factory Factory, cfg ManagerConfig, logger *zap.Logger) *Manager {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.RetryInterval <= 0 {
		cfg.RetryInterval = DefaultManagerConfig().RetryInterval
	}
	logger = logger.Named("engine")

	return &Manager{
		factory: factory,
		config:  cfg,
		queue:   NewTaskQueue(cfg.QueueSize, logger),
		logger:  logger,
		started: make(chan struct{}),
		done:    make(chan struct{}),
	}
}

// Start launches the engine goroutine once and waits until the engine is
// initialized. Later calls return the first result.
func (m *Manager) Start() error {
	m.startOnce.Do(func() {
		go m.run()
	})
	<-m.started

	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.initErr
}

func (m *Manager) run() {
	defer close(m.done)

	eng, err := m.factory(m.queue)

	m.mu.Lock()
	m.engine = eng
	m.initErr = err
	m.running = err == nil
	m.mu.Unlock()
	close(m.started)

	if err != nil {
		m.logger.Error("Engine initialization failed", zap.Error(err))
		return
	}
	m.logger.Info("Engine started")

	m.queue.Run()

	eng.Shutdown()

	m.mu.Lock()
	m.running = false
	m.mu.Unlock()
	m.logger.Info("Engine stopped")
}

// Engine returns the engine, or nil before Start succeeded
func (m *Manager) Engine() Engine {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.engine
}

// Queue returns the UI-affinity queue
func (m *Manager) Queue() *TaskQueue {
	return m.queue
}

// QueueTask posts task to the UI-affinity queue.
func (m *Manager) QueueTask(task Task) bool {
	return m.queue.Post(task)
}

// QueueTaskSync posts task and waits until it ran. It returns false when the
// task could not be posted.
func (m *Manager) QueueTaskSync(task Task) bool {
	return m.queue.PostSync(task)
}

// Shutdown stops the engine goroutine. It retries posting the quit request
// until it is enqueued, then waits for the goroutine to exit.
func (m *Manager) Shutdown() {
	select {
	case <-m.started:
	default:
		return
	}

	m.mu.RLock()
	running := m.running
	m.mu.RUnlock()
	if !running {
		<-m.done
		return
	}

	for !m.queue.Quit() {
		time.Sleep(m.config.RetryInterval)
	}
	<-m.done
}
