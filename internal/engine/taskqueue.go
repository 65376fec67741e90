package engine

import (
	"errors"
	"sync"

	"go.uber.org/zap"
)

var (
	ErrQueueClosed = errors.New("task queue is closed")
	ErrQueueFull   = errors.New("task queue is full")
)

// Task is a unit of work run on the UI-affinity goroutine.
type Task func()

type queueItem struct {
	task Task
	quit bool
}

// TaskQueue is a single-consumer FIFO bound to one goroutine, the
// UI-affinity context. Posting never blocks.
type TaskQueue struct {
	items  chan queueItem
	logger *zap.Logger

	mu     sync.RWMutex
	closed bool
}

// NewTaskQueue creates a queue holding at most size pending tasks
func NewTaskQueue(size int, logger *zap.Logger) *TaskQueue {
	if size <= 0 {
		size = 256
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &TaskQueue{
		items:  make(chan queueItem, size),
		logger: logger,
	}
}

// Post enqueues task. It returns false when the queue is closed or full.
func (q *TaskQueue) Post(task Task) bool {
	return q.TryPost(task) == nil
}

// TryPost enqueues task and reports why it could not.
func (q *TaskQueue) TryPost(task Task) error {
	if task == nil {
		return nil
	}
	return q.push(queueItem{task: task})
}

// PostSync enqueues task and waits for it to finish. It returns false
// without waiting when the task could not be posted. Must not be called from
// the queue's own goroutine.
func (q *TaskQueue) PostSync(task Task) bool {
	done := make(chan struct{})
	ok := q.Post(func() {
		defer close(done)
		task()
	})
	if !ok {
		return false
	}
	<-done
	return true
}

// Quit asks the consumer to stop after the tasks already queued. It returns
// false when the request could not be enqueued and should be retried.
func (q *TaskQueue) Quit() bool {
	err := q.push(queueItem{quit: true})
	return err == nil || errors.Is(err, ErrQueueClosed)
}

// Closed reports whether the queue stopped accepting tasks.
func (q *TaskQueue) Closed() bool {
	q.mu.RLock()
	defer q.mu.RUnlock()
	return q.closed
}

func (q *TaskQueue) push(item queueItem) error {
	q.mu.RLock()
	defer q.mu.RUnlock()

	if q.closed {
		return ErrQueueClosed
	}

	select {
	case q.items <- item:
		return nil
	default:
		return ErrQueueFull
	}
}

// Run consumes tasks on the calling goroutine until Quit is processed.
// Tasks queued ahead of the quit request still run.
func (q *TaskQueue) Run() {
	for item := range q.items {
		if item.quit {
			q.mu.Lock()
			q.closed = true
			q.mu.Unlock()
			q.drain()
			return
		}
		q.execute(item.task)
	}
}

func (q *TaskQueue) drain() {
	for {
		select {
		case item := <-q.items:
			if !item.quit {
				q.execute(item.task)
			}
		default:
			return
		}
	}
}

func (q *TaskQueue) execute(task Task) {
	defer func() {
		if r := recover(); r != nil {
			q.logger.Error("Task panicked", zap.Any("panic", r))
		}
	}()
	task()
}
