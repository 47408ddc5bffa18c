// Package queue implements the download scheduling core: one FIFO queue per
// chat composed with a process-wide admission semaphore. A chat never has
// more than one task executing, and the total number of executing tasks
// never exceeds the configured global limit.
package queue

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/semaphore"
)

// ErrClosed is returned by Submit after Shutdown has been called.
var ErrClosed = errors.New("queue: dispatcher closed")

// Task is one download-and-deliver request derived from an inbound message.
type Task struct {
	ID         string
	ChatID     int64
	Text       string
	ReceivedAt time.Time
}

// Handler runs one task to completion. It must not return before the task's
// terminal user-visible outcome has been produced; the next task of the same
// chat starts only after it returns. Errors are the handler's own business —
// a failing task never blocks the queue.
type Handler func(ctx context.Context, task Task)

type chatQueue struct {
	pending []Task
	running bool
}

// Dispatcher owns the per-chat queues and the global admission gate.
type Dispatcher struct {
	logger  *slog.Logger
	handler Handler
	sem     *semaphore.Weighted
	idleTTL time.Duration

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu     sync.Mutex
	queues map[int64]*chatQueue
	closed bool
}

// NewDispatcher creates a dispatcher with the given global concurrency limit.
// Chat queues are created lazily on first submit and evicted once they have
// been empty for idleTTL.
func NewDispatcher(log *slog.Logger, handler Handler, globalLimit int, idleTTL time.Duration) *Dispatcher {
	if log == nil {
		log = slog.Default()
	}
	if globalLimit <= 0 {
		globalLimit = 1
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Dispatcher{
		logger:  log.With(slog.String("component", "queue")),
		handler: handler,
		sem:     semaphore.NewWeighted(int64(globalLimit)),
		idleTTL: idleTTL,
		ctx:     ctx,
		cancel:  cancel,
		queues:  make(map[int64]*chatQueue),
	}
}

// Submit appends the task to its chat's queue, creating the queue if absent,
// and starts a drain goroutine when the chat has none running.
func (d *Dispatcher) Submit(task Task) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return ErrClosed
	}
	q, ok := d.queues[task.ChatID]
	if !ok {
		q = &chatQueue{}
		d.queues[task.ChatID] = q
	}
	q.pending = append(q.pending, task)
	if !q.running {
		q.running = true
		d.wg.Add(1)
		go d.drain(task.ChatID, q)
	}
	return nil
}

// drain pops heads in arrival order until the queue is empty. It is the only
// goroutine dequeuing for its chat, which is what serializes the chat.
func (d *Dispatcher) drain(chatID int64, q *chatQueue) {
	defer d.wg.Done()
	for {
		d.mu.Lock()
		if len(q.pending) == 0 {
			q.running = false
			d.scheduleEvict(chatID, q)
			d.mu.Unlock()
			return
		}
		task := q.pending[0]
		q.pending = q.pending[1:]
		d.mu.Unlock()

		if err := d.sem.Acquire(d.ctx, 1); err != nil {
			// Shutting down; pending tasks are dropped.
			d.mu.Lock()
			q.running = false
			d.mu.Unlock()
			return
		}
		d.run(task)
	}
}

func (d *Dispatcher) run(task Task) {
	defer d.sem.Release(1)
	defer func() {
		if r := recover(); r != nil {
			d.logger.Error("task panicked",
				slog.String("task_id", task.ID),
				slog.Int64("chat_id", task.ChatID),
				slog.Any("panic", r),
			)
		}
	}()
	d.handler(d.ctx, task)
}

// scheduleEvict removes the chat queue once it has stayed empty and idle for
// the TTL. Caller holds d.mu.
func (d *Dispatcher) scheduleEvict(chatID int64, q *chatQueue) {
	if d.idleTTL <= 0 {
		delete(d.queues, chatID)
		return
	}
	time.AfterFunc(d.idleTTL, func() {
		d.mu.Lock()
		defer d.mu.Unlock()
		if cur, ok := d.queues[chatID]; ok && cur == q && !q.running && len(q.pending) == 0 {
			delete(d.queues, chatID)
		}
	})
}

// ActiveChats reports how many chat queues currently exist.
func (d *Dispatcher) ActiveChats() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.queues)
}

// Shutdown rejects further submits, cancels in-flight task contexts, and
// waits for running tasks to return or ctx to expire. Queue state is held in
// memory only; whatever was pending is gone.
func (d *Dispatcher) Shutdown(ctx context.Context) error {
	d.mu.Lock()
	d.closed = true
	d.mu.Unlock()
	d.cancel()

	done := make(chan struct{})
	go func() {
		d.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
