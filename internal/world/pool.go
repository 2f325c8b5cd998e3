package world

import (
	"fmt"
	"log/slog"
	"runtime"
	"sync"
)

// taskQueue is a thread-safe unbounded FIFO of tasks.
//
// A buffered signal channel of size one wakes idle workers. Each
// successful dequeue that leaves work behind re-signals, so a burst of
// tasks fans out to every idle worker rather than one.
type taskQueue struct {
	mu     sync.Mutex
	tasks  []func()
	closed bool
	signal chan struct{}
}

func newTaskQueue() *taskQueue {
	return &taskQueue{
		tasks:  make([]func(), 0, 64),
		signal: make(chan struct{}, 1),
	}
}

// enqueue appends tasks. It returns false once the queue is closed.
func (q *taskQueue) enqueue(tasks ...func()) bool {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return false
	}
	q.tasks = append(q.tasks, tasks...)
	q.notifyLocked()
	return true
}

// tryDequeue pops the front task without blocking.
func (q *taskQueue) tryDequeue() (func(), bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if len(q.tasks) == 0 {
		return nil, false
	}
	task := q.tasks[0]
	// Nil the slot so the closure can be collected.
	q.tasks[0] = nil
	if len(q.tasks) == 1 {
		q.tasks = q.tasks[:0]
	} else {
		q.tasks = q.tasks[1:]
		q.notifyLocked()
	}
	return task, true
}

func (q *taskQueue) notifyLocked() {
	if q.closed {
		return
	}
	select {
	case q.signal <- struct{}{}:
	default:
	}
}

func (q *taskQueue) isClosed() bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.closed
}

// close wakes every waiter. Tasks already queued still run.
func (q *taskQueue) close() {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return
	}
	q.closed = true
	close(q.signal)
}

// Pool is a fixed set of worker goroutines fed from one task queue. It is
// created once and reused every tick; Run gives fork-join semantics on
// top of it.
type Pool struct {
	queue   *taskQueue
	workers int
	wg      sync.WaitGroup
}

// NewPool starts n workers. n <= 0 uses GOMAXPROCS.
func NewPool(n int) *Pool {
	if n <= 0 {
		n = runtime.GOMAXPROCS(0)
	}
	p := &Pool{queue: newTaskQueue(), workers: n}
	p.wg.Add(n)
	for i := 0; i < n; i++ {
		go p.work()
	}
	return p
}

// Workers is the number of worker goroutines.
func (p *Pool) Workers() int { return p.workers }

func (p *Pool) work() {
	defer p.wg.Done()
	for {
		if task, ok := p.queue.tryDequeue(); ok {
			task()
			continue
		}
		if p.queue.isClosed() {
			return
		}
		<-p.queue.signal
	}
}

// Run executes every task on the pool and returns when all of them have
// finished. A panicking task is logged and counted as done. After Close,
// Run executes the tasks on the calling goroutine.
func (p *Pool) Run(tasks []func()) {
	if len(tasks) == 0 {
		return
	}

	var done sync.WaitGroup
	done.Add(len(tasks))
	wrapped := make([]func(), len(tasks))
	for i, task := range tasks {
		wrapped[i] = func() {
			defer done.Done()
			defer func() {
				if r := recover(); r != nil {
					slog.Error("worker task panicked", "error", fmt.Sprint(r))
				}
			}()
			task()
		}
	}

	if !p.queue.enqueue(wrapped...) {
		for _, task := range wrapped {
			task()
		}
	}
	done.Wait()
}

// Close stops the workers after the queued tasks drain.
func (p *Pool) Close() {
	p.queue.close()
	p.wg.Wait()
}
