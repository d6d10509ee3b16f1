package core

import "sync"

// Dispatcher is the main-thread task queue. Scene state is only ever touched
// by tasks run from Drain, which the event loop calls on the goroutine that
// owns the GL context. Post is safe from any goroutine.
type Dispatcher struct {
	mu    sync.Mutex
	queue []func()
	wake  func()
}

// NewDispatcher creates a Dispatcher. wake, if non-nil, is called after every
// Post so a blocked event loop (glfw.WaitEvents) returns and drains the queue.
func NewDispatcher(wake func()) *Dispatcher {
	return &Dispatcher{wake: wake}
}

// Post enqueues fn to run on the next Drain.
func (d *Dispatcher) Post(fn func()) {
	if fn == nil {
		return
	}
	d.mu.Lock()
	d.queue = append(d.queue, fn)
	d.mu.Unlock()

	if d.wake != nil {
		d.wake()
	}
}

// Drain runs queued tasks in FIFO order, including tasks posted by tasks
// that run during this call. It returns the number of tasks executed.
func (d *Dispatcher) Drain() int {
	n := 0
	for {
		d.mu.Lock()
		batch := d.queue
		d.queue = nil
		d.mu.Unlock()

		if len(batch) == 0 {
			return n
		}
		for _, fn := range batch {
			fn()
			n++
		}
	}
}

// Pending reports how many tasks are waiting.
func (d *Dispatcher) Pending() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.queue)
}
