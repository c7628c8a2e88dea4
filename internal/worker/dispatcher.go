// Package worker runs inbound events on a bounded pool while keeping
// each user's events strictly ordered.
package worker

import (
	"container/list"
	"context"
	"errors"
	"sync"
)

// ErrDispatcherBusy reports a full queue; the transport should ask the
// client to retry.
var ErrDispatcherBusy = errors.New("dispatcher queue full")

// Job is one unit of inbound work bound to a user.
type Job struct {
	UserID int64
	Run    func(ctx context.Context)
}

type userQueue struct {
	jobs    []Job
	running bool
	elem    *list.Element // non-nil while the user sits in the ready list
}

// Dispatcher fans jobs out to a fixed worker pool. Users are served
// round-robin; a user's next job is never started before the previous
// one finished, so session mutation stays a per-user critical section.
type Dispatcher struct {
	mu      sync.Mutex
	cond    *sync.Cond
	queues  map[int64]*userQueue
	ready   *list.List
	pending int
	limit   int
	closed  bool
	wg      sync.WaitGroup
}

// NewDispatcher starts workers goroutines that live until ctx ends.
func NewDispatcher(ctx context.Context, workers, queueSize int) *Dispatcher {
	if workers <= 0 {
		workers = 1
	}
	if queueSize <= 0 {
		queueSize = 64
	}
	d := &Dispatcher{
		queues: make(map[int64]*userQueue),
		ready:  list.New(),
		limit:  queueSize,
	}
	d.cond = sync.NewCond(&d.mu)

	for i := 0; i < workers; i++ {
		d.wg.Add(1)
		go d.work(ctx)
	}
	go func() {
		<-ctx.Done()
		d.mu.Lock()
		d.closed = true
		d.mu.Unlock()
		d.cond.Broadcast()
	}()
	return d
}

// Submit enqueues a job for its user. Jobs already queued keep their
// order; the total backlog is bounded by the configured queue size.
func (d *Dispatcher) Submit(job Job) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.closed || d.pending >= d.limit {
		return ErrDispatcherBusy
	}

	q := d.queues[job.UserID]
	if q == nil {
		q = &userQueue{}
		d.queues[job.UserID] = q
	}
	q.jobs = append(q.jobs, job)
	d.pending++

	if !q.running && q.elem == nil {
		q.elem = d.ready.PushBack(job.UserID)
		d.cond.Signal()
	}
	return nil
}

func (d *Dispatcher) work(ctx context.Context) {
	defer d.wg.Done()
	for {
		d.mu.Lock()
		for !d.closed && d.ready.Len() == 0 {
			d.cond.Wait()
		}
		if d.closed {
			d.mu.Unlock()
			return
		}

		elem := d.ready.Front()
		d.ready.Remove(elem)
		userID := elem.Value.(int64)
		q := d.queues[userID]
		q.elem = nil
		job := q.jobs[0]
		q.jobs = q.jobs[1:]
		d.pending--
		q.running = true
		d.mu.Unlock()

		job.Run(ctx)

		d.mu.Lock()
		q.running = false
		if len(q.jobs) > 0 {
			q.elem = d.ready.PushBack(userID)
			d.cond.Signal()
		} else {
			delete(d.queues, userID)
		}
		d.mu.Unlock()
	}
}

// Wait blocks until every worker has exited after context cancellation.
func (d *Dispatcher) Wait() {
	d.wg.Wait()
}
