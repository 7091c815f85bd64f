// Package pool runs named periodic jobs, such as cache sampling and package
// warming, on a fixed number of workers. Jobs run earliest deadline first.
package pool

import (
	"context"
	"fmt"
	"slices"
	"sync"
	"time"
)

// Job runs once and returns when it wants to run next. A zero time removes
// the job from the pool.
type Job func(context.Context) time.Time

// Pool keeps its jobs ordered by deadline. Adding or triggering a job wakes
// a waiting worker so an earlier deadline is never missed.
type Pool struct {
	ctx   context.Context
	mu    sync.Mutex
	queue []*task
	reg   map[string]*task
	wait  chan struct{}
	done  sync.WaitGroup
}

type task struct {
	name     string
	fn       Job
	deadline time.Time
	rerun    bool
}

// New starts workers that stop once ctx is done.
func New(ctx context.Context, workers int) *Pool {
	p := &Pool{ctx: ctx, reg: make(map[string]*task)}

	for range max(workers, 1) {
		p.done.Add(1)
		go p.work()
	}

	return p
}

// Add schedules fn to run now.
func (p *Pool) Add(name string, fn Job) {
	p.enqueue(&task{name: name, fn: fn, deadline: time.Now()})
}

// Every schedules fn to run now and then every interval after it returns.
func (p *Pool) Every(name string, interval time.Duration, fn func(context.Context)) {
	p.Add(name, func(ctx context.Context) time.Time {
		fn(ctx)
		return time.Now().Add(interval)
	})
}

// Wait blocks until all workers stopped.
func (p *Pool) Wait() {
	p.done.Wait()
}

func (p *Pool) work() {
	defer p.done.Done()

	for {
		t, ok := p.dequeue()
		if !ok {
			return
		}
		p.enqueue(t.execute(p.ctx))
	}
}

// Trigger runs the named job now. A queued job moves to the front; a running
// job runs again as soon as it finishes, after which its own deadlines apply.
func (p *Pool) Trigger(name string) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if i := slices.IndexFunc(p.queue, func(t *task) bool { return t.name == name }); i != -1 {
		p.queue[i].deadline = time.Now()
		p.sortAndWake()
		return nil
	}

	if t, ok := p.reg[name]; ok {
		t.rerun = true
		return nil
	}

	return fmt.Errorf("no job with name %s", name)
}

// sortAndWake must be called with p.mu held.
func (p *Pool) sortAndWake() {
	slices.SortFunc(p.queue, func(a, b *task) int {
		return a.deadline.Compare(b.deadline)
	})

	if p.wait != nil {
		close(p.wait)
		p.wait = nil
	}
}

func (p *Pool) enqueue(t *task) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if t.deadline.IsZero() {
		delete(p.reg, t.name)
		return
	}

	p.reg[t.name] = t
	p.queue = append(p.queue, t)
	p.sortAndWake()
}

// dequeue blocks until the earliest job is due. It reports false once the
// pool's context is done.
func (p *Pool) dequeue() (*task, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()

	for {
		if p.ctx.Err() != nil {
			return nil, false
		}

		wakeAt := time.Now().Add(24 * time.Hour)
		if len(p.queue) > 0 {
			wakeAt = p.queue[0].deadline
		}

		if len(p.queue) > 0 && !wakeAt.After(time.Now()) {
			break
		}

		if p.wait == nil {
			p.wait = make(chan struct{})
		}
		wait := p.wait

		p.mu.Unlock()

		timer := time.NewTimer(time.Until(wakeAt))
		select {
		case <-timer.C:
		case <-wait:
		case <-p.ctx.Done():
		}
		timer.Stop()

		p.mu.Lock()
	}

	var t *task
	t, p.queue = p.queue[0], p.queue[1:]
	return t, true
}

func (t *task) execute(ctx context.Context) *task {
	t.deadline = t.fn(ctx)
	if t.rerun {
		t.rerun = false
		t.deadline = time.Now()
	}
	return t
}
