// Package workers runs pipeline compilation jobs on a fixed set of
// goroutines.
package workers

import (
	"runtime"
	"sync"
)

// Pool is a fixed set of compiler goroutines.
//
// Each worker owns a queue and steals from the other queues when its own is
// empty, so one slow compile does not hold back the jobs queued behind it.
//
// Thread safety: Pool is safe for concurrent use.
type Pool struct {
	workers int
	queues  []chan func()

	done chan struct{}
	wg   sync.WaitGroup

	// mu orders enqueueing against Close: Run enqueues under the read
	// lock, Close closes done under the write lock.
	mu     sync.RWMutex
	closed bool
}

// New starts a pool with n workers. If n is 0 or negative, GOMAXPROCS is used.
func New(n int) *Pool {
	if n <= 0 {
		n = runtime.GOMAXPROCS(0)
	}

	depth := max(n*4, 8)
	p := &Pool{
		workers: n,
		queues:  make([]chan func(), n),
		done:    make(chan struct{}),
	}
	for i := range n {
		p.queues[i] = make(chan func(), depth)
	}

	p.wg.Add(n)
	for i := range n {
		go p.worker(i)
	}
	return p
}

func (p *Pool) worker(id int) {
	defer p.wg.Done()

	own := p.queues[id]
	for {
		select {
		case <-p.done:
			p.drain(own)
			return
		case job := <-own:
			p.run(job)
		default:
			if job := p.steal(id); job != nil {
				p.run(job)
				continue
			}
			select {
			case <-p.done:
				p.drain(own)
				return
			case job := <-own:
				p.run(job)
			}
		}
	}
}

func (p *Pool) run(job func()) {
	if job == nil {
		return
	}
	job()
}

func (p *Pool) drain(q chan func()) {
	for {
		select {
		case job := <-q:
			p.run(job)
		default:
			return
		}
	}
}

// steal takes one job from another worker's queue, or returns nil.
func (p *Pool) steal(self int) func() {
	for i := range p.workers {
		if i == self {
			continue
		}
		select {
		case job := <-p.queues[i]:
			return job
		default:
		}
	}
	return nil
}

// Run distributes jobs round-robin and waits until all of them finished.
// On a closed pool the jobs run on the calling goroutine.
func (p *Pool) Run(jobs []func()) {
	if len(jobs) == 0 {
		return
	}

	p.mu.RLock()
	if p.closed {
		p.mu.RUnlock()
		for _, job := range jobs {
			job()
		}
		return
	}

	var wg sync.WaitGroup
	wg.Add(len(jobs))
	for i, job := range jobs {
		p.queues[i%p.workers] <- func() {
			defer wg.Done()
			job()
		}
	}
	p.mu.RUnlock()

	wg.Wait()
}

// Close stops accepting jobs, runs everything still queued and waits for
// the workers to exit. A Run in progress finishes queuing first.
// Close is idempotent.
func (p *Pool) Close() {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return
	}
	p.closed = true
	close(p.done)
	p.mu.Unlock()

	p.wg.Wait()
}

// Workers returns the number of worker goroutines.
func (p *Pool) Workers() int { return p.workers }
