// Package scheduler runs the per-node worker pool: a fixed number of
// goroutines that pull ready tasks off a queue, and a spark pool of
// cheap, not-yet-started units of work that get promoted to tasks
// locally or handed away to a remote node that FISHes for one.
package scheduler

import (
	"sync"

	"github.com/oriys/parsec/internal/metrics"
)

// Spark is a unit of potential parallel work sitting in the spark pool,
// not yet converted into a running task. It carries enough information
// (a wire-encodable closure) that it can be shipped to a remote node
// verbatim if that node fishes for it before this one gets around to
// running it locally.
type Spark struct {
	ID      uint64
	Label   string // the closure's registry label, for debug lines
	Run     func() // the actual computation, already forced locally
	Payload []byte // wire-encoded closure, used only when shipping remotely
}

// SparkPool is a node's local collection of sparks awaiting conversion to
// tasks. It behaves like a work-stealing deque: the owning node pushes and
// pops from one end (PushLocal/PopLocal), while a remote FISH reply steals
// from the other end (StealOldest) so that local consumption and remote
// stealing contend as little as possible.
type SparkPool struct {
	mu      sync.Mutex
	sparks  []Spark
	nextID  uint64
}

// NewSparkPool creates an empty spark pool.
func NewSparkPool() *SparkPool {
	return &SparkPool{}
}

// PushLocal adds a newly created spark to the pool, returning the id
// assigned to it.
func (p *SparkPool) PushLocal(label string, run func()) uint64 {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.nextID++
	id := p.nextID
	p.sparks = append(p.sparks, Spark{ID: id, Label: label, Run: run})
	metrics.RecordSparkCreated(label)
	return id
}

// PushWireSpark adds a spark that carries both a local Run closure and its
// wire-encoded payload, so it can either be converted here or handed to a
// remote node in a SCHEDULE reply.
func (p *SparkPool) PushWireSpark(label string, payload []byte, run func()) uint64 {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.nextID++
	id := p.nextID
	p.sparks = append(p.sparks, Spark{ID: id, Label: label, Run: run, Payload: payload})
	metrics.RecordSparkCreated(label)
	return id
}

// PopLocal removes and returns the most recently pushed spark (LIFO), the
// order that keeps a single node's own depth-first recursion cache-warm.
// Returns false if the pool is empty.
func (p *SparkPool) PopLocal() (Spark, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()

	n := len(p.sparks)
	if n == 0 {
		return Spark{}, false
	}
	s := p.sparks[n-1]
	p.sparks = p.sparks[:n-1]
	return s, true
}

// StealOldest removes and returns the oldest spark in the pool (FIFO from
// the opposite end PopLocal drains), the spark handed out in reply to a
// remote FISH. Stealing from the opposite end of local consumption
// minimizes contention between the two and gives away the work the local
// node was going to get around to last.
func (p *SparkPool) StealOldest() (Spark, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if len(p.sparks) == 0 {
		return Spark{}, false
	}
	s := p.sparks[0]
	p.sparks = p.sparks[1:]
	return s, true
}

// Len reports the current spark pool depth, used both locally (deciding
// whether to fish) and for the self-reported SparkPoolDepth published in
// this node's heartbeats.
func (p *SparkPool) Len() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.sparks)
}

// ReadyQueue is the task queue workers pull from: a blocking FIFO of
// already-started, runnable tasks. Unlike the spark pool, tasks on this
// queue are never shipped to another node — by the time work reaches
// here it has committed to running on this node.
type ReadyQueue struct {
	mu     sync.Mutex
	cond   *sync.Cond
	tasks  []func()
	closed bool
}

// NewReadyQueue creates an empty ready queue.
func NewReadyQueue() *ReadyQueue {
	q := &ReadyQueue{}
	q.cond = sync.NewCond(&q.mu)
	return q
}

// Push enqueues a task and wakes one blocked worker.
func (q *ReadyQueue) Push(task func()) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return
	}
	q.tasks = append(q.tasks, task)
	q.cond.Signal()
}

// Pop blocks until a task is available or the queue is closed, returning
// (nil, false) in the latter case.
func (q *ReadyQueue) Pop() (func(), bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	for len(q.tasks) == 0 && !q.closed {
		q.cond.Wait()
	}
	if len(q.tasks) == 0 {
		return nil, false
	}
	t := q.tasks[0]
	q.tasks = q.tasks[1:]
	return t, true
}

// TryPop returns immediately: a queued task, or (nil, false) if none is
// available right now. Unlike Pop, it never blocks waiting for a future
// Push — the caller (a worker deciding whether to convert a spark or go
// fishing instead) cannot afford to sit in cond.Wait while a task it
// glimpsed via Len gets stolen by a racing worker first.
func (q *ReadyQueue) TryPop() (func(), bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if len(q.tasks) == 0 {
		return nil, false
	}
	t := q.tasks[0]
	q.tasks = q.tasks[1:]
	return t, true
}

// Len reports the number of tasks currently queued (not counting any
// already pulled by a worker).
func (q *ReadyQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.tasks)
}

// Close wakes every blocked worker so they can exit; Pop after Close
// always returns (nil, false) once the queue drains.
func (q *ReadyQueue) Close() {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.closed = true
	q.cond.Broadcast()
}
