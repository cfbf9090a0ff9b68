package scheduler

import (
	"context"
	"math/rand"
	"runtime"
	"sync/atomic"
	"time"

	"github.com/cenkalti/backoff/v5"

	"github.com/oriys/parsec/internal/logging"
	"github.com/oriys/parsec/internal/metrics"
)

// FishResult is what a FISH round against one victim produces.
type FishResult struct {
	Spark  Spark
	NoWork bool
}

// Fisher is implemented by the communication layer: it knows how to pick a
// victim node and exchange FISH/SCHEDULE/NOWORK messages with it. The
// scheduler package depends only on this interface so that it never has to
// import the comm package; internal/par implements it on top of comm and
// wires the two together.
type Fisher interface {
	// SelectVictim returns a peer's node id to try fishing next, or an
	// error if there is no reachable peer at all.
	SelectVictim() (string, error)
	// Fish sends a FISH message to victim and blocks for its reply: a
	// spark (SCHEDULE) or an empty result (NOWORK).
	Fish(ctx context.Context, victim string) (FishResult, error)
}

// Config bounds a Scheduler's worker pool size and fishing backoff.
type Config struct {
	NumWorkers int
	NodeTag    string // prefix for debug lines, e.g. "[node-1]"

	FishBackoffMin time.Duration
	FishBackoffMax time.Duration
}

// Scheduler owns one node's worker pool, spark pool, and ready queue, and
// drives the fishing protocol once local work runs out.
type Scheduler struct {
	cfg    Config
	sparks *SparkPool
	ready  *ReadyQueue
	fisher Fisher

	activeWorkers atomic.Int32
	tasksRun      atomic.Int64
	fishAttempts  atomic.Int64
	quiescent     atomic.Bool

	stopCh chan struct{}
	doneCh chan struct{}
}

// New constructs a Scheduler. fisher may be nil for a single-node run with
// no cluster to fish from; in that case a node that runs dry simply goes
// idle rather than fishing.
func New(cfg Config, fisher Fisher) *Scheduler {
	if cfg.NumWorkers <= 0 {
		cfg.NumWorkers = runtime.NumCPU()
	}
	if cfg.FishBackoffMin <= 0 {
		cfg.FishBackoffMin = time.Millisecond
	}
	if cfg.FishBackoffMax <= 0 {
		cfg.FishBackoffMax = 50 * time.Millisecond
	}

	return &Scheduler{
		cfg:    cfg,
		sparks: NewSparkPool(),
		ready:  NewReadyQueue(),
		fisher: fisher,
		stopCh: make(chan struct{}),
		doneCh: make(chan struct{}, cfg.NumWorkers),
	}
}

// Sparks exposes the spark pool so the Par runtime can push newly created
// sparks and the comm layer can steal one in reply to an inbound FISH.
func (s *Scheduler) Sparks() *SparkPool { return s.sparks }

// Submit enqueues an already-committed task directly onto the ready queue,
// bypassing the spark pool. Used for tasks created by Fork (eagerly
// scheduled, never sparked) and for sparks this node has decided to
// convert to a task itself.
func (s *Scheduler) Submit(task func()) {
	s.ready.Push(task)
}

// SparkPoolDepth and ActiveWorkers feed this node's outgoing heartbeats.
func (s *Scheduler) SparkPoolDepth() int   { return s.sparks.Len() }
func (s *Scheduler) ActiveWorkers() int    { return int(s.activeWorkers.Load()) }
func (s *Scheduler) TasksRun() int64       { return s.tasksRun.Load() }
func (s *Scheduler) IsQuiescent() bool     { return s.quiescent.Load() }

// Start launches the worker pool and blocks until Stop is called.
func (s *Scheduler) Start(ctx context.Context) {
	for i := 0; i < s.cfg.NumWorkers; i++ {
		go s.workerLoop(ctx, i)
	}
	<-s.stopCh
	s.ready.Close()
	for i := 0; i < s.cfg.NumWorkers; i++ {
		<-s.doneCh
	}
}

// Stop signals every worker to exit once its current task finishes. Tasks
// and sparks still queued at that point are not run.
func (s *Scheduler) Stop() {
	close(s.stopCh)
}

func (s *Scheduler) workerLoop(ctx context.Context, workerIdx int) {
	defer func() { s.doneCh <- struct{}{} }()

	bo := backoff.NewExponentialBackOff(
		backoff.WithInitialInterval(s.cfg.FishBackoffMin),
		backoff.WithMaxInterval(s.cfg.FishBackoffMax),
	)

	for {
		select {
		case <-s.stopCh:
			return
		default:
		}

		if task, ok := s.tryNextTask(); ok {
			bo.Reset()
			s.quiescent.Store(false)
			s.activeWorkers.Add(1)
			metrics.SetActiveWorkers(int(s.activeWorkers.Load()))
			task()
			s.activeWorkers.Add(-1)
			metrics.SetActiveWorkers(int(s.activeWorkers.Load()))
			s.tasksRun.Add(1)
			metrics.RecordTaskCompleted()
			continue
		}

		if s.fisher == nil {
			s.quiescent.Store(true)
			time.Sleep(s.cfg.FishBackoffMax)
			continue
		}

		s.fishOnce(ctx, bo)
	}
}

// tryNextTask pulls from the ready queue first (committed work takes
// priority over converting a fresh spark), then promotes one spark from
// the local pool into a running task.
func (s *Scheduler) tryNextTask() (func(), bool) {
	if t, ok := s.ready.TryPop(); ok {
		return t, true
	}

	spark, ok := s.sparks.PopLocal()
	if !ok {
		return nil, false
	}
	logging.DebugLine(logging.DebugSparkLifecycle, s.cfg.NodeTag, "spark converted to task",
		"label", spark.Label, "id", spark.ID)
	metrics.RecordSparkConverted(spark.Label)
	metrics.SetSparkPoolDepth(s.sparks.Len())
	return spark.Run, true
}

func (s *Scheduler) fishOnce(ctx context.Context, bo *backoff.ExponentialBackOff) {
	s.quiescent.Store(true)

	victim, err := s.fisher.SelectVictim()
	if err != nil {
		s.sleepBackoff(bo)
		return
	}

	s.fishAttempts.Add(1)
	metrics.RecordFishSent()
	logging.DebugLine(logging.DebugOutboundMessages, s.cfg.NodeTag, "sending FISH", "victim", victim)

	result, err := s.fisher.Fish(ctx, victim)
	if err != nil {
		s.sleepBackoff(bo)
		return
	}
	if result.NoWork {
		metrics.RecordFishNoWork()
		logging.DebugLine(logging.DebugInboundMessages, s.cfg.NodeTag, "received NOWORK", "victim", victim)
		s.sleepBackoff(bo)
		return
	}

	metrics.RecordSteal()
	logging.DebugLine(logging.DebugInboundMessages, s.cfg.NodeTag, "received SCHEDULE",
		"victim", victim, "label", result.Spark.Label)
	s.quiescent.Store(false)
	s.Submit(result.Spark.Run)
}

func (s *Scheduler) sleepBackoff(bo *backoff.ExponentialBackOff) {
	d := bo.NextBackOff()
	if d <= 0 {
		d = s.cfg.FishBackoffMax
	}
	jitter := time.Duration(rand.Int63n(int64(d) + 1))
	time.Sleep(jitter)
}
