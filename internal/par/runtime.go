// Package par is the public face of the task monad: Fork/Spark/Spawn
// create parallel work, Get/Put/Glob/RPut operate on single-assignment
// cells, and PushTo/SpawnAt place work on a specific remote node. Every
// other package in this runtime (registry, closure, ivar, scheduler,
// comm, cluster) is wiring that Runtime assembles into one cohesive
// system; application code only ever touches this package plus registry
// (to register its closures) and ivar (for the IVar/GIVar types
// themselves).
package par

import (
	"context"
	"fmt"
	"net"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/oriys/parsec/internal/cluster"
	"github.com/oriys/parsec/internal/comm"
	"github.com/oriys/parsec/internal/ivar"
	"github.com/oriys/parsec/internal/location"
	"github.com/oriys/parsec/internal/logging"
	"github.com/oriys/parsec/internal/metrics"
	"github.com/oriys/parsec/internal/observability"
	"github.com/oriys/parsec/internal/registry"
	"github.com/oriys/parsec/internal/scheduler"
)

// Config configures a Runtime for one node.
type Config struct {
	NumWorkers     int
	NodeTag        string
	RequestTimeout time.Duration
	FishBackoffMin time.Duration
	FishBackoffMax time.Duration

	ClusterConfig *cluster.Config
}

// Runtime is one node's live task-monad machinery: its worker pool and
// spark pool (via scheduler.Scheduler), its peer registry and victim
// selector (via cluster.Registry/Scheduler), and its wire listener (via
// comm.Dispatcher).
type Runtime struct {
	sched      *scheduler.Scheduler
	disp       *comm.Dispatcher
	clusterReg *cluster.Registry
	nodeTag    string
	reqTimeout time.Duration
}

// NewRuntime wires a Runtime together. It registers every inbound message
// handler but does not start listening or running workers; call Listen
// and then RunParIO (or Start) to actually go live.
func NewRuntime(cfg Config) *Runtime {
	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = 2 * time.Second
	}
	clusterCfg := cfg.ClusterConfig
	if clusterCfg == nil {
		me, _ := location.MyNodeOrAbsent()
		clusterCfg = cluster.DefaultConfig(me.String())
	}

	clusterReg := cluster.NewRegistry(clusterCfg)
	victims := cluster.NewScheduler(clusterReg, cluster.StrategyRandom)
	disp := comm.NewDispatcher(cfg.NodeTag)

	rt := &Runtime{
		disp:       disp,
		clusterReg: clusterReg,
		nodeTag:    cfg.NodeTag,
		reqTimeout: cfg.RequestTimeout,
	}

	fisher := &commFisher{rt: rt, victims: victims, clusterReg: clusterReg, requestTO: cfg.RequestTimeout}
	rt.sched = scheduler.New(scheduler.Config{
		NumWorkers:     cfg.NumWorkers,
		NodeTag:        cfg.NodeTag,
		FishBackoffMin: cfg.FishBackoffMin,
		FishBackoffMax: cfg.FishBackoffMax,
	}, fisher)

	rt.registerHandlers()
	return rt
}

// Scheduler exposes the underlying scheduler, for cmd/parsec's status
// reporting and for tests.
func (rt *Runtime) Scheduler() *scheduler.Scheduler { return rt.sched }

// ClusterRegistry exposes the peer registry, for wiring node membership
// at startup and for heartbeat dispatch.
func (rt *Runtime) ClusterRegistry() *cluster.Registry { return rt.clusterReg }

func (rt *Runtime) registerHandlers() {
	rt.disp.Handle(comm.KindFish, func(c *comm.Codec, kind comm.Kind, raw []byte) {
		var msg comm.FishMsg
		comm.Decode(raw, &msg)
		ctx := observability.InjectTraceContext(context.Background(), observability.TraceContext{TraceParent: msg.TraceParent, TraceState: msg.TraceState})
		_, span := observability.StartServerSpan(ctx, "par.fish.receive", observability.AttrPeerNodeID.String(msg.From))
		defer span.End()

		spark, ok := rt.sched.Sparks().StealOldest()
		if !ok {
			c.Send(comm.KindNoWork, comm.NoWorkMsg{})
			return
		}
		c.Send(comm.KindSchedule, comm.ScheduleMsg{Label: spark.Label, Payload: spark.Payload})
	})

	rt.disp.Handle(comm.KindExecute, func(c *comm.Codec, kind comm.Kind, raw []byte) {
		var msg comm.ExecuteMsg
		if err := comm.Decode(raw, &msg); err != nil {
			logging.Op().Error("decode EXECUTE failed", "error", err)
			return
		}
		ctx := observability.InjectTraceContext(context.Background(), observability.TraceContext{TraceParent: msg.TraceParent, TraceState: msg.TraceState})
		_, span := observability.StartServerSpan(ctx, "par.execute.receive", observability.AttrClosureLabel.String(msg.Label))
		span.End()

		label, payload := msg.Label, msg.Payload
		rt.sched.Submit(func() { rt.runSpawned(label, payload) })
	})

	rt.disp.Handle(comm.KindRPut, func(c *comm.Codec, kind comm.Kind, raw []byte) {
		var msg comm.RPutMsg
		if err := comm.Decode(raw, &msg); err != nil {
			logging.Op().Error("decode RPUT failed", "error", err)
			return
		}
		ctx := observability.InjectTraceContext(context.Background(), observability.TraceContext{TraceParent: msg.TraceParent, TraceState: msg.TraceState})
		_, span := observability.StartServerSpan(ctx, "par.rput.receive", observability.AttrGIVarSlot.Int64(int64(msg.Slot)))
		defer span.End()

		me, _ := location.MyNode()
		if err := ivar.RPutRaw(ivar.GIVar{Owner: me, Slot: msg.Slot}, msg.Payload); err != nil {
			logging.DebugLine(logging.DebugGIVarOps, rt.nodeTag, "rput failed", "slot", msg.Slot, "error", err)
			observability.SetSpanError(span, err)
		}
	})

	rt.disp.Handle(comm.KindHeartbeat, func(c *comm.Codec, kind comm.Kind, raw []byte) {
		var msg comm.HeartbeatMsg
		if err := comm.Decode(raw, &msg); err != nil {
			return
		}
		rt.clusterReg.UpdateHeartbeat(msg.NodeID, msg.SparkPoolDepth, msg.ActiveWorkers, msg.Quiescent)
	})

	rt.disp.Handle(comm.KindShutdown, func(c *comm.Codec, kind comm.Kind, raw []byte) {
		logging.Op().Info("received SHUTDOWN", "node", rt.nodeTag)
		rt.sched.Stop()
	})

	rt.disp.Handle(comm.KindQuiesce, func(c *comm.Codec, kind comm.Kind, raw []byte) {
		var msg comm.QuiesceMsg
		if err := comm.Decode(raw, &msg); err != nil {
			return
		}
		metrics.RecordQuiescenceRound()
		me, _ := location.MyNode()
		c.Send(comm.KindQuiesce, comm.QuiesceReplyMsg{
			Round:     msg.Round,
			Quiescent: rt.sched.IsQuiescent(),
			NodeID:    me.String(),
		})
	})
}

// Listen starts accepting connections on addr and returns the listener's
// actual address (useful when addr has a ":0" port).
func (rt *Runtime) Listen(addr string) (net.Addr, error) {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("par: listen on %s: %w", addr, err)
	}
	go rt.disp.Serve(ln)
	return ln.Addr(), nil
}

func (rt *Runtime) resolveLocal(slot uint64, raw []byte) error {
	me, _ := location.MyNode()
	return ivar.RPutRaw(ivar.GIVar{Owner: me, Slot: slot}, raw)
}

func (rt *Runtime) sendRPut(ownerNode string, slot uint64, raw []byte) error {
	node, err := rt.clusterReg.GetNode(ownerNode)
	if err != nil {
		return err
	}

	ctx, span := observability.StartSpan(context.Background(), "par.rput",
		observability.AttrPeerNodeID.String(ownerNode), observability.AttrGIVarSlot.Int64(int64(slot)))
	defer span.End()
	tc := observability.ExtractTraceContext(ctx)

	start := time.Now()
	err = rt.disp.SendPersistent(node.Address, rt.reqTimeout, comm.KindRPut,
		comm.RPutMsg{Slot: slot, Payload: raw, TraceParent: tc.TraceParent, TraceState: tc.TraceState})
	metrics.RecordDispatchLatency("rput", float64(time.Since(start).Milliseconds()))
	if err != nil {
		observability.SetSpanError(span, err)
	}
	return err
}

// WarmPeerConnections dials every peer's address concurrently so the
// first Heartbeat/EXECUTE/RPUT sent after startup reuses an
// already-established connection instead of paying a dial on the hot
// path. Intended to run once, right after the cluster registry is
// seeded with peers.
func (rt *Runtime) WarmPeerConnections(timeout time.Duration) error {
	peers := location.Peers()
	addrs := make([]string, 0, len(peers))
	for _, peer := range peers {
		node, err := rt.clusterReg.GetNode(peer.String())
		if err != nil {
			continue
		}
		addrs = append(addrs, node.Address)
	}
	return rt.disp.WarmConnections(addrs, timeout)
}

// Heartbeat sends this node's current load to every peer, intended to run
// on a ticker from cmd/parsec's node command.
func (rt *Runtime) Heartbeat() {
	me, err := location.MyNode()
	if err != nil {
		return
	}
	msg := comm.HeartbeatMsg{
		NodeID:         me.String(),
		SparkPoolDepth: rt.sched.SparkPoolDepth(),
		ActiveWorkers:  rt.sched.ActiveWorkers(),
		Quiescent:      rt.sched.IsQuiescent(),
	}
	for _, peer := range location.Peers() {
		node, err := rt.clusterReg.GetNode(peer.String())
		if err != nil {
			continue
		}
		if err := rt.disp.SendPersistent(node.Address, rt.reqTimeout, comm.KindHeartbeat, msg); err != nil {
			rt.clusterReg.RecordDispatchFailure(peer.String())
		}
	}
}

// ProbeClusterQuiescence implements the main node's side of the
// distributed termination check: it FISHes every peer's local quiescent
// flag over KindQuiesce in parallel via errgroup, and the whole cluster is
// only reported quiescent once this node's own scheduler and every peer
// agree in the same round. One slow or unreachable peer answers false
// rather than stalling the others, since a dispatch failure counts as
// "not yet quiescent" instead of blocking the probe.
func (rt *Runtime) ProbeClusterQuiescence(ctx context.Context, round int) bool {
	if !rt.sched.IsQuiescent() {
		return false
	}

	peers := location.Peers()
	if len(peers) == 0 {
		return true
	}

	results := make([]bool, len(peers))
	g, gctx := errgroup.WithContext(ctx)
	for i, peer := range peers {
		i, peer := i, peer
		g.Go(func() error {
			select {
			case <-gctx.Done():
				return nil
			default:
			}
			node, err := rt.clusterReg.GetNode(peer.String())
			if err != nil {
				return nil
			}
			kind, raw, err := comm.Request(node.Address, rt.reqTimeout, comm.KindQuiesce, comm.QuiesceMsg{Round: round})
			if err != nil || kind != comm.KindQuiesce {
				rt.clusterReg.RecordDispatchFailure(peer.String())
				return nil
			}
			var reply comm.QuiesceReplyMsg
			if err := comm.Decode(raw, &reply); err != nil {
				return nil
			}
			results[i] = reply.Round == round && reply.Quiescent
			return nil
		})
	}
	_ = g.Wait()

	for _, q := range results {
		if !q {
			return false
		}
	}
	return true
}

// Fork starts fn as a new, eagerly scheduled parallel computation: it is
// placed straight on the ready queue and will never be given away to a
// remote FISH. Use Spark instead when the work might not be worth running
// at all (e.g. below a divide-and-conquer threshold) or might be cheaper
// to ship elsewhere than to run here.
func Fork(rt *Runtime, fn func()) {
	rt.sched.Submit(fn)
}

// Spark creates a lazy, potentially remote unit of work: the registered
// label's thunk is invoked with env either by this node (if nothing steals
// it first) or by whichever remote node next FISHes successfully. The
// returned IVar resolves with the thunk's result either way.
func Spark[T any](rt *Runtime, label string, env any) (*ivar.IVar[T], error) {
	return spawnInto[T](rt, label, env, true)
}

// Spawn is Spark's synonym, matching the task-monad naming used
// elsewhere in this package's surface (SpawnAt being its remote-targeted
// counterpart).
func Spawn[T any](rt *Runtime, label string, env any) (*ivar.IVar[T], error) {
	return Spark[T](rt, label, env)
}

func spawnInto[T any](rt *Runtime, label string, env any, local bool) (*ivar.IVar[T], error) {
	if _, err := registry.Lookup(label); err != nil {
		return nil, err
	}

	closureEnv, err := encodeClosureEnv(label, env)
	if err != nil {
		return nil, err
	}

	iv := ivar.New[T]()
	g, err := ivar.Glob(iv, comm.Decode)
	if err != nil {
		return nil, err
	}

	wrapped := spawnEnvelope{Closure: closureEnv, OwnerNode: g.Owner.String(), Slot: g.Slot, HasResult: true}
	payload, err := encodeSpawnEnvelope(wrapped)
	if err != nil {
		return nil, err
	}

	if local {
		rt.sched.Sparks().PushWireSpark(label, payload, func() {
			rt.runSpawned(label, payload)
		})
	}
	return iv, nil
}

// SpawnAt eagerly pushes the registered label's computation to node via
// EXECUTE, skipping the local spark pool (and thus never subject to being
// FISHed away, since it never sits locally at all). The returned IVar
// resolves once node computes the result and RPuts it back.
func SpawnAt[T any](ctx context.Context, rt *Runtime, node location.NodeId, label string, env any) (*ivar.IVar[T], error) {
	if _, err := registry.Lookup(label); err != nil {
		return nil, err
	}

	closureEnv, err := encodeClosureEnv(label, env)
	if err != nil {
		return nil, err
	}

	iv := ivar.New[T]()
	g, err := ivar.Glob(iv, comm.Decode)
	if err != nil {
		return nil, err
	}

	wrapped := spawnEnvelope{Closure: closureEnv, OwnerNode: g.Owner.String(), Slot: g.Slot, HasResult: true}
	payload, err := encodeSpawnEnvelope(wrapped)
	if err != nil {
		return nil, err
	}

	peer, err := rt.clusterReg.GetNode(node.String())
	if err != nil {
		return nil, err
	}
	logging.DebugLine(logging.DebugOutboundMessages, rt.nodeTag, "sending EXECUTE", "to", node.String(), "label", label)

	spanCtx, span := observability.StartSpan(ctx, "par.execute",
		observability.AttrClosureLabel.String(label), observability.AttrPeerNodeID.String(node.String()))
	defer span.End()
	tc := observability.ExtractTraceContext(spanCtx)

	start := time.Now()
	err = rt.disp.SendPersistent(peer.Address, rt.reqTimeout, comm.KindExecute,
		comm.ExecuteMsg{Label: label, Payload: payload, TraceParent: tc.TraceParent, TraceState: tc.TraceState})
	metrics.RecordDispatchLatency("execute", float64(time.Since(start).Milliseconds()))
	if err != nil {
		rt.clusterReg.RecordDispatchFailure(node.String())
		observability.SetSpanError(span, err)
		return nil, err
	}
	return iv, nil
}

// ForkLabel runs the registered label's computation locally and
// immediately, like Fork, but looks the computation up by registry label
// and environment rather than taking a Go closure directly — the shape
// ParMapM_ and friends need to fire off a registered element function
// without tracking its result at all. No IVar is created.
func ForkLabel(rt *Runtime, label string, env any) error {
	if _, err := registry.Lookup(label); err != nil {
		return err
	}
	closureEnv, err := encodeClosureEnv(label, env)
	if err != nil {
		return err
	}
	payload, err := encodeSpawnEnvelope(spawnEnvelope{Closure: closureEnv, HasResult: false})
	if err != nil {
		return err
	}
	rt.sched.Submit(func() { rt.runSpawned(label, payload) })
	return nil
}

// PushTo eagerly pushes label/env to node for its side effects only; no
// IVar is created and no result ever comes back.
func PushTo(rt *Runtime, node location.NodeId, label string, env any) error {
	if _, err := registry.Lookup(label); err != nil {
		return err
	}
	closureEnv, err := encodeClosureEnv(label, env)
	if err != nil {
		return err
	}
	payload, err := encodeSpawnEnvelope(spawnEnvelope{Closure: closureEnv, HasResult: false})
	if err != nil {
		return err
	}

	peer, err := rt.clusterReg.GetNode(node.String())
	if err != nil {
		return err
	}

	spanCtx, span := observability.StartSpan(context.Background(), "par.execute",
		observability.AttrClosureLabel.String(label), observability.AttrPeerNodeID.String(node.String()))
	defer span.End()
	tc := observability.ExtractTraceContext(spanCtx)

	start := time.Now()
	err = rt.disp.SendPersistent(peer.Address, rt.reqTimeout, comm.KindExecute,
		comm.ExecuteMsg{Label: label, Payload: payload, TraceParent: tc.TraceParent, TraceState: tc.TraceState})
	metrics.RecordDispatchLatency("execute", float64(time.Since(start).Milliseconds()))
	if err != nil {
		rt.clusterReg.RecordDispatchFailure(node.String())
		observability.SetSpanError(span, err)
		return err
	}
	return nil
}

// Get blocks until iv resolves and returns its value.
func Get[T any](iv *ivar.IVar[T]) T { return iv.Get() }

// Put resolves iv with value, failing with a DoublePutError if it was
// already resolved.
func Put[T any](iv *ivar.IVar[T], value T) error { return iv.Put(value) }

// New allocates an empty IVar.
func New[T any]() *ivar.IVar[T] { return ivar.New[T]() }

// GlobVar publishes iv so a remote node can RPut it; named GlobVar (not
// Glob) to avoid colliding with Go's gob-registration-style naming
// conventions elsewhere in this package.
func GlobVar[T any](iv *ivar.IVar[T]) (ivar.GIVar, error) {
	return ivar.Glob(iv, comm.Decode)
}

// RPut resolves the cell named by g with value, directly in-process.
func RPut[T any](g ivar.GIVar, value T) error { return ivar.RPut(g, value) }

// RunParIO runs fn to completion as the top-level driver of this node's
// Par runtime: it starts the worker pool, submits fn as the initial task,
// waits for it to return, then stops the scheduler. fn typically calls
// Get on one or more IVars to block for its children's results before
// returning.
func RunParIO(ctx context.Context, rt *Runtime, fn func()) {
	go rt.sched.Start(ctx)

	done := make(chan struct{})
	rt.sched.Submit(func() {
		fn()
		close(done)
	})

	<-done
	rt.sched.Stop()
}
