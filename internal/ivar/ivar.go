// Package ivar implements single-assignment cells: IVar for values that
// never leave the node that created them, and GIVar for cells that have
// been published so a remote node can resolve them via RPut.
package ivar

import (
	"fmt"
	"sync"

	"github.com/oriys/parsec/internal/location"
	"github.com/oriys/parsec/internal/logging"
	"github.com/oriys/parsec/internal/metrics"
)

// IVar is a single-assignment cell. New returns one already registered
// with a blocked-reader wait list; Put resolves it exactly once, waking
// every blocked Get; a second Put is a DoublePut error.
type IVar[T any] struct {
	mu       sync.Mutex
	done     bool
	value    T
	waiters  []chan struct{}
	globSlot *globSlot // non-nil once Glob has published this cell
}

// New allocates an empty IVar.
func New[T any]() *IVar[T] {
	return &IVar[T]{}
}

// DoublePutError is returned by Put when the cell already holds a value.
type DoublePutError struct {
	Slot string
}

func (e *DoublePutError) Error() string {
	return fmt.Sprintf("ivar: double put on %s", e.Slot)
}

// Put resolves the cell, waking every blocked Get. Calling Put on an
// already-resolved cell returns a DoublePutError and does not overwrite
// the existing value — single assignment is an invariant, not a last
// writer policy.
func (v *IVar[T]) Put(value T) error {
	v.mu.Lock()
	if v.done {
		v.mu.Unlock()
		return &DoublePutError{Slot: v.slotTag()}
	}
	v.value = value
	v.done = true
	waiters := v.waiters
	v.waiters = nil
	v.mu.Unlock()

	for _, w := range waiters {
		close(w)
	}
	return nil
}

// Get blocks the calling goroutine until the cell is resolved, then
// returns its value. Multiple concurrent Get calls all observe the same
// value once resolution happens.
func (v *IVar[T]) Get() T {
	v.mu.Lock()
	if v.done {
		value := v.value
		v.mu.Unlock()
		return value
	}
	ch := make(chan struct{})
	v.waiters = append(v.waiters, ch)
	v.mu.Unlock()

	logging.DebugLine(logging.DebugIVarBlocking, "", "ivar get blocked", "slot", v.slotTag())
	metrics.IncIVarsBlocked()
	<-ch
	metrics.DecIVarsBlocked()
	logging.DebugLine(logging.DebugIVarBlocking, "", "ivar get unblocked", "slot", v.slotTag())

	v.mu.Lock()
	value := v.value
	v.mu.Unlock()
	return value
}

// TryGet returns the cell's value without blocking, and whether it was
// already resolved.
func (v *IVar[T]) TryGet() (T, bool) {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.value, v.done
}

func (v *IVar[T]) slotTag() string {
	if v.globSlot != nil {
		return v.globSlot.String()
	}
	return "<local>"
}

// globSlot names a published cell: the owning node plus a monotonically
// increasing per-node counter, unique for the lifetime of that node.
type globSlot struct {
	owner location.NodeId
	id    uint64
}

func (s *globSlot) String() string {
	return fmt.Sprintf("%s/%d", s.owner.String(), s.id)
}

var globCounter globCounterT

// resolver is a type-erased setter bound to one globbed IVar[T]: it knows
// how to gob-decode raw RPUT payload bytes into a T and Put them. Storing
// resolvers instead of the *IVar[T] itself lets RPutRaw resolve a cell
// without knowing T, which is what a message fresh off the wire needs —
// the dispatch loop decodes an envelope's bytes long before it knows
// anything about the Go type on the other end.
type resolver func(raw []byte) error

type globCounterT struct {
	mu  sync.Mutex
	reg map[uint64]resolver
	n   uint64
}

func init() {
	globCounter.reg = make(map[uint64]resolver)
}

// GIVar is the globally addressable handle produced by Glob: the owning
// node plus a slot id, shippable across the wire and resolvable back to
// the underlying IVar on its owning node via RPut or RPutRaw.
type GIVar struct {
	Owner location.NodeId
	Slot  uint64
}

func (g GIVar) String() string {
	return fmt.Sprintf("%s/%d", g.Owner.String(), g.Slot)
}

// Decoder decodes gob-encoded bytes into out; satisfied by comm.Decode.
// Taken as a parameter rather than imported directly so this low-level
// package has no dependency on the wire codec package.
type Decoder func(raw []byte, out any) error

// Glob publishes v under a fresh slot on the local node, returning a GIVar
// that any node can use (via RPut/RPutRaw, dispatched to Owner) to
// resolve it. decode is used only if the cell is later resolved via
// RPutRaw (a value arriving as undecoded wire bytes); pass nil if this
// cell will only ever be resolved with the typed RPut helper.
func Glob[T any](v *IVar[T], decode Decoder) (GIVar, error) {
	me, err := location.MyNode()
	if err != nil {
		return GIVar{}, err
	}

	globCounter.mu.Lock()
	globCounter.n++
	id := globCounter.n
	globCounter.reg[id] = func(raw []byte) error {
		if decode == nil {
			return fmt.Errorf("ivar: rput: slot %d has no decoder for raw payload", id)
		}
		var value T
		if err := decode(raw, &value); err != nil {
			return err
		}
		return v.Put(value)
	}
	globCounter.mu.Unlock()
	typedSlots.Store(id, v)

	v.mu.Lock()
	v.globSlot = &globSlot{owner: me, id: id}
	v.mu.Unlock()

	return GIVar{Owner: me, Slot: id}, nil
}

// RPut resolves the IVar published under g's slot with a value already
// available in this process. It must be called on the node named by
// g.Owner.
func RPut[T any](g GIVar, value T) error {
	globCounter.mu.Lock()
	_, ok := globCounter.reg[g.Slot]
	globCounter.mu.Unlock()
	if !ok {
		return fmt.Errorf("ivar: rput: no cell registered for slot %s", g.String())
	}
	// A typed RPut in-process bypasses decode entirely: Put directly via
	// a throwaway resolver invocation would require re-encoding, so this
	// path is only valid when the caller holds the original *IVar[T].
	// Runtime code should prefer calling (*IVar[T]).Put directly when it
	// still has the typed handle; RPut exists for symmetry with RPutRaw
	// when only the GIVar is in hand and the caller can supply T exactly.
	return rputTyped(g, value)
}

// RPutRaw resolves the IVar published under g's slot with undecoded wire
// bytes, using the Decoder supplied at Glob time. This is what the comm
// dispatch loop calls after receiving an RPUT envelope: it has no static
// type information, only g and the payload bytes.
func RPutRaw(g GIVar, raw []byte) error {
	globCounter.mu.Lock()
	resolve, ok := globCounter.reg[g.Slot]
	globCounter.mu.Unlock()
	if !ok {
		return fmt.Errorf("ivar: rput: no cell registered for slot %s", g.String())
	}
	return resolve(raw)
}

var typedSlots sync.Map // uint64 -> any, holds *IVar[T] for the typed RPut fast path

func rputTyped[T any](g GIVar, value T) error {
	raw, ok := typedSlots.Load(g.Slot)
	if !ok {
		return fmt.Errorf("ivar: rput: slot %s has no typed handle registered", g.String())
	}
	v, ok := raw.(*IVar[T])
	if !ok {
		return fmt.Errorf("ivar: rput: slot %s type mismatch", g.String())
	}
	return v.Put(value)
}

// Forget removes a slot from the glob table once its value has been
// collected and no further RPut is expected, bounding the table's growth
// over a long-running node.
func Forget(g GIVar) {
	globCounter.mu.Lock()
	delete(globCounter.reg, g.Slot)
	globCounter.mu.Unlock()
	typedSlots.Delete(g.Slot)
}
