package strategies

import (
	"context"
	"math/rand"

	"github.com/oriys/parsec/internal/comm"
	"github.com/oriys/parsec/internal/ivar"
	"github.com/oriys/parsec/internal/location"
	"github.com/oriys/parsec/internal/par"
	"github.com/oriys/parsec/internal/registry"
)

// DivideConquerSpec bundles the four closures a divide-and-conquer skeleton
// needs: whether a problem is small enough to solve directly, how to break
// a non-trivial one into subproblems, how to solve a trivial one, and how
// to combine solved subproblems back into one result. The recursive step
// itself is registered as a closure under Label (by RegisterDivideConquer)
// so that a subproblem dispatched to a remote node can recurse there too,
// not just locally.
type DivideConquerSpec[T, R any] struct {
	Label     string
	Trivial   func(T) bool
	Decompose func(T) []T
	Combine   func(T, []R) R
	LeafSolve func(T) R
}

// RegisterDivideConquer registers spec.Label so SolveDivideConquer and
// SolveDivideConquerEager (and the skeleton's own recursive subproblem calls)
// can dispatch to it. It must be called once, before sealing the
// registry, for every distinct divide-and-conquer computation a program
// uses — the same way any other Par closure is registered.
func RegisterDivideConquer[T, R any](rt *par.Runtime, spec DivideConquerSpec[T, R]) {
	registry.Register(spec.Label, func(raw []byte) (any, error) {
		var x T
		if err := comm.Decode(raw, &x); err != nil {
			return nil, err
		}
		return SolveDivideConquer(rt, spec, x), nil
	})
}

// SolveDivideConquer runs spec against x directly: if x is trivial,
// LeafSolve alone produces the answer; otherwise Decompose's subproblems
// are each solved by sparking spec.Label recursively (lazy, stealable —
// parClosureMapM's shape), and Combine folds the children's results
// together once every one of them resolves.
func SolveDivideConquer[T, R any](rt *par.Runtime, spec DivideConquerSpec[T, R], x T) R {
	if spec.Trivial(x) {
		return spec.LeafSolve(x)
	}

	parts := spec.Decompose(x)
	ivars := make([]*ivar.IVar[R], len(parts))
	for i, p := range parts {
		iv, err := par.Spark[R](rt, spec.Label, p)
		if err != nil {
			result := SolveDivideConquer(rt, spec, p)
			fallback := ivar.New[R]()
			fallback.Put(result)
			iv = fallback
		}
		ivars[i] = iv
	}

	results := collect(ivars)
	return spec.Combine(x, results)
}

// SolveDivideConquerEager is SolveDivideConquer's eager counterpart:
// subproblems are EXECUTEd on a uniformly random peer (pushRandClosureMapM's
// shape) instead of left in the local spark pool for opportunistic
// stealing. Useful when the caller already knows the work is too large to
// usefully keep local.
func SolveDivideConquerEager[T, R any](ctx context.Context, rt *par.Runtime, spec DivideConquerSpec[T, R], ns []location.NodeId, x T) R {
	if spec.Trivial(x) || len(ns) == 0 {
		return spec.LeafSolve(x)
	}

	parts := spec.Decompose(x)
	ivars := make([]*ivar.IVar[R], len(parts))
	for i, p := range parts {
		node := ns[rand.Intn(len(ns))]
		iv, err := par.SpawnAt[R](ctx, rt, node, spec.Label, p)
		if err != nil {
			result := SolveDivideConquerEager(ctx, rt, spec, ns, p)
			fallback := ivar.New[R]()
			fallback.Put(result)
			iv = fallback
		}
		ivars[i] = iv
	}

	results := collect(ivars)
	return spec.Combine(x, results)
}
