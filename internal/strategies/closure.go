package strategies

import (
	"context"
	"fmt"
	"math/rand"

	"golang.org/x/sync/errgroup"

	"github.com/oriys/parsec/internal/ivar"
	"github.com/oriys/parsec/internal/location"
	"github.com/oriys/parsec/internal/par"
)

// SparkClosure is the sparkClosure proto-strategy: it sparks the
// computation registered under label with env and returns the IVar that
// will hold its result. par.Spark already performs the allocate-globalise-
// spark-then-rput sequence the source spells out by hand, so this is a
// thin, named wrapper kept for call sites that want to say "this is the
// sparkClosure proto-strategy" rather than reach past this package for
// par.Spark directly.
func SparkClosure[T any](rt *par.Runtime, label string, env any) (*ivar.IVar[T], error) {
	return par.Spark[T](rt, label, env)
}

// PushClosure is the pushClosure proto-strategy: as SparkClosure, but
// EXECUTEs eagerly on node rather than leaving the computation in the
// local spark pool to be run locally or stolen.
func PushClosure[T any](ctx context.Context, rt *par.Runtime, node location.NodeId, label string, env any) (*ivar.IVar[T], error) {
	return par.SpawnAt[T](ctx, rt, node, label, env)
}

// ParClosureList sparks label/env[i] for every i via SparkClosure, then
// collects each result in input order. The collection fan-in itself runs
// concurrently (one goroutine per element blocking on its IVar) so that a
// slow element doesn't hold up Get on the ones that finished first; their
// results are nonetheless written back into out at the right index, so
// the final order always matches xs.
func ParClosureList[T any](rt *par.Runtime, label string, xs []any) ([]T, error) {
	ivars := make([]*ivar.IVar[T], len(xs))
	for i, x := range xs {
		iv, err := SparkClosure[T](rt, label, x)
		if err != nil {
			return nil, fmt.Errorf("strategies: ParClosureList: spark %d: %w", i, err)
		}
		ivars[i] = iv
	}
	return collect(ivars), nil
}

// PushClosureList pushes label/env[i] to ns[i % len(ns)] — round-robin —
// then collects in input order.
func PushClosureList[T any](ctx context.Context, rt *par.Runtime, label string, ns []location.NodeId, xs []any) ([]T, error) {
	if len(ns) == 0 {
		return nil, fmt.Errorf("strategies: PushClosureList: no target nodes")
	}
	ivars := make([]*ivar.IVar[T], len(xs))
	for i, x := range xs {
		node := ns[i%len(ns)]
		iv, err := PushClosure[T](ctx, rt, node, label, x)
		if err != nil {
			return nil, fmt.Errorf("strategies: PushClosureList: push %d to %s: %w", i, node, err)
		}
		ivars[i] = iv
	}
	return collect(ivars), nil
}

// PushRandClosureList pushes label/env[i] to a uniformly random element of
// ns per task, then collects in input order.
func PushRandClosureList[T any](ctx context.Context, rt *par.Runtime, label string, ns []location.NodeId, xs []any) ([]T, error) {
	if len(ns) == 0 {
		return nil, fmt.Errorf("strategies: PushRandClosureList: no target nodes")
	}
	ivars := make([]*ivar.IVar[T], len(xs))
	for i, x := range xs {
		node := ns[rand.Intn(len(ns))]
		iv, err := PushClosure[T](ctx, rt, node, label, x)
		if err != nil {
			return nil, fmt.Errorf("strategies: PushRandClosureList: push %d to %s: %w", i, node, err)
		}
		ivars[i] = iv
	}
	return collect(ivars), nil
}

// collect blocks on every IVar concurrently and returns their values in
// slice order. It uses errgroup for the fan-out/join, the same shape this
// runtime's lineage uses for independent concurrent fetches: one goroutine
// per element blocking on its own IVar, joined back into a positional
// result slice, so a slow element never holds up the ones that finished
// first.
func collect[T any](ivars []*ivar.IVar[T]) []T {
	out := make([]T, len(ivars))
	g, _ := errgroup.WithContext(context.Background())
	for i, iv := range ivars {
		i, iv := i, iv
		g.Go(func() error {
			out[i] = par.Get(iv)
			return nil
		})
	}
	g.Wait()
	return out
}
