package strategies

import (
	"context"
	"fmt"
	"math/rand"

	"github.com/oriys/parsec/internal/location"
	"github.com/oriys/parsec/internal/par"
	"github.com/oriys/parsec/internal/registry"
)

// toEnvs lifts a typed slice to the []any ParClosureList and friends
// expect, matching the source's "lift each xs[i] to a closure" step —
// registry labels already carry the typed decode, so lifting here only
// needs to box the value for gob encoding downstream.
func toEnvs[T any](xs []T) []any {
	envs := make([]any, len(xs))
	for i, x := range xs {
		envs[i] = x
	}
	return envs
}

// ParMap lifts each element of xs to a closure, applies the registered
// thunk labeled f as a closure to it under ParClosureList, and returns
// results in input order. f must already be registered (via
// registry.Register) to decode a T and produce an R.
func ParMap[T, R any](rt *par.Runtime, f string, xs []T) ([]R, error) {
	if _, err := registry.Lookup(f); err != nil {
		return nil, err
	}
	return ParClosureList[R](rt, f, toEnvs(xs))
}

// ParMapNF is ParMap under forceCC. Go has no laziness to force past, so
// this is ParMap under another name — kept distinct so call sites can say
// "I want the fully-forced variant" the way source code does, even though
// the two are identical here.
func ParMapNF[T, R any](rt *par.Runtime, f string, xs []T) ([]R, error) {
	return ParMap[T, R](rt, f, xs)
}

// ParMapChunked is ParMap clustered into chunks of size k before sparking:
// one spark per chunk rather than one per element, trading fan-out
// parallelism for less per-task scheduling overhead.
func ParMapChunked[T, R any](rt *par.Runtime, f string, xs []T, k int) ([]R, error) {
	chunks := Chunk(xs, k)
	envs := make([]any, len(chunks))
	for i, c := range chunks {
		envs[i] = c
	}
	results, err := ParClosureList[[]R](rt, f, envs)
	if err != nil {
		return nil, err
	}
	return Unchunk(results), nil
}

// ParMapSliced is ParMap clustered by Slice instead of Chunk.
func ParMapSliced[T, R any](rt *par.Runtime, f string, xs []T, k int) ([]R, error) {
	slices := Slice(xs, k)
	envs := make([]any, len(slices))
	for i, s := range slices {
		envs[i] = s
	}
	results, err := ParClosureList[[]R](rt, f, envs)
	if err != nil {
		return nil, err
	}
	return Unslice(results), nil
}

// PushMap is ParMap's eager, round-robin-pushed counterpart: f/xs[i] runs
// on ns[i % len(ns)] via EXECUTE rather than sitting in a local spark pool.
func PushMap[T, R any](ctx context.Context, rt *par.Runtime, f string, ns []location.NodeId, xs []T) ([]R, error) {
	if _, err := registry.Lookup(f); err != nil {
		return nil, err
	}
	return PushClosureList[R](ctx, rt, f, ns, toEnvs(xs))
}

// PushRandMap is PushMap with a uniformly random target node per element
// instead of round-robin.
func PushRandMap[T, R any](ctx context.Context, rt *par.Runtime, f string, ns []location.NodeId, xs []T) ([]R, error) {
	if _, err := registry.Lookup(f); err != nil {
		return nil, err
	}
	return PushRandClosureList[R](ctx, rt, f, ns, toEnvs(xs))
}

// ParMapM and PushMapM accept a monadic function closure directly. Every
// registered thunk in this runtime already runs inside Par (it is invoked
// from inside runSpawned, itself always running on a scheduler worker), so
// there is no separate "pure function" vs "Par-returning function" split
// to make in Go the way the source material does — ParMapM/PushMapM are
// ParMap/PushMap under names that read correctly at monadic call sites.
func ParMapM[T, R any](rt *par.Runtime, f string, xs []T) ([]R, error) {
	return ParMap[T, R](rt, f, xs)
}

func PushMapM[T, R any](ctx context.Context, rt *par.Runtime, f string, ns []location.NodeId, xs []T) ([]R, error) {
	return PushMap[T, R](ctx, rt, f, ns, xs)
}

// ParMapM_ forks f/xs[i] onto the local ready queue for every i and
// discards the results: it never globalises an IVar for any of them, so
// elements run purely for their side effects.
func ParMapM_[T any](rt *par.Runtime, f string, xs []T) error {
	if _, err := registry.Lookup(f); err != nil {
		return err
	}
	for i, x := range xs {
		if err := par.ForkLabel(rt, f, x); err != nil {
			return fmt.Errorf("strategies: ParMapM_: fork element %d: %w", i, err)
		}
	}
	return nil
}

// PushMapM_ is ParMapM_'s eager, round-robin-pushed counterpart: every
// element is EXECUTEd on a target node with no result ever tracked back.
func PushMapM_[T any](rt *par.Runtime, f string, ns []location.NodeId, xs []T) error {
	if len(ns) == 0 {
		return fmt.Errorf("strategies: PushMapM_: no target nodes")
	}
	if _, err := registry.Lookup(f); err != nil {
		return err
	}
	for i, x := range xs {
		node := ns[i%len(ns)]
		if err := par.PushTo(rt, node, f, x); err != nil {
			return fmt.Errorf("strategies: PushMapM_: push element %d to %s: %w", i, node, err)
		}
	}
	return nil
}

// PushRandMapM_ is PushMapM_ with a uniformly random target node per
// element.
func PushRandMapM_[T any](rt *par.Runtime, f string, ns []location.NodeId, xs []T) error {
	if len(ns) == 0 {
		return fmt.Errorf("strategies: PushRandMapM_: no target nodes")
	}
	if _, err := registry.Lookup(f); err != nil {
		return err
	}
	for i, x := range xs {
		node := ns[rand.Intn(len(ns))]
		if err := par.PushTo(rt, node, f, x); err != nil {
			return fmt.Errorf("strategies: PushRandMapM_: push element %d to %s: %w", i, node, err)
		}
	}
	return nil
}
