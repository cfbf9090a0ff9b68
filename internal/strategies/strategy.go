// Package strategies composes the task monad's spark/push/IVar primitives
// from internal/par into the higher-level skeletons: list strategies,
// parallel map families, divide-and-conquer, and threshold map-reduce.
//
// A Strategy in the source system is `a -> Par a`: it forces a value for
// its evaluation-order side effect and hands back an equal value. Go has
// no laziness, so every value reaching a Strategy here is already in
// normal form by construction — R0/RSeq/RDeepSeq all collapse to the
// identity function. They are kept as distinct named values anyway so
// call sites read the same way the source material does, and so a future
// strategy that genuinely does something (e.g. touches every element of a
// slice to force a decode) has somewhere to live.
package strategies

import "github.com/oriys/parsec/internal/ivar"

// Strategy is a semantic identity: applying it to a value never changes
// what using reports back, only (conceptually) when the value became
// available.
type Strategy[T any] func(T) (T, error)

// Using applies s to x and returns the result, mirroring the source
// `using x s = s x` (argument order flipped so s reads as the strategy
// being used, matching Go's usual function-last convention).
func Using[T any](x T, s Strategy[T]) (T, error) {
	return s(x)
}

// R0 does nothing: x is already exactly what Using returns.
func R0[T any](x T) (T, error) { return x, nil }

// RSeq would force x to head-normal form in a lazy host language. Go
// values passed to a Strategy are already fully evaluated, so this is R0
// under another name, kept for call sites that want to say "I mean WHNF
// forcing" even though Go gives them that for free.
func RSeq[T any](x T) (T, error) { return x, nil }

// RDeepSeq is RSeq's full-normal-form counterpart; same reasoning.
func RDeepSeq[T any](x T) (T, error) { return x, nil }

// ProtoStrategy returns a pending result instead of forcing to a value
// directly — the handle through which sparkClosure/pushClosure report
// their outstanding computation. The pending result is an IVar: the cell
// sparkClosure/pushClosure resolve once their wrapped computation
// finishes.
type ProtoStrategy[T any] func(T) (*ivar.IVar[T], error)
