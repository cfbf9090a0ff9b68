package main

import (
	"github.com/oriys/parsec/internal/comm"
	"github.com/oriys/parsec/internal/par"
	"github.com/oriys/parsec/internal/registry"
	"github.com/oriys/parsec/internal/strategies"
)

const (
	labelFib       = "parsec/demo/fib"
	labelSumSquare = "parsec/demo/sum-square"
	labelDouble    = "parsec/demo/double"
)

var fibSpec = strategies.DivideConquerSpec[int, int]{
	Label:     labelFib,
	Trivial:   func(n int) bool { return n <= 1 },
	Decompose: func(n int) []int { return []int{n - 1, n - 2} },
	Combine:   func(_ int, results []int) int { return results[0] + results[1] },
	LeafSolve: func(n int) int { return n },
}

var sumSquareSpec = strategies.MapReduceSpec[int]{
	Label:   labelSumSquare,
	F:       func(n int) int { return n * n },
	Combine: func(a, b int) int { return a + b },
	Zero:    0,
}

// registerDemoClosures builds the static closure table every node in the
// cluster must construct identically before Seal. It is the only place
// cmd/parsec registers application-level work; everything else in this
// command is plumbing to get a Runtime up and running it.
func registerDemoClosures(rt *par.Runtime) {
	strategies.RegisterDivideConquer(rt, fibSpec)
	strategies.RegisterMapReduce(rt, sumSquareSpec)

	registry.Register(labelDouble, func(raw []byte) (any, error) {
		var n int
		if err := comm.Decode(raw, &n); err != nil {
			return nil, err
		}
		return n * 2, nil
	})
}
