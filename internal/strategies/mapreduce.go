package strategies

import (
	"github.com/oriys/parsec/internal/comm"
	"github.com/oriys/parsec/internal/par"
	"github.com/oriys/parsec/internal/registry"
)

// rangeJob is the wire environment for a mapReduceRangeThresh recursive
// call: the remaining [Lo, Hi] segment and the threshold that was fixed
// for the whole computation.
type rangeJob struct {
	Lo, Hi, Threshold int
}

// MapReduceSpec bundles the leaf function and associative combiner a
// mapReduceRangeThresh skeleton needs.
type MapReduceSpec[R any] struct {
	Label   string
	F       func(int) R
	Combine func(R, R) R
	Zero    R
}

// RegisterMapReduce registers spec.Label so the upper half of a range can
// be sparked as a recursive closure call rather than solved inline. Call
// once per distinct map-reduce computation before sealing the registry.
func RegisterMapReduce[R any](rt *par.Runtime, spec MapReduceSpec[R]) {
	registry.Register(spec.Label, func(raw []byte) (any, error) {
		var job rangeJob
		if err := comm.Decode(raw, &job); err != nil {
			return nil, err
		}
		return MapReduceRangeThresh(rt, spec, job.Lo, job.Hi, job.Threshold), nil
	})
}

// MapReduceRangeThresh implements mapReduceRangeThresh over the inclusive
// range [lo, hi]: below threshold, it folds combine over f(lo)..f(hi)
// sequentially starting from zero; above it, it splits at the midpoint,
// sparks the upper half as a recursive call under spec.Label (lazy,
// stealable), solves the lower half locally in parallel with that spark
// running, and combines the lower result with the upper one.
func MapReduceRangeThresh[R any](rt *par.Runtime, spec MapReduceSpec[R], lo, hi, threshold int) R {
	if threshold < 1 {
		threshold = 1
	}
	if hi-lo <= threshold {
		acc := spec.Zero
		for i := lo; i <= hi; i++ {
			acc = spec.Combine(acc, spec.F(i))
		}
		return acc
	}

	mid := lo + (hi-lo)/2
	upperJob := rangeJob{Lo: mid + 1, Hi: hi, Threshold: threshold}

	upperIV, sparkErr := par.Spark[R](rt, spec.Label, upperJob)

	// The upper half now sits in the local spark pool, available to run on
	// this node's other workers or be stolen — solving the lower half here
	// proceeds concurrently with it rather than blocking on it first.
	lower := MapReduceRangeThresh(rt, spec, lo, mid, threshold)

	var upper R
	if sparkErr != nil {
		upper = MapReduceRangeThresh(rt, spec, mid+1, hi, threshold)
	} else {
		upper = par.Get(upperIV)
	}

	return spec.Combine(lower, upper)
}
