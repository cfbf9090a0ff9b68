package strategies

import "testing"

func TestMapReduceRangeThreshMatchesSpecExample(t *testing.T) {
	const label = "mapreduce_test/identity-sum"
	rt := startTestRuntime(t, "mapreduce-node", "mapreduce-test")

	spec := MapReduceSpec[int]{
		Label:   label,
		F:       func(n int) int { return n },
		Combine: func(a, b int) int { return a + b },
		Zero:    0,
	}
	RegisterMapReduce(rt, spec)

	got := MapReduceRangeThresh(rt, spec, 1, 1000, 50)
	if got != 500500 {
		t.Fatalf("MapReduceRangeThresh(1, 1000, 50) = %d, want 500500", got)
	}
}

func TestMapReduceRangeThreshSingleSegment(t *testing.T) {
	const label = "mapreduce_test/single-segment"
	rt := startTestRuntime(t, "mapreduce-single-node", "mapreduce-single-test")

	spec := MapReduceSpec[int]{
		Label:   label,
		F:       func(n int) int { return n * n },
		Combine: func(a, b int) int { return a + b },
		Zero:    0,
	}
	RegisterMapReduce(rt, spec)

	got := MapReduceRangeThresh(rt, spec, 1, 5, 50)
	want := 1 + 4 + 9 + 16 + 25
	if got != want {
		t.Fatalf("MapReduceRangeThresh(1, 5, 50) = %d, want %d", got, want)
	}
}

func TestMapReduceRangeThreshMatchesSequentialFold(t *testing.T) {
	const label = "mapreduce_test/fold-equivalence"
	rt := startTestRuntime(t, "mapreduce-fold-node", "mapreduce-fold-test")

	spec := MapReduceSpec[int]{
		Label:   label,
		F:       func(n int) int { return n },
		Combine: func(a, b int) int { return a + b },
		Zero:    0,
	}
	RegisterMapReduce(rt, spec)

	const lo, hi, threshold = 1, 200, 7
	got := MapReduceRangeThresh(rt, spec, lo, hi, threshold)

	want := 0
	for i := lo; i <= hi; i++ {
		want += spec.F(i)
	}
	if got != want {
		t.Fatalf("MapReduceRangeThresh() = %d, want sequential fold %d", got, want)
	}
}
