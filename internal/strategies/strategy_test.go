package strategies

import "testing"

func TestStrategyIdentity(t *testing.T) {
	strategies := map[string]Strategy[int]{
		"r0":       R0[int],
		"rseq":     RSeq[int],
		"rdeepseq": RDeepSeq[int],
	}
	for name, s := range strategies {
		t.Run(name, func(t *testing.T) {
			got, err := Using(42, s)
			if err != nil {
				t.Fatalf("Using() error = %v", err)
			}
			if got != 42 {
				t.Fatalf("Using() = %d, want 42 (semantic identity)", got)
			}
		})
	}
}

func TestStrategyIdentityOnSlices(t *testing.T) {
	xs := []int{1, 2, 3}
	got, err := Using(xs, RDeepSeq[[]int])
	if err != nil {
		t.Fatalf("Using() error = %v", err)
	}
	if len(got) != 3 || got[0] != 1 || got[2] != 3 {
		t.Fatalf("Using() = %v, want %v unchanged", got, xs)
	}
}
