package strategies

import "testing"

func TestChunkMatchesSpecExample(t *testing.T) {
	xs := []string{"c1", "c2", "c3", "c4", "c5"}
	got := Chunk(xs, 3)
	want := [][]string{{"c1", "c2", "c3"}, {"c4", "c5"}}

	if len(got) != len(want) {
		t.Fatalf("Chunk() groups = %d, want %d", len(got), len(want))
	}
	for i := range want {
		if !equalSlice(got[i], want[i]) {
			t.Fatalf("Chunk() group %d = %v, want %v", i, got[i], want[i])
		}
	}
}

func TestSliceMatchesSpecExample(t *testing.T) {
	xs := []string{"c1", "c2", "c3", "c4", "c5"}
	got := Slice(xs, 3)
	want := [][]string{{"c1", "c4"}, {"c2", "c5"}, {"c3"}}

	if len(got) != len(want) {
		t.Fatalf("Slice() groups = %d, want %d", len(got), len(want))
	}
	for i := range want {
		if !equalSlice(got[i], want[i]) {
			t.Fatalf("Slice() group %d = %v, want %v", i, got[i], want[i])
		}
	}
}

func TestUnchunkInvertsChunk(t *testing.T) {
	cases := [][]int{
		{},
		{1},
		{1, 2, 3, 4, 5, 6, 7},
		{1, 2, 3, 4, 5, 6, 7, 8, 9, 10},
	}
	for _, xs := range cases {
		for k := 1; k <= 4; k++ {
			got := Unchunk(Chunk(xs, k))
			if !equalSlice(got, xs) {
				t.Fatalf("Unchunk(Chunk(%v, %d)) = %v, want %v", xs, k, got, xs)
			}
		}
	}
}

func TestUnsliceInvertsSlice(t *testing.T) {
	cases := [][]int{
		{},
		{1},
		{1, 2, 3, 4, 5, 6, 7},
		{1, 2, 3, 4, 5, 6, 7, 8, 9, 10},
	}
	for _, xs := range cases {
		for k := 1; k <= 4; k++ {
			got := Unslice(Slice(xs, k))
			if !equalSlice(got, xs) {
				t.Fatalf("Unslice(Slice(%v, %d)) = %v, want %v", xs, k, got, xs)
			}
		}
	}
}

func TestEvalClusterByRoundTripsThroughIdentityStrategy(t *testing.T) {
	xs := []int{1, 2, 3, 4, 5}
	got, err := EvalClusterBy(xs,
		func(ys []int) [][]int { return Chunk(ys, 2) },
		Unchunk[int],
		R0[[][]int],
	)
	if err != nil {
		t.Fatalf("EvalClusterBy() error = %v", err)
	}
	if !equalSlice(got, xs) {
		t.Fatalf("EvalClusterBy() = %v, want %v", got, xs)
	}
}

func equalSlice[T comparable](a, b []T) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
