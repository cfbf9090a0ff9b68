package comm

import (
	"testing"
	"time"
)

func TestChaosDisabledByDefault(t *testing.T) {
	DisableChaos()
	for i := 0; i < 100; i++ {
		if chaosDelayOrDrop() {
			t.Fatalf("chaosDelayOrDrop() = true with chaos disabled")
		}
	}
}

func TestChaosAlwaysDropsAtProbabilityOne(t *testing.T) {
	EnableChaos(1.0, 0)
	defer DisableChaos()

	for i := 0; i < 20; i++ {
		if !chaosDelayOrDrop() {
			t.Fatalf("chaosDelayOrDrop() = false with dropProb 1.0")
		}
	}
}

func TestChaosNeverDropsAtProbabilityZero(t *testing.T) {
	EnableChaos(0, time.Millisecond)
	defer DisableChaos()

	for i := 0; i < 20; i++ {
		if chaosDelayOrDrop() {
			t.Fatalf("chaosDelayOrDrop() = true with dropProb 0")
		}
	}
}
