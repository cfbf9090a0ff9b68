package comm

import (
	"math/rand"
	"sync/atomic"
	"time"
)

// chaosState holds the process-wide chaos monkey configuration. It is
// never enabled by default and has no effect on RunParIO semantics when
// off — it exists purely to exercise the fault-handling paths described
// for a PeerUnreachable/dispatch-failure scenario without a real
// multi-machine cluster.
type chaosState struct {
	dropProb float64
	maxDelay time.Duration
}

var chaosCfg atomic.Pointer[chaosState]

// EnableChaos turns on synthetic outbound failure injection: each
// outbound envelope is dropped with probability dropProb, and otherwise
// delayed by a random duration up to maxDelay before it is sent.
func EnableChaos(dropProb float64, maxDelay time.Duration) {
	chaosCfg.Store(&chaosState{dropProb: dropProb, maxDelay: maxDelay})
}

// DisableChaos turns chaos injection back off.
func DisableChaos() {
	chaosCfg.Store(nil)
}

// chaosDelayOrDrop reports whether the caller should drop this send
// outright (returning an error to its caller, the same as a real network
// failure would), and otherwise sleeps the injected delay before the
// caller proceeds.
func chaosDelayOrDrop() (drop bool) {
	cfg := chaosCfg.Load()
	if cfg == nil {
		return false
	}
	if cfg.dropProb > 0 && rand.Float64() < cfg.dropProb {
		return true
	}
	if cfg.maxDelay > 0 {
		time.Sleep(time.Duration(rand.Int63n(int64(cfg.maxDelay) + 1)))
	}
	return false
}
