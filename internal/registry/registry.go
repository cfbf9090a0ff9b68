// Package registry is the static closure table every node builds
// identically at startup: a label names a piece of code, and every node
// maps that label to the same function pointer before any task runs. A
// Closure that crosses the wire carries a label, not a function value;
// the receiving node looks the label up here to get something callable
// back.
package registry

import (
	"fmt"
	"sort"
	"sync"
	"sync/atomic"

	"github.com/oriys/parsec/internal/logging"
	"github.com/oriys/parsec/internal/metrics"
)

// Thunk is the shape every registered entry has: given the raw payload
// carried by a wire closure, decode the environment and return the value
// the closure stands for. This package only deals in this untyped
// function shape; internal/closure calls it from ForceClosure.
type Thunk func(env []byte) (any, error)

var (
	mu     sync.Mutex
	table  = map[string]Thunk{}
	sealed atomic.Bool
)

// Register adds a label to the static table. It must be called from an
// init() function or equivalent startup code, before Seal — registering
// the same label twice, or registering after Seal, is a programmer error
// and panics, since a static table that could silently diverge between
// nodes defeats the whole point of shipping labels instead of code.
func Register(label string, fn Thunk) {
	mu.Lock()
	defer mu.Unlock()

	if sealed.Load() {
		panic(fmt.Sprintf("registry: Register(%q) called after Seal", label))
	}
	if _, exists := table[label]; exists {
		panic(fmt.Sprintf("registry: duplicate label %q", label))
	}
	table[label] = fn
	logging.DebugLine(logging.DebugRegistryUpdates, "", "registry register", "label", label)
}

// Seal freezes the table. Called once, after every package's init() has
// registered its closures, before the node starts accepting work. Dumping
// the table (DebugStaticTableDump) only makes sense once sealed.
func Seal() {
	sealed.Store(true)

	if logging.DebugLevel() >= logging.DebugStaticTableDump {
		for _, label := range Labels() {
			logging.DebugLine(logging.DebugStaticTableDump, "", "registry entry", "label", label)
		}
	}
}

// Sealed reports whether Seal has run.
func Sealed() bool {
	return sealed.Load()
}

// Lookup resolves a label to its Thunk. RegistryMiss is the error kind
// returned when the label is unknown — either a version skew between
// nodes, or a label typo.
func Lookup(label string) (Thunk, error) {
	mu.Lock()
	defer mu.Unlock()

	fn, ok := table[label]
	metrics.RecordRegistryLookup(ok)
	if !ok {
		return nil, &MissError{Label: label}
	}
	return fn, nil
}

// Labels returns every registered label in sorted order, used for the
// startup table dump and for tests asserting two nodes agree.
func Labels() []string {
	mu.Lock()
	defer mu.Unlock()

	out := make([]string, 0, len(table))
	for label := range table {
		out = append(out, label)
	}
	sort.Strings(out)
	return out
}

// MissError is returned by Lookup for an unregistered label. It is the
// RegistryMiss error kind named in the runtime's fault model.
type MissError struct {
	Label string
}

func (e *MissError) Error() string {
	return fmt.Sprintf("registry: no entry for label %q", e.Label)
}
