// Package closure implements serializable closures: values that carry
// enough information to reconstruct a callable on a remote node, by
// shipping a static label plus a captured environment instead of a raw
// function pointer.
//
// A Closure exists in one of three states. It starts Local, wrapping an
// actual Go value produced on this node. Encoding it for the wire sends a
// label plus a gob-encoded environment, without the original value.
// Decoding those bytes on the receiving node gives a Wire closure; forcing
// it looks the label up in the registry and produces a Forced closure,
// holding the reconstructed value. unClosure accepts either Local or Forced; it is
// only Wire closures in flight on an unopened envelope that cannot yet be
// unwrapped.
package closure

import (
	"bytes"
	"encoding/gob"
	"fmt"

	"github.com/oriys/parsec/internal/registry"
)

type state int

const (
	stateLocal state = iota
	stateWire
	stateForced
)

// Closure is a serializable unit of deferred computation: conceptually a
// value of type T plus enough information to reconstruct it elsewhere.
type Closure struct {
	state state
	value any    // set when state is stateLocal or stateForced
	label string // set in every state
	env   []byte // gob-encoded environment; set when state is stateWire, kept by ForceClosure
}

// ToClosure wraps a local value as a Closure, paired with the label that
// names how to reconstruct an equivalent value from an environment on any
// node (including this one, after a round trip). The label must already be
// registered; env is whatever the registered Thunk needs, gob-encoded by
// the caller via Capture.
func ToClosure(label string, value any) Closure {
	return Closure{state: stateLocal, value: value, label: label}
}

// Capture gob-encodes env and pairs it with label, producing a Wire
// closure with no local value — used at closure-construction sites that
// don't have a live value yet (e.g. wrapping a remote-bound spark before
// it runs). Encode sends the captured environment as is; ForceClosure
// resolves it through the registry like any other Wire closure.
func Capture(label string, env any) (Closure, error) {
	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(env); err != nil {
		return Closure{}, fmt.Errorf("closure: capture %q: %w", label, err)
	}
	return Closure{state: stateWire, label: label, env: buf.Bytes()}, nil
}

// UnClosure unwraps a Closure's value. It is valid on Local and Forced
// closures; calling it on a still-Wire closure (one just decoded off the
// network and not yet forced) panics, since that indicates a dispatch bug
// rather than a recoverable runtime condition.
func UnClosure(c Closure) any {
	switch c.state {
	case stateLocal, stateForced:
		return c.value
	default:
		panic("closure: UnClosure on an unforced wire closure")
	}
}

// Label returns the closure's label, valid in every state.
func (c Closure) Label() string { return c.label }

// IsWire reports whether c still needs ForceClosure before UnClosure can
// run.
func (c Closure) IsWire() bool { return c.state == stateWire }

// wireClosure is the gob-serializable representation of a Closure actually
// sent over the network: label plus environment, nothing else.
type wireClosure struct {
	Label string
	Env   []byte
}

// Encode serializes c for transmission. A Local closure with no captured
// environment (the common case — a closure over nothing but its label,
// like a thunk of type Par ()) encodes an empty environment.
func Encode(c Closure) ([]byte, error) {
	w := wireClosure{Label: c.label, Env: c.env}
	if c.state == stateLocal && w.Env == nil {
		var buf bytes.Buffer
		if err := gob.NewEncoder(&buf).Encode(c.value); err != nil {
			return nil, fmt.Errorf("closure: encode %q: %w", c.label, err)
		}
		w.Env = buf.Bytes()
	}

	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(w); err != nil {
		return nil, fmt.Errorf("closure: encode wire frame for %q: %w", c.label, err)
	}
	return buf.Bytes(), nil
}

// Decode reconstructs a Closure from wire bytes, leaving it in the Wire
// state until ForceClosure resolves the label against the local registry.
func Decode(data []byte) (Closure, error) {
	var w wireClosure
	if err := gob.NewDecoder(bytes.NewReader(data)).Decode(&w); err != nil {
		return Closure{}, fmt.Errorf("closure: decode wire frame: %w", err)
	}
	return Closure{state: stateWire, label: w.Label, env: w.Env}, nil
}

// ForceClosure resolves a Wire closure against the local static registry,
// producing a Forced closure whose value can be read with UnClosure. It is
// a no-op returning c unchanged for closures already Local or Forced.
func ForceClosure(c Closure) (Closure, error) {
	if c.state != stateWire {
		return c, nil
	}
	thunk, err := registry.Lookup(c.label)
	if err != nil {
		return Closure{}, err
	}
	value, err := thunk(c.env)
	if err != nil {
		return Closure{}, fmt.Errorf("closure: force %q: %w", c.label, err)
	}
	return Closure{state: stateForced, value: value, label: c.label, env: c.env}, nil
}

// ApC applies the already-forced function f to x and returns the result.
func ApC(f func(any) any, x any) any {
	return f(x)
}

// CompC returns the function composition g∘f as a plain Go func, for
// callers building a new Closure out of two already-forced ones via
// ToClosure under a fresh label.
func CompC(f, g func(any) any) func(any) any {
	return func(x any) any { return g(f(x)) }
}
