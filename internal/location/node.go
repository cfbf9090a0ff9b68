// Package location owns node identity: the opaque NodeId type and the
// process-wide "who am I" / "who else is there" singletons that every other
// package in this runtime reads from instead of threading a context value
// through every call.
package location

import (
	"errors"
	"fmt"
	"sort"
	"sync/atomic"
)

// ErrNodeIdUnset is returned by MyNode when it is called before the
// communication layer has completed Init. It corresponds to the
// NodeIdUnset error kind in the runtime's fault model.
var ErrNodeIdUnset = errors.New("location: local node id read before init")

// NodeId identifies a single node in the fixed cluster. It is opaque,
// totally ordered (by Less), serializable (it round-trips through
// String/NewNodeId), hashable (it is a plain string under the
// hood, usable as a map key), and displayable (String).
type NodeId struct {
	id string
}

// NewNodeId wraps an externally generated identifier (typically a UUID or
// a stable "host:port" string from configuration) as a NodeId.
func NewNodeId(id string) NodeId {
	return NodeId{id: id}
}

// IsZero reports whether this is the zero NodeId, i.e. never assigned.
func (n NodeId) IsZero() bool { return n.id == "" }

// String implements fmt.Stringer.
func (n NodeId) String() string { return n.id }

// Less gives NodeId a total order, for deterministic iteration in tests.
// It does not decide the main node: MainNode is the first entry of the
// published node list.
func (n NodeId) Less(other NodeId) bool { return n.id < other.id }

// Equal reports whether two NodeIds name the same node.
func (n NodeId) Equal(other NodeId) bool { return n.id == other.id }

// MarshalBinary / UnmarshalBinary make NodeId serializable for the wire
// envelope and for gob-encoded closure payloads that embed a NodeId (e.g.
// a GIVar owner field).
func (n NodeId) MarshalBinary() ([]byte, error) { return []byte(n.id), nil }

func (n *NodeId) UnmarshalBinary(data []byte) error {
	n.id = string(data)
	return nil
}

var (
	myNodeRef   atomic.Pointer[NodeId]
	allNodesRef atomic.Pointer[[]NodeId]
)

// SetMyNode is called exactly once by the communication layer during
// startup (spec §6 step (3)/(4)). Calling it twice is a programmer error
// but is tolerated (last writer wins) since nothing downstream depends on
// idempotence beyond "set before first read".
func SetMyNode(id NodeId) {
	myNodeRef.Store(&id)
}

// SetAllNodes publishes the ordered node list, main node first, as produced
// by the main node during startup step (4). Subsequent reads via AllNodes
// observe this exact slice (copied defensively).
func SetAllNodes(nodes []NodeId) {
	cp := make([]NodeId, len(nodes))
	copy(cp, nodes)
	allNodesRef.Store(&cp)
}

// MyNode returns the local node's identity, or ErrNodeIdUnset if Init has
// not run yet. This is the "fails with a specific error kind" variant
// named in spec §6.
func MyNode() (NodeId, error) {
	p := myNodeRef.Load()
	if p == nil {
		return NodeId{}, ErrNodeIdUnset
	}
	return *p, nil
}

// MyNodeOrAbsent is the non-failing counterpart of MyNode (named myNode' in
// spec §6): it returns (id, true) once set, or (zero, false) before Init.
func MyNodeOrAbsent() (NodeId, bool) {
	p := myNodeRef.Load()
	if p == nil {
		return NodeId{}, false
	}
	return *p, true
}

// AllNodes returns the published node list (main node first), or nil if it
// has not been published yet.
func AllNodes() []NodeId {
	p := allNodesRef.Load()
	if p == nil {
		return nil
	}
	cp := make([]NodeId, len(*p))
	copy(cp, *p)
	return cp
}

// MainNode returns the head of AllNodes, which is the designated main node
// by construction (spec §6 step (4)).
func MainNode() (NodeId, bool) {
	nodes := AllNodes()
	if len(nodes) == 0 {
		return NodeId{}, false
	}
	return nodes[0], true
}

// IsMainNode reports whether the local node is the main node.
func IsMainNode() bool {
	me, err := MyNode()
	if err != nil {
		return false
	}
	main, ok := MainNode()
	return ok && me.Equal(main)
}

// Peers returns AllNodes minus the local node, in stable order.
func Peers() []NodeId {
	me, err := MyNode()
	all := AllNodes()
	if err != nil {
		return all
	}
	out := make([]NodeId, 0, len(all))
	for _, n := range all {
		if !n.Equal(me) {
			out = append(out, n)
		}
	}
	return out
}

// OrderedCopy returns a sorted copy of ids, used when constructing a
// deterministic main-first node list from an unordered peer set.
func OrderedCopy(ids []NodeId) []NodeId {
	out := make([]NodeId, len(ids))
	copy(out, ids)
	sort.Slice(out, func(i, j int) bool { return out[i].Less(out[j]) })
	return out
}

// Tag formats a NodeId for use as the prefix of a debug line, per spec §6
// ("each [line] prefixed by the emitting node's identifier").
func (n NodeId) Tag() string {
	return fmt.Sprintf("[%s]", n.id)
}
