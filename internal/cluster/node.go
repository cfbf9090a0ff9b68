package cluster

import "time"

// NodeState represents the state of a node in the cluster
type NodeState string

const (
	NodeStateActive   NodeState = "active"   // Node is healthy and accepting FISH/SCHEDULE traffic
	NodeStateInactive NodeState = "inactive" // Node missed enough heartbeats to be presumed dead
	NodeStateDrained  NodeState = "drained"  // Node is finishing in-flight tasks, no new sparks routed to it
)

// Node represents a peer node in the cluster, as tracked by the local
// node's registry. Its load fields are self-reported by the peer's own
// heartbeat, not observed directly.
type Node struct {
	ID            string            `yaml:"id"`
	Address       string            `yaml:"address"` // host:port the comm layer dials
	State         NodeState         `yaml:"state"`
	Labels        map[string]string `yaml:"labels"`
	LastHeartbeat time.Time         `yaml:"last_heartbeat"`
	CreatedAt     time.Time         `yaml:"created_at"`
	UpdatedAt     time.Time         `yaml:"updated_at"`

	// Self-reported load. SparkPoolDepth, ActiveWorkers and Quiescent are
	// refreshed on every heartbeat; NumWorkers keeps the value given at
	// registration, since heartbeats do not update it.
	SparkPoolDepth int  `yaml:"spark_pool_depth"` // sparks currently sitting in this node's pool
	ActiveWorkers  int  `yaml:"active_workers"`   // workers currently running a task, not idle
	NumWorkers     int  `yaml:"num_workers"`      // total worker pool size
	Quiescent      bool `yaml:"quiescent"`        // true once this node believes the whole run is idle
}

// IsHealthy reports whether this node is Active and has heartbeated within
// timeout. A node that is Drained is, by definition, not a fishing target
// even if still heartbeating.
func (n *Node) IsHealthy(timeout time.Duration) bool {
	if n.State != NodeStateActive {
		return false
	}
	return time.Since(n.LastHeartbeat) < timeout
}

// AvailableSparkCapacity is a rough measure of how much unstarted work a
// node is holding: a low number means it is a poor FISH target (it has
// little to give away), a high number makes it attractive.
func (n *Node) AvailableSparkCapacity() int {
	return n.SparkPoolDepth
}

// LoadFactor returns 0-1: the fraction of this node's worker pool that is
// currently busy. 1.0 when NumWorkers is unknown, treating the node as
// fully loaded until it reports otherwise.
func (n *Node) LoadFactor() float64 {
	if n.NumWorkers <= 0 {
		return 1.0
	}
	return float64(n.ActiveWorkers) / float64(n.NumWorkers)
}
