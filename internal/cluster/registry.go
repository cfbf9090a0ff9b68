package cluster

import (
	"fmt"
	"sync"
	"time"

	"github.com/oriys/parsec/internal/circuitbreaker"
	"github.com/oriys/parsec/internal/logging"
)

// Registry tracks every peer this node knows about: the fixed cluster
// membership published at startup, each peer's self-reported load, and a
// circuit breaker per peer that trips on repeated heartbeat or dispatch
// failures, flagging that peer PeerUnreachable.
type Registry struct {
	localNodeID string
	nodes       map[string]*Node
	mu          sync.RWMutex

	breakers         *circuitbreaker.Registry
	breakerCfg       circuitbreaker.Config
	heartbeatTimeout time.Duration
	stopCh           chan struct{}
}

// Config holds cluster registry configuration.
type Config struct {
	NodeID              string
	HealthCheckInterval time.Duration
	HeartbeatTimeout    time.Duration

	// BreakerErrorPct/BreakerWindow/BreakerOpenDuration configure the
	// per-peer circuit breaker; a node whose recent dispatch error rate
	// crosses BreakerErrorPct is treated as PeerUnreachable until the
	// breaker half-opens and a probe succeeds.
	BreakerErrorPct     float64
	BreakerWindow       time.Duration
	BreakerOpenDuration time.Duration
}

// DefaultConfig returns default cluster configuration.
func DefaultConfig(nodeID string) *Config {
	return &Config{
		NodeID:              nodeID,
		HealthCheckInterval: 2 * time.Second,
		HeartbeatTimeout:    5 * time.Second,
		BreakerErrorPct:     60,
		BreakerWindow:       10 * time.Second,
		BreakerOpenDuration: 5 * time.Second,
	}
}

// NewRegistry creates a new node registry.
func NewRegistry(cfg *Config) *Registry {
	if cfg == nil {
		cfg = DefaultConfig("node-local")
	}

	return &Registry{
		localNodeID:      cfg.NodeID,
		nodes:            make(map[string]*Node),
		breakers:         circuitbreaker.NewRegistry(),
		heartbeatTimeout: cfg.HeartbeatTimeout,
		breakerCfg: circuitbreaker.Config{
			ErrorPct:       cfg.BreakerErrorPct,
			WindowDuration: cfg.BreakerWindow,
			OpenDuration:   cfg.BreakerOpenDuration,
			HalfOpenProbes: 1,
		},
		stopCh: make(chan struct{}),
	}
}

// RegisterNode adds or replaces a peer in the registry. Called once per
// peer named in the published node list at startup. A zero LastHeartbeat
// is set to the registration time; a non-zero one is kept as given.
func (r *Registry) RegisterNode(node *Node) {
	r.mu.Lock()
	defer r.mu.Unlock()

	node.UpdatedAt = time.Now()
	if node.LastHeartbeat.IsZero() {
		node.LastHeartbeat = node.UpdatedAt
	}
	if node.State == "" {
		node.State = NodeStateActive
	}
	if node.CreatedAt.IsZero() {
		node.CreatedAt = node.UpdatedAt
	}

	r.nodes[node.ID] = node
	logging.Op().Info("peer registered", "id", node.ID, "address", node.Address)
}

// UpdateHeartbeat records a HEARTBEAT message's self-reported load for a
// peer and records the contact as a circuit breaker success.
func (r *Registry) UpdateHeartbeat(nodeID string, depth, activeWorkers int, quiescent bool) error {
	r.mu.Lock()
	node, exists := r.nodes[nodeID]
	if !exists {
		r.mu.Unlock()
		return fmt.Errorf("cluster: unknown peer %s", nodeID)
	}

	node.LastHeartbeat = time.Now()
	node.SparkPoolDepth = depth
	node.ActiveWorkers = activeWorkers
	node.Quiescent = quiescent
	if node.State == NodeStateInactive {
		node.State = NodeStateActive
		logging.Op().Info("peer recovered", "id", nodeID)
	}
	r.mu.Unlock()

	if b := r.breakers.Get(nodeID, r.breakerCfg); b != nil {
		b.RecordSuccess()
	}
	return nil
}

// RecordDispatchFailure records a failed send to a peer against its
// circuit breaker. Once the breaker trips Open, IsReachable reports false
// for that peer even if its heartbeat timer has not yet expired.
func (r *Registry) RecordDispatchFailure(nodeID string) {
	if b := r.breakers.Get(nodeID, r.breakerCfg); b != nil {
		b.RecordFailure()
	}
}

// IsReachable reports whether nodeID is both heartbeat-healthy and not
// circuit-broken. This is the PeerUnreachable predicate used before
// routing a FISH or EXECUTE to a candidate victim.
func (r *Registry) IsReachable(nodeID string) bool {
	r.mu.RLock()
	node, exists := r.nodes[nodeID]
	r.mu.RUnlock()
	if !exists || !node.IsHealthy(r.heartbeatTimeout) {
		return false
	}

	if b := r.breakers.Get(nodeID, r.breakerCfg); b != nil {
		return b.State() != circuitbreaker.StateOpen
	}
	return true
}

// GetNode retrieves a node by ID.
func (r *Registry) GetNode(nodeID string) (*Node, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	node, exists := r.nodes[nodeID]
	if !exists {
		return nil, fmt.Errorf("cluster: node %s not found", nodeID)
	}
	return node, nil
}

// ListNodes returns all registered nodes, including unhealthy ones.
func (r *Registry) ListNodes() []*Node {
	r.mu.RLock()
	defer r.mu.RUnlock()

	nodes := make([]*Node, 0, len(r.nodes))
	for _, node := range r.nodes {
		nodes = append(nodes, node)
	}
	return nodes
}

// ListHealthyNodes returns every peer this node currently considers a
// valid fishing target: not itself, heartbeat-healthy, and not
// circuit-broken.
func (r *Registry) ListHealthyNodes() []*Node {
	r.mu.RLock()
	defer r.mu.RUnlock()

	nodes := make([]*Node, 0, len(r.nodes))
	for id, node := range r.nodes {
		if id == r.localNodeID {
			continue
		}
		if !node.IsHealthy(r.heartbeatTimeout) {
			continue
		}
		if b := r.breakers.Get(id, r.breakerCfg); b != nil && b.State() == circuitbreaker.StateOpen {
			continue
		}
		nodes = append(nodes, node)
	}
	return nodes
}

// RemoveNode drops a node from the registry. Used for a deliberate
// cluster resize; ordinary node death is detected via heartbeat timeout
// instead.
func (r *Registry) RemoveNode(nodeID string) {
	r.mu.Lock()
	delete(r.nodes, nodeID)
	r.mu.Unlock()

	r.breakers.Remove(nodeID)
	logging.Op().Info("peer removed", "id", nodeID)
}

// StartHealthChecker runs checkNodeHealth on a fixed interval until
// stopCh closes.
func (r *Registry) StartHealthChecker(interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-r.stopCh:
			return
		case <-ticker.C:
			r.checkNodeHealth()
		}
	}
}

func (r *Registry) checkNodeHealth() {
	r.mu.Lock()
	defer r.mu.Unlock()

	for id, node := range r.nodes {
		if node.State == NodeStateActive && !node.IsHealthy(r.heartbeatTimeout) {
			logging.DebugLine(logging.DebugNodeFailure, "", "peer missed heartbeat deadline",
				"id", id, "last_heartbeat", node.LastHeartbeat)
			node.State = NodeStateInactive
		}
	}
}

// Stop stops the health checker goroutine.
func (r *Registry) Stop() {
	close(r.stopCh)
}

// Snapshot returns each known peer's breaker state, for a debug dump.
func (r *Registry) Snapshot() map[string]string {
	return r.breakers.Snapshot()
}
