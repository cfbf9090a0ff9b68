package cluster

import (
	"fmt"
	"math/rand"
	"sort"
	"sync"
)

// VictimStrategy selects which peer a node fishes from next.
type VictimStrategy string

const (
	// StrategyRandom selects uniformly at random among healthy peers,
	// the strategy named directly by the fishing protocol: a node with
	// no work picks a victim uniformly at random and sends it a FISH.
	StrategyRandom      VictimStrategy = "random"
	StrategyRoundRobin  VictimStrategy = "round-robin"
	StrategyLeastLoaded VictimStrategy = "least-loaded"
)

// Scheduler selects a FISH target from the set of currently reachable
// peers.
type Scheduler struct {
	registry *Registry
	strategy VictimStrategy

	mu      sync.Mutex // protects rrIndex
	rrIndex int
}

// NewScheduler creates a new victim-selection scheduler.
func NewScheduler(registry *Registry, strategy VictimStrategy) *Scheduler {
	if strategy == "" {
		strategy = StrategyRandom
	}
	return &Scheduler{registry: registry, strategy: strategy}
}

// SelectVictim picks the next peer to FISH, excluding any node in avoid
// (typically the peer that was just tried and returned NOWORK).
func (s *Scheduler) SelectVictim(avoid ...string) (*Node, error) {
	nodes := s.registry.ListHealthyNodes()
	nodes = excludeIDs(nodes, avoid)
	if len(nodes) == 0 {
		return nil, fmt.Errorf("cluster: no reachable peers to fish from")
	}

	switch s.strategy {
	case StrategyRoundRobin:
		return s.selectRoundRobin(nodes), nil
	case StrategyLeastLoaded:
		return s.selectLeastLoaded(nodes), nil
	default:
		return s.selectRandom(nodes), nil
	}
}

func (s *Scheduler) selectRoundRobin(nodes []*Node) *Node {
	s.mu.Lock()
	defer s.mu.Unlock()

	sort.Slice(nodes, func(i, j int) bool { return nodes[i].ID < nodes[j].ID })
	index := s.rrIndex % len(nodes)
	s.rrIndex++
	return nodes[index]
}

func (s *Scheduler) selectLeastLoaded(nodes []*Node) *Node {
	selected := nodes[0]
	lowest := selected.LoadFactor()
	for _, node := range nodes[1:] {
		if load := node.LoadFactor(); load < lowest {
			lowest = load
			selected = node
		}
	}
	return selected
}

func (s *Scheduler) selectRandom(nodes []*Node) *Node {
	return nodes[rand.Intn(len(nodes))]
}

func excludeIDs(nodes []*Node, avoid []string) []*Node {
	if len(avoid) == 0 {
		return nodes
	}
	skip := make(map[string]struct{}, len(avoid))
	for _, id := range avoid {
		skip[id] = struct{}{}
	}
	out := make([]*Node, 0, len(nodes))
	for _, n := range nodes {
		if _, ok := skip[n.ID]; ok {
			continue
		}
		out = append(out, n)
	}
	return out
}
