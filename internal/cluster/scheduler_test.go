package cluster

import (
	"testing"
	"time"
)

func TestLoadFactor(t *testing.T) {
	tests := []struct {
		name          string
		numWorkers    int
		activeWorkers int
		want          float64
	}{
		{"idle", 10, 0, 0.0},
		{"half loaded", 10, 5, 0.5},
		{"fully loaded", 10, 10, 1.0},
		{"unknown pool size", 0, 0, 1.0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			n := &Node{NumWorkers: tt.numWorkers, ActiveWorkers: tt.activeWorkers}
			if got := n.LoadFactor(); got != tt.want {
				t.Errorf("LoadFactor() = %f, want %f", got, tt.want)
			}
		})
	}
}

func registerHealthy(t *testing.T, reg *Registry, id, addr string, numWorkers, active, depth int) {
	t.Helper()
	reg.RegisterNode(&Node{
		ID: id, Address: addr, State: NodeStateActive,
		NumWorkers: numWorkers, ActiveWorkers: active, SparkPoolDepth: depth,
		LastHeartbeat: time.Now(),
	})
}

func TestSelectVictimLeastLoaded(t *testing.T) {
	reg := NewRegistry(DefaultConfig("local"))
	s := NewScheduler(reg, StrategyLeastLoaded)

	registerHealthy(t, reg, "high-load", "h:9090", 10, 8, 0)
	registerHealthy(t, reg, "low-load", "l:9090", 10, 2, 5)
	registerHealthy(t, reg, "mid-load", "m:9090", 10, 5, 1)

	selected, err := s.SelectVictim()
	if err != nil {
		t.Fatalf("SelectVictim() error = %v", err)
	}
	if selected.ID != "low-load" {
		t.Fatalf("SelectVictim() = %s, want low-load", selected.ID)
	}
}

func TestSelectVictimNoPeers(t *testing.T) {
	reg := NewRegistry(DefaultConfig("local"))
	s := NewScheduler(reg, StrategyRandom)

	if _, err := s.SelectVictim(); err == nil {
		t.Fatal("SelectVictim() error = nil, want error when no peers available")
	}
}

func TestSelectVictimExcludesLocalNode(t *testing.T) {
	reg := NewRegistry(DefaultConfig("local"))
	s := NewScheduler(reg, StrategyRandom)

	registerHealthy(t, reg, "local", "self:9090", 10, 0, 0)
	registerHealthy(t, reg, "peer", "p:9090", 10, 0, 0)

	selected, err := s.SelectVictim()
	if err != nil {
		t.Fatalf("SelectVictim() error = %v", err)
	}
	if selected.ID != "peer" {
		t.Fatalf("SelectVictim() = %s, want peer (local node must be excluded)", selected.ID)
	}
}

func TestSelectVictimAvoidsGivenNodes(t *testing.T) {
	reg := NewRegistry(DefaultConfig("local"))
	s := NewScheduler(reg, StrategyRandom)

	registerHealthy(t, reg, "a", "a:9090", 10, 0, 0)
	registerHealthy(t, reg, "b", "b:9090", 10, 0, 0)

	selected, err := s.SelectVictim("a")
	if err != nil {
		t.Fatalf("SelectVictim() error = %v", err)
	}
	if selected.ID != "b" {
		t.Fatalf("SelectVictim(avoid a) = %s, want b", selected.ID)
	}
}

func TestRoundRobinCyclesThroughPeers(t *testing.T) {
	reg := NewRegistry(DefaultConfig("local"))
	s := NewScheduler(reg, StrategyRoundRobin)

	registerHealthy(t, reg, "a", "a:9090", 10, 0, 0)
	registerHealthy(t, reg, "b", "b:9090", 10, 0, 0)

	seen := map[string]int{}
	for i := 0; i < 4; i++ {
		selected, err := s.SelectVictim()
		if err != nil {
			t.Fatalf("SelectVictim() error = %v", err)
		}
		seen[selected.ID]++
	}
	if seen["a"] != 2 || seen["b"] != 2 {
		t.Fatalf("round robin distribution = %v, want 2/2 split", seen)
	}
}

func TestUnhealthyPeerExcluded(t *testing.T) {
	reg := NewRegistry(DefaultConfig("local"))
	s := NewScheduler(reg, StrategyRandom)

	reg.RegisterNode(&Node{ID: "stale", Address: "s:9090", State: NodeStateActive, LastHeartbeat: time.Now().Add(-time.Hour)})
	registerHealthy(t, reg, "fresh", "f:9090", 10, 0, 0)

	selected, err := s.SelectVictim()
	if err != nil {
		t.Fatalf("SelectVictim() error = %v", err)
	}
	if selected.ID != "fresh" {
		t.Fatalf("SelectVictim() = %s, want fresh (stale peer excluded)", selected.ID)
	}
}
