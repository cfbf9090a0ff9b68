package cluster

import (
	"testing"
	"time"
)

func TestRegisterAndGetNode(t *testing.T) {
	reg := NewRegistry(DefaultConfig("local"))
	reg.RegisterNode(&Node{ID: "peer-1", Address: "p1:9090"})

	got, err := reg.GetNode("peer-1")
	if err != nil {
		t.Fatalf("GetNode() error = %v", err)
	}
	if got.State != NodeStateActive {
		t.Fatalf("GetNode() state = %v, want Active default", got.State)
	}
}

func TestGetNodeUnknown(t *testing.T) {
	reg := NewRegistry(DefaultConfig("local"))
	if _, err := reg.GetNode("nope"); err == nil {
		t.Fatal("GetNode() error = nil, want error for unknown node")
	}
}

func TestUpdateHeartbeatRefreshesLoad(t *testing.T) {
	reg := NewRegistry(DefaultConfig("local"))
	reg.RegisterNode(&Node{ID: "peer-1", Address: "p1:9090"})

	if err := reg.UpdateHeartbeat("peer-1", 3, 2, false); err != nil {
		t.Fatalf("UpdateHeartbeat() error = %v", err)
	}

	node, _ := reg.GetNode("peer-1")
	if node.SparkPoolDepth != 3 || node.ActiveWorkers != 2 {
		t.Fatalf("node load = %+v, want depth=3 active=2", node)
	}
}

func TestUpdateHeartbeatUnknownNode(t *testing.T) {
	reg := NewRegistry(DefaultConfig("local"))
	if err := reg.UpdateHeartbeat("ghost", 0, 0, false); err == nil {
		t.Fatal("UpdateHeartbeat() error = nil, want error for unregistered node")
	}
}

func TestRecordDispatchFailureTripsBreaker(t *testing.T) {
	cfg := DefaultConfig("local")
	cfg.BreakerErrorPct = 50
	cfg.BreakerWindow = time.Minute
	cfg.BreakerOpenDuration = time.Minute
	reg := NewRegistry(cfg)
	reg.RegisterNode(&Node{ID: "peer-1", Address: "p1:9090", LastHeartbeat: time.Now()})

	if !reg.IsReachable("peer-1") {
		t.Fatalf("IsReachable() = false before any failures")
	}

	reg.RecordDispatchFailure("peer-1")
	reg.RecordDispatchFailure("peer-1")

	if reg.IsReachable("peer-1") {
		t.Fatalf("IsReachable() = true after tripping breaker, want false")
	}
}

func TestIsReachableFalseForStaleHeartbeat(t *testing.T) {
	reg := NewRegistry(DefaultConfig("local"))
	reg.RegisterNode(&Node{ID: "peer-1", Address: "p1:9090", LastHeartbeat: time.Now().Add(-time.Hour)})

	if reg.IsReachable("peer-1") {
		t.Fatal("IsReachable() = true for a peer with an expired heartbeat")
	}
}

func TestRemoveNode(t *testing.T) {
	reg := NewRegistry(DefaultConfig("local"))
	reg.RegisterNode(&Node{ID: "peer-1", Address: "p1:9090"})
	reg.RemoveNode("peer-1")

	if _, err := reg.GetNode("peer-1"); err == nil {
		t.Fatal("GetNode() error = nil after RemoveNode()")
	}
}
