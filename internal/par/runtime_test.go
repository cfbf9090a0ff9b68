package par

import (
	"context"
	"testing"
	"time"

	"github.com/oriys/parsec/internal/comm"
	"github.com/oriys/parsec/internal/location"
	"github.com/oriys/parsec/internal/registry"
)

func TestForkRunsOnWorkerPool(t *testing.T) {
	location.SetMyNode(location.NewNodeId("runtime-test-fork"))
	rt := NewRuntime(Config{NumWorkers: 2, NodeTag: "fork-test"})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go rt.Scheduler().Start(ctx)
	defer rt.Scheduler().Stop()

	done := make(chan struct{})
	Fork(rt, func() { close(done) })

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatalf("Fork()'d task never ran")
	}
}

func TestSpawnLocalSparkResolvesGIVar(t *testing.T) {
	location.SetMyNode(location.NewNodeId("runtime-test-spawn"))

	const label = "runtime_test/increment"
	registry.Register(label, func(raw []byte) (any, error) {
		var n int
		if err := comm.Decode(raw, &n); err != nil {
			return nil, err
		}
		return n + 1, nil
	})

	rt := NewRuntime(Config{NumWorkers: 1, NodeTag: "spawn-local-test"})
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go rt.Scheduler().Start(ctx)
	defer rt.Scheduler().Stop()

	iv, err := Spark[int](rt, label, 41)
	if err != nil {
		t.Fatalf("Spark() error = %v", err)
	}

	result := make(chan int, 1)
	go func() { result <- Get(iv) }()

	select {
	case got := <-result:
		if got != 42 {
			t.Fatalf("Get() = %d, want 42", got)
		}
	case <-time.After(time.Second):
		t.Fatalf("spawned spark never resolved its IVar")
	}
}

func TestSpawnRejectsUnregisteredLabel(t *testing.T) {
	location.SetMyNode(location.NewNodeId("runtime-test-unreg"))
	rt := NewRuntime(Config{NumWorkers: 1, NodeTag: "unreg-test"})

	if _, err := Spark[int](rt, "runtime_test/does-not-exist", 1); err == nil {
		t.Fatalf("Spark() error = nil, want registry miss error")
	}
}

func TestPushToUnknownNodeErrors(t *testing.T) {
	location.SetMyNode(location.NewNodeId("runtime-test-pushto"))

	const label = "runtime_test/pushto-noop"
	registry.Register(label, func(raw []byte) (any, error) { return nil, nil })

	rt := NewRuntime(Config{NumWorkers: 1, NodeTag: "pushto-test"})
	if err := PushTo(rt, location.NewNodeId("nowhere"), label, nil); err == nil {
		t.Fatalf("PushTo() error = nil, want unknown-node error")
	}
}

func TestRunParIOWaitsForCompletion(t *testing.T) {
	location.SetMyNode(location.NewNodeId("runtime-test-runpario"))
	rt := NewRuntime(Config{NumWorkers: 2, NodeTag: "runpario-test"})

	ran := false
	RunParIO(context.Background(), rt, func() {
		ran = true
	})

	if !ran {
		t.Fatalf("RunParIO() returned without running fn")
	}
}
