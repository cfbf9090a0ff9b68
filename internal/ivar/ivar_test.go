package ivar

import (
	"sync"
	"testing"
	"time"

	"github.com/oriys/parsec/internal/location"
)

func TestPutThenGet(t *testing.T) {
	v := New[int]()
	if err := v.Put(42); err != nil {
		t.Fatalf("Put() error = %v", err)
	}
	if got := v.Get(); got != 42 {
		t.Fatalf("Get() = %d, want 42", got)
	}
}

func TestGetBlocksUntilPut(t *testing.T) {
	v := New[string]()
	done := make(chan string, 1)

	go func() {
		done <- v.Get()
	}()

	select {
	case <-done:
		t.Fatalf("Get() returned before Put()")
	case <-time.After(20 * time.Millisecond):
	}

	if err := v.Put("ready"); err != nil {
		t.Fatalf("Put() error = %v", err)
	}

	select {
	case got := <-done:
		if got != "ready" {
			t.Fatalf("Get() = %q, want ready", got)
		}
	case <-time.After(time.Second):
		t.Fatalf("Get() never unblocked after Put()")
	}
}

func TestDoublePut(t *testing.T) {
	v := New[int]()
	if err := v.Put(1); err != nil {
		t.Fatalf("first Put() error = %v", err)
	}
	err := v.Put(2)
	if err == nil {
		t.Fatalf("second Put() error = nil, want DoublePutError")
	}
	if _, ok := err.(*DoublePutError); !ok {
		t.Fatalf("second Put() error type = %T, want *DoublePutError", err)
	}
	if got := v.Get(); got != 1 {
		t.Fatalf("Get() = %d, want original value 1 preserved", got)
	}
}

func TestMultipleWaitersAllUnblock(t *testing.T) {
	v := New[int]()
	var wg sync.WaitGroup
	results := make([]int, 5)

	for i := 0; i < 5; i++ {
		wg.Add(1)
		go func(idx int) {
			defer wg.Done()
			results[idx] = v.Get()
		}(i)
	}

	time.Sleep(10 * time.Millisecond)
	if err := v.Put(7); err != nil {
		t.Fatalf("Put() error = %v", err)
	}
	wg.Wait()

	for i, r := range results {
		if r != 7 {
			t.Fatalf("waiter %d got %d, want 7", i, r)
		}
	}
}

func TestGlobRPutRoundTrip(t *testing.T) {
	location.SetMyNode(location.NewNodeId("node-glob-test"))

	v := New[int]()
	g, err := Glob(v, nil)
	if err != nil {
		t.Fatalf("Glob() error = %v", err)
	}
	if g.Owner.String() != "node-glob-test" {
		t.Fatalf("Glob() owner = %s, want node-glob-test", g.Owner)
	}

	if err := RPut(g, 99); err != nil {
		t.Fatalf("RPut() error = %v", err)
	}
	if got := v.Get(); got != 99 {
		t.Fatalf("Get() after RPut() = %d, want 99", got)
	}

	Forget(g)
	if err := RPut(g, 1); err == nil {
		t.Fatalf("RPut() after Forget() error = nil, want error")
	}
}

func TestRPutRawUsesDecoder(t *testing.T) {
	location.SetMyNode(location.NewNodeId("node-rawtest"))

	v := New[string]()
	decode := func(raw []byte, out any) error {
		ptr := out.(*string)
		*ptr = string(raw)
		return nil
	}
	g, err := Glob(v, decode)
	if err != nil {
		t.Fatalf("Glob() error = %v", err)
	}

	if err := RPutRaw(g, []byte("from-wire")); err != nil {
		t.Fatalf("RPutRaw() error = %v", err)
	}
	if got := v.Get(); got != "from-wire" {
		t.Fatalf("Get() = %q, want from-wire", got)
	}
}

func TestRPutRawWithoutDecoderFails(t *testing.T) {
	location.SetMyNode(location.NewNodeId("node-rawtest2"))

	v := New[int]()
	g, err := Glob(v, nil)
	if err != nil {
		t.Fatalf("Glob() error = %v", err)
	}
	if err := RPutRaw(g, []byte("x")); err == nil {
		t.Fatalf("RPutRaw() error = nil, want error without a decoder")
	}
}

func TestTryGet(t *testing.T) {
	v := New[int]()
	if _, ok := v.TryGet(); ok {
		t.Fatalf("TryGet() ok = true before Put()")
	}
	v.Put(5)
	got, ok := v.TryGet()
	if !ok || got != 5 {
		t.Fatalf("TryGet() = (%d, %v), want (5, true)", got, ok)
	}
}
