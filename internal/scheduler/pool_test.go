package scheduler

import (
	"sync"
	"testing"
	"time"
)

func TestSparkPoolPushPopLocalLIFO(t *testing.T) {
	p := NewSparkPool()
	p.PushLocal("a", func() {})
	p.PushLocal("b", func() {})
	p.PushLocal("c", func() {})

	s, ok := p.PopLocal()
	if !ok || s.Label != "c" {
		t.Fatalf("PopLocal() = %+v, ok=%v, want label c", s, ok)
	}
}

func TestSparkPoolStealOldestFIFO(t *testing.T) {
	p := NewSparkPool()
	p.PushLocal("a", func() {})
	p.PushLocal("b", func() {})
	p.PushLocal("c", func() {})

	s, ok := p.StealOldest()
	if !ok || s.Label != "a" {
		t.Fatalf("StealOldest() = %+v, ok=%v, want label a", s, ok)
	}
}

func TestSparkPoolEmpty(t *testing.T) {
	p := NewSparkPool()
	if _, ok := p.PopLocal(); ok {
		t.Fatal("PopLocal() on empty pool returned ok=true")
	}
	if _, ok := p.StealOldest(); ok {
		t.Fatal("StealOldest() on empty pool returned ok=true")
	}
}

func TestSparkPoolLen(t *testing.T) {
	p := NewSparkPool()
	if p.Len() != 0 {
		t.Fatalf("Len() = %d, want 0", p.Len())
	}
	p.PushLocal("a", func() {})
	p.PushLocal("b", func() {})
	if p.Len() != 2 {
		t.Fatalf("Len() = %d, want 2", p.Len())
	}
	p.PopLocal()
	if p.Len() != 1 {
		t.Fatalf("Len() after PopLocal() = %d, want 1", p.Len())
	}
}

func TestReadyQueuePushPop(t *testing.T) {
	q := NewReadyQueue()
	ran := false
	q.Push(func() { ran = true })

	task, ok := q.Pop()
	if !ok {
		t.Fatal("Pop() ok = false")
	}
	task()
	if !ran {
		t.Fatal("popped task did not run")
	}
}

func TestReadyQueuePopBlocksUntilPush(t *testing.T) {
	q := NewReadyQueue()
	done := make(chan struct{})

	go func() {
		task, ok := q.Pop()
		if ok {
			task()
		}
		close(done)
	}()

	select {
	case <-done:
		t.Fatal("Pop() returned before any task was pushed")
	case <-time.After(20 * time.Millisecond):
	}

	ran := make(chan struct{})
	q.Push(func() { close(ran) })

	select {
	case <-ran:
	case <-time.After(time.Second):
		t.Fatal("pushed task never ran")
	}
	<-done
}

func TestReadyQueueCloseUnblocksWaiters(t *testing.T) {
	q := NewReadyQueue()
	var wg sync.WaitGroup
	results := make([]bool, 3)

	for i := 0; i < 3; i++ {
		wg.Add(1)
		go func(idx int) {
			defer wg.Done()
			_, ok := q.Pop()
			results[idx] = ok
		}(i)
	}

	time.Sleep(10 * time.Millisecond)
	q.Close()
	wg.Wait()

	for i, ok := range results {
		if ok {
			t.Fatalf("waiter %d got ok=true after Close()", i)
		}
	}
}
