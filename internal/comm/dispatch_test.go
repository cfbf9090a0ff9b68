package comm

import (
	"net"
	"testing"
	"time"
)

func TestDispatcherRequestReply(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("Listen() error = %v", err)
	}
	defer ln.Close()

	d := NewDispatcher("[test]")
	d.Handle(KindFish, func(c *Codec, kind Kind, raw []byte) {
		var msg FishMsg
		if err := Decode(raw, &msg); err != nil {
			t.Errorf("Decode() error = %v", err)
			return
		}
		c.Send(KindSchedule, ScheduleMsg{Label: "hello/" + msg.From})
	})

	go d.Serve(ln)

	kind, raw, err := Request(ln.Addr().String(), time.Second, KindFish, FishMsg{From: "node-x"})
	if err != nil {
		t.Fatalf("Request() error = %v", err)
	}
	if kind != KindSchedule {
		t.Fatalf("reply kind = %v, want KindSchedule", kind)
	}

	var reply ScheduleMsg
	if err := Decode(raw, &reply); err != nil {
		t.Fatalf("Decode() error = %v", err)
	}
	if reply.Label != "hello/node-x" {
		t.Fatalf("reply.Label = %q, want hello/node-x", reply.Label)
	}
}

func TestDispatcherNoWorkReply(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("Listen() error = %v", err)
	}
	defer ln.Close()

	d := NewDispatcher("[test]")
	d.Handle(KindFish, func(c *Codec, kind Kind, raw []byte) {
		c.Send(KindNoWork, NoWorkMsg{})
	})
	go d.Serve(ln)

	kind, _, err := Request(ln.Addr().String(), time.Second, KindFish, FishMsg{From: "node-y"})
	if err != nil {
		t.Fatalf("Request() error = %v", err)
	}
	if kind != KindNoWork {
		t.Fatalf("reply kind = %v, want KindNoWork", kind)
	}
}

func TestDispatcherSendPersistentReusesConnection(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("Listen() error = %v", err)
	}
	defer ln.Close()

	received := make(chan string, 2)
	d := NewDispatcher("[test]")
	d.Handle(KindHeartbeat, func(c *Codec, kind Kind, raw []byte) {
		var msg HeartbeatMsg
		Decode(raw, &msg)
		received <- msg.NodeID
	})
	go d.Serve(ln)

	client := NewDispatcher("[client]")
	addr := ln.Addr().String()
	if err := client.SendPersistent(addr, time.Second, KindHeartbeat, HeartbeatMsg{NodeID: "first"}); err != nil {
		t.Fatalf("SendPersistent() error = %v", err)
	}
	if err := client.SendPersistent(addr, time.Second, KindHeartbeat, HeartbeatMsg{NodeID: "second"}); err != nil {
		t.Fatalf("SendPersistent() error = %v", err)
	}
	client.connMu.Lock()
	n := len(client.conns)
	client.connMu.Unlock()
	if n != 1 {
		t.Fatalf("open connections = %d, want 1 (reused)", n)
	}

	for _, want := range []string{"first", "second"} {
		select {
		case got := <-received:
			if got != want {
				t.Fatalf("received NodeID = %q, want %q", got, want)
			}
		case <-time.After(time.Second):
			t.Fatal("timed out waiting for heartbeat")
		}
	}
	client.CloseAll()
}
