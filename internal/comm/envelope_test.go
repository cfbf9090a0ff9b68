package comm

import (
	"net"
	"testing"
)

func TestCodecSendReceiveRoundTrip(t *testing.T) {
	server, client := net.Pipe()
	defer server.Close()
	defer client.Close()

	serverCodec := NewCodec(server)
	clientCodec := NewCodec(client)

	go func() {
		clientCodec.Send(KindFish, FishMsg{From: "node-a"})
	}()

	kind, raw, err := serverCodec.Receive()
	if err != nil {
		t.Fatalf("Receive() error = %v", err)
	}
	if kind != KindFish {
		t.Fatalf("kind = %v, want KindFish", kind)
	}

	var msg FishMsg
	if err := Decode(raw, &msg); err != nil {
		t.Fatalf("Decode() error = %v", err)
	}
	if msg.From != "node-a" {
		t.Fatalf("msg.From = %q, want node-a", msg.From)
	}
}

func TestCodecMultipleEnvelopesInOrder(t *testing.T) {
	server, client := net.Pipe()
	defer server.Close()
	defer client.Close()

	serverCodec := NewCodec(server)
	clientCodec := NewCodec(client)

	go func() {
		clientCodec.Send(KindHeartbeat, HeartbeatMsg{NodeID: "a"})
		clientCodec.Send(KindHeartbeat, HeartbeatMsg{NodeID: "b"})
	}()

	for _, want := range []string{"a", "b"} {
		_, raw, err := serverCodec.Receive()
		if err != nil {
			t.Fatalf("Receive() error = %v", err)
		}
		var msg HeartbeatMsg
		if err := Decode(raw, &msg); err != nil {
			t.Fatalf("Decode() error = %v", err)
		}
		if msg.NodeID != want {
			t.Fatalf("NodeID = %q, want %q", msg.NodeID, want)
		}
	}
}

func TestEncodeDecodeRoundTrip(t *testing.T) {
	raw, err := Encode(HeartbeatMsg{NodeID: "x", SparkPoolDepth: 3})
	if err != nil {
		t.Fatalf("Encode() error = %v", err)
	}
	var msg HeartbeatMsg
	if err := Decode(raw, &msg); err != nil {
		t.Fatalf("Decode() error = %v", err)
	}
	if msg.NodeID != "x" || msg.SparkPoolDepth != 3 {
		t.Fatalf("Decode() = %+v, want NodeID=x SparkPoolDepth=3", msg)
	}
}

func TestKindString(t *testing.T) {
	cases := map[Kind]string{
		KindFish:      "FISH",
		KindSchedule:  "SCHEDULE",
		KindNoWork:    "NOWORK",
		KindExecute:   "EXECUTE",
		KindRPut:      "RPUT",
		KindQuiesce:   "QUIESCE",
		KindShutdown:  "SHUTDOWN",
		KindHeartbeat: "HEARTBEAT",
	}
	for k, want := range cases {
		if got := k.String(); got != want {
			t.Errorf("Kind(%d).String() = %q, want %q", k, got, want)
		}
	}
}
