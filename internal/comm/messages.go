package comm

// FishMsg is sent by an idle node to a chosen victim, asking for a spark
// to steal. TraceParent/TraceState carry the W3C trace context of the
// fishing span opened by the requester, so the victim's handling of this
// FISH (and the SCHEDULE/NOWORK it sends back) nest under the same trace.
type FishMsg struct {
	From        string // requesting node's id
	TraceParent string
	TraceState  string
}

// ScheduleMsg replies to a FISH with a stolen spark: its registry label
// and gob-encoded environment, ready to be decoded and run on the
// requesting node.
type ScheduleMsg struct {
	Label   string
	Payload []byte
}

// NoWorkMsg replies to a FISH when the victim has nothing to give away.
type NoWorkMsg struct{}

// ExecuteMsg eagerly pushes a closure to a target node (PushTo), rather
// than waiting for that node to fish for it. TraceParent/TraceState carry
// the sender's dispatch span so the receiving node's execution of this
// closure nests under the same distributed trace.
type ExecuteMsg struct {
	Label   string
	Payload []byte
	// GIVarOwner/GIVarSlot name the cell the result should be RPut into,
	// if the pushed computation is expected to report a result back.
	GIVarOwner string
	GIVarSlot  uint64
	HasGIVar   bool

	TraceParent string
	TraceState  string
}

// RPutMsg resolves a GIVar cell on its owning node with an encoded value.
// TraceParent/TraceState carry the sender's RPUT dispatch span.
type RPutMsg struct {
	Slot    uint64
	Payload []byte

	TraceParent string
	TraceState  string
}

// QuiesceMsg is part of the distributed termination detection protocol:
// the main node polls every other node's local quiescence state, and
// only declares the whole run quiescent once every node answers true in
// the same round.
type QuiesceMsg struct {
	Round int
}

// QuiesceReplyMsg answers a QuiesceMsg.
type QuiesceReplyMsg struct {
	Round      int
	Quiescent  bool
	NodeID     string
}

// ShutdownMsg tells a node to exit once it finishes any in-flight task,
// part of an orderly cluster-wide shutdown.
type ShutdownMsg struct {
	Reason string
}

// HeartbeatMsg is sent periodically to every peer so they can each
// maintain their own view of this node's liveness and load.
type HeartbeatMsg struct {
	NodeID         string
	SparkPoolDepth int
	ActiveWorkers  int
	NumWorkers     int
	Quiescent      bool
}
