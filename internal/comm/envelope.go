// Package comm implements the inter-node wire protocol: a length-prefixed
// envelope framing, and the dispatch loop that routes an incoming
// envelope's payload to the handler registered for its message kind.
//
// The framing mirrors the host/guest vsock codec this runtime's lineage
// already uses: a 4-byte big-endian length prefix, here followed by a
// 1-byte kind tag and a gob-encoded payload rather than protobuf, since
// no schema-free generic Go value codec is available without code
// generation.
package comm

import (
	"bytes"
	"encoding/binary"
	"encoding/gob"
	"fmt"
	"io"
	"net"
)

// Kind identifies the payload carried by an Envelope.
type Kind byte

const (
	KindFish Kind = iota
	KindSchedule
	KindNoWork
	KindExecute
	KindRPut
	KindQuiesce
	KindShutdown
	KindHeartbeat
)

func (k Kind) String() string {
	switch k {
	case KindFish:
		return "FISH"
	case KindSchedule:
		return "SCHEDULE"
	case KindNoWork:
		return "NOWORK"
	case KindExecute:
		return "EXECUTE"
	case KindRPut:
		return "RPUT"
	case KindQuiesce:
		return "QUIESCE"
	case KindShutdown:
		return "SHUTDOWN"
	case KindHeartbeat:
		return "HEARTBEAT"
	default:
		return fmt.Sprintf("KIND(%d)", k)
	}
}

// maxEnvelopeBytes bounds a single envelope's payload, guarding against a
// corrupted length prefix turning into an unbounded allocation.
const maxEnvelopeBytes = 64 * 1024 * 1024

// Codec frames envelopes over a net.Conn: 4-byte big-endian length prefix,
// 1 tag byte, then the gob-encoded payload.
type Codec struct {
	conn net.Conn
}

// NewCodec wraps conn with envelope framing.
func NewCodec(conn net.Conn) *Codec {
	return &Codec{conn: conn}
}

// Send gob-encodes payload and writes it as a single framed envelope.
func (c *Codec) Send(kind Kind, payload any) error {
	var body bytes.Buffer
	if err := gob.NewEncoder(&body).Encode(payload); err != nil {
		return fmt.Errorf("comm: encode %s payload: %w", kind, err)
	}

	frame := make([]byte, 4+1+body.Len())
	binary.BigEndian.PutUint32(frame[:4], uint32(1+body.Len()))
	frame[4] = byte(kind)
	copy(frame[5:], body.Bytes())

	if _, err := c.conn.Write(frame); err != nil {
		return fmt.Errorf("comm: write %s envelope: %w", kind, err)
	}
	return nil
}

// Receive reads one framed envelope and returns its kind and raw
// gob-encoded payload bytes. Callers decode the payload with Decode once
// they know, from kind, what type to decode into.
func (c *Codec) Receive() (Kind, []byte, error) {
	lenBuf := make([]byte, 4)
	if _, err := io.ReadFull(c.conn, lenBuf); err != nil {
		return 0, nil, err
	}

	n := binary.BigEndian.Uint32(lenBuf)
	if n == 0 {
		return 0, nil, fmt.Errorf("comm: empty envelope")
	}
	if n > maxEnvelopeBytes {
		return 0, nil, fmt.Errorf("comm: envelope too large: %d bytes", n)
	}

	body := make([]byte, n)
	if _, err := io.ReadFull(c.conn, body); err != nil {
		return 0, nil, err
	}
	return Kind(body[0]), body[1:], nil
}

// Decode gob-decodes an envelope's raw payload bytes into out. WireDecode
// is the error kind this wraps.
func Decode(raw []byte, out any) error {
	if err := gob.NewDecoder(bytes.NewReader(raw)).Decode(out); err != nil {
		return fmt.Errorf("comm: decode payload: %w", err)
	}
	return nil
}

// Encode gob-encodes v, the inverse of Decode. Exported for callers above
// this package that need to pre-encode an environment before handing it to
// a closure or spark, rather than going through a live Codec.
func Encode(v any) ([]byte, error) {
	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(v); err != nil {
		return nil, fmt.Errorf("comm: encode payload: %w", err)
	}
	return buf.Bytes(), nil
}

// Close closes the underlying connection.
func (c *Codec) Close() error {
	return c.conn.Close()
}
