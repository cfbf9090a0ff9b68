package par

import (
	"bytes"
	"encoding/gob"
	"fmt"

	"github.com/oriys/parsec/internal/closure"
	"github.com/oriys/parsec/internal/location"
	"github.com/oriys/parsec/internal/logging"
)

// spawnEnvelope is the wire payload shared by every spark and EXECUTE
// message this package produces: a serializable Closure (see
// internal/closure) over the caller's environment, plus where to RPut the
// result once it is forced. Routing every spawned computation through this
// one envelope shape means the code that runs a thunk doesn't care whether
// it ended up running because this node picked its own spark, a remote
// node's FISH stole it, or a remote PushTo EXECUTEd it directly — all
// three paths decode a spawnEnvelope and call the same runSpawned.
type spawnEnvelope struct {
	Closure   []byte // closure.Encode output: label + gob-encoded environment
	OwnerNode string
	Slot      uint64
	HasResult bool // false for a PushTo fire-and-forget computation
}

func encodeSpawnEnvelope(env spawnEnvelope) ([]byte, error) {
	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(env); err != nil {
		return nil, fmt.Errorf("par: encode spawn envelope: %w", err)
	}
	return buf.Bytes(), nil
}

func decodeSpawnEnvelope(raw []byte) (spawnEnvelope, error) {
	var env spawnEnvelope
	if err := gob.NewDecoder(bytes.NewReader(raw)).Decode(&env); err != nil {
		return spawnEnvelope{}, fmt.Errorf("par: decode spawn envelope: %w", err)
	}
	return env, nil
}

// encodeClosureEnv captures label/env as a Closure and serializes it for a
// spawnEnvelope's Closure field.
func encodeClosureEnv(label string, env any) ([]byte, error) {
	c, err := closure.Capture(label, env)
	if err != nil {
		return nil, err
	}
	return closure.Encode(c)
}

func encodeValue(v any) ([]byte, error) {
	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(v); err != nil {
		return nil, fmt.Errorf("par: encode result: %w", err)
	}
	return buf.Bytes(), nil
}

// runSpawned decodes payload as a spawnEnvelope, forces the Closure it
// carries against the local static registry, and resolves the GIVar it
// names with the result — locally if this node owns it, over RPUT
// otherwise. It is the single execution path for a spark run locally, a
// spark given away in a SCHEDULE reply and run by the thief, and an
// EXECUTE message pushed directly by PushTo/SpawnAt.
func (rt *Runtime) runSpawned(label string, payload []byte) {
	env, err := decodeSpawnEnvelope(payload)
	if err != nil {
		logging.Op().Error("spawn envelope decode failed", "label", label, "error", err)
		return
	}

	c, err := closure.Decode(env.Closure)
	if err != nil {
		logging.Op().Error("closure decode failed", "label", label, "error", err)
		return
	}
	forced, err := closure.ForceClosure(c)
	if err != nil {
		logging.Op().Error("closure force failed", "label", label, "error", err)
		return
	}
	value := closure.UnClosure(forced)
	if !env.HasResult {
		return
	}

	raw, err := encodeValue(value)
	if err != nil {
		logging.Op().Error("encode result failed", "label", label, "error", err)
		return
	}

	me, _ := location.MyNode()
	if me.String() == env.OwnerNode {
		if err := rt.resolveLocal(env.Slot, raw); err != nil {
			logging.Op().Error("local rput failed", "label", label, "error", err)
		}
		return
	}

	if err := rt.sendRPut(env.OwnerNode, env.Slot, raw); err != nil {
		logging.Op().Error("remote rput failed", "label", label, "error", err)
	}
}
