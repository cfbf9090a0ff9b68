package par

import (
	"context"
	"fmt"
	"time"

	"github.com/oriys/parsec/internal/cluster"
	"github.com/oriys/parsec/internal/comm"
	"github.com/oriys/parsec/internal/metrics"
	"github.com/oriys/parsec/internal/observability"
	"github.com/oriys/parsec/internal/scheduler"
)

// commFisher implements scheduler.Fisher over the comm dispatcher and the
// cluster registry's victim-selection scheduler, so internal/scheduler
// never has to import either. It holds a back-reference to the owning
// Runtime because a stolen spark's payload must run through the same
// runSpawned path as a local spark or a pushed EXECUTE — the thief
// doesn't get to invent its own execution semantics.
type commFisher struct {
	rt         *Runtime
	victims    *cluster.Scheduler
	clusterReg *cluster.Registry
	requestTO  time.Duration
}

func (f *commFisher) SelectVictim() (string, error) {
	node, err := f.victims.SelectVictim()
	if err != nil {
		return "", err
	}
	return node.ID, nil
}

func (f *commFisher) Fish(ctx context.Context, victimID string) (scheduler.FishResult, error) {
	node, err := f.clusterReg.GetNode(victimID)
	if err != nil {
		return scheduler.FishResult{}, err
	}

	spanCtx, span := observability.StartSpan(ctx, "par.fish", observability.AttrPeerNodeID.String(victimID))
	defer span.End()
	tc := observability.ExtractTraceContext(spanCtx)

	start := time.Now()
	kind, raw, err := comm.Request(node.Address, f.requestTO, comm.KindFish, comm.FishMsg{TraceParent: tc.TraceParent, TraceState: tc.TraceState})
	metrics.RecordDispatchLatency("fish", float64(time.Since(start).Milliseconds()))
	if err != nil {
		f.clusterReg.RecordDispatchFailure(victimID)
		observability.SetSpanError(span, err)
		return scheduler.FishResult{}, err
	}

	switch kind {
	case comm.KindNoWork:
		return scheduler.FishResult{NoWork: true}, nil
	case comm.KindSchedule:
		var msg comm.ScheduleMsg
		if err := comm.Decode(raw, &msg); err != nil {
			return scheduler.FishResult{}, err
		}
		label, payload := msg.Label, msg.Payload
		rt := f.rt
		return scheduler.FishResult{Spark: scheduler.Spark{
			Label:   label,
			Payload: payload,
			Run:     func() { rt.runSpawned(label, payload) },
		}}, nil
	default:
		return scheduler.FishResult{}, fmt.Errorf("par: unexpected reply kind %s to FISH", kind)
	}
}
