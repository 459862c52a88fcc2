package cybernet

// sched.go holds the two bookkeeping structures the step loop drains:
// the pattern-of-life schedule of requests bound to future steps, and
// the registry of pending operations awaiting the resolution of a
// durationed status transition.

import (
	"fmt"

	"golang.org/x/exp/slices"
)

// A pendingOp tracks one outstanding durationed transition: the status
// machine it watches, the status whose arrival resolves it, and the
// live response updated in place on resolution
type pendingOp struct {
	ts   *TimedState
	want Status
	rsp  *RequestResponse
}

// A pendingRegistry holds outstanding pendingOps in submission order
type pendingRegistry struct {
	ops []*pendingOp
}

// createPendingRegistry is a constructor
func createPendingRegistry() *pendingRegistry {
	pr := new(pendingRegistry)
	pr.ops = make([]*pendingOp, 0)
	return pr
}

// add registers an outstanding operation
func (pr *pendingRegistry) add(op *pendingOp) {
	pr.ops = append(pr.ops, op)
}

// retarget repoints ops holding one live response at another, used when
// a dispatch-built response is folded into the response a submitter
// already holds
func (pr *pendingRegistry) retarget(from, to *RequestResponse) {
	for _, op := range pr.ops {
		if op.rsp == from {
			op.rsp = to
		}
	}
}

// outstanding returns the number of unresolved operations
func (pr *pendingRegistry) outstanding() int {
	return len(pr.ops)
}

// resolve walks the registry after the step's status machines have
// ticked.  An op whose machine reached the awaited status completes its
// response; an op whose machine was diverted elsewhere (the engine
// forced a different status mid-countdown) fails it.  Completed and
// failed ops leave the registry; the return counts completions.
func (pr *pendingRegistry) resolve() int {
	completed := 0
	remaining := make([]*pendingOp, 0, len(pr.ops))
	for _, op := range pr.ops {
		status := op.ts.Status()
		if status == op.want {
			op.rsp.Status = RespSuccess
			op.rsp.Data = map[string]any{"status": string(status)}
			completed += 1
			continue
		}
		if resolve, durationed := domainTbls[op.ts.domain].resolveTbl[status]; durationed && resolve == op.want {
			remaining = append(remaining, op)
			continue
		}
		op.rsp.Status = RespFailure
		op.rsp.Err = fmt.Errorf("transition interrupted, status now %s", status)
	}
	pr.ops = remaining
	return completed
}

// A polSchedule binds requests to the future steps at which the engine
// submits them on the agent's behalf.  Requests bound to the same step
// apply in the order they were scheduled.
type polSchedule struct {
	bySteps map[int][]*Request
}

// createPolSchedule is a constructor
func createPolSchedule() *polSchedule {
	ps := new(polSchedule)
	ps.bySteps = make(map[int][]*Request)
	return ps
}

// schedule binds a request to a step.  Steps already executed are
// rejected by the caller, not here.
func (ps *polSchedule) schedule(step int, req *Request) {
	ps.bySteps[step] = append(ps.bySteps[step], req)
}

// due removes and returns the requests bound to the named step, in the
// order they were scheduled
func (ps *polSchedule) due(step int) []*Request {
	reqs := ps.bySteps[step]
	delete(ps.bySteps, step)
	return reqs
}

// horizon returns the sorted list of steps holding scheduled requests
func (ps *polSchedule) horizon() []int {
	steps := make([]int, 0, len(ps.bySteps))
	for step := range ps.bySteps {
		steps = append(steps, step)
	}
	slices.Sort(steps)
	return steps
}
