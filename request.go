package cybernet

// request.go defines the agent-facing request interface.  A request
// names its target by a hierarchical string path resolved token by
// token from the network root down through nodes to their components,
// with the final token naming a verb.  Responses report success,
// failure, unreachable (no component claimed the path), or pending
// (the verb started a durationed transition that resolves on a later
// step).

import (
	"fmt"
)

// RespStatus is the base type for the enumerated response dispositions
type RespStatus string

const (
	RespSuccess     RespStatus = "success"
	RespFailure     RespStatus = "failure"
	RespUnreachable RespStatus = "unreachable"
	RespPending     RespStatus = "pending"
)

// A Request names an action: the hierarchical path to the target
// component ending in a verb, and a context map carrying the verb's
// arguments
type Request struct {
	Path    []string
	Context map[string]any
}

// CreateRequest is a constructor
func CreateRequest(path []string, context map[string]any) *Request {
	if context == nil {
		context = make(map[string]any)
	}
	return &Request{Path: path, Context: context}
}

// head returns the next path token to resolve and the tokens after it.
// An exhausted path returns the empty token.
func (req *Request) head() (string, []string) {
	if len(req.Path) == 0 {
		return "", nil
	}
	return req.Path[0], req.Path[1:]
}

// consume returns a request whose path drops the first n tokens.  The
// context is shared, not copied.
func (req *Request) consume(n int) *Request {
	if n > len(req.Path) {
		n = len(req.Path)
	}
	return &Request{Path: req.Path[n:], Context: req.Context}
}

// A RequestResponse reports the disposition of one request.  A pending
// response is live: the engine updates its Status and Data in place
// when the transition it tracks resolves.
type RequestResponse struct {
	RequestID int
	Status    RespStatus
	Data      map[string]any
	Err       error
}

// The Component interface is satisfied by every addressable part of the
// model: devices, interfaces, links, services, applications, file
// systems.  Dispatch resolves the remaining path tokens against the
// component's children and verbs.  Verbs reports which verbs the
// component accepts structurally; whether a given call succeeds still
// depends on the component's status at execution.
type Component interface {
	CompName() string
	StateDescription() map[string]any
	Verbs() []string
	Dispatch(req *Request) *RequestResponse
}

// verbsResponse shapes a Verbs report
func verbsResponse(comp Component) *RequestResponse {
	return successResponse(map[string]any{"verbs": comp.Verbs()})
}

// successResponse builds a success disposition
func successResponse(data map[string]any) *RequestResponse {
	return &RequestResponse{Status: RespSuccess, Data: data}
}

// failureResponse builds a failure disposition carrying the error
func failureResponse(err error) *RequestResponse {
	return &RequestResponse{Status: RespFailure, Err: err}
}

// unreachableResponse reports that no component claimed the path at the
// named token
func unreachableResponse(req *Request, token string) *RequestResponse {
	return &RequestResponse{
		Status: RespUnreachable,
		Err:    fmt.Errorf("%w: no component resolves %q", ErrUnreachable, token),
	}
}

// respondTimed applies a status instruction and shapes the response: a
// rejected instruction fails, an instantaneous transition succeeds, and
// a durationed transition comes back pending with a registered
// resolution the engine completes when the countdown expires
func respondTimed(topo *Topology, ts *TimedState, instr string) *RequestResponse {
	if err := ts.Apply(instr); err != nil {
		return failureResponse(err)
	}
	status := ts.Status()
	resolve, durationed := domainTbls[ts.domain].resolveTbl[status]
	if !durationed {
		return successResponse(map[string]any{"status": string(status)})
	}
	rsp := &RequestResponse{
		Status: RespPending,
		Data: map[string]any{
			"status":    string(status),
			"remaining": ts.Remaining(),
		},
	}
	topo.pending.add(&pendingOp{ts: ts, want: resolve, rsp: rsp})
	return rsp
}

// Dispatch resolves a request from the network root.  The first token
// is "network"; below it "node" and "link" name the two addressable
// collections.  A path naming nothing known resolves unreachable, not
// an error.
func (topo *Topology) Dispatch(req *Request) *RequestResponse {
	token, rest := req.head()
	if token != "network" {
		return unreachableResponse(req, token)
	}
	if len(rest) == 0 {
		return unreachableResponse(req, token)
	}
	switch rest[0] {
	case "node":
		if len(rest) < 2 {
			return unreachableResponse(req, "node")
		}
		dev, present := topo.devByName[rest[1]]
		if !present {
			return unreachableResponse(req, rest[1])
		}
		return dev.Dispatch(req.consume(3))
	case "link":
		if len(rest) < 2 {
			return unreachableResponse(req, "link")
		}
		link, present := topo.linkByName[rest[1]]
		if !present {
			return unreachableResponse(req, rest[1])
		}
		return link.Dispatch(req.consume(3))
	case "describe":
		return successResponse(topo.StateDescription())
	case "verbs":
		return verbsResponse(topo)
	}
	return unreachableResponse(req, rest[0])
}

// Verbs lists the network root's own verbs
func (topo *Topology) Verbs() []string {
	return []string{"describe", "verbs"}
}

// ctxString recovers a string argument from a request context
func ctxString(ctx map[string]any, key string) (string, bool) {
	value, present := ctx[key]
	if !present {
		return "", false
	}
	str, ok := value.(string)
	return str, ok
}

// ctxInt recovers an integer argument from a request context, accepting
// the numeric types yaml and json decoding produce
func ctxInt(ctx map[string]any, key string) (int, bool) {
	value, present := ctx[key]
	if !present {
		return 0, false
	}
	switch v := value.(type) {
	case int:
		return v, true
	case int64:
		return int(v), true
	case float64:
		return int(v), true
	}
	return 0, false
}

// ctxFloat recovers a float argument from a request context
func ctxFloat(ctx map[string]any, key string) (float64, bool) {
	value, present := ctx[key]
	if !present {
		return 0.0, false
	}
	switch v := value.(type) {
	case float64:
		return v, true
	case int:
		return float64(v), true
	case int64:
		return float64(v), true
	}
	return 0.0, false
}
