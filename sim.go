package cybernet

// sim.go drives the model.  Time is a sequence of discrete steps; each
// step runs four sub-phases in a fixed order: scheduled pattern-of-life
// requests apply, every timed status machine ticks, the traffic model
// re-derives link loads and congestion, and finally pending operations
// resolve and queued agent requests evaluate.  Running the same model
// with the same seed and the same inputs reproduces the same trace and
// the same snapshots.

import (
	"crypto/sha256"
	"encoding/json"
	"fmt"

	"github.com/iti/rngstream"
	"github.com/prometheus/client_golang/prometheus"
)

// a queuedReq pairs an agent-submitted request with the live response
// handed back at submission
type queuedReq struct {
	req *Request
	rsp *RequestResponse
}

// A Simulation owns one run: the topology, the step counter, the flow
// set, and the request bookkeeping
type Simulation struct {
	topo *Topology
	step int

	rng  *rngstream.RngStream
	seed int64

	scheduled *polSchedule
	queued    []queuedReq
	reqID     int
	responses map[int]*RequestResponse

	flows       map[string]*Flow
	flowNames   []string // sorted, fixing traffic evaluation order
	overwhelmed map[*serviceStruct]bool

	traceMgr *TraceManager
	metrics  *EngineMetrics
}

// CreateSimulation is a constructor.  The seed fixes the random stream;
// two simulations built over equal topologies with equal seeds evolve
// identically under equal inputs.  The Registerer may be nil.
func CreateSimulation(topo *Topology, seed int64, reg prometheus.Registerer) *Simulation {
	sim := new(Simulation)
	sim.topo = topo
	sim.seed = seed
	sim.rng = rngstream.New(fmt.Sprintf("sim-%d", seed))
	sim.scheduled = createPolSchedule()
	sim.queued = make([]queuedReq, 0)
	sim.responses = make(map[int]*RequestResponse)
	sim.flows = make(map[string]*Flow)
	sim.flowNames = make([]string, 0)
	sim.overwhelmed = make(map[*serviceStruct]bool)
	sim.traceMgr = topo.tm
	sim.metrics = createEngineMetrics(reg)
	sim.metrics.topoSize(len(topo.devByID), len(topo.linkByID))
	return sim
}

// CurrentStep returns the number of completed steps
func (sim *Simulation) CurrentStep() int {
	return sim.step
}

// Submit queues an agent request for evaluation in the current step's
// final sub-phase.  The returned response is live: it reports pending
// until the request evaluates, then carries the outcome.
func (sim *Simulation) Submit(req *Request) *RequestResponse {
	sim.reqID += 1
	rsp := &RequestResponse{RequestID: sim.reqID, Status: RespPending}
	sim.queued = append(sim.queued, queuedReq{req: req, rsp: rsp})
	sim.responses[sim.reqID] = rsp
	return rsp
}

// Schedule binds a pattern-of-life request to a future step.  The step
// must not have executed already.
func (sim *Simulation) Schedule(step int, req *Request) error {
	if step <= sim.step {
		return fmt.Errorf("step %d already executed, now at %d", step, sim.step)
	}
	sim.scheduled.schedule(step, req)
	return nil
}

// Response recovers a response by request id
func (sim *Simulation) Response(reqID int) *RequestResponse {
	return sim.responses[reqID]
}

// evaluate dispatches a request and folds the outcome into the live
// response its submitter holds.  A pending outcome retargets the
// registered resolution onto the live response.
func (sim *Simulation) evaluate(req *Request, rsp *RequestResponse) {
	result := sim.dispatchRoot(req)
	rsp.Status = result.Status
	rsp.Data = result.Data
	rsp.Err = result.Err
	if result.Status == RespPending {
		sim.topo.pending.retarget(result, rsp)
	}
	sim.metrics.request(rsp.Status)
	if len(req.Path) > 0 {
		sim.traceMgr.AddTrace(sim.step, rsp.RequestID,
			req.Path[len(req.Path)-1], string(rsp.Status))
	}
}

// dispatchRoot resolves the first path token: "network" descends into
// the topology, "traffic" reaches the flow set
func (sim *Simulation) dispatchRoot(req *Request) *RequestResponse {
	token, rest := req.head()
	if token != "traffic" {
		return sim.topo.Dispatch(req)
	}
	if len(rest) < 2 || rest[0] != "flow" {
		return unreachableResponse(req, token)
	}
	name := rest[1]
	sub := req.consume(3)
	verb, remainder := sub.head()
	if len(remainder) > 0 {
		return unreachableResponse(req, verb)
	}
	switch verb {
	case "start":
		if flow, present := sim.flows[name]; present {
			flow.active = true
			return successResponse(nil)
		}
		src, _ := ctxString(sub.Context, "src")
		dst, _ := ctxString(sub.Context, "dst")
		protocol, _ := ctxString(sub.Context, "protocol")
		port, _ := ctxInt(sub.Context, "port")
		rate, _ := ctxFloat(sub.Context, "rate")
		if err := sim.StartFlow(name, src, dst, protocol, port, rate); err != nil {
			return failureResponse(err)
		}
		return successResponse(nil)
	case "stop":
		if err := sim.StopFlow(name); err != nil {
			return failureResponse(err)
		}
		return successResponse(nil)
	case "rate":
		rate, _ := ctxFloat(sub.Context, "rate")
		if err := sim.ChgFlowRate(name, rate); err != nil {
			return failureResponse(err)
		}
		return successResponse(nil)
	case "describe":
		flow, present := sim.flows[name]
		if !present {
			return unreachableResponse(req, name)
		}
		return successResponse(flow.FlowState())
	}
	return unreachableResponse(req, verb)
}

// Step advances the simulation by one step, running the four sub-phases
// in their fixed order
func (sim *Simulation) Step() {
	sim.step += 1

	// sub-phase 1: pattern-of-life requests bound to this step
	for _, req := range sim.scheduled.due(sim.step) {
		sim.reqID += 1
		rsp := &RequestResponse{RequestID: sim.reqID, Status: RespPending}
		sim.responses[sim.reqID] = rsp
		sim.evaluate(req, rsp)
	}

	// sub-phase 2: every timed status machine ticks
	sim.tickMachines()

	// sub-phase 3: traffic loads, congestion, overwhelm and recovery
	sim.applyTraffic()

	// sub-phase 4: durationed transitions that completed this step
	// resolve before queued agent requests see the model
	sim.topo.pending.resolve()
	for _, qr := range sim.queued {
		sim.evaluate(qr.req, qr.rsp)
	}
	sim.queued = sim.queued[:0]

	sim.metrics.step()
	sim.metrics.pending(sim.topo.pending.outstanding())
}

// Run advances the simulation by the named number of steps
func (sim *Simulation) Run(steps int) {
	for idx := 0; idx < steps; idx++ {
		sim.Step()
	}
}

// tickMachines advances every status machine one step, in device name
// order and component declaration order within a device.  A hardware
// change invalidates the cached paths.
func (sim *Simulation) tickMachines() {
	hardwareChanged := false
	for _, name := range sim.topo.devNames {
		dev := sim.topo.devByName[name]
		if dev.devHardware().Tick() {
			hardwareChanged = true
			sim.traceMgr.AddTrace(sim.step, dev.DevID(), name,
				string(dev.devHardware().Status()))
		}
		host, isHost := dev.(*hostDev)
		if !isHost {
			continue
		}
		for _, svcName := range host.svcNames {
			svc := host.services[svcName]
			if svc.state.Tick() {
				sim.traceMgr.AddTrace(sim.step, svc.number, svcName,
					string(svc.state.Status()))
			}
		}
		for _, appName := range host.appNames {
			app := host.apps[appName]
			if app.state.Tick() {
				sim.traceMgr.AddTrace(sim.step, app.number, appName,
					string(app.state.Status()))
			}
		}
		if host.fileSys.state.Tick() {
			sim.traceMgr.AddTrace(sim.step, host.fileSys.number, "filesystem",
				string(host.fileSys.state.Status()))
		}
	}
	if hardwareChanged {
		sim.topo.invalidateRoutes()
	}
}

// Snapshot reports the full model state: topology, flows, and the step
// counter.  Reading a snapshot mutates nothing; two snapshots with no
// intervening step are equal.
func (sim *Simulation) Snapshot() map[string]any {
	flows := make(map[string]any)
	for _, name := range sim.flowNames {
		flows[name] = sim.flows[name].FlowState()
	}
	return map[string]any{
		"step":    sim.step,
		"network": sim.topo.StateDescription(),
		"flows":   flows,
	}
}

// SnapshotDigest hashes the snapshot into a short hex string for
// cross-run comparison.  The json rendering orders map keys, so equal
// snapshots hash equally.
func (sim *Simulation) SnapshotDigest() (string, error) {
	bytes, err := json.Marshal(sim.Snapshot())
	if err != nil {
		return "", err
	}
	digest := sha256.Sum256(bytes)
	return fmt.Sprintf("%x", digest[:]), nil
}

// ScheduleBackgroundTraffic seeds the pattern-of-life schedule with
// flow toggles among the named hosts, drawn from the simulation's
// random stream so the same seed yields the same schedule.  Each noise
// flow targets the baseline terminal service.
func (sim *Simulation) ScheduleBackgroundTraffic(hosts []string, count, horizon int) error {
	if len(hosts) < 2 {
		return fmt.Errorf("background traffic needs at least two hosts")
	}
	if horizon < 1 {
		return fmt.Errorf("background traffic needs a positive horizon")
	}
	for idx := 0; idx < count; idx++ {
		src := hosts[int(sim.rng.RandU01()*float64(len(hosts)))%len(hosts)]
		dst := src
		for dst == src {
			dst = hosts[int(sim.rng.RandU01()*float64(len(hosts)))%len(hosts)]
		}
		step := 1 + int(sim.rng.RandU01()*float64(horizon))%horizon
		rate := 1.0 + sim.rng.RandU01()*9.0
		name := fmt.Sprintf("noise-%d", idx)
		if err := sim.StartFlow(name, src, dst, "tcp", 22, rate); err != nil {
			return err
		}
		if err := sim.StopFlow(name); err != nil {
			return err
		}
		stopStep := step + 1 + int(sim.rng.RandU01()*float64(horizon))%horizon
		sim.scheduled.schedule(step, CreateRequest(
			[]string{"traffic", "flow", name, "start"}, nil))
		sim.scheduled.schedule(stopStep, CreateRequest(
			[]string{"traffic", "flow", name, "stop"}, nil))
	}
	return nil
}
