package cybernet

// flow.go implements the traffic model.  A flow is a named, constant
// rate stream between a source host and a service on a destination
// host.  Flows do not move packets; each step the engine re-derives
// every link load from the set of active flows, judging each flow
// against the ACL chains, routing tables, and firewall zones of the
// devices its path transits.  A link whose applied load reaches its
// bandwidth is congested, and the services fed through it are marked
// OVERWHELMED until the pressure drops.

import (
	"fmt"

	"golang.org/x/exp/slices"
)

// A Flow describes one stream of traffic.  The blocked flag and reason
// are re-derived every traffic phase; rate and active change only by
// explicit operation.
type Flow struct {
	name     string
	src      string // source hostname
	dst      string // destination hostname
	protocol string
	port     int // destination service port
	rate     float64
	active   bool
	blocked  bool
	reason   string
}

// FlowState reports the flow in snapshot form
func (flow *Flow) FlowState() map[string]any {
	return map[string]any{
		"name":     flow.name,
		"src":      flow.src,
		"dst":      flow.dst,
		"protocol": flow.protocol,
		"port":     flow.port,
		"rate":     flow.rate,
		"active":   flow.active,
		"blocked":  flow.blocked,
		"reason":   flow.reason,
	}
}

// StartFlow creates (or reactivates) a named flow.  The endpoints are
// validated against the topology; judgement of ACLs, routes, and
// congestion waits for the next traffic phase.
func (sim *Simulation) StartFlow(name, src, dst, protocol string, port int, rate float64) error {
	if rate <= 0.0 {
		return fmt.Errorf("flow %s given non-positive rate %f", name, rate)
	}
	srcDev, present := sim.topo.devByName[src]
	if !present {
		return fmt.Errorf("%w: flow %s source %s", ErrUnreachable, name, src)
	}
	dstDev, present := sim.topo.devByName[dst]
	if !present {
		return fmt.Errorf("%w: flow %s destination %s", ErrUnreachable, name, dst)
	}
	if !hostClassCode(srcDev.devType()) || !hostClassCode(dstDev.devType()) {
		return fmt.Errorf("flow %s endpoints must be host-class nodes", name)
	}

	flow, present := sim.flows[name]
	if !present {
		flow = &Flow{name: name}
		sim.flows[name] = flow
		sim.flowNames = append(sim.flowNames, name)
		slices.Sort(sim.flowNames)
	}
	flow.src = src
	flow.dst = dst
	flow.protocol = protocol
	flow.port = port
	flow.rate = rate
	flow.active = true
	return nil
}

// StopFlow deactivates a named flow.  Its load disappears at the next
// traffic phase.
func (sim *Simulation) StopFlow(name string) error {
	flow, present := sim.flows[name]
	if !present {
		return fmt.Errorf("no flow named %s", name)
	}
	flow.active = false
	return nil
}

// ChgFlowRate changes the rate of a named flow
func (sim *Simulation) ChgFlowRate(name string, rate float64) error {
	flow, present := sim.flows[name]
	if !present {
		return fmt.Errorf("no flow named %s", name)
	}
	if rate <= 0.0 {
		return fmt.Errorf("flow %s given non-positive rate %f", name, rate)
	}
	flow.rate = rate
	return nil
}

// hostAddr returns the address of the device's first enabled interface,
// reporting failure when every interface is disabled
func hostAddr(dev topoDev) (uint32, bool) {
	for _, intrfc := range dev.devIntrfcs() {
		if intrfc.enabled {
			return intrfc.addr, true
		}
	}
	return 0, false
}

// serviceAt finds the host service listening on the protocol/port pair
func (host *hostDev) serviceAt(protocol string, port int) *serviceStruct {
	for _, name := range host.svcNames {
		svc := host.services[name]
		if svc.protocol == protocol && svc.port == port {
			return svc
		}
	}
	return nil
}

// judgeFlow decides whether the flow passes, and returns the hops whose
// links carry its load.  Evaluation order along the path is the order
// devices are entered; a deny or routing failure blocks the flow with a
// reason and applies no load anywhere.
func (sim *Simulation) judgeFlow(flow *Flow) ([]linkHop, error) {
	topo := sim.topo
	srcDev := topo.devByName[flow.src]
	dstDev := topo.devByName[flow.dst]
	if srcDev == nil || dstDev == nil {
		return nil, fmt.Errorf("%w: endpoint missing", ErrUnreachable)
	}
	if srcDev.devHardware().Status() != StatusOn {
		return nil, fmt.Errorf("source %s is %s", flow.src, srcDev.devHardware().Status())
	}
	if dstDev.devHardware().Status() != StatusOn {
		return nil, fmt.Errorf("destination %s is %s", flow.dst, dstDev.devHardware().Status())
	}

	srcAddr, up := hostAddr(srcDev)
	if !up {
		return nil, fmt.Errorf("source %s has no enabled interface", flow.src)
	}
	dstAddr, up := hostAddr(dstDev)
	if !up {
		return nil, fmt.Errorf("destination %s has no enabled interface", flow.dst)
	}

	dstHost := dstDev.(*hostDev)
	if dstHost.serviceAt(flow.protocol, flow.port) == nil {
		return nil, fmt.Errorf("no service on %s at %s/%d", flow.dst, flow.protocol, flow.port)
	}

	spec := &FlowSpec{
		Protocol: flow.protocol,
		SrcAddr:  srcAddr,
		DstAddr:  dstAddr,
		SrcPort:  0,
		DstPort:  flow.port,
	}

	if srcDev.DevID() == dstDev.DevID() {
		return []linkHop{}, nil
	}
	hops := topo.findRoute(srcDev.DevID(), dstDev.DevID())
	if len(hops) == 0 {
		return nil, fmt.Errorf("%w: no path from %s to %s", ErrUnreachable, flow.src, flow.dst)
	}

	// transit devices are every device entered except the destination
	for idx := 0; idx < len(hops)-1; idx++ {
		hop := hops[idx]
		dev := topo.devByID[hop.devID]
		if err := sim.judgeTransit(dev, hop, hops[idx+1], spec); err != nil {
			return nil, err
		}
	}
	return hops, nil
}

// judgeTransit applies one transit device's policy to the flow
func (sim *Simulation) judgeTransit(dev topoDev, hop, next linkHop, spec *FlowSpec) error {
	topo := sim.topo
	switch dev.devType() {
	case switchCode:
		nd := dev.(*netDev)
		sim.metrics.aclEval()
		if action, _ := nd.chain.Evaluate(spec); action == Deny {
			return fmt.Errorf("%w: denied by %s", ErrPermissionDenied, dev.devName())
		}
	case routerCode:
		nd := dev.(*netDev)
		sim.metrics.aclEval()
		if action, _ := nd.chain.Evaluate(spec); action == Deny {
			return fmt.Errorf("%w: denied by %s", ErrPermissionDenied, dev.devName())
		}
		if _, err := nd.routes.Lookup(spec.DstAddr); err != nil {
			return fmt.Errorf("%s: %w", dev.devName(), err)
		}
	case firewallCode:
		nd := dev.(*netDev)
		ingress := topo.intrfcByID[hop.dstIntrfcID]
		egress := topo.intrfcByID[next.srcIntrfcID]
		sim.metrics.aclEval()
		if nd.chains.evaluateTransit(ingress.zone, egress.zone, spec) == Deny {
			return fmt.Errorf("%w: denied by %s", ErrPermissionDenied, dev.devName())
		}
		if _, err := nd.routes.Lookup(spec.DstAddr); err != nil {
			return fmt.Errorf("%s: %w", dev.devName(), err)
		}
	}
	return nil
}

// applyTraffic is the step's traffic phase.  Every link load is cleared
// and re-derived from the active flows, judged in flow name order so a
// run is reproducible.  Congestion follows from the applied loads, and
// the services fed through congested links are forced OVERWHELMED;
// services the engine overwhelmed earlier recover when their pressure
// clears.
func (sim *Simulation) applyTraffic() {
	topo := sim.topo
	for _, link := range topo.linkByID {
		link.clearLoads()
	}

	pressured := make(map[*serviceStruct]bool)
	flowPaths := make(map[string][]linkHop)
	for _, name := range sim.flowNames {
		flow := sim.flows[name]
		if !flow.active {
			flow.blocked = false
			flow.reason = ""
			continue
		}
		hops, err := sim.judgeFlow(flow)
		if err != nil {
			flow.blocked = true
			flow.reason = err.Error()
			continue
		}
		flow.blocked = false
		flow.reason = ""
		flowPaths[name] = hops
		for _, hop := range hops {
			if link, present := topo.linkByID[hop.linkID]; present {
				link.applyLoad(flow.protocol, flow.rate)
			}
		}
	}

	// mark the destination services of flows crossing a congested link
	for _, name := range sim.flowNames {
		flow := sim.flows[name]
		hops, carried := flowPaths[name]
		if !carried {
			continue
		}
		congested := false
		for _, hop := range hops {
			link, present := topo.linkByID[hop.linkID]
			if present && link.congested() {
				congested = true
				break
			}
		}
		if !congested {
			continue
		}
		dstHost := topo.devByName[flow.dst].(*hostDev)
		svc := dstHost.serviceAt(flow.protocol, flow.port)
		if svc == nil {
			continue
		}
		pressured[svc] = true
		if svc.state.Status() == StatusGood {
			svc.state.force(StatusOverwhelmed)
			sim.overwhelmed[svc] = true
			sim.metrics.congestion()
			sim.traceMgr.AddTrace(sim.step, svc.number, svc.name, "overwhelmed")
		}
	}

	// recovery: a service the engine overwhelmed returns to GOOD once no
	// congested flow feeds it.  A service the agent moved elsewhere in
	// the meantime is simply forgotten.  Visit in id order so the trace
	// is reproducible.
	watched := make([]*serviceStruct, 0, len(sim.overwhelmed))
	for svc := range sim.overwhelmed {
		watched = append(watched, svc)
	}
	slices.SortFunc(watched, func(a, b *serviceStruct) int { return a.number - b.number })
	for _, svc := range watched {
		if pressured[svc] {
			continue
		}
		if svc.state.Status() == StatusOverwhelmed {
			svc.state.force(StatusGood)
			sim.traceMgr.AddTrace(sim.step, svc.number, svc.name, "recovered")
		}
		delete(sim.overwhelmed, svc)
	}
}
