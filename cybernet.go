package cybernet

// cybernet.go assembles the run-time topology from its description:
// devices, their embedded interfaces, and the links cabling interface
// pairs together, with byID and byName registries for each and the
// adjacency structures the path computation consumes.

import (
	"fmt"

	"gonum.org/v1/gonum/graph"
	"gonum.org/v1/gonum/graph/path"
	"gonum.org/v1/gonum/graph/simple"
)

// sentinel errors callers test with errors.Is
var (
	ErrUnreachable       = fmt.Errorf("unreachable")
	ErrInvalidTransition = fmt.Errorf("invalid transition")
	ErrPermissionDenied  = fmt.Errorf("permission denied")
	ErrRuleLimit         = fmt.Errorf("rule limit reached")
)

// intPair holds a pair of integer ids, used to key interface pairs by
// the devices they join
type intPair struct {
	i, j int
}

// A Topology holds the assembled network model: every device,
// interface, and link, addressable by id and by name, plus the
// adjacency and cached path structures derived from them
type Topology struct {
	name      string
	idCounter int

	devByID    map[int]topoDev
	devByName  map[string]topoDev
	devNames   []string // declaration order
	intrfcByID map[int]*intrfcStruct
	linkByID   map[int]*linkStruct
	linkByName map[string]*linkStruct
	linkNames  []string

	// adjacency between devices, and the interface pair serving each step
	graph            map[int][]int
	routeStepIntrfcs map[intPair]intPair

	gNodes         map[int]simple.Node
	connGraph      graph.Graph
	connGraphBuilt bool
	cachedSP       map[int]path.Shortest
	pathCache      map[rtEndpts][]linkHop

	durationTbl map[statusDomain]map[Status]int
	pending     *pendingRegistry
	tm          *TraceManager
}

// nxtID increments and returns the id counter shared by every kind of
// model object
func (topo *Topology) nxtID() int {
	topo.idCounter += 1
	return topo.idCounter
}

// portKey addresses an interface by its owning node and port index
// while the topology is under construction
type portKey struct {
	node string
	port int
}

// BuildTopology assembles the run-time model from its description.  The
// description is validated first; a dangling link endpoint, duplicated
// name, or malformed address fails construction rather than surfacing
// later.  The timing list may be nil, in which case the built-in
// durations govern; the trace manager may be nil, in which case an
// inactive one is created.
func BuildTopology(tc *TopoCfg, tl *TimingList, tm *TraceManager) (*Topology, error) {
	if err := validateTopoCfg(tc); err != nil {
		return nil, err
	}

	topo := new(Topology)
	topo.name = tc.Name
	topo.devByID = make(map[int]topoDev)
	topo.devByName = make(map[string]topoDev)
	topo.devNames = make([]string, 0, len(tc.Nodes))
	topo.intrfcByID = make(map[int]*intrfcStruct)
	topo.linkByID = make(map[int]*linkStruct)
	topo.linkByName = make(map[string]*linkStruct)
	topo.linkNames = make([]string, 0, len(tc.Links))
	topo.graph = make(map[int][]int)
	topo.routeStepIntrfcs = make(map[intPair]intPair)
	topo.pending = createPendingRegistry()
	topo.invalidateRoutes()

	topo.durationTbl = buildDurationTbl(tl)
	if tm == nil {
		tm = CreateTraceManager(tc.Name, false)
	}
	topo.tm = tm

	byPort := make(map[portKey]*intrfcStruct)
	for idx := range tc.Nodes {
		nd := &tc.Nodes[idx]
		var dev topoDev
		var err error
		if nd.hostClass() {
			var host *hostDev
			host, err = createHostDev(topo, nd)
			if err == nil {
				for iidx := range nd.Interfaces {
					intrfc, ierr := createIntrfcStruct(topo, host, &nd.Interfaces[iidx])
					if ierr != nil {
						return nil, fmt.Errorf("node %s: %w", nd.Name, ierr)
					}
					host.addIntrfc(intrfc)
					topo.registerIntrfc(intrfc, byPort)
				}
			}
			dev = host
		} else {
			var netdev *netDev
			netdev, err = createNetDev(topo, nd)
			if err == nil {
				for iidx := range nd.Interfaces {
					intrfc, ierr := createIntrfcStruct(topo, netdev, &nd.Interfaces[iidx])
					if ierr != nil {
						return nil, fmt.Errorf("node %s: %w", nd.Name, ierr)
					}
					netdev.addIntrfc(intrfc)
					topo.registerIntrfc(intrfc, byPort)
				}
			}
			dev = netdev
		}
		if err != nil {
			return nil, err
		}
		if _, present := topo.devByName[dev.devName()]; present {
			return nil, fmt.Errorf("device name %s declared twice", dev.devName())
		}
		topo.devByID[dev.DevID()] = dev
		topo.devByName[dev.devName()] = dev
		topo.devNames = append(topo.devNames, dev.devName())
		topo.graph[dev.DevID()] = make([]int, 0)
		tm.AddName(dev.DevID(), dev.devName(), devCodeToStr(dev.devType()))
	}

	for idx := range tc.Links {
		ld := &tc.Links[idx]
		intrfcA := byPort[portKey{node: ld.EndptA.Node, port: ld.EndptA.Port}]
		intrfcB := byPort[portKey{node: ld.EndptB.Node, port: ld.EndptB.Port}]
		if intrfcA == nil || intrfcB == nil {
			return nil, fmt.Errorf("link %s names an undeclared endpoint", ld.Name)
		}
		if intrfcA.link != nil {
			return nil, fmt.Errorf("port %d on %s already cabled", ld.EndptA.Port, ld.EndptA.Node)
		}
		if intrfcB.link != nil {
			return nil, fmt.Errorf("port %d on %s already cabled", ld.EndptB.Port, ld.EndptB.Node)
		}

		link := createLinkStruct(topo, ld)
		link.intrfcA = intrfcA
		link.intrfcB = intrfcB
		intrfcA.link = link
		intrfcB.link = link
		if _, present := topo.linkByName[link.name]; present {
			return nil, fmt.Errorf("link name %s declared twice", link.name)
		}
		topo.linkByID[link.number] = link
		topo.linkByName[link.name] = link
		topo.linkNames = append(topo.linkNames, link.name)
		tm.AddName(link.number, link.name, "link")

		topo.connectDevs(intrfcA, intrfcB)
	}
	return topo, nil
}

// registerIntrfc enters an interface into the topology registries
func (topo *Topology) registerIntrfc(intrfc *intrfcStruct, byPort map[portKey]*intrfcStruct) {
	topo.intrfcByID[intrfc.number] = intrfc
	byPort[portKey{node: intrfc.device.devName(), port: intrfc.port}] = intrfc
	topo.tm.AddName(intrfc.number, intrfc.name, "interface")
}

// connectDevs records the adjacency a new link creates between the
// devices owning its endpoint interfaces
func (topo *Topology) connectDevs(intrfcA, intrfcB *intrfcStruct) {
	devA := intrfcA.device.DevID()
	devB := intrfcB.device.DevID()
	topo.graph[devA] = append(topo.graph[devA], devB)
	topo.graph[devB] = append(topo.graph[devB], devA)
	topo.routeStepIntrfcs[intPair{i: devA, j: devB}] = intPair{i: intrfcA.number, j: intrfcB.number}
}

// CompName helps Topology satisfy the Component interface
func (topo *Topology) CompName() string {
	return topo.name
}

// StateDescription reports the whole model: every node and link, each
// under its stable key
func (topo *Topology) StateDescription() map[string]any {
	nodes := make(map[string]any)
	for _, name := range topo.devNames {
		nodes[name] = topo.devByName[name].StateDescription()
	}
	links := make(map[string]any)
	for _, name := range topo.linkNames {
		links[name] = topo.linkByName[name].StateDescription()
	}
	return map[string]any{
		"name":  topo.name,
		"nodes": nodes,
		"links": links,
	}
}
