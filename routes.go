package cybernet

// routes.go provides the per-device routing tables consulted by the
// forwarding pipeline, and the topology-level path computation that
// turns a (source, destination) pair into the sequence of links a flow
// traverses.
//
// The path computation converts the topology into the data structures of
// the gonum graph package.  Weighting each edge by 1, a shortest path
// minimizes hop count, which approximates what local routing like OSPF
// produces.  Dijkstra trees are computed per source and cached; any
// change to interface or link availability invalidates the caches.

import (
	"fmt"
	"math"
	"math/bits"
	"sort"

	"gonum.org/v1/gonum/graph"
	"gonum.org/v1/gonum/graph/path"
	"gonum.org/v1/gonum/graph/simple"
)

// A RouteEntry holds one explicit route: a destination network, the mask
// selecting it, and the next-hop address
type RouteEntry struct {
	destAddr uint32
	mask     uint32
	nextHop  uint32
	ones     int // set bits in mask, the entry's specificity
}

// covers reports whether the entry's network contains the destination
func (re *RouteEntry) covers(dst uint32) bool {
	return (dst & re.mask) == re.destAddr&re.mask
}

// entryState reports the entry in snapshot form
func (re *RouteEntry) entryState() map[string]any {
	return map[string]any{
		"dest":    uintToIPv4(re.destAddr),
		"mask":    uintToIPv4(re.mask),
		"nexthop": uintToIPv4(re.nextHop),
	}
}

// routeTableLimit bounds the number of explicit routes a device accepts
const routeTableLimit = 128

// A RoutingTable holds a device's explicit routes in insertion order,
// plus an optional default route consulted when no explicit route covers
// the destination
type RoutingTable struct {
	entries []*RouteEntry
	dflt    *RouteEntry
	limit   int
}

// createRoutingTable is a constructor
func createRoutingTable() *RoutingTable {
	rt := new(RoutingTable)
	rt.entries = make([]*RouteEntry, 0)
	rt.limit = routeTableLimit
	return rt
}

// buildRouteEntry creates a RouteEntry from its desc representation
func buildRouteEntry(rd *RouteDesc) (*RouteEntry, error) {
	re := new(RouteEntry)
	var err error
	re.destAddr, err = ipv4ToUint(rd.Dest)
	if err != nil {
		return nil, err
	}
	re.mask, err = ipv4ToUint(rd.Mask)
	if err != nil {
		return nil, err
	}
	re.nextHop, err = ipv4ToUint(rd.NextHop)
	if err != nil {
		return nil, err
	}
	re.ones = bits.OnesCount32(re.mask)
	return re, nil
}

// AddRoute appends an explicit route, preserving insertion order for
// tie-breaking among equally specific entries
func (rt *RoutingTable) AddRoute(re *RouteEntry) error {
	if len(rt.entries) >= rt.limit {
		return fmt.Errorf("%w: routing table holds %d entries", ErrRuleLimit, rt.limit)
	}
	rt.entries = append(rt.entries, re)
	return nil
}

// SetDefault installs the default route
func (rt *RoutingTable) SetDefault(nextHop uint32) {
	rt.dflt = &RouteEntry{nextHop: nextHop}
}

// Lookup resolves a destination address to a route entry.  The most
// specific covering entry wins; equal specificity resolves by insertion
// order; a destination no explicit route covers falls to the default
// route; absent that the destination is unreachable.
func (rt *RoutingTable) Lookup(dst uint32) (*RouteEntry, error) {
	var best *RouteEntry
	for _, re := range rt.entries {
		if !re.covers(dst) {
			continue
		}
		if best == nil || re.ones > best.ones {
			best = re
		}
	}
	if best != nil {
		return best, nil
	}
	if rt.dflt != nil {
		return rt.dflt, nil
	}
	return nil, fmt.Errorf("%w: no route to %s", ErrUnreachable, uintToIPv4(dst))
}

// tableState reports the table in snapshot form
func (rt *RoutingTable) tableState() map[string]any {
	entries := make([]map[string]any, 0, len(rt.entries))
	for _, re := range rt.entries {
		entries = append(entries, re.entryState())
	}
	state := map[string]any{"routes": entries}
	if rt.dflt != nil {
		state["default"] = uintToIPv4(rt.dflt.nextHop)
	}
	return state
}

// A linkHop is one step of a computed path: the egress interface on the
// device being left, the ingress interface on the device entered, the
// link between them, and the device entered
type linkHop struct {
	srcIntrfcID int
	dstIntrfcID int
	linkID      int
	devID       int
}

// rtEndpts keys the per-pair path cache
type rtEndpts struct {
	srcID, dstID int
}

// buildConnGraph converts the topology's adjacency map into the gonum
// representation, omitting edges whose interfaces are disabled, whose
// link is down, or whose devices are not powered on
func (topo *Topology) buildConnGraph() {
	topo.gNodes = make(map[int]simple.Node)
	connGraph := simple.NewWeightedUndirectedGraph(0, math.Inf(1))

	// deterministic node and edge insertion: iterate ids in sorted order
	devIDs := make([]int, 0, len(topo.graph))
	for devID := range topo.graph {
		devIDs = append(devIDs, devID)
	}
	sort.Ints(devIDs)

	for _, devID := range devIDs {
		topo.gNodes[devID] = simple.Node(devID)
		connGraph.AddNode(topo.gNodes[devID])
	}

	for _, devID := range devIDs {
		for _, nbrID := range topo.graph[devID] {
			if !topo.edgeUsable(devID, nbrID) {
				continue
			}
			weightedEdge := simple.WeightedEdge{F: topo.gNodes[devID], T: topo.gNodes[nbrID], W: 1.0}
			connGraph.SetWeightedEdge(weightedEdge)
		}
	}
	topo.connGraph = connGraph
	topo.connGraphBuilt = true
}

// edgeUsable reports whether traffic may traverse the connection between
// the named devices: both devices ON, both interfaces enabled, link up
func (topo *Topology) edgeUsable(devA, devB int) bool {
	intrfcs, present := topo.routeStepIntrfcs[intPair{i: devA, j: devB}]
	if !present {
		intrfcs, present = topo.routeStepIntrfcs[intPair{i: devB, j: devA}]
		if !present {
			return false
		}
	}
	srcIntrfc := topo.intrfcByID[intrfcs.i]
	dstIntrfc := topo.intrfcByID[intrfcs.j]
	if !srcIntrfc.enabled || !dstIntrfc.enabled {
		return false
	}
	if srcIntrfc.link == nil || !srcIntrfc.link.up {
		return false
	}
	if topo.devByID[devA].devHardware().Status() != StatusOn {
		return false
	}
	if topo.devByID[devB].devHardware().Status() != StatusOn {
		return false
	}
	return true
}

// invalidateRoutes discards the connection graph and every cached path.
// Called whenever interface, link, or device availability changes.
func (topo *Topology) invalidateRoutes() {
	topo.connGraphBuilt = false
	topo.cachedSP = make(map[int]path.Shortest)
	topo.pathCache = make(map[rtEndpts][]linkHop)
}

// getSPTree returns the shortest path tree rooted at the input device,
// computing and caching it on first use
func (topo *Topology) getSPTree(from int) path.Shortest {
	spTree, present := topo.cachedSP[from]
	if present {
		return spTree
	}
	spTree = path.DijkstraFrom(topo.gNodes[from], topo.connGraph)
	topo.cachedSP[from] = spTree
	return spTree
}

// convertNodeSeq extracts device ids from a sequence of graph nodes
func convertNodeSeq(nsQ []graph.Node) []int {
	rtn := make([]int, 0, len(nsQ))
	for _, node := range nsQ {
		rtn = append(rtn, int(node.ID()))
	}
	return rtn
}

// routeFrom returns the shortest device-id sequence from source to
// destination, empty when the destination cannot be reached
func (topo *Topology) routeFrom(srcID, dstID int) []int {
	if !topo.connGraphBuilt {
		topo.buildConnGraph()
	}
	spTree := topo.getSPTree(srcID)
	nodeSeq, _ := spTree.To(int64(dstID))
	return convertNodeSeq(nodeSeq)
}

// findRoute computes (or recalls) the sequence of linkHop steps a flow
// follows from the source device to the destination device.  An empty
// return means no usable path exists.
func (topo *Topology) findRoute(srcID, dstID int) []linkHop {
	endpoints := rtEndpts{srcID: srcID, dstID: dstID}
	if !topo.connGraphBuilt {
		topo.buildConnGraph()
	} else if hops, found := topo.pathCache[endpoints]; found {
		return hops
	}

	route := topo.routeFrom(srcID, dstID)
	hops := make([]linkHop, 0)
	for idx := 1; idx < len(route); idx++ {
		devID := route[idx]
		srcIntrfcID, dstIntrfcID := topo.intrfcsBetween(route[idx-1], devID)
		dstIntrfc := topo.intrfcByID[dstIntrfcID]

		linkID := -1
		if dstIntrfc.link != nil {
			linkID = dstIntrfc.link.number
		}
		hops = append(hops, linkHop{srcIntrfcID: srcIntrfcID, dstIntrfcID: dstIntrfcID,
			linkID: linkID, devID: devID})
	}
	topo.pathCache[endpoints] = hops
	return hops
}

// intrfcsBetween recovers the interface pair joining two adjacent
// devices on a computed route
func (topo *Topology) intrfcsBetween(srcID, dstID int) (int, int) {
	ip := intPair{i: srcID, j: dstID}
	intrfcs, present := topo.routeStepIntrfcs[ip]
	if !present {
		intrfcs, present = topo.routeStepIntrfcs[intPair{i: dstID, j: srcID}]
		if !present {
			panic(fmt.Errorf("no step between %s and %s",
				topo.devByID[srcID].devName(), topo.devByID[dstID].devName()))
		}
		return intrfcs.j, intrfcs.i
	}
	return intrfcs.i, intrfcs.j
}
