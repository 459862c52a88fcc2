package cybernet

// net.go contains the run-time representations of the simulated
// network's parts: interfaces, links, and the five device kinds
// (computer, server, switch, router, firewall).  Host-class devices
// carry services, applications, and a file system; network devices
// carry ACL chains and routing tables.  Every part satisfies the
// Component contract so the request dispatcher can reach it, and every
// device satisfies topoDev so the traffic model can traverse it.

import (
	"fmt"
	"strconv"

	"github.com/iti/rngstream"
	"golang.org/x/exp/slices"
)

// devCode is the base type for an enumerated type of network devices
type devCode int

const (
	computerCode devCode = iota
	serverCode
	switchCode
	routerCode
	firewallCode
	unknownCode
)

// devCodeFromStr returns the devCode corresponding to a string name for it
func devCodeFromStr(code string) devCode {
	switch code {
	case "Computer", "computer":
		return computerCode
	case "Server", "server":
		return serverCode
	case "Switch", "switch":
		return switchCode
	case "Router", "router", "rtr":
		return routerCode
	case "Firewall", "firewall", "fw":
		return firewallCode
	default:
		return unknownCode
	}
}

// devCodeToStr returns a string corresponding to an input devCode
func devCodeToStr(code devCode) string {
	switch code {
	case computerCode:
		return "computer"
	case serverCode:
		return "server"
	case switchCode:
		return "switch"
	case routerCode:
		return "router"
	case firewallCode:
		return "firewall"
	}
	return "unknown"
}

// hostClassCode reports whether the device kind carries host software
func hostClassCode(code devCode) bool {
	return code == computerCode || code == serverCode
}

// the topoDev interface specifies the functionality different device
// types provide to the topology and traffic model
type topoDev interface {
	devName() string              // every device has a unique name
	DevID() int                   // every device has a unique integer id
	devType() devCode             // every device is one of the devCode types
	devIntrfcs() []*intrfcStruct  // the interfaces the device embeds
	devHardware() *TimedState     // the device's hardware status machine
	devRng() *rngstream.RngStream // every device has its own RNG stream
	Component
}

// The intrfcStruct holds information about a network interface embedded
// in a device.  An interface that is disabled carries no traffic.
type intrfcStruct struct {
	name    string
	number  int     // unique integer id, generated at model load-time
	port    int     // port index, unique on the owning device
	mac     string
	addr    uint32  // IPv4 address
	addrStr string
	mask    uint32  // subnet mask
	maskStr string
	enabled bool
	zone    string // firewall zone faced by the interface, if any
	device  topoDev
	link    *linkStruct
	topo    *Topology
}

// createIntrfcStruct is a constructor, building an intrfcStruct from a
// desc description of the interface
func createIntrfcStruct(topo *Topology, dev topoDev, id *IntrfcDesc) (*intrfcStruct, error) {
	is := new(intrfcStruct)
	is.name = id.Name
	if is.name == "" {
		is.name = fmt.Sprintf("%s-eth%d", dev.devName(), id.Port)
	}
	is.number = topo.nxtID()
	is.port = id.Port
	is.mac = id.MAC
	is.addrStr = id.IPAddr
	is.maskStr = id.SubnetMask
	is.enabled = !id.Disabled
	is.zone = id.Zone
	is.device = dev
	is.topo = topo

	var err error
	is.addr, err = ipv4ToUint(id.IPAddr)
	if err != nil {
		return nil, err
	}
	is.mask, err = ipv4ToUint(id.SubnetMask)
	if err != nil {
		return nil, err
	}
	return is, nil
}

// CompName helps intrfcStruct satisfy the Component interface
func (intrfc *intrfcStruct) CompName() string {
	return intrfc.name
}

// StateDescription reports the interface in snapshot form
func (intrfc *intrfcStruct) StateDescription() map[string]any {
	return map[string]any{
		"name":    intrfc.name,
		"port":    intrfc.port,
		"mac":     intrfc.mac,
		"ipaddr":  intrfc.addrStr,
		"mask":    intrfc.maskStr,
		"enabled": intrfc.enabled,
	}
}

// Dispatch executes interface verbs.  Toggling availability invalidates
// every cached route.
func (intrfc *intrfcStruct) Dispatch(req *Request) *RequestResponse {
	verb, rest := req.head()
	if len(rest) > 0 {
		return unreachableResponse(req, verb)
	}
	switch verb {
	case "enable":
		intrfc.enabled = true
		intrfc.topo.invalidateRoutes()
		return successResponse(nil)
	case "disable":
		intrfc.enabled = false
		intrfc.topo.invalidateRoutes()
		return successResponse(nil)
	case "describe":
		return successResponse(intrfc.StateDescription())
	case "verbs":
		return verbsResponse(intrfc)
	}
	return unreachableResponse(req, verb)
}

// Verbs lists the interface's verbs, as part of the Component interface
func (intrfc *intrfcStruct) Verbs() []string {
	return []string{"enable", "disable", "describe", "verbs"}
}

// The linkStruct holds a bandwidth-limited connection between exactly
// two interfaces.  Load is tracked per protocol and wholly derived from
// the flows applied each step; only the up/down flag is independently
// mutable, and only by explicit instruction.
type linkStruct struct {
	name     string
	number   int
	capacity float64 // Mbits/sec
	up       bool
	load     map[string]float64 // protocol -> applied rate
	intrfcA  *intrfcStruct
	intrfcB  *intrfcStruct
	topo     *Topology
}

// createLinkStruct is a constructor.  The endpoint interfaces are wired
// by the caller once both sides exist.
func createLinkStruct(topo *Topology, ld *LinkDesc) *linkStruct {
	link := new(linkStruct)
	link.name = ld.Name
	if link.name == "" {
		link.name = fmt.Sprintf("%s:%d--%s:%d", ld.EndptA.Node, ld.EndptA.Port, ld.EndptB.Node, ld.EndptB.Port)
	}
	link.number = topo.nxtID()
	link.capacity = ld.Bandwidth
	link.up = true
	link.load = make(map[string]float64)
	link.topo = topo
	return link
}

// applyLoad adds rate to the protocol's running load on the link
func (link *linkStruct) applyLoad(protocol string, rate float64) {
	link.load[protocol] += rate
}

// clearLoads zeroes the per-protocol loads before a traffic phase
func (link *linkStruct) clearLoads() {
	link.load = make(map[string]float64)
}

// totalLoad sums the per-protocol loads
func (link *linkStruct) totalLoad() float64 {
	total := 0.0
	for _, rate := range link.load {
		total += rate
	}
	return total
}

// congested reports whether total load has reached capacity.  This is a
// detectable condition, not an error.
func (link *linkStruct) congested() bool {
	return link.totalLoad() >= link.capacity
}

// linkStateStr derives the link's traffic condition
func (link *linkStruct) linkStateStr() string {
	total := link.totalLoad()
	switch {
	case !link.up:
		return "down"
	case total == 0.0:
		return "idle"
	case total >= link.capacity:
		return "congested"
	}
	return "normal"
}

// CompName helps linkStruct satisfy the Component interface
func (link *linkStruct) CompName() string {
	return link.name
}

// StateDescription reports the link in snapshot form
func (link *linkStruct) StateDescription() map[string]any {
	loads := make(map[string]any)
	for protocol, rate := range link.load {
		loads[protocol] = rate
	}
	return map[string]any{
		"name":      link.name,
		"bandwidth": link.capacity,
		"up":        link.up,
		"load":      loads,
		"state":     link.linkStateStr(),
	}
}

// Dispatch executes link verbs
func (link *linkStruct) Dispatch(req *Request) *RequestResponse {
	verb, rest := req.head()
	if len(rest) > 0 {
		return unreachableResponse(req, verb)
	}
	switch verb {
	case "up":
		link.up = true
		link.topo.invalidateRoutes()
		return successResponse(nil)
	case "down":
		link.up = false
		link.topo.invalidateRoutes()
		return successResponse(nil)
	case "describe":
		return successResponse(link.StateDescription())
	case "verbs":
		return verbsResponse(link)
	}
	return unreachableResponse(req, verb)
}

// Verbs lists the link's verbs, as part of the Component interface
func (link *linkStruct) Verbs() []string {
	return []string{"up", "down", "describe", "verbs"}
}

// A serviceStruct represents one service or application installed on a
// host.  Services listen on a protocol/port pair; an application is a
// service that takes no network traffic.  Both are governed by a timed
// status machine.
type serviceStruct struct {
	name     string
	number   int
	protocol string
	port     int
	state    *TimedState
	host     *hostDev
}

// createServiceStruct is a constructor
func createServiceStruct(topo *Topology, host *hostDev, domain statusDomain, sd *ServiceDesc) *serviceStruct {
	svc := new(serviceStruct)
	svc.name = sd.Name
	svc.number = topo.nxtID()
	svc.protocol = sd.Protocol
	svc.port = sd.Port
	initial := StatusGood
	if sd.Status != "" {
		initial = Status(sd.Status)
	}
	svc.state = createTimedState(domain, initial, topo.durationTbl[domain])
	svc.host = host
	return svc
}

// CompName helps serviceStruct satisfy the Component interface
func (svc *serviceStruct) CompName() string {
	return svc.name
}

// StateDescription reports the service in snapshot form
func (svc *serviceStruct) StateDescription() map[string]any {
	return map[string]any{
		"name":      svc.name,
		"protocol":  svc.protocol,
		"port":      svc.port,
		"status":    string(svc.state.Status()),
		"remaining": svc.state.Remaining(),
	}
}

// Dispatch executes service verbs.  Durationed transitions come back
// pending and resolve on a later step.
func (svc *serviceStruct) Dispatch(req *Request) *RequestResponse {
	verb, rest := req.head()
	if len(rest) > 0 {
		return unreachableResponse(req, verb)
	}
	switch verb {
	case "patch", "restart", "compromise":
		return respondTimed(svc.host.topo, svc.state, verb)
	case "describe", "scan":
		return successResponse(svc.StateDescription())
	case "verbs":
		return verbsResponse(svc)
	}
	return unreachableResponse(req, verb)
}

// Verbs lists the verbs the service accepts structurally.  Whether a
// transition verb succeeds still depends on the status at execution.
func (svc *serviceStruct) Verbs() []string {
	return []string{"patch", "restart", "compromise", "scan", "describe", "verbs"}
}

// A fileSysStruct represents a host's file system, governed by a timed
// status machine over GOOD/CORRUPT/DESTROYED/REPAIRING/RESTORING
type fileSysStruct struct {
	number int
	state  *TimedState
	host   *hostDev
}

// createFileSysStruct is a constructor
func createFileSysStruct(topo *Topology, host *hostDev, initial string) *fileSysStruct {
	fs := new(fileSysStruct)
	fs.number = topo.nxtID()
	status := StatusGood
	if initial != "" {
		status = Status(initial)
	}
	fs.state = createTimedState(fileSysDomain, status, topo.durationTbl[fileSysDomain])
	fs.host = host
	return fs
}

// CompName helps fileSysStruct satisfy the Component interface
func (fs *fileSysStruct) CompName() string {
	return "filesystem"
}

// StateDescription reports the file system in snapshot form
func (fs *fileSysStruct) StateDescription() map[string]any {
	return map[string]any{
		"status":    string(fs.state.Status()),
		"remaining": fs.state.Remaining(),
	}
}

// Dispatch executes file system verbs
func (fs *fileSysStruct) Dispatch(req *Request) *RequestResponse {
	verb, rest := req.head()
	if len(rest) > 0 {
		return unreachableResponse(req, verb)
	}
	switch verb {
	case "corrupt", "destroy", "repair", "restore":
		return respondTimed(fs.host.topo, fs.state, verb)
	case "scan", "describe":
		return successResponse(fs.StateDescription())
	case "verbs":
		return verbsResponse(fs)
	}
	return unreachableResponse(req, verb)
}

// Verbs lists the verbs the file system accepts structurally
func (fs *fileSysStruct) Verbs() []string {
	return []string{"corrupt", "destroy", "repair", "restore", "scan", "describe", "verbs"}
}

// baselineHostServices is the fixed default software set installed on
// every host-class node during construction, unless the topology
// description already declares a service of the same name
var baselineHostServices = []ServiceDesc{
	{Name: "terminal", Protocol: "tcp", Port: 22, Status: "GOOD"},
	{Name: "dns-client", Protocol: "udp", Port: 53, Status: "GOOD"},
}

// A hostDev holds information about a host-class node (computer or
// server): its hardware status, interfaces, services, applications, and
// file system
type hostDev struct {
	hostName    string
	hostGroups  []string
	hostModel   string
	hostID      int
	code        devCode
	hardware    *TimedState
	hostIntrfcs []*intrfcStruct
	services    map[string]*serviceStruct
	svcNames    []string // service names in declaration order
	apps        map[string]*serviceStruct
	appNames    []string
	fileSys     *fileSysStruct
	rngstrm     *rngstream.RngStream
	trace       bool
	topo        *Topology
}

// createHostDev is a constructor, using information from the desc
// description of the node.  The baseline OS service set installs first;
// declared services follow and may not duplicate names.
func createHostDev(topo *Topology, nd *NodeDesc) (*hostDev, error) {
	host := new(hostDev)
	host.hostName = nd.Name
	host.hostModel = nd.Model
	host.hostGroups = nd.Groups
	host.hostID = topo.nxtID()
	host.code = devCodeFromStr(nd.Type)

	initial := StatusOn
	if nd.HWStatus != "" {
		initial = Status(nd.HWStatus)
	}
	host.hardware = createTimedState(hardwareDomain, initial, topo.durationTbl[hardwareDomain])
	host.hostIntrfcs = make([]*intrfcStruct, 0)
	host.services = make(map[string]*serviceStruct)
	host.apps = make(map[string]*serviceStruct)
	host.rngstrm = rngstream.New(nd.Name)
	host.topo = topo

	declared := make([]string, 0, len(nd.Services))
	for _, sd := range nd.Services {
		declared = append(declared, sd.Name)
	}
	for _, sd := range baselineHostServices {
		if !slices.Contains(declared, sd.Name) {
			host.addService(createServiceStruct(topo, host, serviceDomain, &sd))
		}
	}
	for idx := range nd.Services {
		sd := &nd.Services[idx]
		if _, present := host.services[sd.Name]; present {
			return nil, fmt.Errorf("host %s declares service %s twice", nd.Name, sd.Name)
		}
		host.addService(createServiceStruct(topo, host, serviceDomain, sd))
	}
	for idx := range nd.Applications {
		ad := &nd.Applications[idx]
		if _, present := host.apps[ad.Name]; present {
			return nil, fmt.Errorf("host %s declares application %s twice", nd.Name, ad.Name)
		}
		host.apps[ad.Name] = createServiceStruct(topo, host, softwareDomain, ad)
		host.appNames = append(host.appNames, ad.Name)
	}
	host.fileSys = createFileSysStruct(topo, host, nd.FileSystem)
	return host, nil
}

// addService installs a service preserving declaration order
func (host *hostDev) addService(svc *serviceStruct) {
	host.services[svc.name] = svc
	host.svcNames = append(host.svcNames, svc.name)
}

// addIntrfc appends the input intrfcStruct to the list of interfaces
// embedded in the host
func (host *hostDev) addIntrfc(intrfc *intrfcStruct) {
	host.hostIntrfcs = append(host.hostIntrfcs, intrfc)
}

// devName returns the host name, as part of the topoDev interface
func (host *hostDev) devName() string {
	return host.hostName
}

// DevID returns the host integer id, as part of the topoDev interface
func (host *hostDev) DevID() int {
	return host.hostID
}

// devType returns the host's device type, as part of the topoDev interface
func (host *hostDev) devType() devCode {
	return host.code
}

// devIntrfcs returns the host's list of interfaces, as part of the topoDev interface
func (host *hostDev) devIntrfcs() []*intrfcStruct {
	return host.hostIntrfcs
}

// devHardware returns the host's hardware status machine, as part of the topoDev interface
func (host *hostDev) devHardware() *TimedState {
	return host.hardware
}

// devRng returns the host's rng pointer, as part of the topoDev interface
func (host *hostDev) devRng() *rngstream.RngStream {
	return host.rngstrm
}

// CompName helps hostDev satisfy the Component interface
func (host *hostDev) CompName() string {
	return host.hostName
}

// StateDescription reports the host and every component it owns, each
// child embedded under its stable key
func (host *hostDev) StateDescription() map[string]any {
	intrfcs := make(map[string]any)
	for _, intrfc := range host.hostIntrfcs {
		intrfcs[strconv.Itoa(intrfc.port)] = intrfc.StateDescription()
	}
	services := make(map[string]any)
	for _, name := range host.svcNames {
		services[name] = host.services[name].StateDescription()
	}
	apps := make(map[string]any)
	for _, name := range host.appNames {
		apps[name] = host.apps[name].StateDescription()
	}
	return map[string]any{
		"hostname": host.hostName,
		"type":     devCodeToStr(host.code),
		"hardware": map[string]any{
			"status":    string(host.hardware.Status()),
			"remaining": host.hardware.Remaining(),
		},
		"interfaces":   intrfcs,
		"services":     services,
		"applications": apps,
		"filesystem":   host.fileSys.StateDescription(),
	}
}

// Dispatch resolves the next path token against the host's children in
// the fixed order NICs, file system, applications, services, then the
// host's own verbs.  Software components are reachable only while the
// host hardware is ON.
func (host *hostDev) Dispatch(req *Request) *RequestResponse {
	token, rest := req.head()
	switch token {
	case "nic":
		intrfc, sub, rsp := host.resolveNIC(req, rest)
		if rsp != nil {
			return rsp
		}
		return intrfc.Dispatch(sub)
	case "filesystem":
		if rsp := host.requirePowered(req); rsp != nil {
			return rsp
		}
		return host.fileSys.Dispatch(req.consume(1))
	case "application":
		return host.dispatchSoftware(req, rest, host.apps)
	case "service":
		return host.dispatchSoftware(req, rest, host.services)
	case "shutdown", "startup", "reset":
		rsp := respondTimed(host.topo, host.hardware, token)
		host.topo.invalidateRoutes()
		return rsp
	case "scan":
		return successResponse(host.scanSummary())
	case "describe":
		return successResponse(host.StateDescription())
	case "verbs":
		return verbsResponse(host)
	}
	return unreachableResponse(req, token)
}

// Verbs lists the verbs the host accepts structurally
func (host *hostDev) Verbs() []string {
	return []string{"shutdown", "startup", "reset", "scan", "describe", "verbs"}
}

// scanSummary reports just the statuses a light scan observes, without
// the configuration detail describe carries
func (host *hostDev) scanSummary() map[string]any {
	services := make(map[string]any)
	for _, name := range host.svcNames {
		services[name] = string(host.services[name].state.Status())
	}
	apps := make(map[string]any)
	for _, name := range host.appNames {
		apps[name] = string(host.apps[name].state.Status())
	}
	return map[string]any{
		"hostname":     host.hostName,
		"hardware":     string(host.hardware.Status()),
		"services":     services,
		"applications": apps,
		"filesystem":   string(host.fileSys.state.Status()),
	}
}

// resolveNIC maps a port-index token to the owning interface
func (host *hostDev) resolveNIC(req *Request, rest []string) (*intrfcStruct, *Request, *RequestResponse) {
	if len(rest) == 0 {
		return nil, nil, unreachableResponse(req, "nic")
	}
	port, err := strconv.Atoi(rest[0])
	if err != nil {
		return nil, nil, unreachableResponse(req, rest[0])
	}
	for _, intrfc := range host.hostIntrfcs {
		if intrfc.port == port {
			return intrfc, req.consume(2), nil
		}
	}
	return nil, nil, unreachableResponse(req, rest[0])
}

// dispatchSoftware routes a request to a named service or application
func (host *hostDev) dispatchSoftware(req *Request, rest []string, tbl map[string]*serviceStruct) *RequestResponse {
	if len(rest) == 0 {
		return unreachableResponse(req, req.Path[0])
	}
	svc, present := tbl[rest[0]]
	if !present {
		return unreachableResponse(req, rest[0])
	}
	if rsp := host.requirePowered(req); rsp != nil {
		return rsp
	}
	return svc.Dispatch(req.consume(2))
}

// requirePowered is the validator guarding software components: a host
// that is not ON rejects the request without executing it
func (host *hostDev) requirePowered(req *Request) *RequestResponse {
	if host.hardware.Status() != StatusOn {
		return failureResponse(fmt.Errorf("%w: %s hardware is %s",
			ErrPermissionDenied, host.hostName, host.hardware.Status()))
	}
	return nil
}

// matchParam is used to determine whether a run-time parameter
// description should be applied to the host, as part of the paramObj
// interface
func (host *hostDev) matchParam(attrbName, attrbValue string) bool {
	switch attrbName {
	case "name":
		return host.hostName == attrbValue
	case "group":
		return slices.Contains(host.hostGroups, attrbValue)
	case "model":
		return host.hostModel == attrbValue
	case "devtype":
		return devCodeToStr(host.code) == attrbValue
	}
	return false
}

// setParam gives a value to a hostDev parameter, as part of the paramObj interface
func (host *hostDev) setParam(param string, value valueStruct) {
	switch param {
	case "model":
		host.hostModel = value.stringValue
	case "trace":
		host.trace = value.boolValue
	}
}

// paramObjName helps hostDev satisfy the paramObj interface
func (host *hostDev) paramObjName() string {
	return host.hostName
}

// A netDev holds the state shared by the three network device kinds:
// switch, router, firewall.  Switches and routers carry one ACL chain;
// firewalls carry six directional chains.  Routers and firewalls carry
// routing tables.
type netDev struct {
	netDevName    string
	netDevGroups  []string
	netDevModel   string
	netDevID      int
	code          devCode
	hardware      *TimedState
	netDevIntrfcs []*intrfcStruct
	chain         *AclChain         // switch and router
	chains        *firewallChainSet // firewall only
	routes        *RoutingTable     // router and firewall
	rngstrm       *rngstream.RngStream
	trace         bool
	topo          *Topology
}

// createNetDev is a constructor, using information from the desc
// description of the node
func createNetDev(topo *Topology, nd *NodeDesc) (*netDev, error) {
	dev := new(netDev)
	dev.netDevName = nd.Name
	dev.netDevModel = nd.Model
	dev.netDevGroups = nd.Groups
	dev.netDevID = topo.nxtID()
	dev.code = devCodeFromStr(nd.Type)

	initial := StatusOn
	if nd.HWStatus != "" {
		initial = Status(nd.HWStatus)
	}
	dev.hardware = createTimedState(hardwareDomain, initial, topo.durationTbl[hardwareDomain])
	dev.netDevIntrfcs = make([]*intrfcStruct, 0)
	dev.rngstrm = rngstream.New(nd.Name)
	dev.topo = topo

	if dev.code == firewallCode {
		dev.chains = createFirewallChainSet()
	} else {
		dflt := Deny
		if nd.AclDefault == "PERMIT" {
			dflt = Permit
		}
		dev.chain = createAclChain(nd.Name, dflt)
	}
	if dev.code == routerCode || dev.code == firewallCode {
		dev.routes = createRoutingTable()
	}

	for idx := range nd.Acl {
		rd := &nd.Acl[idx]
		rule, err := buildAclRule(rd)
		if err != nil {
			return nil, fmt.Errorf("node %s: %w", nd.Name, err)
		}
		chain := dev.chain
		if dev.code == firewallCode {
			chain = dev.chains.chain(rd.Chain)
			if chain == nil {
				return nil, fmt.Errorf("firewall %s names unknown chain %q", nd.Name, rd.Chain)
			}
		}
		if err := chain.AddRule(rule); err != nil {
			return nil, fmt.Errorf("node %s: %w", nd.Name, err)
		}
	}

	for idx := range nd.Routes {
		rd := &nd.Routes[idx]
		re, err := buildRouteEntry(rd)
		if err != nil {
			return nil, fmt.Errorf("node %s: %w", nd.Name, err)
		}
		if dev.routes == nil {
			return nil, fmt.Errorf("switch %s cannot carry routes", nd.Name)
		}
		if err := dev.routes.AddRoute(re); err != nil {
			return nil, fmt.Errorf("node %s: %w", nd.Name, err)
		}
	}
	if nd.DefaultRoute != "" {
		if dev.routes == nil {
			return nil, fmt.Errorf("switch %s cannot carry a default route", nd.Name)
		}
		hop, err := ipv4ToUint(nd.DefaultRoute)
		if err != nil {
			return nil, fmt.Errorf("node %s: %w", nd.Name, err)
		}
		dev.routes.SetDefault(hop)
	}
	return dev, nil
}

// addIntrfc appends the input intrfcStruct to the list of interfaces
// embedded in the device
func (dev *netDev) addIntrfc(intrfc *intrfcStruct) {
	dev.netDevIntrfcs = append(dev.netDevIntrfcs, intrfc)
}

// devName returns the device name, as part of the topoDev interface
func (dev *netDev) devName() string {
	return dev.netDevName
}

// DevID returns the device integer id, as part of the topoDev interface
func (dev *netDev) DevID() int {
	return dev.netDevID
}

// devType returns the device type, as part of the topoDev interface
func (dev *netDev) devType() devCode {
	return dev.code
}

// devIntrfcs returns the device's list of interfaces, as part of the topoDev interface
func (dev *netDev) devIntrfcs() []*intrfcStruct {
	return dev.netDevIntrfcs
}

// devHardware returns the device's hardware status machine, as part of the topoDev interface
func (dev *netDev) devHardware() *TimedState {
	return dev.hardware
}

// devRng returns the device's rng pointer, as part of the topoDev interface
func (dev *netDev) devRng() *rngstream.RngStream {
	return dev.rngstrm
}

// CompName helps netDev satisfy the Component interface
func (dev *netDev) CompName() string {
	return dev.netDevName
}

// StateDescription reports the device and its chains/routes in snapshot form
func (dev *netDev) StateDescription() map[string]any {
	intrfcs := make(map[string]any)
	for _, intrfc := range dev.netDevIntrfcs {
		intrfcs[strconv.Itoa(intrfc.port)] = intrfc.StateDescription()
	}
	state := map[string]any{
		"hostname": dev.netDevName,
		"type":     devCodeToStr(dev.code),
		"hardware": map[string]any{
			"status":    string(dev.hardware.Status()),
			"remaining": dev.hardware.Remaining(),
		},
		"interfaces": intrfcs,
	}
	if dev.chain != nil {
		state["acl"] = dev.chain.chainState()
	}
	if dev.chains != nil {
		state["acl"] = dev.chains.chainSetState()
	}
	if dev.routes != nil {
		state["routing"] = dev.routes.tableState()
	}
	return state
}

// Dispatch resolves the next path token against the device's children:
// NICs first, then the ACL and routing facilities, then device verbs
func (dev *netDev) Dispatch(req *Request) *RequestResponse {
	token, rest := req.head()
	switch token {
	case "nic":
		intrfc, sub, rsp := dev.resolveNIC(req, rest)
		if rsp != nil {
			return rsp
		}
		return intrfc.Dispatch(sub)
	case "acl":
		if rsp := dev.requirePowered(); rsp != nil {
			return rsp
		}
		return dev.dispatchAcl(req, rest)
	case "route":
		if rsp := dev.requirePowered(); rsp != nil {
			return rsp
		}
		return dev.dispatchRoute(req, rest)
	case "shutdown", "startup", "reset":
		rsp := respondTimed(dev.topo, dev.hardware, token)
		dev.topo.invalidateRoutes()
		return rsp
	case "describe":
		return successResponse(dev.StateDescription())
	case "verbs":
		return verbsResponse(dev)
	}
	return unreachableResponse(req, token)
}

// Verbs lists the verbs the device accepts structurally.  Chain and
// route manipulation rides under the acl and route tokens.
func (dev *netDev) Verbs() []string {
	return []string{"shutdown", "startup", "reset", "describe", "verbs"}
}

// resolveNIC maps a port-index token to the owning interface
func (dev *netDev) resolveNIC(req *Request, rest []string) (*intrfcStruct, *Request, *RequestResponse) {
	if len(rest) == 0 {
		return nil, nil, unreachableResponse(req, "nic")
	}
	port, err := strconv.Atoi(rest[0])
	if err != nil {
		return nil, nil, unreachableResponse(req, rest[0])
	}
	for _, intrfc := range dev.netDevIntrfcs {
		if intrfc.port == port {
			return intrfc, req.consume(2), nil
		}
	}
	return nil, nil, unreachableResponse(req, rest[0])
}

// requirePowered is the validator guarding chain and route mutation
func (dev *netDev) requirePowered() *RequestResponse {
	if dev.hardware.Status() != StatusOn {
		return failureResponse(fmt.Errorf("%w: %s hardware is %s",
			ErrPermissionDenied, dev.netDevName, dev.hardware.Status()))
	}
	return nil
}

// dispatchAcl executes chain verbs.  On a firewall the first remaining
// token names one of the six directional chains.
func (dev *netDev) dispatchAcl(req *Request, rest []string) *RequestResponse {
	chain := dev.chain
	sub := req.consume(1)
	if dev.code == firewallCode {
		if len(rest) == 0 {
			return unreachableResponse(req, "acl")
		}
		chain = dev.chains.chain(rest[0])
		if chain == nil {
			return unreachableResponse(req, rest[0])
		}
		sub = req.consume(2)
	}

	verb, remainder := sub.head()
	if len(remainder) > 0 {
		return unreachableResponse(req, verb)
	}
	switch verb {
	case "add_rule":
		rd := aclRuleDescFromContext(sub.Context)
		rule, err := buildAclRule(rd)
		if err == nil {
			err = chain.AddRule(rule)
		}
		if err != nil {
			return failureResponse(err)
		}
		return successResponse(nil)
	case "remove_rule":
		position, _ := ctxInt(sub.Context, "position")
		if !chain.RmRule(position) {
			return failureResponse(fmt.Errorf("chain %s has no rule at position %d", chain.name, position))
		}
		return successResponse(nil)
	case "describe":
		return successResponse(chain.chainState())
	}
	return unreachableResponse(req, verb)
}

// dispatchRoute executes routing table verbs
func (dev *netDev) dispatchRoute(req *Request, rest []string) *RequestResponse {
	if dev.routes == nil {
		return unreachableResponse(req, "route")
	}
	sub := req.consume(1)
	verb, remainder := sub.head()
	if len(remainder) > 0 {
		return unreachableResponse(req, verb)
	}
	switch verb {
	case "add":
		rd := &RouteDesc{}
		rd.Dest, _ = ctxString(sub.Context, "dest")
		rd.Mask, _ = ctxString(sub.Context, "mask")
		rd.NextHop, _ = ctxString(sub.Context, "nexthop")
		re, err := buildRouteEntry(rd)
		if err == nil {
			err = dev.routes.AddRoute(re)
		}
		if err != nil {
			return failureResponse(err)
		}
		return successResponse(nil)
	case "set_default":
		hopStr, _ := ctxString(sub.Context, "nexthop")
		hop, err := ipv4ToUint(hopStr)
		if err != nil {
			return failureResponse(err)
		}
		dev.routes.SetDefault(hop)
		return successResponse(nil)
	case "describe":
		return successResponse(dev.routes.tableState())
	}
	return unreachableResponse(req, verb)
}

// matchParam is used to determine whether a run-time parameter
// description should be applied to the device, as part of the paramObj
// interface
func (dev *netDev) matchParam(attrbName, attrbValue string) bool {
	switch attrbName {
	case "name":
		return dev.netDevName == attrbValue
	case "group":
		return slices.Contains(dev.netDevGroups, attrbValue)
	case "model":
		return dev.netDevModel == attrbValue
	case "devtype":
		return devCodeToStr(dev.code) == attrbValue
	}
	return false
}

// setParam gives a value to a netDev parameter, as part of the paramObj interface
func (dev *netDev) setParam(param string, value valueStruct) {
	switch param {
	case "model":
		dev.netDevModel = value.stringValue
	case "trace":
		dev.trace = value.boolValue
	}
}

// paramObjName helps netDev satisfy the paramObj interface
func (dev *netDev) paramObjName() string {
	return dev.netDevName
}

// aclRuleDescFromContext recovers an AclRuleDesc from a request context
func aclRuleDescFromContext(ctx map[string]any) *AclRuleDesc {
	rd := new(AclRuleDesc)
	rd.Position, _ = ctxInt(ctx, "position")
	rd.Action, _ = ctxString(ctx, "action")
	rd.Protocol, _ = ctxString(ctx, "protocol")
	rd.SrcIP, _ = ctxString(ctx, "srcip")
	rd.SrcWildcard, _ = ctxString(ctx, "srcwildcard")
	rd.DstIP, _ = ctxString(ctx, "dstip")
	rd.DstWildcard, _ = ctxString(ctx, "dstwildcard")
	rd.SrcPort, _ = ctxInt(ctx, "srcport")
	rd.DstPort, _ = ctxInt(ctx, "dstport")
	return rd
}
