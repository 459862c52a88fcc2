package cybernet

// shared fixtures for the package tests: a small host-switch-host
// model, a routed variant, and one with a zoned firewall between the
// hosts

import (
	"testing"

	"github.com/stretchr/testify/require"
)

// switchedTopoCfg describes alpha -- sw -- beta with a web service on
// beta and 100 Mbit links
func switchedTopoCfg() *TopoCfg {
	return &TopoCfg{
		Name: "switched",
		Nodes: []NodeDesc{
			{
				Name: "alpha", Type: "computer",
				Interfaces: []IntrfcDesc{
					{Device: "alpha", Port: 0, IPAddr: "192.168.1.2", SubnetMask: "255.255.255.0"},
				},
			},
			{
				Name: "beta", Type: "server",
				Services: []ServiceDesc{
					{Name: "web", Protocol: "tcp", Port: 80, Status: "GOOD"},
				},
				Interfaces: []IntrfcDesc{
					{Device: "beta", Port: 0, IPAddr: "192.168.1.3", SubnetMask: "255.255.255.0"},
				},
			},
			{
				Name: "sw", Type: "switch", AclDefault: "PERMIT",
				Interfaces: []IntrfcDesc{
					{Device: "sw", Port: 0, IPAddr: "192.168.1.10", SubnetMask: "255.255.255.0"},
					{Device: "sw", Port: 1, IPAddr: "192.168.1.11", SubnetMask: "255.255.255.0"},
				},
			},
		},
		Links: []LinkDesc{
			{Name: "alpha-sw", EndptA: LinkEndptDesc{Node: "alpha", Port: 0},
				EndptB: LinkEndptDesc{Node: "sw", Port: 0}, Bandwidth: 100.0},
			{Name: "sw-beta", EndptA: LinkEndptDesc{Node: "sw", Port: 1},
				EndptB: LinkEndptDesc{Node: "beta", Port: 0}, Bandwidth: 100.0},
		},
	}
}

// routedTopoCfg describes alpha -- rtr -- beta with the hosts on
// different subnets and explicit routes on the router
func routedTopoCfg() *TopoCfg {
	return &TopoCfg{
		Name: "routed",
		Nodes: []NodeDesc{
			{
				Name: "alpha", Type: "computer",
				Interfaces: []IntrfcDesc{
					{Device: "alpha", Port: 0, IPAddr: "10.0.1.2", SubnetMask: "255.255.255.0"},
				},
			},
			{
				Name: "beta", Type: "server",
				Services: []ServiceDesc{
					{Name: "web", Protocol: "tcp", Port: 80, Status: "GOOD"},
				},
				Interfaces: []IntrfcDesc{
					{Device: "beta", Port: 0, IPAddr: "10.0.2.2", SubnetMask: "255.255.255.0"},
				},
			},
			{
				Name: "rtr", Type: "router", AclDefault: "PERMIT",
				Routes: []RouteDesc{
					{Dest: "10.0.1.0", Mask: "255.255.255.0", NextHop: "10.0.1.1"},
					{Dest: "10.0.2.0", Mask: "255.255.255.0", NextHop: "10.0.2.1"},
				},
				Interfaces: []IntrfcDesc{
					{Device: "rtr", Port: 0, IPAddr: "10.0.1.1", SubnetMask: "255.255.255.0"},
					{Device: "rtr", Port: 1, IPAddr: "10.0.2.1", SubnetMask: "255.255.255.0"},
				},
			},
		},
		Links: []LinkDesc{
			{Name: "alpha-rtr", EndptA: LinkEndptDesc{Node: "alpha", Port: 0},
				EndptB: LinkEndptDesc{Node: "rtr", Port: 0}, Bandwidth: 100.0},
			{Name: "rtr-beta", EndptA: LinkEndptDesc{Node: "rtr", Port: 1},
				EndptB: LinkEndptDesc{Node: "beta", Port: 0}, Bandwidth: 100.0},
		},
	}
}

// firewalledTopoCfg places a zoned firewall between an internal host
// and an external one
func firewalledTopoCfg() *TopoCfg {
	return &TopoCfg{
		Name: "firewalled",
		Nodes: []NodeDesc{
			{
				Name: "inside", Type: "computer",
				Interfaces: []IntrfcDesc{
					{Device: "inside", Port: 0, IPAddr: "10.0.1.2", SubnetMask: "255.255.255.0"},
				},
			},
			{
				Name: "outside", Type: "server",
				Services: []ServiceDesc{
					{Name: "web", Protocol: "tcp", Port: 80, Status: "GOOD"},
				},
				Interfaces: []IntrfcDesc{
					{Device: "outside", Port: 0, IPAddr: "203.0.113.2", SubnetMask: "255.255.255.0"},
				},
			},
			{
				Name: "fw", Type: "firewall",
				Routes: []RouteDesc{
					{Dest: "10.0.1.0", Mask: "255.255.255.0", NextHop: "10.0.1.1"},
					{Dest: "203.0.113.0", Mask: "255.255.255.0", NextHop: "203.0.113.1"},
				},
				Interfaces: []IntrfcDesc{
					{Device: "fw", Port: 0, IPAddr: "10.0.1.1", SubnetMask: "255.255.255.0", Zone: "internal"},
					{Device: "fw", Port: 1, IPAddr: "203.0.113.1", SubnetMask: "255.255.255.0", Zone: "external"},
				},
			},
		},
		Links: []LinkDesc{
			{Name: "inside-fw", EndptA: LinkEndptDesc{Node: "inside", Port: 0},
				EndptB: LinkEndptDesc{Node: "fw", Port: 0}, Bandwidth: 100.0},
			{Name: "fw-outside", EndptA: LinkEndptDesc{Node: "fw", Port: 1},
				EndptB: LinkEndptDesc{Node: "outside", Port: 0}, Bandwidth: 100.0},
		},
	}
}

// buildTestSim assembles a simulation over the given description
func buildTestSim(t *testing.T, tc *TopoCfg, seed int64) *Simulation {
	t.Helper()
	topo, err := BuildTopology(tc, nil, CreateTraceManager(tc.Name, true))
	require.NoError(t, err)
	return CreateSimulation(topo, seed, nil)
}
