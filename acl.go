package cybernet

// acl.go implements the access control list engine used by switches,
// routers, and firewalls.  A chain is an ordered, positional table of
// permit/deny rules evaluated first-match-wins, with an implicit default
// action applied when no rule matches.  Firewalls hold six directional
// chains; switches and routers hold one.

import (
	"encoding/binary"
	"fmt"
	"net"
	"sort"

	"golang.org/x/exp/slices"
)

// AclAction is the base type for the enumerated rule decisions
type AclAction int

const (
	Permit AclAction = iota
	Deny
)

// aclActionFromStr returns the AclAction corresponding to a string name for it
func aclActionFromStr(action string) (AclAction, error) {
	switch action {
	case "PERMIT", "permit":
		return Permit, nil
	case "DENY", "deny":
		return Deny, nil
	}
	return Deny, fmt.Errorf("unrecognized ACL action %q", action)
}

// aclActionToStr returns a string corresponding to an input AclAction
func aclActionToStr(action AclAction) string {
	if action == Permit {
		return "PERMIT"
	}
	return "DENY"
}

// ipv4ToUint converts a dotted-quad address string into its 32-bit value
func ipv4ToUint(addr string) (uint32, error) {
	ip := net.ParseIP(addr)
	if ip == nil {
		return 0, fmt.Errorf("malformed IPv4 address %q", addr)
	}
	v4 := ip.To4()
	if v4 == nil {
		return 0, fmt.Errorf("address %q is not IPv4", addr)
	}
	return binary.BigEndian.Uint32(v4), nil
}

// uintToIPv4 renders a 32-bit address value in dotted-quad form
func uintToIPv4(addr uint32) string {
	var quad [4]byte
	binary.BigEndian.PutUint32(quad[:], addr)
	return net.IP(quad[:]).String()
}

// A FlowSpec names the candidate flow a chain evaluates: protocol and
// the source/destination address and port endpoints
type FlowSpec struct {
	Protocol string
	SrcAddr  uint32
	DstAddr  uint32
	SrcPort  int
	DstPort  int
}

// An aclMatch holds one address predicate of a rule: the comparison
// address and a wildcard mask whose set bits are don't-care positions.
// An unset predicate (set == false) matches any address.
type aclMatch struct {
	set  bool
	addr uint32
	wild uint32
}

// matches applies the wildcard comparison to a candidate address
func (am *aclMatch) matches(addr uint32) bool {
	if !am.set {
		return true
	}
	return (am.addr^addr)&^am.wild == 0
}

// An AclRule is one entry in a chain.  Position orders evaluation within
// the chain and is unique there; every populated field must match the
// candidate flow for the rule to match.
type AclRule struct {
	position int
	action   AclAction
	protocol string // empty or "ANY" matches every protocol
	src      aclMatch
	dst      aclMatch
	srcPort  int // zero matches any port
	dstPort  int
	hits     int
}

// Position returns the rule's evaluation position within its chain
func (rule *AclRule) Position() int {
	return rule.position
}

// Hits returns the number of evaluations this rule has decided
func (rule *AclRule) Hits() int {
	return rule.hits
}

// matches reports whether every populated field of the rule matches the
// corresponding field of the candidate flow
func (rule *AclRule) matches(flow *FlowSpec) bool {
	if rule.protocol != "" && rule.protocol != "ANY" && rule.protocol != flow.Protocol {
		return false
	}
	if !rule.src.matches(flow.SrcAddr) || !rule.dst.matches(flow.DstAddr) {
		return false
	}
	if rule.srcPort != 0 && rule.srcPort != flow.SrcPort {
		return false
	}
	if rule.dstPort != 0 && rule.dstPort != flow.DstPort {
		return false
	}
	return true
}

// ruleState reports the rule in snapshot form
func (rule *AclRule) ruleState() map[string]any {
	state := map[string]any{
		"position": rule.position,
		"action":   aclActionToStr(rule.action),
		"hits":     rule.hits,
	}
	if rule.protocol != "" {
		state["protocol"] = rule.protocol
	}
	if rule.src.set {
		state["src"] = uintToIPv4(rule.src.addr)
		state["srcwildcard"] = uintToIPv4(rule.src.wild)
	}
	if rule.dst.set {
		state["dst"] = uintToIPv4(rule.dst.addr)
		state["dstwildcard"] = uintToIPv4(rule.dst.wild)
	}
	if rule.srcPort != 0 {
		state["srcport"] = rule.srcPort
	}
	if rule.dstPort != 0 {
		state["dstport"] = rule.dstPort
	}
	return state
}

// aclChainLimit bounds the number of rules a single chain accepts
const aclChainLimit = 256

// An AclChain holds the position-ordered rule table and the implicit
// default action evaluated after every explicit rule misses
type AclChain struct {
	name       string
	dfltAction AclAction
	rules      []*AclRule // maintained in ascending position order
	limit      int
}

// createAclChain is a constructor
func createAclChain(name string, dflt AclAction) *AclChain {
	chain := new(AclChain)
	chain.name = name
	chain.dfltAction = dflt
	chain.rules = make([]*AclRule, 0)
	chain.limit = aclChainLimit
	return chain
}

// buildAclRule creates an AclRule from its desc representation
func buildAclRule(rd *AclRuleDesc) (*AclRule, error) {
	rule := new(AclRule)
	rule.position = rd.Position
	action, err := aclActionFromStr(rd.Action)
	if err != nil {
		return nil, err
	}
	rule.action = action

	if rd.Protocol != "" && rd.Protocol != "ANY" {
		rule.protocol = rd.Protocol
	}
	if rd.SrcIP != "" && rd.SrcIP != "ANY" {
		rule.src.set = true
		rule.src.addr, err = ipv4ToUint(rd.SrcIP)
		if err != nil {
			return nil, err
		}
		if rd.SrcWildcard != "" {
			rule.src.wild, err = ipv4ToUint(rd.SrcWildcard)
			if err != nil {
				return nil, err
			}
		}
	}
	if rd.DstIP != "" && rd.DstIP != "ANY" {
		rule.dst.set = true
		rule.dst.addr, err = ipv4ToUint(rd.DstIP)
		if err != nil {
			return nil, err
		}
		if rd.DstWildcard != "" {
			rule.dst.wild, err = ipv4ToUint(rd.DstWildcard)
			if err != nil {
				return nil, err
			}
		}
	}
	rule.srcPort = rd.SrcPort
	rule.dstPort = rd.DstPort
	return rule, nil
}

// AddRule inserts a rule into the chain, keeping ascending position
// order.  A duplicated position or a full chain is rejected.
func (chain *AclChain) AddRule(rule *AclRule) error {
	if len(chain.rules) >= chain.limit {
		return fmt.Errorf("%w: chain %s holds %d rules", ErrRuleLimit, chain.name, chain.limit)
	}
	for _, existing := range chain.rules {
		if existing.position == rule.position {
			return fmt.Errorf("chain %s already holds a rule at position %d", chain.name, rule.position)
		}
	}
	chain.rules = append(chain.rules, rule)
	sort.Slice(chain.rules, func(i, j int) bool {
		return chain.rules[i].position < chain.rules[j].position
	})
	return nil
}

// RmRule removes the rule at the named position, reporting whether a
// rule was found there
func (chain *AclChain) RmRule(position int) bool {
	for idx, rule := range chain.rules {
		if rule.position == position {
			chain.rules = slices.Delete(chain.rules, idx, idx+1)
			return true
		}
	}
	return false
}

// RuleAt returns the rule at the named position, nil if none exists
func (chain *AclChain) RuleAt(position int) *AclRule {
	for _, rule := range chain.rules {
		if rule.position == position {
			return rule
		}
	}
	return nil
}

// Evaluate walks the chain in ascending position order.  The first rule
// whose populated fields all match decides the action and takes the hit;
// later rules are not consulted.  When no rule matches the chain default
// applies, with no counter change.
func (chain *AclChain) Evaluate(flow *FlowSpec) (AclAction, *AclRule) {
	for _, rule := range chain.rules {
		if rule.matches(flow) {
			rule.hits += 1
			return rule.action, rule
		}
	}
	return chain.dfltAction, nil
}

// chainState reports the chain in snapshot form
func (chain *AclChain) chainState() map[string]any {
	rules := make([]map[string]any, 0, len(chain.rules))
	for _, rule := range chain.rules {
		rules = append(rules, rule.ruleState())
	}
	return map[string]any{
		"name":    chain.name,
		"default": aclActionToStr(chain.dfltAction),
		"rules":   rules,
	}
}

// firewall zone and chain naming.  A transit flow through a firewall is
// judged by exactly two chains: the outbound chain of the zone it
// arrives from, then the inbound chain of the zone it departs to.
const (
	zoneInternal = "internal"
	zoneDMZ      = "dmz"
	zoneExternal = "external"
)

var firewallZones = []string{zoneInternal, zoneDMZ, zoneExternal}

// firewallChainSet holds a firewall's six directional chains keyed by
// "<zone>_inbound" / "<zone>_outbound"
type firewallChainSet struct {
	chains map[string]*AclChain
}

// createFirewallChainSet builds the six chains with their defaults:
// the external zone's chains default PERMIT, the other four DENY
func createFirewallChainSet() *firewallChainSet {
	fcs := new(firewallChainSet)
	fcs.chains = make(map[string]*AclChain)
	for _, zone := range firewallZones {
		dflt := Deny
		if zone == zoneExternal {
			dflt = Permit
		}
		for _, dir := range []string{"inbound", "outbound"} {
			name := zone + "_" + dir
			fcs.chains[name] = createAclChain(name, dflt)
		}
	}
	return fcs
}

// chain returns the named chain, nil when the name is not one of the six
func (fcs *firewallChainSet) chain(name string) *AclChain {
	return fcs.chains[name]
}

// evaluateTransit judges a flow entering from srcZone and leaving toward
// dstZone.  Both governing chains must PERMIT for the flow to pass.
func (fcs *firewallChainSet) evaluateTransit(srcZone, dstZone string, flow *FlowSpec) AclAction {
	outbound := fcs.chains[srcZone+"_outbound"]
	inbound := fcs.chains[dstZone+"_inbound"]
	if outbound == nil || inbound == nil {
		return Deny
	}
	if action, _ := outbound.Evaluate(flow); action == Deny {
		return Deny
	}
	if action, _ := inbound.Evaluate(flow); action == Deny {
		return Deny
	}
	return Permit
}

// chainSetState reports all six chains in snapshot form, keyed by name
func (fcs *firewallChainSet) chainSetState() map[string]any {
	state := make(map[string]any)
	for name, chain := range fcs.chains {
		state[name] = chain.chainState()
	}
	return state
}
