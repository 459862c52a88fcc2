package cybernet

import (
	"errors"
	"fmt"
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func mustAddr(t *testing.T, addr string) uint32 {
	t.Helper()
	value, err := ipv4ToUint(addr)
	require.NoError(t, err)
	return value
}

func TestChainFirstMatchAndDefault(t *testing.T) {
	chain := createAclChain("test", Deny)
	rule, err := buildAclRule(&AclRuleDesc{
		Position: 10, Action: "PERMIT",
		SrcIP: "192.168.1.0", SrcWildcard: "0.0.0.255",
		DstIP: "192.168.1.1",
	})
	require.NoError(t, err)
	require.NoError(t, chain.AddRule(rule))

	inSubnet := &FlowSpec{
		SrcAddr: mustAddr(t, "192.168.1.77"),
		DstAddr: mustAddr(t, "192.168.1.1"),
	}
	action, matched := chain.Evaluate(inSubnet)
	assert.Equal(t, Permit, action)
	require.NotNil(t, matched)
	assert.Equal(t, 10, matched.Position())
	assert.Equal(t, 1, matched.Hits())

	// a source outside the wildcard range falls to the default, and the
	// rule's counter does not move
	outside := &FlowSpec{
		SrcAddr: mustAddr(t, "192.168.2.77"),
		DstAddr: mustAddr(t, "192.168.1.1"),
	}
	action, matched = chain.Evaluate(outside)
	assert.Equal(t, Deny, action)
	assert.Nil(t, matched)
	assert.Equal(t, 1, chain.RuleAt(10).Hits())
}

func TestChainPositionOrder(t *testing.T) {
	chain := createAclChain("ordered", Permit)
	deny, err := buildAclRule(&AclRuleDesc{Position: 20, Action: "DENY", Protocol: "tcp"})
	require.NoError(t, err)
	permit, err := buildAclRule(&AclRuleDesc{Position: 10, Action: "PERMIT", Protocol: "tcp", DstPort: 80})
	require.NoError(t, err)

	// added out of order, evaluated in position order
	require.NoError(t, chain.AddRule(deny))
	require.NoError(t, chain.AddRule(permit))

	web := &FlowSpec{Protocol: "tcp", DstPort: 80}
	action, matched := chain.Evaluate(web)
	assert.Equal(t, Permit, action)
	assert.Equal(t, 10, matched.Position())

	ssh := &FlowSpec{Protocol: "tcp", DstPort: 22}
	action, matched = chain.Evaluate(ssh)
	assert.Equal(t, Deny, action)
	assert.Equal(t, 20, matched.Position())
}

func TestChainDuplicatePositionRejected(t *testing.T) {
	chain := createAclChain("dup", Deny)
	first, _ := buildAclRule(&AclRuleDesc{Position: 5, Action: "PERMIT"})
	second, _ := buildAclRule(&AclRuleDesc{Position: 5, Action: "DENY"})
	require.NoError(t, chain.AddRule(first))
	require.Error(t, chain.AddRule(second))
}

func TestChainRuleLimit(t *testing.T) {
	chain := createAclChain("full", Deny)
	chain.limit = 4
	for idx := 0; idx < 4; idx++ {
		rule, err := buildAclRule(&AclRuleDesc{Position: 10 + idx, Action: "PERMIT"})
		require.NoError(t, err)
		require.NoError(t, chain.AddRule(rule))
	}
	rule, err := buildAclRule(&AclRuleDesc{Position: 99, Action: "PERMIT"})
	require.NoError(t, err)
	err = chain.AddRule(rule)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrRuleLimit))
}

func TestChainRemoveRule(t *testing.T) {
	chain := createAclChain("rm", Deny)
	rule, _ := buildAclRule(&AclRuleDesc{Position: 10, Action: "PERMIT"})
	require.NoError(t, chain.AddRule(rule))
	assert.True(t, chain.RmRule(10))
	assert.False(t, chain.RmRule(10))

	action, matched := chain.Evaluate(&FlowSpec{})
	assert.Equal(t, Deny, action)
	assert.Nil(t, matched)
}

func TestFirewallChainDefaults(t *testing.T) {
	fcs := createFirewallChainSet()
	flow := &FlowSpec{Protocol: "tcp", DstPort: 80}

	// every transit touching a non-external chain denies by default
	assert.Equal(t, Deny, fcs.evaluateTransit(zoneInternal, zoneExternal, flow))
	assert.Equal(t, Deny, fcs.evaluateTransit(zoneExternal, zoneInternal, flow))
	assert.Equal(t, Deny, fcs.evaluateTransit(zoneInternal, zoneDMZ, flow))
	assert.Equal(t, Permit, fcs.evaluateTransit(zoneExternal, zoneExternal, flow))
}

func TestFirewallTransitNeedsBothChains(t *testing.T) {
	fcs := createFirewallChainSet()
	flow := &FlowSpec{Protocol: "tcp", DstPort: 80}

	rule, err := buildAclRule(&AclRuleDesc{Position: 10, Action: "PERMIT", Protocol: "tcp"})
	require.NoError(t, err)
	require.NoError(t, fcs.chain("internal_outbound").AddRule(rule))

	// outbound now permits but the external inbound default already
	// permits, so internal -> external passes
	assert.Equal(t, Permit, fcs.evaluateTransit(zoneInternal, zoneExternal, flow))

	// dmz inbound still denies, so internal -> dmz stays blocked until
	// its chain permits too
	assert.Equal(t, Deny, fcs.evaluateTransit(zoneInternal, zoneDMZ, flow))
	rule2, err := buildAclRule(&AclRuleDesc{Position: 10, Action: "PERMIT", Protocol: "tcp"})
	require.NoError(t, err)
	require.NoError(t, fcs.chain("dmz_inbound").AddRule(rule2))
	assert.Equal(t, Permit, fcs.evaluateTransit(zoneInternal, zoneDMZ, flow))
}

func TestFirstMatchProperty(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 100
	properties := gopter.NewProperties(parameters)

	// whatever rules sit behind it, the lowest-position universal rule
	// decides every evaluation
	properties.Property("lowest matching position decides", prop.ForAll(
		func(positions []int, permitFirst bool) bool {
			chain := createAclChain("prop", Deny)
			lowest := -1
			for _, pos := range positions {
				action := "DENY"
				if permitFirst {
					action = "PERMIT"
				}
				rule, err := buildAclRule(&AclRuleDesc{Position: pos, Action: action})
				if err != nil {
					return false
				}
				if chain.AddRule(rule) != nil {
					continue // duplicate positions are legal to reject
				}
				if lowest < 0 || pos < lowest {
					lowest = pos
				}
			}
			action, matched := chain.Evaluate(&FlowSpec{})
			if lowest < 0 {
				return action == Deny && matched == nil
			}
			want := Deny
			if permitFirst {
				want = Permit
			}
			return action == want && matched.Position() == lowest
		},
		gen.SliceOf(gen.IntRange(0, 1000)),
		gen.Bool(),
	))
	properties.TestingRun(t)
}

func TestAddressRendering(t *testing.T) {
	for _, addr := range []string{"0.0.0.0", "10.0.1.2", "255.255.255.255"} {
		value, err := ipv4ToUint(addr)
		require.NoError(t, err)
		assert.Equal(t, addr, uintToIPv4(value))
	}
	_, err := ipv4ToUint("not-an-address")
	require.Error(t, err)
	_, err = ipv4ToUint(fmt.Sprintf("2001:db8::%d", 1))
	require.Error(t, err)
}
