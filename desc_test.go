package cybernet

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"
)

func TestValidateRejectsDuplicateHostnames(t *testing.T) {
	cfg := switchedTopoCfg()
	cfg.Nodes = append(cfg.Nodes, cfg.Nodes[0])
	_, err := BuildTopology(cfg, nil, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "alpha")
}

func TestValidateRejectsDanglingEndpoint(t *testing.T) {
	cfg := switchedTopoCfg()
	cfg.Links[0].EndptB.Node = "ghost"
	_, err := BuildTopology(cfg, nil, nil)
	require.Error(t, err)
}

func TestValidateRejectsHostWithAcl(t *testing.T) {
	cfg := switchedTopoCfg()
	cfg.Nodes[0].Acl = []AclRuleDesc{{Position: 10, Action: "PERMIT"}}
	_, err := BuildTopology(cfg, nil, nil)
	require.Error(t, err)
}

func TestValidateRejectsSwitchWithServices(t *testing.T) {
	cfg := switchedTopoCfg()
	cfg.Nodes[2].Services = []ServiceDesc{{Name: "web", Protocol: "tcp", Port: 80}}
	_, err := BuildTopology(cfg, nil, nil)
	require.Error(t, err)
}

func TestValidateRejectsFirewallWithoutZones(t *testing.T) {
	cfg := firewalledTopoCfg()
	cfg.Nodes[2].Interfaces[0].Zone = ""
	_, err := BuildTopology(cfg, nil, nil)
	require.Error(t, err)
}

func TestValidateRejectsMalformedAddress(t *testing.T) {
	cfg := switchedTopoCfg()
	cfg.Nodes[0].Interfaces[0].IPAddr = "not.an.address"
	_, err := BuildTopology(cfg, nil, nil)
	require.Error(t, err)
}

func TestValidateRejectsSelfLink(t *testing.T) {
	cfg := switchedTopoCfg()
	cfg.Links[0].EndptB = cfg.Links[0].EndptA
	_, err := BuildTopology(cfg, nil, nil)
	require.Error(t, err)
}

func TestTopoCfgFileRoundTrip(t *testing.T) {
	cfg := switchedTopoCfg()
	filename := filepath.Join(t.TempDir(), "topo.yaml")
	require.NoError(t, cfg.WriteToFile(filename))

	read, err := ReadTopoCfg(filename, true, nil)
	require.NoError(t, err)
	assert.Equal(t, cfg.Name, read.Name)
	require.Len(t, read.Nodes, 3)
	assert.Equal(t, "beta", read.Nodes[1].Name)
	require.Len(t, read.Links, 2)
	assert.Equal(t, 100.0, read.Links[0].Bandwidth)

	_, err = BuildTopology(read, nil, nil)
	require.NoError(t, err)
}

func TestTopoCfgFromBytes(t *testing.T) {
	dict, err := yaml.Marshal(switchedTopoCfg())
	require.NoError(t, err)
	read, err := ReadTopoCfg("", true, dict)
	require.NoError(t, err)
	assert.Equal(t, "switched", read.Name)
}

func TestTimingListOverridesDurations(t *testing.T) {
	tl := CreateTimingList("slow-boot")
	tl.AddTiming("hardware", "BOOTING", 9)
	tl.AddTiming("service", "PATCHING", 4)

	tbl := buildDurationTbl(tl)
	assert.Equal(t, 9, tbl[hardwareDomain][StatusBooting])
	assert.Equal(t, 4, tbl[serviceDomain][StatusPatching])
	// untouched entries keep their defaults
	assert.Equal(t, 2, tbl[hardwareDomain][StatusShuttingDwn])

	topo, err := BuildTopology(switchedTopoCfg(), tl, nil)
	require.NoError(t, err)
	host := topo.devByName["alpha"].(*hostDev)
	require.NoError(t, host.hardware.Apply("shutdown"))
	host.hardware.Tick()
	host.hardware.Tick()
	require.Equal(t, StatusOff, host.hardware.Status())
	require.NoError(t, host.hardware.Apply("startup"))
	assert.Equal(t, 9, host.hardware.Remaining())
}

func TestTimingListFileRoundTrip(t *testing.T) {
	tl := CreateTimingList("timings")
	tl.AddTiming("filesystem", "RESTORING", 12)
	filename := filepath.Join(t.TempDir(), "timing.json")
	require.NoError(t, tl.WriteToFile(filename))

	read, err := ReadTimingList(filename, false, nil)
	require.NoError(t, err)
	tbl := buildDurationTbl(read)
	assert.Equal(t, 12, tbl[fileSysDomain][StatusRestoring])
}

func TestExpCfgFileRoundTrip(t *testing.T) {
	excg := CreateExpCfg("exp")
	excg.AddParameter("link", "*", "bandwidth", "500")
	filename := filepath.Join(t.TempDir(), "exp.yaml")
	require.NoError(t, excg.WriteToFile(filename))

	read, err := ReadExpCfg(filename, true, nil)
	require.NoError(t, err)
	require.Len(t, read.Parameters, 1)
	assert.Equal(t, "bandwidth", read.Parameters[0].Param)

	topo, err := BuildTopology(switchedTopoCfg(), nil, nil)
	require.NoError(t, err)
	require.NoError(t, topo.ApplyExpCfg(read))
	assert.Equal(t, 500.0, topo.linkByName["alpha-sw"].capacity)
}

func TestReportErrs(t *testing.T) {
	assert.NoError(t, ReportErrs([]error{nil, nil}))
	err := ReportErrs([]error{nil, assert.AnError, assert.AnError})
	require.Error(t, err)
}
