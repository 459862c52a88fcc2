package cybernet

import (
	"errors"
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHardwareResetRejectsMidTransition(t *testing.T) {
	ts := createTimedState(hardwareDomain, StatusOn, nil)
	require.NoError(t, ts.Apply("reset"))
	require.Equal(t, StatusResetting, ts.Status())
	require.Equal(t, 5, ts.Remaining())

	// a shutdown arriving mid-countdown is rejected and the countdown
	// is unaffected
	ts.Tick()
	ts.Tick()
	ts.Tick()
	err := ts.Apply("shutdown")
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrInvalidTransition))
	assert.Equal(t, StatusResetting, ts.Status())
	assert.Equal(t, 2, ts.Remaining())

	ts.Tick()
	assert.Equal(t, StatusResetting, ts.Status())
	changed := ts.Tick()
	assert.True(t, changed)
	assert.Equal(t, StatusOn, ts.Status())
	assert.Equal(t, 0, ts.Remaining())
}

func TestInstructionTables(t *testing.T) {
	testCases := []struct {
		domain  statusDomain
		initial Status
		instr   string
		target  Status
		legal   bool
	}{
		{hardwareDomain, StatusOn, "shutdown", StatusShuttingDwn, true},
		{hardwareDomain, StatusOff, "startup", StatusBooting, true},
		{hardwareDomain, StatusOff, "shutdown", StatusOff, false},
		{softwareDomain, StatusGood, "compromise", StatusCompromised, true},
		{softwareDomain, StatusCompromised, "patch", StatusPatching, true},
		{softwareDomain, StatusGood, "restart", StatusGood, false},
		{serviceDomain, StatusOverwhelmed, "restart", StatusPatching, true},
		{serviceDomain, StatusGood, "restart", StatusPatching, true},
		{fileSysDomain, StatusDestroyed, "repair", StatusDestroyed, false},
		{fileSysDomain, StatusDestroyed, "restore", StatusRestoring, true},
		{fileSysDomain, StatusCorrupt, "repair", StatusRepairing, true},
	}
	for _, tc := range testCases {
		ts := createTimedState(tc.domain, tc.initial, nil)
		err := ts.Apply(tc.instr)
		if tc.legal {
			require.NoError(t, err, "%s %s %s", domainToStr(tc.domain), tc.initial, tc.instr)
		} else {
			require.Error(t, err, "%s %s %s", domainToStr(tc.domain), tc.initial, tc.instr)
			require.True(t, errors.Is(err, ErrInvalidTransition))
		}
		assert.Equal(t, tc.target, ts.Status())
	}
}

func TestConfiguredDurationsOverrideDefaults(t *testing.T) {
	ts := createTimedState(hardwareDomain, StatusOn, map[Status]int{StatusBooting: 7})
	require.NoError(t, ts.Apply("shutdown"))
	for ts.Status() == StatusShuttingDwn {
		ts.Tick()
	}
	require.Equal(t, StatusOff, ts.Status())
	require.NoError(t, ts.Apply("startup"))
	assert.Equal(t, 7, ts.Remaining())
}

func TestDurationBoundaryProperty(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 100
	properties := gopter.NewProperties(parameters)

	// a durationed status holds for exactly its configured number of
	// steps: present after duration-1 ticks, resolved after duration
	properties.Property("resolves exactly at the countdown", prop.ForAll(
		func(duration int) bool {
			ts := createTimedState(hardwareDomain, StatusOn,
				map[Status]int{StatusResetting: duration})
			if ts.Apply("reset") != nil {
				return false
			}
			for idx := 0; idx < duration-1; idx++ {
				if ts.Tick() {
					return false
				}
			}
			if ts.Status() != StatusResetting {
				return false
			}
			return ts.Tick() && ts.Status() == StatusOn
		},
		gen.IntRange(1, 25),
	))
	properties.TestingRun(t)
}
