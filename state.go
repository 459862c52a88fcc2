package cybernet

// state.go holds the timed status machine that governs the operating
// condition of hardware, software, services, and file systems.  A status
// either persists until an explicit instruction changes it, or carries a
// countdown (in simulation steps) after which it resolves automatically
// to a defined target status.

import (
	"fmt"
)

// statusDomain is the base type for an enumerated type of status machines
type statusDomain int

const (
	hardwareDomain statusDomain = iota
	softwareDomain
	serviceDomain
	fileSysDomain
)

// domainToStr returns a string name corresponding to an input statusDomain
func domainToStr(domain statusDomain) string {
	switch domain {
	case hardwareDomain:
		return "hardware"
	case softwareDomain:
		return "software"
	case serviceDomain:
		return "service"
	case fileSysDomain:
		return "filesystem"
	}
	return "unknown"
}

// Status names the operating condition of a component.  The legal set
// depends on the domain of the machine holding it.
type Status string

const (
	StatusOn          Status = "ON"
	StatusOff         Status = "OFF"
	StatusBooting     Status = "BOOTING"
	StatusShuttingDwn Status = "SHUTTING_DOWN"
	StatusResetting   Status = "RESETTING"
	StatusGood        Status = "GOOD"
	StatusPatching    Status = "PATCHING"
	StatusCompromised Status = "COMPROMISED"
	StatusOverwhelmed Status = "OVERWHELMED"
	StatusCorrupt     Status = "CORRUPT"
	StatusDestroyed   Status = "DESTROYED"
	StatusRepairing   Status = "REPAIRING"
	StatusRestoring   Status = "RESTORING"
)

// a domainTbl gathers the transition structure for one status domain.
// instrTbl maps a current status to the instructions legal from it, and
// for each instruction the status entered.  resolveTbl maps a durationed
// status to the status it resolves to when its countdown expires; a
// status absent from resolveTbl has no duration.
type domainTbl struct {
	instrTbl   map[Status]map[string]Status
	resolveTbl map[Status]Status
}

// transition tables for the four status domains.  The entries here are
// fixed at compile time (no run-time registration of status kinds).
var domainTbls = map[statusDomain]*domainTbl{
	hardwareDomain: {
		instrTbl: map[Status]map[string]Status{
			StatusOn:  {"shutdown": StatusShuttingDwn, "reset": StatusResetting},
			StatusOff: {"startup": StatusBooting},
		},
		resolveTbl: map[Status]Status{
			StatusBooting:     StatusOn,
			StatusShuttingDwn: StatusOff,
			StatusResetting:   StatusOn,
		},
	},
	softwareDomain: {
		instrTbl: map[Status]map[string]Status{
			StatusGood:        {"patch": StatusPatching, "compromise": StatusCompromised},
			StatusCompromised: {"patch": StatusPatching},
		},
		resolveTbl: map[Status]Status{
			StatusPatching: StatusGood,
		},
	},
	serviceDomain: {
		instrTbl: map[Status]map[string]Status{
			StatusGood:        {"patch": StatusPatching, "restart": StatusPatching, "compromise": StatusCompromised},
			StatusCompromised: {"patch": StatusPatching, "restart": StatusPatching},
			StatusOverwhelmed: {"patch": StatusPatching, "restart": StatusPatching},
		},
		resolveTbl: map[Status]Status{
			StatusPatching: StatusGood,
		},
	},
	fileSysDomain: {
		instrTbl: map[Status]map[string]Status{
			StatusGood:      {"corrupt": StatusCorrupt, "destroy": StatusDestroyed},
			StatusCorrupt:   {"repair": StatusRepairing, "destroy": StatusDestroyed, "restore": StatusRestoring},
			StatusDestroyed: {"restore": StatusRestoring},
		},
		resolveTbl: map[Status]Status{
			StatusRepairing: StatusGood,
			StatusRestoring: StatusGood,
		},
	},
}

// defaultDurations gives the countdown length, in steps, entered with
// each durationed status.  Overridden by a TimingList read at start-up.
var defaultDurations = map[statusDomain]map[Status]int{
	hardwareDomain: {StatusBooting: 3, StatusShuttingDwn: 2, StatusResetting: 5},
	softwareDomain: {StatusPatching: 2},
	serviceDomain:  {StatusPatching: 2},
	fileSysDomain:  {StatusRepairing: 3, StatusRestoring: 5},
}

// The TimedState struct holds the current status of one component and the
// countdown governing a durationed status.  It is created with its owning
// component and mutated only by the per-step tick or an explicit
// instruction.
type TimedState struct {
	domain    statusDomain
	status    Status
	remaining int            // steps left before a durationed status resolves
	durations map[Status]int // configured countdown lengths for this machine
}

// createTimedState is a constructor.  The durations map argument may be
// nil, in which case the domain defaults apply.
func createTimedState(domain statusDomain, initial Status, durations map[Status]int) *TimedState {
	ts := new(TimedState)
	ts.domain = domain
	ts.status = initial

	ts.durations = make(map[Status]int)
	for status, steps := range defaultDurations[domain] {
		ts.durations[status] = steps
	}
	for status, steps := range durations {
		ts.durations[status] = steps
	}

	// entering a durationed status at creation starts its countdown
	if _, durationed := domainTbls[domain].resolveTbl[initial]; durationed {
		ts.remaining = ts.durations[initial]
	}
	return ts
}

// Status returns the machine's current status
func (ts *TimedState) Status() Status {
	return ts.status
}

// Remaining returns the number of steps before the current durationed
// status resolves, zero when the status has no duration
func (ts *TimedState) Remaining() int {
	return ts.remaining
}

// enter moves the machine into the named status, starting the countdown
// when the status carries a duration
func (ts *TimedState) enter(status Status) {
	ts.status = status
	ts.remaining = 0
	if _, durationed := domainTbls[ts.domain].resolveTbl[status]; durationed {
		ts.remaining = ts.durations[status]
	}
}

// Tick advances the machine by one step.  A durationed status decrements
// its countdown and, on reaching zero, resolves to its defined target.
// Non-durationed statuses persist.  The return reports whether the
// status changed.
func (ts *TimedState) Tick() bool {
	resolve, durationed := domainTbls[ts.domain].resolveTbl[ts.status]
	if !durationed {
		return false
	}
	ts.remaining -= 1
	if ts.remaining > 0 {
		return false
	}
	ts.status = resolve
	ts.remaining = 0

	// the resolution target may itself carry a duration
	if _, durationed := domainTbls[ts.domain].resolveTbl[resolve]; durationed {
		ts.remaining = ts.durations[resolve]
	}
	return true
}

// Apply requests the transition named by instr.  An instruction not
// legal from the current status returns ErrInvalidTransition and leaves
// the machine unchanged; the machine is always in a legal status.
func (ts *TimedState) Apply(instr string) error {
	legal, present := domainTbls[ts.domain].instrTbl[ts.status]
	if present {
		target, ok := legal[instr]
		if ok {
			ts.enter(target)
			return nil
		}
	}
	return fmt.Errorf("%w: %s %s rejects %q", ErrInvalidTransition,
		domainToStr(ts.domain), ts.status, instr)
}

// force moves the machine into the named status without consulting the
// instruction table.  Used by the engine itself (e.g. marking a service
// OVERWHELMED when its link congests); never driven by a request.
func (ts *TimedState) force(status Status) {
	ts.enter(status)
}

// validStatus reports whether the named status is legal for the domain,
// used when initial statuses arrive from a topology description
func validStatus(domain statusDomain, status Status) bool {
	tbl := domainTbls[domain]
	if _, present := tbl.instrTbl[status]; present {
		return true
	}
	if _, present := tbl.resolveTbl[status]; present {
		return true
	}
	// resolution targets and engine-set statuses appear only as values
	for _, m := range tbl.instrTbl {
		for _, target := range m {
			if target == status {
				return true
			}
		}
	}
	for _, target := range tbl.resolveTbl {
		if target == status {
			return true
		}
	}
	return false
}
