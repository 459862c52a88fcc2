package cybernet

// trace.go gathers a record of model activity for off-line analysis.
// Object ids are bound to names at construction; the engine stamps a
// record whenever a status changes, a flow is judged, or a pending
// operation resolves.  The gathered trace serializes to yaml or json
// by file extension.

import (
	"fmt"

	"github.com/iti/evt/vrtime"
)

// A TraceRecord carries one stamped observation.  Step is the discrete
// step of the observation; Time/Ticks/Pri are its virtual-time
// rendering, one tick per step.
type TraceRecord struct {
	Step   int     `json:"step" yaml:"step"`
	Time   float64 `json:"time" yaml:"time"`
	Ticks  int64   `json:"ticks" yaml:"ticks"`
	Pri    int64   `json:"pri" yaml:"pri"`
	ObjID  int     `json:"objid" yaml:"objid"`
	Name   string  `json:"name" yaml:"name"`
	Op     string  `json:"op" yaml:"op"`
}

// A NameType pairs an object's name with the kind of object it names
type NameType struct {
	Name string `json:"name" yaml:"name"`
	Type string `json:"type" yaml:"type"`
}

// The TraceManager gathers and serializes trace records.  When InUse is
// false the stamping methods return immediately.
type TraceManager struct {
	// experiment name
	ExpName string `json:"expname" yaml:"expname"`

	// true if traces are being gathered
	InUse bool `json:"inuse" yaml:"inuse"`

	// name and type of objects with integer ids
	NameByID map[int]NameType `json:"namebyid" yaml:"namebyid"`

	// gathered records in stamp order
	Traces []TraceRecord `json:"traces" yaml:"traces"`
}

// CreateTraceManager is a constructor
func CreateTraceManager(expName string, active bool) *TraceManager {
	tm := new(TraceManager)
	tm.ExpName = expName
	tm.InUse = active
	tm.NameByID = make(map[int]NameType)
	tm.Traces = make([]TraceRecord, 0)
	return tm
}

// Active tells whether the trace manager is gathering records
func (tm *TraceManager) Active() bool {
	return tm.InUse
}

// AddName binds an object id to its name and type.  An id may be bound
// once; a rebinding is a build error worth stopping on.
func (tm *TraceManager) AddName(id int, name string, objType string) {
	if !tm.InUse {
		return
	}
	_, present := tm.NameByID[id]
	if present {
		panic(fmt.Errorf("trace id %d bound twice", id))
	}
	tm.NameByID[id] = NameType{Name: name, Type: objType}
}

// AddTrace stamps one observation.  The virtual-time rendering of the
// step rides along so the trace lines up with tick-based tooling.
func (tm *TraceManager) AddTrace(step int, objID int, name string, op string) {
	if !tm.InUse {
		return
	}
	vt := vrtime.SecondsToTime(float64(step))
	tm.Traces = append(tm.Traces,
		TraceRecord{Step: step, Time: vt.Seconds(), Ticks: vt.Ticks(), Pri: vt.Pri(),
			ObjID: objID, Name: name, Op: op})
}

// WriteToFile serializes the gathered trace, yaml or json selected by
// the file extension
func (tm *TraceManager) WriteToFile(filename string) error {
	return serializeToFile(filename, tm)
}
