package cybernet

// params.go lets an experiment adjust model attributes at start-up
// without editing the topology file.  A parameter names a class of
// objects (node or link), an attribute expression selecting members of
// the class, the parameter to set, and its value.  Parameters apply in
// generality order, broadest first, so a parameter selecting by name
// overrides one selecting by group, which overrides a wildcard.

import (
	"encoding/json"
	"fmt"
	"os"
	"sort"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

// the paramObj interface is satisfied by model objects that accept
// run-time parameters
type paramObj interface {
	matchParam(attrbName, attrbValue string) bool
	setParam(param string, value valueStruct)
	paramObjName() string
}

// a valueStruct carries a parameter value in whichever of the base
// types the expression parsed to
type valueStruct struct {
	intValue    int
	floatValue  float64
	stringValue string
	boolValue   bool
}

// stringToValueStruct parses a value expression, trying the numeric and
// boolean readings before settling on string
func stringToValueStruct(value string) valueStruct {
	vs := valueStruct{stringValue: value}
	if iv, err := strconv.Atoi(value); err == nil {
		vs.intValue = iv
		vs.floatValue = float64(iv)
		return vs
	}
	if fv, err := strconv.ParseFloat(value, 64); err == nil {
		vs.floatValue = fv
		vs.intValue = int(fv)
		return vs
	}
	if bv, err := strconv.ParseBool(value); err == nil {
		vs.boolValue = bv
		return vs
	}
	return vs
}

// An ExpParameter gives a value to a parameter of every object a
// selection expression matches.  The attribute expression is either the
// wildcard "*" or "<attribute>%<value>", e.g. "group%web" or
// "name%srvr1".
type ExpParameter struct {
	ParamObj  string `json:"paramobj" yaml:"paramobj" validate:"oneof=node link"`
	Attribute string `json:"attribute" yaml:"attribute" validate:"required"`
	Param     string `json:"param" yaml:"param" validate:"required"`
	Value     string `json:"value" yaml:"value" validate:"required"`
}

// An ExpCfg names a list of run-time parameter assignments
type ExpCfg struct {
	Name       string         `json:"name" yaml:"name" validate:"required"`
	Parameters []ExpParameter `json:"parameters" yaml:"parameters" validate:"dive"`
}

// CreateExpCfg is a constructor
func CreateExpCfg(name string) *ExpCfg {
	excg := new(ExpCfg)
	excg.Name = name
	excg.Parameters = make([]ExpParameter, 0)
	return excg
}

// AddParameter appends a parameter assignment to the configuration
func (excg *ExpCfg) AddParameter(paramObj, attribute, param, value string) {
	excg.Parameters = append(excg.Parameters,
		ExpParameter{ParamObj: paramObj, Attribute: attribute, Param: param, Value: value})
}

// WriteToFile serializes the configuration, yaml or json selected by
// the file extension
func (excg *ExpCfg) WriteToFile(filename string) error {
	return serializeToFile(filename, excg)
}

// ReadExpCfg deserializes a byte slice holding a representation of an
// ExpCfg struct, reading the named file when the slice is empty.  The
// deserialized configuration is validated before being returned.
func ReadExpCfg(filename string, useYAML bool, dict []byte) (*ExpCfg, error) {
	var err error
	if len(dict) == 0 {
		dict, err = os.ReadFile(filename)
		if err != nil {
			return nil, err
		}
	}

	example := ExpCfg{}
	if useYAML {
		err = yaml.Unmarshal(dict, &example)
	} else {
		err = json.Unmarshal(dict, &example)
	}
	if err != nil {
		return nil, err
	}

	if err = descValidate.Struct(&example); err != nil {
		return nil, fmt.Errorf("experiment config %s fails validation: %w", example.Name, err)
	}
	return &example, nil
}

// generality ranks an attribute expression so broader selections apply
// before narrower ones
func generality(attribute string) int {
	if attribute == "*" {
		return 0
	}
	attrbName, _, _ := strings.Cut(attribute, "%")
	switch attrbName {
	case "devtype":
		return 1
	case "model":
		return 2
	case "group":
		return 3
	case "name":
		return 4
	}
	return 5
}

// ApplyExpCfg walks the configuration in generality order and sets each
// matched object's parameter.  An attribute naming an unknown selector
// is an error; a selector matching nothing is not.
func (topo *Topology) ApplyExpCfg(excg *ExpCfg) error {
	params := make([]ExpParameter, len(excg.Parameters))
	copy(params, excg.Parameters)
	sort.SliceStable(params, func(i, j int) bool {
		return generality(params[i].Attribute) < generality(params[j].Attribute)
	})

	for _, param := range params {
		attrbName, attrbValue, cut := strings.Cut(param.Attribute, "%")
		if param.Attribute == "*" {
			attrbName = "*"
		} else if !cut {
			return fmt.Errorf("attribute %q in config %s is not <attribute>%%<value>",
				param.Attribute, excg.Name)
		}
		value := stringToValueStruct(param.Value)

		switch param.ParamObj {
		case "node":
			for _, name := range topo.devNames {
				obj := topo.devByName[name].(paramObj)
				if attrbName == "*" || obj.matchParam(attrbName, attrbValue) {
					obj.setParam(param.Param, value)
				}
			}
		case "link":
			for _, name := range topo.linkNames {
				link := topo.linkByName[name]
				if attrbName == "*" || link.matchParam(attrbName, attrbValue) {
					link.setParam(param.Param, value)
				}
			}
		}
	}
	return nil
}

// matchParam is used to determine whether a run-time parameter
// description should be applied to the link, as part of the paramObj
// interface
func (link *linkStruct) matchParam(attrbName, attrbValue string) bool {
	switch attrbName {
	case "name":
		return link.name == attrbValue
	case "device":
		return link.intrfcA.device.devName() == attrbValue ||
			link.intrfcB.device.devName() == attrbValue
	}
	return false
}

// setParam gives a value to a linkStruct parameter, as part of the
// paramObj interface
func (link *linkStruct) setParam(param string, value valueStruct) {
	switch param {
	case "bandwidth":
		if value.floatValue > 0.0 {
			link.capacity = value.floatValue
		}
	case "up":
		link.up = value.boolValue
	}
}

// paramObjName helps linkStruct satisfy the paramObj interface
func (link *linkStruct) paramObjName() string {
	return link.name
}
