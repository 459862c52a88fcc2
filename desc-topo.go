package cybernet

// desc-topo.go holds the serialized descriptions of a simulated network:
// nodes, their interfaces, installed services and applications, ACL
// rules, routes, links, and status-duration timings.  These structs are
// built to serialize cleanly to yaml or json; the file extension selects
// the codec.  Run-time representations are constructed from them by
// cybernet.go, after validation.  A malformed topology is the one fatal
// condition in the engine and is rejected here, before any simulation
// state exists.

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path"
	"strings"

	"github.com/go-playground/validator/v10"
	"golang.org/x/exp/slices"
	"gopkg.in/yaml.v3"
)

// descValidate checks desc structs against their struct tags
var descValidate *validator.Validate = validator.New()

// A ServiceDesc describes one service or application installed on a
// host node: the name callers address it by, the protocol and port its
// traffic uses, and its initial status
type ServiceDesc struct {
	Name     string `json:"name" yaml:"name" validate:"required"`
	Protocol string `json:"protocol" yaml:"protocol" validate:"required"`
	Port     int    `json:"port" yaml:"port" validate:"gte=0,lte=65535"`
	Status   string `json:"status" yaml:"status"`
}

// An IntrfcDesc describes a network interface embedded in a node.
// Disabled (rather than Enabled) keeps the zero value of the field
// meaning "interface carries traffic".  Zone is meaningful only on
// firewall interfaces, naming the directional chain pair that judges
// traffic arriving on or leaving through the interface.
type IntrfcDesc struct {
	Name       string `json:"name" yaml:"name"`
	Device     string `json:"device" yaml:"device"`
	Port       int    `json:"port" yaml:"port" validate:"gte=0"`
	MAC        string `json:"mac" yaml:"mac"`
	IPAddr     string `json:"ipaddr" yaml:"ipaddr" validate:"required,ipv4"`
	SubnetMask string `json:"subnetmask" yaml:"subnetmask" validate:"required,ipv4"`
	Disabled   bool   `json:"disabled" yaml:"disabled"`
	Zone       string `json:"zone" yaml:"zone" validate:"omitempty,oneof=internal dmz external"`
}

// An AclRuleDesc describes one access control rule.  Empty or "ANY"
// address, protocol, and zero port fields match anything.  Chain names
// the directional chain on firewall nodes and is ignored elsewhere.
type AclRuleDesc struct {
	Chain       string `json:"chain" yaml:"chain"`
	Position    int    `json:"position" yaml:"position" validate:"gte=0"`
	Action      string `json:"action" yaml:"action" validate:"oneof=PERMIT DENY"`
	Protocol    string `json:"protocol" yaml:"protocol"`
	SrcIP       string `json:"srcip" yaml:"srcip"`
	SrcWildcard string `json:"srcwildcard" yaml:"srcwildcard"`
	DstIP       string `json:"dstip" yaml:"dstip"`
	DstWildcard string `json:"dstwildcard" yaml:"dstwildcard"`
	SrcPort     int    `json:"srcport" yaml:"srcport" validate:"gte=0,lte=65535"`
	DstPort     int    `json:"dstport" yaml:"dstport" validate:"gte=0,lte=65535"`
}

// A RouteDesc describes one explicit route on a network device
type RouteDesc struct {
	Dest    string `json:"dest" yaml:"dest" validate:"required,ipv4"`
	Mask    string `json:"mask" yaml:"mask" validate:"required,ipv4"`
	NextHop string `json:"nexthop" yaml:"nexthop" validate:"required,ipv4"`
}

// A NodeDesc describes one node in the topology.  Services,
// applications, and file system status are meaningful only on host
// class nodes (computer, server); ACL rules and routes only on network
// devices (switch, router, firewall).  Violations are rejected during
// construction.
type NodeDesc struct {
	Name         string        `json:"name" yaml:"name" validate:"required"`
	Type         string        `json:"type" yaml:"type" validate:"oneof=computer server switch router firewall"`
	Model        string        `json:"model" yaml:"model"`
	Groups       []string      `json:"groups" yaml:"groups"`
	HWStatus     string        `json:"hwstatus" yaml:"hwstatus"`
	Interfaces   []IntrfcDesc  `json:"interfaces" yaml:"interfaces" validate:"dive"`
	Services     []ServiceDesc `json:"services" yaml:"services" validate:"dive"`
	Applications []ServiceDesc `json:"applications" yaml:"applications" validate:"dive"`
	FileSystem   string        `json:"filesystem" yaml:"filesystem"`
	Acl          []AclRuleDesc `json:"acl" yaml:"acl" validate:"dive"`
	AclDefault   string        `json:"acldefault" yaml:"acldefault" validate:"omitempty,oneof=PERMIT DENY"`
	Routes       []RouteDesc   `json:"routes" yaml:"routes" validate:"dive"`
	DefaultRoute string        `json:"defaultroute" yaml:"defaultroute" validate:"omitempty,ipv4"`
}

// hostClass reports whether the desc names a host-class node type
func (nd *NodeDesc) hostClass() bool {
	return nd.Type == "computer" || nd.Type == "server"
}

// A LinkEndptDesc names one end of a link by hostname and interface port
type LinkEndptDesc struct {
	Node string `json:"node" yaml:"node" validate:"required"`
	Port int    `json:"port" yaml:"port" validate:"gte=0"`
}

// A LinkDesc describes one link: its two endpoints and its capacity in
// Mbits/sec
type LinkDesc struct {
	Name      string        `json:"name" yaml:"name"`
	EndptA    LinkEndptDesc `json:"endpta" yaml:"endpta"`
	EndptB    LinkEndptDesc `json:"endptb" yaml:"endptb"`
	Bandwidth float64       `json:"bandwidth" yaml:"bandwidth" validate:"gt=0"`
}

// A TopoCfg gathers the entire serialized topology
type TopoCfg struct {
	Name  string     `json:"name" yaml:"name" validate:"required"`
	Nodes []NodeDesc `json:"nodes" yaml:"nodes" validate:"required,dive"`
	Links []LinkDesc `json:"links" yaml:"links" validate:"dive"`
}

// A TimingDesc holds the configured countdown, in steps, of one
// durationed status in one domain
type TimingDesc struct {
	Domain string `json:"domain" yaml:"domain" validate:"oneof=hardware software service filesystem"`
	Status string `json:"status" yaml:"status" validate:"required"`
	Steps  int    `json:"steps" yaml:"steps" validate:"gt=0"`
}

// A TimingList holds a map (Durations) whose key is a status domain and
// whose value is the list of TimingDescs overriding that domain's
// default countdowns
type TimingList struct {
	ListName  string                  `json:"listname" yaml:"listname"`
	Durations map[string][]TimingDesc `json:"durations" yaml:"durations"`
}

// CreateTimingList is an initialization constructor.
// Its output struct has methods for integrating data.
func CreateTimingList(listname string) *TimingList {
	tl := new(TimingList)
	tl.ListName = listname
	tl.Durations = make(map[string][]TimingDesc)
	return tl
}

// AddTiming takes the parameters of a TimingDesc, creates one, and adds
// it to the TimingList
func (tl *TimingList) AddTiming(domain, status string, steps int) {
	_, present := tl.Durations[domain]
	if !present {
		tl.Durations[domain] = make([]TimingDesc, 0)
	}
	tl.Durations[domain] = append(tl.Durations[domain],
		TimingDesc{Domain: domain, Status: status, Steps: steps})
}

// buildDurationTbl creates the map structure the status machines consult
// for countdown lengths, starting from the compiled-in defaults and
// overlaying the entries of the input list
//
//	The organization is
//	 map[status domain] -> map[status] -> steps
func buildDurationTbl(tl *TimingList) map[statusDomain]map[Status]int {
	tbl := make(map[statusDomain]map[Status]int)
	for domain, durations := range defaultDurations {
		tbl[domain] = make(map[Status]int)
		for status, steps := range durations {
			tbl[domain][status] = steps
		}
	}
	if tl == nil {
		return tbl
	}
	for domainName, descList := range tl.Durations {
		domain, ok := domainFromStr(domainName)
		if !ok {
			continue
		}
		for _, td := range descList {
			tbl[domain][Status(td.Status)] = td.Steps
		}
	}
	return tbl
}

// domainFromStr returns the statusDomain corresponding to a string name for it
func domainFromStr(name string) (statusDomain, bool) {
	switch name {
	case "hardware":
		return hardwareDomain, true
	case "software":
		return softwareDomain, true
	case "service":
		return serviceDomain, true
	case "filesystem":
		return fileSysDomain, true
	}
	return hardwareDomain, false
}

// serializeToFile stores a desc struct to the file whose name is given.
// Serialization to json or to yaml is selected based on the extension of
// this name.
func serializeToFile(filename string, v any) error {
	pathExt := path.Ext(filename)
	var bytes []byte
	var merr error

	if pathExt == ".yaml" || pathExt == ".YAML" || pathExt == ".yml" {
		bytes, merr = yaml.Marshal(v)
	} else if pathExt == ".json" || pathExt == ".JSON" {
		bytes, merr = json.MarshalIndent(v, "", "\t")
	} else {
		return fmt.Errorf("unrecognized extension on %s", filename)
	}
	if merr != nil {
		return merr
	}
	return os.WriteFile(filename, bytes, 0644)
}

// WriteToFile stores the TopoCfg struct to the file whose name is given
func (tc *TopoCfg) WriteToFile(filename string) error {
	return serializeToFile(filename, *tc)
}

// WriteToFile stores the TimingList struct to the file whose name is given
func (tl *TimingList) WriteToFile(filename string) error {
	return serializeToFile(filename, *tl)
}

// ReadTopoCfg deserializes a byte slice holding a representation of a
// TopoCfg struct.  If the input argument of dict (those bytes) is empty,
// the file whose name is given is read to acquire them.  The
// deserialized topology is validated before being returned.
func ReadTopoCfg(filename string, useYAML bool, dict []byte) (*TopoCfg, error) {
	var err error
	if len(dict) == 0 {
		dict, err = os.ReadFile(filename)
		if err != nil {
			return nil, err
		}
	}

	example := TopoCfg{}
	if useYAML {
		err = yaml.Unmarshal(dict, &example)
	} else {
		err = json.Unmarshal(dict, &example)
	}
	if err != nil {
		return nil, err
	}

	if err = validateTopoCfg(&example); err != nil {
		return nil, err
	}
	return &example, nil
}

// ReadTimingList deserializes a byte slice holding a representation of a
// TimingList struct, reading the named file when the slice is empty
func ReadTimingList(filename string, useYAML bool, dict []byte) (*TimingList, error) {
	var err error
	if len(dict) == 0 {
		dict, err = os.ReadFile(filename)
		if err != nil {
			return nil, err
		}
	}

	example := TimingList{}
	if useYAML {
		err = yaml.Unmarshal(dict, &example)
	} else {
		err = json.Unmarshal(dict, &example)
	}
	if err != nil {
		return nil, err
	}
	return &example, nil
}

// validateTopoCfg applies the struct-tag validation and the cross-record
// checks that tags cannot express: unique hostnames, link endpoints that
// name declared nodes and interface ports, and class constraints (host
// payloads only on hosts, ACL/routes only on network devices)
func validateTopoCfg(tc *TopoCfg) error {
	if err := descValidate.Struct(tc); err != nil {
		return fmt.Errorf("topology %s fails validation: %w", tc.Name, err)
	}

	var errList []error
	seen := make(map[string]bool)
	ports := make(map[string][]int)

	for idx := range tc.Nodes {
		nd := &tc.Nodes[idx]
		if seen[nd.Name] {
			errList = append(errList, fmt.Errorf("hostname %s declared more than once", nd.Name))
		}
		seen[nd.Name] = true

		for _, intrfc := range nd.Interfaces {
			if slices.Contains(ports[nd.Name], intrfc.Port) {
				errList = append(errList, fmt.Errorf("node %s declares port %d twice", nd.Name, intrfc.Port))
			}
			ports[nd.Name] = append(ports[nd.Name], intrfc.Port)
		}

		if nd.hostClass() {
			if len(nd.Acl) > 0 || len(nd.Routes) > 0 || nd.DefaultRoute != "" {
				errList = append(errList, fmt.Errorf("host node %s carries ACL or routing records", nd.Name))
			}
		} else {
			if len(nd.Services) > 0 || len(nd.Applications) > 0 || nd.FileSystem != "" {
				errList = append(errList, fmt.Errorf("network device %s carries host software records", nd.Name))
			}
			if nd.Type == "firewall" {
				for _, intrfc := range nd.Interfaces {
					if intrfc.Zone == "" {
						errList = append(errList, fmt.Errorf("firewall %s interface on port %d has no zone", nd.Name, intrfc.Port))
					}
				}
			}
		}

		if nd.HWStatus != "" && !validStatus(hardwareDomain, Status(nd.HWStatus)) {
			errList = append(errList, fmt.Errorf("node %s initial hardware status %q not recognized", nd.Name, nd.HWStatus))
		}
		if nd.FileSystem != "" && !validStatus(fileSysDomain, Status(nd.FileSystem)) {
			errList = append(errList, fmt.Errorf("node %s initial file system status %q not recognized", nd.Name, nd.FileSystem))
		}
	}

	for idx := range tc.Links {
		ld := &tc.Links[idx]
		for _, endpt := range []LinkEndptDesc{ld.EndptA, ld.EndptB} {
			if !seen[endpt.Node] {
				errList = append(errList, fmt.Errorf("link endpoint names undeclared node %s", endpt.Node))
				continue
			}
			if !slices.Contains(ports[endpt.Node], endpt.Port) {
				errList = append(errList, fmt.Errorf("link endpoint names missing port %d on node %s", endpt.Port, endpt.Node))
			}
		}
		if ld.EndptA.Node == ld.EndptB.Node {
			errList = append(errList, fmt.Errorf("link joins node %s to itself", ld.EndptA.Node))
		}
	}

	return ReportErrs(errList)
}

// ReportErrs transforms a list of errors and transforms the non-nil ones
// into a single error with comma-separated descriptions
func ReportErrs(errs []error) error {
	err_msg := make([]string, 0)
	for _, err := range errs {
		if err != nil {
			err_msg = append(err_msg, err.Error())
		}
	}
	if len(err_msg) == 0 {
		return nil
	}
	return errors.New(strings.Join(err_msg, ", "))
}
