package noctopo

// trace.go holds the manager of hop traces gathered while a traffic probe
// runs over a generated network

import (
	"fmt"
	"strconv"

	"github.com/iti/evt/vrtime"
	"gopkg.in/yaml.v3"
)

// kinds of objects a packet visits
const (
	RouterObj  = "router"
	ExtLinkObj = "extlink"
	IntLinkObj = "intlink"
)

// TraceInst is one stored trace record
type TraceInst struct {
	TraceTime string `json:"tracetime" yaml:"tracetime"`
	TraceType string `json:"tracetype" yaml:"tracetype"`
	TraceStr  string `json:"tracestr" yaml:"tracestr"`
}

// NameType is an entry in a dictionary created for a trace
// that maps object id numbers to a (name,type) pair
type NameType struct {
	Name string `json:"name" yaml:"name"`
	Type string `json:"type" yaml:"type"`
}

// TraceManager gathers the visits packets make to routers and links during a probe.
// Object ids are unique across kinds: links keep their link ids, routers are
// offset by the number of links.
type TraceManager struct {
	// probe uses trace
	InUse bool `json:"inuse" yaml:"inuse"`

	// name of the probed network
	ExpName string `json:"expname" yaml:"expname"`

	// text name associated with each objID
	NameByID map[int]NameType `json:"namebyid" yaml:"namebyid"`

	// all trace records, by packet id
	Traces map[int][]TraceInst `json:"traces" yaml:"traces"`
}

// CreateTraceManager is a constructor.  It saves the name of the experiment
// and a flag indicating whether the trace manager is active.  An inactive
// manager ignores every call that would record something.
func CreateTraceManager(expName string, active bool) *TraceManager {
	tm := new(TraceManager)
	tm.InUse = active
	tm.ExpName = expName
	tm.NameByID = make(map[int]NameType)
	tm.Traces = make(map[int][]TraceInst)
	return tm
}

// Active tells the caller whether the Trace Manager is actively being used
func (tm *TraceManager) Active() bool {
	return tm.InUse
}

// AddTrace stores a trace record under the packet id
func (tm *TraceManager) AddTrace(pcktID int, trace TraceInst) {
	if !tm.InUse {
		return
	}
	tm.Traces[pcktID] = append(tm.Traces[pcktID], trace)
}

// AddName adds an element to the id -> (name,type) dictionary for the trace file
func (tm *TraceManager) AddName(id int, name string, objDesc string) error {
	if !tm.InUse {
		return nil
	}
	if _, present := tm.NameByID[id]; present {
		return fmt.Errorf("trace object id %d named twice", id)
	}
	tm.NameByID[id] = NameType{Name: name, Type: objDesc}
	return nil
}

// AddNetworkNames enters every router and link of the network into the dictionary
func (tm *TraceManager) AddNetworkNames(net *Network) error {
	if !tm.InUse {
		return nil
	}

	errs := []error{}
	for _, el := range net.ExtLinks {
		errs = append(errs, tm.AddName(el.ID, ExtLinkName(el.ID), ExtLinkObj))
	}
	for _, il := range net.IntLinks {
		errs = append(errs, tm.AddName(il.ID, IntLinkName(il.ID), IntLinkObj))
	}
	offset := net.TotalLinks()
	for _, rtr := range net.Routers {
		errs = append(errs, tm.AddName(offset+rtr, RouterName(rtr), RouterObj))
	}
	return ReportErrs(errs)
}

// NumTraces returns the number of records held over all packets
func (tm *TraceManager) NumTraces() int {
	n := 0
	for _, trcs := range tm.Traces {
		n += len(trcs)
	}
	return n
}

// WriteToFile stores the TraceManager to the file whose name is given.
// Serialization to json or to yaml is selected based on the extension of this name.
// Nothing is written when the manager is inactive.
func (tm *TraceManager) WriteToFile(filename string) error {
	if !tm.InUse {
		return nil
	}
	return writeSerialized(filename, tm)
}

// HopTrace records the visit of a probe packet to a router or link
type HopTrace struct {
	Time     float64 `yaml:"time"`     // seconds, cycle times cycle period
	Cycle    int64   `yaml:"cycle"`    // network cycle of the visit
	Priority int64   `yaml:"priority"` // priority field of time-stamp
	PcktID   int     `yaml:"pcktid"`   // probe packet the trace follows
	ObjID    int     `yaml:"objid"`    // trace id of the object visited
	ObjType  string  `yaml:"objtype"`  // RouterObj, ExtLinkObj, IntLinkObj
	Op       string  `yaml:"op"`       // "inject", "enter", "traverse", "eject", "deliver"
	Hop      int     `yaml:"hop"`      // number of internal links crossed so far
}

// Serialize renders the record as yaml
func (ht *HopTrace) Serialize() (string, error) {
	bytes, merr := yaml.Marshal(*ht)
	if merr != nil {
		return "", merr
	}
	return string(bytes), nil
}

// AddHopTrace creates a HopTrace record from its calling arguments and stores it.
// The ticks of vrt count network cycles of cyclePeriod seconds.
func AddHopTrace(tm *TraceManager, vrt vrtime.Time, cyclePeriod float64, pcktID, objID int, objType, op string, hop int) error {
	if !tm.Active() {
		return nil
	}

	ht := &HopTrace{Time: float64(vrt.Ticks()) * cyclePeriod, Cycle: vrt.Ticks(), Priority: vrt.Pri(),
		PcktID: pcktID, ObjID: objID, ObjType: objType, Op: op, Hop: hop}

	htStr, err := ht.Serialize()
	if err != nil {
		return err
	}
	traceTime := strconv.FormatFloat(ht.Time, 'g', -1, 64)

	tm.AddTrace(pcktID, TraceInst{TraceTime: traceTime, TraceType: "hop", TraceStr: htStr})
	return nil
}
