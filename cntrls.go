package noctopo

// cntrls.go holds the representation of the endpoints (controllers) that attach
// to the network, and the partitioning of those endpoints into the part that is
// spread uniformly across routers and the remainder that lands on router 0

import (
	"encoding/json"
	"fmt"
	"os"

	"golang.org/x/exp/slices"
	"gopkg.in/yaml.v3"
	"k8s.io/klog/v2"
)

// controller classes, named as the simulator names the controller types
const (
	L1CacheCntrl = "L1Cache_Controller"
	L2CacheCntrl = "L2Cache_Controller"
	DirCntrl     = "Directory_Controller"
	DMACntrl     = "DMA_Controller"
)

// CntrlClasses lists the recognized controller classes
var CntrlClasses = []string{L1CacheCntrl, L2CacheCntrl, DirCntrl, DMACntrl}

// Endpoint is the handle the generator holds for a node attached to the network.
// The generator only reads it; the host owns it.
type Endpoint interface {
	EndptName() string  // unique name of the endpoint
	EndptClass() string // controller class, e.g. DMA_Controller
}

// Cntrl is the default Endpoint, describing one controller
type Cntrl struct {
	Name    string `json:"name" yaml:"name"`
	Class   string `json:"class" yaml:"class"`
	Version int    `json:"version" yaml:"version"`
}

// EndptName returns the controller name
func (c *Cntrl) EndptName() string {
	return c.Name
}

// EndptClass returns the controller class
func (c *Cntrl) EndptClass() string {
	return c.Class
}

// CreateCntrl is a constructor.  An empty name is replaced by a default
// built from the class and version, e.g. "DMA_Controller.0"
func CreateCntrl(class string, version int, name string) *Cntrl {
	if len(name) == 0 {
		name = fmt.Sprintf("%s.%d", class, version)
	}
	return &Cntrl{Name: name, Class: class, Version: version}
}

// IsOverflowClass reports whether an endpoint is of the class expected on
// the remainder (fallback) router
func IsOverflowClass(endpt Endpoint) bool {
	return endpt.EndptClass() == DMACntrl
}

// CntrlCounts gives the number of controllers of each class
type CntrlCounts struct {
	L1Caches int
	L2Caches int
	Dirs     int
	DMAs     int
}

// MakeCntrls creates the controller list in the order the simulator hands
// controllers to a topology: all L1 caches, then L2 caches, directories, and DMA engines
func MakeCntrls(counts CntrlCounts) []Endpoint {
	cntrls := make([]Endpoint, 0, counts.L1Caches+counts.L2Caches+counts.Dirs+counts.DMAs)

	groups := []struct {
		class string
		num   int
	}{
		{L1CacheCntrl, counts.L1Caches},
		{L2CacheCntrl, counts.L2Caches},
		{DirCntrl, counts.Dirs},
		{DMACntrl, counts.DMAs},
	}

	for _, grp := range groups {
		for idx := 0; idx < grp.num; idx += 1 {
			cntrls = append(cntrls, CreateCntrl(grp.class, idx, ""))
		}
	}

	return cntrls
}

// CntrlList is a serializable list of controllers
type CntrlList struct {
	ListName string  `json:"listname" yaml:"listname"`
	Cntrls   []Cntrl `json:"cntrls" yaml:"cntrls"`
}

// Endpoints returns the list members as Endpoint handles, in list order
func (cl *CntrlList) Endpoints() []Endpoint {
	endpts := make([]Endpoint, len(cl.Cntrls))
	for idx := range cl.Cntrls {
		endpts[idx] = &cl.Cntrls[idx]
	}
	return endpts
}

// Validate checks that every controller has a recognized class and that names are unique
func (cl *CntrlList) Validate() error {
	errs := []error{}
	seen := make(map[string]bool)
	for _, c := range cl.Cntrls {
		if !slices.Contains(CntrlClasses, c.Class) {
			errs = append(errs, fmt.Errorf("controller %s has unrecognized class %q", c.Name, c.Class))
		}
		if seen[c.Name] {
			errs = append(errs, fmt.Errorf("controller name %s duplicated", c.Name))
		}
		seen[c.Name] = true
	}
	if err := ReportErrs(errs); err != nil {
		return fmt.Errorf("%w: %s", ErrConfig, err.Error())
	}
	return nil
}

// WriteToFile stores the CntrlList to the file whose name is given.
// Serialization to json or to yaml is selected based on the extension of this name.
func (cl *CntrlList) WriteToFile(filename string) error {
	return writeSerialized(filename, cl)
}

// ReadCntrlList deserializes a byte slice holding a CntrlList.  If dict is empty
// the file whose name is given is read to acquire the bytes.
func ReadCntrlList(filename string, useYAML bool, dict []byte) (*CntrlList, error) {
	var err error

	if len(dict) == 0 {
		dict, err = os.ReadFile(filename)
		if err != nil {
			return nil, err
		}
	}

	example := CntrlList{}
	if useYAML {
		err = yaml.Unmarshal(dict, &example)
	} else {
		err = json.Unmarshal(dict, &example)
	}
	if err != nil {
		return nil, err
	}

	if verr := example.Validate(); verr != nil {
		return nil, verr
	}

	return &example, nil
}

// BindPlan describes how endpoints are spread over routers.  Nodes in the
// first len-Remainder positions go to router (i mod Divisor) at level
// (i div Divisor); levels must stay below CntrlsPerRouter.  The trailing
// Remainder nodes all attach to router 0.
type BindPlan struct {
	Divisor         int
	CntrlsPerRouter int
	Remainder       int
}

// UniformBindPlan computes the plan for numNodes endpoints grouped by divisor
func UniformBindPlan(numNodes, divisor int) BindPlan {
	// a zero divisor leaves nothing that can be spread evenly
	if divisor <= 0 {
		return BindPlan{Divisor: divisor, CntrlsPerRouter: 0, Remainder: numNodes}
	}

	if numNodes < divisor {
		klog.Warningf("%d endpoints fewer than grouping divisor %d, all are remainder", numNodes, divisor)
	}

	return BindPlan{Divisor: divisor, CntrlsPerRouter: numNodes / divisor, Remainder: numNodes % divisor}
}

// OnePerRouterBindPlan is the plan that gives each of numRouters routers at
// most one endpoint and leaves no remainder
func OnePerRouterBindPlan(numRouters int) BindPlan {
	return BindPlan{Divisor: numRouters, CntrlsPerRouter: 1, Remainder: 0}
}

// Partition splits nodes into the network part (order kept) and the trailing remainder
func (bp BindPlan) Partition(nodes []Endpoint) ([]Endpoint, []Endpoint) {
	rem := bp.Remainder
	if rem > len(nodes) {
		rem = len(nodes)
	}
	if rem < 0 {
		rem = 0
	}
	cut := len(nodes) - rem

	network := make([]Endpoint, cut)
	copy(network, nodes[:cut])

	remainder := make([]Endpoint, rem)
	copy(remainder, nodes[cut:])

	return network, remainder
}

// PartitionNodes splits nodes by divisor: remainder = len(nodes) mod divisor,
// the first len-remainder nodes form the network part
func PartitionNodes(nodes []Endpoint, divisor int) ([]Endpoint, []Endpoint) {
	return UniformBindPlan(len(nodes), divisor).Partition(nodes)
}
