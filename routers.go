package noctopo

// routers.go derives the sizing parameters of each topology family and
// materializes the router identities

import (
	"fmt"

	"golang.org/x/exp/slices"
)

// TopoFamily names a topology family
type TopoFamily string

const (
	DCellFamily      TopoFamily = "DCell"
	FatTreeFamily    TopoFamily = "GoogleFatTree"
	DatacenterFamily TopoFamily = "Datacenter"
)

// TopoFamilies lists the supported families
var TopoFamilies = []TopoFamily{DCellFamily, FatTreeFamily, DatacenterFamily}

// TopoFamilyFromStr returns the family named by the string, or a configuration error
func TopoFamilyFromStr(name string) (TopoFamily, error) {
	family := TopoFamily(name)
	if !slices.Contains(TopoFamilies, family) {
		return "", fmt.Errorf("%w: unsupported topology %q", ErrConfig, name)
	}
	return family, nil
}

// dcellShape holds the number of modules and the servers in each module
type dcellShape struct {
	modules int
	servers int
}

// dcellShapes maps the supported DCell node counts to module shapes
var dcellShapes = map[int]dcellShape{
	2:  {modules: 2, servers: 1},
	6:  {modules: 3, servers: 2},
	20: {modules: 5, servers: 4},
	30: {modules: 6, servers: 5},
	42: {modules: 7, servers: 6},
}

// DCellNodeCounts returns the node counts for which a DCell shape is tabulated, ascending
func DCellNodeCounts() []int {
	counts := make([]int, 0, len(dcellShapes))
	for count := range dcellShapes {
		counts = append(counts, count)
	}
	slices.Sort(counts)
	return counts
}

// TopoParams holds the read-only quantities derived from the endpoint count and options
type TopoParams struct {
	Family TopoFamily `json:"family" yaml:"family"`

	// NodeCount is the number of routers that endpoints attach to directly
	NodeCount  int `json:"nodecount" yaml:"nodecount"`
	NumRouters int `json:"numrouters" yaml:"numrouters"`

	// DCell
	Modules int `json:"modules,omitempty" yaml:"modules,omitempty"`
	Servers int `json:"servers,omitempty" yaml:"servers,omitempty"`

	// GoogleFatTree
	K        int `json:"k,omitempty" yaml:"k,omitempty"`
	NumHosts int `json:"numhosts,omitempty" yaml:"numhosts,omitempty"`

	// Datacenter
	NumSwitches int `json:"numswitches,omitempty" yaml:"numswitches,omitempty"`

	// how endpoints are bound to routers, and whether remainder endpoints must be DMA
	Bind           BindPlan `json:"bind" yaml:"bind"`
	StrictOverflow bool     `json:"strictoverflow" yaml:"strictoverflow"`
}

// DeriveTopoParams computes the TopoParams of the family for numNodes endpoints.
// A configuration error is returned when a derived quantity is not integral or
// the size is not supported.
func DeriveTopoParams(family TopoFamily, numNodes int, opts *TopoOptions) (*TopoParams, error) {
	var tp *TopoParams
	var err error

	switch family {
	case DCellFamily:
		tp, err = dcellParams(numNodes, opts)
	case FatTreeFamily:
		tp, err = fatTreeParams(numNodes, opts)
	case DatacenterFamily:
		tp, err = datacenterParams(numNodes, opts)
	default:
		return nil, fmt.Errorf("%w: unsupported topology %q", ErrConfig, family)
	}
	if err != nil {
		return nil, err
	}

	if opts.StrictOverflow != nil {
		tp.StrictOverflow = *opts.StrictOverflow
	}

	return tp, nil
}

func dcellParams(numNodes int, opts *TopoOptions) (*TopoParams, error) {
	var shape dcellShape

	if opts.DCellServers > 0 {
		// the general one-level DCell: n servers per module, n+1 modules
		n := opts.DCellServers
		if opts.NumCPUs != n*(n+1) {
			return nil, fmt.Errorf("%w: DCell with %d servers per module needs %d cpus, have %d",
				ErrConfig, n, n*(n+1), opts.NumCPUs)
		}
		shape = dcellShape{modules: n + 1, servers: n}
	} else {
		var present bool
		shape, present = dcellShapes[opts.NumCPUs]
		if !present {
			return nil, fmt.Errorf("%w: DCell does not support %d cpus, supported counts are %v",
				ErrConfig, opts.NumCPUs, DCellNodeCounts())
		}
	}

	tp := &TopoParams{
		Family:         DCellFamily,
		NodeCount:      opts.NumCPUs,
		NumRouters:     opts.NumCPUs + shape.modules,
		Modules:        shape.modules,
		Servers:        shape.servers,
		Bind:           UniformBindPlan(numNodes, opts.NumCPUs),
		StrictOverflow: false,
	}

	return tp, nil
}

func fatTreeParams(numNodes int, opts *TopoOptions) (*TopoParams, error) {
	k := opts.NumCPUs
	if k < 2 || k%2 != 0 {
		return nil, fmt.Errorf("%w: fat-tree fan-out k=%d must be even and at least 2", ErrConfig, k)
	}

	// k^3/4 hosts, k*k edge and aggregation routers, k*k/4 core routers
	numHosts := k * k * k / 4
	numRouters := numHosts + k*k + k*k/4

	// endpoints go one per router over every router; more endpoints than
	// routers is caught by the binder as a level overflow
	tp := &TopoParams{
		Family:         FatTreeFamily,
		NodeCount:      numHosts,
		NumRouters:     numRouters,
		K:              k,
		NumHosts:       numHosts,
		Bind:           OnePerRouterBindPlan(numRouters),
		StrictOverflow: true,
	}

	return tp, nil
}

func datacenterParams(numNodes int, opts *TopoOptions) (*TopoParams, error) {
	switches := opts.NumRows
	if numNodes < 1 {
		return nil, fmt.Errorf("%w: Datacenter needs at least one endpoint", ErrConfig)
	}
	if switches < 1 {
		return nil, fmt.Errorf("%w: Datacenter needs at least one switch, num_rows=%d", ErrConfig, switches)
	}
	if numNodes%switches != 0 {
		return nil, fmt.Errorf("%w: %d switches do not evenly divide %d routers", ErrConfig, switches, numNodes)
	}

	tp := &TopoParams{
		Family:         DatacenterFamily,
		NodeCount:      numNodes,
		NumRouters:     numNodes + switches,
		NumSwitches:    switches,
		Bind:           UniformBindPlan(numNodes, numNodes),
		StrictOverflow: true,
	}

	return tp, nil
}

// AllocateRouters creates routers 0..NumRouters-1 through the builder, in
// increasing id order, and returns the ids
func AllocateRouters(tp *TopoParams, nb NetworkBuilder) ([]int, error) {
	routers := make([]int, tp.NumRouters)
	for id := 0; id < tp.NumRouters; id += 1 {
		if err := nb.AddRouter(id); err != nil {
			return nil, fmt.Errorf("creating router %d: %w", id, err)
		}
		routers[id] = id
	}
	return routers, nil
}
