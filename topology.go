package noctopo

// topology.go ties the pieces together: it partitions the endpoints, sizes
// and creates the routers, binds endpoints with external links, runs the
// family's internal link builder, and hands the results to the host

import (
	"errors"
	"fmt"
	"path"
	"strings"

	"github.com/google/uuid"
	"k8s.io/klog/v2"
)

// ErrConfig marks configuration errors: sizes that do not divide, unsupported
// counts, odd fan-out
var ErrConfig = errors.New("topology configuration error")

// ErrInvariant marks a violated construction invariant, which indicates a
// mismatch between the caller's endpoints and the configuration
var ErrInvariant = errors.New("topology invariant violated")

// NetworkBuilder is the host's factory for network objects.  The generator
// calls AddRouter for ids 0..n-1 in order, then AddExtLink and AddIntLink in
// increasing link id order.
type NetworkBuilder interface {
	AddRouter(id int) error
	AddExtLink(id int, endpt Endpoint, router int) error
	AddIntLink(id, routerA, routerB, latency, weight int) error
}

// Network is the result of topology construction
type Network struct {
	Params   TopoParams
	Routers  []int
	ExtLinks []ExtLink
	IntLinks []IntLink
}

// TotalLinks returns the number of external plus internal links
func (net *Network) TotalLinks() int {
	return len(net.ExtLinks) + len(net.IntLinks)
}

// PlanTopology derives the routers and links for the endpoints under the
// options, without creating any host objects
func PlanTopology(nodes []Endpoint, opts *TopoOptions) (*Network, error) {
	if err := opts.Validate(); err != nil {
		return nil, err
	}

	family, err := TopoFamilyFromStr(opts.Topology)
	if err != nil {
		return nil, err
	}

	tp, err := DeriveTopoParams(family, len(nodes), opts)
	if err != nil {
		return nil, err
	}
	klog.V(2).InfoS("derived topology parameters", "family", tp.Family, "endpoints", len(nodes),
		"routers", tp.NumRouters, "nodeCount", tp.NodeCount)

	net := &Network{Params: *tp}
	net.Routers = make([]int, tp.NumRouters)
	for id := range net.Routers {
		net.Routers[id] = id
	}

	// external links take the first ids
	lc := new(LinkCounter)

	net.ExtLinks, err = BindExtLinks(nodes, tp.Bind, tp.NumRouters, tp.StrictOverflow, lc)
	if err != nil {
		return nil, err
	}

	builder, err := IntLinkBuilderFor(family)
	if err != nil {
		return nil, err
	}

	net.IntLinks, err = builder(tp, lc, opts.LinkAttrs())
	if err != nil {
		return nil, err
	}

	if lc.Count() != net.TotalLinks() {
		return nil, fmt.Errorf("%w: issued %d link ids for %d links", ErrInvariant, lc.Count(), net.TotalLinks())
	}

	klog.V(2).InfoS("planned topology", "family", tp.Family, "extLinks", len(net.ExtLinks),
		"intLinks", len(net.IntLinks))

	return net, nil
}

// Realize creates the routers and links of the network through the host's builder
func (net *Network) Realize(nb NetworkBuilder) error {
	if _, err := AllocateRouters(&net.Params, nb); err != nil {
		return err
	}

	for _, el := range net.ExtLinks {
		if err := nb.AddExtLink(el.ID, el.Endpt, el.Router); err != nil {
			return fmt.Errorf("creating external link %d: %w", el.ID, err)
		}
	}

	for _, il := range net.IntLinks {
		if err := nb.AddIntLink(il.ID, il.RouterA, il.RouterB, il.Latency, il.Weight); err != nil {
			return fmt.Errorf("creating internal link %d: %w", il.ID, err)
		}
	}

	return nil
}

// MakeTopology plans the topology for the endpoints and options and realizes it through nb
func MakeTopology(nodes []Endpoint, opts *TopoOptions, nb NetworkBuilder) (*Network, error) {
	net, err := PlanTopology(nodes, opts)
	if err != nil {
		return nil, err
	}

	if err := net.Realize(nb); err != nil {
		return nil, err
	}

	return net, nil
}

// fingerprintSpace is the namespace of topology fingerprints
var fingerprintSpace = uuid.NewSHA1(uuid.NameSpaceURL, []byte("github.com/iti/noctopo/topology"))

// Fingerprint returns a name-based UUID of the network's edge schedule.  Two
// networks built from identical inputs have identical fingerprints.
func (net *Network) Fingerprint() uuid.UUID {
	var sb strings.Builder

	fmt.Fprintf(&sb, "%s;%d;", net.Params.Family, len(net.Routers))
	for _, el := range net.ExtLinks {
		fmt.Fprintf(&sb, "e%d:%s:%d;", el.ID, el.Endpt.EndptName(), el.Router)
	}
	for _, il := range net.IntLinks {
		fmt.Fprintf(&sb, "i%d:%d:%d:%d:%d;", il.ID, il.RouterA, il.RouterB, il.Latency, il.Weight)
	}

	return uuid.NewSHA1(fingerprintSpace, []byte(sb.String()))
}

// BuildTopoFromFiles builds a topology from input files.  syn binds the key
// "opts" to the options file and, optionally, "cntrls" to a controller list.
// Without a controller list the controllers are made from the option counts.
func BuildTopoFromFiles(syn map[string]string) (*Network, *TopoCfgFrame, error) {
	var empty []byte

	optsFile, present := syn["opts"]
	if !present || len(optsFile) == 0 {
		return nil, nil, fmt.Errorf("no topology options file named")
	}

	ok, err := CheckReadableFiles([]string{optsFile, syn["cntrls"]})
	if !ok {
		return nil, nil, err
	}

	opts, err := ReadTopoOptions(optsFile, UseYAMLExt(optsFile), empty)
	if err != nil {
		return nil, nil, err
	}

	var nodes []Endpoint
	if cntrlFile := syn["cntrls"]; len(cntrlFile) > 0 {
		cl, cerr := ReadCntrlList(cntrlFile, UseYAMLExt(cntrlFile), empty)
		if cerr != nil {
			return nil, nil, cerr
		}
		nodes = cl.Endpoints()
	} else {
		nodes = MakeCntrls(opts.CntrlCounts())
	}

	name := fmt.Sprintf("%s-%d", opts.Topology, opts.NumCPUs)
	tcf := CreateTopoCfgFrame(name)

	net, err := MakeTopology(nodes, opts, tcf)
	if err != nil {
		return nil, nil, err
	}

	return net, tcf, nil
}

// UseYAMLExt reports whether the file name's extension selects yaml over json
func UseYAMLExt(filename string) bool {
	ext := path.Ext(filename)
	return ext == ".yaml" || ext == ".YAML" || ext == ".yml"
}
