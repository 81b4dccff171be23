package noctopo

// int-links.go holds the builders of router-to-router links, one per
// topology family.  Each enumerates a fixed edge schedule; the order of
// enumeration fixes the link ids.

import (
	"fmt"

	"k8s.io/klog/v2"
)

// LinkAttrs are the latency and weight given to every internal link
type LinkAttrs struct {
	Latency int
	Weight  int
}

// IntLink connects two routers
type IntLink struct {
	ID      int
	RouterA int
	RouterB int
	Latency int
	Weight  int
}

// IntLinkBuilder enumerates the internal links of one topology family
type IntLinkBuilder func(tp *TopoParams, lc *LinkCounter, la LinkAttrs) ([]IntLink, error)

// intLinkBuilders dispatches a family to its builder
var intLinkBuilders = map[TopoFamily]IntLinkBuilder{
	DCellFamily:      BuildDCellLinks,
	FatTreeFamily:    BuildFatTreeLinks,
	DatacenterFamily: BuildDatacenterLinks,
}

// IntLinkBuilderFor returns the builder of the family
func IntLinkBuilderFor(family TopoFamily) (IntLinkBuilder, error) {
	builder, present := intLinkBuilders[family]
	if !present {
		return nil, fmt.Errorf("%w: no link builder for topology %q", ErrConfig, family)
	}
	return builder, nil
}

// linkSched accumulates the links of one builder, checking each endpoint pair
type linkSched struct {
	family     TopoFamily
	numRouters int
	lc         *LinkCounter
	la         LinkAttrs
	links      []IntLink
}

func (ls *linkSched) connect(rtrA, rtrB int) error {
	if rtrA == rtrB {
		return fmt.Errorf("%w: %s link would loop router %d onto itself", ErrInvariant, ls.family, rtrA)
	}
	if rtrA < 0 || rtrA >= ls.numRouters || rtrB < 0 || rtrB >= ls.numRouters {
		return fmt.Errorf("%w: %s link %d-%d outside routers 0..%d",
			ErrInvariant, ls.family, rtrA, rtrB, ls.numRouters-1)
	}

	link := IntLink{ID: ls.lc.Next(), RouterA: rtrA, RouterB: rtrB, Latency: ls.la.Latency, Weight: ls.la.Weight}
	ls.links = append(ls.links, link)
	klog.V(4).InfoS("internal link", "family", ls.family, "id", link.ID, "a", rtrA, "b", rtrB)

	return nil
}

// BuildDCellLinks wires each module as a star around its virtual router
// (router NodeCount+module), then joins modules pairwise: for i < j the
// router at Servers*i+j-1 connects to the router at Servers*j+i.
func BuildDCellLinks(tp *TopoParams, lc *LinkCounter, la LinkAttrs) ([]IntLink, error) {
	ls := &linkSched{family: tp.Family, numRouters: tp.NumRouters, lc: lc, la: la}
	servers := tp.Servers

	for i := 0; i < tp.Modules; i++ {
		for j := 0; j < servers; j++ {
			if err := ls.connect(servers*i+j, tp.NodeCount+i); err != nil {
				return nil, err
			}
		}
	}

	if tp.Modules > 1 {
		// both bounds are inclusive; only the j > i pairs produce links
		for i := 0; i <= tp.Modules; i++ {
			for j := 0; j <= servers; j++ {
				if j > i {
					if err := ls.connect(servers*i+j-1, servers*j+i); err != nil {
						return nil, err
					}
				}
			}
		}
	}

	return ls.links, nil
}

// BuildFatTreeLinks wires the three tiers of a k-ary fat tree.  Per pod, each
// edge router connects to its k/2 hosts and to the k/2 aggregation routers of
// the pod; each aggregation router a then connects to core routers a*k/2..a*k/2+k/2-1.
func BuildFatTreeLinks(tp *TopoParams, lc *LinkCounter, la LinkAttrs) ([]IntLink, error) {
	ls := &linkSched{family: tp.Family, numRouters: tp.NumRouters, lc: lc, la: la}
	k := tp.K
	half := k / 2

	for pod := 0; pod < k; pod++ {
		for edge := 0; edge < half; edge++ {
			edgeRtr := tp.NumHosts + pod*k + edge

			for host := 0; host < half; host++ {
				hostRtr := pod*(k*k/4) + edge*half + host
				if err := ls.connect(edgeRtr, hostRtr); err != nil {
					return nil, err
				}
			}

			for aggr := 0; aggr < half; aggr++ {
				aggrRtr := tp.NumHosts + pod*k + half + aggr
				if err := ls.connect(edgeRtr, aggrRtr); err != nil {
					return nil, err
				}
			}
		}

		for aggr := 0; aggr < half; aggr++ {
			aggrRtr := tp.NumHosts + pod*k + half + aggr
			for core := 0; core < half; core++ {
				coreRtr := tp.NumHosts + k*k + aggr*half + core
				if err := ls.connect(aggrRtr, coreRtr); err != nil {
					return nil, err
				}
			}
		}
	}

	return ls.links, nil
}

// BuildDatacenterLinks attaches each of the NodeCount routers to one switch,
// NodeCount/NumSwitches routers per switch in id order, then joins every pair of switches
func BuildDatacenterLinks(tp *TopoParams, lc *LinkCounter, la LinkAttrs) ([]IntLink, error) {
	if tp.NumSwitches < 1 || tp.NodeCount%tp.NumSwitches != 0 {
		return nil, fmt.Errorf("%w: %d switches do not evenly divide %d routers",
			ErrConfig, tp.NumSwitches, tp.NodeCount)
	}

	ls := &linkSched{family: tp.Family, numRouters: tp.NumRouters, lc: lc, la: la}
	perSwitch := tp.NodeCount / tp.NumSwitches

	for rtr := 0; rtr < tp.NodeCount; rtr++ {
		if err := ls.connect(rtr, tp.NodeCount+rtr/perSwitch); err != nil {
			return nil, err
		}
	}

	for s := 0; s < tp.NumSwitches; s++ {
		for t := s + 1; t < tp.NumSwitches; t++ {
			if err := ls.connect(tp.NodeCount+s, tp.NodeCount+t); err != nil {
				return nil, err
			}
		}
	}

	return ls.links, nil
}
