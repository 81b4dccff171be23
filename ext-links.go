package noctopo

// ext-links.go holds the link identifier counter shared by all links of a
// network, and the binding of endpoints to routers through external links

import (
	"fmt"

	"k8s.io/klog/v2"
)

// LinkCounter issues link ids.  One counter serves a whole topology
// construction, so that external and internal links share a single id space.
type LinkCounter struct {
	next int
}

// Next returns an unused id and advances the counter
func (lc *LinkCounter) Next() int {
	id := lc.next
	lc.next += 1
	return id
}

// Count returns the number of ids issued so far
func (lc *LinkCounter) Count() int {
	return lc.next
}

// ExtLink connects an endpoint to the router it attaches to
type ExtLink struct {
	ID     int
	Endpt  Endpoint
	Router int
}

// BindExtLinks creates one external link per endpoint following the bind plan.
// Endpoints of the network part go to router (i mod Divisor); the remainder go
// to router 0.  When strict is set every remainder endpoint must be a DMA
// controller.  Link ids come from lc, network part first.
func BindExtLinks(nodes []Endpoint, plan BindPlan, numRouters int, strict bool, lc *LinkCounter) ([]ExtLink, error) {
	network, remainder := plan.Partition(nodes)

	if len(network) > 0 && (plan.Divisor <= 0 || plan.Divisor > numRouters) {
		return nil, fmt.Errorf("%w: grouping divisor %d out of range for %d routers",
			ErrConfig, plan.Divisor, numRouters)
	}
	if len(remainder) > 0 && numRouters < 1 {
		return nil, fmt.Errorf("%w: no router 0 for %d remainder endpoints", ErrConfig, len(remainder))
	}

	extLinks := make([]ExtLink, 0, len(nodes))

	for idx, endpt := range network {
		cntrlLevel := idx / plan.Divisor
		routerID := idx % plan.Divisor
		if cntrlLevel >= plan.CntrlsPerRouter {
			return nil, fmt.Errorf("%w: endpoint %s at level %d on router %d, limit is %d per router",
				ErrInvariant, endpt.EndptName(), cntrlLevel, routerID, plan.CntrlsPerRouter)
		}
		extLinks = append(extLinks, ExtLink{ID: lc.Next(), Endpt: endpt, Router: routerID})
	}

	// remaining endpoints all attach to router 0
	for idx, endpt := range remainder {
		if idx >= plan.Remainder {
			return nil, fmt.Errorf("%w: remainder index %d beyond remainder count %d",
				ErrInvariant, idx, plan.Remainder)
		}
		if strict && !IsOverflowClass(endpt) {
			return nil, fmt.Errorf("%w: remainder endpoint %s is %s, expected %s",
				ErrInvariant, endpt.EndptName(), endpt.EndptClass(), DMACntrl)
		}
		extLinks = append(extLinks, ExtLink{ID: lc.Next(), Endpt: endpt, Router: 0})
	}

	klog.V(2).InfoS("bound endpoints", "network", len(network), "remainder", len(remainder),
		"divisor", plan.Divisor, "perRouter", plan.CntrlsPerRouter)

	return extLinks, nil
}
