package noctopo

// routes.go builds a graph of the routers of a generated network and answers
// questions about it: connectivity, routes, hop distances, diameter.
//
// The approach is to convert the network's internal links into the data structures
// of a graph package that has built-in path discovery algorithms.  Each edge is
// weighted by its link weight, so a shortest path is the one the simulator's
// weight-based routing would prefer.  Dijkstra computes a tree of shortest paths
// from a named router; trees are cached by root, and a path from dst to src
// is reversed when only a tree rooted in dst is known.

import (
	"fmt"
	"math"

	"golang.org/x/exp/slices"
	"gonum.org/v1/gonum/graph"
	"gonum.org/v1/gonum/graph/path"
	"gonum.org/v1/gonum/graph/simple"
	"gonum.org/v1/gonum/graph/topo"
)

// rtrPair is an unordered pair of router ids, smaller first
type rtrPair struct {
	a, b int
}

func makeRtrPair(a, b int) rtrPair {
	if b < a {
		a, b = b, a
	}
	return rtrPair{a: a, b: b}
}

// RouterGraph is the graph representation of a network's routers and internal links
type RouterGraph struct {
	net       *Network
	connGraph *simple.WeightedUndirectedGraph

	// internal link joining each connected router pair, the first one found
	linkByPair map[rtrPair]IntLink

	// shortest path trees, by root router id
	cachedSP map[int]path.Shortest
}

// BuildRouterGraph returns the graph of the network's routers, one edge per internal link
func BuildRouterGraph(net *Network) (*RouterGraph, error) {
	rg := new(RouterGraph)
	rg.net = net
	rg.connGraph = simple.NewWeightedUndirectedGraph(0, math.Inf(1))
	rg.linkByPair = make(map[rtrPair]IntLink)
	rg.cachedSP = make(map[int]path.Shortest)

	for _, id := range net.Routers {
		rg.connGraph.AddNode(simple.Node(id))
	}

	for _, il := range net.IntLinks {
		if il.RouterA == il.RouterB {
			return nil, fmt.Errorf("%w: internal link %d loops router %d", ErrInvariant, il.ID, il.RouterA)
		}
		if rg.connGraph.Node(int64(il.RouterA)) == nil || rg.connGraph.Node(int64(il.RouterB)) == nil {
			return nil, fmt.Errorf("%w: internal link %d names unknown router", ErrInvariant, il.ID)
		}

		pair := makeRtrPair(il.RouterA, il.RouterB)
		if _, present := rg.linkByPair[pair]; present {
			continue
		}
		rg.linkByPair[pair] = il

		weightedEdge := simple.WeightedEdge{F: simple.Node(il.RouterA), T: simple.Node(il.RouterB), W: float64(il.Weight)}
		rg.connGraph.SetWeightedEdge(weightedEdge)
	}

	return rg, nil
}

// Components returns the connected components of the router graph, each as a
// sorted list of router ids, components ordered by their smallest id
func (rg *RouterGraph) Components() [][]int {
	ccs := topo.ConnectedComponents(rg.connGraph)

	comps := make([][]int, 0, len(ccs))
	for _, cc := range ccs {
		comp := convertNodeSeq(cc)
		slices.Sort(comp)
		comps = append(comps, comp)
	}
	slices.SortFunc(comps, func(x, y []int) int { return x[0] - y[0] })

	return comps
}

// Connected reports whether every router can reach every other
func (rg *RouterGraph) Connected() bool {
	return len(rg.net.Routers) < 2 || len(rg.Components()) == 1
}

// getSPTree returns the shortest path tree rooted in router 'from', computing and caching it if needed
func (rg *RouterGraph) getSPTree(from int) path.Shortest {
	spTree, present := rg.cachedSP[from]
	if present {
		return spTree
	}

	spTree = path.DijkstraFrom(simple.Node(from), rg.connGraph)
	rg.cachedSP[from] = spTree

	return spTree
}

// RouterRoute returns the routers on a least-weight path from src to dst,
// inclusive of both, or nil if dst cannot be reached
func (rg *RouterGraph) RouterRoute(src, dst int) []int {
	if src == dst {
		return []int{src}
	}

	// by symmetry a tree rooted in dst gives the path reversed
	if _, present := rg.cachedSP[src]; !present {
		if spTree, present := rg.cachedSP[dst]; present {
			revNodeSeq, _ := spTree.To(int64(src))
			route := convertNodeSeq(revNodeSeq)
			slices.Reverse(route)
			return nilIfEmpty(route)
		}
	}

	nodeSeq, _ := rg.getSPTree(src).To(int64(dst))
	return nilIfEmpty(convertNodeSeq(nodeSeq))
}

// HopDistance returns the number of internal links on the route from src to dst,
// and false if there is no route
func (rg *RouterGraph) HopDistance(src, dst int) (int, bool) {
	route := rg.RouterRoute(src, dst)
	if route == nil {
		return 0, false
	}
	return len(route) - 1, true
}

// Diameter returns the largest hop distance between any two connected routers
func (rg *RouterGraph) Diameter() int {
	diameter := 0
	for _, src := range rg.net.Routers {
		for _, dst := range rg.net.Routers {
			if dst <= src {
				continue
			}
			hops, ok := rg.HopDistance(src, dst)
			if ok && hops > diameter {
				diameter = hops
			}
		}
	}
	return diameter
}

// LinkBetween returns the internal link joining two routers
func (rg *RouterGraph) LinkBetween(a, b int) (IntLink, bool) {
	il, present := rg.linkByPair[makeRtrPair(a, b)]
	return il, present
}

// convertNodeSeq extracts router ids from a sequence of graph nodes
func convertNodeSeq(nsQ []graph.Node) []int {
	rtn := make([]int, 0, len(nsQ))
	for _, node := range nsQ {
		rtn = append(rtn, int(node.ID()))
	}
	return rtn
}

func nilIfEmpty(route []int) []int {
	if len(route) == 0 {
		return nil
	}
	return route
}

// ValidateNetwork checks the structural invariants of a generated network:
// link ids are 0..n-1 without gaps or repeats, every endpoint appears in one
// external link, internal links join distinct known routers, and the router graph is connected
func ValidateNetwork(net *Network) error {
	errs := []error{}
	total := net.TotalLinks()

	seen := make([]bool, total)
	markID := func(id int) {
		if id < 0 || id >= total {
			errs = append(errs, fmt.Errorf("link id %d outside 0..%d", id, total-1))
			return
		}
		if seen[id] {
			errs = append(errs, fmt.Errorf("link id %d repeated", id))
		}
		seen[id] = true
	}

	endpts := make(map[string]int)
	for _, el := range net.ExtLinks {
		markID(el.ID)
		endpts[el.Endpt.EndptName()] += 1
		if el.Router < 0 || el.Router >= len(net.Routers) {
			errs = append(errs, fmt.Errorf("external link %d names unknown router %d", el.ID, el.Router))
		}
	}
	for name, count := range endpts {
		if count > 1 {
			errs = append(errs, fmt.Errorf("endpoint %s in %d external links", name, count))
		}
	}

	for _, il := range net.IntLinks {
		markID(il.ID)
	}

	if err := ReportErrs(errs); err != nil {
		return fmt.Errorf("%w: %s", ErrInvariant, err.Error())
	}

	rg, err := BuildRouterGraph(net)
	if err != nil {
		return err
	}
	if !rg.Connected() {
		return fmt.Errorf("%w: router graph has %d components", ErrInvariant, len(rg.Components()))
	}

	return nil
}
