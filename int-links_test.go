package noctopo

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type pair struct{ a, b int }

func linkPairs(links []IntLink) []pair {
	pairs := make([]pair, len(links))
	for idx, il := range links {
		pairs[idx] = pair{il.RouterA, il.RouterB}
	}
	return pairs
}

func dcellParamsFor(t *testing.T, n int) *TopoParams {
	t.Helper()
	tp, err := DeriveTopoParams(DCellFamily, n, DefaultTopoOptions("DCell", n))
	require.NoError(t, err)
	return tp
}

func TestBuildDCellLinks_TwoNodes(t *testing.T) {
	tp := dcellParamsFor(t, 2)

	// the two external links took ids 0 and 1
	lc := &LinkCounter{next: 2}
	links, err := BuildDCellLinks(tp, lc, LinkAttrs{Latency: 10, Weight: 1})
	require.NoError(t, err)

	assert.Equal(t, []pair{{0, 2}, {1, 3}, {0, 1}}, linkPairs(links))
	for idx, il := range links {
		assert.Equal(t, 2+idx, il.ID)
		assert.Equal(t, 10, il.Latency)
		assert.Equal(t, 1, il.Weight)
	}
}

func TestBuildDCellLinks_SixNodes(t *testing.T) {
	tp := dcellParamsFor(t, 6)

	links, err := BuildDCellLinks(tp, new(LinkCounter), LinkAttrs{Latency: 1, Weight: 1})
	require.NoError(t, err)

	assert.Equal(t, []pair{
		{0, 6}, {1, 6}, {2, 7}, {3, 7}, {4, 8}, {5, 8},
		{0, 2}, {1, 4}, {3, 5},
	}, linkPairs(links))
}

func TestBuildDCellLinks_EveryServerHasOneCrossLink(t *testing.T) {
	for _, n := range DCellNodeCounts() {
		tp := dcellParamsFor(t, n)

		links, err := BuildDCellLinks(tp, new(LinkCounter), LinkAttrs{Latency: 1, Weight: 1})
		require.NoError(t, err)

		crossLinks := tp.Modules * tp.Servers / 2
		assert.Len(t, links, n+crossLinks, "node count %d", n)

		degree := make(map[int]int)
		for _, il := range links {
			degree[il.RouterA] += 1
			degree[il.RouterB] += 1
		}
		for rtr := 0; rtr < n; rtr++ {
			assert.Equal(t, 2, degree[rtr], "node count %d server %d", n, rtr)
		}
		for mod := 0; mod < tp.Modules; mod++ {
			assert.Equal(t, tp.Servers, degree[n+mod], "node count %d module %d", n, mod)
		}
	}
}

func TestBuildFatTreeLinks_K4(t *testing.T) {
	tp, err := DeriveTopoParams(FatTreeFamily, 8, DefaultTopoOptions("GoogleFatTree", 4))
	require.NoError(t, err)

	links, err := BuildFatTreeLinks(tp, new(LinkCounter), LinkAttrs{Latency: 1, Weight: 1})
	require.NoError(t, err)

	// per pod: 2 edges x 2 hosts, 2 edges x 2 aggregations, 2 aggregations x 2 cores
	require.Len(t, links, 48)

	// the first pod starts with edge router 16 fanning out to hosts 0, 1 and aggregations 18, 19
	assert.Equal(t, []pair{{16, 0}, {16, 1}, {16, 18}, {16, 19}}, linkPairs(links[:4]))

	degree := make(map[int]int)
	for _, il := range links {
		degree[il.RouterA] += 1
		degree[il.RouterB] += 1
	}
	for rtr := 0; rtr < tp.NumHosts; rtr++ {
		assert.Equal(t, 1, degree[rtr], "host %d", rtr)
	}
	for rtr := tp.NumHosts; rtr < tp.NumRouters; rtr++ {
		assert.Equal(t, 4, degree[rtr], "router %d", rtr)
	}
}

func TestBuildDatacenterLinks(t *testing.T) {
	opts := DefaultTopoOptions("Datacenter", 4)
	opts.NumRows = 2
	tp, err := DeriveTopoParams(DatacenterFamily, 8, opts)
	require.NoError(t, err)

	links, err := BuildDatacenterLinks(tp, new(LinkCounter), LinkAttrs{Latency: 1, Weight: 1})
	require.NoError(t, err)

	assert.Equal(t, []pair{
		{0, 8}, {1, 8}, {2, 8}, {3, 8},
		{4, 9}, {5, 9}, {6, 9}, {7, 9},
		{8, 9},
	}, linkPairs(links))

	tp.NumSwitches = 3
	_, err = BuildDatacenterLinks(tp, new(LinkCounter), LinkAttrs{Latency: 1, Weight: 1})
	assert.ErrorIs(t, err, ErrConfig)
}

func TestLinkSched_RejectsSelfLoop(t *testing.T) {
	ls := &linkSched{family: DCellFamily, numRouters: 3, lc: new(LinkCounter)}

	assert.ErrorIs(t, ls.connect(1, 1), ErrInvariant)
	assert.ErrorIs(t, ls.connect(0, 3), ErrInvariant)
	assert.NoError(t, ls.connect(0, 2))
	assert.Equal(t, 1, ls.lc.Count())
}

func TestIntLinkBuilderFor(t *testing.T) {
	for _, family := range TopoFamilies {
		_, err := IntLinkBuilderFor(family)
		assert.NoError(t, err)
	}
	_, err := IntLinkBuilderFor(TopoFamily("Torus"))
	assert.ErrorIs(t, err, ErrConfig)
}
