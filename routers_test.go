package noctopo

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTopoFamilyFromStr(t *testing.T) {
	for _, family := range TopoFamilies {
		got, err := TopoFamilyFromStr(string(family))
		require.NoError(t, err)
		assert.Equal(t, family, got)
	}

	_, err := TopoFamilyFromStr("Mesh_XY")
	assert.ErrorIs(t, err, ErrConfig)
}

func TestDeriveTopoParams_DCellTable(t *testing.T) {
	tests := []struct {
		nodeCount int
		modules   int
		servers   int
	}{
		{2, 2, 1},
		{6, 3, 2},
		{20, 5, 4},
		{30, 6, 5},
		{42, 7, 6},
	}

	for _, tt := range tests {
		opts := DefaultTopoOptions("DCell", tt.nodeCount)
		tp, err := DeriveTopoParams(DCellFamily, tt.nodeCount, opts)
		require.NoError(t, err)

		assert.Equal(t, tt.modules, tp.Modules)
		assert.Equal(t, tt.servers, tp.Servers)
		assert.Equal(t, tt.nodeCount, tp.NodeCount)
		assert.Equal(t, tt.nodeCount+tt.modules, tp.NumRouters)
		assert.Equal(t, tt.nodeCount, tp.Bind.Divisor)
		assert.False(t, tp.StrictOverflow)
	}

	assert.Equal(t, []int{2, 6, 20, 30, 42}, DCellNodeCounts())
}

func TestDeriveTopoParams_DCellUnsupported(t *testing.T) {
	opts := DefaultTopoOptions("DCell", 8)
	_, err := DeriveTopoParams(DCellFamily, 8, opts)
	assert.ErrorIs(t, err, ErrConfig)
}

func TestDeriveTopoParams_DCellServers(t *testing.T) {
	opts := DefaultTopoOptions("DCell", 12)
	opts.DCellServers = 3

	tp, err := DeriveTopoParams(DCellFamily, 12, opts)
	require.NoError(t, err)
	assert.Equal(t, 4, tp.Modules)
	assert.Equal(t, 3, tp.Servers)
	assert.Equal(t, 16, tp.NumRouters)

	opts.NumCPUs = 10
	_, err = DeriveTopoParams(DCellFamily, 10, opts)
	assert.ErrorIs(t, err, ErrConfig)
}

func TestDeriveTopoParams_FatTree(t *testing.T) {
	opts := DefaultTopoOptions("GoogleFatTree", 4)

	tp, err := DeriveTopoParams(FatTreeFamily, 8, opts)
	require.NoError(t, err)
	assert.Equal(t, 4, tp.K)
	assert.Equal(t, 16, tp.NumHosts)
	assert.Equal(t, 36, tp.NumRouters)
	assert.Equal(t, OnePerRouterBindPlan(36), tp.Bind)
	assert.True(t, tp.StrictOverflow)

	for _, k := range []int{0, 3, 5} {
		opts.NumCPUs = k
		_, err := DeriveTopoParams(FatTreeFamily, 8, opts)
		assert.ErrorIs(t, err, ErrConfig, "k=%d", k)
	}
}

func TestDeriveTopoParams_Datacenter(t *testing.T) {
	opts := DefaultTopoOptions("Datacenter", 4)
	opts.NumRows = 2

	tp, err := DeriveTopoParams(DatacenterFamily, 8, opts)
	require.NoError(t, err)
	assert.Equal(t, 8, tp.NodeCount)
	assert.Equal(t, 2, tp.NumSwitches)
	assert.Equal(t, 10, tp.NumRouters)
	assert.Equal(t, BindPlan{Divisor: 8, CntrlsPerRouter: 1, Remainder: 0}, tp.Bind)

	_, err = DeriveTopoParams(DatacenterFamily, 7, opts)
	assert.ErrorIs(t, err, ErrConfig)

	opts.NumRows = 0
	_, err = DeriveTopoParams(DatacenterFamily, 8, opts)
	assert.ErrorIs(t, err, ErrConfig)
}

func TestDeriveTopoParams_StrictOverride(t *testing.T) {
	strict := true
	opts := DefaultTopoOptions("DCell", 6)
	opts.StrictOverflow = &strict

	tp, err := DeriveTopoParams(DCellFamily, 6, opts)
	require.NoError(t, err)
	assert.True(t, tp.StrictOverflow)
}

type recordingBuilder struct {
	routers  []int
	extIDs   []int
	intIDs   []int
	failOnID int
}

func (rb *recordingBuilder) AddRouter(id int) error {
	rb.routers = append(rb.routers, id)
	return nil
}

func (rb *recordingBuilder) AddExtLink(id int, endpt Endpoint, router int) error {
	rb.extIDs = append(rb.extIDs, id)
	return nil
}

func (rb *recordingBuilder) AddIntLink(id, routerA, routerB, latency, weight int) error {
	if id == rb.failOnID {
		return assert.AnError
	}
	rb.intIDs = append(rb.intIDs, id)
	return nil
}

func TestAllocateRouters(t *testing.T) {
	rb := &recordingBuilder{failOnID: -1}
	tp := &TopoParams{NumRouters: 5}

	routers, err := AllocateRouters(tp, rb)
	require.NoError(t, err)
	assert.Equal(t, []int{0, 1, 2, 3, 4}, routers)
	assert.Equal(t, []int{0, 1, 2, 3, 4}, rb.routers)
}
