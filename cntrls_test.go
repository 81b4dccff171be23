package noctopo

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func endptNames(endpts []Endpoint) []string {
	names := make([]string, len(endpts))
	for idx, endpt := range endpts {
		names[idx] = endpt.EndptName()
	}
	return names
}

func TestMakeCntrls_Order(t *testing.T) {
	cntrls := MakeCntrls(CntrlCounts{L1Caches: 2, L2Caches: 1, Dirs: 1, DMAs: 1})

	assert.Equal(t, []string{
		"L1Cache_Controller.0",
		"L1Cache_Controller.1",
		"L2Cache_Controller.0",
		"Directory_Controller.0",
		"DMA_Controller.0",
	}, endptNames(cntrls))
	assert.True(t, IsOverflowClass(cntrls[4]))
	assert.False(t, IsOverflowClass(cntrls[0]))
}

func TestCreateCntrl_Name(t *testing.T) {
	assert.Equal(t, "DMA_Controller.3", CreateCntrl(DMACntrl, 3, "").Name)
	assert.Equal(t, "dma", CreateCntrl(DMACntrl, 3, "dma").Name)
}

func TestUniformBindPlan(t *testing.T) {
	tests := []struct {
		name    string
		nodes   int
		divisor int
		want    BindPlan
	}{
		{"even", 8, 4, BindPlan{Divisor: 4, CntrlsPerRouter: 2, Remainder: 0}},
		{"remainder", 10, 4, BindPlan{Divisor: 4, CntrlsPerRouter: 2, Remainder: 2}},
		{"fewer nodes than divisor", 3, 4, BindPlan{Divisor: 4, CntrlsPerRouter: 0, Remainder: 3}},
		{"zero divisor", 5, 0, BindPlan{Divisor: 0, CntrlsPerRouter: 0, Remainder: 5}},
		{"no nodes", 0, 4, BindPlan{Divisor: 4, CntrlsPerRouter: 0, Remainder: 0}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, UniformBindPlan(tt.nodes, tt.divisor))
		})
	}
}

func TestPartitionNodes_KeepsOrder(t *testing.T) {
	nodes := MakeCntrls(CntrlCounts{L1Caches: 4, DMAs: 2})

	network, remainder := PartitionNodes(nodes, 4)

	assert.Equal(t, endptNames(nodes[:4]), endptNames(network))
	assert.Equal(t, endptNames(nodes[4:]), endptNames(remainder))

	// the input is left alone
	network[0] = nodes[5]
	assert.Equal(t, "L1Cache_Controller.0", nodes[0].EndptName())
}

func TestBindExtLinks_RemainderToRouterZero(t *testing.T) {
	nodes := MakeCntrls(CntrlCounts{L1Caches: 4, DMAs: 1})
	plan := UniformBindPlan(len(nodes), 4)
	lc := new(LinkCounter)

	extLinks, err := BindExtLinks(nodes, plan, 4, true, lc)
	require.NoError(t, err)
	require.Len(t, extLinks, 5)

	for idx, el := range extLinks[:4] {
		assert.Equal(t, idx, el.ID)
		assert.Equal(t, idx, el.Router)
	}
	assert.Equal(t, 4, extLinks[4].ID)
	assert.Equal(t, 0, extLinks[4].Router)
	assert.Equal(t, "DMA_Controller.0", extLinks[4].Endpt.EndptName())
	assert.Equal(t, 5, lc.Count())
}

func TestBindExtLinks_StrictRemainderMustBeDMA(t *testing.T) {
	nodes := MakeCntrls(CntrlCounts{L1Caches: 5})
	plan := UniformBindPlan(len(nodes), 4)

	_, err := BindExtLinks(nodes, plan, 4, true, new(LinkCounter))
	assert.ErrorIs(t, err, ErrInvariant)

	extLinks, err := BindExtLinks(nodes, plan, 4, false, new(LinkCounter))
	require.NoError(t, err)
	assert.Equal(t, 0, extLinks[4].Router)
}

func TestBindExtLinks_LevelOverflow(t *testing.T) {
	nodes := MakeCntrls(CntrlCounts{L1Caches: 3})

	_, err := BindExtLinks(nodes, OnePerRouterBindPlan(2), 2, true, new(LinkCounter))
	assert.ErrorIs(t, err, ErrInvariant)
}

func TestBindExtLinks_DivisorBeyondRouters(t *testing.T) {
	nodes := MakeCntrls(CntrlCounts{L1Caches: 4})

	_, err := BindExtLinks(nodes, UniformBindPlan(4, 4), 2, false, new(LinkCounter))
	assert.ErrorIs(t, err, ErrConfig)
}

func TestCntrlList_Validate(t *testing.T) {
	cl := &CntrlList{ListName: "bad", Cntrls: []Cntrl{
		{Name: "a", Class: L1CacheCntrl},
		{Name: "a", Class: DirCntrl},
		{Name: "b", Class: "Sequencer"},
	}}

	err := cl.Validate()
	require.ErrorIs(t, err, ErrConfig)
	assert.Contains(t, err.Error(), "duplicated")
	assert.Contains(t, err.Error(), "Sequencer")
}

func TestReadCntrlList_FromBytes(t *testing.T) {
	dict := []byte(`
listname: small
cntrls:
  - name: L1Cache_Controller.0
    class: L1Cache_Controller
    version: 0
  - name: DMA_Controller.0
    class: DMA_Controller
    version: 0
`)

	cl, err := ReadCntrlList("ignored.yaml", true, dict)
	require.NoError(t, err)
	assert.Equal(t, "small", cl.ListName)

	endpts := cl.Endpoints()
	require.Len(t, endpts, 2)
	assert.Equal(t, DMACntrl, endpts[1].EndptClass())
}
