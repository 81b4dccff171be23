package noctopo

import (
	"bytes"
	"path/filepath"
	"strings"
	"testing"

	"github.com/iti/evt/vrtime"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"
)

func sumActivity(activity map[int]int, keep func(id int) bool) int {
	total := 0
	for id, count := range activity {
		if keep(id) {
			total += count
		}
	}
	return total
}

func TestRunTrafficProbe_Accounting(t *testing.T) {
	net := planFor(t, DefaultTopoOptions("DCell", 6))
	rg, err := BuildRouterGraph(net)
	require.NoError(t, err)

	cfg := DefaultProbeCfg(200)
	cfg.StreamName = "accounting"
	cfg.Trace = true

	stats, tm, err := RunTrafficProbe(net, cfg)
	require.NoError(t, err)

	assert.Equal(t, 200, stats.Packets)
	assert.Equal(t, 200, stats.Delivered)
	assert.Zero(t, stats.Unroutable)
	assert.LessOrEqual(t, stats.MaxHops, rg.Diameter())

	numExt := len(net.ExtLinks)
	extTraversals := sumActivity(stats.LinkActivity, func(id int) bool { return id < numExt })
	intTraversals := sumActivity(stats.LinkActivity, func(id int) bool { return id >= numExt })
	routerVisits := sumActivity(stats.RouterActivity, func(int) bool { return true })

	// in and out on external links, one more router than internal links per packet
	assert.Equal(t, 2*stats.Delivered, extTraversals)
	assert.Equal(t, intTraversals+stats.Delivered, routerVisits)

	// a cycle on each of the two external links and at least one router cycle
	assert.GreaterOrEqual(t, stats.MeanLatencyCycles, 3.0)
	assert.Greater(t, stats.SimSeconds, 0.0)

	// inject, one record per router and internal link, eject, deliver
	assert.Equal(t, routerVisits+intTraversals+3*stats.Delivered, tm.NumTraces())
	assert.Len(t, tm.Traces, 200)
	assert.Len(t, tm.NameByID, net.TotalLinks()+len(net.Routers))
}

func TestRunTrafficProbe_FatTreeLatency(t *testing.T) {
	opts := DefaultTopoOptions("GoogleFatTree", 4)
	opts.LinkLatency = 2
	net := planFor(t, opts)

	stats, _, err := RunTrafficProbe(net, DefaultProbeCfg(100))
	require.NoError(t, err)
	require.Equal(t, 100, stats.Delivered)

	// at most six internal links of two cycles each, seven router cycles and
	// the two external links
	assert.LessOrEqual(t, stats.MaxHops, 6)
	assert.LessOrEqual(t, stats.MeanLatencyCycles, 21.0+1e-9)
	assert.GreaterOrEqual(t, stats.MeanLatencyCycles, 3.0)
	assert.NotEmpty(t, stats.BusiestLinks())
}

func TestRunTrafficProbe_Unroutable(t *testing.T) {
	a := CreateCntrl(L1CacheCntrl, 0, "")
	b := CreateCntrl(L1CacheCntrl, 1, "")
	net := &Network{
		Params:   TopoParams{Family: DCellFamily},
		Routers:  []int{0, 1},
		ExtLinks: []ExtLink{{ID: 0, Endpt: a, Router: 0}, {ID: 1, Endpt: b, Router: 1}},
	}

	stats, _, err := RunTrafficProbe(net, DefaultProbeCfg(10))
	require.NoError(t, err)
	assert.Equal(t, 10, stats.Unroutable)
	assert.Zero(t, stats.Delivered)
}

func TestRunTrafficProbe_NanosecondCycle(t *testing.T) {
	net := planFor(t, DefaultTopoOptions("DCell", 2))

	cfg := DefaultProbeCfg(1)
	require.Equal(t, 1e-9, cfg.CyclePeriod)

	stats, _, err := RunTrafficProbe(net, cfg)
	require.NoError(t, err)
	require.Equal(t, 1, stats.Delivered)

	// both endpoints on one router take 3 cycles; routers 0 and 1 are a
	// 10 cycle link apart, adding a traversal and a second router
	assert.Contains(t, []float64{3, 14}, stats.MeanLatencyCycles)
	assert.Equal(t, int64(stats.MeanLatencyCycles)*1000, stats.SimTicks())
	assert.InDelta(t, stats.MeanLatencyCycles, stats.SimCycles(), 1e-9)
}

func TestRunTrafficProbe_TracesAdvance(t *testing.T) {
	net := planFor(t, DefaultTopoOptions("DCell", 6))

	cfg := DefaultProbeCfg(40)
	cfg.StreamName = "advance"
	cfg.Trace = true

	stats, tm, err := RunTrafficProbe(net, cfg)
	require.NoError(t, err)
	require.Equal(t, 40, stats.Delivered)
	assert.Positive(t, stats.SimTicks())
	assert.GreaterOrEqual(t, stats.SimCycles(), float64(cfg.Packets-1+3))

	for pcktID, trcs := range tm.Traces {
		require.GreaterOrEqual(t, len(trcs), 4, "packet %d", pcktID)

		hops := make([]HopTrace, len(trcs))
		for idx, trc := range trcs {
			require.NoError(t, yaml.Unmarshal([]byte(trc.TraceStr), &hops[idx]))
		}

		assert.Equal(t, "inject", hops[0].Op)
		assert.Equal(t, "deliver", hops[len(hops)-1].Op)
		assert.Equal(t, int64(pcktID), hops[0].Cycle, "one injection per cycle")

		for idx := 1; idx < len(hops); idx++ {
			assert.Greater(t, hops[idx].Cycle, hops[idx-1].Cycle, "packet %d record %d", pcktID, idx)
			assert.Greater(t, hops[idx].Time, hops[idx-1].Time, "packet %d record %d", pcktID, idx)
		}
		assert.InDelta(t, float64(hops[len(hops)-1].Cycle)*cfg.CyclePeriod, hops[len(hops)-1].Time, 1e-18)
	}
}

func TestRunTrafficProbe_BadConfig(t *testing.T) {
	net := planFor(t, DefaultTopoOptions("DCell", 2))

	_, _, err := RunTrafficProbe(net, DefaultProbeCfg(0))
	assert.ErrorIs(t, err, ErrConfig)

	cfg := DefaultProbeCfg(5)
	cfg.CyclePeriod = 0
	_, _, err = RunTrafficProbe(net, cfg)
	assert.ErrorIs(t, err, ErrConfig)

	_, _, err = RunTrafficProbe(&Network{}, DefaultProbeCfg(5))
	assert.ErrorIs(t, err, ErrConfig)
}

func TestProbeStats_WriteStats(t *testing.T) {
	net := planFor(t, DefaultTopoOptions("DCell", 2))
	stats := &ProbeStats{
		CyclePeriod:    1e-9,
		SimSeconds:     10e-9,
		LinkActivity:   map[int]int{0: 3, 4: 2},
		RouterActivity: map[int]int{1: 7},
	}

	var buf bytes.Buffer
	require.NoError(t, stats.WriteStats(&buf, "system.ruby.network", net))
	out := buf.String()

	assert.Contains(t, out, "sim_ticks 10000\n")
	assert.Contains(t, out, "sim_freq 1000000000000\n")
	assert.Contains(t, out, "system.ruby.network.routers1.buffer_reads 7\n")
	assert.Contains(t, out, "system.ruby.network.routers0.crossbar_activity 0\n")
	assert.Contains(t, out, "system.ruby.network.routers3.sw_output_arbiter_activity 0\n")

	// 5 traversals over 7 links in 10 cycles
	assert.Contains(t, out, "system.ruby.network.avg_link_utilization 0.071429\n")
	assert.Equal(t, 3+4*5+1, strings.Count(out, "\n"))

	assert.Equal(t, []int{0}, stats.BusiestLinks())
}

func TestTraceManager(t *testing.T) {
	idle := CreateTraceManager("idle", false)
	require.NoError(t, AddHopTrace(idle, vrtime.CreateTime(1, 0), 1e-9, 0, 1, RouterObj, "enter", 0))
	assert.Zero(t, idle.NumTraces())
	assert.NoError(t, idle.WriteToFile(filepath.Join(t.TempDir(), "never.yaml")))

	tm := CreateTraceManager("active", true)
	require.NoError(t, tm.AddName(3, "routers3", RouterObj))
	assert.Error(t, tm.AddName(3, "routers3", RouterObj))

	require.NoError(t, AddHopTrace(tm, vrtime.CreateTime(2, 0), 1e-9, 7, 3, RouterObj, "enter", 1))
	require.Len(t, tm.Traces[7], 1)
	assert.Equal(t, "hop", tm.Traces[7][0].TraceType)
	assert.Equal(t, "2e-09", tm.Traces[7][0].TraceTime)
	assert.Contains(t, tm.Traces[7][0].TraceStr, "objtype: router")
	assert.Contains(t, tm.Traces[7][0].TraceStr, "cycle: 2")

	filename := filepath.Join(t.TempDir(), "trace.yaml")
	require.NoError(t, tm.WriteToFile(filename))
	body, err := readInputFile(filename, "trace")
	require.NoError(t, err)
	assert.Contains(t, string(body), "expname: active")
}
