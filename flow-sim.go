package noctopo

// flow-sim.go holds a discrete-event traffic probe that pushes single-flit
// packets through a generated network.  A packet enters on the external link
// of a randomly chosen source endpoint, follows a least-weight router route,
// and leaves on the external link of a randomly chosen destination endpoint.
// Every router visit and link traversal is counted, giving the activity
// statistics a power/area estimate consumes.
//
// The event manager's clock counts network cycles, one tick per cycle;
// seconds are derived from the cycle period only when results are reported.

import (
	"bufio"
	"fmt"
	"io"
	"math"
	"os"

	"github.com/go-playground/validator/v10"
	"github.com/iti/evt/evtm"
	"github.com/iti/evt/vrtime"
	"github.com/iti/rngstream"
	"golang.org/x/exp/slices"
	"k8s.io/klog/v2"
)

// defaults for probe configuration
const (
	DefaultCyclePeriod = 1e-9
	DefaultStreamName  = "noctopo-probe"

	// ticks per simulated second in the stats file
	statsTickFreq = 1e12

	// latency of an external link, in cycles
	extLinkCycles = 1

	// cycles a packet spends in a router before leaving on its next link
	routerCycles = 1
)

// ProbeCfg configures a traffic probe
type ProbeCfg struct {
	// number of packets injected, one per cycle
	Packets int `json:"packets" yaml:"packets" validate:"gte=1"`

	// seconds per network cycle
	CyclePeriod float64 `json:"cycleperiod" yaml:"cycleperiod" validate:"gt=0"`

	// name of the random number stream sampling sources and destinations
	StreamName string `json:"streamname" yaml:"streamname"`

	// gather hop traces
	Trace bool `json:"trace" yaml:"trace"`
}

// DefaultProbeCfg returns a configuration for the given number of packets
func DefaultProbeCfg(packets int) ProbeCfg {
	return ProbeCfg{Packets: packets, CyclePeriod: DefaultCyclePeriod, StreamName: DefaultStreamName}
}

var probeValidator = validator.New()

// ProbeStats summarizes a probe run
type ProbeStats struct {
	Packets    int `json:"packets" yaml:"packets"`
	Delivered  int `json:"delivered" yaml:"delivered"`
	Unroutable int `json:"unroutable" yaml:"unroutable"`

	// mean cycles from injection to delivery over delivered packets
	MeanLatencyCycles float64 `json:"meanlatencycycles" yaml:"meanlatencycycles"`

	// largest number of internal links crossed by one packet
	MaxHops int `json:"maxhops" yaml:"maxhops"`

	CyclePeriod float64 `json:"cycleperiod" yaml:"cycleperiod"`
	SimSeconds  float64 `json:"simseconds" yaml:"simseconds"`

	// traversals by link id, and visits by router id
	LinkActivity   map[int]int `json:"linkactivity" yaml:"linkactivity"`
	RouterActivity map[int]int `json:"routeractivity" yaml:"routeractivity"`
}

// probeRun is the context shared by the event handlers of one probe
type probeRun struct {
	net       *Network
	rg        *RouterGraph
	cycle     float64
	tm        *TraceManager
	rtrOffset int

	stats        *ProbeStats
	totalLatency int64
	lastCycle    int64
	errs         []error
}

// probeMsg is the packet carried from event to event
type probeMsg struct {
	pcktID   int
	src      ExtLink
	dst      ExtLink
	route    []int
	hop      int
	injected int64
}

// RunTrafficProbe injects cfg.Packets packets into the network, one per cycle,
// and runs the event manager until every packet has been delivered
func RunTrafficProbe(net *Network, cfg ProbeCfg) (*ProbeStats, *TraceManager, error) {
	if err := probeValidator.Struct(cfg); err != nil {
		return nil, nil, fmt.Errorf("%w: probe %s", ErrConfig, err.Error())
	}
	if len(net.ExtLinks) == 0 {
		return nil, nil, fmt.Errorf("%w: network has no external links to inject into", ErrConfig)
	}
	if len(cfg.StreamName) == 0 {
		cfg.StreamName = DefaultStreamName
	}

	rg, err := BuildRouterGraph(net)
	if err != nil {
		return nil, nil, err
	}

	tm := CreateTraceManager(fmt.Sprintf("%s-probe", net.Params.Family), cfg.Trace)
	if err := tm.AddNetworkNames(net); err != nil {
		return nil, nil, err
	}

	pr := &probeRun{net: net, rg: rg, cycle: cfg.CyclePeriod, tm: tm, rtrOffset: net.TotalLinks()}
	pr.stats = &ProbeStats{Packets: cfg.Packets, CyclePeriod: cfg.CyclePeriod,
		LinkActivity: make(map[int]int), RouterActivity: make(map[int]int)}

	rngstrm := rngstream.New(cfg.StreamName)
	evtMgr := evtm.New()

	numEndpts := len(net.ExtLinks)
	for pcktID := 0; pcktID < cfg.Packets; pcktID += 1 {
		srcIdx, dstIdx := sampleEndptPair(rngstrm, numEndpts)
		pm := &probeMsg{pcktID: pcktID, src: net.ExtLinks[srcIdx], dst: net.ExtLinks[dstIdx]}
		evtMgr.Schedule(pr, pm, injectPckt, cycles(int64(pcktID)))
	}

	evtMgr.Run(vrtime.TicksToSeconds(pr.runLimit(cfg.Packets)))

	if err := ReportErrs(pr.errs); err != nil {
		return nil, nil, err
	}

	stats := pr.stats
	if stats.Delivered > 0 {
		stats.MeanLatencyCycles = float64(pr.totalLatency) / float64(stats.Delivered)
	}
	stats.SimSeconds = float64(pr.lastCycle) * pr.cycle

	klog.V(1).InfoS("traffic probe complete", "packets", stats.Packets, "delivered", stats.Delivered,
		"unroutable", stats.Unroutable, "meanLatency", stats.MeanLatencyCycles, "maxHops", stats.MaxHops)

	return stats, tm, nil
}

// cycles is the event offset of n network cycles
func cycles(n int64) vrtime.Time {
	return vrtime.CreateTime(n, 0)
}

// runLimit bounds simulated time in cycles: the last injection plus the
// longest conceivable route, every router and internal link once plus both
// external links
func (pr *probeRun) runLimit(packets int) int64 {
	limit := int64(packets + 2*extLinkCycles + routerCycles*len(pr.net.Routers))
	for _, il := range pr.net.IntLinks {
		limit += int64(il.Latency)
	}
	return 2 * limit
}

// sampleEndptPair draws a source and a different destination index from 0..n-1
func sampleEndptPair(rngstrm *rngstream.RngStream, n int) (int, int) {
	src := sampleIndex(rngstrm.RandU01(), n)
	if n < 2 {
		return src, src
	}
	dst := (src + 1 + sampleIndex(rngstrm.RandU01(), n-1)) % n
	return src, dst
}

func sampleIndex(u01 float64, n int) int {
	idx := int(math.Floor(u01 * float64(n)))
	if idx >= n {
		idx = n - 1
	}
	return idx
}

func (pr *probeRun) trace(evtMgr *evtm.EventManager, pm *probeMsg, objID int, objType, op string) {
	if err := AddHopTrace(pr.tm, evtMgr.CurrentTime(), pr.cycle, pm.pcktID, objID, objType, op, pm.hop); err != nil {
		pr.errs = append(pr.errs, err)
	}
}

func (pr *probeRun) markTime(evtMgr *evtm.EventManager) {
	if now := evtMgr.CurrentTicks(); now > pr.lastCycle {
		pr.lastCycle = now
	}
}

// injectPckt places the packet on the external link of its source endpoint
func injectPckt(evtMgr *evtm.EventManager, context any, data any) any {
	pr := context.(*probeRun)
	pm := data.(*probeMsg)

	pm.injected = evtMgr.CurrentTicks()
	pm.route = pr.rg.RouterRoute(pm.src.Router, pm.dst.Router)
	if pm.route == nil {
		pr.stats.Unroutable += 1
		klog.Warningf("probe packet %d: no route from router %d to router %d", pm.pcktID, pm.src.Router, pm.dst.Router)
		return nil
	}

	pr.stats.LinkActivity[pm.src.ID] += 1
	pr.trace(evtMgr, pm, pm.src.ID, ExtLinkObj, "inject")
	pr.markTime(evtMgr)

	evtMgr.Schedule(pr, pm, enterRouter, cycles(extLinkCycles))
	return nil
}

// enterRouter counts the visit to the router at the packet's current hop
func enterRouter(evtMgr *evtm.EventManager, context any, data any) any {
	pr := context.(*probeRun)
	pm := data.(*probeMsg)

	rtr := pm.route[pm.hop]
	pr.stats.RouterActivity[rtr] += 1
	pr.trace(evtMgr, pm, pr.rtrOffset+rtr, RouterObj, "enter")
	pr.markTime(evtMgr)

	evtMgr.Schedule(pr, pm, leaveRouter, cycles(routerCycles))
	return nil
}

// leaveRouter forwards the packet on the next internal link of its route,
// or onto the destination's external link
func leaveRouter(evtMgr *evtm.EventManager, context any, data any) any {
	pr := context.(*probeRun)
	pm := data.(*probeMsg)
	pr.markTime(evtMgr)

	rtr := pm.route[pm.hop]
	if pm.hop == len(pm.route)-1 {
		pr.stats.LinkActivity[pm.dst.ID] += 1
		pr.trace(evtMgr, pm, pm.dst.ID, ExtLinkObj, "eject")
		evtMgr.Schedule(pr, pm, deliverPckt, cycles(extLinkCycles))
		return nil
	}

	il, present := pr.rg.LinkBetween(rtr, pm.route[pm.hop+1])
	if !present {
		pr.errs = append(pr.errs, fmt.Errorf("%w: route steps from router %d to %d without a link",
			ErrInvariant, rtr, pm.route[pm.hop+1]))
		return nil
	}
	pr.stats.LinkActivity[il.ID] += 1
	pr.trace(evtMgr, pm, il.ID, IntLinkObj, "traverse")
	pm.hop += 1

	evtMgr.Schedule(pr, pm, enterRouter, cycles(int64(il.Latency)))
	return nil
}

// deliverPckt retires the packet at its destination endpoint
func deliverPckt(evtMgr *evtm.EventManager, context any, data any) any {
	pr := context.(*probeRun)
	pm := data.(*probeMsg)

	pr.trace(evtMgr, pm, pm.dst.ID, ExtLinkObj, "deliver")
	pr.markTime(evtMgr)

	pr.stats.Delivered += 1
	pr.totalLatency += evtMgr.CurrentTicks() - pm.injected
	if pm.hop > pr.stats.MaxHops {
		pr.stats.MaxHops = pm.hop
	}
	return nil
}

// SimTicks returns the simulated time in stats-file ticks
func (ps *ProbeStats) SimTicks() int64 {
	return int64(math.Round(ps.SimSeconds * statsTickFreq))
}

// SimCycles returns the simulated time in network cycles
func (ps *ProbeStats) SimCycles() float64 {
	if ps.CyclePeriod <= 0 {
		return 0
	}
	return ps.SimSeconds / ps.CyclePeriod
}

// AvgLinkUtilization is the mean number of traversals per link per cycle
func (ps *ProbeStats) AvgLinkUtilization(numLinks int) float64 {
	numCycles := ps.SimCycles()
	if numLinks == 0 || numCycles == 0 {
		return 0
	}
	total := 0
	for _, count := range ps.LinkActivity {
		total += count
	}
	return float64(total) / (float64(numLinks) * numCycles)
}

// WriteStats writes the statistics as stats-file lines, "name value" per line.
// Router lines name routers as the network configuration does, under prefix.
// Every router visit is one buffer write, one buffer read, one crossbar
// traversal and one pass through each switch arbiter.
func (ps *ProbeStats) WriteStats(w io.Writer, prefix string, net *Network) error {
	bw := bufio.NewWriter(w)

	fmt.Fprintf(bw, "sim_seconds %.12f\n", ps.SimSeconds)
	fmt.Fprintf(bw, "sim_ticks %d\n", ps.SimTicks())
	fmt.Fprintf(bw, "sim_freq %d\n", int64(statsTickFreq))

	routers := slices.Clone(net.Routers)
	slices.Sort(routers)
	for _, rtr := range routers {
		visits := ps.RouterActivity[rtr]
		name := prefix + "." + RouterName(rtr)
		for _, stat := range []string{"buffer_writes", "buffer_reads", "crossbar_activity",
			"sw_input_arbiter_activity", "sw_output_arbiter_activity"} {
			fmt.Fprintf(bw, "%s.%s %d\n", name, stat, visits)
		}
	}

	fmt.Fprintf(bw, "%s.avg_link_utilization %f\n", prefix, ps.AvgLinkUtilization(net.TotalLinks()))

	return bw.Flush()
}

// WriteStatsFile writes the statistics to the named file
func (ps *ProbeStats) WriteStatsFile(filename, prefix string, net *Network) error {
	f, cerr := os.Create(filename)
	if cerr != nil {
		return cerr
	}
	werr := ps.WriteStats(f, prefix, net)
	return ReportErrs([]error{werr, f.Close()})
}

// BusiestLinks returns the ids of the links with the largest traversal count, ascending
func (ps *ProbeStats) BusiestLinks() []int {
	most := 0
	for _, count := range ps.LinkActivity {
		if count > most {
			most = count
		}
	}
	if most == 0 {
		return nil
	}

	ids := []int{}
	for id, count := range ps.LinkActivity {
		if count == most {
			ids = append(ids, id)
		}
	}
	slices.Sort(ids)
	return ids
}
