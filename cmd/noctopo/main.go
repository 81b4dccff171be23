package main

// noctopo builds an interconnection topology from an options file and an
// optional controller list, writes its description, and optionally probes it
// with traffic and drives a power/area estimate from the probe's statistics

import (
	"flag"
	"fmt"
	"os"

	"github.com/iti/noctopo"
	"github.com/iti/noctopo/powerarea"
	"k8s.io/klog/v2"
)

type cmdArgs struct {
	opts   string
	cntrls string
	out    string
	dict   string

	probe     int
	cyclePs   float64
	stream    string
	statsOut  string
	traceOut  string
	tech      string
	techDir   string
	netCfg    string
	routerCfg string
	linkCfg   string
	vcs       int
	engineOut string
}

func parseArgs() *cmdArgs {
	args := new(cmdArgs)

	klog.InitFlags(nil)
	flag.StringVar(&args.opts, "opts", "", "topology options file (yaml or json)")
	flag.StringVar(&args.cntrls, "cntrls", "", "controller list file, controllers made from the options if absent")
	flag.StringVar(&args.out, "out", "", "output topology description file")
	flag.StringVar(&args.dict, "dict", "", "topology dictionary file the description is added to")
	flag.IntVar(&args.probe, "probe", 0, "number of traffic probe packets, 0 for no probe")
	flag.Float64Var(&args.cyclePs, "cycle", 1000, "network clock period in ps")
	flag.StringVar(&args.stream, "stream", noctopo.DefaultStreamName, "name of the probe's random number stream")
	flag.StringVar(&args.statsOut, "stats", "", "output stats file of the probe")
	flag.StringVar(&args.traceOut, "trace", "", "output hop trace file of the probe")
	flag.StringVar(&args.tech, "tech", "", "technology node for a power/area estimate: 45, 32, 22, or 11")
	flag.StringVar(&args.techDir, "techdir", "", "directory of the tech model files, default "+powerarea.DefaultTechModelDir)
	flag.StringVar(&args.netCfg, "netcfg", "", "network parameters of the power/area estimate")
	flag.StringVar(&args.routerCfg, "routercfg", "", "power engine router configuration file")
	flag.StringVar(&args.linkCfg, "linkcfg", "", "power engine link configuration file")
	flag.IntVar(&args.vcs, "vcs", 4, "virtual channels per virtual network")
	flag.StringVar(&args.engineOut, "engine-out", "", "output file of the recorded power engine requests")
	flag.Parse()

	return args
}

func main() {
	args := parseArgs()
	defer klog.Flush()

	if err := run(args); err != nil {
		klog.ErrorS(err, "noctopo failed")
		klog.Flush()
		os.Exit(1)
	}
}

func run(args *cmdArgs) error {
	if len(args.opts) == 0 {
		return fmt.Errorf("-opts is required")
	}

	ok, err := noctopo.CheckOutputFiles([]string{args.out, args.dict, args.statsOut, args.traceOut, args.engineOut})
	if !ok {
		return err
	}

	net, tcf, err := noctopo.BuildTopoFromFiles(map[string]string{"opts": args.opts, "cntrls": args.cntrls})
	if err != nil {
		return err
	}
	if err := noctopo.ValidateNetwork(net); err != nil {
		return err
	}

	rg, err := noctopo.BuildRouterGraph(net)
	if err != nil {
		return err
	}
	klog.InfoS("topology built", "name", tcf.Name, "routers", len(net.Routers), "extLinks", len(net.ExtLinks),
		"intLinks", len(net.IntLinks), "diameter", rg.Diameter(), "fingerprint", net.Fingerprint().String())

	tc := tcf.Transform()
	if len(args.out) > 0 {
		if err := tc.WriteToFile(args.out); err != nil {
			return err
		}
	}

	if len(args.dict) > 0 {
		if err := addToDict(args.dict, &tc); err != nil {
			return err
		}
	}

	if args.probe < 1 {
		return nil
	}

	cfg := noctopo.DefaultProbeCfg(args.probe)
	cfg.CyclePeriod = args.cyclePs * 1e-12
	cfg.StreamName = args.stream
	cfg.Trace = len(args.traceOut) > 0

	stats, tm, err := noctopo.RunTrafficProbe(net, cfg)
	if err != nil {
		return err
	}
	klog.InfoS("probe", "delivered", stats.Delivered, "meanLatencyCycles", stats.MeanLatencyCycles,
		"maxHops", stats.MaxHops, "busiestLinks", stats.BusiestLinks())

	if cfg.Trace {
		if err := tm.WriteToFile(args.traceOut); err != nil {
			return err
		}
	}

	if len(args.statsOut) == 0 {
		return nil
	}
	if err := stats.WriteStatsFile(args.statsOut, powerarea.DefaultStatsPrefix, net); err != nil {
		return err
	}

	if len(args.tech) == 0 {
		return nil
	}
	return estimate(args, &tc)
}

// addToDict adds the topology to the dictionary file, creating it if need be
func addToDict(dictFile string, tc *noctopo.TopoCfg) error {
	var empty []byte
	useYAML := noctopo.UseYAMLExt(dictFile)

	tcd := noctopo.CreateTopoCfgDict("noctopo")
	if _, err := os.Stat(dictFile); err == nil {
		tcd, err = noctopo.ReadTopoCfgDict(dictFile, useYAML, empty)
		if err != nil {
			return err
		}
	}

	if err := tcd.AddTopoCfg(tc, true); err != nil {
		return err
	}
	return tcd.WriteToFile(dictFile)
}

// estimate drives a power/area estimate from the probe's stats, recording the engine requests
func estimate(args *cmdArgs, tc *noctopo.TopoCfg) error {
	var empty []byte

	nc, err := powerarea.ReadNetworkConfig(args.netCfg, noctopo.UseYAMLExt(args.netCfg), empty)
	if err != nil {
		return err
	}

	ecfg := powerarea.EstimateCfg{
		RouterCfgFile: args.routerCfg,
		LinkCfgFile:   args.linkCfg,
		StatsFile:     args.statsOut,
		Tech:          args.tech,
		TechModelDir:  args.techDir,
		VcsPerVnet:    args.vcs,
		ClockPs:       args.cyclePs,
		Network:       *nc,
		Topo:          tc,
	}

	eng := powerarea.CreateDumpEngine()
	if _, err := powerarea.Estimate(ecfg, eng); err != nil {
		return err
	}

	if len(args.engineOut) > 0 {
		return eng.WriteToFile(args.engineOut)
	}
	return nil
}
