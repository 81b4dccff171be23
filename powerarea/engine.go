package powerarea

// engine.go drives a power/area engine over the routers and links of a
// network.  The engine itself is external; DumpEngine records the requests
// it would receive so that they can be handed to it as a file.

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/go-playground/validator/v10"
	"github.com/iti/noctopo"
	"gopkg.in/yaml.v3"
	"k8s.io/klog/v2"
)

// Result is what the engine reports for one run
type Result struct {
	Label  string             `json:"label" yaml:"label"`
	Values map[string]float64 `json:"values" yaml:"values"`
}

// Engine is the interface to a power/area engine.  A session opens with
// Initialize on a configuration file, takes one or more Update/Run rounds,
// and closes with Finalize.
type Engine interface {
	Initialize(cfgFile string) error
	UpdateRouter(nc NetworkConfig, rc RouterConfig, ns NetworkStats, rs RouterStats) error
	UpdateLink(nc NetworkConfig, lc LinkConfig, ns NetworkStats, ls LinkStats) error
	Run() (Result, error)
	Finalize() error
}

// RouterRequest is one recorded router update
type RouterRequest struct {
	Network NetworkConfig `yaml:"network"`
	Router  RouterConfig  `yaml:"router"`
	Time    NetworkStats  `yaml:"time"`
	Stats   RouterStats   `yaml:"stats"`
}

// LinkRequest is one recorded link update
type LinkRequest struct {
	Network NetworkConfig `yaml:"network"`
	Link    LinkConfig    `yaml:"link"`
	Time    NetworkStats  `yaml:"time"`
	Stats   LinkStats     `yaml:"stats"`
}

// EngineSession is everything recorded between Initialize and Finalize
type EngineSession struct {
	CfgFile string          `yaml:"cfgfile"`
	Routers []RouterRequest `yaml:"routers,omitempty"`
	Links   []LinkRequest   `yaml:"links,omitempty"`
	Runs    int             `yaml:"runs"`
}

// DumpEngine is an Engine that validates and records every request
type DumpEngine struct {
	Sessions []EngineSession `yaml:"sessions"`

	open     *EngineSession
	validate *validator.Validate
}

// CreateDumpEngine is a constructor
func CreateDumpEngine() *DumpEngine {
	return &DumpEngine{Sessions: make([]EngineSession, 0), validate: validator.New()}
}

// Initialize opens a session on the configuration file
func (de *DumpEngine) Initialize(cfgFile string) error {
	if de.open != nil {
		return fmt.Errorf("engine session on %s still open", de.open.CfgFile)
	}
	de.open = &EngineSession{CfgFile: cfgFile}
	return nil
}

// UpdateRouter records a router request
func (de *DumpEngine) UpdateRouter(nc NetworkConfig, rc RouterConfig, ns NetworkStats, rs RouterStats) error {
	if de.open == nil {
		return fmt.Errorf("router update outside an engine session")
	}
	req := RouterRequest{Network: nc, Router: rc, Time: ns, Stats: rs}
	if err := de.validate.Struct(req); err != nil {
		return fmt.Errorf("router %s request: %w", rc.Name, err)
	}
	de.open.Routers = append(de.open.Routers, req)
	return nil
}

// UpdateLink records a link request
func (de *DumpEngine) UpdateLink(nc NetworkConfig, lc LinkConfig, ns NetworkStats, ls LinkStats) error {
	if de.open == nil {
		return fmt.Errorf("link update outside an engine session")
	}
	req := LinkRequest{Network: nc, Link: lc, Time: ns, Stats: ls}
	if err := de.validate.Struct(req); err != nil {
		return fmt.Errorf("link request: %w", err)
	}
	de.open.Links = append(de.open.Links, req)
	return nil
}

// Run counts the run and reports the number of requests recorded so far in the session
func (de *DumpEngine) Run() (Result, error) {
	if de.open == nil {
		return Result{}, fmt.Errorf("run outside an engine session")
	}
	de.open.Runs += 1
	return Result{Label: de.open.CfgFile, Values: map[string]float64{
		"routers": float64(len(de.open.Routers)),
		"links":   float64(len(de.open.Links)),
	}}, nil
}

// Finalize closes the open session
func (de *DumpEngine) Finalize() error {
	if de.open == nil {
		return fmt.Errorf("no engine session to finalize")
	}
	de.Sessions = append(de.Sessions, *de.open)
	de.open = nil
	return nil
}

// WriteToFile stores the recorded sessions as yaml
func (de *DumpEngine) WriteToFile(filename string) error {
	bytes, merr := yaml.Marshal(*de)
	if merr != nil {
		return merr
	}
	return os.WriteFile(filename, bytes, 0644)
}

// EstimateCfg names the inputs of an estimate
type EstimateCfg struct {
	RouterCfgFile string `validate:"required"`
	LinkCfgFile   string `validate:"required"`
	StatsFile     string `validate:"required"`

	// prefix of router names in the stats file
	StatsPrefix string

	Tech string `validate:"required"`

	// directory of the tech model files, which must exist when given;
	// DefaultTechModelDir otherwise, resolved by the engine
	TechModelDir string

	VcsPerVnet int     `validate:"gte=1"`
	ClockPs    float64 `validate:"gt=0"`

	Network NetworkConfig
	Topo    *noctopo.TopoCfg `validate:"required"`
}

// Report gathers the engine results of an estimate
type Report struct {
	Routers []Result `json:"routers" yaml:"routers"`
	Links   Result   `json:"links" yaml:"links"`
}

// DefaultStatsPrefix is the name under which the simulator reports network stats
const DefaultStatsPrefix = "system.ruby.network"

// Estimate runs the engine over every router of the topology, each with its
// own activity, then once over the links with their aggregate activity
func Estimate(cfg EstimateCfg, eng Engine) (*Report, error) {
	if err := cfgValidator.Struct(cfg); err != nil {
		return nil, err
	}

	techDir := cfg.TechModelDir
	if len(techDir) == 0 {
		techDir = DefaultTechModelDir
	} else if ok, derr := noctopo.CheckDirectories([]string{techDir}); !ok {
		return nil, fmt.Errorf("tech model directory: %w", derr)
	}
	techModel, err := TechModel(techDir, cfg.Tech)
	if err != nil {
		return nil, err
	}
	nc := cfg.Network
	nc.TechModel = techModel
	if verr := nc.Validate(); verr != nil {
		return nil, verr
	}

	for _, cf := range []struct{ kind, name string }{{"router", cfg.RouterCfgFile}, {"link", cfg.LinkCfgFile}} {
		if ok, _ := noctopo.CheckReadableFiles([]string{cf.name}); !ok {
			return nil, fmt.Errorf("%s config file %s not found", cf.kind, cf.name)
		}
	}

	sf, err := OpenStatsFile(cfg.StatsFile)
	if err != nil {
		return nil, err
	}
	ns, err := sf.Network()
	if err != nil {
		return nil, err
	}

	prefix := cfg.StatsPrefix
	if len(prefix) == 0 {
		prefix = DefaultStatsPrefix
	}

	rcs, err := RouterConfigs(cfg.Topo, cfg.VcsPerVnet, cfg.ClockPs)
	if err != nil {
		return nil, err
	}

	report := &Report{Routers: make([]Result, 0, len(rcs))}

	err = engineSession(eng, cfg.RouterCfgFile, func() error {
		for _, rc := range rcs {
			rs, err := sf.Router(prefix + "." + rc.Name)
			if err != nil {
				return err
			}
			if err := eng.UpdateRouter(nc, rc, ns, rs); err != nil {
				return err
			}
			res, err := eng.Run()
			if err != nil {
				return err
			}
			report.Routers = append(report.Routers, res)
			klog.V(2).InfoS("router estimate", "router", rc.Name, "ports", rc.NumInports)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	// stats give total link activity rather than per link, so the links are estimated once
	lc, err := MakeLinkConfig(cfg.ClockPs)
	if err != nil {
		return nil, err
	}
	ls, err := sf.Links(ns.SimTicks)
	if err != nil {
		return nil, err
	}

	err = engineSession(eng, cfg.LinkCfgFile, func() error {
		if err := eng.UpdateLink(nc, lc, ns, ls); err != nil {
			return err
		}
		var rerr error
		report.Links, rerr = eng.Run()
		return rerr
	})
	if err != nil {
		return nil, err
	}

	klog.V(1).InfoS("power/area estimate complete", "tech", filepath.Base(techModel),
		"routers", len(report.Routers), "linkActivity", ls.Activity)

	return report, nil
}

// engineSession opens a session on cfgFile, runs body in it, and finalizes the
// session whether or not body succeeds
func engineSession(eng Engine, cfgFile string, body func() error) (err error) {
	if err := eng.Initialize(cfgFile); err != nil {
		return err
	}
	defer func() {
		ferr := eng.Finalize()
		if err == nil {
			err = ferr
		}
	}()
	return body()
}
