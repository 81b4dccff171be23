package powerarea

// config.go derives the per-router and link configurations handed to the
// power/area engine, and holds the network-wide parameters they share

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/go-playground/validator/v10"
	"github.com/iti/noctopo"
	"golang.org/x/exp/slices"
	"gopkg.in/yaml.v3"
)

// DefaultTechModelDir is where the engine's technology models live, relative to its root
const DefaultTechModelDir = "ext/dsent/tech/tech_models"

// LinkLength is the physical length given to every link, in meters
const LinkLength = 4e-3

// TechNodes lists the supported technology nodes, in nm
var TechNodes = []string{"45", "32", "22", "11"}

// TechModel returns the path of the technology model file for the node:
// bulk models for 45, 32, and 22nm, the tri-gate model for 11nm
func TechModel(dir, tech string) (string, error) {
	if !slices.Contains(TechNodes, tech) {
		return "", fmt.Errorf("unknown tech model %q, supported models: %v", tech, TechNodes)
	}
	if tech == "11" {
		return filepath.Join(dir, "TG"+tech+"LVT.model"), nil
	}
	return filepath.Join(dir, "Bulk"+tech+"LVT.model"), nil
}

// NetworkConfig holds the parameters shared by every router and link
type NetworkConfig struct {
	NumVnets         int    `json:"num_vnets" yaml:"num_vnets" validate:"gte=1"`
	FlitSizeBits     int    `json:"flit_size_bits" yaml:"flit_size_bits" validate:"gte=1"`
	BuffersPerDataVC int    `json:"buffers_per_data_vc" yaml:"buffers_per_data_vc" validate:"gte=1"`
	BuffersPerCtrlVC int    `json:"buffers_per_ctrl_vc" yaml:"buffers_per_ctrl_vc" validate:"gte=1"`
	TechModel        string `json:"tech_model" yaml:"tech_model"`
}

// RouterConfig describes one router to the engine
type RouterConfig struct {
	RouterID    int    `json:"router_id" yaml:"router_id"`
	Name        string `json:"name" yaml:"name"`
	NumInports  int    `json:"num_inports" yaml:"num_inports" validate:"gte=1"`
	NumOutports int    `json:"num_outports" yaml:"num_outports" validate:"gte=1"`
	VcsPerVnet  int    `json:"vcs_per_vnet" yaml:"vcs_per_vnet" validate:"gte=1"`
	Frequency   int64  `json:"frequency" yaml:"frequency" validate:"gt=0"`
}

// LinkConfig describes the links to the engine
type LinkConfig struct {
	Frequency int64   `json:"frequency" yaml:"frequency" validate:"gt=0"`
	Length    float64 `json:"length" yaml:"length" validate:"gt=0"`
	Delay     float64 `json:"delay" yaml:"delay" validate:"gt=0"`
}

var cfgValidator = validator.New()

// frequencyOf converts a clock period in ps to a frequency in Hz
func frequencyOf(clockPs float64) (int64, error) {
	if clockPs <= 0 {
		return 0, fmt.Errorf("clock period %v ps must be positive", clockPs)
	}
	return int64(1e12 / clockPs), nil
}

// RouterConfigs returns the configuration of every router in the topology, in
// router order.  A router has one in port and one out port per attached link.
func RouterConfigs(tc *noctopo.TopoCfg, vcsPerVnet int, clockPs float64) ([]RouterConfig, error) {
	freq, err := frequencyOf(clockPs)
	if err != nil {
		return nil, err
	}

	ports := tc.RouterPorts()
	rcs := make([]RouterConfig, 0, len(tc.Routers))
	for _, rd := range tc.Routers {
		rc := RouterConfig{RouterID: rd.ID, Name: rd.Name, NumInports: ports[rd.Name],
			NumOutports: ports[rd.Name], VcsPerVnet: vcsPerVnet, Frequency: freq}
		if verr := cfgValidator.Struct(rc); verr != nil {
			return nil, fmt.Errorf("router %s: %w", rd.Name, verr)
		}
		rcs = append(rcs, rc)
	}

	slices.SortFunc(rcs, func(a, b RouterConfig) int { return a.RouterID - b.RouterID })
	return rcs, nil
}

// MakeLinkConfig returns the link configuration at the clock period.  The wire
// delay is one clock period.
func MakeLinkConfig(clockPs float64) (LinkConfig, error) {
	freq, err := frequencyOf(clockPs)
	if err != nil {
		return LinkConfig{}, err
	}
	return LinkConfig{Frequency: freq, Length: LinkLength, Delay: 1.0 / float64(freq)}, nil
}

// Validate checks the network parameters
func (nc *NetworkConfig) Validate() error {
	return cfgValidator.Struct(nc)
}

// WriteToFile stores the NetworkConfig to the file whose name is given.
// Serialization to json or to yaml is selected based on the extension of this name.
func (nc *NetworkConfig) WriteToFile(filename string) error {
	var bytes []byte
	var merr error

	switch filepath.Ext(filename) {
	case ".yaml", ".YAML", ".yml":
		bytes, merr = yaml.Marshal(*nc)
	case ".json", ".JSON":
		bytes, merr = json.MarshalIndent(*nc, "", "\t")
	default:
		return fmt.Errorf("output file %s needs a .yaml, .yml, or .json extension", filename)
	}
	if merr != nil {
		return merr
	}

	return os.WriteFile(filename, bytes, 0644)
}

// ReadNetworkConfig deserializes a byte slice holding a NetworkConfig.  If dict is empty
// the file whose name is given is read.
func ReadNetworkConfig(filename string, useYAML bool, dict []byte) (*NetworkConfig, error) {
	var err error

	if len(dict) == 0 {
		dict, err = os.ReadFile(filename)
		if err != nil {
			return nil, err
		}
	}

	example := NetworkConfig{}
	if useYAML {
		err = yaml.Unmarshal(dict, &example)
	} else {
		err = json.Unmarshal(dict, &example)
	}
	if err != nil {
		return nil, err
	}

	if verr := example.Validate(); verr != nil {
		return nil, verr
	}
	return &example, nil
}
