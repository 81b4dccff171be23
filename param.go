package noctopo

// param.go holds the configuration bundle the host hands to the generator,
// its defaults, validation, and file I/O

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

// default internal link attributes
const (
	DefaultLinkLatency = 10
	DefaultLinkWeight  = 1
)

// TopoOptions carries the options that select and size a topology
type TopoOptions struct {
	// Topology names the family: DCell, GoogleFatTree, or Datacenter
	Topology string `json:"topology" yaml:"topology" validate:"oneof=DCell GoogleFatTree Datacenter"`

	// NumCPUs is the CPU count.  It is the DCell node count and the fat-tree fan-out k
	NumCPUs int `json:"num_cpus" yaml:"num_cpus" validate:"gte=0"`

	// NumRows is the switch count of the Datacenter family
	NumRows int `json:"num_rows" yaml:"num_rows" validate:"gte=0"`

	// controller counts used when the controller list is built from the options
	NumL2Caches int `json:"num_l2caches" yaml:"num_l2caches" validate:"gte=0"`
	NumDirs     int `json:"num_dirs" yaml:"num_dirs" validate:"gte=0"`
	NumDMAs     int `json:"num_dmas" yaml:"num_dmas" validate:"gte=0"`

	// DCellServers, when positive, selects the general DCell rule with
	// DCellServers servers per module and DCellServers+1 modules
	DCellServers int `json:"dcell_servers,omitempty" yaml:"dcell_servers,omitempty" validate:"gte=0"`

	LinkLatency int `json:"link_latency" yaml:"link_latency" validate:"gte=0"`
	LinkWeight  int `json:"link_weight" yaml:"link_weight" validate:"gte=0"`

	// StrictOverflow, when set, overrides the family default for checking
	// that remainder endpoints are DMA controllers
	StrictOverflow *bool `json:"strict_overflow,omitempty" yaml:"strict_overflow,omitempty"`
}

// DefaultTopoOptions returns options with the link attributes at their defaults
func DefaultTopoOptions(topology string, numCPUs int) *TopoOptions {
	return &TopoOptions{
		Topology:    topology,
		NumCPUs:     numCPUs,
		NumDirs:     numCPUs,
		LinkLatency: DefaultLinkLatency,
		LinkWeight:  DefaultLinkWeight,
	}
}

// LinkAttrs returns latency and weight for internal links, replacing unset values with defaults
func (opts *TopoOptions) LinkAttrs() LinkAttrs {
	la := LinkAttrs{Latency: opts.LinkLatency, Weight: opts.LinkWeight}
	if la.Latency == 0 {
		la.Latency = DefaultLinkLatency
	}
	if la.Weight == 0 {
		la.Weight = DefaultLinkWeight
	}
	return la
}

// CntrlCounts gives the controller counts implied by the options, one L1 per CPU
func (opts *TopoOptions) CntrlCounts() CntrlCounts {
	return CntrlCounts{L1Caches: opts.NumCPUs, L2Caches: opts.NumL2Caches, Dirs: opts.NumDirs, DMAs: opts.NumDMAs}
}

var optsValidator = validator.New()

// Validate checks the option values against their permitted ranges.
// Failures are reported as configuration errors.
func (opts *TopoOptions) Validate() error {
	err := optsValidator.Struct(opts)
	if err == nil {
		return nil
	}

	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return fmt.Errorf("%w: %s", ErrConfig, err.Error())
	}

	msgs := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		msgs = append(msgs, fmt.Sprintf("option %s value %v fails %s %s", fe.Field(), fe.Value(), fe.Tag(), fe.Param()))
	}
	return fmt.Errorf("%w: %s", ErrConfig, strings.Join(msgs, ","))
}

// WriteToFile stores the options to the file whose name is given.
// Serialization to json or to yaml is selected based on the extension of this name.
func (opts *TopoOptions) WriteToFile(filename string) error {
	return writeSerialized(filename, opts)
}

// ReadTopoOptions deserializes a byte slice holding TopoOptions.  If dict is empty
// the file whose name is given is read.  Unset link attributes take their defaults,
// and the result is validated.
func ReadTopoOptions(filename string, useYAML bool, dict []byte) (*TopoOptions, error) {
	var err error

	if len(dict) == 0 {
		fileInfo, serr := os.Stat(filename)
		if os.IsNotExist(serr) || (serr == nil && fileInfo.IsDir()) {
			return nil, fmt.Errorf("topology options %s does not exist or cannot be read", filename)
		}
		dict, err = os.ReadFile(filename)
		if err != nil {
			return nil, err
		}
	}

	example := TopoOptions{}
	if useYAML {
		err = yaml.Unmarshal(dict, &example)
	} else {
		err = json.Unmarshal(dict, &example)
	}
	if err != nil {
		return nil, err
	}

	la := example.LinkAttrs()
	example.LinkLatency = la.Latency
	example.LinkWeight = la.Weight

	if verr := example.Validate(); verr != nil {
		return nil, verr
	}

	return &example, nil
}
