package noctopo

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// To most easily serialize and deserialize the structures describing a network,
// each is described without pointers, every structure fully instantiated in the description.
// On the other hand it is easier to build the network when objects point at each other.
// So there are two representations of each kind of structure.  One has the final
// appellation 'Frame' and holds pointers, the other has the final appellation 'Desc'
// and is pointer free.  After building the structures using Frames we transform
// each into a Desc for serialization.

// RouterName returns the name used for the router with the given id
func RouterName(id int) string {
	return fmt.Sprintf("routers%d", id)
}

// ExtLinkName returns the name used for the external link with the given id
func ExtLinkName(id int) string {
	return fmt.Sprintf("ext_links%d", id)
}

// IntLinkName returns the name used for the internal link with the given id
func IntLinkName(id int) string {
	return fmt.Sprintf("int_links%d", id)
}

// RouterDesc is the serializable description of a router
type RouterDesc struct {
	// Name is unique string identifier used to reference the router
	Name string `json:"name" yaml:"name"`

	// ID is the router's position in the router sequence
	ID int `json:"id" yaml:"id"`

	// names of the links attached to the router
	ExtLinks []string `json:"extlinks" yaml:"extlinks"`
	IntLinks []string `json:"intlinks" yaml:"intlinks"`
}

// RouterFrame is the pre-serialization representation of a router
type RouterFrame struct {
	Name     string          // identical to RouterDesc attribute
	ID       int             // identical to RouterDesc attribute
	ExtLinks []*ExtLinkFrame // external links ending at this router
	IntLinks []*IntLinkFrame // internal links with this router at either end
}

// CreateRouterFrame is a constructor
func CreateRouterFrame(id int) *RouterFrame {
	rf := new(RouterFrame)
	rf.ID = id
	rf.Name = RouterName(id)
	rf.ExtLinks = make([]*ExtLinkFrame, 0)
	rf.IntLinks = make([]*IntLinkFrame, 0)

	return rf
}

// Degree returns the number of links (ports) attached to the router
func (rf *RouterFrame) Degree() int {
	return len(rf.ExtLinks) + len(rf.IntLinks)
}

// Transform returns a serializable RouterDesc, transformed from a RouterFrame.
func (rf *RouterFrame) Transform() RouterDesc {
	rd := new(RouterDesc)
	rd.Name = rf.Name
	rd.ID = rf.ID

	// pointers to links become link names
	rd.ExtLinks = make([]string, len(rf.ExtLinks))
	for idx := 0; idx < len(rf.ExtLinks); idx += 1 {
		rd.ExtLinks[idx] = rf.ExtLinks[idx].Name
	}

	rd.IntLinks = make([]string, len(rf.IntLinks))
	for idx := 0; idx < len(rf.IntLinks); idx += 1 {
		rd.IntLinks[idx] = rf.IntLinks[idx].Name
	}

	return *rd
}

// EndptDesc is the serializable description of an endpoint attached to the network
type EndptDesc struct {
	Name   string `json:"name" yaml:"name"`
	Class  string `json:"class" yaml:"class"`
	Router string `json:"router" yaml:"router"`
}

// EndptFrame is the pre-serialization representation of an endpoint
type EndptFrame struct {
	Name   string
	Class  string
	Router *RouterFrame // router the endpoint attaches to
}

// Transform returns a serializable EndptDesc, transformed from an EndptFrame.
func (ef *EndptFrame) Transform() EndptDesc {
	ed := EndptDesc{Name: ef.Name, Class: ef.Class}
	if ef.Router != nil {
		ed.Router = ef.Router.Name
	}
	return ed
}

// ExtLinkDesc is the serializable description of an endpoint-to-router link
type ExtLinkDesc struct {
	Name    string `json:"name" yaml:"name"`
	ID      int    `json:"id" yaml:"id"`
	ExtNode string `json:"extnode" yaml:"extnode"`
	IntNode string `json:"intnode" yaml:"intnode"`
}

// ExtLinkFrame is the pre-serialization representation of an external link
type ExtLinkFrame struct {
	Name    string
	ID      int
	ExtNode *EndptFrame
	IntNode *RouterFrame
}

// Transform returns a serializable ExtLinkDesc, transformed from an ExtLinkFrame.
func (elf *ExtLinkFrame) Transform() ExtLinkDesc {
	return ExtLinkDesc{Name: elf.Name, ID: elf.ID, ExtNode: elf.ExtNode.Name, IntNode: elf.IntNode.Name}
}

// IntLinkDesc is the serializable description of a router-to-router link
type IntLinkDesc struct {
	Name    string `json:"name" yaml:"name"`
	ID      int    `json:"id" yaml:"id"`
	NodeA   string `json:"nodea" yaml:"nodea"`
	NodeB   string `json:"nodeb" yaml:"nodeb"`
	Latency int    `json:"latency" yaml:"latency"`
	Weight  int    `json:"weight" yaml:"weight"`
}

// IntLinkFrame is the pre-serialization representation of an internal link
type IntLinkFrame struct {
	Name    string
	ID      int
	NodeA   *RouterFrame
	NodeB   *RouterFrame
	Latency int
	Weight  int
}

// Transform returns a serializable IntLinkDesc, transformed from an IntLinkFrame.
func (ilf *IntLinkFrame) Transform() IntLinkDesc {
	return IntLinkDesc{Name: ilf.Name, ID: ilf.ID, NodeA: ilf.NodeA.Name, NodeB: ilf.NodeB.Name,
		Latency: ilf.Latency, Weight: ilf.Weight}
}

// The TopoCfgFrame struct gives the highest level structure of the topology,
// is ultimately the encompassing dictionary in the serialization.
// It is the default NetworkBuilder.
type TopoCfgFrame struct {
	Name     string
	Routers  []*RouterFrame
	Endpts   []*EndptFrame
	ExtLinks []*ExtLinkFrame
	IntLinks []*IntLinkFrame

	// look up objects already created
	rtrByID     map[int]*RouterFrame
	endptByName map[string]*EndptFrame
	linkIDs     map[int]bool
}

// CreateTopoCfgFrame is a constructor.
func CreateTopoCfgFrame(name string) *TopoCfgFrame {
	tf := new(TopoCfgFrame)
	tf.Name = name

	// initialize all the TopoCfgFrame slices and maps
	tf.Routers = make([]*RouterFrame, 0)
	tf.Endpts = make([]*EndptFrame, 0)
	tf.ExtLinks = make([]*ExtLinkFrame, 0)
	tf.IntLinks = make([]*IntLinkFrame, 0)
	tf.rtrByID = make(map[int]*RouterFrame)
	tf.endptByName = make(map[string]*EndptFrame)
	tf.linkIDs = make(map[int]bool)

	return tf
}

// AddRouter creates the router with the given id. Routers must be added in
// increasing id order, starting at 0, as their ids are positional.
func (tf *TopoCfgFrame) AddRouter(id int) error {
	if id != len(tf.Routers) {
		return fmt.Errorf("router %d added out of order, expected id %d", id, len(tf.Routers))
	}

	rf := CreateRouterFrame(id)
	tf.Routers = append(tf.Routers, rf)
	tf.rtrByID[id] = rf

	return nil
}

// RouterByID returns the router frame with the given id, if present
func (tf *TopoCfgFrame) RouterByID(id int) (*RouterFrame, bool) {
	rf, present := tf.rtrByID[id]
	return rf, present
}

// claimLinkID returns an error if the link id has been used already
func (tf *TopoCfgFrame) claimLinkID(id int) error {
	if tf.linkIDs[id] {
		return fmt.Errorf("link id %d used more than once", id)
	}
	tf.linkIDs[id] = true
	return nil
}

// AddExtLink connects the endpoint to the router with the given id.
// An endpoint may attach through only one external link.
func (tf *TopoCfgFrame) AddExtLink(id int, endpt Endpoint, router int) error {
	rf, present := tf.rtrByID[router]
	if !present {
		return fmt.Errorf("external link %d names unknown router %d", id, router)
	}

	_, present = tf.endptByName[endpt.EndptName()]
	if present {
		return fmt.Errorf("endpoint %s attached more than once", endpt.EndptName())
	}

	if err := tf.claimLinkID(id); err != nil {
		return err
	}

	ef := &EndptFrame{Name: endpt.EndptName(), Class: endpt.EndptClass(), Router: rf}
	tf.endptByName[ef.Name] = ef
	tf.Endpts = append(tf.Endpts, ef)

	elf := &ExtLinkFrame{Name: ExtLinkName(id), ID: id, ExtNode: ef, IntNode: rf}
	rf.ExtLinks = append(rf.ExtLinks, elf)
	tf.ExtLinks = append(tf.ExtLinks, elf)

	return nil
}

// AddIntLink connects two distinct routers
func (tf *TopoCfgFrame) AddIntLink(id, routerA, routerB, latency, weight int) error {
	rfA, presentA := tf.rtrByID[routerA]
	rfB, presentB := tf.rtrByID[routerB]

	if !presentA || !presentB {
		return fmt.Errorf("internal link %d names unknown router (%d,%d)", id, routerA, routerB)
	}
	if rfA == rfB {
		return fmt.Errorf("internal link %d connects router %d to itself", id, routerA)
	}

	if err := tf.claimLinkID(id); err != nil {
		return err
	}

	ilf := &IntLinkFrame{Name: IntLinkName(id), ID: id, NodeA: rfA, NodeB: rfB, Latency: latency, Weight: weight}
	rfA.IntLinks = append(rfA.IntLinks, ilf)
	rfB.IntLinks = append(rfB.IntLinks, ilf)
	tf.IntLinks = append(tf.IntLinks, ilf)

	return nil
}

// Transform transforms the slices of pointers to network objects
// into slices of instances of those objects, for serialization
func (tf *TopoCfgFrame) Transform() TopoCfg {
	TD := new(TopoCfg)
	TD.Name = tf.Name

	TD.Routers = make([]RouterDesc, 0, len(tf.Routers))
	for _, rtrf := range tf.Routers {
		TD.Routers = append(TD.Routers, rtrf.Transform())
	}

	TD.Endpts = make([]EndptDesc, 0, len(tf.Endpts))
	for _, ef := range tf.Endpts {
		TD.Endpts = append(TD.Endpts, ef.Transform())
	}

	TD.ExtLinks = make([]ExtLinkDesc, 0, len(tf.ExtLinks))
	for _, elf := range tf.ExtLinks {
		TD.ExtLinks = append(TD.ExtLinks, elf.Transform())
	}

	TD.IntLinks = make([]IntLinkDesc, 0, len(tf.IntLinks))
	for _, ilf := range tf.IntLinks {
		TD.IntLinks = append(TD.IntLinks, ilf.Transform())
	}

	return *TD
}

// Type definitions for TopoCfg attributes
type RtrDescSlice []RouterDesc
type EndptDescSlice []EndptDesc
type ExtLinkDescSlice []ExtLinkDesc
type IntLinkDescSlice []IntLinkDesc

// TopoCfg contains all of the routers, endpoints, and links
// as they are listed in the yaml or json file.
type TopoCfg struct {
	Name     string           `json:"name" yaml:"name"`
	Routers  RtrDescSlice     `json:"routers" yaml:"routers"`
	Endpts   EndptDescSlice   `json:"endpts" yaml:"endpts"`
	ExtLinks ExtLinkDescSlice `json:"ext_links" yaml:"ext_links"`
	IntLinks IntLinkDescSlice `json:"int_links" yaml:"int_links"`
}

// RouterPorts returns, for each router name, the number of links attached to it
func (tc *TopoCfg) RouterPorts() map[string]int {
	ports := make(map[string]int)
	for _, rd := range tc.Routers {
		ports[rd.Name] = 0
	}
	for _, el := range tc.ExtLinks {
		ports[el.IntNode] += 1
	}
	for _, il := range tc.IntLinks {
		ports[il.NodeA] += 1
		ports[il.NodeB] += 1
	}
	return ports
}

// A TopoCfgDict holds instances of TopoCfg structures, in a map whose key is
// a name for the topology.  Used to store pre-built instances of networks
type TopoCfgDict struct {
	DictName string             `json:"dictname" yaml:"dictname"`
	Cfgs     map[string]TopoCfg `json:"cfgs" yaml:"cfgs"`
}

// CreateTopoCfgDict is a constructor. Saves the dictionary name, initializes the TopoCfg map.
func CreateTopoCfgDict(name string) *TopoCfgDict {
	tcd := new(TopoCfgDict)
	tcd.DictName = name
	tcd.Cfgs = make(map[string]TopoCfg)

	return tcd
}

// AddTopoCfg includes a TopoCfg into the dictionary, optionally returning an error
// if an TopoCfg with the same name has already been included
func (tcd *TopoCfgDict) AddTopoCfg(tc *TopoCfg, overwrite bool) error {
	if !overwrite {
		_, present := tcd.Cfgs[tc.Name]
		if present {
			return fmt.Errorf("attempt to overwrite TopoCfg %s in TopoCfgDict", tc.Name)
		}
	}

	tcd.Cfgs[tc.Name] = *tc

	return nil
}

// RecoverTopoCfg returns a copy (if one exists) of the TopoCfg with name equal to the input argument name.
// Returns a boolean indicating whether the entry was actually found
func (tcd *TopoCfgDict) RecoverTopoCfg(name string) (*TopoCfg, bool) {
	tc, present := tcd.Cfgs[name]
	if present {
		return &tc, true
	}

	return nil, false
}

// WriteToFile serializes the TopoCfgDict and writes to the file whose name is given as an input argument.
// Extension of the file name selects whether serialization is to json or to yaml format.
func (tcd *TopoCfgDict) WriteToFile(filename string) error {
	return writeSerialized(filename, tcd)
}

// ReadTopoCfgDict deserializes a slice of bytes into a TopoCfgDict.  If the input arg of bytes
// is empty, the file whose name is given as an argument is read.  Error returned if
// any part of the process generates the error.
func ReadTopoCfgDict(topoCfgDictFileName string, useYAML bool, dict []byte) (*TopoCfgDict, error) {
	var err error

	// read from the file only if the byte slice is empty
	if len(dict) == 0 {
		dict, err = readInputFile(topoCfgDictFileName, "topology dict")
		if err != nil {
			return nil, err
		}
	}
	example := TopoCfgDict{}

	if useYAML {
		err = yaml.Unmarshal(dict, &example)
	} else {
		err = json.Unmarshal(dict, &example)
	}
	if err != nil {
		return nil, err
	}

	return &example, nil
}

// WriteToFile serializes the TopoCfg and writes to the file whose name is given as an input argument.
// Extension of the file name selects whether serialization is to json or to yaml format.
func (tc *TopoCfg) WriteToFile(filename string) error {
	return writeSerialized(filename, tc)
}

// ReadTopoCfg deserializes a slice of bytes into a TopoCfg.  If the input arg of bytes
// is empty, the file whose name is given as an argument is read.  Error returned if
// any part of the process generates the error.
func ReadTopoCfg(topoFileName string, useYAML bool, dict []byte) (*TopoCfg, error) {
	var err error

	if len(dict) == 0 {
		dict, err = readInputFile(topoFileName, "topology")
		if err != nil {
			return nil, err
		}
	}

	example := TopoCfg{}

	// input path extension identifies whether we deserialized encoded json or encoded yaml
	if useYAML {
		err = yaml.Unmarshal(dict, &example)
	} else {
		err = json.Unmarshal(dict, &example)
	}

	if err != nil {
		return nil, err
	}

	return &example, nil
}

// readInputFile reads the named file, naming the kind of input in the error when it is missing
func readInputFile(filename, kind string) ([]byte, error) {
	fileInfo, err := os.Stat(filename)
	if os.IsNotExist(err) || (err == nil && fileInfo.IsDir()) {
		return nil, fmt.Errorf("%s %s does not exist or cannot be read", kind, filename)
	}
	return os.ReadFile(filename)
}

// writeSerialized marshals v to yaml or json, chosen by the extension of
// filename, and writes the result to that file
func writeSerialized(filename string, v any) error {
	pathExt := path.Ext(filename)
	var bytes []byte
	var merr error

	if pathExt == ".yaml" || pathExt == ".YAML" || pathExt == ".yml" {
		bytes, merr = yaml.Marshal(v)
	} else if pathExt == ".json" || pathExt == ".JSON" {
		bytes, merr = json.MarshalIndent(v, "", "\t")
	} else {
		return fmt.Errorf("output file %s needs a .yaml, .yml, or .json extension", filename)
	}

	if merr != nil {
		return merr
	}

	f, cerr := os.Create(filename)
	if cerr != nil {
		return cerr
	}
	_, werr := f.Write(bytes)
	cerr = f.Close()

	return ReportErrs([]error{werr, cerr})
}

// ReportErrs transforms a list of errors and transforms the non-nil ones into a single error
// with comma-separated report of all the constituent errors, and returns it.
func ReportErrs(errs []error) error {
	errMsg := make([]string, 0)
	for _, err := range errs {
		if err != nil {
			errMsg = append(errMsg, err.Error())
		}
	}
	if len(errMsg) == 0 {
		return nil
	}

	return errors.New(strings.Join(errMsg, ","))
}

// CheckDirectories probes the file system for the existence
// of every directory listed in the list of files.  Returns a boolean
// indicating whether all dirs are valid, and returns an aggregated error
// if any checks failed.
func CheckDirectories(dirs []string) (bool, error) {
	failures := []string{}

	for _, dir := range dirs {
		if len(dir) == 0 {
			continue
		}

		// having an extension means not a directory
		ext := filepath.Ext(dir)
		if ext != "" {
			failures = append(failures, fmt.Sprintf("%s not a directory", dir))

			continue
		}

		if _, err := os.Stat(dir); err != nil {
			failures = append(failures, fmt.Sprintf("%s not reachable", dir))

			continue
		}
	}
	if len(failures) == 0 {
		return true, nil
	}

	err := errors.New(strings.Join(failures, ","))

	return false, err
}

// CheckReadableFiles probes the file system to ensure that every
// one of the argument filenames exists and is readable
func CheckReadableFiles(names []string) (bool, error) {
	return CheckFiles(names, true)
}

// CheckOutputFiles probes the file system to ensure that every
// argument filename can be written.
func CheckOutputFiles(names []string) (bool, error) {
	return CheckFiles(names, false)
}

// CheckFiles probes the file system for permitted access to all the
// argument filenames, optionally checking also for the existence
// of those files for the purposes of reading them.  Empty names are skipped.
func CheckFiles(names []string, checkExistence bool) (bool, error) {
	errs := make([]error, 0)

	for _, name := range names {
		if len(name) == 0 {
			continue
		}

		// split off the directory portion of the path
		directory, _ := filepath.Split(name)
		if len(directory) == 0 {
			continue
		}
		if _, err := os.Stat(directory); err != nil {
			errs = append(errs, fmt.Errorf("directory of %s: %w", name, err))
		}
	}

	if checkExistence {
		for _, name := range names {
			if len(name) == 0 {
				continue
			}
			if _, err := os.Stat(name); err != nil {
				errs = append(errs, err)
			}
		}
	}

	if len(errs) == 0 {
		return true, nil
	}

	return false, ReportErrs(errs)
}
