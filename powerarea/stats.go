package powerarea

// stats.go reads the simulator's stats file, a sequence of "name value" lines,
// extracting whole-run times, per-router activity, and link utilization

import (
	"bufio"
	"bytes"
	"fmt"
	"io"
	"os"
	"regexp"
	"strconv"
	"strings"
)

// NetworkStats holds the whole-run time statistics
type NetworkStats struct {
	SimSeconds float64 `json:"simseconds" yaml:"simseconds"`
	SimTicks   int64   `json:"simticks" yaml:"simticks"`
	SimFreq    float64 `json:"simfreq" yaml:"simfreq"`
}

// RouterStats holds the activity counters of one router
type RouterStats struct {
	BufferWrites     int64 `json:"bufferwrites" yaml:"bufferwrites"`
	BufferReads      int64 `json:"bufferreads" yaml:"bufferreads"`
	CrossbarActivity int64 `json:"crossbaractivity" yaml:"crossbaractivity"`
	SwInArbActivity  int64 `json:"swinarbactivity" yaml:"swinarbactivity"`
	SwOutArbActivity int64 `json:"swoutarbactivity" yaml:"swoutarbactivity"`
}

// LinkStats holds the aggregate activity of all links
type LinkStats struct {
	Activity int64 `json:"activity" yaml:"activity"`
}

var (
	statLine        = regexp.MustCompile(`^(\S+)\s+(\S+)`)
	simSecondsLine  = regexp.MustCompile(`^sim_seconds\b`)
	simTicksLine    = regexp.MustCompile(`^sim_ticks\b`)
	simFreqLine     = regexp.MustCompile(`^sim_freq\b`)
	linkUtilization = regexp.MustCompile(`avg_link_utilization`)
)

// routerCounters maps a stat name suffix to the counter it fills
var routerCounters = []struct {
	suffix string
	field  func(*RouterStats) *int64
}{
	{"buffer_writes", func(rs *RouterStats) *int64 { return &rs.BufferWrites }},
	{"buffer_reads", func(rs *RouterStats) *int64 { return &rs.BufferReads }},
	{"crossbar_activity", func(rs *RouterStats) *int64 { return &rs.CrossbarActivity }},
	{"sw_input_arbiter_activity", func(rs *RouterStats) *int64 { return &rs.SwInArbActivity }},
	{"sw_output_arbiter_activity", func(rs *RouterStats) *int64 { return &rs.SwOutArbActivity }},
}

// scanStats calls visit with the name and value of every "name value" line
func scanStats(r io.Reader, visit func(name, value, line string) error) error {
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		line := scanner.Text()
		m := statLine.FindStringSubmatch(line)
		if m == nil {
			continue
		}
		if err := visit(m[1], m[2], line); err != nil {
			return err
		}
	}
	return scanner.Err()
}

// ParseNetworkStats extracts sim_seconds, sim_ticks, and sim_freq
func ParseNetworkStats(r io.Reader) (NetworkStats, error) {
	ns := NetworkStats{}
	found := 0

	err := scanStats(r, func(name, value, line string) error {
		var perr error
		switch {
		case simSecondsLine.MatchString(line):
			ns.SimSeconds, perr = strconv.ParseFloat(value, 64)
			found += 1
		case simTicksLine.MatchString(line):
			ns.SimTicks, perr = strconv.ParseInt(value, 10, 64)
			found += 1
		case simFreqLine.MatchString(line):
			ns.SimFreq, perr = strconv.ParseFloat(value, 64)
			found += 1
		}
		if perr != nil {
			return fmt.Errorf("stat %s: %w", name, perr)
		}
		return nil
	})
	if err != nil {
		return ns, err
	}
	if found == 0 {
		return ns, fmt.Errorf("no sim_seconds, sim_ticks, or sim_freq in stats")
	}
	return ns, nil
}

// ParseRouterStats extracts the activity counters of the named router.  Only
// lines whose name starts with the router name followed by '.' count, so that
// routers1 does not pick up the lines of routers10.
func ParseRouterStats(r io.Reader, router string) (RouterStats, error) {
	rs := RouterStats{}
	prefix := regexp.MustCompile(`^` + regexp.QuoteMeta(router) + `\.`)
	found := false

	err := scanStats(r, func(name, value, line string) error {
		if !prefix.MatchString(name) {
			return nil
		}
		for _, rc := range routerCounters {
			if !strings.HasSuffix(name, "."+rc.suffix) {
				continue
			}
			count, perr := strconv.ParseFloat(value, 64)
			if perr != nil {
				return fmt.Errorf("stat %s: %w", name, perr)
			}
			*rc.field(&rs) = int64(count)
			found = true
		}
		return nil
	})
	if err != nil {
		return rs, err
	}
	if !found {
		return rs, fmt.Errorf("no activity stats for router %s", router)
	}
	return rs, nil
}

// ParseLinkStats extracts the average link utilization, scaled by simTicks into an activity count
func ParseLinkStats(r io.Reader, simTicks int64) (LinkStats, error) {
	ls := LinkStats{}
	found := false

	err := scanStats(r, func(name, value, line string) error {
		if !linkUtilization.MatchString(name) {
			return nil
		}
		util, perr := strconv.ParseFloat(value, 64)
		if perr != nil {
			return fmt.Errorf("stat %s: %w", name, perr)
		}
		ls.Activity = int64(util * float64(simTicks))
		found = true
		return nil
	})
	if err != nil {
		return ls, err
	}
	if !found {
		return ls, fmt.Errorf("no avg_link_utilization in stats")
	}
	return ls, nil
}

// StatsFile holds the contents of a stats file so that each parse reads it afresh
type StatsFile struct {
	Name string
	body []byte
}

// OpenStatsFile reads the named stats file
func OpenStatsFile(filename string) (*StatsFile, error) {
	body, err := os.ReadFile(filename)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s for reading: %w", filename, err)
	}
	return &StatsFile{Name: filename, body: body}, nil
}

// Network parses the whole-run statistics
func (sf *StatsFile) Network() (NetworkStats, error) {
	return ParseNetworkStats(bytes.NewReader(sf.body))
}

// Router parses the statistics of the named router
func (sf *StatsFile) Router(router string) (RouterStats, error) {
	return ParseRouterStats(bytes.NewReader(sf.body), router)
}

// Links parses the aggregate link statistics
func (sf *StatsFile) Links(simTicks int64) (LinkStats, error) {
	return ParseLinkStats(bytes.NewReader(sf.body), simTicks)
}
