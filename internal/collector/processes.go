// Processes source: reads every /proc/[pid]/stat every tick. Transform
// converts utime/stime jiffy deltas to user/kernel percentages using
// the run's HZ, keeps vsize/rss/threads as snapshots, and retains only
// the top 16 processes ranked by total CPU percentage summed across
// every sample.
package collector

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/dmitriimaksimovdevelop/aperf/internal/model"
	"github.com/dmitriimaksimovdevelop/aperf/internal/transform"
)

const topProcessCount = 16

type ProcessesSource struct {
	procRoot string
}

func NewProcessesSource(procRoot string) *ProcessesSource {
	return &ProcessesSource{procRoot: procRoot}
}

func (c *ProcessesSource) Name() string    { return "processes" }
func (c *ProcessesSource) Static() bool    { return false }
func (c *ProcessesSource) IsProfile() bool { return false }

// Collect concatenates every PID's /proc/[pid]/stat content, each
// prefixed with a "## <pid>" marker line, into one raw record.
func (c *ProcessesSource) Collect(ctx context.Context, env Environment) (model.RawRecord, error) {
	entries, err := os.ReadDir(c.procRoot)
	if err != nil {
		return model.RawRecord{}, fmt.Errorf("processes: read %s: %w", c.procRoot, err)
	}

	var buf strings.Builder
	for _, e := range entries {
		pid, err := strconv.Atoi(e.Name())
		if err != nil {
			continue
		}
		if env.PIDTracker != nil && env.PIDTracker.IsOwnPID(pid) {
			continue
		}
		data, err := os.ReadFile(filepath.Join(c.procRoot, e.Name(), "stat"))
		if err != nil {
			continue
		}
		fmt.Fprintf(&buf, "## %d\n", pid)
		buf.Write(data)
		if data[len(data)-1] != '\n' {
			buf.WriteByte('\n')
		}
	}
	return model.RawRecord{Timestamp: time.Now(), Payload: []byte(buf.String())}, nil
}

type processStat struct {
	comm    string
	state   string
	utime   uint64
	stime   uint64
	vsize   uint64
	rss     uint64
	threads uint64
}

// parseProcessesPayload splits the "## <pid>" sections and parses each
// PID's /proc/[pid]/stat line, handling a comm field that may itself
// contain spaces or parentheses.
func parseProcessesPayload(payload []byte) map[int]processStat {
	result := make(map[int]processStat)
	var pid int
	var havePID bool

	scanner := bufio.NewScanner(strings.NewReader(string(payload)))
	for scanner.Scan() {
		line := scanner.Text()
		if strings.HasPrefix(line, "## ") {
			p, err := strconv.Atoi(strings.TrimPrefix(line, "## "))
			havePID = err == nil
			pid = p
			continue
		}
		if !havePID {
			continue
		}
		ps, ok := parseStatLine(line)
		if ok {
			result[pid] = ps
		}
		havePID = false
	}
	return result
}

func parseStatLine(line string) (processStat, bool) {
	commStart := strings.Index(line, "(")
	commEnd := strings.LastIndex(line, ")")
	if commStart < 0 || commEnd < 0 || commEnd < commStart {
		return processStat{}, false
	}
	comm := line[commStart+1 : commEnd]
	rest := strings.Fields(line[commEnd+2:])

	ps := processStat{comm: comm}
	if len(rest) > 0 {
		ps.state = rest[0]
	}
	if len(rest) > 12 {
		ps.utime, _ = strconv.ParseUint(rest[11], 10, 64)
		ps.stime, _ = strconv.ParseUint(rest[12], 10, 64)
	}
	if len(rest) > 17 {
		ps.threads, _ = strconv.ParseUint(rest[17], 10, 64)
	}
	if len(rest) > 20 {
		ps.vsize, _ = strconv.ParseUint(rest[20], 10, 64)
	}
	if len(rest) > 21 {
		ps.rss, _ = strconv.ParseUint(rest[21], 10, 64)
	}
	return ps, true
}

func (c *ProcessesSource) Transform(records []model.RawRecord, env Environment) (model.Artifact, error) {
	ts := model.NewTimeSeries()
	if len(records) == 0 {
		return model.Artifact{TimeSeries: ts}, nil
	}
	t0 := records[0].Timestamp
	hz := env.HZ
	if hz == 0 {
		hz = 100
	}

	userSeries := make(map[int]*model.Series)
	kernelSeries := make(map[int]*model.Series)
	vsizeSeries := make(map[int]*model.Series)
	rssSeries := make(map[int]*model.Series)
	threadsSeries := make(map[int]*model.Series)
	totalCPU := make(map[int]float64)

	var prev map[int]processStat
	var prevTime time.Time
	for i, rec := range records {
		offset := uint64(rec.Timestamp.Sub(t0).Seconds())
		cur := parseProcessesPayload(rec.Payload)
		dt := rec.Timestamp.Sub(prevTime).Seconds()

		for pid, ps := range cur {
			name := fmt.Sprintf("%d:%s", pid, ps.comm)
			userS := seriesFor(userSeries, pid, name)
			kernelS := seriesFor(kernelSeries, pid, name)
			vsizeS := seriesFor(vsizeSeries, pid, name)
			rssS := seriesFor(rssSeries, pid, name)
			threadsS := seriesFor(threadsSeries, pid, name)

			var userPct, kernelPct float64
			if i > 0 && dt > 0 {
				prevPS, had := prev[pid]
				if had {
					if ps.utime >= prevPS.utime {
						userPct = float64(ps.utime-prevPS.utime) / (float64(hz) * dt) * 100
					}
					if ps.stime >= prevPS.stime {
						kernelPct = float64(ps.stime-prevPS.stime) / (float64(hz) * dt) * 100
					}
				}
			}

			userS.Append(offset, userPct)
			kernelS.Append(offset, kernelPct)
			vsizeS.Append(offset, float64(ps.vsize)/1000)
			rssS.Append(offset, float64(ps.rss))
			threadsS.Append(offset, float64(ps.threads))
			totalCPU[pid] += userPct + kernelPct
		}

		prev = cur
		prevTime = rec.Timestamp
	}

	top := topPIDs(totalCPU, topProcessCount)

	userMetric := ts.MetricFor("user")
	kernelMetric := ts.MetricFor("kernel")
	vsizeMetric := ts.MetricFor("vsize")
	rssMetric := ts.MetricFor("rss")
	threadsMetric := ts.MetricFor("threads")

	for _, pid := range top {
		userMetric.Series = append(userMetric.Series, *userSeries[pid])
		kernelMetric.Series = append(kernelMetric.Series, *kernelSeries[pid])
		vsizeMetric.Series = append(vsizeMetric.Series, *vsizeSeries[pid])
		rssMetric.Series = append(rssMetric.Series, *rssSeries[pid])
		threadsMetric.Series = append(threadsMetric.Series, *threadsSeries[pid])
	}

	for _, m := range []*model.Metric{userMetric, kernelMetric, vsizeMetric, rssMetric, threadsMetric} {
		var all []float64
		for _, s := range m.Series {
			all = append(all, s.Values...)
		}
		m.Stats = transform.Stats(all, false)
		m.ValueRange = transform.ValueRange(all, nil)
	}

	return model.Artifact{TimeSeries: ts}, nil
}

func seriesFor(m map[int]*model.Series, pid int, name string) *model.Series {
	s, ok := m[pid]
	if !ok {
		s = &model.Series{Name: name}
		m[pid] = s
	}
	return s
}

// topPIDs returns up to n PIDs ranked by descending summed value.
func topPIDs(totals map[int]float64, n int) []int {
	pids := make([]int, 0, len(totals))
	for pid := range totals {
		pids = append(pids, pid)
	}
	sort.Slice(pids, func(i, j int) bool {
		if totals[pids[i]] != totals[pids[j]] {
			return totals[pids[i]] > totals[pids[j]]
		}
		return pids[i] < pids[j]
	})
	if len(pids) > n {
		pids = pids[:n]
	}
	return pids
}
