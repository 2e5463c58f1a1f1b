// CPU utilization source: reads /proc/stat every tick and leaves the
// cumulative-jiffy to percentage conversion to Transform, per the
// uniform raw-to-TimeSeries pipeline.
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

// CPUSource samples /proc/stat.
type CPUSource struct {
	procRoot string
}

func NewCPUSource(procRoot string) *CPUSource {
	return &CPUSource{procRoot: procRoot}
}

func (c *CPUSource) Name() string    { return "cpu_utilization" }
func (c *CPUSource) Static() bool    { return false }
func (c *CPUSource) IsProfile() bool { return false }

func (c *CPUSource) Collect(ctx context.Context, env Environment) (model.RawRecord, error) {
	data, err := os.ReadFile(filepath.Join(c.procRoot, "stat"))
	if err != nil {
		return model.RawRecord{}, fmt.Errorf("cpu_utilization: read /proc/stat: %w", err)
	}
	return model.RawRecord{Timestamp: time.Now(), Payload: data}, nil
}

// cpuTimes holds jiffies for each CPU state.
type cpuTimes struct {
	user, nice, system, idle, iowait, irq, softirq, steal uint64
}

func (t cpuTimes) total() uint64 {
	return t.user + t.nice + t.system + t.idle + t.iowait + t.irq + t.softirq + t.steal
}

var cpuStates = []string{"user", "nice", "system", "idle", "iowait", "irq", "softirq", "steal"}

func stateValue(t cpuTimes, state string) uint64 {
	switch state {
	case "user":
		return t.user
	case "nice":
		return t.nice
	case "system":
		return t.system
	case "idle":
		return t.idle
	case "iowait":
		return t.iowait
	case "irq":
		return t.irq
	case "softirq":
		return t.softirq
	case "steal":
		return t.steal
	}
	return 0
}

// parseProcStatLine parses the whole /proc/stat payload into the
// aggregate "cpu" line plus the per-CPU-number lines.
func parseProcStatLine(payload []byte) (cpuTimes, map[int]cpuTimes) {
	var agg cpuTimes
	perCPU := make(map[int]cpuTimes)

	scanner := bufio.NewScanner(strings.NewReader(string(payload)))
	for scanner.Scan() {
		fields := strings.Fields(scanner.Text())
		if len(fields) < 9 {
			continue
		}
		if fields[0] == "cpu" {
			agg = parseCPUFields(fields)
		} else if strings.HasPrefix(fields[0], "cpu") {
			n, err := strconv.Atoi(strings.TrimPrefix(fields[0], "cpu"))
			if err == nil {
				perCPU[n] = parseCPUFields(fields)
			}
		}
	}
	return agg, perCPU
}

func parseCPUFields(fields []string) cpuTimes {
	parse := func(idx int) uint64 {
		if idx >= len(fields) {
			return 0
		}
		v, _ := strconv.ParseUint(fields[idx], 10, 64)
		return v
	}
	return cpuTimes{
		user: parse(1), nice: parse(2), system: parse(3), idle: parse(4),
		iowait: parse(5), irq: parse(6), softirq: parse(7), steal: parse(8),
	}
}

// Transform implements the CPU delta rule from §4.3: per CPU state,
// per-CPU percentage = state_delta/total_delta*100, first point
// forced to zero; the aggregate is the mean across CPUs, plus a
// synthetic "total" metric = 100 - idle% aggregate.
func (c *CPUSource) Transform(records []model.RawRecord, env Environment) (model.Artifact, error) {
	ts := model.NewTimeSeries()
	if len(records) == 0 {
		return model.Artifact{TimeSeries: ts}, nil
	}

	t0 := records[0].Timestamp
	metrics := make(map[string]*model.Metric, len(cpuStates))
	cpuRange := &model.ValueRange{Min: 0, Max: 100}
	for _, state := range cpuStates {
		metrics[state] = ts.MetricFor(state)
	}
	totalMetric := ts.MetricFor("total")

	var prevPerCPU map[int]cpuTimes
	cpuSeries := make(map[string]map[int]*model.Series) // state -> cpu -> series
	for _, state := range cpuStates {
		cpuSeries[state] = make(map[int]*model.Series)
	}
	totalAggSeries := model.Series{Name: "Aggregate", IsAggregate: true}

	for i, rec := range records {
		offset := uint64(rec.Timestamp.Sub(t0).Seconds())
		_, perCPU := parseProcStatLine(rec.Payload)

		cpuNums := make([]int, 0, len(perCPU))
		for n := range perCPU {
			cpuNums = append(cpuNums, n)
		}
		sort.Ints(cpuNums)

		perStateAggSum := make(map[string]float64, len(cpuStates))
		var idleAggSum float64
		var countedCPUs int

		for _, n := range cpuNums {
			cur := perCPU[n]
			var prev cpuTimes
			if i > 0 {
				prev = prevPerCPU[n]
			}
			totalDelta := float64(cur.total() - prev.total())
			if i == 0 {
				for _, state := range cpuStates {
					s := cpuSeriesFor(cpuSeries, state, n)
					s.Append(offset, 0)
				}
				continue
			}
			if totalDelta <= 0 {
				continue
			}
			countedCPUs++
			for _, state := range cpuStates {
				delta := float64(stateValue(cur, state) - stateValue(prev, state))
				pct := delta / totalDelta * 100
				s := cpuSeriesFor(cpuSeries, state, n)
				s.Append(offset, pct)
				perStateAggSum[state] += pct
			}
			idleAggSum += (float64(cur.idle-prev.idle) / totalDelta) * 100
		}

		if i == 0 {
			for _, state := range cpuStates {
				aggSeries := aggregateSeriesFor(metrics[state])
				aggSeries.Append(offset, 0)
			}
			totalAggSeries.Append(offset, 0)
			prevPerCPU = perCPU
			continue
		}

		for _, state := range cpuStates {
			mean := 0.0
			if countedCPUs > 0 {
				mean = perStateAggSum[state] / float64(countedCPUs)
			}
			aggregateSeriesFor(metrics[state]).Append(offset, mean)
		}
		idleMean := 0.0
		if countedCPUs > 0 {
			idleMean = idleAggSum / float64(countedCPUs)
		}
		totalAggSeries.Append(offset, 100-idleMean)

		prevPerCPU = perCPU
	}

	for _, state := range cpuStates {
		m := metrics[state]
		cpuNums := make([]int, 0, len(cpuSeries[state]))
		for n := range cpuSeries[state] {
			cpuNums = append(cpuNums, n)
		}
		sort.Ints(cpuNums)
		reordered := make([]model.Series, 0, len(cpuNums)+1)
		for _, n := range cpuNums {
			reordered = append(reordered, *cpuSeries[state][n])
		}
		for _, s := range m.Series {
			if s.IsAggregate {
				reordered = append(reordered, s)
			}
		}
		m.Series = reordered
		if agg := m.Aggregate(); agg != nil {
			m.Stats = transform.Stats(agg.Values, true)
		}
		m.ValueRange = transform.ValueRange(nil, cpuRange)
		transform.Compress(m)
	}
	totalMetric.Series = []model.Series{totalAggSeries}
	totalMetric.Stats = transform.Stats(totalAggSeries.Values, true)
	totalMetric.ValueRange = transform.ValueRange(nil, cpuRange)

	return model.Artifact{TimeSeries: ts}, nil
}

func cpuSeriesFor(m map[string]map[int]*model.Series, state string, cpu int) *model.Series {
	s, ok := m[state][cpu]
	if !ok {
		s = &model.Series{Name: fmt.Sprintf("cpu%d", cpu)}
		m[state][cpu] = s
	}
	return s
}

func aggregateSeriesFor(m *model.Metric) *model.Series {
	for i := range m.Series {
		if m.Series[i].IsAggregate {
			return &m.Series[i]
		}
	}
	m.Series = append(m.Series, model.Series{Name: "Aggregate", IsAggregate: true})
	return &m.Series[len(m.Series)-1]
}
