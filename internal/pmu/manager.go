package pmu

import (
	"bufio"
	"context"
	"fmt"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/dmitriimaksimovdevelop/aperf/internal/collector"
	"github.com/dmitriimaksimovdevelop/aperf/internal/model"
	"github.com/dmitriimaksimovdevelop/aperf/internal/transform"
)

// Manager is the collector.Source implementing the PMU event-group
// manager (§4.2). It owns one hardware-counter group per (CPU, named
// counter) pair, opened in Prepare and torn down in Finish.
type Manager struct {
	procRoot     string
	sysRoot      string
	overridePath string

	counters []NamedCounter
	groups   []*cpuGroup
}

// NewManager constructs a Manager. overridePath may be empty, in
// which case only the built-in vendor/model counter list is used.
func NewManager(procRoot, sysRoot, overridePath string) *Manager {
	return &Manager{procRoot: procRoot, sysRoot: sysRoot, overridePath: overridePath}
}

func (m *Manager) Name() string    { return "pmu" }
func (m *Manager) Static() bool    { return false }
func (m *Manager) IsProfile() bool { return false }

// Prepare detects the CPU vendor/model, selects and merges the
// counter list, opens one group per (cpu, counter) pair, and persists
// the effective list into the run directory for report-phase replay.
func (m *Manager) Prepare(ctx context.Context, env collector.Environment) error {
	id, err := DetectCPUIdentity(m.procRoot)
	if err != nil {
		return err
	}
	counters := BuiltinCounters(id)
	if m.overridePath != "" {
		overrides, err := LoadOverrides(m.overridePath)
		if err != nil {
			return err
		}
		counters = MergeByName(counters, overrides)
	}
	m.counters = counters

	cpus, err := onlineCPUs(m.sysRoot)
	if err != nil {
		return err
	}

	for _, cpu := range cpus {
		for _, nc := range counters {
			g, err := openGroup(cpu, nc)
			if err != nil {
				m.closeGroups()
				return err
			}
			m.groups = append(m.groups, g)
		}
	}

	if env.RunDirectory != "" {
		path := filepath.Join(env.RunDirectory, "pmu_config.json")
		if err := PersistEffectiveConfig(counters, path); err != nil {
			m.closeGroups()
			return err
		}
	}
	return nil
}

// Finish closes every open counter group.
func (m *Manager) Finish(ctx context.Context, env collector.Environment) error {
	m.closeGroups()
	return nil
}

func (m *Manager) closeGroups() {
	for _, g := range m.groups {
		g.close()
	}
	m.groups = nil
}

// Collect reads and resets every group, emitting one line per group:
// "<cpu> <name>; <n1 n2 …>; <d1 d2 …>; <scale>".
func (m *Manager) Collect(ctx context.Context, env collector.Environment) (model.RawRecord, error) {
	var buf strings.Builder
	for _, g := range m.groups {
		nrs, drs, err := g.readAndReset()
		if err != nil {
			return model.RawRecord{}, err
		}
		fmt.Fprintf(&buf, "%d %s; %s; %s; %d\n", g.cpu, g.name, joinUint64(nrs), joinUint64(drs), g.scale)
	}
	return model.RawRecord{Timestamp: time.Now(), Payload: []byte(buf.String())}, nil
}

func joinUint64(vs []uint64) string {
	parts := make([]string, len(vs))
	for i, v := range vs {
		parts[i] = strconv.FormatUint(v, 10)
	}
	return strings.Join(parts, " ")
}

// pmuLine is one parsed "<cpu> <name>; n1 n2 …; d1 d2 …; scale" entry.
type pmuLine struct {
	cpu          int
	name         string
	numeratorSum float64
	denomSum     float64
	scale        uint64
}

func parsePMULine(line string) (pmuLine, bool) {
	fields := strings.SplitN(line, " ", 2)
	if len(fields) != 2 {
		return pmuLine{}, false
	}
	cpu, err := strconv.Atoi(fields[0])
	if err != nil {
		return pmuLine{}, false
	}
	parts := strings.Split(fields[1], ";")
	if len(parts) != 4 {
		return pmuLine{}, false
	}
	name := strings.TrimSpace(parts[0])
	scale, err := strconv.ParseUint(strings.TrimSpace(parts[3]), 10, 64)
	if err != nil {
		return pmuLine{}, false
	}
	sum := func(s string) float64 {
		var total float64
		for _, f := range strings.Fields(s) {
			v, err := strconv.ParseUint(f, 10, 64)
			if err == nil {
				total += float64(v)
			}
		}
		return total
	}
	return pmuLine{
		cpu:          cpu,
		name:         name,
		numeratorSum: sum(parts[1]),
		denomSum:     sum(parts[2]),
		scale:        scale,
	}, true
}

// Transform implements the PMU derived-metric rule from §4.2: for
// every tick and named counter, per-CPU value = (Σnr/Σdr)*scale, and
// the cross-CPU aggregate is the weighted average
// (Σ_cpu Σnr_cpu*scale) / (Σ_cpu Σdr_cpu), not the mean of per-CPU
// ratios. A zero denominator yields no point for that series rather
// than a NaN value.
func (m *Manager) Transform(records []model.RawRecord, env collector.Environment) (model.Artifact, error) {
	ts := model.NewTimeSeries()
	if len(records) == 0 {
		return model.Artifact{TimeSeries: ts}, nil
	}
	t0 := records[0].Timestamp

	type perCPUSeries map[int]*model.Series
	cpuSeriesByName := make(map[string]perCPUSeries)
	aggSeriesByName := make(map[string]*model.Series)

	for _, rec := range records {
		offset := uint64(rec.Timestamp.Sub(t0).Seconds())
		scanner := bufio.NewScanner(strings.NewReader(string(rec.Payload)))

		aggNumerator := make(map[string]float64)
		aggDenom := make(map[string]float64)

		for scanner.Scan() {
			ln, ok := parsePMULine(scanner.Text())
			if !ok {
				continue
			}
			if cpuSeriesByName[ln.name] == nil {
				cpuSeriesByName[ln.name] = make(perCPUSeries)
			}
			if ln.denomSum != 0 {
				value := (ln.numeratorSum / ln.denomSum) * float64(ln.scale)
				s, ok := cpuSeriesByName[ln.name][ln.cpu]
				if !ok {
					s = &model.Series{Name: fmt.Sprintf("cpu%d", ln.cpu)}
					cpuSeriesByName[ln.name][ln.cpu] = s
				}
				s.Append(offset, value)
			}
			aggNumerator[ln.name] += ln.numeratorSum * float64(ln.scale)
			aggDenom[ln.name] += ln.denomSum
		}

		for name, dr := range aggDenom {
			if dr == 0 {
				continue
			}
			s, ok := aggSeriesByName[name]
			if !ok {
				s = &model.Series{Name: "Aggregate", IsAggregate: true}
				aggSeriesByName[name] = s
			}
			s.Append(offset, aggNumerator[name]/dr)
		}
	}

	for name, perCPU := range cpuSeriesByName {
		metric := ts.MetricFor(name)
		cpus := make([]int, 0, len(perCPU))
		for c := range perCPU {
			cpus = append(cpus, c)
		}
		sort.Ints(cpus)
		for _, c := range cpus {
			metric.Series = append(metric.Series, *perCPU[c])
		}
		if agg, ok := aggSeriesByName[name]; ok {
			metric.Series = append(metric.Series, *agg)
			metric.Stats = transform.Stats(agg.Values, false)
			metric.ValueRange = transform.ValueRange(agg.Values, nil)
		}
		transform.Compress(metric)
	}

	return model.Artifact{TimeSeries: ts}, nil
}
