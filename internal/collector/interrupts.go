// Interrupts source: reads /proc/interrupts every tick. Transform
// delta-encodes per interrupt line and per CPU column; the synthetic
// "MIS"/"ERR" trailer rows in /proc/interrupts carry a single scalar
// counter instead of one value per CPU.
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

type InterruptsSource struct {
	procRoot string
}

func NewInterruptsSource(procRoot string) *InterruptsSource {
	return &InterruptsSource{procRoot: procRoot}
}

func (c *InterruptsSource) Name() string    { return "interrupts" }
func (c *InterruptsSource) Static() bool    { return false }
func (c *InterruptsSource) IsProfile() bool { return false }

func (c *InterruptsSource) Collect(ctx context.Context, env Environment) (model.RawRecord, error) {
	data, err := os.ReadFile(filepath.Join(c.procRoot, "interrupts"))
	if err != nil {
		return model.RawRecord{}, fmt.Errorf("interrupts: read /proc/interrupts: %w", err)
	}
	return model.RawRecord{Timestamp: time.Now(), Payload: data}, nil
}

// interruptLine is one row of /proc/interrupts: an IRQ label (numeric
// IRQ or a scalar trailer row like "MIS"/"ERR") and its per-CPU counts
// (empty for scalar trailer rows, which instead carry a single value).
type interruptLine struct {
	label    string
	perCPU   []uint64
	isScalar bool
	scalar   uint64
}

func parseInterrupts(payload []byte) (numCPU int, lines []interruptLine) {
	scanner := bufio.NewScanner(strings.NewReader(string(payload)))
	if !scanner.Scan() {
		return 0, nil
	}
	header := strings.Fields(scanner.Text())
	numCPU = len(header)

	for scanner.Scan() {
		fields := strings.Fields(scanner.Text())
		if len(fields) == 0 {
			continue
		}
		label := strings.TrimSuffix(fields[0], ":")

		// Scalar trailer rows (ERR, MIS, ...) carry exactly one count
		// with no per-CPU breakdown.
		if len(fields) == 2 {
			if v, err := strconv.ParseUint(fields[1], 10, 64); err == nil {
				lines = append(lines, interruptLine{label: label, isScalar: true, scalar: v})
				continue
			}
		}

		counts := make([]uint64, 0, numCPU)
		for i := 1; i < len(fields) && i <= numCPU; i++ {
			v, err := strconv.ParseUint(fields[i], 10, 64)
			if err != nil {
				break
			}
			counts = append(counts, v)
		}
		if len(counts) == 0 {
			continue
		}
		lines = append(lines, interruptLine{label: label, perCPU: counts})
	}
	return numCPU, lines
}

func (c *InterruptsSource) Transform(records []model.RawRecord, env Environment) (model.Artifact, error) {
	ts := model.NewTimeSeries()
	if len(records) == 0 {
		return model.Artifact{TimeSeries: ts}, nil
	}
	t0 := records[0].Timestamp

	metrics := make(map[string]*model.Metric)
	cpuSeries := make(map[string]map[int]*model.Series) // label -> cpu -> series
	scalarSeries := make(map[string]*model.Series)       // label -> series

	prevCPU := make(map[string][]uint64)
	prevScalar := make(map[string]uint64)

	for i, rec := range records {
		offset := uint64(rec.Timestamp.Sub(t0).Seconds())
		_, lines := parseInterrupts(rec.Payload)

		for _, l := range lines {
			m, ok := metrics[l.label]
			if !ok {
				m = ts.MetricFor(l.label)
				metrics[l.label] = m
			}

			if l.isScalar {
				s, ok := scalarSeries[l.label]
				if !ok {
					s = &model.Series{}
					scalarSeries[l.label] = s
				}
				var value float64
				if i == 0 {
					value = 0
				} else {
					prev, had := prevScalar[l.label]
					if !had || l.scalar < prev {
						value = 0
					} else {
						value = float64(l.scalar - prev)
					}
				}
				s.Append(offset, value)
				prevScalar[l.label] = l.scalar
				continue
			}

			if _, ok := cpuSeries[l.label]; !ok {
				cpuSeries[l.label] = make(map[int]*model.Series)
			}
			prev := prevCPU[l.label]
			perCPUSum := make(map[int]float64, len(l.perCPU))
			for n, v := range l.perCPU {
				s, ok := cpuSeries[l.label][n]
				if !ok {
					s = &model.Series{Name: fmt.Sprintf("cpu%d", n)}
					cpuSeries[l.label][n] = s
				}
				var value float64
				if i == 0 {
					value = 0
				} else if n < len(prev) {
					if v < prev[n] {
						value = 0
					} else {
						value = float64(v - prev[n])
					}
				}
				s.Append(offset, value)
				perCPUSum[n] = value
			}
			aggMean := 0.0
			if len(perCPUSum) > 0 {
				var sum float64
				for _, v := range perCPUSum {
					sum += v
				}
				aggMean = sum / float64(len(perCPUSum))
			}
			aggregateSeriesFor(m).Append(offset, aggMean)
			prevCPU[l.label] = l.perCPU
		}
	}

	for label, m := range metrics {
		if s, ok := scalarSeries[label]; ok {
			m.Series = []model.Series{*s}
			m.Stats = transform.Stats(s.Values, true)
			m.ValueRange = transform.ValueRange(s.Values, nil)
			transform.Compress(m)
			continue
		}
		cpus := make([]int, 0, len(cpuSeries[label]))
		for n := range cpuSeries[label] {
			cpus = append(cpus, n)
		}
		sort.Ints(cpus)
		reordered := make([]model.Series, 0, len(cpus)+1)
		for _, n := range cpus {
			reordered = append(reordered, *cpuSeries[label][n])
		}
		for _, s := range m.Series {
			if s.IsAggregate {
				reordered = append(reordered, s)
			}
		}
		m.Series = reordered
		var aggValues []float64
		if a := m.Aggregate(); a != nil {
			aggValues = a.Values
			m.Stats = transform.Stats(a.Values, true)
		}
		m.ValueRange = transform.ValueRange(aggValues, nil)
		transform.Compress(m)
	}

	return model.Artifact{TimeSeries: ts}, nil
}
