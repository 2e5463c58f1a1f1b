// NUMA source: reads /sys/devices/system/node/node*/numastat every
// tick. Every counter there is cumulative since boot, so Transform
// delta-encodes per node and aggregates with a cross-node mean, the
// same shape as the CPU source.
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

var numastatFields = []string{"numa_hit", "numa_miss", "numa_foreign", "interleave_hit", "local_node", "other_node"}

type NUMASource struct {
	sysRoot string
}

func NewNUMASource(sysRoot string) *NUMASource {
	return &NUMASource{sysRoot: sysRoot}
}

func (c *NUMASource) Name() string    { return "numa_stats" }
func (c *NUMASource) Static() bool    { return false }
func (c *NUMASource) IsProfile() bool { return false }

func (c *NUMASource) Collect(ctx context.Context, env Environment) (model.RawRecord, error) {
	nodesDir := filepath.Join(c.sysRoot, "devices", "system", "node")
	entries, err := os.ReadDir(nodesDir)
	if err != nil {
		return model.RawRecord{}, fmt.Errorf("numa_stats: read %s: %w", nodesDir, err)
	}

	var buf strings.Builder
	for _, e := range entries {
		if !strings.HasPrefix(e.Name(), "node") {
			continue
		}
		data, err := os.ReadFile(filepath.Join(nodesDir, e.Name(), "numastat"))
		if err != nil {
			continue
		}
		fmt.Fprintf(&buf, "## %s\n", e.Name())
		buf.Write(data)
	}
	return model.RawRecord{Timestamp: time.Now(), Payload: []byte(buf.String())}, nil
}

// parseNUMAPayload splits the per-node "## nodeN" sections collected
// above and parses each node's numastat key/value lines.
func parseNUMAPayload(payload []byte) map[string]map[string]uint64 {
	result := make(map[string]map[string]uint64)
	var node string
	scanner := bufio.NewScanner(strings.NewReader(string(payload)))
	for scanner.Scan() {
		line := scanner.Text()
		if strings.HasPrefix(line, "## ") {
			node = strings.TrimPrefix(line, "## ")
			result[node] = make(map[string]uint64)
			continue
		}
		if node == "" {
			continue
		}
		fields := strings.Fields(line)
		if len(fields) != 2 {
			continue
		}
		v, err := strconv.ParseUint(fields[1], 10, 64)
		if err != nil {
			continue
		}
		result[node][fields[0]] = v
	}
	return result
}

func (c *NUMASource) Transform(records []model.RawRecord, env Environment) (model.Artifact, error) {
	ts := model.NewTimeSeries()
	if len(records) == 0 {
		return model.Artifact{TimeSeries: ts}, nil
	}
	t0 := records[0].Timestamp

	metrics := make(map[string]*model.Metric, len(numastatFields))
	nodeSeries := make(map[string]map[string]*model.Series) // field -> node -> series
	for _, f := range numastatFields {
		metrics[f] = ts.MetricFor(f)
		nodeSeries[f] = make(map[string]*model.Series)
	}

	var prev map[string]map[string]uint64
	for i, rec := range records {
		offset := uint64(rec.Timestamp.Sub(t0).Seconds())
		cur := parseNUMAPayload(rec.Payload)

		nodes := make([]string, 0, len(cur))
		for n := range cur {
			nodes = append(nodes, n)
		}
		sort.Strings(nodes)

		perFieldSum := make(map[string]float64, len(numastatFields))
		counted := 0
		for _, node := range nodes {
			counted++
			curVals := cur[node]
			var prevVals map[string]uint64
			if i > 0 {
				prevVals = prev[node]
			}
			for _, f := range numastatFields {
				s, ok := nodeSeries[f][node]
				if !ok {
					s = &model.Series{Name: node}
					nodeSeries[f][node] = s
				}
				var value float64
				if i == 0 {
					value = 0
				} else {
					cv, pv := curVals[f], prevVals[f]
					if cv < pv {
						value = 0
					} else {
						value = float64(cv - pv)
					}
				}
				s.Append(offset, value)
				perFieldSum[f] += value
			}
		}

		for _, f := range numastatFields {
			mean := 0.0
			if counted > 0 {
				mean = perFieldSum[f] / float64(counted)
			}
			aggregateSeriesFor(metrics[f]).Append(offset, mean)
		}

		prev = cur
	}

	for _, f := range numastatFields {
		m := metrics[f]
		nodes := make([]string, 0, len(nodeSeries[f]))
		for n := range nodeSeries[f] {
			nodes = append(nodes, n)
		}
		sort.Strings(nodes)
		reordered := make([]model.Series, 0, len(nodes)+1)
		for _, n := range nodes {
			reordered = append(reordered, *nodeSeries[f][n])
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
