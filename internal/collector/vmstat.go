// Vmstat source: reads /proc/vmstat every tick. Fields whose name
// starts with "nr_" are instantaneous snapshots (gauges); every other
// field is a monotonic counter and is delta-encoded against the
// previous sample, with the first sample forced to zero.
package collector

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/dmitriimaksimovdevelop/aperf/internal/model"
	"github.com/dmitriimaksimovdevelop/aperf/internal/transform"
)

type VmstatSource struct {
	procRoot string
}

func NewVmstatSource(procRoot string) *VmstatSource {
	return &VmstatSource{procRoot: procRoot}
}

func (c *VmstatSource) Name() string    { return "vmstat" }
func (c *VmstatSource) Static() bool    { return false }
func (c *VmstatSource) IsProfile() bool { return false }

func (c *VmstatSource) Collect(ctx context.Context, env Environment) (model.RawRecord, error) {
	data, err := os.ReadFile(filepath.Join(c.procRoot, "vmstat"))
	if err != nil {
		return model.RawRecord{}, fmt.Errorf("vmstat: read /proc/vmstat: %w", err)
	}
	return model.RawRecord{Timestamp: time.Now(), Payload: data}, nil
}

func parseVmstatPayload(payload []byte) map[string]uint64 {
	result := make(map[string]uint64)
	scanner := bufio.NewScanner(strings.NewReader(string(payload)))
	for scanner.Scan() {
		fields := strings.Fields(scanner.Text())
		if len(fields) != 2 {
			continue
		}
		v, err := strconv.ParseUint(fields[1], 10, 64)
		if err != nil {
			continue
		}
		result[fields[0]] = v
	}
	return result
}

func (c *VmstatSource) Transform(records []model.RawRecord, env Environment) (model.Artifact, error) {
	ts := model.NewTimeSeries()
	if len(records) == 0 {
		return model.Artifact{TimeSeries: ts}, nil
	}
	t0 := records[0].Timestamp

	var prev map[string]uint64
	for i, rec := range records {
		offset := uint64(rec.Timestamp.Sub(t0).Seconds())
		cur := parseVmstatPayload(rec.Payload)

		for key, v := range cur {
			m := ts.MetricFor(key)
			if len(m.Series) == 0 {
				m.Series = append(m.Series, model.Series{})
			}

			var value float64
			switch {
			case strings.HasPrefix(key, "nr_"):
				value = float64(v)
			case i == 0:
				value = 0
			default:
				prevV, hadPrev := prev[key]
				if !hadPrev || v < prevV {
					value = 0
				} else {
					value = float64(v - prevV)
				}
			}
			m.Series[0].Append(offset, value)
		}
		prev = cur
	}

	for _, name := range ts.SortedNames {
		m := ts.Metrics[name]
		if len(m.Series) == 0 {
			continue
		}
		skipFirst := !strings.HasPrefix(name, "nr_")
		m.Stats = transform.Stats(m.Series[0].Values, skipFirst)
		m.ValueRange = transform.ValueRange(m.Series[0].Values, nil)
	}

	return model.Artifact{TimeSeries: ts}, nil
}
