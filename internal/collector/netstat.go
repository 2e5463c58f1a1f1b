// Netstat source: reads /proc/net/netstat every tick. The file is
// laid out as repeating header/value line pairs per protocol prefix
// (TcpExt, IpExt, ...); Transform flattens each prefixed field into
// its own cumulative-delta single-series metric.
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

type NetstatSource struct {
	procRoot string
}

func NewNetstatSource(procRoot string) *NetstatSource {
	return &NetstatSource{procRoot: procRoot}
}

func (c *NetstatSource) Name() string    { return "netstat" }
func (c *NetstatSource) Static() bool    { return false }
func (c *NetstatSource) IsProfile() bool { return false }

func (c *NetstatSource) Collect(ctx context.Context, env Environment) (model.RawRecord, error) {
	data, err := os.ReadFile(filepath.Join(c.procRoot, "net", "netstat"))
	if err != nil {
		return model.RawRecord{}, fmt.Errorf("netstat: read /proc/net/netstat: %w", err)
	}
	return model.RawRecord{Timestamp: time.Now(), Payload: data}, nil
}

// parseNetstatPayload flattens the header/value line pairs into
// "Prefix:FieldName" -> value, matching the on-disk key namespace.
func parseNetstatPayload(payload []byte) map[string]uint64 {
	result := make(map[string]uint64)
	scanner := bufio.NewScanner(strings.NewReader(string(payload)))

	var pendingPrefix string
	var pendingHeaders []string
	for scanner.Scan() {
		fields := strings.Fields(scanner.Text())
		if len(fields) < 2 {
			continue
		}
		prefix := strings.TrimSuffix(fields[0], ":")
		if prefix != pendingPrefix {
			pendingPrefix = prefix
			pendingHeaders = fields[1:]
			continue
		}
		values := fields[1:]
		for i, header := range pendingHeaders {
			if i >= len(values) {
				break
			}
			v, err := strconv.ParseUint(values[i], 10, 64)
			if err != nil {
				continue
			}
			result[prefix+":"+header] = v
		}
		pendingPrefix = ""
	}
	return result
}

func (c *NetstatSource) Transform(records []model.RawRecord, env Environment) (model.Artifact, error) {
	ts := model.NewTimeSeries()
	if len(records) == 0 {
		return model.Artifact{TimeSeries: ts}, nil
	}
	t0 := records[0].Timestamp

	var prev map[string]uint64
	for i, rec := range records {
		offset := uint64(rec.Timestamp.Sub(t0).Seconds())
		cur := parseNetstatPayload(rec.Payload)

		for key, v := range cur {
			m := ts.MetricFor(key)
			if len(m.Series) == 0 {
				m.Series = append(m.Series, model.Series{})
			}
			var value float64
			switch {
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
		m.Stats = transform.Stats(m.Series[0].Values, true)
		m.ValueRange = transform.ValueRange(m.Series[0].Values, nil)
		transform.Compress(m)
	}

	return model.Artifact{TimeSeries: ts}, nil
}
