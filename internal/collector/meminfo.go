// Meminfo source: reads /proc/meminfo every tick. Every numeric field
// becomes its own single-series metric; byte fields convert kB→KiB by
// dividing by 1024 (they are already reported in kB by the kernel, so
// this yields the KiB value), while hugepage counts are left unscaled.
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

type MeminfoSource struct {
	procRoot string
}

func NewMeminfoSource(procRoot string) *MeminfoSource {
	return &MeminfoSource{procRoot: procRoot}
}

func (c *MeminfoSource) Name() string    { return "meminfo" }
func (c *MeminfoSource) Static() bool    { return false }
func (c *MeminfoSource) IsProfile() bool { return false }

func (c *MeminfoSource) Collect(ctx context.Context, env Environment) (model.RawRecord, error) {
	data, err := os.ReadFile(filepath.Join(c.procRoot, "meminfo"))
	if err != nil {
		return model.RawRecord{}, fmt.Errorf("meminfo: read /proc/meminfo: %w", err)
	}
	return model.RawRecord{Timestamp: time.Now(), Payload: data}, nil
}

// parseMeminfoLine parses one "Key: value[ kB]" line, returning the
// key, its numeric value, and whether it carried a " kB" suffix.
func parseMeminfoLine(line string) (key string, value float64, isBytes bool, ok bool) {
	parts := strings.SplitN(line, ":", 2)
	if len(parts) != 2 {
		return "", 0, false, false
	}
	key = strings.TrimSpace(parts[0])
	valStr := strings.TrimSpace(parts[1])
	isBytes = strings.HasSuffix(valStr, "kB")
	valStr = strings.TrimSuffix(valStr, "kB")
	v, err := strconv.ParseFloat(strings.TrimSpace(valStr), 64)
	if err != nil {
		return "", 0, false, false
	}
	return key, v, isBytes, true
}

func (c *MeminfoSource) Transform(records []model.RawRecord, env Environment) (model.Artifact, error) {
	ts := model.NewTimeSeries()
	if len(records) == 0 {
		return model.Artifact{TimeSeries: ts}, nil
	}
	t0 := records[0].Timestamp

	for _, rec := range records {
		offset := uint64(rec.Timestamp.Sub(t0).Seconds())
		scanner := bufio.NewScanner(strings.NewReader(string(rec.Payload)))
		for scanner.Scan() {
			key, v, isBytes, ok := parseMeminfoLine(scanner.Text())
			if !ok {
				continue
			}
			if isBytes {
				v /= 1024 // kB -> KiB
			}
			m := ts.MetricFor(key)
			if len(m.Series) == 0 {
				m.Series = append(m.Series, model.Series{})
			}
			m.Series[0].Append(offset, v)
		}
	}

	for _, name := range ts.SortedNames {
		m := ts.Metrics[name]
		if len(m.Series) == 0 {
			continue
		}
		m.Stats = transform.Stats(m.Series[0].Values, false)
		m.ValueRange = transform.ValueRange(m.Series[0].Values, nil)
	}

	return model.Artifact{TimeSeries: ts}, nil
}
