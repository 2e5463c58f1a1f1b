// Diskstats source: reads /proc/diskstats every tick. Transform
// applies the diskstats delta rule from §4.3 — sector fields convert
// to KiB, in_progress stays an absolute snapshot, and the metric's
// Statistics are donated by whichever device series has the largest
// mean (the source's own "representative device" convention).
package collector

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/dmitriimaksimovdevelop/aperf/internal/model"
	"github.com/dmitriimaksimovdevelop/aperf/internal/transform"
)

// partitionRe matches partition suffixes: sda1, nvme0n1p1, etc.
var partitionRe = regexp.MustCompile(`^(sd[a-z]+|hd[a-z]+|vd[a-z]+)\d+$|^(nvme\d+n\d+)p\d+$|^(mmcblk\d+)p\d+$`)

// diskFields names the /proc/diskstats columns this source tracks, in
// the order they appear starting at field index 3.
var diskFields = []string{
	"reads", "reads_merged", "sectors_read", "ms_reading",
	"writes", "writes_merged", "sectors_written", "ms_writing",
	"in_progress", "ms_io", "weighted_ms_io",
}

// sectorFields convert to KiB (divide by 2) instead of taking a raw
// cumulative delta in bytes/sectors.
var sectorFields = map[string]bool{"sectors_read": true, "sectors_written": true}

// snapshotFields are kept absolute rather than delta-encoded.
var snapshotFields = map[string]bool{"in_progress": true}

// DiskSource samples /proc/diskstats.
type DiskSource struct {
	procRoot string
}

func NewDiskSource(procRoot string) *DiskSource {
	return &DiskSource{procRoot: procRoot}
}

func (c *DiskSource) Name() string    { return "disk_stats" }
func (c *DiskSource) Static() bool    { return false }
func (c *DiskSource) IsProfile() bool { return false }

func (c *DiskSource) Collect(ctx context.Context, env Environment) (model.RawRecord, error) {
	data, err := os.ReadFile(filepath.Join(c.procRoot, "diskstats"))
	if err != nil {
		return model.RawRecord{}, fmt.Errorf("disk_stats: read /proc/diskstats: %w", err)
	}
	return model.RawRecord{Timestamp: time.Now(), Payload: data}, nil
}

type diskSample struct {
	values map[string]uint64
}

func parseDiskstats(payload []byte) map[string]diskSample {
	result := make(map[string]diskSample)
	scanner := bufio.NewScanner(strings.NewReader(string(payload)))
	for scanner.Scan() {
		fields := strings.Fields(scanner.Text())
		if len(fields) < 14 {
			continue
		}
		name := fields[2]
		if isVirtualOrPartition(name) {
			continue
		}
		values := make(map[string]uint64, len(diskFields))
		for i, fieldName := range diskFields {
			idx := 3 + i
			if idx >= len(fields) {
				break
			}
			v, _ := strconv.ParseUint(fields[idx], 10, 64)
			values[fieldName] = v
		}
		result[name] = diskSample{values: values}
	}
	return result
}

// Transform implements the diskstats delta rule.
func (c *DiskSource) Transform(records []model.RawRecord, env Environment) (model.Artifact, error) {
	ts := model.NewTimeSeries()
	if len(records) == 0 {
		return model.Artifact{TimeSeries: ts}, nil
	}
	t0 := records[0].Timestamp

	metrics := make(map[string]*model.Metric, len(diskFields))
	deviceSeries := make(map[string]map[string]*model.Series) // field -> device -> series
	for _, f := range diskFields {
		metrics[f] = ts.MetricFor(f)
		deviceSeries[f] = make(map[string]*model.Series)
	}

	var prev map[string]diskSample
	for i, rec := range records {
		offset := uint64(rec.Timestamp.Sub(t0).Seconds())
		cur := parseDiskstats(rec.Payload)

		names := make([]string, 0, len(cur))
		for name := range cur {
			names = append(names, name)
		}
		sortStrings(names)

		for _, name := range names {
			curSample := cur[name]
			for _, f := range diskFields {
				s, ok := deviceSeries[f][name]
				if !ok {
					s = &model.Series{Name: name}
					deviceSeries[f][name] = s
				}
				var value float64
				switch {
				case i == 0:
					value = 0
				case snapshotFields[f]:
					value = float64(curSample.values[f])
				default:
					prevSample, hadPrev := prev[name]
					if !hadPrev {
						value = 0
					} else {
						delta := curSample.values[f] - prevSample.values[f]
						if curSample.values[f] < prevSample.values[f] {
							delta = 0 // counter reset/decrease: emit 0, never negative
						}
						value = float64(delta)
						if sectorFields[f] {
							value /= 2
						}
					}
				}
				s.Append(offset, value)
			}
		}
		prev = cur
	}

	for _, f := range diskFields {
		m := metrics[f]
		names := make([]string, 0, len(deviceSeries[f]))
		for name := range deviceSeries[f] {
			names = append(names, name)
		}
		sortStrings(names)
		for _, name := range names {
			m.Series = append(m.Series, *deviceSeries[f][name])
		}
		m.Stats, m.ValueRange = representativeDiskStats(m.Series, !snapshotFields[f])
		transform.Compress(m)
	}

	return model.Artifact{TimeSeries: ts}, nil
}

// representativeDiskStats picks the device series with the largest
// mean and donates its Statistics to the metric; value_range is the
// min-of-mins / max-of-maxes across all device series.
func representativeDiskStats(series []model.Series, skipFirst bool) (model.Statistics, model.ValueRange) {
	if len(series) == 0 {
		return model.Statistics{}, model.ValueRange{}
	}
	var best model.Statistics
	var bestMean = -1.0
	var rng model.ValueRange
	for i, s := range series {
		st := transform.Stats(s.Values, skipFirst)
		if i == 0 {
			rng = model.ValueRange{Min: st.Min, Max: st.Max}
		} else {
			if st.Min < rng.Min {
				rng.Min = st.Min
			}
			if st.Max > rng.Max {
				rng.Max = st.Max
			}
		}
		if st.Avg > bestMean {
			bestMean = st.Avg
			best = st
		}
	}
	return best, rng
}

func sortStrings(s []string) {
	for i := 1; i < len(s); i++ {
		for j := i; j > 0 && s[j] < s[j-1]; j-- {
			s[j], s[j-1] = s[j-1], s[j]
		}
	}
}

// isVirtualOrPartition returns true for devices that should be
// excluded: loop devices, ram disks, device-mapper, and partitions
// (sda1, nvme0n1p1) — whole-disk counters already cover them.
func isVirtualOrPartition(name string) bool {
	if strings.HasPrefix(name, "loop") ||
		strings.HasPrefix(name, "ram") ||
		strings.HasPrefix(name, "dm-") {
		return true
	}
	return partitionRe.MatchString(name)
}
