package collector

import (
	"fmt"
	"testing"
	"time"

	"github.com/dmitriimaksimovdevelop/aperf/internal/model"
)

// statLine builds a synthetic /proc/[pid]/stat line with utime/stime
// at their real field offsets (11, 12 past the closing paren).
func statLine(pid int, comm string, utime, stime, vsize, rss, threads uint64) string {
	fields := make([]string, 22)
	for i := range fields {
		fields[i] = "0"
	}
	fields[0] = "R" // state
	fields[11] = fmt.Sprintf("%d", utime)
	fields[12] = fmt.Sprintf("%d", stime)
	fields[17] = fmt.Sprintf("%d", threads)
	fields[20] = fmt.Sprintf("%d", vsize)
	fields[21] = fmt.Sprintf("%d", rss)
	return fmt.Sprintf("%d (%s) %s", pid, comm, joinFields(fields))
}

func joinFields(fields []string) string {
	out := ""
	for i, f := range fields {
		if i > 0 {
			out += " "
		}
		out += f
	}
	return out
}

func processesPayload(pid int, comm string, utime, stime uint64) []byte {
	return []byte(fmt.Sprintf("## %d\n%s\n", pid, statLine(pid, comm, utime, stime, 100000, 5000, 4)))
}

func TestProcessesTransformCPUPercentage(t *testing.T) {
	t0 := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	records := []model.RawRecord{
		{Timestamp: t0, Payload: processesPayload(1, "worker", 0, 0)},
		{Timestamp: t0.Add(time.Second), Payload: processesPayload(1, "worker", 50, 0)},
	}
	src := NewProcessesSource("/proc")
	artifact, err := src.Transform(records, Environment{HZ: 100})
	if err != nil {
		t.Fatalf("Transform: %v", err)
	}
	m := artifact.TimeSeries.Metrics["user"]
	if m == nil || len(m.Series) != 1 {
		t.Fatalf("missing user metric with one series")
	}
	// 50 jiffies / (100 hz * 1s) * 100 = 50%
	want := []float64{0, 50}
	if !floatsEqual(m.Series[0].Values, want) {
		t.Errorf("user%% = %v, want %v", m.Series[0].Values, want)
	}
}

func TestProcessesTransformEmptyLog(t *testing.T) {
	src := NewProcessesSource("/proc")
	artifact, err := src.Transform(nil, DefaultEnvironment())
	if err != nil {
		t.Fatalf("Transform(nil): %v", err)
	}
	if len(artifact.TimeSeries.Metrics) != 0 {
		t.Errorf("Transform(nil) produced %d metrics, want 0", len(artifact.TimeSeries.Metrics))
	}
}
