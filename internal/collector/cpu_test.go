package collector

import (
	"fmt"
	"testing"
	"time"

	"github.com/dmitriimaksimovdevelop/aperf/internal/model"
)

func procStatPayload(user, idle uint64) []byte {
	line := func(label string) string {
		return fmt.Sprintf("%s %d 0 0 %d 0 0 0 0\n", label, user, idle)
	}
	return []byte(line("cpu") + line("cpu0") + line("cpu1"))
}

// TestCPUTransformAggregateS1 implements scenario S1: two procfs
// samples 1s apart, 2 CPUs, each moving user by 200 jiffies and idle
// by 800 jiffies.
func TestCPUTransformAggregateS1(t *testing.T) {
	t0 := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	records := []model.RawRecord{
		{Timestamp: t0, Payload: procStatPayload(0, 0)},
		{Timestamp: t0.Add(time.Second), Payload: procStatPayload(200, 800)},
	}

	src := NewCPUSource("/proc")
	artifact, err := src.Transform(records, DefaultEnvironment())
	if err != nil {
		t.Fatalf("Transform: %v", err)
	}
	ts := artifact.TimeSeries

	userMetric := ts.Metrics["user"]
	if userMetric == nil {
		t.Fatal("missing user metric")
	}
	wantPerCPU := []float64{0, 20}
	for _, s := range userMetric.Series {
		if s.IsAggregate {
			continue
		}
		if !floatsEqual(s.Values, wantPerCPU) {
			t.Errorf("per-CPU user series %q = %v, want %v", s.Name, s.Values, wantPerCPU)
		}
	}
	agg := userMetric.Aggregate()
	if agg == nil {
		t.Fatal("user metric missing aggregate series")
	}
	if !floatsEqual(agg.Values, wantPerCPU) {
		t.Errorf("aggregate user series = %v, want %v", agg.Values, wantPerCPU)
	}

	totalMetric := ts.Metrics["total"]
	if totalMetric == nil {
		t.Fatal("missing total metric")
	}
	totalAgg := totalMetric.Aggregate()
	if totalAgg == nil || !floatsEqual(totalAgg.Values, wantPerCPU) {
		t.Errorf("total series = %v, want %v", totalAgg, wantPerCPU)
	}
}

func TestCPUTransformEmptyLog(t *testing.T) {
	src := NewCPUSource("/proc")
	artifact, err := src.Transform(nil, DefaultEnvironment())
	if err != nil {
		t.Fatalf("Transform(nil): %v", err)
	}
	if len(artifact.TimeSeries.Metrics) != 0 {
		t.Errorf("Transform(nil) produced %d metrics, want 0", len(artifact.TimeSeries.Metrics))
	}
}

func floatsEqual(got, want []float64) bool {
	if len(got) != len(want) {
		return false
	}
	for i := range got {
		if got[i] != want[i] {
			return false
		}
	}
	return true
}
