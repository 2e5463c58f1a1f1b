package collector

import (
	"fmt"
	"testing"
	"time"

	"github.com/dmitriimaksimovdevelop/aperf/internal/model"
)

func interruptsPayload(cpu0, misValue uint64) []byte {
	return []byte(fmt.Sprintf(
		"           CPU0\n  0:        %d   IO-APIC   timer\nMIS:        %d\n",
		cpu0, misValue,
	))
}

// TestInterruptsTransformS3 implements scenario S3: raw MIS line 5,
// then 8, then 8. Expected metric "MIS" with one non-aggregate series
// values=[0,3,0].
func TestInterruptsTransformS3(t *testing.T) {
	t0 := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	records := []model.RawRecord{
		{Timestamp: t0, Payload: interruptsPayload(0, 5)},
		{Timestamp: t0.Add(time.Second), Payload: interruptsPayload(0, 8)},
		{Timestamp: t0.Add(2 * time.Second), Payload: interruptsPayload(0, 8)},
	}
	src := NewInterruptsSource("/proc")
	artifact, err := src.Transform(records, DefaultEnvironment())
	if err != nil {
		t.Fatalf("Transform: %v", err)
	}
	m := artifact.TimeSeries.Metrics["MIS"]
	if m == nil {
		t.Fatal("missing MIS metric")
	}
	if len(m.Series) != 1 {
		t.Fatalf("MIS has %d series, want 1", len(m.Series))
	}
	if m.Series[0].IsAggregate {
		t.Error("MIS series should not be marked aggregate")
	}
	want := []float64{0, 3, 0}
	if !floatsEqual(m.Series[0].Values, want) {
		t.Errorf("MIS values = %v, want %v", m.Series[0].Values, want)
	}
}

func TestInterruptsTransformPerCPUDelta(t *testing.T) {
	t0 := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	records := []model.RawRecord{
		{Timestamp: t0, Payload: interruptsPayload(100, 0)},
		{Timestamp: t0.Add(time.Second), Payload: interruptsPayload(150, 0)},
	}
	src := NewInterruptsSource("/proc")
	artifact, err := src.Transform(records, DefaultEnvironment())
	if err != nil {
		t.Fatalf("Transform: %v", err)
	}
	m := artifact.TimeSeries.Metrics["0"]
	if m == nil {
		t.Fatal("missing IRQ 0 metric")
	}
	agg := m.Aggregate()
	if agg == nil {
		t.Fatal("missing aggregate series")
	}
	want := []float64{0, 50}
	if !floatsEqual(agg.Values, want) {
		t.Errorf("IRQ 0 aggregate = %v, want %v", agg.Values, want)
	}
}
