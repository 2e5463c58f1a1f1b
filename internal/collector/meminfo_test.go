package collector

import (
	"fmt"
	"testing"
	"time"

	"github.com/dmitriimaksimovdevelop/aperf/internal/model"
)

func meminfoPayload(memFreeKB, hugePagesFree uint64) []byte {
	return []byte(fmt.Sprintf(
		"MemTotal:        8000000 kB\nMemFree:        %d kB\nHugePages_Free:      %d\n",
		memFreeKB, hugePagesFree,
	))
}

func TestMeminfoTransformScalesBytesOnly(t *testing.T) {
	t0 := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	records := []model.RawRecord{
		{Timestamp: t0, Payload: meminfoPayload(4096000, 3)},
	}
	src := NewMeminfoSource("/proc")
	artifact, err := src.Transform(records, DefaultEnvironment())
	if err != nil {
		t.Fatalf("Transform: %v", err)
	}
	ts := artifact.TimeSeries

	free := ts.Metrics["MemFree"]
	if free == nil || len(free.Series) != 1 {
		t.Fatalf("missing MemFree single series")
	}
	if got, want := free.Series[0].Values[0], 4000.0; got != want {
		t.Errorf("MemFree = %v KiB, want %v (4096000 kB / 1024)", got, want)
	}

	huge := ts.Metrics["HugePages_Free"]
	if huge == nil || len(huge.Series) != 1 {
		t.Fatalf("missing HugePages_Free single series")
	}
	if got, want := huge.Series[0].Values[0], 3.0; got != want {
		t.Errorf("HugePages_Free = %v, want %v (unscaled)", got, want)
	}
}

func TestMeminfoTransformEmptyLog(t *testing.T) {
	src := NewMeminfoSource("/proc")
	artifact, err := src.Transform(nil, DefaultEnvironment())
	if err != nil {
		t.Fatalf("Transform(nil): %v", err)
	}
	if len(artifact.TimeSeries.Metrics) != 0 {
		t.Errorf("Transform(nil) produced %d metrics, want 0", len(artifact.TimeSeries.Metrics))
	}
}
