package collector

import (
	"testing"
	"time"

	"github.com/dmitriimaksimovdevelop/aperf/internal/model"
)

func TestSystemInfoTransform(t *testing.T) {
	t0 := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	records := []model.RawRecord{
		{Timestamp: t0, Payload: []byte("os=Ubuntu 22.04\nkernel=Linux version 6.1.0\nuptime_seconds=3600\n")},
	}
	src := NewSystemInfoSource("/proc")
	artifact, err := src.Transform(records, DefaultEnvironment())
	if err != nil {
		t.Fatalf("Transform: %v", err)
	}
	group := artifact.KeyValue.Groups["system_info"]
	if group == nil {
		t.Fatal("missing system_info group")
	}
	if os, _ := group.KeyValues.Get("os"); os != "Ubuntu 22.04" {
		t.Errorf("os = %q, want %q", os, "Ubuntu 22.04")
	}
	if uptime, _ := group.KeyValues.Get("uptime_seconds"); uptime != "3600" {
		t.Errorf("uptime_seconds = %q, want %q", uptime, "3600")
	}
}

func TestSystemInfoTransformEmptyLog(t *testing.T) {
	src := NewSystemInfoSource("/proc")
	artifact, err := src.Transform(nil, DefaultEnvironment())
	if err != nil {
		t.Fatalf("Transform(nil): %v", err)
	}
	if len(artifact.KeyValue.Groups) != 0 {
		t.Errorf("Transform(nil) produced %d groups, want 0", len(artifact.KeyValue.Groups))
	}
}
