package collector

import (
	"testing"
	"time"

	"github.com/dmitriimaksimovdevelop/aperf/internal/model"
)

func TestSysctlTransformGroupsByNamespace(t *testing.T) {
	t0 := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	records := []model.RawRecord{
		{Timestamp: t0, Payload: []byte("vm.swappiness=60\nnet.core.somaxconn=4096\n")},
	}
	src := NewSysctlSource("/proc")
	artifact, err := src.Transform(records, DefaultEnvironment())
	if err != nil {
		t.Fatalf("Transform: %v", err)
	}
	kv := artifact.KeyValue
	vmGroup := kv.Groups["vm"]
	if vmGroup == nil {
		t.Fatal("missing vm group")
	}
	if v, _ := vmGroup.KeyValues.Get("vm.swappiness"); v != "60" {
		t.Errorf("vm group missing vm.swappiness=60, got %+v", vmGroup)
	}
	netGroup := kv.Groups["net"]
	if netGroup == nil {
		t.Fatal("missing net group")
	}
	if v, _ := netGroup.KeyValues.Get("net.core.somaxconn"); v != "4096" {
		t.Errorf("net group missing net.core.somaxconn=4096, got %+v", netGroup)
	}
}

func TestSysctlTransformEmptyLog(t *testing.T) {
	src := NewSysctlSource("/proc")
	artifact, err := src.Transform(nil, DefaultEnvironment())
	if err != nil {
		t.Fatalf("Transform(nil): %v", err)
	}
	if len(artifact.KeyValue.Groups) != 0 {
		t.Errorf("Transform(nil) produced %d groups, want 0", len(artifact.KeyValue.Groups))
	}
}
