package collector

import (
	"testing"
	"time"
)

func TestDefaultEnvironment(t *testing.T) {
	env := DefaultEnvironment()

	if env.ProcRoot != "/proc" {
		t.Errorf("ProcRoot = %q, want /proc", env.ProcRoot)
	}
	if env.SysRoot != "/sys" {
		t.Errorf("SysRoot = %q, want /sys", env.SysRoot)
	}
	if env.Interval != time.Second {
		t.Errorf("Interval = %v, want 1s", env.Interval)
	}
	if env.HZ != 100 {
		t.Errorf("HZ = %d, want 100", env.HZ)
	}
	if env.Runner == nil {
		t.Errorf("Runner is nil, want a default ExecCommandRunner")
	}
}
