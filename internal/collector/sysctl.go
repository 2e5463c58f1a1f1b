// Sysctl source: a static, collect-once snapshot of a curated set of
// vm.*, net.*, and kernel.* tunables, each read from its /proc/sys
// file. Grouped by the sysctl namespace prefix (vm, net, kernel).
package collector

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/dmitriimaksimovdevelop/aperf/internal/model"
)

// sysctlKeys names the /proc/sys paths this source reads, relative to
// procRoot, grouped by the leading namespace component.
var sysctlKeys = []string{
	"vm/swappiness",
	"vm/overcommit_memory",
	"vm/overcommit_ratio",
	"vm/dirty_ratio",
	"vm/dirty_background_ratio",
	"vm/min_free_kbytes",
	"net/ipv4/tcp_congestion_control",
	"net/ipv4/tcp_rmem",
	"net/ipv4/tcp_wmem",
	"net/ipv4/tcp_max_syn_backlog",
	"net/ipv4/tcp_tw_reuse",
	"net/core/somaxconn",
	"kernel/pid_max",
	"kernel/threads-max",
	"kernel/sched_migration_cost_ns",
}

type SysctlSource struct {
	procRoot string
}

func NewSysctlSource(procRoot string) *SysctlSource {
	return &SysctlSource{procRoot: procRoot}
}

func (c *SysctlSource) Name() string    { return "sysctl" }
func (c *SysctlSource) Static() bool    { return true }
func (c *SysctlSource) IsProfile() bool { return false }

func (c *SysctlSource) Collect(ctx context.Context, env Environment) (model.RawRecord, error) {
	var buf strings.Builder
	for _, key := range sysctlKeys {
		path := filepath.Join(c.procRoot, "sys", key)
		data, err := os.ReadFile(path)
		if err != nil {
			continue
		}
		fmt.Fprintf(&buf, "%s=%s\n", strings.ReplaceAll(key, "/", "."), strings.TrimSpace(string(data)))
	}
	return model.RawRecord{Timestamp: time.Now(), Payload: []byte(buf.String())}, nil
}

func (c *SysctlSource) Transform(records []model.RawRecord, env Environment) (model.Artifact, error) {
	kv := model.NewKeyValue()
	if len(records) == 0 {
		return model.Artifact{KeyValue: kv}, nil
	}

	for _, line := range strings.Split(string(records[0].Payload), "\n") {
		if line == "" {
			continue
		}
		parts := strings.SplitN(line, "=", 2)
		if len(parts) != 2 {
			continue
		}
		dotted := parts[0]
		namespace := dotted
		if idx := strings.Index(dotted, "."); idx >= 0 {
			namespace = dotted[:idx]
		}
		group := kv.GroupFor(namespace)
		group.KeyValues.Set(dotted, parts[1])
	}
	return model.Artifact{KeyValue: kv}, nil
}
