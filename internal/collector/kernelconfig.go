// Kernel config source: a static, collect-once snapshot of
// /boot/config-<release>, parsed into a single KeyValue group of every
// CONFIG_* line (commented-out "# CONFIG_X is not set" lines are
// skipped, since the absence of a key already conveys that).
package collector

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/dmitriimaksimovdevelop/aperf/internal/model"
)

type KernelConfigSource struct {
	bootRoot string
	release  string
}

// NewKernelConfigSource reads /boot/config-<release>. If release is
// empty, the current kernel's uname release is used.
func NewKernelConfigSource(bootRoot, release string) *KernelConfigSource {
	return &KernelConfigSource{bootRoot: bootRoot, release: release}
}

func (c *KernelConfigSource) Name() string    { return "kernel_config" }
func (c *KernelConfigSource) Static() bool    { return true }
func (c *KernelConfigSource) IsProfile() bool { return false }

func (c *KernelConfigSource) Collect(ctx context.Context, env Environment) (model.RawRecord, error) {
	release := c.release
	if release == "" {
		release = readUnameRelease(env.ProcRoot)
	}
	path := filepath.Join(c.bootRoot, "config-"+release)
	data, err := os.ReadFile(path)
	if err != nil {
		return model.RawRecord{}, fmt.Errorf("kernel_config: read %s: %w", path, err)
	}
	return model.RawRecord{Timestamp: time.Now(), Payload: data}, nil
}

// readUnameRelease reads the kernel release from /proc/version as a
// fallback when the caller doesn't supply one directly (the "uname
// -r" equivalent without shelling out).
func readUnameRelease(procRoot string) string {
	data, err := os.ReadFile(filepath.Join(procRoot, "version"))
	if err != nil {
		return ""
	}
	fields := strings.Fields(string(data))
	for i, f := range fields {
		if f == "version" && i+1 < len(fields) {
			return fields[i+1]
		}
	}
	if len(fields) > 2 {
		return fields[2]
	}
	return ""
}

func (c *KernelConfigSource) Transform(records []model.RawRecord, env Environment) (model.Artifact, error) {
	kv := model.NewKeyValue()
	if len(records) == 0 {
		return model.Artifact{KeyValue: kv}, nil
	}

	group := kv.GroupFor("kernel_config")
	scanner := bufio.NewScanner(strings.NewReader(string(records[0].Payload)))
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if !strings.HasPrefix(line, "CONFIG_") {
			continue
		}
		parts := strings.SplitN(line, "=", 2)
		if len(parts) != 2 {
			continue
		}
		group.KeyValues.Set(parts[0], parts[1])
	}
	return model.Artifact{KeyValue: kv}, nil
}
