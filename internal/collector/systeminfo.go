// System info source: a static, collect-once snapshot of host
// identification — OS release, kernel version, boot cmdline, uptime,
// CPU model — as a single KeyValue group.
package collector

import (
	"context"
	"os"
	"path/filepath"
	"runtime"
	"strconv"
	"strings"
	"time"

	"github.com/dmitriimaksimovdevelop/aperf/internal/model"
)

type SystemInfoSource struct {
	procRoot string
}

func NewSystemInfoSource(procRoot string) *SystemInfoSource {
	return &SystemInfoSource{procRoot: procRoot}
}

func (c *SystemInfoSource) Name() string    { return "system_info" }
func (c *SystemInfoSource) Static() bool    { return true }
func (c *SystemInfoSource) IsProfile() bool { return false }

func (c *SystemInfoSource) Collect(ctx context.Context, env Environment) (model.RawRecord, error) {
	var buf strings.Builder
	writeKV := func(key, value string) {
		buf.WriteString(key)
		buf.WriteByte('=')
		buf.WriteString(strings.ReplaceAll(value, "\n", " "))
		buf.WriteByte('\n')
	}

	writeKV("os", readOSRelease())
	writeKV("kernel", readTrimmed(filepath.Join(c.procRoot, "version")))
	writeKV("boot_params", readTrimmed(filepath.Join(c.procRoot, "cmdline")))
	writeKV("uptime_seconds", readUptimeSeconds(c.procRoot))
	writeKV("cpu_model", readCPUModel(c.procRoot))

	return model.RawRecord{Timestamp: time.Now(), Payload: []byte(buf.String())}, nil
}

func readOSRelease() string {
	data, err := os.ReadFile("/etc/os-release")
	if err != nil {
		return runtime.GOOS
	}
	for _, line := range strings.Split(string(data), "\n") {
		if strings.HasPrefix(line, "PRETTY_NAME=") {
			return strings.Trim(strings.TrimPrefix(line, "PRETTY_NAME="), "\"")
		}
	}
	return runtime.GOOS
}

func readTrimmed(path string) string {
	data, err := os.ReadFile(path)
	if err != nil {
		return ""
	}
	return strings.TrimSpace(string(data))
}

func readUptimeSeconds(procRoot string) string {
	raw := readTrimmed(filepath.Join(procRoot, "uptime"))
	parts := strings.Fields(raw)
	if len(parts) == 0 {
		return "0"
	}
	uptime, err := strconv.ParseFloat(parts[0], 64)
	if err != nil {
		return "0"
	}
	return strconv.FormatInt(int64(uptime), 10)
}

func readCPUModel(procRoot string) string {
	data, err := os.ReadFile(filepath.Join(procRoot, "cpuinfo"))
	if err != nil {
		return ""
	}
	for _, line := range strings.Split(string(data), "\n") {
		if strings.HasPrefix(line, "model name") {
			parts := strings.SplitN(line, ":", 2)
			if len(parts) == 2 {
				return strings.TrimSpace(parts[1])
			}
		}
	}
	return ""
}

func (c *SystemInfoSource) Transform(records []model.RawRecord, env Environment) (model.Artifact, error) {
	kv := model.NewKeyValue()
	if len(records) == 0 {
		return model.Artifact{KeyValue: kv}, nil
	}

	group := kv.GroupFor("system_info")
	for _, line := range strings.Split(string(records[0].Payload), "\n") {
		if line == "" {
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
