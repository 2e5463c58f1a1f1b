package pmu

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"unsafe"

	"golang.org/x/sys/unix"
)

// Bit positions within perf_event_attr's packed config bitfield, per
// the kernel's uapi/linux/perf_event.h layout. golang.org/x/sys/unix
// exposes the struct but not these bit names, so they are defined
// locally against the stable ABI.
const (
	attrBitDisabled      = 1 << 0
	attrBitExcludeKernel = 1 << 5
	attrBitExcludeHV     = 1 << 6
)

const (
	perfFormatTotalTimeEnabled = 1 << 0
	perfFormatTotalTimeRunning = 1 << 1
	perfFormatGroup            = 1 << 3
)

// eventHandle is one open perf_event fd within a group.
type eventHandle struct {
	name string
	fd   int
}

// cpuGroup is one named counter's hardware-counter group pinned to a
// single CPU: the group leader plus every numerator/denominator
// member sharing its enablement window.
type cpuGroup struct {
	cpu          int
	name         string
	scale        uint64
	leaderFD     int
	numerators   []eventHandle
	denominators []eventHandle
}

// openRawEvent opens one PERF_TYPE_RAW event pinned to cpu, any pid,
// counting in both kernel and user context. groupFD is -1 for a group
// leader or the leader's fd for a sibling.
func openRawEvent(cpu int, config uint64, groupFD int) (int, error) {
	attr := &unix.PerfEventAttr{
		Type:        unix.PERF_TYPE_RAW,
		Size:        uint32(unsafe.Sizeof(unix.PerfEventAttr{})),
		Config:      config,
		Bits:        attrBitDisabled | attrBitExcludeHV,
		Read_format: perfFormatTotalTimeEnabled | perfFormatTotalTimeRunning | perfFormatGroup,
	}
	flags := unix.PERF_FLAG_FD_CLOEXEC
	fd, err := unix.PerfEventOpen(attr, -1, cpu, groupFD, flags)
	if err != nil {
		return -1, classifyOpenError(err)
	}
	return fd, nil
}

// classifyOpenError distinguishes the three failure kinds §4.2
// requires to be logged with remediation text, re-wrapping with that
// text while preserving the original error for errors.Is callers.
func classifyOpenError(err error) error {
	switch err {
	case unix.EMFILE:
		return fmt.Errorf("pmu: too many open files opening counter group: %w (increase the limit with `ulimit -n 65536`)", err)
	case unix.EACCES, unix.EPERM:
		return fmt.Errorf("pmu: permission denied opening hardware counter: %w (run with CAP_PERF_MON or as root, or lower /proc/sys/kernel/perf_event_paranoid)", err)
	case unix.ENOENT, unix.ENODEV:
		return fmt.Errorf("pmu: counter not available on this CPU: %w (not supported on this instance type)", err)
	default:
		return fmt.Errorf("pmu: open counter: %w", err)
	}
}

// openGroup opens every numerator and denominator event of nc pinned
// to cpu, the first numerator event becoming the group leader so a
// single read(2) returns every member's count atomically.
func openGroup(cpu int, nc NamedCounter) (*cpuGroup, error) {
	if len(nc.Numerators) == 0 {
		return nil, fmt.Errorf("pmu: counter %q has no numerator events", nc.Name)
	}

	leaderFD, err := openRawEvent(cpu, nc.Numerators[0].Config, -1)
	if err != nil {
		return nil, fmt.Errorf("pmu: counter %q cpu %d: %w", nc.Name, cpu, err)
	}

	g := &cpuGroup{cpu: cpu, name: nc.Name, scale: nc.Scale, leaderFD: leaderFD}
	g.numerators = append(g.numerators, eventHandle{name: nc.Numerators[0].Name, fd: leaderFD})

	opened := []int{leaderFD}
	closeAll := func() {
		for _, fd := range opened {
			unix.Close(fd)
		}
	}

	for _, ev := range nc.Numerators[1:] {
		fd, err := openRawEvent(cpu, ev.Config, leaderFD)
		if err != nil {
			closeAll()
			return nil, fmt.Errorf("pmu: counter %q cpu %d: %w", nc.Name, cpu, err)
		}
		opened = append(opened, fd)
		g.numerators = append(g.numerators, eventHandle{name: ev.Name, fd: fd})
	}
	for _, ev := range nc.Denominators {
		fd, err := openRawEvent(cpu, ev.Config, leaderFD)
		if err != nil {
			closeAll()
			return nil, fmt.Errorf("pmu: counter %q cpu %d: %w", nc.Name, cpu, err)
		}
		opened = append(opened, fd)
		g.denominators = append(g.denominators, eventHandle{name: ev.Name, fd: fd})
	}

	if err := unix.IoctlSetInt(leaderFD, unix.PERF_EVENT_IOC_ENABLE, unix.PERF_IOC_FLAG_GROUP); err != nil {
		closeAll()
		return nil, fmt.Errorf("pmu: enable group %q cpu %d: %w", nc.Name, cpu, err)
	}
	return g, nil
}

// readAndReset reads every member of the group via a single grouped
// read(2), then resets the group's counts (it stays enabled) so the
// next tick starts from zero — the raw log stores per-tick counts, not
// cumulative ones.
func (g *cpuGroup) readAndReset() (numerators, denominators []uint64, err error) {
	// PERF_FORMAT_GROUP layout: nr, time_enabled, time_running, then
	// nr * value (no PERF_FORMAT_ID requested, so no id words).
	total := len(g.numerators) + len(g.denominators)
	buf := make([]byte, 8*(3+total))
	n, rerr := unix.Read(g.leaderFD, buf)
	if rerr != nil {
		return nil, nil, fmt.Errorf("pmu: read group %q cpu %d: %w", g.name, g.cpu, rerr)
	}
	r := bytes.NewReader(buf[:n])

	var nr uint64
	if err := binary.Read(r, binary.LittleEndian, &nr); err != nil {
		return nil, nil, fmt.Errorf("pmu: decode group %q: %w", g.name, err)
	}
	var timeEnabled, timeRunning uint64
	binary.Read(r, binary.LittleEndian, &timeEnabled)
	binary.Read(r, binary.LittleEndian, &timeRunning)

	values := make([]uint64, 0, nr)
	for i := uint64(0); i < nr; i++ {
		var v uint64
		if err := binary.Read(r, binary.LittleEndian, &v); err != nil {
			return nil, nil, fmt.Errorf("pmu: decode group %q member %d: %w", g.name, i, err)
		}
		values = append(values, v)
	}
	if len(values) != total {
		return nil, nil, fmt.Errorf("pmu: group %q cpu %d returned %d members, want %d", g.name, g.cpu, len(values), total)
	}

	numerators = append(numerators, values[:len(g.numerators)]...)
	denominators = append(denominators, values[len(g.numerators):]...)

	if err := unix.IoctlSetInt(g.leaderFD, unix.PERF_EVENT_IOC_RESET, unix.PERF_IOC_FLAG_GROUP); err != nil {
		return numerators, denominators, fmt.Errorf("pmu: reset group %q cpu %d: %w", g.name, g.cpu, err)
	}
	return numerators, denominators, nil
}

// close releases every fd owned by the group.
func (g *cpuGroup) close() {
	seen := make(map[int]bool)
	for _, h := range g.numerators {
		if !seen[h.fd] {
			unix.Close(h.fd)
			seen[h.fd] = true
		}
	}
	for _, h := range g.denominators {
		if !seen[h.fd] {
			unix.Close(h.fd)
			seen[h.fd] = true
		}
	}
}

// onlineCPUs parses <sysRoot>/devices/system/cpu/online, a
// comma-separated list of inclusive ranges such as "0-3,5,7-8".
func onlineCPUs(sysRoot string) ([]int, error) {
	data, err := os.ReadFile(filepath.Join(sysRoot, "devices", "system", "cpu", "online"))
	if err != nil {
		return nil, fmt.Errorf("pmu: read online cpu list: %w", err)
	}
	var cpus []int
	for _, part := range strings.Split(strings.TrimSpace(string(data)), ",") {
		if part == "" {
			continue
		}
		lo, hi, ok := strings.Cut(part, "-")
		loN, err := strconv.Atoi(lo)
		if err != nil {
			return nil, fmt.Errorf("pmu: parse online cpu range %q: %w", part, err)
		}
		hiN := loN
		if ok {
			hiN, err = strconv.Atoi(hi)
			if err != nil {
				return nil, fmt.Errorf("pmu: parse online cpu range %q: %w", part, err)
			}
		}
		for c := loN; c <= hiN; c++ {
			cpus = append(cpus, c)
		}
	}
	return cpus, nil
}
