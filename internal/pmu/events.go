// Package pmu implements the hardware performance-monitoring-unit
// event-group manager (§4.2): per-CPU raw counter groups, vendor/model
// counter-list selection, user-override merging, and the weighted
// aggregate derived-metric formula.
package pmu

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
)

// RawEvent is one raw PMU event: a human-readable name and the
// vendor-specific 64-bit config code passed to perf_event_open.
type RawEvent struct {
	Name   string `json:"name"`
	Config uint64 `json:"config"`
}

// NamedCounter is a derived metric built from one or more numerator
// and denominator raw events sharing a single counter group, scaled
// by a constant factor (e.g. per-mille, per-thousand-instructions).
type NamedCounter struct {
	Name         string     `json:"name"`
	Numerators   []RawEvent `json:"numerators"`
	Denominators []RawEvent `json:"denominators"`
	Scale        uint64     `json:"scale"`
}

func ctr(name string, config uint64) RawEvent { return RawEvent{Name: name, Config: config} }

// Intel (and Intel-compatible) baseline events and counter list.
var (
	intelInstructions    = ctr("Instructions", 0xc0)
	intelCycles          = ctr("Cycles", 0x3c)
	intelStallFrontend   = ctr("Frontend-Stalls", 0x9c01)
	intelBranches        = ctr("Branches", 0xc5)
	intelCodeSparsity    = ctr("Code-Sparsity", 0x4901)
	intelInstructionTLB  = ctr("Instruction-TLB", 0x8520)
	intelInstructionTLBW = ctr("Instruction-TLB-TW", 0x8501)
	intelL1Instructions  = ctr("L1-Instructions", 0x24e4)
	intelStallBackend    = ctr("Backend-Stalls", 0xa201)
	intelL3              = ctr("L3", 0x2e41)
	intelL2              = ctr("L2", 0xf11f)
	intelDataTLB         = ctr("Data-TLB", 0x0820)
	intelDataTLBW        = ctr("Data-TLB-TW", 0x0801)
	intelL1Data          = ctr("L1-Data", 0x5101)
)

var intelCounters = []NamedCounter{
	{Name: "ipc", Numerators: []RawEvent{intelInstructions}, Denominators: []RawEvent{intelCycles}, Scale: 1},
	{Name: "stall-frontend-pkc", Numerators: []RawEvent{intelStallFrontend}, Denominators: []RawEvent{intelCycles}, Scale: 1000},
	{Name: "branch-mpki", Numerators: []RawEvent{intelBranches}, Denominators: []RawEvent{intelInstructions}, Scale: 1000},
	{Name: "code-sparsity", Numerators: []RawEvent{intelCodeSparsity}, Denominators: []RawEvent{intelInstructions}, Scale: 1000},
	{Name: "inst-tlb-mpki", Numerators: []RawEvent{intelInstructionTLB}, Denominators: []RawEvent{intelInstructions}, Scale: 1000},
	{Name: "inst-tlb-tw-pki", Numerators: []RawEvent{intelInstructionTLBW}, Denominators: []RawEvent{intelInstructions}, Scale: 1000},
	{Name: "inst-l1-mpki", Numerators: []RawEvent{intelL1Instructions}, Denominators: []RawEvent{intelInstructions}, Scale: 1000},
	{Name: "stall-backend-pkc", Numerators: []RawEvent{intelStallBackend}, Denominators: []RawEvent{intelCycles}, Scale: 1000},
	{Name: "l3-mpki", Numerators: []RawEvent{intelL3}, Denominators: []RawEvent{intelInstructions}, Scale: 1000},
	{Name: "l2-mpki", Numerators: []RawEvent{intelL2}, Denominators: []RawEvent{intelInstructions}, Scale: 1000},
	{Name: "data-tlb-mpki", Numerators: []RawEvent{intelDataTLB}, Denominators: []RawEvent{intelInstructions}, Scale: 1000},
	{Name: "data-tlb-tw-pki", Numerators: []RawEvent{intelDataTLBW}, Denominators: []RawEvent{intelInstructions}, Scale: 1000},
	{Name: "data-l1-mpki", Numerators: []RawEvent{intelL1Data}, Denominators: []RawEvent{intelInstructions}, Scale: 1000},
}

// Icelake and Sapphire Rapids narrow the frontend/backend stall
// events; everything else is inherited from the Intel baseline by
// name, the same merge-by-name rule a user override uses.
var intelIcelakeOverrides = []NamedCounter{
	{Name: "stall-frontend-pkc", Numerators: []RawEvent{ctr("Frontend-Stalls", 0x500019c)}, Denominators: []RawEvent{intelCycles}, Scale: 1000},
	{Name: "stall-backend-pkc", Numerators: []RawEvent{ctr("Backend-Stalls", 0x02a4)}, Denominators: []RawEvent{ctr("Slots", 0x01a4)}, Scale: 1000},
}

var intelSapphireRapidsOverrides = intelIcelakeOverrides

// AMD baseline events and counter list.
var (
	amdInstructions     = ctr("Instructions", 0x00c0)
	amdCycles           = ctr("Cycles", 0x0076)
	amdBranchMispred    = ctr("Branch-Mispredictions", 0x00c3)
	amdL1DataFill       = ctr("L1-Data-Fills", 0xff44)
	amdL1InstructionMis = ctr("L1-Instruction-Misses", 0x1060)
	amdL2DemandMiss     = ctr("L2-Demand-Misses", 0x0964)
	amdL1AnyFillsDRAM   = ctr("L1-Any-Fills-DRAM", 0x0844) // approximately L3 misses
	amdStallFrontend    = ctr("Frontend-Stalls", 0x00a9)
	amdInstructionTLB   = ctr("Instruction-TLB-Misses", 0x0084)
	amdInstructionTLBW  = ctr("Instruction-TLB-TW-Misses", 0x0f85)
	amdDataTLB          = ctr("Data-TLB-Misses", 0xff45)
	amdDataTLBW         = ctr("Data-TLB-TW-Misses", 0xf045)
)

var amdCounters = []NamedCounter{
	{Name: "ipc", Numerators: []RawEvent{amdInstructions}, Denominators: []RawEvent{amdCycles}, Scale: 1},
	{Name: "branch-mpki", Numerators: []RawEvent{amdBranchMispred}, Denominators: []RawEvent{amdInstructions}, Scale: 1000},
	{Name: "data-l1-mpki", Numerators: []RawEvent{amdL1DataFill}, Denominators: []RawEvent{amdInstructions}, Scale: 1000},
	{Name: "inst-l1-mpki", Numerators: []RawEvent{amdL1InstructionMis}, Denominators: []RawEvent{amdInstructions}, Scale: 1000},
	{Name: "l2-mpki", Numerators: []RawEvent{amdL2DemandMiss}, Denominators: []RawEvent{amdInstructions}, Scale: 1000},
	{Name: "l3-mpki", Numerators: []RawEvent{amdL1AnyFillsDRAM}, Denominators: []RawEvent{amdInstructions}, Scale: 1000},
	{Name: "stall_frontend_pkc", Numerators: []RawEvent{amdStallFrontend}, Denominators: []RawEvent{amdCycles}, Scale: 1000},
	{Name: "inst-tlb-mpki", Numerators: []RawEvent{amdInstructionTLB}, Denominators: []RawEvent{amdInstructions}, Scale: 1000},
	{Name: "inst-tlb-tw-mpki", Numerators: []RawEvent{amdInstructionTLBW}, Denominators: []RawEvent{amdInstructions}, Scale: 1000},
	{Name: "data-tlb-mpki", Numerators: []RawEvent{amdDataTLB}, Denominators: []RawEvent{amdInstructions}, Scale: 1000},
	{Name: "data-tlb-tw-pki", Numerators: []RawEvent{amdDataTLBW}, Denominators: []RawEvent{amdInstructions}, Scale: 1000},
}

// Genoa and Milan use the same baseline AMD events in this list; the
// override slots exist so a future per-model correction has somewhere
// to live without touching the merge call sites.
var amdGenoaOverrides = []NamedCounter{}
var amdMilanOverrides = []NamedCounter{}

// Graviton (arm64) baseline events and counter list.
var (
	grvInstructions    = ctr("Instructions", 0x08)
	grvCycles          = ctr("Cycles", 0x11)
	grvStallFrontend   = ctr("Frontend-Stalls", 0x23)
	grvBranches        = ctr("Branches", 0x10)
	grvCodeSparsity    = ctr("Code-Sparsity", 0x11c)
	grvInstructionTLB  = ctr("Instruction-TLB", 0x2)
	grvInstructionTLBW = ctr("Instruction-TLB-TW", 0x35)
	grvL1Instructions  = ctr("L1-Instructions", 0x1)
	grvStallBackend    = ctr("Backend-Stalls", 0x24)
	grvL3              = ctr("L3", 0x37)
	grvL2              = ctr("L2", 0x17)
	grvDataTLB         = ctr("Data-TLB", 0x5)
	grvDataTLBW        = ctr("Data-TLB-TW", 0x34)
	grvL1Data          = ctr("L1-Data", 0x3)
)

var grvCounters = []NamedCounter{
	{Name: "ipc", Numerators: []RawEvent{grvInstructions}, Denominators: []RawEvent{grvCycles}, Scale: 1},
	{Name: "stall-frontend-pkc", Numerators: []RawEvent{grvStallFrontend}, Denominators: []RawEvent{grvCycles}, Scale: 1000},
	{Name: "branch-mpki", Numerators: []RawEvent{grvBranches}, Denominators: []RawEvent{grvInstructions}, Scale: 1000},
	{Name: "code-sparsity", Numerators: []RawEvent{grvCodeSparsity}, Denominators: []RawEvent{grvInstructions}, Scale: 1000},
	{Name: "inst-tlb-mpki", Numerators: []RawEvent{grvInstructionTLB}, Denominators: []RawEvent{grvInstructions}, Scale: 1000},
	{Name: "inst-tlb-tw-pki", Numerators: []RawEvent{grvInstructionTLBW}, Denominators: []RawEvent{grvInstructions}, Scale: 1000},
	{Name: "inst-l1-mpki", Numerators: []RawEvent{grvL1Instructions}, Denominators: []RawEvent{grvInstructions}, Scale: 1000},
	{Name: "stall-backend-pkc", Numerators: []RawEvent{grvStallBackend}, Denominators: []RawEvent{grvCycles}, Scale: 1000},
	{Name: "l3-mpki", Numerators: []RawEvent{grvL3}, Denominators: []RawEvent{grvInstructions}, Scale: 1000},
	{Name: "l2-mpki", Numerators: []RawEvent{grvL2}, Denominators: []RawEvent{grvInstructions}, Scale: 1000},
	{Name: "data-tlb-mpki", Numerators: []RawEvent{grvDataTLB}, Denominators: []RawEvent{grvInstructions}, Scale: 1000},
	{Name: "data-tlb-tw-pki", Numerators: []RawEvent{grvDataTLBW}, Denominators: []RawEvent{grvInstructions}, Scale: 1000},
	{Name: "data-l1-mpki", Numerators: []RawEvent{grvL1Data}, Denominators: []RawEvent{grvInstructions}, Scale: 1000},
}

// CPUIdentity is the vendor/family/model triple read from /proc/cpuinfo
// that drives built-in counter-list selection.
type CPUIdentity struct {
	VendorID string
	Family   int
	Model    int
}

// DetectCPUIdentity parses the first "processor" block of
// <procRoot>/cpuinfo for vendor_id, cpu family, and model.
func DetectCPUIdentity(procRoot string) (CPUIdentity, error) {
	f, err := os.Open(filepath.Join(procRoot, "cpuinfo"))
	if err != nil {
		return CPUIdentity{}, fmt.Errorf("pmu: read cpuinfo: %w", err)
	}
	defer f.Close()

	var id CPUIdentity
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		key, value, ok := strings.Cut(scanner.Text(), ":")
		if !ok {
			continue
		}
		key = strings.TrimSpace(key)
		value = strings.TrimSpace(value)
		switch key {
		case "vendor_id":
			id.VendorID = value
		case "cpu family":
			id.Family, _ = strconv.Atoi(value)
		case "model":
			id.Model, _ = strconv.Atoi(value)
		}
		if id.VendorID != "" && id.Family != 0 && id.Model != 0 {
			break
		}
	}
	return id, scanner.Err()
}

// BuiltinCounters selects the built-in named-counter list for the
// detected vendor/family/model, applying the known microarchitecture
// override on top of the vendor baseline.
func BuiltinCounters(id CPUIdentity) []NamedCounter {
	switch id.VendorID {
	case "GenuineIntel":
		switch {
		case id.Family == 6 && id.Model == 143: // Sapphire Rapids
			return MergeByName(intelCounters, intelSapphireRapidsOverrides)
		case id.Family == 6 && (id.Model == 106 || id.Model == 108): // Ice Lake
			return MergeByName(intelCounters, intelIcelakeOverrides)
		default:
			return intelCounters
		}
	case "AuthenticAMD":
		switch {
		case id.Family == 25 && id.Model == 17: // Genoa
			return MergeByName(amdCounters, amdGenoaOverrides)
		case id.Family == 25 && id.Model == 1: // Milan
			return MergeByName(amdCounters, amdMilanOverrides)
		default:
			return amdCounters
		}
	default:
		return grvCounters
	}
}

// MergeByName overrides base with entries from overrides sharing the
// same counter name, and appends any overrides not already present —
// a user-supplied entry wins wholesale.
func MergeByName(base, overrides []NamedCounter) []NamedCounter {
	if len(overrides) == 0 {
		return base
	}
	byName := make(map[string]NamedCounter, len(base))
	var order []string
	for _, nc := range base {
		byName[nc.Name] = nc
		order = append(order, nc.Name)
	}
	for _, nc := range overrides {
		if _, exists := byName[nc.Name]; !exists {
			order = append(order, nc.Name)
		}
		byName[nc.Name] = nc
	}
	merged := make([]NamedCounter, 0, len(order))
	for _, name := range order {
		merged = append(merged, byName[name])
	}
	return merged
}

// LoadOverrides reads a user-supplied JSON array of NamedCounter from
// path.
func LoadOverrides(path string) ([]NamedCounter, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("pmu: read override file %s: %w", path, err)
	}
	var overrides []NamedCounter
	if err := json.Unmarshal(data, &overrides); err != nil {
		return nil, fmt.Errorf("pmu: parse override file %s: %w", path, err)
	}
	return overrides, nil
}

// PersistEffectiveConfig writes the effective (post-merge) counter
// list to path so a report-phase replay can be validated against what
// was actually recorded.
func PersistEffectiveConfig(counters []NamedCounter, path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("pmu: mkdir %s: %w", filepath.Dir(path), err)
	}
	data, err := json.MarshalIndent(counters, "", "  ")
	if err != nil {
		return fmt.Errorf("pmu: marshal effective config: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("pmu: write %s: %w", path, err)
	}
	return nil
}

// VerifyConfigFile validates that path contains a well-formed
// NamedCounter override list without opening any hardware counters —
// the non-interactive form of custom-pmu --verify.
func VerifyConfigFile(path string) error {
	counters, err := LoadOverrides(path)
	if err != nil {
		return err
	}
	if len(counters) == 0 {
		return fmt.Errorf("pmu: %s defines no counters", path)
	}
	for _, nc := range counters {
		if nc.Name == "" {
			return fmt.Errorf("pmu: %s: counter with empty name", path)
		}
		if len(nc.Numerators) == 0 {
			return fmt.Errorf("pmu: %s: counter %q has no numerator events", path, nc.Name)
		}
		if len(nc.Denominators) == 0 {
			return fmt.Errorf("pmu: %s: counter %q has no denominator events", path, nc.Name)
		}
	}
	return nil
}
