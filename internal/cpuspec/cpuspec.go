// Package cpuspec reports the processor resources available for analysis workers.
package cpuspec

import (
	"runtime"

	"github.com/klauspost/cpuid/v2"
)

// CPUSpec contains information about CPU specifications
type CPUSpec struct {
	BrandName    string
	LogicalCores int // logical cores reported by CPUID, 0 when unknown
	Schedulable  int // CPUs the Go runtime may schedule on (affinity and cgroup limits apply)
}

// GetCPUSpec returns the specification of the host processor
func GetCPUSpec() CPUSpec {
	return CPUSpec{
		BrandName:    cpuid.CPU.BrandName,
		LogicalCores: cpuid.CPU.LogicalCores,
		Schedulable:  runtime.NumCPU(),
	}
}

// AvailableCores returns the number of cores work can actually run on.
// Inside VMs and containers CPUID may report more cores than the process
// is allowed to use, so the smaller positive value wins.
func (c CPUSpec) AvailableCores() int {
	cores := c.Schedulable
	if c.LogicalCores > 0 && (cores <= 0 || c.LogicalCores < cores) {
		cores = c.LogicalCores
	}
	if cores < 1 {
		return 1
	}
	return cores
}

// AvailableCores is shorthand for GetCPUSpec().AvailableCores()
func AvailableCores() int {
	return GetCPUSpec().AvailableCores()
}
