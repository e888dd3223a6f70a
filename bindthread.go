package rssl

import (
	"fmt"
	"runtime"
	"strconv"
	"strings"

	"github.com/klauspost/cpuid/v2"
)

// cpuSummary describes the host processor for the INIT log line.
func cpuSummary() string {
	return fmt.Sprintf("%s (%d cores, %d threads)", cpuid.CPU.BrandName, cpuid.CPU.PhysicalCores, cpuid.CPU.LogicalCores)
}

// numCPU returns the number of logical processors.
func numCPU() int {
	if n := cpuid.CPU.LogicalCores; n > 0 {
		return n
	}
	return runtime.NumCPU()
}

// parseCPUList parses a list like "0,2,4-6" into CPU numbers.
func parseCPUList(s string) ([]int, error) {
	var cpus []int
	max := numCPU()
	for _, part := range strings.Split(s, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		lo, hi := part, part
		if i := strings.IndexByte(part, '-'); i > 0 {
			lo, hi = part[:i], part[i+1:]
		}
		from, err := strconv.Atoi(lo)
		if err != nil {
			return nil, newError(RetFailure, err, "0002 Invalid CPU %q", part)
		}
		to, err := strconv.Atoi(hi)
		if err != nil {
			return nil, newError(RetFailure, err, "0002 Invalid CPU %q", part)
		}
		if from < 0 || to < from || to >= max {
			return nil, newError(RetFailure, nil, "0002 CPU range %q outside 0-%d", part, max-1)
		}
		for n := from; n <= to; n++ {
			cpus = append(cpus, n)
		}
	}
	if len(cpus) == 0 {
		return nil, newError(RetFailure, nil, "0002 No CPUs given")
	}
	return cpus, nil
}

// BindThread locks the calling goroutine to its OS thread and restricts
// that thread to the CPUs listed in cpus, for example "0,2,4-6".
func BindThread(cpus string) error {
	list, err := parseCPUList(cpus)
	if err != nil {
		return err
	}
	runtime.LockOSThread()
	if err = setAffinity(list); err != nil {
		runtime.UnlockOSThread()
		return err
	}
	return nil
}
