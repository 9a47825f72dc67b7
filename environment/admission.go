package environment

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/mem"
)

// admission gates new run dispatch on the configured CPU/memory/swap
// caps, sampled through gopsutil. It tracks how many runs are in
// flight so that the first slot is never gated: one worker must always
// be runnable, or external load alone could deadlock the experiment.
type admission struct {
	cpuCap, memCap, swapCap float64

	inFlight atomic.Int64
}

func newAdmission(cpuCap, memCap, swapCap float64) *admission {
	for _, c := range []*float64{&cpuCap, &memCap, &swapCap} {
		if *c <= 0 || *c > 1.0 {
			*c = 1.0
		}
	}
	return &admission{cpuCap: cpuCap, memCap: memCap, swapCap: swapCap}
}

// allow samples current host load and reports whether it is under all
// three caps. A sampling error fails open (allow dispatch) rather than
// starving the run queue over a transient stats-collection failure.
func (a *admission) allow(ctx context.Context) bool {
	if a.cpuCap >= 1.0 && a.memCap >= 1.0 && a.swapCap >= 1.0 {
		return true
	}
	if a.cpuCap < 1.0 {
		pcts, err := cpu.PercentWithContext(ctx, 100*time.Millisecond, false)
		if err == nil && len(pcts) > 0 && pcts[0]/100.0 > a.cpuCap {
			return false
		}
	}
	if a.memCap < 1.0 {
		vm, err := mem.VirtualMemoryWithContext(ctx)
		if err == nil && vm.UsedPercent/100.0 > a.memCap {
			return false
		}
	}
	if a.swapCap < 1.0 {
		sw, err := mem.SwapMemoryWithContext(ctx)
		if err == nil && sw.Total > 0 && float64(sw.Used)/float64(sw.Total) > a.swapCap {
			return false
		}
	}
	return true
}

// admit blocks until a run may dispatch, reserving an in-flight slot
// the caller gives back with release once the run settles. When nothing
// is in flight the slot is granted without consulting the caps, so
// progress is always possible; every further slot polls allow with a
// bounded backoff until capacity frees up, ctx is cancelled, or stop
// fires.
func (a *admission) admit(ctx context.Context, stop <-chan struct{}) bool {
	for {
		if a.inFlight.CompareAndSwap(0, 1) {
			return true
		}
		if a.allow(ctx) {
			a.inFlight.Add(1)
			return true
		}
		select {
		case <-ctx.Done():
			return false
		case <-stop:
			return false
		case <-time.After(250 * time.Millisecond):
		}
	}
}

// release returns an admit slot.
func (a *admission) release() { a.inFlight.Add(-1) }
