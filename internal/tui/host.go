package tui

import (
	"context"
	"fmt"

	"github.com/shirou/gopsutil/v4/cpu"
)

// HostSummary reports the host's logical CPU count, used to annotate
// `cub list --format=default` output, grounded in floegence's monitor
// service's cpu.CountsWithContext call.
func HostSummary(ctx context.Context) string {
	counts, err := cpu.CountsWithContext(ctx, true)
	if err != nil || counts == 0 {
		return "host: cpu count unavailable"
	}
	return fmt.Sprintf("host: %d logical CPUs", counts)
}

// DefaultParallelism returns a conservative worker count for
// independent package builds, derived from the host's logical CPU
// count. Never less than 1.
func DefaultParallelism(ctx context.Context) int {
	counts, err := cpu.CountsWithContext(ctx, true)
	if err != nil || counts < 1 {
		return 1
	}
	return counts
}
