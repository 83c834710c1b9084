package memory

import (
	"fmt"

	"github.com/raulk/go-watchdog"
	"go.uber.org/zap"
)

// WatchdogArgs bounds the heap of a local process to what a deployed function gets.
type WatchdogArgs struct {
	MemoryLimitMB  uint64  `arg:"--memory-limit-mb,env:MEMORY_LIMIT_MB" default:"8096"`
	WatchdogFactor float64 `arg:"--watchdog-factor,env:WATCHDOG_FACTOR" default:"0.9"`
	HeapProfileDir string  `arg:"--heap-profile-dir,env:HEAP_PROFILE_DIR,help:capture heap profiles here when close to the limit"`
}

func (args WatchdogArgs) Validate() error {
	if args.WatchdogFactor <= 0 || args.WatchdogFactor >= 1.0 {
		return fmt.Errorf("'factor' should be in (0.0, 1.0)")
	} else if args.MemoryLimitMB == 0 {
		return fmt.Errorf("'limit' should be > 0")
	}
	return nil
}

func (args WatchdogArgs) limit() uint64 {
	return args.MemoryLimitMB << 20
}

// RunMemoryWatchdog starts a heap driven watchdog that forces GC as the heap
// approaches the limit. The returned func stops it.
func RunMemoryWatchdog(args WatchdogArgs, logger *zap.Logger) (func(), error) {
	if err := args.Validate(); err != nil {
		return nil, fmt.Errorf("invalid watchdog config [%+v]: %w", args, err)
	}
	watchdog.Logger = logger.Sugar()
	if args.HeapProfileDir != "" {
		watchdog.HeapProfileDir = args.HeapProfileDir
		watchdog.HeapProfileThreshold = 0.90
	}
	err, stop := watchdog.HeapDriven(args.limit(), 0, watchdog.NewAdaptivePolicy(args.WatchdogFactor))
	if err != nil {
		return nil, fmt.Errorf("failed to start memory watchdog: %w", err)
	}
	logger.Info("memory watchdog started", zap.Uint64("limit_mb", args.MemoryLimitMB), zap.Float64("factor", args.WatchdogFactor))
	return stop, nil
}
