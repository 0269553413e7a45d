// Copyright © 2018 One Concern

package internal

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"runtime/pprof"
	"time"

	"github.com/oneconcern/condarepo/internal/rand"
	"github.com/oneconcern/condarepo/pkg/dlogger"

	"go.uber.org/zap"
)

const mib = 1024 * 1024

// MemWatchParams tunes the heap watcher of a server
type MemWatchParams struct {
	Interval time.Duration
	// ThresholdMB triggers a single heap profile when the heap in use exceeds it. Zero disables profiling.
	ThresholdMB uint64
	DestDir     string
	NamePrefix  string
	Logger      *zap.Logger
}

func memWatchDefaults(params MemWatchParams) (MemWatchParams, error) {
	if params.Interval <= 0 {
		params.Interval = time.Second
	}
	if params.DestDir == "" {
		params.DestDir = os.TempDir()
	}
	if params.NamePrefix == "" {
		params.NamePrefix = "condarepo_" + rand.LetterString(3)
	}
	if params.Logger == nil {
		logger, err := dlogger.GetLogger(dlogger.LogLevelInfo)
		if err != nil {
			return MemWatchParams{}, err
		}
		params.Logger = logger
	}
	return params, nil
}

// writeProfIfNExist writes the named runtime profile, unless the file already exists
func writeProfIfNExist(path string, name string) error {
	if _, err := os.Stat(path); !os.IsNotExist(err) {
		return err
	}
	fprof, err := os.Create(path)
	if err != nil {
		return err
	}
	defer func() { _ = fprof.Close() }()
	return pprof.Lookup(name).WriteTo(fprof, 0)
}

// MaybeMemProf writes heap and allocs profiles when the heap in use exceeds the threshold.
// It reports whether profiles were written.
func MaybeMemProf(mstats *runtime.MemStats, params MemWatchParams) (bool, error) {
	if params.ThresholdMB == 0 || mstats.HeapInuse/mib < params.ThresholdMB {
		return false, nil
	}
	base := filepath.Join(params.DestDir, fmt.Sprintf("%s-%d", params.NamePrefix, params.ThresholdMB))
	if err := writeProfIfNExist(base+".mem.prof", "heap"); err != nil {
		return false, err
	}
	if err := writeProfIfNExist(base+".alloc.prof", "allocs"); err != nil {
		return false, err
	}
	return true, nil
}

func memWatch(ctx context.Context, params MemWatchParams) {
	ticker := time.NewTicker(params.Interval)
	defer ticker.Stop()

	mstats := new(runtime.MemStats)
	var maxHeap uint64
	profiled := false
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
		runtime.ReadMemStats(mstats)
		if mstats.HeapSys > maxHeap {
			maxHeap = mstats.HeapSys
			params.Logger.Info("grew heap",
				zap.Uint64("MiB for heap (in use)", mstats.HeapInuse/mib),
				zap.Uint64("MiB for heap (max ever)", mstats.HeapSys/mib),
				zap.Int("num go routines", runtime.NumGoroutine()),
			)
		}
		if profiled {
			continue
		}
		ok, err := MaybeMemProf(mstats, params)
		if err != nil {
			params.Logger.Error("memory profiling error", zap.Error(err))
			continue
		}
		if ok {
			profiled = true
			params.Logger.Warn("heap exceeded threshold, profile written",
				zap.Uint64("threshold MiB", params.ThresholdMB),
				zap.String("dir", params.DestDir),
			)
		}
	}
}

// MemWatch logs heap growth periodically until the context is done
func MemWatch(ctx context.Context, params MemWatchParams) error {
	params, err := memWatchDefaults(params)
	if err != nil {
		return err
	}
	go memWatch(ctx, params)
	return nil
}
