package metrics

import (
	"sync"
	"sync/atomic"
)

// Engine counters, thread-safe for use from workers and the stats endpoint.

type executionStats struct {
	total    uint64
	mu       sync.Mutex
	byStatus map[string]uint64
}

var (
	exec       executionStats
	queueDrops uint64
	scanSweeps uint64
)

// IncExecution counts one recorded execution by aggregate status.
func IncExecution(status string) {
	if status == "" {
		status = "unknown"
	}
	atomic.AddUint64(&exec.total, 1)
	exec.mu.Lock()
	if exec.byStatus == nil {
		exec.byStatus = make(map[string]uint64)
	}
	exec.byStatus[status]++
	exec.mu.Unlock()
}

// ExecutionSnapshot returns a copy of the execution counters.
func ExecutionSnapshot() (total uint64, by map[string]uint64) {
	total = atomic.LoadUint64(&exec.total)
	exec.mu.Lock()
	defer exec.mu.Unlock()
	by = make(map[string]uint64, len(exec.byStatus))
	for k, v := range exec.byStatus {
		by[k] = v
	}
	return total, by
}

// IncQueueDrop counts an event rejected by a full engine queue.
func IncQueueDrop() {
	atomic.AddUint64(&queueDrops, 1)
}

// QueueDrops returns the number of dropped events.
func QueueDrops() uint64 {
	return atomic.LoadUint64(&queueDrops)
}

// IncScanSweep counts one completed scanner sweep.
func IncScanSweep() {
	atomic.AddUint64(&scanSweeps, 1)
}

// ScanSweeps returns the number of completed scanner sweeps.
func ScanSweeps() uint64 {
	return atomic.LoadUint64(&scanSweeps)
}
