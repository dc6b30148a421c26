package concurrent

import (
	"sync/atomic"
	"time"
)

// Stats, havuzun ömrü boyunca biriken tekrar deneme sayaçlarıdır. Rejected,
// kuyruk doluyken geri çevrilen kayıtları sayar; bu kayıtlar sonraki tarama
// turunda yeniden bulunur.
type Stats struct {
	Dispatched   int64         `json:"dispatched"`
	Completed    int64         `json:"completed"`
	Failed       int64         `json:"failed"`
	Rejected     int64         `json:"rejected"`
	AvgRetryTime time.Duration `json:"avg_retry_time_ns"`
}

type statsCollector struct {
	dispatched int64
	completed  int64
	failed     int64
	rejected   int64
	totalNanos int64
	measured   int64
}

func (sc *statsCollector) markDispatched() {
	atomic.AddInt64(&sc.dispatched, 1)
}

func (sc *statsCollector) markRejected() {
	atomic.AddInt64(&sc.rejected, 1)
}

func (sc *statsCollector) markFailed() {
	atomic.AddInt64(&sc.failed, 1)
}

func (sc *statsCollector) markCompleted(d time.Duration) {
	atomic.AddInt64(&sc.completed, 1)
	atomic.AddInt64(&sc.totalNanos, d.Nanoseconds())
	atomic.AddInt64(&sc.measured, 1)
}

func (sc *statsCollector) snapshot() Stats {
	stats := Stats{
		Dispatched: atomic.LoadInt64(&sc.dispatched),
		Completed:  atomic.LoadInt64(&sc.completed),
		Failed:     atomic.LoadInt64(&sc.failed),
		Rejected:   atomic.LoadInt64(&sc.rejected),
	}

	if measured := atomic.LoadInt64(&sc.measured); measured > 0 {
		stats.AvgRetryTime = time.Duration(atomic.LoadInt64(&sc.totalNanos) / measured)
	}

	return stats
}
