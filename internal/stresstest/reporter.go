package stresstest

import (
	"context"
	"fmt"
	"time"
)

// report prints one summary line per tick until every connection completed.
// A cancelled ctx produces one last line before returning.
func (e *Executor) report(ctx context.Context) {
	ticker := time.NewTicker(e.reportInterval)
	defer ticker.Stop()

	last := 0
	lastTick := time.Now()
	stopping := false

	for {
		conn, events := e.stats.Snapshot()
		completed := events.Completed - events.Errored
		tps := Throughput(completed-last, time.Since(lastTick))

		fmt.Fprintf(e.out, "elapsed: %dms tps: %d/s %s, %s\n",
			time.Since(e.runStart).Milliseconds(), int64(tps), conn, events)

		last = completed
		lastTick = time.Now()

		if conn.Completed == conn.Total || stopping {
			return
		}

		select {
		case <-ctx.Done():
			stopping = true
		case <-ticker.C:
		}
	}
}

// Throughput returns completed requests per second over elapsed. Windows of
// one second or less report 0.
func Throughput(completed int, elapsed time.Duration) float64 {
	if elapsed <= time.Second {
		return 0
	}
	return float64(completed) / elapsed.Seconds()
}
