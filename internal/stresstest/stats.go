package stresstest

import (
	"fmt"
	"sync"
	"time"
)

// Outcome is the terminal classification of one connection
type Outcome int

const (
	// OutcomeClosed is the keepalive deadline firing on a healthy connection
	OutcomeClosed Outcome = iota
	// OutcomeLost is the stream ending or failing before the deadline
	OutcomeLost
	// OutcomeError is a connection that was never established
	OutcomeError
)

func (o Outcome) String() string {
	switch o {
	case OutcomeClosed:
		return "closed"
	case OutcomeLost:
		return "lost"
	case OutcomeError:
		return "error"
	default:
		return "unknown"
	}
}

// ConnectionStats holds connection level counters for a run
type ConnectionStats struct {
	Total       int           // Requested connection count
	Connecting  int           // Connect attempts issued
	Alive       int           // Connections currently running their request loop
	Closed      int           // Ended by the keepalive deadline
	Lost        int           // Ended by the stream closing or failing
	Errored     int           // Never established
	Completed   int           // Lifecycles fully finished
	Elapsed     time.Duration // Run time at the latest connect attempt
	SuccessTime time.Duration // Cumulative time to establish successful connections
}

// Established returns how many connections were ever established
func (s ConnectionStats) Established() int {
	return s.Alive + s.Closed + s.Lost
}

// AvgSuccessTime returns the average connect latency of established connections
func (s ConnectionStats) AvgSuccessTime() time.Duration {
	n := s.Established()
	if n == 0 {
		return 0
	}
	return s.SuccessTime / time.Duration(n)
}

func (s ConnectionStats) String() string {
	return fmt.Sprintf("ConnectionStats{total:%d connecting:%d alive:%d closed:%d lost:%d errored:%d completed:%d elapsed:%dms success_time:%dms}",
		s.Total, s.Connecting, s.Alive, s.Closed, s.Lost, s.Errored, s.Completed,
		s.Elapsed.Milliseconds(), s.SuccessTime.Milliseconds())
}

// EventStats holds request cycle counters for a run
type EventStats struct {
	Total         int // Requests sent
	Completed     int // Requests answered with EOSE
	Errored       int
	RoundTripTime time.Duration // Cumulative REQ to EOSE latency
}

// AvgRoundTripTime returns the average REQ to EOSE latency
func (s EventStats) AvgRoundTripTime() time.Duration {
	if s.Completed == 0 {
		return 0
	}
	return s.RoundTripTime / time.Duration(s.Completed)
}

func (s EventStats) String() string {
	return fmt.Sprintf("EventStats{total:%d completed:%d errored:%d round_trip_time:%dms}",
		s.Total, s.Completed, s.Errored, s.RoundTripTime.Milliseconds())
}

// Aggregator is the shared statistics of a run. Every update holds one lock
// for a constant number of field writes.
type Aggregator struct {
	connMu  sync.Mutex
	conn    ConnectionStats
	eventMu sync.Mutex
	events  EventStats
}

// NewAggregator creates an Aggregator expecting total connections
func NewAggregator(total int) *Aggregator {
	return &Aggregator{
		conn: ConnectionStats{Total: total},
	}
}

// ConnectAttempted records a connection being launched
func (a *Aggregator) ConnectAttempted() {
	a.connMu.Lock()
	a.conn.Connecting++
	a.connMu.Unlock()
}

// ConnectFinished records the run time at which a connect attempt returned
func (a *Aggregator) ConnectFinished(elapsed time.Duration) {
	a.connMu.Lock()
	a.conn.Elapsed = elapsed
	a.connMu.Unlock()
}

// Connected records an established connection and its connect latency
func (a *Aggregator) Connected(latency time.Duration) {
	a.connMu.Lock()
	a.conn.Alive++
	a.conn.SuccessTime += latency
	a.connMu.Unlock()
}

// ConnectFailed finishes a connection that was never established
func (a *Aggregator) ConnectFailed() {
	a.connMu.Lock()
	a.conn.Errored++
	a.conn.Completed++
	a.connMu.Unlock()
}

// Terminated finishes an established connection. It must be called exactly
// once per Connected.
func (a *Aggregator) Terminated(outcome Outcome) {
	a.connMu.Lock()
	defer a.connMu.Unlock()

	a.conn.Alive--
	if outcome == OutcomeClosed {
		a.conn.Closed++
	} else {
		a.conn.Lost++
	}
	a.conn.Completed++
}

// RequestSent records a REQ being issued
func (a *Aggregator) RequestSent() {
	a.eventMu.Lock()
	a.events.Total++
	a.eventMu.Unlock()
}

// RequestCompleted records an EOSE and the round trip since its REQ
func (a *Aggregator) RequestCompleted(rtt time.Duration) {
	a.eventMu.Lock()
	a.events.Completed++
	a.events.RoundTripTime += rtt
	a.eventMu.Unlock()
}

// RequestFailed records a request cycle that failed
func (a *Aggregator) RequestFailed() {
	a.eventMu.Lock()
	a.events.Errored++
	a.eventMu.Unlock()
}

// Connections returns a copy of the connection stats
func (a *Aggregator) Connections() ConnectionStats {
	a.connMu.Lock()
	defer a.connMu.Unlock()
	return a.conn
}

// Events returns a copy of the event stats
func (a *Aggregator) Events() EventStats {
	a.eventMu.Lock()
	defer a.eventMu.Unlock()
	return a.events
}

// Snapshot returns copies of both structures taken while holding both locks
func (a *Aggregator) Snapshot() (ConnectionStats, EventStats) {
	a.connMu.Lock()
	defer a.connMu.Unlock()
	a.eventMu.Lock()
	defer a.eventMu.Unlock()
	return a.conn, a.events
}
