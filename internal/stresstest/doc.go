/*
Package stresstest provides load testing functionality for Nostr relays.

# Overview

The stresstest package implements a concurrent relay subscription benchmark with:
  - Fixed-window connection ramp-up
  - Round-robin local bind addresses
  - Per-connection keepalive deadlines
  - Real-time statistics and periodic console reports
  - Prometheus export of the same statistics

# Architecture

The package consists of four main components:

1. Config (config.go): Configuration, validation and the dial abstraction
2. Stats (stats.go): Connection and event counters behind the Aggregator
3. Executor (executor.go): Spawner, connection lifecycle and request loop
4. Reporter (reporter.go): Periodic summaries and the end-of-run condition

# Executor Design

The Executor starts one goroutine per connection:
  - The spawner launches Rate connections, sleeps one window, repeats
  - Connection i binds to Interfaces[i mod len(Interfaces)]
  - Each connection dials, waits WarmupDelay, then loops REQ / EOSE / CLOSE
  - The keepalive deadline closes the socket under the loop

Connection lifecycle:
  1. Connecting: ConnectAttempted at launch, dial
  2. Connected: Alive incremented
  3. Running: request loop until deadline, close frame or I/O error
  4. Terminated: exactly one of Closed, Lost or Errored, then Completed

# Statistics

ConnectionStats and EventStats each sit behind their own mutex. All updates
go through Aggregator methods; Snapshot copies both under lock.

Invariants at the end of a run:
  - Completed == Total
  - Completed == Closed + Lost + Errored
  - Alive == 0 once every connection goroutine returned

# Example Usage

	dialer, err := executor.NewWebSocketDialer(ctx, executor.Options{URL: "ws://127.0.0.1:7000"})
	if err != nil {
		return err
	}

	exec, err := NewExecutor(&ExecutionConfig{
		Config: &Config{Count: 1000, Rate: 50, KeepaliveSec: 60},
		Dial:   WebSocketDial(dialer),
		Logger: logger,
	})
	if err != nil {
		return err
	}

	conn, events, err := exec.Run(ctx)
	fmt.Printf("closed=%d lost=%d errored=%d\n", conn.Closed, conn.Lost, conn.Errored)
	fmt.Printf("average round trip: %s\n", events.AvgRoundTripTime())

# Thread Safety

All public methods of Aggregator are safe for concurrent use. An Executor
runs once; Run must not be called twice.

# Cancellation

A run ends when:
  - Every connection completed (reporter polling)
  - The context passed to Run is cancelled (interrupt)

Run does not wait for connections that are still closing after the final
report.
*/
package stresstest
