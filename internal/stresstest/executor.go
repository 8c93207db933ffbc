package stresstest

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"os"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/studiowebux/relaybench/internal/executor"
	"github.com/studiowebux/relaybench/internal/nostr"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

const (
	// WarmupDelay lets a fresh connection settle before the first REQ
	WarmupDelay = 1 * time.Second
	// BatchWindow is the pause after every Rate launches
	BatchWindow = 1 * time.Second
	// ReportInterval is the reporter polling period
	ReportInterval = 2 * time.Second
)

var (
	// ErrConnectFailed marks a connection that was never established
	ErrConnectFailed = executor.ErrConnectFailed
	// ErrLost marks a stream that ended or failed before the keepalive deadline
	ErrLost = errors.New("connection lost")
	// ErrAliveTimeout marks the keepalive deadline firing. It is the expected
	// end of a healthy connection, not a failure.
	ErrAliveTimeout = errors.New("keepalive deadline reached")
)

// Executor runs one request benchmark
type Executor struct {
	config *ExecutionConfig
	stats  *Aggregator
	logger *zap.Logger
	out    io.Writer
	dial   DialFunc

	keepalive      time.Duration
	warmup         time.Duration
	batchWindow    time.Duration
	reportInterval time.Duration

	runStart time.Time
	wg       sync.WaitGroup // Connection goroutines
}

// NewExecutor creates a new benchmark executor
func NewExecutor(config *ExecutionConfig) (*Executor, error) {
	if config.Config == nil {
		return nil, fmt.Errorf("invalid config: missing benchmark config")
	}
	if err := config.Config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	if config.Dial == nil {
		return nil, fmt.Errorf("invalid config: dial function is required")
	}

	logger := config.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	out := config.Output
	if out == nil {
		out = os.Stdout
	}

	return &Executor{
		config:         config,
		stats:          NewAggregator(config.Config.Count),
		logger:         logger,
		out:            out,
		dial:           config.Dial,
		keepalive:      config.Config.GetKeepalive(),
		warmup:         WarmupDelay,
		batchWindow:    BatchWindow,
		reportInterval: ReportInterval,
	}, nil
}

// Stats returns the live statistics of the run
func (e *Executor) Stats() *Aggregator {
	return e.stats
}

// Run launches every connection and reports until all of them completed or
// ctx is cancelled. It returns without waiting for connections that are
// still tearing down.
func (e *Executor) Run(ctx context.Context) (ConnectionStats, EventStats, error) {
	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	e.runStart = time.Now()

	g, gctx := errgroup.WithContext(runCtx)
	g.Go(func() error {
		return e.spawn(gctx)
	})

	e.report(runCtx)
	cancel()

	err := g.Wait()
	conn, events := e.stats.Snapshot()
	if ctx.Err() != nil {
		return conn, events, ctx.Err()
	}
	if err != nil && !errors.Is(err, context.Canceled) {
		return conn, events, err
	}
	return conn, events, nil
}

// spawn launches Count connection goroutines, pausing one window after
// every Rate launches
func (e *Executor) spawn(ctx context.Context) error {
	cfg := e.config.Config

	for i := 0; i < cfg.Count; i++ {
		if err := ctx.Err(); err != nil {
			return err
		}

		localAddr := cfg.BindAddr(i)
		e.stats.ConnectAttempted()

		e.wg.Add(1)
		go func() {
			defer e.wg.Done()
			e.runConnection(ctx, localAddr)
		}()

		if (i+1)%cfg.Rate == 0 {
			if err := sleepContext(ctx, e.batchWindow); err != nil {
				return err
			}
		}
	}

	e.logger.Debug("all connections launched", zap.Int("count", cfg.Count))
	return nil
}

// runConnection drives one connection from connect to its terminal outcome
func (e *Executor) runConnection(ctx context.Context, localAddr *net.TCPAddr) {
	start := time.Now()
	conn, err := e.dial(ctx, localAddr)
	e.stats.ConnectFinished(time.Since(e.runStart))
	if err != nil {
		if !errors.Is(err, ErrConnectFailed) {
			err = fmt.Errorf("%w: %v", ErrConnectFailed, err)
		}
		e.logger.Debug("connect failed", zap.Stringer("local_addr", localAddr), zap.Error(err))
		e.stats.ConnectFailed()
		return
	}
	e.stats.Connected(time.Since(start))

	outcome := OutcomeLost
	err = e.wait(ctx, conn)
	if errors.Is(err, ErrAliveTimeout) {
		outcome = OutcomeClosed
	} else {
		e.logger.Debug("connection lost", zap.Stringer("local_addr", localAddr), zap.Error(err))
	}

	e.stats.Terminated(outcome)
}

// wait runs the request loop, bounded by the keepalive deadline when one is
// set. When the deadline fires the connection is closed under the loop,
// which abandons it at whatever read or write it is blocked on.
func (e *Executor) wait(ctx context.Context, conn Conn) error {
	var (
		loopCtx context.Context
		cancel  context.CancelFunc
	)
	if e.keepalive > 0 {
		loopCtx, cancel = context.WithTimeout(ctx, e.keepalive)
	} else {
		loopCtx, cancel = context.WithCancel(ctx)
	}
	defer cancel()

	stop := context.AfterFunc(loopCtx, func() {
		_ = conn.Close()
	})
	defer stop()

	err := e.requestLoop(loopCtx, conn)
	_ = conn.Close()

	if e.keepalive > 0 && errors.Is(loopCtx.Err(), context.DeadlineExceeded) {
		return ErrAliveTimeout
	}
	if err != nil {
		return fmt.Errorf("%w: %v", ErrLost, err)
	}
	return ErrLost
}

// requestLoop sends a REQ, waits for its EOSE, sends CLOSE and starts over.
// It only returns when the relay closes the stream or an I/O error occurs.
func (e *Executor) requestLoop(ctx context.Context, conn Conn) error {
	if err := sleepContext(ctx, e.warmup); err != nil {
		return err
	}

	subID := nostr.NewSubscriptionID()
	start := time.Now()
	if err := e.sendRequest(conn, subID); err != nil {
		return err
	}

	for {
		messageType, message, err := conn.ReadMessage()
		if err != nil {
			var closeErr *websocket.CloseError
			if errors.As(err, &closeErr) {
				return nil
			}
			return fmt.Errorf("read failed: %w", err)
		}

		if messageType != websocket.TextMessage || !nostr.IsEndOfStream(message, subID) {
			continue
		}

		e.stats.RequestCompleted(time.Since(start))

		closeMsg, err := nostr.BuildClose(subID)
		if err != nil {
			return err
		}
		if err := conn.WriteMessage(websocket.TextMessage, closeMsg); err != nil {
			return fmt.Errorf("failed to send CLOSE: %w", err)
		}

		start = time.Now()
		if err := e.sendRequest(conn, subID); err != nil {
			return err
		}
	}
}

// sendRequest counts and writes one REQ
func (e *Executor) sendRequest(conn Conn, subID string) error {
	req, err := nostr.BuildRequest(subID, e.config.Config.Filter)
	if err != nil {
		return err
	}
	e.stats.RequestSent()
	if err := conn.WriteMessage(websocket.TextMessage, req); err != nil {
		return fmt.Errorf("failed to send REQ: %w", err)
	}
	return nil
}

// sleepContext waits for d or until ctx is done
func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
