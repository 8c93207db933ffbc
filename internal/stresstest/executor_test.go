package stresstest

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/studiowebux/relaybench/internal/executor"
	"go.uber.org/zap"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
}

// fakeRelay answers every REQ with one EVENT and an EOSE
type fakeRelay struct {
	server     *httptest.Server
	eoseDelay  time.Duration
	closeAfter int // Send a close frame on the first REQ after this many EOSEs, 0 = never
	reqs       atomic.Int64
	closes     atomic.Int64
}

func newFakeRelay(t *testing.T, eoseDelay time.Duration, closeAfter int) *fakeRelay {
	t.Helper()
	relay := &fakeRelay{eoseDelay: eoseDelay, closeAfter: closeAfter}
	relay.server = httptest.NewServer(http.HandlerFunc(relay.handle))
	t.Cleanup(relay.server.Close)
	return relay
}

func (r *fakeRelay) URL() string {
	return "ws" + strings.TrimPrefix(r.server.URL, "http")
}

func (r *fakeRelay) handle(w http.ResponseWriter, req *http.Request) {
	conn, err := upgrader.Upgrade(w, req, nil)
	if err != nil {
		return
	}
	defer conn.Close()

	eoses := 0
	for {
		_, msg, err := conn.ReadMessage()
		if err != nil {
			return
		}

		var frame []json.RawMessage
		if err := json.Unmarshal(msg, &frame); err != nil || len(frame) < 2 {
			continue
		}
		var label, subID string
		_ = json.Unmarshal(frame[0], &label)
		_ = json.Unmarshal(frame[1], &subID)

		switch label {
		case "REQ":
			r.reqs.Add(1)
			if r.closeAfter > 0 && eoses >= r.closeAfter {
				_ = conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, "bye"))
				_ = conn.SetReadDeadline(time.Now().Add(time.Second))
				for {
					if _, _, err := conn.ReadMessage(); err != nil {
						return
					}
				}
			}
			if r.eoseDelay > 0 {
				time.Sleep(r.eoseDelay)
			}
			event, _ := json.Marshal([]any{"EVENT", subID, map[string]any{"kind": 1, "content": "hello"}})
			eose, _ := json.Marshal([]string{"EOSE", subID})
			if conn.WriteMessage(websocket.TextMessage, event) != nil || conn.WriteMessage(websocket.TextMessage, eose) != nil {
				return
			}
			eoses++
		case "CLOSE":
			r.closes.Add(1)
		}
	}
}

func relayDial(t *testing.T, url string) DialFunc {
	t.Helper()
	dialer, err := executor.NewWebSocketDialer(context.Background(), executor.Options{URL: url})
	require.NoError(t, err)
	return WebSocketDial(dialer)
}

func refusedDial(ctx context.Context, localAddr *net.TCPAddr) (Conn, error) {
	return nil, errors.New("connection refused")
}

func newTestExecutor(t *testing.T, cfg *Config, dial DialFunc) (*Executor, *bytes.Buffer) {
	t.Helper()
	out := &bytes.Buffer{}
	e, err := NewExecutor(&ExecutionConfig{
		Config: cfg,
		Dial:   dial,
		Logger: zap.NewNop(),
		Output: out,
	})
	require.NoError(t, err)

	e.warmup = 10 * time.Millisecond
	e.reportInterval = 20 * time.Millisecond
	return e, out
}

func portAddrs(n int) []*net.TCPAddr {
	addrs := make([]*net.TCPAddr, n)
	for i := range addrs {
		addrs[i] = &net.TCPAddr{IP: net.IPv4(127, 0, 0, 1), Port: i}
	}
	return addrs
}

// TestNewExecutor_Validation tests configuration errors
func TestNewExecutor_Validation(t *testing.T) {
	tests := []struct {
		name   string
		config *ExecutionConfig
	}{
		{name: "missing config", config: &ExecutionConfig{Dial: refusedDial}},
		{name: "zero count", config: &ExecutionConfig{Config: &Config{Count: 0, Rate: 1}, Dial: refusedDial}},
		{name: "zero rate", config: &ExecutionConfig{Config: &Config{Count: 1, Rate: 0}, Dial: refusedDial}},
		{name: "negative keepalive", config: &ExecutionConfig{Config: &Config{Count: 1, Rate: 1, KeepaliveSec: -1}, Dial: refusedDial}},
		{name: "missing dial", config: &ExecutionConfig{Config: &Config{Count: 1, Rate: 1}}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewExecutor(tt.config)
			assert.Error(t, err)
		})
	}

	e, err := NewExecutor(&ExecutionConfig{Config: &Config{Count: 1, Rate: 1, KeepaliveSec: 3}, Dial: refusedDial})
	require.NoError(t, err)
	assert.Equal(t, 3*time.Second, e.keepalive)
	assert.Equal(t, WarmupDelay, e.warmup)
	assert.Equal(t, BatchWindow, e.batchWindow)
	assert.Equal(t, ReportInterval, e.reportInterval)
}

// TestExecutor_SpawnerBatches tests that 200 connections at rate 50 launch in 4 windows
func TestExecutor_SpawnerBatches(t *testing.T) {
	const count, rate = 200, 50
	window := 250 * time.Millisecond

	var mu sync.Mutex
	launched := make(map[int]time.Duration, count)
	start := time.Now()

	dial := func(ctx context.Context, localAddr *net.TCPAddr) (Conn, error) {
		mu.Lock()
		launched[localAddr.Port] = time.Since(start)
		mu.Unlock()
		return nil, errors.New("connection refused")
	}

	e, _ := newTestExecutor(t, &Config{Count: count, Rate: rate, Interfaces: portAddrs(count)}, dial)
	e.batchWindow = window

	conn, events, err := e.Run(context.Background())
	require.NoError(t, err)
	e.wg.Wait()

	mu.Lock()
	defer mu.Unlock()
	require.Len(t, launched, count)
	for i, at := range launched {
		batchStart := time.Duration(i/rate) * window
		assert.GreaterOrEqual(t, at, batchStart, "connection %d launched early", i)
		assert.Less(t, at, batchStart+window/2, "connection %d launched late", i)
	}

	assert.Equal(t, count, conn.Connecting)
	assert.Equal(t, count, conn.Errored)
	assert.Equal(t, count, conn.Completed)
	assert.Equal(t, 0, conn.Alive)
	assert.Equal(t, 0, events.Total)
}

// TestExecutor_InterfaceRoundRobin tests bind address assignment
func TestExecutor_InterfaceRoundRobin(t *testing.T) {
	a := &net.TCPAddr{IP: net.ParseIP("10.0.0.1")}
	b := &net.TCPAddr{IP: net.ParseIP("10.0.0.2")}
	c := &net.TCPAddr{IP: net.ParseIP("10.0.0.3")}
	cfg := &Config{Count: 7, Rate: 7, Interfaces: []*net.TCPAddr{a, b, c}}

	want := []*net.TCPAddr{a, b, c, a, b, c, a}
	for i, addr := range want {
		assert.Same(t, addr, cfg.BindAddr(i), "connection %d", i)
	}
	assert.Nil(t, (&Config{Count: 7, Rate: 7}).BindAddr(3))

	var mu sync.Mutex
	seen := make(map[string]int)
	dial := func(ctx context.Context, localAddr *net.TCPAddr) (Conn, error) {
		mu.Lock()
		seen[localAddr.IP.String()]++
		mu.Unlock()
		return nil, errors.New("connection refused")
	}

	e, _ := newTestExecutor(t, cfg, dial)
	_, _, err := e.Run(context.Background())
	require.NoError(t, err)
	e.wg.Wait()

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, map[string]int{"10.0.0.1": 3, "10.0.0.2": 2, "10.0.0.3": 2}, seen)
}

// TestExecutor_KeepaliveClosesHealthyConnection tests the keepalive deadline on a relay that never closes
func TestExecutor_KeepaliveClosesHealthyConnection(t *testing.T) {
	relay := newFakeRelay(t, 0, 0)
	keepalive := 400 * time.Millisecond

	e, _ := newTestExecutor(t, &Config{Count: 1, Rate: 1}, relayDial(t, relay.URL()))
	e.keepalive = keepalive
	e.runStart = time.Now()

	e.stats.ConnectAttempted()
	started := time.Now()
	e.runConnection(context.Background(), nil)
	elapsed := time.Since(started)

	assert.GreaterOrEqual(t, elapsed, keepalive)
	assert.Less(t, elapsed, keepalive+500*time.Millisecond)

	conn, events := e.stats.Snapshot()
	assert.Equal(t, 1, conn.Closed)
	assert.Equal(t, 0, conn.Lost)
	assert.Equal(t, 0, conn.Alive)
	assert.Equal(t, 1, conn.Completed)
	assert.Greater(t, events.Completed, 0)
	assert.LessOrEqual(t, events.Completed, events.Total)
}

// TestExecutor_KeepaliveZeroNeverClosed tests that unbounded connections end as lost
func TestExecutor_KeepaliveZeroNeverClosed(t *testing.T) {
	relay := newFakeRelay(t, 0, 3)

	e, _ := newTestExecutor(t, &Config{Count: 5, Rate: 5, KeepaliveSec: 0}, relayDial(t, relay.URL()))

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	conn, events, err := e.Run(ctx)
	require.NoError(t, err)
	e.wg.Wait()

	assert.Equal(t, 0, conn.Closed)
	assert.Equal(t, 5, conn.Lost)
	assert.Equal(t, 0, conn.Errored)
	assert.Equal(t, 5, conn.Completed)
	assert.Equal(t, 0, conn.Alive)

	assert.Equal(t, 15, events.Completed)
	assert.Equal(t, 20, events.Total)
	assert.Equal(t, int64(20), relay.reqs.Load())
	assert.Equal(t, int64(15), relay.closes.Load())
}

// TestExecutor_RoundTripAccounting tests one completion per cycle and accumulated latency
func TestExecutor_RoundTripAccounting(t *testing.T) {
	delay := 30 * time.Millisecond
	relay := newFakeRelay(t, delay, 5)

	e, _ := newTestExecutor(t, &Config{Count: 1, Rate: 1}, relayDial(t, relay.URL()))

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	conn, events, err := e.Run(ctx)
	require.NoError(t, err)

	assert.Equal(t, 1, conn.Lost)
	assert.Equal(t, 5, events.Completed)
	assert.Equal(t, 6, events.Total)
	assert.GreaterOrEqual(t, events.RoundTripTime, 5*delay)
	assert.GreaterOrEqual(t, events.AvgRoundTripTime(), delay)
	assert.Less(t, events.AvgRoundTripTime(), delay+time.Second)
	assert.Equal(t, int64(5), relay.closes.Load())
}

// TestExecutor_MixedOutcomes tests the completion invariants with failures and keepalive closes
func TestExecutor_MixedOutcomes(t *testing.T) {
	relay := newFakeRelay(t, 0, 0)
	relayConnect := relayDial(t, relay.URL())

	const count = 6
	dial := func(ctx context.Context, localAddr *net.TCPAddr) (Conn, error) {
		if localAddr.Port%2 == 1 {
			return nil, errors.New("connection refused")
		}
		return relayConnect(ctx, nil)
	}

	e, out := newTestExecutor(t, &Config{Count: count, Rate: count, Interfaces: portAddrs(count)}, dial)
	e.keepalive = 200 * time.Millisecond

	stop := make(chan struct{})
	var violations atomic.Int32
	var sampler sync.WaitGroup
	sampler.Add(1)
	go func() {
		defer sampler.Done()
		prev := 0
		for {
			select {
			case <-stop:
				return
			default:
			}
			c := e.Stats().Connections()
			if c.Completed < prev || c.Completed > c.Total {
				violations.Add(1)
			}
			prev = c.Completed
			time.Sleep(time.Millisecond)
		}
	}()

	conn, _, err := e.Run(context.Background())
	close(stop)
	sampler.Wait()
	require.NoError(t, err)
	e.wg.Wait()

	assert.Zero(t, violations.Load())
	assert.Equal(t, count, conn.Completed)
	assert.Equal(t, conn.Completed, conn.Closed+conn.Lost+conn.Errored)
	assert.Equal(t, 3, conn.Errored)
	assert.Equal(t, 3, conn.Closed)
	assert.Equal(t, 0, e.Stats().Connections().Alive)

	lines := strings.Split(strings.TrimSpace(out.String()), "\n")
	require.NotEmpty(t, lines)
	assert.Contains(t, lines[len(lines)-1], "completed:6")
}

// TestExecutor_ContextCancellation tests that an interrupted run returns with a final report
func TestExecutor_ContextCancellation(t *testing.T) {
	relay := newFakeRelay(t, 0, 0)

	e, out := newTestExecutor(t, &Config{Count: 3, Rate: 3}, relayDial(t, relay.URL()))

	ctx, cancel := context.WithTimeout(context.Background(), 300*time.Millisecond)
	defer cancel()

	started := time.Now()
	_, _, err := e.Run(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Less(t, time.Since(started), 2*time.Second)
	assert.NotEmpty(t, out.String())

	e.wg.Wait()
	conn := e.Stats().Connections()
	assert.Equal(t, 0, conn.Alive)
	assert.Equal(t, 0, conn.Closed)
	assert.Equal(t, 3, conn.Lost)
	assert.Equal(t, 3, conn.Completed)
}
