package stresstest

import (
	"context"
	"fmt"
	"io"
	"net"
	"time"

	"github.com/studiowebux/relaybench/internal/executor"
	"github.com/studiowebux/relaybench/internal/nostr"
	"go.uber.org/zap"
)

// Config represents a request benchmark configuration
type Config struct {
	Count        int            // Connections to open
	Rate         int            // Connections launched per window
	KeepaliveSec int            // Seconds before a healthy connection is closed, 0 = unbounded
	Interfaces   []*net.TCPAddr // Local bind addresses, used round-robin
	Filter       nostr.Filter
}

// Conn is the part of a WebSocket connection the request loop uses.
// *websocket.Conn satisfies it.
type Conn interface {
	ReadMessage() (messageType int, p []byte, err error)
	WriteMessage(messageType int, data []byte) error
	Close() error
}

// DialFunc opens one relay connection bound to localAddr (nil for any)
type DialFunc func(ctx context.Context, localAddr *net.TCPAddr) (Conn, error)

// ExecutionConfig contains the runtime configuration for executing a benchmark
type ExecutionConfig struct {
	Config *Config
	Dial   DialFunc
	Logger *zap.Logger
	Output io.Writer // Receives the periodic report lines
}

// Validate validates the benchmark configuration
func (c *Config) Validate() error {
	if c.Count <= 0 {
		return fmt.Errorf("count must be greater than 0")
	}
	if c.Rate <= 0 {
		return fmt.Errorf("rate must be greater than 0")
	}
	if c.KeepaliveSec < 0 {
		return fmt.Errorf("keepalive cannot be negative")
	}
	return nil
}

// GetKeepalive returns the keepalive as time.Duration
func (c *Config) GetKeepalive() time.Duration {
	if c.KeepaliveSec == 0 {
		return 0 // Unbounded
	}
	return time.Duration(c.KeepaliveSec) * time.Second
}

// BindAddr returns the local address for connection i, or nil when no
// interfaces are configured
func (c *Config) BindAddr(i int) *net.TCPAddr {
	if len(c.Interfaces) == 0 {
		return nil
	}
	return c.Interfaces[i%len(c.Interfaces)]
}

// WebSocketDial adapts a WebSocketDialer to a DialFunc
func WebSocketDial(d *executor.WebSocketDialer) DialFunc {
	return func(ctx context.Context, localAddr *net.TCPAddr) (Conn, error) {
		conn, err := d.Dial(ctx, localAddr)
		if err != nil {
			return nil, err
		}
		return conn, nil
	}
}
