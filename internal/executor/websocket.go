package executor

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"os"
	"time"

	"github.com/gorilla/websocket"
	"github.com/studiowebux/relaybench/internal/types"
)

const (
	// DefaultHandshakeTimeout bounds the HTTP upgrade when no timeout is configured
	DefaultHandshakeTimeout = 10 * time.Second
	TCPDialTimeout          = 5 * time.Second
	TCPKeepAliveInterval    = 30 * time.Second
)

// ErrConnectFailed wraps every error returned by Dial
var ErrConnectFailed = errors.New("connect failed")

// Options configures a WebSocketDialer
type Options struct {
	URL              string
	TLS              *types.TLSConfig
	HandshakeTimeout time.Duration
	Headers          map[string]string
}

// WebSocketDialer opens relay connections against a target address that was
// resolved once, so thousands of dials do not hit DNS.
type WebSocketDialer struct {
	url     string
	addr    string
	headers http.Header
	base    websocket.Dialer
}

// NewWebSocketDialer validates the relay URL, resolves its address and builds
// the TLS configuration.
func NewWebSocketDialer(ctx context.Context, opts Options) (*WebSocketDialer, error) {
	u, err := url.Parse(opts.URL)
	if err != nil {
		return nil, fmt.Errorf("invalid URL: %w", err)
	}

	addr, err := ResolveAddr(ctx, u)
	if err != nil {
		return nil, err
	}

	timeout := opts.HandshakeTimeout
	if timeout <= 0 {
		timeout = DefaultHandshakeTimeout
	}

	base := websocket.Dialer{
		HandshakeTimeout: timeout,
	}

	if u.Scheme == "wss" && !opts.TLS.IsZero() {
		tlsClientConfig, err := buildWebSocketTLSConfig(opts.TLS)
		if err != nil {
			return nil, fmt.Errorf("TLS configuration error: %w", err)
		}
		base.TLSClientConfig = tlsClientConfig
	}

	headers := http.Header{}
	for key, value := range opts.Headers {
		headers.Set(key, value)
	}

	return &WebSocketDialer{
		url:     opts.URL,
		addr:    addr,
		headers: headers,
		base:    base,
	}, nil
}

// Addr returns the resolved host:port every connection dials
func (d *WebSocketDialer) Addr() string {
	return d.addr
}

// Dial opens one WebSocket connection. A non-nil localAddr binds the TCP
// socket to that local address.
func (d *WebSocketDialer) Dial(ctx context.Context, localAddr *net.TCPAddr) (*websocket.Conn, error) {
	netDialer := &net.Dialer{
		Timeout:   TCPDialTimeout,
		KeepAlive: TCPKeepAliveInterval,
	}
	if localAddr != nil {
		netDialer.LocalAddr = localAddr
	}

	dialer := d.base
	dialer.NetDialContext = func(ctx context.Context, network, _ string) (net.Conn, error) {
		return netDialer.DialContext(ctx, network, d.addr)
	}

	conn, resp, err := dialer.DialContext(ctx, d.url, d.headers)
	if err != nil {
		if resp != nil {
			return nil, fmt.Errorf("%w (HTTP %d): %v", ErrConnectFailed, resp.StatusCode, err)
		}
		return nil, fmt.Errorf("%w: %v", ErrConnectFailed, err)
	}
	return conn, nil
}

// ResolveAddr resolves the relay host to a single host:port. The port
// defaults to 80 for ws and 443 for wss.
func ResolveAddr(ctx context.Context, u *url.URL) (string, error) {
	var defaultPort string
	switch u.Scheme {
	case "ws":
		defaultPort = "80"
	case "wss":
		defaultPort = "443"
	default:
		return "", fmt.Errorf("unsupported scheme %q (expected ws or wss)", u.Scheme)
	}

	host := u.Hostname()
	if host == "" {
		return "", fmt.Errorf("URL %q has no host", u.String())
	}
	port := u.Port()
	if port == "" {
		port = defaultPort
	}

	if ip := net.ParseIP(host); ip != nil {
		return net.JoinHostPort(ip.String(), port), nil
	}

	ips, err := net.DefaultResolver.LookupIPAddr(ctx, host)
	if err != nil {
		return "", fmt.Errorf("failed to resolve %s: %w", host, err)
	}
	if len(ips) == 0 {
		return "", fmt.Errorf("no addresses found for %s", host)
	}
	return net.JoinHostPort(ips[0].IP.String(), port), nil
}

// buildWebSocketTLSConfig creates a TLS configuration for WebSocket connections
func buildWebSocketTLSConfig(tlsConfig *types.TLSConfig) (*tls.Config, error) {
	config := &tls.Config{
		InsecureSkipVerify: tlsConfig.InsecureSkipVerify,
	}

	// Load client certificate if specified
	if tlsConfig.CertFile != "" && tlsConfig.KeyFile != "" {
		cert, err := tls.LoadX509KeyPair(tlsConfig.CertFile, tlsConfig.KeyFile)
		if err != nil {
			return nil, fmt.Errorf("failed to load client certificate: %w", err)
		}
		config.Certificates = []tls.Certificate{cert}
	}

	if tlsConfig.CAFile != "" {
		caCert, err := os.ReadFile(tlsConfig.CAFile)
		if err != nil {
			return nil, fmt.Errorf("failed to read CA certificate: %w", err)
		}

		caCertPool := x509.NewCertPool()
		if !caCertPool.AppendCertsFromPEM(caCert) {
			return nil, fmt.Errorf("failed to parse CA certificate")
		}
		config.RootCAs = caCertPool
	}

	return config, nil
}
