/*
Package executor dials the WebSocket connections used by the benchmark.

# Overview

A WebSocketDialer is prepared once per run:
  - The target URL is parsed and its host resolved to a single address
  - The TLS configuration is loaded for wss:// targets
  - The handshake timeout and extra headers are fixed

Every Dial then reuses the resolved address, so thousands of connections do
not trigger thousands of DNS lookups.

# Local Addresses

Dial accepts an optional local TCP address. When set, the outgoing socket is
bound to it before connecting. Spreading connections across several local
IPs raises the number of ephemeral ports available to one process.

# TLS Configuration

TLS support includes:
  - Custom CA certificates
  - Client certificates (mTLS)
  - InsecureSkipVerify for development

# Error Handling

Every failed dial wraps ErrConnectFailed. When the server answered the
upgrade with a non-101 status, the status code is part of the message.

# Example Usage

	dialer, err := executor.NewWebSocketDialer(ctx, executor.Options{
		URL:              "wss://relay.example.com",
		HandshakeTimeout: 10 * time.Second,
	})
	if err != nil {
		return err
	}

	conn, err := dialer.Dial(ctx, &net.TCPAddr{IP: net.ParseIP("10.0.0.2")})
	if err != nil {
		return err
	}
	defer conn.Close()

# Thread Safety

Dial is safe to call concurrently. Each call copies the base dialer.
*/
package executor
