// Package transport provides the connection-oriented stream abstractions the
// dispatcher's framed protocol runs over. Two implementations are provided -
// TCPTransport (the bit-exact rendering of spec's "stream transport") and
// QUICTransport (optional, same framing over a QUIC stream) - so the rest of
// internal/core never depends on which one is in use.
package transport

import (
	"context"
	"io"
	"net"
)

// Conn is a single dialog connection: a half-duplex byte stream plus an
// identifying remote address. Both TCPTransport and QUICTransport connections
// satisfy it.
type Conn interface {
	io.ReadWriteCloser
	RemoteAddr() net.Addr
}

// Listener accepts dialog connections from workers.
type Listener interface {
	Accept(ctx context.Context) (Conn, error)
	Close() error
	Addr() net.Addr
}

// Transport is the pluggable factory for a Listener/Dialer pair.
type Transport interface {
	Listen(ctx context.Context, addr string) (Listener, error)
	Dial(ctx context.Context, addr string) (Conn, error)
	Name() string
}
