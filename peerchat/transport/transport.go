// Package transport defines the byte streams a chat session runs over.
//
// A Conn is one bidirectional, ordered, reliable stream between two peers.
// Implementations live in the tcp and quic subpackages.
package transport

import (
	"context"
	"io"
	"net"
	"time"
)

type Conn interface {
	io.ReadWriteCloser
	LocalAddr() net.Addr
	RemoteAddr() net.Addr
	SetDeadline(t time.Time) error
}

type Listener interface {
	// Accept blocks until a peer connects, ctx is done, or the listener is
	// closed. After Close it returns an error wrapping net.ErrClosed.
	Accept(ctx context.Context) (Conn, error)
	Addr() net.Addr
	Close() error
}

type Transport interface {
	Listen(addr string) (Listener, error)
	Dial(ctx context.Context, addr string) (Conn, error)
}
