package tcp

import (
	"context"
	"errors"
	"net"
	"time"

	"github.com/TheusHen/p2pchat/peerchat/transport"
)

const Name = "tcp"

// Transport carries chat sessions over plain TCP.
type Transport struct {
	// KeepAlive is passed to the dialer and applied to accepted
	// connections. Zero uses the net package default.
	KeepAlive time.Duration
}

var _ transport.Transport = (*Transport)(nil)

func New() *Transport { return &Transport{} }

func (t *Transport) Listen(addr string) (transport.Listener, error) {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, err
	}
	return &Listener{inner: ln.(*net.TCPListener), keepAlive: t.KeepAlive}, nil
}

func (t *Transport) Dial(ctx context.Context, addr string) (transport.Conn, error) {
	d := net.Dialer{KeepAlive: t.KeepAlive}
	conn, err := d.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, err
	}
	_ = conn.(*net.TCPConn).SetNoDelay(true)
	return conn, nil
}

type Listener struct {
	inner     *net.TCPListener
	keepAlive time.Duration
}

func (l *Listener) Accept(ctx context.Context) (transport.Conn, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	fired := make(chan struct{})
	stop := context.AfterFunc(ctx, func() {
		_ = l.inner.SetDeadline(time.Now())
		close(fired)
	})
	conn, err := l.inner.AcceptTCP()
	if !stop() {
		<-fired
		_ = l.inner.SetDeadline(time.Time{})
		if err != nil && !errors.Is(err, net.ErrClosed) {
			return nil, ctx.Err()
		}
	}
	if err != nil {
		return nil, err
	}
	_ = conn.SetNoDelay(true)
	if l.keepAlive > 0 {
		_ = conn.SetKeepAlivePeriod(l.keepAlive)
	}
	return conn, nil
}

func (l *Listener) Addr() net.Addr { return l.inner.Addr() }

func (l *Listener) Close() error { return l.inner.Close() }
