package quic

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"sync"
	"sync/atomic"
	"time"

	q "github.com/quic-go/quic-go"

	"github.com/TheusHen/p2pchat/peerchat/transport"
)

const Name = "quic"

const (
	codeNoError  q.ApplicationErrorCode = 0
	codeNoStream q.ApplicationErrorCode = 1

	defaultStreamTimeout = 10 * time.Second
	closeLinger          = time.Second
)

// Transport carries each chat session on the first bidirectional stream of
// its own QUIC connection.
type Transport struct {
	// Config is passed to quic-go. Nil enables keep-alives so idle chats
	// survive NAT timeouts.
	Config *q.Config
	// StreamTimeout bounds how long an accepted connection may take to
	// open its stream.
	StreamTimeout time.Duration
}

var _ transport.Transport = (*Transport)(nil)

func New() *Transport { return &Transport{} }

func (t *Transport) config() *q.Config {
	if t.Config != nil {
		return t.Config
	}
	return &q.Config{
		KeepAlivePeriod: 15 * time.Second,
		MaxIdleTimeout:  time.Minute,
	}
}

func (t *Transport) Listen(addr string) (transport.Listener, error) {
	tlsConf, err := newSelfSignedTLSConfig()
	if err != nil {
		return nil, err
	}
	ln, err := q.ListenAddr(addr, tlsConf, t.config())
	if err != nil {
		return nil, err
	}
	timeout := t.StreamTimeout
	if timeout <= 0 {
		timeout = defaultStreamTimeout
	}
	l := &Listener{
		inner:         ln,
		streamTimeout: timeout,
		ready:         make(chan *Conn),
		closed:        make(chan struct{}),
	}
	go l.acceptLoop()
	return l, nil
}

func (t *Transport) Dial(ctx context.Context, addr string) (transport.Conn, error) {
	tlsConf, err := newSelfSignedTLSConfig()
	if err != nil {
		return nil, err
	}
	conn, err := q.DialAddr(ctx, addr, tlsConf, t.config())
	if err != nil {
		return nil, err
	}
	str, err := conn.OpenStreamSync(ctx)
	if err != nil {
		_ = conn.CloseWithError(codeNoStream, "open stream")
		return nil, err
	}
	return &Conn{conn: conn, str: str}, nil
}

// Listener accepts QUIC connections in the background and hands out those
// whose peer has opened a stream. A stream only becomes visible once the
// dialer writes to it, so waiting inline would let one silent dialer block
// every other peer.
type Listener struct {
	inner         *q.Listener
	streamTimeout time.Duration

	ready     chan *Conn
	closed    chan struct{}
	closeOnce sync.Once
	mu        sync.Mutex
	err       error
}

func (l *Listener) acceptLoop() {
	for {
		conn, err := l.inner.Accept(context.Background())
		if err != nil {
			l.shutdown(err)
			return
		}
		go l.awaitStream(conn)
	}
}

func (l *Listener) awaitStream(conn q.Connection) {
	ctx, cancel := context.WithTimeout(conn.Context(), l.streamTimeout)
	defer cancel()
	str, err := conn.AcceptStream(ctx)
	if err != nil {
		_ = conn.CloseWithError(codeNoStream, "no stream")
		return
	}
	c := &Conn{conn: conn, str: str}
	select {
	case l.ready <- c:
	case <-l.closed:
		_ = c.Close()
	}
}

func (l *Listener) shutdown(err error) {
	l.closeOnce.Do(func() {
		l.mu.Lock()
		l.err = err
		l.mu.Unlock()
		close(l.closed)
	})
}

func (l *Listener) Accept(ctx context.Context) (transport.Conn, error) {
	select {
	case c := <-l.ready:
		return c, nil
	case <-l.closed:
		l.mu.Lock()
		defer l.mu.Unlock()
		return nil, l.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (l *Listener) Addr() net.Addr { return l.inner.Addr() }

func (l *Listener) Close() error {
	l.shutdown(fmt.Errorf("quic: accept: %w", net.ErrClosed))
	return l.inner.Close()
}

// Conn adapts a QUIC stream and its connection to transport.Conn.
type Conn struct {
	conn      q.Connection
	str       q.Stream
	peerDone  atomic.Bool
	closeOnce sync.Once
	closeErr  error
}

var _ transport.Conn = (*Conn)(nil)

func (c *Conn) Read(p []byte) (int, error) {
	n, err := c.str.Read(p)
	err = mapErr(err)
	if err == io.EOF {
		c.peerDone.Store(true)
	}
	return n, err
}

func (c *Conn) Write(p []byte) (int, error) {
	n, err := c.str.Write(p)
	return n, mapErr(err)
}

// Close sends FIN on the stream. Unless the peer has already finished, it
// then waits briefly for the peer to tear the connection down, so buffered
// writes are delivered before CONNECTION_CLOSE.
func (c *Conn) Close() error {
	c.closeOnce.Do(func() {
		c.str.CancelRead(0)
		c.closeErr = c.str.Close()
		if !c.peerDone.Load() {
			select {
			case <-c.conn.Context().Done():
			case <-time.After(closeLinger):
			}
		}
		if err := c.conn.CloseWithError(codeNoError, ""); err != nil && c.closeErr == nil {
			c.closeErr = err
		}
	})
	return c.closeErr
}

func (c *Conn) LocalAddr() net.Addr  { return c.conn.LocalAddr() }
func (c *Conn) RemoteAddr() net.Addr { return c.conn.RemoteAddr() }

func (c *Conn) SetDeadline(t time.Time) error { return c.str.SetDeadline(t) }

// mapErr turns an orderly close by the peer into io.EOF.
func mapErr(err error) error {
	var appErr *q.ApplicationError
	if errors.As(err, &appErr) && appErr.Remote && appErr.ErrorCode == codeNoError {
		return io.EOF
	}
	return err
}
