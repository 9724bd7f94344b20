package peerchat

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"sync"
	"time"

	"github.com/TheusHen/p2pchat/peerchat/chat"
	"github.com/TheusHen/p2pchat/peerchat/metrics"
	"github.com/TheusHen/p2pchat/peerchat/protocol"
	"github.com/TheusHen/p2pchat/peerchat/session"
	"github.com/TheusHen/p2pchat/peerchat/transport"
	"github.com/TheusHen/p2pchat/peerchat/transport/quic"
	"github.com/TheusHen/p2pchat/peerchat/transport/tcp"
)

var (
	ErrNotListening     = errors.New("peerchat: peer is not listening")
	ErrUnknownTransport = errors.New("peerchat: unknown transport")
)

// NewTransport returns the transport registered under name. An empty name
// selects TCP.
func NewTransport(name string) (transport.Transport, error) {
	switch name {
	case "", tcp.Name:
		return tcp.New(), nil
	case quic.Name:
		return quic.New(), nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownTransport, name)
	}
}

// Conn is a connection whose handshake has completed.
type Conn struct {
	transport.Conn
	Session *session.Session
	Role    session.Role
	peer    *Peer
}

// Chat runs the chat loop until either side stops. Logger and Metrics
// default to the peer's.
func (c *Conn) Chat(ctx context.Context, in chat.LineReader, out chat.Sink, opts chat.Options) error {
	if opts.Logger == nil {
		opts.Logger = c.peer.logger().With("remote", c.RemoteAddr().String(), "role", c.Role.String())
	}
	if opts.Metrics == nil {
		opts.Metrics = c.peer.Metrics
	}
	return chat.Run(ctx, c.Conn, c.Session, in, out, opts)
}

// Handler is called for every connection accepted by Serve. The connection
// is closed when the handler returns.
type Handler func(ctx context.Context, c *Conn)

// Peer is a high-level helper that combines transport and handshake.
// The zero value uses TCP, default handshake options and no logging.
type Peer struct {
	Transport transport.Transport
	Handshake session.HandshakeOptions
	Logger    *slog.Logger
	Metrics   *metrics.Metrics

	listener transport.Listener
}

func NewPeer(t transport.Transport, opts session.HandshakeOptions) *Peer {
	return &Peer{Transport: t, Handshake: opts}
}

// transport returns p.Transport or a fresh TCP transport. It never writes to
// p, so a zero Peer can Dial from several goroutines.
func (p *Peer) transport() transport.Transport {
	if p.Transport == nil {
		return tcp.New()
	}
	return p.Transport
}

func (p *Peer) logger() *slog.Logger {
	if p.Logger == nil {
		return slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return p.Logger
}

func (p *Peer) Listen(addr string) error {
	ln, err := p.transport().Listen(addr)
	if err != nil {
		return err
	}
	p.listener = ln
	return nil
}

func (p *Peer) Close() error {
	if p.listener == nil {
		return nil
	}
	return p.listener.Close()
}

func (p *Peer) Addr() net.Addr {
	if p.listener == nil {
		return nil
	}
	return p.listener.Addr()
}

func (p *Peer) ListenAddr() string {
	if a := p.Addr(); a != nil {
		return a.String()
	}
	return ""
}

// Accept waits for one inbound connection and runs the responder handshake
// on it. The connection is closed if the handshake fails.
func (p *Peer) Accept(ctx context.Context) (*Conn, error) {
	if p.listener == nil {
		return nil, ErrNotListening
	}
	conn, err := p.listener.Accept(ctx)
	if err != nil {
		return nil, err
	}
	return p.establish(ctx, conn, session.RoleResponder)
}

// Dial connects to addr and runs the initiator handshake.
func (p *Peer) Dial(ctx context.Context, addr string) (*Conn, error) {
	conn, err := p.transport().Dial(ctx, addr)
	if err != nil {
		return nil, protocol.Wrap(protocol.KindTransport, "dial", err)
	}
	return p.establish(ctx, conn, session.RoleInitiator)
}

func (p *Peer) establish(ctx context.Context, conn transport.Conn, role session.Role) (*Conn, error) {
	start := time.Now()
	var (
		sess *session.Session
		err  error
	)
	if role == session.RoleInitiator {
		sess, err = session.Initiate(ctx, conn, p.Handshake)
	} else {
		sess, err = session.Respond(ctx, conn, p.Handshake)
	}
	kind := ""
	if err != nil {
		kind = protocol.KindOf(err).String()
	}
	p.Metrics.ObserveHandshake(role.String(), time.Since(start), kind)
	if err != nil {
		_ = conn.Close()
		return nil, err
	}
	p.logger().Debug("handshake complete",
		"remote", conn.RemoteAddr().String(), "role", role.String(), "fingerprint", sess.Fingerprint())
	return &Conn{Conn: conn, Session: sess, Role: role, peer: p}, nil
}

// Serve accepts connections until ctx is done or the listener is closed.
// Each connection gets its own goroutine that runs the handshake and then h.
// A failed handshake is logged and only drops that connection. Serve waits
// for running handlers before it returns.
func (p *Peer) Serve(ctx context.Context, h Handler) error {
	if p.listener == nil {
		return ErrNotListening
	}
	var wg sync.WaitGroup
	defer wg.Wait()

	log := p.logger()
	for {
		conn, err := p.listener.Accept(ctx)
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, net.ErrClosed) {
				return nil
			}
			return fmt.Errorf("peerchat: accept: %w", err)
		}

		wg.Add(1)
		go func() {
			defer wg.Done()
			remote := conn.RemoteAddr().String()
			log.Info("incoming connection", "remote", remote)
			c, err := p.establish(ctx, conn, session.RoleResponder)
			if err != nil {
				log.Warn("handshake failed", "remote", remote, "kind", protocol.KindOf(err).String(), "err", err)
				return
			}
			defer c.Close()
			h(ctx, c)
		}()
	}
}
