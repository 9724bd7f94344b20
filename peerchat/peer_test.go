package peerchat

import (
	"context"
	"errors"
	"io"
	"net"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/TheusHen/p2pchat/peerchat/chat"
	"github.com/TheusHen/p2pchat/peerchat/metrics"
	"github.com/TheusHen/p2pchat/peerchat/session"
)

type lines chan string

func (l lines) ReadLine() (string, error) {
	s, ok := <-l
	if !ok {
		return "", io.EOF
	}
	return s, nil
}

type inbox struct {
	got chan chat.Message
}

func newInbox() *inbox { return &inbox{got: make(chan chat.Message, 8)} }

func (b *inbox) Deliver(m chat.Message) {
	if !m.Outgoing {
		b.got <- m
	}
}

func (b *inbox) wait(t *testing.T) chat.Message {
	t.Helper()
	select {
	case m := <-b.got:
		return m
	case <-time.After(5 * time.Second):
		t.Fatal("no message received")
		return chat.Message{}
	}
}

func testEndToEnd(t *testing.T, transportName string) {
	tr, err := NewTransport(transportName)
	if err != nil {
		t.Fatalf("NewTransport: %v", err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	m := metrics.New()
	server := NewPeer(tr, session.HandshakeOptions{Timeout: 5 * time.Second})
	server.Metrics = m
	if err := server.Listen("127.0.0.1:0"); err != nil {
		t.Fatalf("Listen: %v", err)
	}
	defer server.Close()

	serverInbox := newInbox()
	handled := make(chan error, 1)
	serveDone := make(chan error, 1)
	go func() {
		serveDone <- server.Serve(ctx, func(ctx context.Context, c *Conn) {
			handled <- c.Chat(ctx, make(lines), serverInbox, chat.Options{})
		})
	}()

	client := NewPeer(tr, session.HandshakeOptions{})
	conn, err := client.Dial(ctx, server.ListenAddr())
	if err != nil {
		t.Fatalf("Dial: %v", err)
	}
	if conn.Role != session.RoleInitiator {
		t.Fatalf("role = %v", conn.Role)
	}

	in := make(lines, 1)
	clientDone := make(chan error, 1)
	go func() { clientDone <- conn.Chat(ctx, in, nil, chat.Options{}) }()

	in <- "hello"
	if got := serverInbox.wait(t); got.Text != "hello" {
		t.Fatalf("server got %q", got.Text)
	}

	close(in)
	if err := <-clientDone; err != nil {
		t.Fatalf("client chat: %v", err)
	}
	select {
	case err := <-handled:
		if err != nil {
			t.Fatalf("server chat: %v", err)
		}
	case <-ctx.Done():
		t.Fatalf("server did not see the client leave")
	}

	if n := testutil.ToFloat64(m.Messages.WithLabelValues("received")); n != 1 {
		t.Fatalf("received counter = %v", n)
	}
	if n := testutil.CollectAndCount(m.HandshakeLatency); n != 1 {
		t.Fatalf("handshake histogram series = %d", n)
	}

	cancel()
	if err := <-serveDone; err != nil {
		t.Fatalf("Serve: %v", err)
	}
}

func TestEndToEndTCP(t *testing.T)  { testEndToEnd(t, "tcp") }
func TestEndToEndQUIC(t *testing.T) { testEndToEnd(t, "quic") }

func TestServeSurvivesBadHandshake(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	m := metrics.New()
	server := &Peer{Metrics: m}
	if err := server.Listen("127.0.0.1:0"); err != nil {
		t.Fatalf("Listen: %v", err)
	}
	defer server.Close()

	accepted := make(chan *Conn, 1)
	go server.Serve(ctx, func(ctx context.Context, c *Conn) {
		accepted <- c
		<-ctx.Done()
	})

	// Garbage first frame: valid length, invalid JSON.
	raw, err := net.Dial("tcp", server.ListenAddr())
	if err != nil {
		t.Fatalf("Dial: %v", err)
	}
	_, _ = raw.Write([]byte{0, 0, 0, 3, 'b', 'a', 'd'})
	buf := make([]byte, 1)
	_ = raw.SetReadDeadline(time.Now().Add(5 * time.Second))
	if _, err := raw.Read(buf); err == nil {
		t.Fatalf("expected server to drop the connection")
	}
	raw.Close()

	client := &Peer{}
	conn, err := client.Dial(ctx, server.ListenAddr())
	if err != nil {
		t.Fatalf("Dial after bad peer: %v", err)
	}
	defer conn.Close()

	select {
	case sc := <-accepted:
		if sc.Session.Fingerprint() != conn.Session.Fingerprint() {
			t.Fatalf("fingerprints differ")
		}
	case <-ctx.Done():
		t.Fatalf("good peer was not served")
	}
	if n := testutil.ToFloat64(m.HandshakeErrors.WithLabelValues("responder", "decode")); n != 1 {
		t.Fatalf("handshake decode errors = %v", n)
	}
}

func TestAcceptWithoutListen(t *testing.T) {
	p := &Peer{}
	if _, err := p.Accept(context.Background()); !errors.Is(err, ErrNotListening) {
		t.Fatalf("expected ErrNotListening, got %v", err)
	}
	if err := p.Serve(context.Background(), nil); !errors.Is(err, ErrNotListening) {
		t.Fatalf("expected ErrNotListening, got %v", err)
	}
	if p.ListenAddr() != "" {
		t.Fatalf("unexpected address")
	}
}

func TestNewTransport(t *testing.T) {
	for _, name := range []string{"", "tcp", "quic"} {
		if _, err := NewTransport(name); err != nil {
			t.Fatalf("NewTransport(%q): %v", name, err)
		}
	}
	if _, err := NewTransport("carrier-pigeon"); !errors.Is(err, ErrUnknownTransport) {
		t.Fatalf("expected ErrUnknownTransport, got %v", err)
	}
}

func TestDialRefused(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("Listen: %v", err)
	}
	addr := ln.Addr().String()
	ln.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if _, err := (&Peer{}).Dial(ctx, addr); err == nil {
		t.Fatalf("expected dial error")
	}
}

func TestZeroPeerConcurrentDial(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	server := &Peer{}
	if err := server.Listen("127.0.0.1:0"); err != nil {
		t.Fatalf("Listen: %v", err)
	}
	defer server.Close()
	go server.Serve(ctx, func(ctx context.Context, c *Conn) {})

	var client Peer
	const n = 4
	errs := make(chan error, n)
	for i := 0; i < n; i++ {
		go func() {
			c, err := client.Dial(ctx, server.ListenAddr())
			if err == nil {
				c.Close()
			}
			errs <- err
		}()
	}
	for i := 0; i < n; i++ {
		if err := <-errs; err != nil {
			t.Fatalf("Dial: %v", err)
		}
	}
	if client.Transport != nil {
		t.Fatalf("Dial stored a default transport on the peer")
	}
}
