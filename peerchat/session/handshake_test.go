package session

import (
	"context"
	"errors"
	"io"
	"net"
	"sync"
	"testing"
	"time"

	"github.com/TheusHen/p2pchat/peerchat/crypto"
	"github.com/TheusHen/p2pchat/peerchat/protocol"
)

type result struct {
	sess *Session
	err  error
}

func TestHandshakeInitiatorResponder(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	a, b := net.Pipe()
	defer a.Close()
	defer b.Close()

	resCh := make(chan result, 1)
	go func() {
		sess, err := Respond(ctx, b, HandshakeOptions{})
		resCh <- result{sess, err}
	}()

	initSess, err := Initiate(ctx, a, HandshakeOptions{Timeout: time.Second})
	if err != nil {
		t.Fatalf("Initiate: %v", err)
	}
	res := <-resCh
	if res.err != nil {
		t.Fatalf("Respond: %v", res.err)
	}
	respSess := res.sess

	if initSess.key != respSess.key {
		t.Fatalf("session keys differ")
	}
	if initSess.LocalPublic() != respSess.RemotePublic() || initSess.RemotePublic() != respSess.LocalPublic() {
		t.Fatalf("public keys not exchanged")
	}
	if initSess.Fingerprint() != respSess.Fingerprint() {
		t.Fatalf("fingerprints differ")
	}

	ct, nonce, err := initSess.Encrypt([]byte("hello"))
	if err != nil {
		t.Fatalf("Encrypt: %v", err)
	}
	pt, err := respSess.Decrypt(ct, nonce)
	if err != nil {
		t.Fatalf("Decrypt: %v", err)
	}
	if string(pt) != "hello" {
		t.Fatalf("unexpected plaintext %q", pt)
	}
}

func TestRespondRejectsNonHandshake(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	a, b := net.Pipe()
	defer a.Close()
	defer b.Close()

	go func() {
		_ = protocol.WriteFrame(a, protocol.Ping{})
	}()

	sess, err := Respond(ctx, b, HandshakeOptions{})
	if sess != nil {
		t.Fatalf("expected no session")
	}
	if !protocol.IsKind(err, protocol.KindProtocol) {
		t.Fatalf("expected protocol error, got %v", err)
	}
	if !errors.Is(err, ErrUnexpectedMessage) {
		t.Fatalf("expected ErrUnexpectedMessage, got %v", err)
	}
}

func TestInitiateRejectsNonHandshakeReply(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	a, b := net.Pipe()
	defer a.Close()
	defer b.Close()

	go func() {
		if _, err := protocol.ReadFrame(b); err != nil {
			return
		}
		_ = protocol.WriteFrame(b, protocol.Ack{ID: "x"})
	}()

	_, err := Initiate(ctx, a, HandshakeOptions{})
	if !errors.Is(err, ErrUnexpectedMessage) {
		t.Fatalf("expected ErrUnexpectedMessage, got %v", err)
	}
}

func TestRespondRejectsMalformedKey(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	a, b := net.Pipe()
	defer a.Close()
	defer b.Close()

	go func() {
		_ = protocol.WriteFrame(a, protocol.Handshake{PubKey: "c2hvcnQ="})
	}()

	_, err := Respond(ctx, b, HandshakeOptions{})
	if !protocol.IsKind(err, protocol.KindCrypto) {
		t.Fatalf("expected crypto error, got %v", err)
	}
	if !errors.Is(err, crypto.ErrInvalidPublicKey) {
		t.Fatalf("expected ErrInvalidPublicKey, got %v", err)
	}
}

func TestRespondPeerClosedEarly(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	a, b := net.Pipe()
	_ = a.Close()
	defer b.Close()

	_, err := Respond(ctx, b, HandshakeOptions{})
	if !errors.Is(err, ErrHandshakeIncomplete) {
		t.Fatalf("expected ErrHandshakeIncomplete, got %v", err)
	}
}

func TestHandshakeTimeout(t *testing.T) {
	a, b := net.Pipe()
	defer a.Close()
	defer b.Close()

	start := time.Now()
	_, err := Respond(context.Background(), b, HandshakeOptions{Timeout: 50 * time.Millisecond})
	if !protocol.IsKind(err, protocol.KindTransport) {
		t.Fatalf("expected transport error, got %v", err)
	}
	if time.Since(start) > 2*time.Second {
		t.Fatalf("timeout not applied")
	}
}

func TestHandshakeContextCancel(t *testing.T) {
	a, b := net.Pipe()
	defer a.Close()
	defer b.Close()

	ctx, cancel := context.WithCancel(context.Background())
	time.AfterFunc(50*time.Millisecond, cancel)

	_, err := Initiate(ctx, a, HandshakeOptions{})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}

func TestHandshakeUnsupportedCipher(t *testing.T) {
	a, b := net.Pipe()
	defer a.Close()
	defer b.Close()

	_, err := Initiate(context.Background(), a, HandshakeOptions{Cipher: CipherAES256GCM})
	if !errors.Is(err, ErrUnsupportedCipher) {
		t.Fatalf("expected ErrUnsupportedCipher, got %v", err)
	}
}

// slowDeadlines records SetDeadline calls. Setting a non-zero deadline is slow
// so a cancellation callback is still running when the handshake finishes.
type slowDeadlines struct {
	mu      sync.Mutex
	last    time.Time
	entered chan struct{}
	once    sync.Once
}

func (c *slowDeadlines) Read([]byte) (int, error)  { return 0, io.EOF }
func (c *slowDeadlines) Write([]byte) (int, error) { return 0, io.ErrClosedPipe }

func (c *slowDeadlines) SetDeadline(d time.Time) error {
	if !d.IsZero() {
		c.once.Do(func() { close(c.entered) })
		time.Sleep(50 * time.Millisecond)
	}
	c.mu.Lock()
	c.last = d
	c.mu.Unlock()
	return nil
}

func TestReleaseClearsDeadlineAfterCancel(t *testing.T) {
	conn := &slowDeadlines{entered: make(chan struct{})}
	ctx, cancel := context.WithCancel(context.Background())

	release := bindDeadline(ctx, conn, 0)
	cancel()
	select {
	case <-conn.entered:
	case <-time.After(2 * time.Second):
		t.Fatal("cancellation did not set a deadline")
	}
	release()

	conn.mu.Lock()
	defer conn.mu.Unlock()
	if !conn.last.IsZero() {
		t.Fatalf("deadline left at %v after release", conn.last)
	}
}
