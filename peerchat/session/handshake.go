package session

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/TheusHen/p2pchat/peerchat/crypto"
	"github.com/TheusHen/p2pchat/peerchat/protocol"
)

var (
	ErrUnexpectedMessage   = errors.New("session: unexpected message during handshake")
	ErrHandshakeIncomplete = errors.New("session: peer closed before handshake completed")
)

// Role is the side of the handshake a peer plays.
type Role uint8

const (
	RoleInitiator Role = iota + 1
	RoleResponder
)

func (r Role) String() string {
	switch r {
	case RoleInitiator:
		return "initiator"
	case RoleResponder:
		return "responder"
	default:
		return "unknown"
	}
}

type HandshakeOptions struct {
	// Cipher defaults to CipherXChaCha20Poly1305.
	Cipher Cipher
	// Timeout bounds the whole exchange when the stream supports deadlines.
	// Zero means only ctx applies.
	Timeout time.Duration
}

func (o HandshakeOptions) cipher() Cipher {
	if o.Cipher == 0 {
		return CipherXChaCha20Poly1305
	}
	return o.Cipher
}

type deadliner interface {
	SetDeadline(t time.Time) error
}

// Initiate performs the handshake as the connecting side: it sends its
// ephemeral public key first and then waits for the responder's key.
func Initiate(ctx context.Context, conn io.ReadWriter, opts HandshakeOptions) (*Session, error) {
	return handshake(ctx, conn, opts, RoleInitiator)
}

// Respond performs the handshake as the accepting side: it waits for the
// initiator's key, then answers with its own. Anything other than a Handshake
// as the first frame aborts the connection.
func Respond(ctx context.Context, conn io.ReadWriter, opts HandshakeOptions) (*Session, error) {
	return handshake(ctx, conn, opts, RoleResponder)
}

func handshake(ctx context.Context, conn io.ReadWriter, opts HandshakeOptions, role Role) (*Session, error) {
	cipher := opts.cipher()
	if cipher != CipherXChaCha20Poly1305 {
		return nil, protocol.Wrap(protocol.KindCrypto, "handshake", fmt.Errorf("%w: %s", ErrUnsupportedCipher, cipher))
	}
	if err := ctx.Err(); err != nil {
		return nil, protocol.Wrap(protocol.KindTransport, "handshake", err)
	}

	release := bindDeadline(ctx, conn, opts.Timeout)
	defer release()

	kp, err := crypto.GenerateKeyPair()
	if err != nil {
		return nil, protocol.Wrap(protocol.KindCrypto, "generate keypair", err)
	}
	hello := protocol.Handshake{PubKey: crypto.EncodePublicKey(kp.Public)}

	var peerPub crypto.PublicKey
	if role == RoleInitiator {
		if err := send(ctx, conn, hello); err != nil {
			return nil, err
		}
		if peerPub, err = receive(ctx, conn); err != nil {
			return nil, err
		}
	} else {
		if peerPub, err = receive(ctx, conn); err != nil {
			return nil, err
		}
		if err := send(ctx, conn, hello); err != nil {
			return nil, err
		}
	}

	key, err := kp.SharedKey(peerPub)
	if err != nil {
		return nil, protocol.Wrap(protocol.KindCrypto, "derive session key", err)
	}
	sess, err := New(key, cipher)
	if err != nil {
		return nil, protocol.Wrap(protocol.KindCrypto, "handshake", err)
	}
	sess.localPublic = kp.Public
	sess.remotePublic = peerPub
	return sess, nil
}

func send(ctx context.Context, conn io.Writer, hello protocol.Handshake) error {
	if err := protocol.WriteFrame(conn, hello); err != nil {
		return protocol.Classify("send handshake", ctxErr(ctx, err))
	}
	return nil
}

func receive(ctx context.Context, conn io.Reader) (crypto.PublicKey, error) {
	m, err := protocol.ReadFrame(conn)
	if err != nil {
		if errors.Is(err, io.EOF) {
			return crypto.PublicKey{}, protocol.Wrap(protocol.KindProtocol, "receive handshake", ErrHandshakeIncomplete)
		}
		return crypto.PublicKey{}, protocol.Classify("receive handshake", ctxErr(ctx, err))
	}
	hs, ok := m.(protocol.Handshake)
	if !ok {
		return crypto.PublicKey{}, protocol.Wrap(protocol.KindProtocol, "receive handshake",
			fmt.Errorf("%w: got %s", ErrUnexpectedMessage, m.Type()))
	}
	pub, err := crypto.DecodePublicKey(hs.PubKey)
	if err != nil {
		return crypto.PublicKey{}, protocol.Wrap(protocol.KindCrypto, "decode peer key", err)
	}
	return pub, nil
}

// ctxErr prefers the context error over the deadline error it provoked.
func ctxErr(ctx context.Context, err error) error {
	if cerr := ctx.Err(); cerr != nil {
		return fmt.Errorf("%w (%v)", cerr, err)
	}
	return err
}

// bindDeadline applies the handshake timeout and ctx to conn when it supports
// deadlines. The returned func clears the deadline again for the chat phase.
func bindDeadline(ctx context.Context, conn io.ReadWriter, timeout time.Duration) func() {
	d, ok := conn.(deadliner)
	if !ok {
		return func() {}
	}

	var deadline time.Time
	if timeout > 0 {
		deadline = time.Now().Add(timeout)
	}
	if ctxDeadline, ok := ctx.Deadline(); ok && (deadline.IsZero() || ctxDeadline.Before(deadline)) {
		deadline = ctxDeadline
	}
	if !deadline.IsZero() {
		_ = d.SetDeadline(deadline)
	}
	fired := make(chan struct{})
	stop := context.AfterFunc(ctx, func() {
		defer close(fired)
		_ = d.SetDeadline(time.Now())
	})
	return func() {
		if !stop() {
			// The callback has started; let its deadline land before clearing.
			<-fired
		}
		_ = d.SetDeadline(time.Time{})
	}
}
