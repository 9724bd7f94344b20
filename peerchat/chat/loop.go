package chat

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/TheusHen/p2pchat/peerchat/crypto"
	"github.com/TheusHen/p2pchat/peerchat/metrics"
	"github.com/TheusHen/p2pchat/peerchat/protocol"
	"github.com/TheusHen/p2pchat/peerchat/session"
)

// DefaultQuitCommand ends the local side of a chat.
const DefaultQuitCommand = "/quit"

var ErrUnexpectedHandshake = errors.New("chat: handshake received after session was established")

type Options struct {
	// SenderID is put on outgoing messages. Defaults to the fingerprint of
	// the local ephemeral key.
	SenderID string
	// QuitCommand defaults to DefaultQuitCommand.
	QuitCommand string
	Logger      *slog.Logger
	Metrics     *metrics.Metrics
	// Rejected is told about local lines that were not sent because they
	// exceed the frame limit. The chat continues.
	Rejected func(text string, err error)
	// Now is used for outgoing timestamps and local times.
	Now func() time.Time
}

func (o Options) withDefaults(sess *session.Session) Options {
	if o.SenderID == "" {
		o.SenderID = crypto.Fingerprint(sess.LocalPublic())
	}
	if o.QuitCommand == "" {
		o.QuitCommand = DefaultQuitCommand
	}
	if o.Logger == nil {
		o.Logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	if o.Now == nil {
		o.Now = time.Now
	}
	return o
}

// Run drives an established session until one side stops. A receiver reads
// frames from conn and hands decrypted lines to out; a sender encrypts lines
// from in and writes them to conn. When either finishes, conn is closed,
// which unblocks the other.
//
// Run returns nil when the peer closes the connection, when the local user
// quits or input ends, and when ctx is cancelled. Any other failure is
// returned as a *protocol.Error.
func Run(ctx context.Context, conn io.ReadWriteCloser, sess *session.Session, in LineReader, out Sink, opts Options) error {
	opts = opts.withDefaults(sess)
	if out == nil {
		out = MultiSink(nil)
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	opts.Metrics.SessionStarted()

	var g errgroup.Group
	g.Go(func() error {
		defer cancel()
		return receiveLoop(ctx, conn, sess, out, opts)
	})
	g.Go(func() error {
		defer cancel()
		return sendLoop(ctx, conn, sess, in, out, opts)
	})
	g.Go(func() error {
		<-ctx.Done()
		_ = conn.Close()
		return nil
	})

	err := g.Wait()
	kind := ""
	if err != nil {
		kind = protocol.KindOf(err).String()
	}
	opts.Metrics.SessionEnded(kind)
	return err
}

func receiveLoop(ctx context.Context, conn io.Reader, sess *session.Session, out Sink, opts Options) error {
	log := opts.Logger
	for {
		m, err := protocol.ReadFrame(conn)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			if errors.Is(err, io.EOF) {
				log.Info("peer disconnected")
				return nil
			}
			return protocol.Classify("receive", err)
		}

		switch msg := m.(type) {
		case protocol.Chat:
			text, err := open(sess, msg)
			if err != nil {
				return err
			}
			opts.Metrics.MessageReceived()
			out.Deliver(Message{
				SenderID:  msg.SenderID,
				Timestamp: time.Unix(int64(msg.Timestamp), 0),
				Time:      opts.Now(),
				Text:      text,
			})
		case protocol.Ping:
		case protocol.Ack:
			log.Debug("ignoring ack", "id", msg.ID)
		case protocol.Handshake:
			return protocol.Wrap(protocol.KindProtocol, "receive", ErrUnexpectedHandshake)
		default:
			return protocol.Wrap(protocol.KindProtocol, "receive", fmt.Errorf("%w: %s", protocol.ErrUnknownMessage, m.Type()))
		}
	}
}

// open decodes and decrypts a Chat frame. Invalid UTF-8 in the plaintext is
// replaced rather than rejected.
func open(sess *session.Session, msg protocol.Chat) (string, error) {
	ct, err := base64.StdEncoding.DecodeString(msg.Payload)
	if err != nil {
		return "", protocol.Wrap(protocol.KindDecode, "decode payload", err)
	}
	nonce, err := base64.StdEncoding.DecodeString(msg.Nonce)
	if err != nil {
		return "", protocol.Wrap(protocol.KindDecode, "decode nonce", err)
	}
	pt, err := sess.Decrypt(ct, nonce)
	if err != nil {
		return "", protocol.Wrap(protocol.KindCrypto, "decrypt", err)
	}
	return strings.ToValidUTF8(string(pt), "\uFFFD"), nil
}

type line struct {
	text string
	err  error
}

func sendLoop(ctx context.Context, conn io.Writer, sess *session.Session, in LineReader, out Sink, opts Options) error {
	// ReadLine cannot be interrupted, so it runs on its own goroutine and
	// is abandoned when ctx ends.
	lines := make(chan line)
	go readLines(ctx, in, lines)

	for {
		var l line
		select {
		case <-ctx.Done():
			return nil
		case l = <-lines:
		}
		if l.err != nil {
			if errors.Is(l.err, io.EOF) {
				return nil
			}
			return fmt.Errorf("chat: read input: %w", l.err)
		}

		text := strings.TrimRight(l.text, "\r\n")
		if strings.TrimSpace(text) == "" {
			continue
		}
		if strings.TrimSpace(text) == opts.QuitCommand {
			opts.Logger.Info("local user quit")
			return nil
		}

		now := opts.Now()
		msg, err := seal(sess, opts.SenderID, now, text)
		if err != nil {
			return err
		}
		if err := protocol.WriteFrame(conn, msg); err != nil {
			if errors.Is(err, protocol.ErrFrameTooLarge) {
				opts.Logger.Warn("message too large, not sent", "bytes", len(text))
				if opts.Rejected != nil {
					opts.Rejected(text, err)
				}
				continue
			}
			if ctx.Err() != nil {
				return nil
			}
			return protocol.Classify("send", err)
		}
		opts.Metrics.MessageSent()
		out.Deliver(Message{
			SenderID:  opts.SenderID,
			Timestamp: time.Unix(now.Unix(), 0),
			Time:      now,
			Text:      text,
			Outgoing:  true,
		})
	}
}

func seal(sess *session.Session, senderID string, now time.Time, text string) (protocol.Chat, error) {
	ct, nonce, err := sess.Encrypt([]byte(text))
	if err != nil {
		return protocol.Chat{}, protocol.Wrap(protocol.KindCrypto, "encrypt", err)
	}
	return protocol.Chat{
		SenderID:  senderID,
		Timestamp: uint64(now.Unix()),
		Payload:   base64.StdEncoding.EncodeToString(ct),
		Nonce:     base64.StdEncoding.EncodeToString(nonce),
	}, nil
}

func readLines(ctx context.Context, in LineReader, lines chan<- line) {
	for {
		text, err := in.ReadLine()
		select {
		case lines <- line{text, err}:
		case <-ctx.Done():
			return
		}
		if err != nil {
			return
		}
	}
}
