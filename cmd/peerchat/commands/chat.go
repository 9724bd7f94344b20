package commands

import (
	"context"
	"strings"

	"github.com/TheusHen/p2pchat/peerchat"
	"github.com/TheusHen/p2pchat/peerchat/chat"
	"github.com/TheusHen/p2pchat/peerchat/protocol"
	"github.com/TheusHen/p2pchat/peerchat/transcript"
)

// runChat drives one established connection on the console until either
// side leaves.
func (a *app) runChat(ctx context.Context, c *peerchat.Conn, con *Console) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	fp := c.Session.Fingerprint()
	con.Printf("Session key derived (%s)\n", c.Role)
	con.Printf("Session fingerprint: %s\n", groupFingerprint(fp))
	con.Println("Secure channel established. You can type messages now.")

	sinks := chat.MultiSink{con}
	if a.cfg.Transcript.Dir != "" {
		tw, err := transcript.Create(a.cfg.Transcript.Dir, fp, transcript.LevelDefault)
		if err != nil {
			a.log.Warn("transcript disabled", "err", err)
		} else {
			defer func() {
				if err := tw.Close(); err != nil {
					a.log.Warn("transcript incomplete", "path", tw.Path(), "err", err)
				}
			}()
			a.log.Info("recording transcript", "path", tw.Path())
			sinks = append(sinks, tw)
		}
	}

	err := c.Chat(ctx, con.Reader(ctx), sinks, chat.Options{
		QuitCommand: a.cfg.Chat.Quit,
		Rejected: func(text string, _ error) {
			con.Printf("Message not sent: %d bytes is over the %d byte frame limit\n", len(text), protocol.MaxFramePayload)
		},
	})
	if err != nil {
		con.Printf("Connection error: %v\n", err)
		return err
	}
	con.Println("Chat ended.")
	return nil
}

// dialAndChat connects to addr and chats until either side leaves.
func (a *app) dialAndChat(ctx context.Context, con *Console, addr string) error {
	p, err := a.newPeer()
	if err != nil {
		return err
	}
	a.serveMetrics(ctx)

	con.Printf("Connecting to %s...\n", addr)
	c, err := p.Dial(ctx, addr)
	if err != nil {
		return err
	}
	defer c.Close()
	con.Printf("Connected to %s\n", addr)
	return a.runChat(ctx, c, con)
}

// groupFingerprint splits a hex fingerprint into blocks of four for reading
// aloud.
func groupFingerprint(fp string) string {
	var b strings.Builder
	for i := 0; i < len(fp); i += 4 {
		if i > 0 {
			b.WriteByte(' ')
		}
		b.WriteString(fp[i:min(i+4, len(fp))])
	}
	return b.String()
}
