package commands

import (
	"context"
	"fmt"
	"net/netip"
	"sync"

	"github.com/spf13/cobra"

	"github.com/TheusHen/p2pchat/peerchat"
	"github.com/TheusHen/p2pchat/peerchat/discovery/udp"
)

func listenCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "listen <ADDR:PORT>",
		Short: "Wait for peers to connect",
		Long: "Accept incoming chats on ADDR:PORT and announce the port on the local\n" +
			"network. One chat runs at a time; /quit ends it and keeps listening.",
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a := appCtx
			ctx, cancel := context.WithCancel(cmd.Context())
			defer cancel()

			p, err := a.newPeer()
			if err != nil {
				return err
			}
			if err := p.Listen(args[0]); err != nil {
				return fmt.Errorf("listen on %s: %w", args[0], err)
			}
			defer p.Close()

			con := a.openConsole(cancel)
			defer con.Close()
			con.Printf("Listening on %s (%s)\n", p.ListenAddr(), a.cfg.Transport)

			a.serveMetrics(ctx)
			if a.cfg.Discovery.Announce {
				if err := a.startAnnouncer(ctx, p.ListenAddr()); err != nil {
					a.log.Warn("presence broadcast disabled", "err", err)
				}
			}

			var busy sync.Mutex
			return p.Serve(ctx, func(ctx context.Context, c *peerchat.Conn) {
				if !busy.TryLock() {
					a.log.Warn("already in a chat, dropping connection", "remote", c.RemoteAddr().String())
					return
				}
				defer busy.Unlock()
				con.Printf("Accepted connection from %s\n", c.RemoteAddr())
				_ = a.runChat(ctx, c, con)
			})
		},
	}
}

func (a *app) startAnnouncer(ctx context.Context, listenAddr string) error {
	ap, err := netip.ParseAddrPort(listenAddr)
	if err != nil {
		return err
	}
	ann := &udp.Announcer{
		Port:     a.cfg.Discovery.Port,
		Interval: a.cfg.Discovery.Interval,
		Logger:   a.log,
	}
	go func() {
		if err := ann.Run(ctx, ap.Port()); err != nil {
			a.log.Warn("broadcast error", "err", err)
		}
	}()
	return nil
}
