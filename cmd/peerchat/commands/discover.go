package commands

import (
	"context"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/TheusHen/p2pchat/peerchat/discovery"
	"github.com/TheusHen/p2pchat/peerchat/discovery/memory"
	"github.com/TheusHen/p2pchat/peerchat/discovery/udp"
)

func discoverCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "discover",
		Short: "Find listeners on the local network and connect to one",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a := appCtx
			ctx, cancel := context.WithCancel(cmd.Context())
			defer cancel()

			con := a.openConsole(cancel)
			defer con.Close()
			return a.discover(ctx, con)
		},
	}
}

func (a *app) discover(ctx context.Context, con *Console) error {
	scanner := &udp.Scanner{Port: a.cfg.Discovery.Port, Logger: a.log}
	con.Println("Searching for peers... (Press Ctrl+C to stop)")
	peers, err := scanner.Collect(ctx, a.cfg.Discovery.ScanTimeout, memory.New(),
		func(info discovery.AddrInfo) { con.Printf("Found peer: %s\n", info) },
		func() { con.Println("No peers found yet...") },
	)
	if err != nil {
		return err
	}
	if len(peers) == 0 {
		con.Println("No peers found.")
		return nil
	}

	con.Println("\nDiscovered peers:")
	for i, p := range peers {
		con.Printf("  [%d] %s (last seen %s)\n", i, p, p.LastSeen.Format("15:04:05"))
	}

	choice, err := con.Ask(ctx, "\nEnter the number of the peer to connect to (or 'q' to quit): ")
	if err != nil {
		return nil
	}
	choice = strings.TrimSpace(choice)
	if choice == "q" {
		return nil
	}
	n, err := strconv.Atoi(choice)
	if err != nil {
		con.Println("Invalid input.")
		return nil
	}
	if n < 0 || n >= len(peers) {
		con.Println("Invalid selection.")
		return nil
	}
	addr := peers[n].Addr.String()

	alias, err := con.Ask(ctx, "Enter an alias for this peer (optional): ")
	if err != nil {
		return nil
	}
	if alias = strings.TrimSpace(alias); alias != "" {
		if err := a.store.Add(alias, addr); err != nil {
			return err
		}
		if err := a.store.Save(); err != nil {
			return err
		}
		con.Printf("Peer '%s' saved.\n", alias)
	}

	return a.dialAndChat(ctx, con, addr)
}
