package commands

import (
	"context"

	"github.com/spf13/cobra"
)

func connectCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "connect <ALIAS|ADDR:PORT>",
		Short: "Start a chat with a saved alias or an address",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a := appCtx
			ctx, cancel := context.WithCancel(cmd.Context())
			defer cancel()

			con := a.openConsole(cancel)
			defer con.Close()
			return a.dialAndChat(ctx, con, a.store.Resolve(args[0]))
		},
	}
}
