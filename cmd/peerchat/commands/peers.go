package commands

import (
	"fmt"

	"github.com/spf13/cobra"
)

func addPeerCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "add-peer <ALIAS> <ADDR:PORT>",
		Short: "Save an alias for a peer address",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			s := appCtx.store
			if err := s.Add(args[0], args[1]); err != nil {
				return err
			}
			if err := s.Save(); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Peer '%s' added.\n", args[0])
			return nil
		},
	}
}

func listPeersCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list-peers",
		Short: "List saved aliases",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			out := cmd.OutOrStdout()
			fmt.Fprintln(out, "Saved peers:")
			for _, p := range appCtx.store.List() {
				fmt.Fprintf(out, "  - %s: %s\n", p.Name, p.Addr)
			}
			return nil
		},
	}
}
