package commands

import (
	"errors"
	"fmt"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/TheusHen/p2pchat/peerchat/transcript"
)

var errNoTranscriptDir = errors.New("transcript.dir is not set (use --transcript-dir or PEERCHAT_TRANSCRIPT_DIR)")

func transcriptCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "transcript",
		Short: "Inspect recorded chat transcripts",
	}
	cmd.AddCommand(
		&cobra.Command{
			Use:   "list",
			Short: "List transcripts in the transcript directory",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, args []string) error {
				dir := appCtx.cfg.Transcript.Dir
				if dir == "" {
					return errNoTranscriptDir
				}
				files, err := transcript.List(dir)
				if err != nil {
					return err
				}
				for _, f := range files {
					fmt.Fprintln(cmd.OutOrStdout(), filepath.Base(f))
				}
				return nil
			},
		},
		&cobra.Command{
			Use:   "show <FILE>",
			Short: "Print a transcript",
			Long:  "Print a transcript. FILE may be a path or a name inside the transcript directory.",
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				path := args[0]
				if dir := appCtx.cfg.Transcript.Dir; dir != "" && filepath.Base(path) == path {
					path = filepath.Join(dir, path)
				}
				recs, err := transcript.ReadFile(path)
				out := cmd.OutOrStdout()
				for _, r := range recs {
					who := "Peer"
					if r.Direction == transcript.Outgoing {
						who = "You"
					}
					fmt.Fprintf(out, "%s %s: %s\n", r.Time.Local().Format("2006-01-02 15:04:05"), who, r.Text)
				}
				return err
			},
		},
	)
	return cmd
}
