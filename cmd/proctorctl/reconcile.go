package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/zaqqye/seb_proctor/internal/monitor"
)

// reconcileCmd replays a monitor journal left behind by a client that could
// not reach the server. The ledger drops incidents it already holds.
func reconcileCmd(g *globals) *cobra.Command {
	var (
		path    string
		session string
	)
	cmd := &cobra.Command{
		Use:   "reconcile",
		Short: "Replay journaled incidents",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := commandContext(cmd)
			defer cancel()
			var keep func(monitor.Entry) bool
			if session != "" {
				keep = func(e monitor.Entry) bool { return e.SessionID == session }
			}
			res, err := monitor.Reconcile(ctx, g.client(), monitor.OpenJournal(path), keep)
			if err != nil {
				return err
			}
			return g.print(cmd, res, func() {
				fmt.Fprintf(cmd.OutOrStdout(), "replayed %d, %d left in journal\n", res.Replayed, res.Remaining)
				for id, lr := range res.Latest {
					fmt.Fprintf(cmd.OutOrStdout(), "  %s: %d violations, locked=%t\n", id, lr.ViolationCount, lr.Locked)
				}
			})
		},
	}
	cmd.Flags().StringVar(&path, "journal", "", "journal file (required)")
	cmd.Flags().StringVar(&session, "session", "", "only replay this session")
	_ = cmd.MarkFlagRequired("journal")
	return cmd
}
