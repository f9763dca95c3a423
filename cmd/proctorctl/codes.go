package main

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/zaqqye/seb_proctor/internal/apiclient"
)

func codesCmd(g *globals) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "codes",
		Short: "Issue, list and revoke bypass codes",
	}
	cmd.AddCommand(codesIssueCmd(g), codesListCmd(g), codesRevokeCmd(g))
	return cmd
}

func codesIssueCmd(g *globals) *cobra.Command {
	var req apiclient.IssueCodeRequest
	cmd := &cobra.Command{
		Use:   "issue",
		Short: "Issue a single-use code",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := commandContext(cmd)
			defer cancel()
			code, err := g.client().IssueCode(ctx, req)
			if err != nil {
				return err
			}
			return g.print(cmd, code, func() {
				fmt.Fprintf(cmd.OutOrStdout(), "%s\t(%s, id %s)\n", code.Code, code.Scope, code.ID)
			})
		},
	}
	cmd.Flags().StringVar(&req.Scope, "scope", "session", "session (unlock) or schedule (override)")
	cmd.Flags().StringVar(&req.ClassroomID, "classroom", "", "restrict the code to one classroom")
	cmd.Flags().IntVar(&req.Length, "length", 0, "code length, 4 to 12 (default 8)")
	cmd.Flags().StringVar(&req.Prefix, "prefix", "", "prefix such as !BYPASS-")
	return cmd
}

func codesListCmd(g *globals) *cobra.Command {
	var q apiclient.CodeQuery
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List codes",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := commandContext(cmd)
			defer cancel()
			codes, err := g.client().ListCodes(ctx, q)
			if err != nil {
				return err
			}
			return g.print(cmd, codes, func() {
				w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
				fmt.Fprintln(w, "ID\tCODE\tSCOPE\tCLASSROOM\tSTATE")
				for _, c := range codes {
					classroom := "-"
					if c.ClassroomID != nil && *c.ClassroomID != "" {
						classroom = *c.ClassroomID
					}
					fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n", c.ID, c.Code, c.Scope, classroom, codeState(c))
				}
				_ = w.Flush()
			})
		},
	}
	cmd.Flags().StringVar(&q.Scope, "scope", "", "session or schedule")
	cmd.Flags().StringVar(&q.ClassroomID, "classroom", "", "classroom id")
	cmd.Flags().StringVar(&q.Used, "used", "false", "true, false or all")
	cmd.Flags().IntVar(&q.Limit, "limit", 0, "max rows")
	return cmd
}

func codeState(c apiclient.Code) string {
	switch {
	case c.RevokedAt != nil:
		return "revoked"
	case c.ConsumedAt != nil:
		return "consumed"
	}
	return "unused"
}

func codesRevokeCmd(g *globals) *cobra.Command {
	return &cobra.Command{
		Use:   "revoke <id>",
		Short: "Revoke an unused code",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := commandContext(cmd)
			defer cancel()
			if err := g.client().RevokeCode(ctx, args[0]); err != nil {
				return err
			}
			return g.print(cmd, map[string]string{"revoked": args[0]}, func() {
				fmt.Fprintf(cmd.OutOrStdout(), "revoked %s\n", args[0])
			})
		},
	}
}
