package main

import (
	"fmt"
	"time"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"

	"github.com/zaqqye/seb_proctor/internal/apiclient"
	"github.com/zaqqye/seb_proctor/internal/database"
)

func scheduleCmd(g *globals) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "schedule",
		Short: "Manage schedule windows",
	}
	cmd.AddCommand(scheduleApplyCmd(g), scheduleCheckCmd(g))
	return cmd
}

func scheduleApplyCmd(g *globals) *cobra.Command {
	var file string
	cmd := &cobra.Command{
		Use:   "apply",
		Short: "Upsert assessments and windows from a YAML file",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			seed, err := database.LoadSeed(file)
			if err != nil {
				return err
			}
			ctx, cancel := commandContext(cmd)
			defer cancel()
			c := g.client()
			for _, a := range seed.Assessments {
				if a.TimeLimit == "" {
					continue
				}
				limit, _ := time.ParseDuration(a.TimeLimit)
				if err := c.PutAssessment(ctx, a.ID, a.ClassroomID, int64(limit/time.Second)); err != nil {
					return errors.Wrapf(err, "assessment %s", a.ID)
				}
			}
			for _, w := range seed.Windows {
				err := c.PutWindow(ctx, w.ClassroomID, apiclient.PutWindowRequest{
					AssignmentID: w.AssignmentID,
					StartAt:      w.StartAt,
					EndAt:        w.EndAt,
				})
				if err != nil {
					return errors.Wrapf(err, "window %s", w.ClassroomID)
				}
			}
			fmt.Fprintf(cmd.OutOrStdout(), "applied %d assessments, %d windows\n", len(seed.Assessments), len(seed.Windows))
			return nil
		},
	}
	cmd.Flags().StringVarP(&file, "file", "f", "", "YAML file (required)")
	_ = cmd.MarkFlagRequired("file")
	return cmd
}

func scheduleCheckCmd(g *globals) *cobra.Command {
	var assignment string
	cmd := &cobra.Command{
		Use:   "check <classroom_id>",
		Short: "Show whether a session may start now",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := commandContext(cmd)
			defer cancel()
			av, err := g.client().Availability(ctx, args[0], assignment)
			if err != nil {
				return err
			}
			return g.print(cmd, av, func() {
				switch {
				case av.Allowed:
					fmt.Fprintln(cmd.OutOrStdout(), "open")
				case av.NextAvailable != nil:
					fmt.Fprintf(cmd.OutOrStdout(), "closed, next available %s\n", av.NextAvailable.Local().Format(time.RFC1123))
				default:
					fmt.Fprintln(cmd.OutOrStdout(), "closed")
				}
			})
		},
	}
	cmd.Flags().StringVar(&assignment, "assignment", "", "assignment id")
	return cmd
}
