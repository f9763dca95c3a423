package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/zaqqye/seb_proctor/internal/config"
	"github.com/zaqqye/seb_proctor/internal/middleware"
)

// tokenCmd mints a bearer token signed with JWT_SECRET, for development and
// for scripting against the API.
func tokenCmd(g *globals, cfg *config.Config) *cobra.Command {
	var (
		userID string
		role   string
		ttl    time.Duration
	)
	cmd := &cobra.Command{
		Use:   "token",
		Short: "Mint a bearer token",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			tok, err := middleware.IssueToken(
				middleware.AuthConfig{JWTSecret: cfg.JWTSecret, JWTExpiresIn: ttl},
				middleware.Principal{UserID: userID, Role: role},
				time.Now(),
			)
			if err != nil {
				return err
			}
			return g.print(cmd, map[string]string{"token": tok}, func() {
				fmt.Fprintln(cmd.OutOrStdout(), tok)
			})
		},
	}
	cmd.Flags().StringVar(&userID, "user", "", "user id (required)")
	cmd.Flags().StringVar(&role, "role", middleware.RoleTeacher, "admin, teacher or student")
	cmd.Flags().DurationVar(&ttl, "ttl", cfg.JWTExpiresIn, "token lifetime")
	_ = cmd.MarkFlagRequired("user")
	return cmd
}
