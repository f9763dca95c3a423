// Command proctorctl is the operator CLI for the proctoring service.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/zaqqye/seb_proctor/internal/apiclient"
	"github.com/zaqqye/seb_proctor/internal/config"
	"github.com/zaqqye/seb_proctor/internal/logger"
)

type globals struct {
	server  string
	token   string
	timeout time.Duration
	json    bool
}

func (g *globals) client() *apiclient.Client {
	return apiclient.New(g.server, g.token, g.timeout)
}

func (g *globals) print(cmd *cobra.Command, v interface{}, text func()) error {
	if g.json {
		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		return enc.Encode(v)
	}
	text()
	return nil
}

func main() {
	if err := rootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	g := &globals{}
	cfg := config.Load()
	logger.Init(cfg.LogLevel, true)

	cmd := &cobra.Command{
		Use:   "proctorctl",
		Short: "Operate the SEB proctoring service",
		Long: `Operate the SEB proctoring service.

Examples:
  proctorctl token --user teacher-1 --role teacher
  proctorctl codes issue --scope session --classroom class-a
  proctorctl schedule apply -f windows.yaml
  proctorctl reconcile --journal incidents.jsonl
`,
		SilenceUsage: true,
	}
	cmd.PersistentFlags().StringVar(&g.server, "server", envOr("PROCTOR_SERVER", "http://localhost:"+cfg.Port), "API base URL")
	cmd.PersistentFlags().StringVar(&g.token, "token", os.Getenv("PROCTOR_TOKEN"), "bearer token")
	cmd.PersistentFlags().DurationVar(&g.timeout, "timeout", 15*time.Second, "per-request timeout")
	cmd.PersistentFlags().BoolVar(&g.json, "json", false, "print JSON")

	cmd.AddCommand(tokenCmd(g, cfg))
	cmd.AddCommand(codesCmd(g))
	cmd.AddCommand(scheduleCmd(g))
	cmd.AddCommand(reconcileCmd(g))
	return cmd
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

// commandContext is cancelled on SIGINT/SIGTERM.
func commandContext(cmd *cobra.Command) (context.Context, context.CancelFunc) {
	return signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
}
