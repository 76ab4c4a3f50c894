package cmd

import (
	"encoding/json"
	"fmt"
	"io"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/NickB03/vana/internal/health"
)

func newHealthCmd() *cobra.Command {
	var probe bool
	var format string

	cmd := &cobra.Command{
		Use:   "health",
		Short: "Report backend circuit breaker state",
		Long: `Show the circuit breaker state of every backend.

With --probe, backends whose circuits are not closed are actively
probed first, so a recovered backend shows up as healthy immediately.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runHealth(cmd, probe, format)
		},
	}

	cmd.Flags().BoolVar(&probe, "probe", false, "Actively probe non-closed backends")
	cmd.Flags().StringVarP(&format, "format", "f", "text", "Output format: text, json")

	return cmd
}

func runHealth(cmd *cobra.Command, probe bool, format string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	a, err := buildApp(cfg, slog.Default())
	if err != nil {
		return err
	}
	defer a.close()

	var status health.Status
	if probe {
		status = a.reporter.ProbeNow(cmd.Context())
	} else {
		status = a.reporter.Check()
	}

	switch format {
	case "json":
		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		return enc.Encode(status)
	case "text":
		writeHealthText(cmd.OutOrStdout(), status)
		return nil
	default:
		return fmt.Errorf("unknown format: %s (supported: text, json)", format)
	}
}

func writeHealthText(w io.Writer, status health.Status) {
	if status.Healthy {
		fmt.Fprintln(w, "all backends healthy")
	} else {
		fmt.Fprintln(w, "degraded: one or more circuits are not closed")
	}
	for _, b := range status.Backends {
		fmt.Fprintf(w, "  %-6s %-9s consecutive_failures=%d\n",
			b.Backend, b.State, b.ConsecutiveFailures)
	}
}
