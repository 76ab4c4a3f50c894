package cmd

import (
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/mattn/go-isatty"
	"github.com/spf13/cobra"

	"github.com/NickB03/vana/internal/backend"
	"github.com/NickB03/vana/internal/search"
)

type searchOptions struct {
	count  int
	k      int
	format string
}

func newSearchCmd() *cobra.Command {
	var opts searchOptions

	cmd := &cobra.Command{
		Use:   "search <query>",
		Short: "Run a one-shot hybrid search",
		Long: `Search the local vector and graph stores plus the configured web
backend, fusing results with weighted scoring.

Examples:
  vana search "circuit breaker recovery"
  vana search "payments service" --count 5
  vana search "timeout handling" --format json`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			query := strings.Join(args, " ")
			return runSearch(cmd, query, opts)
		},
	}

	cmd.Flags().IntVarP(&opts.count, "count", "n", 0, "Maximum number of fused results")
	cmd.Flags().IntVarP(&opts.k, "k", "k", 0, "Per-backend candidate count")
	cmd.Flags().StringVarP(&opts.format, "format", "f", "text", "Output format: text, json")

	return cmd
}

func runSearch(cmd *cobra.Command, query string, opts searchOptions) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	a, err := buildApp(cfg, slog.Default())
	if err != nil {
		return err
	}
	defer a.close()

	q := search.Query{Text: query, DesiredCount: opts.count}
	if opts.k > 0 {
		q.PerBackendK = map[backend.Name]int{
			backend.Vector: opts.k,
			backend.Graph:  opts.k,
			backend.Web:    opts.k,
		}
	}

	resp, err := a.orchestrator.Search(cmd.Context(), q)
	if err != nil {
		return err
	}

	switch opts.format {
	case "json":
		return writeSearchJSON(cmd.OutOrStdout(), resp)
	case "text":
		writeSearchText(cmd.OutOrStdout(), query, resp)
		return nil
	default:
		return fmt.Errorf("unknown format: %s (supported: text, json)", opts.format)
	}
}

// searchJSON is the stable shape of --format json output.
type searchJSON struct {
	Results        []resultJSON `json:"results"`
	Partial        bool         `json:"partial"`
	FailedBackends []string     `json:"failed_backends,omitempty"`
	DurationMS     int64        `json:"duration_ms"`
}

type resultJSON struct {
	ID      string  `json:"id"`
	Backend string  `json:"backend"`
	Title   string  `json:"title,omitempty"`
	Body    string  `json:"body,omitempty"`
	URL     string  `json:"url,omitempty"`
	Score   float64 `json:"score"`
	Rank    int     `json:"rank"`
}

func writeSearchJSON(w io.Writer, resp *search.Response) error {
	out := searchJSON{
		Results:    make([]resultJSON, 0, len(resp.Results)),
		Partial:    resp.Partial,
		DurationMS: resp.Duration.Milliseconds(),
	}
	for _, name := range resp.FailedBackends {
		out.FailedBackends = append(out.FailedBackends, name.String())
	}
	for _, r := range resp.Results {
		out.Results = append(out.Results, resultJSON{
			ID:      r.Item.ID,
			Backend: r.Item.Backend.String(),
			Title:   r.Item.Title,
			Body:    r.Item.Body,
			URL:     r.Item.URL,
			Score:   r.FinalScore,
			Rank:    r.Rank,
		})
	}

	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(out)
}

func writeSearchText(w io.Writer, query string, resp *search.Response) {
	decorated := isTTY(w)

	if decorated {
		fmt.Fprintf(w, "Results for %q (%dms)\n\n", query, resp.Duration.Milliseconds())
	}
	if resp.Partial {
		names := make([]string, 0, len(resp.FailedBackends))
		for _, n := range resp.FailedBackends {
			names = append(names, n.String())
		}
		fmt.Fprintf(w, "warning: partial results, backends down: %s\n\n", strings.Join(names, ", "))
	}
	if len(resp.Results) == 0 {
		fmt.Fprintln(w, "no results")
		return
	}

	for _, r := range resp.Results {
		title := r.Item.Title
		if title == "" {
			title = r.Item.ID
		}
		fmt.Fprintf(w, "%2d. [%-6s] %.4f  %s\n", r.Rank, r.Item.Backend, r.FinalScore, title)
		if r.Item.URL != "" {
			fmt.Fprintf(w, "    %s\n", r.Item.URL)
		}
		if decorated && r.Item.Body != "" {
			fmt.Fprintf(w, "    %s\n", snippet(r.Item.Body, 120))
		}
	}
}

// isTTY reports whether w is an interactive terminal.
func isTTY(w io.Writer) bool {
	f, ok := w.(*os.File)
	if !ok {
		return false
	}
	return isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
}

func snippet(s string, max int) string {
	s = strings.Join(strings.Fields(s), " ")
	if len(s) <= max {
		return s
	}
	return s[:max] + "..."
}
