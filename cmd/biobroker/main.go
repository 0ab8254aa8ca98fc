// BioBroker serves biomedical data sources to MCP hosts.
//
// Usage:
//
//	biobroker serve pubmed                 # MCP over stdio
//	biobroker serve opentargets --addr :8080
//	biobroker call pubmed search_pubmed --arg query=CRISPR
//	biobroker tools drugbank
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/RobinCoderZhao/biobroker/internal/brokers"
	"github.com/RobinCoderZhao/biobroker/internal/config"
	"github.com/RobinCoderZhao/biobroker/pkg/journal"
	"github.com/RobinCoderZhao/biobroker/pkg/mcpserver"
)

var version = "dev"

// errFailed marks a command whose failure has already been reported.
var errFailed = errors.New("failed")

func main() {
	if err := newRootCmd().Execute(); err != nil {
		if !errors.Is(err, errFailed) {
			color.New(color.FgRed).Fprintf(os.Stderr, "error: %v\n", err)
		}
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var configPath string

	rootCmd := &cobra.Command{
		Use:           "biobroker",
		Short:         "MCP tool broker for biomedical data sources",
		Long:          "BioBroker exposes PubMed, bioRxiv, ClinicalTrials.gov, DrugBank and Open Targets as MCP tools.",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "config file (default ./biobroker.yaml, then ~/.biobroker.yaml)")

	load := func() (config.Config, error) {
		cfg, err := config.Load(configPath)
		if err != nil {
			return cfg, fmt.Errorf("load config: %w", err)
		}
		return cfg, nil
	}

	rootCmd.AddCommand(serveCmd(load))
	rootCmd.AddCommand(toolsCmd(load))
	rootCmd.AddCommand(callCmd(load))
	rootCmd.AddCommand(journalCmd(load))
	rootCmd.AddCommand(tokenCmd(load))
	rootCmd.AddCommand(hashKeyCmd())
	rootCmd.AddCommand(versionCmd())
	return rootCmd
}

type loader func() (config.Config, error)

func brokerNames() string { return strings.Join(brokers.Names(), ", ") }

func serveCmd(load loader) *cobra.Command {
	var useHTTP bool
	var addr string

	cmd := &cobra.Command{
		Use:       "serve <broker>",
		Short:     "Run one broker as an MCP server",
		Long:      "Serve a broker over stdio (default) or HTTP. Available brokers: " + brokerNames() + ".",
		Args:      cobra.ExactArgs(1),
		ValidArgs: brokers.Names(),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := load()
			if err != nil {
				return err
			}
			if addr != "" {
				cfg.HTTP.Addr = addr
				useHTTP = true
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return runServe(ctx, cfg, args[0], useHTTP)
		},
	}

	cmd.Flags().BoolVar(&useHTTP, "http", false, "serve over HTTP on http.addr instead of stdio")
	cmd.Flags().StringVar(&addr, "addr", "", "HTTP listen address (implies --http)")
	return cmd
}

func runServe(ctx context.Context, cfg config.Config, name string, useHTTP bool) error {
	logger := cfg.Logger()

	server, err := brokers.New(name, version, cfg, logger)
	if err != nil {
		return err
	}

	if cfg.Journal.Path != "" {
		j, err := journal.Open(cfg.Journal.Path, logger)
		if err != nil {
			return err
		}
		defer j.Close()
		server.Observe(j)
	}

	if !useHTTP {
		return server.RunStdio(ctx)
	}
	return server.RunHTTP(ctx, cfg.HTTP.Addr, authenticator(cfg.HTTP))
}

// authenticator returns nil when no credential is configured, leaving the
// HTTP endpoints open.
func authenticator(cfg config.HTTPConfig) mcpserver.Authenticator {
	var auth mcpserver.AnyAuth
	if cfg.JWTSecret != "" {
		auth = append(auth, mcpserver.NewJWTAuth(cfg.JWTSecret))
	}
	if cfg.APIKeyHash != "" {
		auth = append(auth, mcpserver.NewKeyAuth(cfg.APIKeyHash))
	}
	if len(auth) == 0 {
		return nil
	}
	return auth
}

func toolsCmd(load loader) *cobra.Command {
	return &cobra.Command{
		Use:   "tools <broker>",
		Short: "List a broker's tools and their parameters",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := load()
			if err != nil {
				return err
			}
			server, err := brokers.New(args[0], version, cfg, cfg.Logger())
			if err != nil {
				return err
			}
			printTools(cmd.OutOrStdout(), server.Registry().List())
			return nil
		},
	}
}

func printTools(w io.Writer, tools []mcpserver.Tool) {
	name := color.New(color.FgCyan, color.Bold)
	faint := color.New(color.Faint)
	for _, t := range tools {
		name.Fprintln(w, t.Name)
		fmt.Fprintf(w, "  %s\n", t.Description)
		for _, p := range t.Params {
			var notes []string
			if p.Required {
				notes = append(notes, "required")
			}
			if p.Default != nil {
				notes = append(notes, fmt.Sprintf("default %v", p.Default))
			}
			if len(p.Enum) > 0 {
				notes = append(notes, "one of "+strings.Join(p.Enum, "|"))
			}
			if p.Pattern != "" {
				notes = append(notes, "pattern "+p.Pattern)
			}
			fmt.Fprintf(w, "    %-14s %-8s %s", p.Name, p.Type, p.Description)
			if len(notes) > 0 {
				faint.Fprintf(w, " (%s)", strings.Join(notes, ", "))
			}
			fmt.Fprintln(w)
		}
		fmt.Fprintln(w)
	}
}

func callCmd(load loader) *cobra.Command {
	var rawArgs []string

	cmd := &cobra.Command{
		Use:   "call <broker> <tool>",
		Short: "Run one tool invocation and print its result",
		Long:  "Invoke a tool in-process. Arguments are given as --arg name=value and coerced to the declared parameter types. Exits with status 1 when the invocation fails.",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := load()
			if err != nil {
				return err
			}
			toolArgs, err := parseArgs(rawArgs)
			if err != nil {
				return err
			}
			return runCall(cmd.Context(), cfg, args[0], args[1], toolArgs, cmd.OutOrStdout(), cmd.ErrOrStderr())
		},
	}

	cmd.Flags().StringArrayVarP(&rawArgs, "arg", "a", nil, "tool argument as name=value (repeatable)")
	return cmd
}

func parseArgs(raw []string) (map[string]any, error) {
	out := make(map[string]any, len(raw))
	for _, kv := range raw {
		name, value, ok := strings.Cut(kv, "=")
		if !ok || strings.TrimSpace(name) == "" {
			return nil, fmt.Errorf("argument %q must have the form name=value", kv)
		}
		out[strings.TrimSpace(name)] = value
	}
	return out, nil
}

func runCall(ctx context.Context, cfg config.Config, name, tool string, args map[string]any, stdout, stderr io.Writer) error {
	logger := cfg.Logger()
	server, err := brokers.New(name, version, cfg, logger)
	if err != nil {
		return err
	}

	if cfg.Journal.Path != "" {
		j, err := journal.Open(cfg.Journal.Path, logger)
		if err != nil {
			return err
		}
		defer j.Close()
		server.Observe(j)
	}

	out := server.Invoke(ctx, tool, args)
	if out.Envelope != nil {
		color.New(color.FgRed).Fprintln(stderr, out.Envelope.String())
		if out.Envelope.Retryable {
			color.New(color.FgYellow).Fprintln(stderr, "The failure is transient; retrying later may succeed.")
		}
		return errFailed
	}
	fmt.Fprintln(stdout, out.Result)
	return nil
}

func journalCmd(load loader) *cobra.Command {
	var limit int
	var summary bool

	cmd := &cobra.Command{
		Use:   "journal",
		Short: "Show recent invocations from the journal",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := load()
			if err != nil {
				return err
			}
			if cfg.Journal.Path == "" {
				return errors.New("journal.path is not configured")
			}
			j, err := journal.Open(cfg.Journal.Path, cfg.Logger())
			if err != nil {
				return err
			}
			defer j.Close()
			if summary {
				return printSummary(cmd.Context(), cmd.OutOrStdout(), j)
			}
			return printRecent(cmd.Context(), cmd.OutOrStdout(), j, limit)
		},
	}

	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "number of entries to show")
	cmd.Flags().BoolVar(&summary, "summary", false, "show per-tool totals instead of entries")
	return cmd
}

func printRecent(ctx context.Context, w io.Writer, j *journal.Journal, limit int) error {
	entries, err := j.Recent(ctx, limit)
	if err != nil {
		return err
	}
	if len(entries) == 0 {
		fmt.Fprintln(w, "No invocations recorded.")
		return nil
	}
	ok := color.New(color.FgGreen)
	bad := color.New(color.FgRed)
	for _, e := range entries {
		state := ok.Sprint(e.State)
		if e.Kind != "" {
			state = bad.Sprintf("%s %s", e.State, e.Kind)
		}
		fmt.Fprintf(w, "%s  %-14s %-32s %s  %s\n",
			e.StartedAt.Local().Format(time.DateTime), e.Server, e.Tool, e.Duration.Round(time.Millisecond), state)
		if e.Message != "" {
			fmt.Fprintf(w, "    %s\n", e.Message)
		}
	}
	return nil
}

func printSummary(ctx context.Context, w io.Writer, j *journal.Journal) error {
	stats, err := j.Summary(ctx)
	if err != nil {
		return err
	}
	for _, s := range stats {
		fmt.Fprintf(w, "%-14s %-32s %5d calls %5d failed\n", s.Server, s.Tool, s.Total, s.Failures)
	}
	return nil
}

func tokenCmd(load loader) *cobra.Command {
	var subject string
	var ttl time.Duration

	cmd := &cobra.Command{
		Use:   "token",
		Short: "Mint a bearer token for the HTTP transport",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := load()
			if err != nil {
				return err
			}
			if cfg.HTTP.JWTSecret == "" {
				return errors.New("http.jwt_secret is not configured")
			}
			token, err := mcpserver.NewJWTAuth(cfg.HTTP.JWTSecret).Issue(subject, ttl)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), token)
			return nil
		},
	}

	cmd.Flags().StringVar(&subject, "subject", "biobroker", "token subject")
	cmd.Flags().DurationVar(&ttl, "ttl", 24*time.Hour, "token lifetime")
	return cmd
}

func hashKeyCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "hash-key <key>",
		Short: "Print the bcrypt hash of a static API key for http.api_key_hash",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			hash, err := mcpserver.HashKey(args[0])
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), hash)
			return nil
		},
	}
}

func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Show version",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "biobroker %s\n", version)
		},
	}
}
