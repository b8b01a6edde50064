package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"
)

const version = "0.1.0"

// globalOptions are the persistent flags shared by every command.
type globalOptions struct {
	server     string
	token      string
	jsonOutput bool
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	opts := &globalOptions{}

	root := &cobra.Command{
		Use:           "bakeryctl",
		Short:         "bakeryctl - command line client for the bakery API",
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	root.PersistentFlags().StringVar(&opts.server, "server", envOr("BAKERY_SERVER", "http://localhost:8080"), "bakery API URL")
	root.PersistentFlags().StringVar(&opts.token, "token", os.Getenv("BAKERY_TOKEN"), "bearer token (defaults to $BAKERY_TOKEN)")
	root.PersistentFlags().BoolVar(&opts.jsonOutput, "json", false, "output in JSON format")

	root.AddCommand(
		newLoginCmd(opts),
		newRegisterCmd(opts),
		newWhoamiCmd(opts),
		newLogsCmd(opts),
	)
	return root
}

func (o *globalOptions) client() *BakeryClient {
	return NewBakeryClient(o.server, o.token)
}

func newLoginCmd(opts *globalOptions) *cobra.Command {
	var password string

	cmd := &cobra.Command{
		Use:   "login <username>",
		Short: "Log in and print a bearer token",
		Long: `Log in and print a bearer token valid for five minutes.
Export it as BAKERY_TOKEN to authenticate the other commands.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			result, err := opts.client().Login(cmd.Context(), args[0], password)
			if err != nil {
				return err
			}
			if opts.jsonOutput {
				return writeJSON(cmd.OutOrStdout(), result)
			}
			fmt.Fprintln(cmd.OutOrStdout(), result.Token)
			return nil
		},
	}

	cmd.Flags().StringVarP(&password, "password", "p", "", "account password")
	_ = cmd.MarkFlagRequired("password")
	return cmd
}

func newRegisterCmd(opts *globalOptions) *cobra.Command {
	var password, fullName string

	cmd := &cobra.Command{
		Use:   "register <email>",
		Short: "Register a new account (requires the Admin role)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			message, err := opts.client().Register(cmd.Context(), args[0], password, fullName)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), message)
			return nil
		},
	}

	cmd.Flags().StringVarP(&password, "password", "p", "", "initial password")
	cmd.Flags().StringVar(&fullName, "full-name", "", "display name")
	_ = cmd.MarkFlagRequired("password")
	_ = cmd.MarkFlagRequired("full-name")
	return cmd
}

func newWhoamiCmd(opts *globalOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "whoami",
		Short: "Show the session carried by the current token",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			me, err := opts.client().Me(cmd.Context())
			if err != nil {
				return err
			}
			return writeJSON(cmd.OutOrStdout(), me)
		},
	}
}

func newLogsCmd(opts *globalOptions) *cobra.Command {
	logs := &cobra.Command{
		Use:   "logs",
		Short: "Query the audit log",
	}

	var q SearchQuery
	search := &cobra.Command{
		Use:   "search",
		Short: "Search audit events (requires the Admin role)",
		Example: `  bakeryctl logs search --user Admin@localhost
  bakeryctl logs search --operation delete --start 2024-01-01T00:00:00Z --end 2024-02-01T00:00:00Z`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			events, err := opts.client().SearchLogs(cmd.Context(), q)
			if err != nil {
				return err
			}
			if opts.jsonOutput {
				return writeJSON(cmd.OutOrStdout(), events)
			}
			return writeEvents(cmd.OutOrStdout(), events)
		},
	}

	search.Flags().StringVar(&q.User, "user", "", "actor username")
	search.Flags().StringVar(&q.StartTime, "start", "", "range start (RFC 3339), requires --end")
	search.Flags().StringVar(&q.EndTime, "end", "", "range end (RFC 3339), requires --start")
	search.Flags().StringVar(&q.Operation, "operation", "", "Post, Put or Delete")
	search.MarkFlagsRequiredTogether("start", "end")

	logs.AddCommand(search)
	return logs
}

func writeEvents(w io.Writer, events []Event) error {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "TIMESTAMP\tOPERATION\tACTOR\tPATH")
	for _, e := range events {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", e.Timestamp.Format(time.RFC3339), e.Operation, e.Actor, e.Path)
	}
	return tw.Flush()
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
