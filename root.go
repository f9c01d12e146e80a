package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"os"

	"github.com/spf13/cobra"

	"github.com/tonimelisma/cloudexplorer/internal/config"
)

// version is set at build time via ldflags.
var version = "dev"

// CLIFlags holds the global persistent flags.
type CLIFlags struct {
	ConfigPath string
	Account    string
	JSON       bool
	Verbose    bool
	Debug      bool
	Quiet      bool
}

// CLIContext carries what every subcommand needs: resolved config, logger
// and output streams. Built once in PersistentPreRunE.
type CLIContext struct {
	Flags  CLIFlags
	Cfg    *config.Resolved
	Logger *slog.Logger
	Out    io.Writer
	Err    io.Writer
}

type cliContextKey struct{}

// cliContextFrom returns the CLIContext stored in ctx, or nil.
func cliContextFrom(ctx context.Context) *CLIContext {
	cc, _ := ctx.Value(cliContextKey{}).(*CLIContext)
	return cc
}

// mustCLIContext returns the CLIContext stored in ctx. Panics if the root
// pre-run did not run, which is a programming error.
func mustCLIContext(ctx context.Context) *CLIContext {
	cc := cliContextFrom(ctx)
	if cc == nil {
		panic("cli context not initialized")
	}

	return cc
}

// newRootCmd builds the fully-assembled root command.
func newRootCmd() *cobra.Command {
	var flags CLIFlags

	cmd := &cobra.Command{
		Use:   "cloudexplorer",
		Short: "Browse and manage files on WebDav, OneDrive and Sharepoint",
		Long: `cloudexplorer gives every configured storage account the same
file operations: list, inspect, create, upload, move, rename, delete and
edit descriptions.`,
		Version:       version,
		SilenceErrors: true,
		SilenceUsage:  true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			cc, err := loadCLIContext(flags, cmd.OutOrStdout(), cmd.ErrOrStderr())
			if err != nil {
				return err
			}

			cmd.SetContext(context.WithValue(cmd.Context(), cliContextKey{}, cc))

			return nil
		},
	}

	pf := cmd.PersistentFlags()
	pf.StringVar(&flags.ConfigPath, "config", "", "config file path")
	pf.StringVar(&flags.Account, "account", "", "account name from the config file")
	pf.BoolVar(&flags.JSON, "json", false, "output in JSON format")
	pf.BoolVarP(&flags.Verbose, "verbose", "v", false, "log operations")
	pf.BoolVar(&flags.Debug, "debug", false, "log every request")
	pf.BoolVarP(&flags.Quiet, "quiet", "q", false, "suppress informational output")

	cmd.AddCommand(
		newProvidersCmd(),
		newAccountsCmd(),
		newLoginCmd(),
		newLogoutCmd(),
		newLsCmd(),
		newStatCmd(),
		newMkdirCmd(),
		newPutCmd(),
		newRmCmd(),
		newMvCmd(),
		newRenameCmd(),
		newDescribeCmd(),
		newTreeCmd(),
		newPushCmd(),
	)

	return cmd
}

// flagLogLevel maps the verbosity flags to a level; the most verbose wins.
func flagLogLevel(f CLIFlags) string {
	switch {
	case f.Debug:
		return "debug"
	case f.Verbose:
		return "info"
	case f.Quiet:
		return "error"
	default:
		return ""
	}
}

// loadCLIContext resolves the effective configuration from the override
// chain and builds the logger.
func loadCLIContext(flags CLIFlags, out, errOut io.Writer) (*CLIContext, error) {
	cli := config.CLIOverrides{
		ConfigPath: flags.ConfigPath,
		Account:    flags.Account,
		LogLevel:   flagLogLevel(flags),
	}

	resolved, err := config.Resolve(config.ReadEnvOverrides(), cli)
	if err != nil {
		return nil, fmt.Errorf("loading config: %w", err)
	}

	logger := buildLogger(errOut, resolved.Logging.LogLevel)
	logger.Debug("config resolved",
		slog.String("path", resolved.Path),
		slog.Int("accounts", len(resolved.Accounts)),
	)

	return &CLIContext{Flags: flags, Cfg: resolved, Logger: logger, Out: out, Err: errOut}, nil
}

// buildLogger creates a text logger on w at the named level.
func buildLogger(w io.Writer, level string) *slog.Logger {
	var l slog.Level

	switch level {
	case "debug":
		l = slog.LevelDebug
	case "info":
		l = slog.LevelInfo
	case "error":
		l = slog.LevelError
	default:
		l = slog.LevelWarn
	}

	return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: l}))
}

// newHTTPClient builds the client every file system shares. There is no
// overall timeout because uploads may legitimately run long; the connect
// and response-header timeouts bound hung connections.
func newHTTPClient(n *config.NetworkConfig) *http.Client {
	connect, data := n.Timeouts()

	transport := http.DefaultTransport.(*http.Transport).Clone()
	transport.DialContext = (&net.Dialer{Timeout: connect}).DialContext
	transport.TLSHandshakeTimeout = connect
	transport.ResponseHeaderTimeout = data

	return &http.Client{Transport: transport}
}

// exitOnError prints a user-friendly error message to stderr and exits.
func exitOnError(err error) {
	fmt.Fprintf(os.Stderr, "Error: %s\n", describeError(err))
	os.Exit(1)
}
