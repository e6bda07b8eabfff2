package main

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/spf13/afero"
	"github.com/spf13/cobra"

	"github.com/onsync/onsync/internal/app"
)

// cli carries the process environment and the persistent flags shared by
// every subcommand.
type cli struct {
	fs         afero.Fs
	in         io.Reader
	out        io.Writer
	errOut     io.Writer
	loadConfig func() (*app.Config, error)

	namespace   string
	apiURL      string
	jsonOutput  bool
	verbose     bool
	showVersion bool
}

func newCLI() *cli {
	return &cli{
		fs:         afero.NewOsFs(),
		in:         os.Stdin,
		out:        os.Stdout,
		errOut:     os.Stderr,
		loadConfig: app.LoadConfig,
	}
}

func newRootCmd(c *cli) *cobra.Command {
	root := &cobra.Command{
		Use:           "onsync",
		Short:         "Onsync access-control client",
		SilenceUsage:  true,
		SilenceErrors: true,
		Long: `onsync keeps a signed-in session for the Onsync backend and decides which
pages the current user may open.

Configuration comes from the environment (API_BASE_URL, SESSION_BACKEND,
SESSION_DIR, SESSION_NAMESPACE, REDIS_ADDR, CATALOG_PATH, FALLBACK_PATH, ...).
Sessions are stored per namespace under ~/.onsync unless SESSION_DIR is set.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if c.showVersion {
				fmt.Fprintf(c.out, "onsync %s\n", version)
				return nil
			}
			return cmd.Help()
		},
	}
	root.SetIn(c.in)
	root.SetOut(c.out)
	root.SetErr(c.errOut)

	root.Flags().BoolVarP(&c.showVersion, "version", "v", false, "show version information")
	root.PersistentFlags().StringVarP(&c.namespace, "namespace", "n", "", "session namespace (overrides SESSION_NAMESPACE)")
	root.PersistentFlags().StringVar(&c.apiURL, "api", "", "backend base URL (overrides API_BASE_URL)")
	root.PersistentFlags().BoolVar(&c.jsonOutput, "json", false, "print machine-readable JSON")
	root.PersistentFlags().BoolVar(&c.verbose, "verbose", false, "log debug output to stderr")

	root.AddCommand(
		newServeCmd(c),
		newLoginCmd(c),
		newSignupCmd(c),
		newLogoutCmd(c),
		newWhoamiCmd(c),
		newRefreshCmd(c),
		newNavCmd(c),
		newCanCmd(c),
	)
	return root
}

// config loads the environment configuration and applies flag overrides.
func (c *cli) config() (*app.Config, error) {
	cfg, err := c.loadConfig()
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	if c.namespace != "" {
		cfg.SessionNamespace = c.namespace
	}
	if c.apiURL != "" {
		cfg.APIBaseURL = c.apiURL
	}
	return cfg, nil
}

func (c *cli) logger(cfg *app.Config) *slog.Logger {
	if c.verbose {
		return app.NewLoggerTo(cfg, c.errOut)
	}
	return slog.New(slog.NewTextHandler(c.errOut, &slog.HandlerOptions{Level: slog.LevelWarn}))
}

// services bootstraps the runtime for one command. Callers close it.
func (c *cli) services(ctx context.Context) (*app.Services, error) {
	cfg, err := c.config()
	if err != nil {
		return nil, err
	}
	return app.Bootstrap(ctx, cfg, c.fs, c.logger(cfg))
}

func (c *cli) printJSON(v any) error {
	enc := json.NewEncoder(c.out)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// readSecret reads one line from stdin when a secret flag was left empty.
func (c *cli) readSecret(prompt string) (string, error) {
	fmt.Fprint(c.errOut, prompt)
	line, err := bufio.NewReader(c.in).ReadString('\n')
	if err != nil && err != io.EOF {
		return "", fmt.Errorf("read %s: %w", strings.TrimSuffix(strings.ToLower(prompt), ": "), err)
	}
	return strings.TrimRight(line, "\r\n"), nil
}
