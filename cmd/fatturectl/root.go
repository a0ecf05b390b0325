package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"fatture/internal/cli"
	"fatture/internal/config"
	applog "fatture/internal/log"
	"fatture/internal/session"
)

var version = "dev"

// rootOptions are the persistent flags every subcommand sees.
type rootOptions struct {
	tokenFile string
	logLevel  string
}

var errNotLoggedIn = errors.New("not logged in: run 'fatturectl login' first")

func newRootCmd() *cobra.Command {
	opts := &rootOptions{}

	root := &cobra.Command{
		Use:   "fatturectl",
		Short: "Command-line client for the fatture invoicing API",
		Long: `fatturectl signs in to the invoicing API and works with your invoices
from a terminal. It reads the same environment as the web server
(API_BASE_URL, TAX_DEDUCTION_MODE, ...), loading .env when present.

The bearer token obtained by 'login' is stored in --token-file and
FATTURE_TOKEN overrides it.`,
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&opts.tokenFile, "token-file", defaultTokenFile(), "file holding the API token")
	root.PersistentFlags().StringVar(&opts.logLevel, "log-level", "warn", "log level (debug, info, warn, error)")

	root.AddCommand(
		newLoginCmd(opts),
		newLogoutCmd(opts),
		newWhoamiCmd(opts),
		newDashboardCmd(opts),
		newInvoicesCmd(opts),
		newExportCmd(opts),
		newCustomersCmd(opts),
		newSuppliersCmd(opts),
		newLineItemsCmd(opts),
		newExpensesCmd(opts),
		newMigrateCmd(opts),
	)
	return root
}

func defaultTokenFile() string {
	dir, err := os.UserConfigDir()
	if err != nil {
		return ".fatture-token"
	}
	return filepath.Join(dir, "fatture", "token")
}

// setup loads the configuration and builds an App without local stores.
func (o *rootOptions) setup(ctx context.Context) (*cli.App, error) {
	cfg, err := cli.LoadAndValidateConfig()
	if err != nil {
		return nil, err
	}
	logger := cli.SetupLogger(os.Stderr, o.logLevel, applog.ComponentCLI)
	return cli.Bootstrap(ctx, cfg, logger, cli.Options{NoStores: true})
}

// session rebuilds the caller's session from the stored token.
func (o *rootOptions) session() (session.AuthSession, error) {
	token := strings.TrimSpace(os.Getenv("FATTURE_TOKEN"))
	if token == "" {
		b, err := os.ReadFile(o.tokenFile)
		if errors.Is(err, os.ErrNotExist) {
			return session.AuthSession{}, errNotLoggedIn
		}
		if err != nil {
			return session.AuthSession{}, fmt.Errorf("read token: %w", err)
		}
		token = strings.TrimSpace(string(b))
	}
	if token == "" {
		return session.AuthSession{}, errNotLoggedIn
	}

	sess, err := session.FromToken(token)
	if err != nil {
		return session.AuthSession{}, err
	}
	if sess.Expired(time.Now()) {
		return session.AuthSession{}, fmt.Errorf("%w: run 'fatturectl login' again", session.ErrExpired)
	}
	return sess, nil
}

func (o *rootOptions) saveToken(token string) error {
	if err := os.MkdirAll(filepath.Dir(o.tokenFile), 0o700); err != nil {
		return fmt.Errorf("create token dir: %w", err)
	}
	if err := os.WriteFile(o.tokenFile, []byte(token+"\n"), 0o600); err != nil {
		return fmt.Errorf("write token: %w", err)
	}
	return nil
}

// loadConfigOnly is used by commands that need no API, like migrate.
func loadConfigOnly() (*config.Config, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	return cfg, nil
}
