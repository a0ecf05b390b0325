package main

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"fatture/internal/api"
	"fatture/internal/session"
)

func newLoginCmd(opts *rootOptions) *cobra.Command {
	var (
		email         string
		passwordStdin bool
	)
	cmd := &cobra.Command{
		Use:   "login",
		Short: "Sign in and store the API token",
		Example: `  # Password from the environment
  FATTURE_PASSWORD=... fatturectl login --email me@example.com

  # Password piped on stdin
  pass show fatture | fatturectl login --email me@example.com --password-stdin`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			password, err := readPassword(cmd.InOrStdin(), passwordStdin)
			if err != nil {
				return err
			}

			app, err := opts.setup(cmd.Context())
			if err != nil {
				return err
			}
			defer app.Close()

			token, err := app.API.Authenticate(cmd.Context(), api.Credentials{Email: email, Password: password})
			if err != nil {
				return fmt.Errorf("login: %w", err)
			}
			sess, err := session.FromToken(token)
			if err != nil {
				return err
			}
			if err := opts.saveToken(token); err != nil {
				return err
			}

			fmt.Fprintf(cmd.OutOrStdout(), "Logged in as %s", displayName(sess))
			if !sess.ExpiresAt.IsZero() {
				fmt.Fprintf(cmd.OutOrStdout(), " until %s", sess.ExpiresAt.Local().Format(time.DateTime))
			}
			fmt.Fprintln(cmd.OutOrStdout())
			return nil
		},
	}
	cmd.Flags().StringVar(&email, "email", "", "account email")
	cmd.Flags().BoolVar(&passwordStdin, "password-stdin", false, "read the password from stdin")
	_ = cmd.MarkFlagRequired("email")
	return cmd
}

func readPassword(in io.Reader, fromStdin bool) (string, error) {
	if !fromStdin {
		if p := os.Getenv("FATTURE_PASSWORD"); p != "" {
			return p, nil
		}
		return "", errors.New("no password: set FATTURE_PASSWORD or use --password-stdin")
	}
	line, err := bufio.NewReader(in).ReadString('\n')
	if err != nil && !errors.Is(err, io.EOF) {
		return "", fmt.Errorf("read password: %w", err)
	}
	line = strings.TrimRight(line, "\r\n")
	if line == "" {
		return "", errors.New("empty password on stdin")
	}
	return line, nil
}

func displayName(s session.AuthSession) string {
	if s.Username != "" {
		return s.Username
	}
	return s.UserID
}

func newLogoutCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "logout",
		Short: "Forget the stored API token",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			err := os.Remove(opts.tokenFile)
			if err != nil && !errors.Is(err, os.ErrNotExist) {
				return fmt.Errorf("remove token: %w", err)
			}
			fmt.Fprintln(cmd.OutOrStdout(), "Logged out")
			return nil
		},
	}
}

func newWhoamiCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "whoami",
		Short: "Show the signed-in user",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			sess, err := opts.session()
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s (%s)\n", displayName(sess), sess.UserID)
			return nil
		},
	}
}
