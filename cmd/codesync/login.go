package main

import (
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"codesync/internal/api"
	"codesync/internal/session"
)

func newLoginCmd(opts *rootOptions) *cobra.Command {
	var (
		token        string
		refreshToken string
		expiresIn    int64
	)

	cmd := &cobra.Command{
		Use:   "login",
		Short: "Store an API token for the remote service",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := opts.loadConfig()
			if err != nil {
				return err
			}

			client := api.NewClient(cfg.APIURL)

			// Best effort: a rejected token fails the login, an
			// unreachable service does not.
			if err := client.Validate(cmd.Context(), token); err != nil {
				var authErr *api.AuthError
				if errors.As(err, &authErr) {
					return fmt.Errorf("token rejected by %s: %w", cfg.APIURL, err)
				}
				fmt.Fprintf(cmd.ErrOrStderr(), "warning: could not validate token against %s: %v\n", cfg.APIURL, err)
			}

			cred := session.Credential{
				AccessToken:  token,
				RefreshToken: refreshToken,
			}
			if expiresIn > 0 {
				cred.ExpiresAt = time.Now().Add(time.Duration(expiresIn) * time.Second)
			}

			sessions := session.NewManager(cfg.StateDir, client)
			if err := sessions.Save(cred); err != nil {
				return err
			}

			if opts.json {
				return writeJSON(map[string]any{"logged_in": true, "session_file": sessions.Path()})
			}
			return writePlain("logged in, session stored at %s\n", sessions.Path())
		},
	}

	cmd.Flags().StringVar(&token, "token", "", "API access token")
	cmd.Flags().StringVar(&refreshToken, "refresh-token", "", "refresh token for automatic renewal")
	cmd.Flags().Int64Var(&expiresIn, "expires-in", 0, "access token lifetime in seconds")
	_ = cmd.MarkFlagRequired("token")

	return cmd
}
