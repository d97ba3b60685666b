// SPDX-License-Identifier: MPL-2.0

package cmd

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"
	"golang.org/x/oauth2"

	"github.com/notehub/notehub/internal/auth"
	"github.com/notehub/notehub/internal/issue"
)

func newAuthCommand(app *App) *cobra.Command {
	authCmd := &cobra.Command{
		Use:   "auth",
		Short: "Inspect the OAuth provider configuration",
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmd.Help()
		},
	}

	var state string
	urlCmd := &cobra.Command{
		Use:   "url",
		Short: "Print the authorization URL users are redirected to",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return app.run(cmd, func(_ context.Context, rt *runEnv) error {
				a, err := rt.authenticator()
				if err != nil {
					return err
				}
				if state == "" {
					state = oauth2.GenerateVerifier()
				}
				verifier := oauth2.GenerateVerifier()
				fmt.Fprintln(app.stdout, a.OAuth2Config().AuthCodeURL(state, oauth2.S256ChallengeOption(verifier)))
				rt.logger.Debug("authorization request", "state", state, "userdata", a.UserdataURL())
				return nil
			})
		},
	}
	urlCmd.Flags().StringVar(&state, "state", "", "state parameter (random when empty)")
	authCmd.AddCommand(urlCmd)

	authCmd.AddCommand(&cobra.Command{
		Use:   "identity <userdata.json|->",
		Short: "Extract the identity from a userdata document",
		Long: `Read a userdata JSON document (as returned by OAUTH_USERDATA_URL) and
print the identity selected by the username claim, its workspace directory
name and the access decision.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return app.run(cmd, func(_ context.Context, rt *runEnv) error {
				data, err := readInput(cmd.InOrStdin(), args[0])
				if err != nil {
					return err
				}
				id, err := auth.IdentityFromUserdata(data, rt.settings.OAuth.UsernameClaim)
				if err != nil {
					return issue.NewErrorContext().
						WithOperation("extract identity").
						WithResource(args[0]).
						WithKind(issue.KindConfiguration).
						WithSuggestion("Check OAUTH_USERNAME_CLAIM against the provider's userdata fields").
						Wrap(err).
						BuildError()
				}
				policy := rt.settings.AccessPolicy()
				printField(app, "identity", id.String())
				printField(app, "username", id.Sanitized().String())
				printField(app, "allowed", fmt.Sprint(policy.Allowed(id)))
				printField(app, "admin", fmt.Sprint(policy.IsAdmin(id)))
				return nil
			})
		},
	})

	return authCmd
}

func readInput(stdin io.Reader, path string) ([]byte, error) {
	if path == "-" {
		data, err := io.ReadAll(stdin)
		if err != nil {
			return nil, fmt.Errorf("read stdin: %w", err)
		}
		return data, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, issue.WrapWithContext(err, "read userdata", path)
	}
	return data, nil
}
