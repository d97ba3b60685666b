// SPDX-License-Identifier: MPL-2.0

package cmd

import (
	"context"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/notehub/notehub/internal/identity"
)

func newAccessCommand(app *App) *cobra.Command {
	return &cobra.Command{
		Use:   "access [identity]",
		Short: "Check whether a user may start sessions",
		Long: `Report the access decision for an identity. Without an argument the
allow and admin lists are printed.

Exits with status 5 when the identity is denied.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return app.run(cmd, func(_ context.Context, rt *runEnv) error {
				policy := rt.settings.AccessPolicy()
				if len(args) == 0 {
					allowed := strings.Join(policy.AllowedUsers(), ", ")
					if policy.Open() {
						allowed = SubtitleStyle.Render("(everyone)")
					}
					printField(app, "allowed", allowed)
					printField(app, "admins", strings.Join(policy.AdminUsers(), ", "))
					return nil
				}

				id := identity.Normalize(args[0])
				switch {
				case policy.IsAdmin(id):
					fmt.Fprintf(app.stdout, "%s %s is an admin\n", SuccessStyle.Render("✓"), id)
				case policy.Allowed(id):
					fmt.Fprintf(app.stdout, "%s %s is allowed\n", SuccessStyle.Render("✓"), id)
				default:
					fmt.Fprintf(app.stdout, "%s %s is not allowed\n", ErrorStyle.Render("✗"), id)
					return &ExitError{Code: ExitAccessDenied}
				}
				return nil
			})
		},
	}
}
