// SPDX-License-Identifier: MPL-2.0

package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/notehub/notehub/internal/identity"
)

// newSanitizeCommand prints the directory name used for an identity. It does
// not load settings.
func newSanitizeCommand(app *App) *cobra.Command {
	return &cobra.Command{
		Use:   "sanitize <identity>...",
		Short: "Print the workspace directory name for identities",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			for _, arg := range args {
				id := identity.Normalize(arg)
				if err := id.Validate(); err != nil {
					return &ExitError{Code: ExitFailure, Err: err}
				}
				fmt.Fprintln(app.stdout, id.Sanitized())
			}
			return nil
		},
	}
}
