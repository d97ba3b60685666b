// SPDX-License-Identifier: MPL-2.0

package cmd

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/notehub/notehub/internal/identity"
	"github.com/notehub/notehub/internal/issue"
	"github.com/notehub/notehub/internal/workspace"
)

func newProvisionCommand(app *App) *cobra.Command {
	return &cobra.Command{
		Use:   "provision <identity>",
		Short: "Prepare a user's workspace and print its bind mount",
		Long: `Run the pre-start hook for a user without starting a container.

The workspace directory is created under the data root, seeded from the
default template when it is new and handed to the notebook user. The bind
mount the session container would receive is printed as host:container.

HOST_DATA_PATH must be set; nothing is created without it.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return app.run(cmd, func(ctx context.Context, rt *runEnv) error {
				return provision(ctx, app, rt, identity.Normalize(args[0]))
			})
		},
	}
}

func provision(ctx context.Context, app *App, rt *runEnv, id identity.UserIdentity) error {
	prov, err := rt.provisioner(app.Chown)
	if err != nil {
		return err
	}

	// The template is read only when this pass seeds the workspace.
	before, inspectErr := prov.Inspect(id)
	seeds := inspectErr == nil && (before.New() || prov.Config().SeedPolicy == workspace.SeedAlways)

	mount, err := prov.BeforeSessionStart(ctx, id)
	if err != nil {
		return err
	}

	if seeds && !before.HasSource {
		fmt.Fprintln(app.stderr, WarningStyle.Render("Warning: ")+"template "+before.Template+" not found, workspace left empty")
		if app.verbose {
			app.renderIssue(issue.TemplateMissingId)
		}
	}

	fmt.Fprintln(app.stdout, mount.String())
	return nil
}
