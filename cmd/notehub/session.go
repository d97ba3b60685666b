// SPDX-License-Identifier: MPL-2.0

package cmd

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/notehub/notehub/internal/identity"
)

func newSpawnCommand(app *App) *cobra.Command {
	return &cobra.Command{
		Use:   "spawn <identity>",
		Short: "Start a user's notebook session container",
		Long: `Start a session the way the hub does on login.

The access policy is checked, the workspace is provisioned, and the session
container is started (or an existing one reused) with the workspace bind
mounted at the notebook directory.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return app.run(cmd, func(ctx context.Context, rt *runEnv) error {
				return spawn(ctx, app, rt, identity.Normalize(args[0]))
			})
		},
	}
}

func newStopCommand(app *App) *cobra.Command {
	return &cobra.Command{
		Use:   "stop <identity>",
		Short: "Stop a user's notebook session container",
		Long: `Stop a user's session container. The container is removed as well when
session.remove is set. A missing container is not an error.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return app.run(cmd, func(ctx context.Context, rt *runEnv) error {
				sp, err := rt.spawner(app)
				if err != nil {
					return err
				}
				id := identity.Normalize(args[0])
				if err := sp.Stop(ctx, id); err != nil {
					return err
				}
				fmt.Fprintf(app.stdout, "%s Stopped session for %s\n", SuccessStyle.Render("✓"), id)
				return nil
			})
		},
	}
}

func spawn(ctx context.Context, app *App, rt *runEnv, id identity.UserIdentity) error {
	sp, err := rt.spawner(app)
	if err != nil {
		return err
	}

	sess, err := sp.Spawn(ctx, id)
	if err != nil {
		return err
	}

	verb := "Started"
	if sess.Reused {
		verb = "Reused"
	}
	fmt.Fprintf(app.stdout, "%s %s session for %s\n", SuccessStyle.Render("✓"), verb, sess.Identity)
	printField(app, "container", sess.ContainerID.String())
	printField(app, "url", sess.URL(sp.Config().Port))
	if sess.Workspace.HostPath != "" {
		printField(app, "workspace", sess.Workspace.String())
	}
	return nil
}

func printField(app *App, key, value string) {
	fmt.Fprintf(app.stdout, "  %s: %s\n", KeyStyle.Render(key), value)
}
