// SPDX-License-Identifier: MPL-2.0

package cmd

import (
	"context"
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/notehub/notehub/internal/identity"
)

func newWorkspaceCommand(app *App) *cobra.Command {
	wsCmd := &cobra.Command{
		Use:   "workspace",
		Short: "Inspect user workspaces",
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmd.Help()
		},
	}

	wsCmd.AddCommand(&cobra.Command{
		Use:   "status <identity>",
		Short: "Show a user's workspace on disk without changing it",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return app.run(cmd, func(_ context.Context, rt *runEnv) error {
				return workspaceStatus(app, rt, identity.Normalize(args[0]))
			})
		},
	})

	return wsCmd
}

func workspaceStatus(app *App, rt *runEnv, id identity.UserIdentity) error {
	prov, err := rt.provisioner(app.Chown)
	if err != nil {
		return err
	}
	st, err := prov.Inspect(id)
	if err != nil {
		return err
	}

	fmt.Fprintln(app.stdout, TitleStyle.Render("Workspace for "+st.Identity.String()))
	printField(app, "username", st.Username.String())
	printField(app, "path", st.Path)

	switch {
	case !st.Exists:
		printField(app, "state", SubtitleStyle.Render("absent (seeded on next start)"))
	case st.New():
		printField(app, "state", SubtitleStyle.Render("empty (seeded on next start)"))
	default:
		printField(app, "state", SuccessStyle.Render("provisioned ("+strconv.Itoa(st.Entries)+" entries)"))
	}

	if st.HostPath != "" {
		printField(app, "host path", st.HostPath.String())
	} else {
		printField(app, "host path", WarningStyle.Render("HOST_DATA_PATH not set"))
	}

	template := st.Template
	if !st.HasSource {
		template += " " + WarningStyle.Render("(missing)")
	}
	printField(app, "template", template)
	return nil
}
