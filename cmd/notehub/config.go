// SPDX-License-Identifier: MPL-2.0

package cmd

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/notehub/notehub/internal/config"
)

// newConfigCommand creates the `notehub config` command tree.
func newConfigCommand(app *App) *cobra.Command {
	cfgCmd := &cobra.Command{
		Use:   "config",
		Short: "Inspect notehub configuration",
		Long: `Inspect notehub configuration.

Settings are read from defaults, then an optional CUE file, then environment
variables. The file is the --config flag, else $NOTEHUB_CONFIG, else the first
existing one of:
  - Linux: ~/.config/notehub/config.cue
  - macOS: ~/Library/Application Support/notehub/config.cue
  - /etc/notehub/config.cue`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmd.Help()
		},
	}

	cfgCmd.AddCommand(&cobra.Command{
		Use:   "show",
		Short: "Show the effective configuration",
		RunE: func(cmd *cobra.Command, args []string) error {
			return app.run(cmd, func(_ context.Context, rt *runEnv) error {
				showConfig(app, rt.settings)
				return nil
			})
		},
	})

	cfgCmd.AddCommand(&cobra.Command{
		Use:   "dump",
		Short: "Output the effective configuration as CUE",
		RunE: func(cmd *cobra.Command, args []string) error {
			return app.run(cmd, func(_ context.Context, rt *runEnv) error {
				fmt.Fprint(app.stdout, config.GenerateCUE(rt.settings))
				return nil
			})
		},
	})

	cfgCmd.AddCommand(&cobra.Command{
		Use:   "path",
		Short: "Show the configuration file path",
		RunE: func(cmd *cobra.Command, args []string) error {
			showConfigPath(app)
			return nil
		},
	})

	return cfgCmd
}

func showConfig(app *App, s *config.Settings) {
	fmt.Fprintln(app.stdout, TitleStyle.Render("Current Configuration"))
	fmt.Fprintln(app.stdout)

	path, _ := config.ResolvePath(app.loadOptions(), app.environment())
	if path == "" {
		path = SubtitleStyle.Render("(using defaults)")
	}
	fmt.Fprintf(app.stdout, "%s: %s\n\n", KeyStyle.Render("Config file"), path)

	section := func(name string, fields ...string) {
		fmt.Fprintf(app.stdout, "%s:\n", KeyStyle.Render(name))
		for i := 0; i+1 < len(fields); i += 2 {
			value := fields[i+1]
			if value == "" {
				value = SubtitleStyle.Render("(not set)")
			} else {
				value = SuccessStyle.Render(value)
			}
			fmt.Fprintf(app.stdout, "  %s: %s\n", fields[i], value)
		}
		fmt.Fprintln(app.stdout)
	}

	secret := ""
	if s.OAuth.ClientSecret != "" {
		secret = config.RedactedSecret
	}

	section("general",
		"container_engine", s.ContainerEngine.String(),
		"log_level", s.LogLevel,
		"otel_endpoint", s.OTelEndpoint,
	)
	section("hub",
		"ip", s.Hub.IP,
		"port", strconv.Itoa(s.Hub.Port),
		"connect_url", s.Hub.ConnectURL,
		"bind_url", s.Hub.BindURL,
	)
	section("oauth",
		"client_id", s.OAuth.ClientID,
		"client_secret", secret,
		"authorize_url", s.OAuth.AuthorizeURL,
		"token_url", s.OAuth.TokenURL,
		"userdata_url", s.OAuth.UserdataURL,
		"username_claim", s.OAuth.UsernameClaim,
	)
	section("access",
		"allowed_users", strings.Join(s.Access.AllowedUsers, ", "),
		"admin_users", strings.Join(s.Access.AdminUsers, ", "),
	)
	section("workspace",
		"data_root", s.Workspace.DataRoot,
		"template_root", s.Workspace.TemplateRoot,
		"host_data_root", s.Workspace.HostDataRoot.String(),
		"mount_target", s.Workspace.MountTarget.String(),
		"owner", strconv.Itoa(s.Workspace.UID)+":"+strconv.Itoa(s.Workspace.GID),
		"seed_policy", string(s.Workspace.SeedPolicy),
		"copy_failure_policy", string(s.Workspace.CopyFailurePolicy),
	)
	section("session",
		"image", s.Session.Image.String(),
		"name_template", s.Session.NameTemplate,
		"network", s.Session.Network.String(),
		"pull_policy", string(s.Session.PullPolicy),
		"remove", strconv.FormatBool(s.Session.Remove),
	)
}

func showConfigPath(app *App) {
	opts := app.loadOptions()
	if path, explicit := config.ResolvePath(opts, app.environment()); explicit || path != "" {
		fmt.Fprintf(app.stdout, "Config file: %s\n", path)
		return
	}
	fmt.Fprintln(app.stdout, "Config file: (none found, using defaults)")
	fmt.Fprintln(app.stdout, "Searched:")
	for _, p := range config.SearchPaths(opts) {
		fmt.Fprintf(app.stdout, "  %s\n", p)
	}
}
