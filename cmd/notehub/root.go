// SPDX-License-Identifier: MPL-2.0

package cmd

import (
	"context"
	"fmt"
	"os"

	"github.com/charmbracelet/fang"
	"github.com/spf13/cobra"
)

var (
	// Version is the semantic version (set via -ldflags).
	Version = "dev"
	// Commit is the git commit hash (set via -ldflags).
	Commit = "unknown"
	// BuildDate is the build timestamp (set via -ldflags).
	BuildDate = "unknown"
)

// NewRootCommand builds the notehub command tree around app.
func NewRootCommand(app *App) *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "notehub",
		Short: "Per-user workspaces and sessions for a multi-user notebook hub",
		Long: TitleStyle.Render("notehub") + SubtitleStyle.Render(" - per-user notebook workspaces") + `

notehub prepares a persistent workspace for each hub user before their
notebook container starts: it creates the user's directory under the data
root, seeds it from the default template on first login, hands ownership to
the notebook user and returns the bind mount for the session container.

` + SubtitleStyle.Render("Examples:") + `
  notehub provision alice@example.com        Prepare a workspace and print the mount
  notehub spawn alice@example.com            Start a session container
  notehub workspace status alice@example.com Show the workspace on disk
  notehub config show                        Show the effective configuration`,
		SilenceUsage: true,
	}

	rootCmd.SetOut(app.stdout)
	rootCmd.SetErr(app.stderr)

	rootCmd.PersistentFlags().BoolVarP(&app.verbose, "verbose", "v", false, "enable debug logging and full error chains")
	rootCmd.PersistentFlags().StringVar(&app.configPath, "config", "", "settings file (default is $XDG_CONFIG_HOME/notehub/config.cue)")

	rootCmd.AddCommand(newProvisionCommand(app))
	rootCmd.AddCommand(newSpawnCommand(app))
	rootCmd.AddCommand(newStopCommand(app))
	rootCmd.AddCommand(newWorkspaceCommand(app))
	rootCmd.AddCommand(newSanitizeCommand(app))
	rootCmd.AddCommand(newAccessCommand(app))
	rootCmd.AddCommand(newAuthCommand(app))
	rootCmd.AddCommand(newConfigCommand(app))

	return rootCmd
}

// getVersionString returns a formatted version string for display.
func getVersionString() string {
	if Version == "dev" {
		return "dev (built from source)"
	}
	return fmt.Sprintf("%s (commit: %s, built: %s)", Version, Commit, BuildDate)
}

// Execute runs the CLI and exits with the code derived from the returned error.
// This is called by main.main().
func Execute() {
	app := NewApp(Dependencies{})
	if err := fang.Execute(
		context.Background(),
		NewRootCommand(app),
		fang.WithVersion(getVersionString()),
		fang.WithNotifySignal(os.Interrupt),
	); err != nil {
		os.Exit(exitCodeFor(err))
	}
}
