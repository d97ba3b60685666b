// SPDX-License-Identifier: MPL-2.0

// notehub provisions per-user workspaces and session containers for a
// multi-user notebook hub.
package main

import "github.com/notehub/notehub/cmd/notehub"

func main() {
	cmd.Execute()
}
