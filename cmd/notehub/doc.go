// SPDX-License-Identifier: MPL-2.0

// Package cmd contains the notehub command line interface.
//
// Every command is built by a newXCommand(app) constructor from an App, the
// composition root that loads settings once and hands them to the
// provisioner, spawner and authenticator factories.
package cmd
