// SPDX-License-Identifier: MPL-2.0

// Package config builds the hub-wide Settings once at startup.
//
// Sources, lowest to highest precedence:
//
//  1. built-in defaults
//  2. an optional CUE settings file validated against the embedded #Settings
//     schema (config_schema.cue) and merged through Viper
//  3. environment variables, using the hub container's established
//     variable names (OAUTH_CLIENT_ID, HOST_DATA_PATH, ...)
//
// The resulting Settings value is passed by reference to the authenticator,
// spawner and provisioner factories. Nothing in this package is global.
package config
