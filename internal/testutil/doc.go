// SPDX-License-Identifier: MPL-2.0

// Package testutil provides helper functions for tests that handle errors
// appropriately, reducing boilerplate and ensuring consistent error handling.
//
// Common helpers build and read small directory trees (WriteTree, ReadTree,
// MustSymlink, MustChtimes) and throttle container-backed tests
// (ContainerSemaphore).
package testutil
