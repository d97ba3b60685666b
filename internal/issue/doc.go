// SPDX-License-Identifier: MPL-2.0

// Package issue provides actionable error handling with user-friendly messages.
//
// ActionableError carries the failed operation, the resource involved, remediation
// suggestions and a Kind that classifies the failure (configuration, expected-absent
// resource, platform limitation, unexpected I/O). The Issue catalog holds Markdown
// guidance for the failures operators hit most often, rendered with glamour.
package issue
