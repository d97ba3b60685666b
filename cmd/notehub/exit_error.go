// SPDX-License-Identifier: MPL-2.0

package cmd

import (
	"errors"
	"fmt"
	"io/fs"

	"github.com/notehub/notehub/internal/auth"
	"github.com/notehub/notehub/internal/container"
	"github.com/notehub/notehub/internal/issue"
	"github.com/notehub/notehub/internal/session"
	"github.com/notehub/notehub/internal/workspace"
)

// Exit codes returned by notehub.
const (
	ExitOK            = 0
	ExitFailure       = 1
	ExitConfiguration = 2
	ExitNotFound      = 3
	ExitPlatform      = 4
	ExitAccessDenied  = 5
)

// ExitError signals a non-zero exit code without forcing os.Exit in RunE handlers.
type ExitError struct {
	Code int
	Err  error
}

// Error returns the error message for ExitError.
func (e *ExitError) Error() string {
	if e.Err != nil {
		return e.Err.Error()
	}
	return fmt.Sprintf("exit status %d", e.Code)
}

// Unwrap returns the underlying error, if any.
func (e *ExitError) Unwrap() error {
	return e.Err
}

// exitCodeFor maps an error to the process exit code.
func exitCodeFor(err error) int {
	if err == nil {
		return ExitOK
	}
	var exitErr *ExitError
	if errors.As(err, &exitErr) {
		return exitErr.Code
	}
	if errors.Is(err, session.ErrAccessDenied) {
		return ExitAccessDenied
	}
	switch issue.KindOf(err) {
	case issue.KindConfiguration:
		return ExitConfiguration
	case issue.KindExpectedAbsent:
		return ExitNotFound
	case issue.KindPlatform:
		return ExitPlatform
	default:
		return ExitFailure
	}
}

// issueFor returns the catalog entry that explains err, if any.
func issueFor(err error) (issue.Id, bool) {
	var notAvailable *container.ErrEngineNotAvailable
	switch {
	case errors.Is(err, workspace.ErrMissingHostDataRoot):
		return issue.HostDataPathMissingId, true
	case errors.As(err, &notAvailable):
		return issue.ContainerEngineNotFoundId, true
	case errors.Is(err, session.ErrAccessDenied):
		return issue.AccessDeniedId, true
	case errors.Is(err, session.ErrImageNotPresent):
		return issue.SessionImageMissingId, true
	case errors.Is(err, auth.ErrIncompleteConfig):
		return issue.OAuthNotConfiguredId, true
	case errors.Is(err, workspace.ErrOwnershipUnsupported):
		return issue.OwnershipUnsupportedId, true
	case errors.Is(err, fs.ErrPermission):
		return issue.WorkspaceNotWritableId, true
	default:
		return 0, false
	}
}
