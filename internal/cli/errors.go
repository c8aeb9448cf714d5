// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package cli

import (
	"errors"
	"fmt"

	"github.com/Frankambaa/TaskMaster/internal/apiclient"
	"github.com/Frankambaa/TaskMaster/internal/config"
	"github.com/Frankambaa/TaskMaster/internal/security"
	"github.com/Frankambaa/TaskMaster/internal/storage"
)

// =============================================================================
// EXIT CODES
// =============================================================================

const (
	ExitSuccess       = 0
	ExitError         = 1
	ExitUsageError    = 2
	ExitConfigError   = 3
	ExitNetworkError  = 4
	ExitNotFoundError = 5
)

// =============================================================================
// ERROR TYPES
// =============================================================================

// CommandError is a CLI command failure with context.
type CommandError struct {
	Command string // e.g. "transcript"
	Action  string // e.g. "show"
	Reason  string
	Err     error
}

func (e *CommandError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s %s failed: %s: %v", e.Command, e.Action, e.Reason, e.Err)
	}
	return fmt.Sprintf("%s %s failed: %s", e.Command, e.Action, e.Reason)
}

func (e *CommandError) Unwrap() error {
	return e.Err
}

// NotFoundError is a lookup that matched nothing.
type NotFoundError struct {
	Resource string
	ID       string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s not found: %s", e.Resource, e.ID)
}

// ExitCode maps err to a process exit code.
func ExitCode(err error) int {
	if err == nil {
		return ExitSuccess
	}

	var (
		notFound   *NotFoundError
		cfgErr     *security.ConfigError
		cfgInvalid config.ValidateErrors
		netErr     *apiclient.NetworkError
	)
	switch {
	case errors.As(err, &notFound), errors.Is(err, storage.ErrSessionNotFound):
		return ExitNotFoundError
	case errors.As(err, &cfgErr), errors.As(err, &cfgInvalid):
		return ExitConfigError
	case errors.As(err, &netErr), errors.Is(err, apiclient.ErrTimeout):
		return ExitNetworkError
	default:
		return ExitError
	}
}
