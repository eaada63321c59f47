// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package plugin

import (
	"fmt"

	"github.com/samber/oops"
)

// Error codes for registry and dispatch failures.
const (
	CodeLoadFailed    = "LOAD_FAILED"
	CodeResolveFailed = "RESOLVE_FAILED"
	CodeInvalidPlugin = "INVALID_PLUGIN"
	CodeNotFound      = "NOT_FOUND"
	CodeHandlerFailed = "HANDLER_FAILED"
	CodeHandlerPanic  = "HANDLER_PANIC"
)

// NotFoundMessage is the message reported for lookups of unknown plugins.
const NotFoundMessage = "Invalid plugin name"

// LoadError reports why a source could not be loaded.
// Cause is an oops error carrying the failing stage.
type LoadError struct {
	SourceID string
	Cause    error
}

func (e *LoadError) Error() string {
	return fmt.Sprintf("unable to load %s: %v", e.SourceID, e.Cause)
}

func (e *LoadError) Unwrap() error {
	return e.Cause
}

func newLoadError(sourceID, stage string, cause error) *LoadError {
	return &LoadError{
		SourceID: sourceID,
		Cause: oops.Code(CodeLoadFailed).
			In("plugin").
			With("source", sourceID).
			With("stage", stage).
			Wrap(cause),
	}
}

// ErrNotFound creates the error returned for unknown plugin names.
func ErrNotFound(name string) error {
	return oops.Code(CodeNotFound).
		In("plugin").
		With("plugin", name).
		New(NotFoundMessage)
}
