package lifecycle

import (
	"errors"
	"fmt"
)

// ErrNotAuthorized is a deliberately generic denial. Management
// operations return it both for missing permission and for unknown
// server ids, so callers cannot probe which servers exist.
var ErrNotAuthorized = errors.New("you are not allowed to manage this server")

// ValidationError reports a rejected create input. It is returned before
// any side effect; resubmitting with corrected input is always safe.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

// PathConflictError reports that the deployment directory for a server
// name already exists. The record stays persisted; no cleanup is done.
type PathConflictError struct {
	Path string
}

func (e *PathConflictError) Error() string {
	return fmt.Sprintf("deployment path already exists: %s", e.Path)
}
