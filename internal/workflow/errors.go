package workflow

import (
	"errors"
	"fmt"
	"strings"
)

// unknownWorkflowError signals a workflow identifier outside the
// registry, for 400 mapping.
type unknownWorkflowError struct {
	name      string
	available []string
}

func (e unknownWorkflowError) Error() string {
	return fmt.Sprintf("unknown workflow_type: %s, available: %s", e.name, strings.Join(e.available, ", "))
}

// IsUnknownWorkflow reports whether err names a workflow the registry
// does not know.
func IsUnknownWorkflow(err error) bool {
	var e unknownWorkflowError
	return errors.As(err, &e)
}

// definitionNotFoundError signals a registered workflow whose backing
// file is missing on disk.
type definitionNotFoundError struct{ path string }

func (e definitionNotFoundError) Error() string { return "workflow file not found: " + e.path }

// IsDefinitionNotFound reports whether err indicates a missing
// definition file.
func IsDefinitionNotFound(err error) bool {
	var e definitionNotFoundError
	return errors.As(err, &e)
}

// invalidNodeError signals a node whose shape does not satisfy its kind,
// caught before any mutation.
type invalidNodeError struct{ id, reason string }

func (e invalidNodeError) Error() string { return "node " + e.id + ": " + e.reason }

// IsInvalidNode reports whether err indicates a malformed graph node.
func IsInvalidNode(err error) bool {
	var e invalidNodeError
	return errors.As(err, &e)
}

// fetchError wraps a failed remote asset download.
type fetchError struct {
	url string
	err error
}

func (e fetchError) Error() string { return fmt.Sprintf("fetch asset %s: %v", e.url, e.err) }

func (e fetchError) Unwrap() error { return e.err }

// IsFetchFailed reports whether err came from an asset download.
func IsFetchFailed(err error) bool {
	var e fetchError
	return errors.As(err, &e)
}
