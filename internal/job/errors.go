package job

import (
	"errors"

	"comfyd/internal/comfy"
	"comfyd/internal/workflow"
)

// Kind buckets a failure per the error taxonomy so transports can map
// it to a status code without string matching.
type Kind int

const (
	KindInternal Kind = iota
	KindConfig
	KindTransport
	KindTimeout
	KindBusy
)

// busyError signals the single job slot stayed occupied past the
// admission wait.
type busyError struct{}

func (busyError) Error() string { return "busy: a job is already running" }

// IsBusy reports whether err indicates admission backpressure.
func IsBusy(err error) bool {
	var t busyError
	return errors.As(err, &t)
}

// validationError marks requests rejected before any work started.
type validationError struct{ msg string }

func (e validationError) Error() string { return e.msg }

func errValidation(msg string) error { return validationError{msg: msg} }

// IsValidation reports whether err is a request-shape rejection.
func IsValidation(err error) bool {
	var t validationError
	return errors.As(err, &t)
}

// Classify buckets err by the typed errors the lower layers return.
// Anything unrecognized is internal.
func Classify(err error) Kind {
	switch {
	case IsBusy(err):
		return KindBusy
	case IsValidation(err),
		workflow.IsUnknownWorkflow(err),
		workflow.IsDefinitionNotFound(err),
		workflow.IsInvalidNode(err):
		return KindConfig
	case workflow.IsFetchFailed(err),
		comfy.IsTransport(err),
		comfy.IsEngineExited(err):
		return KindTransport
	case comfy.IsStartupTimeout(err),
		comfy.IsJobTimeout(err):
		return KindTimeout
	}
	return KindInternal
}
