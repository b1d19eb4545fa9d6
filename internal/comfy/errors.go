package comfy

import (
	"errors"
	"fmt"
	"time"
)

// engineExitedError signals that the managed ComfyUI process terminated
// before (or while) serving requests. The message carries the stderr tail
// captured from the child so callers can surface the actual Python failure.
type engineExitedError struct{ tail string }

func (e engineExitedError) Error() string { return "comfyui process died: " + e.tail }

// IsEngineExited reports whether err indicates the managed process terminated.
func IsEngineExited(err error) bool {
	var t engineExitedError
	return errors.As(err, &t)
}

// startTimeoutError signals that the engine never answered its readiness
// probe within the configured attempt budget.
type startTimeoutError struct{}

func (startTimeoutError) Error() string {
	return "comfyui api server failed to start within timeout"
}

// IsStartupTimeout reports whether err indicates readiness probing gave up.
func IsStartupTimeout(err error) bool {
	var t startTimeoutError
	return errors.As(err, &t)
}

// jobTimeoutError signals that a submitted prompt did not reach a terminal
// history entry within the polling budget.
type jobTimeoutError struct {
	promptID string
	budget   time.Duration
}

func (e jobTimeoutError) Error() string {
	return fmt.Sprintf("workflow %s did not complete within %s", e.promptID, e.budget)
}

// IsJobTimeout reports whether err indicates prompt-polling gave up.
func IsJobTimeout(err error) bool {
	var t jobTimeoutError
	return errors.As(err, &t)
}

// transportError wraps a failure talking to the engine API (connect, send,
// decode, unexpected status). op names the call that failed.
type transportError struct {
	op  string
	err error
}

func (e transportError) Error() string { return e.op + ": " + e.err.Error() }

func (e transportError) Unwrap() error { return e.err }

// IsTransport reports whether err came from the engine HTTP exchange itself.
func IsTransport(err error) bool {
	var t transportError
	return errors.As(err, &t)
}
