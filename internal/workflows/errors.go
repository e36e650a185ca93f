package workflows

import (
	"errors"

	"go.temporal.io/sdk/temporal"
)

// Application error types attached to activity failures. The workflow never
// branches on error text; it branches on these types.
const (
	// ErrTypeHostAPI marks a source-hosting API failure (fork, create PR).
	// Fatal to the current transition; retried only by the activity's own
	// bounded policy.
	ErrTypeHostAPI = "HostAPIError"

	// ErrTypeWorkspace marks a local git/workspace failure. The specific
	// "no changes to commit" condition is raised non-retryable: it is a
	// normal-but-terminal outcome, not a transient fault.
	ErrTypeWorkspace = "WorkspaceError"

	// ErrTypeAgent marks an outright coding-agent failure, distinct from a
	// run that succeeded but produced zero file changes.
	ErrTypeAgent = "AgentError"
)

// Review-loop terminals (rejection, feedback budget exhausted, review
// deadline elapsed) are not errors: the workflow settles with a terminal
// Phase in its result so callers always get the full outcome record.

// newHostAPIError wraps gateway failures for the workflow.
func newHostAPIError(msg string, cause error) error {
	return temporal.NewApplicationErrorWithCause(msg, ErrTypeHostAPI, cause)
}

// newWorkspaceError wraps workspace failures. Terminal conditions such as a
// clean tree at commit time are marked non-retryable so the activity retry
// policy does not spin on them.
func newWorkspaceError(msg string, cause error, retryable bool) error {
	if retryable {
		return temporal.NewApplicationErrorWithCause(msg, ErrTypeWorkspace, cause)
	}
	return temporal.NewNonRetryableApplicationError(msg, ErrTypeWorkspace, cause)
}

// newAgentError wraps coding-agent failures.
func newAgentError(msg string, cause error) error {
	return temporal.NewApplicationErrorWithCause(msg, ErrTypeAgent, cause)
}

// errorMessage extracts the human-readable message for status reporting,
// unwrapping Temporal's error envelopes where possible.
func errorMessage(err error) string {
	var appErr *temporal.ApplicationError
	if errors.As(err, &appErr) {
		return appErr.Message()
	}
	return err.Error()
}
