package domain

import "fmt"

// ValidationError reports malformed or missing parameters. It is surfaced to
// the caller and never retried.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	if e.Field != "" {
		return fmt.Sprintf("invalid parameter %q: %s", e.Field, e.Message)
	}
	return "invalid parameters: " + e.Message
}

// AuthorizationError reports a mode or permission mismatch, raised before any
// external call is made.
type AuthorizationError struct {
	ActionID string
	Mode     Mode
	Message  string
}

func (e *AuthorizationError) Error() string {
	if e.Message != "" {
		return e.Message
	}
	return fmt.Sprintf("action %q is not available in %s sessions", e.ActionID, e.Mode)
}

// SecurityViolation reports a judge block. The full reason is logged but only
// a generic refusal is echoed to the end user.
type SecurityViolation struct {
	Layer    string
	Reason   string
	Severity Severity
}

func (e *SecurityViolation) Error() string {
	return fmt.Sprintf("security violation (%s, %s): %s", e.Layer, e.Severity, e.Reason)
}

// UpstreamError reports a data layer failure. Transient upstream errors are
// retried before being surfaced.
type UpstreamError struct {
	Method string
	Err    error
}

func (e *UpstreamError) Error() string {
	return fmt.Sprintf("data layer %s: %v", e.Method, e.Err)
}

func (e *UpstreamError) Unwrap() error { return e.Err }

// NotFoundError reports a missing entity (action definition, product, session).
type NotFoundError struct {
	Kind string
	ID   string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s %q not found", e.Kind, e.ID)
}

// ConfigurationError reports a deployment defect: an unknown action id wired
// into the executor, an unknown command type reaching the reducer, a malformed
// definition. It is fatal to the request and allowed to propagate.
type ConfigurationError struct {
	Message string
}

func (e *ConfigurationError) Error() string { return "configuration error: " + e.Message }
