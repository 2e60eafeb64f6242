package availability

import "fmt"

// ValidationError reports malformed call arguments or a malformed rule.
type ValidationError struct {
	msg string
}

func (e *ValidationError) Error() string {
	return e.msg
}

func validationError(format string, args ...any) error {
	return &ValidationError{msg: fmt.Sprintf(format, args...)}
}

// ConfigurationError reports a host that has not configured availability.
type ConfigurationError struct {
	HostID string
}

func (e *ConfigurationError) Error() string {
	return fmt.Sprintf("host %s has no availability rules configured", e.HostID)
}

// IntegrationError wraps a failure talking to one calendar integration. It is
// reported per integration and never aborts a conflict check.
type IntegrationError struct {
	Provider Provider
	Op       string
	Err      error
}

func (e *IntegrationError) Error() string {
	return fmt.Sprintf("%s %s: %v", e.Provider, e.Op, e.Err)
}

func (e *IntegrationError) Unwrap() error {
	return e.Err
}
