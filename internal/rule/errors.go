package rule

import (
	"errors"
	"fmt"
)

// ErrNotFound is returned by stores for unknown rule IDs.
var ErrNotFound = errors.New("rule not found")

// ValidationError marks caller mistakes: bad fields, duplicate names,
// unknown action types. It surfaces to the API boundary as a 4xx.
type ValidationError struct {
	Msg string
}

func (e *ValidationError) Error() string { return e.Msg }

// Invalidf builds a ValidationError.
func Invalidf(format string, args ...interface{}) error {
	return &ValidationError{Msg: fmt.Sprintf(format, args...)}
}

// IsValidation reports whether err is a ValidationError.
func IsValidation(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}

// ConfigurationError marks a stored rule whose condition no longer compiles
// or evaluates. Dispatch fails closed on it: the attempt resolves
// NOT_MATCHED and sibling rules are unaffected.
type ConfigurationError struct {
	RuleID string
	Err    error
}

func (e *ConfigurationError) Error() string {
	return fmt.Sprintf("rule %s: condition configuration: %v", e.RuleID, e.Err)
}

func (e *ConfigurationError) Unwrap() error { return e.Err }

// ActionError records which action of a rule's list failed. It is captured
// per attempt and never propagated past the dispatcher.
type ActionError struct {
	ActionType string
	Index      int
	Err        error
}

func (e *ActionError) Error() string {
	return fmt.Sprintf("action[%d] %s: %v", e.Index, e.ActionType, e.Err)
}

func (e *ActionError) Unwrap() error { return e.Err }
