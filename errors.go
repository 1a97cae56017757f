package bridge

import (
	"errors"
	"fmt"
	"strings"

	"github.com/SimonDaKappa/go-pave-bridge/engine"
	"github.com/SimonDaKappa/go-pave-bridge/model"
)

var (
	ErrConfiguration  = errors.New("invalid schema configuration")
	ErrUnresolvedType = model.ErrUnresolvedType
	ErrValidation     = errors.New("validation failed")
	ErrHook           = errors.New("hook failed")
	ErrRecordType     = errors.New("record does not match schema model")
	ErrInvalidJSON    = errors.New("invalid JSON input")
	ErrUnexpectedType = errors.New("unexpected result type")
)

// UnresolvedTypeError reports a declared type that cannot be mapped.
type UnresolvedTypeError = model.UnresolvedTypeError

// ConfigurationError reports invalid schema options. It is returned at
// build or instance construction time and is never corrected silently.
type ConfigurationError struct {
	Schema string
	Reason string
	Err    error
}

func configError(schema, format string, args ...any) *ConfigurationError {
	return &ConfigurationError{Schema: schema, Reason: fmt.Sprintf(format, args...)}
}

func (e *ConfigurationError) Error() string {
	var b strings.Builder
	b.WriteString(ErrConfiguration.Error())
	if e.Schema != "" {
		b.WriteString(" for ")
		b.WriteString(e.Schema)
	}
	b.WriteString(": ")
	b.WriteString(e.Reason)
	if e.Err != nil {
		b.WriteString(": ")
		b.WriteString(e.Err.Error())
	}
	return b.String()
}

func (e *ConfigurationError) Unwrap() error {
	return e.Err
}

func (e *ConfigurationError) Is(target error) bool {
	return target == ErrConfiguration
}

///////////////////////////////////////////////////////////////////////////////
// Load failures
///////////////////////////////////////////////////////////////////////////////

// BridgeValidationError is the single error returned by a failed load,
// or by a failed batch load with every item's errors keyed by position.
type BridgeValidationError struct {
	// Messages is the nested error mapping.
	Messages *ErrorTree

	// Data is the input exactly as the caller passed it.
	Data any

	// ValidData holds the parts of Data no error path shadows. For a
	// batch load it is a []any with one entry per item. A list with
	// rejected elements is a map[int]any keyed by original position;
	// it is meant for inspection and encodes as a JSON object.
	ValidData any

	// Issues is the flat list Messages was built from.
	Issues []engine.Issue
}

func (e *BridgeValidationError) Error() string {
	n := len(e.Issues)
	if n == 0 {
		return ErrValidation.Error()
	}
	first := e.Issues[0]
	loc := first.Path.String()
	if loc == "" {
		loc = "<root>"
	}
	if n == 1 {
		return fmt.Sprintf("%s: %s: %s", ErrValidation, loc, first.Message)
	}
	return fmt.Sprintf("%s: %s: %s (and %d more)", ErrValidation, loc, first.Message, n-1)
}

func (e *BridgeValidationError) Is(target error) bool {
	return target == ErrValidation
}

// MessagesMap renders Messages as nested plain maps.
func (e *BridgeValidationError) MessagesMap() map[string]any {
	return e.Messages.Map()
}

// ValidationError is returned by user hooks and validators to reject
// data. It is accumulated with every other problem of the load instead
// of aborting it.
type ValidationError struct {
	// Field is the attribute name the messages belong to. Empty means
	// the validator's own location: its field for field validators and
	// the whole record otherwise.
	Field    string
	Messages []string
}

// Invalid rejects data at the validator's own location.
func Invalid(msgs ...string) *ValidationError {
	return &ValidationError{Messages: msgs}
}

// InvalidField rejects data at the named field.
func InvalidField(field string, msgs ...string) *ValidationError {
	return &ValidationError{Field: field, Messages: msgs}
}

func (e *ValidationError) Error() string {
	msg := strings.Join(e.Messages, "; ")
	if msg == "" {
		msg = msgInvalidValue
	}
	if e.Field != "" {
		return e.Field + ": " + msg
	}
	return msg
}

func (e *ValidationError) Is(target error) bool {
	return target == ErrValidation
}
