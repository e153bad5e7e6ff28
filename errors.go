package atree

import (
	"errors"
	"fmt"
)

var (
	// ErrSchema is returned when attribute definitions are invalid, eg. a
	// duplicate or reserved attribute name.
	ErrSchema = errors.New("schema error")
	// ErrParse is returned when an expression is syntactically invalid or uses
	// a construct outside of the supported grammar.
	ErrParse = errors.New("parse error")
	// ErrType is returned when an operator, literal or event value does not
	// match the declared type of an attribute.
	ErrType = errors.New("type error")
	// ErrRedefinition is returned when an attribute is assigned twice within
	// the same event builder.
	ErrRedefinition = errors.New("redefinition error")
	// ErrUnknownAttribute is returned when an expression or event references an
	// attribute which isn't declared in the schema.
	ErrUnknownAttribute = errors.New("unknown attribute")

	ErrBuilderConsumed = errors.New("event builder already consumed")
	ErrClosed          = errors.New("index closed")
	// ErrSchemaMismatch is returned when searching with an event built against
	// another index's schema.  It is a type error.
	ErrSchemaMismatch = fmt.Errorf("%w: event built for a different schema", ErrType)
)

// Internal consistency errors from matching engines.  These indicate a bug
// rather than bad input.
var (
	ErrInvalidType            = errors.New("invalid type for engine")
	ErrExpressionPartNotFound = errors.New("predicate not found in engine")
)

// Error is the structured error returned by every fallible operation.  Kind is
// one of the package's sentinel errors, so callers can match with errors.Is:
//
//	if errors.Is(err, atree.ErrType) { ... }
type Error struct {
	Kind error
	// Attribute is the attribute the error refers to, if any.
	Attribute string
	Detail    string
}

func (e *Error) Error() string {
	if e.Attribute != "" {
		return fmt.Sprintf("%s: %s: %s", e.Kind, e.Attribute, e.Detail)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Detail)
}

func (e *Error) Unwrap() error { return e.Kind }

func newError(kind error, attr string, format string, args ...any) *Error {
	return &Error{
		Kind:      kind,
		Attribute: attr,
		Detail:    fmt.Sprintf(format, args...),
	}
}

func schemaError(attr string, format string, args ...any) error {
	return newError(ErrSchema, attr, format, args...)
}

func parseError(format string, args ...any) error {
	return newError(ErrParse, "", format, args...)
}

func typeError(attr string, format string, args ...any) error {
	return newError(ErrType, attr, format, args...)
}

func unknownAttribute(attr string) error {
	return newError(ErrUnknownAttribute, attr, "not declared in schema")
}

func redefinition(attr string) error {
	return newError(ErrRedefinition, attr, "already assigned in this event")
}
