// Package engine defines the boundary between the schema layer and a
// strict validation engine. The schema layer only ever calls into an
// Engine; it never inspects how coercion or constraint checks are done.
package engine

import (
	"reflect"
)

// Engine validates plain data into model records and serializes records
// back to plain data.
type Engine interface {
	// Validate coerces data into a new instance of the model type. It
	// never fails fast: every problem is reported in Outcome.Errors.
	Validate(model reflect.Type, data map[string]any, opts ValidateOptions) Outcome

	// Serialize projects a record into plain data, computed fields
	// included when requested.
	Serialize(record any, opts SerializeOptions) (map[string]any, error)
}

// Outcome is the result of one Validate call. Record is a pointer to a
// new model instance and is nil whenever Errors is non-empty.
type Outcome struct {
	Record any

	// Set lists the attribute names that were provided in the input, in
	// declaration order.
	Set []string

	Errors []Issue

	// Valid holds the coerced value of every top-level field that
	// passed on its own, keyed by attribute name. It is filled on
	// failure too so that record-level checks can still look at the
	// fields that did validate.
	Valid map[string]any
}

// Failed reports whether the engine rejected the data.
func (o Outcome) Failed() bool {
	return len(o.Errors) > 0
}

// Issue is one engine-reported problem.
type Issue struct {
	Path    Path
	Message string
	Code    string
}

// Error codes produced by the bundled engine. Custom engines may use
// their own codes.
const (
	CodeMissing       = "missing"
	CodeNull          = "null"
	CodeType          = "type"
	CodeParsing       = "parsing"
	CodeGreaterEqual  = "greater_than_equal"
	CodeLessEqual     = "less_than_equal"
	CodeGreater       = "greater_than"
	CodeLess          = "less_than"
	CodeMultipleOf    = "multiple_of"
	CodeTooShort      = "too_short"
	CodeTooLong       = "too_long"
	CodePattern       = "string_pattern_mismatch"
	CodeChoice        = "choice"
	CodeLiteral       = "literal_error"
	CodeEnum          = "enum"
	CodeUnionTag      = "union_tag_invalid"
	CodeUnionTagMiss  = "union_tag_not_found"
	CodeUnion         = "union"
	CodeEmail         = "value_error.email"
	CodeURL           = "url_parsing"
	CodeIP            = "ip_address"
	CodeUUID          = "uuid_parsing"
	CodeDateTime      = "datetime_parsing"
	CodeDuration      = "duration_parsing"
	CodeDecimal       = "decimal_parsing"
	CodeFactory       = "default_factory"
	CodeTupleLength   = "tuple_length"
	CodeUnassignable  = "is_instance_of"
	CodeIntOverflow   = "int_overflow"
	CodeUnknownField  = "unknown"
	CodeValidator     = "validator"
	CodeSchemaInvalid = "schema"
)

// Partial selects which fields are exempt from the required check.
// A zero Partial exempts nothing.
type Partial struct {
	All   bool
	Names map[string]bool
}

// PartialAll exempts every field, nested models included.
func PartialAll() Partial {
	return Partial{All: true}
}

// PartialFields exempts the named top-level fields.
func PartialFields(names ...string) Partial {
	p := Partial{Names: make(map[string]bool, len(names))}
	for _, n := range names {
		p.Names[n] = true
	}
	return p
}

// Exempt reports whether name may be missing.
func (p Partial) Exempt(name string) bool {
	return p.All || p.Names[name]
}

func (p Partial) IsZero() bool {
	return !p.All && len(p.Names) == 0
}

// With returns a copy of p that also exempts names.
func (p Partial) With(names ...string) Partial {
	if p.All || len(names) == 0 {
		return p
	}
	out := Partial{Names: make(map[string]bool, len(p.Names)+len(names))}
	for n := range p.Names {
		out.Names[n] = true
	}
	for _, n := range names {
		out.Names[n] = true
	}
	return out
}

// ValidateOptions carries per-call settings into Validate.
type ValidateOptions struct {
	Partial Partial

	// Context is passed through untouched for engines that support
	// context-aware validation.
	Context map[string]any
}

// SerializeOptions carries per-call settings into Serialize.
type SerializeOptions struct {
	// ByAlias keys the output by dump names instead of attribute names.
	ByAlias bool

	ExcludeUnset    bool
	ExcludeDefaults bool
	ExcludeNone     bool
	IncludeComputed bool
}
