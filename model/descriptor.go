package model

import (
	"reflect"
)

// Descriptor is the normalized declaration of one model field.
type Descriptor struct {
	// Name is the attribute name, taken from the json tag when present.
	Name string

	// GoName is the Go struct field name, or the method name of a
	// computed field.
	GoName string

	// Index locates the struct field for reflect.Value.FieldByIndex.
	// Empty for computed fields.
	Index []int

	Type *TypeRef

	Required bool

	// Default is the static default in plain data form. HasDefault
	// distinguishes a declared null default from no default.
	Default    any
	HasDefault bool

	// DefaultFactory builds a fresh default value on every load.
	DefaultFactory func() any

	// LoadName and DumpName are the wire keys for each direction.
	LoadName string
	DumpName string

	Constraints Constraints
	Description string

	// Computed fields are derived from a method and never loaded.
	Computed bool
}

// HasAnyDefault reports whether the field can be filled without input.
func (d *Descriptor) HasAnyDefault() bool {
	return d.HasDefault || d.DefaultFactory != nil
}

// Constraints are value restrictions declared on a field.
type Constraints struct {
	Min          *float64
	Max          *float64
	ExclusiveMin *float64
	ExclusiveMax *float64
	MultipleOf   *float64
	MinLength    *int
	MaxLength    *int
	Pattern      string
	Choices      []any
}

func (c Constraints) IsZero() bool {
	return c.Min == nil && c.Max == nil && c.ExclusiveMin == nil && c.ExclusiveMax == nil &&
		c.MultipleOf == nil && c.MinLength == nil && c.MaxLength == nil &&
		c.Pattern == "" && len(c.Choices) == 0
}

// Model is the extracted form of one struct type.
type Model struct {
	Index  int
	Name   string
	Type   reflect.Type
	Fields []*Descriptor

	// BaseIndex locates an embedded Base, nil when the model has none.
	BaseIndex []int

	resolved bool
}

// Field returns the descriptor with the given attribute name.
func (m *Model) Field(name string) (*Descriptor, bool) {
	for _, f := range m.Fields {
		if f.Name == name {
			return f, true
		}
	}
	return nil, false
}

// HasBase reports whether instances track set fields and extras.
func (m *Model) HasBase() bool {
	return m.BaseIndex != nil
}

///////////////////////////////////////////////////////////////////////////////
// Capabilities
///////////////////////////////////////////////////////////////////////////////

// Computed declares a read-only field derived from a zero-argument
// method. The method may return (T) or (T, error).
type Computed struct {
	Name   string
	Method string
	Alias  string
}

// ComputedFielder is implemented by models that expose derived fields.
type ComputedFielder interface {
	ComputedFields() []Computed
}

// DefaultFactorier is implemented by models whose defaults must be
// built fresh for every instance. Keys are attribute names.
type DefaultFactorier interface {
	DefaultFactories() map[string]func() any
}

// Union declares the members of an interface-typed field.
type Union struct {
	Discriminator string
	Variants      []Variant
}

// Variant is one member type of a union. Tag is the discriminator value
// selecting it.
type Variant struct {
	Tag  string
	Type reflect.Type
}

// Unioner is implemented by models with interface-typed fields. Keys
// are attribute names.
type Unioner interface {
	Unions() map[string]Union
}

// Enumerator is implemented by named scalar types with a closed set of
// values.
type Enumerator interface {
	EnumValues() []any
}

var (
	enumeratorType = reflect.TypeOf((*Enumerator)(nil)).Elem()
)

// capability checks whether t or *t implements I and returns the
// implementation on a fresh zero value.
func capability[I any](t reflect.Type) (I, bool) {
	v := reflect.New(t)
	if c, ok := v.Interface().(I); ok {
		return c, true
	}
	var zero I
	return zero, false
}
