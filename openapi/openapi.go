// Package openapi projects built schema classes into OpenAPI 3 component
// schemas, reusing the constraint metadata carried by mapped fields.
package openapi

import (
	"errors"
	"fmt"
	"reflect"
	"strconv"

	"github.com/getkin/kin-openapi/openapi3"

	bridge "github.com/SimonDaKappa/go-pave-bridge"
)

// Direction selects which side of a schema is described.
type Direction int

const (
	// Dump describes the output of Dump: dump keys, dump-visible fields,
	// computed fields marked read-only.
	Dump Direction = iota

	// Load describes accepted input: load keys, loadable fields, and the
	// required list.
	Load
)

var ErrNoComponent = errors.New("no component for type")

// ComponentPrefix is where generated schemas are referenced from.
const ComponentPrefix = "#/components/schemas/"

type GeneratorOpts struct {
	Direction Direction

	// Suffix is appended to every component name, for example "Input"
	// when load and dump schemas share one document.
	Suffix string
}

// Generator collects component schemas for one document. It is not
// safe for concurrent use.
type Generator struct {
	opts    GeneratorOpts
	schemas openapi3.Schemas
	names   map[reflect.Type]string
	taken   map[string]reflect.Type
}

// NewGenerator returns a generator with no components.
func NewGenerator(opts GeneratorOpts) *Generator {
	return &Generator{
		opts:    opts,
		schemas: make(openapi3.Schemas),
		names:   make(map[reflect.Type]string),
		taken:   make(map[string]reflect.Type),
	}
}

// Add projects c, and every class nested under it, into components and
// returns a reference to c's component. Adding a model twice returns
// the existing reference.
func (g *Generator) Add(c *bridge.SchemaClass) *openapi3.SchemaRef {
	if name, ok := g.names[c.Type()]; ok {
		return g.ref(name)
	}
	name := g.claim(c)

	// The component is registered before its fields are walked so that
	// self-referencing models resolve to it.
	s := openapi3.NewObjectSchema()
	g.schemas[name] = openapi3.NewSchemaRef("", s)
	g.fill(s, c)
	return g.ref(name)
}

// Schemas returns the collected components.
func (g *Generator) Schemas() openapi3.Schemas {
	return g.schemas
}

// Document wraps the collected components in a minimal OpenAPI document.
func (g *Generator) Document(title, version string) *openapi3.T {
	return &openapi3.T{
		OpenAPI:    "3.0.3",
		Info:       &openapi3.Info{Title: title, Version: version},
		Paths:      openapi3.NewPaths(),
		Components: &openapi3.Components{Schemas: g.schemas},
	}
}

func (g *Generator) claim(c *bridge.SchemaClass) string {
	base := c.Name() + g.opts.Suffix
	name := base
	for i := 2; ; i++ {
		if _, used := g.taken[name]; !used {
			break
		}
		name = base + strconv.Itoa(i)
	}
	g.names[c.Type()] = name
	g.taken[name] = c.Type()
	return name
}

func (g *Generator) ref(name string) *openapi3.SchemaRef {
	return openapi3.NewSchemaRef(ComponentPrefix+name, g.schemas[name].Value)
}

func (g *Generator) fill(s *openapi3.Schema, c *bridge.SchemaClass) {
	for _, f := range c.Fields() {
		var key string
		switch g.opts.Direction {
		case Load:
			if !f.Loadable() {
				continue
			}
			key = f.LoadKey
			if f.Required {
				s.Required = append(s.Required, key)
			}
		default:
			if !f.Dumpable() {
				continue
			}
			key = f.DumpKey
		}

		prop := g.field(f)
		if prop.Value != nil && prop.Ref == "" {
			if f.Computed {
				prop.Value.ReadOnly = true
			}
			if f.HasDefault {
				prop.Value.Default = f.Default
			}
			if f.Metadata.Description != "" {
				prop.Value.Description = f.Metadata.Description
			}
		}
		s.Properties[key] = prop
	}

	if g.opts.Direction == Load {
		open := c.Unknown() != bridge.Raise
		s.AdditionalProperties = openapi3.AdditionalProperties{Has: &open}
	}
}

// field projects one mapped field. Nested models become references;
// everything else is inlined.
func (g *Generator) field(f *bridge.MappedField) *openapi3.SchemaRef {
	if f.Kind == bridge.Nested && f.Schema != nil {
		ref := g.Add(f.Schema)
		if !f.AllowNone {
			return ref
		}
		// A $ref cannot carry nullable in 3.0, so nullable nested
		// models are wrapped.
		wrapped := &openapi3.Schema{Nullable: true, AllOf: openapi3.SchemaRefs{ref}}
		return openapi3.NewSchemaRef("", wrapped)
	}

	s := g.scalar(f)
	s.Nullable = f.AllowNone
	constrain(s, f)
	return openapi3.NewSchemaRef("", s)
}

func (g *Generator) scalar(f *bridge.MappedField) *openapi3.Schema {
	switch f.Kind {
	case bridge.String:
		return openapi3.NewStringSchema()
	case bridge.Integer:
		return openapi3.NewInt64Schema()
	case bridge.Float:
		return openapi3.NewFloat64Schema()
	case bridge.Boolean:
		return openapi3.NewBoolSchema()
	case bridge.Decimal:
		return openapi3.NewFloat64Schema().WithFormat("decimal")
	case bridge.DateTime:
		return openapi3.NewDateTimeSchema()
	case bridge.Date:
		return openapi3.NewStringSchema().WithFormat("date")
	case bridge.Time:
		return openapi3.NewStringSchema().WithFormat("time")
	case bridge.TimeDelta:
		return openapi3.NewStringSchema().WithFormat("duration")
	case bridge.UUID:
		return openapi3.NewUUIDSchema()
	case bridge.Email:
		return openapi3.NewStringSchema().WithFormat("email")
	case bridge.URL:
		return openapi3.NewStringSchema().WithFormat("uri")
	case bridge.IP:
		return openapi3.NewStringSchema().WithFormat("ip")
	case bridge.Binary:
		return openapi3.NewStringSchema().WithFormat("binary")
	case bridge.Enum:
		return enumSchema(f.Values)
	case bridge.List:
		s := openapi3.NewArraySchema()
		s.Items = g.inner(f.Inner)
		return s
	case bridge.Tuple:
		return g.tuple(f)
	case bridge.Dict:
		s := openapi3.NewObjectSchema()
		s.AdditionalProperties = openapi3.AdditionalProperties{Schema: g.inner(f.Inner)}
		return s
	case bridge.Union:
		return g.union(f)
	}
	if len(f.Values) > 0 {
		return enumSchema(f.Values)
	}
	return &openapi3.Schema{}
}

// inner projects an element field, keeping references intact.
func (g *Generator) inner(f *bridge.MappedField) *openapi3.SchemaRef {
	if f == nil {
		return openapi3.NewSchemaRef("", &openapi3.Schema{})
	}
	return g.field(f)
}

func (g *Generator) tuple(f *bridge.MappedField) *openapi3.Schema {
	s := openapi3.NewArraySchema()
	n := uint64(len(f.Items))
	s.MinItems = n
	s.MaxItems = &n
	if len(f.Items) == 0 {
		return s
	}
	// 3.0 has no positional items, so mixed tuples accept any item.
	same := true
	for _, item := range f.Items[1:] {
		if item.Kind != f.Items[0].Kind {
			same = false
			break
		}
	}
	if same {
		s.Items = g.field(f.Items[0])
	} else {
		s.Items = openapi3.NewSchemaRef("", &openapi3.Schema{})
	}
	return s
}

func (g *Generator) union(f *bridge.MappedField) *openapi3.Schema {
	s := &openapi3.Schema{}
	var mapping map[string]string
	for _, choice := range f.Choices {
		ref := g.field(choice.Field)
		s.OneOf = append(s.OneOf, ref)
		if f.Discriminator != "" && choice.Tag != "" && ref.Ref != "" {
			if mapping == nil {
				mapping = make(map[string]string)
			}
			mapping[choice.Tag] = ref.Ref
		}
	}
	if f.Discriminator != "" {
		s.Discriminator = &openapi3.Discriminator{PropertyName: f.Discriminator, Mapping: mapping}
	}
	return s
}

func enumSchema(values []any) *openapi3.Schema {
	var s *openapi3.Schema
	switch values[0].(type) {
	case string:
		s = openapi3.NewStringSchema()
	case bool:
		s = openapi3.NewBoolSchema()
	case float64, float32:
		s = openapi3.NewFloat64Schema()
	case int, int8, int16, int32, int64, uint, uint8, uint16, uint32, uint64:
		s = openapi3.NewInt64Schema()
	default:
		s = &openapi3.Schema{}
	}
	return s.WithEnum(values...)
}

// constrain copies declared constraints onto s. Length bounds apply to
// strings, arrays or objects depending on the field kind.
func constrain(s *openapi3.Schema, f *bridge.MappedField) {
	c := f.Metadata.Constraints
	if c.Min != nil {
		s.Min = c.Min
	}
	if c.Max != nil {
		s.Max = c.Max
	}
	if c.ExclusiveMin != nil {
		s.Min = c.ExclusiveMin
		s.ExclusiveMin = true
	}
	if c.ExclusiveMax != nil {
		s.Max = c.ExclusiveMax
		s.ExclusiveMax = true
	}
	if c.MultipleOf != nil {
		s.MultipleOf = c.MultipleOf
	}
	if c.Pattern != "" {
		s.Pattern = c.Pattern
	}
	if len(c.Choices) > 0 {
		s.Enum = append([]any(nil), c.Choices...)
	}

	if c.MinLength == nil && c.MaxLength == nil {
		return
	}
	lo, hi := lengths(c.MinLength, c.MaxLength)
	switch f.Kind {
	case bridge.List, bridge.Tuple:
		s.MinItems = lo
		s.MaxItems = hi
	case bridge.Dict, bridge.Nested:
		s.MinProps = lo
		s.MaxProps = hi
	default:
		s.MinLength = lo
		s.MaxLength = hi
	}
}

func lengths(minLen, maxLen *int) (uint64, *uint64) {
	var lo uint64
	var hi *uint64
	if minLen != nil && *minLen > 0 {
		lo = uint64(*minLen)
	}
	if maxLen != nil && *maxLen >= 0 {
		v := uint64(*maxLen)
		hi = &v
	}
	return lo, hi
}

// ComponentName returns the component name assigned to t.
func (g *Generator) ComponentName(t reflect.Type) (string, error) {
	name, ok := g.names[t]
	if !ok {
		return "", fmt.Errorf("%w: %s", ErrNoComponent, t)
	}
	return name, nil
}
