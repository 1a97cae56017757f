package bridge

import (
	"fmt"
	"math/big"
	"reflect"

	"github.com/SimonDaKappa/go-pave-bridge/engine"
	"github.com/SimonDaKappa/go-pave-bridge/model"
)

// FieldKind is the schema-side vocabulary a model field is mapped to.
type FieldKind int

const (
	Raw FieldKind = iota
	String
	Integer
	Float
	Boolean
	Decimal
	DateTime
	Date
	Time
	TimeDelta
	UUID
	Email
	URL
	IP
	Binary
	Enum
	Nested
	List
	Tuple
	Dict
	Union
)

var fieldKindNames = [...]string{
	Raw:       "Raw",
	String:    "String",
	Integer:   "Integer",
	Float:     "Float",
	Boolean:   "Boolean",
	Decimal:   "Decimal",
	DateTime:  "DateTime",
	Date:      "Date",
	Time:      "Time",
	TimeDelta: "TimeDelta",
	UUID:      "UUID",
	Email:     "Email",
	URL:       "URL",
	IP:        "IP",
	Binary:    "Binary",
	Enum:      "Enum",
	Nested:    "Nested",
	List:      "List",
	Tuple:     "Tuple",
	Dict:      "Dict",
	Union:     "Union",
}

func (k FieldKind) String() string {
	if k >= 0 && int(k) < len(fieldKindNames) {
		return fieldKindNames[k]
	}
	return fmt.Sprintf("FieldKind(%d)", int(k))
}

// IsStructural reports whether the kind wraps other mapped fields.
func (k FieldKind) IsStructural() bool {
	switch k {
	case Nested, List, Tuple, Dict, Union:
		return true
	}
	return false
}

///////////////////////////////////////////////////////////////////////////////
// Mapped fields
///////////////////////////////////////////////////////////////////////////////

// MappedField is the schema-side projection of one model field, or of
// an inner type of a collection, mapping or union field. Inner fields
// have no names or keys.
type MappedField struct {
	Name    string
	LoadKey string
	DumpKey string
	Kind    FieldKind

	// GoType is the declared type of the slot, pointers included.
	GoType reflect.Type

	Required  bool
	AllowNone bool

	Default        any
	HasDefault     bool
	DefaultFactory func() any

	// LoadOnly fields are never dumped and DumpOnly fields are never
	// loaded. Computed fields are always DumpOnly.
	LoadOnly bool
	DumpOnly bool
	Computed bool

	Metadata Metadata

	// Model is the nested model type of a Nested field and Schema the
	// class built for it.
	Model  reflect.Type
	Schema *SchemaClass

	// Inner is the element of a List or the value of a Dict.
	Inner *MappedField
	Key   *MappedField
	Items []*MappedField

	Choices       []Choice
	Discriminator string

	// Values are the members of an Enum or the allowed values of a
	// literal Raw field.
	Values []any
}

// Choice is one member of a Union field.
type Choice struct {
	Tag   string
	Field *MappedField
}

// Metadata carries declared constraints for introspection. They are
// enforced by the engine, never by the schema layer.
type Metadata struct {
	Description string
	Constraints model.Constraints
}

// Loadable reports whether the field is read on load.
func (f *MappedField) Loadable() bool {
	return !f.DumpOnly
}

// Dumpable reports whether the field is written on dump.
func (f *MappedField) Dumpable() bool {
	return !f.LoadOnly
}

func (f *MappedField) String() string {
	if f.Name == "" {
		return f.Kind.String()
	}
	return f.Name + ":" + f.Kind.String()
}

// Equal compares two mapped fields value by value. Nested schema
// classes are compared by model type and factories by identity.
func (f *MappedField) Equal(o *MappedField) bool {
	if f == nil || o == nil {
		return f == o
	}
	if f.Name != o.Name || f.LoadKey != o.LoadKey || f.DumpKey != o.DumpKey ||
		f.Kind != o.Kind || f.GoType != o.GoType ||
		f.Required != o.Required || f.AllowNone != o.AllowNone ||
		f.HasDefault != o.HasDefault || f.LoadOnly != o.LoadOnly ||
		f.DumpOnly != o.DumpOnly || f.Computed != o.Computed ||
		f.Model != o.Model || f.Discriminator != o.Discriminator {
		return false
	}
	if !engine.PlainEqual(f.Default, o.Default) || !sameFunc(f.DefaultFactory, o.DefaultFactory) {
		return false
	}
	if !reflect.DeepEqual(f.Metadata, o.Metadata) || !reflect.DeepEqual(f.Values, o.Values) {
		return false
	}
	if !f.Inner.Equal(o.Inner) || !f.Key.Equal(o.Key) {
		return false
	}
	if len(f.Items) != len(o.Items) || len(f.Choices) != len(o.Choices) {
		return false
	}
	for i := range f.Items {
		if !f.Items[i].Equal(o.Items[i]) {
			return false
		}
	}
	for i := range f.Choices {
		if f.Choices[i].Tag != o.Choices[i].Tag || !f.Choices[i].Field.Equal(o.Choices[i].Field) {
			return false
		}
	}
	return true
}

func sameFunc(a, b func() any) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return reflect.ValueOf(a).Pointer() == reflect.ValueOf(b).Pointer()
}

// clone returns a shallow copy; inner fields are shared.
func (f *MappedField) clone() *MappedField {
	c := *f
	return &c
}

///////////////////////////////////////////////////////////////////////////////
// Mapper
///////////////////////////////////////////////////////////////////////////////

var (
	bigFloatType = reflect.TypeOf(big.Float{})
	bigRatType   = reflect.TypeOf(big.Rat{})
	bigIntType   = reflect.TypeOf(big.Int{})
)

// scalarTypes maps concrete Go types ahead of the kind table.
var scalarTypes = map[reflect.Type]FieldKind{
	bigFloatType: Decimal,
	bigRatType:   Decimal,
	bigIntType:   Integer,
}

var scalarKinds = map[model.Kind]FieldKind{
	model.KindString:   String,
	model.KindInt:      Integer,
	model.KindUint:     Integer,
	model.KindFloat:    Float,
	model.KindBool:     Boolean,
	model.KindDecimal:  Decimal,
	model.KindDateTime: DateTime,
	model.KindDate:     Date,
	model.KindTime:     Time,
	model.KindDuration: TimeDelta,
	model.KindUUID:     UUID,
	model.KindEmail:    Email,
	model.KindURL:      URL,
	model.KindIP:       IP,
	model.KindBytes:    Binary,
	model.KindText:     String,
}

// Mapper converts field descriptors into mapped fields. It reads the
// arena only to name nested model types and never mutates a descriptor.
type Mapper struct {
	arena     *model.Arena
	overrides map[reflect.Type]FieldKind
}

// NewMapper copies overrides; later changes to the map have no effect.
func NewMapper(arena *model.Arena, overrides map[reflect.Type]FieldKind) *Mapper {
	mp := &Mapper{arena: arena, overrides: make(map[reflect.Type]FieldKind, len(overrides))}
	for t, k := range overrides {
		mp.overrides[t] = k
	}
	return mp
}

// Map projects one descriptor. Overrides win over the structural and
// scalar rules; anything left unrecognized becomes Raw.
func (mp *Mapper) Map(d *model.Descriptor) *MappedField {
	f := mp.mapType(d.Type)
	f.Name = d.Name
	f.LoadKey = d.LoadName
	f.DumpKey = d.DumpName
	f.Required = d.Required
	f.Default = d.Default
	f.HasDefault = d.HasDefault
	f.DefaultFactory = d.DefaultFactory
	if d.HasDefault && d.Default == nil {
		f.AllowNone = true
	}
	f.Metadata = Metadata{Description: d.Description, Constraints: d.Constraints}
	if d.Computed {
		f.Computed = true
		f.DumpOnly = true
		f.Required = false
	}
	return f
}

func (mp *Mapper) mapType(ref *model.TypeRef) *MappedField {
	f := &MappedField{GoType: ref.Go, AllowNone: ref.Nullable}

	if kind, ok := mp.override(ref); ok {
		f.Kind = kind
		return f
	}

	switch ref.Kind {
	case model.KindModel:
		f.Kind = Nested
		f.Model = mp.arena.Model(ref.Model).Type
	case model.KindList:
		f.Kind = List
		f.Inner = mp.mapType(ref.Elem)
	case model.KindTuple:
		f.Kind = Tuple
		f.Items = make([]*MappedField, len(ref.Items))
		for i, item := range ref.Items {
			f.Items[i] = mp.mapType(item)
		}
	case model.KindMap:
		f.Kind = Dict
		f.Key = mp.mapType(ref.Key)
		f.Inner = mp.mapType(ref.Elem)
	case model.KindUnion:
		f.Kind = Union
		f.Discriminator = ref.Discriminator
		f.Choices = make([]Choice, len(ref.Variants))
		for i, v := range ref.Variants {
			f.Choices[i] = Choice{Tag: v.Tag, Field: mp.mapType(v.Type)}
		}
	case model.KindEnum:
		f.Kind = Enum
		f.Values = ref.Values
	case model.KindLiteral:
		f.Kind = Raw
		f.Values = ref.Values
	default:
		if kind, ok := scalarTypes[ref.Base()]; ok {
			f.Kind = kind
		} else if kind, ok := scalarKinds[ref.Kind]; ok {
			f.Kind = kind
		} else {
			f.Kind = Raw
		}
	}
	return f
}

func (mp *Mapper) override(ref *model.TypeRef) (FieldKind, bool) {
	if len(mp.overrides) == 0 || ref.Go == nil {
		return 0, false
	}
	if kind, ok := mp.overrides[ref.Go]; ok {
		return kind, true
	}
	kind, ok := mp.overrides[ref.Base()]
	return kind, ok
}

// walkFields calls fn for f and every inner field below it.
func walkFields(f *MappedField, fn func(*MappedField)) {
	if f == nil {
		return
	}
	fn(f)
	walkFields(f.Inner, fn)
	walkFields(f.Key, fn)
	for _, item := range f.Items {
		walkFields(item, fn)
	}
	for _, c := range f.Choices {
		walkFields(c.Field, fn)
	}
}
