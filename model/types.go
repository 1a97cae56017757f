package model

import (
	"encoding"
	"encoding/json"
	"fmt"
	"net"
	"net/url"
	"reflect"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Kind classifies the shape of a declared type.
type Kind int

const (
	KindAny Kind = iota
	KindString
	KindInt
	KindUint
	KindFloat
	KindBool
	KindDecimal
	KindDateTime
	KindDate
	KindTime
	KindDuration
	KindUUID
	KindEmail
	KindURL
	KindIP
	KindBytes
	KindText
	KindEnum
	KindLiteral
	KindModel
	KindList
	KindTuple
	KindMap
	KindUnion
)

var kindNames = [...]string{
	KindAny:      "any",
	KindString:   "string",
	KindInt:      "int",
	KindUint:     "uint",
	KindFloat:    "float",
	KindBool:     "bool",
	KindDecimal:  "decimal",
	KindDateTime: "datetime",
	KindDate:     "date",
	KindTime:     "time",
	KindDuration: "duration",
	KindUUID:     "uuid",
	KindEmail:    "email",
	KindURL:      "url",
	KindIP:       "ip",
	KindBytes:    "bytes",
	KindText:     "text",
	KindEnum:     "enum",
	KindLiteral:  "literal",
	KindModel:    "model",
	KindList:     "list",
	KindTuple:    "tuple",
	KindMap:      "map",
	KindUnion:    "union",
}

func (k Kind) String() string {
	if int(k) < len(kindNames) {
		return kindNames[k]
	}
	return fmt.Sprintf("Kind(%d)", int(k))
}

// reflect.TypeOf constants for type checks
var (
	TimeType            = reflect.TypeOf(time.Time{})
	DurationType        = reflect.TypeOf(time.Duration(0))
	UUIDType            = reflect.TypeOf(uuid.UUID{})
	NumberType          = reflect.TypeOf(json.Number(""))
	IPType              = reflect.TypeOf(net.IP{})
	URLType             = reflect.TypeOf(url.URL{})
	BytesType           = reflect.TypeOf([]byte{})
	BaseType            = reflect.TypeOf(Base{})
	AnyType             = reflect.TypeOf((*any)(nil)).Elem()
	textUnmarshalerType = reflect.TypeOf((*encoding.TextUnmarshaler)(nil)).Elem()
)

// TypeRef is the normalized shape of a declared type. Nested models are
// referenced by their index in the owning Arena rather than by pointer,
// which is what lets self-referential models resolve.
type TypeRef struct {
	Kind Kind

	// Go is the declared Go type of the slot, pointers included.
	Go reflect.Type

	// Nullable is set when the slot is a pointer and accepts null.
	Nullable bool

	// Model is the arena index of a nested model. Valid when Kind is
	// KindModel and Ref is empty or resolved.
	Model int

	// Ref is the registered model name for an interface slot declared
	// with a ref subtag.
	Ref string

	// Elem is the element type of a list or the value type of a map.
	Elem *TypeRef

	// Key is the key type of a map.
	Key *TypeRef

	// Items holds one entry per position of a fixed-length array.
	Items []*TypeRef

	// Variants and Discriminator describe a union slot.
	Variants      []VariantRef
	Discriminator string

	// Values holds the allowed values of a literal or enum.
	Values []any

	// Opaque marks a type with no mapping that is passed through as is.
	Opaque bool
}

// VariantRef is one resolved member of a union.
type VariantRef struct {
	Tag  string
	Type *TypeRef
}

// Base returns the declared Go type with pointers removed.
func (t *TypeRef) Base() reflect.Type {
	return Indirect(t.Go)
}

// String renders the shape for error messages and debugging.
func (t *TypeRef) String() string {
	if t == nil {
		return "<nil>"
	}
	var s string
	switch t.Kind {
	case KindList:
		s = "list[" + t.Elem.String() + "]"
	case KindMap:
		s = "map[" + t.Key.String() + "]" + t.Elem.String()
	case KindTuple:
		parts := make([]string, len(t.Items))
		for i, item := range t.Items {
			parts[i] = item.String()
		}
		s = "tuple[" + strings.Join(parts, ", ") + "]"
	case KindUnion:
		parts := make([]string, len(t.Variants))
		for i, v := range t.Variants {
			parts[i] = v.Type.String()
		}
		s = "union[" + strings.Join(parts, " | ") + "]"
	case KindModel:
		if t.Ref != "" {
			s = t.Ref
		} else {
			s = t.Base().Name()
		}
	case KindEnum:
		s = t.Base().Name()
	default:
		s = t.Kind.String()
	}
	if t.Nullable {
		s += "?"
	}
	return s
}

// Indirect strips every pointer level from t.
func Indirect(t reflect.Type) reflect.Type {
	for t != nil && t.Kind() == reflect.Ptr {
		t = t.Elem()
	}
	return t
}

// IsSpecialStructType reports whether a struct type is treated as a
// scalar rather than a nested model.
func IsSpecialStructType(t reflect.Type) bool {
	switch t {
	case TimeType, URLType:
		return true
	}
	return t.Kind() == reflect.Struct && reflect.PointerTo(t).Implements(textUnmarshalerType)
}
