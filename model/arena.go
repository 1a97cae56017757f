package model

import (
	"errors"
	"fmt"
	"reflect"
	"strings"
	"sync"

	"github.com/tidwall/gjson"
)

var (
	ErrNotAModel       = errors.New("model type must be a struct")
	ErrUnresolvedType  = errors.New("unresolved type")
	ErrDuplicateField  = errors.New("duplicate field name")
	ErrUnknownFactory  = errors.New("default factory names an unknown field")
	ErrUnknownUnion    = errors.New("union declared for an unknown field")
	ErrInvalidComputed = errors.New("invalid computed field")
)

// UnresolvedTypeError reports a declared type that can never become a
// field: an unregistered ref name, an interface with no declared
// variants, or a type with no mapping when opaque fallback is disabled.
type UnresolvedTypeError struct {
	Model  string
	Field  string
	Type   string
	Reason string
}

func (e *UnresolvedTypeError) Error() string {
	return fmt.Sprintf("%s: %s.%s has type %s: %s", ErrUnresolvedType, e.Model, e.Field, e.Type, e.Reason)
}

func (e *UnresolvedTypeError) Is(target error) bool {
	return target == ErrUnresolvedType
}

// Arena owns the extracted form of every model reachable from the types
// it has been asked about. Models refer to each other by arena index.
//
// Extraction runs in two phases. Each newly seen struct type first gets
// a placeholder entry so that any field referring back to it, directly or
// through a container, can record the index before the model's own
// fields are known. Pending placeholders are then walked one at a time,
// and ref names are resolved against the Registry once nothing is left
// to walk. A failed extraction removes every entry it added.
type Arena struct {
	mu       sync.RWMutex
	models   []*Model
	byType   map[reflect.Type]int
	registry *Registry
	strict   bool
}

type ArenaOpts struct {
	// Registry resolves ref names. Defaults to DefaultRegistry.
	Registry *Registry

	// StrictTypes rejects types with no mapping instead of passing them
	// through opaquely.
	StrictTypes bool
}

// NewArena returns an empty arena.
func NewArena(opts ArenaOpts) *Arena {
	if opts.Registry == nil {
		opts.Registry = DefaultRegistry
	}
	return &Arena{
		byType:   make(map[reflect.Type]int),
		registry: opts.Registry,
		strict:   opts.StrictTypes,
	}
}

// Registry returns the registry used for ref names.
func (a *Arena) Registry() *Registry {
	return a.registry
}

// Model returns the model at index i.
func (a *Arena) Model(i int) *Model {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.models[i]
}

// Lookup returns the extracted model for t if it has been extracted.
func (a *Arena) Lookup(t reflect.Type) (*Model, bool) {
	t = Indirect(t)
	a.mu.RLock()
	defer a.mu.RUnlock()
	if i, ok := a.byType[t]; ok && a.models[i].resolved {
		return a.models[i], true
	}
	return nil, false
}

// Extract returns the model for t, extracting it and everything it
// references on first use.
func (a *Arena) Extract(t reflect.Type) (*Model, error) {
	t = Indirect(t)
	if t == nil || t.Kind() != reflect.Struct || IsSpecialStructType(t) {
		return nil, fmt.Errorf("%w, got %v", ErrNotAModel, t)
	}

	if m, ok := a.Lookup(t); ok {
		return m, nil
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	if i, ok := a.byType[t]; ok && a.models[i].resolved {
		return a.models[i], nil
	}

	x := &extraction{arena: a, mark: len(a.models)}
	root := x.index(t)

	if err := x.run(); err != nil {
		x.rollback()
		return nil, err
	}

	for _, m := range a.models[x.mark:] {
		m.resolved = true
	}
	return a.models[root], nil
}

// extraction is the state of one Extract call. It runs under the arena
// write lock.
type extraction struct {
	arena   *Arena
	mark    int
	pending []int
	refs    []pendingRef
}

type pendingRef struct {
	ref   *TypeRef
	model string
	field string
}

func (x *extraction) index(t reflect.Type) int {
	if i, ok := x.arena.byType[t]; ok {
		return i
	}
	i := len(x.arena.models)
	x.arena.models = append(x.arena.models, &Model{Index: i, Name: t.Name(), Type: t})
	x.arena.byType[t] = i
	x.pending = append(x.pending, i)
	return i
}

func (x *extraction) run() error {
	for len(x.pending) > 0 || len(x.refs) > 0 {
		for len(x.pending) > 0 {
			i := x.pending[0]
			x.pending = x.pending[1:]
			if err := x.walk(x.arena.models[i]); err != nil {
				return err
			}
		}

		refs := x.refs
		x.refs = nil
		for _, p := range refs {
			t, ok := x.arena.registry.Lookup(p.ref.Ref)
			if !ok {
				return &UnresolvedTypeError{
					Model: p.model, Field: p.field, Type: p.ref.Ref,
					Reason: "no model registered under this name",
				}
			}
			if t.Kind() != reflect.Struct || IsSpecialStructType(t) {
				return &UnresolvedTypeError{
					Model: p.model, Field: p.field, Type: p.ref.Ref,
					Reason: "registered type is not a model",
				}
			}
			p.ref.Model = x.index(t)
		}
	}
	return nil
}

func (x *extraction) rollback() {
	for _, m := range x.arena.models[x.mark:] {
		delete(x.arena.byType, m.Type)
	}
	x.arena.models = x.arena.models[:x.mark]
}

///////////////////////////////////////////////////////////////////////////////
// Field walking
///////////////////////////////////////////////////////////////////////////////

func (x *extraction) walk(m *Model) error {
	var unions map[string]Union
	if u, ok := capability[Unioner](m.Type); ok {
		unions = u.Unions()
	}

	fields, err := x.walkFields(m, m.Type, nil, unions)
	if err != nil {
		return err
	}

	seen := make(map[string]bool, len(fields))
	for _, f := range fields {
		if seen[f.Name] {
			return fmt.Errorf("%w: %s in %s", ErrDuplicateField, f.Name, m.Name)
		}
		seen[f.Name] = true
	}

	for name := range unions {
		if !seen[name] {
			return fmt.Errorf("%w: %s in %s", ErrUnknownUnion, name, m.Name)
		}
	}

	if f, ok := capability[DefaultFactorier](m.Type); ok {
		for name, factory := range f.DefaultFactories() {
			d := findField(fields, name)
			if d == nil {
				return fmt.Errorf("%w: %s in %s", ErrUnknownFactory, name, m.Name)
			}
			d.DefaultFactory = factory
			d.Required = false
		}
	}

	if c, ok := capability[ComputedFielder](m.Type); ok {
		for _, comp := range c.ComputedFields() {
			d, err := x.computed(m, comp)
			if err != nil {
				return err
			}
			if seen[d.Name] {
				return fmt.Errorf("%w: %s in %s", ErrDuplicateField, d.Name, m.Name)
			}
			seen[d.Name] = true
			fields = append(fields, d)
		}
	}

	m.Fields = fields
	return nil
}

func findField(fields []*Descriptor, name string) *Descriptor {
	for _, f := range fields {
		if f.Name == name {
			return f
		}
	}
	return nil
}

func (x *extraction) walkFields(m *Model, t reflect.Type, prefix []int, unions map[string]Union) ([]*Descriptor, error) {
	var out []*Descriptor

	for i := 0; i < t.NumField(); i++ {
		sf := t.Field(i)
		index := append(append([]int(nil), prefix...), i)

		if sf.Type == BaseType && sf.Anonymous {
			m.BaseIndex = index
			continue
		}

		name, skip := jsonName(sf)
		if skip {
			continue
		}

		// Embedded structs without a json name are flattened the same
		// way encoding/json promotes their fields.
		if sf.Anonymous && name == "" && sf.Type.Kind() == reflect.Struct && !IsSpecialStructType(sf.Type) {
			inner, err := x.walkFields(m, sf.Type, index, unions)
			if err != nil {
				return nil, err
			}
			out = append(out, inner...)
			continue
		}

		if !sf.IsExported() {
			continue
		}

		if name == "" {
			name = sf.Name
		}

		d, err := x.field(m, sf, name, index, unions)
		if err != nil {
			return nil, err
		}
		out = append(out, d)
	}

	return out, nil
}

func (x *extraction) field(m *Model, sf reflect.StructField, name string, index []int, unions map[string]Union) (*Descriptor, error) {
	ft, err := decodeFieldTag(sf)
	if err != nil {
		return nil, fmt.Errorf("%s.%s: %w", m.Name, sf.Name, err)
	}

	site := fieldSite{model: m.Name, field: name, tag: ft}
	if u, ok := unions[name]; ok {
		site.union = &u
	}

	ref, err := x.typeRef(sf.Type, &site)
	if err != nil {
		return nil, err
	}

	d := &Descriptor{
		Name:        name,
		GoName:      sf.Name,
		Index:       index,
		Type:        ref,
		LoadName:    name,
		DumpName:    name,
		Constraints: ft.constraints,
		Description: ft.description,
	}

	switch {
	case ft.alias != "":
		d.LoadName, d.DumpName = ft.alias, ft.alias
	default:
		if ft.load != "" {
			d.LoadName = ft.load
		}
		if ft.dump != "" {
			d.DumpName = ft.dump
		}
	}

	if ft.hasDefault {
		d.Default = decodeLiteral(ft.defaultText, ref)
		d.HasDefault = true
	}

	switch {
	case ft.required:
		d.Required = true
	case ft.optional, ft.hasDefault:
		d.Required = false
	default:
		d.Required = !ref.Nullable
	}

	if len(ft.choices) > 0 {
		d.Constraints.Choices = decodeList(ft.choices, ref)
	}

	return d, nil
}

func (x *extraction) computed(m *Model, c Computed) (*Descriptor, error) {
	if c.Name == "" || c.Method == "" {
		return nil, fmt.Errorf("%w: %s needs both a name and a method", ErrInvalidComputed, m.Name)
	}

	method, ok := reflect.PointerTo(m.Type).MethodByName(c.Method)
	if !ok {
		return nil, fmt.Errorf("%w: %s has no method %s", ErrInvalidComputed, m.Name, c.Method)
	}

	mt := method.Type
	errorType := reflect.TypeOf((*error)(nil)).Elem()
	if mt.NumIn() != 1 || mt.NumOut() < 1 || mt.NumOut() > 2 || (mt.NumOut() == 2 && mt.Out(1) != errorType) {
		return nil, fmt.Errorf("%w: %s.%s must take no arguments and return (T) or (T, error)", ErrInvalidComputed, m.Name, c.Method)
	}

	site := fieldSite{model: m.Name, field: c.Name}
	ref, err := x.typeRef(mt.Out(0), &site)
	if err != nil {
		return nil, err
	}

	dump := c.Name
	if c.Alias != "" {
		dump = c.Alias
	}

	return &Descriptor{
		Name:     c.Name,
		GoName:   c.Method,
		Type:     ref,
		DumpName: dump,
		Computed: true,
	}, nil
}

///////////////////////////////////////////////////////////////////////////////
// Type resolution
///////////////////////////////////////////////////////////////////////////////

type fieldSite struct {
	model string
	field string
	tag   fieldTag
	union *Union
}

func (s *fieldSite) unresolved(t reflect.Type, reason string) error {
	return &UnresolvedTypeError{Model: s.model, Field: s.field, Type: t.String(), Reason: reason}
}

func (x *extraction) typeRef(t reflect.Type, site *fieldSite) (*TypeRef, error) {
	ref := &TypeRef{Go: t}
	base := t
	if base.Kind() == reflect.Ptr {
		ref.Nullable = true
		base = Indirect(base)
	}

	format := site.tag.format

	switch {
	case base == TimeType:
		switch format {
		case FormatDate:
			ref.Kind = KindDate
		case FormatTime:
			ref.Kind = KindTime
		default:
			ref.Kind = KindDateTime
		}
		return ref, nil
	case base == DurationType:
		ref.Kind = KindDuration
		return ref, nil
	case base == UUIDType:
		ref.Kind = KindUUID
		return ref, nil
	case base == NumberType:
		ref.Kind = KindDecimal
		return ref, nil
	case base == IPType:
		ref.Kind = KindIP
		return ref, nil
	case base == URLType:
		ref.Kind = KindURL
		return ref, nil
	case base == BytesType:
		ref.Kind = KindBytes
		return ref, nil
	}

	if base.Implements(enumeratorType) {
		e := reflect.Zero(base).Interface().(Enumerator)
		ref.Kind = KindEnum
		ref.Values = e.EnumValues()
		return ref, nil
	}

	if len(site.tag.literal) > 0 && isScalarKind(base.Kind()) {
		ref.Kind = KindLiteral
		ref.Values = decodeList(site.tag.literal, &TypeRef{Kind: scalarKind(base.Kind()), Go: base})
		return ref, nil
	}

	switch base.Kind() {
	case reflect.String:
		switch format {
		case FormatEmail:
			ref.Kind = KindEmail
		case FormatURL:
			ref.Kind = KindURL
		case FormatIP:
			ref.Kind = KindIP
		default:
			ref.Kind = KindString
		}
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		ref.Kind = KindInt
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		ref.Kind = KindUint
	case reflect.Float32, reflect.Float64:
		ref.Kind = KindFloat
	case reflect.Bool:
		ref.Kind = KindBool
	case reflect.Struct:
		if IsSpecialStructType(base) {
			ref.Kind = KindText
			return ref, nil
		}
		ref.Kind = KindModel
		ref.Model = x.index(base)
	case reflect.Slice:
		elem, err := x.typeRef(base.Elem(), site)
		if err != nil {
			return nil, err
		}
		ref.Kind = KindList
		ref.Elem = elem
	case reflect.Array:
		ref.Kind = KindTuple
		ref.Items = make([]*TypeRef, base.Len())
		for i := range ref.Items {
			item, err := x.typeRef(base.Elem(), site)
			if err != nil {
				return nil, err
			}
			ref.Items[i] = item
		}
	case reflect.Map:
		switch base.Key().Kind() {
		case reflect.String, reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
			reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		default:
			return nil, site.unresolved(t, "map keys must be strings or integers")
		}
		key, err := x.typeRef(base.Key(), &fieldSite{model: site.model, field: site.field})
		if err != nil {
			return nil, err
		}
		elem, err := x.typeRef(base.Elem(), site)
		if err != nil {
			return nil, err
		}
		ref.Kind = KindMap
		ref.Key = key
		ref.Elem = elem
	case reflect.Interface:
		return x.interfaceRef(ref, base, site)
	default:
		if x.arena.strict {
			return nil, site.unresolved(t, "no field mapping for "+base.Kind().String())
		}
		ref.Kind = KindAny
		ref.Opaque = true
	}

	return ref, nil
}

func (x *extraction) interfaceRef(ref *TypeRef, base reflect.Type, site *fieldSite) (*TypeRef, error) {
	if site.union != nil {
		disc := site.union.Discriminator
		if site.tag.discriminator != "" {
			disc = site.tag.discriminator
		}
		if len(site.union.Variants) == 0 {
			return nil, site.unresolved(base, "union declares no variants")
		}
		ref.Kind = KindUnion
		ref.Discriminator = disc
		for _, v := range site.union.Variants {
			if v.Type == nil || !v.Type.AssignableTo(base) {
				return nil, site.unresolved(base, fmt.Sprintf("variant %v does not implement %s", v.Type, base))
			}
			if disc != "" && v.Tag == "" {
				return nil, site.unresolved(base, fmt.Sprintf("variant %v has no tag for discriminator %q", v.Type, disc))
			}
			vr, err := x.typeRef(v.Type, &fieldSite{model: site.model, field: site.field})
			if err != nil {
				return nil, err
			}
			ref.Variants = append(ref.Variants, VariantRef{Tag: v.Tag, Type: vr})
		}
		return ref, nil
	}

	if site.tag.ref != "" {
		if base.NumMethod() != 0 {
			return nil, site.unresolved(base, "ref requires an empty interface slot")
		}
		ref.Kind = KindModel
		ref.Ref = site.tag.ref
		x.refs = append(x.refs, pendingRef{ref: ref, model: site.model, field: site.field})
		return ref, nil
	}

	if base.NumMethod() == 0 {
		ref.Kind = KindAny
		return ref, nil
	}

	return nil, site.unresolved(base, "interface has no declared union variants")
}

func isScalarKind(k reflect.Kind) bool {
	return scalarKind(k) != KindAny
}

func scalarKind(k reflect.Kind) Kind {
	switch k {
	case reflect.String:
		return KindString
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return KindInt
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return KindUint
	case reflect.Float32, reflect.Float64:
		return KindFloat
	case reflect.Bool:
		return KindBool
	}
	return KindAny
}

// decodeLiteral turns tag text into a plain value. Text for string
// slots is taken verbatim unless it is a quoted JSON string; other text
// is read as JSON when it parses and kept as a string otherwise.
func decodeLiteral(text string, ref *TypeRef) any {
	trimmed := strings.TrimSpace(text)
	stringish := false
	switch ref.Kind {
	case KindString, KindEmail, KindURL, KindIP, KindText, KindDate, KindTime, KindDateTime, KindUUID, KindDuration, KindBytes:
		stringish = true
	case KindEnum, KindLiteral:
		stringish = ref.Base().Kind() == reflect.String
	}

	if stringish {
		if strings.HasPrefix(trimmed, `"`) && gjson.Valid(trimmed) {
			return gjson.Parse(trimmed).String()
		}
		if trimmed == "null" && ref.Nullable {
			return nil
		}
		return text
	}

	if gjson.Valid(trimmed) {
		return gjson.Parse(trimmed).Value()
	}
	return text
}

func decodeList(items []string, ref *TypeRef) []any {
	out := make([]any, len(items))
	for i, item := range items {
		out[i] = decodeLiteral(item, ref)
	}
	return out
}
