// Package strict is the bundled validation engine. It validates plain
// data (the shape produced by encoding/json or gjson) into model structs
// described by the model package, collecting every problem instead of
// stopping at the first, and serializes records back to plain data.
package strict

import (
	"errors"
	"fmt"
	"reflect"
	"regexp"
	"sort"
	"sync"

	"github.com/SimonDaKappa/go-pave-bridge/engine"
	"github.com/SimonDaKappa/go-pave-bridge/model"
)

var (
	ErrNilRecord = errors.New("cannot serialize a nil record")
	ErrComputed  = errors.New("computed field failed")
)

// Engine implements engine.Engine using reflection over the extracted
// model descriptors. Compiled patterns are cached per engine.
type Engine struct {
	arena *model.Arena

	mu       sync.RWMutex
	patterns map[string]*regexp.Regexp
}

var _ engine.Engine = (*Engine)(nil)

type Opts struct {
	// Arena shares extracted models with the schema layer. When nil a
	// private arena is created from Registry and StrictTypes.
	Arena       *model.Arena
	Registry    *model.Registry
	StrictTypes bool
}

// New returns an engine with an empty plan cache.
func New(opts Opts) *Engine {
	arena := opts.Arena
	if arena == nil {
		arena = model.NewArena(model.ArenaOpts{Registry: opts.Registry, StrictTypes: opts.StrictTypes})
	}
	return &Engine{
		arena:    arena,
		patterns: make(map[string]*regexp.Regexp),
	}
}

// Arena returns the arena the engine reads model descriptors from.
func (e *Engine) Arena() *model.Arena {
	return e.arena
}

// Validate builds a new instance of t from data. Keys in data that name
// no field are ignored; deciding what to do with them belongs to the
// caller.
func (e *Engine) Validate(t reflect.Type, data map[string]any, opts engine.ValidateOptions) engine.Outcome {
	m, err := e.arena.Extract(t)
	if err != nil {
		return engine.Outcome{Errors: []engine.Issue{{
			Path:    engine.Path{engine.SchemaSegment()},
			Message: err.Error(),
			Code:    engine.CodeSchemaInvalid,
		}}}
	}

	v := &validation{e: e}
	ptr, valid, set, ok := v.model(m, data, nil, opts.Partial)
	if !ok {
		return engine.Outcome{Set: set, Errors: v.issues, Valid: valid}
	}
	return engine.Outcome{Record: ptr.Interface(), Set: set, Valid: valid}
}

func (e *Engine) pattern(expr string) (*regexp.Regexp, error) {
	e.mu.RLock()
	re, ok := e.patterns[expr]
	e.mu.RUnlock()
	if ok {
		return re, nil
	}

	re, err := regexp.Compile(expr)
	if err != nil {
		return nil, err
	}

	e.mu.Lock()
	e.patterns[expr] = re
	e.mu.Unlock()
	return re, nil
}

///////////////////////////////////////////////////////////////////////////////
// Validation
///////////////////////////////////////////////////////////////////////////////

// validation accumulates issues for one Validate call.
type validation struct {
	e      *Engine
	issues []engine.Issue
}

func (v *validation) fail(path engine.Path, code, msg string) {
	v.issues = append(v.issues, engine.Issue{Path: path, Message: msg, Code: code})
}

func (v *validation) report(path engine.Path, p *problem) {
	v.fail(path, p.code, p.msg)
}

// model validates data into a new *T. It returns the record, the value
// of every field that passed, and the names of the provided fields.
func (v *validation) model(m *model.Model, data map[string]any, path engine.Path, partial engine.Partial) (reflect.Value, map[string]any, []string, bool) {
	before := len(v.issues)
	ptr := reflect.New(m.Type)
	rec := ptr.Elem()
	valid := make(map[string]any)
	var set []string

	nested := engine.Partial{}
	if partial.All {
		nested = partial
	}

	for _, d := range m.Fields {
		if d.Computed {
			continue
		}
		fpath := path.Append(engine.Key(d.LoadName))
		slot := rec.FieldByIndex(d.Index)

		raw, present := data[d.LoadName]
		if !present {
			v.fill(d, slot, fpath, partial)
			continue
		}
		set = append(set, d.Name)

		val, ok := v.coerce(d.Type, raw, fpath, nested)
		if !ok {
			continue
		}
		if !v.check(d.Type, d.Constraints, val, fpath) {
			continue
		}
		slot.Set(val)
		valid[d.Name] = val.Interface()
	}

	if m.HasBase() {
		if tracker, ok := ptr.Interface().(model.Tracker); ok {
			tracker.MarkSet(set...)
		}
	}

	return ptr, valid, set, len(v.issues) == before
}

// fill handles a field absent from the input.
func (v *validation) fill(d *model.Descriptor, slot reflect.Value, path engine.Path, partial engine.Partial) {
	switch {
	case d.DefaultFactory != nil:
		raw := d.DefaultFactory()
		if raw == nil {
			return
		}
		if rv := reflect.ValueOf(raw); rv.Type().AssignableTo(slot.Type()) {
			slot.Set(rv)
			return
		}
		if val, ok := v.coerce(d.Type, raw, path, engine.Partial{}); ok {
			slot.Set(val)
		}
	case d.HasDefault:
		if val, ok := v.coerce(d.Type, d.Default, path, engine.Partial{}); ok {
			slot.Set(val)
		}
	case d.Required && !partial.Exempt(d.Name):
		v.fail(path, engine.CodeMissing, "Field required")
	}
}

// acceptsNull reports whether a non-pointer slot still has a natural
// null: nil slices, maps and interfaces.
func acceptsNull(ref *model.TypeRef) bool {
	switch ref.Base().Kind() {
	case reflect.Slice, reflect.Map, reflect.Interface:
		return true
	}
	return false
}

// coerce converts raw into a value of the declared slot type.
func (v *validation) coerce(ref *model.TypeRef, raw any, path engine.Path, partial engine.Partial) (reflect.Value, bool) {
	if raw == nil {
		if ref.Nullable || acceptsNull(ref) {
			return reflect.Zero(ref.Go), true
		}
		v.fail(path, engine.CodeNull, "Field may not be null.")
		return reflect.Value{}, false
	}

	base := ref.Base()
	val, ok := v.coerceBase(ref, base, raw, path, partial)
	if !ok {
		return reflect.Value{}, false
	}
	return pointerTo(val, ref.Go), true
}

func (v *validation) coerceBase(ref *model.TypeRef, base reflect.Type, raw any, path engine.Path, partial engine.Partial) (reflect.Value, bool) {
	out := reflect.New(base).Elem()

	var p *problem
	switch ref.Kind {
	case model.KindString:
		var s string
		if s, p = asString(raw); p == nil {
			out.SetString(s)
		}
	case model.KindInt:
		var n int64
		if n, p = asInt(raw); p == nil {
			if out.OverflowInt(n) {
				p = &problem{engine.CodeIntOverflow, fmt.Sprintf("Input should be a valid integer, %d is out of range for %s", n, base)}
			} else {
				out.SetInt(n)
			}
		}
	case model.KindUint:
		var n uint64
		if n, p = asUint(raw); p == nil {
			if out.OverflowUint(n) {
				p = &problem{engine.CodeIntOverflow, fmt.Sprintf("Input should be a valid integer, %d is out of range for %s", n, base)}
			} else {
				out.SetUint(n)
			}
		}
	case model.KindFloat:
		var f float64
		if f, p = asFloat(raw); p == nil {
			if out.OverflowFloat(f) {
				p = &problem{engine.CodeType, fmt.Sprintf("Input should be a valid number, %v is out of range for %s", f, base)}
			} else {
				out.SetFloat(f)
			}
		}
	case model.KindBool:
		var b bool
		if b, p = asBool(raw); p == nil {
			out.SetBool(b)
		}
	case model.KindDecimal:
		if num, q := asDecimal(raw); q == nil {
			out.SetString(string(num))
		} else {
			p = q
		}
	case model.KindDateTime, model.KindDate, model.KindTime:
		if t, q := asTime(raw, ref.Kind); q == nil {
			out.Set(reflect.ValueOf(t).Convert(base))
		} else {
			p = q
		}
	case model.KindDuration:
		if d, q := asDuration(raw); q == nil {
			out.SetInt(int64(d))
		} else {
			p = q
		}
	case model.KindUUID:
		if u, q := asUUID(raw); q == nil {
			out.Set(reflect.ValueOf(u).Convert(base))
		} else {
			p = q
		}
	case model.KindEmail:
		var s string
		if s, p = asEmail(raw); p == nil {
			out.SetString(s)
		}
	case model.KindURL:
		if u, s, q := asURL(raw); q == nil {
			if base == model.URLType {
				out.Set(reflect.ValueOf(*u))
			} else {
				out.SetString(s)
			}
		} else {
			p = q
		}
	case model.KindIP:
		if ip, s, q := asIP(raw); q == nil {
			if base.Kind() == reflect.Slice {
				out.Set(reflect.ValueOf(ip).Convert(base))
			} else {
				out.SetString(s)
			}
		} else {
			p = q
		}
	case model.KindBytes:
		var b []byte
		if b, p = asBytes(raw); p == nil {
			out.SetBytes(b)
		}
	case model.KindText:
		var s string
		if s, p = asString(raw); p == nil {
			target := reflect.New(base)
			if err := target.Interface().(interface{ UnmarshalText([]byte) error }).UnmarshalText([]byte(s)); err != nil {
				p = &problem{engine.CodeParsing, "Value error, " + err.Error()}
			} else {
				out = target.Elem()
			}
		}
	case model.KindEnum:
		return v.enum(ref, base, raw, path)
	case model.KindLiteral:
		return v.literal(ref, base, raw, path)
	case model.KindModel:
		return v.nested(ref, base, raw, path, partial)
	case model.KindList:
		return v.list(ref, base, raw, path, partial)
	case model.KindTuple:
		return v.tuple(ref, base, raw, path, partial)
	case model.KindMap:
		return v.mapping(ref, base, raw, path, partial)
	case model.KindUnion:
		return v.union(ref, base, raw, path, partial)
	default:
		return v.anything(ref, base, raw, path)
	}

	if p != nil {
		v.report(path, p)
		return reflect.Value{}, false
	}
	return out, true
}

func (v *validation) enum(ref *model.TypeRef, base reflect.Type, raw any, path engine.Path) (reflect.Value, bool) {
	inner := &model.TypeRef{Kind: underlyingKind(base), Go: base}
	probe := &validation{e: v.e}
	val, ok := probe.coerceBase(inner, base, raw, path, engine.Partial{})
	if ok {
		for _, allowed := range ref.Values {
			if reflect.DeepEqual(val.Interface(), allowed) {
				return val, true
			}
		}
	}
	v.fail(path, engine.CodeEnum, "Input should be "+expected(ref.Values))
	return reflect.Value{}, false
}

func (v *validation) literal(ref *model.TypeRef, base reflect.Type, raw any, path engine.Path) (reflect.Value, bool) {
	inner := &model.TypeRef{Kind: underlyingKind(base), Go: base}
	probe := &validation{e: v.e}
	val, ok := probe.coerceBase(inner, base, raw, path, engine.Partial{})
	if ok {
		plain := plainScalar(val)
		for _, allowed := range ref.Values {
			if engine.PlainEqual(plain, allowed) {
				return val, true
			}
		}
	}
	v.fail(path, engine.CodeLiteral, "Input should be "+expected(ref.Values))
	return reflect.Value{}, false
}

func (v *validation) nested(ref *model.TypeRef, base reflect.Type, raw any, path engine.Path, partial engine.Partial) (reflect.Value, bool) {
	m := v.e.arena.Model(ref.Model)

	// An existing instance is taken as is.
	if rv := reflect.ValueOf(raw); model.Indirect(rv.Type()) == m.Type {
		for rv.Kind() == reflect.Ptr && rv.Elem().Kind() == reflect.Ptr {
			rv = rv.Elem()
		}
		if rv.Kind() != reflect.Ptr {
			cp := reflect.New(m.Type)
			cp.Elem().Set(rv)
			rv = cp
		}
		if rv.IsNil() {
			v.fail(path, engine.CodeNull, "Field may not be null.")
			return reflect.Value{}, false
		}
		return v.modelValue(base, rv), true
	}

	data, ok := asMap(raw)
	if !ok {
		v.fail(path, engine.CodeType, "Input should be a valid dictionary or instance of "+m.Name)
		return reflect.Value{}, false
	}

	ptr, _, _, ok := v.model(m, data, path, partial)
	if !ok {
		return reflect.Value{}, false
	}
	return v.modelValue(base, ptr), true
}

// modelValue adapts a *T record to the slot's base type: T for struct
// slots, the pointer itself for interface slots.
func (v *validation) modelValue(base reflect.Type, ptr reflect.Value) reflect.Value {
	if base.Kind() == reflect.Interface {
		iv := reflect.New(base).Elem()
		iv.Set(ptr)
		return iv
	}
	return ptr.Elem()
}

func (v *validation) list(ref *model.TypeRef, base reflect.Type, raw any, path engine.Path, partial engine.Partial) (reflect.Value, bool) {
	items, ok := asList(raw)
	if !ok {
		v.fail(path, engine.CodeType, "Input should be a valid list")
		return reflect.Value{}, false
	}

	out := reflect.MakeSlice(base, len(items), len(items))
	good := true
	for i, item := range items {
		ev, ok := v.coerce(ref.Elem, item, path.Append(engine.Index(i)), partial)
		if !ok {
			good = false
			continue
		}
		out.Index(i).Set(ev)
	}
	return out, good
}

func (v *validation) tuple(ref *model.TypeRef, base reflect.Type, raw any, path engine.Path, partial engine.Partial) (reflect.Value, bool) {
	items, ok := asList(raw)
	if !ok {
		v.fail(path, engine.CodeType, "Input should be a valid tuple")
		return reflect.Value{}, false
	}
	if len(items) != len(ref.Items) {
		v.fail(path, engine.CodeTupleLength, fmt.Sprintf("Tuple should have %d items, got %d", len(ref.Items), len(items)))
		return reflect.Value{}, false
	}

	out := reflect.New(base).Elem()
	good := true
	for i, item := range items {
		ev, ok := v.coerce(ref.Items[i], item, path.Append(engine.Index(i)), partial)
		if !ok {
			good = false
			continue
		}
		out.Index(i).Set(ev)
	}
	return out, good
}

func (v *validation) mapping(ref *model.TypeRef, base reflect.Type, raw any, path engine.Path, partial engine.Partial) (reflect.Value, bool) {
	data, ok := asMap(raw)
	if !ok {
		v.fail(path, engine.CodeType, "Input should be a valid dictionary")
		return reflect.Value{}, false
	}

	keys := make([]string, 0, len(data))
	for k := range data {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	out := reflect.MakeMapWithSize(base, len(data))
	good := true
	for _, k := range keys {
		kpath := path.Append(engine.Key(k))
		kv, kok := v.coerce(ref.Key, k, kpath, engine.Partial{})
		vv, vok := v.coerce(ref.Elem, data[k], kpath, partial)
		if !kok || !vok {
			good = false
			continue
		}
		out.SetMapIndex(kv, vv)
	}
	return out, good
}

func (v *validation) union(ref *model.TypeRef, base reflect.Type, raw any, path engine.Path, partial engine.Partial) (reflect.Value, bool) {
	wrap := func(val reflect.Value) reflect.Value {
		iv := reflect.New(base).Elem()
		iv.Set(val)
		return iv
	}

	if ref.Discriminator != "" {
		data, ok := asMap(raw)
		if !ok {
			v.fail(path, engine.CodeType, "Input should be a valid dictionary")
			return reflect.Value{}, false
		}
		tagValue, ok := data[ref.Discriminator]
		if !ok {
			v.fail(path, engine.CodeUnionTagMiss, fmt.Sprintf("Unable to extract tag using discriminator '%s'", ref.Discriminator))
			return reflect.Value{}, false
		}
		tag := fmt.Sprint(tagValue)
		tags := make([]any, len(ref.Variants))
		for i, variant := range ref.Variants {
			tags[i] = variant.Tag
			if variant.Tag == tag {
				val, ok := v.coerce(variant.Type, raw, path, partial)
				if !ok {
					return reflect.Value{}, false
				}
				return wrap(val), true
			}
		}
		v.fail(path, engine.CodeUnionTag, fmt.Sprintf(
			"Input tag '%s' found using '%s' does not match any of the expected tags: %s",
			tag, ref.Discriminator, expected(tags)))
		return reflect.Value{}, false
	}

	// Without a discriminator the first variant that validates wins.
	for _, variant := range ref.Variants {
		probe := &validation{e: v.e}
		if val, ok := probe.coerce(variant.Type, raw, path, partial); ok {
			return wrap(val), true
		}
	}
	v.fail(path, engine.CodeUnion, "Input did not match any union member")
	return reflect.Value{}, false
}

func (v *validation) anything(ref *model.TypeRef, base reflect.Type, raw any, path engine.Path) (reflect.Value, bool) {
	rv := reflect.ValueOf(raw)
	if base.Kind() == reflect.Interface {
		if !rv.Type().Implements(base) {
			v.fail(path, engine.CodeUnassignable, "Input should be an instance of "+base.String())
			return reflect.Value{}, false
		}
		iv := reflect.New(base).Elem()
		iv.Set(rv)
		return iv, true
	}
	if rv.Type().AssignableTo(base) {
		out := reflect.New(base).Elem()
		out.Set(rv)
		return out, true
	}
	v.fail(path, engine.CodeUnassignable, "Input should be an instance of "+base.String())
	return reflect.Value{}, false
}
