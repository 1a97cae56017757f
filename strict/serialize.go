package strict

import (
	"encoding"
	"encoding/json"
	"fmt"
	"net"
	"net/url"
	"reflect"
	"strconv"
	"time"

	"github.com/google/uuid"

	"github.com/SimonDaKappa/go-pave-bridge/engine"
	"github.com/SimonDaKappa/go-pave-bridge/model"
)

///////////////////////////////////////////////////////////////////////////////
// Serialization
///////////////////////////////////////////////////////////////////////////////

// Serialize projects record, a model struct or pointer to one, into
// plain data: strings, float64/int, bool, nil, []any and map[string]any,
// plus json.Number for decimals. Times use RFC 3339, dates and times of
// day their ISO layouts, durations Go duration text.
func (e *Engine) Serialize(record any, opts engine.SerializeOptions) (map[string]any, error) {
	ptr, err := addressable(reflect.ValueOf(record))
	if err != nil {
		return nil, err
	}
	m, err := e.arena.Extract(ptr.Type().Elem())
	if err != nil {
		return nil, err
	}
	return e.serializeModel(m, ptr, opts)
}

// addressable returns a *T for a T or *T (or deeper pointer) value.
func addressable(rv reflect.Value) (reflect.Value, error) {
	if !rv.IsValid() {
		return reflect.Value{}, ErrNilRecord
	}
	if rv.Kind() == reflect.Interface {
		rv = rv.Elem()
	}
	for rv.Kind() == reflect.Ptr && rv.Elem().Kind() == reflect.Ptr {
		rv = rv.Elem()
	}
	if rv.Kind() == reflect.Ptr {
		if rv.IsNil() {
			return reflect.Value{}, ErrNilRecord
		}
		return rv, nil
	}
	if !rv.IsValid() {
		return reflect.Value{}, ErrNilRecord
	}
	p := reflect.New(rv.Type())
	p.Elem().Set(rv)
	return p, nil
}

func (e *Engine) serializeModel(m *model.Model, ptr reflect.Value, opts engine.SerializeOptions) (map[string]any, error) {
	rec := ptr.Elem()

	var tracker model.Tracker
	if m.HasBase() {
		tracker, _ = ptr.Interface().(model.Tracker)
	}

	out := make(map[string]any, len(m.Fields))
	for _, d := range m.Fields {
		if d.Computed && !opts.IncludeComputed {
			continue
		}
		if opts.ExcludeUnset && !d.Computed && tracker != nil && !tracker.IsSet(d.Name) {
			continue
		}

		var fv reflect.Value
		if d.Computed {
			var err error
			if fv, err = callComputed(ptr, d); err != nil {
				return nil, err
			}
		} else {
			fv = rec.FieldByIndex(d.Index)
		}

		pv, err := e.plain(d.Type, fv, opts)
		if err != nil {
			return nil, fmt.Errorf("%s.%s: %w", m.Name, d.Name, err)
		}

		if opts.ExcludeNone && pv == nil {
			continue
		}
		if opts.ExcludeDefaults && !d.Computed {
			if def, ok := e.plainDefault(d); ok && engine.PlainEqual(pv, def) {
				continue
			}
		}

		key := d.Name
		if opts.ByAlias {
			key = d.DumpName
		}
		out[key] = pv
	}

	if tracker != nil {
		for k, v := range tracker.Extra() {
			if _, taken := out[k]; !taken {
				out[k] = v
			}
		}
	}

	return out, nil
}

func callComputed(ptr reflect.Value, d *model.Descriptor) (reflect.Value, error) {
	method := ptr.MethodByName(d.GoName)
	if !method.IsValid() {
		return reflect.Value{}, fmt.Errorf("%w: %s has no method %s", ErrComputed, d.Name, d.GoName)
	}
	outs := method.Call(nil)
	if len(outs) == 2 && !outs[1].IsNil() {
		return reflect.Value{}, fmt.Errorf("%w: %s: %w", ErrComputed, d.Name, outs[1].Interface().(error))
	}
	return outs[0], nil
}

// plainDefault returns the declared default of d in plain form.
func (e *Engine) plainDefault(d *model.Descriptor) (any, bool) {
	var raw any
	switch {
	case d.DefaultFactory != nil:
		raw = d.DefaultFactory()
	case d.HasDefault:
		raw = d.Default
	default:
		return nil, false
	}
	if raw == nil {
		return nil, true
	}

	rv := reflect.ValueOf(raw)
	if !rv.Type().AssignableTo(d.Type.Go) {
		v := &validation{e: e}
		cv, ok := v.coerce(d.Type, raw, nil, engine.Partial{})
		if !ok {
			return nil, false
		}
		rv = cv
	}

	pv, err := e.plain(d.Type, rv, engine.SerializeOptions{})
	if err != nil {
		return nil, false
	}
	return pv, true
}

func (e *Engine) plain(ref *model.TypeRef, v reflect.Value, opts engine.SerializeOptions) (any, error) {
	if !v.IsValid() {
		return nil, nil
	}
	if ref.Kind == model.KindAny {
		if v.Kind() == reflect.Interface && v.IsNil() {
			return nil, nil
		}
		return v.Interface(), nil
	}

	for v.Kind() == reflect.Ptr || v.Kind() == reflect.Interface {
		if v.IsNil() {
			return nil, nil
		}
		v = v.Elem()
	}

	switch ref.Kind {
	case model.KindModel:
		m := e.arena.Model(ref.Model)
		if v.Type() != m.Type {
			return v.Interface(), nil
		}
		ptr, err := addressable(v)
		if err != nil {
			return nil, err
		}
		return e.serializeModel(m, ptr, opts)

	case model.KindUnion:
		for _, variant := range ref.Variants {
			if variant.Type.Base() == v.Type() {
				return e.plain(variant.Type, v, opts)
			}
		}
		return v.Interface(), nil

	case model.KindList, model.KindTuple:
		if v.Kind() == reflect.Slice && v.IsNil() {
			return nil, nil
		}
		out := make([]any, v.Len())
		for i := range out {
			elem := ref.Elem
			if ref.Kind == model.KindTuple {
				elem = ref.Items[i]
			}
			pv, err := e.plain(elem, v.Index(i), opts)
			if err != nil {
				return nil, err
			}
			out[i] = pv
		}
		return out, nil

	case model.KindMap:
		if v.IsNil() {
			return nil, nil
		}
		out := make(map[string]any, v.Len())
		iter := v.MapRange()
		for iter.Next() {
			pv, err := e.plain(ref.Elem, iter.Value(), opts)
			if err != nil {
				return nil, err
			}
			out[mapKey(iter.Key())] = pv
		}
		return out, nil

	case model.KindDecimal:
		return json.Number(v.String()), nil
	case model.KindDateTime:
		return v.Interface().(time.Time).Format(time.RFC3339Nano), nil
	case model.KindDate:
		return v.Interface().(time.Time).Format(DateLayout), nil
	case model.KindTime:
		return v.Interface().(time.Time).Format(TimeLayout), nil
	case model.KindDuration:
		return time.Duration(v.Int()).String(), nil
	case model.KindUUID:
		return v.Interface().(uuid.UUID).String(), nil
	case model.KindURL:
		if u, ok := v.Interface().(url.URL); ok {
			return u.String(), nil
		}
		return v.String(), nil
	case model.KindIP:
		if v.Kind() == reflect.Slice {
			if v.IsNil() {
				return nil, nil
			}
			return net.IP(v.Bytes()).String(), nil
		}
		return v.String(), nil
	case model.KindBytes:
		if v.IsNil() {
			return nil, nil
		}
		return string(v.Bytes()), nil
	case model.KindText:
		ptr, err := addressable(v)
		if err != nil {
			return nil, err
		}
		if m, ok := ptr.Interface().(encoding.TextMarshaler); ok {
			b, err := m.MarshalText()
			if err != nil {
				return nil, err
			}
			return string(b), nil
		}
		return fmt.Sprint(v.Interface()), nil
	}

	return plainScalar(v), nil
}

func mapKey(k reflect.Value) string {
	switch k.Kind() {
	case reflect.String:
		return k.String()
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return strconv.FormatInt(k.Int(), 10)
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return strconv.FormatUint(k.Uint(), 10)
	}
	return fmt.Sprint(k.Interface())
}
