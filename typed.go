package bridge

import (
	"fmt"
)

// TypedSchema wraps a schema instance of model M with typed results.
type TypedSchema[M any] struct {
	schema *Schema
}

// SchemaFor builds, or fetches from DefaultCache, the class of M and
// wraps its default instance.
func SchemaFor[M any](opts Options) (*TypedSchema[M], error) {
	c, err := DefaultCache.Get(typeOf[M](), opts)
	if err != nil {
		return nil, err
	}
	return &TypedSchema[M]{schema: c.Default()}, nil
}

// Typed wraps an existing instance. The instance's class must be built
// for M.
func Typed[M any](s *Schema) (*TypedSchema[M], error) {
	if s.class.typ != typeOf[M]() {
		return nil, fmt.Errorf("%w: schema %s is not built for %s", ErrRecordType, s.class.name, typeOf[M]())
	}
	return &TypedSchema[M]{schema: s}, nil
}

// Schema returns the wrapped instance.
func (t *TypedSchema[M]) Schema() *Schema { return t.schema }

// Load loads a single record. Post-load hooks must keep returning *M.
func (t *TypedSchema[M]) Load(data any, opts ...LoadOption) (*M, error) {
	opts = append(opts[:len(opts):len(opts)], WithMany(false), ReturnInstance(true))
	out, err := t.schema.Load(data, opts...)
	if err != nil {
		return nil, err
	}
	rec, ok := out.(*M)
	if !ok {
		return nil, fmt.Errorf("%w: load returned %T", ErrUnexpectedType, out)
	}
	return rec, nil
}

// Loads is Load for JSON text.
func (t *TypedSchema[M]) Loads(text []byte, opts ...LoadOption) (*M, error) {
	data, err := DecodeJSON(text)
	if err != nil {
		return nil, err
	}
	return t.Load(data, opts...)
}

// LoadMany loads a list of records in batch mode.
func (t *TypedSchema[M]) LoadMany(data any, opts ...LoadOption) ([]*M, error) {
	opts = append(opts[:len(opts):len(opts)], WithMany(true), ReturnInstance(true))
	out, err := t.schema.Load(data, opts...)
	if err != nil {
		return nil, err
	}
	items, ok := out.([]any)
	if !ok {
		return nil, fmt.Errorf("%w: load returned %T", ErrUnexpectedType, out)
	}
	recs := make([]*M, len(items))
	for i, item := range items {
		if recs[i], ok = item.(*M); !ok {
			return nil, fmt.Errorf("%w: item %d is %T", ErrUnexpectedType, i, item)
		}
	}
	return recs, nil
}

// Dump dumps a single record. Post-dump hooks must keep returning a map.
func (t *TypedSchema[M]) Dump(rec *M, opts ...DumpOption) (map[string]any, error) {
	opts = append(opts[:len(opts):len(opts)], WithDumpMany(false))
	out, err := t.schema.Dump(rec, opts...)
	if err != nil {
		return nil, err
	}
	m, ok := out.(map[string]any)
	if !ok {
		return nil, fmt.Errorf("%w: dump returned %T", ErrUnexpectedType, out)
	}
	return m, nil
}

// DumpMany dumps recs in batch mode.
func (t *TypedSchema[M]) DumpMany(recs []*M, opts ...DumpOption) ([]any, error) {
	opts = append(opts[:len(opts):len(opts)], WithDumpMany(true))
	out, err := t.schema.Dump(recs, opts...)
	if err != nil {
		return nil, err
	}
	items, ok := out.([]any)
	if !ok {
		return nil, fmt.Errorf("%w: dump returned %T", ErrUnexpectedType, out)
	}
	return items, nil
}
