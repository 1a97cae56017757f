package model

import (
	"slices"
)

// Base is embedded in models that need to remember which fields were
// explicitly provided and to carry keys with no declared field.
//
//	type User struct {
//		model.Base
//		Name string `json:"name"`
//	}
type Base struct {
	fieldsSet []string
	extra     map[string]any
}

// Tracker is the method set promoted by an embedded Base.
type Tracker interface {
	MarkSet(names ...string)
	FieldsSet() []string
	IsSet(name string) bool
	Extra() map[string]any
	SetExtra(key string, value any)
}

var _ Tracker = (*Base)(nil)

// MarkSet records names as explicitly provided.
func (b *Base) MarkSet(names ...string) {
	for _, n := range names {
		if !slices.Contains(b.fieldsSet, n) {
			b.fieldsSet = append(b.fieldsSet, n)
		}
	}
}

// FieldsSet returns the provided attribute names in the order they were
// first marked.
func (b *Base) FieldsSet() []string {
	return slices.Clone(b.fieldsSet)
}

// IsSet reports whether the named field was explicitly assigned.
func (b *Base) IsSet(name string) bool {
	return slices.Contains(b.fieldsSet, name)
}

// Extra returns keys stored without a declared field.
func (b *Base) Extra() map[string]any {
	return b.extra
}

// SetExtra stores an input key that matched no field.
func (b *Base) SetExtra(key string, value any) {
	if b.extra == nil {
		b.extra = make(map[string]any)
	}
	b.extra[key] = value
}

// TrackerOf returns the Tracker of a model record if it embeds Base.
// record may be a struct pointer or an addressable struct value.
func TrackerOf(record any) (Tracker, bool) {
	t, ok := record.(Tracker)
	return t, ok
}
