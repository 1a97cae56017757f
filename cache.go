package bridge

import (
	"fmt"
	"reflect"
	"sort"
	"strings"
	"sync"

	"github.com/SimonDaKappa/go-pave-bridge/model"
)

// ClassCache provides thread-safe caching of built schema classes per
// model type and options. Options holding hooks, engines or callbacks
// are keyed by the identity of those values.
type ClassCache struct {
	cache sync.Map // map[classKey]*classEntry
}

// DefaultCache backs SchemaFor and Cached.
var DefaultCache = NewClassCache()

type classKey struct {
	typ reflect.Type
	sig string
}

// classEntry is built exactly once, even under concurrent Gets.
type classEntry struct {
	once  sync.Once
	class *SchemaClass
	err   error
}

// NewClassCache returns an empty cache.
func NewClassCache() *ClassCache {
	return &ClassCache{}
}

// Cached is DefaultCache.Get.
func Cached(t reflect.Type, opts Options) (*SchemaClass, error) {
	return DefaultCache.Get(t, opts)
}

// Get returns the cached class for t and opts, building it on first
// use. Failed builds are not cached, so a later registration of a
// missing reference can succeed.
func (cc *ClassCache) Get(t reflect.Type, opts Options) (*SchemaClass, error) {
	key := classKey{typ: model.Indirect(t), sig: opts.signature()}

	actual, _ := cc.cache.LoadOrStore(key, &classEntry{})
	entry := actual.(*classEntry)
	entry.once.Do(func() {
		entry.class, entry.err = Build(t, opts)
	})
	if entry.err != nil {
		cc.cache.CompareAndDelete(key, entry)
		return nil, entry.err
	}
	return entry.class, nil
}

// Delete drops the class cached for t and opts.
func (cc *ClassCache) Delete(t reflect.Type, opts Options) {
	cc.cache.Delete(classKey{typ: model.Indirect(t), sig: opts.signature()})
}

// Clear removes all cache entries.
func (cc *ClassCache) Clear() {
	cc.cache.Range(func(k, _ any) bool {
		cc.cache.Delete(k)
		return true
	})
}

// Len returns the number of cached classes.
func (cc *ClassCache) Len() int {
	n := 0
	cc.cache.Range(func(_, _ any) bool {
		n++
		return true
	})
	return n
}

// signature renders opts deterministically for use as a cache key.
func (o Options) signature() string {
	var b strings.Builder
	fmt.Fprintf(&b, "name=%s;fields=%s;exclude=%s;load_only=%s;dump_only=%s;",
		o.Name, strings.Join(o.Fields, ","), strings.Join(o.Exclude, ","),
		strings.Join(o.LoadOnly, ","), strings.Join(o.DumpOnly, ","))
	fmt.Fprintf(&b, "unknown=%d;many=%t;maps=%t;strict=%t;", o.Unknown, o.Many, o.ReturnMaps, o.StrictTypes)

	overrides := make([]string, 0, len(o.TypeOverrides))
	for t, k := range o.TypeOverrides {
		overrides = append(overrides, t.String()+"="+k.String())
	}
	sort.Strings(overrides)
	fmt.Fprintf(&b, "overrides=%s;", strings.Join(overrides, ","))

	messages := make([]string, 0)
	for field, codes := range o.ErrorMessages {
		for code, msg := range codes {
			messages = append(messages, field+"."+code+"="+msg)
		}
	}
	sort.Strings(messages)
	fmt.Fprintf(&b, "messages=%q;", messages)

	fmt.Fprintf(&b, "hooks=%p;engine=%s;registry=%p;logger=%p;observer=%s;handler=%p;bind=%p",
		o.Hooks, identity(o.Engine), o.Registry, o.Logger, identity(o.Observer), o.ErrorHandler, o.OnBindField)
	return b.String()
}

// identity names an interface value by dynamic type and, for pointers,
// address.
func identity(v any) string {
	if v == nil {
		return "nil"
	}
	rv := reflect.ValueOf(v)
	if rv.Kind() == reflect.Ptr {
		return fmt.Sprintf("%T@%x", v, rv.Pointer())
	}
	return fmt.Sprintf("%T:%v", v, v)
}

func typeOf[M any]() reflect.Type {
	return reflect.TypeOf((*M)(nil)).Elem()
}
