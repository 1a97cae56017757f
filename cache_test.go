package bridge

import (
	"reflect"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/SimonDaKappa/go-pave-bridge/model"
)

type refHolder struct {
	Value any `json:"value" model:"ref:'cacheTarget'"`
}

type cacheTarget struct {
	N int `json:"n"`
}

func TestClassCacheGet(t *testing.T) {
	cc := NewClassCache()
	typ := reflect.TypeOf(pair{})

	a, err := cc.Get(typ, Options{})
	require.NoError(t, err)
	b, err := cc.Get(reflect.PointerTo(typ), Options{})
	require.NoError(t, err)
	assert.Same(t, a, b, "pointer types share the entry of their element type")

	c, err := cc.Get(typ, Options{Exclude: []string{"b"}})
	require.NoError(t, err)
	assert.NotSame(t, a, c)
	assert.Equal(t, 2, cc.Len())

	cc.Delete(typ, Options{})
	assert.Equal(t, 1, cc.Len())
	cc.Clear()
	assert.Equal(t, 0, cc.Len())
}

func TestClassCacheConcurrent(t *testing.T) {
	cc := NewClassCache()
	typ := reflect.TypeOf(user{})

	const workers = 16
	results := make([]*SchemaClass, workers)
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			c, err := cc.Get(typ, Options{})
			assert.NoError(t, err)
			results[i] = c
		}(i)
	}
	wg.Wait()

	for _, c := range results[1:] {
		assert.Same(t, results[0], c)
	}
}

func TestClassCacheDoesNotKeepFailures(t *testing.T) {
	registry := model.NewRegistry()
	cc := NewClassCache()
	typ := reflect.TypeOf(refHolder{})

	_, err := cc.Get(typ, Options{Registry: registry})
	assert.ErrorIs(t, err, ErrUnresolvedType)
	assert.Equal(t, 0, cc.Len())

	require.NoError(t, registry.Register("cacheTarget", reflect.TypeOf(cacheTarget{})))
	c, err := cc.Get(typ, Options{Registry: registry})
	require.NoError(t, err)
	f, _ := c.Field("value")
	assert.Equal(t, Nested, f.Kind)
	assert.Equal(t, reflect.TypeOf(cacheTarget{}), f.Model)
}

func TestOptionsSignature(t *testing.T) {
	hooks := NewHooks()
	base := Options{Fields: []string{"a"}, Hooks: hooks}

	assert.Equal(t, base.signature(), Options{Fields: []string{"a"}, Hooks: hooks}.signature())
	assert.NotEqual(t, base.signature(), Options{Fields: []string{"a"}, Hooks: NewHooks()}.signature())
	assert.NotEqual(t, base.signature(), Options{Fields: []string{"a"}, Hooks: hooks, Unknown: Exclude}.signature())

	m1 := Options{ErrorMessages: map[string]map[string]string{"a": {"x": "1", "y": "2"}, "b": {"x": "3"}}}
	m2 := Options{ErrorMessages: map[string]map[string]string{"b": {"x": "3"}, "a": {"y": "2", "x": "1"}}}
	assert.Equal(t, m1.signature(), m2.signature())

	o1 := Options{TypeOverrides: map[reflect.Type]FieldKind{reflect.TypeOf(""): Email, reflect.TypeOf(0): Float}}
	o2 := Options{TypeOverrides: map[reflect.Type]FieldKind{reflect.TypeOf(0): Float, reflect.TypeOf(""): Email}}
	assert.Equal(t, o1.signature(), o2.signature())
}
