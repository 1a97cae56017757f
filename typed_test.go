package bridge

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTypedSchema(t *testing.T) {
	ts, err := SchemaFor[pair](Options{})
	require.NoError(t, err)

	rec, err := ts.Load(map[string]any{"a": 1, "b": "2"})
	require.NoError(t, err)
	assert.Equal(t, &pair{A: 1, B: 2}, rec)

	rec, err = ts.Loads([]byte(`{"a": 3, "b": 4}`))
	require.NoError(t, err)
	assert.Equal(t, 3, rec.A)

	recs, err := ts.LoadMany([]any{map[string]any{"a": 1, "b": 2}, map[string]any{"a": 5, "b": 6}})
	require.NoError(t, err)
	require.Len(t, recs, 2)
	assert.Equal(t, 5, recs[1].A)

	out, err := ts.Dump(&pair{A: 7, B: 8})
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"a": 7, "b": 8}, out)

	outs, err := ts.DumpMany(recs)
	require.NoError(t, err)
	assert.Equal(t, []any{map[string]any{"a": 1, "b": 2}, map[string]any{"a": 5, "b": 6}}, outs)

	_, err = ts.Load(map[string]any{"a": 1})
	requireBVE(t, err)

	again, err := SchemaFor[pair](Options{})
	require.NoError(t, err)
	assert.Same(t, ts.Schema(), again.Schema())
}

func TestTypedOptionsAreNotShared(t *testing.T) {
	ts, err := SchemaFor[item](Options{})
	require.NoError(t, err)

	opts := make([]LoadOption, 1, 4)
	opts[0] = WithUnknown(Exclude)
	_, err = ts.Load(map[string]any{"a": 1, "z": 2}, opts...)
	require.NoError(t, err)
	assert.Nil(t, opts[:cap(opts)][1])
}

func TestTypedRejectsResultChanges(t *testing.T) {
	hooks := NewHooks().PostLoad(func(data any, _ HookContext) (any, error) {
		return "not a record", nil
	})
	c := mustClass(t, item{}, Options{Hooks: hooks})
	ts, err := Typed[item](c.Default())
	require.NoError(t, err)

	_, err = ts.Load(map[string]any{"a": 1})
	assert.ErrorIs(t, err, ErrUnexpectedType)

	_, err = Typed[pair](c.Default())
	assert.ErrorIs(t, err, ErrRecordType)
}
