package bridge

import (
	"encoding/json"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tidwall/gjson"
)

func TestDecodeJSON(t *testing.T) {
	out, err := DecodeJSON([]byte(`{"a": 1.50, "b": [true, null, "x"], "c": {"d": 10}}`))
	require.NoError(t, err)
	assert.Equal(t, map[string]any{
		"a": json.Number("1.50"),
		"b": []any{true, nil, "x"},
		"c": map[string]any{"d": json.Number("10")},
	}, out)

	out, err = DecodeJSON([]byte(`[]`))
	require.NoError(t, err)
	assert.Equal(t, []any{}, out)

	_, err = DecodeJSON([]byte(`{"a":`))
	assert.ErrorIs(t, err, ErrInvalidJSON)
}

func TestPlainJSON(t *testing.T) {
	r := gjson.Get(`{"user": {"name": "ann", "age": 30}}`, "user")
	assert.Equal(t, map[string]any{"name": "ann", "age": json.Number("30")}, PlainJSON(r))
}

func TestLoadsAndDumps(t *testing.T) {
	s := mustSchema(t, user{}, Options{})

	out, err := s.Loads([]byte(`{"name": "ann", "email": "ann@example.com", "age": 41, "address": {"street": "Main", "cityName": "Oslo"}}`))
	require.NoError(t, err)
	u := out.(*user)
	assert.Equal(t, intPtr(41), u.Age)
	assert.Equal(t, "Oslo", u.Address.City)

	b, err := s.Dumps(u, ExcludeNone())
	require.NoError(t, err)
	assert.JSONEq(t, `{
		"name": "ann",
		"email": "ann@example.com",
		"age": 41,
		"role": "member",
		"address": {"street": "Main", "cityName": "Oslo"},
		"display": "ann <ann@example.com>"
	}`, string(b))

	indented, err := s.DumpsIndent(u, ExcludeNone())
	require.NoError(t, err)
	assert.True(t, strings.Contains(string(indented), "\n  \""))
	assert.JSONEq(t, string(b), string(indented))

	_, err = s.Loads([]byte(`{"name": "ann", "age": 4.5}`))
	bve := requireBVE(t, err)
	assert.Contains(t, bve.MessagesMap(), "age")
	assert.Contains(t, bve.MessagesMap(), "email")

	_, err = s.Loads([]byte(`not json`))
	assert.ErrorIs(t, err, ErrInvalidJSON)
}

func TestLoadsMany(t *testing.T) {
	s := mustSchema(t, item{}, Options{Many: true})
	out, err := s.Loads([]byte(`[{"a": 1}, {"a": "2"}]`))
	require.NoError(t, err)
	assert.Equal(t, []any{&item{A: 1}, &item{A: 2}}, out)

	b, err := s.Dumps(out)
	require.NoError(t, err)
	assert.JSONEq(t, `[{"a": 1}, {"a": 2}]`, string(b))
}
