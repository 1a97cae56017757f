package engine

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestPath(t *testing.T) {
	p := Path{Key("items"), Index(2), Key("name")}

	assert.Equal(t, "items.2.name", p.String())
	assert.True(t, p.HasPrefix(Path{Key("items")}))
	assert.True(t, p.HasPrefix(Path{Key("items"), Index(2)}))
	assert.False(t, p.HasPrefix(Path{Key("items"), Index(1)}))
	assert.False(t, Path{Key("items")}.HasPrefix(p))
	assert.True(t, p.HasPrefix(nil))

	t.Run("append does not alias", func(t *testing.T) {
		base := make(Path, 1, 4)
		base[0] = Key("a")
		x := base.Append(Key("x"))
		y := base.Append(Key("y"))
		assert.Equal(t, "a.x", x.String())
		assert.Equal(t, "a.y", y.String())
	})

	t.Run("prepend", func(t *testing.T) {
		assert.Equal(t, "0.items.2.name", p.Prepend(Index(0)).String())
	})

	t.Run("sentinels never equal keys", func(t *testing.T) {
		assert.NotEqual(t, Key("<schema>"), SchemaSegment())
		assert.NotEqual(t, Key(""), UnknownSegment())
		assert.NotEqual(t, SchemaSegment(), UnknownSegment())
		assert.True(t, SchemaSegment().IsSentinel())
		assert.False(t, Key("_schema").IsSentinel())
	})
}

func TestPartial(t *testing.T) {
	var none Partial
	assert.True(t, none.IsZero())
	assert.False(t, none.Exempt("a"))

	all := PartialAll()
	assert.True(t, all.Exempt("anything"))

	some := PartialFields("a")
	assert.True(t, some.Exempt("a"))
	assert.False(t, some.Exempt("b"))

	more := some.With("b")
	assert.True(t, more.Exempt("b"))
	assert.False(t, some.Exempt("b"), "With must not modify the receiver")

	assert.True(t, none.With("x").Exempt("x"))
	assert.Equal(t, all, all.With("x"))
}

func TestPlainEqual(t *testing.T) {
	tests := []struct {
		name string
		a, b any
		want bool
	}{
		{"int and float", 18, float64(18), true},
		{"number text", json.Number("2.5"), 2.5, true},
		{"different numbers", 1, 2, false},
		{"number and string", 1, "1", false},
		{"strings", "a", "a", true},
		{"nil", nil, nil, true},
		{"nil and zero", nil, 0, false},
		{"lists", []any{1, "x"}, []any{float64(1), "x"}, true},
		{"list lengths", []any{1}, []any{1, 2}, false},
		{"maps", map[string]any{"a": 1}, map[string]any{"a": float64(1)}, true},
		{"map keys", map[string]any{"a": 1}, map[string]any{"b": 1}, false},
		{"bools", true, true, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, PlainEqual(tt.a, tt.b))
		})
	}
}

func TestOutcomeFailed(t *testing.T) {
	assert.False(t, Outcome{}.Failed())
	assert.True(t, Outcome{Errors: []Issue{{Path: Path{Key("a")}, Message: "bad"}}}.Failed())
}
