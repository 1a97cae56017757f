package strict

import (
	"encoding/json"
	"net"
	"reflect"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/SimonDaKappa/go-pave-bridge/engine"
	"github.com/SimonDaKappa/go-pave-bridge/model"
)

type address struct {
	Street string `json:"street"`
	City   string `json:"city" model:"minLength:'1'"`
}

type person struct {
	model.Base
	ID       uuid.UUID      `json:"id" model:"optional"`
	Name     string         `json:"name" model:"minLength:'1' maxLength:'10'"`
	Email    string         `json:"email" model:"format:'email' optional"`
	Age      int            `json:"age" model:"default:'18' min:'0' max:'150'"`
	Score    float64        `json:"score" model:"optional gt:'0'"`
	Active   bool           `json:"active" model:"default:'true'"`
	Nickname *string        `json:"nickname"`
	Tags     []string       `json:"tags" model:"optional maxLength:'3' pattern:'^[a-z]+$'"`
	Home     *address       `json:"home"`
	Labels   map[string]int `json:"labels" model:"optional"`
	Born     time.Time      `json:"born" model:"format:'date' optional"`
	Timeout  time.Duration  `json:"timeout" model:"optional"`
	Balance  json.Number    `json:"balance" model:"optional"`
	Secret   string         `json:"-"`
}

func (p person) Greeting() string { return "hi " + p.Name }

func (person) ComputedFields() []model.Computed {
	return []model.Computed{{Name: "greeting", Method: "Greeting"}}
}

type color string

const (
	red   color = "red"
	green color = "green"
)

func (color) EnumValues() []any { return []any{red, green} }

type shape interface{ Sides() int }

type circle struct {
	Kind   string  `json:"kind"`
	Radius float64 `json:"radius" model:"gt:'0'"`
}

func (circle) Sides() int { return 0 }

type square struct {
	Kind string  `json:"kind"`
	Side float64 `json:"side"`
}

func (square) Sides() int { return 4 }

type drawing struct {
	Color  color     `json:"color"`
	Mode   string    `json:"mode" model:"literal:'fast|slow' default:'fast'"`
	Shape  shape     `json:"shape"`
	Pair   [2]int    `json:"pair" model:"optional"`
	Size   string    `json:"size" model:"choices:'s|m|l' optional"`
	Ratios []float64 `json:"ratios" model:"optional min:'0' max:'1'"`
}

func (drawing) Unions() map[string]model.Union {
	return map[string]model.Union{
		"shape": {Discriminator: "kind", Variants: []model.Variant{
			{Tag: "circle", Type: reflect.TypeOf(circle{})},
			{Tag: "square", Type: reflect.TypeOf(square{})},
		}},
	}
}

type node struct {
	Value    int     `json:"value"`
	Children []*node `json:"children" model:"optional"`
}

func newEngine() *Engine {
	return New(Opts{Registry: model.NewRegistry()})
}

func issuesByPath(issues []engine.Issue) map[string][]string {
	out := make(map[string][]string)
	for _, is := range issues {
		out[is.Path.String()] = append(out[is.Path.String()], is.Code)
	}
	return out
}

func TestValidateSuccess(t *testing.T) {
	e := newEngine()
	id := uuid.New()

	out := e.Validate(reflect.TypeOf(person{}), map[string]any{
		"id":       id.String(),
		"name":     "Ada",
		"email":    "ada@example.com",
		"score":    "9.5",
		"nickname": nil,
		"tags":     []any{"x", "y"},
		"home":     map[string]any{"street": "Main", "city": "Town"},
		"labels":   map[string]any{"a": json.Number("1"), "b": 2.0},
		"born":     "1815-12-10",
		"timeout":  "1m30s",
		"balance":  12.5,
		"ignored":  true,
	}, engine.ValidateOptions{})

	require.False(t, out.Failed(), "%v", out.Errors)
	p := out.Record.(*person)

	assert.Equal(t, id, p.ID)
	assert.Equal(t, "Ada", p.Name)
	assert.Equal(t, 18, p.Age)
	assert.Equal(t, 9.5, p.Score)
	assert.True(t, p.Active)
	assert.Nil(t, p.Nickname)
	assert.Equal(t, []string{"x", "y"}, p.Tags)
	require.NotNil(t, p.Home)
	assert.Equal(t, "Town", p.Home.City)
	assert.Equal(t, map[string]int{"a": 1, "b": 2}, p.Labels)
	assert.Equal(t, time.Date(1815, 12, 10, 0, 0, 0, 0, time.UTC), p.Born)
	assert.Equal(t, 90*time.Second, p.Timeout)
	assert.Equal(t, json.Number("12.5"), p.Balance)

	assert.Equal(t, []string{"id", "name", "email", "score", "nickname", "tags", "home", "labels", "born", "timeout", "balance"}, out.Set)
	assert.Equal(t, out.Set, p.FieldsSet())
	assert.False(t, p.IsSet("age"))
}

func TestValidateAccumulatesErrors(t *testing.T) {
	e := newEngine()

	out := e.Validate(reflect.TypeOf(person{}), map[string]any{
		"name":   "",
		"email":  "not-an-email",
		"age":    200,
		"score":  0,
		"active": "maybe",
		"tags":   []any{"ok", "Bad", 3, "x"},
		"home":   map[string]any{"street": "Main"},
		"labels": map[string]any{"a": "one"},
	}, engine.ValidateOptions{})

	require.True(t, out.Failed())
	assert.Nil(t, out.Record)

	got := issuesByPath(out.Errors)
	assert.Equal(t, map[string][]string{
		"name":      {engine.CodeTooShort},
		"email":     {engine.CodeEmail},
		"age":       {engine.CodeLessEqual},
		"score":     {engine.CodeGreater},
		"active":    {engine.CodeParsing},
		"tags.2":    {engine.CodeType},
		"home.city": {engine.CodeMissing},
		"labels.a":  {engine.CodeParsing},
	}, got)

	t.Run("valid holds passing fields", func(t *testing.T) {
		assert.Empty(t, out.Valid)
	})
}

func TestValidateListConstraints(t *testing.T) {
	e := newEngine()

	out := e.Validate(reflect.TypeOf(person{}), map[string]any{
		"name": "Ada",
		"tags": []any{"ok", "Bad", "x", "y"},
	}, engine.ValidateOptions{})

	got := issuesByPath(out.Errors)
	assert.Equal(t, map[string][]string{
		"tags":   {engine.CodeTooLong},
		"tags.1": {engine.CodePattern},
	}, got)
	assert.Equal(t, "Ada", out.Valid["name"])
}

func TestValidateMissingAndPartial(t *testing.T) {
	e := newEngine()
	typ := reflect.TypeOf(person{})

	t.Run("required", func(t *testing.T) {
		out := e.Validate(typ, map[string]any{}, engine.ValidateOptions{})
		require.Len(t, out.Errors, 1)
		assert.Equal(t, "name", out.Errors[0].Path.String())
		assert.Equal(t, "Field required", out.Errors[0].Message)
		assert.Equal(t, engine.CodeMissing, out.Errors[0].Code)
	})

	t.Run("partial all", func(t *testing.T) {
		out := e.Validate(typ, map[string]any{"home": map[string]any{}}, engine.ValidateOptions{Partial: engine.PartialAll()})
		require.False(t, out.Failed(), "%v", out.Errors)
		assert.Equal(t, 18, out.Record.(*person).Age)
	})

	t.Run("partial names are top level only", func(t *testing.T) {
		out := e.Validate(typ, map[string]any{"home": map[string]any{}}, engine.ValidateOptions{Partial: engine.PartialFields("name", "city")})
		got := issuesByPath(out.Errors)
		assert.Equal(t, map[string][]string{
			"home.street": {engine.CodeMissing},
			"home.city":   {engine.CodeMissing},
		}, got)
	})

	t.Run("partial still checks provided fields", func(t *testing.T) {
		out := e.Validate(typ, map[string]any{"age": -1}, engine.ValidateOptions{Partial: engine.PartialAll()})
		assert.Equal(t, map[string][]string{"age": {engine.CodeGreaterEqual}}, issuesByPath(out.Errors))
	})

	t.Run("null", func(t *testing.T) {
		out := e.Validate(typ, map[string]any{"name": nil}, engine.ValidateOptions{})
		assert.Equal(t, map[string][]string{"name": {engine.CodeNull}}, issuesByPath(out.Errors))
	})
}

func TestValidateEnumsLiteralsUnions(t *testing.T) {
	e := newEngine()
	typ := reflect.TypeOf(drawing{})

	t.Run("valid", func(t *testing.T) {
		out := e.Validate(typ, map[string]any{
			"color":  "green",
			"shape":  map[string]any{"kind": "square", "side": 2},
			"pair":   []any{1, "2"},
			"size":   "m",
			"ratios": []any{0.5, 1},
		}, engine.ValidateOptions{})
		require.False(t, out.Failed(), "%v", out.Errors)
		d := out.Record.(*drawing)
		assert.Equal(t, green, d.Color)
		assert.Equal(t, "fast", d.Mode)
		assert.Equal(t, square{Kind: "square", Side: 2}, d.Shape)
		assert.Equal(t, [2]int{1, 2}, d.Pair)
	})

	t.Run("invalid", func(t *testing.T) {
		out := e.Validate(typ, map[string]any{
			"color":  "blue",
			"mode":   "medium",
			"shape":  map[string]any{"kind": "circle", "radius": -1},
			"pair":   []any{1},
			"size":   "xl",
			"ratios": []any{0.5, 2},
		}, engine.ValidateOptions{})
		got := issuesByPath(out.Errors)
		assert.Equal(t, map[string][]string{
			"color":        {engine.CodeEnum},
			"mode":         {engine.CodeLiteral},
			"shape.radius": {engine.CodeGreater},
			"pair":         {engine.CodeTupleLength},
			"size":         {engine.CodeChoice},
			"ratios.1":     {engine.CodeLessEqual},
		}, got)

		for _, is := range out.Errors {
			switch is.Path.String() {
			case "color":
				assert.Equal(t, "Input should be 'red' or 'green'", is.Message)
			case "size":
				assert.Equal(t, "Must be one of: s, m, l.", is.Message)
			}
		}
	})

	t.Run("unknown tag", func(t *testing.T) {
		out := e.Validate(typ, map[string]any{"color": "red", "shape": map[string]any{"kind": "hexagon"}}, engine.ValidateOptions{})
		require.Len(t, out.Errors, 1)
		assert.Equal(t, engine.CodeUnionTag, out.Errors[0].Code)
		assert.Contains(t, out.Errors[0].Message, "'circle' or 'square'")
	})

	t.Run("missing tag", func(t *testing.T) {
		out := e.Validate(typ, map[string]any{"color": "red", "shape": map[string]any{"side": 1}}, engine.ValidateOptions{})
		require.Len(t, out.Errors, 1)
		assert.Equal(t, engine.CodeUnionTagMiss, out.Errors[0].Code)
	})
}

func TestValidateRecursive(t *testing.T) {
	e := newEngine()

	out := e.Validate(reflect.TypeOf(node{}), map[string]any{
		"value": 1,
		"children": []any{
			map[string]any{"value": 2},
			map[string]any{"value": 3, "children": []any{map[string]any{"value": "x"}}},
		},
	}, engine.ValidateOptions{})

	require.True(t, out.Failed())
	assert.Equal(t, "children.1.children.0.value", out.Errors[0].Path.String())
	assert.Equal(t, engine.Path{
		engine.Key("children"), engine.Index(1), engine.Key("children"), engine.Index(0), engine.Key("value"),
	}, out.Errors[0].Path)
}

func TestCoercion(t *testing.T) {
	t.Run("ints", func(t *testing.T) {
		for raw, want := range map[any]int64{
			"42": 42, 42.0: 42, json.Number("7"): 7, int8(3): 3, uint16(9): 9,
		} {
			got, p := asInt(raw)
			require.Nil(t, p, "%v", raw)
			assert.Equal(t, want, got)
		}
		for _, raw := range []any{"4.5", 4.5, true, "abc", []any{}} {
			_, p := asInt(raw)
			assert.NotNil(t, p, "%v", raw)
		}
	})

	t.Run("uints", func(t *testing.T) {
		_, p := asUint(-1)
		require.NotNil(t, p)
		assert.Equal(t, engine.CodeGreaterEqual, p.code)
		n, p := asUint("18446744073709551615")
		require.Nil(t, p)
		assert.Equal(t, uint64(18446744073709551615), n)
	})

	t.Run("bools", func(t *testing.T) {
		for raw, want := range map[any]bool{
			"yes": true, "ON": true, "1": true, 1: true, "no": false, "off": false, 0.0: false,
		} {
			got, p := asBool(raw)
			require.Nil(t, p, "%v", raw)
			assert.Equal(t, want, got, "%v", raw)
		}
		_, p := asBool(2)
		assert.NotNil(t, p)
	})

	t.Run("times", func(t *testing.T) {
		got, p := asTime("2024-03-01T10:00:00Z", model.KindDateTime)
		require.Nil(t, p)
		assert.Equal(t, time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC), got)

		got, p = asTime(0.0, model.KindDateTime)
		require.Nil(t, p)
		assert.Equal(t, time.Unix(0, 0).UTC(), got)

		_, p = asTime("2024-03-01T10:00:00Z", model.KindDate)
		assert.NotNil(t, p)
	})

	t.Run("decimal", func(t *testing.T) {
		got, p := asDecimal("1e400")
		require.Nil(t, p)
		assert.Equal(t, json.Number("1e400"), got)
		_, p = asDecimal("12a")
		assert.NotNil(t, p)
	})

	t.Run("email and ip", func(t *testing.T) {
		_, p := asEmail("Ada <ada@example.com>")
		assert.NotNil(t, p)
		_, p = asEmail("ada@localhost")
		assert.NotNil(t, p)
		_, _, p = asIP("10.0.0.1")
		assert.Nil(t, p)
		_, _, p = asIP("10.0.0")
		assert.NotNil(t, p)
	})

	t.Run("urls", func(t *testing.T) {
		_, _, p := asURL("https://example.com/a")
		assert.Nil(t, p)
		_, _, p = asURL("/relative")
		assert.NotNil(t, p)
	})
}

type netHost struct {
	IP   net.IP `json:"ip"`
	Port uint16 `json:"port"`
}

func TestOverflow(t *testing.T) {
	e := newEngine()
	out := e.Validate(reflect.TypeOf(netHost{}), map[string]any{"ip": "::1", "port": 70000}, engine.ValidateOptions{})
	assert.Equal(t, map[string][]string{"port": {engine.CodeIntOverflow}}, issuesByPath(out.Errors))
	assert.Equal(t, net.ParseIP("::1"), out.Valid["ip"])
}
