package bridge

import (
	"math/big"
	"net"
	"reflect"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/SimonDaKappa/go-pave-bridge/model"
)

type item struct {
	A int `json:"a"`
}

type trackedItem struct {
	model.Base
	A int `json:"a"`
}

type pair struct {
	A int `json:"a"`
	B int `json:"b"`
}

type named struct {
	Name string `json:"name" model:"pattern:'^[a-z]+$'"`
}

type address struct {
	Street string `json:"street"`
	City   string `json:"city" model:"alias:'cityName'"`
}

type user struct {
	model.Base
	Name    string   `json:"name" model:"minLength:'1' description:'display name'"`
	Email   string   `json:"email" model:"format:'email'"`
	Age     *int     `json:"age" model:"min:'0' max:'150'"`
	Role    string   `json:"role" model:"default:'member' choices:'member|admin'"`
	Tags    []string `json:"tags" model:"optional"`
	Address *address `json:"address"`
}

func (user) ComputedFields() []model.Computed {
	return []model.Computed{{Name: "display", Method: "Display"}}
}

func (u *user) Display() string {
	return u.Name + " <" + u.Email + ">"
}

type level string

func (level) EnumValues() []any { return []any{"low", "high"} }

type shape interface{ area() float64 }

type circle struct {
	Kind   string  `json:"kind"`
	Radius float64 `json:"radius"`
}

func (c circle) area() float64 { return 3 * c.Radius * c.Radius }

type square struct {
	Kind string  `json:"kind"`
	Side float64 `json:"side"`
}

func (s square) area() float64 { return s.Side * s.Side }

// everything exercises one field per mapping rule.
type everything struct {
	Text     string             `json:"text"`
	Count    int                `json:"count"`
	Small    uint8              `json:"small"`
	Ratio    float64            `json:"ratio"`
	On       bool               `json:"on"`
	Price    big.Float          `json:"price"`
	When     time.Time          `json:"when"`
	Day      time.Time          `json:"day" model:"format:'date'"`
	Clock    time.Time          `json:"clock" model:"format:'time'"`
	Wait     time.Duration      `json:"wait"`
	ID       uuid.UUID          `json:"id"`
	Mail     string             `json:"mail" model:"format:'email'"`
	Site     string             `json:"site" model:"format:'url'"`
	Host     net.IP             `json:"host"`
	Blob     []byte             `json:"blob"`
	Level    level              `json:"level"`
	Mode     string             `json:"mode" model:"literal:'fast|slow'"`
	Home     address            `json:"home"`
	Homes    []*address         `json:"homes"`
	Point    [2]float64         `json:"point"`
	Scores   map[string]int     `json:"scores"`
	Shape    shape              `json:"shape" model:"discriminator:'kind'"`
	Anything any                `json:"anything"`
	Labels   map[string][]level `json:"labels"`
}

func (everything) Unions() map[string]model.Union {
	return map[string]model.Union{
		"shape": {
			Discriminator: "kind",
			Variants: []model.Variant{
				{Tag: "circle", Type: reflect.TypeOf(circle{})},
				{Tag: "square", Type: reflect.TypeOf(square{})},
			},
		},
	}
}

type opaque struct {
	Name string   `json:"name"`
	Fn   func()   `json:"fn" model:"optional"`
	Ch   chan int `json:"ch" model:"optional"`
}

type tree struct {
	Value    int     `json:"value"`
	Children []*tree `json:"children" model:"optional"`
}

func mustClass(t *testing.T, v any, opts Options) *SchemaClass {
	t.Helper()
	c, err := Build(reflect.TypeOf(v), opts)
	require.NoError(t, err)
	return c
}

func mustSchema(t *testing.T, v any, opts Options) *Schema {
	t.Helper()
	return mustClass(t, v, opts).Default()
}

func intPtr(n int) *int { return &n }
