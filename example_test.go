package bridge_test

import (
	"fmt"
	"reflect"
	"strings"

	bridge "github.com/SimonDaKappa/go-pave-bridge"
	"github.com/SimonDaKappa/go-pave-bridge/engine"
)

type signup struct {
	Name string `json:"name"`
	Age  int    `json:"age"`
}

func ExampleNewHooks() {
	hooks := bridge.NewHooks().
		PreLoad(func(data any, _ bridge.HookContext) (any, error) {
			m := data.(map[string]any)
			m["name"] = strings.TrimSpace(m["name"].(string))
			return m, nil
		}).
		PostDump(func(data any, _ bridge.HookContext) (any, error) {
			data.(map[string]any)["kind"] = "signup"
			return data, nil
		})

	c := bridge.MustBuild(reflect.TypeOf(signup{}), bridge.Options{Hooks: hooks})
	fmt.Println(c.Name(), c.Unknown(), c.Many())

	out, err := c.Default().Load(map[string]any{"name": "  ann ", "age": "41"})
	if err != nil {
		fmt.Println(err)
		return
	}
	fmt.Printf("%q %d\n", out.(*signup).Name, out.(*signup).Age)

	b, _ := c.Default().Dumps(out)
	fmt.Println(string(b))
	// Output:
	// signup raise false
	// "ann" 41
	// {"age":41,"kind":"signup","name":"ann"}
}

func ExampleSchema_Load_many() {
	c, _ := bridge.BuildFor[signup](bridge.Options{})
	s := c.MustNew(bridge.InstanceOpts{Unknown: bridge.Exclude})

	_, err := s.Load([]any{
		map[string]any{"name": "ann", "age": 41},
		map[string]any{"name": "bob", "age": "old", "extra": true},
	}, bridge.WithMany(true))

	bve := err.(*bridge.BridgeValidationError)
	fmt.Println(bve.Messages.At(engine.Index(1), engine.Key("age")))
	// Output:
	// [Input should be a valid integer, unable to parse string as an integer]
}
